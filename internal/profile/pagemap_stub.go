//go:build !linux

package profile

func newPagemapReader() (pagemapReader, int64, error) {
	return nil, 0, ErrUnsupportedPlatform
}
