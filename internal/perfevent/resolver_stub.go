//go:build !linux

package perfevent

type stubResolver struct{}

func newResolver() Resolver { return &stubResolver{} }

func (r *stubResolver) Resolve(name string) (Attr, error) {
	return Attr{}, ErrUnsupportedPlatform
}

func (r *stubResolver) ResolveAll(names []string) ([]Attr, error) {
	return nil, ErrUnsupportedPlatform
}
