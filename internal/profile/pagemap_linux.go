//go:build linux

package profile

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const pagemapEntrySize = 8

// pagemapPresentBit is bit 63 of a /proc/<pid>/pagemap entry: "page
// present in RAM" (see Documentation/admin-guide/mm/pagemap.rst).
const pagemapPresentBit = uint64(1) << 63

type linuxPagemapReader struct {
	f *os.File
}

func newPagemapReader() (pagemapReader, int64, error) {
	f, err := os.Open("/proc/self/pagemap")
	if err != nil {
		return nil, 0, fmt.Errorf("profile: open pagemap: %w", err)
	}
	return &linuxPagemapReader{f: f}, int64(unix.Getpagesize()), nil
}

// CountPresent reads the pagemap entries for [startPage,
// startPage+numPages) and counts how many carry the present bit. A
// short read (the range extends past the mapped region reported by
// the kernel) is tolerated silently, matching profile_rss.c's
// handling of unmapped holes.
func (r *linuxPagemapReader) CountPresent(startPage, numPages int64) (int64, error) {
	if numPages <= 0 {
		return 0, nil
	}
	buf := make([]byte, numPages*pagemapEntrySize)
	n, err := r.f.ReadAt(buf, startPage*pagemapEntrySize)
	if err != nil && n == 0 {
		return 0, fmt.Errorf("profile: read pagemap: %w", err)
	}

	var present int64
	for off := 0; off+pagemapEntrySize <= n; off += pagemapEntrySize {
		entry := binary.LittleEndian.Uint64(buf[off : off+pagemapEntrySize])
		if entry&pagemapPresentBit != 0 {
			present++
		}
	}
	return present, nil
}

func (r *linuxPagemapReader) Close() error {
	return r.f.Close()
}
