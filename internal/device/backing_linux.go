//go:build linux

package device

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// newBackingBuffer obtains size bytes of anonymous, private memory via
// mmap, matching sicm's use of mmap (through jemalloc/numa) to back an
// arena's address range rather than the Go heap.
func newBackingBuffer(size uint32) ([]byte, error) {
	buf, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("device: mmap %d bytes: %w", size, err)
	}
	return buf, nil
}

// adviseDontNeed tells the kernel the given pages can be dropped
// without unmapping the range, matching sh_delete_extent's
// madvise(..., MADV_DONTNEED) call in sicm_runtime.c.
func adviseDontNeed(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	return unix.Madvise(buf, unix.MADV_DONTNEED)
}
