//go:build linux

package profile

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/nmxmxh/tiermem/internal/perfevent"
)

func osPageSize() int { return unix.Getpagesize() }

type linuxEventOpener struct{}

func newEventOpener() eventOpener { return &linuxEventOpener{} }

// mmapRing wraps one perf_event_open fd and its mmap'd ring buffer:
// page 0 is the perf_event_mmap_page header, the remaining
// maxSamplePages*pageSize bytes are the sample data region, matching
// profile_all_init's per-event setup in sicm_profile_all.c.
type mmapRing struct {
	fd  int
	mem []byte
}

func (o *linuxEventOpener) Open(attr perfevent.Attr, pageSize, maxSamplePages int) (ringBuffer, error) {
	raw, ok := attr.Raw.(*unix.PerfEventAttr)
	if !ok {
		return nil, fmt.Errorf("profile: perfevent.Attr %q carries no PerfEventAttr", attr.Name)
	}

	fd, err := unix.PerfEventOpen(raw, 0 /* pid: calling thread */, -1 /* cpu: any */, -1 /* no group */, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("profile: perf_event_open %q: %w", attr.Name, err)
	}

	totalPages := 1 + maxSamplePages
	mem, err := unix.Mmap(fd, 0, totalPages*pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("profile: mmap ring for %q: %w", attr.Name, err)
	}

	if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_RESET, 0); err != nil {
		unix.Munmap(mem)
		unix.Close(fd)
		return nil, fmt.Errorf("profile: reset %q: %w", attr.Name, err)
	}
	if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
		unix.Munmap(mem)
		unix.Close(fd)
		return nil, fmt.Errorf("profile: enable %q: %w", attr.Name, err)
	}

	return &mmapRing{fd: fd, mem: mem}, nil
}

func (r *mmapRing) Region() (header, data []byte) {
	pageSize := unix.Getpagesize()
	return r.mem[:pageSize], r.mem[pageSize:]
}

func (r *mmapRing) Close() error {
	unix.IoctlSetInt(r.fd, unix.PERF_EVENT_IOC_DISABLE, 0)
	err := unix.Munmap(r.mem)
	if cerr := unix.Close(r.fd); err == nil {
		err = cerr
	}
	return err
}
