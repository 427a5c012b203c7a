// Package device models the low-level, NUMA-aware allocator capability
// that spec.md declares out of scope ("the low-level NUMA-device
// enumeration and arena_create/arena_alloc/arena_realloc/free
// primitives"). It ships one concrete, OS-backed implementation so the
// rest of the runtime has something real to drive; callers that embed
// a production NUMA allocator (jemalloc-style) implement the same
// Allocator/Arena interfaces and swap this one out.
//
// The reference implementation is adapted from
// nmxmxh-inos_v1/kernel/threads/arena's HybridAllocator/SlabAllocator/
// BuddyAllocator, which originally routed allocations inside a fixed
// SharedArrayBuffer for a WASM bridge. Here the same size-class
// routing (slab for small objects, buddy for the rest) backs a real
// OS-obtained byte arena per Device instead of a shared WASM buffer.
package device

import (
	"fmt"
)

// Tag symbolically identifies a memory target (e.g. a NUMA node or a
// named tier), matching spec §6's SH_DEFAULT_DEVICE / sicm_device_tag.
type Tag string

// Device is one memory target an arena can be pinned to.
type Device struct {
	Tag  Tag
	Node int // NUMA node id, or -1 if not meaningful on this platform
}

// List enumerates the devices known to the runtime. In production this
// would come from libnuma; here it is populated once at startup by
// whatever platform-specific enumeration is available (see
// enumerate_linux.go / enumerate_stub.go).
type List struct {
	Devices []*Device
}

// ByTag returns the device with the given tag, or nil if none matches —
// mirroring high.c's set_options fallback ("first enumerated device is
// used" on a miss happens at the caller, in internal/config).
func (l *List) ByTag(tag Tag) *Device {
	for _, d := range l.Devices {
		if d.Tag == tag {
			return d
		}
	}
	return nil
}

// BindingPolicy mirrors sicm's arena_create binding policies. Only
// Relaxed is used by this runtime (spec §4.2 step 3: "a relaxed
// binding policy"), the others are named for completeness of the
// out-of-scope interface.
type BindingPolicy int

const (
	PolicyRelaxed BindingPolicy = iota
	PolicyStrict
	PolicyBandwidth
)

// Arena is an opaque device-arena handle: the out-of-scope
// arena_alloc/arena_realloc/free primitives spec.md names.
type Arena interface {
	// Alloc returns the address of a new allocation of at least size
	// bytes, or an error if the arena is out of room.
	Alloc(size uint32) (uintptr, error)
	// AlignedAlloc is Alloc with an additional alignment requirement.
	AlignedAlloc(size, align uint32) (uintptr, error)
	// Realloc resizes (or, if ptr is 0, creates) an allocation.
	Realloc(ptr uintptr, size uint32) (uintptr, error)
	// Free releases an allocation back to the arena.
	Free(ptr uintptr) error
	// Release advises the OS that [start,end) is no longer needed; it
	// implements extent.Releaser so the extent index can call it
	// directly on extent deletion (spec §4.1 "delete... advises the
	// kernel the pages are no longer needed").
	Release(start, end uintptr) error
}

// Allocator is the device-allocator capability: it materializes a new
// Arena bound to a device list under a binding policy, matching
// sicm_arena_create(0, SICM_ALLOC_RELAXED, &dl) in sicm_runtime.c.
type Allocator interface {
	CreateArena(devices []*Device, policy BindingPolicy) (Arena, error)
}

// ErrOutOfMemory is returned by an Arena when it cannot satisfy a
// request from its backing bytes.
var ErrOutOfMemory = fmt.Errorf("device: arena out of memory")

// ErrInvalidOffset is returned by Free/Realloc when given an address
// the arena did not hand out.
var ErrInvalidOffset = fmt.Errorf("device: invalid or already-freed address")
