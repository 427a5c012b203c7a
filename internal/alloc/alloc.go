// Package alloc implements the allocation front-end (spec component
// C5): alloc/realloc/aligned_alloc/posix_memalign/memalign/calloc/free
// entry points that the compiler pass would emit into the binary.
//
// Grounded on sicm_runtime.c's sh_alloc/sh_realloc/sh_free: pass-
// through rules for an uninitialized runtime, id==0, size==0 or
// INVALID_LAYOUT; otherwise resolve an arena via the layout
// dispatcher, delegate to the device-backed arena, and record the
// extent/profiling side effects.
package alloc

import (
	"fmt"
	"sync"

	"github.com/nmxmxh/tiermem/internal/arena"
	"github.com/nmxmxh/tiermem/internal/extent"
	"github.com/nmxmxh/tiermem/internal/layout"
	"github.com/nmxmxh/tiermem/internal/rdspy"
	"github.com/nmxmxh/tiermem/internal/site"
)

// RawAllocator is the fallback used for pass-through allocations: an
// uninitialized runtime, id==0, size==0, or INVALID_LAYOUT all forward
// here without arena bookkeeping (spec §4.5 contract).
type RawAllocator interface {
	Alloc(size uint32) (uintptr, error)
	AlignedAlloc(size, align uint32) (uintptr, error)
	Realloc(ptr uintptr, size uint32) (uintptr, error)
	Free(ptr uintptr) error
}

// AllocationRecorder observes allocation profiling: ptr/size/slot
// triples for every non-passthrough allocation, so the logical size
// of the owning arena can be maintained. A nil recorder on Runtime
// disables allocation profiling entirely (spec §6 SH_PROFILING off).
type AllocationRecorder interface {
	Record(ptr uintptr, size uint32, a *arena.Arena)
	Forget(ptr uintptr) (size uint32, a *arena.Arena, ok bool)
}

// Runtime is the alloc front-end. Dispatcher may be nil, in which case
// every call is pass-through (layout is effectively INVALID_LAYOUT).
type Runtime struct {
	Dispatcher *layout.Dispatcher
	Extents    *extent.Index
	Raw        RawAllocator
	Recorder   AllocationRecorder

	// RDSpy is the thin read-distance side-profiler hook (spec §1:
	// "out of scope... a thin hook"). A nil value is treated as
	// rdspy.NoOp().
	RDSpy rdspy.Hook
}

func (r *Runtime) rdspy() rdspy.Hook {
	if r.RDSpy == nil {
		return rdspy.NoOp()
	}
	return r.RDSpy
}

// ErrUninitialized marks a call made before the runtime finished
// initialization; the caller passes through to Raw without bookkeeping
// rather than surfacing this as a hard error.
var ErrUninitialized = fmt.Errorf("alloc: runtime not initialized")

func (r *Runtime) passthrough(id int64, size uint32) bool {
	return r.Dispatcher == nil || r.Dispatcher.Layout == layout.InvalidLayout || id == 0 || size == 0
}

// Alloc implements the entry point alloc(id,size).
func (r *Runtime) Alloc(id int64, size uint32, thread *site.ThreadHandle) (uintptr, error) {
	if r.passthrough(id, size) {
		return r.Raw.Alloc(size)
	}

	a, err := r.Dispatcher.Resolve(id, int64(size), thread)
	if err != nil {
		return 0, err
	}

	ptr, err := a.Backing.Alloc(size)
	if err != nil {
		return 0, err
	}

	r.onAllocated(id, a, ptr, size)
	return ptr, nil
}

// AlignedAlloc implements aligned_alloc/posix_memalign/memalign, which
// all share this path per spec §4.5.
func (r *Runtime) AlignedAlloc(id int64, size, align uint32, thread *site.ThreadHandle) (uintptr, error) {
	if r.passthrough(id, size) {
		return r.Raw.AlignedAlloc(size, align)
	}

	a, err := r.Dispatcher.Resolve(id, int64(size), thread)
	if err != nil {
		return 0, err
	}

	ptr, err := a.Backing.AlignedAlloc(size, align)
	if err != nil {
		return 0, err
	}

	r.onAllocated(id, a, ptr, size)
	return ptr, nil
}

// PosixMemalign is AlignedAlloc under its POSIX name.
func (r *Runtime) PosixMemalign(id int64, align, size uint32, thread *site.ThreadHandle) (uintptr, error) {
	return r.AlignedAlloc(id, size, align, thread)
}

// Memalign is AlignedAlloc under its legacy name.
func (r *Runtime) Memalign(id int64, align, size uint32, thread *site.ThreadHandle) (uintptr, error) {
	return r.AlignedAlloc(id, size, align, thread)
}

// Calloc is alloc followed by explicit zeroing: the device-backed
// arena does not zero on allocation.
func (r *Runtime) Calloc(id int64, n, size uint32, thread *site.ThreadHandle) (uintptr, error) {
	total := n * size
	ptr, err := r.Alloc(id, total, thread)
	if err != nil {
		return 0, err
	}
	if ptr != 0 {
		zero(ptr, total)
	}
	return ptr, nil
}

// Realloc implements realloc(id,ptr,size). A size of 0 is a
// pass-through resize only when the allocation itself is untracked;
// otherwise it still goes through the arena so the logical-size
// bookkeeping (replace, not add) stays correct.
func (r *Runtime) Realloc(id int64, ptr uintptr, size uint32, thread *site.ThreadHandle) (uintptr, error) {
	if r.passthrough(id, size) {
		if r.Recorder != nil {
			if oldSize, a, ok := r.Recorder.Forget(ptr); ok {
				newPtr, err := a.Backing.Realloc(ptr, size)
				if err != nil {
					return 0, err
				}
				a.AddSize(int64(size) - int64(oldSize))
				if newPtr != ptr {
					r.moveExtent(a, ptr, newPtr, size)
				}
				if size > 0 {
					r.Recorder.Record(newPtr, size, a)
				}
				return newPtr, nil
			}
		}
		return r.Raw.Realloc(ptr, size)
	}

	if r.Recorder == nil {
		return r.Raw.Realloc(ptr, size)
	}

	oldSize, a, ok := r.Recorder.Forget(ptr)
	if !ok {
		// Unknown pointer under a live tracking layout: treat as a
		// fresh allocation rather than faulting (the source has no
		// analogous case since realloc(NULL,...) is alloc).
		return r.Alloc(id, size, thread)
	}

	newPtr, err := a.Backing.Realloc(ptr, size)
	if err != nil {
		return 0, err
	}
	a.AddSize(int64(size) - int64(oldSize))
	if newPtr != ptr {
		r.moveExtent(a, ptr, newPtr, size)
	}
	r.Recorder.Record(newPtr, size, a)
	return newPtr, nil
}

// Free implements free(ptr). Untracked pointers forward to Raw.
func (r *Runtime) Free(ptr uintptr) error {
	if ptr == 0 {
		return nil
	}
	if r.Recorder != nil {
		if size, a, ok := r.Recorder.Forget(ptr); ok {
			a.AddSize(-int64(size))
			if r.Extents != nil {
				r.Extents.Delete(ptr)
			}
			r.rdspy().OnFree(ptr)
			return a.Backing.Free(ptr)
		}
	}
	return r.Raw.Free(ptr)
}

func (r *Runtime) onAllocated(id int64, a *arena.Arena, ptr uintptr, size uint32) {
	a.AddSize(int64(size))
	if r.Recorder != nil {
		r.Recorder.Record(ptr, size, a)
	}
	if r.Extents != nil {
		r.Extents.Insert(ptr, ptr+uintptr(size), a)
	}
	r.rdspy().OnAlloc(id, ptr, size)
}

func (r *Runtime) moveExtent(a *arena.Arena, oldPtr, newPtr uintptr, size uint32) {
	if r.Extents == nil {
		return
	}
	r.Extents.Delete(oldPtr)
	r.Extents.Insert(newPtr, newPtr+uintptr(size), a)
}

// zero fills [ptr, ptr+size) with zero bytes via the process's address
// space. Calloc calls it through this variable, which defaults to
// zeroMemory.
var zero = zeroMemory

// orderedPtrMap is a minimal AllocationRecorder backed by a plain
// mutex + map, matching the source's "ordered map" allocation-
// profiling structure closely enough for attribution purposes (insert
// order is not itself load-bearing here, unlike in the extent index).
type orderedPtrMap struct {
	mu      sync.Mutex
	entries map[uintptr]ptrEntry
}

type ptrEntry struct {
	size  uint32
	arena *arena.Arena
}

// NewRecorder returns the default AllocationRecorder.
func NewRecorder() AllocationRecorder {
	return &orderedPtrMap{entries: make(map[uintptr]ptrEntry)}
}

func (m *orderedPtrMap) Record(ptr uintptr, size uint32, a *arena.Arena) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[ptr] = ptrEntry{size: size, arena: a}
}

func (m *orderedPtrMap) Forget(ptr uintptr) (uint32, *arena.Arena, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[ptr]
	if !ok {
		return 0, nil, false
	}
	delete(m.entries, ptr)
	return e.size, e.arena, true
}
