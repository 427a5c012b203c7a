// Package extent implements the extent index (spec component C1): an
// insertion-ordered interval map from [start,end) virtual-address
// ranges to an owning arena, guarded by a reader/writer lock.
//
// Grounded on sicm_runtime.c's extent_arr (sh_create_extent /
// sh_delete_extent) and sicm_profile_all.c's extent_arr_for scan used
// by the PMU profiler. The design deliberately keeps a linear scan
// instead of a balanced tree: scan cost dominates at profile time,
// locality matters, and extent count is small relative to allocation
// count (spec §4.1, §9).
package extent

import (
	"sync"
)

// Arena is the minimal view the extent index needs of an arena: just
// enough identity to reverse-map an address to a slot. The concrete
// arena type lives in package arena; this avoids an import cycle.
type Arena interface {
	Slot() int
}

// Extent is a half-open virtual-address range owned by one arena.
type Extent struct {
	Start uintptr
	End   uintptr
	Arena Arena
}

// Contains reports whether addr falls in [Start, End).
func (e Extent) Contains(addr uintptr) bool {
	return addr >= e.Start && addr < e.End
}

// Releaser advises the OS that a released range's pages are no longer
// needed (the MADV_DONTNEED equivalent). Implemented by package device;
// declared here as an interface to avoid a dependency cycle and to let
// tests exercise the index without a real OS-backed arena.
type Releaser interface {
	Release(start, end uintptr) error
}

// Index is the reader/writer-locked, insertion-ordered extent array.
type Index struct {
	mu       sync.RWMutex
	extents  []Extent
	releaser Releaser
}

// New creates an empty extent index. releaser may be nil, in which case
// Delete skips the OS advisory (used in unit tests operating on
// synthetic address ranges).
func New(releaser Releaser) *Index {
	return &Index{releaser: releaser}
}

// Insert records a new extent. Writers are rare: one per extent
// creation in the low-level allocator's extent-creation callback.
func (idx *Index) Insert(start, end uintptr, arena Arena) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.extents = append(idx.extents, Extent{Start: start, End: end, Arena: arena})
}

// Delete removes the extent starting at start, if one exists, and
// advises the kernel the range is no longer needed.
func (idx *Index) Delete(start uintptr) {
	idx.mu.Lock()
	var removed *Extent
	for i, e := range idx.extents {
		if e.Start == start {
			removed = &Extent{Start: e.Start, End: e.End, Arena: e.Arena}
			idx.extents = append(idx.extents[:i], idx.extents[i+1:]...)
			break
		}
	}
	idx.mu.Unlock()

	if removed != nil && idx.releaser != nil {
		idx.releaser.Release(removed.Start, removed.End)
	}
}

// ForEach calls visit for every live extent under the read lock. visit
// must not call back into Index (it would deadlock on the same
// goroutine, since Go's RWMutex is not reentrant).
func (idx *Index) ForEach(visit func(Extent)) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, e := range idx.extents {
		visit(e)
	}
}

// Find performs a linear reverse-address lookup, returning the extent
// containing addr, if any, treating End as exclusive. Used for
// allocator-side lookups (alloc/realloc/free), where extents must
// partition the address space without ambiguity at shared boundaries.
func (idx *Index) Find(addr uintptr) (Extent, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, e := range idx.extents {
		if e.Contains(addr) {
			return e, true
		}
	}
	return Extent{}, false
}

// FindInclusive performs the same linear scan as Find but treats both
// Start and End as inclusive bounds, matching profile_all_interval's
// attribution test in sicm_profile_all.c
// ("addr >= extent->start && addr <= extent->end"). A PMU sample
// landing exactly on a shared boundary between two adjacent extents
// can therefore attribute to either one — the source tolerates this
// double-edge ambiguity for sampled profiling data, unlike Find's
// exact-partition guarantee required for allocator bookkeeping.
func (idx *Index) FindInclusive(addr uintptr) (Extent, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, e := range idx.extents {
		if addr >= e.Start && addr <= e.End {
			return e, true
		}
	}
	return Extent{}, false
}

// Len reports the number of live extents.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.extents)
}
