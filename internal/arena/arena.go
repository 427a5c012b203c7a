// Package arena implements the arena table (spec component C2): a
// fixed-capacity, dense slot → arena record mapping with lazy
// creation under a single creation mutex and a lock-free fast-path
// read once a slot is published.
//
// Grounded on sicm_runtime.c's arena_arr / create_arena, and on the
// table/record split already present in
// nmxmxh-inos_v1/kernel/threads/arena/allocator.go's HybridAllocator
// (one record of counters and sub-allocators per logical arena).
package arena

import (
	"sync"
	"sync/atomic"

	"github.com/nmxmxh/tiermem/internal/device"
)

// Arena is one dense table slot: an owning device, the device-backed
// byte arena it dispatches Alloc/Realloc/Free to, the site-ids that
// have landed in it, and logical size bookkeeping used by allocation
// profiling and the report generator.
type Arena struct {
	slot    int
	Device  *device.Device
	Backing device.Arena

	mu      sync.Mutex
	siteIDs []int64

	currentSize int64
	peakSize    int64
}

// Slot implements extent.Arena.
func (a *Arena) Slot() int { return a.slot }

// AddSite appends id to the arena's site list if not already present.
// Returns true if the site was newly added (used by the layout
// dispatcher and profile registry to detect new site→arena
// associations).
func (a *Arena) AddSite(id int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.siteIDs {
		if s == id {
			return false
		}
	}
	a.siteIDs = append(a.siteIDs, id)
	return true
}

// Sites returns a snapshot of the site-ids attributed to this arena,
// in insertion order, for the report generator.
func (a *Arena) Sites() []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int64, len(a.siteIDs))
	copy(out, a.siteIDs)
	return out
}

// AddSize adjusts the arena's logical size by delta (positive on
// alloc, negative on free) and updates the running peak.
func (a *Arena) AddSize(delta int64) {
	n := atomic.AddInt64(&a.currentSize, delta)
	for {
		peak := atomic.LoadInt64(&a.peakSize)
		if n <= peak {
			return
		}
		if atomic.CompareAndSwapInt64(&a.peakSize, peak, n) {
			return
		}
	}
}

// CurrentSize reports the arena's current logical size.
func (a *Arena) CurrentSize() int64 { return atomic.LoadInt64(&a.currentSize) }

// PeakSize reports the arena's highest observed logical size.
func (a *Arena) PeakSize() int64 { return atomic.LoadInt64(&a.peakSize) }
