// Package site implements the site/thread index (spec component C3):
// dense arrays mapping an allocation-site id to an arena slot, a
// device, a "big" latch and a high-water-mark size, plus per-thread
// slots.
//
// Grounded on sicm_runtime.c's site_arena / site_device / site_big /
// site_size arrays and get_site_arena/get_site_device. C has no
// analogue to translate __thread thread_index/pending_index into: Go
// goroutines are not OS threads and carry no per-goroutine storage, so
// this package models them as an explicit ThreadHandle value the
// caller threads through the allocation front-end instead (see
// REDESIGN FLAGS).
package site

import (
	"fmt"
	"sync/atomic"

	"github.com/nmxmxh/tiermem/internal/device"
)

const unset = -1

// ErrSiteOutOfRange reports a site-id beyond max_sites: a hot-path
// invariant violation that is fatal per spec §7.
var ErrSiteOutOfRange = fmt.Errorf("site: id exceeds configured max_sites")

// ErrThreadLimitExceeded reports more threads registering than
// max_threads allows: also fatal per spec §7.
var ErrThreadLimitExceeded = fmt.Errorf("site: thread count exceeds configured max_threads")

// ThreadHandle replaces the C source's thread-local thread_index and
// pending_index. The caller obtains one via Index.NewThreadHandle at
// the start of each logical worker and passes it into every front-end
// call made from that worker.
type ThreadHandle struct {
	index   int32
	pending atomic.Int32
}

// Index returns this handle's dense thread index, assigned once at
// registration and stable for the handle's lifetime.
func (h *ThreadHandle) Index() int32 { return h.index }

// SetPending records the arena slot the layout dispatcher just chose,
// before the front-end calls into the low-level allocator; Pending
// reads it back. The front-end inserts each extent with the resolved
// arena directly, so no extent-creation path reads Pending.
func (h *ThreadHandle) SetPending(slot int32) { h.pending.Store(slot) }

// Pending returns the most recently set pending arena slot.
func (h *ThreadHandle) Pending() int32 { return h.pending.Load() }

// Index is the site/thread index proper.
type Index struct {
	maxSites   int
	maxThreads int

	threadCounter atomic.Int32
	arenaCounter  atomic.Int32 // hands out slots for site arena assignment (GetSiteArena); wraps at the consumer (layout dispatcher)

	siteArena  []atomic.Int32
	siteDevice []atomic.Pointer[device.Device]
	siteBig    []atomic.Bool
	siteSize   []atomic.Int64
}

// NewIndex allocates a site/thread index bounded by maxSites and
// maxThreads.
func NewIndex(maxSites, maxThreads int) *Index {
	idx := &Index{
		maxSites:   maxSites,
		maxThreads: maxThreads,
		siteArena:  make([]atomic.Int32, maxSites),
		siteDevice: make([]atomic.Pointer[device.Device], maxSites),
		siteBig:    make([]atomic.Bool, maxSites),
		siteSize:   make([]atomic.Int64, maxSites),
	}
	for i := range idx.siteArena {
		idx.siteArena[i].Store(unset)
	}
	return idx
}

// NewThreadHandle registers a new logical thread, assigning it the
// next dense thread index. Returns ErrThreadLimitExceeded once
// max_threads registrations have happened.
func (idx *Index) NewThreadHandle() (*ThreadHandle, error) {
	n := idx.threadCounter.Add(1) - 1
	if int(n) >= idx.maxThreads {
		return nil, ErrThreadLimitExceeded
	}
	return &ThreadHandle{index: n}, nil
}

// NextArenaSlot hands out the next raw slot value from the shared
// monotonic counter that GetSiteArena draws site arena slots from
// (SHARED_SITE_ARENAS, and big sites under BIG_SMALL_ARENAS); thread
// indices come from a separate counter. Wraparound modulo max_arenas
// is the layout dispatcher's responsibility.
func (idx *Index) NextArenaSlot() int32 {
	return idx.arenaCounter.Add(1) - 1
}

func (idx *Index) checkSite(id int64) error {
	if id < 0 || int(id) >= idx.maxSites {
		return ErrSiteOutOfRange
	}
	return nil
}

// GetSiteArena lazily installs site_arena[id] on first use (via the
// shared arena-slot counter) and reports whether this call performed
// the assignment, so the profiler can register new site→arena
// associations.
func (idx *Index) GetSiteArena(id int64) (slot int32, isNew bool, err error) {
	if err := idx.checkSite(id); err != nil {
		return 0, false, err
	}
	cell := &idx.siteArena[id]
	if cur := cell.Load(); cur != unset {
		return cur, false, nil
	}
	next := idx.NextArenaSlot()
	if cell.CompareAndSwap(unset, next) {
		return next, true, nil
	}
	// another goroutine won the race; the counter value we drew is
	// simply unused, matching the source's "racing sets are
	// idempotent" tolerance for monotonic counters.
	return cell.Load(), false, nil
}

// GetSiteDevice returns the site's configured device, or def if none
// has been set.
func (idx *Index) GetSiteDevice(id int64, def *device.Device) *device.Device {
	if err := idx.checkSite(id); err != nil {
		return def
	}
	if d := idx.siteDevice[id].Load(); d != nil {
		return d
	}
	return def
}

// SetSiteDevice records the device a site resolved to, so later
// lookups (and SHARED_SITE_ARENAS re-dispatch) see the same device.
func (idx *Index) SetSiteDevice(id int64, dev *device.Device) error {
	if err := idx.checkSite(id); err != nil {
		return err
	}
	idx.siteDevice[id].Store(dev)
	return nil
}

// SiteBig reports the current value of site_big[id].
func (idx *Index) SiteBig(id int64) bool {
	if err := idx.checkSite(id); err != nil {
		return false
	}
	return idx.siteBig[id].Load()
}

// SetSiteBig sets site_big[id] to true if not already set, returning
// whether this call performed the 0→1 transition (I3: monotone, never
// reset to false; racing sets are idempotent by construction since
// CompareAndSwap only ever moves false→true).
func (idx *Index) SetSiteBig(id int64) (changed bool, err error) {
	if err := idx.checkSite(id); err != nil {
		return false, err
	}
	return idx.siteBig[id].CompareAndSwap(false, true), nil
}

// UpdateSiteSize sets site_size[id] := max(site_size[id], size) and
// returns the resulting value.
func (idx *Index) UpdateSiteSize(id int64, size int64) (int64, error) {
	if err := idx.checkSite(id); err != nil {
		return 0, err
	}
	cell := &idx.siteSize[id]
	for {
		cur := cell.Load()
		if size <= cur {
			return cur, nil
		}
		if cell.CompareAndSwap(cur, size) {
			return size, nil
		}
	}
}

// SiteSize returns the current high-water mark for a site.
func (idx *Index) SiteSize(id int64) int64 {
	if err := idx.checkSite(id); err != nil {
		return 0
	}
	return idx.siteSize[id].Load()
}
