// Package layout implements the layout dispatcher (spec component
// C4): a pure-ish function of (site, size, thread) that selects an
// arena slot and device, threads the choice into the calling thread's
// pending index, and lazily drives arena creation and new-site
// profiler bookkeeping.
//
// Grounded on sicm_runtime.c's get_arena_index and its four layout
// policies (exclusive, exclusive-device, shared-site, big-small).
package layout

import (
	"fmt"

	"github.com/nmxmxh/tiermem/internal/arena"
	"github.com/nmxmxh/tiermem/internal/device"
	"github.com/nmxmxh/tiermem/internal/site"
)

// Layout selects the dispatch policy. The zero value, InvalidLayout,
// is the pass-through mode used for an unrecognized SH_ARENA_LAYOUT
// value (spec §6): callers that see InvalidLayout must skip arena
// bookkeeping entirely rather than call Dispatcher.Resolve.
type Layout int

const (
	InvalidLayout Layout = iota
	ExclusiveArenas
	ExclusiveDeviceArenas
	SharedSiteArenas
	BigSmallArenas
)

func (l Layout) String() string {
	switch l {
	case ExclusiveArenas:
		return "EXCLUSIVE_ARENAS"
	case ExclusiveDeviceArenas:
		return "EXCLUSIVE_DEVICE_ARENAS"
	case SharedSiteArenas:
		return "SHARED_SITE_ARENAS"
	case BigSmallArenas:
		return "BIG_SMALL_ARENAS"
	default:
		return "INVALID_LAYOUT"
	}
}

// ParseLayout maps SH_ARENA_LAYOUT's recognized strings to a Layout,
// returning InvalidLayout for anything else (spec §6: "unknown value
// ⇒ INVALID_LAYOUT (pass-through)", a configuration error that
// degrades rather than aborts, per §7).
func ParseLayout(s string) Layout {
	switch s {
	case "EXCLUSIVE_ARENAS":
		return ExclusiveArenas
	case "EXCLUSIVE_DEVICE_ARENAS":
		return ExclusiveDeviceArenas
	case "SHARED_SITE_ARENAS":
		return SharedSiteArenas
	case "BIG_SMALL_ARENAS":
		return BigSmallArenas
	default:
		return InvalidLayout
	}
}

// ErrDeviceNotUpperOrLower is the EXCLUSIVE_DEVICE_ARENAS fatal
// condition: a site resolved to a device that is neither the
// configured upper nor lower device.
var ErrDeviceNotUpperOrLower = fmt.Errorf("layout: device is neither the configured upper nor lower device")

// CollisionObserver is notified the first time two distinct
// site/thread keys collide onto the same post-modulus arena slot.
// Resolves the spec's open question about silent slot-wraparound
// collisions: they are surfaced once, not hidden.
type CollisionObserver func(slot int, existingKey, newKey string)

// NewSiteObserver is notified whenever a site is newly associated
// with an arena it had not previously been attributed to — including
// a BIG_SMALL_ARENAS promotion transition — mirroring the profiler's
// add_site_profile call.
type NewSiteObserver func(a *arena.Arena, siteID int64)

// ArenaCreatedObserver is notified whenever Resolve triggers the
// creation of a brand-new arena, mirroring sh_create_arena's call
// into create_arena_profile for the site that triggered it.
type ArenaCreatedObserver func(a *arena.Arena, siteID int64)

// Dispatcher resolves (site, size, thread) to an arena, creating it on
// first touch and reporting new site→arena associations.
type Dispatcher struct {
	Layout Layout

	Table      *arena.Table
	Sites      *site.Index
	MaxThreads int

	UpperDevice *device.Device
	LowerDevice *device.Device

	BigSmallThreshold int64

	OnCollision    CollisionObserver
	OnNewSite      NewSiteObserver
	OnArenaCreated ArenaCreatedObserver

	collisionSeen map[int]string
	collisionHit  map[int]bool
}

// Resolve computes the arena slot and device for (id, size, thread),
// records the choice as the thread's pending index (I4), and ensures
// the arena exists, returning it.
func (d *Dispatcher) Resolve(id int64, size int64, thread *site.ThreadHandle) (*arena.Arena, error) {
	rawSlot, dev, isNewSiteAssoc, promoted, err := d.computeSlot(id, size, thread)
	if err != nil {
		return nil, err
	}

	slot := int(rawSlot) % d.Table.Capacity()
	if slot < 0 {
		slot += d.Table.Capacity()
	}

	thread.SetPending(int32(slot))

	d.noteCollision(slot, id, thread)

	a, created, err := d.Table.GetOrCreate(slot, dev)
	if err != nil {
		return nil, err
	}

	newAssoc := a.AddSite(id) || isNewSiteAssoc
	switch {
	case created:
		// A freshly created arena gets its profile record created
		// directly (spec §4.2 step 4: "if profiling is enabled,
		// create its profile record"), not through OnNewSite — that
		// hook exists for associating an *existing* arena with a
		// site it hadn't served before.
		if d.OnArenaCreated != nil {
			d.OnArenaCreated(a, id)
		}
	case d.OnNewSite != nil && (newAssoc || promoted):
		d.OnNewSite(a, id)
	}

	return a, nil
}

func (d *Dispatcher) noteCollision(slot int, id int64, thread *site.ThreadHandle) {
	if d.OnCollision == nil {
		return
	}
	if d.collisionSeen == nil {
		d.collisionSeen = make(map[int]string)
		d.collisionHit = make(map[int]bool)
	}
	key := fmt.Sprintf("site=%d/thread=%d", id, thread.Index())
	existing, ok := d.collisionSeen[slot]
	if !ok {
		d.collisionSeen[slot] = key
		return
	}
	if existing != key && !d.collisionHit[slot] {
		d.collisionHit[slot] = true
		d.OnCollision(slot, existing, key)
	}
}

// computeSlot returns the pre-modulus slot, the resolved device,
// whether this call is this site's first arena association, and
// whether this call performed a BIG_SMALL_ARENAS promotion transition.
func (d *Dispatcher) computeSlot(id int64, size int64, thread *site.ThreadHandle) (slot int32, dev *device.Device, isNewSiteAssoc bool, promoted bool, err error) {
	switch d.Layout {
	case ExclusiveArenas:
		return thread.Index(), d.UpperDevice, false, false, nil

	case ExclusiveDeviceArenas:
		siteDev := d.Sites.GetSiteDevice(id, d.UpperDevice)
		offset, err := d.deviceOffset(siteDev)
		if err != nil {
			return 0, nil, false, false, err
		}
		const arenasPerThread = 2
		return thread.Index()*arenasPerThread + offset, siteDev, false, false, nil

	case SharedSiteArenas:
		s, isNew, err := d.Sites.GetSiteArena(id)
		if err != nil {
			return 0, nil, false, false, err
		}
		return s, d.Sites.GetSiteDevice(id, d.UpperDevice), isNew, false, nil

	case BigSmallArenas:
		return d.computeBigSmall(id, size, thread)

	default:
		return 0, nil, false, false, fmt.Errorf("layout: Resolve called with INVALID_LAYOUT")
	}
}

func (d *Dispatcher) deviceOffset(dev *device.Device) (int32, error) {
	switch {
	case dev == d.UpperDevice:
		return 0, nil
	case dev == d.LowerDevice:
		return 1, nil
	default:
		return 0, ErrDeviceNotUpperOrLower
	}
}

func (d *Dispatcher) computeBigSmall(id int64, size int64, thread *site.ThreadHandle) (slot int32, dev *device.Device, isNewSiteAssoc bool, promoted bool, err error) {
	if _, err := d.Sites.UpdateSiteSize(id, size); err != nil {
		return 0, nil, false, false, err
	}

	wasBig := d.Sites.SiteBig(id)
	if !wasBig && (size > d.BigSmallThreshold || d.Sites.SiteSize(id) > d.BigSmallThreshold) {
		changed, err := d.Sites.SetSiteBig(id)
		if err != nil {
			return 0, nil, false, false, err
		}
		promoted = changed
	}

	if d.Sites.SiteBig(id) {
		s, isNew, err := d.Sites.GetSiteArena(id)
		if err != nil {
			return 0, nil, false, false, err
		}
		return int32(d.MaxThreads) + s, d.Sites.GetSiteDevice(id, d.UpperDevice), isNew, promoted, nil
	}

	return thread.Index(), d.UpperDevice, false, promoted, nil
}
