package arena

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nmxmxh/tiermem/internal/device"
)

// Table is the fixed-capacity arena table: a dense array addressed by
// whatever slot the layout dispatcher computes modulo its capacity.
// No slot is reserved; slot 0 holds an ordinary arena (the site index
// marks an unassigned site with -1, not with slot 0).
type Table struct {
	slots         []atomic.Pointer[Arena]
	maxIndex      atomic.Int32
	creationMu    sync.Mutex
	allocator     device.Allocator
	defaultDevice *device.Device
}

// NewTable allocates a table with the given fixed capacity.
func NewTable(capacity int, allocator device.Allocator, defaultDevice *device.Device) *Table {
	return &Table{
		slots:         make([]atomic.Pointer[Arena], capacity),
		allocator:     allocator,
		defaultDevice: defaultDevice,
	}
}

// Capacity returns max_arenas.
func (t *Table) Capacity() int { return len(t.slots) }

// MaxIndex returns the highest slot index ever requested.
func (t *Table) MaxIndex() int { return int(t.maxIndex.Load()) }

// Get is the lock-free fast path: a plain atomic load, valid under the
// invariant that once a slot is published it never becomes nil again.
func (t *Table) Get(slot int) *Arena {
	if slot < 0 || slot >= len(t.slots) {
		return nil
	}
	return t.slots[slot].Load()
}

// GetOrCreate returns the arena at slot, creating it under the
// creation mutex if absent. dev may be nil, in which case the table's
// default device is substituted (spec §4.2 step 2). created reports
// whether this call performed the creation.
func (t *Table) GetOrCreate(slot int, dev *device.Device) (a *Arena, created bool, err error) {
	if slot < 0 || slot >= len(t.slots) {
		return nil, false, fmt.Errorf("arena: slot %d out of range [0,%d)", slot, len(t.slots))
	}

	t.bumpMaxIndex(slot)

	if existing := t.slots[slot].Load(); existing != nil {
		return existing, false, nil
	}

	t.creationMu.Lock()
	defer t.creationMu.Unlock()

	// Re-check: another goroutine may have created it while we
	// waited for the creation mutex.
	if existing := t.slots[slot].Load(); existing != nil {
		return existing, false, nil
	}

	if dev == nil {
		dev = t.defaultDevice
	}

	backing, err := t.allocator.CreateArena([]*device.Device{dev}, device.PolicyRelaxed)
	if err != nil {
		return nil, false, fmt.Errorf("arena: create slot %d: %w", slot, err)
	}

	created_ := &Arena{slot: slot, Device: dev, Backing: backing}
	t.slots[slot].Store(created_)
	return created_, true, nil
}

func (t *Table) bumpMaxIndex(slot int) {
	for {
		cur := t.maxIndex.Load()
		if int32(slot) <= cur {
			return
		}
		if t.maxIndex.CompareAndSwap(cur, int32(slot)) {
			return
		}
	}
}
