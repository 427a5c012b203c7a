package extent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArena struct{ slot int }

func (f fakeArena) Slot() int { return f.slot }

type fakeReleaser struct{ released []uintptr }

func (f *fakeReleaser) Release(start, end uintptr) error {
	f.released = append(f.released, start)
	return nil
}

func TestIndex_InsertFindDelete(t *testing.T) {
	rel := &fakeReleaser{}
	idx := New(rel)

	idx.Insert(100, 200, fakeArena{slot: 1})
	idx.Insert(200, 300, fakeArena{slot: 2})

	require.Equal(t, 2, idx.Len())

	e, ok := idx.Find(150)
	require.True(t, ok)
	assert.Equal(t, 1, e.Arena.Slot())

	// half-open: end is exclusive
	_, ok = idx.Find(200)
	require.True(t, ok)
	e, _ = idx.Find(200)
	assert.Equal(t, 2, e.Arena.Slot())

	// boundary invariant 12: above/below any extent scans to no match
	_, ok = idx.Find(99)
	assert.False(t, ok)
	_, ok = idx.Find(300)
	assert.False(t, ok)

	idx.Delete(100)
	require.Equal(t, 1, idx.Len())
	assert.Equal(t, []uintptr{100}, rel.released)

	_, ok = idx.Find(150)
	assert.False(t, ok)
}

func TestIndex_FindInclusive_MatchesBothBoundaries(t *testing.T) {
	idx := New(nil)
	idx.Insert(100, 200, fakeArena{slot: 1})

	// Find (half-open) excludes the end boundary...
	_, ok := idx.Find(200)
	assert.False(t, ok)

	// ...but FindInclusive, used by PMU sample attribution, matches it.
	e, ok := idx.FindInclusive(200)
	require.True(t, ok)
	assert.Equal(t, 1, e.Arena.Slot())

	e, ok = idx.FindInclusive(100)
	require.True(t, ok)
	assert.Equal(t, 1, e.Arena.Slot())

	_, ok = idx.FindInclusive(99)
	assert.False(t, ok)
	_, ok = idx.FindInclusive(201)
	assert.False(t, ok)
}

func TestIndex_ForEachNonOverlapping(t *testing.T) {
	idx := New(nil)
	idx.Insert(0, 10, fakeArena{slot: 0})
	idx.Insert(10, 20, fakeArena{slot: 1})

	seen := map[int]bool{}
	idx.ForEach(func(e Extent) {
		seen[e.Arena.Slot()] = true
	})
	assert.Len(t, seen, 2)
}

func TestIndex_DeleteMissingIsNoop(t *testing.T) {
	rel := &fakeReleaser{}
	idx := New(rel)
	idx.Insert(0, 10, fakeArena{slot: 0})
	idx.Delete(999)
	assert.Equal(t, 1, idx.Len())
	assert.Empty(t, rel.released)
}
