package profile

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/tiermem/internal/extent"
)

type fakeRing struct {
	header []byte
	data   []byte
	closed bool
}

func newFakeRing(dataSize int) *fakeRing {
	return &fakeRing{header: makeHeader(), data: make([]byte, dataSize)}
}

func (r *fakeRing) Region() (header, data []byte) { return r.header, r.data }
func (r *fakeRing) Close() error                  { r.closed = true; return nil }

func setHead(header []byte, head uint64) {
	binary.LittleEndian.PutUint64(header[perfHeaderDataHeadOffset:], head)
}

// These tests drive PMUProfiler.Interval/SkipInterval/Deinit directly
// against fake rings, bypassing Init (and the real perfevent resolver)
// so they exercise the platform-neutral attribution logic everywhere.

func TestPMUProfiler_Interval_AttributesSamplesToOwningArena(t *testing.T) {
	extents := extent.New(nil)
	extents.Insert(0x1000, 0x2000, fakeArena{slot: 1})
	extents.Insert(0x5000, 0x6000, fakeArena{slot: 2})

	registry := NewRegistry(1)
	registry.CreateArenaProfile(1, 100)
	registry.CreateArenaProfile(2, 200)

	ring := newFakeRing(64)
	end := writeSampleRecord(ring.data, 0, 0x1500)
	end = writeSampleRecord(ring.data, end, 0x5500)
	end = writeSampleRecord(ring.data, end, 0x1900)
	setHead(ring.header, uint64(end))

	p := NewPMUProfiler(extents, registry, []string{"cycles"}, 1)
	p.rings = []ringBuffer{ring}

	require.NoError(t, p.Interval(0))

	rec1, _ := registry.Get(1)
	rec2, _ := registry.Get(2)
	assert.Equal(t, []int64{2}, rec1.Events[0].Intervals)
	assert.Equal(t, []int64{1}, rec2.Events[0].Intervals)
	assert.False(t, ring.closed)
}

func TestPMUProfiler_Interval_IgnoresSampleOutsideAnyExtent(t *testing.T) {
	extents := extent.New(nil)
	extents.Insert(0x1000, 0x2000, fakeArena{slot: 1})

	registry := NewRegistry(1)
	registry.CreateArenaProfile(1, 100)

	ring := newFakeRing(32)
	end := writeSampleRecord(ring.data, 0, 0xffff)
	setHead(ring.header, uint64(end))

	p := NewPMUProfiler(extents, registry, []string{"cycles"}, 1)
	p.rings = []ringBuffer{ring}

	require.NoError(t, p.Interval(0))

	rec1, _ := registry.Get(1)
	assert.Equal(t, []int64{0}, rec1.Events[0].Intervals)
}

func TestPMUProfiler_Interval_AdvancesTailAcrossCalls(t *testing.T) {
	extents := extent.New(nil)
	extents.Insert(0x1000, 0x2000, fakeArena{slot: 1})
	registry := NewRegistry(1)
	registry.CreateArenaProfile(1, 100)

	ring := newFakeRing(64)
	end := writeSampleRecord(ring.data, 0, 0x1500)
	setHead(ring.header, uint64(end))

	p := NewPMUProfiler(extents, registry, []string{"cycles"}, 1)
	p.rings = []ringBuffer{ring}

	require.NoError(t, p.Interval(0))
	require.NoError(t, p.Interval(1))

	rec1, _ := registry.Get(1)
	assert.Equal(t, []int64{1, 0}, rec1.Events[0].Intervals)
}

func TestPMUProfiler_SkipInterval_CarriesForward(t *testing.T) {
	registry := NewRegistry(1)
	rec := registry.CreateArenaProfile(1, 100)
	rec.ResetAccumulators()
	rec.AccumulateEvent(0, 9)
	rec.PostIntervalEvents()

	p := NewPMUProfiler(extent.New(nil), registry, nil, 1)
	p.SkipInterval(1)

	assert.Equal(t, []int64{9, 9}, rec.Events[0].Intervals)
}

func TestPMUProfiler_Deinit_ClosesAllRings(t *testing.T) {
	ring := newFakeRing(8)
	p := NewPMUProfiler(extent.New(nil), NewRegistry(1), nil, 1)
	p.rings = []ringBuffer{ring}

	require.NoError(t, p.Deinit())
	assert.True(t, ring.closed)
}
