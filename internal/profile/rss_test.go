package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/tiermem/internal/extent"
)

type fakeArena struct{ slot int }

func (a fakeArena) Slot() int { return a.slot }

type fakePagemapReader struct {
	presentByStart map[int64]int64
	closed         bool
}

func (f *fakePagemapReader) CountPresent(startPage, numPages int64) (int64, error) {
	return f.presentByStart[startPage], nil
}

func (f *fakePagemapReader) Close() error {
	f.closed = true
	return nil
}

func TestRSSProfiler_Interval_AccumulatesPresentBytesPerArena(t *testing.T) {
	extents := extent.New(nil)
	extents.Insert(0, 8192, fakeArena{slot: 1})   // 2 pages at page 0
	extents.Insert(8192, 12288, fakeArena{slot: 2}) // 1 page at page 2

	registry := NewRegistry(0)
	registry.CreateArenaProfile(1, 10)
	registry.CreateArenaProfile(2, 20)

	reader := &fakePagemapReader{presentByStart: map[int64]int64{
		0: 2,
		2: 1,
	}}

	p := NewRSSProfiler(extents, registry)
	p.reader = reader
	p.pageSize = 4096

	require.NoError(t, p.Interval(0))

	rec1, _ := registry.Get(1)
	rec2, _ := registry.Get(2)
	assert.Equal(t, []int64{2 * 4096}, rec1.RSS.Intervals)
	assert.Equal(t, []int64{1 * 4096}, rec2.RSS.Intervals)
}

func TestRSSProfiler_SkipInterval_CarriesForward(t *testing.T) {
	extents := extent.New(nil)
	registry := NewRegistry(0)
	rec := registry.CreateArenaProfile(1, 10)
	rec.ResetRSSAccumulator()
	rec.AccumulateRSS(4096)
	rec.PostIntervalRSS()

	p := NewRSSProfiler(extents, registry)
	p.SkipInterval(1)

	assert.Equal(t, []int64{4096, 4096}, rec.RSS.Intervals)
}

func TestRSSProfiler_Deinit_ClosesReader(t *testing.T) {
	reader := &fakePagemapReader{presentByStart: map[int64]int64{}}
	p := NewRSSProfiler(extent.New(nil), NewRegistry(0))
	p.reader = reader

	require.NoError(t, p.Deinit())
	assert.True(t, reader.closed)
}
