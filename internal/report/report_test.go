package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/tiermem/internal/profile"
)

func TestBuild_SortsBySlotAndSnapshots(t *testing.T) {
	reg := profile.NewRegistry(1)
	reg.CreateArenaProfile(3, 30)
	reg.CreateArenaProfile(1, 10)

	rpt := Build(reg, []string{"cycles"})

	require.Len(t, rpt.Arenas, 2)
	assert.Equal(t, 1, rpt.Arenas[0].Slot)
	assert.Equal(t, 3, rpt.Arenas[1].Slot)
	assert.Equal(t, []int64{10}, rpt.Arenas[0].SiteIDs)
}

func TestWriteText_EmptyReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, Report{}))
	assert.Contains(t, buf.String(), "no arenas were profiled")
}

func TestWriteText_IncludesEventsAndRSS(t *testing.T) {
	reg := profile.NewRegistry(1)
	rec := reg.CreateArenaProfile(0, 5)
	rec.ResetAccumulators()
	rec.AccumulateEvent(0, 4)
	rec.PostIntervalEvents()
	rec.ResetRSSAccumulator()
	rec.AccumulateRSS(4096)
	rec.PostIntervalRSS()

	rpt := Build(reg, []string{"cycles"})

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, rpt))
	out := buf.String()
	assert.Contains(t, out, "arena 0: sites=[5]")
	assert.Contains(t, out, "cycles: total=4 peak=4")
	assert.Contains(t, out, "rss: peak=4096")
}
