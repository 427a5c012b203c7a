package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/tiermem/internal/profile"
)

// countingProfiler is a fake Profiler that just counts Interval and
// SkipInterval invocations, for asserting scheduler-level skip
// semantics without touching real perf/pagemap state.
type countingProfiler struct {
	name      string
	intervals int
	skips     int
}

func (c *countingProfiler) Name() string                    { return c.name }
func (c *countingProfiler) Init() error                     { return nil }
func (c *countingProfiler) ArenaInit(rec *profile.Record)    {}
func (c *countingProfiler) Interval(cur int) error           { c.intervals++; return nil }
func (c *countingProfiler) SkipInterval(cur int)              { c.skips++ }
func (c *countingProfiler) Deinit() error                    { return nil }

func TestScheduler_S3_ThreeTicksSkipOne(t *testing.T) {
	reg := profile.NewRegistry(0)
	rec := reg.CreateArenaProfile(1, 42)

	p := &countingProfiler{name: "rss"}
	sched, err := New(nil, reg, 5*time.Millisecond, []ProfilerConfig{{Profiler: p, SkipIntervals: 1}})
	require.NoError(t, err)
	require.NoError(t, sched.Start())

	waitForInterval(t, sched, 3)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(ctx))

	assert.Equal(t, 3, rec.NumIntervals)
	assert.GreaterOrEqual(t, p.intervals, 3)
	assert.Equal(t, 0, p.skips)
}

func TestScheduler_S4_SkipSemantics(t *testing.T) {
	reg := profile.NewRegistry(0)
	rec := reg.CreateArenaProfile(1, 7)

	p := &countingProfiler{name: "rss"}
	sched, err := New(nil, reg, 5*time.Millisecond, []ProfilerConfig{{Profiler: p, SkipIntervals: 2}})
	require.NoError(t, err)
	require.NoError(t, sched.Start())

	waitForInterval(t, sched, 5)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(ctx))

	assert.Equal(t, 5, rec.NumIntervals)
	assert.Equal(t, 2, p.intervals)
	assert.Equal(t, 3, p.skips)
}

func TestScheduler_New_RejectsNonPositiveSkip(t *testing.T) {
	reg := profile.NewRegistry(0)
	p := &countingProfiler{name: "rss"}
	_, err := New(nil, reg, time.Millisecond, []ProfilerConfig{{Profiler: p, SkipIntervals: 0}})
	assert.Error(t, err)
}

func TestScheduler_ArenaInit_FansOutToEveryProfiler(t *testing.T) {
	reg := profile.NewRegistry(1)
	p1 := &countingProfiler{name: "a"}
	p2 := &countingProfiler{name: "b"}
	sched, err := New(nil, reg, time.Millisecond, []ProfilerConfig{
		{Profiler: p1, SkipIntervals: 1},
		{Profiler: p2, SkipIntervals: 1},
	})
	require.NoError(t, err)

	rec := profile.NewRecord(1)
	sched.ArenaInit(rec)
	// ArenaInit on the countingProfiler fake is a no-op, so this just
	// asserts it doesn't panic across every configured profiler.
}

func waitForInterval(t *testing.T, s *Scheduler, target int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.CurrentInterval() >= target {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("scheduler did not reach interval %d, at %d", target, s.CurrentInterval())
}
