package profile

// Profiler is the lifecycle every profile source (PMU, RSS) implements
// so the scheduler (component C8) can drive them uniformly.
//
// Grounded on sicm_profile.c's profile_thread dispatch table, which
// calls the same four hooks across profile_all.c and profile_rss.c.
type Profiler interface {
	Name() string
	Init() error
	ArenaInit(rec *Record)
	Interval(cur int) error
	SkipInterval(cur int)
	Deinit() error
}

var (
	_ Profiler = (*PMUProfiler)(nil)
	_ Profiler = (*RSSProfiler)(nil)
)
