// Package tiermem is the embedded ABI of a NUMA-aware,
// allocation-site-directed heap runtime: the alloc/realloc/free entry
// points a compiler pass emits into application binaries (spec §4.5,
// §6), backed by the arena/extent tracker (C1-C5) and, optionally, the
// profiling scheduler (C6-C8).
//
// Grounded on spec.md §9's "global process state" design note: the
// allocator front-end, arena table, extent index and scheduler form an
// unavoidable singleton, modeled here as a single Runtime root record
// built by Init/InitFromEnv and torn down by Shutdown, matching the
// source's constructor/destructor-attribute lifecycle
// (nmxmxh-inos_v1/cmd/inos-node/main.go's identity→start→run→report
// shape, adapted from a libp2p node bootstrap to this runtime's
// init→serve-allocations→shutdown-and-report shape).
package tiermem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nmxmxh/tiermem/internal/alloc"
	"github.com/nmxmxh/tiermem/internal/arena"
	"github.com/nmxmxh/tiermem/internal/config"
	"github.com/nmxmxh/tiermem/internal/device"
	"github.com/nmxmxh/tiermem/internal/extent"
	"github.com/nmxmxh/tiermem/internal/layout"
	"github.com/nmxmxh/tiermem/internal/obs"
	"github.com/nmxmxh/tiermem/internal/profile"
	"github.com/nmxmxh/tiermem/internal/rdspy"
	"github.com/nmxmxh/tiermem/internal/report"
	"github.com/nmxmxh/tiermem/internal/scheduler"
	"github.com/nmxmxh/tiermem/internal/site"
)

// Runtime is the root record: every component the allocator front-end
// and profiling scheduler need, wired together once at Init.
type Runtime struct {
	log *obs.Logger
	cfg config.Config

	Devices       *device.List
	DefaultDevice *device.Device

	Table      *arena.Table
	Sites      *site.Index
	Extents    *extent.Index
	Dispatcher *layout.Dispatcher
	Front      *alloc.Runtime

	Registry   *profile.Registry
	Scheduler  *scheduler.Scheduler
	eventNames []string

	shutdown *obs.GracefulShutdown
}

var (
	globalMu sync.Mutex
	global   *Runtime
)

// Init builds a Runtime from an already-resolved Config. Callers that
// want environment-variable defaults should use InitFromEnv instead.
func Init(cfg config.Config) (*Runtime, error) {
	log := obs.Default("tiermem")

	devices := device.Enumerate()
	defaultDevice := cfg.ResolveDefaultDevice(devices)
	if defaultDevice == nil {
		return nil, fmt.Errorf("tiermem: no devices available")
	}

	allocator := device.NewDefaultAllocator(0)

	table := arena.NewTable(cfg.MaxArenas, allocator, defaultDevice)
	sites := site.NewIndex(cfg.MaxSites, cfg.MaxThreads)
	extents := extent.New(nil)

	rawArena, err := allocator.CreateArena([]*device.Device{defaultDevice}, device.PolicyRelaxed)
	if err != nil {
		return nil, fmt.Errorf("tiermem: create pass-through arena: %w", err)
	}

	numEvents := len(cfg.ProfileAllEvents)
	registry := profile.NewRegistry(numEvents)

	r := &Runtime{
		log:           log,
		cfg:           cfg,
		Devices:       devices,
		DefaultDevice: defaultDevice,
		Table:         table,
		Sites:         sites,
		Extents:       extents,
		Registry:      registry,
		eventNames:    cfg.ProfileAllEvents,
		shutdown:      obs.NewGracefulShutdown(10*time.Second, log.With("shutdown")),
	}

	upper, lower := defaultDevice, defaultDevice
	if cfg.Layout == layout.ExclusiveDeviceArenas {
		if len(devices.Devices) < 2 {
			return nil, fmt.Errorf("tiermem: EXCLUSIVE_DEVICE_ARENAS requires at least two devices")
		}
		upper, lower = devices.Devices[0], devices.Devices[1]
	}

	dispatcher := &layout.Dispatcher{
		Layout:            cfg.Layout,
		Table:             table,
		Sites:             sites,
		MaxThreads:        cfg.MaxThreads,
		UpperDevice:       upper,
		LowerDevice:       lower,
		BigSmallThreshold: cfg.BigSmallThreshold,
		OnCollision: func(slot int, existing, newKey string) {
			log.Warn("arena slot collision on wraparound", obs.Int("slot", slot), obs.String("existing", existing), obs.String("new", newKey))
		},
	}
	r.Dispatcher = dispatcher

	if cfg.ProfilingEnabled {
		profilers := buildProfilers(extents, registry, cfg)
		if len(profilers) > 0 {
			sched, err := scheduler.New(log.With("scheduler"), registry, time.Duration(cfg.ProfileRateNsec)*time.Nanosecond, profilers)
			if err != nil {
				return nil, fmt.Errorf("tiermem: build scheduler: %w", err)
			}
			r.Scheduler = sched

			dispatcher.OnArenaCreated = func(a *arena.Arena, siteID int64) {
				rec := registry.CreateArenaProfile(a.Slot(), siteID)
				sched.ArenaInit(rec)
			}
			dispatcher.OnNewSite = func(a *arena.Arena, siteID int64) {
				registry.CreateArenaProfile(a.Slot(), siteID)
			}

			if err := sched.Start(); err != nil {
				return nil, fmt.Errorf("tiermem: start scheduler: %w", err)
			}
			r.shutdown.Register(func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return sched.Stop(ctx)
			})
		}
	}

	front := &alloc.Runtime{
		Dispatcher: dispatcher,
		Extents:    extents,
		Raw:        rawArena,
		RDSpy:      rdspy.NoOp(),
	}
	if cfg.ProfilingEnabled {
		front.Recorder = alloc.NewRecorder()
	}
	r.Front = front

	globalMu.Lock()
	global = r
	globalMu.Unlock()

	return r, nil
}

// InitFromEnv loads Config from the environment (spec §6) and calls Init.
func InitFromEnv() (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return Init(cfg)
}

func buildProfilers(extents *extent.Index, registry *profile.Registry, cfg config.Config) []scheduler.ProfilerConfig {
	var profilers []scheduler.ProfilerConfig
	if len(cfg.ProfileAllEvents) > 0 {
		pmu := profile.NewPMUProfiler(extents, registry, cfg.ProfileAllEvents, 0)
		profilers = append(profilers, scheduler.ProfilerConfig{Profiler: pmu, SkipIntervals: 1})
	}
	rss := profile.NewRSSProfiler(extents, registry)
	profilers = append(profilers, scheduler.ProfilerConfig{Profiler: rss, SkipIntervals: cfg.RSSSkipIntervals})
	return profilers
}

// NewThread registers a new logical thread of execution with the
// runtime, returning the ThreadHandle the caller must pass into every
// subsequent allocation call made from that worker (spec §9: Go has no
// thread-local storage, so this handle replaces __thread thread_index/
// pending_index).
func (r *Runtime) NewThread() (*site.ThreadHandle, error) {
	return r.Sites.NewThreadHandle()
}

// Alloc implements the embedded alloc(id,size) entry point.
func (r *Runtime) Alloc(id int64, size uint32, thread *site.ThreadHandle) (uintptr, error) {
	return r.Front.Alloc(id, size, thread)
}

// Realloc implements the embedded realloc(id,ptr,size) entry point.
func (r *Runtime) Realloc(id int64, ptr uintptr, size uint32, thread *site.ThreadHandle) (uintptr, error) {
	return r.Front.Realloc(id, ptr, size, thread)
}

// AlignedAlloc implements the embedded aligned_alloc entry point.
func (r *Runtime) AlignedAlloc(id int64, size, align uint32, thread *site.ThreadHandle) (uintptr, error) {
	return r.Front.AlignedAlloc(id, size, align, thread)
}

// PosixMemalign implements the embedded posix_memalign entry point.
func (r *Runtime) PosixMemalign(id int64, align, size uint32, thread *site.ThreadHandle) (uintptr, error) {
	return r.Front.PosixMemalign(id, align, size, thread)
}

// Memalign implements the embedded memalign entry point.
func (r *Runtime) Memalign(id int64, align, size uint32, thread *site.ThreadHandle) (uintptr, error) {
	return r.Front.Memalign(id, align, size, thread)
}

// Calloc implements the embedded calloc entry point.
func (r *Runtime) Calloc(id int64, n, size uint32, thread *site.ThreadHandle) (uintptr, error) {
	return r.Front.Calloc(id, n, size, thread)
}

// Free implements the embedded free entry point.
func (r *Runtime) Free(ptr uintptr) error {
	return r.Front.Free(ptr)
}

// Report snapshots the current profiling state without shutting
// anything down, useful for long-running processes that want an
// interim report.
func (r *Runtime) Report() report.Report {
	return report.Build(r.Registry, r.eventNames)
}

// Shutdown stops the profiling scheduler (if running) and returns the
// final report, matching spec §4.8's shutdown sequence: "the main
// thread... joins the master, then runs each profiler's deinit and
// the report generator."
func (r *Runtime) Shutdown(ctx context.Context) (report.Report, error) {
	err := r.shutdown.Run(ctx)

	globalMu.Lock()
	if global == r {
		global = nil
	}
	globalMu.Unlock()

	return r.Report(), err
}

// Default returns the process-wide Runtime installed by the most
// recent Init/InitFromEnv call, or nil if none has run yet.
func Default() *Runtime {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global
}
