// Package scheduler implements the profile scheduler (spec component
// C8): a master goroutine driven by a periodic ticker, one worker
// goroutine per enabled profiler, and an interval rendezvous between
// them.
//
// Grounded on sicm_profile.c's profile_master/setup_profile_thread
// master/worker split, with the POSIX realtime-signal handshake
// (SIGRTMIN+n, pthread_kill, a condition-variable "threads_finished"
// barrier) replaced by channels — Go cannot install a per-goroutine
// signal handler, so a signal delivery has no faithful translation.
// The wake/result channel pair here plays the same role as the
// notify-waiter channel idiom in
// nmxmxh-inos_v1/kernel/threads/foundation/epoch.go's EnhancedEpoch,
// and the rendezvous is sized to the profilers actually woken this
// tick rather than to the full roster, per spec.md §9's suggested
// cleaner design.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nmxmxh/tiermem/internal/obs"
	"github.com/nmxmxh/tiermem/internal/profile"
)

// ProfilerConfig pairs a profiler with its skip-interval multiplier: a
// skip_intervals of 1 fires every tick, matching spec §4.8/§6's
// SH_PROFILE_RSS_SKIP_INTERVALS.
type ProfilerConfig struct {
	Profiler      profile.Profiler
	SkipIntervals int
}

type worker struct {
	cfg     ProfilerConfig
	skipped int
	wake    chan int
	result  chan error
}

// Scheduler drives every configured profiler at Rate, advancing a
// shared interval counter and running each live arena's
// BeginInterval/skip-interval bookkeeping in lockstep (spec §4.8 step
// 1, invariant I5).
type Scheduler struct {
	log      *obs.Logger
	registry *profile.Registry
	rate     time.Duration

	workers []*worker

	mu          sync.Mutex
	curInterval int
	running     bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Scheduler. rate is the tick period
// (SH_PROFILE_RATE_NSEC); profilers must have SkipIntervals >= 1.
func New(log *obs.Logger, registry *profile.Registry, rate time.Duration, profilers []ProfilerConfig) (*Scheduler, error) {
	if log == nil {
		log = obs.Default("scheduler")
	}
	if rate <= 0 {
		return nil, fmt.Errorf("scheduler: rate must be positive")
	}
	workers := make([]*worker, 0, len(profilers))
	for _, p := range profilers {
		if p.SkipIntervals < 1 {
			return nil, fmt.Errorf("scheduler: %s: skip_intervals must be >= 1", p.Profiler.Name())
		}
		workers = append(workers, &worker{
			cfg:    p,
			wake:   make(chan int, 1),
			result: make(chan error, 1),
		})
	}
	return &Scheduler{
		log:      log,
		registry: registry,
		rate:     rate,
		workers:  workers,
	}, nil
}

// ArenaInit fan-outs a freshly created arena profile record to every
// configured profiler's ArenaInit hook, matching create_arena_profile
// invoking each profiler's arena_init in turn.
func (s *Scheduler) ArenaInit(rec *profile.Record) {
	for _, w := range s.workers {
		w.cfg.Profiler.ArenaInit(rec)
	}
}

// Start calls every profiler's Init (in the calling goroutine, "the
// main thread" of spec §4.7), then launches one worker goroutine per
// profiler plus the master tick loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	for _, w := range s.workers {
		if err := w.cfg.Profiler.Init(); err != nil {
			return fmt.Errorf("scheduler: init %s: %w", w.cfg.Profiler.Name(), err)
		}
	}

	for _, w := range s.workers {
		go s.runWorker(w)
	}
	go s.runMaster()
	return nil
}

func (s *Scheduler) runWorker(w *worker) {
	for {
		select {
		case cur := <-w.wake:
			w.result <- w.cfg.Profiler.Interval(cur)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) runMaster() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopCh:
			return
		}
	}
}

// tick is the master's per-interval signal handler (spec §4.8): it
// advances every live arena's interval counter, wakes the subset of
// workers scheduled this tick, lets the rest carry forward their
// previous value inline, then waits only on the woken subset before
// advancing the shared interval counter.
func (s *Scheduler) tick() {
	s.mu.Lock()
	cur := s.curInterval
	s.mu.Unlock()

	if s.registry != nil {
		s.registry.ForEach(func(slot int, rec *profile.Record) { rec.BeginInterval(cur) })
	}

	var woken []*worker
	for _, w := range s.workers {
		w.skipped++
		if w.skipped >= w.cfg.SkipIntervals {
			w.skipped = 0
			woken = append(woken, w)
		} else {
			w.cfg.Profiler.SkipInterval(cur)
		}
	}

	for _, w := range woken {
		w.wake <- cur
	}
	for _, w := range woken {
		if err := <-w.result; err != nil {
			s.log.Warn("profiler interval failed", obs.String("profiler", w.cfg.Profiler.Name()), obs.Int("interval", cur), obs.Err(err))
		}
	}

	s.mu.Lock()
	s.curInterval++
	s.mu.Unlock()
}

// CurrentInterval reports the number of ticks the master has completed.
func (s *Scheduler) CurrentInterval() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.curInterval
}

// Stop delivers the "stop signal" to the master (spec §4.8 shutdown:
// "the main thread delivers a dedicated stop realtime signal"), waits
// for the master goroutine to exit bounded by ctx (workers exit on the
// same stop channel and are not waited for), and runs every
// profiler's Deinit.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	select {
	case <-s.doneCh:
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out waiting for master")
		return ctx.Err()
	}

	var firstErr error
	for _, w := range s.workers {
		if err := w.cfg.Profiler.Deinit(); err != nil {
			s.log.Error("profiler deinit failed", obs.String("profiler", w.cfg.Profiler.Name()), obs.Err(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
