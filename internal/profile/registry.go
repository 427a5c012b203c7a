// Package profile implements the profile registry (spec component C6)
// and the PMU-sample and RSS profilers (spec component C7).
//
// Grounded on sicm_profile.c's create_arena_profile/add_site_profile
// and the profile_info per-arena record.
package profile

import "sync"

// EventStats is one PMU event's accumulated profile for an arena:
// running total, peak single-interval value, and the full
// interval-by-interval history (report generator contract: length
// equals NumIntervals, spec I5).
type EventStats struct {
	Total     int64
	Peak      int64
	Intervals []int64

	tmp int64
}

func (e *EventStats) reset() { e.tmp = 0 }

func (e *EventStats) accumulate(n int64) { e.tmp += n }

func (e *EventStats) postInterval() {
	e.Total += e.tmp
	if e.tmp > e.Peak {
		e.Peak = e.tmp
	}
	e.Intervals = append(e.Intervals, e.tmp)
}

func (e *EventStats) skipInterval() {
	prev := int64(0)
	if n := len(e.Intervals); n > 0 {
		prev = e.Intervals[n-1]
	}
	e.Intervals = append(e.Intervals, prev)
	if prev > e.Peak {
		e.Peak = prev
	}
}

// RSSStats is the RSS profiler's per-arena history: no running total
// is kept in the source (only peak and intervals).
type RSSStats struct {
	Peak      int64
	Intervals []int64

	tmp int64
}

func (r *RSSStats) reset() { r.tmp = 0 }

func (r *RSSStats) accumulate(n int64) { r.tmp += n }

func (r *RSSStats) postInterval() {
	if r.tmp > r.Peak {
		r.Peak = r.tmp
	}
	r.Intervals = append(r.Intervals, r.tmp)
}

func (r *RSSStats) skipInterval() {
	prev := int64(0)
	if n := len(r.Intervals); n > 0 {
		prev = r.Intervals[n-1]
	}
	r.Intervals = append(r.Intervals, prev)
	if prev > r.Peak {
		r.Peak = prev
	}
}

// Record is one arena's profile: the site-ids attributed to it, the
// interval at which profiling began, the live interval count, and a
// sub-record per enabled profiler.
type Record struct {
	mu sync.Mutex

	SiteIDs       []int64
	FirstInterval int
	NumIntervals  int
	started       bool

	Events []EventStats // one per configured PMU event, in order
	RSS    RSSStats
}

// NewRecord allocates a zeroed profile record for numEvents PMU
// events.
func NewRecord(numEvents int) *Record {
	return &Record{Events: make([]EventStats, numEvents)}
}

// AddSite appends a site-id to the record's site list, matching
// add_site_profile, and reports whether it was newly added.
func (r *Record) AddSite(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.SiteIDs {
		if s == id {
			return false
		}
	}
	r.SiteIDs = append(r.SiteIDs, id)
	return true
}

// BeginInterval marks the start of interval cur for this arena: if
// this is the first interval the arena has seen, FirstInterval is set
// (spec §4.8 step 1); NumIntervals is then incremented.
func (r *Record) BeginInterval(cur int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		r.FirstInterval = cur
		r.started = true
	}
	r.NumIntervals++
}

// ResetAccumulators zeroes every event's tmp_accumulator ahead of a
// PMU interval pass (spec §4.7 step 1).
func (r *Record) ResetAccumulators() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Events {
		r.Events[i].reset()
	}
}

// AccumulateEvent adds n to event eventIdx's tmp_accumulator.
func (r *Record) AccumulateEvent(eventIdx int, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if eventIdx < 0 || eventIdx >= len(r.Events) {
		return
	}
	r.Events[eventIdx].accumulate(n)
}

// PostIntervalEvents finalizes this interval's PMU accumulators into
// total/peak/intervals for every configured event.
func (r *Record) PostIntervalEvents() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Events {
		r.Events[i].postInterval()
	}
}

// SkipIntervalEvents carries forward the previous interval's value for
// every configured PMU event (skip-interval semantics, spec §4.7).
func (r *Record) SkipIntervalEvents() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Events {
		r.Events[i].skipInterval()
	}
}

// ResetRSSAccumulator zeroes the RSS tmp_accumulator ahead of an
// interval pass.
func (r *Record) ResetRSSAccumulator() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RSS.reset()
}

// AccumulateRSS adds n bytes to the RSS tmp_accumulator.
func (r *Record) AccumulateRSS(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RSS.accumulate(n)
}

// PostIntervalRSS finalizes this interval's RSS accumulator.
func (r *Record) PostIntervalRSS() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RSS.postInterval()
}

// SkipIntervalRSS carries forward the previous RSS interval value.
func (r *Record) SkipIntervalRSS() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RSS.skipInterval()
}

// Snapshot returns a point-in-time copy of the record's public fields,
// safe to read without further locking (used by the report generator).
func (r *Record) Snapshot() Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := Record{
		FirstInterval: r.FirstInterval,
		NumIntervals:  r.NumIntervals,
		RSS:           r.RSS,
	}
	cp.SiteIDs = append(cp.SiteIDs, r.SiteIDs...)
	cp.Events = append(cp.Events, r.Events...)
	return cp
}

// Registry is the profile-record table: one record per arena slot,
// created in lockstep with the arena table (spec §4.6: "creation
// mirrors C2").
type Registry struct {
	mu        sync.Mutex
	records   map[int]*Record
	numEvents int
}

// NewRegistry creates an empty registry sized for numEvents PMU
// events per arena.
func NewRegistry(numEvents int) *Registry {
	return &Registry{records: make(map[int]*Record), numEvents: numEvents}
}

// CreateArenaProfile allocates (idempotently) the profile record for
// slot and attributes siteID to it, matching
// create_arena_profile+add_site_profile being called together from
// sh_create_arena.
func (reg *Registry) CreateArenaProfile(slot int, siteID int64) *Record {
	reg.mu.Lock()
	rec, ok := reg.records[slot]
	if !ok {
		rec = NewRecord(reg.numEvents)
		reg.records[slot] = rec
	}
	reg.mu.Unlock()

	rec.AddSite(siteID)
	return rec
}

// Get returns the profile record for slot, if one exists.
func (reg *Registry) Get(slot int) (*Record, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.records[slot]
	return r, ok
}

// ForEach visits every (slot, record) pair. Order is unspecified.
func (reg *Registry) ForEach(visit func(slot int, r *Record)) {
	reg.mu.Lock()
	snapshot := make(map[int]*Record, len(reg.records))
	for k, v := range reg.records {
		snapshot[k] = v
	}
	reg.mu.Unlock()
	for slot, r := range snapshot {
		visit(slot, r)
	}
}
