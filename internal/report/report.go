// Package report generates the human-readable shutdown report
// enumerating per-arena profiling data (spec §6 "Downstream
// consumers").
//
// Grounded on sicm_profile.c's print_profiling, which walks the arena
// table and prints each arena's site-ids, interval bounds, and
// per-event/RSS histories in the same order this package does.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/nmxmxh/tiermem/internal/profile"
)

// Arena is one arena's report line, a value copy so the report can be
// built and printed without holding any registry locks.
type Arena struct {
	Slot          int
	SiteIDs       []int64
	FirstInterval int
	NumIntervals  int
	Events        []profile.EventStats
	RSS           profile.RSSStats
}

// Report is the full shutdown report: one Arena entry per live arena
// profile, sorted by slot for determinism (the registry's own
// iteration order is unspecified).
type Report struct {
	EventNames []string
	Arenas     []Arena
}

// Build snapshots every arena profile in reg into a deterministic
// Report. eventNames labels the PMU events in the same order they were
// configured (registry.Record.Events is parallel to it).
func Build(reg *profile.Registry, eventNames []string) Report {
	var arenas []Arena
	reg.ForEach(func(slot int, rec *profile.Record) {
		snap := rec.Snapshot()
		arenas = append(arenas, Arena{
			Slot:          slot,
			SiteIDs:       snap.SiteIDs,
			FirstInterval: snap.FirstInterval,
			NumIntervals:  snap.NumIntervals,
			Events:        snap.Events,
			RSS:           snap.RSS,
		})
	})
	sort.Slice(arenas, func(i, j int) bool { return arenas[i].Slot < arenas[j].Slot })
	return Report{EventNames: eventNames, Arenas: arenas}
}

// WriteText renders the report as a plain-text table, one section per
// arena, matching print_profiling's output shape closely enough for a
// human operator to cross-reference against the source tool.
func WriteText(w io.Writer, r Report) error {
	if len(r.Arenas) == 0 {
		_, err := fmt.Fprintln(w, "tiermem: no arenas were profiled")
		return err
	}

	for _, a := range r.Arenas {
		if _, err := fmt.Fprintf(w, "arena %d: sites=%v first_interval=%d num_intervals=%d\n",
			a.Slot, a.SiteIDs, a.FirstInterval, a.NumIntervals); err != nil {
			return err
		}
		for i, ev := range a.Events {
			name := fmt.Sprintf("event[%d]", i)
			if i < len(r.EventNames) {
				name = r.EventNames[i]
			}
			if _, err := fmt.Fprintf(w, "  %s: total=%d peak=%d intervals=%v\n", name, ev.Total, ev.Peak, ev.Intervals); err != nil {
				return err
			}
		}
		if len(a.RSS.Intervals) > 0 {
			if _, err := fmt.Fprintf(w, "  rss: peak=%d intervals=%v\n", a.RSS.Peak, a.RSS.Intervals); err != nil {
				return err
			}
		}
	}
	return nil
}
