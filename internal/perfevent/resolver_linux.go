//go:build linux

package perfevent

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

type linuxResolver struct{}

func newResolver() Resolver { return &linuxResolver{} }

var hardwareEvents = map[string]uint64{
	"cycles":              unix.PERF_COUNT_HW_CPU_CYCLES,
	"instructions":        unix.PERF_COUNT_HW_INSTRUCTIONS,
	"cache-references":    unix.PERF_COUNT_HW_CACHE_REFERENCES,
	"cache-misses":        unix.PERF_COUNT_HW_CACHE_MISSES,
	"branch-instructions": unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS,
	"branch-misses":       unix.PERF_COUNT_HW_BRANCH_MISSES,
	"bus-cycles":          unix.PERF_COUNT_HW_BUS_CYCLES,
	"ref-cycles":          unix.PERF_COUNT_HW_REF_CPU_CYCLES,
}

// Cache-event names are modeled as PERF_TYPE_HW_CACHE composites; the
// source resolves these through libpfm's fuller event-name grammar.
// This subset covers spec.md's own example names without pulling in a
// complete PMU-event grammar parser.
var cacheEvents = map[string]uint64{
	"mem-loads":  unix.PERF_COUNT_HW_CACHE_L1D | (unix.PERF_COUNT_HW_CACHE_OP_READ << 8) | (unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS << 16),
	"mem-stores": unix.PERF_COUNT_HW_CACHE_L1D | (unix.PERF_COUNT_HW_CACHE_OP_WRITE << 8) | (unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS << 16),
}

func (r *linuxResolver) Resolve(name string) (Attr, error) {
	attr := &unix.PerfEventAttr{
		Sample_type: unix.PERF_SAMPLE_ADDR,
		Bits:        unix.PerfBitDisabled | unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv,
		Sample:      1,
	}
	attr.Size = uint32(unsafe.Sizeof(*attr))

	if hw, ok := hardwareEvents[name]; ok {
		attr.Type = unix.PERF_TYPE_HARDWARE
		attr.Config = hw
		return Attr{Name: name, Raw: attr}, nil
	}
	if cache, ok := cacheEvents[name]; ok {
		attr.Type = unix.PERF_TYPE_HW_CACHE
		attr.Config = cache
		return Attr{Name: name, Raw: attr}, nil
	}
	return Attr{}, fmt.Errorf("%w: %q", ErrUnresolvedEvent, name)
}

func (r *linuxResolver) ResolveAll(names []string) ([]Attr, error) {
	out := make([]Attr, 0, len(names))
	for _, n := range names {
		a, err := r.Resolve(n)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
