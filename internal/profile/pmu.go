package profile

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"

	"github.com/nmxmxh/tiermem/internal/extent"
	"github.com/nmxmxh/tiermem/internal/perfevent"
)

// Standard offsets into struct perf_event_mmap_page (see
// perf_event_open(2)): the fields up to __reserved total 76 bytes,
// __reserved pads to 1024, then data_head/data_tail/data_offset/
// data_size follow at 8-byte strides.
const (
	perfHeaderDataHeadOffset = 1024
	perfHeaderDataTailOffset = 1032

	perfRecordSample = 9 // PERF_RECORD_SAMPLE
)

// ringBuffer is the per-event memory-mapped ring buffer: implemented
// for real by mmapRing (pmu_linux.go, perf_event_open + mmap) and left
// permanently erroring on platforms without it (pmu_stub.go).
type ringBuffer interface {
	// Region returns the header page and the data region that follow
	// it in the same mapping.
	Region() (header []byte, data []byte)
	Close() error
}

// eventOpener opens one configured PMU event's ring buffer.
type eventOpener interface {
	Open(attr perfevent.Attr, pageSize, maxSamplePages int) (ringBuffer, error)
}

func dataHead(header []byte) uint64 {
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&header[perfHeaderDataHeadOffset])))
}

func setDataTail(header []byte, tail uint64) {
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&header[perfHeaderDataTailOffset])), tail)
}

// parseAddrs reads every PERF_RECORD_SAMPLE record in [tail,head) of
// data (wrapping modulo len(data)) and returns each record's addr
// field, matching sicm_profile_all.c's ring-buffer parsing loop. A
// corrupt record (size < header size) stops the scan defensively
// rather than looping forever.
func parseAddrs(data []byte, tail, head uint64) []uint64 {
	size := uint64(len(data))
	if size == 0 || head <= tail {
		return nil
	}
	var addrs []uint64
	pos := tail % size
	remaining := head - tail
	for remaining >= 8 {
		hdr := readWrapped(data, pos, 8)
		recType := binary.LittleEndian.Uint32(hdr[0:4])
		recSize := uint64(binary.LittleEndian.Uint16(hdr[6:8]))
		if recSize < 8 {
			break
		}
		if recType == perfRecordSample && recSize >= 16 {
			body := readWrapped(data, (pos+8)%size, 8)
			addrs = append(addrs, binary.LittleEndian.Uint64(body))
		}
		pos = (pos + recSize) % size
		remaining -= recSize
	}
	return addrs
}

func readWrapped(data []byte, pos, n uint64) []byte {
	size := uint64(len(data))
	if pos+n <= size {
		return data[pos : pos+n]
	}
	out := make([]byte, n)
	first := size - pos
	copy(out, data[pos:])
	copy(out[first:], data[:n-first])
	return out
}

// PMUProfiler samples hardware events via perf_event_open and
// attributes each sample's address to the arena whose extent contains
// it.
//
// Grounded on sicm_profile_all.c's profile_all_init/profile_all_interval.
type PMUProfiler struct {
	Extents  *extent.Index
	Registry *Registry

	EventNames     []string
	MaxSamplePages int

	opener   eventOpener
	pageSize int
	rings    []ringBuffer
	tails    []uint64
}

// NewPMUProfiler constructs a profiler for the given event names. If
// maxSamplePages is 0 it defaults to 8.
func NewPMUProfiler(extents *extent.Index, registry *Registry, eventNames []string, maxSamplePages int) *PMUProfiler {
	if maxSamplePages == 0 {
		maxSamplePages = 8
	}
	return &PMUProfiler{
		Extents:        extents,
		Registry:       registry,
		EventNames:     eventNames,
		MaxSamplePages: maxSamplePages,
		opener:         newEventOpener(),
	}
}

func (p *PMUProfiler) Name() string { return "pmu" }

// Init opens one perf_event_open descriptor and ring buffer per
// configured event (spec §4.7: "scoped to the calling thread/any CPU,
// no group").
func (p *PMUProfiler) Init() error {
	resolver := perfevent.NewResolver()
	p.pageSize = osPageSize()

	for _, name := range p.EventNames {
		attr, err := resolver.Resolve(name)
		if err != nil {
			return err
		}
		ring, err := p.opener.Open(attr, p.pageSize, p.MaxSamplePages)
		if err != nil {
			return err
		}
		p.rings = append(p.rings, ring)
	}
	return nil
}

// ArenaInit is a no-op: EventStats slices are sized when the profile
// record itself is created (NewRecord(numEvents)).
func (p *PMUProfiler) ArenaInit(rec *Record) {}

// Interval performs one sampling pass across every configured event:
// reset accumulators, parse each ring buffer, attribute samples to
// arenas via the extent index, advance data_tail, and post the
// interval (spec §4.7 steps 1-5).
func (p *PMUProfiler) Interval(cur int) error {
	p.Registry.ForEach(func(slot int, rec *Record) { rec.ResetAccumulators() })

	for i, ring := range p.rings {
		header, data := ring.Region()
		head := dataHead(header)

		addrs := parseAddrs(data, p.lastTail(i), head)
		for _, addr := range addrs {
			// Inclusive-at-both-ends: matches profile_all_interval's
			// boundary test in sicm_profile_all.c.
			e, ok := p.Extents.FindInclusive(uintptr(addr))
			if !ok {
				continue
			}
			rec, ok := p.Registry.Get(e.Arena.Slot())
			if !ok {
				continue
			}
			rec.AccumulateEvent(i, 1)
		}

		setDataTail(header, head)
		p.setLastTail(i, head)
	}

	p.Registry.ForEach(func(slot int, rec *Record) { rec.PostIntervalEvents() })
	return nil
}

// SkipInterval carries forward the previous interval's value for
// every event, across every arena.
func (p *PMUProfiler) SkipInterval(cur int) {
	p.Registry.ForEach(func(slot int, rec *Record) { rec.SkipIntervalEvents() })
}

// Deinit disables and closes every event's ring buffer.
func (p *PMUProfiler) Deinit() error {
	var firstErr error
	for _, ring := range p.rings {
		if err := ring.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// lastTail/setLastTail track each ring's data_tail across Interval
// calls. Stored alongside rings rather than in the ring itself so the
// platform implementation stays a thin syscall wrapper.
func (p *PMUProfiler) lastTail(i int) uint64 {
	if p.tails == nil {
		return 0
	}
	return p.tails[i]
}

func (p *PMUProfiler) setLastTail(i int, v uint64) {
	if p.tails == nil {
		p.tails = make([]uint64, len(p.rings))
	}
	p.tails[i] = v
}
