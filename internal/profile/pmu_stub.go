//go:build !linux

package profile

import (
	"errors"

	"github.com/nmxmxh/tiermem/internal/perfevent"
)

// ErrUnsupportedPlatform is returned by the PMU profiler's Init on any
// platform without perf_event_open.
var ErrUnsupportedPlatform = errors.New("profile: pmu sampling unsupported on this platform")

func osPageSize() int { return 4096 }

type stubEventOpener struct{}

func newEventOpener() eventOpener { return &stubEventOpener{} }

func (o *stubEventOpener) Open(attr perfevent.Attr, pageSize, maxSamplePages int) (ringBuffer, error) {
	return nil, ErrUnsupportedPlatform
}
