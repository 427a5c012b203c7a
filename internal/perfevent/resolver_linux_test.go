//go:build linux

package perfevent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"
)

func TestResolver_ResolvesKnownHardwareEvent(t *testing.T) {
	r := NewResolver()
	attr, err := r.Resolve("cycles")
	require.NoError(t, err)
	raw := attr.Raw.(*unix.PerfEventAttr)
	assert.EqualValues(t, unix.PERF_TYPE_HARDWARE, raw.Type)
	assert.EqualValues(t, unix.PERF_COUNT_HW_CPU_CYCLES, raw.Config)
}

func TestResolver_ResolvesCacheEvent(t *testing.T) {
	r := NewResolver()
	attr, err := r.Resolve("mem-loads")
	require.NoError(t, err)
	raw := attr.Raw.(*unix.PerfEventAttr)
	assert.EqualValues(t, unix.PERF_TYPE_HW_CACHE, raw.Type)
}

func TestResolver_UnresolvedNameIsFatal(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve("not-a-real-event")
	assert.ErrorIs(t, err, ErrUnresolvedEvent)
}

func TestResolver_ResolveAll_FailsOnFirstBadName(t *testing.T) {
	r := NewResolver()
	_, err := r.ResolveAll([]string{"cycles", "bogus", "instructions"})
	assert.ErrorIs(t, err, ErrUnresolvedEvent)
}

func TestResolver_ResolveAll_AllValid(t *testing.T) {
	r := NewResolver()
	attrs, err := r.ResolveAll([]string{"cycles", "instructions"})
	require.NoError(t, err)
	assert.Len(t, attrs, 2)
}
