// Package perfevent resolves symbolic hardware-event names
// (SH_PROFILE_ALL_EVENTS) to a perf_event_open attribute, standing in
// for the source's libpfm dependency.
//
// Grounded on golang.org/x/sys/unix's PERF_TYPE_HARDWARE /
// PERF_COUNT_HW_* constants, available only on Linux; resolver_stub.go
// provides the same API elsewhere so the package always builds.
package perfevent

import "fmt"

// ErrUnresolvedEvent marks an event name the resolver does not
// recognize: a configuration error that is fatal per spec §7/§6
// ("any that the event-library refuses to resolve is fatal").
var ErrUnresolvedEvent = fmt.Errorf("perfevent: unresolved event name")

// ErrUnsupportedPlatform marks hardware-event profiling being
// requested on a platform with no perf_event_open.
var ErrUnsupportedPlatform = fmt.Errorf("perfevent: hardware event profiling unsupported on this platform")

// Attr is a resolved event descriptor. Raw carries the platform's
// native attribute type (*unix.PerfEventAttr on Linux) opaquely, so
// this type can be named from platform-neutral code.
type Attr struct {
	Name string
	Raw  any
}

// Resolver maps symbolic event names to an Attr.
type Resolver interface {
	Resolve(name string) (Attr, error)
	ResolveAll(names []string) ([]Attr, error)
}

// NewResolver returns the platform's hardware-event resolver.
func NewResolver() Resolver { return newResolver() }
