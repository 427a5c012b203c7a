package device

import "fmt"

const defaultArenaSize = 64 * 1024 * 1024 // 64MiB, matches the teacher's default SAB arena size

// DefaultAllocator is the reference Allocator: each CreateArena call
// obtains a fresh OS-backed byte buffer and wraps it in a hybridArena.
// It ignores the requested device list beyond validating it is
// non-empty, since spec §4.2 only ever asks for PolicyRelaxed binding
// across "the whole device list" rather than a specific node.
type DefaultAllocator struct {
	ArenaSize uint32
}

// NewDefaultAllocator returns an Allocator that hands out arenas of the
// given size (defaultArenaSize if size is 0).
func NewDefaultAllocator(size uint32) *DefaultAllocator {
	if size == 0 {
		size = defaultArenaSize
	}
	return &DefaultAllocator{ArenaSize: size}
}

func (a *DefaultAllocator) CreateArena(devices []*Device, policy BindingPolicy) (Arena, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("device: CreateArena requires at least one device")
	}
	buf, err := newBackingBuffer(a.ArenaSize)
	if err != nil {
		return nil, err
	}
	return newHybridArena(buf), nil
}
