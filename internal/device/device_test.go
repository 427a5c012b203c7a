package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuddyAllocator_AllocFreeCoalesce(t *testing.T) {
	buf := make([]byte, 64*1024)
	ba := newBuddyAllocator(buf, uint32(len(buf)))

	a, err := ba.allocate(4096)
	require.NoError(t, err)

	b, err := ba.allocate(4096)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	require.NoError(t, ba.free(a))
	require.NoError(t, ba.free(b))

	stats := ba.stats()
	assert.Equal(t, uint32(0), stats.Allocated)
}

// When every block has coalesced back into the single top-level free
// block, the whole arena is idle and its pages are released eagerly
// rather than waiting for the owning extent to be deleted.
func TestBuddyAllocator_FreeingEverything_ReleasesWholeArena(t *testing.T) {
	buf := make([]byte, maxBuddySize)
	ba := newBuddyAllocator(buf, uint32(len(buf)))

	a, err := ba.allocate(4096)
	require.NoError(t, err)
	b, err := ba.allocate(4096)
	require.NoError(t, err)

	require.NoError(t, ba.free(a))
	require.NoError(t, ba.free(b))

	stats := ba.stats()
	assert.Equal(t, uint32(0), stats.Allocated)

	// the whole arena re-coalesced into one free top-level block; a
	// single maximum-size allocation should now succeed in one shot.
	_, err = ba.allocate(maxBuddySize)
	require.NoError(t, err)
}

func TestBuddyAllocator_OutOfMemory(t *testing.T) {
	buf := make([]byte, 8192)
	ba := newBuddyAllocator(buf, uint32(len(buf)))

	_, err := ba.allocate(4096)
	require.NoError(t, err)
	_, err = ba.allocate(4096)
	require.NoError(t, err)

	_, err = ba.allocate(4096)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestBuddyAllocator_SizeTooLarge(t *testing.T) {
	buf := make([]byte, 64*1024)
	ba := newBuddyAllocator(buf, uint32(len(buf)))

	_, err := ba.allocate(maxBuddySize + 1)
	assert.Error(t, err)
}

func TestSlabAllocator_PacksObjectsIntoOneSlab(t *testing.T) {
	buf := make([]byte, 64*1024)
	ba := newBuddyAllocator(buf, uint32(len(buf)))
	sa := newSlabAllocator(ba)

	a, err := sa.allocate(16)
	require.NoError(t, err)
	b, err := sa.allocate(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	require.NoError(t, sa.free(a, 16))
	require.NoError(t, sa.free(b, 16))

	// reallocating should reuse the freed objects rather than carve a
	// new slab out of the buddy allocator
	beforeStats := ba.stats()
	_, err = sa.allocate(16)
	require.NoError(t, err)
	afterStats := ba.stats()
	assert.Equal(t, beforeStats.Allocated, afterStats.Allocated)
}

func TestHybridArena_RoutesBySize(t *testing.T) {
	buf := make([]byte, 256*1024)
	arena := newHybridArena(buf)

	small, err := arena.Alloc(32)
	require.NoError(t, err)
	assert.Contains(t, arena.entries, small)
	assert.True(t, arena.entries[small].isSlab)

	big, err := arena.Alloc(8192)
	require.NoError(t, err)
	assert.False(t, arena.entries[big].isSlab)

	require.NoError(t, arena.Free(small))
	require.NoError(t, arena.Free(big))
}

func TestHybridArena_ReallocGrowsAndCopies(t *testing.T) {
	buf := make([]byte, 256*1024)
	arena := newHybridArena(buf)

	ptr, err := arena.Alloc(16)
	require.NoError(t, err)

	off, ok := arena.offsetOf(ptr)
	require.True(t, ok)
	buf[off] = 0xAB

	grown, err := arena.Realloc(ptr, 4096)
	require.NoError(t, err)
	assert.NotEqual(t, ptr, grown)

	newOff, ok := arena.offsetOf(grown)
	require.True(t, ok)
	assert.Equal(t, byte(0xAB), buf[newOff])
}

func TestHybridArena_FreeUnknownPointer(t *testing.T) {
	buf := make([]byte, 64*1024)
	arena := newHybridArena(buf)
	err := arena.Free(0xdeadbeef)
	assert.ErrorIs(t, err, ErrInvalidOffset)
}

func TestDefaultAllocator_CreateArena(t *testing.T) {
	alloc := NewDefaultAllocator(1 << 20)
	devices := []*Device{{Tag: "default", Node: -1}}

	arena, err := alloc.CreateArena(devices, PolicyRelaxed)
	require.NoError(t, err)

	ptr, err := arena.Alloc(128)
	require.NoError(t, err)
	assert.NotZero(t, ptr)

	require.NoError(t, arena.Release(ptr, ptr+128))
}

func TestDefaultAllocator_RequiresDevices(t *testing.T) {
	alloc := NewDefaultAllocator(0)
	_, err := alloc.CreateArena(nil, PolicyRelaxed)
	assert.Error(t, err)
}

func TestList_ByTag(t *testing.T) {
	l := &List{Devices: []*Device{{Tag: "a"}, {Tag: "b"}}}
	assert.Equal(t, Tag("b"), l.ByTag("b").Tag)
	assert.Nil(t, l.ByTag("missing"))
}
