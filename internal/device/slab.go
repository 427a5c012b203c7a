package device

// slabAllocator serves small, fixed-size-class allocations (up to
// maxSlabSize) out of contiguous slabs, falling back to the buddy
// allocator for the slab storage itself.
//
// Adapted from nmxmxh-inos_v1/kernel/threads/arena/slab.go
// (SlabAllocator): same size-class table and free-list-per-class
// design, rebased onto uint32 offsets into a real byte arena.
type slabAllocator struct {
	buddy   *buddyAllocator
	classes []slabClass
}

const maxSlabSize = 256

// slabClass sizes mirror the teacher's size-class ladder: 16, 32, 64,
// 128, 256 bytes, each class packing minBuddySize/classSize objects
// per slab.
var slabClassSizes = []uint32{16, 32, 64, 128, 256}

type slabClass struct {
	size     uint32
	freeList uint32 // offset of first free object in this class, 0 if none
}

func newSlabAllocator(buddy *buddyAllocator) *slabAllocator {
	classes := make([]slabClass, len(slabClassSizes))
	for i, sz := range slabClassSizes {
		classes[i] = slabClass{size: sz}
	}
	return &slabAllocator{buddy: buddy, classes: classes}
}

func (sa *slabAllocator) classFor(size uint32) int {
	for i, c := range sa.classes {
		if size <= c.size {
			return i
		}
	}
	return -1
}

func (sa *slabAllocator) allocate(size uint32) (uint32, error) {
	ci := sa.classFor(size)
	if ci < 0 {
		return 0, ErrOutOfMemory
	}
	class := &sa.classes[ci]

	if class.freeList != 0 {
		offset := class.freeList
		class.freeList = sa.buddy.getNextFree(offset)
		return offset, nil
	}

	// Carve a new slab out of the buddy allocator and chain its
	// objects onto this class's free list.
	slabOffset, err := sa.buddy.allocate(minBuddySize)
	if err != nil {
		return 0, err
	}

	objSize := class.size
	numObjs := uint32(minBuddySize) / objSize
	for i := uint32(1); i < numObjs; i++ {
		objOffset := slabOffset + i*objSize
		sa.buddy.writeU32(objOffset, class.freeList)
		class.freeList = objOffset
	}

	return slabOffset, nil
}

func (sa *slabAllocator) free(offset uint32, size uint32) error {
	ci := sa.classFor(size)
	if ci < 0 {
		return ErrInvalidOffset
	}
	class := &sa.classes[ci]
	sa.buddy.writeU32(offset, class.freeList)
	class.freeList = offset
	return nil
}
