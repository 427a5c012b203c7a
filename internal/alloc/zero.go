package alloc

import "unsafe"

// zeroMemory fills size bytes starting at ptr with zero bytes. ptr is
// assumed to originate from a device.Arena allocation, i.e. a real
// address within one of this process's own backing buffers.
func zeroMemory(ptr uintptr, size uint32) {
	if ptr == 0 || size == 0 {
		return
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(size))
	for i := range b {
		b[i] = 0
	}
}
