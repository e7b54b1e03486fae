//go:build windows

package sharedmmap

import "unsafe"

// unsafeSliceFromPtr views the memory at addr as a byte slice of length n.
// Used only to turn MapViewOfFile's returned address into a Go []byte, the
// same boundary every mmap wrapper in the corpus crosses once per mapping.
func unsafeSliceFromPtr(addr uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

func unsafePtrFromSlice(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}
