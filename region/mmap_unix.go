//go:build unix

package region

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const mmapProt = unix.PROT_READ | unix.PROT_WRITE
const mmapFlags = unix.MAP_PRIVATE | unix.MAP_ANON

// mapFixed maps capacity bytes at exactly addr. MAP_FIXED replaces whatever
// occupied the range; the caller owns the preferred base by contract.
func mapFixed(addr, size uintptr) ([]byte, func() error, error) {
	p, err := unix.MmapPtr(-1, 0, unsafe.Pointer(addr), size, mmapProt, mmapFlags|unix.MAP_FIXED)
	if err != nil {
		return nil, nil, err
	}
	data := unsafe.Slice((*byte)(p), size)
	return data, func() error { return unix.MunmapPtr(p, size) }, nil
}

// mapHinted maps capacity bytes with addr as a non-binding hint. The kernel
// may return a different address; the caller compares.
func mapHinted(addr, size uintptr) ([]byte, func() error, error) {
	p, err := unix.MmapPtr(-1, 0, unsafe.Pointer(addr), size, mmapProt, mmapFlags)
	if err != nil {
		return nil, nil, err
	}
	data := unsafe.Slice((*byte)(p), size)
	return data, func() error { return unix.MunmapPtr(p, size) }, nil
}

// mapAnywhere maps capacity bytes wherever the kernel likes.
func mapAnywhere(size uintptr) ([]byte, func() error, error) {
	data, err := unix.Mmap(-1, 0, int(size), mmapProt, mmapFlags)
	if err != nil {
		return nil, nil, err
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
