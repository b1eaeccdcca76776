// Package regio maps a physical address range from /dev/mem and exposes
// ordered, non-cached register access over it.
package regio

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const pageSize = 4096

// Window is a mapped physical register or buffer region.
type Window struct {
	mem    []byte
	base   uintptr // physical base address requested by the caller
	offset uintptr // byte offset of base within the page-aligned mapping
	size   int
}

// Open mmaps size bytes of physical memory starting at physAddr via
// /dev/mem. The mapping is rounded down to a page boundary; Load/Store
// offsets are relative to physAddr, not the page-aligned base.
func Open(physAddr uintptr, size int) (*Window, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("regio: open /dev/mem: %w", err)
	}
	defer f.Close()

	aligned := physAddr &^ (pageSize - 1)
	offset := physAddr - aligned
	mapLen := int(offset) + size
	mapLen = (mapLen + pageSize - 1) &^ (pageSize - 1)

	mem, err := unix.Mmap(int(f.Fd()), int64(aligned), mapLen, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("regio: mmap 0x%x/0x%x: %w", physAddr, size, err)
	}

	return &Window{mem: mem, base: physAddr, offset: offset, size: size}, nil
}

// OpenBytes wraps an existing byte slice as a Window without mmap, for
// tests and simulation harnesses.
func OpenBytes(b []byte) *Window {
	return &Window{mem: b, size: len(b)}
}

// Close unmaps the region.
func (w *Window) Close() error {
	if w.offset == 0 && w.base == 0 {
		return nil // OpenBytes window, nothing to unmap
	}
	return unix.Munmap(w.mem)
}

// Size returns the accessible region length in bytes.
func (w *Window) Size() int { return w.size }

func (w *Window) ptr32(off uintptr) *uint32 {
	return (*uint32)(unsafe.Pointer(&w.mem[w.offset+off]))
}

// Load32 performs an ordered 32-bit read at the given byte offset.
func (w *Window) Load32(off uintptr) uint32 {
	return atomic.LoadUint32(w.ptr32(off))
}

// Store32 performs an ordered 32-bit write at the given byte offset.
func (w *Window) Store32(off uintptr, v uint32) {
	atomic.StoreUint32(w.ptr32(off), v)
}

// Load64 performs an ordered 64-bit read composed of two little-endian
// 32-bit halves, matching the 64-bit address extension registers.
func (w *Window) Load64(off uintptr) uint64 {
	lo := uint64(w.Load32(off))
	hi := uint64(w.Load32(off + 4))
	return lo | hi<<32
}

// Store64 performs an ordered 64-bit write split into two 32-bit halves.
func (w *Window) Store64(off uintptr, v uint64) {
	w.Store32(off, uint32(v))
	w.Store32(off+4, uint32(v>>32))
}

// Bytes returns a raw view into the window starting at off, length n, for
// bulk copies into/out of packet buffers.
func (w *Window) Bytes(off uintptr, n int) []byte {
	return w.mem[w.offset+off : w.offset+off+uintptr(n)]
}

// Barrier marks a point where prior Store32/Store64 calls must be visible
// before any subsequent one. Callers invoke it before handing a descriptor
// or tail pointer to hardware.
func (w *Window) Barrier() {
	atomic.StoreUint32(new(uint32), 0)
}
