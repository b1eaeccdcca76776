// Package membind adapts a memory-mapped debug hub window to
// proto.Handlers, implementing the mrd:/mwr: memory capability.
package membind

import (
	"fmt"

	"github.com/openxvc/xvcd/internal/proto"
	"github.com/openxvc/xvcd/internal/regio"
)

// Binding serves mrd:/mwr: against one mapped register window, rejecting
// any address outside [0, window size).
type Binding struct {
	window *regio.Window
	idcode uint32
}

// New wraps window as a memory binding reporting the given idcode.
func New(window *regio.Window, idcode uint32) *Binding {
	return &Binding{window: window, idcode: idcode}
}

// Idcode returns the configured idcode for capabilities: reporting.
func (b *Binding) Idcode() uint32 { return b.idcode }

// Handlers returns the proto.Handlers table for this binding.
func (b *Binding) Handlers() *proto.Handlers {
	return &proto.Handlers{
		MemRead:  b.memRead,
		MemWrite: b.memWrite,
	}
}

func (b *Binding) bounds(addr uint64, n uint32) error {
	if addr+uint64(n) > uint64(b.window.Size()) {
		return fmt.Errorf("membind: access [0x%x, 0x%x) outside window of size 0x%x", addr, addr+uint64(n), b.window.Size())
	}
	return nil
}

func (b *Binding) memRead(addr uint64, n uint32) ([]byte, error) {
	if err := b.bounds(addr, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.window.Bytes(uintptr(addr), int(n)))
	return out, nil
}

func (b *Binding) memWrite(addr uint64, data []byte) error {
	if err := b.bounds(addr, uint32(len(data))); err != nil {
		return err
	}
	copy(b.window.Bytes(uintptr(addr), len(data)), data)
	return nil
}
