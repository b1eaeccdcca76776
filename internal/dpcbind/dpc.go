// Package dpcbind adapts a dma.Engine to proto.Handlers, implementing the
// DPC fast-packet transport's idpc:/edpc: capability.
package dpcbind

import (
	"fmt"

	"github.com/openxvc/xvcd/internal/constants"
	"github.com/openxvc/xvcd/internal/dma"
	"github.com/openxvc/xvcd/internal/proto"
)

// Binding owns a DMA engine's lifecycle across one connection.
type Binding struct {
	engine *dma.Engine
}

// New wraps engine as a DPC binding.
func New(engine *dma.Engine) *Binding {
	return &Binding{engine: engine}
}

// Handlers returns the proto.Handlers table for this binding: OpenPort
// programs the DMA rings, ClosePort is a no-op (the engine outlives the
// connection), IDPC/EDPC drive ingress/egress transfers.
func (b *Binding) Handlers() *proto.Handlers {
	return &proto.Handlers{
		OpenPort: b.openPort,
		IDPC:     b.idpc,
		EDPC:     b.edpc,
	}
}

func (b *Binding) openPort() error {
	return b.engine.Setup()
}

func (b *Binding) idpc(packet []byte) error {
	if len(packet) > constants.MaxPacketSize {
		return fmt.Errorf("dpcbind: packet of %d bytes exceeds max %d", len(packet), constants.MaxPacketSize)
	}
	return b.engine.SendPacket(packet)
}

func (b *Binding) edpc() ([]byte, error) {
	data, _, err := b.engine.ReceiveFastPacket()
	return data, err
}
