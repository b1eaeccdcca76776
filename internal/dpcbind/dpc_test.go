package dpcbind

import (
	"testing"

	"github.com/openxvc/xvcd/internal/constants"
	"github.com/openxvc/xvcd/internal/dma"
	"github.com/openxvc/xvcd/internal/regio"
)

func newTestBinding(t *testing.T) *Binding {
	t.Helper()
	regs := regio.OpenBytes(make([]byte, 0x60))
	descSpan := constants.DefaultDescCount * constants.DescSize
	pktSpan := constants.DefaultDescCount * constants.DefaultPacketBufSize
	buf := regio.OpenBytes(make([]byte, 2*descSpan+2*pktSpan))
	engine := dma.NewEngine(regs, buf, constants.DefaultDescCount)
	return New(engine)
}

func TestIDPCRejectsOversizePacket(t *testing.T) {
	b := newTestBinding(t)
	big := make([]byte, constants.MaxPacketSize+1)
	if err := b.idpc(big); err == nil {
		t.Fatal("expected oversize packet to be rejected")
	}
}

func TestHandlersTable(t *testing.T) {
	b := newTestBinding(t)
	h := b.Handlers()
	if h.OpenPort == nil || h.IDPC == nil || h.EDPC == nil {
		t.Fatal("Handlers() missing expected fields")
	}
	if !h.HasDPC() {
		t.Fatal("expected HasDPC() true")
	}
}
