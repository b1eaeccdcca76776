package dma

import (
	"testing"

	"github.com/openxvc/xvcd/internal/constants"
	"github.com/openxvc/xvcd/internal/regio"
	"github.com/openxvc/xvcd/internal/ring"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	regs := regio.OpenBytes(make([]byte, 0x60))
	descSpan := constants.DefaultDescCount * constants.DescSize
	pktSpan := constants.DefaultDescCount * constants.DefaultPacketBufSize
	buf := regio.OpenBytes(make([]byte, 2*descSpan+2*pktSpan))
	e := NewEngine(regs, buf, constants.DefaultDescCount)

	// Simulate the hardware's egress-start acknowledgement so Setup's poll
	// loop terminates without a real DMA controller.
	e.regs.Store32(e.reg(egressBase, regSts), stsRunning)

	if err := e.Setup(); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	return e
}

func TestSetupArmsIngressDone(t *testing.T) {
	e := newTestEngine(t)
	sts := ring.Sts(e.ingressDesc, 0)
	if !ring.StsDone32(sts) {
		t.Fatalf("ingress descriptor 0 STS = 0x%x, want done bit set after Setup", sts)
	}
}

func TestSendPacket(t *testing.T) {
	e := newTestEngine(t)

	payload := []byte("hello xvc")
	if err := e.SendPacket(payload); err != nil {
		t.Fatalf("SendPacket() error: %v", err)
	}

	got := e.ingressPkt.Host.Bytes(0, len(payload))
	if string(got) != string(payload) {
		t.Fatalf("ingress packet buffer = %q, want %q", got, payload)
	}
}

func TestSendPacketAcceptsErrorStatusSlot(t *testing.T) {
	e := newTestEngine(t)

	ii := ring.Next(e.ingressDesc)
	// Clear the done bit but leave an error code set: the slot is still
	// reusable, not "still busy".
	ring.ClearSts(e.ingressDesc, ii)
	e.ingressDesc.Host.Store32(uintptr(ii*constants.DescSize)+0x1C, uint32(3)<<ring.StsErrShift)

	if err := e.SendPacket([]byte("x")); err != nil {
		t.Fatalf("SendPacket() error = %v, want nil for a descriptor in error state", err)
	}
}

func TestSendPacketNoFreeDescriptor(t *testing.T) {
	e := newTestEngine(t)
	// Clear the done bit on every ingress descriptor so no slot is free.
	for i := 0; i < ring.Count(e.ingressDesc); i++ {
		ring.ClearSts(e.ingressDesc, i)
	}

	err := e.SendPacket([]byte("x"))
	if err != ErrNoIngressDescriptors {
		t.Fatalf("SendPacket() error = %v, want ErrNoIngressDescriptors", err)
	}
}

func TestPollFastPacketNotDoneYet(t *testing.T) {
	e := newTestEngine(t)
	data, _, err := e.PollFastPacket()
	if data != nil || err != nil {
		t.Fatalf("PollFastPacket() on idle ring = (%v, %v), want (nil, nil)", data, err)
	}
}

func TestPollFastPacketCompletion(t *testing.T) {
	e := newTestEngine(t)

	ie := ring.Next(e.egressDesc)
	payload := []byte("reply")
	copy(e.egressPkt.Host.Bytes(uintptr(ie*e.egressPkt.PacketSize), len(payload)), payload)
	e.egressDesc.Host.Store32(uintptr(ie*constants.DescSize)+0x1C, ring.StsDone|uint32(len(payload)))

	data, _, err := e.PollFastPacket()
	if err != nil {
		t.Fatalf("PollFastPacket() error: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("PollFastPacket() data = %q, want %q", data, payload)
	}

	// The slot must be re-armed (STS cleared) so the ring keeps cycling.
	if sts := ring.Sts(e.egressDesc, ie); sts != 0 {
		t.Fatalf("egress descriptor %d STS after poll = 0x%x, want 0 (re-armed)", ie, sts)
	}
}

func TestPollFastPacketError(t *testing.T) {
	e := newTestEngine(t)

	ie := ring.Next(e.egressDesc)
	e.egressDesc.Host.Store32(uintptr(ie*constants.DescSize)+0x1C, uint32(2)<<ring.StsErrShift)

	_, _, err := e.PollFastPacket()
	if err == nil {
		t.Fatal("PollFastPacket() expected error for descriptor error status")
	}
}

func TestCheckHealthy(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Check(); err != nil {
		t.Fatalf("Check() error: %v", err)
	}
}
