package dma

import (
	"fmt"

	"github.com/openxvc/xvcd/internal/constants"
	"github.com/openxvc/xvcd/internal/ring"
)

// ErrNoIngressDescriptors is returned when SendPacket cannot find a free
// ingress descriptor within SendPollLimit polls.
var ErrNoIngressDescriptors = fmt.Errorf("dma: no free ingress descriptor")

// SendPacket copies buf into the next free ingress packet slot and hands it
// to hardware. buf must fit within one packet buffer.
func (e *Engine) SendPacket(buf []byte) error {
	if len(buf) > e.ingressPkt.PacketSize {
		return fmt.Errorf("dma: packet of %d bytes exceeds packet buffer size %d", len(buf), e.ingressPkt.PacketSize)
	}

	ii := ring.Next(e.ingressDesc)

	ok := false
	for i := 0; i < constants.SendPollLimit; i++ {
		sts := ring.Sts(e.ingressDesc, ii)
		if ring.StsDone32(sts) || ring.StsError32(sts) != 0 {
			ok = true
			break
		}
	}
	if !ok {
		return ErrNoIngressDescriptors
	}

	copy(e.ingressPkt.Host.Bytes(uintptr(ii*e.ingressPkt.PacketSize), len(buf)), buf)

	ring.ClearSts(e.ingressDesc, ii)
	ring.SetCntl(e.ingressDesc, ii, uint32(len(buf)))
	e.regs.Barrier()

	e.regs.Store64(e.reg(ingressBase, regTail), ring.AxiAddr(e.ingressDesc, ii))
	e.ingressDesc.Last = ii

	return nil
}

// SendFastPacket sends the first size bytes of buf; it copies them into the
// next free ingress packet slot exactly as SendPacket does.
func (e *Engine) SendFastPacket(buf []byte, size int) error {
	return e.SendPacket(buf[:size])
}

// PollFastPacket inspects the next egress descriptor once. It returns
// (nil, 0, nil) when the descriptor isn't done yet, (data, words, nil) on a
// successful completion, or a non-nil error if the descriptor reports a
// hardware error. In both the done and error cases the descriptor is
// re-armed so the ring keeps cycling.
func (e *Engine) PollFastPacket() (data []byte, words int, err error) {
	ie := ring.Next(e.egressDesc)
	sts := ring.Sts(e.egressDesc, ie)

	switch {
	case ring.StsError32(sts) != 0:
		errCode := ring.StsError32(sts)
		ring.ClearSts(e.egressDesc, ie)
		ring.SetCntl(e.egressDesc, ie, uint32(e.egressPkt.PacketSize))
		e.regs.Barrier()
		e.regs.Store64(e.reg(egressBase, regTail), ring.AxiAddr(e.egressDesc, ie))
		e.egressDesc.Last = ie
		return nil, 0, fmt.Errorf("dma: egress descriptor %d status error 0x%x", ie, errCode)

	case ring.StsDone32(sts):
		length := int(ring.StsLen32(sts))
		buf := make([]byte, length)
		copy(buf, e.egressPkt.Host.Bytes(uintptr(ie*e.egressPkt.PacketSize), length))

		ring.ClearSts(e.egressDesc, ie)
		ring.SetCntl(e.egressDesc, ie, uint32(e.egressPkt.PacketSize))
		e.regs.Barrier()
		e.regs.Store64(e.reg(egressBase, regTail), ring.AxiAddr(e.egressDesc, ie))
		e.egressDesc.Last = ie

		return buf, length / 4, nil

	default:
		return nil, 0, nil
	}
}

// ReceiveFastPacket polls for one egress completion, retrying up to
// ReceivePollLimitVerbose times in verbose mode (ReceivePollLimitQuiet
// otherwise) to ride out the normal gap between submission and completion.
func (e *Engine) ReceiveFastPacket() (data []byte, words int, err error) {
	limit := constants.ReceivePollLimitQuiet
	if e.verbose {
		limit = constants.ReceivePollLimitVerbose
	}

	for i := 0; i < limit; i++ {
		data, words, err = e.PollFastPacket()
		if data != nil || err != nil {
			return data, words, err
		}
	}
	return nil, 0, nil
}

// ReceivePacket is the non-fast-path receive used by callers that don't
// pre-know the transfer is small; behaviorally identical to
// ReceiveFastPacket in this engine since both sides share one poll loop.
func (e *Engine) ReceivePacket() (data []byte, words int, err error) {
	return e.ReceiveFastPacket()
}
