// Package dma drives the AXI-DMA register block backing the DPC transport:
// ring setup, fast-packet send, and fast-packet receive/poll.
package dma

import (
	"fmt"

	"github.com/openxvc/xvcd/internal/constants"
	"github.com/openxvc/xvcd/internal/regio"
	"github.com/openxvc/xvcd/internal/ring"
)

// Register block layout: ingress registers start at +0x00, egress at
// +0x30; each side has the same six registers.
const (
	regCntl    = 0x00
	regSts     = 0x04
	regCur     = 0x08
	regCurMSB  = 0x0C
	regTail    = 0x10
	regTailMSB = 0x14

	ingressBase = 0x00
	egressBase  = 0x30
)

// CNTL/STS bit layouts used by Setup.
const (
	cntlReset      = 0x00010004
	cntlRun        = 0x00014003
	cntlEgressInit = 0x00010003
	stsRunning     = 1 << 0
	cntlResetBit   = 1 << 2
)

// Engine owns the register window and the four ring regions (ingress
// descriptors, ingress packets, egress descriptors, egress packets) carved
// from one DMA-coherent buffer window.
type Engine struct {
	regs *regio.Window

	ingressDesc *ring.Region
	ingressPkt  *ring.Region
	egressDesc  *ring.Region
	egressPkt   *ring.Region

	verbose bool
}

// NewEngine lays out the four ring regions within bufWindow: ingress
// descriptors, egress descriptors, ingress packets, egress packets, in that
// order, each sized for descCount slots.
func NewEngine(regs, bufWindow *regio.Window, descCount int) *Engine {
	descSpan := descCount * constants.DescSize
	pktSpan := descCount * constants.DefaultPacketBufSize

	ingressDescOff := uintptr(0)
	egressDescOff := ingressDescOff + uintptr(descSpan)
	ingressPktOff := egressDescOff + uintptr(descSpan)
	egressPktOff := ingressPktOff + uintptr(pktSpan)

	mk := func(off uintptr, span int, ps int) *ring.Region {
		return &ring.Region{
			AxiBase:    uint64(off), // physical buffer base is added by the caller's absolute addressing scheme
			Host:       regio.OpenBytes(bufWindow.Bytes(off, span)),
			BufferSize: span,
			PacketSize: ps,
		}
	}

	return &Engine{
		regs:        regs,
		ingressDesc: mk(ingressDescOff, descSpan, constants.DescSize),
		egressDesc:  mk(egressDescOff, descSpan, constants.DescSize),
		ingressPkt:  mk(ingressPktOff, pktSpan, constants.DefaultPacketBufSize),
		egressPkt:   mk(egressPktOff, pktSpan, constants.DefaultPacketBufSize),
	}
}

// SetVerbose toggles the extra receive-retry budget used by
// ReceiveFastPacket, mirroring the CLI --verbose flag.
func (e *Engine) SetVerbose(v bool) { e.verbose = v }

func (e *Engine) reg(side uintptr, off uintptr) uintptr { return side + off }

// Setup programs the ingress and egress DMA rings and starts both engines,
// mirroring the fixed register sequence and magic control values used to
// bring the hardware up.
func (e *Engine) Setup() error {
	ring.Initialize(e.ingressDesc, e.ingressPkt, true)
	ring.Initialize(e.egressDesc, e.egressPkt, false)

	e.regs.Store32(e.reg(ingressBase, regCntl), cntlReset)
	for i := 0; ; i++ {
		if e.regs.Load32(e.reg(ingressBase, regCntl))&cntlResetBit == 0 {
			break
		}
		if i >= constants.DMASetupPollLimit {
			return fmt.Errorf("dma: ingress reset did not complete")
		}
	}

	ingressAddr := ring.AxiAddr(e.ingressDesc, 0)
	e.regs.Store64(e.reg(ingressBase, regCur), ingressAddr)
	e.regs.Barrier()
	e.regs.Store32(e.reg(ingressBase, regCntl), cntlRun)

	egressAddr := ring.AxiAddr(e.egressDesc, 0)
	e.regs.Store64(e.reg(egressBase, regCur), egressAddr)
	e.regs.Store32(e.reg(egressBase, regCntl), cntlEgressInit)

	for i := 0; ; i++ {
		if e.regs.Load32(e.reg(egressBase, regSts))&stsRunning != 0 {
			break
		}
		if i >= constants.DMASetupPollLimit {
			return fmt.Errorf("dma: egress engine did not start")
		}
	}

	last := ring.AxiAddr(e.egressDesc, ring.Count(e.egressDesc)-1)
	e.regs.Store64(e.reg(egressBase, regTail), last)

	return nil
}

// Check reads both sides' STS registers and reports the error field of the
// first side (ingress, then egress) whose error field is nonzero, or nil if
// both sides look healthy.
func (e *Engine) Check() error {
	ists := e.regs.Load32(e.reg(ingressBase, regSts))
	ests := e.regs.Load32(e.reg(egressBase, regSts))
	if ring.StsError32(ists) != 0 {
		return fmt.Errorf("dma: ingress engine status error 0x%x", ring.StsError32(ists))
	}
	if ring.StsError32(ests) != 0 {
		return fmt.Errorf("dma: egress engine status error 0x%x", ring.StsError32(ests))
	}
	return nil
}

// DumpDMA renders the ingress/egress register snapshot for diagnostics.
func (e *Engine) DumpDMA() string {
	return fmt.Sprintf(
		"ingress cntl=0x%08x sts=0x%08x cur=0x%016x tail=0x%016x\n"+
			"egress  cntl=0x%08x sts=0x%08x cur=0x%016x tail=0x%016x",
		e.regs.Load32(e.reg(ingressBase, regCntl)), e.regs.Load32(e.reg(ingressBase, regSts)),
		e.regs.Load64(e.reg(ingressBase, regCur)), e.regs.Load64(e.reg(ingressBase, regTail)),
		e.regs.Load32(e.reg(egressBase, regCntl)), e.regs.Load32(e.reg(egressBase, regSts)),
		e.regs.Load64(e.reg(egressBase, regCur)), e.regs.Load64(e.reg(egressBase, regTail)),
	)
}

// DumpDescriptor renders one descriptor's fields for diagnostics.
func DumpDescriptor(r *ring.Region, index int) string {
	sts := ring.Sts(r, index)
	return fmt.Sprintf("desc[%d] next=0x%x buff=0x%x cntl=0x%x sts=0x%x (done=%v err=%d len=%d)",
		index, ring.Next32(r, index), ring.Buff(r, index), ring.Cntl(r, index), sts,
		ring.StsDone32(sts), ring.StsError32(sts), ring.StsLen32(sts))
}
