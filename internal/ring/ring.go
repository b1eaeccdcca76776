// Package ring implements the cyclic descriptor ring used by the DMA
// engine: a fixed array of fixed-size descriptor records, each paired with
// a packet buffer slot, chained so that index i's NEXT field points at the
// AXI address of descriptor (i+1) mod count.
package ring

import (
	"github.com/openxvc/xvcd/internal/constants"
	"github.com/openxvc/xvcd/internal/regio"
)

// Descriptor field byte offsets within one DescSize record.
const (
	offNext    = 0x00
	offNextMSB = 0x04
	offBuff    = 0x08
	offBuffMSB = 0x0C
	offCntl    = 0x18
	offSts     = 0x1C
	offApp0    = 0x20
)

// Status bits (component B data model).
const (
	StsDone     = 1 << 31
	StsErrShift = 28
	StsErrMask  = 0x7 << StsErrShift
	StsLenMask  = 0x03ffffff
)

// Cntl encodes a fixed record-type tag plus the requested transfer size.
const cntlBase = 0x0C000000

// Region is one quadrant of the DMA buffer: either a descriptor array or a
// packet-buffer array, ingress or egress.
type Region struct {
	AxiBase    uint64
	Host       *regio.Window // mapped view starting at this region's offset
	BufferSize int
	PacketSize int
	Last       int
}

// Next returns the index of the descriptor that should receive the next
// transfer, wrapping to 0 when the following slot would run past the end
// of the buffer rather than via modulo, mirroring the source's HSDP_NEXT.
func Next(r *Region) int {
	if (r.Last+1)*r.PacketSize < r.BufferSize {
		return r.Last + 1
	}
	return 0
}

// Count returns how many descriptor/packet slots the region holds.
func Count(r *Region) int {
	return r.BufferSize / r.PacketSize
}

// AxiAddr returns the bus address of slot index within the region.
func AxiAddr(r *Region, index int) uint64 {
	return r.AxiBase + uint64(index*r.PacketSize)
}

func descOffset(index int) uintptr {
	return uintptr(index * constants.DescSize)
}

// descriptor field accessors, operating on a descriptor Region's Host
// window at the given slot index.

func Next32(r *Region, index int) uint32    { return r.Host.Load32(descOffset(index) + offNext) }
func SetNext32(r *Region, index int, v uint32) { r.Host.Store32(descOffset(index)+offNext, v) }

func NextMSB(r *Region, index int) uint32     { return r.Host.Load32(descOffset(index) + offNextMSB) }
func SetNextMSB(r *Region, index int, v uint32) { r.Host.Store32(descOffset(index)+offNextMSB, v) }

func Buff(r *Region, index int) uint32     { return r.Host.Load32(descOffset(index) + offBuff) }
func SetBuff(r *Region, index int, v uint32) { r.Host.Store32(descOffset(index)+offBuff, v) }

func BuffMSB(r *Region, index int) uint32     { return r.Host.Load32(descOffset(index) + offBuffMSB) }
func SetBuffMSB(r *Region, index int, v uint32) { r.Host.Store32(descOffset(index)+offBuffMSB, v) }

func Cntl(r *Region, index int) uint32     { return r.Host.Load32(descOffset(index) + offCntl) }
func SetCntl(r *Region, index int, size uint32) {
	r.Host.Store32(descOffset(index)+offCntl, cntlBase|(size&StsLenMask))
}

func Sts(r *Region, index int) uint32      { return r.Host.Load32(descOffset(index) + offSts) }
func ClearSts(r *Region, index int)        { r.Host.Store32(descOffset(index)+offSts, 0) }

func App0(r *Region, index int) uint32     { return r.Host.Load32(descOffset(index) + offApp0) }
func SetApp0(r *Region, index int, v uint32) { r.Host.Store32(descOffset(index)+offApp0, v) }

// StsDone32 reports the done bit of a descriptor's status register.
func StsDone32(sts uint32) bool { return sts&StsDone != 0 }

// StsError32 extracts the 3-bit error code from a descriptor's status
// register; 0 means no error.
func StsError32(sts uint32) uint32 { return (sts & StsErrMask) >> StsErrShift }

// StsLen32 extracts the transferred byte count from a descriptor's status
// register.
func StsLen32(sts uint32) uint32 { return sts & StsLenMask }

// Initialize zeros the descriptor buffer, then chains descRing's NEXT
// pointers to form a cycle over pktRing's buffers and zeros every status
// register. When doneInitially is true (used for the ingress ring, whose
// slots are immediately claimable by SendPacket), every descriptor's STS is
// seeded with the done bit set instead.
func Initialize(descRing, pktRing *Region, doneInitially bool) {
	clear(descRing.Host.Bytes(0, descRing.BufferSize))
	count := Count(descRing)
	for i := 0; i < count; i++ {
		next := i + 1
		if next >= count {
			next = 0
		}
		nextAddr := AxiAddr(descRing, next)
		SetNext32(descRing, i, uint32(nextAddr))
		SetNextMSB(descRing, i, uint32(nextAddr>>32))

		buffAddr := AxiAddr(pktRing, i)
		SetBuff(descRing, i, uint32(buffAddr))
		SetBuffMSB(descRing, i, uint32(buffAddr>>32))

		SetCntl(descRing, i, uint32(pktRing.PacketSize))
		if doneInitially {
			descRing.Host.Store32(descOffset(i)+offSts, StsDone)
		} else {
			ClearSts(descRing, i)
		}
		SetApp0(descRing, i, 0)
	}
	descRing.Last = count - 1
	pktRing.Last = count - 1
}
