// Package constants holds fixed sizes and defaults shared by the protocol
// engine, DMA engine, and server entry points.
package constants

import "time"

// Protocol engine constants.
const (
	// MaxPacketLen bounds the protocol engine's sliding receive buffer.
	MaxPacketLen = 10000

	// VerbScanWindow is how many bytes decodeOne scans ahead looking for
	// the ':' terminating a verb token before giving up.
	VerbScanWindow = 30

	// MaxPendingErrorLen bounds the text stashed by SetError for the next
	// error: query.
	MaxPendingErrorLen = 1024

	// DefaultIdcode is reported by capabilities: when a binding doesn't
	// override it.
	DefaultIdcode = 2315268243
)

// DMA engine / descriptor ring constants (component B/C), mirroring the
// hardware layout of the DPC transport.
const (
	// DescSize is the fixed byte size of one descriptor record.
	DescSize = 0x40

	// DefaultPacketBufSize is the default payload size carried by one
	// packet buffer slot.
	DefaultPacketBufSize = 0x410

	// MaxPacketSize is the largest payload IDPC/EDPC will accept.
	MaxPacketSize = 1032

	// DefaultDescCount is the number of descriptors (and paired packet
	// buffers) per ring side (ingress, egress) when none is configured.
	DefaultDescCount = 4

	// SendPollLimit bounds how many times SendPacket polls a descriptor's
	// status register before giving up.
	SendPollLimit = 1000

	// ReceivePollLimitQuiet bounds how many times ReceiveFastPacket retries a
	// PollFastPacket miss in non-verbose mode.
	ReceivePollLimitQuiet = 1

	// ReceivePollLimitVerbose is the retry bound used in verbose mode.
	ReceivePollLimitVerbose = 10
)

// Default physical memory layout (component F hardware surface): these are
// the addresses a DPC-flavored binary targets absent explicit CLI flags.
const (
	DefaultDMARegAddr = 0xA4000000
	DefaultDMARegSize = 0x1000
	DefaultBufAddr    = 0x7FF00000
	DefaultBufSize    = 0x40000
)

// Server timing constants.
const (
	// DMASetupPollInterval is a polling interval for Setup's CNTL/STS
	// waits. Setup does not use it: its polls run back-to-back, bounded only
	// by DMASetupPollLimit.
	DMASetupPollInterval = 1 * time.Millisecond

	// DMASetupPollLimit bounds the number of polls in Setup before it gives
	// up and returns an error.
	DMASetupPollLimit = 1000

	// AcceptRetryDelay is a backoff delay for Accept errors. The server loop
	// does not use it: xvcnet.ListenAndServe returns on the first Accept
	// error without retrying.
	AcceptRetryDelay = 100 * time.Millisecond
)

// DefaultTCPPort is the port in the URL built by xvcd.DefaultParams. The
// command-line binaries take their port from the -s transport URL instead.
const DefaultTCPPort = 2542
