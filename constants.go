package xvcd

import "github.com/openxvc/xvcd/internal/constants"

// Re-export constants for the public API.
const (
	MaxPacketLen         = constants.MaxPacketLen
	MaxPendingErrorLen   = constants.MaxPendingErrorLen
	DefaultIdcode        = constants.DefaultIdcode
	MaxPacketSize        = constants.MaxPacketSize
	DefaultDescCount     = constants.DefaultDescCount
	DefaultDMARegAddr    = constants.DefaultDMARegAddr
	DefaultDMARegSize    = constants.DefaultDMARegSize
	DefaultBufAddr       = constants.DefaultBufAddr
	DefaultBufSize       = constants.DefaultBufSize
	DefaultTCPPort       = constants.DefaultTCPPort
)
