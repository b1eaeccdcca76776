package main

import (
	"fmt"

	"github.com/openxvc/xvcd/internal/jtagbind"
	"github.com/openxvc/xvcd/internal/logging"
)

// verifyTestLens mirrors the original driver harness's test_lens array: one
// pass at 32 bits is enough to catch a broken loopback wiring without the
// longer sweep the original harness commented out.
var verifyTestLens = []uint32{32}

const verifyPattern = "abcdefgHIJKLMOP"

// runLoopbackVerify shifts a known TDI pattern through binding with TMS
// held high (bypass) and checks that TDO echoes TDI bit-for-bit, the way a
// loopback-wired JTAG chain would. It logs a line per test length and
// returns false on the first mismatch.
func runLoopbackVerify(logger *logging.Logger, binding *jtagbind.Binding) bool {
	shift := binding.Handlers().ShiftTMSTDI

	pattern := []byte(verifyPattern)
	for _, numBits := range verifyTestLens {
		nBytes := (numBits + 7) / 8
		tms := make([]byte, nBytes)
		for i := range tms {
			tms[i] = 0xff
		}
		tdi := make([]byte, nBytes)
		for i := range tdi {
			tdi[i] = pattern[i%len(pattern)]
		}

		tdo, err := shift(numBits, append(tms, tdi...))
		if err != nil {
			logger.Error("verify: shift failed", "bits", numBits, "error", err)
			return false
		}

		if !bitsEqual(tdi, tdo, numBits) {
			logger.Error("verify: TDO did not match TDI", "bits", numBits,
				"tdi", fmt.Sprintf("%x", tdi), "tdo", fmt.Sprintf("%x", tdo))
			return false
		}
		logger.Info("verify: test passed", "bits", numBits)
		rotate(pattern)
	}
	return true
}

func bitsEqual(tdi, tdo []byte, numBits uint32) bool {
	for bit := uint32(0); bit < numBits; bit += 8 {
		nbits := numBits - bit
		if nbits > 8 {
			nbits = 8
		}
		mask := byte(0xFF) >> (8 - nbits)
		idx := bit / 8
		if tdi[idx]&mask != tdo[idx]&mask {
			return false
		}
	}
	return true
}

func rotate(pattern []byte) {
	if len(pattern) == 0 {
		return
	}
	c := pattern[0]
	copy(pattern, pattern[1:])
	pattern[len(pattern)-1] = c
}
