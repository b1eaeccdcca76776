package proto

import (
	"fmt"
	"strings"

	"github.com/openxvc/xvcd/internal/constants"
	"github.com/openxvc/xvcd/internal/wire"
)

func (c *Client) decodeGetInfo(headerLen int) (int, []byte, bool, error) {
	info := fmt.Sprintf("xvcServer_v1.1:%d\n", constants.MaxPacketLen)
	return headerLen, []byte(info), false, nil
}

func (c *Client) decodeCapabilities(headerLen int) (int, []byte, bool, error) {
	caps := c.capabilityString()
	reply := wire.EncodeULEB128(nil, uint64(len(caps)))
	reply = append(reply, caps...)
	return headerLen, reply, false, nil
}

func (c *Client) decodeError(headerLen int) (int, []byte, bool, error) {
	msg := c.pendingError
	c.pendingError = ""
	reply := wire.EncodeULEB128(nil, uint64(len(msg)))
	reply = append(reply, msg...)
	return headerLen, reply, false, nil
}

// decodeLock handles lock:/unlock:: a mandatory ULEB128 timeout field
// followed by no payload. The timeout is consumed to stay in sync with the
// stream; this server applies locks immediately rather than blocking for
// it. isLock selects lock: (true) vs unlock: (false) for the
// already-locked/already-unlocked state checks.
func (c *Client) decodeLock(headerLen int, rest []byte, isLock bool, fn func() error) (int, []byte, bool, error) {
	_, n := wire.DecodeULEB128(rest)
	if n == 0 {
		return 0, nil, true, nil
	}

	switch {
	case !c.enableLocking:
		c.SetError("locking is disabled")
	case isLock && c.locked:
		c.SetError("already locked")
	case !isLock && !c.locked:
		c.SetError("already unlocked")
	default:
		if err := fn(); err != nil {
			c.SetError("%v", err)
		} else {
			c.locked = isLock
		}
	}

	return headerLen + n, []byte{c.statusByte()}, false, nil
}

// decodeConfigure parses a ULEB128-length-prefixed, comma-separated list of
// key[+/-/=value] pairs. Recognized keys: "locking" (+enable/-disable) and
// "status" (+enable/-disable); unrecognized keys are ignored.
func (c *Client) decodeConfigure(headerLen int, rest []byte) (int, []byte, bool, error) {
	length, n := wire.DecodeULEB128(rest)
	if n == 0 {
		return 0, nil, true, nil
	}
	if len(rest) < n+int(length) {
		return 0, nil, true, nil
	}

	payload := string(rest[n : n+int(length)])
	for _, kv := range strings.Split(payload, ",") {
		if kv == "" {
			continue
		}
		switch {
		case kv == "locking+" || kv == "+locking":
			c.enableLocking = true
		case kv == "locking-" || kv == "-locking":
			c.enableLocking = false
		case kv == "status+" || kv == "+status":
			c.enableStatus = true
		case kv == "status-" || kv == "-status":
			c.enableStatus = false
		}
	}

	return headerLen + n + int(length), []byte{c.statusByte()}, false, nil
}

func (c *Client) decodeLegacyShift(headerLen int, rest []byte) (int, []byte, bool, error) {
	if len(rest) < 4 {
		return 0, nil, true, nil
	}
	numBits := wire.GetUint32LE(rest[:4])
	nBytes := int((numBits + 7) / 8)
	total := 4 + 2*nBytes
	if len(rest) < total {
		return 0, nil, true, nil
	}

	tmsTdi := rest[4:total]
	tdo, err := c.handlers.ShiftTMSTDI(numBits, tmsTdi)
	if err != nil {
		c.SetError("%v", err)
		tdo = make([]byte, nBytes)
	}

	reply := append([]byte(nil), tdo...)
	if c.enableStatus {
		reply = append(reply, c.statusByte())
	}
	return headerLen + total, reply, false, nil
}

func (c *Client) decodeSetTCK(headerLen int, rest []byte) (int, []byte, bool, error) {
	if len(rest) < 4 {
		return 0, nil, true, nil
	}
	requested := wire.GetUint32LE(rest[:4])

	actual, err := c.handlers.SetTCK(requested)
	if err != nil {
		c.SetError("%v", err)
	}

	reply := make([]byte, 4)
	wire.PutUint32LE(reply, actual)
	if c.enableStatus {
		reply = append(reply, c.statusByte())
	}
	return headerLen + 4, reply, false, nil
}

// decodeRegisterShift handles irshift:/drshift:: three ULEB128 fields
// (numBits, endState, numClocks) followed by ceil(numBits/8) bytes of TDI.
func (c *Client) decodeRegisterShift(headerLen int, rest []byte, register string) (int, []byte, bool, error) {
	vals, n, ok := decodeULEB128Fields(rest, 3)
	if !ok {
		return 0, nil, true, nil
	}
	numBits, endState, numClocks := vals[0], vals[1], vals[2]
	_ = numClocks

	tdiLen := int((numBits + 7) / 8)
	if len(rest) < n+tdiLen {
		return 0, nil, true, nil
	}
	tdi := rest[n : n+tdiLen]

	tdo, err := c.handlers.RegisterShift(register, uint32(numBits), uint32(endState), tdi)
	if err != nil {
		c.SetError("%v", err)
		tdo = make([]byte, tdiLen)
	}

	reply := append([]byte(nil), tdo...)
	reply = append(reply, c.statusByte())
	return headerLen + n + tdiLen, reply, false, nil
}

// decodeState handles state:: three ULEB128 fields (endState, numClocks,
// reserved); no payload, status byte reply only.
func (c *Client) decodeState(headerLen int, rest []byte) (int, []byte, bool, error) {
	vals, n, ok := decodeULEB128Fields(rest, 3)
	if !ok {
		return 0, nil, true, nil
	}
	endState, numClocks := vals[0], vals[1]

	if err := c.handlers.State(uint32(endState), uint32(numClocks)); err != nil {
		c.SetError("%v", err)
	}

	return headerLen + n, []byte{c.statusByte()}, false, nil
}

// decodeMemRead handles mrd:: three ULEB128 fields (addr, numBytes, width);
// no payload, reply is the read data followed by a status byte.
func (c *Client) decodeMemRead(headerLen int, rest []byte) (int, []byte, bool, error) {
	vals, n, ok := decodeULEB128Fields(rest, 3)
	if !ok {
		return 0, nil, true, nil
	}
	addr, numBytes := vals[0], vals[1]

	data, err := c.handlers.MemRead(addr, uint32(numBytes))
	if err != nil {
		c.SetError("%v", err)
		data = make([]byte, numBytes)
	}

	reply := append([]byte(nil), data...)
	reply = append(reply, c.statusByte())
	return headerLen + n, reply, false, nil
}

// decodeMemWrite handles mwr:: three ULEB128 fields (addr, numBytes,
// width) followed by numBytes bytes of payload; reply is a status byte.
func (c *Client) decodeMemWrite(headerLen int, rest []byte) (int, []byte, bool, error) {
	vals, n, ok := decodeULEB128Fields(rest, 3)
	if !ok {
		return 0, nil, true, nil
	}
	addr, numBytes := vals[0], vals[1]

	if len(rest) < n+int(numBytes) {
		return 0, nil, true, nil
	}
	data := rest[n : n+int(numBytes)]

	if err := c.handlers.MemWrite(addr, data); err != nil {
		c.SetError("%v", err)
	}

	return headerLen + n + int(numBytes), []byte{c.statusByte()}, false, nil
}

// decodeIDPC handles idpc:: ULEB128 flags, ULEB128 byte count, then that
// many bytes of packet payload handed to the DMA engine's ingress path.
// Reply is a status byte only.
func (c *Client) decodeIDPC(headerLen int, rest []byte) (int, []byte, bool, error) {
	vals, n, ok := decodeULEB128Fields(rest, 2)
	if !ok {
		return 0, nil, true, nil
	}
	_, numBytes := vals[0], vals[1]

	if len(rest) < n+int(numBytes) {
		return 0, nil, true, nil
	}
	packet := rest[n : n+int(numBytes)]

	if err := c.handlers.IDPC(packet); err != nil {
		c.SetError("%v", err)
	} else {
		c.observer.ObservePacketSent(uint64(len(packet)))
	}

	return headerLen + n + int(numBytes), []byte{c.statusByte()}, false, nil
}

// decodeEDPC handles edpc:: ULEB128 flags, no payload. The reply is the
// engine's next received packet, ULEB128-length-prefixed since its size is
// determined by the DMA engine rather than the client, followed by a status
// byte.
func (c *Client) decodeEDPC(headerLen int, rest []byte) (int, []byte, bool, error) {
	_, n := wire.DecodeULEB128(rest)
	if n == 0 {
		return 0, nil, true, nil
	}

	packet, err := c.handlers.EDPC()
	if err != nil {
		c.SetError("%v", err)
		packet = nil
	} else {
		c.observer.ObservePacketReceived(uint64(len(packet)))
	}

	reply := wire.EncodeULEB128(nil, uint64(len(packet)))
	reply = append(reply, packet...)
	reply = append(reply, c.statusByte())
	return headerLen + n, reply, false, nil
}
