package proto

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/openxvc/xvcd/internal/constants"
	"github.com/openxvc/xvcd/internal/wire"
)

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithIdcode overrides the idcode reported by capabilities: when the
// memory capability is advertised.
func WithIdcode(idcode uint32) ClientOption {
	return func(c *Client) { c.idcode = idcode }
}

// Observer receives per-verb and per-packet instrumentation as Serve runs.
// Its method set mirrors the root package's metrics Observer so one
// concrete type can satisfy both without an adapter layer.
type Observer interface {
	ObserveVerb(verb string, latencyNs uint64, success bool)
	ObservePacketSent(bytes uint64)
	ObservePacketReceived(bytes uint64)
	ObserveProtocolError()
}

type noOpObserver struct{}

func (noOpObserver) ObserveVerb(string, uint64, bool) {}
func (noOpObserver) ObservePacketSent(uint64)         {}
func (noOpObserver) ObservePacketReceived(uint64)     {}
func (noOpObserver) ObserveProtocolError()            {}

// WithObserver registers an Observer that records verb dispatch, DPC
// packet traffic, and protocol errors as Serve runs. If omitted, a no-op
// observer is used.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) { c.observer = o }
}

// Client holds per-connection protocol state: the sliding receive buffer,
// the handler table, and the locking/status/pending-error state machine
// described by the v1.1 protocol.
type Client struct {
	conn     net.Conn
	handlers *Handlers
	idcode   uint32
	observer Observer

	buf    []byte
	bufLen int

	locked        bool
	enableLocking bool
	enableStatus  bool
	pendingError  string
}

// NewClient wraps conn in a protocol Client using the given handler table.
func NewClient(conn net.Conn, handlers *Handlers, opts ...ClientOption) *Client {
	c := &Client{
		conn:     conn,
		handlers: handlers,
		idcode:   constants.DefaultIdcode,
		observer: noOpObserver{},
		buf:      make([]byte, constants.MaxPacketLen),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetError stashes a bounded, formatted message for the next error: query,
// matching xvcserver_set_error's truncation behavior.
func (c *Client) SetError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if len(msg) > constants.MaxPendingErrorLen {
		msg = msg[:constants.MaxPendingErrorLen]
	}
	c.pendingError = msg
}

func (c *Client) statusByte() byte {
	if c.pendingError != "" {
		return 1
	}
	return 0
}

// Serve runs the decode/dispatch loop until the connection errors, the
// peer disconnects, or a verb is malformed beyond recovery. It calls
// OpenPort before the loop and ClosePort after, regardless of outcome.
func (c *Client) Serve() error {
	if c.handlers.OpenPort != nil {
		if err := c.handlers.OpenPort(); err != nil {
			return err
		}
	}
	defer func() {
		if c.handlers.ClosePort != nil {
			c.handlers.ClosePort()
		}
	}()

	for {
		consumedTotal := 0
		var reply []byte

		for {
			consumed, out, needMore, err := c.decodeOne(c.buf[consumedTotal:c.bufLen])
			if err != nil {
				return err
			}
			if needMore {
				break
			}
			reply = append(reply, out...)
			consumedTotal += consumed
			if consumedTotal >= c.bufLen {
				break
			}
		}

		if len(reply) > 0 {
			if c.handlers.Flush != nil {
				if err := c.handlers.Flush(); err != nil {
					return err
				}
			}
			if _, err := c.conn.Write(reply); err != nil {
				return err
			}
		}

		remaining := c.bufLen - consumedTotal
		copy(c.buf, c.buf[consumedTotal:c.bufLen])
		c.bufLen = remaining

		if c.bufLen >= len(c.buf) {
			return fmt.Errorf("proto: verb exceeds max packet length %d", constants.MaxPacketLen)
		}

		n, err := c.conn.Read(c.buf[c.bufLen:])
		if n == 0 && errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		c.bufLen += n
	}
}

// decodeOne attempts to decode exactly one verb from the front of buf. It
// returns the number of bytes consumed and the reply bytes to send on
// success, needMore=true if buf doesn't yet hold a complete verb, or a
// non-nil error for a malformed or unrecognized verb.
func (c *Client) decodeOne(buf []byte) (consumed int, reply []byte, needMore bool, err error) {
	window := len(buf)
	if window > constants.VerbScanWindow {
		window = constants.VerbScanWindow
	}

	idx := -1
	for i := 0; i < window; i++ {
		if buf[i] == ':' {
			idx = i
			break
		}
	}
	if idx < 0 {
		if len(buf) < constants.VerbScanWindow {
			return 0, nil, true, nil
		}
		c.observer.ObserveProtocolError()
		return 0, nil, false, fmt.Errorf("proto: no verb terminator within %d bytes", constants.VerbScanWindow)
	}

	verb := string(buf[:idx+1])
	headerLen := idx + 1
	rest := buf[headerLen:]

	start := time.Now()
	consumed, reply, needMore, err = c.dispatch(verb, headerLen, rest)
	if needMore {
		return consumed, reply, needMore, err
	}
	if err != nil {
		c.observer.ObserveProtocolError()
		return consumed, reply, needMore, err
	}
	c.observer.ObserveVerb(verb, uint64(time.Since(start)), c.pendingError == "")
	return consumed, reply, needMore, err
}

// dispatch matches verb against the handler table and decodes its
// arguments. A verb whose handler-table slot is nil has no capability
// behind it and is treated exactly like an unrecognized verb string:
// protocol error, not a handler-error status reply.
func (c *Client) dispatch(verb string, headerLen int, rest []byte) (consumed int, reply []byte, needMore bool, err error) {
	switch verb {
	case "getinfo:":
		return c.decodeGetInfo(headerLen)
	case "capabilities:":
		return c.decodeCapabilities(headerLen)
	case "configure:":
		return c.decodeConfigure(headerLen, rest)
	case "error:":
		return c.decodeError(headerLen)
	case "lock:":
		if c.handlers.Lock == nil {
			return 0, nil, false, fmt.Errorf("proto: unknown verb %q", verb)
		}
		return c.decodeLock(headerLen, rest, true, c.handlers.Lock)
	case "unlock:":
		if c.handlers.Unlock == nil {
			return 0, nil, false, fmt.Errorf("proto: unknown verb %q", verb)
		}
		return c.decodeLock(headerLen, rest, false, c.handlers.Unlock)
	case "shift:":
		if c.handlers.ShiftTMSTDI == nil {
			return 0, nil, false, fmt.Errorf("proto: unknown verb %q", verb)
		}
		return c.decodeLegacyShift(headerLen, rest)
	case "settck:":
		if c.handlers.SetTCK == nil {
			return 0, nil, false, fmt.Errorf("proto: unknown verb %q", verb)
		}
		return c.decodeSetTCK(headerLen, rest)
	case "irshift:":
		if c.handlers.RegisterShift == nil {
			return 0, nil, false, fmt.Errorf("proto: unknown verb %q", verb)
		}
		return c.decodeRegisterShift(headerLen, rest, "IR")
	case "drshift:":
		if c.handlers.RegisterShift == nil {
			return 0, nil, false, fmt.Errorf("proto: unknown verb %q", verb)
		}
		return c.decodeRegisterShift(headerLen, rest, "DR")
	case "state:":
		if c.handlers.State == nil {
			return 0, nil, false, fmt.Errorf("proto: unknown verb %q", verb)
		}
		return c.decodeState(headerLen, rest)
	case "mrd:":
		if c.handlers.MemRead == nil {
			return 0, nil, false, fmt.Errorf("proto: unknown verb %q", verb)
		}
		return c.decodeMemRead(headerLen, rest)
	case "mwr:":
		if c.handlers.MemWrite == nil {
			return 0, nil, false, fmt.Errorf("proto: unknown verb %q", verb)
		}
		return c.decodeMemWrite(headerLen, rest)
	case "idpc:":
		if c.handlers.IDPC == nil {
			return 0, nil, false, fmt.Errorf("proto: unknown verb %q", verb)
		}
		return c.decodeIDPC(headerLen, rest)
	case "edpc:":
		if c.handlers.EDPC == nil {
			return 0, nil, false, fmt.Errorf("proto: unknown verb %q", verb)
		}
		return c.decodeEDPC(headerLen, rest)
	default:
		return 0, nil, false, fmt.Errorf("proto: unknown verb %q", verb)
	}
}

// decodeULEB128Fields decodes n consecutive ULEB128 values from the front
// of buf. ok is false if buf does not yet hold n complete encodings.
func decodeULEB128Fields(buf []byte, n int) (vals []uint64, consumed int, ok bool) {
	vals = make([]uint64, 0, n)
	off := 0
	for i := 0; i < n; i++ {
		v, m := wire.DecodeULEB128(buf[off:])
		if m == 0 {
			return nil, 0, false
		}
		vals = append(vals, v)
		off += m
	}
	return vals, off, true
}

func (c *Client) capabilityString() string {
	var feats []string
	if c.handlers.HasLocking() {
		feats = append(feats, "locking")
	}
	if c.handlers.RegisterShift != nil && c.handlers.State != nil {
		feats = append(feats, "state-aware")
	}
	if c.handlers.HasMemory() {
		feats = append(feats, "memory")
		feats = append(feats, "idcode="+strconv.FormatUint(uint64(c.idcode), 10))
	}
	feats = append(feats, "status")
	return strings.Join(feats, ",")
}
