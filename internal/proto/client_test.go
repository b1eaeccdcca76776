package proto

import (
	"net"
	"testing"
	"time"

	"github.com/openxvc/xvcd/internal/wire"
	"github.com/stretchr/testify/require"
)

// serveOnPipe starts handlers.Serve on one end of an in-memory pipe and
// returns the other end for the test to drive as the remote debug tool.
func serveOnPipe(t *testing.T, handlers *Handlers, opts ...ClientOption) (remote net.Conn, done chan error) {
	t.Helper()
	server, client := net.Pipe()
	done = make(chan error, 1)
	c := NewClient(server, handlers, opts...)
	go func() { done <- c.Serve() }()
	t.Cleanup(func() { client.Close() })
	return client, done
}

func writeAndRead(t *testing.T, conn net.Conn, req []byte, replyLen int) []byte {
	t.Helper()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Write(req)
	require.NoError(t, err)

	buf := make([]byte, replyLen)
	_, err = readFull(conn, buf)
	require.NoError(t, err)
	return buf
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestGetInfo(t *testing.T) {
	conn, _ := serveOnPipe(t, &Handlers{})
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Write([]byte("getinfo:"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "xvcServer_v1.1:10000\n", string(buf[:n]))
}

func TestCapabilities(t *testing.T) {
	handlers := &Handlers{
		MemRead:  func(uint64, uint32) ([]byte, error) { return nil, nil },
		MemWrite: func(uint64, []byte) error { return nil },
	}
	conn, _ := serveOnPipe(t, handlers, WithIdcode(0xabcd))
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Write([]byte("capabilities:"))
	require.NoError(t, err)

	buf := make([]byte, 128)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	length, consumed := wire.DecodeULEB128(buf[:n])
	require.NotZero(t, consumed)
	caps := string(buf[consumed : consumed+int(length)])
	require.Contains(t, caps, "memory")
	require.Contains(t, caps, "idcode=43981")
	require.NotContains(t, caps, "state-aware")
}

func TestCapabilitiesStateAwareRequiresBothHandlers(t *testing.T) {
	handlers := &Handlers{
		RegisterShift: func(string, uint32, uint32, []byte) ([]byte, error) { return nil, nil },
		State:         func(uint32, uint32) error { return nil },
	}
	conn, _ := serveOnPipe(t, handlers)
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Write([]byte("capabilities:"))
	require.NoError(t, err)

	buf := make([]byte, 128)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	length, consumed := wire.DecodeULEB128(buf[:n])
	require.NotZero(t, consumed)
	caps := string(buf[consumed : consumed+int(length)])
	require.Contains(t, caps, "state-aware")
}

func lockReq(verb string, timeout uint64) []byte {
	req := []byte(verb)
	return wire.EncodeULEB128(req, timeout)
}

func TestLockUnlock(t *testing.T) {
	locked := false
	handlers := &Handlers{
		Lock:   func() error { locked = true; return nil },
		Unlock: func() error { locked = false; return nil },
	}
	conn, _ := serveOnPipe(t, handlers)
	defer conn.Close()

	cfg := "locking+"
	req := []byte("configure:")
	req = wire.EncodeULEB128(req, uint64(len(cfg)))
	req = append(req, cfg...)
	reply := writeAndRead(t, conn, req, 1)
	require.Equal(t, byte(0), reply[0])

	reply = writeAndRead(t, conn, lockReq("lock:", 0), 1)
	require.Equal(t, byte(0), reply[0])
	require.True(t, locked)

	reply = writeAndRead(t, conn, lockReq("unlock:", 0), 1)
	require.Equal(t, byte(0), reply[0])
	require.False(t, locked)
}

func TestLockDisabledSetsError(t *testing.T) {
	handlers := &Handlers{
		Lock:   func() error { return nil },
		Unlock: func() error { return nil },
	}
	conn, _ := serveOnPipe(t, handlers)
	defer conn.Close()

	reply := writeAndRead(t, conn, lockReq("lock:", 0), 1)
	require.Equal(t, byte(1), reply[0])

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Write([]byte("error:"))
	require.NoError(t, err)
	buf := make([]byte, 128)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	errReply := buf[:n]
	length, consumed := wire.DecodeULEB128(errReply)
	require.NotZero(t, consumed)
	msg := string(errReply[consumed : consumed+int(length)])
	require.Contains(t, msg, "locking is disabled")
}

func TestLockUnsupportedClosesConnection(t *testing.T) {
	conn, done := serveOnPipe(t, &Handlers{})
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Write(lockReq("lock:", 0))
	require.NoError(t, err)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after lock: on a binding without locking")
	}
}

func TestLegacyShift(t *testing.T) {
	handlers := &Handlers{
		ShiftTMSTDI: func(numBits uint32, tmsTdi []byte) ([]byte, error) {
			require.Equal(t, uint32(8), numBits)
			// Echo TDI back as TDO for this test.
			return []byte{tmsTdi[1]}, nil
		},
	}
	conn, _ := serveOnPipe(t, handlers)
	defer conn.Close()

	req := make([]byte, 0, 6+2)
	req = append(req, []byte("shift:")...)
	bitcount := make([]byte, 4)
	wire.PutUint32LE(bitcount, 8)
	req = append(req, bitcount...)
	req = append(req, 0xAA, 0x55) // TMS byte, TDI byte

	reply := writeAndRead(t, conn, req, 1)
	require.Equal(t, byte(0x55), reply[0])
}

func TestMemReadWrite(t *testing.T) {
	mem := make([]byte, 16)
	handlers := &Handlers{
		MemRead: func(addr uint64, n uint32) ([]byte, error) {
			return append([]byte(nil), mem[addr:addr+uint64(n)]...), nil
		},
		MemWrite: func(addr uint64, data []byte) error {
			copy(mem[addr:], data)
			return nil
		},
	}
	conn, _ := serveOnPipe(t, handlers)
	defer conn.Close()

	req := []byte("mwr:")
	req = wire.EncodeULEB128(req, 0) // addr
	req = wire.EncodeULEB128(req, 4) // numBytes
	req = wire.EncodeULEB128(req, 1) // width
	req = append(req, 1, 2, 3, 4)

	reply := writeAndRead(t, conn, req, 1)
	require.Equal(t, byte(0), reply[0])
	require.Equal(t, []byte{1, 2, 3, 4}, mem[:4])

	req = []byte("mrd:")
	req = wire.EncodeULEB128(req, 0)
	req = wire.EncodeULEB128(req, 4)
	req = wire.EncodeULEB128(req, 1)

	reply = writeAndRead(t, conn, req, 5)
	require.Equal(t, []byte{1, 2, 3, 4}, reply[:4])
	require.Equal(t, byte(0), reply[4])
}

func TestConfigureStatusFlag(t *testing.T) {
	handlers := &Handlers{
		SetTCK: func(p uint32) (uint32, error) { return p, nil },
	}
	conn, _ := serveOnPipe(t, handlers)
	defer conn.Close()

	cfg := "status+"
	req := []byte("configure:")
	req = wire.EncodeULEB128(req, uint64(len(cfg)))
	req = append(req, cfg...)
	reply := writeAndRead(t, conn, req, 1)
	require.Equal(t, byte(0), reply[0])

	req2 := []byte("settck:")
	period := make([]byte, 4)
	wire.PutUint32LE(period, 1000)
	req2 = append(req2, period...)

	reply2 := writeAndRead(t, conn, req2, 5)
	require.Equal(t, uint32(1000), wire.GetUint32LE(reply2[:4]))
	require.Equal(t, byte(0), reply2[4])
}

func TestUnknownVerbClosesConnection(t *testing.T) {
	conn, done := serveOnPipe(t, &Handlers{})
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Write([]byte("bogus:"))
	require.NoError(t, err)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after unknown verb")
	}
}

func TestMemReadOnBindingWithoutMemoryClosesConnection(t *testing.T) {
	conn, done := serveOnPipe(t, &Handlers{})
	defer conn.Close()

	req := []byte("mrd:")
	req = wire.EncodeULEB128(req, 0)
	req = wire.EncodeULEB128(req, 4)
	req = wire.EncodeULEB128(req, 1)

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Write(req)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after mrd: on a binding without memory")
	}
}

func TestIDPCEDPC(t *testing.T) {
	var sent []byte
	reply := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	handlers := &Handlers{
		IDPC: func(packet []byte) error {
			sent = append([]byte(nil), packet...)
			return nil
		},
		EDPC: func() ([]byte, error) {
			return reply, nil
		},
	}
	conn, _ := serveOnPipe(t, handlers)
	defer conn.Close()

	req := []byte("idpc:")
	req = wire.EncodeULEB128(req, 0) // flags
	req = wire.EncodeULEB128(req, 4) // numBytes
	req = append(req, 1, 2, 3, 4)

	resp := writeAndRead(t, conn, req, 1)
	require.Equal(t, byte(0), resp[0])
	require.Equal(t, []byte{1, 2, 3, 4}, sent)

	req2 := []byte("edpc:")
	req2 = wire.EncodeULEB128(req2, 0) // flags

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Write(req2)
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	out := buf[:n]
	length, consumed := wire.DecodeULEB128(out)
	require.Equal(t, uint64(len(reply)), length)
	require.Equal(t, reply, out[consumed:consumed+int(length)])
	require.Equal(t, byte(0), out[consumed+int(length)])
}

func TestIDPCUnsupportedClosesConnection(t *testing.T) {
	conn, done := serveOnPipe(t, &Handlers{})
	defer conn.Close()

	req := []byte("idpc:")
	req = wire.EncodeULEB128(req, 0)
	req = wire.EncodeULEB128(req, 0)

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Write(req)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after idpc: on a binding without DPC")
	}
}
