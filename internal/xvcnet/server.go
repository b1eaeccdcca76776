package xvcnet

import (
	"fmt"
	"net"
	"os"

	"github.com/openxvc/xvcd/internal/logging"
	"github.com/openxvc/xvcd/internal/proto"
	"golang.org/x/sys/unix"
)

// listenBacklog matches the original server's listen(sock, 4) call.
const listenBacklog = 4

// ConnHook lets a caller observe connection lifecycle events (for metrics).
type ConnHook interface {
	ConnectionOpened()
	ConnectionClosed()
}

// Option configures ListenAndServe.
type Option func(*options)

type options struct {
	hook   ConnHook
	logger *logging.Logger
}

// WithConnHook registers a ConnHook invoked on accept/close.
func WithConnHook(h ConnHook) Option {
	return func(o *options) { o.hook = h }
}

// WithLogger overrides the logger used for accept/serve diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ListenAndServe accepts connections on the already-bound lis one at a
// time: each connection is fully served (OpenPort, decode loop, ClosePort)
// before the next Accept, matching the "single cable, one client" model. It
// runs until Accept returns an error (for example after lis.Close() is
// called from another goroutine) and returns that error.
func ListenAndServe(lis net.Listener, handlers *proto.Handlers, clientOpts []proto.ClientOption, opts ...Option) error {
	cfg := &options{logger: logging.Default()}
	for _, o := range opts {
		o(cfg)
	}

	for {
		conn, err := lis.Accept()
		if err != nil {
			return err
		}

		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}

		cfg.logger.Info("xvc connection accepted", "remote", conn.RemoteAddr().String())
		if cfg.hook != nil {
			cfg.hook.ConnectionOpened()
		}

		client := proto.NewClient(conn, handlers, clientOpts...)
		if err := client.Serve(); err != nil {
			cfg.logger.Warn("xvc connection ended", "remote", conn.RemoteAddr().String(), "err", err)
		}
		conn.Close()

		if cfg.hook != nil {
			cfg.hook.ConnectionClosed()
		}
	}
}

// Listen resolves host:port, then creates a listening socket by hand with
// SO_REUSEADDR set and listen(backlog=4), matching spec: create a
// listening stream socket with SO_REUSEADDR, bind, listen(backlog=4).
func Listen(host, port string) (net.Listener, error) {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("xvcnet: resolve %s:%s: %w", host, port, err)
	}

	domain := unix.AF_INET
	if addr.IP != nil && addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("xvcnet: socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("xvcnet: setsockopt SO_REUSEADDR: %w", err)
	}

	var sa unix.Sockaddr
	if domain == unix.AF_INET6 {
		sa6 := &unix.SockaddrInet6{Port: addr.Port}
		if addr.IP != nil {
			copy(sa6.Addr[:], addr.IP.To16())
		}
		sa = sa6
	} else {
		sa4 := &unix.SockaddrInet4{Port: addr.Port}
		if ip4 := addr.IP.To4(); ip4 != nil {
			copy(sa4.Addr[:], ip4)
		}
		sa = sa4
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("xvcnet: bind: %w", err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("xvcnet: listen: %w", err)
	}

	f := os.NewFile(uintptr(fd), "xvc-listener")
	lis, err := net.FileListener(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("xvcnet: FileListener: %w", err)
	}
	return lis, nil
}
