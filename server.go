// Package xvcd provides the main API for running an XVC (Xilinx Virtual
// Cable) server: binding a proto.Handlers table supplied by a flavor
// binding (JTAG, memory, or DPC) to a TCP listener and serving one
// connection at a time.
package xvcd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/openxvc/xvcd/internal/logging"
	"github.com/openxvc/xvcd/internal/proto"
	"github.com/openxvc/xvcd/internal/xvcnet"
)

// Server represents one running XVC listener.
type Server struct {
	URL string

	ctx    context.Context
	cancel context.CancelFunc

	lis      net.Listener
	handlers *proto.Handlers
	started  bool

	metrics  *Metrics
	observer Observer
}

// Params contains parameters for creating an XVC server.
type Params struct {
	// URL is a "[transport:]host:port" server address, e.g. "tcp:0.0.0.0:2542".
	URL string

	// Handlers is the capability table supplied by a flavor binding
	// (jtagbind, membind, dpcbind).
	Handlers *proto.Handlers

	// Idcode is reported by capabilities: when Handlers advertises memory.
	Idcode uint32
}

// DefaultParams returns default server parameters bound to the given
// handler table on the default TCP port.
func DefaultParams(handlers *proto.Handlers) Params {
	return Params{
		URL:      fmt.Sprintf("tcp:0.0.0.0:%d", DefaultTCPPort),
		Handlers: handlers,
		Idcode:   DefaultIdcode,
	}
}

// Options contains additional options for server creation.
type Options struct {
	// Context for cancellation (if nil, uses context.Background()).
	Context context.Context

	// Logger for accept/serve diagnostics (if nil, uses the package default).
	Logger *logging.Logger

	// Observer for metrics collection (if nil, uses a MetricsObserver).
	Observer Observer
}

// connHook adapts Observer's Metrics sink to xvcnet.ConnHook.
type connHook struct{ metrics *Metrics }

func (h connHook) ConnectionOpened() { h.metrics.ConnectionOpened() }
func (h connHook) ConnectionClosed() { h.metrics.ConnectionClosed() }

// CreateAndServe binds a listener per params.URL and serves connections in
// a background goroutine until the context is cancelled or StopAndDelete is
// called. This is the main entry point for running an XVC server.
func CreateAndServe(ctx context.Context, params Params, options *Options) (*Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if options == nil {
		options = &Options{}
	}
	if options.Context != nil {
		ctx = options.Context
	}

	_, host, port, err := xvcnet.ParseURL(params.URL)
	if err != nil {
		return nil, WrapError("ParseURL", err)
	}

	lis, err := xvcnet.Listen(host, port)
	if err != nil {
		return nil, WrapError("Listen", err)
	}

	metrics := NewMetrics()
	var observer Observer = NewMetricsObserver(metrics)
	if options.Observer != nil {
		observer = options.Observer
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.Default()
	}

	s := &Server{
		URL:      params.URL,
		lis:      lis,
		handlers: params.Handlers,
		metrics:  metrics,
		observer: observer,
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	clientOpts := []proto.ClientOption{
		proto.WithIdcode(params.Idcode),
		proto.WithObserver(observer),
	}

	go func() {
		err := xvcnet.ListenAndServe(lis, params.Handlers, clientOpts,
			xvcnet.WithConnHook(connHook{metrics: metrics}),
			xvcnet.WithLogger(logger),
		)
		if err != nil {
			logger.Info("xvc server stopped", "url", params.URL, "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		lis.Close()
	}()

	logger.Info("xvc server listening", "url", params.URL)

	return s, nil
}

// State represents the current state of the server.
type State string

const (
	StateCreated State = "created"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// State returns the current state of the server.
func (s *Server) State() State {
	if s == nil {
		return StateStopped
	}
	if !s.started {
		return StateCreated
	}
	select {
	case <-s.ctx.Done():
		return StateStopped
	default:
		return StateRunning
	}
}

// IsRunning returns true if the server is currently accepting connections.
func (s *Server) IsRunning() bool {
	return s.State() == StateRunning
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr {
	if s == nil || s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// Info summarizes a server's configuration and state.
type Info struct {
	URL     string
	Addr    string
	State   State
	Running bool
}

// Info returns comprehensive information about the server.
func (s *Server) Info() Info {
	if s == nil {
		return Info{}
	}
	addr := ""
	if a := s.Addr(); a != nil {
		addr = a.String()
	}
	state := s.State()
	return Info{URL: s.URL, Addr: addr, State: state, Running: state == StateRunning}
}

// Metrics returns the server's metrics instance.
func (s *Server) Metrics() *Metrics {
	if s == nil {
		return nil
	}
	return s.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of server metrics.
func (s *Server) MetricsSnapshot() MetricsSnapshot {
	if s == nil || s.metrics == nil {
		return MetricsSnapshot{}
	}
	return s.metrics.Snapshot()
}

// StopAndDelete stops the server's listener and cancels its context. This
// should be called to cleanly shut down an XVC server.
func StopAndDelete(ctx context.Context, s *Server) error {
	if s == nil {
		return NewError("StopAndDelete", ErrCodeInvalidParameters, "nil server")
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.metrics != nil {
		s.metrics.Stop()
	}

	// Give the accept-loop goroutine a moment to observe cancellation and
	// the listener close before returning.
	time.Sleep(10 * time.Millisecond)

	s.started = false
	return nil
}
