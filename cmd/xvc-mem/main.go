// Command xvc-mem serves the Xilinx Virtual Cable memory capability
// (mrd:/mwr:) against a mapped debug hub register window.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openxvc/xvcd"
	"github.com/openxvc/xvcd/internal/logging"
	"github.com/openxvc/xvcd/internal/membind"
	"github.com/openxvc/xvcd/internal/regio"
	"github.com/openxvc/xvcd/internal/xvcnet"
)

func main() {
	var (
		url     = flag.String("s", "tcp::2542", "transport:host:port to listen on")
		addr    = flag.Uint64("addr", uint64(xvcd.DefaultDMARegAddr), "physical base address of the debug hub window")
		size    = flag.Uint64("size", uint64(xvcd.DefaultDMARegSize), "size in bytes of the mapped register window")
		idcode  = flag.Uint64("idcode", uint64(xvcd.DefaultIdcode), "idcode reported by capabilities:")
		verbose = flag.Bool("v", false, "verbose output")
		quiet   = flag.Bool("quiet", false, "suppress all but error output")
	)
	flag.BoolVar(verbose, "verbose", false, "verbose output (long form of -v)")
	flag.Parse()

	logConfig := logging.DefaultConfig()
	switch {
	case *quiet:
		logConfig.Level = logging.LevelError
	case *verbose:
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	_, host, port, err := xvcnet.ParseURL(*url)
	if err != nil {
		logger.Error("invalid transport url", "url", *url, "error", err)
		os.Exit(int(xvcd.ExitInvalidTransport))
	}

	window, err := regio.Open(uintptr(*addr), int(*size))
	if err != nil {
		logger.Error("failed to map debug hub window", "addr", fmt.Sprintf("0x%x", *addr), "error", err)
		os.Exit(int(xvcd.ExitHsdpOpenFailed))
	}
	defer window.Close()

	binding := membind.New(window, uint32(*idcode))
	params := xvcd.DefaultParams(binding.Handlers())
	params.URL = "tcp:" + host + ":" + port
	params.Idcode = binding.Idcode()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := xvcd.CreateAndServe(ctx, params, &xvcd.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(int(xvcd.ExitSocketCreation))
	}

	logger.Info("xvc-mem listening", "addr", server.Addr(), "idcode", fmt.Sprintf("0x%x", binding.Idcode()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if err := xvcd.StopAndDelete(context.Background(), server); err != nil {
		logger.Error("error stopping server", "error", err)
	}
}
