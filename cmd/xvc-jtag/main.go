// Command xvc-jtag serves the Xilinx Virtual Cable protocol against a
// register-based JTAG debug core reachable through a mapped /dev/mem
// window.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openxvc/xvcd"
	"github.com/openxvc/xvcd/internal/jtagbind"
	"github.com/openxvc/xvcd/internal/logging"
	"github.com/openxvc/xvcd/internal/regio"
	"github.com/openxvc/xvcd/internal/xvcnet"
)

func main() {
	var (
		url     = flag.String("s", "tcp::2542", "transport:host:port to listen on")
		addr    = flag.Uint64("addr", uint64(xvcd.DefaultDMARegAddr), "physical base address of the JTAG debug core")
		size    = flag.Uint64("size", 0x1000, "size in bytes of the mapped register window")
		verbose = flag.Bool("v", false, "verbose output")
		quiet   = flag.Bool("quiet", false, "suppress all but error output")
		verify  = flag.Bool("verify", false, "run a loopback self-test against the mapped core instead of serving")
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

	regs, err := regio.Open(uintptr(*addr), int(*size))
	if err != nil {
		logger.Error("failed to map JTAG register window", "addr", fmt.Sprintf("0x%x", *addr), "error", err)
		os.Exit(int(xvcd.ExitHsdpOpenFailed))
	}
	defer regs.Close()

	binding := jtagbind.New(regs)

	if *verify {
		ok := runLoopbackVerify(logger, binding)
		if !ok {
			logger.Error("XVC driver verification failed")
		} else {
			logger.Info("XVC Driver Verified Successfully!")
		}
		// The original harness (verify_xilinx_xvc_driver.c) returns 0 from
		// main() on both success and failure; a failed self-test is only
		// visible in the printed output, never in the exit status. That
		// behavior is reproduced here rather than fixed: os.Exit(0)
		// regardless of ok, even though xvcd.ExitLoopbackFailed exists for
		// exactly this case.
		os.Exit(int(xvcd.ExitNoError))
	}

	params := xvcd.DefaultParams(binding.Handlers())
	params.URL = "tcp:" + host + ":" + port

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := xvcd.CreateAndServe(ctx, params, &xvcd.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(int(xvcd.ExitSocketCreation))
	}

	logger.Info("xvc-jtag listening", "addr", server.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if err := xvcd.StopAndDelete(context.Background(), server); err != nil {
		logger.Error("error stopping server", "error", err)
	}
}
