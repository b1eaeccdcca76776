// Command xvc-dpc serves the Xilinx Virtual Cable DPC fast-packet
// capability (idpc:/edpc:) by driving an AXI-DMA scatter-gather engine
// through two mapped /dev/mem windows: the DMA register block and a
// DMA-coherent packet buffer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openxvc/xvcd"
	"github.com/openxvc/xvcd/internal/constants"
	"github.com/openxvc/xvcd/internal/dma"
	"github.com/openxvc/xvcd/internal/dpcbind"
	"github.com/openxvc/xvcd/internal/logging"
	"github.com/openxvc/xvcd/internal/regio"
	"github.com/openxvc/xvcd/internal/xvcnet"
)

func main() {
	var (
		url     = flag.String("s", "tcp::2542", "transport:host:port to listen on")
		dmaAddr = flag.Uint64("dma_addr", uint64(xvcd.DefaultDMARegAddr), "physical base address of the AXI-DMA register block")
		dmaSize = flag.Uint64("dma_size", uint64(xvcd.DefaultDMARegSize), "size in bytes of the mapped DMA register window")
		bufAddr = flag.Uint64("buf_addr", uint64(xvcd.DefaultBufAddr), "physical base address of the DMA-coherent packet buffer")
		bufSize = flag.Uint64("buf_size", uint64(xvcd.DefaultBufSize), "size in bytes of the mapped packet buffer")
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

	dmaRegs, err := regio.Open(uintptr(*dmaAddr), int(*dmaSize))
	if err != nil {
		logger.Error("failed to map DMA register block", "addr", fmt.Sprintf("0x%x", *dmaAddr), "error", err)
		os.Exit(int(xvcd.ExitHsdpOpenFailed))
	}
	defer dmaRegs.Close()

	buf, err := regio.Open(uintptr(*bufAddr), int(*bufSize))
	if err != nil {
		logger.Error("failed to map DMA-coherent packet buffer", "addr", fmt.Sprintf("0x%x", *bufAddr), "error", err)
		os.Exit(int(xvcd.ExitHsdpOpenFailed))
	}
	defer buf.Close()

	engine := dma.NewEngine(dmaRegs, buf, constants.DefaultDescCount)
	engine.SetVerbose(*verbose)

	binding := dpcbind.New(engine)
	params := xvcd.DefaultParams(binding.Handlers())
	params.URL = "tcp:" + host + ":" + port

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := xvcd.CreateAndServe(ctx, params, &xvcd.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(int(xvcd.ExitSocketCreation))
	}

	logger.Info("xvc-dpc listening", "addr", server.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if err := xvcd.StopAndDelete(context.Background(), server); err != nil {
		logger.Error("error stopping server", "error", err)
	}
}
