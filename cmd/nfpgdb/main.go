// Command nfpgdb runs the GDB remote-serial-protocol server (spec
// component C12), exposing a single RFPC hart to a connecting debugger
// until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/nfp-tools/cpp-tools/explicitbar"
	"github.com/nfp-tools/cpp-tools/internal/cliutil"
	"github.com/nfp-tools/cpp-tools/riscv"
	"github.com/nfp-tools/cpp-tools/rsp"
)

func main() {
	optBdf := getopt.StringLong("pci-bdf", 0, "", "PCIe bus:device.function")
	optIsland := getopt.StringLong("island", 0, "rfpc0", "Hart's island")
	optCluster := getopt.Uint16Long("cluster", 0, 0, "Cluster index")
	optGroup := getopt.Uint16Long("group", 0, 0, "Group index")
	optCore := getopt.Uint16Long("core", 0, 0, "Core index")
	optLog := getopt.StringLong("log", 0, "", "Log file")
	optDebug := getopt.BoolLong("debug", 0, "Echo debug logs to stderr")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	logger := cliutil.NewLogger(*optLog, *optDebug)

	island, err := cliutil.ParseIsland(*optIsland)
	if err != nil {
		cliutil.Fail(logger, "invalid island", err)
	}
	hart, err := riscv.New(island, uint8(*optCluster), uint8(*optGroup), uint8(*optCore))
	if err != nil {
		cliutil.Fail(logger, "invalid hart coordinates", err)
	}

	ap, err := cliutil.OpenAperture(*optBdf)
	if err != nil {
		cliutil.Fail(logger, "opening aperture", err)
	}
	defer ap.Close()

	eb, err := explicitbar.New(*optBdf, 0)
	if err != nil {
		cliutil.Fail(logger, "opening explicit BAR", err)
	}

	server := rsp.New(eb, ap, hart, logger)
	if err := server.Start(); err != nil {
		cliutil.Fail(logger, "starting RSP server", err)
	}
	fmt.Printf("gdb server listening on %s\n", rsp.ListenAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	server.Stop()
}
