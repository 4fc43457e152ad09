// Command nfpxpb issues a single XPB bus read or write (spec component
// C6), with an explicit choice between the local (per-island) and
// global (chip-exec-routed) address spaces.
package main

import (
	"fmt"
	"os"
	"strings"

	getopt "github.com/pborman/getopt/v2"

	"github.com/nfp-tools/cpp-tools/internal/cliutil"
	"github.com/nfp-tools/cpp-tools/nfphex"
	"github.com/nfp-tools/cpp-tools/xpbbus"
)

func main() {
	optBdf := getopt.StringLong("pci-bdf", 0, "", "PCIe bus:device.function")
	optIsland := getopt.StringLong("island", 0, "rfpc0", "Target island")
	optAddress := getopt.StringLong("address", 0, "0x0", "XPB address (hex, 24 bits)")
	optXpbm := getopt.BoolLong("xpbm", 0, "Use the global (chip-exec-routed) XPB address space")
	optRead := getopt.Uint32Long("read", 0, 0, "Number of 32-bit words to read")
	optWrite := getopt.StringLong("write", 0, "", "Comma-separated hex words to write")
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
	address, err := cliutil.ParseHex(*optAddress)
	if err != nil {
		cliutil.Fail(logger, "invalid address", err)
	}
	writeWords, err := cliutil.ParseHexWords(*optWrite)
	if err != nil {
		cliutil.Fail(logger, "invalid write words", err)
	}

	ap, err := cliutil.OpenAperture(*optBdf)
	if err != nil {
		cliutil.Fail(logger, "opening aperture", err)
	}
	defer ap.Close()

	if len(writeWords) > 0 {
		if err := xpbbus.Write(ap, island, uint32(address), writeWords, *optXpbm); err != nil {
			cliutil.Fail(logger, "xpb write failed", err)
		}
		logger.Info("xpb write complete", "island", island, "address", address, "words", len(writeWords))
		return
	}

	if *optRead == 0 {
		cliutil.Fail(logger, "nothing to do", fmt.Errorf("specify --read or --write"))
	}
	words, err := xpbbus.Read(ap, island, uint32(address), uint64(*optRead), *optXpbm)
	if err != nil {
		cliutil.Fail(logger, "xpb read failed", err)
	}
	var b strings.Builder
	nfphex.FormatWords(&b, words)
	fmt.Println(b.String())
}
