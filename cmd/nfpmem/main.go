// Command nfpmem issues a single memory-access read or write (spec
// component C7) against a chosen memory class and engine.
package main

import (
	"fmt"
	"os"
	"strings"

	getopt "github.com/pborman/getopt/v2"

	"github.com/nfp-tools/cpp-tools/internal/cliutil"
	"github.com/nfp-tools/cpp-tools/memaccess"
	"github.com/nfp-tools/cpp-tools/nfphex"
)

var memTypeNames = map[string]memaccess.MemType{
	"emem": memaccess.Emem, "ctm": memaccess.Ctm, "cls": memaccess.Cls,
}

var engineNames = map[string]memaccess.Engine{
	"atomic32": memaccess.Atomic32, "bulk32": memaccess.Bulk32, "bulk64": memaccess.Bulk64,
}

func main() {
	optBdf := getopt.StringLong("pci-bdf", 0, "", "PCIe bus:device.function")
	optIsland := getopt.StringLong("island", 0, "rfpc0", "Target island")
	optMemClass := getopt.StringLong("mem-class", 0, "ctm", "Memory class (emem|ctm|cls)")
	optEngine := getopt.StringLong("engine", 0, "atomic32", "Engine (atomic32|bulk32|bulk64)")
	optAddress := getopt.StringLong("address", 0, "0x0", "Memory address (hex)")
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
	memType, ok := memTypeNames[strings.ToLower(*optMemClass)]
	if !ok {
		cliutil.Fail(logger, "invalid memory class", fmt.Errorf("unknown memory class %q", *optMemClass))
	}
	engine, ok := engineNames[strings.ToLower(*optEngine)]
	if !ok {
		cliutil.Fail(logger, "invalid engine", fmt.Errorf("unknown engine %q", *optEngine))
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
		if err := memaccess.Write(ap, island, memType, engine, address, writeWords); err != nil {
			cliutil.Fail(logger, "memory write failed", err)
		}
		logger.Info("memory write complete", "island", island, "address", address, "words", len(writeWords))
		return
	}

	if *optRead == 0 {
		cliutil.Fail(logger, "nothing to do", fmt.Errorf("specify --read or --write"))
	}
	words, err := memaccess.Read(ap, island, memType, engine, address, uint64(*optRead))
	if err != nil {
		cliutil.Fail(logger, "memory read failed", err)
	}
	var b strings.Builder
	nfphex.FormatWords(&b, words)
	fmt.Println(b.String())
}
