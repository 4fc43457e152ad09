// Command nfpcpp issues a single raw CPP bus transaction (spec component
// C5): a read or a write at an explicit (island, target, action, token,
// length, address).
package main

import (
	"fmt"
	"os"
	"strings"

	getopt "github.com/pborman/getopt/v2"

	"github.com/nfp-tools/cpp-tools/cppbus"
	"github.com/nfp-tools/cpp-tools/internal/cliutil"
	"github.com/nfp-tools/cpp-tools/nfphex"
)

var targetNames = map[string]cppbus.Target{
	"nbi": cppbus.TargetNbi, "mem": cppbus.TargetMem, "pcie": cppbus.TargetPcie,
	"arm": cppbus.TargetArm, "ct": cppbus.TargetCt, "cls": cppbus.TargetCls,
}

func main() {
	optBdf := getopt.StringLong("pci-bdf", 0, "", "PCIe bus:device.function")
	optIsland := getopt.StringLong("island", 0, "rfpc0", "Target island")
	optTarget := getopt.StringLong("target", 0, "ct", "Target class (nbi|mem|pcie|arm|ct|cls)")
	optAction := getopt.Uint16Long("action", 0, 0, "CPP action field")
	optToken := getopt.Uint16Long("token", 0, 0, "CPP token field")
	optLen64 := getopt.BoolLong("length64", 0, "Use the 64-bit CPP length class (default 32-bit)")
	optAddress := getopt.StringLong("address", 0, "0x0", "CPP transaction address (hex)")
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
	target, ok := targetNames[strings.ToLower(*optTarget)]
	if !ok {
		cliutil.Fail(logger, "invalid target", fmt.Errorf("unknown target %q", *optTarget))
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

	cppLen := cppbus.Len32
	if *optLen64 {
		cppLen = cppbus.Len64
	}
	bus := cppbus.New(ap)

	if len(writeWords) > 0 {
		if err := bus.Write(island, target, uint8(*optAction), uint8(*optToken), cppLen, address, writeWords); err != nil {
			cliutil.Fail(logger, "cpp write failed", err)
		}
		logger.Info("cpp write complete", "island", island, "address", address, "words", len(writeWords))
		return
	}

	if *optRead == 0 {
		cliutil.Fail(logger, "nothing to do", fmt.Errorf("specify --read or --write"))
	}
	words, err := bus.Read(island, target, uint8(*optAction), uint8(*optToken), cppLen, address, uint64(*optRead))
	if err != nil {
		cliutil.Fail(logger, "cpp read failed", err)
	}
	var b strings.Builder
	nfphex.FormatWords(&b, words)
	fmt.Println(b.String())
}
