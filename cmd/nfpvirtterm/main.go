// Command nfpvirtterm follows a virtual-terminal mailbox (spec
// component C11), printing whatever text the RFPC writes to it until
// interrupted.
package main

import (
	"fmt"
	"os"
	"time"

	getopt "github.com/pborman/getopt/v2"

	"github.com/nfp-tools/cpp-tools/internal/cliutil"
	"github.com/nfp-tools/cpp-tools/vterm"
)

func main() {
	optBdf := getopt.StringLong("pci-bdf", 0, "", "PCIe bus:device.function")
	optIsland := getopt.StringLong("island", 0, "rfpc0", "Owning island (emu0 selects EMEM, everything else CTM)")
	optAddress := getopt.StringLong("address", 0, "0x0", "Mailbox base address (hex)")
	optFlush := getopt.BoolLong("flush", 0, "Discard any pending data and exit, instead of following")
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

	ap, err := cliutil.OpenAperture(*optBdf)
	if err != nil {
		cliutil.Fail(logger, "opening aperture", err)
	}
	defer ap.Close()

	vt := vterm.New(ap, island, uint32(address))

	if *optFlush {
		if err := vt.Flush(nil); err != nil {
			cliutil.Fail(logger, "flush failed", err)
		}
		return
	}

	logger.Info("following virtual terminal", "island", island, "address", address)
	for {
		if err := vt.WaitForData(nil); err != nil {
			cliutil.Fail(logger, "wait for data failed", err)
		}
		text, err := vt.ReadString()
		if err != nil {
			cliutil.Fail(logger, "read failed", err)
		}
		fmt.Print(text)
		time.Sleep(10 * time.Millisecond)
	}
}
