// Command nfprfpctrace captures an RFPC's uncompressed RISC-V
// instruction trace (spec component C10): arms the performance
// analyzer, drains the requested number of samples, and prints them.
package main

import (
	"fmt"
	"os"

	getopt "github.com/pborman/getopt/v2"

	"github.com/nfp-tools/cpp-tools/internal/cliutil"
	"github.com/nfp-tools/cpp-tools/perfanalyzer"
	"github.com/nfp-tools/cpp-tools/rfpctrace"
	"github.com/nfp-tools/cpp-tools/riscv"
)

func main() {
	optBdf := getopt.StringLong("pci-bdf", 0, "", "PCIe bus:device.function")
	optIsland := getopt.StringLong("island", 0, "rfpc0", "Target island")
	optCluster := getopt.Uint16Long("cluster", 0, 0, "Cluster index")
	optGroup := getopt.Uint16Long("group", 0, 0, "Group index")
	optCore := getopt.Uint16Long("core", 0, 0, "Core index")
	optBusWords := getopt.Uint16Long("bus-words", 0, 1, "32-bit bus words per sample (1-3)")
	optWordIndex := getopt.Uint16Long("word-index", 0, 0, "Index of the bus word landing in the FIFO first (0-2)")
	optTimestamp := getopt.BoolLong("timestamp", 0, "Capture a timestamp alongside each sample")
	optNumSamples := getopt.Uint32Long("num-samples", 0, 1, "Number of samples to capture")
	optTracePC := getopt.BoolLong("tp", 0, "Trace the program counter")
	optTraceEn := getopt.BoolLong("ts", 0, "Trace the core's enable/start state")
	optTraceBkpt := getopt.BoolLong("tb", 0, "Trace breakpoint hits")
	optTraceRfw := getopt.BoolLong("tr", 0, "Trace register-file writes")
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
	r, err := riscv.New(island, uint8(*optCluster), uint8(*optGroup), uint8(*optCore))
	if err != nil {
		cliutil.Fail(logger, "invalid hart coordinates", err)
	}

	ap, err := cliutil.OpenAperture(*optBdf)
	if err != nil {
		cliutil.Fail(logger, "opening aperture", err)
	}
	defer ap.Close()

	pa, err := perfanalyzer.New(ap, island)
	if err != nil {
		cliutil.Fail(logger, "constructing performance analyzer", err)
	}

	trace := rfpctrace.TraceSelect{
		PC:   *optTracePC,
		Ctl:  *optTraceEn,
		Rfw:  *optTraceRfw,
		Bkpt: *optTraceBkpt,
	}
	if err := rfpctrace.TriggerOnUncompTrace(ap, pa, r, uint8(*optBusWords), uint8(*optWordIndex), *optTimestamp, trace); err != nil {
		cliutil.Fail(logger, "arming trace trigger failed", err)
	}

	wordsPerSample := int(*optBusWords)
	if *optBusWords == 1 && *optTimestamp {
		// The timestamp takes its own FIFO word ahead of the bus word.
		wordsPerSample++
	}
	samples, err := rfpctrace.ReadTrace(pa, uint32(*optNumSamples)*uint32(wordsPerSample))
	if err != nil {
		cliutil.Fail(logger, "reading trace failed", err)
	}

	fmt.Print(rfpctrace.FormatUncompTrace(samples, uint8(*optBusWords), uint8(*optWordIndex), *optTimestamp, wordsPerSample))
}
