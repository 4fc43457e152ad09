// Command nfprfpcreg reads or writes a single RISC-V register (spec
// component C8) on one RFPC core, identified either by CSR name
// (--csr) or GPR index (--gpr); the two are mutually exclusive.
package main

import (
	"fmt"
	"os"

	getopt "github.com/pborman/getopt/v2"

	"github.com/nfp-tools/cpp-tools/explicitbar"
	"github.com/nfp-tools/cpp-tools/internal/cliutil"
	"github.com/nfp-tools/cpp-tools/riscv"
)

func main() {
	optBdf := getopt.StringLong("pci-bdf", 0, "", "PCIe bus:device.function")
	optIsland := getopt.StringLong("island", 0, "rfpc0", "Target island")
	optCluster := getopt.Uint16Long("cluster", 0, 0, "Cluster index")
	optGroup := getopt.Uint16Long("group", 0, 0, "Group index")
	optCore := getopt.Uint16Long("core", 0, 0, "Core index")
	optCsr := getopt.StringLong("csr", 0, "", "CSR name (mutually exclusive with --gpr)")
	optGpr := getopt.Int16Long("gpr", 0, -1, "GPR index 0-31 (mutually exclusive with --csr)")
	optWrite := getopt.StringLong("write", 0, "", "Hex value to write (read if omitted)")
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

	var reg riscv.Reg
	switch {
	case *optCsr != "" && *optGpr >= 0:
		cliutil.Fail(logger, "invalid register selection", fmt.Errorf("--csr and --gpr are mutually exclusive"))
	case *optCsr != "":
		csr, err := riscv.ParseCsr(*optCsr)
		if err != nil {
			cliutil.Fail(logger, "invalid CSR", err)
		}
		reg = csr
	case *optGpr >= 0:
		gpr, err := riscv.ParseGpr(int(*optGpr))
		if err != nil {
			cliutil.Fail(logger, "invalid GPR", err)
		}
		reg = gpr
	default:
		cliutil.Fail(logger, "invalid register selection", fmt.Errorf("specify --csr or --gpr"))
	}

	r, err := riscv.New(island, uint8(*optCluster), uint8(*optGroup), uint8(*optCore))
	if err != nil {
		cliutil.Fail(logger, "invalid hart coordinates", err)
	}

	eb, err := explicitbar.New(*optBdf, 0)
	if err != nil {
		cliutil.Fail(logger, "opening explicit-BAR", err)
	}

	if *optWrite != "" {
		value, err := cliutil.ParseHex(*optWrite)
		if err != nil {
			cliutil.Fail(logger, "invalid write value", err)
		}
		if err := riscv.WriteReg(eb, r, reg, value); err != nil {
			cliutil.Fail(logger, "register write failed", err)
		}
		logger.Info("register write complete", "hart", r.String(), "reg", reg.String(), "value", value)
		return
	}

	value, err := riscv.ReadReg(eb, r, reg)
	if err != nil {
		cliutil.Fail(logger, "register read failed", err)
	}
	fmt.Printf("%s.%s = 0x%016x\n", r.String(), reg.String(), value)
}
