// Package cliutil holds the small pieces of flag parsing and setup every
// cmd/ binary repeats: opening an expansion-BAR aperture against
// --pci-bdf, building this toolkit's logger, and parsing the island
// name and hex-address flags the tools share. There is no central
// dispatcher here — each binary still wires its own getopt flag set and
// owns its own main, the way original_source/src/bin/*.rs is one small
// binary per operation — this package only removes the copy-paste.
package cliutil

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/nfp-tools/cpp-tools/bar"
	"github.com/nfp-tools/cpp-tools/cppbus"
	"github.com/nfp-tools/cpp-tools/nfplog"
)

// NewLogger builds the root *slog.Logger a cmd/ binary owns: a file (if
// logPath is non-empty) or stderr, echoing debug records to stderr when
// debug is set, matching rcornwell-S370/main.go's --log/--debug setup.
func NewLogger(logPath string, debug bool) *slog.Logger {
	var out *os.File = os.Stderr
	if logPath != "" {
		f, err := os.Create(logPath)
		if err == nil {
			out = f
		}
	}
	return nfplog.New(out, debug)
}

// OpenAperture acquires an expansion-BAR aperture against bdf.
func OpenAperture(bdf string) (*bar.Aperture, error) {
	ap, err := bar.New(bdf, nil)
	if err != nil {
		return nil, fmt.Errorf("opening aperture on %s: %w", bdf, err)
	}
	return ap, nil
}

var islandNames = map[string]cppbus.Island{
	"local": cppbus.Local, "chipexec": cppbus.ChipExec,
	"pcie0": cppbus.Pcie0, "pcie1": cppbus.Pcie1,
	"nbi0": cppbus.Nbi0, "nbi1": cppbus.Nbi1, "nbi2": cppbus.Nbi2, "nbi3": cppbus.Nbi3,
	"emu0": cppbus.Emu0,
	"rfpc0": cppbus.Rfpc0, "rfpc1": cppbus.Rfpc1, "rfpc2": cppbus.Rfpc2, "rfpc3": cppbus.Rfpc3,
	"rfpc4": cppbus.Rfpc4, "rfpc5": cppbus.Rfpc5, "rfpc6": cppbus.Rfpc6,
}

// ParseIsland maps a CLI island name (case-insensitive) to a cppbus.Island.
func ParseIsland(name string) (cppbus.Island, error) {
	island, ok := islandNames[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown island %q", name)
	}
	return island, nil
}

// ParseHex parses a "0x"-optional hex integer, as every address/value
// flag in this CLI surface accepts.
func ParseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}

// ParseHexWords splits a comma-separated list of hex words, as the
// write-side flags of nfpcpp/nfpxpb/nfpmem accept.
func ParseHexWords(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	words := make([]uint32, 0, len(fields))
	for _, f := range fields {
		v, err := ParseHex(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("parsing hex word %q: %w", f, err)
		}
		words = append(words, uint32(v))
	}
	return words, nil
}

// Fail logs err at error level and exits 1, matching spec.md §6's
// exit-code contract.
func Fail(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
