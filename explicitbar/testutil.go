package explicitbar

import "github.com/nfp-tools/cpp-tools/bar"

// NewSimulated builds an ExplicitBar backed by in-memory simulated
// apertures instead of real PCIe/mmap hardware, for tests elsewhere in
// this module that exercise the RISC-V debug driver or XPB explicit
// path end-to-end.
func NewSimulated(triggerSize, dataSize uint64) *ExplicitBar {
	return &ExplicitBar{
		explBarIndex: 0,
		triggerAp:    bar.NewSimulated(triggerSize),
		dataAp:       bar.NewSimulated(dataSize),
	}
}

// SeedTriggerWord pokes raw bytes directly into the trigger aperture,
// starting at the beginning of this explicit BAR's trigger window.
// RunExplicitCmd's direct (non-SRAM) read path reads that window at the
// command's offset, so a read at window offset o returns raw[o:o+4].
// There is no real debug-module peripheral behind a simulated aperture
// to generate a response, so tests that exercise register polling seed
// the status words they expect to read back.
func (e *ExplicitBar) SeedTriggerWord(raw []byte) error {
	return e.triggerAp.Write(raw, e.expaBarOffset())
}
