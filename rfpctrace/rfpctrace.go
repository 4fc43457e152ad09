// Package rfpctrace builds the performance-analyzer configuration that
// captures an RFPC's uncompressed RISC-V instruction trace, drains the
// resulting samples, and formats them for display (spec component C10).
package rfpctrace

import (
	"fmt"
	"strings"
	"time"

	"github.com/nfp-tools/cpp-tools/bar"
	"github.com/nfp-tools/cpp-tools/perfanalyzer"
	"github.com/nfp-tools/cpp-tools/riscv"
	"github.com/nfp-tools/cpp-tools/xpbbus"
)

// drainTimeout bounds how long ReadTrace waits for the trigger to
// produce numWords samples before giving up, matching the polling
// deadline the RISC-V debug driver uses for its own hardware waits.
const drainTimeout = 10 * time.Second
const drainPollInterval = 10 * time.Millisecond

// maxFifoWords mirrors the performance analyzer FIFO's fixed depth (see
// spec §4.8): a request above this can never succeed, so ReadTrace
// rejects it immediately instead of waiting out the full drain timeout.
const maxFifoWords = 4096

// Per-(cluster, group) group-control register offsets the trace front
// end writes, relative to the bases riscv.Rfpc.GroupCtlXpbBase derives.
const (
	regPaControl       = 0x0020
	regPerfMuxConfig   = 0x0024
)

// PAControl is the local encoding of the per-core PA_CONTROL register
// that routes a core's trace bus onto the performance-analyzer input.
type PAControl struct {
	Enable     bool
	Select     uint8 // core index within the group, 2 bits
	Compress   bool
	Capture64  bool
	TraceEn    bool
	TraceCtl   bool
	TracePC    bool
	TraceRfw   bool
	TraceBkpt  bool
}

func (c PAControl) word() uint32 {
	var w uint32
	if c.Enable {
		w |= 1 << 0
	}
	w |= (uint32(c.Select) & 0x3) << 1
	if c.Compress {
		w |= 1 << 3
	}
	if c.Capture64 {
		w |= 1 << 4
	}
	if c.TraceEn {
		w |= 1 << 5
	}
	if c.TraceCtl {
		w |= 1 << 6
	}
	if c.TracePC {
		w |= 1 << 7
	}
	if c.TraceRfw {
		w |= 1 << 8
	}
	if c.TraceBkpt {
		w |= 1 << 9
	}
	return w
}

// PerfMuxConfig is the local encoding of the per-(cluster, group)
// PERF_MUX_CONFIG register that selects which lanes of the 96-bit
// performance bus carry which trace fields.
type PerfMuxConfig struct {
	LaneSelectLo, LaneSelectMid, LaneSelectHi uint8 // 2 bits each
	LowMuxSelect, MidMuxSelect, HighMuxSelect uint8 // 4 bits each
	AuxSelect                                 uint8 // 3 bits
}

func (c PerfMuxConfig) word() uint32 {
	w := uint32(c.LaneSelectLo&0x3) << 0
	w |= uint32(c.LaneSelectMid&0x3) << 2
	w |= uint32(c.LaneSelectHi&0x3) << 4
	w |= uint32(c.LowMuxSelect&0xF) << 6
	w |= uint32(c.MidMuxSelect&0xF) << 10
	w |= uint32(c.HighMuxSelect&0xF) << 14
	w |= uint32(c.AuxSelect&0x7) << 18
	return w
}

// captureMethodFor derives the performance analyzer's capture method
// from the number of 32-bit bus words requested per sample and whether a
// timestamp accompanies each sample, rejecting the combinations the
// hardware cannot produce.
func captureMethodFor(busWords uint8, timestamp bool) (perfanalyzer.CaptureMethod, error) {
	switch busWords {
	case 1:
		if timestamp {
			return perfanalyzer.PerfBus32andTs, nil
		}
		return perfanalyzer.PerfBus32orTs, nil
	case 2:
		if timestamp {
			return 0, fmt.Errorf("bus_words=2 is incompatible with a timestamp")
		}
		return perfanalyzer.PerfBus64, nil
	case 3:
		if !timestamp {
			return 0, fmt.Errorf("bus_words=3 requires a timestamp")
		}
		return perfanalyzer.PerfBus96andTs, nil
	default:
		return 0, fmt.Errorf("bus_words must be 1, 2, or 3, got %d", busWords)
	}
}

// captureStartFor derives the capture-start section from the index of
// the 32-bit bus word that should land in the FIFO first.
func captureStartFor(wordIndex uint8) (perfanalyzer.CaptureStart, error) {
	switch wordIndex {
	case 0:
		return perfanalyzer.LowBusInFifoFirst, nil
	case 1:
		return perfanalyzer.MidBusInFifoFirst, nil
	case 2:
		return perfanalyzer.HighBusInFifoFirst, nil
	default:
		return 0, fmt.Errorf("word_index must be 0, 1, or 2, got %d", wordIndex)
	}
}

// TraceSelect chooses which of the four trace sources the RFPC's
// PA_CONTROL register routes onto the performance bus, per spec.md
// §4.9 ("selects PC/ctl/rfw/bkpt bits").
type TraceSelect struct {
	PC, Ctl, Rfw, Bkpt bool
}

// TriggerOnUncompTrace configures pa's trigger machine to capture r's
// uncompressed RISC-V trace and arms it: global config plus 4 mask/compare
// units and 1 mask-compare-detect unit and 1 TCAM capture unit reproduce
// the fixed "always triggering" trace pattern, then the per-(cluster,
// group) PA-control and perf-mux-config registers are written directly to
// route r's trace bus onto the performance bus.
func TriggerOnUncompTrace(aperture *bar.Aperture, pa *perfanalyzer.PerformanceAnalyzer, r *riscv.Rfpc, busWords, wordIndex uint8, timestamp bool, trace TraceSelect) error {
	method, err := captureMethodFor(busWords, timestamp)
	if err != nil {
		return err
	}
	start, err := captureStartFor(wordIndex)
	if err != nil {
		return err
	}

	if err := pa.SetGlobalConfig(perfanalyzer.GlobalConfig{
		Valid:          true,
		Journalling:    true,
		CaptureMode:    perfanalyzer.StoreInFifo,
		CaptureMethod:  method,
		CaptureStart:   start,
		EventMethod:    perfanalyzer.EventOnFifoFull,
	}); err != nil {
		return err
	}

	if err := pa.SetMaskCompare(0, 0, 0x08, 0x08, false); err != nil {
		return err
	}
	if err := pa.SetMaskCompare(0, 1, 0x80, 0x80, false); err != nil {
		return err
	}
	if err := pa.SetMaskCompare(1, 2, 0x80, 0x80, false); err != nil {
		return err
	}
	if err := pa.SetMaskCompare(2, 3, 0x01, 0x01, false); err != nil {
		return err
	}
	if err := pa.SetMaskCompareDetect(0, 0x000F, 0x0000); err != nil {
		return err
	}
	if err := pa.SetCaptureTCAM(0, perfanalyzer.CaptureData, perfanalyzer.MaskCompareDetectors, 0x01, 0x01, false); err != nil {
		return err
	}
	if err := pa.Apply(); err != nil {
		return err
	}

	clusterBase, groupBase, err := r.GroupCtlXpbBase()
	if err != nil {
		return err
	}
	groupCtlBase := clusterBase + groupBase

	mux := PerfMuxConfig{LaneSelectLo: 1, LaneSelectMid: 2, LaneSelectHi: 3}
	if err := xpbbus.Write(aperture, r.Island, groupCtlBase+regPerfMuxConfig, []uint32{mux.word()}, false); err != nil {
		return err
	}

	ctl := PAControl{
		Enable:    true,
		Select:    r.Core,
		TraceEn:   true,
		TraceCtl:  trace.Ctl,
		TracePC:   trace.PC,
		TraceRfw:  trace.Rfw,
		TraceBkpt: trace.Bkpt,
	}
	return xpbbus.Write(aperture, r.Island, groupCtlBase+regPaControl, []uint32{ctl.word()}, false)
}

// ReadTrace idles the trigger, arms it from Idle with no active-state
// mask and no timeout, drains the FIFO until numWords samples have been
// collected, halts the trigger, and returns exactly numWords words.
func ReadTrace(pa *perfanalyzer.PerformanceAnalyzer, numWords uint32) ([]uint32, error) {
	if numWords > maxFifoWords {
		return nil, fmt.Errorf("the maximum size of the FIFO is %d 32-bit words", maxFifoWords)
	}

	if err := pa.TriggerIdle(); err != nil {
		return nil, err
	}
	if err := pa.TriggerStart(0, 0); err != nil {
		return nil, err
	}

	samples := make([]uint32, 0, numWords)
	deadline := time.Now().Add(drainTimeout)
	for uint32(len(samples)) < numWords {
		remaining := numWords - uint32(len(samples))
		words, err := pa.ReadFifo(remaining)
		if err != nil {
			// The FIFO reporting empty is the expected steady state while
			// the trigger is still collecting samples. Every ReadFifo
			// error is retried the same way until drainTimeout elapses.
			if time.Now().After(deadline) {
				_ = pa.TriggerHalt()
				return nil, fmt.Errorf("timed out waiting for trace samples: %w", err)
			}
			time.Sleep(drainPollInterval)
			continue
		}
		samples = append(samples, words...)
	}

	if err := pa.TriggerHalt(); err != nil {
		return nil, err
	}
	return samples[:numWords], nil
}

// FormatUncompTrace renders samples as a header of busWords per-word
// columns (plus a leading TIMESTAMP column when busWords==1 and timestamp
// is set) followed by one row per wordsPerSample-sized chunk, each word
// rendered as a zero-padded 0x-prefixed 32-bit hex value.
func FormatUncompTrace(samples []uint32, busWords uint8, wordIndex uint8, timestamp bool, wordsPerSample int) string {
	var b strings.Builder

	headerCols := make([]string, 0, int(busWords)+1)
	if busWords == 1 && timestamp {
		headerCols = append(headerCols, "TIMESTAMP")
	}
	for i := 0; i < int(busWords); i++ {
		headerCols = append(headerCols, fmt.Sprintf("WORD %d", i))
	}
	b.WriteString(strings.Join(headerCols, " | "))
	b.WriteString("\n")

	for i := 0; i+wordsPerSample <= len(samples); i += wordsPerSample {
		chunk := samples[i : i+wordsPerSample]
		cols := make([]string, 0, wordsPerSample)
		for _, w := range chunk {
			cols = append(cols, fmt.Sprintf("0x%08x", w))
		}
		b.WriteString(strings.Join(cols, " | "))
		b.WriteString("\n")
	}
	return b.String()
}
