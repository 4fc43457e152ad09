package rfpctrace

import (
	"encoding/binary"
	"testing"

	"github.com/nfp-tools/cpp-tools/bar"
	"github.com/nfp-tools/cpp-tools/cppbus"
	"github.com/nfp-tools/cpp-tools/perfanalyzer"
	"github.com/nfp-tools/cpp-tools/riscv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUncompTraceMatchesSpecExample(t *testing.T) {
	got := FormatUncompTrace([]uint32{0xDEAD, 0xBEEF, 0xCAFE}, 3, 0, false, 3)
	want := "WORD 0 | WORD 1 | WORD 2\n0x0000dead | 0x0000beef | 0x0000cafe\n"
	assert.Equal(t, want, got)
}

func TestFormatUncompTraceWithTimestampColumn(t *testing.T) {
	got := FormatUncompTrace([]uint32{1, 0xAAAA}, 1, 0, true, 2)
	want := "TIMESTAMP | WORD 0\n0x00000001 | 0x0000aaaa\n"
	assert.Equal(t, want, got)
}

func TestFormatUncompTraceMultipleSamples(t *testing.T) {
	got := FormatUncompTrace([]uint32{1, 2, 3, 4}, 2, 0, false, 2)
	want := "WORD 0 | WORD 1\n0x00000001 | 0x00000002\n0x00000003 | 0x00000004\n"
	assert.Equal(t, want, got)
}

func TestFormatUncompTraceDropsTrailingPartialSample(t *testing.T) {
	got := FormatUncompTrace([]uint32{1, 2, 3}, 2, 0, false, 2)
	want := "WORD 0 | WORD 1\n0x00000001 | 0x00000002\n"
	assert.Equal(t, want, got)
}

func TestCaptureMethodForRejectsIllegalCombinations(t *testing.T) {
	_, err := captureMethodFor(2, true)
	assert.Error(t, err)

	_, err = captureMethodFor(3, false)
	assert.Error(t, err)

	_, err = captureMethodFor(4, false)
	assert.Error(t, err)
}

func TestCaptureMethodForLegalCombinations(t *testing.T) {
	m, err := captureMethodFor(1, false)
	assert.NoError(t, err)
	assert.Equal(t, perfanalyzer.PerfBus32orTs, m)

	m, err = captureMethodFor(1, true)
	assert.NoError(t, err)
	assert.Equal(t, perfanalyzer.PerfBus32andTs, m)

	m, err = captureMethodFor(2, false)
	assert.NoError(t, err)
	assert.Equal(t, perfanalyzer.PerfBus64, m)

	m, err = captureMethodFor(3, true)
	assert.NoError(t, err)
	assert.Equal(t, perfanalyzer.PerfBus96andTs, m)
}

func TestCaptureStartForRejectsOutOfRange(t *testing.T) {
	_, err := captureStartFor(3)
	assert.Error(t, err)
}

func TestTriggerOnUncompTraceWritesGroupControlRegisters(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	pa, err := perfanalyzer.New(ap, cppbus.Rfpc0)
	require.NoError(t, err)

	r, err := riscv.New(cppbus.Rfpc0, 0, 0, 2)
	require.NoError(t, err)

	require.NoError(t, TriggerOnUncompTrace(ap, pa, r, 1, 0, false, TraceSelect{PC: true, Ctl: true, Rfw: true, Bkpt: true}))

	clusterBase, groupBase, err := r.GroupCtlXpbBase()
	require.NoError(t, err)
	groupCtlBase := clusterBase + groupBase

	// The XPB write lands at the address's offset within the 64 KiB
	// simulated aperture.
	raw, err := ap.Read(uint64(groupCtlBase+regPaControl)&0xFFFF, 4)
	require.NoError(t, err)
	ctlWord := binary.LittleEndian.Uint32(raw)
	assert.NotZero(t, ctlWord&(1<<0)) // Enable
	assert.Equal(t, uint32(2), (ctlWord>>1)&0x3)

	raw, err = ap.Read(uint64(groupCtlBase+regPerfMuxConfig)&0xFFFF, 4)
	require.NoError(t, err)
	muxWord := binary.LittleEndian.Uint32(raw)
	assert.Equal(t, uint32(1), muxWord&0x3)
	assert.Equal(t, uint32(2), (muxWord>>2)&0x3)
	assert.Equal(t, uint32(3), (muxWord>>4)&0x3)
}

func TestReadTraceRejectsOversizeRequest(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	pa, err := perfanalyzer.New(ap, cppbus.Rfpc0)
	require.NoError(t, err)

	_, err = ReadTrace(pa, maxFifoWords+1)
	assert.Error(t, err)
}

func TestTriggerOnUncompTraceRejectsIllegalBusWords(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	pa, err := perfanalyzer.New(ap, cppbus.Rfpc0)
	require.NoError(t, err)
	r, err := riscv.New(cppbus.Rfpc0, 0, 0, 0)
	require.NoError(t, err)

	require.Error(t, TriggerOnUncompTrace(ap, pa, r, 2, 0, true, TraceSelect{}))
}
