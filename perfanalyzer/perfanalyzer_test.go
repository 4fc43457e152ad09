package perfanalyzer

import (
	"encoding/binary"
	"testing"

	"github.com/nfp-tools/cpp-tools/bar"
	"github.com/nfp-tools/cpp-tools/cppbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownIsland(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	_, err := New(ap, cppbus.Emu0)
	require.Error(t, err)
}

func TestGlobalConfigWordRoundTrip(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	pa, err := New(ap, cppbus.Rfpc0)
	require.NoError(t, err)

	require.NoError(t, pa.SetGlobalConfig(GlobalConfig{
		Valid:          true,
		Journalling:    true,
		HistogramShift: 5,
		CaptureMode:    ChangePerfCounters,
		EventMethod:    EventOnFifoFull,
	}))
	require.NoError(t, pa.Apply())

	raw, err := ap.Read(uint64(regConfig), 4)
	require.NoError(t, err)
	word := binary.LittleEndian.Uint32(raw)

	assert.NotZero(t, word&(1<<0))
	assert.NotZero(t, word&(1<<4))
	assert.Equal(t, uint32(5), (word>>5)&0x7)
	assert.Equal(t, uint32(ChangePerfCounters), (word>>24)&0x3)
	assert.Equal(t, uint32(EventOnFifoFull), (word>>9)&0x3)
}

func TestSetGlobalConfigRejectsOutOfRangeFields(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	pa, _ := New(ap, cppbus.Rfpc0)

	require.Error(t, pa.SetGlobalConfig(GlobalConfig{CaptureTrigger: 8}))
	require.Error(t, pa.SetGlobalConfig(GlobalConfig{HistogramShift: 8}))
}

func TestSetMaskCompareRangeChecks(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	pa, _ := New(ap, cppbus.Rfpc0)

	require.Error(t, pa.SetMaskCompare(16, 0, 0, 0, false))
	require.Error(t, pa.SetMaskCompare(0, 16, 0, 0, false))
	require.NoError(t, pa.SetMaskCompare(3, 5, 0xF0, 0x0F, true))
}

func TestTriggerCommands(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	pa, _ := New(ap, cppbus.Rfpc0)

	require.NoError(t, pa.TriggerStart(0x2, 100))
	raw, err := ap.Read(uint64(regTriggerControl), 4)
	require.NoError(t, err)
	word := binary.LittleEndian.Uint32(raw)
	assert.Equal(t, uint32(triggerCmdStart), word&0x3)
	assert.Equal(t, uint32(0x2), (word>>2)&0xFF)
	assert.Equal(t, uint32(100), (word>>12)&0xFFFFF)

	require.NoError(t, pa.TriggerHalt())
	require.NoError(t, pa.TriggerIdle())
}

func TestReadFifoRejectsOversizeRequest(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	pa, _ := New(ap, cppbus.Rfpc0)
	_, err := pa.ReadFifo(maxFifoWords + 1)
	require.Error(t, err)
}

func TestReadFifoRejectsEmpty(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	pa, _ := New(ap, cppbus.Rfpc0)

	// Seed FifoControl with the empty bit set.
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, 1<<30)
	require.NoError(t, ap.Write(raw, uint64(regFifoControl)))

	_, err := pa.ReadFifo(0)
	require.Error(t, err)
}

func TestReadFifoReadsAvailableWords(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	pa, _ := New(ap, cppbus.Rfpc0)

	// write_ptr=3, read_ptr=0, not empty, not overflowed -> 3 entries.
	fifoCtl := make([]byte, 4)
	binary.LittleEndian.PutUint32(fifoCtl, 3<<15)
	require.NoError(t, ap.Write(fifoCtl, uint64(regFifoControl)))

	fifoData := make([]byte, 4)
	binary.LittleEndian.PutUint32(fifoData, 0xCAFEBABE)
	require.NoError(t, ap.Write(fifoData, uint64(regFifoData)))

	words, err := pa.ReadFifo(0)
	require.NoError(t, err)
	assert.Len(t, words, 3)
	for _, w := range words {
		assert.Equal(t, uint32(0xCAFEBABE), w)
	}
}
