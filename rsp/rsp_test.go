package rsp

import (
	"encoding/binary"
	"testing"

	"github.com/nfp-tools/cpp-tools/bar"
	"github.com/nfp-tools/cpp-tools/cppbus"
	"github.com/nfp-tools/cpp-tools/explicitbar"
	"github.com/nfp-tools/cpp-tools/riscv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedTriggerWord places value in the dmstatus slot (offset 0x44) of the
// simulated trigger window and leaves every other debug-module register,
// abstractcs included, reading 0 (BUSY and CMDERR clear), so
// Halt/Resume/AbstractCmd polling succeeds immediately against simulated
// hardware with no real debug-module peripheral behind it. See
// riscv.dmi_test's seedTriggerWord for the same pattern.
func seedTriggerWord(eb *explicitbar.ExplicitBar, value uint32) {
	raw := make([]byte, 0x84)
	binary.LittleEndian.PutUint32(raw[0x44:], value)
	_ = eb.SeedTriggerWord(raw)
}

const dmstatusReady = (1 << 9) | (1 << 11) // ALLHALTED | ALLRUNNING

func newTestServer(t *testing.T) *Server {
	t.Helper()
	eb := explicitbar.NewSimulated(1<<16, 1<<19)
	seedTriggerWord(eb, dmstatusReady)
	ap := bar.NewSimulated(1 << 16)
	r, err := riscv.New(cppbus.Rfpc0, 0, 0, 0)
	require.NoError(t, err)
	return New(eb, ap, r, nil)
}

func TestChecksumRoundTrip(t *testing.T) {
	payload := "qSupported:multiprocess+;swbreak+"
	escaped := escape(payload)
	assert.Equal(t, payload, escaped) // none of these bytes need escaping

	sum := checksum([]byte(escaped))
	raw := unescape([]byte(escaped))
	assert.Equal(t, payload, raw)
	assert.Equal(t, checksum([]byte(escape(raw))), sum)
}

func TestEscapeUnescapeSpecialBytes(t *testing.T) {
	payload := "a$b#c}d"
	escaped := escape(payload)
	assert.NotEqual(t, payload, escaped)
	assert.Equal(t, payload, unescape([]byte(escaped)))
}

func TestDispatchStaticReplies(t *testing.T) {
	s := newTestServer(t)

	reply, ok := s.dispatch("qC")
	assert.True(t, ok)
	assert.Equal(t, "-1", reply)

	reply, ok = s.dispatch("qAttached")
	assert.True(t, ok)
	assert.Equal(t, "1", reply)

	reply, ok = s.dispatch("qOffsets")
	assert.True(t, ok)
	assert.Equal(t, "Text=000;Data=000;Bss=000", reply)

	reply, ok = s.dispatch("?")
	assert.True(t, ok)
	assert.Equal(t, "S18", reply)

	reply, ok = s.dispatch("Hg0")
	assert.True(t, ok)
	assert.Equal(t, "l", reply)

	reply, ok = s.dispatch("p5")
	assert.True(t, ok)
	assert.Equal(t, "0000000000000000", reply)
}

func TestDispatchQSupportedHandshake(t *testing.T) {
	s := newTestServer(t)
	reply, ok := s.dispatch("qSupported:multiprocess+;swbreak+;fork-events+")
	require.True(t, ok)
	assert.Contains(t, reply, "PacketSize=100000")
	assert.Contains(t, reply, "qMemoryRead+")
	assert.Contains(t, reply, "swbreak+")
}

func TestDispatchStartNoAckModeTogglesAck(t *testing.T) {
	s := newTestServer(t)
	assert.False(t, s.disableAck)

	reply, ok := s.dispatch("QStartNoAckMode")
	assert.True(t, ok)
	assert.Equal(t, "OK", reply)
	assert.True(t, s.disableAck)
}

func TestDispatchGReadsAllRegisters(t *testing.T) {
	s := newTestServer(t)
	reply, ok := s.dispatch("g")
	require.True(t, ok)
	// 33 registers (32 GPRs + dpc), 16 hex chars (8 bytes) each.
	assert.Len(t, reply, 33*16)
}

func TestDispatchPWritesDpc(t *testing.T) {
	s := newTestServer(t)
	reply, ok := s.dispatch("P20=000000000000abcd")
	require.True(t, ok)
	assert.Equal(t, "OK", reply)
}

func TestDispatchPIgnoresNonDpcRegisters(t *testing.T) {
	s := newTestServer(t)
	reply, ok := s.dispatch("P3=00000000deadbeef")
	require.True(t, ok)
	assert.Equal(t, "OK", reply)
}

func TestDispatchXWritesCtmMemory(t *testing.T) {
	s := newTestServer(t)
	// "X1000,4:" followed by 4 raw payload bytes.
	packet := "X1000,4:" + string([]byte{0x11, 0x22, 0x33, 0x44})
	reply, ok := s.dispatch(packet)
	require.True(t, ok)
	assert.Equal(t, "OK", reply)
}

func TestDispatchXZeroLengthIsNoop(t *testing.T) {
	s := newTestServer(t)
	reply, ok := s.dispatch("X1000,0:")
	require.True(t, ok)
	assert.Equal(t, "OK", reply)
}

func TestDispatchContinueHasNoReply(t *testing.T) {
	s := newTestServer(t)
	_, ok := s.dispatch("c")
	assert.False(t, ok)
}

func TestDispatchKillHasNoReply(t *testing.T) {
	s := newTestServer(t)
	_, ok := s.dispatch("k")
	assert.False(t, ok)
}

func TestDispatchInterruptHaltsAndHasNoReply(t *testing.T) {
	s := newTestServer(t)
	_, ok := s.dispatch("\x03")
	assert.False(t, ok)
}

func TestDispatchUnknownVPacketRepliesEmpty(t *testing.T) {
	s := newTestServer(t)
	reply, ok := s.dispatch("vMustReplyEmpty")
	assert.True(t, ok)
	assert.Equal(t, "", reply)
}

func TestWordsBytesRoundTrip(t *testing.T) {
	words := []uint32{0x11223344, 0xAABBCCDD}
	data := wordsToBytes(words)
	assert.Equal(t, words, bytesToWords(data))
}
