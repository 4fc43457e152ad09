package vterm

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/nfp-tools/cpp-tools/bar"
	"github.com/nfp-tools/cpp-tools/cppbus"
	"github.com/nfp-tools/cpp-tools/memaccess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = 0x100

func writeWord(t *testing.T, ap *bar.Aperture, offset uint32, value uint32) {
	t.Helper()
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, value)
	require.NoError(t, ap.Write(raw, uint64(testBase+offset)))
}

func TestNewSelectsMemTypeByIsland(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	emu := New(ap, cppbus.Emu0, testBase)
	rfpc := New(ap, cppbus.Rfpc0, testBase)
	assert.Equal(t, memaccess.Emem, emu.MemType)
	assert.Equal(t, memaccess.Ctm, rfpc.MemType)
}

func TestIsLockedReflectsLockWord(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	vt := New(ap, cppbus.Rfpc0, testBase)

	writeWord(t, ap, lockOffset, 0)
	locked, err := vt.IsLocked()
	require.NoError(t, err)
	assert.True(t, locked)

	writeWord(t, ap, lockOffset, 1)
	locked, err = vt.IsLocked()
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestHolderDecodesValidMetadata(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	vt := New(ap, cppbus.Rfpc0, testBase)

	writeWord(t, ap, lockOffset, 0) // locked
	meta := uint32(cppbus.Rfpc0.ID())<<8 | uint32(5)<<3 | uint32(3)
	writeWord(t, ap, metadataOffset, meta)

	holder, err := vt.Holder()
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.Equal(t, uint8(3), holder.Core)
	assert.Equal(t, uint8(1), holder.Group)   // 5 % 4
	assert.Equal(t, uint8(1), holder.Cluster) // 5 / 4
}

func TestHolderReturnsNilWhenUnlocked(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	vt := New(ap, cppbus.Rfpc0, testBase)
	writeWord(t, ap, lockOffset, 1) // unlocked

	holder, err := vt.Holder()
	require.NoError(t, err)
	assert.Nil(t, holder)
}

func TestHolderReturnsNilWhenIslandFieldZero(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	vt := New(ap, cppbus.Rfpc0, testBase)
	writeWord(t, ap, lockOffset, 0)
	writeWord(t, ap, metadataOffset, 0) // island field 0 -> invalid

	holder, err := vt.Holder()
	require.NoError(t, err)
	assert.Nil(t, holder)
}

func TestReadBytesAcksLength(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	vt := New(ap, cppbus.Rfpc0, testBase)

	writeWord(t, ap, lockOffset, 0)
	meta := uint32(cppbus.Rfpc0.ID())<<8 | uint32(0)<<3 | uint32(0)
	writeWord(t, ap, metadataOffset, meta)
	writeWord(t, ap, lengthOffset, 2)
	writeWord(t, ap, dataOffset, 0x41424344)
	writeWord(t, ap, dataOffset+4, 0x00000058)

	data, err := vt.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x44, 0x43, 0x42, 0x41, 0x58, 0x00, 0x00, 0x00}, data)

	n, err := vt.DataAvailable()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFlushClearsImmediatelyWhenAlreadyEmpty(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	vt := New(ap, cppbus.Rfpc0, testBase)
	writeWord(t, ap, lockOffset, 1) // unlocked -> data_available() == 0

	require.NoError(t, vt.Flush(nil))
}

func TestWaitForDataTimesOut(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)
	vt := New(ap, cppbus.Rfpc0, testBase)
	writeWord(t, ap, lockOffset, 1) // never locked, data never available

	timeout := 50 * time.Millisecond
	err := vt.WaitForData(&timeout)
	require.Error(t, err)
}
