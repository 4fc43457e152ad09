package memaccess

import (
	"testing"

	"github.com/nfp-tools/cpp-tools/bar"
	"github.com/nfp-tools/cpp-tools/cppbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomic32RoundTrip(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)

	err := Write(ap, cppbus.Emu0, Emem, Atomic32, 0x100, []uint32{11, 22})
	require.NoError(t, err)

	words, err := Read(ap, cppbus.Emu0, Emem, Atomic32, 0x100, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint32{11, 22}, words)
	assert.Equal(t, bar.Bulk, ap.MapType)
}

func TestClsRoundTrip(t *testing.T) {
	ap := bar.NewSimulated(1 << 16)

	require.NoError(t, Write(ap, cppbus.ChipExec, Cls, Atomic32, 0x40, []uint32{99}))
	words, err := Read(ap, cppbus.ChipExec, Cls, Atomic32, 0x40, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint32{99}, words)
}
