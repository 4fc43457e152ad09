package nfpcommon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitAddr48(t *testing.T) {
	base, offset := SplitAddr48(0x1234_5678, 0x1000)
	assert.Equal(t, uint64(0), base%0x1000)
	assert.Equal(t, uint64(0x1234_5678), base+offset)
	assert.Less(t, offset, uint64(0x1000))
}

func TestHexParser(t *testing.T) {
	v, err := HexParser("0x2a")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)

	v, err = HexParser("42")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)

	_, err = HexParser("not-a-number")
	require.Error(t, err)
}

func TestAlignTransaction64(t *testing.T) {
	tests := []struct {
		addr, words       uint64
		wantAddr, wantLen uint64
	}{
		{0, 1, 0, 2},
		{4, 1, 0, 2},
		{8, 2, 8, 2},
		{2, 3, 0, 4},
	}
	for _, tc := range tests {
		a, n := AlignTransaction64(tc.addr, tc.words)
		assert.Equal(t, tc.wantAddr, a)
		assert.Equal(t, tc.wantLen, n)
		assert.LessOrEqual(t, a, tc.addr)
		assert.Equal(t, uint64(0), a%8)
		assert.True(t, tc.addr+4*tc.words <= a+4*n)
		assert.Equal(t, uint64(0), n%2)
	}
}

func TestValidateNfpBdfNoDevice(t *testing.T) {
	_, err := ValidateNfpBdf("ff:00.0")
	require.Error(t, err)
}
