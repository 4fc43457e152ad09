package riscv

import (
	"testing"

	"github.com/nfp-tools/cpp-tools/cppbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesRanges(t *testing.T) {
	_, err := New(cppbus.Rfpc0, 3, 0, 0)
	require.Error(t, err)

	_, err = New(cppbus.Rfpc0, 0, 4, 0)
	require.Error(t, err)

	_, err = New(cppbus.Rfpc0, 0, 0, 8)
	require.Error(t, err)

	r, err := New(cppbus.Rfpc0, 2, 3, 7)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), r.Cluster)
}

func TestDmXpbBasePerCluster(t *testing.T) {
	for cluster, want := range map[uint8]uint32{0: 0x240000, 1: 0x320000, 2: 0x400000} {
		r, err := New(cppbus.Rfpc0, cluster, 0, 0)
		require.NoError(t, err)
		got, err := r.DmXpbBase()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDmHartsel(t *testing.T) {
	r, err := New(cppbus.Rfpc0, 0, 1, 3)
	require.NoError(t, err)
	hartsello, hartselhi := r.DmHartsel()
	assert.Equal(t, uint32(8*1+3), hartsello)
	assert.Equal(t, uint32(0), hartselhi)
}

func TestImbPort(t *testing.T) {
	r, _ := New(cppbus.Rfpc0, 1, 2, 0)
	port, err := r.ImbPort()
	require.NoError(t, err)
	assert.Equal(t, uint8(11), port)
}

func TestCppCoreNum(t *testing.T) {
	r, _ := New(cppbus.Rfpc0, 0, 2, 1)
	assert.Equal(t, uint8((8*2+1)%16), r.CppCoreNum())
}

func TestString(t *testing.T) {
	r, _ := New(cppbus.Rfpc0, 1, 2, 3)
	assert.Equal(t, "irfpc0.cl1.g2.c3", r.String())
}

func TestGprRegAddr(t *testing.T) {
	assert.Equal(t, uint64(0x100a), X10.RegAddr())
	assert.Equal(t, "x10", X10.String())
}

func TestCsrRegAddr(t *testing.T) {
	assert.Equal(t, uint64(0x7b0), Dcsr.RegAddr())
	assert.Equal(t, "dcsr", Dcsr.String())
}
