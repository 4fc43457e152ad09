package xpbbus

import (
	"testing"

	"github.com/nfp-tools/cpp-tools/cppbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeAddressLocal(t *testing.T) {
	addr, island, err := ComposeAddress(cppbus.Pcie0, 0x00B00040, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x02B00040), addr)
	assert.Equal(t, cppbus.Pcie0, island)
}

func TestComposeAddressGlobal(t *testing.T) {
	addr, island, err := ComposeAddress(cppbus.Pcie0, 0x00B00040, true)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x80B00040), addr)
	assert.Equal(t, cppbus.ChipExec, island)
}

func TestComposeAddressRejectsWideAddress(t *testing.T) {
	_, _, err := ComposeAddress(cppbus.Local, 0x01000000, false)
	require.Error(t, err)
}
