package cppbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAperture simulates PCIe and chip fabric for bus-stack tests: it
// records the last translation config and backs reads/writes with a
// plain in-memory buffer, exactly as a real aperture would back them
// with an mmapped region.
type mockAperture struct {
	size     uint64
	mem      []byte
	lastCfg  [6]uint64 // island, target, action, token, baseAddr, cppLen
}

func newMockAperture(size uint64) *mockAperture {
	return &mockAperture{size: size, mem: make([]byte, size)}
}

func (m *mockAperture) Configure(tgtIslandID, target, action, token uint8, baseAddr uint64, cppLen uint8) error {
	m.lastCfg = [6]uint64{uint64(tgtIslandID), uint64(target), uint64(action), uint64(token), baseAddr, uint64(cppLen)}
	return nil
}

func (m *mockAperture) Read(offset, length uint64) ([]byte, error) {
	out := make([]byte, length)
	copy(out, m.mem[offset:offset+length])
	return out, nil
}

func (m *mockAperture) Write(data []byte, offset uint64) error {
	copy(m.mem[offset:], data)
	return nil
}

func (m *mockAperture) ApertureSize() uint64 { return m.size }

func TestCppAtomicWriteThenRead(t *testing.T) {
	ap := newMockAperture(1 << 16)
	bus := New(ap)

	err := bus.Write(Rfpc0, TargetCt, 4, 0, Len32, 0, []uint32{5, 6, 7})
	require.NoError(t, err)

	words, err := bus.Read(Rfpc0, TargetCt, 4, 0, Len32, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint32{5, 6, 7}, words)
}

func TestIslandIDBijection(t *testing.T) {
	for id := uint8(0); id < 16; id++ {
		island, err := IslandFromID(id)
		require.NoError(t, err)
		assert.Equal(t, id, island.ID())
	}
	_, err := IslandFromID(16)
	require.Error(t, err)
}

func TestTargetIDs(t *testing.T) {
	assert.Equal(t, uint8(1), TargetNbi.ID())
	assert.Equal(t, uint8(7), TargetMem.ID())
	assert.Equal(t, uint8(9), TargetPcie.ID())
	assert.Equal(t, uint8(10), TargetArm.ID())
	assert.Equal(t, uint8(14), TargetCt.ID())
	assert.Equal(t, uint8(15), TargetCls.ID())
}
