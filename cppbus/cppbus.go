// Package cppbus implements the CPP bus layer (spec component C5):
// word-granular reads and writes over an expansion-BAR aperture, with
// automatic base-address/offset splitting so the caller can address any
// 48-bit CPP transaction through a smaller mmapped window.
package cppbus

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/nfp-tools/cpp-tools/bar"
)

// Island identifies one of the platform's sixteen on-chip localities.
type Island int

const (
	Local Island = iota
	ChipExec
	Pcie0
	Pcie1
	Nbi0
	Nbi1
	Nbi2
	Nbi3
	Emu0
	Rfpc0
	Rfpc1
	Rfpc2
	Rfpc3
	Rfpc4
	Rfpc5
	Rfpc6
)

var islandNames = [...]string{
	"local", "chipExec", "pcie0", "pcie1", "nbi0", "nbi1", "nbi2", "nbi3",
	"emu0", "rfpc0", "rfpc1", "rfpc2", "rfpc3", "rfpc4", "rfpc5", "rfpc6",
}

// ID returns the island's stable numeric id.
func (i Island) ID() uint8 { return uint8(i) }

// String renders the island's human label.
func (i Island) String() string {
	if int(i) < 0 || int(i) >= len(islandNames) {
		return fmt.Sprintf("island(%d)", int(i))
	}
	return islandNames[i]
}

// IslandFromID maps a dense [0,16) id back to its Island.
func IslandFromID(id uint8) (Island, error) {
	if int(id) >= len(islandNames) {
		return 0, fmt.Errorf("invalid island ID: %d", id)
	}
	return Island(id), nil
}

// Target is the coarse destination class within an island.
type Target int

const (
	TargetNbi Target = iota
	TargetMem
	TargetPcie
	TargetArm
	TargetCt
	TargetCls
)

var targetIDs = map[Target]uint8{
	TargetNbi:  1,
	TargetMem:  7,
	TargetPcie: 9,
	TargetArm:  10,
	TargetCt:   14,
	TargetCls:  15,
}

// ID returns the target's 4-bit numeric id.
func (t Target) ID() uint8 { return targetIDs[t] }

// Length is the CPP length class.
type Length int

const (
	Len32 Length = iota
	Len64
	NoLen
)

// ID returns the length class's numeric id (NoLen is encoded as 3).
func (l Length) ID() uint8 {
	switch l {
	case Len32:
		return 0
	case Len64:
		return 1
	default:
		return 3
	}
}

// Bits returns the length class's bit width.
func (l Length) Bits() int {
	switch l {
	case Len32:
		return 32
	case Len64:
		return 64
	default:
		return 0
	}
}

// Bus is the CPP bus layer over a single translated aperture.
type Bus struct {
	Aperture bar.TranslatedAperture
}

// New wraps an aperture (expansion-BAR or explicit-BAR trigger) as a CPP bus.
func New(aperture bar.TranslatedAperture) *Bus {
	return &Bus{Aperture: aperture}
}

func (b *Bus) configure(island Island, target Target, action, token uint8, cppLen Length, address uint64) (uint64, error) {
	size := b.Aperture.ApertureSize()
	log2BarSize := bits.Len64(size) - 1
	mask := (uint64(1) << 48) - (uint64(1) << log2BarSize)
	base := address & mask

	if err := b.Aperture.Configure(island.ID(), target.ID(), action, token, base, cppLen.ID()); err != nil {
		return 0, err
	}
	return address - base, nil
}

// Read reads lengthWords 32-bit words from a CPP transaction's address.
func (b *Bus) Read(island Island, target Target, action, token uint8, cppLen Length, address uint64, lengthWords uint64) ([]uint32, error) {
	offset, err := b.configure(island, target, action, token, cppLen, address)
	if err != nil {
		return nil, err
	}
	raw, err := b.Aperture.Read(offset, lengthWords*4)
	if err != nil {
		return nil, err
	}
	return bytesToWords(raw), nil
}

// Write writes writeWords to a CPP transaction's address.
func (b *Bus) Write(island Island, target Target, action, token uint8, cppLen Length, address uint64, writeWords []uint32) error {
	offset, err := b.configure(island, target, action, token, cppLen, address)
	if err != nil {
		return err
	}
	return b.Aperture.Write(wordsToBytes(writeWords), offset)
}

func bytesToWords(raw []byte) []uint32 {
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
	}
	return words
}

func wordsToBytes(words []uint32) []byte {
	raw := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], w)
	}
	return raw
}
