// Package xpbbus implements the XPB bus layer (spec component C6):
// chip-wide peripheral-bus addressing with island-ID embedding and an
// optional global-routing bit, layered over the CPP bus.
package xpbbus

import (
	"fmt"

	"github.com/nfp-tools/cpp-tools/bar"
	"github.com/nfp-tools/cpp-tools/cppbus"
	"github.com/nfp-tools/cpp-tools/explicitbar"
)

const (
	addressMask = 0x00FFFFFF
	globalBit   = 1 << 31
)

// ComposeAddress embeds island's id (or the global bit, substituting the
// destination island with ChipExec) into a 32-bit XPB address. address
// must fit in 24 bits.
func ComposeAddress(island cppbus.Island, address uint32, global bool) (xpbAddr uint32, destIsland cppbus.Island, err error) {
	if address&^addressMask != 0 {
		return 0, 0, fmt.Errorf("XPB address %#x uses more than 24 low bits", address)
	}

	xpbAddr = address & addressMask
	destIsland = island
	if global {
		xpbAddr |= globalBit
		destIsland = cppbus.ChipExec
	} else {
		xpbAddr |= uint32(island.ID()&0x7F) << 24
	}
	return xpbAddr, destIsland, nil
}

// Read reads length 32-bit words from the XPB address space through the
// CPP bus, forcing the aperture into Bulk map type first.
func Read(aperture *bar.Aperture, island cppbus.Island, address uint32, length uint64, global bool) ([]uint32, error) {
	if aperture.MapType != bar.Bulk {
		aperture.MapType = bar.Bulk
	}

	xpbAddr, destIsland, err := ComposeAddress(island, address, global)
	if err != nil {
		return nil, err
	}

	bus := cppbus.New(aperture)
	return bus.Read(destIsland, cppbus.TargetCt, 0, 0, cppbus.Len32, uint64(xpbAddr), length)
}

// Write writes writeWords to the XPB address space through the CPP bus,
// forcing the aperture into Bulk map type first.
func Write(aperture *bar.Aperture, island cppbus.Island, address uint32, writeWords []uint32, global bool) error {
	if aperture.MapType != bar.Bulk {
		aperture.MapType = bar.Bulk
	}

	xpbAddr, destIsland, err := ComposeAddress(island, address, global)
	if err != nil {
		return err
	}

	bus := cppbus.New(aperture)
	return bus.Write(destIsland, cppbus.TargetCt, 0, 0, cppbus.Len32, uint64(xpbAddr), writeWords)
}

// sigTypeReg signals an explicit command addressed at a chip register
// (as opposed to a memory transaction); see spec §4.5.
var sigTypeReg uint8 = 1

// ExplicitRead32 reads a single 32-bit word from the XPB address space
// through the explicit-BAR issuer, the path the RISC-V debug-module
// driver uses.
func ExplicitRead32(eb *explicitbar.ExplicitBar, island cppbus.Island, address uint32, global bool) (uint32, error) {
	xpbAddr, destIsland, err := ComposeAddress(island, address, global)
	if err != nil {
		return 0, err
	}

	// The explicit base address has a 64 KiB grain; the low 16 bits of
	// the XPB address select the word within the trigger window.
	if err := eb.Configure(explicitbar.ExplicitCfg{
		TgtIslandID: destIsland.ID(),
		Target:      cppbus.TargetCt.ID(),
		Action:      0,
		Token:       0,
		BaseAddr:    uint64(xpbAddr) &^ 0xFFFF,
		SigType:     &sigTypeReg,
		Length:      cppbus.Len32.ID(),
		ByteMask:    0xFF,
	}); err != nil {
		return 0, err
	}

	pushLen := uint64(1)
	words, err := eb.RunExplicitCmd(uint64(xpbAddr)&0xFFFF, nil, &pushLen, false)
	if err != nil {
		return 0, err
	}
	if len(words) == 0 {
		return 0, fmt.Errorf("explicit read returned no data")
	}
	return words[0], nil
}

// ExplicitWrite32 writes a single 32-bit word to the XPB address space
// through the explicit-BAR issuer.
func ExplicitWrite32(eb *explicitbar.ExplicitBar, island cppbus.Island, address uint32, value uint32, global bool) error {
	xpbAddr, destIsland, err := ComposeAddress(island, address, global)
	if err != nil {
		return err
	}

	if err := eb.Configure(explicitbar.ExplicitCfg{
		TgtIslandID: destIsland.ID(),
		Target:      cppbus.TargetCt.ID(),
		Action:      1,
		Token:       0,
		BaseAddr:    uint64(xpbAddr) &^ 0xFFFF,
		SigType:     &sigTypeReg,
		Length:      cppbus.Len32.ID(),
		ByteMask:    0xFF,
	}); err != nil {
		return err
	}

	_, err = eb.RunExplicitCmd(uint64(xpbAddr)&0xFFFF, []uint32{value}, nil, false)
	return err
}
