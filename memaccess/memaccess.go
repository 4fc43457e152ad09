// Package memaccess implements the memory-access layer (spec component
// C7): mapping a (memory-class, engine) pair to the CPP
// (target, action, token, length-class) quadruple the bus stack needs.
package memaccess

import (
	"github.com/nfp-tools/cpp-tools/bar"
	"github.com/nfp-tools/cpp-tools/cppbus"
)

// Engine selects the on-chip memory engine used for a transfer.
type Engine int

const (
	Atomic32 Engine = iota
	Bulk32
	Bulk64
)

// readCommand returns the CPP (action, token) pair for a read via this engine.
func (e Engine) readCommand() (action, token uint8) {
	switch e {
	case Atomic32:
		return 34, 0
	case Bulk32:
		return 28, 0
	default:
		return 0, 0
	}
}

// writeCommand returns the CPP (action, token) pair for a write via this engine.
func (e Engine) writeCommand() (action, token uint8) {
	switch e {
	case Atomic32:
		return 4, 0
	case Bulk32:
		return 31, 0
	default:
		return 1, 0
	}
}

func (e Engine) cppLength() cppbus.Length {
	if e == Bulk64 {
		return cppbus.Len64
	}
	return cppbus.Len32
}

// MemType selects the memory class: external DRAM (Emem), cluster-target
// memory (Ctm), or cluster-local scratch (Cls).
type MemType int

const (
	Emem MemType = iota
	Ctm
	Cls
)

// Read reads length 32-bit words of mem-class memType via engine at
// address in island, forcing the aperture into Bulk map type first.
func Read(aperture *bar.Aperture, island cppbus.Island, memType MemType, engine Engine, address uint64, length uint64) ([]uint32, error) {
	if aperture.MapType != bar.Bulk {
		aperture.MapType = bar.Bulk
	}
	bus := cppbus.New(aperture)

	if memType == Cls {
		return bus.Read(island, cppbus.TargetCls, 0, 0, cppbus.Len32, address, length)
	}
	action, token := engine.readCommand()
	return bus.Read(island, cppbus.TargetMem, action, token, engine.cppLength(), address, length)
}

// Write writes values to mem-class memType via engine at address in
// island, forcing the aperture into Bulk map type first.
func Write(aperture *bar.Aperture, island cppbus.Island, memType MemType, engine Engine, address uint64, values []uint32) error {
	if aperture.MapType != bar.Bulk {
		aperture.MapType = bar.Bulk
	}
	bus := cppbus.New(aperture)

	if memType == Cls {
		return bus.Write(island, cppbus.TargetCls, 1, 0, cppbus.Len32, address, values)
	}
	action, token := engine.writeCommand()
	return bus.Write(island, cppbus.TargetMem, action, token, engine.cppLength(), address, values)
}
