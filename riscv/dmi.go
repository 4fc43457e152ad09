package riscv

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nfp-tools/cpp-tools/explicitbar"
	"github.com/nfp-tools/cpp-tools/nfpcommon"
	"github.com/nfp-tools/cpp-tools/xpbbus"
)

// RISC-V debug module register offsets, from section 3.12 of the RISC-V
// External Debug Support spec (v0.13.2). The DMI address map is in
// 32-bit words; these are pre-multiplied by 4 for the NFP's
// byte-addressed XPB.
const (
	dbgData0      = 0x10
	dbgData1      = 0x14
	dbgDmcontrol  = 0x40
	dbgDmstatus   = 0x44
	dbgAbstractcs = 0x58
	dbgCommand    = 0x5c
	dbgProgbuf0   = 0x80
)

const (
	dmcontrolHaltreq   = 1 << 31
	dmcontrolResumereq = 1 << 30
	dmcontrolDmactive  = 1 << 0

	dmstatusAllrunning = 1 << 11
	dmstatusAllhalted  = 1 << 9

	abstractcsBusy   = 1 << 12
	abstractcsCmderr = 0x7 << 8
)

const (
	pollTimeout  = 10 * time.Second
	pollInterval = 100 * time.Millisecond
)

// dmGlobal is always passed true for debug-module access, matching the
// source driver's xpb_explicit_* calls: the debug module sits in the
// RFPC's own island, not ChipExec, but every access routes through the
// explicit-BAR's register-signal path rather than a bulk memory access.
const dmGlobal = true

// Halt requests the core halt and polls dmstatus until ALLHALTED, or
// until the 10-second deadline elapses. A deadline is not an error: it
// is logged and Halt returns nil, leaving the caller to proceed with
// possibly-stale state rather than aborting a whole register or memory
// access over a single slow poll.
func Halt(eb *explicitbar.ExplicitBar, r *Rfpc) error {
	base, err := r.DmXpbBase()
	if err != nil {
		return err
	}
	hartsello, _ := r.DmHartsel()

	dmcontrol := uint32(hartsello<<16) | dmcontrolDmactive | dmcontrolHaltreq
	if err := xpbbus.ExplicitWrite32(eb, r.Island, base+dbgDmcontrol, dmcontrol, dmGlobal); err != nil {
		return err
	}

	deadline := time.Now().Add(pollTimeout)
	for time.Now().Before(deadline) {
		dmstatus, err := xpbbus.ExplicitRead32(eb, r.Island, base+dbgDmstatus, dmGlobal)
		if err != nil {
			return err
		}
		if dmstatus&dmstatusAllhalted != 0 {
			return nil
		}
		time.Sleep(pollInterval)
	}
	slog.Default().Warn("timed out waiting for hart to halt", "hart", r.String())
	return nil
}

// Resume requests the core resume and polls dmstatus until ALLRUNNING,
// or until the 10-second deadline elapses. As with Halt, a deadline is
// logged, not raised.
func Resume(eb *explicitbar.ExplicitBar, r *Rfpc) error {
	base, err := r.DmXpbBase()
	if err != nil {
		return err
	}
	hartsello, _ := r.DmHartsel()

	dmcontrol := uint32(hartsello<<16) | dmcontrolDmactive | dmcontrolResumereq
	if err := xpbbus.ExplicitWrite32(eb, r.Island, base+dbgDmcontrol, dmcontrol, dmGlobal); err != nil {
		return err
	}

	deadline := time.Now().Add(pollTimeout)
	for time.Now().Before(deadline) {
		dmstatus, err := xpbbus.ExplicitRead32(eb, r.Island, base+dbgDmstatus, dmGlobal)
		if err != nil {
			return err
		}
		if dmstatus&dmstatusAllrunning != 0 {
			return nil
		}
		time.Sleep(pollInterval)
	}
	slog.Default().Warn("timed out waiting for hart to resume", "hart", r.String())
	return nil
}

// AbstractCmd activates the hart, issues an abstract command of cmdtype
// with the given control field, polls abstractcs until not-busy, clears
// any CMDERR it finds, and returns the error code (0 if none).
func AbstractCmd(eb *explicitbar.ExplicitBar, r *Rfpc, cmdtype uint64, control uint64) (uint64, error) {
	base, err := r.DmXpbBase()
	if err != nil {
		return 0, err
	}
	hartsello, _ := r.DmHartsel()

	dmcontrol := uint32(hartsello<<16) | dmcontrolDmactive
	if err := xpbbus.ExplicitWrite32(eb, r.Island, base+dbgDmcontrol, dmcontrol, dmGlobal); err != nil {
		return 0, err
	}

	command := uint32(((cmdtype & 0xFF) << 24) | (control & 0xFFFFFF))
	if err := xpbbus.ExplicitWrite32(eb, r.Island, base+dbgCommand, command, dmGlobal); err != nil {
		return 0, err
	}

	var abstractcs uint32
	deadline := time.Now().Add(pollTimeout)
	for time.Now().Before(deadline) {
		abstractcs, err = xpbbus.ExplicitRead32(eb, r.Island, base+dbgAbstractcs, dmGlobal)
		if err != nil {
			return 0, err
		}
		if abstractcs&abstractcsBusy == 0 {
			break
		}
		time.Sleep(pollInterval)
	}
	if abstractcs&abstractcsBusy != 0 {
		slog.Default().Warn("timed out waiting for abstract command", "hart", r.String())
	}

	errCode := uint64((abstractcs & abstractcsCmderr) >> 8)
	if errCode != 0 {
		if err := xpbbus.ExplicitWrite32(eb, r.Island, base+dbgAbstractcs, abstractcsCmderr, dmGlobal); err != nil {
			return errCode, err
		}
	}
	return errCode, nil
}

// ReadReg halts r, reads the 64-bit value of register reg via an
// abstract command, and resumes r.
func ReadReg(eb *explicitbar.ExplicitBar, r *Rfpc, reg Reg) (uint64, error) {
	if err := Halt(eb, r); err != nil {
		return 0, err
	}
	val, err := ReadRegRaw(eb, r, reg.RegAddr())
	if rerr := Resume(eb, r); rerr != nil && err == nil {
		err = rerr
	}
	return val, err
}

// WriteReg halts r, writes value to register reg via an abstract
// command, and resumes r.
func WriteReg(eb *explicitbar.ExplicitBar, r *Rfpc, reg Reg, value uint64) error {
	if err := Halt(eb, r); err != nil {
		return err
	}
	err := WriteRegRaw(eb, r, reg.RegAddr(), value)
	if rerr := Resume(eb, r); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

// ReadRegRaw reads the 64-bit value of the register at regAddr via an
// abstract command, without halting or resuming r. r must already be
// halted; callers reading several registers in one debug-session step
// (e.g. the RSP server's "g" handler) should halt once, call this
// directly for each register, then resume once, rather than paying a
// halt/resume round trip per register.
func ReadRegRaw(eb *explicitbar.ExplicitBar, r *Rfpc, regAddr uint64) (uint64, error) {
	base, err := r.DmXpbBase()
	if err != nil {
		return 0, err
	}

	command := uint64(0x320000) | (regAddr & 0xFFFF)
	errCode, err := AbstractCmd(eb, r, 0, command)
	if err != nil {
		return 0, err
	}
	// A nonzero CMDERR means the debug module rejected the abstract
	// command (bad register number, core not halted, ...). The original
	// driver panics here; this one returns an error instead, since this
	// package runs inside a long-lived RSP server where one bad register
	// read must not take down unrelated debug sessions.
	if errCode != 0 {
		return 0, fmt.Errorf("abstract command returned error %d reading reg %#x on %s", errCode, regAddr, r)
	}

	lo, err := xpbbus.ExplicitRead32(eb, r.Island, base+dbgData0, dmGlobal)
	if err != nil {
		return 0, err
	}
	hi, err := xpbbus.ExplicitRead32(eb, r.Island, base+dbgData1, dmGlobal)
	if err != nil {
		return 0, err
	}
	return uint64(lo) | (uint64(hi) << 32), nil
}

// WriteRegRaw writes value to the register at regAddr via an abstract
// command, without halting or resuming r. r must already be halted;
// see ReadRegRaw.
func WriteRegRaw(eb *explicitbar.ExplicitBar, r *Rfpc, regAddr uint64, value uint64) error {
	base, err := r.DmXpbBase()
	if err != nil {
		return err
	}

	if err := xpbbus.ExplicitWrite32(eb, r.Island, base+dbgData0, uint32(value&0xFFFFFFFF), dmGlobal); err != nil {
		return err
	}
	if err := xpbbus.ExplicitWrite32(eb, r.Island, base+dbgData1, uint32(value>>32), dmGlobal); err != nil {
		return err
	}

	command := uint64(0x330000) | (regAddr & 0xFFFF)
	errCode, err := AbstractCmd(eb, r, 0, command)
	if err != nil {
		return err
	}
	if errCode != 0 {
		return fmt.Errorf("abstract command returned error %d writing reg %#x on %s", errCode, regAddr, r)
	}
	return nil
}

// gprA0 and gprA1 are the scratch GPRs the program-buffer memory
// read/write routines borrow, per the RISC-V calling convention.
const (
	gprA0 = X10
	gprA1 = X11
)

// ReadMemory reads the 64-bit words covering [address, address+4*length)
// from r's address space and returns them as 32-bit words starting at
// the 8-byte boundary at or below address, so the result can hold more
// than length words. It uses the program-buffer load-doubleword trick: GPR a0 is loaded with a target
// address, a `ld a0, 0(a0)` instruction in progbuf0 is executed, and the
// loaded value is read back out of a0. r must already be halted: unlike
// ReadReg/WriteReg, this does not halt or resume the core around the
// transaction, since a memory access is typically one step inside an
// already-halted debug session rather than a standalone operation.
func ReadMemory(eb *explicitbar.ExplicitBar, r *Rfpc, address uint64, length uint64) ([]uint32, error) {
	alignAddr, alignLen := nfpcommon.AlignTransaction64(address, length)
	wordLen := alignLen / 2

	tempA0, err := ReadRegRaw(eb, r, gprA0.RegAddr())
	if err != nil {
		return nil, err
	}

	base, err := r.DmXpbBase()
	if err != nil {
		return nil, err
	}

	memWords := make([]uint64, 0, wordLen)
	for wordIdx := uint64(0); wordIdx < wordLen; wordIdx++ {
		wordAddr := alignAddr + 8*wordIdx

		if err := xpbbus.ExplicitWrite32(eb, r.Island, base+dbgData0, uint32(wordAddr&0xFFFFFFFF), dmGlobal); err != nil {
			return nil, err
		}
		if err := xpbbus.ExplicitWrite32(eb, r.Island, base+dbgData1, uint32(wordAddr>>32), dmGlobal); err != nil {
			return nil, err
		}
		// ld a0, 0(a0): load doubleword from mem[a0] into a0.
		if err := xpbbus.ExplicitWrite32(eb, r.Island, base+dbgProgbuf0, 0x53503, dmGlobal); err != nil {
			return nil, err
		}
		// Load (data1<<32)|data0 into a0, then run the program buffer.
		errCode, err := AbstractCmd(eb, r, 0, 0x37100a)
		if err != nil {
			return nil, err
		}
		if errCode != 0 {
			return nil, fmt.Errorf("abstract command returned error %d reading memory at %#x on %s", errCode, wordAddr, r)
		}

		val, err := ReadRegRaw(eb, r, gprA0.RegAddr())
		if err != nil {
			return nil, err
		}
		memWords = append(memWords, val)
	}

	if err := WriteRegRaw(eb, r, gprA0.RegAddr(), tempA0); err != nil {
		return nil, err
	}

	return words64To32(memWords), nil
}

// WriteMemory writes data to r's address space at address, reading back
// and splicing in any unaligned leading/trailing 64-bit-word padding
// from memory first. r must already be halted; see ReadMemory.
func WriteMemory(eb *explicitbar.ExplicitBar, r *Rfpc, address uint64, data []uint32) error {
	alignAddr, alignLen := nfpcommon.AlignTransaction64(address, uint64(len(data)))

	newData := make([]uint32, 0, alignLen)
	if address != alignAddr {
		// Keep the existing low half of the first 64-bit word.
		head, err := ReadMemory(eb, r, alignAddr, 1)
		if err != nil {
			return err
		}
		newData = append(newData, head[0])
	}

	newData = append(newData, data...)

	if uint64(len(newData)) < alignLen {
		// Keep the existing high half of the last 64-bit word.
		tail, err := ReadMemory(eb, r, alignAddr+uint64(len(newData))*4, 1)
		if err != nil {
			return err
		}
		newData = append(newData, tail[1])
	}

	memWords := words32To64(newData)

	tempA0, err := ReadRegRaw(eb, r, gprA0.RegAddr())
	if err != nil {
		return err
	}
	tempA1, err := ReadRegRaw(eb, r, gprA1.RegAddr())
	if err != nil {
		return err
	}

	base, err := r.DmXpbBase()
	if err != nil {
		return err
	}

	for wordIdx, dataWord := range memWords {
		wordAddr := alignAddr + 8*uint64(wordIdx)

		if err := WriteRegRaw(eb, r, gprA1.RegAddr(), dataWord); err != nil {
			return err
		}

		if err := xpbbus.ExplicitWrite32(eb, r.Island, base+dbgData0, uint32(wordAddr&0xFFFFFFFF), dmGlobal); err != nil {
			return err
		}
		if err := xpbbus.ExplicitWrite32(eb, r.Island, base+dbgData1, uint32(wordAddr>>32), dmGlobal); err != nil {
			return err
		}
		// sd a1, 0(a0): store doubleword from a1 into mem[a0].
		if err := xpbbus.ExplicitWrite32(eb, r.Island, base+dbgProgbuf0, 0xB53023, dmGlobal); err != nil {
			return err
		}
		if errCode, err := AbstractCmd(eb, r, 0, 0x37100a); err != nil {
			return err
		} else if errCode != 0 {
			return fmt.Errorf("abstract command returned error %d writing memory at %#x on %s", errCode, wordAddr, r)
		}
	}

	if err := WriteRegRaw(eb, r, gprA0.RegAddr(), tempA0); err != nil {
		return err
	}
	return WriteRegRaw(eb, r, gprA1.RegAddr(), tempA1)
}

func words64To32(words []uint64) []uint32 {
	out := make([]uint32, 0, 2*len(words))
	for _, w := range words {
		out = append(out, uint32(w&0xFFFFFFFF), uint32(w>>32))
	}
	return out
}

func words32To64(words []uint32) []uint64 {
	out := make([]uint64, 0, (len(words)+1)/2)
	for i := 0; i < len(words); i += 2 {
		lo := uint64(words[i])
		var hi uint64
		if i+1 < len(words) {
			hi = uint64(words[i+1])
		}
		out = append(out, (hi<<32)|lo)
	}
	return out
}
