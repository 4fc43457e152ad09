// Package vterm implements the virtual-terminal follower (spec
// component C11): a simple mailbox protocol in on-chip memory that lets
// an RFPC push console-style output to the host, polled over the
// memory-access layer.
package vterm

import (
	"fmt"
	"regexp"
	"time"

	"github.com/nfp-tools/cpp-tools/bar"
	"github.com/nfp-tools/cpp-tools/cppbus"
	"github.com/nfp-tools/cpp-tools/memaccess"
	"github.com/nfp-tools/cpp-tools/riscv"
)

// Mailbox layout, in bytes, relative to the terminal's base address.
const (
	lockOffset     = 0
	metadataOffset = 4
	lengthOffset   = 8
	dataOffset     = 12
)

const pollInterval = 100 * time.Millisecond

// vtmMetadata decodes the mailbox's metadata word: which RFPC currently
// holds the lock.
type vtmMetadata struct {
	core    uint32 // bits 2:0
	group   uint32 // bits 7:3
	island  uint32 // bits 15:8
	direction bool // bit 30
}

func parseVtmMetadata(raw uint32) vtmMetadata {
	return vtmMetadata{
		core:      raw & 0x7,
		group:     (raw >> 3) & 0x1F,
		island:    (raw >> 8) & 0xFF,
		direction: raw&(1<<30) != 0,
	}
}

// VirtualTerminal follows a single mailbox instance at (island, address).
type VirtualTerminal struct {
	Aperture *bar.Aperture
	Island   cppbus.Island
	MemType  memaccess.MemType
	Address  uint32
}

// New builds a VirtualTerminal, selecting EMEM for the memory-unit
// island and CTM for every other island.
func New(aperture *bar.Aperture, island cppbus.Island, address uint32) *VirtualTerminal {
	memType := memaccess.Ctm
	if island == cppbus.Emu0 {
		memType = memaccess.Emem
	}
	return &VirtualTerminal{Aperture: aperture, Island: island, MemType: memType, Address: address}
}

func (v *VirtualTerminal) readWord(offset uint32) (uint32, error) {
	words, err := memaccess.Read(v.Aperture, v.Island, v.MemType, memaccess.Atomic32, uint64(v.Address+offset), 1)
	if err != nil {
		return 0, err
	}
	return words[0], nil
}

func (v *VirtualTerminal) writeWord(offset uint32, value uint32) error {
	return memaccess.Write(v.Aperture, v.Island, v.MemType, memaccess.Atomic32, uint64(v.Address+offset), []uint32{value})
}

// IsLocked reports whether an RFPC currently holds the terminal's lock.
func (v *VirtualTerminal) IsLocked() (bool, error) {
	word, err := v.readWord(lockOffset)
	if err != nil {
		return false, err
	}
	return word == 0, nil
}

// Holder returns the identity of the RFPC holding the lock, or nil if
// the terminal is unlocked or its metadata is not yet valid (the state
// before the lock has ever been acquired).
func (v *VirtualTerminal) Holder() (*riscv.Rfpc, error) {
	locked, err := v.IsLocked()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, nil
	}

	raw, err := v.readWord(metadataOffset)
	if err != nil {
		return nil, err
	}
	meta := parseVtmMetadata(raw)

	if meta.island == 0 || meta.island&0x300 != 0 {
		return nil, nil
	}

	island, err := cppbus.IslandFromID(uint8(meta.island))
	if err != nil {
		return nil, nil
	}
	return riscv.HolderFromMetadataFields(island, uint8(meta.group), uint8(meta.core)), nil
}

// DataAvailable returns the number of 32-bit words of pending data, or 0
// if the terminal has no current holder.
func (v *VirtualTerminal) DataAvailable() (uint32, error) {
	holder, err := v.Holder()
	if err != nil {
		return 0, err
	}
	if holder == nil {
		return 0, nil
	}
	return v.readWord(lengthOffset)
}

// ReadBytes reads and ACKs the pending data, returning it as raw bytes.
// It returns an empty slice (not an error) if no data is pending.
func (v *VirtualTerminal) ReadBytes() ([]byte, error) {
	length, err := v.DataAvailable()
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}

	words, err := memaccess.Read(v.Aperture, v.Island, v.MemType, memaccess.Bulk32, uint64(v.Address+dataOffset), uint64(length))
	if err != nil {
		return nil, err
	}

	if err := v.writeWord(lengthOffset, 0); err != nil {
		return nil, err
	}

	data := make([]byte, 0, len(words)*4)
	for _, w := range words {
		data = append(data, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	return data, nil
}

// ReadString reads and ACKs the pending data as a UTF-8 string.
func (v *VirtualTerminal) ReadString() (string, error) {
	data, err := v.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WaitForData polls DataAvailable until it reports pending data, or
// returns an error once timeout has elapsed. A nil timeout waits
// indefinitely.
func (v *VirtualTerminal) WaitForData(timeout *time.Duration) error {
	var deadline time.Time
	if timeout != nil {
		deadline = time.Now().Add(*timeout)
	}

	for {
		n, err := v.DataAvailable()
		if err != nil {
			return err
		}
		if n != 0 {
			return nil
		}
		if timeout != nil && time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for virtual terminal data")
		}
		time.Sleep(pollInterval)
	}
}

// ReadBlock waits for data (bounded by startTimeout, indefinitely if
// nil), then accumulates successive reads (each bounded by endTimeout)
// until the buffer matches pattern or no more data is pending, returning
// the first match (or, if no match is found before data runs out,
// everything read so far). With a non-nil endTimeout, a wait that times
// out without new data returns an error instead.
func (v *VirtualTerminal) ReadBlock(startTimeout, endTimeout *time.Duration, pattern string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", err
	}

	if err := v.WaitForData(startTimeout); err != nil {
		return "", err
	}

	var block string
	for {
		n, err := v.DataAvailable()
		if err != nil {
			return "", err
		}
		if n == 0 {
			return block, nil
		}

		chunk, err := v.ReadString()
		if err != nil {
			return "", err
		}
		block += chunk

		if loc := re.FindString(block); loc != "" {
			return loc, nil
		}

		if endTimeout != nil {
			if err := v.WaitForData(endTimeout); err != nil {
				return "", err
			}
		} else {
			time.Sleep(pollInterval)
		}
	}
}

// FlushOne discards any pending data without reading it, by clearing the
// length word directly.
func (v *VirtualTerminal) FlushOne() error {
	return v.writeWord(lengthOffset, 0)
}

// Flush repeatedly discards pending data until none remains, or timeout
// elapses. A nil timeout flushes until data stops arriving.
func (v *VirtualTerminal) Flush(timeout *time.Duration) error {
	var deadline time.Time
	if timeout != nil {
		deadline = time.Now().Add(*timeout)
	}

	for {
		n, err := v.DataAvailable()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if timeout != nil && time.Now().After(deadline) {
			return fmt.Errorf("timed out flushing virtual terminal data")
		}
		if err := v.FlushOne(); err != nil {
			return err
		}
		time.Sleep(pollInterval)
	}
}
