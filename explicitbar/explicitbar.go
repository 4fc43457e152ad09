// Package explicitbar implements the explicit-BAR command issuer (spec
// component C4): a richer aperture family whose trigger reads/writes
// carry command metadata and stage push/pull payloads through a small
// on-chip SRAM window.
package explicitbar

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/nfp-tools/cpp-tools/bar"
)

const (
	numExplBars = 4

	csrExplBaseOffset = 0x180
	csrExplBarOffset  = 0x10

	pcieIntSRAMBase      = 0x40000
	sramDataBaseOffset   = 0xE000
	sramDataExplBarBytes = 128

	barConfigBaseConfigSnoop = 0xA00
)

// ExplicitBar owns a trigger aperture (map type Explicit) and a data
// aperture (map type General, targeted at the on-chip SRAM window) for
// one index in [0, numExplBars).
type ExplicitBar struct {
	pciBdf        string
	explBarIndex  uint32
	triggerAp     *bar.Aperture
	dataAp        *bar.Aperture
	cachedCfg     [4]uint32
}

// New acquires the trigger and data apertures and programs the data
// aperture to target the on-chip explicit-command SRAM window.
func New(pciBdf string, explBarIndex uint32) (*ExplicitBar, error) {
	triggerAp, err := bar.New(pciBdf, nil)
	if err != nil {
		return nil, fmt.Errorf("acquiring trigger aperture: %w", err)
	}
	triggerAp.MapType = bar.Explicit
	if err := triggerAp.Configure(0, 0, 0, 0, 0, 0); err != nil {
		return nil, fmt.Errorf("configuring trigger aperture: %w", err)
	}

	dataAp, err := bar.New(pciBdf, nil)
	if err != nil {
		triggerAp.Close()
		return nil, fmt.Errorf("acquiring data aperture: %w", err)
	}
	dataAp.MapType = bar.General
	if err := dataAp.Configure(0, 0, 0, 0, uint64(pcieIntSRAMBase+sramDataBaseOffset), 0); err != nil {
		triggerAp.Close()
		dataAp.Close()
		return nil, fmt.Errorf("configuring data aperture: %w", err)
	}

	return &ExplicitBar{
		pciBdf:       pciBdf,
		explBarIndex: explBarIndex,
		triggerAp:    triggerAp,
		dataAp:       dataAp,
	}, nil
}

// Close releases both apertures.
func (e *ExplicitBar) Close() error {
	err1 := e.triggerAp.Close()
	err2 := e.dataAp.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (e *ExplicitBar) expaBarOffset() uint64 {
	return (e.triggerAp.ApertureSize() / numExplBars) * uint64(e.explBarIndex)
}

func (e *ExplicitBar) csrOffset() uint64 {
	return uint64(csrExplBaseOffset + e.explBarIndex*csrExplBarOffset)
}

func (e *ExplicitBar) sramDataOffset() uint64 {
	return uint64(pcieIntSRAMBase + sramDataBaseOffset + e.explBarIndex*sramDataExplBarBytes)
}

// ExplicitCfg holds the optional fields an explicit command may carry.
// SigType is mutually exclusive with the Master/Ref fields (Configure
// rejects both being set).
type ExplicitCfg struct {
	TgtIslandID   uint8
	Target        uint8
	Action        uint8
	Token         uint8
	BaseAddr      uint64
	SigType       *uint8
	Length        uint8
	ByteMask      uint8
	MasterIsland  *uint8
	DataMaster    *uint8
	DataRef       *uint16
	SignalMaster  *uint8
	SignalRef     *uint8
}

func (e *ExplicitBar) configWrite(cfg [4]uint32) error {
	if e.pciBdf == "" {
		// No backing device (simulated explicit BAR): there is no config
		// space to program.
		return nil
	}
	path := fmt.Sprintf("/sys/bus/pci/devices/%s/config", e.pciBdf)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	addr := int64(barConfigBaseConfigSnoop) + int64(e.csrOffset())
	var buf [16]byte
	for i, w := range cfg {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], w)
	}
	if _, err := f.WriteAt(buf[:], addr); err != nil {
		return fmt.Errorf("file %s write failed: %w", path, err)
	}
	return nil
}

// Configure programs the four explicit-command config words.
func (e *ExplicitBar) Configure(cfg ExplicitCfg) error {
	if cfg.SigType != nil && (cfg.MasterIsland != nil || cfg.DataMaster != nil || cfg.DataRef != nil || cfg.SignalMaster != nil || cfg.SignalRef != nil) {
		return fmt.Errorf("sig_type must not be set if any of the master or reference parameters are set")
	}

	if cfg.BaseAddr&0xFFFF != 0 {
		return fmt.Errorf("explicit command BARs use a 32-bit base address: the lower 16 bits of address %#010x would be truncated", cfg.BaseAddr)
	}

	var word0, word1, word2, word3 uint32

	word0 |= uint32(deref(cfg.SigType)&0x3) << 28
	word0 |= (uint32(cfg.Action) & 0x3F) << 20
	word0 |= (uint32(cfg.Token) & 0x3) << 16
	word0 |= (uint32(cfg.Length) & 0x1F) << 8
	word0 |= uint32(cfg.ByteMask) & 0xFF

	word1 |= (uint32(cfg.Target) & 0xF) << 28
	word1 |= (uint32(deref(cfg.MasterIsland)) & 0x7F) << 21
	word1 |= (uint32(deref(cfg.DataMaster)) & 0x1F) << 16
	word1 |= uint32(deref16(cfg.DataRef)) & 0xFFFF

	word2 |= 1 << 31
	word2 |= (uint32(cfg.TgtIslandID) & 0x7F) << 16
	word2 |= (uint32(deref(cfg.SignalRef)) & 0x7F) << 8
	word2 |= uint32(deref(cfg.SignalMaster)) & 0x1F

	word3 = uint32(cfg.BaseAddr >> 16)

	e.cachedCfg = [4]uint32{word0, word1, word2, word3}
	return e.configWrite(e.cachedCfg)
}

func deref(p *uint8) uint8 {
	if p == nil {
		return 0
	}
	return *p
}

func deref16(p *uint16) uint16 {
	if p == nil {
		return 0
	}
	return *p
}

func (e *ExplicitBar) trigger(offset, lengthWords uint64) ([]uint32, error) {
	raw, err := e.triggerAp.Read(e.expaBarOffset()+offset, lengthWords*4)
	if err != nil {
		return nil, err
	}
	return bytesToWords(raw), nil
}

func (e *ExplicitBar) writeData(data []uint32) error {
	if len(data) > sramDataExplBarBytes/4 {
		return fmt.Errorf("length of data exceeds the SRAM size")
	}
	return e.dataAp.Write(wordsToBytes(data), e.sramDataOffset())
}

func (e *ExplicitBar) readData(lengthWords uint64) ([]uint32, error) {
	if lengthWords > sramDataExplBarBytes/4 {
		return nil, fmt.Errorf("length of data exceeds the SRAM size")
	}
	raw, err := e.dataAp.Read(e.sramDataOffset(), lengthWords*4)
	if err != nil {
		return nil, err
	}
	return bytesToWords(raw), nil
}

var directPushSizes = map[uint64]bool{1: true, 4: true, 8: true}

// RunExplicitCmd triggers the explicit command programmed by the most
// recent Configure call. If pullData is set, it is staged through SRAM
// first. If pushLen is set, that many words are returned, read either
// from SRAM (when forceSramPush is set or pushLen isn't one of the
// direct sizes {1,4,8}) or directly from the trigger aperture.
func (e *ExplicitBar) RunExplicitCmd(offset uint64, pullData []uint32, pushLen *uint64, forceSramPush bool) ([]uint32, error) {
	if pullData != nil {
		if err := e.writeData(pullData); err != nil {
			return nil, err
		}
	}

	useSRAM := forceSramPush || pushLen == nil || !directPushSizes[*pushLen]

	if useSRAM {
		if _, err := e.trigger(offset, 1); err != nil {
			return nil, err
		}
		if pushLen != nil {
			return e.readData(*pushLen)
		}
		return nil, nil
	}

	return e.trigger(offset, *pushLen)
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
