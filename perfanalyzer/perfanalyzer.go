// Package perfanalyzer drives the High Speed Performance Analyzer
// peripheral present on each island (spec component C9): an NFA-style
// trigger state machine feeding a capture FIFO and performance
// counters, configured through a set of write-only XPB registers that
// this package mirrors locally.
package perfanalyzer

import (
	"fmt"

	"github.com/nfp-tools/cpp-tools/bar"
	"github.com/nfp-tools/cpp-tools/cppbus"
	"github.com/nfp-tools/cpp-tools/xpbbus"
)

// Register offsets within the peripheral's XPB window.
const (
	regConfig                = 0x0000
	regStatus                = 0x0004
	regTimer                 = 0x0008
	regFifoControl           = 0x0010
	regFifoData              = 0x0014
	regTriggerStatus         = 0x0018
	regTriggerControl        = 0x001C
	regMaskCompare           = 0x0040
	maxFifoWords             = 4096
)

var (
	regTriggerCounterRestart = [2]uint32{0x0020, 0x0024}
	regTriggerCounter        = [2]uint32{0x0028, 0x002C}
	regMaskCompareDetect     = [8]uint32{0x0060, 0x0064, 0x0068, 0x006C, 0x0070, 0x0074, 0x0078, 0x007C}
	regTriggerTransition     = [8][2]uint32{
		{0x0080, 0x0084}, {0x0088, 0x008C}, {0x0090, 0x0094}, {0x0098, 0x009C},
		{0x00A0, 0x00A4}, {0x00A8, 0x00AC}, {0x00B0, 0x00B4}, {0x00B8, 0x00BC},
	}
	regCaptureTCAM       = [8]uint32{0x00C0, 0x00C4, 0x00C8, 0x00CC, 0x00D0, 0x00D4, 0x00D8, 0x00DC}
	regPerformanceCounter = [4]uint32{0x00E0, 0x00E4, 0x00E8, 0x00EC}
)

// HistogramSource selects which slice of the capture source feeds a histogram.
type HistogramSource uint32

const (
	LowCaptureSource HistogramSource = iota
	MidCaptureSource
	HighCaptureSource
)

// CaptureMode selects what a TCAM match does with captured data.
type CaptureMode uint32

const (
	StoreInFifo CaptureMode = iota
	ChangePerfCounters
	HistogramAndPerfCounters
)

// PerfCounterAction is the action applied to a performance counter.
type PerfCounterAction uint32

const (
	DoNothing PerfCounterAction = iota
	IncPerfCounter
	AddTriggerCounter0ToPerfCounter
	SetPerfCounterToZero
	SetPerfCounterValueToTriggerCounterValue
)

// CaptureStart selects which 32-bit section of the bus fills the FIFO first.
type CaptureStart uint32

const (
	LowBusInFifoFirst CaptureStart = iota
	MidBusInFifoFirst
	HighBusInFifoFirst
)

// CaptureMethod selects how much of the 96-bit bus is captured per sample.
type CaptureMethod uint32

const (
	PerfBus32orTs CaptureMethod = iota
	PerfBus32andTs
	PerfBus64
	PerfBus96andTs
)

// EventMethod selects when an event is raised on the event bus.
type EventMethod uint32

const (
	NoEvents EventMethod = iota
	EventOnFifoEmpty
	EventOnFifoFull
	EventOnExtTrigger
)

// TcamCaptureType selects what a TCAM capture unit does on a match.
type TcamCaptureType uint32

const (
	IgnoreTcam           TcamCaptureType = 0
	CaptureData          TcamCaptureType = 2
	CaptureDataIfChanged TcamCaptureType = 3
	PerfCounting         TcamCaptureType = 4
	ToggleTrigger        TcamCaptureType = 7
)

// TcamCaptureSource selects a TCAM capture unit's match input.
type TcamCaptureSource uint32

const (
	MaskCompareDetectors TcamCaptureSource = iota
	TriggerStateTransitions
)

const (
	triggerCmdStart = 1
	triggerCmdHalt  = 2
	triggerCmdIdle  = 3
)

// config is the local mirror of the write-only PAConfig register.
type config struct {
	active, enableAsValid, haltOnInactive, journalling bool
	histogramShift                                     uint32
	histogram128                                       bool
	eventMethod                                         EventMethod
	captureTrigger                                      uint32
	captureMethod                                       CaptureMethod
	captureStart                                        CaptureStart
	pcAction                                            PerfCounterAction
	pcStats                                             bool
	captureMode                                         CaptureMode
	histogramSource                                     HistogramSource
	rvDecompress, rvTrace64, rvTriggerDecomp, rvCaptureDecomp bool
}

func (c *config) word() uint32 {
	var w uint32
	if c.active {
		w |= 1 << 0
	}
	if c.enableAsValid {
		w |= 1 << 1
	}
	if c.haltOnInactive {
		w |= 1 << 2
	}
	if c.journalling {
		w |= 1 << 4
	}
	w |= (c.histogramShift & 0x7) << 5
	if c.histogram128 {
		w |= 1 << 8
	}
	w |= (uint32(c.eventMethod) & 0x3) << 9
	w |= (c.captureTrigger & 0x7) << 13
	w |= (uint32(c.captureMethod) & 0x3) << 16
	w |= (uint32(c.captureStart) & 0x3) << 18
	w |= (uint32(c.pcAction) & 0x7) << 20
	if c.pcStats {
		w |= 1 << 23
	}
	w |= (uint32(c.captureMode) & 0x3) << 24
	w |= (uint32(c.histogramSource) & 0x3) << 26
	if c.rvDecompress {
		w |= 1 << 28
	}
	if c.rvTrace64 {
		w |= 1 << 29
	}
	if c.rvTriggerDecomp {
		w |= 1 << 30
	}
	if c.rvCaptureDecomp {
		w |= 1 << 31
	}
	return w
}

// maskCompare is the local mirror of one of the 16 PAMaskCompare units.
type maskCompare struct {
	value, mask, maskCompareNum, selectByte uint32
	invert                                  bool
}

func (m *maskCompare) word() uint32 {
	w := (m.value & 0xFF) | ((m.mask & 0xFF) << 8) | ((m.maskCompareNum & 0xF) << 16)
	if m.invert {
		w |= 1 << 24
	}
	w |= (m.selectByte & 0xF) << 28
	return w
}

// maskCompareDetect is the local mirror of one of the 8 PAMaskCompareDetect units.
type maskCompareDetect struct {
	value, mask uint32
}

func (m *maskCompareDetect) word() uint32 {
	return (m.value & 0xFFFF) | ((m.mask & 0xFFFF) << 16)
}

// captureTCAM is the local mirror of one of the 8 PACaptureTCAM units.
type captureTCAM struct {
	mask, value uint32
	source      TcamCaptureSource
	invert      bool
	captureType TcamCaptureType
}

func (c *captureTCAM) word() uint32 {
	w := (c.mask & 0xFF) | ((c.value & 0xFF) << 8) | ((uint32(c.source) & 0x3) << 16)
	if c.invert {
		w |= 1 << 18
	}
	w |= (uint32(c.captureType) & 0x7) << 24
	return w
}

// transitionConfig is the local mirror of one state transition's two
// config words (PATriggerTransitionConfig0/1).
type transitionConfig struct {
	stateMask, mcdMask, mcdValue, countersZeroMask, countersNonzeroMask uint32
	extMask, invert                                                    bool
	destinationMask, counterRestart, counterInc, counterDec            uint32
}

func (t *transitionConfig) word0() uint32 {
	w := (t.stateMask & 0xFF) | ((t.mcdMask & 0xFF) << 8) | ((t.mcdValue & 0xFF) << 16)
	w |= (t.countersZeroMask & 0x3) << 24
	w |= (t.countersNonzeroMask & 0x3) << 26
	if t.extMask {
		w |= 1 << 28
	}
	if t.invert {
		w |= 1 << 29
	}
	return w
}

func (t *transitionConfig) word1() uint32 {
	w := t.destinationMask & 0xFF
	w |= (t.counterRestart & 0x3) << 16
	w |= (t.counterInc & 0x3) << 18
	w |= (t.counterDec & 0x3) << 20
	return w
}

// Status is the decoded, read-only PAStatus register.
type Status struct {
	Active, Journalling, Valid bool
	EventMethod                EventMethod
	CaptureTrigger              uint32
	CaptureMethod               CaptureMethod
	CaptureStart                CaptureStart
}

func parseStatus(raw uint32) Status {
	return Status{
		Active:         raw&(1<<0) != 0,
		Journalling:    raw&(1<<4) != 0,
		EventMethod:    EventMethod((raw >> 9) & 0x3),
		Valid:          raw&(1<<11) != 0,
		CaptureTrigger: (raw >> 13) & 0x7,
		CaptureMethod:  CaptureMethod((raw >> 16) & 0x3),
		CaptureStart:   CaptureStart((raw >> 18) & 0x3),
	}
}

// FifoControl is the decoded, read-only PAFifoControl register.
type FifoControl struct {
	ReadPtr, WritePtr uint32
	Empty, Overflow   bool
}

func parseFifoControl(raw uint32) FifoControl {
	return FifoControl{
		ReadPtr:  raw & 0x7FFF,
		WritePtr: (raw >> 15) & 0x7FFF,
		Empty:    raw&(1<<30) != 0,
		Overflow: raw&(1<<31) != 0,
	}
}

// TriggerStatus is the decoded, read-only PATriggerStatus register.
type TriggerStatus struct {
	Fsm           uint32
	TriggerStates uint32
	ExtPendingIn  bool
	TriggerOut    bool
	Timeout       uint32
}

func parseTriggerStatus(raw uint32) TriggerStatus {
	return TriggerStatus{
		Fsm:           raw & 0x3,
		TriggerStates: (raw >> 2) & 0xFF,
		ExtPendingIn:  raw&(1<<10) != 0,
		TriggerOut:    raw&(1<<11) != 0,
		Timeout:       (raw >> 12) & 0xFFFFF,
	}
}

var paBaseAddr = map[cppbus.Island]uint32{
	cppbus.Rfpc0: 0x000F0000,
}

// PerformanceAnalyzer owns the local register mirror and talks to one
// island's peripheral over its bulk expansion-BAR aperture.
type PerformanceAnalyzer struct {
	Aperture *bar.Aperture
	Island   cppbus.Island
	baseAddr uint32

	config             config
	maskCompareUnits   [16]maskCompare
	maskCompareDetect  [8]maskCompareDetect
	tcamCaptureUnits   [8]captureTCAM
	stateTransitions   [8]transitionConfig
}

// New builds a PerformanceAnalyzer for island, the only island this
// peripheral currently knows the base address for.
func New(aperture *bar.Aperture, island cppbus.Island) (*PerformanceAnalyzer, error) {
	base, ok := paBaseAddr[island]
	if !ok {
		return nil, fmt.Errorf("performance analyzer base address not known for island %s", island)
	}
	return &PerformanceAnalyzer{Aperture: aperture, Island: island, baseAddr: base}, nil
}

func (p *PerformanceAnalyzer) write(offset uint32, value uint32) error {
	return xpbbus.Write(p.Aperture, p.Island, p.baseAddr+offset, []uint32{value}, false)
}

func (p *PerformanceAnalyzer) read(offset uint32) (uint32, error) {
	words, err := xpbbus.Read(p.Aperture, p.Island, p.baseAddr+offset, 1, false)
	if err != nil {
		return 0, err
	}
	return words[0], nil
}

// GlobalConfig holds the fields SetGlobalConfig updates in the local
// configuration mirror.
type GlobalConfig struct {
	CaptureDecomp, TriggerDecomp, Trace64Decomp, Decompress bool
	HistSource                                              HistogramSource
	CaptureMode                                             CaptureMode
	PcStats                                                 bool
	PcAction                                                PerfCounterAction
	CaptureStart                                            CaptureStart
	CaptureMethod                                           CaptureMethod
	CaptureTrigger                                          uint8
	EventMethod                                             EventMethod
	Histogram128                                            bool
	HistogramShift                                          uint8
	Journalling, HaltOnInactive, EnableAsValid, Valid        bool
}

// SetGlobalConfig updates the local PAConfig mirror. It is not written to
// the peripheral until Apply is called.
func (p *PerformanceAnalyzer) SetGlobalConfig(c GlobalConfig) error {
	if c.CaptureTrigger >= 1<<3 {
		return fmt.Errorf("capture_trigger bitmask can only be 3 bits maximum")
	}
	if c.HistogramShift >= 1<<3 {
		return fmt.Errorf("histogram_shift value can only be 3 bits maximum")
	}

	p.config = config{
		active:           c.Valid,
		enableAsValid:    c.EnableAsValid,
		haltOnInactive:   c.HaltOnInactive,
		journalling:      c.Journalling,
		histogramShift:   uint32(c.HistogramShift),
		histogram128:     c.Histogram128,
		eventMethod:      c.EventMethod,
		captureTrigger:   uint32(c.CaptureTrigger),
		captureMethod:    c.CaptureMethod,
		captureStart:     c.CaptureStart,
		pcAction:         c.PcAction,
		pcStats:          c.PcStats,
		captureMode:      c.CaptureMode,
		histogramSource:  c.HistSource,
		rvDecompress:     c.Decompress,
		rvTrace64:        c.Trace64Decomp,
		rvTriggerDecomp:  c.TriggerDecomp,
		rvCaptureDecomp:  c.CaptureDecomp,
	}
	return nil
}

// SetMaskCompare configures one of the 16 mask/compare units against a
// byte of the 96-bit performance bus.
func (p *PerformanceAnalyzer) SetMaskCompare(byteNum, unitNum uint8, mask, compare uint8, invertOutput bool) error {
	if byteNum >= 1<<4 {
		return fmt.Errorf("byte_num can only be 4 bits maximum")
	}
	if unitNum >= 1<<4 {
		return fmt.Errorf("mask_compare_unit_num can only be 4 bits maximum")
	}
	p.maskCompareUnits[unitNum] = maskCompare{
		value:          uint32(compare),
		mask:           uint32(mask),
		maskCompareNum: uint32(unitNum),
		selectByte:     uint32(byteNum),
		invert:         invertOutput,
	}
	return nil
}

// SetMaskCompareDetect configures one of the 8 mask-compare-detect
// units fed by the 16 mask/compare units' outputs.
func (p *PerformanceAnalyzer) SetMaskCompareDetect(unitNum uint8, mask, compare uint16) error {
	if unitNum >= 1<<3 {
		return fmt.Errorf("unit_num can only be 3 bits maximum")
	}
	p.maskCompareDetect[unitNum] = maskCompareDetect{value: uint32(compare), mask: uint32(mask)}
	return nil
}

// SetCaptureTCAM configures one of the 8 TCAM capture units.
func (p *PerformanceAnalyzer) SetCaptureTCAM(unitNum uint8, captureType TcamCaptureType, captureSource TcamCaptureSource, mask, compare uint8, invertOutput bool) error {
	if unitNum >= 1<<3 {
		return fmt.Errorf("unit_num can only be 3 bits maximum")
	}
	p.tcamCaptureUnits[unitNum] = captureTCAM{
		mask:        uint32(mask),
		value:       uint32(compare),
		source:      captureSource,
		invert:      invertOutput,
		captureType: captureType,
	}
	return nil
}

// SetStateTransition configures one of the 8 trigger state transitions
// of the NFA trigger machine.
func (p *PerformanceAnalyzer) SetStateTransition(transitionNum uint8, stateMask, mcdMask, mcdCompare, countersZeroMask, countersNonzeroMask uint8, extMask, invert bool, counterDecMask, counterIncMask, counterRestartMask, destinationMask uint8) error {
	if transitionNum >= 1<<3 {
		return fmt.Errorf("transition_num can only be 3 bits maximum")
	}
	if countersZeroMask >= 1<<2 || countersNonzeroMask >= 1<<2 || counterDecMask >= 1<<2 || counterIncMask >= 1<<2 || counterRestartMask >= 1<<2 {
		return fmt.Errorf("counter masks can only be 2 bits maximum")
	}
	p.stateTransitions[transitionNum] = transitionConfig{
		stateMask:            uint32(stateMask),
		mcdMask:               uint32(mcdMask),
		mcdValue:              uint32(mcdCompare),
		countersZeroMask:      uint32(countersZeroMask),
		countersNonzeroMask:   uint32(countersNonzeroMask),
		extMask:               extMask,
		invert:                invert,
		destinationMask:       uint32(destinationMask),
		counterRestart:        uint32(counterRestartMask),
		counterInc:            uint32(counterIncMask),
		counterDec:            uint32(counterDecMask),
	}
	return nil
}

// Apply writes the full local configuration mirror out to the
// peripheral's registers.
func (p *PerformanceAnalyzer) Apply() error {
	if err := p.write(regConfig, p.config.word()); err != nil {
		return err
	}
	for _, mc := range p.maskCompareUnits {
		if err := p.write(regMaskCompare, mc.word()); err != nil {
			return err
		}
	}
	for i, mcd := range p.maskCompareDetect {
		if err := p.write(regMaskCompareDetect[i], mcd.word()); err != nil {
			return err
		}
	}
	for i, tr := range p.stateTransitions {
		if err := p.write(regTriggerTransition[i][0], tr.word0()); err != nil {
			return err
		}
		if err := p.write(regTriggerTransition[i][1], tr.word1()); err != nil {
			return err
		}
	}
	for i, tcam := range p.tcamCaptureUnits {
		if err := p.write(regCaptureTCAM[i], tcam.word()); err != nil {
			return err
		}
	}
	return nil
}

// Start applies the local configuration and leaves the peripheral
// armed per that configuration.
func (p *PerformanceAnalyzer) Start() error {
	return p.Apply()
}

// ReadStatus reads and decodes the peripheral's PAStatus register.
func (p *PerformanceAnalyzer) ReadStatus() (Status, error) {
	raw, err := p.read(regStatus)
	if err != nil {
		return Status{}, err
	}
	return parseStatus(raw), nil
}

// ReadTriggerStatus reads and decodes the peripheral's PATriggerStatus register.
func (p *PerformanceAnalyzer) ReadTriggerStatus() (TriggerStatus, error) {
	raw, err := p.read(regTriggerStatus)
	if err != nil {
		return TriggerStatus{}, err
	}
	return parseTriggerStatus(raw), nil
}

// ReadTimer reads the free-running performance analyzer timer.
func (p *PerformanceAnalyzer) ReadTimer() (uint32, error) {
	return p.read(regTimer)
}

// ReadPerfCounter reads one of the 4 performance counters.
func (p *PerformanceAnalyzer) ReadPerfCounter(counterNum uint8) (uint32, error) {
	if counterNum >= 1<<2 {
		return 0, fmt.Errorf("counter_num can only be 2 bits maximum")
	}
	return p.read(regPerformanceCounter[counterNum])
}

// ReadTriggerCounter reads one of the 2 trigger counters.
func (p *PerformanceAnalyzer) ReadTriggerCounter(counterNum uint8) (uint32, error) {
	if counterNum >= 1<<1 {
		return 0, fmt.Errorf("counter_num can only be 1 bit maximum")
	}
	return p.read(regTriggerCounter[counterNum])
}

// SetTriggerCounterRestart sets a trigger counter's restart value.
func (p *PerformanceAnalyzer) SetTriggerCounterRestart(counterNum uint8, value uint32) error {
	if counterNum >= 1<<1 {
		return fmt.Errorf("counter_num can only be 1 bit maximum")
	}
	return p.write(regTriggerCounterRestart[counterNum], value)
}

// TriggerIdle puts the trigger state machine into Idle from any other state.
func (p *PerformanceAnalyzer) TriggerIdle() error {
	return p.write(regTriggerControl, triggerCmdIdle<<0)
}

// TriggerHalt halts the trigger state machine if it is running.
func (p *PerformanceAnalyzer) TriggerHalt() error {
	return p.write(regTriggerControl, triggerCmdHalt<<0)
}

// TriggerStart starts the trigger state machine from Idle, with
// activeStates as the initial set of active trigger states and timeout
// cycles before automatic halt (0 = run indefinitely).
func (p *PerformanceAnalyzer) TriggerStart(activeStates uint8, timeout uint8) error {
	word := uint32(triggerCmdStart)
	word |= uint32(activeStates) << 2
	word |= uint32(timeout) << 12
	return p.write(regTriggerControl, word)
}

// ReadFifo reads numWords 32-bit words from the capture FIFO (all
// available words if numWords is 0), honoring the journalling/overflow
// and empty/fifo-depth semantics of the FifoControl register.
func (p *PerformanceAnalyzer) ReadFifo(numWords uint32) ([]uint32, error) {
	if numWords > maxFifoWords {
		return nil, fmt.Errorf("the maximum size of the FIFO is %d 32-bit words", maxFifoWords)
	}

	raw, err := p.read(regFifoControl)
	if err != nil {
		return nil, err
	}
	fifoControl := parseFifoControl(raw)

	var entriesInFifo uint32
	if fifoControl.Overflow && !p.config.journalling {
		entriesInFifo = maxFifoWords
	} else {
		entriesInFifo = fifoControl.WritePtr - fifoControl.ReadPtr
	}

	if fifoControl.Empty {
		return nil, fmt.Errorf("FIFO buffer is empty")
	}

	wordsToRead := entriesInFifo
	if numWords != 0 && numWords < entriesInFifo {
		wordsToRead = numWords
	}

	fifoWords := make([]uint32, 0, wordsToRead)
	for i := uint32(0); i < wordsToRead; i++ {
		word, err := p.read(regFifoData)
		if err != nil {
			return nil, err
		}
		fifoWords = append(fifoWords, word)
	}
	return fifoWords, nil
}
