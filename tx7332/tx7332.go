// Package tx7332 compiles delay and pulse profiles into the bit-exact
// register image for one 32-channel transmit chip.
//
// A Transmitter holds up to 16 delay profiles and up to 32 pulse
// profiles, one active of each, and synthesizes the complete register
// dictionary the chip requires: global control registers overlaid from
// the active profiles, plus per-profile delay and pattern data.
package tx7332

import (
	"fmt"
	"math"

	"github.com/OpenwaterHealth/open-pyfus/profileset"
	"github.com/OpenwaterHealth/open-pyfus/pulsepattern"
	"github.com/OpenwaterHealth/open-pyfus/regfield"
	"github.com/OpenwaterHealth/open-pyfus/txprofile"
)

// NumChannels is the channel count of one transmit chip.
const NumChannels = 32

// DefaultClkFreq is the beamformer system clock used when none is given.
const DefaultClkFreq = 64_000_000

// Register addresses and layout constants, bit-exact to the target
// ASIC. Do not paraphrase these.
const (
	AddrGlobalMode    uint16 = 0x00
	AddrStandby       uint16 = 0x01
	AddrDynPwr2       uint16 = 0x06
	AddrLdoPwr1       uint16 = 0x0B
	AddrTrswTurnoff   uint16 = 0x0C
	AddrDynPwr1       uint16 = 0x0F
	AddrLdoPwr2       uint16 = 0x14
	AddrTrswTurnon    uint16 = 0x15
	AddrDelaySel      uint16 = 0x16
	AddrPatternMode   uint16 = 0x18
	AddrPatternRepeat uint16 = 0x19
	AddrTrsw          uint16 = 0x1A
	AddrApod          uint16 = 0x1B
	AddrPatternSelG2  uint16 = 0x1E
	AddrPatternSelG1  uint16 = 0x1F

	delayDataBase   uint16 = 0x020
	delayDataLast   uint16 = 0x11F
	patternDataBase uint16 = 0x120
	patternDataLast uint16 = 0x19F

	delayProfileStride   = 16
	patternProfileStride = 4

	delayFieldWidth    uint8 = 13
	patternLengthWidth uint8 = 5
	patternLevelWidth  uint8 = 3

	maxRepeat        = 31
	maxElasticRepeat = 65535
)

// globalRegAddrs lists every address initialized on every call to
// GetRegisters, in the order the original tool declares them.
var globalRegAddrs = []uint16{
	AddrGlobalMode, AddrStandby, AddrDynPwr2, AddrLdoPwr1, AddrTrswTurnoff,
	AddrDynPwr1, AddrLdoPwr2, AddrTrswTurnon, AddrDelaySel, AddrPatternMode,
	AddrPatternRepeat, AddrPatternSelG1, AddrPatternSelG2, AddrTrsw, AddrApod,
}

// delayChannelMap gives, for each channel 1..32, the profile-relative
// row and least-significant bit of its delay field. Two channels share
// each row: the first at lsb 16, the second at lsb 0.
var delayChannelMap = buildDelayChannelMap()

func buildDelayChannelMap() map[int]struct{ row int; lsb uint8 } {
	order := [][2]int{
		{32, 30}, {28, 26}, {24, 22}, {20, 18},
		{31, 29}, {27, 25}, {23, 21}, {19, 17},
		{16, 14}, {12, 10}, {8, 6}, {4, 2},
		{15, 13}, {11, 9}, {7, 5}, {3, 1},
	}
	m := make(map[int]struct{ row int; lsb uint8 }, 32)
	for row, pair := range order {
		m[pair[0]] = struct{ row int; lsb uint8 }{row, 16}
		m[pair[1]] = struct{ row int; lsb uint8 }{row, 0}
	}
	return m
}

// Scope selects which profile data GetRegisters includes.
type Scope string

const (
	// ScopeActive includes only the currently active delay and pulse
	// profile's data registers.
	ScopeActive Scope = "active"
	// ScopeSet includes every stored profile's data registers.
	ScopeSet Scope = "set"
	// ScopeAll includes every stored profile's data registers plus a
	// zero fill of every unused delay/pattern data slot.
	ScopeAll Scope = "all"
)

type notFoundError struct {
	kind  string
	index int
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("tx7332: %s profile %d not found", e.kind, e.index)
}
func (notFoundError) Is(target error) bool { return target == ErrProfileNotFound }

// ErrProfileNotFound is returned when an operation references a profile
// index absent from the relevant list.
var ErrProfileNotFound error = notFoundError{}

type notReadyError struct{ reason string }

func (e notReadyError) Error() string { return "tx7332: not ready: " + e.reason }
func (notReadyError) Is(target error) bool { return target == ErrNotReady }

// ErrNotReady is returned by GetRegisters when no profiles exist, or
// none is active.
var ErrNotReady error = notReadyError{}

// ErrDuplicateProfile documents the invariant that Put in profileset.Set
// always replaces in place: a well-formed implementation never observes
// two entries sharing one index, so this error is declared for interface
// completeness but unreachable from this package's own operations.
var ErrDuplicateProfile = fmt.Errorf("tx7332: duplicate profile index")

// Transmitter is the per-chip register compiler: up to 16 delay
// profiles, up to 32 pulse profiles, one active of each.
type Transmitter struct {
	BfClk float64

	delays *profileset.Set[txprofile.DelayProfile]
	pulses *profileset.Set[txprofile.PulseProfile]

	activeDelay *int
	activePulse *int
}

// New returns an empty Transmitter clocked at bfClk. If bfClk is 0, it
// defaults to DefaultClkFreq.
func New(bfClk float64) *Transmitter {
	if bfClk == 0 {
		bfClk = DefaultClkFreq
	}
	return &Transmitter{
		BfClk:  bfClk,
		delays: profileset.New[txprofile.DelayProfile](),
		pulses: profileset.New[txprofile.PulseProfile](),
	}
}

// AddDelayProfile inserts p, replacing any existing profile sharing its
// index. activate, when non-nil, forces activation on or off; when nil,
// p is activated only if no delay profile is currently active.
func (t *Transmitter) AddDelayProfile(p txprofile.DelayProfile, activate *bool) error {
	if p.NumElements() != NumChannels {
		return fmt.Errorf("tx7332: delay profile must have %d elements, got %d: %w", NumChannels, p.NumElements(), txprofile.ErrLengthMismatch)
	}
	t.delays.Put(p)
	if shouldActivate(activate, t.activeDelay == nil) {
		idx := p.Index
		t.activeDelay = &idx
	}
	return nil
}

// AddPulseProfile inserts p, replacing any existing profile sharing its
// index, with the same activation semantics as AddDelayProfile.
func (t *Transmitter) AddPulseProfile(p txprofile.PulseProfile, activate *bool) error {
	t.pulses.Put(p)
	if shouldActivate(activate, t.activePulse == nil) {
		idx := p.Index
		t.activePulse = &idx
	}
	return nil
}

func shouldActivate(activate *bool, noneActive bool) bool {
	if activate != nil {
		return *activate
	}
	return noneActive
}

// RemoveDelayProfile removes the delay profile at index, clearing
// activation if it was the active one.
func (t *Transmitter) RemoveDelayProfile(index int) error {
	if !t.delays.Remove(index) {
		return notFoundError{kind: "delay", index: index}
	}
	if t.activeDelay != nil && *t.activeDelay == index {
		t.activeDelay = nil
	}
	return nil
}

// RemovePulseProfile removes the pulse profile at index, clearing
// activation if it was the active one.
func (t *Transmitter) RemovePulseProfile(index int) error {
	if !t.pulses.Remove(index) {
		return notFoundError{kind: "pulse", index: index}
	}
	if t.activePulse != nil && *t.activePulse == index {
		t.activePulse = nil
	}
	return nil
}

// ActivateDelayProfile sets the active delay profile.
func (t *Transmitter) ActivateDelayProfile(index int) error {
	if _, ok := t.delays.Get(index); !ok {
		return notFoundError{kind: "delay", index: index}
	}
	t.activeDelay = &index
	return nil
}

// ActivatePulseProfile sets the active pulse profile.
func (t *Transmitter) ActivatePulseProfile(index int) error {
	if _, ok := t.pulses.Get(index); !ok {
		return notFoundError{kind: "pulse", index: index}
	}
	t.activePulse = &index
	return nil
}

// DelayProfile returns the delay profile at index, or the active one
// when index is nil.
func (t *Transmitter) DelayProfile(index *int) (txprofile.DelayProfile, error) {
	idx, err := t.resolveIndex(index, t.activeDelay, "delay")
	if err != nil {
		return txprofile.DelayProfile{}, err
	}
	p, ok := t.delays.Get(idx)
	if !ok {
		return txprofile.DelayProfile{}, notFoundError{kind: "delay", index: idx}
	}
	return p, nil
}

// PulseProfile returns the pulse profile at index, or the active one
// when index is nil.
func (t *Transmitter) PulseProfile(index *int) (txprofile.PulseProfile, error) {
	idx, err := t.resolveIndex(index, t.activePulse, "pulse")
	if err != nil {
		return txprofile.PulseProfile{}, err
	}
	p, ok := t.pulses.Get(idx)
	if !ok {
		return txprofile.PulseProfile{}, notFoundError{kind: "pulse", index: idx}
	}
	return p, nil
}

func (t *Transmitter) resolveIndex(index, active *int, kind string) (int, error) {
	if index != nil {
		return *index, nil
	}
	if active != nil {
		return *active, nil
	}
	return 0, notFoundError{kind: kind, index: 0}
}

// DelayProfiles returns every stored delay profile in insertion order.
func (t *Transmitter) DelayProfiles() []txprofile.DelayProfile { return t.delays.Ordered() }

// PulseProfiles returns every stored pulse profile in insertion order.
func (t *Transmitter) PulseProfiles() []txprofile.PulseProfile { return t.pulses.Ordered() }

// ActiveDelayIndex reports the active delay profile index, if any.
func (t *Transmitter) ActiveDelayIndex() (int, bool) {
	if t.activeDelay == nil {
		return 0, false
	}
	return *t.activeDelay, true
}

// ActivePulseIndex reports the active pulse profile index, if any.
func (t *Transmitter) ActivePulseIndex() (int, bool) {
	if t.activePulse == nil {
		return 0, false
	}
	return *t.activePulse, true
}

// GetRegisters builds the complete register image under scope.
func (t *Transmitter) GetRegisters(scope Scope) (map[uint16]uint32, error) {
	if t.delays.Len() == 0 {
		return nil, notReadyError{reason: "no delay profiles have been added"}
	}
	if t.pulses.Len() == 0 {
		return nil, notReadyError{reason: "no pulse profiles have been added"}
	}
	if t.activeDelay == nil {
		return nil, notReadyError{reason: "no delay profile is active"}
	}
	if t.activePulse == nil {
		return nil, notReadyError{reason: "no pulse profile is active"}
	}

	regs := make(map[uint16]uint32)
	for _, a := range globalRegAddrs {
		regs[a] = 0
	}
	if scope == ScopeAll {
		for a := delayDataBase; a <= delayDataLast; a++ {
			regs[a] = 0
		}
		for a := patternDataBase; a <= patternDataLast; a++ {
			regs[a] = 0
		}
	}

	delayCtl, err := t.delayControlRegisters(nil)
	if err != nil {
		return nil, err
	}
	for a, v := range delayCtl {
		regs[a] = v
	}

	pulseCtl, err := t.pulseControlRegisters(nil)
	if err != nil {
		return nil, err
	}
	for a, v := range pulseCtl {
		regs[a] = v
	}

	switch scope {
	case ScopeActive:
		d, err := t.delayDataRegisters(t.activeDelay)
		if err != nil {
			return nil, err
		}
		for a, v := range d {
			regs[a] = v
		}
		p, err := t.pulseDataRegisters(t.activePulse)
		if err != nil {
			return nil, err
		}
		for a, v := range p {
			regs[a] = v
		}
	default: // ScopeSet, ScopeAll
		for _, dp := range t.delays.Ordered() {
			idx := dp.Index
			d, err := t.delayDataRegisters(&idx)
			if err != nil {
				return nil, err
			}
			for a, v := range d {
				regs[a] = v
			}
		}
		for _, pp := range t.pulses.Ordered() {
			idx := pp.Index
			p, err := t.pulseDataRegisters(&idx)
			if err != nil {
				return nil, err
			}
			for a, v := range p {
				regs[a] = v
			}
		}
	}

	return regs, nil
}

func (t *Transmitter) delayControlRegisters(index *int) (map[uint16]uint32, error) {
	p, err := t.DelayProfile(index)
	if err != nil {
		return nil, err
	}

	var apodReg uint32
	for i, a := range p.Apod {
		v, err := regfield.SetField(apodReg, uint32(1-a), uint8(i), 1)
		if err != nil {
			return nil, err
		}
		apodReg = v
	}

	var delaySelReg uint32
	delaySelReg, err = regfield.SetField(delaySelReg, uint32(p.Index-1), 12, 4)
	if err != nil {
		return nil, err
	}
	delaySelReg, err = regfield.SetField(delaySelReg, uint32(p.Index-1), 28, 4)
	if err != nil {
		return nil, err
	}

	return map[uint16]uint32{
		AddrDelaySel: delaySelReg,
		AddrApod:     apodReg,
	}, nil
}

func (t *Transmitter) pulseControlRegisters(index *int) (map[uint16]uint32, error) {
	p, err := t.PulseProfile(index)
	if err != nil {
		return nil, err
	}

	pattern, err := pulsepattern.Synthesize(p.Frequency, p.DutyCycle, t.BfClk)
	if err != nil {
		return nil, err
	}

	var repeatField, elasticRepeat uint32
	var elasticMode uint32
	if p.Cycles > maxRepeat+1 {
		pulseSamples := float64(p.Cycles) * t.BfClk / p.Frequency
		elasticRepeat = uint32(math.Floor(pulseSamples / 16))
		elasticMode = 1
		if elasticRepeat > maxElasticRepeat {
			return nil, fmt.Errorf("tx7332: elastic repeat %d exceeds %d: %w", elasticRepeat, maxElasticRepeat, pulsepattern.ErrPatternOverflow)
		}
	} else {
		repeatField = uint32(p.Cycles - 1)
	}

	modeReg := uint32(0x02000003)
	modeReg, err = regfield.SetField(modeReg, uint32(pattern.ClkDivN), 3, 3)
	if err != nil {
		return nil, err
	}
	modeReg, err = regfield.SetField(modeReg, boolBit(p.Invert), 6, 1)
	if err != nil {
		return nil, err
	}

	var repeatReg uint32
	repeatReg, err = regfield.SetField(repeatReg, repeatField, 1, 5)
	if err != nil {
		return nil, err
	}
	repeatReg, err = regfield.SetField(repeatReg, uint32(p.TailCount), 6, 5)
	if err != nil {
		return nil, err
	}
	repeatReg, err = regfield.SetField(repeatReg, elasticMode, 11, 1)
	if err != nil {
		return nil, err
	}
	repeatReg, err = regfield.SetField(repeatReg, elasticRepeat, 12, 16)
	if err != nil {
		return nil, err
	}

	var selReg uint32
	selReg, err = regfield.SetField(selReg, uint32(p.Index-1), 0, 6)
	if err != nil {
		return nil, err
	}

	return map[uint16]uint32{
		AddrPatternMode:   modeReg,
		AddrPatternRepeat: repeatReg,
		AddrPatternSelG1:  selReg,
		AddrPatternSelG2:  selReg,
	}, nil
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func delayLocation(channel, profileIndex int) (uint16, uint8) {
	loc := delayChannelMap[channel]
	addr := delayDataBase + uint16((profileIndex-1)*delayProfileStride+loc.row)
	return addr, loc.lsb
}

func patternLocation(period, profileIndex int) (addr uint16, lsbLevel, lsbLength uint8) {
	row := (period - 1) / 4
	pos := (period - 1) % 4
	addr = patternDataBase + uint16((profileIndex-1)*patternProfileStride+row)
	lsbLevel = uint8(pos) * 8
	lsbLength = lsbLevel + patternLevelWidth
	return addr, lsbLevel, lsbLength
}

func (t *Transmitter) delayDataRegisters(index *int) (map[uint16]uint32, error) {
	p, err := t.DelayProfile(index)
	if err != nil {
		return nil, err
	}
	regs := make(map[uint16]uint32)
	for c := 1; c <= NumChannels; c++ {
		addr, lsb := delayLocation(c, p.Index)
		seconds, err := txprofile.ConvertUnits(p.Delays[c-1], p.Units, "s")
		if err != nil {
			return nil, err
		}
		ticks := uint32(math.Round(seconds * t.BfClk))
		v, err := regfield.SetField(regs[addr], ticks, lsb, delayFieldWidth)
		if err != nil {
			return nil, fmt.Errorf("tx7332: channel %d delay tick %d: %w", c, ticks, err)
		}
		regs[addr] = v
	}
	return regs, nil
}

// patternLevelCodes maps a synthesized level (-1, 0, +1) to its 2-bit
// register encoding.
var patternLevelCodes = map[int8]uint32{
	-1: 0b01,
	0:  0b00,
	1:  0b10,
}

func (t *Transmitter) pulseDataRegisters(index *int) (map[uint16]uint32, error) {
	p, err := t.PulseProfile(index)
	if err != nil {
		return nil, err
	}
	pattern, err := pulsepattern.Synthesize(p.Frequency, p.DutyCycle, t.BfClk)
	if err != nil {
		return nil, err
	}

	regs := make(map[uint16]uint32)
	nPeriods := len(pattern.Levels)
	for i := 0; i < nPeriods; i++ {
		addr, lsbLevel, lsbLength := patternLocation(i+1, p.Index)
		v, err := regfield.SetField(regs[addr], patternLevelCodes[pattern.Levels[i]], lsbLevel, patternLevelWidth)
		if err != nil {
			return nil, err
		}
		v, err = regfield.SetField(v, uint32(pattern.Lengths[i]), lsbLength, patternLengthWidth)
		if err != nil {
			return nil, err
		}
		regs[addr] = v
	}
	if nPeriods < pulsepattern.MaxPeriods {
		addr, lsbLevel, lsbLength := patternLocation(nPeriods+1, p.Index)
		v, err := regfield.SetField(regs[addr], 0b111, lsbLevel, patternLevelWidth)
		if err != nil {
			return nil, err
		}
		v, err = regfield.SetField(v, 0, lsbLength, patternLengthWidth)
		if err != nil {
			return nil, err
		}
		regs[addr] = v
	}
	return regs, nil
}
