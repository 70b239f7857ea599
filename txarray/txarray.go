// Package txarray composes M txmodule.Modules, each behind its own
// unique I2C address, into one array-wide profile manager: a
// whole-array delay/apodization vector is sliced by module stride and
// forwarded down the hierarchy to individual Transmitter chips.
package txarray

import (
	"fmt"

	"github.com/OpenwaterHealth/open-pyfus/profileset"
	"github.com/OpenwaterHealth/open-pyfus/tx7332"
	"github.com/OpenwaterHealth/open-pyfus/txmodule"
	"github.com/OpenwaterHealth/open-pyfus/txprofile"
)

type duplicateAddressError struct{ addr uint8 }

func (e duplicateAddressError) Error() string {
	return fmt.Sprintf("txarray: duplicate I2C address 0x%02X", e.addr)
}
func (duplicateAddressError) Is(target error) bool { return target == ErrDuplicateAddress }

// ErrDuplicateAddress is returned when an Array is constructed with
// repeated I2C addresses.
var ErrDuplicateAddress error = duplicateAddressError{}

// Array owns one txmodule.Module per unique I2C address, and stores
// the whole-array profile lists each Module's slice derives from.
type Array struct {
	BfClk           float64
	NumTransmitters int

	i2cAddrs []uint8
	modules  map[uint8]*txmodule.Module

	delays *profileset.Set[txprofile.DelayProfile]
	pulses *profileset.Set[txprofile.PulseProfile]

	activeDelay *int
	activePulse *int
}

// New returns an empty Array with one Module per address in i2cAddrs.
// It returns ErrDuplicateAddress if any address repeats.
func New(i2cAddrs []uint8, bfClk float64, numTransmitters int) (*Array, error) {
	if numTransmitters == 0 {
		numTransmitters = txmodule.DefaultNumTransmitters
	}
	if bfClk == 0 {
		bfClk = tx7332.DefaultClkFreq
	}
	seen := make(map[uint8]bool, len(i2cAddrs))
	modules := make(map[uint8]*txmodule.Module, len(i2cAddrs))
	for _, addr := range i2cAddrs {
		if seen[addr] {
			return nil, duplicateAddressError{addr: addr}
		}
		seen[addr] = true
		modules[addr] = txmodule.New(addr, bfClk, numTransmitters)
	}
	return &Array{
		BfClk:           bfClk,
		NumTransmitters: numTransmitters,
		i2cAddrs:        append([]uint8(nil), i2cAddrs...),
		modules:         modules,
		delays:          profileset.New[txprofile.DelayProfile](),
		pulses:          profileset.New[txprofile.PulseProfile](),
	}, nil
}

// Addresses returns the array's I2C addresses in the order given to New.
func (a *Array) Addresses() []uint8 { return append([]uint8(nil), a.i2cAddrs...) }

// Module returns the Module owning addr, if present.
func (a *Array) Module(addr uint8) (*txmodule.Module, bool) {
	m, ok := a.modules[addr]
	return m, ok
}

func (a *Array) moduleStride() int {
	return tx7332.NumChannels * a.NumTransmitters
}

func (a *Array) channelCount() int {
	return a.moduleStride() * len(a.i2cAddrs)
}

// AddDelayProfile validates the whole-array delay vector, stores it,
// and slices per-module ranges of width moduleStride to each Module in
// address order.
func (a *Array) AddDelayProfile(p txprofile.DelayProfile, activate *bool) error {
	want := a.channelCount()
	if p.NumElements() != want {
		return fmt.Errorf("txarray: delay profile must have %d elements, got %d: %w", want, p.NumElements(), txprofile.ErrLengthMismatch)
	}
	a.delays.Put(p)
	activateNow := resolveActivate(activate, a.activeDelay == nil)
	if activateNow {
		idx := p.Index
		a.activeDelay = &idx
	}
	stride := a.moduleStride()
	for i, addr := range a.i2cAddrs {
		slice := p.Slice(i*stride, stride)
		if err := a.modules[addr].AddDelayProfile(slice, &activateNow); err != nil {
			return err
		}
	}
	return nil
}

// AddPulseProfile stores the whole-array pulse profile, mirrored
// unchanged to every Module.
func (a *Array) AddPulseProfile(p txprofile.PulseProfile, activate *bool) error {
	a.pulses.Put(p)
	activateNow := resolveActivate(activate, a.activePulse == nil)
	if activateNow {
		idx := p.Index
		a.activePulse = &idx
	}
	for _, addr := range a.i2cAddrs {
		if err := a.modules[addr].AddPulseProfile(p, &activateNow); err != nil {
			return err
		}
	}
	return nil
}

func resolveActivate(activate *bool, noneActive bool) bool {
	if activate != nil {
		return *activate
	}
	return noneActive
}

// RemoveDelayProfile removes a delay profile from the array and every
// Module.
func (a *Array) RemoveDelayProfile(index int) error {
	if !a.delays.Remove(index) {
		return fmt.Errorf("txarray: delay profile %d not found: %w", index, tx7332.ErrProfileNotFound)
	}
	if a.activeDelay != nil && *a.activeDelay == index {
		a.activeDelay = nil
	}
	for _, addr := range a.i2cAddrs {
		if err := a.modules[addr].RemoveDelayProfile(index); err != nil {
			return err
		}
	}
	return nil
}

// RemovePulseProfile removes a pulse profile from the array and every
// Module.
func (a *Array) RemovePulseProfile(index int) error {
	if !a.pulses.Remove(index) {
		return fmt.Errorf("txarray: pulse profile %d not found: %w", index, tx7332.ErrProfileNotFound)
	}
	if a.activePulse != nil && *a.activePulse == index {
		a.activePulse = nil
	}
	for _, addr := range a.i2cAddrs {
		if err := a.modules[addr].RemovePulseProfile(index); err != nil {
			return err
		}
	}
	return nil
}

// DelayProfile returns the whole-array delay profile at index, or the
// active one when index is nil.
func (a *Array) DelayProfile(index *int) (txprofile.DelayProfile, error) {
	idx, err := resolveIndex(index, a.activeDelay)
	if err != nil {
		return txprofile.DelayProfile{}, err
	}
	p, ok := a.delays.Get(idx)
	if !ok {
		return txprofile.DelayProfile{}, fmt.Errorf("txarray: delay profile %d not found: %w", idx, tx7332.ErrProfileNotFound)
	}
	return p, nil
}

// PulseProfile returns the whole-array pulse profile at index, or the
// active one when index is nil.
func (a *Array) PulseProfile(index *int) (txprofile.PulseProfile, error) {
	idx, err := resolveIndex(index, a.activePulse)
	if err != nil {
		return txprofile.PulseProfile{}, err
	}
	p, ok := a.pulses.Get(idx)
	if !ok {
		return txprofile.PulseProfile{}, fmt.Errorf("txarray: pulse profile %d not found: %w", idx, tx7332.ErrProfileNotFound)
	}
	return p, nil
}

func resolveIndex(index, active *int) (int, error) {
	if index != nil {
		return *index, nil
	}
	if active != nil {
		return *active, nil
	}
	return 0, fmt.Errorf("txarray: no profile index given and none active: %w", tx7332.ErrProfileNotFound)
}

// ActivateDelayProfile activates a delay profile across the array and
// every Module.
func (a *Array) ActivateDelayProfile(index int) error {
	if _, ok := a.delays.Get(index); !ok {
		return fmt.Errorf("txarray: delay profile %d not found: %w", index, tx7332.ErrProfileNotFound)
	}
	for _, addr := range a.i2cAddrs {
		if err := a.modules[addr].ActivateDelayProfile(index); err != nil {
			return err
		}
	}
	a.activeDelay = &index
	return nil
}

// ActivatePulseProfile activates a pulse profile across the array and
// every Module.
func (a *Array) ActivatePulseProfile(index int) error {
	if _, ok := a.pulses.Get(index); !ok {
		return fmt.Errorf("txarray: pulse profile %d not found: %w", index, tx7332.ErrProfileNotFound)
	}
	for _, addr := range a.i2cAddrs {
		if err := a.modules[addr].ActivatePulseProfile(index); err != nil {
			return err
		}
	}
	a.activePulse = &index
	return nil
}

// RecomputeDelayProfiles rebuilds every Module's (and in turn every
// Transmitter's) delay slices from the array's own profile list.
func (a *Array) RecomputeDelayProfiles() error {
	stride := a.moduleStride()
	for i, addr := range a.i2cAddrs {
		m := a.modules[addr]
		if err := m.RecomputeDelayProfiles(); err != nil {
			return err
		}
		for _, dp := range m.DelayProfiles() {
			if err := m.RemoveDelayProfile(dp.Index); err != nil {
				return err
			}
		}
		for _, dp := range a.delays.Ordered() {
			activate := a.activeDelay != nil && dp.Index == *a.activeDelay
			slice := dp.Slice(i*stride, stride)
			if err := m.AddDelayProfile(slice, &activate); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecomputePulseProfiles rebuilds every Module's pulse profiles from
// the array's own profile list.
func (a *Array) RecomputePulseProfiles() error {
	for _, addr := range a.i2cAddrs {
		m := a.modules[addr]
		if err := m.RecomputePulseProfiles(); err != nil {
			return err
		}
		for _, pp := range m.PulseProfiles() {
			if err := m.RemovePulseProfile(pp.Index); err != nil {
				return err
			}
		}
		for _, pp := range a.pulses.Ordered() {
			activate := a.activePulse != nil && pp.Index == *a.activePulse
			if err := m.AddPulseProfile(pp, &activate); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetRegisters returns, for each I2C address, the owning Module's
// per-transmitter register images. When recompute is true, it first
// rebuilds every Module's profile slices from the array's own lists.
func (a *Array) GetRegisters(scope tx7332.Scope, recompute bool) (map[uint8][]map[uint16]uint32, error) {
	if recompute {
		if err := a.RecomputeDelayProfiles(); err != nil {
			return nil, err
		}
		if err := a.RecomputePulseProfiles(); err != nil {
			return nil, err
		}
	}
	out := make(map[uint8][]map[uint16]uint32, len(a.i2cAddrs))
	for _, addr := range a.i2cAddrs {
		regs, err := a.modules[addr].GetRegisters(scope, false)
		if err != nil {
			return nil, err
		}
		out[addr] = regs
	}
	return out, nil
}
