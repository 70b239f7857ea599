// Package txmodule composes N Transmitter chips (default 2) behind one
// I2C address: a whole-module delay/apodization vector is sliced into
// per-chip segments and forwarded to each Transmitter, keeping
// activation state consistent across the hierarchy.
package txmodule

import (
	"fmt"

	"github.com/OpenwaterHealth/open-pyfus/profileset"
	"github.com/OpenwaterHealth/open-pyfus/tx7332"
	"github.com/OpenwaterHealth/open-pyfus/txprofile"
)

// DefaultNumTransmitters is the chip count per module when none is
// specified.
const DefaultNumTransmitters = 2

// Module owns NumTransmitters Transmitter compilers behind one I2C
// address, and stores the whole-module profile lists each
// Transmitter's slice derives from.
type Module struct {
	I2CAddr         uint8
	BfClk           float64
	NumTransmitters int

	delays *profileset.Set[txprofile.DelayProfile]
	pulses *profileset.Set[txprofile.PulseProfile]

	activeDelay *int
	activePulse *int

	transmitters []*tx7332.Transmitter
}

// New returns an empty Module of numTransmitters chips (DefaultNumTransmitters
// when 0) clocked at bfClk.
func New(i2cAddr uint8, bfClk float64, numTransmitters int) *Module {
	if numTransmitters == 0 {
		numTransmitters = DefaultNumTransmitters
	}
	if bfClk == 0 {
		bfClk = tx7332.DefaultClkFreq
	}
	txs := make([]*tx7332.Transmitter, numTransmitters)
	for i := range txs {
		txs[i] = tx7332.New(bfClk)
	}
	return &Module{
		I2CAddr:         i2cAddr,
		BfClk:           bfClk,
		NumTransmitters: numTransmitters,
		delays:          profileset.New[txprofile.DelayProfile](),
		pulses:          profileset.New[txprofile.PulseProfile](),
		transmitters:    txs,
	}
}

// Transmitters returns the module's per-chip compilers in order.
func (m *Module) Transmitters() []*tx7332.Transmitter { return m.transmitters }

// DelayProfiles returns every stored whole-module delay profile in
// insertion order.
func (m *Module) DelayProfiles() []txprofile.DelayProfile { return m.delays.Ordered() }

// PulseProfiles returns every stored whole-module pulse profile in
// insertion order.
func (m *Module) PulseProfiles() []txprofile.PulseProfile { return m.pulses.Ordered() }

func (m *Module) channelCount() int { return tx7332.NumChannels * m.NumTransmitters }

// AddDelayProfile validates the whole-module delay vector, stores it,
// and slices channel ranges [i*32, (i+1)*32) to each Transmitter.
func (m *Module) AddDelayProfile(p txprofile.DelayProfile, activate *bool) error {
	want := m.channelCount()
	if p.NumElements() != want {
		return fmt.Errorf("txmodule: delay profile must have %d elements, got %d: %w", want, p.NumElements(), txprofile.ErrLengthMismatch)
	}
	m.delays.Put(p)
	activateNow := resolveActivate(activate, m.activeDelay == nil)
	if activateNow {
		idx := p.Index
		m.activeDelay = &idx
	}
	for i, tx := range m.transmitters {
		slice := p.Slice(i*tx7332.NumChannels, tx7332.NumChannels)
		if err := tx.AddDelayProfile(slice, &activateNow); err != nil {
			return err
		}
	}
	return nil
}

// AddPulseProfile stores the whole-module pulse profile, mirrored
// unchanged to every Transmitter.
func (m *Module) AddPulseProfile(p txprofile.PulseProfile, activate *bool) error {
	m.pulses.Put(p)
	activateNow := resolveActivate(activate, m.activePulse == nil)
	if activateNow {
		idx := p.Index
		m.activePulse = &idx
	}
	for _, tx := range m.transmitters {
		if err := tx.AddPulseProfile(p, &activateNow); err != nil {
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

// RemoveDelayProfile removes a delay profile from the module and every
// Transmitter.
func (m *Module) RemoveDelayProfile(index int) error {
	if !m.delays.Remove(index) {
		return fmt.Errorf("txmodule: delay profile %d not found: %w", index, tx7332.ErrProfileNotFound)
	}
	if m.activeDelay != nil && *m.activeDelay == index {
		m.activeDelay = nil
	}
	for _, tx := range m.transmitters {
		if err := tx.RemoveDelayProfile(index); err != nil {
			return err
		}
	}
	return nil
}

// RemovePulseProfile removes a pulse profile from the module and every
// Transmitter.
func (m *Module) RemovePulseProfile(index int) error {
	if !m.pulses.Remove(index) {
		return fmt.Errorf("txmodule: pulse profile %d not found: %w", index, tx7332.ErrProfileNotFound)
	}
	if m.activePulse != nil && *m.activePulse == index {
		m.activePulse = nil
	}
	for _, tx := range m.transmitters {
		if err := tx.RemovePulseProfile(index); err != nil {
			return err
		}
	}
	return nil
}

// DelayProfile returns the whole-module delay profile at index, or the
// active one when index is nil.
func (m *Module) DelayProfile(index *int) (txprofile.DelayProfile, error) {
	idx, err := resolveIndex(index, m.activeDelay)
	if err != nil {
		return txprofile.DelayProfile{}, err
	}
	p, ok := m.delays.Get(idx)
	if !ok {
		return txprofile.DelayProfile{}, fmt.Errorf("txmodule: delay profile %d not found: %w", idx, tx7332.ErrProfileNotFound)
	}
	return p, nil
}

// PulseProfile returns the whole-module pulse profile at index, or the
// active one when index is nil.
func (m *Module) PulseProfile(index *int) (txprofile.PulseProfile, error) {
	idx, err := resolveIndex(index, m.activePulse)
	if err != nil {
		return txprofile.PulseProfile{}, err
	}
	p, ok := m.pulses.Get(idx)
	if !ok {
		return txprofile.PulseProfile{}, fmt.Errorf("txmodule: pulse profile %d not found: %w", idx, tx7332.ErrProfileNotFound)
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
	return 0, fmt.Errorf("txmodule: no profile index given and none active: %w", tx7332.ErrProfileNotFound)
}

// ActivateDelayProfile activates a delay profile across the module and
// every Transmitter.
func (m *Module) ActivateDelayProfile(index int) error {
	if _, ok := m.delays.Get(index); !ok {
		return fmt.Errorf("txmodule: delay profile %d not found: %w", index, tx7332.ErrProfileNotFound)
	}
	for _, tx := range m.transmitters {
		if err := tx.ActivateDelayProfile(index); err != nil {
			return err
		}
	}
	m.activeDelay = &index
	return nil
}

// ActivatePulseProfile activates a pulse profile across the module and
// every Transmitter.
func (m *Module) ActivatePulseProfile(index int) error {
	if _, ok := m.pulses.Get(index); !ok {
		return fmt.Errorf("txmodule: pulse profile %d not found: %w", index, tx7332.ErrProfileNotFound)
	}
	for _, tx := range m.transmitters {
		if err := tx.ActivatePulseProfile(index); err != nil {
			return err
		}
	}
	m.activePulse = &index
	return nil
}

// RecomputeDelayProfiles clears every Transmitter's delay slices and
// re-derives them from the module's own profile list.
func (m *Module) RecomputeDelayProfiles() error {
	for _, tx := range m.transmitters {
		for _, dp := range tx.DelayProfiles() {
			if err := tx.RemoveDelayProfile(dp.Index); err != nil {
				return err
			}
		}
	}
	for _, dp := range m.delays.Ordered() {
		activate := m.activeDelay != nil && dp.Index == *m.activeDelay
		for i, tx := range m.transmitters {
			slice := dp.Slice(i*tx7332.NumChannels, tx7332.NumChannels)
			if err := tx.AddDelayProfile(slice, &activate); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecomputePulseProfiles clears every Transmitter's pulse profiles and
// re-derives them from the module's own profile list.
func (m *Module) RecomputePulseProfiles() error {
	for _, tx := range m.transmitters {
		for _, pp := range tx.PulseProfiles() {
			if err := tx.RemovePulseProfile(pp.Index); err != nil {
				return err
			}
		}
	}
	for _, pp := range m.pulses.Ordered() {
		activate := m.activePulse != nil && pp.Index == *m.activePulse
		for _, tx := range m.transmitters {
			if err := tx.AddPulseProfile(pp, &activate); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetRegisters returns one register image per Transmitter, in chip
// order. When recompute is true, it first rebuilds every Transmitter's
// profile slices from the module's own lists.
func (m *Module) GetRegisters(scope tx7332.Scope, recompute bool) ([]map[uint16]uint32, error) {
	if recompute {
		if err := m.RecomputeDelayProfiles(); err != nil {
			return nil, err
		}
		if err := m.RecomputePulseProfiles(); err != nil {
			return nil, err
		}
	}
	out := make([]map[uint16]uint32, len(m.transmitters))
	for i, tx := range m.transmitters {
		regs, err := tx.GetRegisters(scope)
		if err != nil {
			return nil, err
		}
		out[i] = regs
	}
	return out, nil
}
