package txarray

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenwaterHealth/open-pyfus/tx7332"
	"github.com/OpenwaterHealth/open-pyfus/txprofile"
)

func wholeArrayDelay(t *testing.T, numModules, numTx int, index int, fill float64) txprofile.DelayProfile {
	t.Helper()
	n := tx7332.NumChannels * numTx * numModules
	delays := make([]float64, n)
	apod := make([]int, n)
	for i := range delays {
		delays[i] = fill
		apod[i] = 1
	}
	p, err := txprofile.NewDelayProfile(index, delays, apod, "s")
	require.NoError(t, err)
	return p
}

func pulse(t *testing.T, index int, freq float64, cycles int) txprofile.PulseProfile {
	t.Helper()
	p, err := txprofile.NewPulseProfile(index, freq, cycles, 0.66, 29, false)
	require.NoError(t, err)
	return p
}

func TestNewRejectsDuplicateAddresses(t *testing.T) {
	_, err := New([]uint8{0x50, 0x51, 0x50}, 64e6, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateAddress))
}

func TestNewAcceptsUniqueAddresses(t *testing.T) {
	arr, err := New([]uint8{0x50, 0x51}, 64e6, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0x50, 0x51}, arr.Addresses())
}

func TestAddDelayProfileRejectsWrongLength(t *testing.T) {
	arr, err := New([]uint8{0x50, 0x51}, 64e6, 2)
	require.NoError(t, err)
	p, err := txprofile.NewDelayProfile(1, []float64{1, 2, 3}, nil, "s")
	require.NoError(t, err)
	err = arr.AddDelayProfile(p, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, txprofile.ErrLengthMismatch))
}

func TestAddDelayProfileSlicesByModuleStride(t *testing.T) {
	arr, err := New([]uint8{0x50, 0x51}, 64e6, 2)
	require.NoError(t, err)
	stride := tx7332.NumChannels * 2
	n := stride * 2
	delays := make([]float64, n)
	apod := make([]int, n)
	for i := range delays {
		delays[i] = float64(i) * 1e-7
		apod[i] = 1
	}
	p, err := txprofile.NewDelayProfile(1, delays, apod, "s")
	require.NoError(t, err)
	require.NoError(t, arr.AddDelayProfile(p, nil))

	m0, ok := arr.Module(0x50)
	require.True(t, ok)
	m1, ok := arr.Module(0x51)
	require.True(t, ok)

	d0, err := m0.DelayProfile(nil)
	require.NoError(t, err)
	d1, err := m1.DelayProfile(nil)
	require.NoError(t, err)

	assert.Equal(t, delays[0], d0.Delays[0])
	assert.Equal(t, delays[stride], d1.Delays[0])
}

func TestAddPulseProfileMirroredToEveryModule(t *testing.T) {
	arr, err := New([]uint8{0x50, 0x51}, 64e6, 2)
	require.NoError(t, err)
	require.NoError(t, arr.AddDelayProfile(wholeArrayDelay(t, 2, 2, 1, 0), nil))
	require.NoError(t, arr.AddPulseProfile(pulse(t, 1, 400e3, 3), nil))

	for _, addr := range arr.Addresses() {
		m, _ := arr.Module(addr)
		p, err := m.PulseProfile(nil)
		require.NoError(t, err)
		assert.Equal(t, 400e3, p.Frequency)
	}
}

func TestRemoveDelayProfilePropagates(t *testing.T) {
	arr, err := New([]uint8{0x50, 0x51}, 64e6, 2)
	require.NoError(t, err)
	require.NoError(t, arr.AddDelayProfile(wholeArrayDelay(t, 2, 2, 1, 0), nil))
	require.NoError(t, arr.RemoveDelayProfile(1))

	for _, addr := range arr.Addresses() {
		m, _ := arr.Module(addr)
		_, err := m.DelayProfile(nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, tx7332.ErrProfileNotFound))
	}
}

func TestActivateDelayProfileAcrossModules(t *testing.T) {
	arr, err := New([]uint8{0x50, 0x51}, 64e6, 2)
	require.NoError(t, err)
	require.NoError(t, arr.AddDelayProfile(wholeArrayDelay(t, 2, 2, 1, 0), nil))
	boolFalse := false
	require.NoError(t, arr.AddDelayProfile(wholeArrayDelay(t, 2, 2, 2, 1e-6), &boolFalse))
	require.NoError(t, arr.ActivateDelayProfile(2))

	for _, addr := range arr.Addresses() {
		m, _ := arr.Module(addr)
		for _, tx := range m.Transmitters() {
			idx, ok := tx.ActiveDelayIndex()
			require.True(t, ok)
			assert.Equal(t, 2, idx)
		}
	}
}

func TestGetRegistersReturnsPerAddressModuleOutput(t *testing.T) {
	arr, err := New([]uint8{0x50, 0x51}, 64e6, 2)
	require.NoError(t, err)
	require.NoError(t, arr.AddDelayProfile(wholeArrayDelay(t, 2, 2, 1, 0), nil))
	require.NoError(t, arr.AddPulseProfile(pulse(t, 1, 400e3, 3), nil))

	regs, err := arr.GetRegisters(tx7332.ScopeActive, false)
	require.NoError(t, err)
	assert.Len(t, regs, 2)
	assert.Len(t, regs[0x50], 2)
	assert.Len(t, regs[0x51], 2)
}

func TestGetRegistersRecomputeRebuildsFromArrayProfiles(t *testing.T) {
	arr, err := New([]uint8{0x50, 0x51}, 64e6, 2)
	require.NoError(t, err)
	require.NoError(t, arr.AddDelayProfile(wholeArrayDelay(t, 2, 2, 1, 0), nil))
	require.NoError(t, arr.AddPulseProfile(pulse(t, 1, 400e3, 3), nil))

	m0, _ := arr.Module(0x50)
	require.NoError(t, m0.Transmitters()[0].RemoveDelayProfile(1))

	regs, err := arr.GetRegisters(tx7332.ScopeActive, true)
	require.NoError(t, err)
	assert.Len(t, regs[0x50], 2)
}
