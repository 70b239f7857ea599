package txprofile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDelayProfileDefaultsApod(t *testing.T) {
	p, err := NewDelayProfile(1, []float64{1, 2, 3}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, p.Apod)
	assert.Equal(t, "s", p.Units)
}

func TestNewDelayProfileRejectsBadIndex(t *testing.T) {
	_, err := NewDelayProfile(17, []float64{1}, []int{1}, "s")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidProfileIndex))
}

func TestNewDelayProfileRejectsLengthMismatch(t *testing.T) {
	_, err := NewDelayProfile(1, []float64{1, 2}, []int{1}, "s")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLengthMismatch))
}

func TestDelayProfileSlice(t *testing.T) {
	delays := make([]float64, 64)
	apod := make([]int, 64)
	for i := range delays {
		delays[i] = float64(i)
		apod[i] = i % 2
	}
	p, err := NewDelayProfile(1, delays, apod, "s")
	require.NoError(t, err)

	lo := p.Slice(0, 32)
	hi := p.Slice(32, 32)
	assert.Equal(t, delays[0:32], lo.Delays)
	assert.Equal(t, delays[32:64], hi.Delays)
	assert.Equal(t, 1, lo.Index)
	assert.Equal(t, 1, hi.Index)
}

func TestNewPulseProfileDefaults(t *testing.T) {
	p, err := NewPulseProfile(1, 400e3, 3, 0, 0, false)
	require.NoError(t, err)
	assert.Equal(t, DefaultDutyCycle, p.DutyCycle)
	assert.Equal(t, DefaultTailCount, p.TailCount)
}

func TestNewPulseProfileRejectsBadIndex(t *testing.T) {
	_, err := NewPulseProfile(0, 400e3, 3, 0.5, 29, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidProfileIndex))
}

func TestConvertUnits(t *testing.T) {
	v, err := ConvertUnits(5, "us", "s")
	require.NoError(t, err)
	assert.InDelta(t, 5e-6, v, 1e-15)

	v, err = ConvertUnits(1, "ms", "ns")
	require.NoError(t, err)
	assert.InDelta(t, 1e6, v, 1e-6)
}

func TestConvertUnitsUnknown(t *testing.T) {
	_, err := ConvertUnits(1, "furlongs", "s")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownUnit))
}
