// Package pulsepattern synthesizes the chip's run-length pulse waveform
// encoding from a continuous (frequency, duty cycle) specification,
// escalating the clock divider until the waveform fits in the hardware's
// 16-segment budget.
package pulsepattern

import "fmt"

// MaxClkDivN is the highest clock-divider exponent the synthesizer will
// try before giving up.
const MaxClkDivN = 5

// MaxPeriods is the largest number of run-length segments the chip's
// pattern-data registers can hold for one pulse profile.
const MaxPeriods = 16

// MaxPeriodLength is the largest value the 5-bit encoded length field
// can hold.
const MaxPeriodLength = 30

type overflowError struct {
	segments int
}

func (e overflowError) Error() string {
	return fmt.Sprintf("pulsepattern: pattern requires too many periods (%d > %d) even at max clock divider", e.segments, MaxPeriods)
}

func (overflowError) Is(target error) bool { return target == ErrPatternOverflow }

// ErrPatternOverflow is returned when no clock divider up to MaxClkDivN
// yields a waveform with MaxPeriods segments or fewer.
var ErrPatternOverflow error = overflowError{}

// Warn is called whenever the synthesizer clamps a half-period's on-run
// to the 2-sample minimum because the requested duty cycle was too
// short to encode. It defaults to a no-op; cmd/pyfustx wires it to a
// txlog.Logger so the clamp is visible the way the original tool's
// logging.warning call was.
var Warn = func(msg string, kv ...any) {}

// Pattern is a synthesized run-length pulse waveform: len(Levels) ==
// len(Lengths) <= MaxPeriods. T and Y are an informational sampled
// rendering of the waveform and are not part of the chip's register
// encoding.
type Pattern struct {
	Levels   []int8
	Lengths  []uint8
	ClkDivN  int
	T        []float64
	Y        []int8
}

// Synthesize computes the run-length encoding of one cycle of a pulse at
// frequency Hz with the given duty cycle, driven by a bfClk Hz system
// clock. It escalates the clock divider (clk = bfClk / 2^n) until the
// waveform fits in MaxPeriods segments, or fails with ErrPatternOverflow.
func Synthesize(frequency, dutyCycle, bfClk float64) (Pattern, error) {
	var levels []int8
	var lengths []uint8

	for clkDivN := 0; clkDivN <= MaxClkDivN; clkDivN++ {
		clk := bfClk / float64(int(1)<<uint(clkDivN))
		periodSamples := int(clk / frequency)
		h1 := periodSamples / 2
		h2 := periodSamples - h1

		on1, off1 := splitHalf(h1, dutyCycle)
		on2, off2 := splitHalf(h2, dutyCycle)

		phaseLevels := [4]int8{1, 0, -1, 0}
		phaseSamples := [4]int{on1, off1, on2, off2}

		levels = levels[:0]
		lengths = lengths[:0]
		for i, samples := range phaseSamples {
			for samples > 0 {
				switch {
				case samples > MaxPeriodLength+2:
					if samples == MaxPeriodLength+3 {
						lengths = append(lengths, MaxPeriodLength-1)
						samples -= MaxPeriodLength + 1
					} else {
						lengths = append(lengths, MaxPeriodLength)
						samples -= MaxPeriodLength + 2
					}
					levels = append(levels, phaseLevels[i])
				default:
					lengths = append(lengths, uint8(samples-2))
					levels = append(levels, phaseLevels[i])
					samples = 0
				}
			}
		}

		if len(levels) <= MaxPeriods {
			clkN := clk
			t, y := sample(levels, lengths, clkN)
			return Pattern{
				Levels:  append([]int8(nil), levels...),
				Lengths: append([]uint8(nil), lengths...),
				ClkDivN: clkDivN,
				T:       t,
				Y:       y,
			}, nil
		}
	}
	return Pattern{}, overflowError{segments: len(levels)}
}

// splitHalf computes the on/off sample split for one half-period,
// applying the minimum-run clamp: a run shorter than 2 samples cannot be
// encoded, so if the leftover off-run would be 1 sample it is folded
// back into the on-run.
func splitHalf(h int, dutyCycle float64) (on, off int) {
	on = int(float64(h) * dutyCycle)
	if on < 2 {
		Warn("duty cycle too short, clamping on-run to minimum", "requested_samples", on, "half_period_samples", h)
		on = 2
	}
	off = h - on
	if off > 0 && off < 2 {
		off = 0
		on = h
	}
	return on, off
}

func sample(levels []int8, lengths []uint8, clkN float64) ([]float64, []int8) {
	total := 0
	for _, l := range lengths {
		total += int(l) + 2
	}
	t := make([]float64, total)
	y := make([]int8, total)
	idx := 0
	for i, lvl := range levels {
		n := int(lengths[i]) + 2
		for j := 0; j < n; j++ {
			t[idx] = float64(idx) / clkN
			y[idx] = lvl
			idx++
		}
	}
	return t, y
}
