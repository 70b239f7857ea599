// Package txconfig loads a transmit-profile YAML document and builds
// the corresponding tx7332.Transmitter, txmodule.Module, or
// txarray.Array, mirroring the decode-then-validate shape of the
// teacher's deviceid.go (gopkg.in/yaml.v3 unmarshal into typed structs,
// then a validation pass).
package txconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/lestrrat-go/strftime"
	"gopkg.in/yaml.v3"

	"github.com/OpenwaterHealth/open-pyfus/tx7332"
	"github.com/OpenwaterHealth/open-pyfus/txarray"
	"github.com/OpenwaterHealth/open-pyfus/txmodule"
	"github.com/OpenwaterHealth/open-pyfus/txprofile"
)

// Kind discriminates which level of the hierarchy a profile document
// describes.
type Kind string

const (
	KindTransmitter Kind = "transmitter"
	KindModule      Kind = "module"
	KindArray       Kind = "array"
)

type unknownKindError struct{ kind string }

func (e unknownKindError) Error() string {
	return fmt.Sprintf("txconfig: unknown kind %q, must be one of transmitter, module, array", e.kind)
}
func (unknownKindError) Is(target error) bool { return target == ErrUnknownKind }

// ErrUnknownKind is returned when a document's kind field is missing or
// unrecognized.
var ErrUnknownKind error = unknownKindError{}

type delayProfileDoc struct {
	Index    int       `yaml:"index"`
	Delays   []float64 `yaml:"delays"`
	Apod     []int     `yaml:"apod"`
	Units    string    `yaml:"units"`
	Activate *bool     `yaml:"activate"`
}

type pulseProfileDoc struct {
	Index     int     `yaml:"index"`
	Frequency float64 `yaml:"frequency"`
	Cycles    int     `yaml:"cycles"`
	DutyCycle float64 `yaml:"duty_cycle"`
	TailCount int     `yaml:"tail_count"`
	Invert    bool    `yaml:"invert"`
	Activate  *bool   `yaml:"activate"`
}

type doc struct {
	Kind            string            `yaml:"kind"`
	BfClk           float64           `yaml:"bf_clk"`
	NumTransmitters int               `yaml:"num_transmitters"`
	I2CAddr         *int              `yaml:"i2c_addr"`
	I2CAddrs        []int             `yaml:"i2c_addrs"`
	DelayProfiles   []delayProfileDoc `yaml:"delay_profiles"`
	PulseProfiles   []pulseProfileDoc `yaml:"pulse_profiles"`
}

// Compiled wraps exactly one of a Transmitter, Module, or Array, built
// from a profile document, together with the Kind that selects which
// field is populated.
type Compiled struct {
	Kind        Kind
	Transmitter *tx7332.Transmitter
	Module      *txmodule.Module
	Array       *txarray.Array
}

// GetRegisters compiles the register image for whichever level this
// Compiled document describes. The return type varies with Kind:
// map[uint16]uint32 for a transmitter, []map[uint16]uint32 for a
// module, map[uint8][]map[uint16]uint32 for an array.
func (c *Compiled) GetRegisters(scope tx7332.Scope, recompute bool) (any, error) {
	switch c.Kind {
	case KindTransmitter:
		return c.Transmitter.GetRegisters(scope)
	case KindModule:
		return c.Module.GetRegisters(scope, recompute)
	case KindArray:
		return c.Array.GetRegisters(scope, recompute)
	default:
		return nil, unknownKindError{kind: string(c.Kind)}
	}
}

// Load reads and parses a transmit-profile YAML document from path and
// builds the corresponding Transmitter/Module/Array.
func Load(path string) (*Compiled, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("txconfig: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a transmit-profile YAML document and builds the
// corresponding Transmitter/Module/Array.
func Parse(data []byte) (*Compiled, error) {
	var d doc
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("txconfig: parsing document: %w", err)
	}

	switch Kind(d.Kind) {
	case KindTransmitter:
		tx := tx7332.New(d.BfClk)
		if err := applyProfiles(tx.AddDelayProfile, tx.AddPulseProfile, d); err != nil {
			return nil, err
		}
		return &Compiled{Kind: KindTransmitter, Transmitter: tx}, nil

	case KindModule:
		if d.I2CAddr == nil {
			return nil, fmt.Errorf("txconfig: module document requires i2c_addr")
		}
		m := txmodule.New(uint8(*d.I2CAddr), d.BfClk, d.NumTransmitters)
		if err := applyProfiles(m.AddDelayProfile, m.AddPulseProfile, d); err != nil {
			return nil, err
		}
		return &Compiled{Kind: KindModule, Module: m}, nil

	case KindArray:
		addrs := make([]uint8, len(d.I2CAddrs))
		for i, a := range d.I2CAddrs {
			addrs[i] = uint8(a)
		}
		arr, err := txarray.New(addrs, d.BfClk, d.NumTransmitters)
		if err != nil {
			return nil, fmt.Errorf("txconfig: %w", err)
		}
		if err := applyProfiles(arr.AddDelayProfile, arr.AddPulseProfile, d); err != nil {
			return nil, err
		}
		return &Compiled{Kind: KindArray, Array: arr}, nil

	default:
		return nil, unknownKindError{kind: d.Kind}
	}
}

func applyProfiles(
	addDelay func(txprofile.DelayProfile, *bool) error,
	addPulse func(txprofile.PulseProfile, *bool) error,
	d doc,
) error {
	for _, dp := range d.DelayProfiles {
		units := dp.Units
		if units == "" {
			units = "s"
		}
		p, err := txprofile.NewDelayProfile(dp.Index, dp.Delays, dp.Apod, units)
		if err != nil {
			return fmt.Errorf("txconfig: delay profile %d: %w", dp.Index, err)
		}
		if err := addDelay(p, dp.Activate); err != nil {
			return fmt.Errorf("txconfig: delay profile %d: %w", dp.Index, err)
		}
	}
	for _, pp := range d.PulseProfiles {
		p, err := txprofile.NewPulseProfile(pp.Index, pp.Frequency, pp.Cycles, pp.DutyCycle, pp.TailCount, pp.Invert)
		if err != nil {
			return fmt.Errorf("txconfig: pulse profile %d: %w", pp.Index, err)
		}
		if err := addPulse(p, pp.Activate); err != nil {
			return fmt.Errorf("txconfig: pulse profile %d: %w", pp.Index, err)
		}
	}
	return nil
}

// ManifestHeader renders the "# generated <timestamp>" comment line
// cmd/pyfustx prepends to a YAML register dump, formatted with the
// given strftime layout.
func ManifestHeader(strftimeLayout string) (string, error) {
	formatted, err := strftime.Format(strftimeLayout, time.Now())
	if err != nil {
		return "", fmt.Errorf("txconfig: formatting manifest timestamp: %w", err)
	}
	return fmt.Sprintf("# generated %s\n", formatted), nil
}
