// Package regfield provides masked read-modify-write access to fixed-width
// fields packed into 32-bit register words.
//
// Every higher layer of the transmit register compiler--profile encoding,
// pattern data, control registers--goes through SetField and GetField so
// that untouched bits of a register are never disturbed by a later write.
package regfield

import "fmt"

// RegisterWidth is the width in bits of a single hardware register.
const RegisterWidth = 32

// ErrValueOutOfRange is returned when a value does not fit in the
// requested field width.
var ErrValueOutOfRange error = valueOutOfRangeError{}

type valueOutOfRangeError struct{}

func (valueOutOfRangeError) Error() string { return "regfield: value out of range" }

// SetField replaces the width bits at offset lsb of reg with value,
// preserving every other bit. If width is 0, it defaults to
// RegisterWidth-lsb, matching the register's natural remaining span.
//
// It fails with ErrValueOutOfRange if value does not fit in width bits,
// or if lsb+width exceeds RegisterWidth.
func SetField(reg uint32, value uint32, lsb uint8, width uint8) (uint32, error) {
	if width == 0 {
		width = RegisterWidth - lsb
	}
	if lsb >= RegisterWidth || int(lsb)+int(width) > RegisterWidth {
		return 0, fmt.Errorf("regfield: field [%d..%d) exceeds %d-bit register: %w", lsb, int(lsb)+int(width), RegisterWidth, ErrValueOutOfRange)
	}
	mask := fieldMask(width)
	if value > mask {
		return 0, fmt.Errorf("regfield: value %d does not fit in %d bits: %w", value, width, ErrValueOutOfRange)
	}
	return (reg &^ (mask << lsb)) | ((value & mask) << lsb), nil
}

// MustSetField is SetField for call sites that have already validated
// their inputs and want a panic rather than an error on programmer
// mistakes.
func MustSetField(reg uint32, value uint32, lsb uint8, width uint8) uint32 {
	out, err := SetField(reg, value, lsb, width)
	if err != nil {
		panic(err)
	}
	return out
}

// GetField extracts the width bits at offset lsb of reg. If width is 0,
// it defaults to RegisterWidth-lsb.
func GetField(reg uint32, lsb uint8, width uint8) uint32 {
	if width == 0 {
		width = RegisterWidth - lsb
	}
	mask := fieldMask(width)
	return (reg >> lsb) & mask
}

func fieldMask(width uint8) uint32 {
	if width >= RegisterWidth {
		return ^uint32(0)
	}
	return (uint32(1) << width) - 1
}
