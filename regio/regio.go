// Package regio shapes a compiled register image for the wire: packing
// consecutive addresses into burst writes, swapping byte order, and
// printing a register map in the original tool's sorted hex-dump form.
package regio

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"
)

func sortedAddrs(regs map[uint16]uint32) []uint16 {
	addrs := make([]uint16, 0, len(regs))
	for a := range regs {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// Pack collapses runs of consecutive addresses into burst-write arrays:
// a run {A: v0, A+1: v1, A+2: v2} becomes {A: []uint32{v0, v1, v2}}.
// When packSingle is false, single-entry runs are returned as a scalar
// uint32 rather than a one-element slice.
func Pack(regs map[uint16]uint32, packSingle bool) map[uint16]any {
	if len(regs) == 0 {
		return map[uint16]any{}
	}
	addrs := sortedAddrs(regs)

	out := make(map[uint16]any, len(regs))
	i := 0
	for i < len(addrs) {
		start := addrs[i]
		run := []uint32{regs[start]}
		j := i + 1
		for j < len(addrs) && addrs[j] == addrs[j-1]+1 {
			run = append(run, regs[addrs[j]])
			j++
		}
		if len(run) == 1 && !packSingle {
			out[start] = run[0]
		} else {
			out[start] = run
		}
		i = j
	}
	return out
}

// Unpack expands any []uint32 burst-write value back into scalar
// per-address entries, the inverse of Pack. It also tolerates the
// numeric types gopkg.in/yaml.v3 produces when decoding an interface{}
// field (int scalars, []interface{} lists), since a packed register
// image commonly arrives from a YAML round trip rather than straight
// from Pack.
func Unpack(regs map[uint16]any) (map[uint16]uint32, error) {
	out := make(map[uint16]uint32)
	for addr, v := range regs {
		switch val := v.(type) {
		case uint32:
			out[addr] = val
		case []uint32:
			for i, w := range val {
				out[addr+uint16(i)] = w
			}
		case []any:
			for i, w := range val {
				n, err := toUint32(w)
				if err != nil {
					return nil, fmt.Errorf("regio: burst value at address 0x%X: %w", addr, err)
				}
				out[addr+uint16(i)] = n
			}
		default:
			n, err := toUint32(v)
			if err != nil {
				return nil, fmt.Errorf("regio: unexpected register value type %T at address 0x%X", v, addr)
			}
			out[addr] = n
		}
	}
	return out, nil
}

func toUint32(v any) (uint32, error) {
	switch n := v.(type) {
	case uint32:
		return n, nil
	case int:
		return uint32(n), nil
	case int64:
		return uint32(n), nil
	case uint64:
		return uint32(n), nil
	default:
		return 0, fmt.Errorf("regio: cannot convert %T to a register value", v)
	}
}

// SwapBytes converts every register value between big- and
// little-endian byte order. Applying it twice returns the original
// image.
func SwapBytes(regs map[uint16]uint32) map[uint16]uint32 {
	out := make(map[uint16]uint32, len(regs))
	var buf [4]byte
	for addr, v := range regs {
		binary.LittleEndian.PutUint32(buf[:], v)
		out[addr] = binary.BigEndian.Uint32(buf[:])
	}
	return out
}

// Fprint writes regs to w sorted by address, one register per line,
// formatted "0xADDR: 0xVALUE" -- the Go equivalent of the original
// tool's print_dict helper.
func Fprint(w io.Writer, regs map[uint16]uint32) error {
	for _, a := range sortedAddrs(regs) {
		if _, err := fmt.Fprintf(w, "0x%03X: 0x%08X\n", a, regs[a]); err != nil {
			return err
		}
	}
	return nil
}

// Entry is one compiled register entry. Document and its relatives use
// slices of Entry rather than a raw Go map so a YAML encoding comes out
// address-ordered and reproducible -- map iteration order is not
// stable, so a plain map[uint16]uint32 would marshal in random order.
type Entry struct {
	Addr  uint16 `yaml:"addr"`
	Value any    `yaml:"value"`
}

// ToEntries renders regs as address-ordered Entries, applying Pack
// first when pack is true.
func ToEntries(regs map[uint16]uint32, pack, packSingle bool) []Entry {
	if !pack {
		addrs := sortedAddrs(regs)
		entries := make([]Entry, len(addrs))
		for i, a := range addrs {
			entries[i] = Entry{Addr: a, Value: regs[a]}
		}
		return entries
	}

	packed := Pack(regs, packSingle)
	addrs := make([]uint16, 0, len(packed))
	for a := range packed {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	entries := make([]Entry, len(addrs))
	for i, a := range addrs {
		entries[i] = Entry{Addr: a, Value: packed[a]}
	}
	return entries
}

// FromEntries reassembles a register map from Entries, expanding any
// burst arrays Pack produced -- the inverse of ToEntries.
func FromEntries(entries []Entry) (map[uint16]uint32, error) {
	raw := make(map[uint16]any, len(entries))
	for _, e := range entries {
		raw[e.Addr] = e.Value
	}
	return Unpack(raw)
}

// FprintEntries writes entries to w in their given order, rendering a
// burst-write value (a slice rather than a scalar) as a bracketed list
// of hex words. Unlike Fprint, it does not require the image to be
// unpacked to a flat map first, so cmd/txdump can print a packed
// register map as-is.
func FprintEntries(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		switch v := e.Value.(type) {
		case []any:
			words := make([]uint32, len(v))
			for i, n := range v {
				u, err := toUint32(n)
				if err != nil {
					return fmt.Errorf("regio: burst value at address 0x%X: %w", e.Addr, err)
				}
				words[i] = u
			}
			if err := fprintBurst(w, e.Addr, words); err != nil {
				return err
			}
		case []uint32:
			if err := fprintBurst(w, e.Addr, v); err != nil {
				return err
			}
		default:
			u, err := toUint32(v)
			if err != nil {
				return fmt.Errorf("regio: unexpected register value type %T at address 0x%X", v, e.Addr)
			}
			if _, err := fmt.Fprintf(w, "0x%03X: 0x%08X\n", e.Addr, u); err != nil {
				return err
			}
		}
	}
	return nil
}

func fprintBurst(w io.Writer, addr uint16, words []uint32) error {
	parts := make([]string, len(words))
	for i, v := range words {
		parts[i] = fmt.Sprintf("0x%08X", v)
	}
	_, err := fmt.Fprintf(w, "0x%03X: [%s]\n", addr, strings.Join(parts, ", "))
	return err
}

// AddrEntry is one I2C-addressed module's compiled transmitters, used
// by Document for an array-scope compile.
type AddrEntry struct {
	Addr         uint8     `yaml:"addr"`
	Transmitters [][]Entry `yaml:"transmitters"`
}

// Document is the top-level YAML shape cmd/pyfustx writes and
// cmd/txdump reads back. Exactly one of Registers, Modules, or Array is
// populated, selected by Kind ("transmitter", "module", or "array").
type Document struct {
	Kind      string      `yaml:"kind"`
	Registers []Entry     `yaml:"registers,omitempty"`
	Modules   [][]Entry   `yaml:"modules,omitempty"`
	Array     []AddrEntry `yaml:"array,omitempty"`
}
