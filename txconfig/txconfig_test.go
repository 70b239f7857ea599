package txconfig

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenwaterHealth/open-pyfus/tx7332"
)

func zeroesCSV(n int) string {
	vals := make([]string, n)
	for i := range vals {
		vals[i] = "0"
	}
	return strings.Join(vals, ", ")
}

func TestParseTransmitterDocument(t *testing.T) {
	data := []byte(`
kind: transmitter
bf_clk: 64000000
delay_profiles:
  - index: 1
    delays: [` + zeroesCSV(32) + `]
    units: s
pulse_profiles:
  - index: 1
    frequency: 400000
    cycles: 3
    duty_cycle: 0.66
`)
	c, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, KindTransmitter, c.Kind)
	require.NotNil(t, c.Transmitter)

	regs, err := c.GetRegisters(tx7332.ScopeActive, false)
	require.NoError(t, err)
	m, ok := regs.(map[uint16]uint32)
	require.True(t, ok)
	assert.NotEmpty(t, m)
}

func TestParseModuleDocumentRequiresI2CAddr(t *testing.T) {
	data := []byte(`
kind: module
bf_clk: 64000000
num_transmitters: 2
`)
	_, err := Parse(data)
	require.Error(t, err)
}

func TestParseModuleDocument(t *testing.T) {
	data := []byte(`
kind: module
bf_clk: 64000000
i2c_addr: 80
num_transmitters: 2
delay_profiles:
  - index: 1
    delays: [` + zeroesCSV(64) + `]
pulse_profiles:
  - index: 1
    frequency: 400000
    cycles: 3
`)
	c, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, KindModule, c.Kind)
	assert.Equal(t, uint8(80), c.Module.I2CAddr)

	regs, err := c.GetRegisters(tx7332.ScopeActive, false)
	require.NoError(t, err)
	list, ok := regs.([]map[uint16]uint32)
	require.True(t, ok)
	assert.Len(t, list, 2)
}

func TestParseArrayDocumentRejectsDuplicateAddresses(t *testing.T) {
	data := []byte(`
kind: array
bf_clk: 64000000
i2c_addrs: [80, 80]
num_transmitters: 2
`)
	_, err := Parse(data)
	require.Error(t, err)
}

func TestParseArrayDocument(t *testing.T) {
	data := []byte(`
kind: array
bf_clk: 64000000
i2c_addrs: [80, 81]
num_transmitters: 2
delay_profiles:
  - index: 1
    delays: [` + zeroesCSV(128) + `]
pulse_profiles:
  - index: 1
    frequency: 400000
    cycles: 3
`)
	c, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, KindArray, c.Kind)

	regs, err := c.GetRegisters(tx7332.ScopeActive, false)
	require.NoError(t, err)
	byAddr, ok := regs.(map[uint8][]map[uint16]uint32)
	require.True(t, ok)
	assert.Len(t, byAddr, 2)
}

func TestParseUnknownKind(t *testing.T) {
	_, err := Parse([]byte("kind: bogus\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestManifestHeaderFormats(t *testing.T) {
	header, err := ManifestHeader("%Y-%m-%d")
	require.NoError(t, err)
	assert.Contains(t, header, "# generated ")
}

