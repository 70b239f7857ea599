// Command pyfustx compiles a transmit-profile YAML document into a
// TX7332 register image, the write-side counterpart to cmd/txdump.
package main

/*------------------------------------------------------------------
 *
 * Purpose:	Compile a transmit-profile YAML document (delay
 *		profiles, pulse profiles, and an optional module/array
 *		topology) into the register image the target chip
 *		requires, and print it as YAML or as a plain text dump.
 *
 * Usage:	pyfustx --profile profile.yaml [options]
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/OpenwaterHealth/open-pyfus/pulsepattern"
	"github.com/OpenwaterHealth/open-pyfus/regio"
	"github.com/OpenwaterHealth/open-pyfus/tx7332"
	"github.com/OpenwaterHealth/open-pyfus/txconfig"
	"github.com/OpenwaterHealth/open-pyfus/txlog"
)

func main() {
	var profilePath = pflag.String("profile", "", "transmit-profile YAML (required)")
	var scopeStr = pflag.String("scope", "set", "register scope: active, set, or all")
	var pack = pflag.Bool("pack", false, "collapse consecutive addresses into bursts")
	var packSingle = pflag.Bool("pack-single", false, "also collapse single-entry runs (implies --pack)")
	var swapBytes = pflag.Bool("swap-bytes", false, "apply byte-order swap to the output")
	var outPath = pflag.String("out", "", "output file (default stdout)")
	var format = pflag.String("format", "yaml", "output format: yaml or text")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - compile a transmit profile into a register image.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: pyfustx --profile profile.yaml [options]\n")
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	log := txlog.Default()
	pulsepattern.Warn = log.Warn

	if *profilePath == "" {
		log.Error("--profile is required")
		pflag.Usage()
		os.Exit(1)
	}

	if *packSingle {
		*pack = true
	}

	scope, err := parseScope(*scopeStr)
	if err != nil {
		log.Error("invalid --scope", "value", *scopeStr, "err", err)
		os.Exit(1)
	}

	if *format != "yaml" && *format != "text" {
		log.Error("invalid --format, must be yaml or text", "value", *format)
		os.Exit(1)
	}

	compiled, err := txconfig.Load(*profilePath)
	if err != nil {
		log.Error("loading profile", "path", *profilePath, "err", err)
		os.Exit(1)
	}

	regsAny, err := compiled.GetRegisters(scope, false)
	if err != nil {
		log.Error("compiling registers", "err", err)
		os.Exit(1)
	}

	out := io.Writer(os.Stdout)
	if *outPath != "" {
		f, ferr := os.Create(*outPath)
		if ferr != nil {
			log.Error("opening --out", "path", *outPath, "err", ferr)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	if err := write(out, string(compiled.Kind), regsAny, *format, *pack, *packSingle, *swapBytes, log); err != nil {
		log.Error("writing output", "err", err)
		os.Exit(1)
	}
}

func parseScope(s string) (tx7332.Scope, error) {
	switch tx7332.Scope(s) {
	case tx7332.ScopeActive, tx7332.ScopeSet, tx7332.ScopeAll:
		return tx7332.Scope(s), nil
	default:
		return "", fmt.Errorf("must be one of active, set, all")
	}
}

// write renders regsAny -- whose concrete type depends on kind, as
// returned by txconfig.Compiled.GetRegisters -- in the requested
// format.
func write(w io.Writer, kind string, regsAny any, format string, pack, packSingle, swapBytes bool, log *txlog.Logger) error {
	if format == "text" && pack {
		log.Warn("--pack has no effect with --format text, bursts require the yaml shape")
	}

	switch format {
	case "yaml":
		return writeYAML(w, kind, regsAny, pack, packSingle, swapBytes)
	default:
		return writeText(w, regsAny, swapBytes)
	}
}

func applySwap(regs map[uint16]uint32, swapBytes bool) map[uint16]uint32 {
	if swapBytes {
		return regio.SwapBytes(regs)
	}
	return regs
}

func writeYAML(w io.Writer, kind string, regsAny any, pack, packSingle, swapBytes bool) error {
	doc := regio.Document{Kind: kind}

	switch regs := regsAny.(type) {
	case map[uint16]uint32:
		doc.Registers = regio.ToEntries(applySwap(regs, swapBytes), pack, packSingle)
	case []map[uint16]uint32:
		doc.Modules = make([][]regio.Entry, len(regs))
		for i, r := range regs {
			doc.Modules[i] = regio.ToEntries(applySwap(r, swapBytes), pack, packSingle)
		}
	case map[uint8][]map[uint16]uint32:
		addrs := make([]uint8, 0, len(regs))
		for a := range regs {
			addrs = append(addrs, a)
		}
		sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
		doc.Array = make([]regio.AddrEntry, len(addrs))
		for i, addr := range addrs {
			txs := regs[addr]
			entries := make([][]regio.Entry, len(txs))
			for j, r := range txs {
				entries[j] = regio.ToEntries(applySwap(r, swapBytes), pack, packSingle)
			}
			doc.Array[i] = regio.AddrEntry{Addr: addr, Transmitters: entries}
		}
	default:
		return fmt.Errorf("pyfustx: unexpected compiled register type %T", regsAny)
	}

	header, err := txconfig.ManifestHeader("%Y-%m-%d %H:%M:%S")
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(doc)
}

func writeText(w io.Writer, regsAny any, swapBytes bool) error {
	switch regs := regsAny.(type) {
	case map[uint16]uint32:
		return regio.Fprint(w, applySwap(regs, swapBytes))
	case []map[uint16]uint32:
		for i, r := range regs {
			fmt.Fprintf(w, "# transmitter %d\n", i)
			if err := regio.Fprint(w, applySwap(r, swapBytes)); err != nil {
				return err
			}
		}
		return nil
	case map[uint8][]map[uint16]uint32:
		addrs := make([]uint8, 0, len(regs))
		for a := range regs {
			addrs = append(addrs, a)
		}
		sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
		for _, addr := range addrs {
			for i, r := range regs[addr] {
				fmt.Fprintf(w, "# module 0x%02X transmitter %d\n", addr, i)
				if err := regio.Fprint(w, applySwap(r, swapBytes)); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("pyfustx: unexpected compiled register type %T", regsAny)
	}
}

