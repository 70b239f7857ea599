// Command txdump reprints a compiled register map written by
// cmd/pyfustx, the read-side counterpart to pyfustx's write side.
package main

/*------------------------------------------------------------------
 *
 * Purpose:	Read a compiled register map (the YAML document
 *		cmd/pyfustx writes) and reprint it via
 *		regio.FprintEntries, or via regio.Fprint after unpacking
 *		burst arrays when --unpack is given.
 *
 * Usage:	txdump --in regs.yaml [--unpack]
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/OpenwaterHealth/open-pyfus/regio"
	"github.com/OpenwaterHealth/open-pyfus/txlog"
)

func main() {
	var inPath = pflag.String("in", "", "compiled register map YAML (required)")
	var unpack = pflag.Bool("unpack", false, "expand burst-write arrays before printing")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - reprint a compiled register map.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: txdump --in regs.yaml [--unpack]\n")
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	log := txlog.Default()

	if *inPath == "" {
		log.Error("--in is required")
		pflag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*inPath)
	if err != nil {
		log.Error("reading --in", "path", *inPath, "err", err)
		os.Exit(1)
	}

	var doc regio.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		log.Error("parsing register map", "err", err)
		os.Exit(1)
	}

	if err := dump(os.Stdout, doc, *unpack); err != nil {
		log.Error("dumping register map", "err", err)
		os.Exit(1)
	}
}

func dump(w io.Writer, doc regio.Document, unpack bool) error {
	switch {
	case len(doc.Registers) > 0:
		return dumpEntries(w, doc.Registers, unpack)
	case len(doc.Modules) > 0:
		for i, entries := range doc.Modules {
			fmt.Fprintf(w, "# transmitter %d\n", i)
			if err := dumpEntries(w, entries, unpack); err != nil {
				return err
			}
		}
		return nil
	case len(doc.Array) > 0:
		for _, mod := range doc.Array {
			for i, entries := range mod.Transmitters {
				fmt.Fprintf(w, "# module 0x%02X transmitter %d\n", mod.Addr, i)
				if err := dumpEntries(w, entries, unpack); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("txdump: register map is empty for kind %q", doc.Kind)
	}
}

// dumpEntries prints entries as found when unpack is false -- a packed
// burst-write value prints as a bracketed list -- or expands every
// burst to scalar per-address lines first when unpack is true.
func dumpEntries(w io.Writer, entries []regio.Entry, unpack bool) error {
	if !unpack {
		return regio.FprintEntries(w, entries)
	}
	regs, err := regio.FromEntries(entries)
	if err != nil {
		return err
	}
	return regio.Fprint(w, regs)
}
