// Package object packages finished debug sections into relocatable object
// files. The writers carry no symbols or relocations: every cross-section
// reference has already been resolved by the sink.
package object

import (
	"os"
	"strings"

	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	oerrors "github.com/orizon-lang/dwarfemit/internal/errors"
)

// Format is an object file container.
type Format string

const (
	ELF   Format = "elf"
	COFF  Format = "coff"
	MachO Format = "macho"
)

// ParseFormat accepts the container names used on the command line.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case ELF, COFF, MachO:
		return f, nil
	case "mach-o":
		return MachO, nil
	}
	return "", oerrors.InvalidConfig("object format", s, "want elf, coff or macho")
}

// Build returns the bytes of an object file holding secs in order.
func Build(f Format, secs []sink.Section) ([]byte, error) {
	switch f {
	case ELF:
		return buildELF(secs)
	case COFF:
		return buildCOFF(secs)
	case MachO:
		return buildMachO(secs)
	}
	return nil, oerrors.InvalidConfig("object format", f, "unknown")
}

// Write builds an object file and writes it to path.
func Write(path string, f Format, secs []sink.Section) error {
	if path == "" {
		return oerrors.InvalidInput("object", "empty output path")
	}
	b, err := Build(f, secs)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return oerrors.IOFailure("write", path, err)
	}
	return nil
}

// Split separates the sections that belong in the split object (names
// ending in .dwo) from those of the main object. Order is kept.
func Split(secs []sink.Section) (main, dwo []sink.Section) {
	for _, s := range secs {
		if strings.HasSuffix(s.Name, ".dwo") {
			dwo = append(dwo, s)
		} else {
			main = append(main, s)
		}
	}
	return main, dwo
}
