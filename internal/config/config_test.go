package config

import (
	"os"
	"path/filepath"
	"testing"

	oerrors "github.com/orizon-lang/dwarfemit/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dwarfemit.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestMissingFileGivesDefaults(t *testing.T) {
	opts, err := LoadOptions(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOptions: %v", err)
	}
	if opts.DwarfVersion != 4 || opts.AddressSize != 8 || !opts.Aranges || opts.InputSchema != DefaultInputSchema {
		t.Fatalf("defaults %+v", opts)
	}
}

func TestLoadOptions(t *testing.T) {
	path := writeConfig(t, `
dwarf_version: 3
address_size: 4
split_dwarf: true
split_dwarf_file: out.dwo
pubnames: gnu
tune: lldb
sections:
  .text: 0x400000
  .data: 4096
`)
	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatalf("LoadOptions: %v", err)
	}
	if opts.DwarfVersion != 3 || opts.AddressSize != 4 || !opts.SplitDwarf {
		t.Fatalf("options %+v", opts)
	}
	if opts.Sections[".text"] != 0x400000 || opts.Sections[".data"] != 4096 {
		t.Fatalf("sections %v", opts.Sections)
	}
	if names := opts.SectionNames(); len(names) != 2 || names[0] != ".data" {
		t.Fatalf("names %v", names)
	}

	eo := opts.EmitterOptions("ignored.dwo")
	u := eo.Unit
	if u.Version != 3 || u.AddrSize != 4 || !u.Split || u.DwoName != "out.dwo" {
		t.Fatalf("unit options %+v", u)
	}
	if u.PubNames || !u.GNUPubNames || !u.Accel || !u.DWARF2Bitfields || u.GNUTLS {
		t.Fatalf("derived options %+v", u)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Options)
	}{
		{"version", func(o *Options) { o.DwarfVersion = 5 }},
		{"address size", func(o *Options) { o.AddressSize = 2 }},
		{"pubnames", func(o *Options) { o.Pubnames = "all" }},
		{"tune", func(o *Options) { o.Tune = "windbg" }},
		{"type units on v3", func(o *Options) { o.DwarfVersion = 3; o.TypeUnits = true }},
		{"schema", func(o *Options) { o.InputSchema = "not a range" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Default()
			tt.edit(o)
			err := o.Validate()
			if c, ok := oerrors.CategoryOf(err); !ok || c != oerrors.CategoryValidation {
				t.Fatalf("Validate() = %v", err)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	if _, err := LoadOptions(writeConfig(t, "address_size: 16\n")); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := LoadOptions(writeConfig(t, "dwarf_version: [\n")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTuningDefaults(t *testing.T) {
	o := Default()
	if o.EffectivePubnames() != PubnamesPlain || o.EffectiveAccel() {
		t.Fatalf("gdb: %s %v", o.EffectivePubnames(), o.EffectiveAccel())
	}
	o.SplitDwarf = true
	if o.EffectivePubnames() != PubnamesGNU {
		t.Fatalf("gdb split: %s", o.EffectivePubnames())
	}
	o.Tune = TuneLLDB
	if o.EffectivePubnames() != PubnamesNone || !o.EffectiveAccel() {
		t.Fatalf("lldb: %s %v", o.EffectivePubnames(), o.EffectiveAccel())
	}
	off := false
	o.AccelTables = &off
	if o.EffectiveAccel() {
		t.Fatalf("explicit accel_tables ignored")
	}
	if eo := o.EmitterOptions("m.dwo"); eo.Unit.DwoName != "m.dwo" {
		t.Fatalf("dwo name %q", eo.Unit.DwoName)
	}
}
