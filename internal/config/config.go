// Package config loads emission options from YAML.
package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/orizon-lang/dwarfemit/internal/debug"
	"github.com/orizon-lang/dwarfemit/internal/debug/unit"
	oerrors "github.com/orizon-lang/dwarfemit/internal/errors"
)

// DefaultInputSchema is the module file schema accepted when no constraint
// is configured.
const DefaultInputSchema = "^1.0"

// Pubnames selects the public name sections.
type Pubnames string

const (
	PubnamesNone  Pubnames = "none"
	PubnamesPlain Pubnames = "plain"
	PubnamesGNU   Pubnames = "gnu"
)

// Tuning adjusts defaults for a debugger.
type Tuning string

const (
	TuneGDB  Tuning = "gdb"
	TuneLLDB Tuning = "lldb"
)

// Options are the emission options of one run.
type Options struct {
	DwarfVersion      int      `yaml:"dwarf_version"`
	AddressSize       int      `yaml:"address_size"`
	SplitDwarf        bool     `yaml:"split_dwarf"`
	SplitDwarfFile    string   `yaml:"split_dwarf_file,omitempty"`
	TypeUnits         bool     `yaml:"type_units"`
	AccelTables       *bool    `yaml:"accel_tables,omitempty"`
	Pubnames          Pubnames `yaml:"pubnames,omitempty"`
	Aranges           bool     `yaml:"aranges"`
	RangesBaseAddress bool     `yaml:"ranges_base_address"`
	Tune              Tuning   `yaml:"tune,omitempty"`
	Producer          string   `yaml:"producer,omitempty"`
	InputSchema       string   `yaml:"input_schema,omitempty"`
	// Sections maps code and data section names to load addresses.
	Sections map[string]uint64 `yaml:"sections,omitempty"`
}

// Default returns the options used when no file is given.
func Default() *Options {
	return &Options{
		DwarfVersion: 4,
		AddressSize:  8,
		Aranges:      true,
		Tune:         TuneGDB,
		InputSchema:  DefaultInputSchema,
	}
}

// LoadOptions reads options from path on top of the defaults. A missing
// file yields the defaults.
func LoadOptions(path string) (*Options, error) {
	opts := Default()
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return nil, oerrors.IOFailure("read", path, err)
	}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return opts, nil
}

// Validate checks field ranges and enumerations.
func (o *Options) Validate() error {
	if o.DwarfVersion < 2 || o.DwarfVersion > 4 {
		return oerrors.InvalidConfig("dwarf_version", o.DwarfVersion, "supported versions are 2 to 4")
	}
	if o.AddressSize != 4 && o.AddressSize != 8 {
		return oerrors.InvalidConfig("address_size", o.AddressSize, "must be 4 or 8")
	}
	switch o.Pubnames {
	case "", PubnamesNone, PubnamesPlain, PubnamesGNU:
	default:
		return oerrors.InvalidConfig("pubnames", o.Pubnames, "want none, plain or gnu")
	}
	switch o.Tune {
	case "", TuneGDB, TuneLLDB:
	default:
		return oerrors.InvalidConfig("tune", o.Tune, "want gdb or lldb")
	}
	if o.TypeUnits && o.DwarfVersion < 4 {
		return oerrors.InvalidConfig("type_units", o.TypeUnits, "type units need DWARF 4")
	}
	if _, err := o.SchemaConstraint(); err != nil {
		return oerrors.InvalidConfig("input_schema", o.InputSchema, err.Error())
	}
	return nil
}

// SchemaConstraint parses the accepted module file schema range.
func (o *Options) SchemaConstraint() (*semver.Constraints, error) {
	s := o.InputSchema
	if s == "" {
		s = DefaultInputSchema
	}
	return semver.NewConstraint(s)
}

// EffectivePubnames resolves an unset pubnames field from the tuning.
// GDB reads the GNU flavour when split output is on.
func (o *Options) EffectivePubnames() Pubnames {
	if o.Pubnames != "" {
		return o.Pubnames
	}
	if o.Tune != TuneGDB {
		return PubnamesNone
	}
	if o.SplitDwarf {
		return PubnamesGNU
	}
	return PubnamesPlain
}

// EffectiveAccel resolves an unset accel_tables field from the tuning.
func (o *Options) EffectiveAccel() bool {
	if o.AccelTables != nil {
		return *o.AccelTables
	}
	return o.Tune == TuneLLDB
}

// EmitterOptions converts o for a module. dwoName is used when split
// output is on and no file name is configured.
func (o *Options) EmitterOptions(dwoName string) debug.Options {
	if o.SplitDwarfFile != "" {
		dwoName = o.SplitDwarfFile
	}
	pub := o.EffectivePubnames()
	return debug.Options{
		Unit: unit.Options{
			Version:           o.DwarfVersion,
			AddrSize:          o.AddressSize,
			Split:             o.SplitDwarf,
			DwoName:           dwoName,
			PubNames:          pub == PubnamesPlain,
			GNUPubNames:       pub == PubnamesGNU,
			Accel:             o.EffectiveAccel(),
			DWARF2Bitfields:   o.DwarfVersion < 4,
			GNUTLS:            o.Tune == TuneGDB,
			RangesBaseAddress: o.RangesBaseAddress,
		},
		TypeUnits: o.TypeUnits,
		Aranges:   o.Aranges,
	}
}

// SectionNames returns the configured section names in sorted order.
func (o *Options) SectionNames() []string {
	names := make([]string, 0, len(o.Sections))
	for name := range o.Sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
