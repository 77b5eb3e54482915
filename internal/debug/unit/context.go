// Package unit builds the record trees of compile units, type units and
// split-output skeletons. Records are created through a per-unit memo so
// that every source entity gets at most one record per unit; abstract
// subprogram records are the one deliberate exception.
package unit

import (
	"debug/dwarf"

	"github.com/orizon-lang/dwarfemit/internal/cli"
	"github.com/orizon-lang/dwarfemit/internal/debug/addrpool"
	"github.com/orizon-lang/dwarfemit/internal/debug/die"
	"github.com/orizon-lang/dwarfemit/internal/debug/expr"
	"github.com/orizon-lang/dwarfemit/internal/debug/line"
	"github.com/orizon-lang/dwarfemit/internal/debug/loclist"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	oerrors "github.com/orizon-lang/dwarfemit/internal/errors"
	"github.com/orizon-lang/dwarfemit/internal/lir"
	"github.com/orizon-lang/dwarfemit/internal/meta"
)

// Registers is the register description records need: DWARF numbering for
// location expressions plus the register DW_AT_frame_base names.
type Registers interface {
	expr.RegisterInfo
	FrameRegister() lir.Reg
}

// Options selects the output flavor shared by every unit of a module.
type Options struct {
	Version  int
	AddrSize int
	// Split puts full units in .dwo sections behind skeletons.
	Split bool
	// DwoName is the split object file name recorded in skeletons.
	DwoName string
	// PubNames records names for the pub sections; GNUPubNames selects the
	// gdb index flavor.
	PubNames    bool
	GNUPubNames bool
	// Accel records names for the Apple accelerator tables.
	Accel bool
	// DWARF2Bitfields emits bit_offset/byte_size pairs instead of
	// data_bit_offset.
	DWARF2Bitfields bool
	// GNUTLS selects DW_OP_GNU_push_tls_address over DW_OP_form_tls_address.
	GNUTLS bool
	// RangesBaseAddress lets range lists with several spans in one section
	// share a base address selection entry.
	RangesBaseAddress bool
}

// ArangeLabel is an address attributed to a compile unit. End is set when
// the extent of the object starting at Sym is known.
type ArangeLabel struct {
	Sym  *sink.Symbol
	End  *sink.Symbol
	Unit *CompileUnit
}

// AccelEntry is one name for the accelerator tables.
type AccelEntry struct {
	Name  string
	Ref   die.Ref
	Flags uint8
}

// Context is the state shared by every unit of one module.
type Context struct {
	opts   Options
	params die.Params
	regs   Registers
	log    *cli.Logger

	Strings    *die.StringPool
	DwoStrings *die.StringPool
	Abbrevs    *die.AbbrevSet
	DwoAbbrevs *die.AbbrevSet
	Addr       *addrpool.Pool
	Locs       *loclist.Stream
	// DwoLines is the file table type units use in split output.
	DwoLines *line.Table
	// DwoLineSym labels the start of .debug_line.dwo.
	DwoLineSym *sink.Symbol

	TypeUnits TypeUnits

	units     []*Unit
	compile   []*CompileUnit
	byNode    map[*meta.CompileUnit]*CompileUnit
	typeUnits []*TypeUnit
	prevCU    *CompileUnit

	abstractSPs  map[*meta.Subprogram]die.Ref
	abstractVars map[*meta.LocalVariable]*Variable
	concrete     []*Variable
	processedSPs []spDefinition
	globalSyms   map[*meta.GlobalVariable]*sink.Symbol

	rangesSym     *sink.Symbol
	addrSym       *sink.Symbol
	abbrevSym     *sink.Symbol
	sectionLabels map[string]*sink.Symbol

	arangeLabels    []ArangeLabel
	accelNames      []AccelEntry
	accelTypes      []AccelEntry
	accelNamespaces []AccelEntry

	err error
}

// NewContext returns a context for one module.
func NewContext(opts Options, regs Registers, log *cli.Logger) *Context {
	c := &Context{
		opts:          opts,
		params:        die.Params{Version: opts.Version, AddrSize: opts.AddrSize},
		regs:          regs,
		log:           log,
		Strings:       die.NewStringPool(),
		Abbrevs:       die.NewAbbrevSet(),
		Addr:          addrpool.New(),
		Locs:          loclist.NewStream(regs, opts.Version),
		abstractSPs:   make(map[*meta.Subprogram]die.Ref),
		abstractVars:  make(map[*meta.LocalVariable]*Variable),
		globalSyms:    make(map[*meta.GlobalVariable]*sink.Symbol),
		byNode:        make(map[*meta.CompileUnit]*CompileUnit),
		rangesSym:     sink.NewSymbol("debug_ranges_start"),
		addrSym:       sink.NewSymbol("debug_addr_start"),
		abbrevSym:     sink.NewSymbol("debug_abbrev_start"),
		sectionLabels: make(map[string]*sink.Symbol),
	}
	if opts.Split {
		c.DwoStrings = die.NewStringPool()
		c.DwoAbbrevs = die.NewAbbrevSet()
		c.DwoLines = line.NewTable("")
		c.DwoLineSym = sink.NewSymbol("debug_line_dwo")
	}
	return c
}

// Options returns the options the context was created with.
func (c *Context) Options() Options { return c.opts }

// Params returns the encoding parameters.
func (c *Context) Params() die.Params { return c.params }

// Log returns the logger; it may be nil.
func (c *Context) Log() *cli.Logger { return c.log }

// Err returns the first usage error hit while building records.
func (c *Context) Err() error { return c.err }

func (c *Context) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *Context) newUnit(kind Kind, dwo bool, tag dwarf.Tag) *Unit {
	u := &Unit{
		ctx:   c,
		kind:  kind,
		dwo:   dwo,
		arena: die.NewArena(die.UnitID(len(c.units))),
		memo:  make(map[meta.Node]die.ID),
		index: die.NoID,
		label: sink.NewSymbol(kind.String() + "_unit"),
	}
	u.root = u.arena.New(tag)
	c.units = append(c.units, u)
	return u
}

// Mark records how much module state exists, for Rollback.
type Mark struct {
	units, names, types, namespaces, aranges int
}

// Mark returns the current state size.
func (c *Context) Mark() Mark {
	return Mark{
		units:      len(c.units),
		names:      len(c.accelNames),
		types:      len(c.accelTypes),
		namespaces: len(c.accelNamespaces),
		aranges:    len(c.arangeLabels),
	}
}

// Rollback forgets every unit and table entry created since m. Only type
// units may have been created in between.
func (c *Context) Rollback(m Mark) {
	c.units = c.units[:m.units]
	c.accelNames = c.accelNames[:m.names]
	c.accelTypes = c.accelTypes[:m.types]
	c.accelNamespaces = c.accelNamespaces[:m.namespaces]
	c.arangeLabels = c.arangeLabels[:m.aranges]
}

// CompileUnitFor returns the unit built for node, or nil.
func (c *Context) CompileUnitFor(node *meta.CompileUnit) *CompileUnit {
	return c.byNode[node]
}

// Unit returns the unit with the given id.
func (c *Context) Unit(id die.UnitID) *Unit { return c.units[id] }

// CompileUnits returns the compile units in creation order.
func (c *Context) CompileUnits() []*CompileUnit { return c.compile }

// TypeUnitList returns the committed type units in creation order.
func (c *Context) TypeUnitList() []*TypeUnit { return c.typeUnits }

// ArangeLabels returns every code or data address attributed to a unit.
func (c *Context) ArangeLabels() []ArangeLabel { return c.arangeLabels }

// AccelNames returns the entries for .apple_names.
func (c *Context) AccelNames() []AccelEntry { return c.accelNames }

// AccelTypes returns the entries for .apple_types.
func (c *Context) AccelTypes() []AccelEntry { return c.accelTypes }

// AccelNamespaces returns the entries for .apple_namespac.
func (c *Context) AccelNamespaces() []AccelEntry { return c.accelNamespaces }

func (c *Context) addArange(cu *CompileUnit, sym, end *sink.Symbol) {
	if sym == nil || cu == nil {
		return
	}
	c.arangeLabels = append(c.arangeLabels, ArangeLabel{Sym: sym, End: end, Unit: cu})
}

func (c *Context) addAccelName(name string, ref die.Ref) {
	if c.opts.Accel && name != "" {
		c.accelNames = append(c.accelNames, AccelEntry{Name: name, Ref: ref})
	}
}

func (c *Context) addAccelType(name string, ref die.Ref, flags uint8) {
	if c.opts.Accel && name != "" {
		c.accelTypes = append(c.accelTypes, AccelEntry{Name: name, Ref: ref, Flags: flags})
	}
}

func (c *Context) addAccelNamespace(name string, ref die.Ref) {
	if c.opts.Accel {
		c.accelNamespaces = append(c.accelNamespaces, AccelEntry{Name: name, Ref: ref})
	}
}

// GlobalSymbol returns the symbol naming gv's storage, or nil when gv has
// none.
func (c *Context) GlobalSymbol(gv *meta.GlobalVariable) *sink.Symbol {
	if gv == nil || gv.Storage == nil {
		return nil
	}
	if s, ok := c.globalSyms[gv]; ok {
		return s
	}
	name := gv.LinkageName
	if name == "" {
		name = gv.Name
	}
	s := sink.NewSymbolAt(name, gv.Storage.Section, gv.Storage.Offset)
	c.globalSyms[gv] = s
	return s
}

// RefAddr resolves a cross-unit reference to its section offset. Layout must
// have run for the target unit.
func (c *Context) RefAddr(ref die.Ref) (uint64, error) {
	if int(ref.Unit) >= len(c.units) || !c.units[ref.Unit].arena.Owns(ref) {
		return 0, oerrors.UsageError("reference to an unknown record", map[string]interface{}{"ref": ref.String()})
	}
	u := c.units[ref.Unit]
	return uint64(u.offset) + uint64(u.arena.At(ref.ID).Offset()), nil
}

// LocList returns the label of location list index.
func (c *Context) LocList(index int) (*sink.Symbol, error) {
	if index < 0 || index >= c.Locs.Len() {
		return nil, oerrors.UsageError("location list requested before it was built", map[string]interface{}{"index": index})
	}
	return c.Locs.List(index).Label, nil
}
