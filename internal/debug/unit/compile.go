package unit

import (
	"crypto/md5"
	"debug/dwarf"
	"encoding/binary"
	"sort"

	"github.com/go-delve/delve/pkg/dwarf/op"

	"github.com/orizon-lang/dwarfemit/internal/debug/die"
	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/debug/expr"
	"github.com/orizon-lang/dwarfemit/internal/debug/line"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	"github.com/orizon-lang/dwarfemit/internal/lir"
	"github.com/orizon-lang/dwarfemit/internal/meta"
)

// RangeSpan is the half-open address range [Begin, End).
type RangeSpan struct {
	Begin, End *sink.Symbol
}

// RangeSpanList is a range list referenced from a record through Sym.
type RangeSpanList struct {
	Sym    *sink.Symbol
	Ranges []RangeSpan
}

// CompileUnit is the unit built for one source translation unit. In split
// output it is the .dwo unit and Skeleton is its stand-in in the object.
type CompileUnit struct {
	*Unit

	node     *meta.CompileUnit
	skeleton *Unit
	lineSym  *sink.Symbol

	ranges     []RangeSpan
	rangeLists []RangeSpanList
	// base is the address unit-relative location and range entries are
	// measured from; nil when the unit covers several ranges.
	base *sink.Symbol

	globalNames map[string]die.ID
	globalTypes map[string]die.ID
}

// NewCompileUnit creates the unit for node and, in split output, its
// skeleton.
func (c *Context) NewCompileUnit(node *meta.CompileUnit) *CompileUnit {
	u := c.newUnit(KindCompile, c.opts.Split, dwarf.TagCompileUnit)
	cu := &CompileUnit{
		Unit:        u,
		node:        node,
		lineSym:     sink.NewSymbol("line_table_start"),
		globalNames: make(map[string]die.ID),
		globalTypes: make(map[string]die.ID),
	}
	u.cu = cu
	u.lang = node.Language
	u.lines = line.NewTable(node.Directory())
	c.compile = append(c.compile, cu)
	c.byNode[node] = cu

	root := u.root
	if c.opts.Split {
		cu.skeleton = c.newSkeleton(cu)
		u.addString(root, dw.AttrGNUDwoName, c.dwoName(node))
	} else {
		u.addSectionLabel(root, dwarf.AttrStmtList, cu.lineSym)
		if dir := node.Directory(); dir != "" {
			u.addString(root, dwarf.AttrCompDir, dir)
		}
		c.addGNUPubAttribute(u)
	}
	u.addString(root, dwarf.AttrProducer, node.Producer)
	u.addUInt(root, dwarf.AttrLanguage, dw.FormData2, uint64(node.Language))
	u.addString(root, dwarf.AttrName, node.Name())
	return cu
}

func (c *Context) dwoName(node *meta.CompileUnit) string {
	if node.SplitDebugFilename != "" {
		return node.SplitDebugFilename
	}
	return c.opts.DwoName
}

func (c *Context) addGNUPubAttribute(u *Unit) {
	if c.opts.GNUPubNames {
		u.addFlag(u.root, dw.AttrGNUPubnames)
	}
}

func (c *Context) newSkeleton(cu *CompileUnit) *Unit {
	s := c.newUnit(KindSkeleton, false, dwarf.TagCompileUnit)
	s.cu = cu
	s.lang = cu.lang
	s.lines = cu.lines
	s.addSectionLabel(s.root, dwarf.AttrStmtList, cu.lineSym)
	s.addString(s.root, dw.AttrGNUDwoName, c.dwoName(cu.node))
	if dir := cu.node.Directory(); dir != "" {
		s.addString(s.root, dwarf.AttrCompDir, dir)
	}
	c.addGNUPubAttribute(s)
	return s
}

// Node returns the translation unit the unit was built for.
func (cu *CompileUnit) Node() *meta.CompileUnit { return cu.node }

// Skeleton returns the skeleton of a split unit, or nil.
func (cu *CompileUnit) Skeleton() *Unit { return cu.skeleton }

// Lines returns the unit's line table.
func (cu *CompileUnit) Lines() *line.Table { return cu.lines }

// LineSym labels the start of the unit's line table.
func (cu *CompileUnit) LineSym() *sink.Symbol { return cu.lineSym }

// Ranges returns the code ranges attributed to the unit.
func (cu *CompileUnit) Ranges() []RangeSpan { return cu.ranges }

// RangeLists returns the range lists referenced from the unit's records.
func (cu *CompileUnit) RangeLists() []RangeSpanList { return cu.rangeLists }

// Base returns the unit base address, or nil.
func (cu *CompileUnit) Base() *sink.Symbol { return cu.base }

// HeaderUnit returns the unit whose offset identifies this compile unit in
// the object file's tables: the skeleton in split output.
func (cu *CompileUnit) HeaderUnit() *Unit {
	if cu.skeleton != nil {
		return cu.skeleton
	}
	return cu.Unit
}

// AddRange attributes a function's code to the unit. A range starting
// exactly where the previous one of the same unit ends, in the same
// section, is merged into it.
func (cu *CompileUnit) AddRange(r RangeSpan) {
	same := cu.ctx.prevCU == cu
	cu.ctx.prevCU = cu
	if n := len(cu.ranges); n > 0 && same {
		last := &cu.ranges[n-1]
		if r.Begin.Section() == last.End.Section() && r.Begin.Offset() == last.End.Offset() {
			last.End = r.End
			return
		}
	}
	cu.ranges = append(cu.ranges, r)
}

// SkippedNonDebugFunction notes that code without debug info was emitted,
// so the next range cannot be merged with the previous one.
func (c *Context) SkippedNonDebugFunction() { c.prevCU = nil }

// ConstructGlobalVariable builds the record of a module global.
func (cu *CompileUnit) ConstructGlobalVariable(gv *meta.GlobalVariable) die.ID {
	if id, ok := cu.memo[gv]; ok {
		return id
	}
	parent := cu.getOrCreateContextDIE(gv.Scope)
	id := cu.createAndAdd(dwarf.TagVariable, parent, gv)

	var declContext meta.Scope
	if sdm := gv.StaticDataMember; sdm != nil {
		declContext = sdm.Scope
		cu.addEntry(id, dwarf.AttrSpecification, cu.getOrCreateStaticMemberDIE(sdm))
		if gv.Type != nil && gv.Type != sdm.Base {
			cu.addType(id, gv.Type, dwarf.AttrType)
		}
	} else {
		declContext = gv.Scope
		if gv.Name != "" {
			cu.addString(id, dwarf.AttrName, gv.Name)
		}
		cu.addType(id, gv.Type, dwarf.AttrType)
		if !gv.LocalToUnit {
			cu.addFlag(id, dwarf.AttrExternal)
		}
		cu.addSourceLine(id, gv.Line, gv.File)
	}
	if !gv.Definition {
		cu.addFlag(id, dwarf.AttrDeclaration)
	} else {
		cu.addGlobalName(gv.Name, id, declContext)
	}

	located := false
	switch {
	case gv.Expr.IsConstant():
		located = true
		cu.addConstantValue(id, true, gv.Expr.Elements[1])
	case gv.Storage != nil && !gv.Storage.DLLImport:
		located = true
		cu.addLoc(id, dwarf.AttrLocation, cu.globalLocation(gv))
	}
	cu.addLinkageName(id, gv.LinkageName)

	if located {
		ref := cu.Ref(id)
		cu.ctx.addAccelName(gv.Name, ref)
		if gv.LinkageName != "" && gv.LinkageName != gv.Name {
			cu.ctx.addAccelName(gv.LinkageName, ref)
		}
	}
	return id
}

func (cu *CompileUnit) globalLocation(gv *meta.GlobalVariable) *die.Block {
	b := &die.Block{}
	e := expr.New(b, cu.ctx.regs, cu.version(), lir.NoReg)
	e.AddFragmentOffset(gv.Expr)
	sym := cu.ctx.GlobalSymbol(gv)
	opts := cu.ctx.opts
	if gv.Storage.TLS {
		if !opts.Split {
			if opts.AddrSize == 4 {
				b.EmitOp(op.DW_OP_const4u)
			} else {
				b.EmitOp(op.DW_OP_const8u)
			}
			b.EmitSymbol(sym, opts.AddrSize)
		} else if idx, err := cu.ctx.Addr.GetIndex(sym, true); err != nil {
			cu.ctx.fail(err)
		} else {
			b.EmitOp(dw.OpGNUConstIndex)
			b.EmitUnsigned(uint64(idx))
		}
		if opts.GNUTLS {
			b.EmitOp(dw.OpGNUPushTLSAddress)
		} else {
			b.EmitOp(op.DW_OP_form_tls_address)
		}
	} else {
		end := sink.NewSymbolAt(sym.Name+".end", sym.Section(), sym.Offset()+gv.Storage.Size)
		cu.ctx.addArange(cu, sym, end)
		cu.addOpAddress(b, sym)
	}
	if c, err := expr.NewCursor(gv.Expr); err == nil {
		e.AddExpression(c)
	}
	return e.Finalize()
}

// constructRetainedTypes builds the types the front end asked to keep even
// when nothing refers to them.
func (cu *CompileUnit) constructRetainedTypes() {
	for _, et := range cu.node.EnumTypes {
		cu.getOrCreateTypeDIE(et)
	}
	for _, t := range cu.node.RetainedTypes {
		cu.getOrCreateTypeDIE(t)
	}
}

// ConstructGlobals builds every global and retained type of the unit's
// translation unit.
func (cu *CompileUnit) ConstructGlobals() {
	cu.constructRetainedTypes()
	for _, gv := range cu.node.Globals {
		cu.ConstructGlobalVariable(gv)
	}
}

func (u *Unit) constructContainingTypeDIEs() {
	for _, ct := range u.containing {
		if t := u.getOrCreateTypeDIE(ct.ty); t != die.NoID {
			u.addEntry(ct.id, dwarf.AttrContainingType, t)
		}
	}
	u.containing = nil
}

// DwoID returns the identifier tying a skeleton to its split unit.
func (cu *CompileUnit) DwoID() uint64 {
	h := md5.New()
	h.Write([]byte(cu.ctx.dwoName(cu.node)))
	h.Write([]byte{0})
	h.Write([]byte(cu.node.Name()))
	h.Write([]byte{0})
	h.Write([]byte(cu.node.Directory()))
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum[8:16])
}

// Finalize completes every unit once all functions have been emitted:
// definitions, containing types, split output links and unit ranges.
func (c *Context) Finalize() error {
	c.FinishSubprogramDefinitions()
	c.FinishVariableDefinitions()
	for _, u := range c.units {
		u.constructContainingTypeDIEs()
	}
	for _, cu := range c.compile {
		cu.finalize()
	}
	return c.err
}

func (cu *CompileUnit) finalize() {
	c := cu.ctx
	u := cu.HeaderUnit()
	if c.opts.Split {
		id := cu.DwoID()
		cu.addUInt(cu.root, dw.AttrGNUDwoID, dw.FormData8, id)
		u.addUInt(u.root, dw.AttrGNUDwoID, dw.FormData8, id)
		if c.Addr.Len() > 0 {
			u.addSectionLabel(u.root, dw.AttrGNUAddrBase, c.addrSym)
		}
		if len(cu.rangeLists) > 0 {
			u.addSectionLabel(u.root, dw.AttrGNURangesBase, c.rangesSym)
		}
	}
	switch len(cu.ranges) {
	case 0:
		return
	case 1:
		cu.base = cu.ranges[0].Begin
	default:
		// Range lists are absolute; a zero low_pc makes them so.
		u.addUInt(u.root, dwarf.AttrLowpc, dw.FormAddr, 0)
	}
	u.attachRangesOrLowHighPC(u.root, cu.ranges)
}

// PubEntry is one name of a unit's pub table.
type PubEntry struct {
	Name     string
	Offset   uint32
	Tag      dwarf.Tag
	External bool
}

// PubNames returns the unit's public names sorted by name.
func (cu *CompileUnit) PubNames() []PubEntry { return cu.pubEntries(cu.globalNames) }

// PubTypes returns the unit's public types sorted by name.
func (cu *CompileUnit) PubTypes() []PubEntry { return cu.pubEntries(cu.globalTypes) }

func (cu *CompileUnit) pubEntries(m map[string]die.ID) []PubEntry {
	out := make([]PubEntry, 0, len(m))
	for name, id := range m {
		r := cu.rec(id)
		out = append(out, PubEntry{Name: name, Offset: r.Offset(), Tag: r.Tag, External: cu.isExternal(r)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// isExternal follows a definition to its declaration.
func (cu *CompileUnit) isExternal(r *die.Record) bool {
	if v, ok := r.Attr(dwarf.AttrSpecification); ok && v.Ref.Unit == cu.ID() {
		r = cu.rec(v.Ref.ID)
	}
	return r.Has(dwarf.AttrExternal)
}

// addTypeNames records the pub types of a committed type unit against its
// owner, pointing at the owner's root.
func (cu *CompileUnit) addTypeNames(names []pendingName) {
	for _, n := range names {
		cu.globalTypes[n.name] = cu.root
	}
}
