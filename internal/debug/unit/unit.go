package unit

import (
	"debug/dwarf"
	"strings"

	"github.com/go-delve/delve/pkg/dwarf/op"

	"github.com/orizon-lang/dwarfemit/internal/debug/die"
	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/debug/line"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	"github.com/orizon-lang/dwarfemit/internal/meta"
)

// Kind says which section a unit goes to and which header it gets.
type Kind uint8

const (
	KindCompile Kind = iota
	KindSkeleton
	KindType
)

func (k Kind) String() string {
	switch k {
	case KindCompile:
		return "compile"
	case KindSkeleton:
		return "skeleton"
	case KindType:
		return "type"
	}
	return "unknown"
}

// Unit is one record tree plus the memo mapping source entities to their
// records in that tree.
type Unit struct {
	ctx  *Context
	kind Kind
	dwo  bool

	arena *die.Arena
	root  die.ID
	memo  map[meta.Node]die.ID

	// cu is the compile unit the unit's addresses and names are attributed
	// to: the unit itself, the unit a skeleton stands for, or the unit that
	// first requested a type unit.
	cu    *CompileUnit
	lang  uint16
	lines *line.Table

	// index is the shared array index base type, created on first use.
	index      die.ID
	containing []containingType
	// typeNames buffers the pub type names of a type unit until commit.
	typeNames []pendingName

	label  *sink.Symbol
	offset uint32
	length uint32
}

type containingType struct {
	id die.ID
	ty meta.Type
}

type pendingName struct {
	name string
	id   die.ID
}

// Kind returns the unit kind.
func (u *Unit) Kind() Kind { return u.kind }

// IsDWO reports whether the unit goes to a .dwo section.
func (u *Unit) IsDWO() bool { return u.dwo }

// ID returns the unit's index in its context.
func (u *Unit) ID() die.UnitID { return u.arena.Unit() }

// Arena returns the unit's record storage.
func (u *Unit) Arena() *die.Arena { return u.arena }

// Root returns the unit's root record.
func (u *Unit) Root() die.ID { return u.root }

// Record returns the record id.
func (u *Unit) Record(id die.ID) *die.Record { return u.arena.At(id) }

// Ref returns a reference to record id usable from any unit.
func (u *Unit) Ref(id die.ID) die.Ref { return u.arena.Ref(id) }

// Lookup returns the record memoized for n.
func (u *Unit) Lookup(n meta.Node) (die.ID, bool) {
	id, ok := u.memo[n]
	return id, ok
}

// Offset returns the section offset of the unit header. Valid after
// layout.
func (u *Unit) Offset() uint32 { return u.offset }

// Label returns the symbol placed at the unit header.
func (u *Unit) Label() *sink.Symbol { return u.label }

// Length returns the size of the unit including its header.
func (u *Unit) Length() uint32 { return u.length }

// Section returns the name of the section the unit is written to.
func (u *Unit) Section() string {
	switch {
	case u.kind == KindType && u.dwo:
		return dw.SectionTypesDWO
	case u.kind == KindType:
		return dw.SectionTypes
	case u.dwo:
		return dw.SectionInfoDWO
	}
	return dw.SectionInfo
}

func (u *Unit) headerSize() uint32 {
	if u.kind == KindType {
		return 23
	}
	return 11
}

func (u *Unit) rec(id die.ID) *die.Record { return u.arena.At(id) }

func (u *Unit) version() int { return u.ctx.opts.Version }

// createAndAdd creates a record under parent and memoizes it for n.
func (u *Unit) createAndAdd(tag dwarf.Tag, parent die.ID, n meta.Node) die.ID {
	id := u.arena.NewChild(parent, tag)
	if n != nil {
		u.memo[n] = id
	}
	return id
}

func (u *Unit) addFlag(id die.ID, attr dwarf.Attr) {
	u.rec(id).Add(die.Int(attr, u.ctx.params.FlagForm(), 1))
}

// addUInt adds an unsigned constant; a zero form picks the smallest data
// form holding v.
func (u *Unit) addUInt(id die.ID, attr dwarf.Attr, form dw.Form, v uint64) {
	if form == 0 {
		form = die.BestDataForm(v)
	}
	u.rec(id).Add(die.Int(attr, form, v))
}

func (u *Unit) addSInt(id die.ID, attr dwarf.Attr, form dw.Form, v int64) {
	if form == 0 {
		form = die.BestSignedForm(v)
	}
	u.rec(id).Add(die.Int(attr, form, uint64(v)))
}

func (u *Unit) addString(id die.ID, attr dwarf.Attr, s string) {
	if u.dwo {
		u.rec(id).Add(die.String(attr, dw.FormGNUStrIndex, s, uint64(u.ctx.DwoStrings.Index(s))))
		return
	}
	u.rec(id).Add(die.String(attr, dw.FormStrp, s, uint64(u.ctx.Strings.Offset(s))))
}

func (u *Unit) addSectionLabel(id die.ID, attr dwarf.Attr, sym *sink.Symbol) {
	u.rec(id).Add(die.Label(attr, u.ctx.params.SecOffsetForm(), sym))
}

func (u *Unit) addSectionDelta(id die.ID, attr dwarf.Attr, hi, lo *sink.Symbol) {
	u.rec(id).Add(die.Delta(attr, u.ctx.params.SecOffsetForm(), hi, lo))
}

func (u *Unit) addDIEEntry(id die.ID, attr dwarf.Attr, ref die.Ref) {
	u.rec(id).Add(die.Entry(attr, u.ID(), ref))
}

func (u *Unit) addEntry(id die.ID, attr dwarf.Attr, target die.ID) {
	if target == die.NoID {
		return
	}
	u.addDIEEntry(id, attr, u.arena.Ref(target))
}

// addLoc adds a location expression block.
func (u *Unit) addLoc(id die.ID, attr dwarf.Attr, b *die.Block) {
	u.rec(id).Add(die.BlockValue(attr, u.ctx.params.BlockForm(b.Len()), b))
}

// addBlock adds a plain data block.
func (u *Unit) addBlock(id die.ID, attr dwarf.Attr, b *die.Block) {
	u.rec(id).Add(die.BlockValue(attr, die.BlockFormFor(b.Len()), b))
}

func (u *Unit) fileID(f *meta.File) uint32 {
	if f == nil || u.lines == nil {
		return 0
	}
	return u.lines.FileIndex(f)
}

func (u *Unit) addSourceLine(id die.ID, ln int, f *meta.File) {
	if ln == 0 {
		return
	}
	u.addUInt(id, dwarf.AttrDeclFile, 0, uint64(u.fileID(f)))
	u.addUInt(id, dwarf.AttrDeclLine, 0, uint64(ln))
}

func (u *Unit) addLinkageName(id die.ID, name string) {
	if name == "" {
		return
	}
	attr := dw.AttrLinkageName
	if u.version() < 4 {
		attr = dw.AttrMIPSLinkageName
	}
	u.addString(id, attr, name)
}

func (u *Unit) addAccess(id die.ID, f meta.Flags) {
	switch {
	case f.Has(meta.FlagProtected):
		u.addUInt(id, dwarf.AttrAccessibility, dw.FormData1, dw.AccessProtected)
	case f.Has(meta.FlagPrivate):
		u.addUInt(id, dwarf.AttrAccessibility, dw.FormData1, dw.AccessPrivate)
	case f.Has(meta.FlagPublic):
		u.addUInt(id, dwarf.AttrAccessibility, dw.FormData1, dw.AccessPublic)
	}
}

// addOpAddress writes the address of sym into b: inline in normal output,
// as an address pool index in split output.
func (u *Unit) addOpAddress(b *die.Block, sym *sink.Symbol) {
	if !u.ctx.opts.Split {
		b.EmitOp(op.DW_OP_addr)
		b.EmitSymbol(sym, u.ctx.opts.AddrSize)
		return
	}
	idx, err := u.ctx.Addr.GetIndex(sym, false)
	if err != nil {
		u.ctx.fail(err)
		return
	}
	b.EmitOp(dw.OpGNUAddrIndex)
	b.EmitUnsigned(uint64(idx))
}

// addLabelAddress adds an address attribute. Full units of split output
// refer to the address pool; skeletons and normal units use relocations.
func (u *Unit) addLabelAddress(id die.ID, attr dwarf.Attr, sym *sink.Symbol) {
	if u.kind != KindCompile || !u.dwo {
		u.rec(id).Add(die.Label(attr, dw.FormAddr, sym))
		return
	}
	idx, err := u.ctx.Addr.GetIndex(sym, false)
	if err != nil {
		u.ctx.fail(err)
		return
	}
	u.rec(id).Add(die.Int(attr, dw.FormGNUAddrIndex, uint64(idx)))
}

func (u *Unit) attachLowHighPC(id die.ID, begin, end *sink.Symbol) {
	u.addLabelAddress(id, dwarf.AttrLowpc, begin)
	if u.version() < 4 {
		u.addLabelAddress(id, dwarf.AttrHighpc, end)
	} else {
		u.rec(id).Add(die.Delta(dwarf.AttrHighpc, dw.FormData4, end, begin))
	}
	u.ctx.addArange(u.cu, begin, end)
}

// attachRangesOrLowHighPC describes the address ranges of a scope: a pair
// of pcs for a single range, a range list otherwise.
func (u *Unit) attachRangesOrLowHighPC(id die.ID, ranges []RangeSpan) {
	switch len(ranges) {
	case 0:
		return
	case 1:
		u.attachLowHighPC(id, ranges[0].Begin, ranges[0].End)
		return
	}
	u.addScopeRangeList(id, ranges)
}

func (u *Unit) addScopeRangeList(id die.ID, ranges []RangeSpan) {
	l := RangeSpanList{Sym: sink.NewSymbol("debug_ranges"), Ranges: ranges}
	if u.dwo {
		u.addSectionDelta(id, dwarf.AttrRanges, l.Sym, u.ctx.rangesSym)
	} else {
		u.addSectionLabel(id, dwarf.AttrRanges, l.Sym)
	}
	u.cu.rangeLists = append(u.cu.rangeLists, l)
}

func (u *Unit) addConstantValue(id die.ID, unsigned bool, v uint64) {
	if unsigned {
		u.addUInt(id, dwarf.AttrConstValue, dw.FormUdata, v)
		return
	}
	u.addSInt(id, dwarf.AttrConstValue, dw.FormSdata, int64(v))
}

// getOrCreateContextDIE returns the record declarations in s hang off.
func (u *Unit) getOrCreateContextDIE(s meta.Scope) die.ID {
	switch c := s.(type) {
	case nil, *meta.CompileUnit:
		return u.root
	case *meta.Namespace:
		return u.getOrCreateNamespace(c)
	case *meta.Subprogram:
		return u.getOrCreateSubprogramDIE(c)
	case meta.Type:
		if id := u.getOrCreateTypeDIE(c); id != die.NoID {
			return id
		}
		return u.root
	}
	if id, ok := u.memo[s]; ok {
		return id
	}
	return u.root
}

func (u *Unit) getOrCreateNamespace(ns *meta.Namespace) die.ID {
	parent := u.getOrCreateContextDIE(ns.Parent)
	if id, ok := u.memo[ns]; ok {
		return id
	}
	id := u.createAndAdd(dwarf.TagNamespace, parent, ns)
	name := ns.Name
	if name == "" {
		name = anonymousNamespace
	} else {
		u.addString(id, dwarf.AttrName, name)
	}
	u.ctx.addAccelNamespace(name, u.Ref(id))
	u.addGlobalName(name, id, ns.Parent)
	return id
}

const anonymousNamespace = "(anonymous namespace)"

func (u *Unit) pubSections() bool { return u.ctx.opts.PubNames || u.ctx.opts.GNUPubNames }

func (u *Unit) addGlobalName(name string, id die.ID, context meta.Scope) {
	if u.kind != KindCompile || !u.pubSections() || name == "" {
		return
	}
	u.cu.globalNames[u.parentContextString(context)+name] = id
}

func (u *Unit) addGlobalType(t meta.Type, id die.ID, context meta.Scope) {
	if !u.pubSections() {
		return
	}
	full := u.parentContextString(context) + t.Common().Name
	switch u.kind {
	case KindCompile:
		u.cu.globalTypes[full] = id
	case KindType:
		u.typeNames = append(u.typeNames, pendingName{name: full, id: id})
	}
}

func (u *Unit) isCPlusPlus() bool {
	return u.lang == dw.LangCPlusPlus || u.lang == dw.LangCPlusPlus11
}

// parentContextString returns the qualifier of names declared in context,
// "ns::Outer::" style. Only C++ units qualify names.
func (u *Unit) parentContextString(context meta.Scope) string {
	if context == nil || !u.isCPlusPlus() {
		return ""
	}
	var parents []meta.Scope
	for c := context; c != nil; c = c.ParentScope() {
		if _, ok := c.(*meta.CompileUnit); ok {
			break
		}
		parents = append(parents, c)
	}
	var sb strings.Builder
	for i := len(parents) - 1; i >= 0; i-- {
		name := scopeName(parents[i])
		if _, ok := parents[i].(*meta.Namespace); ok && name == "" {
			name = anonymousNamespace
		}
		if name != "" {
			sb.WriteString(name)
			sb.WriteString("::")
		}
	}
	return sb.String()
}

func scopeName(s meta.Scope) string {
	switch s := s.(type) {
	case *meta.Namespace:
		return s.Name
	case *meta.Subprogram:
		return s.Name
	case meta.Type:
		return s.Common().Name
	}
	return ""
}
