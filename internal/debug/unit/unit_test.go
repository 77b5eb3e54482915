package unit

import (
	"bytes"
	"crypto/md5"
	"debug/dwarf"
	"encoding/binary"
	"testing"

	"github.com/go-delve/delve/pkg/dwarf/op"

	"github.com/orizon-lang/dwarfemit/internal/debug/die"
	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/debug/scope"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	oerrors "github.com/orizon-lang/dwarfemit/internal/errors"
	"github.com/orizon-lang/dwarfemit/internal/lir"
	"github.com/orizon-lang/dwarfemit/internal/meta"
	"github.com/orizon-lang/dwarfemit/internal/target"
)

func newTestContext(opts Options) (*Context, *target.Info) {
	if opts.Version == 0 {
		opts.Version = 4
	}
	if opts.AddrSize == 0 {
		opts.AddrSize = 8
	}
	x := target.X86_64()
	return NewContext(opts, x, nil), x
}

func testNode(lang uint16) *meta.CompileUnit {
	return &meta.CompileUnit{File: &meta.File{Name: "a.c", Dir: "/src"}, Producer: "orizon", Language: lang}
}

var intType = &meta.BasicType{TypeCommon: meta.TypeCommon{Name: "int", SizeBits: 32}, Encoding: dw.ATESigned}

// insnLabels places a begin and end label around each instruction.
type insnLabels map[*lir.Insn][2]*sink.Symbol

func (l insnLabels) LabelBefore(in *lir.Insn) *sink.Symbol { return l[in][0] }
func (l insnLabels) LabelAfter(in *lir.Insn) *sink.Symbol  { return l[in][1] }
func (l insnLabels) FunctionEnd() *sink.Symbol             { return nil }

func labelsFor(insns ...*lir.Insn) insnLabels {
	l := make(insnLabels)
	for _, in := range insns {
		l[in] = [2]*sink.Symbol{
			sink.NewSymbolAt("b", ".text", in.Offset),
			sink.NewSymbolAt("e", ".text", in.Offset+in.Size),
		}
	}
	return l
}

// slotLayout maps stack slots to frame register offsets.
type slotLayout struct {
	reg  lir.Reg
	offs map[int]int64
}

func (s slotLayout) FrameIndexReference(index int) (lir.Reg, int64, bool) {
	off, ok := s.offs[index]
	return s.reg, off, ok
}

func mustAttr(t *testing.T, r *die.Record, attr dwarf.Attr) *die.Value {
	t.Helper()
	v, ok := r.Attr(attr)
	if !ok {
		t.Fatalf("%v record has no %v", r.Tag, attr)
	}
	return v
}

func TestTypeRecordsAreMemoized(t *testing.T) {
	ctx, _ := newTestContext(Options{})
	cu := ctx.NewCompileUnit(testNode(dw.LangC99))

	node := &meta.CompositeType{TypeCommon: meta.TypeCommon{Name: "node", SizeBits: 128}, Kind: dwarf.TagStructType}
	ptr := &meta.DerivedType{TypeCommon: meta.TypeCommon{SizeBits: 64}, Kind: dwarf.TagPointerType, Base: node}
	node.Elements = []meta.Node{
		&meta.DerivedType{TypeCommon: meta.TypeCommon{Name: "val", SizeBits: 32}, Kind: dwarf.TagMember, Base: intType},
		&meta.DerivedType{TypeCommon: meta.TypeCommon{Name: "next", SizeBits: 64, OffsetBits: 64}, Kind: dwarf.TagMember, Base: ptr},
	}

	id := cu.getOrCreateTypeDIE(node)
	if again := cu.getOrCreateTypeDIE(node); again != id {
		t.Fatalf("second lookup built a new record: %d != %d", again, id)
	}
	rec := cu.Record(id)
	if len(rec.Children) != 2 {
		t.Fatalf("struct has %d members, want 2", len(rec.Children))
	}
	next := cu.Record(rec.Children[1])
	if v := mustAttr(t, next, dwarf.AttrDataMemberLoc); v.Int != 8 {
		t.Fatalf("next at offset %d, want 8", v.Int)
	}
	p := cu.Record(mustAttr(t, next, dwarf.AttrType).Ref.ID)
	if p.Tag != dwarf.TagPointerType {
		t.Fatalf("next has type %v", p.Tag)
	}
	if p.Has(dwarf.AttrByteSize) {
		t.Fatalf("pointer records carry no byte size")
	}
	if back := mustAttr(t, p, dwarf.AttrType).Ref.ID; back != id {
		t.Fatalf("pointer refers to %d, want the struct %d", back, id)
	}
}

func TestBitfieldMembers(t *testing.T) {
	uint32T := &meta.BasicType{TypeCommon: meta.TypeCommon{Name: "unsigned", SizeBits: 32}, Encoding: dw.ATEUnsigned}
	flags := &meta.DerivedType{TypeCommon: meta.TypeCommon{Name: "flag", SizeBits: 3, OffsetBits: 37}, Kind: dwarf.TagMember, Base: uint32T}
	st := &meta.CompositeType{TypeCommon: meta.TypeCommon{Name: "s", SizeBits: 64}, Kind: dwarf.TagStructType, Elements: []meta.Node{flags}}

	ctx, _ := newTestContext(Options{})
	cu := ctx.NewCompileUnit(testNode(dw.LangC99))
	m := cu.Record(cu.Record(cu.getOrCreateTypeDIE(st)).Children[0])
	if v := mustAttr(t, m, dwarf.AttrBitSize); v.Int != 3 {
		t.Fatalf("bit size %d", v.Int)
	}
	if v := mustAttr(t, m, dw.AttrDataBitOffset); v.Int != 37 {
		t.Fatalf("data bit offset %d", v.Int)
	}
	if m.Has(dwarf.AttrDataMemberLoc) {
		t.Fatalf("data_bit_offset members need no member location")
	}

	ctx, _ = newTestContext(Options{DWARF2Bitfields: true})
	cu = ctx.NewCompileUnit(testNode(dw.LangC99))
	m = cu.Record(cu.Record(cu.getOrCreateTypeDIE(st)).Children[0])
	if v := mustAttr(t, m, dwarf.AttrByteSize); v.Int != 4 {
		t.Fatalf("storage size %d", v.Int)
	}
	if v := mustAttr(t, m, dwarf.AttrBitOffset); v.Int != 24 {
		t.Fatalf("bit offset %d, want 24", v.Int)
	}
	if v := mustAttr(t, m, dwarf.AttrDataMemberLoc); v.Int != 4 {
		t.Fatalf("storage offset %d, want 4", v.Int)
	}
}

func TestQualifiedPubNames(t *testing.T) {
	ctx, _ := newTestContext(Options{PubNames: true})
	cu := ctx.NewCompileUnit(testNode(dw.LangCPlusPlus))

	ns := &meta.Namespace{Name: "ns"}
	anon := &meta.Namespace{Parent: ns}
	s := &meta.CompositeType{TypeCommon: meta.TypeCommon{Name: "S", Scope: ns, SizeBits: 32}, Kind: dwarf.TagStructType}
	e := &meta.CompositeType{TypeCommon: meta.TypeCommon{Name: "E", Scope: anon}, Kind: dwarf.TagEnumerationType}

	sID := cu.getOrCreateTypeDIE(s)
	cu.getOrCreateTypeDIE(e)
	cu.ConstructGlobalVariable(&meta.GlobalVariable{Name: "g", Scope: ns, Type: s, Definition: true})

	nsID, ok := cu.Lookup(ns)
	if !ok || cu.Record(sID).Parent != nsID {
		t.Fatalf("S is not nested in its namespace")
	}

	var names, types []string
	for _, p := range cu.PubNames() {
		names = append(names, p.Name)
	}
	for _, p := range cu.PubTypes() {
		types = append(types, p.Name)
	}
	wantNames := []string{"ns", "ns::(anonymous namespace)", "ns::g"}
	wantTypes := []string{"ns::(anonymous namespace)::E", "ns::S"}
	if len(names) != len(wantNames) || len(types) != len(wantTypes) {
		t.Fatalf("names %q types %q", names, types)
	}
	for i := range wantNames {
		if names[i] != wantNames[i] {
			t.Fatalf("names %q, want %q", names, wantNames)
		}
	}
	for i := range wantTypes {
		if types[i] != wantTypes[i] {
			t.Fatalf("types %q, want %q", types, wantTypes)
		}
	}
}

func TestNoPubNamesWhenDisabled(t *testing.T) {
	ctx, _ := newTestContext(Options{})
	cu := ctx.NewCompileUnit(testNode(dw.LangC99))
	cu.getOrCreateTypeDIE(intType)
	if len(cu.PubTypes()) != 0 {
		t.Fatalf("pub types recorded with pub sections disabled")
	}
}

type functionFixture struct {
	ctx  *Context
	cu   *CompileUnit
	file *meta.File
	sp   *meta.Subprogram
	i0   *lir.Insn
	i1   *lir.Insn
	fn   *Function
}

func newFunctionFixture(t *testing.T) *functionFixture {
	t.Helper()
	ctx, _ := newTestContext(Options{})
	node := testNode(dw.LangC99)
	cu := ctx.NewCompileUnit(node)
	sp := &meta.Subprogram{Name: "f", Scope: node, File: node.File, Line: 1, Definition: true, Unit: node}
	i0 := &lir.Insn{Offset: 0, Size: 4}
	i1 := &lir.Insn{Offset: 4, Size: 4}
	begin := sink.NewSymbolAt("f", ".text", 0)
	end := sink.NewSymbolAt("f.end", ".text", 8)
	fn := ctx.NewFunction(sp, begin, end, nil, nil, labelsFor(i0, i1))
	return &functionFixture{ctx: ctx, cu: cu, file: node.File, sp: sp, i0: i0, i1: i1, fn: fn}
}

func TestBlockWithoutVariablesIsElided(t *testing.T) {
	f := newFunctionFixture(t)
	outer := &meta.LexicalBlock{Parent: f.sp, File: f.file, Line: 2}
	inner := &meta.LexicalBlock{Parent: outer, File: f.file, Line: 3}

	root := &scope.LexicalScope{Desc: f.sp}
	o := &scope.LexicalScope{Parent: root, Desc: outer, Ranges: []scope.InsnRange{{First: f.i0, Last: f.i1}}}
	in := &scope.LexicalScope{Parent: o, Desc: inner, Ranges: []scope.InsnRange{{First: f.i1, Last: f.i1}}}
	root.Children = []*scope.LexicalScope{o}
	o.Children = []*scope.LexicalScope{in}

	v := NewVariable(&meta.LocalVariable{Name: "x", Scope: inner, File: f.file, Line: 3, Type: intType}, nil)
	v.Value = &lir.DbgValue{Kind: lir.ValueImmediate, Imm: -7}
	f.fn.AddScopeVariable(in, v)

	kids, _, nonScope := f.cu.createScopeChildren(f.fn, root)
	if nonScope != 0 || len(kids) != 1 {
		t.Fatalf("got %d records (%d variables), want the inner block only", len(kids), nonScope)
	}
	blk := f.cu.Record(kids[0])
	if blk.Tag != dwarf.TagLexDwarfBlock || !blk.Has(dwarf.AttrLowpc) {
		t.Fatalf("hoisted record is %v", blk.Tag)
	}
	if len(blk.Children) != 1 {
		t.Fatalf("block has %d children", len(blk.Children))
	}
	x := f.cu.Record(blk.Children[0])
	cv := mustAttr(t, x, dwarf.AttrConstValue)
	if cv.Form != dw.FormSdata || int64(cv.Int) != -7 {
		t.Fatalf("constant %v form %#x", int64(cv.Int), cv.Form)
	}
	if x.Has(dwarf.AttrName) {
		t.Fatalf("concrete variables are named when definitions are finished")
	}
	f.ctx.FinishVariableDefinitions()
	if mustAttr(t, x, dwarf.AttrName).Str != "x" {
		t.Fatalf("variable not named")
	}
}

func TestScopeWithoutCodeHoistsVariables(t *testing.T) {
	f := newFunctionFixture(t)
	blk := &meta.LexicalBlock{Parent: f.sp, File: f.file, Line: 2}
	root := &scope.LexicalScope{Desc: f.sp}
	sc := &scope.LexicalScope{Parent: root, Desc: blk}
	root.Children = []*scope.LexicalScope{sc}
	f.fn.AddScopeVariable(sc, NewVariable(&meta.LocalVariable{Name: "y", Scope: blk, Type: intType}, nil))

	kids, _, _ := f.cu.createScopeChildren(f.fn, root)
	if len(kids) != 1 || f.cu.Record(kids[0]).Tag != dwarf.TagVariable {
		t.Fatalf("variable of an empty scope was not hoisted")
	}
}

func TestParametersKeepArgumentOrder(t *testing.T) {
	f := newFunctionFixture(t)
	sc := &scope.LexicalScope{Desc: f.sp}
	local := NewVariable(&meta.LocalVariable{Name: "l"}, nil)
	b := NewVariable(&meta.LocalVariable{Name: "b", Arg: 2}, nil)
	a := NewVariable(&meta.LocalVariable{Name: "a", Arg: 1}, nil)
	a.Frame = []FrameIndex{{Slot: 1}}
	for _, v := range []*Variable{local, b, a} {
		if !f.fn.AddScopeVariable(sc, v) {
			t.Fatalf("%s not added", v.Var.Name)
		}
	}
	dup := NewVariable(&meta.LocalVariable{Name: "a", Arg: 1}, nil)
	dup.Frame = []FrameIndex{{Slot: 2}}
	if f.fn.AddScopeVariable(sc, dup) {
		t.Fatalf("second copy of argument 1 added")
	}
	vars := f.fn.Variables(sc)
	got := ""
	for _, v := range vars {
		got += v.Var.Name
	}
	if got != "abl" {
		t.Fatalf("order %q, want abl", got)
	}
	if len(a.Frame) != 2 {
		t.Fatalf("stack slots not merged: %v", a.Frame)
	}
}

func TestFrameFragmentsShareOneLocation(t *testing.T) {
	f := newFunctionFixture(t)
	x := target.X86_64()
	f.fn.Layout = slotLayout{reg: x.FrameRegister(), offs: map[int]int64{0: -8, 1: -16}}
	v := NewVariable(&meta.LocalVariable{Name: "pair", Type: intType}, nil)
	v.Frame = []FrameIndex{
		{Slot: 1, Expr: meta.FragmentExpression(32, 32)},
		{Slot: 0, Expr: meta.FragmentExpression(0, 32)},
	}
	id := f.cu.constructVariableDIE(f.fn, v, false)
	loc := mustAttr(t, f.cu.Record(id), dwarf.AttrLocation)
	want := []byte{byte(op.DW_OP_fbreg), 0x78, byte(op.DW_OP_piece), 4, byte(op.DW_OP_fbreg), 0x70, byte(op.DW_OP_piece), 4}
	if !bytes.Equal(loc.Block.Bytes(), want) {
		t.Fatalf("location % x, want % x", loc.Block.Bytes(), want)
	}
}

func TestInlinedCallsShareAbstractInstance(t *testing.T) {
	f := newFunctionFixture(t)
	callee := &meta.Subprogram{Name: "g", Scope: f.sp.Scope, File: f.file, Line: 10, Definition: true}
	param := &meta.LocalVariable{Name: "p", Scope: callee, Arg: 1, Type: intType}

	abs := &scope.LexicalScope{Desc: callee, Abstract: true}
	f.ctx.createAbstractVariable(f.fn, param, abs)
	if err := f.cu.ConstructAbstractSubprogramScope(f.fn, abs); err != nil {
		t.Fatalf("abstract scope: %v", err)
	}
	if err := f.cu.ConstructAbstractSubprogramScope(f.fn, abs); err != nil {
		t.Fatalf("abstract scope rebuilt: %v", err)
	}
	origin, ok := f.ctx.AbstractSubprogram(callee)
	if !ok {
		t.Fatalf("no abstract instance")
	}
	if v := mustAttr(t, f.cu.Record(origin.ID), dwarf.AttrInline); v.Int != dw.InlInlined {
		t.Fatalf("inline %d", v.Int)
	}

	root := &scope.LexicalScope{Desc: f.sp}
	var concrete []*Variable
	for i, in := range []*lir.Insn{f.i0, f.i1} {
		call := &meta.Location{Line: 20 + i, Scope: f.sp}
		sc := &scope.LexicalScope{Parent: root, Desc: callee, InlinedAt: call, Ranges: []scope.InsnRange{{First: in, Last: in}}}
		root.Children = append(root.Children, sc)
		v := NewVariable(param, call)
		v.Value = &lir.DbgValue{Kind: lir.ValueImmediate, Imm: int64(i)}
		f.fn.AddScopeVariable(sc, v)
		concrete = append(concrete, v)
	}

	kids, _, _ := f.cu.createScopeChildren(f.fn, root)
	if len(kids) != 2 {
		t.Fatalf("%d inlined records, want 2", len(kids))
	}
	for i, k := range kids {
		r := f.cu.Record(k)
		if r.Tag != dwarf.TagInlinedSubroutine {
			t.Fatalf("record %d is %v", i, r.Tag)
		}
		if got := mustAttr(t, r, dwarf.AttrAbstractOrigin).Ref; got != origin {
			t.Fatalf("origin %v, want %v", got, origin)
		}
		if line := mustAttr(t, r, dwarf.AttrCallLine).Int; line != uint64(20+i) {
			t.Fatalf("call line %d", line)
		}
	}

	f.ctx.FinishVariableDefinitions()
	absVar := f.ctx.abstractVars[param]
	for _, v := range concrete {
		ref, ok := v.Record()
		if !ok {
			t.Fatalf("concrete variable not built")
		}
		r := f.cu.Record(ref.ID)
		if got := mustAttr(t, r, dwarf.AttrAbstractOrigin).Ref; got != absVar.unit.Ref(absVar.record) {
			t.Fatalf("concrete variable points at %v", got)
		}
		if r.Has(dwarf.AttrName) {
			t.Fatalf("concrete copy repeats the name")
		}
	}
	if len(f.ctx.ArangeLabels()) != 2 {
		t.Fatalf("%d aranges, want one per inlined range", len(f.ctx.ArangeLabels()))
	}
}

func TestInlinedScopeWithoutAbstractInstance(t *testing.T) {
	f := newFunctionFixture(t)
	callee := &meta.Subprogram{Name: "h", File: f.file, Definition: true}
	root := &scope.LexicalScope{Desc: f.sp}
	sc := &scope.LexicalScope{Parent: root, Desc: callee, InlinedAt: &meta.Location{Line: 3, Scope: f.sp}}
	root.Children = []*scope.LexicalScope{sc}

	kids, _, _ := f.cu.createScopeChildren(f.fn, root)
	if len(kids) != 0 {
		t.Fatalf("inlined record built without an origin")
	}
	if !oerrors.IsUsage(f.ctx.Err()) {
		t.Fatalf("err = %v, want a usage error", f.ctx.Err())
	}
}

func TestAddRangeCoalesces(t *testing.T) {
	ctx, _ := newTestContext(Options{})
	cu := ctx.NewCompileUnit(testNode(dw.LangC99))
	at := func(off uint64) *sink.Symbol { return sink.NewSymbolAt("l", ".text", off) }

	cu.AddRange(RangeSpan{Begin: at(0), End: at(16)})
	cu.AddRange(RangeSpan{Begin: at(16), End: at(32)})
	if n := len(cu.Ranges()); n != 1 {
		t.Fatalf("adjacent ranges not merged: %d", n)
	}
	ctx.SkippedNonDebugFunction()
	cu.AddRange(RangeSpan{Begin: at(32), End: at(40)})
	if n := len(cu.Ranges()); n != 2 {
		t.Fatalf("range after code without debug info merged: %d", n)
	}
	cu.AddRange(RangeSpan{Begin: at(48), End: at(64)})
	if n := len(cu.Ranges()); n != 3 {
		t.Fatalf("range after a gap merged: %d", n)
	}
	if last := cu.Ranges()[1]; last.End.Offset() != 40 {
		t.Fatalf("span before the gap extended to %d", last.End.Offset())
	}

	if err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	root := cu.Record(cu.Root())
	if v := mustAttr(t, root, dwarf.AttrLowpc); v.Int != 0 {
		t.Fatalf("low_pc %d, want 0", v.Int)
	}
	if !root.Has(dwarf.AttrRanges) || cu.Base() != nil {
		t.Fatalf("several ranges need a range list and no base")
	}
	if len(cu.RangeLists()) != 1 || len(cu.RangeLists()[0].Ranges) != 3 {
		t.Fatalf("range lists %v", cu.RangeLists())
	}
}

func TestSingleRangeSetsBase(t *testing.T) {
	ctx, _ := newTestContext(Options{})
	cu := ctx.NewCompileUnit(testNode(dw.LangC99))
	begin := sink.NewSymbolAt("f", ".text", 0)
	cu.AddRange(RangeSpan{Begin: begin, End: sink.NewSymbolAt("f.end", ".text", 8)})
	if err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if cu.Base() != begin {
		t.Fatalf("base %v", cu.Base())
	}
	root := cu.Record(cu.Root())
	if !root.Has(dwarf.AttrHighpc) || root.Has(dwarf.AttrRanges) {
		t.Fatalf("single range should be a pc pair")
	}
}

func TestSplitUnitsCarryDwoID(t *testing.T) {
	ctx, _ := newTestContext(Options{Split: true, DwoName: "a.dwo"})
	node := testNode(dw.LangC99)
	cu := ctx.NewCompileUnit(node)
	skel := cu.Skeleton()
	if skel == nil {
		t.Fatalf("no skeleton")
	}
	if skel.Section() != dw.SectionInfo || cu.Section() != dw.SectionInfoDWO {
		t.Fatalf("sections %s / %s", skel.Section(), cu.Section())
	}
	if cu.HeaderUnit() != skel {
		t.Fatalf("header unit is not the skeleton")
	}
	if err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	sum := md5.Sum([]byte("a.dwo\x00a.c\x00/src"))
	want := binary.LittleEndian.Uint64(sum[8:16])
	for _, u := range []*Unit{skel, cu.Unit} {
		if v := mustAttr(t, u.Record(u.Root()), dw.AttrGNUDwoID); v.Int != want {
			t.Fatalf("%s dwo id %#x, want %#x", u.Kind(), v.Int, want)
		}
	}
	name := mustAttr(t, cu.Record(cu.Root()), dwarf.AttrName)
	if name.Form != dw.FormGNUStrIndex {
		t.Fatalf("split unit strings use form %#x", name.Form)
	}
}

func TestEmitReadsBack(t *testing.T) {
	ctx, _ := newTestContext(Options{})
	node := testNode(dw.LangC99)
	point := &meta.CompositeType{TypeCommon: meta.TypeCommon{Name: "point", SizeBits: 64}, Kind: dwarf.TagStructType}
	node.Globals = []*meta.GlobalVariable{{
		Name:       "counter",
		Type:       point,
		Definition: true,
		Storage:    &meta.GlobalStorage{Section: ".data", Offset: 0x10, Size: 8},
	}}
	cu := ctx.NewCompileUnit(node)
	cu.ConstructGlobals()
	if err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	ctx.Layout()

	out := sink.NewBuffer()
	out.SetSectionBase(".data", 0x2000)
	if err := ctx.EmitUnits(out); err != nil {
		t.Fatalf("EmitUnits: %v", err)
	}
	ctx.EmitLines(out)
	ctx.EmitStrings(out)
	secs, err := out.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	data := make(map[string][]byte)
	for _, s := range secs {
		data[s.Name] = s.Data
	}

	d, err := dwarf.New(data[dw.SectionAbbrev], nil, nil, data[dw.SectionInfo], data[dw.SectionLine], nil, nil, data[dw.SectionStr])
	if err != nil {
		t.Fatalf("dwarf.New: %v", err)
	}
	r := d.Reader()
	seen := make(map[string]*dwarf.Entry)
	for {
		e, err := r.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if e == nil {
			break
		}
		if name, ok := e.Val(dwarf.AttrName).(string); ok {
			seen[name] = e
		}
	}
	if e := seen["a.c"]; e == nil || e.Tag != dwarf.TagCompileUnit {
		t.Fatalf("compile unit not found")
	}
	if e := seen["point"]; e == nil || e.Val(dwarf.AttrByteSize) != int64(8) {
		t.Fatalf("point: %v", seen["point"])
	}
	g := seen["counter"]
	if g == nil {
		t.Fatalf("global not found")
	}
	loc, _ := g.Val(dwarf.AttrLocation).([]byte)
	want := []byte{byte(op.DW_OP_addr), 0x10, 0x20, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(loc, want) {
		t.Fatalf("location % x, want % x", loc, want)
	}
	if len(ctx.ArangeLabels()) != 1 {
		t.Fatalf("global storage not attributed to the unit")
	}
}
