// Package modfile reads YAML module descriptions: the source-level debug
// metadata and the laid-out machine functions of one object file.
package modfile

import (
	"debug/dwarf"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-delve/delve/pkg/dwarf/op"
	"gopkg.in/yaml.v3"

	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	oerrors "github.com/orizon-lang/dwarfemit/internal/errors"
	"github.com/orizon-lang/dwarfemit/internal/lir"
	"github.com/orizon-lang/dwarfemit/internal/meta"
	"github.com/orizon-lang/dwarfemit/internal/position"
	"github.com/orizon-lang/dwarfemit/internal/target"
)

// SchemaVersion is the module file schema this package writes and reads
// best.
const SchemaVersion = "1.0.0"

// Options control loading.
type Options struct {
	// Schema is the accepted range of schema versions; nil accepts any.
	Schema *semver.Constraints
	// Producer fills in units that do not name one.
	Producer string
	// Target resolves register names; x86-64 when nil.
	Target *target.Info
}

// Load reads and resolves the module description at path.
func Load(path string, opts Options) (*lir.Module, *position.Diagnostic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, oerrors.IOFailure("read", path, err)
	}
	return Parse(path, data, opts)
}

// Parse resolves a module description held in memory. Problems are
// collected into the returned diagnostic; the error summarises them.
func Parse(filename string, data []byte, opts Options) (*lir.Module, *position.Diagnostic, error) {
	var decl moduleDecl
	if err := yaml.Unmarshal(data, &decl); err != nil {
		return nil, nil, oerrors.InvalidInput(filename, err.Error())
	}
	if opts.Target == nil {
		opts.Target = target.X86_64()
	}
	l := &loader{
		filename: filename,
		opts:     opts,
		diag:     position.NewDiagnostic(),
		files:    make(map[string]*meta.File),
		units:    make(map[string]*meta.CompileUnit),
		scopes:   make(map[string]meta.Scope),
		types:    make(map[string]meta.Type),
		subs:     make(map[string]*meta.Subprogram),
		locals:   make(map[string]meta.LocalScope),
		vars:     make(map[string]*meta.LocalVariable),
		globals:  make(map[string]*meta.GlobalVariable),
		members:  make(map[string]*meta.DerivedType),
	}
	l.checkSchema(decl.Schema)
	m := l.module(&decl)
	if l.diag.HasErrors() {
		return nil, l.diag, oerrors.InvalidInput(filename, l.diag.Summary())
	}
	return m, l.diag, nil
}

type loader struct {
	filename string
	opts     Options
	diag     *position.Diagnostic

	files   map[string]*meta.File
	units   map[string]*meta.CompileUnit
	scopes  map[string]meta.Scope
	types   map[string]meta.Type
	subs    map[string]*meta.Subprogram
	locals  map[string]meta.LocalScope
	vars    map[string]*meta.LocalVariable
	globals map[string]*meta.GlobalVariable
	members map[string]*meta.DerivedType
}

func (l *loader) pos(a at) position.Position {
	return position.Position{Filename: l.filename, Line: a.line, Column: a.col}
}

func (l *loader) errorf(a at, kind, format string, args ...interface{}) {
	l.diag.AddError(l.pos(a), kind, fmt.Sprintf(format, args...))
}

func (l *loader) checkSchema(s string) {
	if s == "" {
		l.diag.AddWarning(position.Position{Filename: l.filename}, "schema", "no schema version, assuming "+SchemaVersion)
		s = SchemaVersion
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		l.errorf(at{}, "schema", "bad schema version %q: %v", s, err)
		return
	}
	if l.opts.Schema != nil && !l.opts.Schema.Check(v) {
		l.errorf(at{}, "schema", "schema version %s is not accepted (want %s)", v, l.opts.Schema)
	}
}

func (l *loader) declare(a at, kind, id string, add func()) {
	if id == "" {
		l.errorf(a, kind, "missing id")
		return
	}
	add()
}

func (l *loader) module(d *moduleDecl) *lir.Module {
	m := &lir.Module{Name: d.Name}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(baseName(l.filename), ".yaml")
	}

	for _, f := range d.Files {
		f := f
		l.declare(f.at, "file", f.ID, func() {
			l.files[f.ID] = &meta.File{Name: f.Name, Dir: f.Dir}
		})
	}
	for _, u := range d.Units {
		u := u
		l.declare(u.at, "unit", u.ID, func() {
			cu := &meta.CompileUnit{
				File:               l.file(u.at, u.File),
				Producer:           u.Producer,
				Language:           l.language(u.at, u.Language),
				Optimized:          u.Optimized,
				Flags:              u.Flags,
				SplitDebugFilename: u.SplitDebugFilename,
			}
			if cu.Producer == "" {
				cu.Producer = l.opts.Producer
			}
			l.units[u.ID] = cu
			l.scopes[u.ID] = cu
			m.Units = append(m.Units, cu)
		})
	}
	for _, ns := range d.Namespaces {
		ns := ns
		l.declare(ns.at, "namespace", ns.ID, func() {
			l.scopes[ns.ID] = &meta.Namespace{Name: ns.Name, File: l.optFile(ns.at, ns.File)}
		})
	}
	// Types and subprograms are created before any reference is resolved
	// so declarations may refer to each other in any order.
	for i := range d.Types {
		l.newType(&d.Types[i])
	}
	for i := range d.Subprograms {
		sp := &d.Subprograms[i]
		l.declare(sp.at, "subprogram", sp.ID, func() {
			s := &meta.Subprogram{Name: sp.Name}
			l.subs[sp.ID] = s
			l.scopes[sp.ID] = s
			l.locals[sp.ID] = s
		})
	}

	for _, ns := range d.Namespaces {
		if n, ok := l.scopes[ns.ID].(*meta.Namespace); ok && ns.Parent != "" {
			n.Parent = l.scope(ns.at, ns.Parent)
		}
	}
	for i := range d.Types {
		l.resolveType(&d.Types[i])
	}
	for i := range d.Units {
		l.unitContents(&d.Units[i])
	}
	// Template value parameters may name globals.
	for i := range d.Types {
		if ct, ok := l.types[d.Types[i].ID].(*meta.CompositeType); ok {
			ct.TemplateParams = l.templateParams(d.Types[i].TemplateParams)
		}
	}
	for i := range d.Subprograms {
		l.resolveSubprogram(&d.Subprograms[i])
	}
	for i := range d.Subprograms {
		l.subprogramBody(&d.Subprograms[i])
	}
	for i := range d.Functions {
		if fn := l.function(&d.Functions[i]); fn != nil {
			m.Functions = append(m.Functions, fn)
		}
	}
	return m
}

func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

func (l *loader) file(a at, id string) *meta.File {
	f, ok := l.files[id]
	if !ok {
		l.errorf(a, "reference", "unknown file %q", id)
	}
	return f
}

func (l *loader) optFile(a at, id string) *meta.File {
	if id == "" {
		return nil
	}
	return l.file(a, id)
}

func (l *loader) scope(a at, id string) meta.Scope {
	if id == "" {
		return nil
	}
	if s, ok := l.scopes[id]; ok {
		return s
	}
	l.errorf(a, "reference", "unknown scope %q", id)
	return nil
}

// typeRef resolves a type id; "" is void.
func (l *loader) typeRef(a at, id string) meta.Type {
	if id == "" {
		return nil
	}
	if t, ok := l.types[id]; ok {
		return t
	}
	l.errorf(a, "reference", "unknown type %q", id)
	return nil
}

var languages = map[string]uint16{
	"c89": dw.LangC89, "c": dw.LangC, "c99": dw.LangC99, "c11": dw.LangC11,
	"c++": dw.LangCPlusPlus, "c++11": dw.LangCPlusPlus11, "objc": dw.LangObjC,
	"fortran90": dw.LangFortran90, "go": dw.LangGo, "rust": dw.LangRust,
}

func (l *loader) language(a at, s string) uint16 {
	if s == "" {
		return dw.LangC99
	}
	if v, ok := languages[strings.ToLower(s)]; ok {
		return v
	}
	if n, err := strconv.ParseUint(s, 0, 16); err == nil {
		return uint16(n)
	}
	l.errorf(a, "unit", "unknown language %q", s)
	return 0
}

var flagNames = map[string]meta.Flags{
	"private":         meta.FlagPrivate,
	"protected":       meta.FlagProtected,
	"public":          meta.FlagPublic,
	"fwd_decl":        meta.FlagFwdDecl,
	"artificial":      meta.FlagArtificial,
	"explicit":        meta.FlagExplicit,
	"prototyped":      meta.FlagPrototyped,
	"virtual":         meta.FlagVirtual,
	"static_member":   meta.FlagStaticMember,
	"bit_field":       meta.FlagBitField,
	"noreturn":        meta.FlagNoReturn,
	"main_subprogram": meta.FlagMainSubprogram,
	"object_pointer":  meta.FlagObjectPointer,
}

func (l *loader) flags(a at, names []string) meta.Flags {
	var f meta.Flags
	for _, n := range names {
		v, ok := flagNames[n]
		if !ok {
			l.errorf(a, "flags", "unknown flag %q", n)
			continue
		}
		f |= v
	}
	return f
}

var exprOps = map[string]uint64{
	"constu":      uint64(op.DW_OP_constu),
	"plus_uconst": uint64(op.DW_OP_plus_uconst),
	"plus":        uint64(op.DW_OP_plus),
	"minus":       uint64(op.DW_OP_minus),
	"deref":       uint64(op.DW_OP_deref),
	"stack_value": uint64(op.DW_OP_stack_value),
	"swap":        uint64(op.DW_OP_swap),
	"xderef":      uint64(op.DW_OP_xderef),
	"fragment":    meta.OpFragment,
}

// expression parses opcode names and numeric operands.
func (l *loader) expression(a at, elems []string) *meta.Expression {
	if len(elems) == 0 {
		return nil
	}
	e := &meta.Expression{}
	for _, s := range elems {
		if v, ok := exprOps[s]; ok {
			e.Elements = append(e.Elements, v)
			continue
		}
		n, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			l.errorf(a, "expression", "bad element %q", s)
			return nil
		}
		e.Elements = append(e.Elements, n)
	}
	if !e.Valid() {
		l.errorf(a, "expression", "malformed expression %v", elems)
		return nil
	}
	return e
}

var encodings = map[string]uint8{
	"address": dw.ATEAddress, "boolean": dw.ATEBoolean, "complex_float": dw.ATEComplexFloat,
	"float": dw.ATEFloat, "signed": dw.ATESigned, "signed_char": dw.ATESignedChar,
	"unsigned": dw.ATEUnsigned, "unsigned_char": dw.ATEUnsignedChar, "utf": dw.ATEUTF,
}

var derivedKinds = map[string]dwarf.Tag{
	"pointer":          dwarf.TagPointerType,
	"reference":        dwarf.TagReferenceType,
	"rvalue_reference": dwarf.TagRvalueReferenceType,
	"typedef":          dwarf.TagTypedef,
	"const":            dwarf.TagConstType,
	"volatile":         dwarf.TagVolatileType,
	"restrict":         dwarf.TagRestrictType,
	"ptr_to_member":    dwarf.TagPtrToMemberType,
	"friend":           dwarf.TagFriend,
}

var compositeKinds = map[string]dwarf.Tag{
	"struct": dwarf.TagStructType,
	"class":  dwarf.TagClassType,
	"union":  dwarf.TagUnionType,
	"array":  dwarf.TagArrayType,
	"enum":   dwarf.TagEnumerationType,
}

func (l *loader) newType(d *typeDecl) {
	l.declare(d.at, "type", d.ID, func() {
		common := meta.TypeCommon{
			Name:      d.Name,
			Line:      d.Line,
			SizeBits:  d.Size,
			AlignBits: d.Align,
			Flags:     l.flags(d.at, d.Flags),
		}
		var t meta.Type
		switch {
		case d.Kind == "base":
			enc, ok := encodings[d.Encoding]
			if !ok {
				l.errorf(d.at, "type", "unknown encoding %q", d.Encoding)
			}
			t = &meta.BasicType{TypeCommon: common, Encoding: enc}
		case d.Kind == "subroutine":
			t = &meta.SubroutineType{TypeCommon: common}
		case derivedKinds[d.Kind] != 0:
			t = &meta.DerivedType{TypeCommon: common, Kind: derivedKinds[d.Kind]}
		case compositeKinds[d.Kind] != 0:
			ct := &meta.CompositeType{TypeCommon: common, Kind: compositeKinds[d.Kind], Identifier: d.Identifier}
			t = ct
			l.scopes[d.ID] = ct
		default:
			l.errorf(d.at, "type", "unknown kind %q", d.Kind)
			return
		}
		l.types[d.ID] = t
	})
}

func (l *loader) resolveType(d *typeDecl) {
	t, ok := l.types[d.ID]
	if !ok {
		return
	}
	c := t.Common()
	c.Scope = l.scope(d.at, d.Scope)
	c.File = l.optFile(d.at, d.File)

	switch tt := t.(type) {
	case *meta.DerivedType:
		tt.Base = l.typeRef(d.at, d.Base)
	case *meta.SubroutineType:
		for _, id := range d.Types {
			tt.Types = append(tt.Types, l.typeRef(d.at, id))
		}
	case *meta.CompositeType:
		tt.Base = l.typeRef(d.at, d.Base)
		tt.ContainingType = l.typeRef(d.at, d.ContainingType)
		for _, in := range d.Inherits {
			tt.Elements = append(tt.Elements, &meta.DerivedType{
				TypeCommon: meta.TypeCommon{Scope: tt, OffsetBits: in.Offset, Flags: l.flags(in.at, in.Flags)},
				Kind:       dwarf.TagInheritance,
				Base:       l.typeRef(in.at, in.Type),
			})
		}
		for _, md := range d.Members {
			mt := &meta.DerivedType{
				TypeCommon: meta.TypeCommon{
					Name: md.Name, Scope: tt, File: c.File, Line: md.Line,
					OffsetBits: md.Offset, SizeBits: md.Size, Flags: l.flags(md.at, md.Flags),
				},
				Kind:       dwarf.TagMember,
				Base:       l.typeRef(md.at, md.Type),
				ConstValue: md.Const,
			}
			tt.Elements = append(tt.Elements, mt)
			l.members[d.ID+"::"+md.Name] = mt
		}
		for _, e := range d.Enumerators {
			tt.Elements = append(tt.Elements, &meta.Enumerator{Name: e.Name, Value: e.Value, Unsigned: e.Unsigned})
		}
		for _, s := range d.Subranges {
			count := int64(-1)
			if s.Count != nil {
				count = *s.Count
			}
			tt.Elements = append(tt.Elements, &meta.Subrange{Count: count, LowerBound: s.Lower})
		}
		if tt.Kind == dwarf.TagArrayType && tt.Base == nil {
			l.errorf(d.at, "type", "array %q without an element type", d.ID)
		}
	}
}

func (l *loader) templateParams(decls []templateDecl) []meta.Node {
	var out []meta.Node
	for _, td := range decls {
		switch {
		case td.Value != nil || td.Global != "":
			p := &meta.TemplateValueParameter{Name: td.Name, Type: l.typeRef(td.at, td.Type)}
			if td.Value != nil {
				p.Value = *td.Value
			}
			if td.Global != "" {
				p.Global = l.globals[td.Global]
				if p.Global == nil {
					l.errorf(td.at, "reference", "unknown global %q", td.Global)
				}
			}
			out = append(out, p)
		default:
			out = append(out, &meta.TemplateTypeParameter{Name: td.Name, Type: l.typeRef(td.at, td.Type)})
		}
	}
	return out
}

func (l *loader) unitContents(d *unitDecl) {
	cu, ok := l.units[d.ID]
	if !ok {
		return
	}
	for _, id := range d.RetainedTypes {
		if t := l.typeRef(d.at, id); t != nil {
			cu.RetainedTypes = append(cu.RetainedTypes, t)
		}
	}
	for _, id := range d.Enums {
		ct, ok := l.typeRef(d.at, id).(*meta.CompositeType)
		if !ok || ct.Kind != dwarf.TagEnumerationType {
			l.errorf(d.at, "unit", "%q is not an enumeration", id)
			continue
		}
		cu.EnumTypes = append(cu.EnumTypes, ct)
	}
	for _, g := range d.Globals {
		gv := &meta.GlobalVariable{
			Name:        g.Name,
			LinkageName: g.LinkageName,
			Scope:       l.scope(g.at, g.Scope),
			File:        l.optFile(g.at, g.File),
			Line:        g.Line,
			Type:        l.typeRef(g.at, g.Type),
			LocalToUnit: g.Local,
			Definition:  !g.Declaration,
		}
		if gv.Scope == nil {
			gv.Scope = cu
		}
		if gv.File == nil {
			gv.File = cu.File
		}
		if g.StaticMember != "" {
			gv.StaticDataMember = l.members[g.StaticMember]
			if gv.StaticDataMember == nil {
				l.errorf(g.at, "reference", "unknown member %q", g.StaticMember)
			}
		}
		switch {
		case g.Const != nil:
			gv.Expr = meta.NewExpression(uint64(op.DW_OP_constu), uint64(*g.Const), uint64(op.DW_OP_stack_value))
		case g.Section != "":
			gv.Storage = &meta.GlobalStorage{Section: g.Section, Offset: g.Offset, Size: g.Size, TLS: g.TLS, DLLImport: g.DLLImport}
		}
		l.globals[g.Name] = gv
		cu.Globals = append(cu.Globals, gv)
	}
}

func (l *loader) resolveSubprogram(d *subprogramDecl) {
	sp, ok := l.subs[d.ID]
	if !ok {
		return
	}
	sp.LinkageName = d.LinkageName
	sp.Scope = l.scope(d.at, d.Scope)
	sp.File = l.optFile(d.at, d.File)
	sp.Line = d.Line
	sp.ScopeLine = d.ScopeLine
	sp.LocalToUnit = d.Local
	sp.Optimized = d.Optimized
	sp.Virtuality = d.Virtuality
	sp.VirtualIndex = d.VirtualIndex
	sp.ContainingType = l.typeRef(d.at, d.ContainingType)
	sp.Flags = l.flags(d.at, d.Flags)
	sp.TemplateParams = l.templateParams(d.TemplateParams)
	if d.Type != "" {
		st, ok := l.typeRef(d.at, d.Type).(*meta.SubroutineType)
		if !ok {
			l.errorf(d.at, "subprogram", "type %q is not a subroutine type", d.Type)
		}
		sp.Type = st
	}
	if d.Unit != "" {
		sp.Unit = l.units[d.Unit]
		if sp.Unit == nil {
			l.errorf(d.at, "reference", "unknown unit %q", d.Unit)
		}
		sp.Definition = true
	}
	if d.Declaration != "" {
		sp.Declaration = l.subs[d.Declaration]
		if sp.Declaration == nil {
			l.errorf(d.at, "reference", "unknown subprogram %q", d.Declaration)
		}
	}
	if sp.Scope == nil && sp.Unit != nil {
		sp.Scope = sp.Unit
	}
	if sp.File == nil && sp.Unit != nil {
		sp.File = sp.Unit.File
	}
	// Methods are listed by their class.
	if ct, ok := sp.Scope.(*meta.CompositeType); ok && !sp.Definition {
		ct.Elements = append(ct.Elements, sp)
	}
}

func (l *loader) subprogramBody(d *subprogramDecl) {
	sp, ok := l.subs[d.ID]
	if !ok {
		return
	}
	for _, b := range d.Blocks {
		b := b
		l.declare(b.at, "block", b.ID, func() {
			blk := &meta.LexicalBlock{Line: b.Line, Column: b.Column, File: l.optFile(b.at, b.File)}
			if blk.File == nil {
				blk.File = sp.File
			}
			l.locals[b.ID] = blk
			l.scopes[b.ID] = blk
		})
	}
	for _, b := range d.Blocks {
		blk, ok := l.locals[b.ID].(*meta.LexicalBlock)
		if !ok {
			continue
		}
		blk.Parent = l.localScope(b.at, b.Parent, sp)
	}
	for _, v := range d.Variables {
		lv := &meta.LocalVariable{
			Name:  v.Name,
			Scope: l.localScope(v.at, v.Scope, sp),
			File:  l.optFile(v.at, v.File),
			Line:  v.Line,
			Type:  l.typeRef(v.at, v.Type),
			Arg:   v.Arg,
			Flags: l.flags(v.at, v.Flags),
		}
		if lv.File == nil {
			lv.File = sp.File
		}
		id := v.ID
		if id == "" {
			id = d.ID + "." + v.Name
		}
		l.vars[id] = lv
		sp.RetainedNodes = append(sp.RetainedNodes, lv)
	}
}

// localScope resolves a block or subprogram id; "" is sp itself.
func (l *loader) localScope(a at, id string, sp *meta.Subprogram) meta.LocalScope {
	if id == "" {
		if sp == nil {
			return nil
		}
		return sp
	}
	if s, ok := l.locals[id]; ok {
		return s
	}
	l.errorf(a, "reference", "unknown local scope %q", id)
	return nil
}

func (l *loader) variable(a at, id string) *meta.LocalVariable {
	if v, ok := l.vars[id]; ok {
		return v
	}
	l.errorf(a, "reference", "unknown variable %q", id)
	return nil
}

func (l *loader) register(a at, name string) lir.Reg {
	if name == "" {
		return lir.NoReg
	}
	r, ok := l.opts.Target.Lookup(name)
	if !ok {
		l.errorf(a, "register", "unknown register %q", name)
	}
	return r
}

func floatBits(v float64, size int) uint64 {
	if size == 4 {
		return uint64(math.Float32bits(float32(v)))
	}
	return math.Float64bits(v)
}
