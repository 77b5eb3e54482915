package typeunit

import (
	"bytes"
	"debug/dwarf"
	"strings"
	"testing"

	"github.com/orizon-lang/dwarfemit/internal/cli"
	"github.com/orizon-lang/dwarfemit/internal/debug/die"
	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/debug/unit"
	"github.com/orizon-lang/dwarfemit/internal/meta"
	"github.com/orizon-lang/dwarfemit/internal/target"
)

func newModule(opts unit.Options, log *cli.Logger) (*unit.Context, *Cache) {
	opts.Version, opts.AddrSize = 4, 8
	ctx := unit.NewContext(opts, target.X86_64(), log)
	return ctx, New(ctx, log)
}

func node(name string) *meta.CompileUnit {
	return &meta.CompileUnit{File: &meta.File{Name: name, Dir: "/src"}, Language: dw.LangCPlusPlus}
}

func structType(name string, members ...meta.Node) *meta.CompositeType {
	return &meta.CompositeType{
		TypeCommon: meta.TypeCommon{Name: name, SizeBits: 64},
		Kind:       dwarf.TagStructType,
		Identifier: "_ZTS" + name,
		Elements:   members,
	}
}

// typeOf returns the type record a global of type t refers to.
func typeOf(t *testing.T, cu *unit.CompileUnit, t2 meta.Type) *die.Record {
	t.Helper()
	id := cu.ConstructGlobalVariable(&meta.GlobalVariable{Name: "v", Type: t2, Definition: true})
	v, ok := cu.Record(id).Attr(dwarf.AttrType)
	if !ok {
		t.Fatalf("global has no type")
	}
	return cu.Record(v.Ref.ID)
}

func signatureOf(r *die.Record) (uint64, bool) {
	v, ok := r.Attr(dw.AttrSignature)
	if !ok {
		return 0, false
	}
	return v.Int, true
}

func TestSameIdentifierSharesOneUnit(t *testing.T) {
	ctx, cache := newModule(unit.Options{PubNames: true}, nil)
	a := ctx.NewCompileUnit(node("a.cc"))
	b := ctx.NewCompileUnit(node("b.cc"))

	ra := typeOf(t, a, structType("S"))
	rb := typeOf(t, b, structType("S"))

	if n := len(ctx.TypeUnitList()); n != 1 {
		t.Fatalf("%d type units, want 1", n)
	}
	want := Signature("_ZTSS")
	for i, r := range []*die.Record{ra, rb} {
		sig, ok := signatureOf(r)
		if !ok || sig != want {
			t.Fatalf("unit %d refers to %#x, want %#x", i, sig, want)
		}
		if !r.Has(dwarf.AttrDeclaration) {
			t.Fatalf("unit %d builds more than a declaration", i)
		}
	}
	if got, _ := cache.Lookup("_ZTSS"); got != want {
		t.Fatalf("cache has %#x", got)
	}
	tu := ctx.TypeUnitList()[0]
	if tu.Owner() != a || tu.Signature() != want {
		t.Fatalf("unit owned by %v with signature %#x", tu.Owner(), tu.Signature())
	}
	if types := a.PubTypes(); len(types) != 1 || types[0].Name != "S" {
		t.Fatalf("owner pub types %v", types)
	}
}

func TestNestedTypesGetTheirOwnUnits(t *testing.T) {
	ctx, cache := newModule(unit.Options{}, nil)
	cu := ctx.NewCompileUnit(node("a.cc"))
	inner := structType("B")
	outer := structType("A", &meta.DerivedType{
		TypeCommon: meta.TypeCommon{Name: "b", SizeBits: 64},
		Kind:       dwarf.TagMember,
		Base:       inner,
	})
	typeOf(t, cu, outer)

	units := ctx.TypeUnitList()
	if len(units) != 2 || cache.Len() != 2 {
		t.Fatalf("%d type units, %d signatures", len(units), cache.Len())
	}
	if units[0].Identifier() != "_ZTSA" || units[1].Identifier() != "_ZTSB" {
		t.Fatalf("commit order %s, %s", units[0].Identifier(), units[1].Identifier())
	}
	a := units[0]
	rec := a.Record(a.TypeRecord())
	member := a.Record(rec.Children[0])
	v, _ := member.Attr(dwarf.AttrType)
	if sig, ok := signatureOf(a.Record(v.Ref.ID)); !ok || sig != Signature("_ZTSB") {
		t.Fatalf("member refers to %#x", sig)
	}
}

func TestAddressDependentTypeIsInlined(t *testing.T) {
	ctx, cache := newModule(unit.Options{Split: true, DwoName: "a.dwo"}, nil)
	cu := ctx.NewCompileUnit(node("a.cc"))
	global := &meta.GlobalVariable{Name: "g", Definition: true, Storage: &meta.GlobalStorage{Section: ".data", Size: 8}}
	st := structType("T")
	st.TemplateParams = []meta.Node{&meta.TemplateValueParameter{Name: "P", Global: global}}

	r := typeOf(t, cu, st)
	if len(ctx.TypeUnitList()) != 0 || cache.Len() != 0 {
		t.Fatalf("address dependent type kept in a type unit")
	}
	if _, ok := signatureOf(r); ok {
		t.Fatalf("inlined type refers to a signature")
	}
	if r.Has(dwarf.AttrDeclaration) || len(r.Children) != 1 {
		t.Fatalf("type not built in the compile unit")
	}
	if ctx.Addr.Len() != 1 {
		t.Fatalf("address pool has %d entries", ctx.Addr.Len())
	}

	// A later request tries again and fails the same way.
	if _, ok := signatureOf(typeOf(t, ctx.NewCompileUnit(node("b.cc")), st)); ok {
		t.Fatalf("second request committed")
	}
}

func TestSignatureCollisionIsInlined(t *testing.T) {
	var buf bytes.Buffer
	ctx, cache := newModule(unit.Options{}, cli.NewLoggerTo(&buf, false, false))
	cache.hash = func(string) uint64 { return 7 }
	cu := ctx.NewCompileUnit(node("a.cc"))

	if sig, ok := signatureOf(typeOf(t, cu, structType("X"))); !ok || sig != 7 {
		t.Fatalf("first type not committed")
	}
	r := typeOf(t, cu, structType("Y"))
	if _, ok := signatureOf(r); ok {
		t.Fatalf("colliding type committed")
	}
	if v, ok := r.Attr(dwarf.AttrName); !ok || v.Str != "Y" {
		t.Fatalf("colliding type not built inline")
	}
	if len(ctx.TypeUnitList()) != 1 {
		t.Fatalf("%d type units", len(ctx.TypeUnitList()))
	}
	if !strings.Contains(buf.String(), "already belongs to") {
		t.Fatalf("collision not logged: %q", buf.String())
	}
}

func TestSignatureIsHighHalfOfMD5(t *testing.T) {
	// md5("") = d41d8cd98f00b204 e9800998ecf8427e
	if got := Signature(""); got != 0x7e42f8ec980980e9 {
		t.Fatalf("Signature(\"\") = %#x", got)
	}
}
