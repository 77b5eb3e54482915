package die

import (
	"debug/dwarf"

	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
)

// Kind discriminates Value payloads.
type Kind uint8

const (
	KindInt Kind = iota
	KindString
	KindBlock
	KindEntry
	KindLabel
	KindDelta
	KindSignature
	KindLocList
)

// Value is one (attribute, form, value) triple.
type Value struct {
	Attr dwarf.Attr
	Form dw.Form
	Kind Kind

	Int   uint64 // integer, string offset/index, signature, location list index
	Str   string
	Block *Block
	Ref   Ref
	Sym   *sink.Symbol
	Base  *sink.Symbol // KindDelta: Sym - Base
}

// Int returns an integer value in form.
func Int(attr dwarf.Attr, form dw.Form, v uint64) Value {
	return Value{Attr: attr, Form: form, Kind: KindInt, Int: v}
}

// Entry returns a reference from unit from to ref.
func Entry(attr dwarf.Attr, from UnitID, ref Ref) Value {
	form := dw.FormRef4
	if ref.Unit != from {
		form = dw.FormRefAddr
	}
	return Value{Attr: attr, Form: form, Kind: KindEntry, Ref: ref}
}

// String returns a string attribute. FormString stores s inline; for
// FormStrp and FormGNUStrIndex v is the pool offset or index.
func String(attr dwarf.Attr, form dw.Form, s string, v uint64) Value {
	return Value{Attr: attr, Form: form, Kind: KindString, Str: s, Int: v}
}

// BlockValue wraps an expression block.
func BlockValue(attr dwarf.Attr, form dw.Form, b *Block) Value {
	return Value{Attr: attr, Form: form, Kind: KindBlock, Block: b}
}

// Label returns the address (FormAddr) or section offset of sym.
func Label(attr dwarf.Attr, form dw.Form, sym *sink.Symbol) Value {
	return Value{Attr: attr, Form: form, Kind: KindLabel, Sym: sym}
}

// Delta returns hi - lo.
func Delta(attr dwarf.Attr, form dw.Form, hi, lo *sink.Symbol) Value {
	return Value{Attr: attr, Form: form, Kind: KindDelta, Sym: hi, Base: lo}
}

// Signature returns a type unit signature reference.
func Signature(attr dwarf.Attr, sig uint64) Value {
	return Value{Attr: attr, Form: dw.FormRefSig8, Kind: KindSignature, Int: sig}
}

// LocList returns a reference to location list index.
func LocList(attr dwarf.Attr, form dw.Form, index int) Value {
	return Value{Attr: attr, Form: form, Kind: KindLocList, Int: uint64(index)}
}

// BestDataForm returns the smallest fixed data form holding v.
func BestDataForm(v uint64) dw.Form {
	switch {
	case v <= 0xff:
		return dw.FormData1
	case v <= 0xffff:
		return dw.FormData2
	case v <= 0xffffffff:
		return dw.FormData4
	default:
		return dw.FormData8
	}
}

// BestSignedForm returns the smallest fixed data form that sign-extends to v.
func BestSignedForm(v int64) dw.Form {
	switch {
	case v >= -0x80 && v <= 0x7f:
		return dw.FormData1
	case v >= -0x8000 && v <= 0x7fff:
		return dw.FormData2
	case v >= -0x80000000 && v <= 0x7fffffff:
		return dw.FormData4
	default:
		return dw.FormData8
	}
}

// Params carries the encoding parameters shared by every unit in a file.
type Params struct {
	Version  int
	AddrSize int
}

// RefAddrSize is the width of DW_FORM_ref_addr, which was address sized in DWARF 2.
func (p Params) RefAddrSize() int {
	if p.Version <= 2 {
		return p.AddrSize
	}
	return 4
}

// FlagForm is flag_present where available.
func (p Params) FlagForm() dw.Form {
	if p.Version >= 4 {
		return dw.FormFlagPresent
	}
	return dw.FormFlag
}

// SecOffsetForm is the form for references into other debug sections.
func (p Params) SecOffsetForm() dw.Form {
	if p.Version >= 4 {
		return dw.FormSecOffset
	}
	return dw.FormData4
}

// BlockForm picks exprloc or the smallest sized block form.
func (p Params) BlockForm(size int) dw.Form {
	if p.Version >= 4 {
		return dw.FormExprloc
	}
	return BlockFormFor(size)
}

// BlockFormFor returns the smallest of block1/2/4 that fits size.
func BlockFormFor(size int) dw.Form {
	switch {
	case size <= 0xff:
		return dw.FormBlock1
	case size <= 0xffff:
		return dw.FormBlock2
	default:
		return dw.FormBlock4
	}
}
