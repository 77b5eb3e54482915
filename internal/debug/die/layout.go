package die

import (
	"fmt"

	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	oerrors "github.com/orizon-lang/dwarfemit/internal/errors"
)

// Resolver supplies what a single arena cannot know during emission.
type Resolver interface {
	// RefAddr returns the offset of ref from the start of the section that
	// holds its unit.
	RefAddr(ref Ref) (uint64, error)
	// LocList returns the label placed at the start of location list index.
	LocList(index int) (*sink.Symbol, error)
}

// ULEBSize returns the encoded length of v.
func ULEBSize(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// SLEBSize returns the encoded length of v.
func SLEBSize(v int64) int {
	n := 0
	for {
		b := v & 0x7f
		v >>= 7
		n++
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return n
		}
	}
}

// SizeOf returns the encoded size of v.
func (v *Value) SizeOf(p Params) int {
	switch v.Form {
	case dw.FormFlagPresent:
		return 0
	case dw.FormData1, dw.FormFlag, dw.FormRef1:
		return 1
	case dw.FormData2, dw.FormRef2:
		return 2
	case dw.FormData4, dw.FormRef4, dw.FormStrp, dw.FormSecOffset:
		return 4
	case dw.FormData8, dw.FormRef8, dw.FormRefSig8:
		return 8
	case dw.FormAddr:
		return p.AddrSize
	case dw.FormRefAddr:
		return p.RefAddrSize()
	case dw.FormUdata, dw.FormRefUdata, dw.FormGNUAddrIndex, dw.FormGNUStrIndex:
		return ULEBSize(v.Int)
	case dw.FormSdata:
		return SLEBSize(int64(v.Int))
	case dw.FormString:
		return len(v.Str) + 1
	case dw.FormBlock1:
		return 1 + v.Block.Len()
	case dw.FormBlock2:
		return 2 + v.Block.Len()
	case dw.FormBlock4:
		return 4 + v.Block.Len()
	case dw.FormBlock, dw.FormExprloc:
		return ULEBSize(uint64(v.Block.Len())) + v.Block.Len()
	}
	panic(fmt.Sprintf("die: no size for form %#x", v.Form))
}

// Layout assigns abbreviation codes, unit-relative offsets and sizes to root
// and its subtree, starting at offset. It returns the offset just past the
// subtree.
func Layout(a *Arena, root ID, abbrevs *AbbrevSet, offset uint32, p Params) uint32 {
	r := a.At(root)
	code := abbrevs.Assign(r)
	r.offset = offset
	offset += uint32(ULEBSize(uint64(code)))
	for i := range r.Values {
		offset += uint32(r.Values[i].SizeOf(p))
	}
	if len(r.Children) > 0 {
		for _, c := range r.Children {
			offset = Layout(a, c, abbrevs, offset, p)
		}
		offset++ // null entry ending the sibling chain
	}
	r.size = offset - r.offset
	return offset
}

// Emit writes root's subtree. Layout must have run first.
func Emit(out sink.Sink, a *Arena, root ID, p Params, res Resolver) error {
	r := a.At(root)
	out.EmitULEB128(uint64(r.abbrev))
	for i := range r.Values {
		if err := emitValue(out, a, &r.Values[i], p, res); err != nil {
			return fmt.Errorf("%v %v: %w", r.Tag, r.Values[i].Attr, err)
		}
	}
	if len(r.Children) > 0 {
		for _, c := range r.Children {
			if err := Emit(out, a, c, p, res); err != nil {
				return err
			}
		}
		out.EmitInt8(0)
	}
	return nil
}

func emitValue(out sink.Sink, a *Arena, v *Value, p Params, res Resolver) error {
	switch v.Kind {
	case KindInt, KindSignature:
		return emitInt(out, v, p)
	case KindString:
		if v.Form == dw.FormString {
			out.EmitBytes([]byte(v.Str))
			out.EmitInt8(0)
			return nil
		}
		return emitInt(out, v, p)
	case KindBlock:
		n := v.Block.Len()
		switch v.Form {
		case dw.FormBlock1:
			out.EmitInt8(uint8(n))
		case dw.FormBlock2:
			out.EmitIntValue(uint64(n), 2)
		case dw.FormBlock4:
			out.EmitIntValue(uint64(n), 4)
		default:
			out.EmitULEB128(uint64(n))
		}
		v.Block.writeTo(out)
		return nil
	case KindEntry:
		if v.Form == dw.FormRefAddr {
			off, err := res.RefAddr(v.Ref)
			if err != nil {
				return err
			}
			out.EmitIntValue(off, p.RefAddrSize())
			return nil
		}
		if !a.Owns(v.Ref) {
			return oerrors.UsageError("unit-local reference to a record in another unit",
				map[string]interface{}{"ref": v.Ref.String()})
		}
		out.EmitIntValue(uint64(a.At(v.Ref.ID).offset), 4)
		return nil
	case KindLabel:
		if v.Form == dw.FormAddr {
			out.EmitSymbolValue(v.Sym, p.AddrSize)
			return nil
		}
		out.EmitSectionOffset(v.Sym)
		return nil
	case KindDelta:
		out.EmitLabelDifference(v.Sym, v.Base, v.SizeOf(p))
		return nil
	case KindLocList:
		sym, err := res.LocList(int(v.Int))
		if err != nil {
			return err
		}
		out.EmitSectionOffset(sym)
		return nil
	}
	return oerrors.EncodingError("unknown value kind", map[string]interface{}{"kind": v.Kind})
}

func emitInt(out sink.Sink, v *Value, p Params) error {
	switch v.Form {
	case dw.FormFlagPresent:
	case dw.FormUdata, dw.FormRefUdata, dw.FormGNUAddrIndex, dw.FormGNUStrIndex:
		out.EmitULEB128(v.Int)
	case dw.FormSdata:
		out.EmitSLEB128(int64(v.Int))
	default:
		size := v.SizeOf(p)
		if size < 8 && v.Int>>(uint(size)*8) != 0 && !fitsSigned(int64(v.Int), size) {
			return oerrors.EncodingError(fmt.Sprintf("value %#x does not fit form %#x", v.Int, v.Form), nil)
		}
		out.EmitIntValue(v.Int, size)
	}
	return nil
}

func fitsSigned(v int64, size int) bool {
	bits := uint(size) * 8
	min := -(int64(1) << (bits - 1))
	return v >= min && v < 0
}
