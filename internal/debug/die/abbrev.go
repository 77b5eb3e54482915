package die

import (
	"debug/dwarf"
	"strconv"
	"strings"

	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
)

// AttrForm is one attribute specification of an abbreviation.
type AttrForm struct {
	Attr dwarf.Attr
	Form dw.Form
}

// Abbrev describes the shape shared by records with the same tag, child
// flag and attribute/form list.
type Abbrev struct {
	Code     uint32
	Tag      dwarf.Tag
	Children bool
	Attrs    []AttrForm
}

// AbbrevSet uniques abbreviations for one abbreviation section.
type AbbrevSet struct {
	index map[string]uint32
	list  []Abbrev
}

// NewAbbrevSet returns an empty set.
func NewAbbrevSet() *AbbrevSet {
	return &AbbrevSet{index: make(map[string]uint32)}
}

func abbrevKey(r *Record) string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(uint64(r.Tag), 16))
	if len(r.Children) > 0 {
		sb.WriteString("+")
	} else {
		sb.WriteString("-")
	}
	for _, v := range r.Values {
		sb.WriteString(strconv.FormatUint(uint64(v.Attr), 16))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(uint64(v.Form), 16))
		sb.WriteByte(',')
	}
	return sb.String()
}

// Assign returns the code of r's abbreviation, adding it if new.
func (s *AbbrevSet) Assign(r *Record) uint32 {
	key := abbrevKey(r)
	if code, ok := s.index[key]; ok {
		r.abbrev = code
		return code
	}
	ab := Abbrev{Code: uint32(len(s.list) + 1), Tag: r.Tag, Children: len(r.Children) > 0}
	for _, v := range r.Values {
		ab.Attrs = append(ab.Attrs, AttrForm{Attr: v.Attr, Form: v.Form})
	}
	s.list = append(s.list, ab)
	s.index[key] = ab.Code
	r.abbrev = ab.Code
	return ab.Code
}

// Len returns the number of distinct abbreviations.
func (s *AbbrevSet) Len() int { return len(s.list) }

// Abbrevs returns the abbreviations in code order.
func (s *AbbrevSet) Abbrevs() []Abbrev { return s.list }

// Emit writes the abbreviation table to the current section.
func (s *AbbrevSet) Emit(out sink.Sink) {
	for _, ab := range s.list {
		out.EmitULEB128(uint64(ab.Code))
		out.EmitULEB128(uint64(ab.Tag))
		if ab.Children {
			out.EmitInt8(dw.ChildrenYes)
		} else {
			out.EmitInt8(dw.ChildrenNo)
		}
		for _, af := range ab.Attrs {
			out.EmitULEB128(uint64(af.Attr))
			out.EmitULEB128(uint64(af.Form))
		}
		out.EmitULEB128(0)
		out.EmitULEB128(0)
	}
	out.EmitULEB128(0) // end of table
}
