package accel

import (
	"sort"

	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	"github.com/orizon-lang/dwarfemit/internal/debug/unit"
)

const arangesVersion = 2

// Span is one address range of an arange set. A nil End covers a single
// object of unknown size.
type Span struct {
	Start, End *sink.Symbol
}

// ArangeSet is the address ranges attributed to one compile unit.
type ArangeSet struct {
	Unit  *unit.CompileUnit
	Spans []Span
}

// BuildAranges groups labels by section, orders them by address and
// forms the longest spans that stay within one unit. A span ends where the
// next unit's first label starts; the last span of a section ends at the
// furthest known end of anything in that section. Sets come back in unit
// creation order.
func BuildAranges(labels []unit.ArangeLabel, units []*unit.CompileUnit) []ArangeSet {
	var order []string
	bySection := make(map[string][]unit.ArangeLabel)
	for _, l := range labels {
		sec := l.Sym.Section()
		if _, ok := bySection[sec]; !ok {
			order = append(order, sec)
		}
		bySection[sec] = append(bySection[sec], l)
	}

	spans := make(map[*unit.CompileUnit][]Span)
	for _, sec := range order {
		list := bySection[sec]
		if sec == "" {
			for _, l := range list {
				spans[l.Unit] = append(spans[l.Unit], Span{Start: l.Sym})
			}
			continue
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].Sym.Offset() < list[j].Sym.Offset() })

		var end uint64
		for _, l := range list {
			e := l.Sym.Offset()
			if l.End != nil {
				e = l.End.Offset()
			}
			if e > end {
				end = e
			}
		}
		list = append(list, unit.ArangeLabel{Sym: sink.NewSymbolAt(sec+".end", sec, end)})

		start := list[0].Sym
		for n := 1; n < len(list); n++ {
			prev, cur := list[n-1], list[n]
			if cur.Unit != prev.Unit {
				spans[prev.Unit] = append(spans[prev.Unit], Span{Start: start, End: cur.Sym})
				start = cur.Sym
			}
		}
	}

	var sets []ArangeSet
	for _, cu := range units {
		if s, ok := spans[cu]; ok {
			sets = append(sets, ArangeSet{Unit: cu, Spans: s})
		}
	}
	return sets
}

// EmitAranges writes .debug_aranges. In split output each set describes
// the skeleton unit.
func EmitAranges(out sink.Sink, ctx *unit.Context) {
	sets := BuildAranges(ctx.ArangeLabels(), ctx.CompileUnits())
	if len(sets) == 0 {
		return
	}
	size := ctx.Options().AddrSize
	out.SwitchSection(dw.SectionARanges)
	for _, set := range sets {
		tuple := 2 * size
		content := 2 + 4 + 1 + 1
		padding := (tuple - (4+content)%tuple) % tuple
		content += padding + (len(set.Spans)+1)*tuple

		out.EmitIntValue(uint64(content), 4)
		out.EmitIntValue(arangesVersion, 2)
		out.EmitSectionOffset(set.Unit.HeaderUnit().Label())
		out.EmitInt8(uint8(size))
		out.EmitInt8(0)
		out.EmitFill(padding, 0xff)
		for _, s := range set.Spans {
			out.EmitSymbolValue(s.Start, size)
			if s.End != nil {
				out.EmitLabelDifference(s.End, s.Start, size)
			} else {
				out.EmitIntValue(1, size)
			}
		}
		out.EmitIntValue(0, size)
		out.EmitIntValue(0, size)
	}
}
