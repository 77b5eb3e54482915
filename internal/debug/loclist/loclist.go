// Package loclist turns the value history of a variable into location list
// entries and encodes them for .debug_loc or .debug_loc.dwo.
package loclist

import (
	"sort"

	"github.com/go-delve/delve/pkg/dwarf/op"

	"github.com/orizon-lang/dwarfemit/internal/debug/expr"
	"github.com/orizon-lang/dwarfemit/internal/debug/history"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	"github.com/orizon-lang/dwarfemit/internal/lir"
	"github.com/orizon-lang/dwarfemit/internal/meta"
)

// Labels supplies the symbols bounding instruction ranges.
type Labels interface {
	LabelBefore(in *lir.Insn) *sink.Symbol
	LabelAfter(in *lir.Insn) *sink.Symbol
	FunctionEnd() *sink.Symbol
}

// Entry is one address range of a location list with the values that hold
// in it. Several values are fragments of the same variable sorted by
// offset.
type Entry struct {
	Begin  *sink.Symbol
	End    *sink.Symbol
	Values []*lir.DbgValue
}

func isFragment(v *lir.DbgValue) bool { return v.Expr.IsFragment() }

func fragmentOffset(v *lir.DbgValue) uint64 {
	f, _ := v.Expr.Fragment()
	return f.OffsetBits
}

// MergeValues appends next's fragments when both entries start at the same
// address and no fragments overlap.
func (e *Entry) MergeValues(next *Entry) bool {
	if e.Begin != next.Begin {
		return false
	}
	if !isFragment(e.Values[0]) || !isFragment(next.Values[0]) {
		return false
	}
	for _, a := range e.Values {
		for _, b := range next.Values {
			if meta.FragmentsOverlap(a.Expr, b.Expr) {
				return false
			}
		}
	}
	e.addValues(next.Values)
	e.End = next.End
	return true
}

// MergeRanges extends e over next when next continues e with equal values.
func (e *Entry) MergeRanges(next *Entry) bool {
	if e.End != next.Begin || !sameValues(e.Values, next.Values) {
		return false
	}
	e.End = next.End
	return true
}

func sameValues(a, b []*lir.DbgValue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Same(b[i]) {
			return false
		}
	}
	return true
}

func (e *Entry) addValues(vals []*lir.DbgValue) {
	e.Values = append(e.Values, vals...)
	sort.SliceStable(e.Values, func(i, j int) bool {
		return fragmentOffset(e.Values[i]) < fragmentOffset(e.Values[j])
	})
	out := e.Values[:1]
	for _, v := range e.Values[1:] {
		if !v.Same(out[len(out)-1]) {
			out = append(out, v)
		}
	}
	e.Values = out
}

// Build converts the history of one variable into entries sorted by start
// address with no two adjacent entries carrying identical values.
func Build(ranges []history.Range, labels Labels) []Entry {
	var list []Entry
	var open []*lir.DbgValue
	for i, r := range ranges {
		v := r.Value()
		if v.IsUndef() {
			open = open[:0]
			continue
		}
		kept := open[:0]
		for _, o := range open {
			if !meta.FragmentsOverlap(v.Expr, o.Expr) {
				kept = append(kept, o)
			}
		}
		open = kept

		var end *sink.Symbol
		switch {
		case r.End != nil:
			end = labels.LabelAfter(r.End)
		case i == len(ranges)-1:
			end = labels.FunctionEnd()
		default:
			end = labels.LabelBefore(ranges[i+1].Start)
		}
		loc := Entry{Begin: labels.LabelBefore(r.Start), End: end, Values: []*lir.DbgValue{v}}

		merged := false
		if isFragment(v) {
			open = append(open, v)
			if n := len(list); n > 0 && list[n-1].MergeValues(&loc) {
				merged = true
			}
		}
		if !merged {
			if len(open) > 0 {
				loc.addValues(open)
			}
			list = append(list, loc)
		}
		if n := len(list); n > 1 && list[n-2].MergeRanges(&list[n-1]) {
			list = list[:n-1]
		}
	}
	return list
}

// IsSigned reports whether constants of type t are sign extended.
func IsSigned(t meta.Type) bool {
	if bt := meta.ResolveBase(t); bt != nil {
		return bt.IsSigned()
	}
	return false
}

// EncodeValue lowers v into e. Constants are pushed signed or unsigned
// according to signed; floating point constants as their raw bits. It
// returns false if a register cannot be described.
func EncodeValue[S expr.Streamer](e *expr.Expression[S], v *lir.DbgValue, signed bool) bool {
	e.AddFragmentOffset(v.Expr)
	switch v.Kind {
	case lir.ValueImmediate:
		e.AddConstant(v.Imm, signed)
	case lir.ValueFloat:
		e.AddUnsignedConstant(v.FloatBits)
	default:
		if v.Indirect {
			e.SetMemoryLocationKind()
		}
		var elems []uint64
		if v.Indirect && v.Offset != 0 {
			elems = append(elems, uint64(op.DW_OP_plus_uconst), uint64(v.Offset))
		}
		if v.Expr != nil {
			elems = append(elems, v.Expr.Elements...)
		}
		c, err := expr.NewCursor(meta.NewExpression(elems...))
		if err != nil || !e.AddMachineRegExpression(c, v.Reg) {
			return false
		}
		e.AddExpression(c)
		return true
	}
	c, err := expr.NewCursor(v.Expr)
	if err != nil {
		return false
	}
	e.AddExpression(c)
	return true
}
