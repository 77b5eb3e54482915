package loclist

import (
	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/debug/expr"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	"github.com/orizon-lang/dwarfemit/internal/lir"
)

// Encoded is a finalized list entry.
type Encoded struct {
	Begin *sink.Symbol
	End   *sink.Symbol
	Expr  []byte
}

// List is one location list owned by a compile unit.
type List struct {
	Label   *sink.Symbol
	Unit    int
	Entries []Encoded
}

// Stream collects the location lists of a module in emission order.
type Stream struct {
	regs    expr.RegisterInfo
	version int
	lists   []*List
}

// NewStream returns an empty stream encoding for the given DWARF version.
func NewStream(regs expr.RegisterInfo, version int) *Stream {
	return &Stream{regs: regs, version: version}
}

// Len returns the number of lists.
func (s *Stream) Len() int { return len(s.lists) }

// List returns list i.
func (s *Stream) List(i int) *List { return s.lists[i] }

// Lists returns all lists.
func (s *Stream) Lists() []*List { return s.lists }

// Add encodes entries into a new list owned by unit. Entries whose
// expression comes out empty are dropped; if nothing remains no list is
// created and Add returns -1.
func (s *Stream) Add(unit int, entries []Entry, signed bool) int {
	l := &List{Unit: unit}
	for _, en := range entries {
		e := expr.New(&expr.Bytes{}, s.regs, s.version, lir.NoReg)
		for _, v := range en.Values {
			EncodeValue(e, v, signed)
		}
		b := e.Finalize().Bytes()
		if len(b) == 0 {
			continue
		}
		l.Entries = append(l.Entries, Encoded{Begin: en.Begin, End: en.End, Expr: b})
	}
	if len(l.Entries) == 0 {
		return -1
	}
	l.Label = sink.NewSymbol("debug_loc")
	s.lists = append(s.lists, l)
	return len(s.lists) - 1
}

// Emit writes .debug_loc. base returns the base address symbol of a unit,
// or nil when entries carry absolute addresses.
func (s *Stream) Emit(out sink.Sink, section string, addrSize int, base func(unit int) *sink.Symbol) {
	out.SwitchSection(section)
	for _, l := range s.lists {
		out.EmitLabel(l.Label)
		b := base(l.Unit)
		for _, en := range l.Entries {
			if b != nil {
				out.EmitLabelDifference(en.Begin, b, addrSize)
				out.EmitLabelDifference(en.End, b, addrSize)
			} else {
				out.EmitSymbolValue(en.Begin, addrSize)
				out.EmitSymbolValue(en.End, addrSize)
			}
			emitExpr(out, en.Expr)
		}
		out.EmitIntValue(0, addrSize)
		out.EmitIntValue(0, addrSize)
	}
}

// EmitSplit writes .debug_loc.dwo using start/length entries that refer to
// the address pool.
func (s *Stream) EmitSplit(out sink.Sink, section string, index func(sym *sink.Symbol) (uint32, error)) error {
	out.SwitchSection(section)
	for _, l := range s.lists {
		out.EmitLabel(l.Label)
		for _, en := range l.Entries {
			idx, err := index(en.Begin)
			if err != nil {
				return err
			}
			out.EmitInt8(dw.LLEStartxLength)
			out.EmitULEB128(uint64(idx))
			out.EmitLabelDifference(en.End, en.Begin, 4)
			emitExpr(out, en.Expr)
		}
		out.EmitInt8(dw.LLEEndOfList)
	}
	return nil
}

func emitExpr(out sink.Sink, b []byte) {
	out.EmitIntValue(uint64(len(b)), 2)
	out.EmitBytes(b)
}
