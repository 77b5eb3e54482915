package debug

import (
	"fmt"

	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	"github.com/orizon-lang/dwarfemit/internal/lir"
)

// functionLabels places the symbols that bound scope and variable ranges.
// Only requested instructions get a label, and only once the instruction
// has been visited; one symbol serves every request at the same address.
type functionLabels struct {
	fn  *lir.Function
	end *sink.Symbol

	wantBefore map[*lir.Insn]bool
	wantAfter  map[*lir.Insn]bool
	before     map[*lir.Insn]*sink.Symbol
	after      map[*lir.Insn]*sink.Symbol
	byOffset   map[uint64]*sink.Symbol
}

func newFunctionLabels(fn *lir.Function, end *sink.Symbol) *functionLabels {
	return &functionLabels{
		fn:         fn,
		end:        end,
		wantBefore: make(map[*lir.Insn]bool),
		wantAfter:  make(map[*lir.Insn]bool),
		before:     make(map[*lir.Insn]*sink.Symbol),
		after:      make(map[*lir.Insn]*sink.Symbol),
		byOffset:   make(map[uint64]*sink.Symbol),
	}
}

func (l *functionLabels) requestBefore(in *lir.Insn) {
	if in != nil {
		l.wantBefore[in] = true
	}
}

func (l *functionLabels) requestAfter(in *lir.Insn) {
	if in != nil {
		l.wantAfter[in] = true
	}
}

// at returns the symbol at offset off of the function's section.
func (l *functionLabels) at(off uint64) *sink.Symbol {
	if s, ok := l.byOffset[off]; ok {
		return s
	}
	s := sink.NewSymbolAt(fmt.Sprintf("%s.tmp%d", l.fn.Name, len(l.byOffset)), l.fn.Section, off)
	l.byOffset[off] = s
	return s
}

func (l *functionLabels) visitBefore(in *lir.Insn) {
	if l.wantBefore[in] {
		l.before[in] = l.at(in.Offset)
	}
}

func (l *functionLabels) visitAfter(in *lir.Insn) {
	if l.wantAfter[in] {
		l.after[in] = l.at(in.End())
	}
}

func (l *functionLabels) LabelBefore(in *lir.Insn) *sink.Symbol { return l.before[in] }
func (l *functionLabels) LabelAfter(in *lir.Insn) *sink.Symbol  { return l.after[in] }
func (l *functionLabels) FunctionEnd() *sink.Symbol             { return l.end }
