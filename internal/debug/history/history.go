// Package history computes, for every variable of a function, the
// instruction ranges over which each of its DBG_VALUE descriptions holds.
package history

import (
	"github.com/orizon-lang/dwarfemit/internal/lir"
	"github.com/orizon-lang/dwarfemit/internal/meta"
)

// Range starts at a DBG_VALUE and ends at the instruction that clobbers it.
// End is nil when the description holds until the next DBG_VALUE of the
// same variable or the end of the function.
type Range struct {
	Start *lir.Insn
	End   *lir.Insn
}

// Value returns the description the range starts with.
func (r Range) Value() *lir.DbgValue { return r.Start.Debug }

// Registers is the part of the register file the calculator needs.
type Registers interface {
	Overlaps(a, b lir.Reg) bool
}

// Map holds ranges per variable in order of first appearance.
type Map struct {
	order  []meta.InlinedVariable
	ranges map[meta.InlinedVariable][]Range
}

func newMap() *Map {
	return &Map{ranges: make(map[meta.InlinedVariable][]Range)}
}

// Vars returns the variables in order of first appearance.
func (m *Map) Vars() []meta.InlinedVariable { return m.order }

// Ranges returns the ranges recorded for v.
func (m *Map) Ranges(v meta.InlinedVariable) []Range { return m.ranges[v] }

// Len returns the number of variables.
func (m *Map) Len() int { return len(m.order) }

func (m *Map) start(v meta.InlinedVariable, in *lir.Insn) {
	rs, seen := m.ranges[v]
	if !seen {
		m.order = append(m.order, v)
	}
	if n := len(rs); n > 0 && rs[n-1].End == nil && rs[n-1].Value().Same(in.Debug) {
		return
	}
	m.ranges[v] = append(rs, Range{Start: in})
}

func (m *Map) end(v meta.InlinedVariable, in *lir.Insn) {
	rs := m.ranges[v]
	if n := len(rs); n > 0 && rs[n-1].End == nil {
		rs[n-1].End = in
	}
}

// registerFor returns the register the open range of v is described by.
func (m *Map) registerFor(v meta.InlinedVariable) lir.Reg {
	rs := m.ranges[v]
	if len(rs) == 0 || rs[len(rs)-1].End != nil {
		return lir.NoReg
	}
	return describedBy(rs[len(rs)-1].Value())
}

func describedBy(d *lir.DbgValue) lir.Reg {
	if d.Kind != lir.ValueRegister {
		return lir.NoReg
	}
	return d.Reg
}

// Calculate walks fn and records value ranges. A definition of a register
// ends the open ranges of all variables described by an overlapping
// register. Register descriptions do not survive the end of a basic block
// except in the last block.
func Calculate(fn *lir.Function, regs Registers) *Map {
	m := newMap()
	changing := changingRegs(fn)
	isChanging := func(r lir.Reg) bool {
		for _, c := range changing {
			if regs.Overlaps(c, r) {
				return true
			}
		}
		return false
	}

	// register -> variables it currently describes
	live := make(map[lir.Reg][]meta.InlinedVariable)
	var liveOrder []lir.Reg
	forget := func(r lir.Reg) {
		delete(live, r)
		for i, lr := range liveOrder {
			if lr == r {
				liveOrder = append(liveOrder[:i], liveOrder[i+1:]...)
				break
			}
		}
	}
	clobber := func(r lir.Reg, at *lir.Insn) {
		for _, v := range live[r] {
			m.end(v, at)
		}
		forget(r)
	}
	drop := func(r lir.Reg, v meta.InlinedVariable) {
		vs := live[r]
		for i, x := range vs {
			if x == v {
				vs = append(vs[:i], vs[i+1:]...)
				break
			}
		}
		if len(vs) == 0 {
			forget(r)
			return
		}
		live[r] = vs
	}

	for bi, bb := range fn.Blocks {
		for _, in := range bb.Insns {
			if !in.IsDebugValue() {
				for _, d := range in.Defs {
					if d == lir.NoReg {
						continue
					}
					for _, r := range append([]lir.Reg(nil), liveOrder...) {
						if regs.Overlaps(d, r) && isChanging(r) {
							clobber(r, in)
						}
					}
				}
				continue
			}
			v := in.Debug.InlinedVariable()
			if prev := m.registerFor(v); prev != lir.NoReg {
				drop(prev, v)
			}
			m.start(v, in)
			if r := describedBy(in.Debug); r != lir.NoReg {
				if _, ok := live[r]; !ok {
					liveOrder = append(liveOrder, r)
				}
				live[r] = append(live[r], v)
			}
		}
		if len(bb.Insns) > 0 && bi != len(fn.Blocks)-1 {
			last := bb.Insns[len(bb.Insns)-1]
			for _, r := range append([]lir.Reg(nil), liveOrder...) {
				if isChanging(r) {
					clobber(r, last)
				}
			}
		}
	}
	return m
}

// changingRegs returns registers defined outside the prologue.
func changingRegs(fn *lir.Function) []lir.Reg {
	seen := make(map[lir.Reg]bool)
	var out []lir.Reg
	for _, in := range fn.Insns() {
		if in.FrameSetup || in.IsDebugValue() {
			continue
		}
		for _, d := range in.Defs {
			if d != lir.NoReg && !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	return out
}
