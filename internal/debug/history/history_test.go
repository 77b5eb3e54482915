package history

import (
	"testing"

	"github.com/orizon-lang/dwarfemit/internal/lir"
	"github.com/orizon-lang/dwarfemit/internal/meta"
	"github.com/orizon-lang/dwarfemit/internal/target"
)

func dbg(v *meta.LocalVariable, reg lir.Reg) *lir.Insn {
	return &lir.Insn{Meta: true, Debug: &lir.DbgValue{Var: v, Kind: lir.ValueRegister, Reg: reg}}
}

func TestClobberEndsRange(t *testing.T) {
	x := target.X86_64()
	rdi, eax := x.MustLookup("rdi"), x.MustLookup("eax")
	v := &meta.LocalVariable{Name: "n"}
	w := &meta.LocalVariable{Name: "m"}

	d1 := dbg(v, rdi)
	d2 := dbg(w, x.MustLookup("rax"))
	def := &lir.Insn{Offset: 4, Size: 3, Defs: []lir.Reg{eax}}
	fn := &lir.Function{Blocks: []*lir.BasicBlock{{Insns: []*lir.Insn{
		d1, d2,
		{Offset: 0, Size: 4},
		def,
		{Offset: 7, Size: 1, Defs: []lir.Reg{rdi}},
	}}}}
	m := Calculate(fn, x)
	if m.Len() != 2 {
		t.Fatalf("vars = %d", m.Len())
	}
	rs := m.Ranges(meta.InlinedVariable{Var: w})
	if len(rs) != 1 || rs[0].Start != d2 || rs[0].End != def {
		t.Fatalf("eax def must end the rax range: %+v", rs)
	}
	rs = m.Ranges(meta.InlinedVariable{Var: v})
	if len(rs) != 1 || rs[0].End != fn.Blocks[0].Insns[4] {
		t.Fatalf("rdi range: %+v", rs)
	}
}

func TestPrologueDefsDoNotClobber(t *testing.T) {
	x := target.X86_64()
	rbp := x.MustLookup("rbp")
	v := &meta.LocalVariable{Name: "fp"}
	fn := &lir.Function{Blocks: []*lir.BasicBlock{
		{Insns: []*lir.Insn{
			dbg(v, rbp),
			{Offset: 0, Size: 1, Defs: []lir.Reg{rbp}, FrameSetup: true},
			{Offset: 1, Size: 1},
		}},
		{Insns: []*lir.Insn{{Offset: 2, Size: 1}}},
	}}
	rs := Calculate(fn, x).Ranges(meta.InlinedVariable{Var: v})
	if len(rs) != 1 || rs[0].End != nil {
		t.Fatalf("range must stay open: %+v", rs)
	}
}

func TestBlockEndClobbersChangingRegs(t *testing.T) {
	x := target.X86_64()
	rbx := x.MustLookup("rbx")
	v := &meta.LocalVariable{Name: "i"}
	last := &lir.Insn{Offset: 0, Size: 2}
	fn := &lir.Function{Blocks: []*lir.BasicBlock{
		{Insns: []*lir.Insn{dbg(v, rbx), last}},
		{Insns: []*lir.Insn{{Offset: 2, Size: 2, Defs: []lir.Reg{rbx}}}},
	}}
	rs := Calculate(fn, x).Ranges(meta.InlinedVariable{Var: v})
	if len(rs) != 1 || rs[0].End != last {
		t.Fatalf("range must close at the block end: %+v", rs)
	}
}

func TestIdenticalValuesCoalesce(t *testing.T) {
	x := target.X86_64()
	v := &meta.LocalVariable{Name: "k"}
	a := &lir.Insn{Meta: true, Debug: &lir.DbgValue{Var: v, Kind: lir.ValueImmediate, Imm: 3}}
	b := &lir.Insn{Meta: true, Debug: &lir.DbgValue{Var: v, Kind: lir.ValueImmediate, Imm: 3}}
	c := &lir.Insn{Meta: true, Debug: &lir.DbgValue{Var: v, Kind: lir.ValueImmediate, Imm: 4}}
	fn := &lir.Function{Blocks: []*lir.BasicBlock{{Insns: []*lir.Insn{a, {Size: 1}, b, c}}}}
	rs := Calculate(fn, x).Ranges(meta.InlinedVariable{Var: v})
	if len(rs) != 2 || rs[0].Start != a || rs[1].Start != c {
		t.Fatalf("ranges = %+v", rs)
	}
}
