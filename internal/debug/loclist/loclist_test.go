package loclist

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/go-delve/delve/pkg/dwarf/leb128"
	"github.com/go-delve/delve/pkg/dwarf/op"

	"github.com/orizon-lang/dwarfemit/internal/debug/history"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	"github.com/orizon-lang/dwarfemit/internal/lir"
	"github.com/orizon-lang/dwarfemit/internal/meta"
	"github.com/orizon-lang/dwarfemit/internal/target"
)

// locEntry is one decoded .debug_loc entry.
type locEntry struct {
	Lowpc  uint64
	Highpc uint64
	Loc    []byte
}

func locationBlock(args ...interface{}) []byte {
	var buf bytes.Buffer
	for _, arg := range args {
		switch x := arg.(type) {
		case op.Opcode:
			buf.WriteByte(byte(x))
		case int:
			leb128.EncodeSigned(&buf, int64(x))
		case uint:
			leb128.EncodeUnsigned(&buf, uint64(x))
		default:
			panic("unsupported value type")
		}
	}
	return buf.Bytes()
}

// labels hands out one symbol per address in .text.
type labels struct {
	syms map[uint64]*sink.Symbol
	end  uint64
}

func newLabels(end uint64) *labels {
	return &labels{syms: make(map[uint64]*sink.Symbol), end: end}
}

func (l *labels) at(off uint64) *sink.Symbol {
	if s, ok := l.syms[off]; ok {
		return s
	}
	s := sink.NewSymbolAt("", ".text", off)
	l.syms[off] = s
	return s
}

func (l *labels) LabelBefore(in *lir.Insn) *sink.Symbol { return l.at(in.Offset) }
func (l *labels) LabelAfter(in *lir.Insn) *sink.Symbol  { return l.at(in.End()) }
func (l *labels) FunctionEnd() *sink.Symbol             { return l.at(l.end) }

func dbgAt(off uint64, v *meta.LocalVariable, reg lir.Reg, x *meta.Expression) *lir.Insn {
	return &lir.Insn{Offset: off, Meta: true, Debug: &lir.DbgValue{Var: v, Expr: x, Kind: lir.ValueRegister, Reg: reg}}
}

func decodeLoc(t *testing.T, data []byte) []locEntry {
	t.Helper()
	var out []locEntry
	for len(data) >= 16 {
		lo := binary.LittleEndian.Uint64(data)
		hi := binary.LittleEndian.Uint64(data[8:])
		data = data[16:]
		if lo == 0 && hi == 0 {
			break
		}
		n := binary.LittleEndian.Uint16(data)
		out = append(out, locEntry{Lowpc: lo, Highpc: hi, Loc: data[2 : 2+n]})
		data = data[2+n:]
	}
	return out
}

func TestRegisterThenSpill(t *testing.T) {
	x := target.X86_64()
	v := &meta.LocalVariable{Name: "n", Type: &meta.BasicType{TypeCommon: meta.TypeCommon{Name: "int", SizeBits: 32}, Encoding: 0x05}}
	inReg := dbgAt(0x10, v, x.MustLookup("rdi"), nil)
	spill := &lir.Insn{Offset: 0x20, Meta: true, Debug: &lir.DbgValue{Var: v, Kind: lir.ValueRegister, Reg: x.MustLookup("rsp"), Indirect: true, Offset: 8}}
	l := newLabels(0x40)
	entries := Build([]history.Range{{Start: inReg}, {Start: spill}}, l)
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Begin != l.at(0x10) || entries[0].End != l.at(0x20) || entries[1].End != l.at(0x40) {
		t.Fatalf("bad bounds: %+v", entries)
	}

	s := NewStream(x, 4)
	if idx := s.Add(0, entries, IsSigned(v.Type)); idx != 0 {
		t.Fatalf("list index %d", idx)
	}
	buf := sink.NewBuffer()
	buf.SetSectionBase(".text", 0x1000)
	s.Emit(buf, ".debug_loc", 8, func(int) *sink.Symbol { return nil })
	secs, err := buf.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	got := decodeLoc(t, secs[0].Data)
	want := []locEntry{
		{0x1010, 0x1020, locationBlock(op.DW_OP_reg5)},
		{0x1020, 0x1040, locationBlock(op.DW_OP_breg7, 8)},
	}
	if len(got) != len(want) {
		t.Fatalf("decoded %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Lowpc != want[i].Lowpc || got[i].Highpc != want[i].Highpc || !bytes.Equal(got[i].Loc, want[i].Loc) {
			t.Fatalf("entry %d = %#x..%#x % x, want %#x..%#x % x", i, got[i].Lowpc, got[i].Highpc, got[i].Loc, want[i].Lowpc, want[i].Highpc, want[i].Loc)
		}
	}
}

func TestFragmentsCombineAndTruncate(t *testing.T) {
	x := target.X86_64()
	v := &meta.LocalVariable{Name: "pair"}
	lo := meta.FragmentExpression(0, 32)
	hi := meta.FragmentExpression(32, 32)
	a := dbgAt(0, v, x.MustLookup("rax"), lo)
	b := dbgAt(0, v, x.MustLookup("rdx"), hi)
	c := dbgAt(8, v, x.MustLookup("rcx"), lo)
	l := newLabels(0x20)
	entries := Build([]history.Range{{Start: a}, {Start: b}, {Start: c}}, l)
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if len(entries[0].Values) != 2 || entries[0].Values[0] != a.Debug || entries[0].Values[1] != b.Debug {
		t.Fatalf("first entry values = %v", entries[0].Values)
	}
	if entries[0].End != l.at(8) {
		t.Fatalf("first entry must end where the next fragment starts")
	}
	if len(entries[1].Values) != 2 || entries[1].Values[0] != c.Debug || entries[1].Values[1] != b.Debug {
		t.Fatalf("second entry values = %v", entries[1].Values)
	}

	s := NewStream(x, 4)
	s.Add(0, entries, false)
	want := locationBlock(op.DW_OP_reg2, op.DW_OP_piece, uint(4), op.DW_OP_reg1, op.DW_OP_piece, uint(4))
	if got := s.List(0).Entries[1].Expr; !bytes.Equal(got, want) {
		t.Fatalf("expr = % x, want % x", got, want)
	}
}

func TestEntriesOrderedAndNeverAdjacentEqual(t *testing.T) {
	x := target.X86_64()
	v := &meta.LocalVariable{Name: "i"}
	rbx := x.MustLookup("rbx")
	clobber := &lir.Insn{Offset: 4, Size: 4}
	r1 := dbgAt(0, v, rbx, nil)
	r2 := dbgAt(8, v, rbx, nil)
	undef := dbgAt(12, v, lir.NoReg, nil)
	r3 := dbgAt(16, v, x.MustLookup("r12"), nil)
	l := newLabels(0x30)
	entries := Build([]history.Range{{Start: r1, End: clobber}, {Start: r2}, {Start: undef}, {Start: r3}}, l)
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Begin != l.at(0) || entries[0].End != l.at(12) {
		t.Fatalf("contiguous equal ranges must merge: %+v", entries[0])
	}
	if entries[1].Begin != l.at(16) {
		t.Fatalf("undef must open a gap: %+v", entries[1])
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Begin.Offset() >= entries[i].Begin.Offset() {
			t.Fatalf("entries not ordered")
		}
		if entries[i-1].End == entries[i].Begin && sameValues(entries[i-1].Values, entries[i].Values) {
			t.Fatalf("adjacent equal entries")
		}
	}
}

func TestSplitEntries(t *testing.T) {
	x := target.X86_64()
	v := &meta.LocalVariable{Name: "k"}
	imm := &lir.Insn{Offset: 4, Meta: true, Debug: &lir.DbgValue{Var: v, Kind: lir.ValueImmediate, Imm: -1}}
	l := newLabels(0x10)
	s := NewStream(x, 4)
	s.Add(0, Build([]history.Range{{Start: imm}}, l), true)

	buf := sink.NewBuffer()
	err := s.EmitSplit(buf, ".debug_loc.dwo", func(sym *sink.Symbol) (uint32, error) { return 3, nil })
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	secs, err := buf.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	want := []byte{0x03, 0x03, 0x0c, 0, 0, 0, 0x03, 0x00, byte(op.DW_OP_consts), 0x7f, byte(op.DW_OP_stack_value), 0x00}
	if !bytes.Equal(secs[0].Data, want) {
		t.Fatalf("dwo list = % x, want % x", secs[0].Data, want)
	}
}

func TestEmptyListDropped(t *testing.T) {
	x := target.X86_64()
	v := &meta.LocalVariable{Name: "z"}
	s := NewStream(x, 4)
	// not a register of the target
	bad := dbgAt(0, v, lir.Reg(60000), nil)
	if idx := s.Add(0, Build([]history.Range{{Start: bad}}, newLabels(4)), false); idx != -1 || s.Len() != 0 {
		t.Fatalf("undescribable list kept: %d", idx)
	}
}
