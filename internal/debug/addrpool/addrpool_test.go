package addrpool

import (
	"encoding/binary"
	"testing"

	oerrors "github.com/orizon-lang/dwarfemit/internal/errors"

	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
)

func TestIndicesAreDenseAndStable(t *testing.T) {
	p := New()
	a := sink.NewSymbolAt("a", ".text", 0x10)
	b := sink.NewSymbolAt("b", ".text", 0x20)
	tls := sink.NewSymbolAt("t", ".tbss", 0x8)
	for i, s := range []*sink.Symbol{a, b, a, tls} {
		idx, err := p.GetIndex(s, s == tls)
		if err != nil {
			t.Fatalf("GetIndex: %v", err)
		}
		want := []uint32{0, 1, 0, 2}[i]
		if idx != want {
			t.Fatalf("index of %s = %d, want %d", s, idx, want)
		}
	}

	buf := sink.NewBuffer()
	buf.SetSectionBase(".text", 0x400000)
	p.Emit(buf, ".debug_addr", 8)
	secs, err := buf.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	d := secs[0].Data
	if len(d) != 24 {
		t.Fatalf("table size %d", len(d))
	}
	if binary.LittleEndian.Uint64(d) != 0x400010 || binary.LittleEndian.Uint64(d[8:]) != 0x400020 || binary.LittleEndian.Uint64(d[16:]) != 8 {
		t.Fatalf("table = % x", d)
	}
}

func TestFrozenAfterEmit(t *testing.T) {
	p := New()
	p.Emit(sink.NewBuffer(), ".debug_addr", 8)
	_, err := p.GetIndex(sink.NewSymbol("late"), false)
	if !oerrors.IsUsage(err) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestUsedFlag(t *testing.T) {
	p := New()
	if p.HasBeenUsed() {
		t.Fatalf("fresh pool used")
	}
	p.GetIndex(sink.NewSymbol("x"), false)
	if !p.HasBeenUsed() {
		t.Fatalf("flag not set")
	}
	p.ResetUsedFlag()
	if p.HasBeenUsed() {
		t.Fatalf("flag not reset")
	}
}
