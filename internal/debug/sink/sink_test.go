package sink

import (
	"bytes"
	"testing"

	"github.com/go-delve/delve/pkg/dwarf/leb128"

	oerrors "github.com/orizon-lang/dwarfemit/internal/errors"
)

func TestForwardReferences(t *testing.T) {
	b := NewBuffer()
	b.SetSectionBase(".text", 0x1000)
	fn := NewSymbolAt("f", ".text", 0x20)
	end := NewSymbol("info_end")
	start := NewSymbol("info_start")

	b.SwitchSection(".debug_info")
	b.EmitLabel(start)
	b.EmitLabelDifference(end, start, 4)
	b.EmitSymbolValue(fn, 8)
	b.EmitSectionOffset(end)
	b.EmitLabel(end)

	secs, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	want := []byte{
		16, 0, 0, 0,
		0x20, 0x10, 0, 0, 0, 0, 0, 0,
		16, 0, 0, 0,
	}
	if len(secs) != 1 || !bytes.Equal(secs[0].Data, want) {
		t.Fatalf("got % x", secs[0].Data)
	}
	if a, _ := b.Address(fn); a != 0x1020 {
		t.Fatalf("address %#x", a)
	}
}

func TestSectionOrderAndLEB(t *testing.T) {
	b := NewBuffer()
	b.SwitchSection(".debug_abbrev")
	b.EmitULEB128(624485)
	b.SwitchSection(".debug_str")
	b.EmitBytes([]byte("x\x00"))
	b.SwitchSection(".debug_abbrev")
	b.EmitSLEB128(-123456)
	b.EmitFill(2, 0xff)
	if b.Offset() != 8 {
		t.Fatalf("offset %d", b.Offset())
	}

	secs, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if secs[0].Name != ".debug_abbrev" || secs[1].Name != ".debug_str" {
		t.Fatalf("order %v", secs)
	}
	r := bytes.NewBuffer(secs[0].Data)
	if v, _ := leb128.DecodeUnsigned(r); v != 624485 {
		t.Fatalf("uleb %d", v)
	}
	if v, _ := leb128.DecodeSigned(r); v != -123456 {
		t.Fatalf("sleb %d", v)
	}
}

func TestUndefinedLabel(t *testing.T) {
	b := NewBuffer()
	b.SwitchSection(".debug_info")
	b.EmitSymbolValue(NewSymbol("nowhere"), 8)
	if _, err := b.Finish(); !oerrors.IsUsage(err) {
		t.Fatalf("Finish() = %v", err)
	}
}

func TestValueTooWide(t *testing.T) {
	b := NewBuffer()
	b.SetSectionBase(".text", 0x1_0000_0000)
	b.SwitchSection(".debug_aranges")
	b.EmitSymbolValue(NewSymbolAt("f", ".text", 0), 4)
	_, err := b.Finish()
	if c, ok := oerrors.CategoryOf(err); !ok || c != oerrors.CategoryEncoding {
		t.Fatalf("Finish() = %v", err)
	}
}
