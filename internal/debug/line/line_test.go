package line

import (
	"debug/dwarf"
	"io"
	"testing"

	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	"github.com/orizon-lang/dwarfemit/internal/meta"
)

// minimal v4 compile unit: name, comp_dir and stmt_list at offset 0
var (
	cuAbbrev = []byte{1, 0x11, 0, 0x03, 0x08, 0x1b, 0x08, 0x10, 0x17, 0, 0, 0}
	cuInfo   = []byte{
		21, 0, 0, 0, // unit_length
		4, 0, // version
		0, 0, 0, 0, // debug_abbrev_offset
		8, // address_size
		1, 'a', '.', 'c', 0, '/', 's', 'r', 'c', 0,
		0, 0, 0, 0,
	}
)

func TestLineProgramReadsBack(t *testing.T) {
	src := &meta.File{Name: "a.c", Dir: "/src"}
	hdr := &meta.File{Name: "/usr/include/b.h"}
	sp := &meta.Subprogram{Name: "f", File: src}
	inl := &meta.Subprogram{Name: "g", File: hdr}

	at := func(off uint64) *sink.Symbol { return sink.NewSymbolAt("", ".text", off) }
	tab := NewTable("/src")
	if tab.FileIndex(src) != 1 {
		t.Fatalf("first file must be 1")
	}
	tab.BeginSequence()
	tab.AddRow(at(0), &meta.Location{Line: 3, Column: 1, Scope: sp}, false)
	tab.AddRow(at(4), &meta.Location{Line: 4, Column: 5, Scope: sp}, true)
	tab.AddRow(at(8), &meta.Location{Line: 10, Scope: inl}, false)
	tab.EndSequence(at(12))

	buf := sink.NewBuffer()
	buf.SetSectionBase(".text", 0x1000)
	tab.Emit(buf, ".debug_line", sink.NewSymbol("line"), 4, 8)
	secs, err := buf.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	d, err := dwarf.New(cuAbbrev, nil, nil, cuInfo, secs[0].Data, nil, nil, nil)
	if err != nil {
		t.Fatalf("dwarf.New: %v", err)
	}
	cu, err := d.Reader().Next()
	if err != nil {
		t.Fatalf("reading unit: %v", err)
	}
	lr, err := d.LineReader(cu)
	if err != nil {
		t.Fatalf("LineReader: %v", err)
	}
	type row struct {
		addr uint64
		file string
		line int
		end  bool
	}
	want := []row{
		{0x1000, "/src/a.c", 3, false},
		{0x1004, "/src/a.c", 4, false},
		{0x1008, "/usr/include/b.h", 10, false},
		{0x100c, "", 0, true},
	}
	var e dwarf.LineEntry
	for i := 0; ; i++ {
		if err := lr.Next(&e); err == io.EOF {
			if i != len(want) {
				t.Fatalf("got %d rows, want %d", i, len(want))
			}
			break
		} else if err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
		if i >= len(want) {
			t.Fatalf("extra row %+v", e)
		}
		w := want[i]
		if e.Address != w.addr || e.EndSequence != w.end {
			t.Fatalf("row %d: addr %#x end %v, want %#x %v", i, e.Address, e.EndSequence, w.addr, w.end)
		}
		if !w.end && (e.File.Name != w.file || e.Line != w.line) {
			t.Fatalf("row %d: %s:%d, want %s:%d", i, e.File.Name, e.Line, w.file, w.line)
		}
		if i == 1 && !e.PrologueEnd {
			t.Fatalf("prologue_end missing")
		}
	}
}

func TestFileIndexStable(t *testing.T) {
	tab := NewTable("/w")
	a := &meta.File{Name: "x.c", Dir: "/w"}
	b := &meta.File{Name: "y.c", Dir: "/other"}
	if tab.FileIndex(a) != 1 || tab.FileIndex(b) != 2 || tab.FileIndex(&meta.File{Name: "x.c", Dir: "/w"}) != 1 {
		t.Fatalf("file indices not stable")
	}
	if tab.FileIndex(nil) != 0 {
		t.Fatalf("nil file must map to 0")
	}
}
