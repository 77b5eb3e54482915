// Package line builds the .debug_line program of a compile unit from the
// rows recorded while functions are emitted.
package line

import (
	"bytes"
	"encoding/binary"
	"path"

	"github.com/go-delve/delve/pkg/dwarf/leb128"

	"github.com/orizon-lang/dwarfemit/internal/debug/die"
	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	"github.com/orizon-lang/dwarfemit/internal/meta"
)

const (
	lineRange  = 14
	opcodeBase = 13
)

// operand counts of the standard opcodes 1..12
var standardOpcodeLengths = [opcodeBase - 1]byte{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1}

// Row is one line table row.
type Row struct {
	Addr          *sink.Symbol
	File          uint32
	Line          int
	Column        int
	Discriminator uint32
	PrologueEnd   bool
}

type sequence struct {
	rows []Row
	end  *sink.Symbol
}

// Table is the line program of one compile unit.
type Table struct {
	compDir  string
	dirs     []string
	dirIndex map[string]uint32
	files    []fileEntry
	fileIdx  map[string]uint32
	seqs     []*sequence
	cur      *sequence
}

type fileEntry struct {
	name string
	dir  uint32
}

// NewTable returns an empty table. Files in compDir get directory index 0.
func NewTable(compDir string) *Table {
	return &Table{
		compDir:  compDir,
		dirIndex: make(map[string]uint32),
		fileIdx:  make(map[string]uint32),
	}
}

// FileIndex returns the 1-based file number of f, adding it on first use.
func (t *Table) FileIndex(f *meta.File) uint32 {
	if f == nil {
		return 0
	}
	key := f.Path()
	if i, ok := t.fileIdx[key]; ok {
		return i
	}
	dir, name := f.Dir, f.Name
	if path.IsAbs(name) {
		dir, name = path.Split(name)
		dir = path.Clean(dir)
	}
	var di uint32
	if dir != "" && dir != t.compDir {
		var ok bool
		if di, ok = t.dirIndex[dir]; !ok {
			t.dirs = append(t.dirs, dir)
			di = uint32(len(t.dirs))
			t.dirIndex[dir] = di
		}
	}
	t.files = append(t.files, fileEntry{name: name, dir: di})
	i := uint32(len(t.files))
	t.fileIdx[key] = i
	return i
}

// BeginSequence starts a run of rows with increasing addresses.
func (t *Table) BeginSequence() {
	t.cur = &sequence{}
	t.seqs = append(t.seqs, t.cur)
}

// AddRow appends a row for loc at sym to the open sequence.
func (t *Table) AddRow(sym *sink.Symbol, loc *meta.Location, prologueEnd bool) {
	if t.cur == nil {
		t.BeginSequence()
	}
	t.cur.rows = append(t.cur.rows, Row{
		Addr:          sym,
		File:          t.FileIndex(loc.File()),
		Line:          loc.Line,
		Column:        loc.Column,
		Discriminator: loc.Discriminator,
		PrologueEnd:   prologueEnd,
	})
}

// EndSequence closes the open sequence at end.
func (t *Table) EndSequence(end *sink.Symbol) {
	if t.cur == nil {
		return
	}
	t.cur.end = end
	t.cur = nil
}

// Rows returns the number of rows recorded.
func (t *Table) Rows() int {
	n := 0
	for _, s := range t.seqs {
		n += len(s.rows)
	}
	return n
}

// Emit writes the line program at the current position of section,
// labelled start.
func (t *Table) Emit(out sink.Sink, section string, start *sink.Symbol, version, addrSize int) {
	out.SwitchSection(section)
	out.EmitLabel(start)

	hdr := &bytes.Buffer{}
	hdr.WriteByte(1) // minimum_instruction_length
	if version >= 4 {
		hdr.WriteByte(1) // maximum_operations_per_instruction
	}
	hdr.WriteByte(1)    // default_is_stmt
	hdr.WriteByte(0xfb) // line_base = -5
	hdr.WriteByte(lineRange)
	hdr.WriteByte(opcodeBase)
	hdr.Write(standardOpcodeLengths[:])
	for _, d := range t.dirs {
		hdr.WriteString(d)
		hdr.WriteByte(0)
	}
	hdr.WriteByte(0) // end of include_directories
	for _, f := range t.files {
		hdr.WriteString(f.name)
		hdr.WriteByte(0)
		leb128.EncodeUnsigned(hdr, uint64(f.dir))
		leb128.EncodeUnsigned(hdr, 0) // mtime
		leb128.EncodeUnsigned(hdr, 0) // length
	}
	hdr.WriteByte(0) // end of file_names

	// unit_length covers version, header_length, header and program; the
	// program is written through out, so its size is measured afterwards
	unitStart := sink.NewSymbol("line_unit_start")
	unitEnd := sink.NewSymbol("line_unit_end")
	out.EmitLabelDifference(unitEnd, unitStart, 4)
	out.EmitLabel(unitStart)
	var v [2]byte
	binary.LittleEndian.PutUint16(v[:], uint16(version))
	out.EmitBytes(v[:])
	out.EmitIntValue(uint64(hdr.Len()), 4)
	out.EmitBytes(hdr.Bytes())

	for _, s := range t.seqs {
		t.emitSequence(out, s, version, addrSize)
	}
	out.EmitLabel(unitEnd)
}

func (t *Table) emitSequence(out sink.Sink, s *sequence, version, addrSize int) {
	if len(s.rows) == 0 {
		return
	}
	file, line, col := uint32(1), 1, 0
	var prev *sink.Symbol
	for _, r := range s.rows {
		if prev == nil {
			out.EmitInt8(0)
			out.EmitULEB128(uint64(1 + addrSize))
			out.EmitInt8(dw.LNESetAddress)
			out.EmitSymbolValue(r.Addr, addrSize)
		} else if r.Addr != prev {
			out.EmitInt8(dw.LNSFixedAdvancePC)
			out.EmitLabelDifference(r.Addr, prev, 2)
		}
		prev = r.Addr
		if r.File != file && r.File != 0 {
			out.EmitInt8(dw.LNSSetFile)
			out.EmitULEB128(uint64(r.File))
			file = r.File
		}
		if r.Column != col {
			out.EmitInt8(dw.LNSSetColumn)
			out.EmitULEB128(uint64(r.Column))
			col = r.Column
		}
		if r.Line != line {
			out.EmitInt8(dw.LNSAdvanceLine)
			out.EmitSLEB128(int64(r.Line - line))
			line = r.Line
		}
		if r.Discriminator != 0 && version >= 4 {
			out.EmitInt8(0)
			out.EmitULEB128(uint64(1 + die.ULEBSize(uint64(r.Discriminator))))
			out.EmitInt8(dw.LNESetDiscriminator)
			out.EmitULEB128(uint64(r.Discriminator))
		}
		if r.PrologueEnd && version >= 3 {
			out.EmitInt8(dw.LNSSetPrologueEnd)
		}
		out.EmitInt8(dw.LNSCopy)
	}
	if s.end != nil && s.end != prev {
		out.EmitInt8(dw.LNSFixedAdvancePC)
		out.EmitLabelDifference(s.end, prev, 2)
	}
	out.EmitInt8(0)
	out.EmitULEB128(1)
	out.EmitInt8(dw.LNEEndSequence)
}
