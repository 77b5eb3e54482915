// Package sink defines the write boundary the debug-info emitter talks to and
// an in-memory implementation that lays sections out into byte buffers.
package sink

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-delve/delve/pkg/dwarf/leb128"

	oerrors "github.com/orizon-lang/dwarfemit/internal/errors"
)

// Symbol is a named position inside an output section. Code symbols are
// created already placed (the code generator knows instruction offsets);
// debug-section symbols are placed when the emitter calls EmitLabel.
type Symbol struct {
	Name    string
	section string
	offset  uint64
	defined bool
}

// NewSymbol returns an unplaced symbol.
func NewSymbol(name string) *Symbol {
	return &Symbol{Name: name}
}

// NewSymbolAt returns a symbol placed at offset within section.
func NewSymbolAt(name, section string, offset uint64) *Symbol {
	return &Symbol{Name: name, section: section, offset: offset, defined: true}
}

// Section returns the section the symbol lives in.
func (s *Symbol) Section() string { return s.section }

// Offset returns the symbol's offset within its section.
func (s *Symbol) Offset() uint64 { return s.offset }

// Defined reports whether the symbol has been placed.
func (s *Symbol) Defined() bool { return s.defined }

func (s *Symbol) String() string {
	if !s.defined {
		return s.Name + "@?"
	}
	return fmt.Sprintf("%s@%s+%#x", s.Name, s.section, s.offset)
}

// Sink accepts the byte stream of every debug section. Writes go to the
// section selected by the last SwitchSection call.
type Sink interface {
	SwitchSection(name string)
	Section() string
	// Offset is the number of bytes written to the current section so far.
	Offset() uint64

	EmitInt8(v uint8)
	EmitIntValue(v uint64, size int)
	EmitBytes(b []byte)
	EmitULEB128(v uint64)
	EmitSLEB128(v int64)
	EmitFill(n int, v byte)

	// EmitLabel places sym at the current position.
	EmitLabel(sym *Symbol)
	// EmitSymbolValue writes the absolute address of sym.
	EmitSymbolValue(sym *Symbol, size int)
	// EmitLabelDifference writes hi - lo.
	EmitLabelDifference(hi, lo *Symbol, size int)
	// EmitSectionOffset writes the 4-byte offset of sym within its section.
	EmitSectionOffset(sym *Symbol)
}

type fixupKind uint8

const (
	fixAbsolute fixupKind = iota
	fixDifference
	fixSectionOffset
)

type fixup struct {
	kind    fixupKind
	section string
	at      int
	size    int
	sym     *Symbol
	base    *Symbol
}

// Section is one finished output section.
type Section struct {
	Name string
	Data []byte
}

// Buffer is a Sink that keeps every section in memory. Symbol references are
// recorded as fixups and patched by Finish once all labels are placed.
type Buffer struct {
	sections map[string]*bytes.Buffer
	order    []string
	cur      string
	bases    map[string]uint64
	fixups   []fixup
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		sections: make(map[string]*bytes.Buffer),
		bases:    make(map[string]uint64),
	}
}

// SetSectionBase sets the load address of a code or data section. Debug
// sections have base 0.
func (b *Buffer) SetSectionBase(name string, addr uint64) {
	b.bases[name] = addr
}

func (b *Buffer) SwitchSection(name string) {
	if _, ok := b.sections[name]; !ok {
		b.sections[name] = &bytes.Buffer{}
		b.order = append(b.order, name)
	}
	b.cur = name
}

func (b *Buffer) Section() string { return b.cur }

func (b *Buffer) buf() *bytes.Buffer {
	w, ok := b.sections[b.cur]
	if !ok {
		// writing before any SwitchSection lands in an anonymous section
		b.SwitchSection(b.cur)
		w = b.sections[b.cur]
	}
	return w
}

func (b *Buffer) Offset() uint64 { return uint64(b.buf().Len()) }

func (b *Buffer) EmitInt8(v uint8) { b.buf().WriteByte(v) }

func (b *Buffer) EmitIntValue(v uint64, size int) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.buf().Write(tmp[:size])
}

func (b *Buffer) EmitBytes(p []byte) { b.buf().Write(p) }

func (b *Buffer) EmitULEB128(v uint64) { leb128.EncodeUnsigned(b.buf(), v) }

func (b *Buffer) EmitSLEB128(v int64) { leb128.EncodeSigned(b.buf(), v) }

func (b *Buffer) EmitFill(n int, v byte) {
	w := b.buf()
	for i := 0; i < n; i++ {
		w.WriteByte(v)
	}
}

func (b *Buffer) EmitLabel(sym *Symbol) {
	sym.section = b.cur
	sym.offset = uint64(b.buf().Len())
	sym.defined = true
}

func (b *Buffer) placeholder(k fixupKind, size int, sym, base *Symbol) {
	w := b.buf()
	b.fixups = append(b.fixups, fixup{kind: k, section: b.cur, at: w.Len(), size: size, sym: sym, base: base})
	for i := 0; i < size; i++ {
		w.WriteByte(0)
	}
}

func (b *Buffer) EmitSymbolValue(sym *Symbol, size int) {
	b.placeholder(fixAbsolute, size, sym, nil)
}

func (b *Buffer) EmitLabelDifference(hi, lo *Symbol, size int) {
	b.placeholder(fixDifference, size, hi, lo)
}

func (b *Buffer) EmitSectionOffset(sym *Symbol) {
	b.placeholder(fixSectionOffset, 4, sym, nil)
}

// Address returns the absolute address of a placed symbol.
func (b *Buffer) Address(sym *Symbol) (uint64, error) {
	if sym == nil || !sym.defined {
		return 0, oerrors.UsageError("undefined label", map[string]interface{}{"symbol": fmt.Sprint(sym)})
	}
	return b.bases[sym.section] + sym.offset, nil
}

// Finish resolves every symbol reference and returns the sections in the
// order they were first selected.
func (b *Buffer) Finish() ([]Section, error) {
	for _, f := range b.fixups {
		var v uint64
		switch f.kind {
		case fixAbsolute:
			a, err := b.Address(f.sym)
			if err != nil {
				return nil, err
			}
			v = a
		case fixDifference:
			hi, err := b.Address(f.sym)
			if err != nil {
				return nil, err
			}
			lo, err := b.Address(f.base)
			if err != nil {
				return nil, err
			}
			v = hi - lo
		case fixSectionOffset:
			if f.sym == nil || !f.sym.defined {
				return nil, oerrors.UsageError("undefined label", map[string]interface{}{"symbol": fmt.Sprint(f.sym)})
			}
			v = f.sym.offset
		}
		if f.size < 8 && v>>(uint(f.size)*8) != 0 && f.kind != fixDifference {
			return nil, oerrors.EncodingError(fmt.Sprintf("value %#x does not fit in %d bytes", v, f.size), map[string]interface{}{"symbol": f.sym.Name})
		}
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], v)
		copy(b.sections[f.section].Bytes()[f.at:f.at+f.size], tmp[:f.size])
	}
	out := make([]Section, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, Section{Name: name, Data: b.sections[name].Bytes()})
	}
	return out, nil
}
