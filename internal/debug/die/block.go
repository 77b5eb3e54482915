package die

import (
	"bytes"
	"encoding/binary"

	"github.com/go-delve/delve/pkg/dwarf/leb128"
	"github.com/go-delve/delve/pkg/dwarf/op"

	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
)

type blockPart struct {
	data    []byte
	sym     *sink.Symbol
	symSize int
}

// Block is an expression or raw data block stored inline in a record. It may
// embed address-sized symbol references that are resolved at emission time.
type Block struct {
	parts []blockPart
	size  int
}

func (b *Block) tail() *blockPart {
	if n := len(b.parts); n > 0 && b.parts[n-1].sym == nil {
		return &b.parts[n-1]
	}
	b.parts = append(b.parts, blockPart{})
	return &b.parts[len(b.parts)-1]
}

// EmitOp appends an opcode byte.
func (b *Block) EmitOp(o op.Opcode) {
	t := b.tail()
	t.data = append(t.data, byte(o))
	b.size++
}

// EmitSigned appends an SLEB128 operand.
func (b *Block) EmitSigned(v int64) {
	var buf bytes.Buffer
	leb128.EncodeSigned(&buf, v)
	b.EmitData(buf.Bytes())
}

// EmitUnsigned appends a ULEB128 operand.
func (b *Block) EmitUnsigned(v uint64) {
	var buf bytes.Buffer
	leb128.EncodeUnsigned(&buf, v)
	b.EmitData(buf.Bytes())
}

// EmitData appends raw bytes.
func (b *Block) EmitData(p []byte) {
	t := b.tail()
	t.data = append(t.data, p...)
	b.size += len(p)
}

// EmitInt appends v as a size-byte little-endian integer.
func (b *Block) EmitInt(v uint64, size int) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.EmitData(tmp[:size])
}

// EmitSymbol appends the address of sym.
func (b *Block) EmitSymbol(sym *sink.Symbol, size int) {
	b.parts = append(b.parts, blockPart{sym: sym, symSize: size})
	b.size += size
}

// Len returns the encoded size of the block.
func (b *Block) Len() int { return b.size }

// Bytes returns the block contents with symbol slots zero filled.
func (b *Block) Bytes() []byte {
	out := make([]byte, 0, b.size)
	for _, p := range b.parts {
		if p.sym != nil {
			out = append(out, make([]byte, p.symSize)...)
			continue
		}
		out = append(out, p.data...)
	}
	return out
}

// HasSymbols reports whether the block refers to any address.
func (b *Block) HasSymbols() bool {
	for _, p := range b.parts {
		if p.sym != nil {
			return true
		}
	}
	return false
}

// WriteTo emits the block body.
func (b *Block) writeTo(s sink.Sink) {
	for _, p := range b.parts {
		if p.sym != nil {
			s.EmitSymbolValue(p.sym, p.symSize)
			continue
		}
		s.EmitBytes(p.data)
	}
}
