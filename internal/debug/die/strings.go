package die

import (
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
)

type poolEntry struct {
	s      string
	offset uint32
	index  int
}

// StringPool interns strings for .debug_str (by offset) and, in split
// output, for .debug_str_offsets (by dense index).
type StringPool struct {
	entries map[string]*poolEntry
	order   []*poolEntry
	size    uint32
	indexed int
}

// NewStringPool returns an empty pool.
func NewStringPool() *StringPool {
	return &StringPool{entries: make(map[string]*poolEntry)}
}

func (p *StringPool) entry(s string) *poolEntry {
	if e, ok := p.entries[s]; ok {
		return e
	}
	e := &poolEntry{s: s, offset: p.size, index: -1}
	p.entries[s] = e
	p.order = append(p.order, e)
	p.size += uint32(len(s)) + 1
	return e
}

// Offset interns s and returns its section offset.
func (p *StringPool) Offset(s string) uint32 {
	return p.entry(s).offset
}

// Index interns s and returns its dense index.
func (p *StringPool) Index(s string) uint32 {
	e := p.entry(s)
	if e.index < 0 {
		e.index = p.indexed
		p.indexed++
	}
	return uint32(e.index)
}

// Len returns the number of distinct strings.
func (p *StringPool) Len() int { return len(p.order) }

// Size returns the byte size of the string section.
func (p *StringPool) Size() uint32 { return p.size }

// Emit writes every string, NUL terminated, in offset order.
func (p *StringPool) Emit(out sink.Sink, section string) {
	if len(p.order) == 0 {
		return
	}
	out.SwitchSection(section)
	for _, e := range p.order {
		out.EmitBytes([]byte(e.s))
		out.EmitInt8(0)
	}
}

// EmitOffsets writes the offset of each indexed string in index order.
func (p *StringPool) EmitOffsets(out sink.Sink, section string) {
	if p.indexed == 0 {
		return
	}
	offs := make([]uint32, p.indexed)
	for _, e := range p.order {
		if e.index >= 0 {
			offs[e.index] = e.offset
		}
	}
	out.SwitchSection(section)
	for _, o := range offs {
		out.EmitIntValue(uint64(o), 4)
	}
}
