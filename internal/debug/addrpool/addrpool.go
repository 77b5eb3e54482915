// Package addrpool implements the split-DWARF address table: every address
// a .dwo unit refers to is stored once in .debug_addr and referenced by
// index.
package addrpool

import (
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	oerrors "github.com/orizon-lang/dwarfemit/internal/errors"
)

type entry struct {
	sym *sink.Symbol
	tls bool
}

// Pool assigns dense indices to symbols in first-use order.
type Pool struct {
	index   map[*sink.Symbol]uint32
	entries []entry
	used    bool
	emitted bool
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{index: make(map[*sink.Symbol]uint32)}
}

// GetIndex returns the index of sym, adding it if needed. TLS symbols are
// stored as offsets into the thread-local block.
func (p *Pool) GetIndex(sym *sink.Symbol, tls bool) (uint32, error) {
	if p.emitted {
		return 0, oerrors.UsageError("address pool used after emission", map[string]interface{}{"symbol": sym.String()})
	}
	p.used = true
	if i, ok := p.index[sym]; ok {
		return i, nil
	}
	i := uint32(len(p.entries))
	p.index[sym] = i
	p.entries = append(p.entries, entry{sym: sym, tls: tls})
	return i, nil
}

// HasBeenUsed reports whether GetIndex was called since the last reset.
func (p *Pool) HasBeenUsed() bool { return p.used }

// ResetUsedFlag clears the flag HasBeenUsed reports.
func (p *Pool) ResetUsedFlag() { p.used = false }

// Len returns the number of entries.
func (p *Pool) Len() int { return len(p.entries) }

// Emit writes the table and freezes the pool. An empty pool writes nothing.
func (p *Pool) Emit(out sink.Sink, section string, addrSize int) {
	p.emitted = true
	if len(p.entries) == 0 {
		return
	}
	out.SwitchSection(section)
	for _, e := range p.entries {
		if e.tls {
			out.EmitIntValue(e.sym.Offset(), addrSize)
			continue
		}
		out.EmitSymbolValue(e.sym, addrSize)
	}
}
