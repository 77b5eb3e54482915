package accel

import (
	"debug/dwarf"
	"sort"

	"github.com/orizon-lang/dwarfemit/internal/debug/die"
	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	"github.com/orizon-lang/dwarfemit/internal/debug/unit"
)

// Atom describes one field of every record in a hashed table.
type Atom struct {
	Type uint16
	Form dw.Form
}

var (
	// OffsetAtoms is the layout of the names and namespaces tables.
	OffsetAtoms = []Atom{{dw.AppleAtomDIEOffset, dw.FormData4}}
	// TypeAtoms is the layout of the types table.
	TypeAtoms = []Atom{
		{dw.AppleAtomDIEOffset, dw.FormData4},
		{dw.AppleAtomDIETag, dw.FormData2},
		{dw.AppleAtomTypeFlags, dw.FormData1},
	}
)

// HashDJB is the hash function of the tables.
func HashDJB(s string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(s); i++ {
		h = h*33 + uint32(s[i])
	}
	return h
}

type record struct {
	offset uint32
	tag    dwarf.Tag
	flags  uint8
}

type hashData struct {
	name    string
	hash    uint32
	records []record
	sym     *sink.Symbol
}

// Table is one Apple-style hashed accelerator table.
type Table struct {
	atoms   []Atom
	entries map[string][]record

	buckets [][]*hashData
	hashes  int
}

// NewTable returns an empty table with the given record layout.
func NewTable(atoms []Atom) *Table {
	return &Table{atoms: atoms, entries: make(map[string][]record)}
}

// Add records that the entry at offset in the info section carries name.
func (t *Table) Add(name string, offset uint32, tag dwarf.Tag, flags uint8) {
	t.entries[name] = append(t.entries[name], record{offset: offset, tag: tag, flags: flags})
}

// Len returns the number of distinct names.
func (t *Table) Len() int { return len(t.entries) }

// BucketCount returns the number of buckets once the table is finalized.
func (t *Table) BucketCount() int { return len(t.buckets) }

// bucketCount sizes the table from the number of distinct hashes.
func bucketCount(unique int) int {
	switch {
	case unique > 1024:
		return unique / 4
	case unique > 16:
		return unique / 2
	case unique > 0:
		return unique
	}
	return 1
}

// Finalize dedups records and distributes names over buckets.
func (t *Table) Finalize() {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	data := make([]*hashData, 0, len(names))
	seen := make(map[uint32]bool)
	for _, name := range names {
		recs := t.entries[name]
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].offset < recs[j].offset })
		uniq := recs[:0]
		for i, r := range recs {
			if i == 0 || r.offset != recs[i-1].offset {
				uniq = append(uniq, r)
			}
		}
		h := HashDJB(name)
		seen[h] = true
		data = append(data, &hashData{name: name, hash: h, records: uniq, sym: sink.NewSymbol("accel_" + name)})
	}
	t.hashes = len(seen)
	t.buckets = make([][]*hashData, bucketCount(t.hashes))
	for _, d := range data {
		b := d.hash % uint32(len(t.buckets))
		t.buckets[b] = append(t.buckets[b], d)
	}
	for _, b := range t.buckets {
		sort.SliceStable(b, func(i, j int) bool { return b[i].hash < b[j].hash })
	}
}

// Emit writes the finalized table. Names are interned in strs, which must
// not have been emitted yet.
func (t *Table) Emit(out sink.Sink, section string, strs *die.StringPool) {
	out.SwitchSection(section)
	begin := sink.NewSymbol(section + "_begin")
	out.EmitLabel(begin)

	out.EmitIntValue(dw.AppleMagic, 4)
	out.EmitIntValue(dw.AppleVersion, 2)
	out.EmitIntValue(dw.AppleHashDJB, 2)
	out.EmitIntValue(uint64(len(t.buckets)), 4)
	out.EmitIntValue(uint64(t.hashes), 4)
	out.EmitIntValue(uint64(8+4*len(t.atoms)), 4)
	out.EmitIntValue(0, 4) // die_offset_base
	out.EmitIntValue(uint64(len(t.atoms)), 4)
	for _, a := range t.atoms {
		out.EmitIntValue(uint64(a.Type), 2)
		out.EmitIntValue(uint64(a.Form), 2)
	}

	// buckets index the hash array; colliding names share a hash slot
	index := 0
	for _, b := range t.buckets {
		if len(b) == 0 {
			out.EmitIntValue(0xffffffff, 4)
			continue
		}
		out.EmitIntValue(uint64(index), 4)
		eachHash(b, func(*hashData) { index++ })
	}
	for _, b := range t.buckets {
		eachHash(b, func(d *hashData) { out.EmitIntValue(uint64(d.hash), 4) })
	}
	for _, b := range t.buckets {
		eachHash(b, func(d *hashData) { out.EmitLabelDifference(d.sym, begin, 4) })
	}

	for _, b := range t.buckets {
		for i, d := range b {
			if i > 0 && b[i-1].hash != d.hash {
				out.EmitIntValue(0, 4)
			}
			out.EmitLabel(d.sym)
			out.EmitIntValue(uint64(strs.Offset(d.name)), 4)
			out.EmitIntValue(uint64(len(d.records)), 4)
			for _, r := range d.records {
				out.EmitIntValue(uint64(r.offset), 4)
				if len(t.atoms) > 1 {
					out.EmitIntValue(uint64(r.tag), 2)
					out.EmitInt8(r.flags)
				}
			}
		}
		if len(b) > 0 {
			out.EmitIntValue(0, 4)
		}
	}
}

// eachHash calls fn for the first name of every distinct hash in b.
func eachHash(b []*hashData, fn func(*hashData)) {
	for i, d := range b {
		if i == 0 || b[i-1].hash != d.hash {
			fn(d)
		}
	}
}

// EmitAppleTables builds and writes the names, types and namespaces
// tables from the entries the units recorded. Layout must have run.
func EmitAppleTables(out sink.Sink, ctx *unit.Context) error {
	tables := []struct {
		section string
		atoms   []Atom
		entries []unit.AccelEntry
	}{
		{dw.SectionAppleNames, OffsetAtoms, ctx.AccelNames()},
		{dw.SectionAppleTypes, TypeAtoms, ctx.AccelTypes()},
		{dw.SectionAppleNamespac, OffsetAtoms, ctx.AccelNamespaces()},
	}
	for _, tb := range tables {
		t := NewTable(tb.atoms)
		for _, e := range tb.entries {
			off, err := ctx.RefAddr(e.Ref)
			if err != nil {
				return err
			}
			tag := ctx.Unit(e.Ref.Unit).Record(e.Ref.ID).Tag
			t.Add(e.Name, uint32(off), tag, e.Flags)
		}
		t.Finalize()
		t.Emit(out, tb.section, ctx.Strings)
	}
	return nil
}
