// Package die models debug information entries ("records") as an arena per
// unit. Records are addressed by stable integer IDs; references across units
// are (unit, id) pairs and are resolved to offsets only after every unit has
// been laid out.
package die

import (
	"debug/dwarf"
	"fmt"
)

// UnitID identifies the arena a record belongs to.
type UnitID int32

// ID indexes a record inside its arena.
type ID int32

// NoID is the zero record reference.
const NoID ID = -1

// Ref names a record in any unit.
type Ref struct {
	Unit UnitID
	ID   ID
}

// Valid reports whether r points at a record.
func (r Ref) Valid() bool { return r.ID != NoID }

// NoRef is an invalid reference.
var NoRef = Ref{ID: NoID}

func (r Ref) String() string { return fmt.Sprintf("u%d#%d", r.Unit, r.ID) }

// Record is one debug information entry.
type Record struct {
	Tag      dwarf.Tag
	Values   []Value
	Children []ID
	Parent   ID

	abbrev uint32
	offset uint32
	size   uint32
}

// Attr returns the first value for attr.
func (r *Record) Attr(attr dwarf.Attr) (*Value, bool) {
	for i := range r.Values {
		if r.Values[i].Attr == attr {
			return &r.Values[i], true
		}
	}
	return nil, false
}

// Has reports whether r carries attr.
func (r *Record) Has(attr dwarf.Attr) bool {
	_, ok := r.Attr(attr)
	return ok
}

// Add appends a value. Attribute lists are append-only.
func (r *Record) Add(v Value) { r.Values = append(r.Values, v) }

// Offset is the unit-relative offset assigned by Layout.
func (r *Record) Offset() uint32 { return r.offset }

// Size is the encoded size including children, assigned by Layout.
func (r *Record) Size() uint32 { return r.size }

// Arena owns every record of one unit.
type Arena struct {
	unit    UnitID
	records []*Record
}

// NewArena returns an empty arena for unit.
func NewArena(unit UnitID) *Arena {
	return &Arena{unit: unit}
}

// Unit returns the arena's unit id.
func (a *Arena) Unit() UnitID { return a.unit }

// Len returns the number of records allocated, attached or not.
func (a *Arena) Len() int { return len(a.records) }

// New allocates an unattached record.
func (a *Arena) New(tag dwarf.Tag) ID {
	a.records = append(a.records, &Record{Tag: tag, Parent: NoID})
	return ID(len(a.records) - 1)
}

// At returns the record for id. The pointer stays valid for the arena's lifetime.
func (a *Arena) At(id ID) *Record {
	return a.records[id]
}

// Ref returns the cross-unit reference for id.
func (a *Arena) Ref(id ID) Ref { return Ref{Unit: a.unit, ID: id} }

// Owns reports whether ref points into this arena.
func (a *Arena) Owns(ref Ref) bool {
	return ref.Unit == a.unit && ref.ID >= 0 && int(ref.ID) < len(a.records)
}

// AddChild attaches child under parent. A record is attached at most once.
func (a *Arena) AddChild(parent, child ID) {
	c := a.records[child]
	if c.Parent != NoID {
		panic(fmt.Sprintf("die: record %d already attached to %d", child, c.Parent))
	}
	c.Parent = parent
	p := a.records[parent]
	p.Children = append(p.Children, child)
}

// NewChild allocates a record and attaches it under parent.
func (a *Arena) NewChild(parent ID, tag dwarf.Tag) ID {
	id := a.New(tag)
	a.AddChild(parent, id)
	return id
}

// Walk visits id and its attached descendants in pre-order.
func (a *Arena) Walk(id ID, fn func(ID, *Record)) {
	r := a.records[id]
	fn(id, r)
	for _, c := range r.Children {
		a.Walk(c, fn)
	}
}
