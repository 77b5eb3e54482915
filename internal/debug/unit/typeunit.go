package unit

import (
	"debug/dwarf"

	"github.com/orizon-lang/dwarfemit/internal/debug/die"
	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/meta"
)

// TypeUnit holds one composite type and everything it references, keyed
// by a signature other units use to refer to it.
type TypeUnit struct {
	*Unit

	owner      *CompileUnit
	identifier string
	signature  uint64
	typeID     die.ID
}

// NewTypeUnit starts a type unit for the type named identifier. The unit
// is not emitted until CommitTypeUnit.
func (c *Context) NewTypeUnit(owner *CompileUnit, identifier string, signature uint64) *TypeUnit {
	u := c.newUnit(KindType, c.opts.Split, dw.TagTypeUnit)
	u.cu = owner
	u.lang = owner.lang
	tu := &TypeUnit{Unit: u, owner: owner, identifier: identifier, signature: signature, typeID: die.NoID}
	u.addUInt(u.root, dwarf.AttrLanguage, dw.FormData2, uint64(owner.lang))
	if c.opts.Split {
		u.lines = c.DwoLines
		u.rec(u.root).Add(die.Int(dwarf.AttrStmtList, c.params.SecOffsetForm(), 0))
	} else {
		u.lines = owner.lines
		u.addSectionLabel(u.root, dwarf.AttrStmtList, owner.lineSym)
	}
	return tu
}

// Signature returns the type signature.
func (tu *TypeUnit) Signature() uint64 { return tu.signature }

// Identifier returns the name the unit was created for.
func (tu *TypeUnit) Identifier() string { return tu.identifier }

// Owner returns the compile unit that first requested the type.
func (tu *TypeUnit) Owner() *CompileUnit { return tu.owner }

// TypeRecord returns the record of the unit's type.
func (tu *TypeUnit) TypeRecord() die.ID { return tu.typeID }

// Build creates the record of ct in the unit along with its context
// records.
func (tu *TypeUnit) Build(ct *meta.CompositeType) die.ID {
	parent := tu.getOrCreateContextDIE(ct.Scope)
	id := tu.createAndAdd(ct.Kind, parent, ct)
	tu.updateAcceleratorTables(ct.Scope, ct, id)
	tu.constructCompositeType(id, ct)
	tu.typeID = id
	return id
}

// CommitTypeUnit makes tu part of the output and hands its pub type names
// to its owner.
func (c *Context) CommitTypeUnit(tu *TypeUnit) {
	c.typeUnits = append(c.typeUnits, tu)
	tu.owner.addTypeNames(tu.typeNames)
	tu.typeNames = nil
}
