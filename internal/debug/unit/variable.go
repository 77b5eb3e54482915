package unit

import (
	"debug/dwarf"
	"encoding/binary"
	"sort"

	"github.com/orizon-lang/dwarfemit/internal/debug/die"
	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/debug/expr"
	"github.com/orizon-lang/dwarfemit/internal/debug/loclist"
	"github.com/orizon-lang/dwarfemit/internal/lir"
	"github.com/orizon-lang/dwarfemit/internal/meta"
)

// FrameIndex places a variable, or one fragment of it, in a stack slot.
type FrameIndex struct {
	Slot int
	Expr *meta.Expression
}

// Variable is a variable of the function being emitted or the abstract
// instance of a variable of an inlined function. At most one of LocList,
// Value and Frame describes where it lives.
type Variable struct {
	Var       *meta.LocalVariable
	InlinedAt *meta.Location

	// LocList is an index into the location stream, or -1.
	LocList int
	Value   *lir.DbgValue
	Frame   []FrameIndex

	unit   *Unit
	record die.ID
}

// NewVariable returns a variable with no location.
func NewVariable(v *meta.LocalVariable, inlinedAt *meta.Location) *Variable {
	return &Variable{Var: v, InlinedAt: inlinedAt, LocList: -1, record: die.NoID}
}

// Record returns the variable's record, once built.
func (v *Variable) Record() (die.Ref, bool) {
	if v.unit == nil {
		return die.NoRef, false
	}
	return v.unit.Ref(v.record), true
}

// frameIndexes returns the stack slots sorted by fragment offset.
func (v *Variable) frameIndexes() []FrameIndex {
	if len(v.Frame) < 2 {
		return v.Frame
	}
	out := append([]FrameIndex(nil), v.Frame...)
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i].Expr.Fragment()
		b, _ := out[j].Expr.Fragment()
		return a.OffsetBits < b.OffsetBits
	})
	return out
}

func (u *Unit) newExpression(b *die.Block) *expr.Expression[*die.Block] {
	return expr.New(b, u.ctx.regs, u.version(), u.ctx.regs.FrameRegister())
}

// constructVariableDIE builds the unattached record of v. Abstract
// variables only get the attributes shared by every inlined copy.
func (cu *CompileUnit) constructVariableDIE(fn *Function, v *Variable, abstract bool) die.ID {
	id := cu.arena.New(v.Var.Tag())
	v.unit, v.record = cu.Unit, id
	if abstract {
		cu.applyVariableAttributes(v, id)
		return id
	}
	cu.ctx.concrete = append(cu.ctx.concrete, v)

	switch {
	case v.LocList >= 0:
		cu.rec(id).Add(die.LocList(dwarf.AttrLocation, cu.ctx.params.SecOffsetForm(), v.LocList))
	case v.Value != nil:
		cu.addSingleValue(id, v)
	case len(v.Frame) > 0:
		cu.addFrameLocation(fn, id, v)
	}
	return id
}

func (cu *CompileUnit) addSingleValue(id die.ID, v *Variable) {
	d := v.Value
	switch d.Kind {
	case lir.ValueRegister:
		b := &die.Block{}
		e := cu.newExpression(b)
		if !loclist.EncodeValue(e, d, false) {
			cu.ctx.log.Debug("no location for %s: register %d not describable", v.Var.Name, d.Reg)
			return
		}
		cu.addLoc(id, dwarf.AttrLocation, e.Finalize())
	case lir.ValueImmediate:
		if d.Expr.Len() > 0 {
			b := &die.Block{}
			e := cu.newExpression(b)
			e.AddFragmentOffset(d.Expr)
			e.AddUnsignedConstant(uint64(d.Imm))
			if c, err := expr.NewCursor(d.Expr); err == nil {
				e.AddExpression(c)
			}
			cu.addLoc(id, dwarf.AttrLocation, e.Finalize())
			return
		}
		cu.addConstantValueForType(id, d.Imm, v.Var.Type)
	case lir.ValueFloat:
		cu.addConstantFPValue(id, d.FloatBits, d.FloatSize)
	}
}

// addConstantValueForType adds an integer constant: sdata for signed types,
// the data form matching the type size otherwise.
func (u *Unit) addConstantValueForType(id die.ID, v int64, t meta.Type) {
	if loclist.IsSigned(t) {
		u.addSInt(id, dwarf.AttrConstValue, dw.FormSdata, v)
		return
	}
	var form dw.Form
	switch meta.SizeInBits(t) {
	case 8:
		form = dw.FormData1
	case 16:
		form = dw.FormData2
	case 32:
		form = dw.FormData4
	case 64:
		form = dw.FormData8
	default:
		form = dw.FormUdata
	}
	u.addUInt(id, dwarf.AttrConstValue, form, uint64(v))
}

// addConstantFPValue adds a floating point constant as its little endian
// bytes.
func (u *Unit) addConstantFPValue(id die.ID, bits uint64, size int) {
	if size <= 0 || size > 8 {
		size = 8
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], bits)
	b := &die.Block{}
	b.EmitData(buf[:size])
	u.addBlock(id, dwarf.AttrConstValue, b)
}

func (cu *CompileUnit) addFrameLocation(fn *Function, id die.ID, v *Variable) {
	if fn == nil || fn.Layout == nil {
		return
	}
	b := &die.Block{}
	e := cu.newExpression(b)
	for _, fi := range v.frameIndexes() {
		if !e.AddFrameIndex(fn.Layout, fi.Slot, fi.Expr) {
			cu.ctx.log.Debug("no location for %s: frame index %d unknown", v.Var.Name, fi.Slot)
			return
		}
	}
	cu.addLoc(id, dwarf.AttrLocation, e.Finalize())
}

func (u *Unit) applyVariableAttributes(v *Variable, id die.ID) {
	lv := v.Var
	if lv.Name != "" {
		u.addString(id, dwarf.AttrName, lv.Name)
	}
	u.addSourceLine(id, lv.Line, lv.File)
	u.addType(id, lv.Type, dwarf.AttrType)
	if lv.Flags.Has(meta.FlagArtificial) {
		u.addFlag(id, dwarf.AttrArtificial)
	}
}

// FinishVariableDefinitions completes concrete variable records: a
// reference to the abstract instance when there is one, the variable's own
// attributes otherwise.
func (c *Context) FinishVariableDefinitions() {
	for _, v := range c.concrete {
		if v.unit == nil {
			continue
		}
		if abs, ok := c.abstractVars[v.Var]; ok && abs.unit != nil {
			v.unit.addDIEEntry(v.record, dwarf.AttrAbstractOrigin, abs.unit.Ref(abs.record))
			continue
		}
		v.unit.applyVariableAttributes(v, v.record)
	}
}
