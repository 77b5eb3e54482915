// Package lir defines the machine-level view of a compiled module that the
// debug-info emitter consumes: laid-out functions made of basic blocks of
// instructions with addresses, register definitions and debug pseudo
// instructions.
package lir

import (
	"fmt"
	"strings"

	"github.com/orizon-lang/dwarfemit/internal/meta"
)

// Reg is a target register number. NoReg (0) is never a real register.
type Reg uint16

// NoReg marks an absent register.
const NoReg Reg = 0

// Module bundles functions for one object file.
type Module struct {
	Name      string
	Units     []*meta.CompileUnit
	Functions []*Function
}

// Function is a laid-out sequence of basic blocks. Offsets are relative to
// the start of Section.
type Function struct {
	Name    string
	Section string
	// Subprogram is nil for functions without debug info.
	Subprogram *meta.Subprogram
	Blocks     []*BasicBlock

	FrameObjects   []FrameObject
	FrameVariables []FrameVariable
}

// FrameObject is a stack slot addressed relative to a base register.
type FrameObject struct {
	Index  int
	Base   Reg
	Offset int64
}

// FrameVariable is a variable that lives in a stack slot for the whole
// function, optionally as one fragment.
type FrameVariable struct {
	Var  *meta.LocalVariable
	Expr *meta.Expression
	Slot int
	Loc  *meta.Location
}

// BasicBlock contains a linear list of instructions in layout order.
type BasicBlock struct {
	Label string
	Insns []*Insn
}

// Insn is one machine instruction or debug pseudo instruction.
type Insn struct {
	Offset uint64
	Size   uint64
	Text   string
	Loc    *meta.Location
	Defs   []Reg
	// FrameSetup marks prologue instructions.
	FrameSetup bool
	// Meta instructions produce no code (labels, CFI, debug values).
	Meta  bool
	Debug *DbgValue
}

// IsDebugValue reports whether the instruction is a DBG_VALUE.
func (in *Insn) IsDebugValue() bool { return in.Debug != nil }

// End returns the offset just past the instruction.
func (in *Insn) End() uint64 { return in.Offset + in.Size }

// ValueKind says what a DbgValue points at.
type ValueKind uint8

const (
	ValueRegister ValueKind = iota
	ValueImmediate
	ValueFloat
)

// DbgValue states where a variable lives from this point on. A register
// value with NoReg means the variable is unavailable.
type DbgValue struct {
	Var  *meta.LocalVariable
	Expr *meta.Expression
	Loc  *meta.Location
	Kind ValueKind

	Reg      Reg
	Indirect bool
	Offset   int64

	Imm int64
	// FloatBits holds the raw bits of a floating point constant of
	// FloatSize bytes.
	FloatBits uint64
	FloatSize int
}

// InlinedVariable returns the variable key the value describes.
func (d *DbgValue) InlinedVariable() meta.InlinedVariable {
	var ia *meta.Location
	if d.Loc != nil {
		ia = d.Loc.InlinedAt
	}
	return meta.InlinedVariable{Var: d.Var, InlinedAt: ia}
}

// IsUndef reports whether the value marks the variable as unavailable.
func (d *DbgValue) IsUndef() bool { return d.Kind == ValueRegister && d.Reg == NoReg }

// Describes reports whether both values describe the same variable.
func (d *DbgValue) Describes(o *DbgValue) bool {
	return d.InlinedVariable() == o.InlinedVariable()
}

// Same reports whether o states exactly the same location as d.
func (d *DbgValue) Same(o *DbgValue) bool {
	if !d.Describes(o) || d.Kind != o.Kind || !d.Expr.Equal(o.Expr) {
		return false
	}
	switch d.Kind {
	case ValueRegister:
		return d.Reg == o.Reg && d.Indirect == o.Indirect && d.Offset == o.Offset
	case ValueImmediate:
		return d.Imm == o.Imm
	default:
		return d.FloatBits == o.FloatBits && d.FloatSize == o.FloatSize
	}
}

// Insns returns every instruction of f in layout order.
func (f *Function) Insns() []*Insn {
	var out []*Insn
	for _, bb := range f.Blocks {
		out = append(out, bb.Insns...)
	}
	return out
}

// Start returns the offset of the first instruction.
func (f *Function) Start() uint64 {
	for _, bb := range f.Blocks {
		if len(bb.Insns) > 0 {
			return bb.Insns[0].Offset
		}
	}
	return 0
}

// End returns the offset just past the last instruction.
func (f *Function) End() uint64 {
	var end uint64
	for _, bb := range f.Blocks {
		for _, in := range bb.Insns {
			if e := in.End(); e > end {
				end = e
			}
		}
	}
	return end
}

// BlockIndex maps each instruction to the index of its basic block.
func (f *Function) BlockIndex() map[*Insn]int {
	idx := make(map[*Insn]int)
	for i, bb := range f.Blocks {
		for _, in := range bb.Insns {
			idx[in] = i
		}
	}
	return idx
}

// FrameObject returns the stack slot with the given index.
func (f *Function) FrameObject(index int) (FrameObject, bool) {
	for _, fo := range f.FrameObjects {
		if fo.Index == index {
			return fo, true
		}
	}
	return FrameObject{}, false
}

func (m *Module) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "module %s\n", m.Name)

	for _, f := range m.Functions {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}

	return b.String()
}

func (d *DbgValue) String() string {
	name := "?"
	if d.Var != nil {
		name = d.Var.Name
	}
	switch d.Kind {
	case ValueImmediate:
		return fmt.Sprintf("DBG_VALUE %s = %d", name, d.Imm)
	case ValueFloat:
		return fmt.Sprintf("DBG_VALUE %s = fp:%#x", name, d.FloatBits)
	}
	if d.Reg == NoReg {
		return fmt.Sprintf("DBG_VALUE %s = undef", name)
	}
	if d.Indirect {
		return fmt.Sprintf("DBG_VALUE %s = [r%d%+d]", name, d.Reg, d.Offset)
	}
	return fmt.Sprintf("DBG_VALUE %s = r%d", name, d.Reg)
}

func (in *Insn) String() string {
	if in.Debug != nil {
		return in.Debug.String()
	}
	text := in.Text
	if text == "" {
		text = "insn"
	}
	if in.Loc != nil {
		return fmt.Sprintf("%#06x %s ; line %d:%d", in.Offset, text, in.Loc.Line, in.Loc.Column)
	}
	return fmt.Sprintf("%#06x %s", in.Offset, text)
}

func (f *Function) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "func %s() {\n", f.Name)

	for _, bb := range f.Blocks {
		if bb.Label != "" {
			fmt.Fprintf(&b, "%s:\n", bb.Label)
		}

		for _, ins := range bb.Insns {
			b.WriteString("  ")
			b.WriteString(ins.String())
			b.WriteByte('\n')
		}
	}

	b.WriteString("}\n")

	return b.String()
}
