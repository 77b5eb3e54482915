// Package expr lowers storage descriptions (registers, memory, constants,
// stack slots, pieces of aggregates) into DWARF expression byte code.
//
// The encoder is generic over its destination: a record attribute block and
// a location list entry accept the same three primitives.
package expr

import (
	"bytes"

	"github.com/go-delve/delve/pkg/dwarf/leb128"
	"github.com/go-delve/delve/pkg/dwarf/op"

	"github.com/orizon-lang/dwarfemit/internal/lir"
	"github.com/orizon-lang/dwarfemit/internal/meta"
)

// Streamer receives encoded operations.
type Streamer interface {
	EmitOp(o op.Opcode)
	EmitSigned(v int64)
	EmitUnsigned(v uint64)
}

// RegisterInfo describes the target register file.
type RegisterInfo interface {
	IsPhysical(r lir.Reg) bool
	DwarfRegNum(r lir.Reg) (int, bool)
	// SuperRegs returns super-registers nearest first.
	SuperRegs(r lir.Reg) []lir.Reg
	// SubRegs returns contained registers ordered by bit offset.
	SubRegs(r lir.Reg) []lir.Reg
	SubRegIndex(super, sub lir.Reg) (offset, size uint, ok bool)
	RegSizeInBits(r lir.Reg) uint
}

// FrameLayout maps a frame index to the register and offset addressing it.
type FrameLayout interface {
	FrameIndexReference(index int) (lir.Reg, int64, bool)
}

// Bytes is a Streamer collecting a standalone expression.
type Bytes struct {
	bytes.Buffer
}

func (b *Bytes) EmitOp(o op.Opcode)    { b.WriteByte(byte(o)) }
func (b *Bytes) EmitSigned(v int64)    { leb128.EncodeSigned(&b.Buffer, v) }
func (b *Bytes) EmitUnsigned(v uint64) { leb128.EncodeUnsigned(&b.Buffer, v) }

// LocationKind is the kind of location description being built.
type LocationKind uint8

const (
	Unknown LocationKind = iota
	Register
	Memory
	Implicit
)

type dwarfReg struct {
	num  int // -1 for a gap
	size uint
}

// Expression builds one location description into a Streamer.
type Expression[S Streamer] struct {
	out      S
	regs     RegisterInfo
	version  int
	frameReg lir.Reg

	kind       LocationKind
	dwarfRegs  []dwarfReg
	subRegSize uint
	subRegOff  uint
	offsetBits uint64
}

// New returns an encoder writing to out. frameReg is the register that
// DW_AT_frame_base describes, or lir.NoReg when DW_OP_fbreg must not be used
// (location list entries).
func New[S Streamer](out S, regs RegisterInfo, version int, frameReg lir.Reg) *Expression[S] {
	return &Expression[S]{out: out, regs: regs, version: version, frameReg: frameReg}
}

// Out returns the destination.
func (e *Expression[S]) Out() S { return e.out }

// Kind returns the location kind decided so far.
func (e *Expression[S]) Kind() LocationKind { return e.kind }

func (e *Expression[S]) isFrameRegister(r lir.Reg) bool {
	return e.frameReg != lir.NoReg && r == e.frameReg
}

// SetMemoryLocationKind marks the location as a memory location; a trailing
// dereference becomes implicit.
func (e *Expression[S]) SetMemoryLocationKind() {
	e.kind = Memory
}

// AddReg emits DW_OP_reg<n> or DW_OP_regx.
func (e *Expression[S]) AddReg(dwarfNum int) {
	e.kind = Register
	if dwarfNum < 32 {
		e.out.EmitOp(op.DW_OP_reg0 + op.Opcode(dwarfNum))
		return
	}
	e.out.EmitOp(op.DW_OP_regx)
	e.out.EmitUnsigned(uint64(dwarfNum))
}

// AddBReg emits DW_OP_breg<n> or DW_OP_bregx with an offset.
func (e *Expression[S]) AddBReg(dwarfNum int, offset int64) {
	if dwarfNum < 32 {
		e.out.EmitOp(op.DW_OP_breg0 + op.Opcode(dwarfNum))
	} else {
		e.out.EmitOp(op.DW_OP_bregx)
		e.out.EmitUnsigned(uint64(dwarfNum))
	}
	e.out.EmitSigned(offset)
}

// AddFBReg emits DW_OP_fbreg.
func (e *Expression[S]) AddFBReg(offset int64) {
	e.out.EmitOp(op.DW_OP_fbreg)
	e.out.EmitSigned(offset)
}

// AddOpPiece emits DW_OP_piece, or DW_OP_bit_piece for bit offsets and
// sizes that are not whole bytes. A zero size emits nothing.
func (e *Expression[S]) AddOpPiece(sizeBits, offsetBits uint64) {
	if sizeBits == 0 {
		return
	}
	if offsetBits > 0 || sizeBits%8 != 0 {
		e.out.EmitOp(op.DW_OP_bit_piece)
		e.out.EmitUnsigned(sizeBits)
		e.out.EmitUnsigned(offsetBits)
	} else {
		e.out.EmitOp(op.DW_OP_piece)
		e.out.EmitUnsigned(sizeBits / 8)
	}
	e.offsetBits += sizeBits
}

// AddShr emits a right shift by n bits.
func (e *Expression[S]) AddShr(n uint64) {
	e.out.EmitOp(op.DW_OP_constu)
	e.out.EmitUnsigned(n)
	e.out.EmitOp(op.DW_OP_shr)
}

// AddAnd emits a bitwise and with mask.
func (e *Expression[S]) AddAnd(mask uint64) {
	e.out.EmitOp(op.DW_OP_constu)
	e.out.EmitUnsigned(mask)
	e.out.EmitOp(op.DW_OP_and)
}

// AddStackValue turns the expression into an implicit value (DWARF 4+).
func (e *Expression[S]) AddStackValue() {
	if e.version >= 4 {
		e.out.EmitOp(op.DW_OP_stack_value)
	}
}

// AddSignedConstant pushes v with DW_OP_consts.
func (e *Expression[S]) AddSignedConstant(v int64) {
	e.kind = Implicit
	e.out.EmitOp(op.DW_OP_consts)
	e.out.EmitSigned(v)
}

// AddUnsignedConstant pushes v with DW_OP_constu.
func (e *Expression[S]) AddUnsignedConstant(v uint64) {
	e.kind = Implicit
	e.out.EmitOp(op.DW_OP_constu)
	e.out.EmitUnsigned(v)
}

// AddConstant pushes v signed or unsigned according to the source type.
func (e *Expression[S]) AddConstant(v int64, signed bool) {
	if signed {
		e.AddSignedConstant(v)
		return
	}
	e.AddUnsignedConstant(uint64(v))
}

func (e *Expression[S]) setSubRegisterPiece(size, offset uint) {
	e.subRegSize = size
	e.subRegOff = offset
}

// addMachineReg records the DWARF registers that make up reg. A register
// without a DWARF number is described as a piece of its nearest numbered
// super-register, or as a covering set of numbered sub-registers.
func (e *Expression[S]) addMachineReg(reg lir.Reg, maxSize uint) bool {
	if !e.regs.IsPhysical(reg) {
		return false
	}
	if n, ok := e.regs.DwarfRegNum(reg); ok {
		e.dwarfRegs = append(e.dwarfRegs, dwarfReg{num: n})
		return true
	}

	for _, super := range e.regs.SuperRegs(reg) {
		n, ok := e.regs.DwarfRegNum(super)
		if !ok {
			continue
		}
		off, size, _ := e.regs.SubRegIndex(super, reg)
		e.dwarfRegs = append(e.dwarfRegs, dwarfReg{num: n})
		e.setSubRegisterPiece(size, off)
		return true
	}

	regSize := e.regs.RegSizeInBits(reg)
	covered := make([]bool, regSize)
	var curPos uint
	for _, sub := range e.regs.SubRegs(reg) {
		off, size, ok := e.regs.SubRegIndex(reg, sub)
		if !ok {
			continue
		}
		n, ok := e.regs.DwarfRegNum(sub)
		if !ok {
			continue
		}
		fresh := false
		for b := off; b < off+size && b < regSize; b++ {
			if !covered[b] {
				fresh = true
				break
			}
		}
		if !fresh {
			continue
		}
		if off > curPos {
			e.dwarfRegs = append(e.dwarfRegs, dwarfReg{num: -1, size: off - curPos})
		}
		pieceSize := size
		if maxSize > off && maxSize-off < size {
			pieceSize = maxSize - off
		}
		e.dwarfRegs = append(e.dwarfRegs, dwarfReg{num: n, size: pieceSize})
		if off >= maxSize {
			break
		}
		for b := off; b < off+size && b < regSize; b++ {
			covered[b] = true
		}
		curPos = off + size
	}
	return curPos > 0
}

// AddMachineRegExpression emits the base location for reg and consumes the
// operations of c that fold into it (a leading constant offset becomes the
// DW_OP_breg operand). It returns false, leaving the destination untouched,
// when reg has no DWARF encoding.
func (e *Expression[S]) AddMachineRegExpression(c *Cursor, reg lir.Reg) bool {
	maxSize := ^uint(0)
	if f, ok := c.Fragment(); ok {
		maxSize = uint(f.SizeBits)
	}
	if !e.addMachineReg(reg, maxSize) {
		e.kind = Unknown
		return false
	}

	next, hasNext := c.Peek()
	complexExpr := hasNext && next.Op != meta.OpFragment

	// several sub-register pieces do not compose with further operations
	if complexExpr && len(e.dwarfRegs) > 1 {
		e.dwarfRegs = nil
		e.kind = Unknown
		return false
	}

	if e.kind != Memory && !complexExpr {
		for _, r := range e.dwarfRegs {
			if r.num >= 0 {
				e.AddReg(r.num)
			}
			e.AddOpPiece(uint64(r.size), 0)
		}
		e.dwarfRegs = nil
		return true
	}

	if e.version < 4 && c.Has(uint64(op.DW_OP_stack_value)) {
		e.dwarfRegs = nil
		e.kind = Unknown
		return false
	}

	r := e.dwarfRegs[0]
	var offset int64
	if hasNext && next.Op == uint64(op.DW_OP_plus_uconst) {
		offset = int64(next.Args[0])
		c.Take()
	} else if hasNext && next.Op == uint64(op.DW_OP_constu) {
		if n, ok := c.PeekNext(); ok && (n.Op == uint64(op.DW_OP_plus) || (n.Op == uint64(op.DW_OP_minus) && e.subRegSize == 0)) {
			offset = int64(next.Args[0])
			if n.Op == uint64(op.DW_OP_minus) {
				offset = -offset
			}
			c.Consume(2)
		}
	}

	if e.isFrameRegister(reg) {
		e.AddFBReg(offset)
	} else {
		e.AddBReg(r.num, offset)
	}
	e.dwarfRegs = nil
	return true
}

// isMemoryLocation matches "DW_OP_deref* fragment?".
func isMemoryLocation(ops []meta.ExprOp) bool {
	for _, o := range ops {
		if o.Op != uint64(op.DW_OP_deref) && o.Op != meta.OpFragment {
			return false
		}
	}
	return true
}

func (e *Expression[S]) maskSubRegister() {
	if e.subRegOff > 0 {
		e.AddShr(uint64(e.subRegOff))
	}
	e.AddAnd(uint64(1)<<e.subRegSize - 1)
}

// AddExpression emits the remaining operations of c.
func (e *Expression[S]) AddExpression(c *Cursor) {
	if n, ok := c.Peek(); ok && e.subRegSize != 0 && n.Op != meta.OpFragment {
		e.maskSubRegister()
	}

	for !c.Done() {
		o := c.Take()
		switch o.Op {
		case meta.OpFragment:
			offset, size := o.Args[0], o.Args[1]
			// pieces already emitted for a split register count against the fragment
			if e.offsetBits > offset {
				size -= e.offsetBits - offset
			}
			if e.subRegSize != 0 && uint64(e.subRegSize) < size {
				size = uint64(e.subRegSize)
			}
			if e.kind == Implicit {
				e.AddStackValue()
			}
			e.AddOpPiece(size, uint64(e.subRegOff))
			e.setSubRegisterPiece(0, 0)
			e.kind = Unknown
			return
		case uint64(op.DW_OP_plus_uconst):
			e.out.EmitOp(op.DW_OP_plus_uconst)
			e.out.EmitUnsigned(o.Args[0])
		case uint64(op.DW_OP_plus), uint64(op.DW_OP_minus), uint64(op.DW_OP_swap), uint64(op.DW_OP_xderef):
			e.out.EmitOp(op.Opcode(o.Op))
		case uint64(op.DW_OP_deref):
			if e.kind != Memory && isMemoryLocation(c.Rest()) {
				e.kind = Memory
			} else {
				e.out.EmitOp(op.DW_OP_deref)
			}
		case uint64(op.DW_OP_constu):
			e.out.EmitOp(op.DW_OP_constu)
			e.out.EmitUnsigned(o.Args[0])
		case uint64(op.DW_OP_stack_value):
			e.kind = Implicit
		}
	}

	if e.kind == Implicit {
		e.AddStackValue()
	}
}

// AddFragmentOffset emits an empty piece covering the gap between the bits
// described so far and the fragment expr starts at.
func (e *Expression[S]) AddFragmentOffset(x *meta.Expression) {
	f, ok := x.Fragment()
	if !ok {
		return
	}
	if f.OffsetBits > e.offsetBits {
		e.AddOpPiece(f.OffsetBits-e.offsetBits, 0)
	}
	e.offsetBits = f.OffsetBits
}

// AddFrameIndex describes a variable stored in stack slot index, resolved
// through layout. It returns false when the slot is unknown or the base
// register cannot be encoded.
func (e *Expression[S]) AddFrameIndex(layout FrameLayout, index int, x *meta.Expression) bool {
	reg, offset, ok := layout.FrameIndexReference(index)
	if !ok {
		return false
	}
	e.AddFragmentOffset(x)
	elems := []uint64{uint64(op.DW_OP_plus_uconst), uint64(offset)}
	if x != nil {
		elems = append(elems, x.Elements...)
	}
	c, err := NewCursor(meta.NewExpression(elems...))
	if err != nil {
		return false
	}
	e.SetMemoryLocationKind()
	if !e.AddMachineRegExpression(c, reg) {
		return false
	}
	e.AddExpression(c)
	return true
}

// Finalize emits any piece still needed to stencil out a sub-register.
func (e *Expression[S]) Finalize() S {
	if e.subRegSize != 0 && e.subRegOff != 0 {
		e.AddOpPiece(uint64(e.subRegSize), uint64(e.subRegOff))
	}
	return e.out
}
