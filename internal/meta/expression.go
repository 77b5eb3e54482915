package meta

import (
	"fmt"

	"github.com/go-delve/delve/pkg/dwarf/op"
)

// OpFragment marks the trailing (offset, size) bit range of an expression
// that describes one piece of a larger variable. It is not a DWARF opcode
// and is lowered to DW_OP_piece/DW_OP_bit_piece.
const OpFragment uint64 = 0x1000

// Expression is a sequence of micro-operations applied on top of a
// variable's base location. Elements are opcodes followed by their
// arguments.
type Expression struct {
	Elements []uint64
}

// ExprOp is one decoded operation.
type ExprOp struct {
	Op   uint64
	Args []uint64
}

// Fragment is a bit range of a variable.
type Fragment struct {
	OffsetBits uint64
	SizeBits   uint64
}

// End returns the first bit past the fragment.
func (f Fragment) End() uint64 { return f.OffsetBits + f.SizeBits }

// NewExpression builds an expression from raw elements.
func NewExpression(elems ...uint64) *Expression {
	return &Expression{Elements: elems}
}

// FragmentExpression returns an expression describing only a fragment.
func FragmentExpression(offsetBits, sizeBits uint64) *Expression {
	return NewExpression(OpFragment, offsetBits, sizeBits)
}

func opArgs(o uint64) (int, bool) {
	switch o {
	case OpFragment:
		return 2, true
	case uint64(op.DW_OP_constu), uint64(op.DW_OP_plus_uconst):
		return 1, true
	case uint64(op.DW_OP_plus), uint64(op.DW_OP_minus), uint64(op.DW_OP_deref),
		uint64(op.DW_OP_stack_value), uint64(op.DW_OP_swap), uint64(op.DW_OP_xderef):
		return 0, true
	}
	return 0, false
}

// Ops decodes the expression. It fails on unknown opcodes or truncated
// operands.
func (e *Expression) Ops() ([]ExprOp, error) {
	if e == nil {
		return nil, nil
	}
	var ops []ExprOp
	for i := 0; i < len(e.Elements); {
		o := e.Elements[i]
		n, ok := opArgs(o)
		if !ok {
			return nil, fmt.Errorf("unsupported expression opcode %#x", o)
		}
		if i+1+n > len(e.Elements) {
			return nil, fmt.Errorf("truncated operand for opcode %#x", o)
		}
		ops = append(ops, ExprOp{Op: o, Args: e.Elements[i+1 : i+1+n]})
		i += 1 + n
	}
	return ops, nil
}

// Valid reports whether the expression decodes and any fragment is last.
func (e *Expression) Valid() bool {
	ops, err := e.Ops()
	if err != nil {
		return false
	}
	for i, o := range ops {
		if o.Op == OpFragment && i != len(ops)-1 {
			return false
		}
	}
	return true
}

// Len returns the number of elements.
func (e *Expression) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Elements)
}

// Fragment returns the fragment the expression describes, if any.
func (e *Expression) Fragment() (Fragment, bool) {
	if e == nil || len(e.Elements) < 3 {
		return Fragment{}, false
	}
	n := len(e.Elements)
	if e.Elements[n-3] != OpFragment {
		return Fragment{}, false
	}
	return Fragment{OffsetBits: e.Elements[n-2], SizeBits: e.Elements[n-1]}, true
}

// IsFragment reports whether the expression ends in a fragment.
func (e *Expression) IsFragment() bool {
	_, ok := e.Fragment()
	return ok
}

// IsConstant reports whether the expression is "constu N, stack_value"
// optionally followed by a fragment.
func (e *Expression) IsConstant() bool {
	if e == nil {
		return false
	}
	n := len(e.Elements)
	if n != 3 && n != 6 {
		return false
	}
	if e.Elements[0] != uint64(op.DW_OP_constu) || e.Elements[2] != uint64(op.DW_OP_stack_value) {
		return false
	}
	return n == 3 || e.Elements[3] == OpFragment
}

// Equal compares two expressions element-wise; nil equals empty.
func (e *Expression) Equal(o *Expression) bool {
	if e.Len() != o.Len() {
		return false
	}
	for i := 0; i < e.Len(); i++ {
		if e.Elements[i] != o.Elements[i] {
			return false
		}
	}
	return true
}

// FragmentsOverlap reports whether two expressions describe overlapping
// bits. An expression without a fragment covers the whole variable and
// overlaps everything.
func FragmentsOverlap(a, b *Expression) bool {
	fa, ok := a.Fragment()
	if !ok {
		return true
	}
	fb, ok := b.Fragment()
	if !ok {
		return true
	}
	return fa.OffsetBits < fb.End() && fb.OffsetBits < fa.End()
}

// FragmentCompare orders non-overlapping fragments by offset. It returns 0
// when they overlap.
func FragmentCompare(a, b *Expression) int {
	fa, _ := a.Fragment()
	fb, _ := b.Fragment()
	switch {
	case fa.End() <= fb.OffsetBits:
		return -1
	case fb.End() <= fa.OffsetBits:
		return 1
	}
	return 0
}
