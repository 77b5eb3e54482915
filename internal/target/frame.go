package target

import "github.com/orizon-lang/dwarfemit/internal/lir"

// FrameLayout resolves a function's frame indices to base register and
// offset, the way the code generator laid out the stack.
type FrameLayout struct {
	fn *lir.Function
}

// NewFrameLayout returns the layout of fn's stack frame.
func NewFrameLayout(fn *lir.Function) *FrameLayout {
	return &FrameLayout{fn: fn}
}

// FrameIndexReference returns the register and offset that address slot index.
func (l *FrameLayout) FrameIndexReference(index int) (lir.Reg, int64, bool) {
	fo, ok := l.fn.FrameObject(index)
	if !ok {
		return lir.NoReg, 0, false
	}
	return fo.Base, fo.Offset, true
}
