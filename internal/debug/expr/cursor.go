package expr

import "github.com/orizon-lang/dwarfemit/internal/meta"

// Cursor walks the operations of an expression.
type Cursor struct {
	ops []meta.ExprOp
	pos int
}

// NewCursor decodes x. A nil expression yields an empty cursor.
func NewCursor(x *meta.Expression) (*Cursor, error) {
	ops, err := x.Ops()
	if err != nil {
		return nil, err
	}
	return &Cursor{ops: ops}, nil
}

// Done reports whether every operation was consumed.
func (c *Cursor) Done() bool { return c.pos >= len(c.ops) }

// Peek returns the next operation without consuming it.
func (c *Cursor) Peek() (meta.ExprOp, bool) {
	if c.Done() {
		return meta.ExprOp{}, false
	}
	return c.ops[c.pos], true
}

// PeekNext returns the operation after the next one.
func (c *Cursor) PeekNext() (meta.ExprOp, bool) {
	if c.pos+1 >= len(c.ops) {
		return meta.ExprOp{}, false
	}
	return c.ops[c.pos+1], true
}

// Take consumes and returns the next operation.
func (c *Cursor) Take() meta.ExprOp {
	o := c.ops[c.pos]
	c.pos++
	return o
}

// Consume skips n operations.
func (c *Cursor) Consume(n int) { c.pos += n }

// Rest returns the unconsumed operations.
func (c *Cursor) Rest() []meta.ExprOp { return c.ops[c.pos:] }

// Has reports whether any remaining operation is o.
func (c *Cursor) Has(o uint64) bool {
	for _, x := range c.Rest() {
		if x.Op == o {
			return true
		}
	}
	return false
}

// Fragment returns the fragment of the whole expression.
func (c *Cursor) Fragment() (meta.Fragment, bool) {
	if n := len(c.ops); n > 0 && c.ops[n-1].Op == meta.OpFragment {
		return meta.Fragment{OffsetBits: c.ops[n-1].Args[0], SizeBits: c.ops[n-1].Args[1]}, true
	}
	return meta.Fragment{}, false
}
