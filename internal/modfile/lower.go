package modfile

import (
	"github.com/orizon-lang/dwarfemit/internal/lir"
	"github.com/orizon-lang/dwarfemit/internal/meta"
)

// function builds the machine function. Instruction offsets run on from
// the previous instruction unless given; debug values take the offset of
// the next instruction and no space.
func (l *loader) function(d *functionDecl) *lir.Function {
	fn := &lir.Function{Name: d.Name, Section: d.Section}
	if fn.Section == "" {
		fn.Section = ".text"
	}
	var sp *meta.Subprogram
	if d.Subprogram != "" {
		sp = l.subs[d.Subprogram]
		if sp == nil {
			l.errorf(d.at, "reference", "unknown subprogram %q", d.Subprogram)
			return nil
		}
		if !sp.Definition {
			l.errorf(d.at, "function", "subprogram %q has no unit", d.Subprogram)
		}
		fn.Subprogram = sp
	}

	calls := l.callSites(d.Calls, sp)

	for _, fo := range d.FrameObjects {
		fn.FrameObjects = append(fn.FrameObjects, lir.FrameObject{Index: fo.Index, Base: l.register(fo.at, fo.Base), Offset: fo.Offset})
	}
	for _, fv := range d.FrameVariables {
		v := l.variable(fv.at, fv.Var)
		if v == nil {
			continue
		}
		if _, ok := fn.FrameObject(fv.Slot); !ok {
			l.errorf(fv.at, "function", "no frame object %d", fv.Slot)
		}
		fn.FrameVariables = append(fn.FrameVariables, lir.FrameVariable{
			Var:  v,
			Expr: l.expression(fv.at, fv.Expr),
			Slot: fv.Slot,
			Loc:  &meta.Location{Line: v.Line, Scope: v.Scope, InlinedAt: l.call(fv.at, calls, fv.Call)},
		})
	}

	var next uint64
	for _, bd := range d.Blocks {
		bb := &lir.BasicBlock{Label: bd.Label}
		for i := range bd.Insns {
			in := l.insn(&bd.Insns[i], sp, calls, &next)
			if in != nil {
				bb.Insns = append(bb.Insns, in)
			}
		}
		fn.Blocks = append(fn.Blocks, bb)
	}
	return fn
}

func (l *loader) callSites(decls []callDecl, sp *meta.Subprogram) map[string]*meta.Location {
	calls := make(map[string]*meta.Location, len(decls))
	for _, c := range decls {
		c := c
		l.declare(c.at, "call", c.ID, func() {
			calls[c.ID] = &meta.Location{Line: c.Line, Column: c.Column}
		})
	}
	for _, c := range decls {
		loc, ok := calls[c.ID]
		if !ok {
			continue
		}
		loc.Scope = l.localScope(c.at, c.Scope, sp)
		loc.InlinedAt = l.call(c.at, calls, c.InlinedAt)
		for p := loc.InlinedAt; p != nil; p = p.InlinedAt {
			if p == loc {
				l.errorf(c.at, "call", "call site %q is inlined into itself", c.ID)
				loc.InlinedAt = nil
				break
			}
		}
	}
	return calls
}

func (l *loader) call(a at, calls map[string]*meta.Location, id string) *meta.Location {
	if id == "" {
		return nil
	}
	if c, ok := calls[id]; ok {
		return c
	}
	l.errorf(a, "reference", "unknown call site %q", id)
	return nil
}

func (l *loader) insn(d *insnDecl, sp *meta.Subprogram, calls map[string]*meta.Location, next *uint64) *lir.Insn {
	in := &lir.Insn{
		Offset:     *next,
		Text:       d.Text,
		FrameSetup: d.FrameSetup,
		Meta:       d.Meta,
	}
	if d.Offset != nil {
		in.Offset = *d.Offset
	}
	for _, r := range d.Defs {
		in.Defs = append(in.Defs, l.register(d.at, r))
	}

	if dv := d.DbgValue; dv != nil {
		v := l.variable(d.at, dv.Var)
		if v == nil {
			return nil
		}
		loc := &meta.Location{Line: v.Line, Scope: v.Scope, InlinedAt: l.call(d.at, calls, dv.Call)}
		val := &lir.DbgValue{Var: v, Expr: l.expression(d.at, dv.Expr), Loc: loc}
		switch {
		case dv.Undef:
			val.Kind = lir.ValueRegister
		case dv.Imm != nil:
			val.Kind = lir.ValueImmediate
			val.Imm = *dv.Imm
		case dv.Float != nil:
			size := dv.FloatSize
			if size == 0 {
				size = 8
			}
			if size != 4 && size != 8 {
				l.errorf(d.at, "dbg_value", "float size %d", size)
			}
			val.Kind = lir.ValueFloat
			val.FloatBits = floatBits(*dv.Float, size)
			val.FloatSize = size
		default:
			val.Kind = lir.ValueRegister
			val.Reg = l.register(d.at, dv.Reg)
			if val.Reg == lir.NoReg {
				l.errorf(d.at, "dbg_value", "value of %q needs reg, imm, float or undef", dv.Var)
			}
			val.Indirect = dv.Indirect
			val.Offset = dv.Offset
		}
		in.Meta = true
		in.Size = 0
		in.Loc = loc
		in.Debug = val
		return in
	}

	in.Size = d.Size
	if d.Line > 0 || d.Scope != "" || d.Call != "" {
		if sp == nil && d.Scope == "" {
			l.errorf(d.at, "insn", "located instruction in a function without a subprogram")
			return in
		}
		in.Loc = &meta.Location{
			Line:          d.Line,
			Column:        d.Column,
			Scope:         l.localScope(d.at, d.Scope, sp),
			InlinedAt:     l.call(d.at, calls, d.Call),
			Discriminator: d.Discriminator,
		}
	}
	if in.Offset < *next && !in.Meta {
		l.errorf(d.at, "insn", "offset %#x overlaps the previous instruction", in.Offset)
	}
	if end := in.End(); end > *next {
		*next = end
	}
	return in
}
