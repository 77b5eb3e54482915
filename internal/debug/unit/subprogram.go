package unit

import (
	"debug/dwarf"

	"github.com/go-delve/delve/pkg/dwarf/op"

	"github.com/orizon-lang/dwarfemit/internal/debug/die"
	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/debug/expr"
	"github.com/orizon-lang/dwarfemit/internal/debug/loclist"
	"github.com/orizon-lang/dwarfemit/internal/debug/scope"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	oerrors "github.com/orizon-lang/dwarfemit/internal/errors"
	"github.com/orizon-lang/dwarfemit/internal/lir"
	"github.com/orizon-lang/dwarfemit/internal/meta"
)

// Function is the per-function state records are built from.
type Function struct {
	Subprogram *meta.Subprogram
	Begin, End *sink.Symbol
	Layout     expr.FrameLayout
	Scopes     *scope.Scopes
	Labels     loclist.Labels

	ctx  *Context
	vars map[*scope.LexicalScope][]*Variable
}

// NewFunction starts record state for the function described by sp.
func (c *Context) NewFunction(sp *meta.Subprogram, begin, end *sink.Symbol, layout expr.FrameLayout, scopes *scope.Scopes, labels loclist.Labels) *Function {
	return &Function{
		Subprogram: sp,
		Begin:      begin,
		End:        end,
		Layout:     layout,
		Scopes:     scopes,
		Labels:     labels,
		ctx:        c,
		vars:       make(map[*scope.LexicalScope][]*Variable),
	}
}

// Variables returns the variables attached to sc in creation order,
// parameters first.
func (f *Function) Variables(sc *scope.LexicalScope) []*Variable { return f.vars[sc] }

// AddScopeVariable attaches v to sc. Parameters are kept in argument order
// ahead of locals. A second variable for an argument number already present
// is not added; its stack slots are merged into the first. AddScopeVariable
// reports whether v was added.
func (f *Function) AddScopeVariable(sc *scope.LexicalScope, v *Variable) bool {
	vars := f.vars[sc]
	arg := v.Var.Arg
	if arg == 0 {
		f.vars[sc] = append(vars, v)
		return true
	}
	i := 0
	for ; i < len(vars); i++ {
		cur := vars[i].Var.Arg
		if cur == 0 || cur > arg {
			break
		}
		if cur == arg {
			if len(vars[i].Frame) > 0 && len(v.Frame) > 0 {
				vars[i].Frame = append(vars[i].Frame, v.Frame...)
			}
			return false
		}
	}
	vars = append(vars, nil)
	copy(vars[i+1:], vars[i:])
	vars[i] = v
	f.vars[sc] = vars
	return true
}

func (c *Context) createAbstractVariable(f *Function, v *meta.LocalVariable, sc *scope.LexicalScope) {
	av := NewVariable(v, nil)
	c.abstractVars[v] = av
	f.AddScopeVariable(sc, av)
}

// EnsureAbstractVariable creates the abstract instance of v inside the
// abstract scope of its declaring scope.
func (f *Function) EnsureAbstractVariable(v *meta.LocalVariable) {
	if _, ok := f.ctx.abstractVars[v]; ok {
		return
	}
	f.ctx.createAbstractVariable(f, v, f.Scopes.GetOrCreateAbstractScope(v.Scope))
}

// EnsureAbstractVariableIfScoped creates the abstract instance of v when
// its declaring scope already has an abstract scope.
func (f *Function) EnsureAbstractVariableIfScoped(v *meta.LocalVariable) {
	if len(f.Scopes.AbstractScopes()) == 0 {
		return
	}
	if _, ok := f.ctx.abstractVars[v]; ok {
		return
	}
	if sc := f.Scopes.FindAbstractScope(v.Scope); sc != nil {
		f.ctx.createAbstractVariable(f, v, sc)
	}
}

type spDefinition struct {
	cu *CompileUnit
	sp *meta.Subprogram
}

func (c *Context) addSubprogramNames(sp *meta.Subprogram, ref die.Ref) {
	if !sp.Definition {
		return
	}
	c.addAccelName(sp.Name, ref)
	if sp.LinkageName != "" && sp.LinkageName != sp.Name {
		c.addAccelName(sp.LinkageName, ref)
	}
}

// getOrCreateSubprogramDIE returns the record of sp. Out-of-line
// definitions hang off the unit root and point at their declaration.
func (u *Unit) getOrCreateSubprogramDIE(sp *meta.Subprogram) die.ID {
	parent := u.getOrCreateContextDIE(sp.Scope)
	if id, ok := u.memo[sp]; ok {
		return id
	}
	if sp.Declaration != nil {
		parent = u.root
		u.getOrCreateSubprogramDIE(sp.Declaration)
	}
	id := u.createAndAdd(dwarf.TagSubprogram, parent, sp)
	if sp.Definition {
		// Definitions are completed once the function has been emitted.
		return id
	}
	u.applySubprogramAttributes(sp, id)
	return id
}

// applySubprogramDefinitionAttributes links a definition to its
// declaration. It reports whether the declaration already carries the
// remaining attributes.
func (u *Unit) applySubprogramDefinitionAttributes(sp *meta.Subprogram, id die.ID) bool {
	declID := die.NoID
	declLinkage := ""
	if decl := sp.Declaration; decl != nil {
		if d, ok := u.memo[decl]; ok {
			declID = d
		}
		declLinkage = decl.LinkageName
		if f := u.fileID(sp.File); f != u.fileID(decl.File) {
			u.addUInt(id, dwarf.AttrDeclFile, 0, uint64(f))
		}
		if sp.Line != decl.Line {
			u.addUInt(id, dwarf.AttrDeclLine, 0, uint64(sp.Line))
		}
	}
	u.addTemplateParams(id, sp.TemplateParams)
	if declLinkage == "" {
		u.addLinkageName(id, sp.LinkageName)
	}
	if declID == die.NoID {
		return false
	}
	u.addEntry(id, dwarf.AttrSpecification, declID)
	return true
}

func (u *Unit) applySubprogramAttributes(sp *meta.Subprogram, id die.ID) {
	if u.applySubprogramDefinitionAttributes(sp, id) {
		return
	}
	if sp.Name != "" {
		u.addString(id, dwarf.AttrName, sp.Name)
	}
	u.addSourceLine(id, sp.Line, sp.File)
	if sp.Flags.Has(meta.FlagPrototyped) && u.isCLike() {
		u.addFlag(id, dwarf.AttrPrototyped)
	}
	var args []meta.Type
	if sp.Type != nil {
		args = sp.Type.Types
	}
	if len(args) > 0 && args[0] != nil {
		u.addType(id, args[0], dwarf.AttrType)
	}
	if sp.Virtuality != dw.VirtualityNone {
		u.addUInt(id, dwarf.AttrVirtuality, dw.FormData1, uint64(sp.Virtuality))
		b := &die.Block{}
		b.EmitOp(op.DW_OP_constu)
		b.EmitUnsigned(sp.VirtualIndex)
		u.addLoc(id, dwarf.AttrVtableElemLoc, b)
		if sp.ContainingType != nil {
			u.containing = append(u.containing, containingType{id: id, ty: sp.ContainingType})
		}
	}
	if !sp.Definition {
		u.addFlag(id, dwarf.AttrDeclaration)
		u.constructSubprogramArguments(id, args)
	}
	if sp.Flags.Has(meta.FlagArtificial) {
		u.addFlag(id, dwarf.AttrArtificial)
	}
	if !sp.LocalToUnit {
		u.addFlag(id, dwarf.AttrExternal)
	}
	if sp.Flags.Has(meta.FlagNoReturn) {
		u.addFlag(id, dwarf.AttrNoreturn)
	}
	u.addAccess(id, sp.Flags)
	if sp.Flags.Has(meta.FlagExplicit) {
		u.addFlag(id, dwarf.AttrExplicit)
	}
	if sp.Flags.Has(meta.FlagMainSubprogram) {
		u.addFlag(id, dw.AttrMainSubprogram)
	}
}

func (u *Unit) applySubprogramAttributesToDefinition(sp *meta.Subprogram, id die.ID) {
	context := sp.Scope
	if sp.Declaration != nil {
		context = sp.Declaration.Scope
	}
	u.applySubprogramAttributes(sp, id)
	u.addGlobalName(sp.Name, id, context)
}

// updateSubprogramScopeDIE gives the function's record its address range
// and frame base.
func (cu *CompileUnit) updateSubprogramScopeDIE(fn *Function) die.ID {
	sp := fn.Subprogram
	id := cu.getOrCreateSubprogramDIE(sp)
	cu.attachLowHighPC(id, fn.Begin, fn.End)
	cu.addFrameBase(id)
	cu.ctx.addSubprogramNames(sp, cu.Ref(id))
	return id
}

func (cu *CompileUnit) addFrameBase(id die.ID) {
	regs := cu.ctx.regs
	if regs == nil {
		return
	}
	reg := regs.FrameRegister()
	if !regs.IsPhysical(reg) {
		return
	}
	b := &die.Block{}
	e := expr.New(b, regs, cu.version(), lir.NoReg)
	c, err := expr.NewCursor(nil)
	if err != nil || !e.AddMachineRegExpression(c, reg) {
		return
	}
	e.AddExpression(c)
	cu.addLoc(id, dwarf.AttrFrameBase, e.Finalize())
}

// ConstructSubprogramScope builds the record tree of an emitted function:
// its subprogram record, variables and nested scopes.
func (cu *CompileUnit) ConstructSubprogramScope(fn *Function) error {
	sc := fn.Scopes.CurrentFunctionScope()
	if sc == nil {
		return oerrors.UsageError("function has no scope tree", map[string]interface{}{"function": fn.Subprogram.Name})
	}
	sp := fn.Subprogram
	id := cu.updateSubprogramScopeDIE(fn)
	children, objPtr, _ := cu.createScopeChildren(fn, sc)
	for _, ch := range children {
		cu.arena.AddChild(id, ch)
	}
	cu.addEntry(id, dwarf.AttrObjectPointer, objPtr)
	if sp.Type != nil {
		if args := sp.Type.Types; len(args) > 1 && args[len(args)-1] == nil {
			cu.arena.NewChild(id, dwarf.TagUnspecifiedParameters)
		}
	}
	cu.ctx.processedSPs = append(cu.ctx.processedSPs, spDefinition{cu: cu, sp: sp})
	return cu.ctx.err
}

// ConstructAbstractSubprogramScope builds the abstract instance of an
// inlined function from its abstract scope. Each function gets one.
func (cu *CompileUnit) ConstructAbstractSubprogramScope(fn *Function, sc *scope.LexicalScope) error {
	sp, ok := sc.Desc.(*meta.Subprogram)
	if !ok {
		return oerrors.UsageError("abstract scope is not a function", nil)
	}
	if _, ok := cu.ctx.abstractSPs[sp]; ok {
		return nil
	}
	var parent die.ID
	if sp.Declaration != nil {
		parent = cu.root
		cu.getOrCreateSubprogramDIE(sp.Declaration)
	} else {
		parent = cu.getOrCreateContextDIE(sp.Scope)
	}
	id := cu.arena.NewChild(parent, dwarf.TagSubprogram)
	cu.ctx.abstractSPs[sp] = cu.Ref(id)
	cu.applySubprogramAttributesToDefinition(sp, id)
	cu.addUInt(id, dwarf.AttrInline, 0, dw.InlInlined)
	children, objPtr, _ := cu.createScopeChildren(fn, sc)
	for _, ch := range children {
		cu.arena.AddChild(id, ch)
	}
	cu.addEntry(id, dwarf.AttrObjectPointer, objPtr)
	return cu.ctx.err
}

// AbstractSubprogram returns the abstract instance record of sp.
func (c *Context) AbstractSubprogram(sp *meta.Subprogram) (die.Ref, bool) {
	r, ok := c.abstractSPs[sp]
	return r, ok
}

// createScopeChildren builds the variables of sc followed by its nested
// scopes. The returned records are not attached yet. nonScope counts the
// variable records.
func (cu *CompileUnit) createScopeChildren(fn *Function, sc *scope.LexicalScope) (children []die.ID, objPtr die.ID, nonScope int) {
	objPtr = die.NoID
	for _, v := range fn.vars[sc] {
		id := cu.constructVariableDIE(fn, v, sc.Abstract)
		children = append(children, id)
		if v.Var.Flags.Has(meta.FlagObjectPointer) {
			objPtr = id
		}
	}
	nonScope = len(children)
	for _, ch := range sc.Children {
		children = cu.constructScopeDIE(fn, ch, children)
	}
	return children, objPtr, nonScope
}

// constructScopeDIE appends the record of sc, or the records of its
// children when sc itself is elided, to final.
func (cu *CompileUnit) constructScopeDIE(fn *Function, sc *scope.LexicalScope, final []die.ID) []die.ID {
	if sc == nil || sc.Desc == nil {
		return final
	}
	if sp, ok := sc.Desc.(*meta.Subprogram); ok && sc.Parent != nil {
		id, ok := cu.constructInlinedScopeDIE(fn, sc, sp)
		if !ok {
			return final
		}
		children, _, _ := cu.createScopeChildren(fn, sc)
		for _, ch := range children {
			cu.arena.AddChild(id, ch)
		}
		return append(final, id)
	}

	children, _, nonScope := cu.createScopeChildren(fn, sc)
	// A block with no variables of its own adds nothing a debugger needs;
	// its nested scopes move up to the parent.
	if cu.isLexicalScopeNull(fn, sc) || nonScope == 0 {
		return append(final, children...)
	}
	id := cu.arena.New(dwarf.TagLexDwarfBlock)
	if !sc.Abstract {
		cu.attachRangesOrLowHighPC(id, cu.scopeRanges(fn, sc))
	}
	for _, ch := range children {
		cu.arena.AddChild(id, ch)
	}
	return append(final, id)
}

func (cu *CompileUnit) isLexicalScopeNull(fn *Function, sc *scope.LexicalScope) bool {
	if sc.Abstract {
		return false
	}
	switch len(sc.Ranges) {
	case 0:
		return true
	case 1:
		return fn.Labels.LabelAfter(sc.Ranges[0].Last) == nil
	}
	return false
}

func (cu *CompileUnit) scopeRanges(fn *Function, sc *scope.LexicalScope) []RangeSpan {
	spans := make([]RangeSpan, 0, len(sc.Ranges))
	for _, r := range sc.Ranges {
		begin, end := fn.Labels.LabelBefore(r.First), fn.Labels.LabelAfter(r.Last)
		if begin == nil || end == nil {
			continue
		}
		spans = append(spans, RangeSpan{Begin: begin, End: end})
	}
	return spans
}

func (cu *CompileUnit) constructInlinedScopeDIE(fn *Function, sc *scope.LexicalScope, sp *meta.Subprogram) (die.ID, bool) {
	origin, ok := cu.ctx.abstractSPs[sp]
	if !ok {
		cu.ctx.fail(oerrors.UsageError("inlined scope has no abstract subprogram", map[string]interface{}{"subprogram": sp.Name}))
		return die.NoID, false
	}
	id := cu.arena.New(dwarf.TagInlinedSubroutine)
	cu.addDIEEntry(id, dwarf.AttrAbstractOrigin, origin)
	cu.attachRangesOrLowHighPC(id, cu.scopeRanges(fn, sc))

	if ia := sc.InlinedAt; ia != nil {
		cu.addUInt(id, dwarf.AttrCallFile, 0, uint64(cu.fileID(ia.File())))
		cu.addUInt(id, dwarf.AttrCallLine, 0, uint64(ia.Line))
		if ia.Column != 0 {
			cu.addUInt(id, dwarf.AttrCallColumn, 0, uint64(ia.Column))
		}
		if ia.Discriminator != 0 && cu.version() >= 4 {
			cu.addUInt(id, dw.AttrGNUDiscriminator, 0, uint64(ia.Discriminator))
		}
	}
	cu.ctx.addSubprogramNames(sp, cu.Ref(id))
	return id, true
}

// FinishSubprogramDefinitions completes the records of every emitted
// function: a reference to the abstract instance when the function was
// also inlined, its own attributes otherwise.
func (c *Context) FinishSubprogramDefinitions() {
	for _, d := range c.processedSPs {
		id, ok := d.cu.memo[d.sp]
		if !ok {
			continue
		}
		if abs, ok := c.abstractSPs[d.sp]; ok {
			d.cu.addDIEEntry(id, dwarf.AttrAbstractOrigin, abs)
			continue
		}
		d.cu.applySubprogramAttributesToDefinition(d.sp, id)
	}
}
