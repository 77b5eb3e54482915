// Package debug drives debug-info emission for one module. The code
// generator reports functions and instructions in layout order; the emitter
// builds records as it goes and writes every section through a sink when
// the module ends.
package debug

import (
	"fmt"

	"github.com/orizon-lang/dwarfemit/internal/cli"
	"github.com/orizon-lang/dwarfemit/internal/debug/accel"
	"github.com/orizon-lang/dwarfemit/internal/debug/expr"
	"github.com/orizon-lang/dwarfemit/internal/debug/history"
	"github.com/orizon-lang/dwarfemit/internal/debug/loclist"
	"github.com/orizon-lang/dwarfemit/internal/debug/scope"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	"github.com/orizon-lang/dwarfemit/internal/debug/typeunit"
	"github.com/orizon-lang/dwarfemit/internal/debug/unit"
	oerrors "github.com/orizon-lang/dwarfemit/internal/errors"
	"github.com/orizon-lang/dwarfemit/internal/lir"
	"github.com/orizon-lang/dwarfemit/internal/meta"
	"github.com/orizon-lang/dwarfemit/internal/target"
)

// Registers is the register description the emitter needs.
type Registers interface {
	unit.Registers
	history.Registers
}

// Options selects what the emitter produces.
type Options struct {
	Unit unit.Options
	// TypeUnits moves types with an ODR identifier into type units.
	TypeUnits bool
	// Aranges writes .debug_aranges.
	Aranges bool
}

type state int

const (
	stateIdle state = iota
	stateModule
	stateFunction
	stateDone
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateModule:
		return "module"
	case stateFunction:
		return "function"
	}
	return "done"
}

// Emitter is the debug-info writer of one module. It is not safe for
// concurrent use; separate modules use separate emitters.
type Emitter struct {
	opts Options
	regs Registers
	log  *cli.Logger

	ctx    *unit.Context
	types  *typeunit.Cache
	scopes *scope.Scopes
	st     state

	// current function
	fn          *lir.Function
	cu          *unit.CompileUnit
	hist        *history.Map
	labels      *functionLabels
	begin, end  *sink.Symbol
	prevLoc     *meta.Location
	prologueEnd *lir.Insn
	cur         *lir.Insn

	functions int
}

// NewEmitter returns an emitter for one module.
func NewEmitter(opts Options, regs Registers, log *cli.Logger) *Emitter {
	return &Emitter{opts: opts, regs: regs, log: log, scopes: scope.New()}
}

// Context returns the unit context of the module, nil before BeginModule.
func (e *Emitter) Context() *unit.Context { return e.ctx }

// TypeUnits returns the type unit cache, nil when type units are off.
func (e *Emitter) TypeUnits() *typeunit.Cache { return e.types }

func (e *Emitter) expect(s state, op string) error {
	if e.st != s {
		return oerrors.UsageError(fmt.Sprintf("%s called in state %s, want %s", op, e.st, s), nil)
	}
	return nil
}

// BeginModule creates a compile unit for every source unit and builds its
// globals, retained types and enumerations.
func (e *Emitter) BeginModule(units []*meta.CompileUnit) error {
	if err := e.expect(stateIdle, "BeginModule"); err != nil {
		return err
	}
	e.ctx = unit.NewContext(e.opts.Unit, e.regs, e.log)
	if e.opts.TypeUnits {
		e.types = typeunit.New(e.ctx, e.log)
	}
	for _, node := range units {
		if node == nil || node.File == nil {
			return oerrors.InvalidInput("module", "compile unit without a file")
		}
		e.ctx.NewCompileUnit(node).ConstructGlobals()
	}
	e.st = stateModule
	e.log.Debug("module: %d compile units", len(units))
	return e.ctx.Err()
}

// SkippedNonDebugFunction records that a function without debug info was
// laid out, so unit ranges on either side of it stay separate.
func (e *Emitter) SkippedNonDebugFunction() {
	if e.ctx != nil {
		e.ctx.SkippedNonDebugFunction()
	}
}

// BeginFunction prepares scopes, variable history and label requests for
// fn. Functions without a subprogram or without located instructions are
// treated as skipped.
func (e *Emitter) BeginFunction(fn *lir.Function) error {
	if err := e.expect(stateModule, "BeginFunction"); err != nil {
		return err
	}
	e.st = stateFunction
	e.fn = fn
	sp := fn.Subprogram
	if sp == nil {
		return nil
	}
	e.scopes.Initialize(fn)
	if e.scopes.Empty() {
		return nil
	}
	e.cu = e.ctx.CompileUnitFor(sp.Unit)
	if e.cu == nil {
		return oerrors.UsageError("function of an unknown compile unit", map[string]interface{}{"function": fn.Name})
	}

	e.begin = sink.NewSymbolAt(fn.Name, fn.Section, fn.Start())
	e.end = sink.NewSymbolAt(fn.Name+".end", fn.Section, fn.End())
	e.labels = newFunctionLabels(fn, e.end)
	e.hist = history.Calculate(fn, e.regs)

	for _, v := range e.hist.Vars() {
		ranges := e.hist.Ranges(v)
		for _, r := range ranges {
			e.labels.requestBefore(r.Start)
			e.labels.requestAfter(r.End)
		}
	}
	e.requestScopeLabels(e.scopes.CurrentFunctionScope())

	e.prologueEnd = findPrologueEnd(fn)
	e.prevLoc = nil
	lines := e.cu.Lines()
	lines.BeginSequence()
	if e.prologueEnd != nil {
		ln := sp.ScopeLine
		if ln == 0 {
			ln = sp.Line
		}
		lines.AddRow(e.begin, &meta.Location{Line: ln, Scope: sp}, false)
	}
	e.log.Debug("function %s: %d variables", fn.Name, e.hist.Len())
	return nil
}

func (e *Emitter) requestScopeLabels(sc *scope.LexicalScope) {
	if sc == nil {
		return
	}
	for _, r := range sc.Ranges {
		e.labels.requestBefore(r.First)
		e.labels.requestAfter(r.Last)
	}
	for _, ch := range sc.Children {
		e.requestScopeLabels(ch)
	}
}

// findPrologueEnd returns the first located instruction past the frame
// setup.
func findPrologueEnd(fn *lir.Function) *lir.Insn {
	for _, in := range fn.Insns() {
		if in.FrameSetup || in.Meta || in.IsDebugValue() || in.Loc == nil {
			continue
		}
		return in
	}
	return nil
}

func (e *Emitter) tracking() bool { return e.labels != nil }

// BeginInstruction places requested labels and records a line row when
// the source location changes.
func (e *Emitter) BeginInstruction(in *lir.Insn) error {
	if err := e.expect(stateFunction, "BeginInstruction"); err != nil {
		return err
	}
	if e.cur != nil {
		return oerrors.UsageError("BeginInstruction before EndInstruction", map[string]interface{}{"insn": in.String()})
	}
	e.cur = in
	if !e.tracking() {
		return nil
	}
	e.labels.visitBefore(in)
	if in.Meta || in.IsDebugValue() || in.Loc == nil {
		return nil
	}
	if e.prevLoc != nil && sameLine(e.prevLoc, in.Loc) {
		return nil
	}
	e.prevLoc = in.Loc
	e.cu.Lines().AddRow(e.labels.at(in.Offset), in.Loc, in == e.prologueEnd)
	return nil
}

func sameLine(a, b *meta.Location) bool {
	return a.Line == b.Line && a.Column == b.Column && a.Scope == b.Scope &&
		a.InlinedAt == b.InlinedAt && a.Discriminator == b.Discriminator
}

// EndInstruction places the label after the current instruction if one
// was requested.
func (e *Emitter) EndInstruction() error {
	if err := e.expect(stateFunction, "EndInstruction"); err != nil {
		return err
	}
	if e.cur == nil {
		return oerrors.UsageError("EndInstruction without BeginInstruction", nil)
	}
	if e.tracking() {
		e.labels.visitAfter(e.cur)
	}
	e.cur = nil
	return nil
}

// EndFunction collects the function's variables and builds its records.
func (e *Emitter) EndFunction() error {
	if err := e.expect(stateFunction, "EndFunction"); err != nil {
		return err
	}
	defer e.resetFunction()
	if !e.tracking() {
		e.ctx.SkippedNonDebugFunction()
		return nil
	}
	if e.cur != nil {
		return oerrors.UsageError("EndFunction inside an instruction", map[string]interface{}{"function": e.fn.Name})
	}

	var layout expr.FrameLayout = target.NewFrameLayout(e.fn)
	f := e.ctx.NewFunction(e.fn.Subprogram, e.begin, e.end, layout, e.scopes, e.labels)
	e.collectVariableInfo(f)

	for _, abs := range e.scopes.AbstractScopes() {
		sp := abs.Desc.Subprogram()
		for _, v := range sp.RetainedNodes {
			f.EnsureAbstractVariable(v)
		}
		if err := e.cu.ConstructAbstractSubprogramScope(f, abs); err != nil {
			return err
		}
	}

	e.cu.AddRange(unit.RangeSpan{Begin: e.begin, End: e.end})
	if err := e.cu.ConstructSubprogramScope(f); err != nil {
		return err
	}
	e.cu.Lines().EndSequence(e.end)
	e.functions++
	return e.ctx.Err()
}

func (e *Emitter) resetFunction() {
	e.st = stateModule
	e.fn, e.cu, e.hist, e.labels = nil, nil, nil, nil
	e.begin, e.end, e.prevLoc, e.prologueEnd, e.cur = nil, nil, nil, nil, nil
}

// collectVariableInfo gives every variable of the function a location:
// stack slots first, then value histories, then declared variables that
// were never seen.
func (e *Emitter) collectVariableInfo(f *unit.Function) {
	processed := make(map[meta.InlinedVariable]bool)

	frame := make(map[meta.InlinedVariable]*unit.Variable)
	for _, fv := range e.fn.FrameVariables {
		var ia *meta.Location
		if fv.Loc != nil {
			ia = fv.Loc.InlinedAt
		}
		iv := meta.InlinedVariable{Var: fv.Var, InlinedAt: ia}
		sc := e.scopes.FindScope(&meta.Location{Scope: fv.Var.Scope, InlinedAt: ia})
		if sc == nil {
			continue
		}
		idx := unit.FrameIndex{Slot: fv.Slot, Expr: fv.Expr}
		if v, ok := frame[iv]; ok {
			v.Frame = append(v.Frame, idx)
			continue
		}
		f.EnsureAbstractVariableIfScoped(fv.Var)
		v := unit.NewVariable(fv.Var, ia)
		v.Frame = []unit.FrameIndex{idx}
		frame[iv] = v
		processed[iv] = true
		f.AddScopeVariable(sc, v)
	}

	for _, iv := range e.hist.Vars() {
		if processed[iv] {
			continue
		}
		ranges := e.hist.Ranges(iv)
		if len(ranges) == 0 {
			continue
		}
		sc := e.scopes.FindScope(&meta.Location{Scope: iv.Var.Scope, InlinedAt: iv.InlinedAt})
		if sc == nil {
			continue
		}
		processed[iv] = true
		f.EnsureAbstractVariableIfScoped(iv.Var)
		v := unit.NewVariable(iv.Var, iv.InlinedAt)
		if len(ranges) == 1 && e.validThroughout(ranges[0].Start, ranges[0].End) {
			v.Value = ranges[0].Value()
		} else {
			entries := loclist.Build(ranges, e.labels)
			v.LocList = e.ctx.Locs.Add(int(e.cu.ID()), entries, loclist.IsSigned(iv.Var.Type))
		}
		f.AddScopeVariable(sc, v)
	}

	for _, lv := range e.fn.Subprogram.RetainedNodes {
		iv := meta.InlinedVariable{Var: lv}
		if processed[iv] {
			continue
		}
		sc := e.scopes.FindLexicalScope(lv.Scope)
		if sc == nil {
			continue
		}
		f.EnsureAbstractVariableIfScoped(lv)
		f.AddScopeVariable(sc, unit.NewVariable(lv, nil))
	}
}

// validThroughout reports whether a single DBG_VALUE describes its variable
// over the whole of the variable's scope, so that a plain location can
// replace a list. end is the instruction that closes the value, or nil.
func (e *Emitter) validThroughout(dbg, end *lir.Insn) bool {
	d := dbg.Debug
	if d == nil || d.Loc == nil {
		return false
	}
	sc := e.scopes.FindScope(d.Loc)
	if sc == nil || len(sc.Ranges) == 0 {
		return false
	}
	block := e.scopes.BlockOf(dbg)
	if e.scopes.BlockOf(sc.Ranges[0].First) != block {
		return false
	}

	// Nothing of the scope may run before the value in its block.
	insns := e.fn.Blocks[block].Insns
	pos := -1
	for i, in := range insns {
		if in == dbg {
			pos = i
			break
		}
	}
	for i := pos - 1; i >= 0; i-- {
		pred := insns[i]
		if pred.FrameSetup {
			break
		}
		if pred.Loc == nil || pred.Meta || pred.IsDebugValue() {
			continue
		}
		if pred.Loc.Scope == d.Loc.Scope {
			return false
		}
		ps := e.scopes.FindScope(pred.Loc)
		if ps == nil || sc.Dominates(ps) {
			return false
		}
	}

	if end == nil {
		return true
	}
	if e.scopes.BlockOf(sc.Ranges[len(sc.Ranges)-1].Last) != block {
		return false
	}
	// A lone constant in the entry block holds for the whole function.
	return d.Kind == lir.ValueImmediate && block == 0
}

// EndModule completes every unit and writes all sections to out.
func (e *Emitter) EndModule(out sink.Sink) error {
	if err := e.expect(stateModule, "EndModule"); err != nil {
		return err
	}
	e.st = stateDone
	ctx := e.ctx
	if err := ctx.Finalize(); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	ctx.Layout()

	if err := ctx.EmitUnits(out); err != nil {
		return fmt.Errorf("emit units: %w", err)
	}
	ctx.EmitLines(out)
	if err := ctx.EmitLocations(out); err != nil {
		return fmt.Errorf("emit locations: %w", err)
	}
	ctx.EmitRanges(out)
	if e.opts.Aranges {
		accel.EmitAranges(out, ctx)
	}
	if o := e.opts.Unit; o.PubNames || o.GNUPubNames {
		accel.EmitPubSections(out, ctx, o.GNUPubNames)
	}
	if e.opts.Unit.Accel {
		if err := accel.EmitAppleTables(out, ctx); err != nil {
			return fmt.Errorf("accelerator tables: %w", err)
		}
	}
	ctx.EmitAddrPool(out)
	ctx.EmitStrings(out)
	e.log.Debug("module done: %d functions, %d type units, %d location lists", e.functions, len(ctx.TypeUnitList()), ctx.Locs.Len())
	return ctx.Err()
}

// EmitModule runs the whole lifecycle over a laid-out module.
func (e *Emitter) EmitModule(m *lir.Module, out sink.Sink) error {
	if err := e.BeginModule(m.Units); err != nil {
		return err
	}
	for _, fn := range m.Functions {
		if fn.Subprogram == nil {
			e.SkippedNonDebugFunction()
			continue
		}
		if err := e.emitFunction(fn); err != nil {
			return fmt.Errorf("function %s: %w", fn.Name, err)
		}
	}
	return e.EndModule(out)
}

func (e *Emitter) emitFunction(fn *lir.Function) error {
	if err := e.BeginFunction(fn); err != nil {
		return err
	}
	for _, in := range fn.Insns() {
		if err := e.BeginInstruction(in); err != nil {
			return err
		}
		if err := e.EndInstruction(); err != nil {
			return err
		}
	}
	return e.EndFunction()
}
