// Package scope builds the lexical scope tree of one function from the
// source locations of its instructions. Inlined call sites become inlined
// scopes; every inlined subprogram also gets an abstract scope shared by all
// of its inlined instances.
package scope

import (
	"github.com/orizon-lang/dwarfemit/internal/lir"
	"github.com/orizon-lang/dwarfemit/internal/meta"
)

// InsnRange is an inclusive range of instructions.
type InsnRange struct {
	First *lir.Insn
	Last  *lir.Insn
}

// LexicalScope is a node of the scope tree.
type LexicalScope struct {
	Parent    *LexicalScope
	Desc      meta.LocalScope
	InlinedAt *meta.Location
	Abstract  bool
	Children  []*LexicalScope
	Ranges    []InsnRange

	first, last   *lir.Insn
	dfsIn, dfsOut int
}

func newScope(parent *LexicalScope, desc meta.LocalScope, ia *meta.Location, abstract bool) *LexicalScope {
	s := &LexicalScope{Parent: parent, Desc: desc, InlinedAt: ia, Abstract: abstract}
	if parent != nil {
		parent.Children = append(parent.Children, s)
	}
	return s
}

// Dominates reports whether o is s or nested inside s.
func (s *LexicalScope) Dominates(o *LexicalScope) bool {
	if s == o {
		return true
	}
	return s.dfsIn < o.dfsIn && s.dfsOut > o.dfsOut
}

func (s *LexicalScope) openRange(in *lir.Insn) {
	if s.first == nil {
		s.first = in
	}
	if s.Parent != nil {
		s.Parent.openRange(in)
	}
}

func (s *LexicalScope) extendRange(in *lir.Insn) {
	s.last = in
	if s.Parent != nil {
		s.Parent.extendRange(in)
	}
}

func (s *LexicalScope) closeRange(next *LexicalScope) {
	if s.last != nil {
		s.Ranges = append(s.Ranges, InsnRange{First: s.first, Last: s.last})
	}
	s.first, s.last = nil, nil
	if s.Parent != nil && (next == nil || !s.Parent.Dominates(next)) {
		s.Parent.closeRange(next)
	}
}

type inlinedKey struct {
	desc meta.LocalScope
	ia   *meta.Location
}

// Scopes is the scope tree of the current function.
type Scopes struct {
	fn       *lir.Function
	current  *LexicalScope
	regular  map[meta.LocalScope]*LexicalScope
	inlined  map[inlinedKey]*LexicalScope
	abstract map[meta.LocalScope]*LexicalScope
	// abstract subprogram scopes in creation order
	abstractList []*LexicalScope
	blockOf      map[*lir.Insn]int
}

// New returns an empty scope tree.
func New() *Scopes {
	s := &Scopes{}
	s.Reset()
	return s
}

// Reset forgets the current function.
func (s *Scopes) Reset() {
	s.fn = nil
	s.current = nil
	s.regular = make(map[meta.LocalScope]*LexicalScope)
	s.inlined = make(map[inlinedKey]*LexicalScope)
	s.abstract = make(map[meta.LocalScope]*LexicalScope)
	s.abstractList = nil
	s.blockOf = nil
}

// Initialize builds the tree for fn.
func (s *Scopes) Initialize(fn *lir.Function) {
	s.Reset()
	s.fn = fn
	s.blockOf = fn.BlockIndex()
	ranges, starts := s.extractRanges(fn)
	if s.current == nil {
		return
	}
	n := 0
	s.current.number(&n)
	s.assignRanges(ranges, starts)
}

// Empty reports whether the function has no scope information.
func (s *Scopes) Empty() bool { return s.current == nil }

// CurrentFunctionScope returns the scope of the function itself.
func (s *Scopes) CurrentFunctionScope() *LexicalScope { return s.current }

// AbstractScopes returns the abstract scopes of inlined subprograms.
func (s *Scopes) AbstractScopes() []*LexicalScope { return s.abstractList }

// BlockOf returns the basic block index of an instruction of the function.
func (s *Scopes) BlockOf(in *lir.Insn) int {
	if b, ok := s.blockOf[in]; ok {
		return b
	}
	return -1
}

func (s *Scopes) extractRanges(fn *lir.Function) ([]InsnRange, map[*lir.Insn]*LexicalScope) {
	var ranges []InsnRange
	starts := make(map[*lir.Insn]*LexicalScope)
	for _, bb := range fn.Blocks {
		var begin, prev *lir.Insn
		var prevLoc *meta.Location
		for _, in := range bb.Insns {
			if in.Loc == nil {
				prev = in
				continue
			}
			if in.Loc == prevLoc {
				prev = in
				continue
			}
			if in.Meta || in.IsDebugValue() {
				continue
			}
			if begin != nil {
				ranges = append(ranges, InsnRange{First: begin, Last: prev})
				starts[begin] = s.getOrCreate(prevLoc.Scope, prevLoc.InlinedAt)
			}
			begin = in
			prev = in
			prevLoc = in.Loc
		}
		if begin != nil && prev != nil && prevLoc != nil {
			ranges = append(ranges, InsnRange{First: begin, Last: prev})
			starts[begin] = s.getOrCreate(prevLoc.Scope, prevLoc.InlinedAt)
		}
	}
	return ranges, starts
}

func (s *Scopes) assignRanges(ranges []InsnRange, starts map[*lir.Insn]*LexicalScope) {
	var prev *LexicalScope
	for _, r := range ranges {
		sc := starts[r.First]
		if sc == nil || sc.dfsOut == 0 {
			// scope outside the function's tree
			continue
		}
		if prev != nil && !prev.Dominates(sc) {
			prev.closeRange(sc)
		}
		sc.openRange(r.First)
		sc.extendRange(r.Last)
		prev = sc
	}
	if prev != nil {
		prev.closeRange(nil)
	}
}

func (s *LexicalScope) number(n *int) {
	*n++
	s.dfsIn = *n
	for _, c := range s.Children {
		c.number(n)
	}
	*n++
	s.dfsOut = *n
}

func (s *Scopes) getOrCreate(desc meta.LocalScope, ia *meta.Location) *LexicalScope {
	if desc == nil {
		return nil
	}
	if ia != nil {
		s.GetOrCreateAbstractScope(desc)
		return s.getOrCreateInlined(desc, ia)
	}
	return s.getOrCreateRegular(desc)
}

func (s *Scopes) getOrCreateRegular(desc meta.LocalScope) *LexicalScope {
	if sc, ok := s.regular[desc]; ok {
		return sc
	}
	var parent *LexicalScope
	if b, ok := desc.(*meta.LexicalBlock); ok {
		parent = s.getOrCreate(b.Parent, nil)
	}
	sc := newScope(parent, desc, nil, false)
	s.regular[desc] = sc
	if parent == nil && s.current == nil {
		if sp, ok := desc.(*meta.Subprogram); ok && (s.fn == nil || s.fn.Subprogram == nil || s.fn.Subprogram == sp) {
			s.current = sc
		}
	}
	return sc
}

func (s *Scopes) getOrCreateInlined(desc meta.LocalScope, ia *meta.Location) *LexicalScope {
	k := inlinedKey{desc: desc, ia: ia}
	if sc, ok := s.inlined[k]; ok {
		return sc
	}
	var parent *LexicalScope
	if b, ok := desc.(*meta.LexicalBlock); ok {
		parent = s.getOrCreateInlined(b.Parent, ia)
	} else {
		parent = s.getOrCreate(ia.Scope, ia.InlinedAt)
	}
	sc := newScope(parent, desc, ia, false)
	s.inlined[k] = sc
	return sc
}

// GetOrCreateAbstractScope returns the abstract scope for desc.
func (s *Scopes) GetOrCreateAbstractScope(desc meta.LocalScope) *LexicalScope {
	if sc, ok := s.abstract[desc]; ok {
		return sc
	}
	var parent *LexicalScope
	if b, ok := desc.(*meta.LexicalBlock); ok {
		parent = s.GetOrCreateAbstractScope(b.Parent)
	}
	sc := newScope(parent, desc, nil, true)
	s.abstract[desc] = sc
	if _, ok := desc.(*meta.Subprogram); ok {
		s.abstractList = append(s.abstractList, sc)
	}
	return sc
}

// FindLexicalScope returns the non-inlined scope for desc.
func (s *Scopes) FindLexicalScope(desc meta.LocalScope) *LexicalScope {
	return s.regular[desc]
}

// FindInlinedScope returns the scope for desc inlined at ia.
func (s *Scopes) FindInlinedScope(desc meta.LocalScope, ia *meta.Location) *LexicalScope {
	return s.inlined[inlinedKey{desc: desc, ia: ia}]
}

// FindAbstractScope returns the abstract scope for desc, if one exists.
func (s *Scopes) FindAbstractScope(desc meta.LocalScope) *LexicalScope {
	return s.abstract[desc]
}

// FindScope returns the scope an instruction location belongs to.
func (s *Scopes) FindScope(loc *meta.Location) *LexicalScope {
	if loc == nil || loc.Scope == nil {
		return nil
	}
	if loc.InlinedAt != nil {
		return s.FindInlinedScope(loc.Scope, loc.InlinedAt)
	}
	return s.FindLexicalScope(loc.Scope)
}
