// Package meta describes the source-level entities debug information is
// generated for: files, compile units, types, subprograms, scopes and
// variables. Values are created by a front end (or the module loader) and
// are treated as immutable by the emitter; pointer identity is entity
// identity.
package meta

import (
	"debug/dwarf"
	"path"
)

// Node is any debug descriptor.
type Node interface {
	// Tag returns the DWARF tag for this descriptor.
	Tag() dwarf.Tag
}

// Flags is a bit set of descriptor properties.
type Flags uint32

const (
	FlagPrivate Flags = 1 << iota
	FlagProtected
	FlagPublic
	FlagFwdDecl
	FlagArtificial
	FlagExplicit
	FlagPrototyped
	FlagVirtual
	FlagStaticMember
	FlagBitField
	FlagNoReturn
	FlagMainSubprogram
	FlagObjectPointer
)

// Has reports whether all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

// File is a source file.
type File struct {
	Name string
	Dir  string
}

// Path joins Dir and Name unless Name is absolute.
func (f *File) Path() string {
	if f == nil {
		return ""
	}
	if f.Dir == "" || path.IsAbs(f.Name) {
		return f.Name
	}
	return path.Join(f.Dir, f.Name)
}

// Scope is a descriptor that can contain declarations.
type Scope interface {
	Node
	ScopeFile() *File
	ParentScope() Scope
}

// LocalScope is a scope inside a function body.
type LocalScope interface {
	Scope
	// Subprogram returns the function the scope belongs to.
	Subprogram() *Subprogram
}

// CompileUnit is one source translation unit.
type CompileUnit struct {
	File      *File
	Producer  string
	Language  uint16
	Optimized bool
	Flags     string
	// SplitDebugFilename names the .dwo file in split output.
	SplitDebugFilename string

	Globals       []*GlobalVariable
	RetainedTypes []Type
	EnumTypes     []*CompositeType
}

func (*CompileUnit) Tag() dwarf.Tag       { return dwarf.TagCompileUnit }
func (cu *CompileUnit) ScopeFile() *File  { return cu.File }
func (*CompileUnit) ParentScope() Scope   { return nil }
func (cu *CompileUnit) Name() string      { return cu.File.Name }
func (cu *CompileUnit) Directory() string { return cu.File.Dir }

// Namespace is a named declaration scope.
type Namespace struct {
	Name   string
	Parent Scope
	File   *File
}

func (*Namespace) Tag() dwarf.Tag        { return dwarf.TagNamespace }
func (ns *Namespace) ScopeFile() *File   { return ns.File }
func (ns *Namespace) ParentScope() Scope { return ns.Parent }

// Subprogram describes a function declaration or definition.
type Subprogram struct {
	Name        string
	LinkageName string
	Scope       Scope
	File        *File
	Line        int
	ScopeLine   int
	Type        *SubroutineType
	// Unit is set for definitions.
	Unit        *CompileUnit
	Definition  bool
	LocalToUnit bool
	Optimized   bool
	// Declaration links an out-of-line definition to its in-class declaration.
	Declaration    *Subprogram
	ContainingType Type
	Virtuality     int
	VirtualIndex   uint64
	Flags          Flags
	TemplateParams []Node
	// RetainedNodes lists variables declared by the function, including
	// ones that were optimized away.
	RetainedNodes []*LocalVariable
}

func (*Subprogram) Tag() dwarf.Tag             { return dwarf.TagSubprogram }
func (sp *Subprogram) ScopeFile() *File        { return sp.File }
func (sp *Subprogram) ParentScope() Scope      { return sp.Scope }
func (sp *Subprogram) Subprogram() *Subprogram { return sp }

// LexicalBlock is a nested block scope.
type LexicalBlock struct {
	Parent LocalScope
	File   *File
	Line   int
	Column int
}

func (*LexicalBlock) Tag() dwarf.Tag            { return dwarf.TagLexDwarfBlock }
func (b *LexicalBlock) ScopeFile() *File        { return b.File }
func (b *LexicalBlock) ParentScope() Scope      { return b.Parent }
func (b *LexicalBlock) Subprogram() *Subprogram { return b.Parent.Subprogram() }

// Location is a source position attached to an instruction. InlinedAt is the
// call site when the instruction was inlined.
type Location struct {
	Line          int
	Column        int
	Scope         LocalScope
	InlinedAt     *Location
	Discriminator uint32
}

// File returns the file of the location's scope.
func (l *Location) File() *File {
	if l == nil || l.Scope == nil {
		return nil
	}
	return l.Scope.ScopeFile()
}

// InlinedAtScope returns the scope of the outermost call site, i.e. the
// scope in the function that physically contains the instruction.
func (l *Location) InlinedAtScope() LocalScope {
	for l.InlinedAt != nil {
		l = l.InlinedAt
	}
	return l.Scope
}

// SameSource reports whether two locations describe the same line table row.
func (l *Location) SameSource(o *Location) bool {
	if l == nil || o == nil {
		return l == o
	}
	return l.Line == o.Line && l.Column == o.Column && l.File() == o.File() && l.Discriminator == o.Discriminator
}

// LocalVariable is a function local or parameter. Arg is the 1-based argument
// number for parameters, 0 for locals.
type LocalVariable struct {
	Name  string
	Scope LocalScope
	File  *File
	Line  int
	Type  Type
	Arg   int
	Flags Flags
}

func (v *LocalVariable) Tag() dwarf.Tag {
	if v.Arg > 0 {
		return dwarf.TagFormalParameter
	}
	return dwarf.TagVariable
}

// IsParameter reports whether v is a formal parameter.
func (v *LocalVariable) IsParameter() bool { return v.Arg > 0 }

// GlobalStorage places a global in a data section.
type GlobalStorage struct {
	Section string
	Offset  uint64
	Size    uint64
	// TLS globals are addressed relative to the thread pointer.
	TLS bool
	// DLLImport globals live in another image; their address is unknown.
	DLLImport bool
}

// GlobalVariable is a module-level variable.
type GlobalVariable struct {
	Name             string
	LinkageName      string
	Scope            Scope
	File             *File
	Line             int
	Type             Type
	LocalToUnit      bool
	Definition       bool
	StaticDataMember *DerivedType
	// Storage is nil for globals that were optimized out or folded to a
	// constant described by Expr.
	Storage *GlobalStorage
	Expr    *Expression
}

func (*GlobalVariable) Tag() dwarf.Tag { return dwarf.TagVariable }

// InlinedVariable pairs a variable with the call site it was inlined at.
type InlinedVariable struct {
	Var       *LocalVariable
	InlinedAt *Location
}

// ContainingSubprogram walks up from s to the nearest subprogram.
func ContainingSubprogram(s Scope) *Subprogram {
	for s != nil {
		if sp, ok := s.(*Subprogram); ok {
			return sp
		}
		s = s.ParentScope()
	}
	return nil
}
