package meta

import (
	"debug/dwarf"

	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
)

// TypeCommon is a struct containing fields common to all type descriptors.
type TypeCommon struct {
	Name       string
	Scope      Scope
	File       *File
	Line       int
	SizeBits   uint64
	AlignBits  uint64
	OffsetBits uint64
	Flags      Flags
}

// Common returns the shared fields.
func (t *TypeCommon) Common() *TypeCommon { return t }

// Type is any type descriptor.
type Type interface {
	Node
	Common() *TypeCommon
}

// BasicType is a scalar type.
type BasicType struct {
	TypeCommon
	Encoding uint8
}

func (*BasicType) Tag() dwarf.Tag { return dwarf.TagBaseType }

// IsSigned reports whether constants of the type are signed.
func (t *BasicType) IsSigned() bool {
	return t.Encoding == dw.ATESigned || t.Encoding == dw.ATESignedChar
}

// DerivedType is a type built from another type: pointers, references,
// typedefs, qualifiers, members and inheritance.
type DerivedType struct {
	TypeCommon
	Kind dwarf.Tag
	Base Type
	// ConstValue is the value of a constant static member.
	ConstValue *int64
}

func (t *DerivedType) Tag() dwarf.Tag { return t.Kind }

// CompositeType is a structure, class, union, array or enumeration.
type CompositeType struct {
	TypeCommon
	Kind dwarf.Tag
	// Base is the element type of arrays and the underlying type of enums.
	Base     Type
	Elements []Node
	// Identifier is the ODR name. Types with an identifier may be placed in
	// a type unit.
	Identifier     string
	TemplateParams []Node
	ContainingType Type
}

func (t *CompositeType) Tag() dwarf.Tag     { return t.Kind }
func (t *CompositeType) ScopeFile() *File   { return t.File }
func (t *CompositeType) ParentScope() Scope { return t.Scope }

// IsForwardDecl reports whether t is only declared.
func (t *CompositeType) IsForwardDecl() bool { return t.Flags.Has(FlagFwdDecl) }

// SubroutineType is a function signature. Types[0] is the return type and
// is nil for void.
type SubroutineType struct {
	TypeCommon
	Types []Type
}

func (*SubroutineType) Tag() dwarf.Tag { return dwarf.TagSubroutineType }

// Subrange is one dimension of an array. Count is -1 when unknown.
type Subrange struct {
	Count      int64
	LowerBound int64
}

func (*Subrange) Tag() dwarf.Tag { return dwarf.TagSubrangeType }

// Enumerator is one named enumeration value.
type Enumerator struct {
	Name     string
	Value    int64
	Unsigned bool
}

func (*Enumerator) Tag() dwarf.Tag { return dwarf.TagEnumerator }

// TemplateTypeParameter binds a template type argument.
type TemplateTypeParameter struct {
	Name string
	Type Type
}

func (*TemplateTypeParameter) Tag() dwarf.Tag { return dwarf.TagTemplateTypeParameter }

// TemplateValueParameter binds a template value argument: either a constant
// or the address of a global.
type TemplateValueParameter struct {
	Name   string
	Type   Type
	Value  int64
	Global *GlobalVariable
}

func (*TemplateValueParameter) Tag() dwarf.Tag { return dwarf.TagTemplateValueParameter }

// ResolveBase strips typedefs and qualifiers until a basic type is found.
func ResolveBase(t Type) *BasicType {
	for t != nil {
		switch tt := t.(type) {
		case *BasicType:
			return tt
		case *DerivedType:
			switch tt.Kind {
			case dwarf.TagTypedef, dwarf.TagConstType, dwarf.TagVolatileType, dwarf.TagRestrictType, dwarf.TagMember:
				t = tt.Base
				continue
			}
			return nil
		case *CompositeType:
			if tt.Kind == dwarf.TagEnumerationType {
				t = tt.Base
				continue
			}
			return nil
		default:
			return nil
		}
	}
	return nil
}

// SizeInBits returns the size of t, looking through typedefs and
// qualifiers that do not carry their own size.
func SizeInBits(t Type) uint64 {
	for t != nil {
		c := t.Common()
		if c.SizeBits != 0 {
			return c.SizeBits
		}
		d, ok := t.(*DerivedType)
		if !ok || d.Kind == dwarf.TagPointerType || d.Kind == dwarf.TagReferenceType {
			return c.SizeBits
		}
		t = d.Base
	}
	return 0
}
