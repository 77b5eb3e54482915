package unit

import (
	"debug/dwarf"

	"github.com/go-delve/delve/pkg/dwarf/op"

	"github.com/orizon-lang/dwarfemit/internal/debug/die"
	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/debug/loclist"
	"github.com/orizon-lang/dwarfemit/internal/meta"
)

// Outcome says what happened to a type offered to a type unit.
type Outcome uint8

const (
	// Committed types live in a type unit; the requester only refers to
	// them by signature.
	Committed Outcome = iota
	// Inline types are built in the requesting unit.
	Inline
	// Abandoned types were rolled back; the requester gets a bare record.
	Abandoned
)

// TypeUnitResult is the answer to a type unit request.
type TypeUnitResult struct {
	Signature uint64
	Outcome   Outcome
}

// TypeUnits decides whether a composite type gets its own type unit.
type TypeUnits interface {
	AddType(requester *Unit, owner *CompileUnit, ct *meta.CompositeType) TypeUnitResult
}

func (u *Unit) addType(id die.ID, t meta.Type, attr dwarf.Attr) {
	if t == nil {
		return
	}
	u.addEntry(id, attr, u.getOrCreateTypeDIE(t))
}

// getOrCreateTypeDIE returns the record of t in this unit, building it on
// first use.
func (u *Unit) getOrCreateTypeDIE(t meta.Type) die.ID {
	if t == nil {
		return die.NoID
	}
	if d, ok := t.(*meta.DerivedType); ok && d.Kind == dwarf.TagRestrictType && u.version() <= 2 {
		return u.getOrCreateTypeDIE(d.Base)
	}
	scope := t.Common().Scope
	parent := u.getOrCreateContextDIE(scope)
	if id, ok := u.memo[t]; ok {
		return id
	}
	id := u.createAndAdd(t.Tag(), parent, t)
	u.updateAcceleratorTables(scope, t, id)

	switch tt := t.(type) {
	case *meta.BasicType:
		u.constructBasicType(id, tt)
	case *meta.SubroutineType:
		u.constructSubroutineType(id, tt)
	case *meta.DerivedType:
		u.constructDerivedType(id, tt)
	case *meta.CompositeType:
		if u.ctx.TypeUnits != nil && tt.Identifier != "" && !tt.IsForwardDecl() {
			res := u.ctx.TypeUnits.AddType(u, u.cu, tt)
			switch res.Outcome {
			case Committed:
				u.addFlag(id, dwarf.AttrDeclaration)
				u.rec(id).Add(die.Signature(dw.AttrSignature, res.Signature))
			case Inline:
				u.constructCompositeType(id, tt)
			}
			return id
		}
		u.constructCompositeType(id, tt)
	}
	return id
}

func (u *Unit) updateAcceleratorTables(context meta.Scope, t meta.Type, id die.ID) {
	c := t.Common()
	if c.Name == "" || c.Flags.Has(meta.FlagFwdDecl) {
		return
	}
	var flags uint8
	if _, ok := t.(*meta.CompositeType); ok {
		flags = dw.FlagTypeImplementation
	}
	u.ctx.addAccelType(c.Name, u.Ref(id), flags)
	switch context.(type) {
	case nil, *meta.CompileUnit, *meta.Namespace:
		u.addGlobalType(t, id, context)
	}
}

func (u *Unit) constructBasicType(id die.ID, t *meta.BasicType) {
	if t.Name != "" {
		u.addString(id, dwarf.AttrName, t.Name)
	}
	u.addUInt(id, dwarf.AttrEncoding, dw.FormData1, uint64(t.Encoding))
	u.addUInt(id, dwarf.AttrByteSize, 0, t.SizeBits>>3)
}

func (u *Unit) constructDerivedType(id die.ID, t *meta.DerivedType) {
	u.addType(id, t.Base, dwarf.AttrType)
	if t.Name != "" {
		u.addString(id, dwarf.AttrName, t.Name)
	}
	switch t.Kind {
	case dwarf.TagPointerType, dwarf.TagReferenceType, dwarf.TagRvalueReferenceType, dwarf.TagPtrToMemberType:
	default:
		if size := t.SizeBits >> 3; size != 0 {
			u.addUInt(id, dwarf.AttrByteSize, 0, size)
		}
	}
	if !t.Flags.Has(meta.FlagFwdDecl) {
		u.addSourceLine(id, t.Line, t.File)
	}
}

func (u *Unit) isCLike() bool {
	switch u.lang {
	case dw.LangC89, dw.LangC99, dw.LangObjC:
		return true
	}
	return false
}

func (u *Unit) constructSubroutineType(id die.ID, t *meta.SubroutineType) {
	args := t.Types
	if len(args) > 0 && args[0] != nil {
		u.addType(id, args[0], dwarf.AttrType)
	}
	u.constructSubprogramArguments(id, args)
	// A lone trailing nil is "(...)" with no named parameters.
	prototyped := !(len(args) == 2 && args[1] == nil)
	if prototyped && u.isCLike() {
		u.addFlag(id, dwarf.AttrPrototyped)
	}
}

func (u *Unit) constructSubprogramArguments(id die.ID, args []meta.Type) {
	for i := 1; i < len(args); i++ {
		if args[i] == nil {
			u.arena.NewChild(id, dwarf.TagUnspecifiedParameters)
			continue
		}
		arg := u.arena.NewChild(id, dwarf.TagFormalParameter)
		u.addType(arg, args[i], dwarf.AttrType)
		if args[i].Common().Flags.Has(meta.FlagArtificial) {
			u.addFlag(arg, dwarf.AttrArtificial)
		}
	}
}

func (u *Unit) constructCompositeType(id die.ID, t *meta.CompositeType) {
	switch t.Kind {
	case dwarf.TagArrayType:
		u.constructArrayType(id, t)
	case dwarf.TagEnumerationType:
		u.constructEnumType(id, t)
	case dwarf.TagStructType, dwarf.TagClassType, dwarf.TagUnionType:
		for _, el := range t.Elements {
			switch e := el.(type) {
			case *meta.Subprogram:
				u.getOrCreateSubprogramDIE(e)
			case *meta.DerivedType:
				switch {
				case e.Kind == dwarf.TagFriend:
					f := u.arena.NewChild(id, dwarf.TagFriend)
					u.addType(f, e.Base, dwarf.AttrFriend)
				case e.Flags.Has(meta.FlagStaticMember):
					u.getOrCreateStaticMemberDIE(e)
				default:
					u.constructMemberDIE(id, e)
				}
			}
		}
		if t.ContainingType != nil {
			u.addType(id, t.ContainingType, dwarf.AttrContainingType)
		}
		u.addTemplateParams(id, t.TemplateParams)
	}

	if t.Name != "" {
		u.addString(id, dwarf.AttrName, t.Name)
	}
	switch t.Kind {
	case dwarf.TagEnumerationType, dwarf.TagClassType, dwarf.TagStructType, dwarf.TagUnionType:
		fwd := t.IsForwardDecl()
		if size := t.SizeBits >> 3; size != 0 {
			u.addUInt(id, dwarf.AttrByteSize, 0, size)
		} else if !fwd {
			u.addUInt(id, dwarf.AttrByteSize, 0, 0)
		}
		if fwd {
			u.addFlag(id, dwarf.AttrDeclaration)
		} else {
			u.addSourceLine(id, t.Line, t.File)
		}
	}
}

// defaultLowerBound is the array lower bound a debugger assumes for the
// unit's language, or -1 when it assumes none.
func (u *Unit) defaultLowerBound() int64 {
	switch u.lang {
	case dw.LangC89, dw.LangC, dw.LangC99, dw.LangC11, dw.LangObjC,
		dw.LangCPlusPlus, dw.LangCPlusPlus11, dw.LangGo, dw.LangRust:
		return 0
	case dw.LangFortran90:
		return 1
	}
	return -1
}

// indexTypeDIE returns the base type subranges of this unit refer to.
func (u *Unit) indexTypeDIE() die.ID {
	if u.index != die.NoID {
		return u.index
	}
	u.index = u.arena.NewChild(u.root, dwarf.TagBaseType)
	u.addString(u.index, dwarf.AttrName, "__ARRAY_SIZE_TYPE__")
	u.addUInt(u.index, dwarf.AttrByteSize, 0, 8)
	u.addUInt(u.index, dwarf.AttrEncoding, dw.FormData1, dw.ATEUnsigned)
	return u.index
}

func (u *Unit) constructArrayType(id die.ID, t *meta.CompositeType) {
	u.addType(id, t.Base, dwarf.AttrType)
	idx := u.indexTypeDIE()
	for _, el := range t.Elements {
		sr, ok := el.(*meta.Subrange)
		if !ok {
			continue
		}
		sub := u.arena.NewChild(id, dwarf.TagSubrangeType)
		u.addEntry(sub, dwarf.AttrType, idx)
		if def := u.defaultLowerBound(); def == -1 || sr.LowerBound != def {
			u.addUInt(sub, dwarf.AttrLowerBound, 0, uint64(sr.LowerBound))
		}
		if sr.Count != -1 {
			u.addUInt(sub, dwarf.AttrCount, 0, uint64(sr.Count))
		}
	}
}

func (u *Unit) constructEnumType(id die.ID, t *meta.CompositeType) {
	baseUnsigned := false
	if t.Base != nil {
		baseUnsigned = !loclist.IsSigned(t.Base)
		if u.version() >= 3 {
			u.addType(id, t.Base, dwarf.AttrType)
		}
	}
	for _, el := range t.Elements {
		e, ok := el.(*meta.Enumerator)
		if !ok {
			continue
		}
		en := u.arena.NewChild(id, dwarf.TagEnumerator)
		u.addString(en, dwarf.AttrName, e.Name)
		u.addConstantValue(en, e.Unsigned || baseUnsigned, uint64(e.Value))
	}
}

// baseTypeSize returns the size of the storage a member lives in, looking
// through typedefs and qualifiers but not through references.
func baseTypeSize(t meta.Type) uint64 {
	d, ok := t.(*meta.DerivedType)
	if !ok {
		return t.Common().SizeBits
	}
	switch d.Kind {
	case dwarf.TagMember, dwarf.TagTypedef, dwarf.TagConstType, dwarf.TagVolatileType, dwarf.TagRestrictType:
	default:
		return d.SizeBits
	}
	if d.Base == nil {
		return d.SizeBits
	}
	if k := d.Base.Tag(); k == dwarf.TagReferenceType || k == dwarf.TagRvalueReferenceType {
		return d.SizeBits
	}
	return baseTypeSize(d.Base)
}

func (u *Unit) constructMemberDIE(parent die.ID, dt *meta.DerivedType) {
	id := u.arena.NewChild(parent, dt.Kind)
	if dt.Name != "" {
		u.addString(id, dwarf.AttrName, dt.Name)
	}
	u.addType(id, dt.Base, dwarf.AttrType)
	u.addSourceLine(id, dt.Line, dt.File)

	if dt.Kind == dwarf.TagInheritance && dt.Flags.Has(meta.FlagVirtual) {
		// The base offset is read from the vtable: *(*this - off) + this.
		b := &die.Block{}
		b.EmitOp(op.DW_OP_dup)
		b.EmitOp(op.DW_OP_deref)
		b.EmitOp(op.DW_OP_constu)
		b.EmitUnsigned(dt.OffsetBits)
		b.EmitOp(op.DW_OP_minus)
		b.EmitOp(op.DW_OP_deref)
		b.EmitOp(op.DW_OP_plus)
		u.addLoc(id, dwarf.AttrDataMemberLoc, b)
	} else {
		size := dt.SizeBits
		fieldSize := uint64(0)
		if dt.Base != nil {
			fieldSize = baseTypeSize(dt.Base)
		}
		bitfield := fieldSize != 0 && size != fieldSize
		offsetInBytes := dt.OffsetBits / 8
		if bitfield {
			dwarf2 := u.ctx.opts.DWARF2Bitfields
			if dwarf2 {
				u.addUInt(id, dwarf.AttrByteSize, 0, fieldSize/8)
			}
			u.addUInt(id, dwarf.AttrBitSize, 0, size)

			offset := dt.OffsetBits
			alignMask := ^(fieldSize - 1)
			startBitOffset := offset - (offset & alignMask)
			offsetInBytes = (offset - startBitOffset) / 8
			if dwarf2 {
				hiMark := (offset + fieldSize) & alignMask
				fieldOffset := hiMark - fieldSize
				offset -= fieldOffset
				// Little endian: bit_offset counts from the most significant
				// bit of the storage unit.
				offset = fieldSize - (offset + size)
				u.addUInt(id, dwarf.AttrBitOffset, 0, offset)
				offsetInBytes = fieldOffset >> 3
			} else {
				u.addUInt(id, dw.AttrDataBitOffset, 0, offset)
			}
		}
		if u.version() <= 2 {
			b := &die.Block{}
			b.EmitOp(op.DW_OP_plus_uconst)
			b.EmitUnsigned(offsetInBytes)
			u.addLoc(id, dwarf.AttrDataMemberLoc, b)
		} else if !bitfield || u.ctx.opts.DWARF2Bitfields {
			u.addUInt(id, dwarf.AttrDataMemberLoc, 0, offsetInBytes)
		}
	}

	u.addAccess(id, dt.Flags)
	if dt.Flags.Has(meta.FlagVirtual) {
		u.addUInt(id, dwarf.AttrVirtuality, dw.FormData1, dw.VirtualityVirtual)
	}
	if dt.Flags.Has(meta.FlagArtificial) {
		u.addFlag(id, dwarf.AttrArtificial)
	}
}

func (u *Unit) getOrCreateStaticMemberDIE(dt *meta.DerivedType) die.ID {
	parent := u.getOrCreateContextDIE(dt.Scope)
	if id, ok := u.memo[dt]; ok {
		return id
	}
	id := u.createAndAdd(dt.Kind, parent, dt)
	u.addString(id, dwarf.AttrName, dt.Name)
	u.addType(id, dt.Base, dwarf.AttrType)
	u.addSourceLine(id, dt.Line, dt.File)
	u.addFlag(id, dwarf.AttrExternal)
	u.addFlag(id, dwarf.AttrDeclaration)
	u.addAccess(id, dt.Flags)
	if dt.ConstValue != nil {
		u.addConstantValue(id, !loclist.IsSigned(dt.Base), uint64(*dt.ConstValue))
	}
	return id
}

func (u *Unit) addTemplateParams(parent die.ID, params []meta.Node) {
	for _, p := range params {
		switch tp := p.(type) {
		case *meta.TemplateTypeParameter:
			id := u.arena.NewChild(parent, dwarf.TagTemplateTypeParameter)
			u.addType(id, tp.Type, dwarf.AttrType)
			if tp.Name != "" {
				u.addString(id, dwarf.AttrName, tp.Name)
			}
		case *meta.TemplateValueParameter:
			id := u.arena.NewChild(parent, dwarf.TagTemplateValueParameter)
			u.addType(id, tp.Type, dwarf.AttrType)
			if tp.Name != "" {
				u.addString(id, dwarf.AttrName, tp.Name)
			}
			switch {
			case tp.Global == nil:
				u.addConstantValue(id, !loclist.IsSigned(tp.Type), uint64(tp.Value))
			case tp.Global.Storage != nil && !tp.Global.Storage.DLLImport:
				b := &die.Block{}
				u.addOpAddress(b, u.ctx.GlobalSymbol(tp.Global))
				b.EmitOp(op.DW_OP_stack_value)
				u.addLoc(id, dwarf.AttrLocation, b)
			}
		}
	}
}
