// Package dw holds the DWARF constants the emitter needs that the standard
// library's debug/dwarf package does not export: attribute forms, GNU
// extension attributes, base type encodings and friends.
//
// Tags and attributes are expressed as dwarf.Tag and dwarf.Attr so that the
// emitted values can be compared directly against what debug/dwarf reads back.
package dw

import (
	"debug/dwarf"

	"github.com/go-delve/delve/pkg/dwarf/op"
)

// Form is a DWARF attribute form code.
type Form uint16

const (
	FormAddr        Form = 0x01
	FormBlock2      Form = 0x03
	FormBlock4      Form = 0x04
	FormData2       Form = 0x05
	FormData4       Form = 0x06
	FormData8       Form = 0x07
	FormString      Form = 0x08
	FormBlock       Form = 0x09
	FormBlock1      Form = 0x0a
	FormData1       Form = 0x0b
	FormFlag        Form = 0x0c
	FormSdata       Form = 0x0d
	FormStrp        Form = 0x0e
	FormUdata       Form = 0x0f
	FormRefAddr     Form = 0x10
	FormRef1        Form = 0x11
	FormRef2        Form = 0x12
	FormRef4        Form = 0x13
	FormRef8        Form = 0x14
	FormRefUdata    Form = 0x15
	FormIndirect    Form = 0x16
	FormSecOffset   Form = 0x17 // DWARF 4
	FormExprloc     Form = 0x18 // DWARF 4
	FormFlagPresent Form = 0x19 // DWARF 4
	FormRefSig8     Form = 0x20 // DWARF 4

	FormGNUAddrIndex Form = 0x1f01 // split DWARF
	FormGNUStrIndex  Form = 0x1f02 // split DWARF
)

// GNU attribute extensions used by split output and discriminators.
const (
	AttrGNUDwoName       dwarf.Attr = 0x2130
	AttrGNUDwoID         dwarf.Attr = 0x2131
	AttrGNURangesBase    dwarf.Attr = 0x2132
	AttrGNUAddrBase      dwarf.Attr = 0x2133
	AttrGNUPubnames      dwarf.Attr = 0x2134
	AttrGNUDiscriminator dwarf.Attr = 0x2136

	// DWARF 4 attributes missing from older debug/dwarf releases.
	AttrSignature      dwarf.Attr = 0x69
	AttrMainSubprogram dwarf.Attr = 0x6a
	AttrDataBitOffset  dwarf.Attr = 0x6b
	AttrLinkageName    dwarf.Attr = 0x6e

	// AttrMIPSLinkageName carries linkage names before DWARF 4.
	AttrMIPSLinkageName dwarf.Attr = 0x2007
)

// TagTypeUnit is the DWARF 4 type unit root tag.
const TagTypeUnit dwarf.Tag = 0x41

// Base type encodings (DW_ATE_*).
const (
	ATEAddress      = 0x01
	ATEBoolean      = 0x02
	ATEComplexFloat = 0x03
	ATEFloat        = 0x04
	ATESigned       = 0x05
	ATESignedChar   = 0x06
	ATEUnsigned     = 0x07
	ATEUnsignedChar = 0x08
	ATEUTF          = 0x10
)

// Source languages (DW_LANG_*).
const (
	LangC89         = 0x0001
	LangC           = 0x0002
	LangCPlusPlus   = 0x0004
	LangC99         = 0x000c
	LangObjC        = 0x0010
	LangFortran90   = 0x0008
	LangGo          = 0x0016
	LangC11         = 0x001d
	LangRust        = 0x001c
	LangCPlusPlus11 = 0x001a
)

// Inline codes (DW_INL_*).
const (
	InlNotInlined         = 0
	InlInlined            = 1
	InlDeclaredNotInlined = 2
	InlDeclaredInlined    = 3
)

// Virtuality (DW_VIRTUALITY_*).
const (
	VirtualityNone        = 0
	VirtualityVirtual     = 1
	VirtualityPureVirtual = 2
)

// Line program opcodes.
const (
	LNSCopy             = 0x01
	LNSAdvancePC        = 0x02
	LNSAdvanceLine      = 0x03
	LNSSetFile          = 0x04
	LNSSetColumn        = 0x05
	LNSNegateStmt       = 0x06
	LNSSetBasicBlock    = 0x07
	LNSConstAddPC       = 0x08
	LNSFixedAdvancePC   = 0x09
	LNSSetPrologueEnd   = 0x0a
	LNSSetEpilogueBegin = 0x0b
	LNSSetISA           = 0x0c

	LNEEndSequence      = 0x01
	LNESetAddress       = 0x02
	LNEDefineFile       = 0x03
	LNESetDiscriminator = 0x04
)

// Split DWARF location list entry kinds (pre-standard DW_LLE_*).
const (
	LLEEndOfList    = 0x00
	LLEBaseAddressx = 0x01
	LLEStartxEndx   = 0x02
	LLEStartxLength = 0x03
	LLEOffsetPair   = 0x04
)

// GNU expression opcodes.
const (
	OpGNUPushTLSAddress op.Opcode = 0xe0
	OpGNUAddrIndex      op.Opcode = 0xfb
	OpGNUConstIndex     op.Opcode = 0xfc
)

// DW_FLAG_type_implementation marks a complete type in .apple_types.
const FlagTypeImplementation = 2

// Accessibility codes (DW_ACCESS_*).
const (
	AccessPublic    = 1
	AccessProtected = 2
	AccessPrivate   = 3
)

// GDB index symbol kinds for .debug_gnu_pubnames/pubtypes.
const (
	GDBIndexKindNone     = 0
	GDBIndexKindType     = 1
	GDBIndexKindVariable = 2
	GDBIndexKindFunction = 3
	GDBIndexKindOther    = 4

	GDBIndexLinkageExternal = 0
	GDBIndexLinkageStatic   = 1
)

// Apple accelerator table constants.
const (
	AppleMagic         = 0x48415348 // 'HASH'
	AppleVersion       = 1
	AppleHashDJB       = 0
	AppleAtomDIEOffset = 1
	AppleAtomDIETag    = 3
	AppleAtomTypeFlags = 5
)

// ChildrenYes / ChildrenNo mark whether an abbreviation owns children.
const (
	ChildrenNo  = 0
	ChildrenYes = 1
)

// BaseTypeFor maps a common source type name to its DW_ATE encoding and byte
// size. It is used when a module description names a builtin without
// spelling out its encoding.
func BaseTypeFor(name string) (enc, size uint8, ok bool) {
	switch name {
	case "bool":
		return ATEBoolean, 1, true
	case "i8", "int8", "signed char":
		return ATESignedChar, 1, true
	case "u8", "uint8", "byte", "unsigned char":
		return ATEUnsignedChar, 1, true
	case "char":
		return ATESignedChar, 1, true
	case "i16", "int16", "short":
		return ATESigned, 2, true
	case "u16", "uint16", "unsigned short":
		return ATEUnsigned, 2, true
	case "i32", "int32", "int":
		return ATESigned, 4, true
	case "u32", "uint32", "unsigned int", "unsigned":
		return ATEUnsigned, 4, true
	case "i64", "int64", "long", "long long":
		return ATESigned, 8, true
	case "u64", "uint64", "unsigned long", "unsigned long long", "uintptr", "size_t":
		return ATEUnsigned, 8, true
	case "f32", "float32", "float":
		return ATEFloat, 4, true
	case "f64", "float64", "double":
		return ATEFloat, 8, true
	case "rune", "char32_t":
		return ATEUTF, 4, true
	default:
		return 0, 0, false
	}
}

// Debug section names. Split output adds the .dwo variants.
const (
	SectionInfo          = ".debug_info"
	SectionTypes         = ".debug_types"
	SectionAbbrev        = ".debug_abbrev"
	SectionStr           = ".debug_str"
	SectionLine          = ".debug_line"
	SectionLoc           = ".debug_loc"
	SectionRanges        = ".debug_ranges"
	SectionARanges       = ".debug_aranges"
	SectionAddr          = ".debug_addr"
	SectionPubNames      = ".debug_pubnames"
	SectionPubTypes      = ".debug_pubtypes"
	SectionGNUPubNames   = ".debug_gnu_pubnames"
	SectionGNUPubTypes   = ".debug_gnu_pubtypes"
	SectionAppleNames    = ".apple_names"
	SectionAppleTypes    = ".apple_types"
	SectionAppleNamespac = ".apple_namespac"

	SectionInfoDWO       = ".debug_info.dwo"
	SectionTypesDWO      = ".debug_types.dwo"
	SectionAbbrevDWO     = ".debug_abbrev.dwo"
	SectionStrDWO        = ".debug_str.dwo"
	SectionStrOffsetsDWO = ".debug_str_offsets.dwo"
	SectionLineDWO       = ".debug_line.dwo"
	SectionLocDWO        = ".debug_loc.dwo"
)
