// Package accel builds the lookup tables that sit beside the unit
// sections: public names and types, the Apple hashed accelerator tables
// and the address range index.
package accel

import (
	"debug/dwarf"

	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	"github.com/orizon-lang/dwarfemit/internal/debug/unit"
)

const pubVersion = 2

// IndexValue returns the GDB index byte of a pub entry: symbol kind in
// bits 4-6, linkage in bit 7.
func IndexValue(e unit.PubEntry, lang uint16) uint8 {
	kind, linkage := uint8(dw.GDBIndexKindNone), uint8(dw.GDBIndexLinkageExternal)
	static := uint8(dw.GDBIndexLinkageStatic)
	if !e.External {
		linkage = static
	}
	switch e.Tag {
	case dwarf.TagCompileUnit:
		// names of type unit types point at the unit
		kind, linkage = dw.GDBIndexKindType, dw.GDBIndexLinkageExternal
	case dwarf.TagClassType, dwarf.TagStructType, dwarf.TagUnionType, dwarf.TagEnumerationType:
		kind, linkage = dw.GDBIndexKindType, static
		if lang == dw.LangCPlusPlus {
			linkage = dw.GDBIndexLinkageExternal
		}
	case dwarf.TagTypedef, dwarf.TagBaseType, dwarf.TagSubrangeType:
		kind, linkage = dw.GDBIndexKindType, static
	case dwarf.TagNamespace:
		kind, linkage = dw.GDBIndexKindType, dw.GDBIndexLinkageExternal
	case dwarf.TagSubprogram:
		kind = dw.GDBIndexKindFunction
	case dwarf.TagVariable:
		kind = dw.GDBIndexKindVariable
	case dwarf.TagEnumerator:
		kind, linkage = dw.GDBIndexKindVariable, static
	default:
		return 0
	}
	return kind<<4 | linkage<<7
}

// EmitPubSections writes the pub names and types of every compile unit.
// gnu selects the .debug_gnu_pub* flavor with an index byte per entry.
func EmitPubSections(out sink.Sink, ctx *unit.Context, gnu bool) {
	names, types := dw.SectionPubNames, dw.SectionPubTypes
	if gnu {
		names, types = dw.SectionGNUPubNames, dw.SectionGNUPubTypes
	}
	for _, cu := range ctx.CompileUnits() {
		out.SwitchSection(names)
		emitPubSection(out, cu, cu.PubNames(), gnu)
		out.SwitchSection(types)
		emitPubSection(out, cu, cu.PubTypes(), gnu)
	}
}

func emitPubSection(out sink.Sink, cu *unit.CompileUnit, entries []unit.PubEntry, gnu bool) {
	hdr := cu.HeaderUnit()
	begin, end := sink.NewSymbol("pub_begin"), sink.NewSymbol("pub_end")
	out.EmitLabelDifference(end, begin, 4)
	out.EmitLabel(begin)
	out.EmitIntValue(pubVersion, 2)
	out.EmitSectionOffset(hdr.Label())
	out.EmitIntValue(uint64(hdr.Length()), 4)
	lang := cu.Node().Language
	for _, e := range entries {
		out.EmitIntValue(uint64(e.Offset), 4)
		if gnu {
			out.EmitInt8(IndexValue(e, lang))
		}
		out.EmitBytes(append([]byte(e.Name), 0))
	}
	out.EmitIntValue(0, 4)
	out.EmitLabel(end)
}
