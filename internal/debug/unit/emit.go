package unit

import (
	"fmt"

	"github.com/orizon-lang/dwarfemit/internal/debug/die"
	"github.com/orizon-lang/dwarfemit/internal/debug/dw"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
)

// emitted returns the units that are written, in section order.
func (c *Context) emitted() []*Unit {
	var out []*Unit
	for _, cu := range c.compile {
		if cu.skeleton != nil {
			out = append(out, cu.skeleton)
		}
		out = append(out, cu.Unit)
	}
	for _, tu := range c.typeUnits {
		out = append(out, tu.Unit)
	}
	return out
}

func (c *Context) abbrevsFor(u *Unit) *die.AbbrevSet {
	if u.dwo {
		return c.DwoAbbrevs
	}
	return c.Abbrevs
}

// Layout assigns abbreviations, record offsets and unit offsets. It runs
// after Finalize and before anything is emitted.
func (c *Context) Layout() {
	offsets := make(map[string]uint32)
	for _, u := range c.emitted() {
		end := die.Layout(u.arena, u.root, c.abbrevsFor(u), u.headerSize(), c.params)
		sec := u.Section()
		u.offset = offsets[sec]
		u.length = end
		offsets[sec] += end
	}
}

func (c *Context) emitUnit(out sink.Sink, u *Unit) error {
	out.SwitchSection(u.Section())
	out.EmitLabel(u.label)
	out.EmitIntValue(uint64(u.length-4), 4)
	out.EmitIntValue(uint64(c.opts.Version), 2)
	if u.dwo {
		out.EmitIntValue(0, 4)
	} else {
		out.EmitSectionOffset(c.abbrevSym)
	}
	out.EmitInt8(uint8(c.opts.AddrSize))
	if u.kind == KindType {
		tu := c.typeUnitOf(u)
		out.EmitIntValue(tu.signature, 8)
		out.EmitIntValue(uint64(u.rec(tu.typeID).Offset()), 4)
	}
	if err := die.Emit(out, u.arena, u.root, c.params, c); err != nil {
		return fmt.Errorf("%s unit %d: %w", u.kind, u.ID(), err)
	}
	return nil
}

func (c *Context) typeUnitOf(u *Unit) *TypeUnit {
	for _, tu := range c.typeUnits {
		if tu.Unit == u {
			return tu
		}
	}
	return nil
}

// EmitUnits writes every unit followed by the abbreviation tables.
func (c *Context) EmitUnits(out sink.Sink) error {
	for _, u := range c.emitted() {
		if err := c.emitUnit(out, u); err != nil {
			return err
		}
	}
	out.SwitchSection(dw.SectionAbbrev)
	out.EmitLabel(c.abbrevSym)
	c.Abbrevs.Emit(out)
	if c.opts.Split {
		out.SwitchSection(dw.SectionAbbrevDWO)
		c.DwoAbbrevs.Emit(out)
	}
	return nil
}

// EmitLines writes the line table of every compile unit, and the file
// table split type units share.
func (c *Context) EmitLines(out sink.Sink) {
	for _, cu := range c.compile {
		cu.lines.Emit(out, dw.SectionLine, cu.lineSym, c.opts.Version, c.opts.AddrSize)
	}
	if c.opts.Split && len(c.typeUnits) > 0 {
		c.DwoLines.Emit(out, dw.SectionLineDWO, c.DwoLineSym, c.opts.Version, c.opts.AddrSize)
	}
}

// EmitLocations writes the location lists. In split output the list entries
// add to the address pool, so this runs before EmitAddrPool.
func (c *Context) EmitLocations(out sink.Sink) error {
	if c.Locs.Len() == 0 {
		return nil
	}
	if c.opts.Split {
		return c.Locs.EmitSplit(out, dw.SectionLocDWO, func(sym *sink.Symbol) (uint32, error) {
			return c.Addr.GetIndex(sym, false)
		})
	}
	c.Locs.Emit(out, dw.SectionLoc, c.opts.AddrSize, func(unit int) *sink.Symbol {
		if unit < 0 || unit >= len(c.units) || c.units[unit].cu == nil {
			return nil
		}
		return c.units[unit].cu.base
	})
	return nil
}

// EmitAddrPool writes .debug_addr.
func (c *Context) EmitAddrPool(out sink.Sink) {
	if !c.opts.Split || c.Addr.Len() == 0 {
		return
	}
	out.SwitchSection(dw.SectionAddr)
	out.EmitLabel(c.addrSym)
	c.Addr.Emit(out, dw.SectionAddr, c.opts.AddrSize)
}

// EmitStrings writes the string sections.
func (c *Context) EmitStrings(out sink.Sink) {
	c.Strings.Emit(out, dw.SectionStr)
	if c.opts.Split {
		c.DwoStrings.Emit(out, dw.SectionStrDWO)
		c.DwoStrings.EmitOffsets(out, dw.SectionStrOffsetsDWO)
	}
}

func (c *Context) sectionLabel(section string) *sink.Symbol {
	if s, ok := c.sectionLabels[section]; ok {
		return s
	}
	s := sink.NewSymbolAt(section+"_begin", section, 0)
	c.sectionLabels[section] = s
	return s
}

// EmitRanges writes .debug_ranges: every range list of every compile unit.
// Spans in one section share a base address selection entry when the unit
// has no base address of its own.
func (c *Context) EmitRanges(out sink.Sink) {
	hasLists := false
	for _, cu := range c.compile {
		if len(cu.rangeLists) > 0 {
			hasLists = true
			break
		}
	}
	if !hasLists {
		return
	}
	size := c.opts.AddrSize
	out.SwitchSection(dw.SectionRanges)
	out.EmitLabel(c.rangesSym)
	for _, cu := range c.compile {
		for _, list := range cu.rangeLists {
			out.EmitLabel(list.Sym)
			var order []string
			bySection := make(map[string][]RangeSpan)
			for _, r := range list.Ranges {
				sec := r.Begin.Section()
				if _, ok := bySection[sec]; !ok {
					order = append(order, sec)
				}
				bySection[sec] = append(bySection[sec], r)
			}
			baseIsSet := false
			for _, sec := range order {
				spans := bySection[sec]
				base := cu.base
				switch {
				case base == nil && len(spans) > 1 && c.opts.RangesBaseAddress:
					baseIsSet = true
					base = c.sectionLabel(sec)
					out.EmitIntValue(^uint64(0), size)
					out.EmitSymbolValue(base, size)
				case baseIsSet:
					baseIsSet = false
					out.EmitIntValue(^uint64(0), size)
					out.EmitIntValue(0, size)
				}
				for _, r := range spans {
					if base != nil {
						out.EmitLabelDifference(r.Begin, base, size)
						out.EmitLabelDifference(r.End, base, size)
					} else {
						out.EmitSymbolValue(r.Begin, size)
						out.EmitSymbolValue(r.End, size)
					}
				}
			}
			out.EmitIntValue(0, size)
			out.EmitIntValue(0, size)
		}
	}
}
