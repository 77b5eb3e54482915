// Package target describes the register file of the machines the emitter
// produces debug info for: DWARF register numbers, super/sub-register
// relations and the frame register.
package target

import (
	"fmt"
	"sort"

	"github.com/orizon-lang/dwarfemit/internal/lir"
)

// RegisterClass represents different register classes for x64
type RegisterClass int

const (
	RegClassGPR RegisterClass = iota // General Purpose Registers
	RegClassXMM                      // XMM (floating point) Registers
	RegClassSpecial
)

// PhysicalRegister represents a physical register and where it sits inside
// its super-register.
type PhysicalRegister struct {
	Name  string
	Class RegisterClass
	// DwarfNum is -1 for registers without a DWARF number (sub-registers).
	DwarfNum int
	Super    lir.Reg
	// SubOffset is the bit offset inside Super.
	SubOffset   uint
	SizeBits    uint
	CalleeSaved bool
}

// Info is a register description table indexed by lir.Reg.
type Info struct {
	Arch     string
	regs     []PhysicalRegister
	byName   map[string]lir.Reg
	frameReg lir.Reg
	stackReg lir.Reg
}

type gpr struct {
	r64, r32, r16, r8, r8h string
	dwarf                  int
	calleeSaved            bool
}

// x86-64 general purpose registers in DWARF numbering order.
var x64GPRs = []gpr{
	{"rax", "eax", "ax", "al", "ah", 0, false},
	{"rdx", "edx", "dx", "dl", "dh", 1, false},
	{"rcx", "ecx", "cx", "cl", "ch", 2, false},
	{"rbx", "ebx", "bx", "bl", "bh", 3, true},
	{"rsi", "esi", "si", "sil", "", 4, false},
	{"rdi", "edi", "di", "dil", "", 5, false},
	{"rbp", "ebp", "bp", "bpl", "", 6, true},
	{"rsp", "esp", "sp", "spl", "", 7, true},
	{"r8", "r8d", "r8w", "r8b", "", 8, false},
	{"r9", "r9d", "r9w", "r9b", "", 9, false},
	{"r10", "r10d", "r10w", "r10b", "", 10, false},
	{"r11", "r11d", "r11w", "r11b", "", 11, false},
	{"r12", "r12d", "r12w", "r12b", "", 12, true},
	{"r13", "r13d", "r13w", "r13b", "", 13, true},
	{"r14", "r14d", "r14w", "r14b", "", 14, true},
	{"r15", "r15d", "r15w", "r15b", "", 15, true},
}

// X86_64 returns the x86-64 register table. rbp is the frame register.
func X86_64() *Info {
	i := &Info{Arch: "x86_64", byName: make(map[string]lir.Reg)}
	i.regs = append(i.regs, PhysicalRegister{Name: "noreg", DwarfNum: -1}) // lir.NoReg
	for _, g := range x64GPRs {
		r64 := i.add(PhysicalRegister{Name: g.r64, Class: RegClassGPR, DwarfNum: g.dwarf, SizeBits: 64, CalleeSaved: g.calleeSaved})
		r32 := i.add(PhysicalRegister{Name: g.r32, Class: RegClassGPR, DwarfNum: -1, Super: r64, SizeBits: 32})
		r16 := i.add(PhysicalRegister{Name: g.r16, Class: RegClassGPR, DwarfNum: -1, Super: r32, SizeBits: 16})
		i.add(PhysicalRegister{Name: g.r8, Class: RegClassGPR, DwarfNum: -1, Super: r16, SizeBits: 8})
		if g.r8h != "" {
			i.add(PhysicalRegister{Name: g.r8h, Class: RegClassGPR, DwarfNum: -1, Super: r16, SubOffset: 8, SizeBits: 8})
		}
	}
	i.add(PhysicalRegister{Name: "rip", Class: RegClassSpecial, DwarfNum: 16, SizeBits: 64})
	for n := 0; n < 16; n++ {
		i.add(PhysicalRegister{Name: fmt.Sprintf("xmm%d", n), Class: RegClassXMM, DwarfNum: 17 + n, SizeBits: 128, CalleeSaved: n >= 6})
	}
	i.frameReg = i.byName["rbp"]
	i.stackReg = i.byName["rsp"]
	return i
}

func (i *Info) add(r PhysicalRegister) lir.Reg {
	id := lir.Reg(len(i.regs))
	i.regs = append(i.regs, r)
	i.byName[r.Name] = id
	return id
}

// Lookup returns the register with the given name.
func (i *Info) Lookup(name string) (lir.Reg, bool) {
	r, ok := i.byName[name]
	return r, ok
}

// MustLookup is Lookup for names known to exist.
func (i *Info) MustLookup(name string) lir.Reg {
	r, ok := i.byName[name]
	if !ok {
		panic("target: unknown register " + name)
	}
	return r
}

// Register returns the description of r.
func (i *Info) Register(r lir.Reg) PhysicalRegister {
	if int(r) >= len(i.regs) {
		return PhysicalRegister{Name: fmt.Sprintf("r%d?", r), DwarfNum: -1}
	}
	return i.regs[r]
}

// Name returns r's assembler name.
func (i *Info) Name(r lir.Reg) string { return i.Register(r).Name }

// IsPhysical reports whether r names a register in the table.
func (i *Info) IsPhysical(r lir.Reg) bool {
	return r != lir.NoReg && int(r) < len(i.regs)
}

// DwarfRegNum returns the DWARF number of r.
func (i *Info) DwarfRegNum(r lir.Reg) (int, bool) {
	if !i.IsPhysical(r) {
		return -1, false
	}
	n := i.regs[r].DwarfNum
	return n, n >= 0
}

// SuperRegs returns the super-registers of r, nearest first.
func (i *Info) SuperRegs(r lir.Reg) []lir.Reg {
	var out []lir.Reg
	for i.IsPhysical(r) && i.regs[r].Super != lir.NoReg {
		r = i.regs[r].Super
		out = append(out, r)
	}
	return out
}

// SubRegs returns every register contained in r, ordered by bit offset and
// then by decreasing size.
func (i *Info) SubRegs(r lir.Reg) []lir.Reg {
	var out []lir.Reg
	for id := range i.regs {
		sub := lir.Reg(id)
		if sub == r || sub == lir.NoReg {
			continue
		}
		if _, _, ok := i.SubRegIndex(r, sub); ok {
			out = append(out, sub)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		oa, sa, _ := i.SubRegIndex(r, out[a])
		ob, sb, _ := i.SubRegIndex(r, out[b])
		if oa != ob {
			return oa < ob
		}
		return sa > sb
	})
	return out
}

// SubRegIndex returns the bit offset and size of sub inside super.
func (i *Info) SubRegIndex(super, sub lir.Reg) (offset, size uint, ok bool) {
	if !i.IsPhysical(sub) {
		return 0, 0, false
	}
	size = i.regs[sub].SizeBits
	for r := sub; i.IsPhysical(r); r = i.regs[r].Super {
		if r == super {
			return offset, size, r != sub
		}
		offset += i.regs[r].SubOffset
	}
	return 0, 0, false
}

// RegSizeInBits returns the width of r.
func (i *Info) RegSizeInBits(r lir.Reg) uint { return i.Register(r).SizeBits }

// FrameRegister returns the register DW_AT_frame_base is described with.
func (i *Info) FrameRegister() lir.Reg { return i.frameReg }

// StackRegister returns the stack pointer.
func (i *Info) StackRegister() lir.Reg { return i.stackReg }

// Overlaps reports whether a write to a may change b.
func (i *Info) Overlaps(a, b lir.Reg) bool {
	if a == b {
		return a != lir.NoReg
	}
	_, _, ok := i.SubRegIndex(a, b)
	if ok {
		return true
	}
	_, _, ok = i.SubRegIndex(b, a)
	return ok
}
