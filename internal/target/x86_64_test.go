package target

import (
	"testing"

	"github.com/orizon-lang/dwarfemit/internal/lir"
)

func TestDwarfNumbers(t *testing.T) {
	x := X86_64()
	cases := map[string]int{"rax": 0, "rdx": 1, "rbp": 6, "rsp": 7, "r15": 15, "rip": 16, "xmm0": 17, "xmm15": 32}
	for name, want := range cases {
		n, ok := x.DwarfRegNum(x.MustLookup(name))
		if !ok || n != want {
			t.Fatalf("%s: dwarf %d (ok=%v), want %d", name, n, ok, want)
		}
	}
	if _, ok := x.DwarfRegNum(x.MustLookup("eax")); ok {
		t.Fatalf("eax must not have a DWARF number")
	}
}

func TestSuperAndSubRegs(t *testing.T) {
	x := X86_64()
	ah := x.MustLookup("ah")
	supers := x.SuperRegs(ah)
	if len(supers) != 3 || x.Name(supers[2]) != "rax" {
		t.Fatalf("supers of ah = %v", supers)
	}
	off, size, ok := x.SubRegIndex(x.MustLookup("rax"), ah)
	if !ok || off != 8 || size != 8 {
		t.Fatalf("ah in rax: off=%d size=%d ok=%v", off, size, ok)
	}
	subs := x.SubRegs(x.MustLookup("rax"))
	if len(subs) != 4 || x.Name(subs[0]) != "eax" || x.Name(subs[3]) != "ah" {
		names := []string{}
		for _, s := range subs {
			names = append(names, x.Name(s))
		}
		t.Fatalf("subs of rax = %v", names)
	}
	if !x.Overlaps(x.MustLookup("eax"), x.MustLookup("rax")) || x.Overlaps(x.MustLookup("eax"), x.MustLookup("rbx")) {
		t.Fatalf("overlap relation wrong")
	}
}

func TestFrameLayout(t *testing.T) {
	x := X86_64()
	fn := &lir.Function{FrameObjects: []lir.FrameObject{{Index: 2, Base: x.FrameRegister(), Offset: -16}}}
	l := NewFrameLayout(fn)
	reg, off, ok := l.FrameIndexReference(2)
	if !ok || reg != x.FrameRegister() || off != -16 {
		t.Fatalf("slot 2 = %v %d %v", reg, off, ok)
	}
	if _, _, ok := l.FrameIndexReference(3); ok {
		t.Fatalf("unknown slot resolved")
	}
}
