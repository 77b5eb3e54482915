package object

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"os"
	"path/filepath"
	"testing"

	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
)

func sampleSections() []sink.Section {
	return []sink.Section{
		{Name: ".debug_abbrev", Data: []byte{1, 0x11, 0, 0, 0}},
		{Name: ".debug_info", Data: []byte{0xaa, 0xbb, 0xcc}},
		{Name: ".debug_str_offsets.dwo", Data: []byte{4, 0, 0, 0}},
		{Name: ".debug_ranges", Data: nil},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"ELF": ELF, "coff": COFF, "Mach-O": MachO, "macho": MachO} {
		if got, err := ParseFormat(in); err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("wasm"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestSplit(t *testing.T) {
	main, dwo := Split(sampleSections())
	if len(main) != 3 || len(dwo) != 1 || dwo[0].Name != ".debug_str_offsets.dwo" {
		t.Fatalf("main %d dwo %v", len(main), dwo)
	}
	if main[0].Name != ".debug_abbrev" || main[2].Name != ".debug_ranges" {
		t.Fatalf("order not kept: %v", main)
	}
}

func TestELFReadsBack(t *testing.T) {
	b, err := Build(ELF, sampleSections())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	f, err := elf.NewFile(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("elf.NewFile: %v", err)
	}
	if f.Type != elf.ET_REL || f.Machine != elf.EM_X86_64 {
		t.Fatalf("type %v machine %v", f.Type, f.Machine)
	}
	for _, s := range sampleSections() {
		sec := f.Section(s.Name)
		if sec == nil {
			t.Fatalf("missing %s", s.Name)
		}
		data, err := sec.Data()
		if err != nil || !bytes.Equal(data, s.Data) {
			t.Fatalf("%s = %x, %v", s.Name, data, err)
		}
	}
}

func TestCOFFReadsBack(t *testing.T) {
	b, err := Build(COFF, sampleSections())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	f, err := pe.NewFile(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("pe.NewFile: %v", err)
	}
	if f.Machine != pe.IMAGE_FILE_MACHINE_AMD64 || len(f.Sections) != 4 {
		t.Fatalf("machine %#x, %d sections", f.Machine, len(f.Sections))
	}
	// long names come back through the string table
	sec := f.Section(".debug_info")
	if sec == nil {
		t.Fatalf("missing .debug_info")
	}
	data, err := sec.Data()
	if err != nil || !bytes.Equal(data, []byte{0xaa, 0xbb, 0xcc}) {
		t.Fatalf(".debug_info = %x, %v", data, err)
	}
}

func TestMachOReadsBack(t *testing.T) {
	b, err := Build(MachO, sampleSections())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	f, err := macho.NewFile(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("macho.NewFile: %v", err)
	}
	if f.Type != macho.TypeObj || f.Cpu != macho.CpuAmd64 {
		t.Fatalf("type %v cpu %v", f.Type, f.Cpu)
	}
	sec := f.Section("__debug_abbrev")
	if sec == nil || sec.Seg != "__DWARF" {
		t.Fatalf("missing __debug_abbrev")
	}
	data, err := sec.Data()
	if err != nil || !bytes.Equal(data, []byte{1, 0x11, 0, 0, 0}) {
		t.Fatalf("__debug_abbrev = %x, %v", data, err)
	}
	if f.Section("__debug_str_offs") == nil {
		t.Fatalf("long name not truncated")
	}
}

func TestMachOSectionName(t *testing.T) {
	if got := MachOSectionName(".apple_names"); got != "__apple_names" {
		t.Fatalf("got %q", got)
	}
	if got := MachOSectionName(".debug_str_offsets.dwo"); got != "__debug_str_offs" {
		t.Fatalf("got %q", got)
	}
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.o")
	if err := Write(path, ELF, sampleSections()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil || !bytes.HasPrefix(b, []byte("\x7fELF")) {
		t.Fatalf("read back %v", err)
	}
	if err := Write("", ELF, nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
