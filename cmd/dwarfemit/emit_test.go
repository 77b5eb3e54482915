package main

import (
	"bytes"
	"context"
	"debug/dwarf"
	"debug/elf"
	"os"
	"path/filepath"
	"testing"

	"github.com/orizon-lang/dwarfemit/internal/cli"
	"github.com/orizon-lang/dwarfemit/internal/config"
)

var sample = filepath.Join("..", "..", "internal", "modfile", "testdata", "sample.yaml")

func newRunner(t *testing.T, args ...string) *runner {
	t.Helper()
	f, _, err := parseFlags(args)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	return &runner{flags: f, cfg: config.Default(), log: cli.NewLoggerTo(&bytes.Buffer{}, false, false), progressOut: &bytes.Buffer{}}
}

func TestOutputPath(t *testing.T) {
	if got := outputPath("out/a.o", "m", false); got != "out/a.o" {
		t.Fatalf("single: %q", got)
	}
	if got := outputPath("out/a.o", "m", true); got != "out/a.m.o" {
		t.Fatalf("multi: %q", got)
	}
	if got := outputPath("dbg", "m", true); got != "dbg.m" {
		t.Fatalf("no extension: %q", got)
	}
}

func TestParseFlags(t *testing.T) {
	f, rest, err := parseFlags([]string{"-j", "0", "-emit-elf", "x.o", "a.yaml", "b.yaml"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if f.jobs != 1 || f.elf != "x.o" || len(rest) != 2 {
		t.Fatalf("flags %+v rest %v", f, rest)
	}
}

func TestEmitELF(t *testing.T) {
	dir := t.TempDir()
	obj := filepath.Join(dir, "sample.o")
	r := newRunner(t, "-emit-elf", obj, "-out-dir", dir, "-progress")
	r.cfg.Sections = map[string]uint64{".text": 0x401000}
	if err := r.run(context.Background(), []string{sample}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "sample.debug_info")); err != nil {
		t.Fatalf("raw section: %v", err)
	}
	f, err := elf.Open(obj)
	if err != nil {
		t.Fatalf("elf.Open: %v", err)
	}
	defer f.Close()
	d, err := f.DWARF()
	if err != nil {
		t.Fatalf("DWARF: %v", err)
	}
	cu, err := d.Reader().Next()
	if err != nil || cu == nil || cu.Tag != dwarf.TagCompileUnit {
		t.Fatalf("first entry %v, %v", cu, err)
	}
	if cu.Val(dwarf.AttrName) != "m.c" || cu.Val(dwarf.AttrLowpc) != uint64(0x401000) {
		t.Fatalf("unit %v", cu)
	}
}

func TestEmitSplit(t *testing.T) {
	dir := t.TempDir()
	obj, dwo := filepath.Join(dir, "s.o"), filepath.Join(dir, "s.dwo")
	r := newRunner(t, "-emit-elf", obj, "-dwo", dwo)
	r.cfg.SplitDwarf = true
	if err := r.run(context.Background(), []string{sample}); err != nil {
		t.Fatalf("run: %v", err)
	}
	f, err := elf.Open(dwo)
	if err != nil {
		t.Fatalf("elf.Open: %v", err)
	}
	defer f.Close()
	if f.Section(".debug_info.dwo") == nil || f.Section(".debug_info") != nil {
		t.Fatalf("dwo sections %v", f.Sections)
	}
	main, err := elf.Open(obj)
	if err != nil {
		t.Fatalf("elf.Open: %v", err)
	}
	defer main.Close()
	if main.Section(".debug_addr") == nil || main.Section(".debug_info.dwo") != nil {
		t.Fatalf("object sections %v", main.Sections)
	}
}

func TestEmitSeveralModules(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "other.yaml")
	data, err := os.ReadFile(sample)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	data = bytes.Replace(data, []byte("name: sample"), []byte("name: other"), 1)
	if err := os.WriteFile(other, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := newRunner(t, "-emit-coff", filepath.Join(dir, "out.obj"), "-j", "2")
	if err := r.run(context.Background(), []string{sample, other}); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, name := range []string{"out.sample.obj", "out.other.obj"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
}

func TestEmitReportsBadInput(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("schema: 1.0.0\nunits: [{id: u, file: nope}]\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := newRunner(t)
	if err := r.run(context.Background(), []string{bad}); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestParseFlagsWithoutModules(t *testing.T) {
	_, rest, err := parseFlags([]string{"-emit-elf", "x.o"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if err := cli.ValidateArgs(rest, 1, usageLine); err == nil {
		t.Fatalf("no module files accepted")
	}
}
