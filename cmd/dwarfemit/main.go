// Command dwarfemit turns YAML module descriptions into DWARF debug
// sections, written raw or packed into an object file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"github.com/orizon-lang/dwarfemit/internal/cli"
	"github.com/orizon-lang/dwarfemit/internal/config"
)

const toolName = "dwarfemit"

type flags struct {
	config   string
	outDir   string
	elf      string
	coff     string
	macho    string
	dwo      string
	jobs     int
	watch    bool
	progress bool
	verbose  bool
	debug    bool
	version  bool
	json     bool
}

const usageLine = toolName + " [OPTIONS] module.yaml..."

func parseFlags(args []string) (*flags, []string, error) {
	f := &flags{}
	fs := flag.NewFlagSet(toolName, flag.ContinueOnError)
	fs.StringVar(&f.config, "config", "", "emission options (YAML)")
	fs.StringVar(&f.outDir, "out-dir", "", "write each section to its own file in this directory")
	fs.StringVar(&f.elf, "emit-elf", "", "write an ELF relocatable object")
	fs.StringVar(&f.coff, "emit-coff", "", "write a COFF object")
	fs.StringVar(&f.macho, "emit-macho", "", "write a Mach-O object")
	fs.StringVar(&f.dwo, "dwo", "", "write split (.dwo) sections to this ELF file")
	fs.IntVar(&f.jobs, "j", runtime.NumCPU(), "modules emitted in parallel")
	fs.BoolVar(&f.watch, "watch", false, "emit again whenever an input changes")
	fs.BoolVar(&f.progress, "progress", false, "show a progress bar")
	fs.BoolVar(&f.verbose, "v", false, "verbose output")
	fs.BoolVar(&f.debug, "debug", false, "debug output")
	fs.BoolVar(&f.version, "version", false, "print version information")
	fs.BoolVar(&f.json, "json", false, "print version information as JSON")
	fs.Usage = func() {
		cli.PrintUsage(os.Stderr, toolName, usageLine,
			"DWARF debug information emitter", fs, []string{
				toolName + " -emit-elf out.o prog.yaml",
				toolName + " -config split.yaml -emit-elf out.o -dwo out.dwo prog.yaml",
				toolName + " -out-dir sections -j 4 a.yaml b.yaml",
			})
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if f.jobs < 1 {
		f.jobs = 1
	}
	return f, fs.Args(), nil
}

func main() {
	f, inputs, err := parseFlags(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			return
		}
		os.Exit(2)
	}
	if f.version {
		cli.PrintVersion(os.Stdout, toolName, config.DefaultInputSchema, f.json)
		return
	}
	if err := cli.ValidateArgs(inputs, 1, usageLine); err != nil {
		cli.ExitWithError("%v", err)
	}

	log := cli.NewLogger(f.verbose, f.debug)
	cfg, err := config.LoadOptions(f.config)
	cli.HandleError(err, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := &runner{flags: f, cfg: cfg, log: log}
	if f.watch {
		cli.HandleError(r.watch(ctx, inputs), log)
		return
	}
	if err := r.run(ctx, inputs); err != nil {
		log.Error("%v", err)
		fmt.Fprintf(os.Stderr, "%s: emission failed\n", toolName)
		os.Exit(1)
	}
}
