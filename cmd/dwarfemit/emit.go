package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/dwarfemit/internal/cli"
	"github.com/orizon-lang/dwarfemit/internal/config"
	"github.com/orizon-lang/dwarfemit/internal/debug"
	"github.com/orizon-lang/dwarfemit/internal/debug/object"
	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	oerrors "github.com/orizon-lang/dwarfemit/internal/errors"
	"github.com/orizon-lang/dwarfemit/internal/modfile"
	"github.com/orizon-lang/dwarfemit/internal/target"
)

type runner struct {
	flags *flags
	cfg   *config.Options
	log   *cli.Logger
	// progressOut receives the progress bar; stderr when nil.
	progressOut io.Writer
}

// result is the output of one module.
type result struct {
	module   string
	sections []sink.Section
	written  []string
}

// run emits every input. Modules are independent, so each gets its own
// emitter and they run in parallel up to -j.
func (r *runner) run(ctx context.Context, inputs []string) error {
	return r.runAs(ctx, inputs, len(inputs) > 1)
}

// runAs is run with the output naming fixed by the caller.
func (r *runner) runAs(ctx context.Context, inputs []string, multi bool) error {
	var bar *progressbar.ProgressBar
	if r.flags.progress {
		w := r.progressOut
		if w == nil {
			w = os.Stderr
		}
		bar = progressbar.NewOptions(len(inputs),
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("emitting"),
			progressbar.OptionShowCount(),
		)
		defer bar.Finish()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.flags.jobs)
	for _, path := range inputs {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.emitFile(path, multi)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			r.log.Info("%s: %d sections, wrote %s", res.module, len(res.sections), strings.Join(res.written, ", "))
			if bar != nil {
				bar.Add(1)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *runner) emitFile(path string, multi bool) (*result, error) {
	schema, err := r.cfg.SchemaConstraint()
	if err != nil {
		return nil, err
	}
	m, diag, err := modfile.Load(path, modfile.Options{Schema: schema, Producer: r.cfg.Producer})
	if diag != nil {
		for _, w := range diag.Warnings {
			r.log.Warn("%s", w)
		}
	}
	if err != nil {
		return nil, err
	}

	log := r.log.With("module", m.Name)
	log.Debug("loaded:\n%s", m)
	e := debug.NewEmitter(r.cfg.EmitterOptions(m.Name+".dwo"), target.X86_64(), log)
	buf := sink.NewBuffer()
	for _, name := range r.cfg.SectionNames() {
		buf.SetSectionBase(name, r.cfg.Sections[name])
	}
	if err := e.EmitModule(m, buf); err != nil {
		return nil, err
	}
	secs, err := buf.Finish()
	if err != nil {
		return nil, fmt.Errorf("resolve symbols: %w", err)
	}

	res := &result{module: m.Name, sections: secs}
	if err := r.write(res, multi); err != nil {
		return nil, err
	}
	return res, nil
}

// write stores the sections of res in every requested output.
func (r *runner) write(res *result, multi bool) error {
	f := r.flags
	if f.outDir != "" {
		if err := os.MkdirAll(f.outDir, 0o755); err != nil {
			return oerrors.IOFailure("mkdir", f.outDir, err)
		}
		for _, s := range res.sections {
			p := filepath.Join(f.outDir, res.module+s.Name)
			if err := os.WriteFile(p, s.Data, 0o644); err != nil {
				return oerrors.IOFailure("write", p, err)
			}
			res.written = append(res.written, p)
		}
	}

	main, dwo := res.sections, []sink.Section(nil)
	if f.dwo != "" {
		main, dwo = object.Split(res.sections)
		p := outputPath(f.dwo, res.module, multi)
		if err := object.Write(p, object.ELF, dwo); err != nil {
			return err
		}
		res.written = append(res.written, p)
	}
	for _, o := range []struct {
		path   string
		format object.Format
	}{
		{f.elf, object.ELF},
		{f.coff, object.COFF},
		{f.macho, object.MachO},
	} {
		if o.path == "" {
			continue
		}
		p := outputPath(o.path, res.module, multi)
		if err := object.Write(p, o.format, main); err != nil {
			return err
		}
		res.written = append(res.written, p)
	}
	return nil
}

// outputPath inserts the module name before the extension when several
// modules share one output flag.
func outputPath(path, module string, multi bool) string {
	if !multi {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + module + ext
}
