// Package position tracks locations in module description files so that
// loader diagnostics can point at the offending line.
package position

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Position is a point in an input file.
type Position struct {
	Filename string
	Line     int // 1-based
	Column   int // 1-based
}

// Of returns the position of a YAML node.
func Of(filename string, n *yaml.Node) Position {
	if n == nil {
		return Position{Filename: filename}
	}
	return Position{Filename: filename, Line: n.Line, Column: n.Column}
}

// IsValid returns true if the position is valid
func (p Position) IsValid() bool {
	return p.Line > 0 && p.Column > 0
}

// String returns a string representation of the position
func (p Position) String() string {
	switch {
	case p.Filename != "" && p.IsValid():
		return fmt.Sprintf("%s:%d:%d", filepath.Base(p.Filename), p.Line, p.Column)
	case p.Filename != "":
		return filepath.Base(p.Filename)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Before returns true if this position comes before other
func (p Position) Before(other Position) bool {
	if p.Filename != other.Filename {
		return p.Filename < other.Filename
	}
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Column < other.Column
}

// Error is a positioned diagnostic.
type Error struct {
	Pos     Position
	Kind    string
	Message string
}

func (e Error) String() string {
	return fmt.Sprintf("%s: %s: %s", e.Pos, e.Kind, e.Message)
}

// Warning is a positioned diagnostic that does not stop loading.
type Warning struct {
	Pos     Position
	Kind    string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: warning: %s: %s", w.Pos, w.Kind, w.Message)
}

// Diagnostic collects the problems found in one input.
type Diagnostic struct {
	Errors   []Error
	Warnings []Warning
}

// NewDiagnostic creates an empty collection.
func NewDiagnostic() *Diagnostic {
	return &Diagnostic{}
}

// AddError adds an error diagnostic
func (d *Diagnostic) AddError(pos Position, kind, message string) {
	d.Errors = append(d.Errors, Error{Pos: pos, Kind: kind, Message: message})
}

// AddWarning adds a warning diagnostic
func (d *Diagnostic) AddWarning(pos Position, kind, message string) {
	d.Warnings = append(d.Warnings, Warning{Pos: pos, Kind: kind, Message: message})
}

// HasErrors returns true if there are any errors
func (d *Diagnostic) HasErrors() bool {
	return len(d.Errors) > 0
}

// ErrorCount returns the number of errors
func (d *Diagnostic) ErrorCount() int {
	return len(d.Errors)
}

// Summary joins all errors, one per line, in input order.
func (d *Diagnostic) Summary() string {
	lines := make([]string, len(d.Errors))
	for i, e := range d.Errors {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}
