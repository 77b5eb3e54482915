package modfile

import (
	"gopkg.in/yaml.v3"
)

// at is the position of a declaration in the input.
type at struct{ line, col int }

func decodeAt(n *yaml.Node, v interface{}, pos *at) error {
	if err := n.Decode(v); err != nil {
		return err
	}
	pos.line, pos.col = n.Line, n.Column
	return nil
}

type moduleDecl struct {
	Schema      string           `yaml:"schema"`
	Name        string           `yaml:"name"`
	Files       []fileDecl       `yaml:"files"`
	Units       []unitDecl       `yaml:"units"`
	Namespaces  []namespaceDecl  `yaml:"namespaces"`
	Types       []typeDecl       `yaml:"types"`
	Subprograms []subprogramDecl `yaml:"subprograms"`
	Functions   []functionDecl   `yaml:"functions"`
}

type fileDecl struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Dir  string `yaml:"dir"`
	at   at
}

func (d *fileDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain fileDecl
	return decodeAt(n, (*plain)(d), &d.at)
}

type unitDecl struct {
	ID                 string       `yaml:"id"`
	File               string       `yaml:"file"`
	Producer           string       `yaml:"producer"`
	Language           string       `yaml:"language"`
	Optimized          bool         `yaml:"optimized"`
	Flags              string       `yaml:"flags"`
	SplitDebugFilename string       `yaml:"split_debug_filename"`
	RetainedTypes      []string     `yaml:"retained_types"`
	Enums              []string     `yaml:"enums"`
	Globals            []globalDecl `yaml:"globals"`
	at                 at
}

func (d *unitDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain unitDecl
	return decodeAt(n, (*plain)(d), &d.at)
}

type globalDecl struct {
	Name        string `yaml:"name"`
	LinkageName string `yaml:"linkage_name"`
	Scope       string `yaml:"scope"`
	File        string `yaml:"file"`
	Line        int    `yaml:"line"`
	Type        string `yaml:"type"`
	Local       bool   `yaml:"local"`
	Declaration bool   `yaml:"declaration"`
	// StaticMember names the member declaration of a class static.
	StaticMember string `yaml:"static_member"`
	Section      string `yaml:"section"`
	Offset       uint64 `yaml:"offset"`
	Size         uint64 `yaml:"size"`
	TLS          bool   `yaml:"tls"`
	DLLImport    bool   `yaml:"dllimport"`
	Const        *int64 `yaml:"const"`
	at           at
}

func (d *globalDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain globalDecl
	return decodeAt(n, (*plain)(d), &d.at)
}

type namespaceDecl struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Parent string `yaml:"parent"`
	File   string `yaml:"file"`
	at     at
}

func (d *namespaceDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain namespaceDecl
	return decodeAt(n, (*plain)(d), &d.at)
}

type typeDecl struct {
	ID         string   `yaml:"id"`
	Kind       string   `yaml:"kind"`
	Name       string   `yaml:"name"`
	Scope      string   `yaml:"scope"`
	File       string   `yaml:"file"`
	Line       int      `yaml:"line"`
	Size       uint64   `yaml:"size"`
	Align      uint64   `yaml:"align"`
	Flags      []string `yaml:"flags"`
	Encoding   string   `yaml:"encoding"`
	Base       string   `yaml:"base"`
	Identifier string   `yaml:"identifier"`
	// Types lists the return type then the parameters of a subroutine
	// type; "" is void.
	Types          []string       `yaml:"types"`
	Members        []memberDecl   `yaml:"members"`
	Inherits       []memberDecl   `yaml:"inherits"`
	Enumerators    []enumDecl     `yaml:"enumerators"`
	Subranges      []subrangeDecl `yaml:"subranges"`
	TemplateParams []templateDecl `yaml:"template_params"`
	ContainingType string         `yaml:"containing_type"`
	at             at
}

func (d *typeDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain typeDecl
	return decodeAt(n, (*plain)(d), &d.at)
}

type memberDecl struct {
	Name   string   `yaml:"name"`
	Type   string   `yaml:"type"`
	Line   int      `yaml:"line"`
	Offset uint64   `yaml:"offset"`
	Size   uint64   `yaml:"size"`
	Flags  []string `yaml:"flags"`
	Const  *int64   `yaml:"const"`
	at     at
}

func (d *memberDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain memberDecl
	return decodeAt(n, (*plain)(d), &d.at)
}

type enumDecl struct {
	Name     string `yaml:"name"`
	Value    int64  `yaml:"value"`
	Unsigned bool   `yaml:"unsigned"`
}

type subrangeDecl struct {
	Count *int64 `yaml:"count"`
	Lower int64  `yaml:"lower"`
}

type templateDecl struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Value  *int64 `yaml:"value"`
	Global string `yaml:"global"`
	at     at
}

func (d *templateDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain templateDecl
	return decodeAt(n, (*plain)(d), &d.at)
}

type subprogramDecl struct {
	ID             string         `yaml:"id"`
	Name           string         `yaml:"name"`
	LinkageName    string         `yaml:"linkage_name"`
	Scope          string         `yaml:"scope"`
	File           string         `yaml:"file"`
	Line           int            `yaml:"line"`
	ScopeLine      int            `yaml:"scope_line"`
	Type           string         `yaml:"type"`
	Unit           string         `yaml:"unit"`
	Local          bool           `yaml:"local"`
	Optimized      bool           `yaml:"optimized"`
	Declaration    string         `yaml:"declaration"`
	Virtuality     int            `yaml:"virtuality"`
	VirtualIndex   uint64         `yaml:"virtual_index"`
	ContainingType string         `yaml:"containing_type"`
	Flags          []string       `yaml:"flags"`
	TemplateParams []templateDecl `yaml:"template_params"`
	Blocks         []blockDecl    `yaml:"blocks"`
	Variables      []variableDecl `yaml:"variables"`
	at             at
}

func (d *subprogramDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain subprogramDecl
	return decodeAt(n, (*plain)(d), &d.at)
}

type blockDecl struct {
	ID     string `yaml:"id"`
	Parent string `yaml:"parent"`
	File   string `yaml:"file"`
	Line   int    `yaml:"line"`
	Column int    `yaml:"column"`
	at     at
}

func (d *blockDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain blockDecl
	return decodeAt(n, (*plain)(d), &d.at)
}

type variableDecl struct {
	ID    string   `yaml:"id"`
	Name  string   `yaml:"name"`
	Scope string   `yaml:"scope"`
	File  string   `yaml:"file"`
	Line  int      `yaml:"line"`
	Type  string   `yaml:"type"`
	Arg   int      `yaml:"arg"`
	Flags []string `yaml:"flags"`
	at    at
}

func (d *variableDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain variableDecl
	return decodeAt(n, (*plain)(d), &d.at)
}

type functionDecl struct {
	Name           string              `yaml:"name"`
	Section        string              `yaml:"section"`
	Subprogram     string              `yaml:"subprogram"`
	Calls          []callDecl          `yaml:"calls"`
	FrameObjects   []frameObjectDecl   `yaml:"frame_objects"`
	FrameVariables []frameVariableDecl `yaml:"frame_variables"`
	Blocks         []basicBlockDecl    `yaml:"blocks"`
	at             at
}

func (d *functionDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain functionDecl
	return decodeAt(n, (*plain)(d), &d.at)
}

// callDecl is an inlining call site shared by the instructions inlined
// through it.
type callDecl struct {
	ID        string `yaml:"id"`
	Line      int    `yaml:"line"`
	Column    int    `yaml:"column"`
	Scope     string `yaml:"scope"`
	InlinedAt string `yaml:"inlined_at"`
	at        at
}

func (d *callDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain callDecl
	return decodeAt(n, (*plain)(d), &d.at)
}

type frameObjectDecl struct {
	Index  int    `yaml:"index"`
	Base   string `yaml:"base"`
	Offset int64  `yaml:"offset"`
	at     at
}

func (d *frameObjectDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain frameObjectDecl
	return decodeAt(n, (*plain)(d), &d.at)
}

type frameVariableDecl struct {
	Var  string   `yaml:"var"`
	Slot int      `yaml:"slot"`
	Expr []string `yaml:"expr"`
	Call string   `yaml:"call"`
	at   at
}

func (d *frameVariableDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain frameVariableDecl
	return decodeAt(n, (*plain)(d), &d.at)
}

type basicBlockDecl struct {
	Label string     `yaml:"label"`
	Insns []insnDecl `yaml:"insns"`
}

type insnDecl struct {
	// Offset defaults to the end of the previous instruction.
	Offset        *uint64       `yaml:"offset"`
	Size          uint64        `yaml:"size"`
	Text          string        `yaml:"text"`
	Line          int           `yaml:"line"`
	Column        int           `yaml:"column"`
	Discriminator uint32        `yaml:"discriminator"`
	Scope         string        `yaml:"scope"`
	Call          string        `yaml:"call"`
	Defs          []string      `yaml:"defs"`
	FrameSetup    bool          `yaml:"frame_setup"`
	Meta          bool          `yaml:"meta"`
	DbgValue      *dbgValueDecl `yaml:"dbg_value"`
	at            at
}

func (d *insnDecl) UnmarshalYAML(n *yaml.Node) error {
	type plain insnDecl
	return decodeAt(n, (*plain)(d), &d.at)
}

type dbgValueDecl struct {
	Var      string   `yaml:"var"`
	Call     string   `yaml:"call"`
	Expr     []string `yaml:"expr"`
	Reg      string   `yaml:"reg"`
	Indirect bool     `yaml:"indirect"`
	Offset   int64    `yaml:"offset"`
	Imm      *int64   `yaml:"imm"`
	Float    *float64 `yaml:"float"`
	// FloatSize is 4 or 8; 8 when unset.
	FloatSize int `yaml:"float_size"`
	// Undef ends the variable's current value.
	Undef bool `yaml:"undef"`
}
