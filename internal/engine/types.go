// Package engine is the boundary to the language analysis engine. The
// service and the builder only talk to the Engine and Program interfaces;
// Lite is the bundled implementation.
package engine

import (
	"context"
	"fmt"
)

// Position is a 1-based line and column.
type Position struct {
	Line   int `json:"line"`
	Offset int `json:"offset"`
}

// Before reports whether p sorts before q.
func (p Position) Before(q Position) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Offset < q.Offset
}

func (p Position) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Offset) }

// TextSpan is a half-open range of positions inside one file.
type TextSpan struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location is a span in a named file.
type Location struct {
	File  string   `json:"file"`
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// DefinitionInfo answers a go-to-definition request.
type DefinitionInfo struct {
	Definitions []Location `json:"definitions"`
	TextSpan    TextSpan   `json:"textSpan"`
}

// Category classifies a diagnostic.
type Category string

const (
	CategoryError   Category = "error"
	CategoryWarning Category = "warning"
	CategoryMessage Category = "message"
)

// Diagnostic is a compiler-style message with a stable numeric code.
type Diagnostic struct {
	File     string    `json:"file,omitempty"`
	Start    *Position `json:"start,omitempty"`
	End      *Position `json:"end,omitempty"`
	Text     string    `json:"text"`
	Code     int       `json:"code"`
	Category Category  `json:"category"`
}

func (d Diagnostic) String() string {
	if d.File == "" {
		return fmt.Sprintf("error TS%d: %s", d.Code, d.Text)
	}
	if d.Start == nil {
		return fmt.Sprintf("%s - error TS%d: %s", d.File, d.Code, d.Text)
	}
	return fmt.Sprintf("%s:%d:%d - error TS%d: %s", d.File, d.Start.Line, d.Start.Offset, d.Code, d.Text)
}

// Diagnostic codes produced by the config loader, the engine and the
// builder.
const (
	CodeSyntaxExpected        = 1005
	CodeUnterminatedString    = 1002
	CodeJSONParse             = 1012
	CodeExpressionExpected    = 1109
	CodeDeclarationExpected   = 1128
	CodeNoExportedMember      = 2305
	CodeCannotFindModule      = 2307
	CodeUnknownOption         = 5023
	CodeOptionType            = 5024
	CodeCannotWriteFile       = 5033
	CodeCannotReadExtended    = 5083
	CodeFileNotFound          = 6053
	CodeReferenceCycle        = 6202
	CodeOutputNotBuilt        = 6305
	CodeReferenceNotComposite = 6306
)

// NewDiagnostic builds an error diagnostic with no location.
func NewDiagnostic(code int, format string, args ...any) Diagnostic {
	return Diagnostic{Text: fmt.Sprintf(format, args...), Code: code, Category: CategoryError}
}

// NewFileDiagnostic builds an error diagnostic attached to a file span.
func NewFileDiagnostic(file string, span TextSpan, code int, format string, args ...any) Diagnostic {
	start, end := span.Start, span.End
	return Diagnostic{
		File:     file,
		Start:    &start,
		End:      &end,
		Text:     fmt.Sprintf(format, args...),
		Code:     code,
		Category: CategoryError,
	}
}

// CompilerOptions holds the options the service and builder act on. Paths
// are absolute once produced by the config loader.
type CompilerOptions struct {
	OutDir         string `json:"outDir,omitempty"`
	OutFile        string `json:"outFile,omitempty"`
	RootDir        string `json:"rootDir,omitempty"`
	DeclarationDir string `json:"declarationDir,omitempty"`
	Composite      bool   `json:"composite,omitempty"`
	Declaration    bool   `json:"declaration,omitempty"`
	DeclarationMap bool   `json:"declarationMap,omitempty"`
	NoLib          bool   `json:"noLib,omitempty"`
	AllowJs        bool   `json:"allowJs,omitempty"`
	NoEmit         bool   `json:"noEmit,omitempty"`

	// Types restricts automatic @types inclusion when HasTypes is set.
	Types     []string `json:"types,omitempty"`
	HasTypes  bool     `json:"-"`
	TypeRoots []string `json:"typeRoots,omitempty"`
}

// EmitsDeclarations reports whether a .d.ts is produced.
func (o CompilerOptions) EmitsDeclarations() bool {
	return !o.NoEmit && (o.Declaration || o.Composite)
}

// Reference is a resolved project reference handed to LoadProgram.
type Reference struct {
	ConfigPath string
	ConfigDir  string
	RootFiles  []string
	Options    CompilerOptions
	Prepend    bool
	// Missing marks a reference whose config file does not exist.
	Missing    bool
}

// ProgramOptions describes one program to load.
type ProgramOptions struct {
	RootFiles  []string
	Options    CompilerOptions
	ConfigDir  string
	References []Reference
	LibFile    string
}

// OutputFile is one emitted artifact.
type OutputFile struct {
	Path string
	Text string
}

// EmitResult is the product of Program.Emit.
type EmitResult struct {
	Outputs     []OutputFile
	Diagnostics []Diagnostic
}

// SymbolKind classifies a declaration.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindClass     SymbolKind = "class"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindEnum      SymbolKind = "enum"
	KindVariable  SymbolKind = "variable"
	KindNamespace SymbolKind = "namespace"
	KindModule    SymbolKind = "module"
	KindImport    SymbolKind = "import"
	KindParameter SymbolKind = "parameter"
)

// Symbol is a declaration reported by Program.Symbols.
type Symbol struct {
	Name      string     `json:"name"`
	Qualified string     `json:"qualified"`
	Kind      SymbolKind `json:"kind"`
	Exported  bool       `json:"exported"`
	Span      TextSpan   `json:"span"`
	// References lists the spans in the same file that resolve to this
	// symbol, excluding the declaration itself.
	References []TextSpan `json:"references,omitempty"`
}

// Program is a loaded, queryable set of files.
type Program interface {
	Files() []string
	RootFiles() []string
	ContainsFile(path string) bool

	SyntacticDiagnostics(file string) []Diagnostic
	SemanticDiagnostics(file string) []Diagnostic
	OptionsDiagnostics() []Diagnostic

	Definition(file string, pos Position) (*DefinitionInfo, error)
	References(file string, pos Position) ([]Location, error)
	Symbols(file string) []Symbol

	Emit() (*EmitResult, error)
}

// Engine loads programs.
type Engine interface {
	LoadProgram(ctx context.Context, opts ProgramOptions) (Program, error)
}
