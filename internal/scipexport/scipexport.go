// Package scipexport writes the declarations of a configured project as a
// SCIP index.
package scipexport

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	"projd/internal/engine"
	"projd/internal/errors"
	"projd/internal/paths"
	"projd/internal/projconfig"
	"projd/internal/slogutil"
	"projd/internal/version"
	"projd/internal/vfs"
)

// Scheme is the symbol scheme of exported symbols.
const Scheme = "projd"

// Exporter turns project programs into SCIP indexes.
type Exporter struct {
	fs      *vfs.FS
	eng     engine.Engine
	loader  *projconfig.Loader
	libFile string
	logger  *slog.Logger
}

// New creates an exporter. A nil loader is created over fs.
func New(fs *vfs.FS, eng engine.Engine, loader *projconfig.Loader, libFile string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if loader == nil {
		loader = projconfig.NewLoader(fs, logger)
	}
	return &Exporter{fs: fs, eng: eng, loader: loader, libFile: libFile, logger: logger}
}

// IndexProject loads the project of configPath and indexes its root
// files. Config errors are returned as a BUILD_FAILED error.
func (e *Exporter) IndexProject(ctx context.Context, configPath string) (*scippb.Index, error) {
	configPath = paths.Normalize(configPath)
	if !e.fs.FileExists(configPath) {
		return nil, errors.NewProjectNotFound(configPath)
	}
	parsed := e.loader.Load(configPath)
	for _, d := range parsed.Errors {
		if d.Category == engine.CategoryError && d.Code == engine.CodeJSONParse {
			return nil, errors.Newf(errors.ConfigParse, "%s", d.String())
		}
	}
	refs, _ := e.loader.ProgramReferences(parsed)
	prog, err := e.eng.LoadProgram(ctx, engine.ProgramOptions{
		RootFiles:  parsed.RootFiles,
		Options:    parsed.Options,
		ConfigDir:  parsed.ConfigDir,
		References: refs,
		LibFile:    e.libFile,
	})
	if err != nil {
		return nil, errors.New(errors.BuildFailed, "cannot load program for "+configPath, err)
	}
	idx := Index(prog, parsed.RootFiles, parsed.ConfigDir)
	e.logger.Info("Project indexed",
		"config", configPath,
		"documents", len(idx.Documents),
	)
	return idx, nil
}

// Index builds a SCIP index of files, with document paths relative to
// root.
func Index(prog engine.Program, files []string, root string) *scippb.Index {
	idx := &scippb.Index{
		Metadata: &scippb.Metadata{
			Version: scippb.ProtocolVersion_UnspecifiedProtocolVersion,
			ToolInfo: &scippb.ToolInfo{
				Name:    "projd",
				Version: version.Version,
			},
			ProjectRoot:          "file://" + root,
			TextDocumentEncoding: scippb.TextEncoding_UTF8,
		},
	}
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	for _, f := range sorted {
		if !prog.ContainsFile(f) {
			continue
		}
		idx.Documents = append(idx.Documents, document(prog, f, paths.Rel(root, f)))
	}
	return idx
}

func document(prog engine.Program, file, rel string) *scippb.Document {
	doc := &scippb.Document{
		Language:     language(file),
		RelativePath: rel,
	}
	for _, sym := range prog.Symbols(file) {
		id := SymbolID(rel, sym)
		doc.Symbols = append(doc.Symbols, &scippb.SymbolInformation{
			Symbol:      id,
			Kind:        kindOf(sym.Kind),
			DisplayName: sym.Name,
		})
		doc.Occurrences = append(doc.Occurrences, &scippb.Occurrence{
			Range:       scipRange(sym.Span),
			Symbol:      id,
			SymbolRoles: int32(scippb.SymbolRole_Definition),
		})
		for _, ref := range sym.References {
			doc.Occurrences = append(doc.Occurrences, &scippb.Occurrence{
				Range:  scipRange(ref),
				Symbol: id,
			})
		}
	}
	sort.SliceStable(doc.Occurrences, func(i, j int) bool {
		a, b := doc.Occurrences[i].Range, doc.Occurrences[j].Range
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		return a[1] < b[1]
	})
	return doc
}

func language(file string) string {
	if paths.HasExt(file, paths.ExtJS, paths.ExtJSX) {
		return "JavaScript"
	}
	return "TypeScript"
}

// scipRange converts a 1-based span to SCIP's zero-based range, using the
// three-element form for single-line spans.
func scipRange(s engine.TextSpan) []int32 {
	sl, sc := int32(s.Start.Line-1), int32(s.Start.Offset-1)
	el, ec := int32(s.End.Line-1), int32(s.End.Offset-1)
	if sl == el {
		return []int32{sl, sc, ec}
	}
	return []int32{sl, sc, el, ec}
}

func kindOf(k engine.SymbolKind) scippb.SymbolInformation_Kind {
	switch k {
	case engine.KindFunction:
		return scippb.SymbolInformation_Function
	case engine.KindClass:
		return scippb.SymbolInformation_Class
	case engine.KindInterface:
		return scippb.SymbolInformation_Interface
	case engine.KindType:
		return scippb.SymbolInformation_TypeAlias
	case engine.KindEnum:
		return scippb.SymbolInformation_Enum
	case engine.KindVariable:
		return scippb.SymbolInformation_Variable
	case engine.KindNamespace:
		return scippb.SymbolInformation_Namespace
	case engine.KindModule:
		return scippb.SymbolInformation_Module
	}
	return scippb.SymbolInformation_UnspecifiedKind
}

// SymbolID formats the global symbol of sym declared in the document at
// rel: the file path as namespaces, enclosing namespaces, then the name
// with a suffix for its kind.
func SymbolID(rel string, sym engine.Symbol) string {
	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteString(" . . . ")
	for _, seg := range strings.Split(rel, "/") {
		b.WriteString(escape(seg))
		b.WriteByte('/')
	}
	parts := strings.Split(sym.Qualified, ".")
	if sym.Qualified == "" {
		parts = []string{sym.Name}
	}
	for _, ns := range parts[:len(parts)-1] {
		b.WriteString(escape(ns))
		b.WriteByte('/')
	}
	b.WriteString(escape(parts[len(parts)-1]))
	switch sym.Kind {
	case engine.KindFunction:
		b.WriteString("().")
	case engine.KindClass, engine.KindInterface, engine.KindType, engine.KindEnum:
		b.WriteByte('#')
	case engine.KindNamespace, engine.KindModule:
		b.WriteByte('/')
	default:
		b.WriteByte('.')
	}
	return b.String()
}

// escape backtick-quotes a descriptor name that is not a simple
// identifier.
func escape(name string) string {
	simple := name != ""
	for _, r := range name {
		if !(r == '_' || r == '+' || r == '-' || r == '$' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			simple = false
			break
		}
	}
	if simple {
		return name
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Marshal encodes an index in the SCIP protobuf wire format.
func Marshal(idx *scippb.Index) ([]byte, error) {
	data, err := proto.Marshal(idx)
	if err != nil {
		return nil, fmt.Errorf("marshal scip index: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a SCIP index.
func Unmarshal(data []byte) (*scippb.Index, error) {
	var idx scippb.Index
	if err := proto.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse scip index: %w", err)
	}
	return &idx, nil
}

// CompressedExt marks index files stored zstd-compressed.
const CompressedExt = ".zst"

// WriteFile encodes idx to path on fs, compressing it when path ends in
// CompressedExt.
func WriteFile(fs *vfs.FS, path string, idx *scippb.Index) error {
	data, err := Marshal(idx)
	if err != nil {
		return err
	}
	if strings.HasSuffix(path, CompressedExt) {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return errors.New(errors.InternalError, "zstd encoder", err)
		}
		data = enc.EncodeAll(data, nil)
		_ = enc.Close()
	}
	if err := fs.WriteFile(path, data); err != nil {
		return errors.New(errors.InternalError, "cannot write "+path, err)
	}
	return nil
}

// ReadFile loads an index written by WriteFile.
func ReadFile(fs *vfs.FS, path string) (*scippb.Index, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.InternalError, "cannot read "+path, err)
	}
	if strings.HasSuffix(path, CompressedExt) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, errors.New(errors.InternalError, "zstd decoder", err)
		}
		defer dec.Close()
		if data, err = dec.DecodeAll(data, nil); err != nil {
			return nil, fmt.Errorf("decompress %s: %w", path, err)
		}
	}
	return Unmarshal(data)
}
