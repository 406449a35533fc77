//go:build cgo

package engine

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"projd/internal/paths"
)

// treeSitterDiagnostics reparses f with the tree-sitter grammar and reports
// the first error or missing node it finds.
func treeSitterDiagnostics(f *sourceFile) []Diagnostic {
	lang := typescript.GetLanguage()
	if paths.HasExt(f.path, paths.ExtTSX, paths.ExtJSX) {
		lang = tsx.GetLanguage()
	}
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(f.text))
	if err != nil || tree == nil {
		return nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || !root.HasError() {
		return nil
	}
	bad := firstError(root)
	if bad == nil {
		return nil
	}
	start, end := int(bad.StartByte()), int(bad.EndByte())
	if bad.IsMissing() {
		return []Diagnostic{NewFileDiagnostic(f.path, f.span(start, end), CodeSyntaxExpected, "'%s' expected.", bad.Type())}
	}
	return []Diagnostic{NewFileDiagnostic(f.path, f.span(start, end), CodeExpressionExpected, "Expression expected.")}
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := uint32(0); i < n.ChildCount(); i++ {
		if child := n.Child(int(i)); child != nil {
			if bad := firstError(child); bad != nil {
				return bad
			}
		}
	}
	return nil
}
