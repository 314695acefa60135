package analyze

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jward/lattice/internal/catalog"
	"github.com/jward/lattice/internal/scan"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// maxUnderlyingLen caps the stored underlying-type text; the catalog is a
// lookup structure, not a source mirror.
const maxUnderlyingLen = 200

// parseFile parses one Go source file and extracts its declarations.
func (a *Analyzer) parseFile(ctx context.Context, f scan.File) (fileResult, error) {
	content, err := os.ReadFile(f.Path)
	if err != nil {
		return fileResult{}, err
	}
	if int64(len(content)) > a.maxFileSize {
		return fileResult{}, fmt.Errorf("file exceeds %d bytes", a.maxFileSize)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return fileResult{}, err
	}
	defer tree.Close()

	res := fileResult{relPath: f.RelPath}
	root := tree.RootNode()
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "package_clause":
			res.pkg = packageName(child, content)
		case "import_declaration":
			res.imports = append(res.imports, importPaths(child, content)...)
		case "function_declaration":
			if sym, ok := functionSymbol(child, content, f.RelPath, "func"); ok {
				res.symbols = append(res.symbols, sym)
			}
		case "method_declaration":
			if sym, ok := functionSymbol(child, content, f.RelPath, "method"); ok {
				res.symbols = append(res.symbols, sym)
			}
		case "type_declaration":
			syms, types := typeDeclarations(child, content, f.RelPath)
			res.symbols = append(res.symbols, syms...)
			res.types = append(res.types, types...)
		case "var_declaration":
			res.symbols = append(res.symbols, valueSymbols(child, "var_spec", content, f.RelPath, "var")...)
		case "const_declaration":
			res.symbols = append(res.symbols, valueSymbols(child, "const_spec", content, f.RelPath, "const")...)
		}
	}
	return res, nil
}

func nodeText(n *sitter.Node, content []byte) string {
	return string(content[n.StartByte():n.EndByte()])
}

func packageName(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child.Type() == "package_identifier" {
			return nodeText(child, content)
		}
	}
	return ""
}

// importPaths collects the quoted paths of a single or grouped import.
func importPaths(node *sitter.Node, content []byte) []string {
	var paths []string
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			switch child.Type() {
			case "import_spec":
				if p := importSpecPath(child, content); p != "" {
					paths = append(paths, p)
				}
			case "import_spec_list":
				visit(child)
			}
		}
	}
	visit(node)
	return paths
}

func importSpecPath(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "interpreted_string_literal" || child.Type() == "raw_string_literal" {
			return strings.Trim(nodeText(child, content), "\"`")
		}
	}
	return ""
}

// functionSymbol extracts a function or method declaration. The signature is
// the declared parameter and result text; method names are qualified with
// the receiver type so Stack.Push and Queue.Push remain distinct lookups.
func functionSymbol(node *sitter.Node, content []byte, relPath, kind string) (catalog.Symbol, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return catalog.Symbol{}, false
	}
	name := nodeText(nameNode, content)

	var sig strings.Builder
	if params := node.ChildByFieldName("parameters"); params != nil {
		sig.WriteString(nodeText(params, content))
	}
	if result := node.ChildByFieldName("result"); result != nil {
		sig.WriteByte(' ')
		sig.WriteString(nodeText(result, content))
	}

	if kind == "method" {
		if recv := node.ChildByFieldName("receiver"); recv != nil {
			name = receiverType(recv, content) + "." + name
		}
	}

	return catalog.Symbol{
		Name:      name,
		Kind:      kind,
		File:      relPath,
		Line:      int(node.StartPoint().Row) + 1,
		Signature: sig.String(),
	}, true
}

// receiverType digs the bare type name out of a receiver parameter list,
// stripping pointers and type parameters.
func receiverType(recv *sitter.Node, content []byte) string {
	text := nodeText(recv, content)
	text = strings.Trim(text, "()")
	if i := strings.LastIndexByte(text, ' '); i >= 0 {
		text = text[i+1:]
	}
	text = strings.TrimPrefix(text, "*")
	if i := strings.IndexByte(text, '['); i >= 0 {
		text = text[:i]
	}
	return text
}

// typeDeclarations extracts every type_spec and type_alias in a declaration,
// producing both a Symbol and a TypeDescriptor per name.
func typeDeclarations(node *sitter.Node, content []byte, relPath string) ([]catalog.Symbol, []catalog.TypeDescriptor) {
	var syms []catalog.Symbol
	var types []catalog.TypeDescriptor

	for i := 0; i < int(node.ChildCount()); i++ {
		spec := node.Child(i)
		if spec.Type() != "type_spec" && spec.Type() != "type_alias" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		typeNode := spec.ChildByFieldName("type")
		if nameNode == nil {
			continue
		}
		name := nodeText(nameNode, content)
		line := int(spec.StartPoint().Row) + 1

		td := catalog.TypeDescriptor{
			Name: name,
			Kind: typeKind(spec, typeNode),
			File: relPath,
			Line: line,
		}
		if typeNode != nil {
			underlying := nodeText(typeNode, content)
			if len(underlying) > maxUnderlyingLen {
				underlying = underlying[:maxUnderlyingLen]
			}
			td.Underlying = underlying
		}
		types = append(types, td)
		syms = append(syms, catalog.Symbol{
			Name: name,
			Kind: "type",
			File: relPath,
			Line: line,
		})
	}
	return syms, types
}

func typeKind(spec, typeNode *sitter.Node) string {
	if spec.Type() == "type_alias" {
		return "alias"
	}
	if typeNode == nil {
		return "defined"
	}
	switch typeNode.Type() {
	case "struct_type":
		return "struct"
	case "interface_type":
		return "interface"
	case "function_type":
		return "func"
	case "map_type":
		return "map"
	case "slice_type", "array_type":
		return "slice"
	case "channel_type":
		return "chan"
	default:
		return "defined"
	}
}

// valueSymbols extracts var or const declarations; a spec may declare
// several names.
func valueSymbols(node *sitter.Node, specType string, content []byte, relPath, kind string) []catalog.Symbol {
	var syms []catalog.Symbol
	for i := 0; i < int(node.ChildCount()); i++ {
		spec := node.Child(i)
		if spec.Type() != specType {
			continue
		}
		for j := 0; j < int(spec.NamedChildCount()); j++ {
			id := spec.NamedChild(j)
			if id.Type() != "identifier" {
				continue
			}
			syms = append(syms, catalog.Symbol{
				Name: nodeText(id, content),
				Kind: kind,
				File: relPath,
				Line: int(id.StartPoint().Row) + 1,
			})
		}
	}
	return syms
}
