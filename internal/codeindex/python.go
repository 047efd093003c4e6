package codeindex

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// PythonPack extracts entities from Python source via tree-sitter, grounded
// on a field-based tree-sitter extraction pattern: a single parser
// instance, field-based node access (ChildByFieldName("name")/("parameters")),
// and a recursive walk that tracks the enclosing class for qualified names
// and docstrings.
type PythonPack struct {
	parser *sitter.Parser
}

// NewPythonPack constructs the Python language pack.
func NewPythonPack() *PythonPack {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &PythonPack{parser: parser}
}

func (p *PythonPack) Name() string { return "python" }

func (p *PythonPack) Extensions() []string { return []string{".py"} }

func (p *PythonPack) Parse(relPath string, content []byte) ([]Entity, error) {
	tree, err := p.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	module := moduleName(relPath)
	w := &pythonWalker{content: content, module: module}
	w.walk(tree.RootNode(), "")
	return w.entities, nil
}

func moduleName(relPath string) string {
	base := strings.TrimSuffix(relPath, ".py")
	base = strings.ReplaceAll(base, "/", ".")
	return base
}

type pythonWalker struct {
	content  []byte
	module   string
	entities []Entity
}

func (w *pythonWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.content)
}

// walk recurses the tree, tracking enclosingClass for qualified-name
// construction (mirrors §4.H "built by walking enclosing class/module
// scopes").
func (w *pythonWalker) walk(n *sitter.Node, enclosingClass string) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "class_definition":
		nameNode := n.ChildByFieldName("name")
		name := w.text(nameNode)
		qualified := w.module + "." + name
		var inherits []string
		if argList := n.ChildByFieldName("superclasses"); argList != nil {
			for i := 0; i < int(argList.NamedChildCount()); i++ {
				inherits = append(inherits, w.text(argList.NamedChild(i)))
			}
		}
		w.entities = append(w.entities, Entity{
			QualifiedName: qualified, Name: name, Kind: KindClass,
			LineStart: int(n.StartPoint().Row) + 1, LineEnd: int(n.EndPoint().Row) + 1,
			Docstring: w.leadingDocstring(n.ChildByFieldName("body")),
			Inherits:  inherits,
		})
		if body := n.ChildByFieldName("body"); body != nil {
			for i := 0; i < int(body.NamedChildCount()); i++ {
				w.walk(body.NamedChild(i), name)
			}
		}
		return

	case "function_definition":
		nameNode := n.ChildByFieldName("name")
		name := w.text(nameNode)
		kind := KindFunction
		qualified := w.module + "." + name
		if enclosingClass != "" {
			kind = KindMethod
			qualified = w.module + "." + enclosingClass + "." + name
		}
		signature := "()"
		if params := n.ChildByFieldName("parameters"); params != nil {
			signature = w.text(params)
		}
		w.entities = append(w.entities, Entity{
			QualifiedName: qualified, Name: name, Kind: kind,
			LineStart: int(n.StartPoint().Row) + 1, LineEnd: int(n.EndPoint().Row) + 1,
			Signature: signature,
			Docstring: w.leadingDocstring(n.ChildByFieldName("body")),
			Calls:     w.collectCalls(n.ChildByFieldName("body")),
		})
		return

	case "import_statement", "import_from_statement":
		var imports []string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "dotted_name" || child.Type() == "aliased_import" {
				imports = append(imports, w.text(child))
			}
		}
		if len(imports) > 0 {
			w.entities = append(w.entities, Entity{
				QualifiedName: fmt.Sprintf("%s.imports@%d", w.module, n.StartPoint().Row+1),
				Name:          w.module, Kind: KindImport,
				LineStart: int(n.StartPoint().Row) + 1, LineEnd: int(n.StartPoint().Row) + 1,
				Imports: imports,
			})
		}
		return
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), enclosingClass)
	}
}

// leadingDocstring returns the text of a first statement that is a bare
// string expression, Python's docstring convention.
func (w *pythonWalker) leadingDocstring(body *sitter.Node) string {
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	return strings.Trim(w.text(str), "\"'")
}

func (w *pythonWalker) collectCalls(body *sitter.Node) []string {
	if body == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var calls []string
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "call" {
			if fn := n.ChildByFieldName("function"); fn != nil {
				name := w.text(fn)
				if _, ok := seen[name]; !ok {
					seen[name] = struct{}{}
					calls = append(calls, name)
				}
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(body)
	return calls
}
