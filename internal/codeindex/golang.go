package codeindex

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// GoPack extracts entities from Go source using the standard library
// parser, walking top-level declarations; a method's qualified name is
// built from its receiver's type name.
type GoPack struct{}

// NewGoPack constructs the Go language pack.
func NewGoPack() *GoPack { return &GoPack{} }

func (p *GoPack) Name() string { return "go" }

func (p *GoPack) Extensions() []string { return []string{".go"} }

func (p *GoPack) Parse(relPath string, content []byte) ([]Entity, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, relPath, content, parser.ParseComments)
	if err != nil {
		return nil, err
	}
	pkg := file.Name.Name

	structNames := make(map[string]struct{})
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			if _, isStruct := ts.Type.(*ast.StructType); isStruct {
				structNames[ts.Name.Name] = struct{}{}
			}
			if _, isIface := ts.Type.(*ast.InterfaceType); isIface {
				structNames[ts.Name.Name] = struct{}{}
			}
		}
	}

	var entities []Entity
	var imports []string
	for _, imp := range file.Imports {
		imports = append(imports, strings.Trim(imp.Path.Value, `"`))
	}
	if len(imports) > 0 {
		entities = append(entities, Entity{
			QualifiedName: pkg, Name: pkg, Kind: KindImport,
			LineStart: fset.Position(file.Pos()).Line, LineEnd: fset.Position(file.Pos()).Line,
			Imports: imports,
		})
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			entities = append(entities, p.parseFunc(fset, pkg, d))
		case *ast.GenDecl:
			if d.Tok == token.TYPE {
				entities = append(entities, p.parseTypeDecl(fset, pkg, d)...)
			}
		}
	}
	return entities, nil
}

func (p *GoPack) parseFunc(fset *token.FileSet, pkg string, d *ast.FuncDecl) Entity {
	kind := KindFunction
	qualified := pkg + "." + d.Name.Name
	if d.Recv != nil && len(d.Recv.List) > 0 {
		kind = KindMethod
		recvType := receiverTypeName(d.Recv.List[0].Type)
		if recvType != "" {
			qualified = pkg + "." + recvType + "." + d.Name.Name
		}
	}

	return Entity{
		QualifiedName: qualified,
		Name:          d.Name.Name,
		Kind:          kind,
		LineStart:     fset.Position(d.Pos()).Line,
		LineEnd:       fset.Position(d.End()).Line,
		Signature:     fieldListText(d.Type.Params),
		Docstring:     commentText(d.Doc),
		Calls:         collectCalls(d.Body),
	}
}

func (p *GoPack) parseTypeDecl(fset *token.FileSet, pkg string, d *ast.GenDecl) []Entity {
	var out []Entity
	for _, spec := range d.Specs {
		ts, ok := spec.(*ast.TypeSpec)
		if !ok {
			continue
		}
		kind := KindClass
		var inherits []string
		switch t := ts.Type.(type) {
		case *ast.InterfaceType:
			kind = KindInterface
			_ = t
		case *ast.StructType:
			for _, f := range t.Fields.List {
				if len(f.Names) == 0 { // embedded field -> Go's analogue of inheritance
					inherits = append(inherits, exprText(f.Type))
				}
			}
		}
		out = append(out, Entity{
			QualifiedName: pkg + "." + ts.Name.Name,
			Name:          ts.Name.Name,
			Kind:          kind,
			LineStart:     fset.Position(ts.Pos()).Line,
			LineEnd:       fset.Position(ts.End()).Line,
			Docstring:     commentText(d.Doc),
			Inherits:      inherits,
		})
	}
	return out
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	case *ast.Ident:
		return t.Name
	default:
		return ""
	}
}

func exprText(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return exprText(t.X)
	case *ast.SelectorExpr:
		return exprText(t.X) + "." + t.Sel.Name
	default:
		return ""
	}
}

func fieldListText(fl *ast.FieldList) string {
	if fl == nil {
		return "()"
	}
	var parts []string
	for _, f := range fl.List {
		typ := exprText(f.Type)
		if len(f.Names) == 0 {
			parts = append(parts, typ)
			continue
		}
		for _, n := range f.Names {
			parts = append(parts, n.Name+" "+typ)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func commentText(cg *ast.CommentGroup) string {
	if cg == nil {
		return ""
	}
	return strings.TrimSpace(cg.Text())
}

// collectCalls walks a function body for call expressions naming a bare
// identifier or selector, used by analyze_impact's call-graph signal. Only
// structural parent/child and import relationships are required by the
// spec; this is a best-effort supplement, not full dataflow analysis.
func collectCalls(body *ast.BlockStmt) []string {
	if body == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var calls []string
	ast.Inspect(body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		name := exprText(call.Fun)
		if name == "" {
			return true
		}
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			calls = append(calls, name)
		}
		return true
	})
	return calls
}
