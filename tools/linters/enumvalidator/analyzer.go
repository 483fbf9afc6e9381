// Package enumvalidator reports string literals written into fields whose
// type is a string enum. Status and strategy columns must be set from the
// declared constants so a typo cannot reach the database.
package enumvalidator

import (
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

var Analyzer = &analysis.Analyzer{
	Name:     "enumvalidator",
	Doc:      "reports string literals assigned to string enum fields",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

func run(pass *analysis.Pass) (any, error) {
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	filter := []ast.Node{
		(*ast.AssignStmt)(nil),
		(*ast.KeyValueExpr)(nil),
	}
	insp.Preorder(filter, func(n ast.Node) {
		switch node := n.(type) {
		case *ast.AssignStmt:
			if len(node.Lhs) != len(node.Rhs) {
				return
			}
			for i, lhs := range node.Lhs {
				sel, ok := lhs.(*ast.SelectorExpr)
				if !ok {
					continue
				}
				check(pass, sel.Sel.Name, pass.TypesInfo.TypeOf(sel), node.Rhs[i])
			}
		case *ast.KeyValueExpr:
			key, ok := node.Key.(*ast.Ident)
			if !ok {
				return
			}
			field, ok := pass.TypesInfo.ObjectOf(key).(*types.Var)
			if !ok || !field.IsField() {
				return
			}
			check(pass, key.Name, field.Type(), node.Value)
		}
	})
	return nil, nil
}

func check(pass *analysis.Pass, field string, typ types.Type, value ast.Expr) {
	lit, ok := value.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return
	}
	named, ok := typ.(*types.Named)
	if !ok || !isEnum(named) {
		return
	}
	pass.Reportf(lit.Pos(), "enum field %s assigned string literal %s, use a %s constant",
		field, lit.Value, named.Obj().Name())
}

// isEnum reports whether named is a string type with at least one constant
// of that type declared in its package.
func isEnum(named *types.Named) bool {
	basic, ok := named.Underlying().(*types.Basic)
	if !ok || basic.Info()&types.IsString == 0 {
		return false
	}
	pkg := named.Obj().Pkg()
	if pkg == nil {
		return false
	}
	scope := pkg.Scope()
	for _, name := range scope.Names() {
		if c, ok := scope.Lookup(name).(*types.Const); ok && types.Identical(c.Type(), named) {
			return true
		}
	}
	return false
}
