package plan

import (
	"go/ast"
	"go/token"
)

// Structural rewrite rules applied before the deny walk. Exactly three
// idioms the snippet generator is known to emit unsafely are rewritten into
// their safe equivalents:
//
//  1. the dataset alias `data` becomes `df`
//  2. a raw division `a / b` becomes `safeDivide(a, b)`
//  3. a raw contains check (`strings.Contains(x, y)` or `x.Contains(y)`)
//     becomes `safeContains(x, y)`
//
// Note that rule 2 makes the quotient an interface value inside the
// interpreter, so composing it with further arithmetic fails as a per-metric
// error rather than silently changing meaning.

const (
	divideIdent   = "safeDivide"
	containsIdent = "safeContains"
)

func rewriteStmts(stmts []ast.Stmt) []ast.Stmt {
	out := make([]ast.Stmt, len(stmts))
	for i, s := range stmts {
		out[i] = rewriteStmt(s)
	}
	return out
}

func rewriteStmt(s ast.Stmt) ast.Stmt {
	switch node := s.(type) {
	case *ast.ExprStmt:
		node.X = rewriteExpr(node.X)
	case *ast.AssignStmt:
		for i, e := range node.Lhs {
			node.Lhs[i] = rewriteExpr(e)
		}
		for i, e := range node.Rhs {
			node.Rhs[i] = rewriteExpr(e)
		}
	case *ast.IfStmt:
		if node.Init != nil {
			node.Init = rewriteStmt(node.Init)
		}
		node.Cond = rewriteExpr(node.Cond)
		rewriteBlock(node.Body)
		if node.Else != nil {
			node.Else = rewriteStmt(node.Else)
		}
	case *ast.ForStmt:
		if node.Init != nil {
			node.Init = rewriteStmt(node.Init)
		}
		if node.Cond != nil {
			node.Cond = rewriteExpr(node.Cond)
		}
		if node.Post != nil {
			node.Post = rewriteStmt(node.Post)
		}
		rewriteBlock(node.Body)
	case *ast.RangeStmt:
		node.X = rewriteExpr(node.X)
		rewriteBlock(node.Body)
	case *ast.BlockStmt:
		rewriteBlock(node)
	case *ast.DeclStmt:
		if gd, ok := node.Decl.(*ast.GenDecl); ok {
			for _, spec := range gd.Specs {
				if vs, ok := spec.(*ast.ValueSpec); ok {
					for i, e := range vs.Values {
						vs.Values[i] = rewriteExpr(e)
					}
				}
			}
		}
	}
	return s
}

func rewriteBlock(b *ast.BlockStmt) {
	for i, s := range b.List {
		b.List[i] = rewriteStmt(s)
	}
}

func rewriteExpr(e ast.Expr) ast.Expr {
	switch node := e.(type) {
	case *ast.Ident:
		if node.Name == "data" {
			return &ast.Ident{Name: "df", NamePos: node.NamePos}
		}
	case *ast.BinaryExpr:
		node.X = rewriteExpr(node.X)
		node.Y = rewriteExpr(node.Y)
		if node.Op == token.QUO {
			return &ast.CallExpr{
				Fun:  ast.NewIdent(divideIdent),
				Args: []ast.Expr{node.X, node.Y},
			}
		}
	case *ast.CallExpr:
		node.Fun = rewriteExpr(node.Fun)
		for i, a := range node.Args {
			node.Args[i] = rewriteExpr(a)
		}
		if sel, ok := node.Fun.(*ast.SelectorExpr); ok && sel.Sel.Name == "Contains" {
			if root, ok := sel.X.(*ast.Ident); ok && root.Name == "strings" && len(node.Args) == 2 {
				return &ast.CallExpr{Fun: ast.NewIdent(containsIdent), Args: node.Args}
			}
			if len(node.Args) == 1 {
				return &ast.CallExpr{
					Fun:  ast.NewIdent(containsIdent),
					Args: []ast.Expr{sel.X, node.Args[0]},
				}
			}
		}
	case *ast.ParenExpr:
		node.X = rewriteExpr(node.X)
	case *ast.SelectorExpr:
		node.X = rewriteExpr(node.X)
	case *ast.IndexExpr:
		node.X = rewriteExpr(node.X)
		node.Index = rewriteExpr(node.Index)
	case *ast.SliceExpr:
		node.X = rewriteExpr(node.X)
		if node.Low != nil {
			node.Low = rewriteExpr(node.Low)
		}
		if node.High != nil {
			node.High = rewriteExpr(node.High)
		}
	case *ast.UnaryExpr:
		node.X = rewriteExpr(node.X)
	case *ast.StarExpr:
		node.X = rewriteExpr(node.X)
	case *ast.TypeAssertExpr:
		node.X = rewriteExpr(node.X)
	case *ast.CompositeLit:
		for i, el := range node.Elts {
			node.Elts[i] = rewriteExpr(el)
		}
	case *ast.KeyValueExpr:
		node.Key = rewriteExpr(node.Key)
		node.Value = rewriteExpr(node.Value)
	}
	return e
}
