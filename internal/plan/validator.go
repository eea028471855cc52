// Package plan validates and rewrites externally authored metric snippets
// before they reach the sandbox. Validation is structural: the snippet is
// parsed into a syntax tree, known-unsafe idioms are rewritten into their
// safe helper equivalents, denied constructs are rejected, and the trailing
// expression is bound to the distinguished result identifier.
//
// The denylist is a parse-tree check, not a capability sandbox: it does not
// bound CPU or memory and it assumes snippets come from a constrained
// machine generator. Callers that need a hard boundary must add one outside
// this package (worker process, rlimits).
package plan

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"strings"

	"go.uber.org/zap"
)

// ResultIdent is the binding every validated snippet assigns its final value
// to. The sandbox predeclares it and reads it back after execution.
const ResultIdent = "result"

// scrubIdent names the sandbox helper appended as the normalization tail.
const scrubIdent = "scrubResult"

// deniedCalls are bare function names a snippet may never call.
var deniedCalls = map[string]bool{
	"eval":   true,
	"exec":   true,
	"open":   true,
	"system": true,
}

// deniedRoots are identifiers a snippet may never reference, alone or as a
// package qualifier.
var deniedRoots = map[string]bool{
	"os":      true,
	"syscall": true,
	"unsafe":  true,
}

// Validation is the outcome of validating one snippet. Rewritten is only
// populated when OK is true; Message only when it is false.
type Validation struct {
	OK        bool
	Rewritten string
	Message   string
}

// Validator checks and rewrites metric snippets. All failure modes surface
// through the returned Validation, never as a panic.
type Validator struct {
	log *zap.Logger
}

// NewValidator creates a validator. A nil logger is replaced with a no-op
// logger.
func NewValidator(log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{log: log}
}

func fail(format string, args ...interface{}) Validation {
	return Validation{OK: false, Message: fmt.Sprintf(format, args...)}
}

// Validate parses, rewrites, and checks a snippet. On success it returns the
// fully rewritten snippet whose last statements bind and scrub the result.
func (v *Validator) Validate(code string) (out Validation) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Warn("validator panic", zap.Any("panic", r), zap.String("code", code))
			out = fail("internal validation failure: %v", r)
		}
	}()

	if strings.TrimSpace(code) == "" {
		return fail("empty snippet")
	}

	// Import lines never parse inside the wrapper, so catch them up front
	// with a message that names the construct.
	for _, line := range strings.Split(code, "\n") {
		if startsImport(strings.TrimSpace(line)) {
			return fail("import statements are not allowed")
		}
	}

	fset := token.NewFileSet()
	src := "package metrics\n\nfunc snippet() {\n" + code + "\n}\n"
	file, err := parser.ParseFile(fset, "snippet.go", src, 0)
	if err != nil {
		return fail("syntax error: %v", err)
	}
	fn, ok := file.Decls[0].(*ast.FuncDecl)
	if !ok || fn.Body == nil {
		return fail("snippet is not a statement list")
	}

	stmts := rewriteStmts(fn.Body.List)

	if msg := v.checkDenied(stmts); msg != "" {
		return fail("%s", msg)
	}

	stmts, err = bindResult(stmts)
	if err != nil {
		return fail("%v", err)
	}

	// Normalization tail: zero out a non-finite scalar result or the
	// non-finite values of a flat mapping. Deep scrubbing happens later in
	// the normalizer.
	stmts = append(stmts, &ast.AssignStmt{
		Lhs: []ast.Expr{ast.NewIdent(ResultIdent)},
		Tok: token.ASSIGN,
		Rhs: []ast.Expr{&ast.CallExpr{
			Fun:  ast.NewIdent(scrubIdent),
			Args: []ast.Expr{ast.NewIdent(ResultIdent)},
		}},
	})

	var buf bytes.Buffer
	for _, s := range stmts {
		if err := printer.Fprint(&buf, fset, s); err != nil {
			return fail("rewrite failed: %v", err)
		}
		buf.WriteString("\n")
	}
	return Validation{OK: true, Rewritten: buf.String()}
}

// startsImport reports whether a trimmed line begins with the import keyword
// as a whole token, so identifiers like `important_total` pass through to the
// parser.
func startsImport(line string) bool {
	rest := strings.TrimPrefix(line, "import")
	if rest == line {
		return false
	}
	return rest == "" || rest[0] == ' ' || rest[0] == '\t' || rest[0] == '"' || rest[0] == '(' || rest[0] == '`'
}

// checkDenied walks the rewritten statements and reports the first denied
// construct, or "" if the snippet is clean.
func (v *Validator) checkDenied(stmts []ast.Stmt) string {
	var msg string
	for _, s := range stmts {
		ast.Inspect(s, func(n ast.Node) bool {
			if msg != "" {
				return false
			}
			switch node := n.(type) {
			case *ast.FuncLit:
				msg = "function definitions are not allowed"
				return false
			case *ast.DeclStmt:
				if gd, ok := node.Decl.(*ast.GenDecl); ok {
					switch gd.Tok {
					case token.TYPE:
						msg = "type definitions are not allowed"
						return false
					case token.IMPORT:
						msg = "import statements are not allowed"
						return false
					}
				}
			case *ast.GoStmt:
				msg = "go statements are not allowed"
				return false
			case *ast.ReturnStmt:
				msg = "return statements are not allowed"
				return false
			case *ast.CallExpr:
				switch fun := node.Fun.(type) {
				case *ast.Ident:
					if deniedCalls[fun.Name] {
						msg = fmt.Sprintf("call to %q is not allowed", fun.Name)
						return false
					}
				case *ast.SelectorExpr:
					if root, ok := fun.X.(*ast.Ident); ok && (deniedRoots[root.Name] || deniedCalls[root.Name]) {
						msg = fmt.Sprintf("call to %q is not allowed", root.Name+"."+fun.Sel.Name)
						return false
					}
				}
			case *ast.Ident:
				if deniedRoots[node.Name] {
					msg = fmt.Sprintf("reference to %q is not allowed", node.Name)
					return false
				}
			}
			return true
		})
		if msg != "" {
			return msg
		}
	}
	return ""
}

// bindResult ensures the final executed statement assigns the result
// binding: a trailing expression becomes `result = expr`, and a trailing
// assignment to another name is followed by `result = name`.
func bindResult(stmts []ast.Stmt) ([]ast.Stmt, error) {
	if len(stmts) == 0 {
		return nil, fmt.Errorf("empty snippet")
	}
	last := stmts[len(stmts)-1]

	switch s := last.(type) {
	case *ast.ExprStmt:
		stmts[len(stmts)-1] = assignResult(s.X)
		return stmts, nil
	case *ast.AssignStmt:
		if name, ok := assignTarget(s); ok {
			if name == ResultIdent {
				return stmts, nil
			}
			return append(stmts, assignResult(ast.NewIdent(name))), nil
		}
	}

	// Fall back to the most recent assignment target anywhere above.
	for i := len(stmts) - 1; i >= 0; i-- {
		if name, ok := stmtTarget(stmts[i]); ok {
			if name == ResultIdent && i == len(stmts)-1 {
				return stmts, nil
			}
			return append(stmts, assignResult(ast.NewIdent(name))), nil
		}
	}
	return nil, fmt.Errorf("snippet has no trailing expression or assignment to bind as the result")
}

func assignResult(value ast.Expr) *ast.AssignStmt {
	return &ast.AssignStmt{
		Lhs: []ast.Expr{ast.NewIdent(ResultIdent)},
		Tok: token.ASSIGN,
		Rhs: []ast.Expr{value},
	}
}

func assignTarget(s *ast.AssignStmt) (string, bool) {
	if len(s.Lhs) == 0 {
		return "", false
	}
	if ident, ok := s.Lhs[0].(*ast.Ident); ok && ident.Name != "_" {
		return ident.Name, true
	}
	return "", false
}

func stmtTarget(s ast.Stmt) (string, bool) {
	switch node := s.(type) {
	case *ast.AssignStmt:
		return assignTarget(node)
	case *ast.DeclStmt:
		if gd, ok := node.Decl.(*ast.GenDecl); ok && gd.Tok == token.VAR {
			for _, spec := range gd.Specs {
				if vs, ok := spec.(*ast.ValueSpec); ok && len(vs.Names) > 0 {
					return vs.Names[0].Name, true
				}
			}
		}
	}
	return "", false
}
