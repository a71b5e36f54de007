// Package pyscript implements the restricted scripting sandbox behind
// the run_python built-in tool. Go has no embeddable CPython, so rather
// than shelling out to a real interpreter (which would reopen the
// filesystem/network access the tool is supposed to deny) this package
// parses the snippet with the standard library's go/parser and walks a
// deliberately small subset of the resulting AST itself: arithmetic,
// string operations, conditionals, bounded loops, and three callbacks
// (read, write, edit) that round-trip through a Dispatcher so every
// filesystem effect still passes through the same sandboxing the other
// built-in tools use.
package pyscript

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
)

// Callbacks supplies the only I/O the script may perform. Each call is
// expected to already be routed through the sandbox by the caller.
type Callbacks struct {
	Read  func(path string) (string, error)
	Write func(path, content string) (string, error)
	Edit  func(path, oldText, newText string) (string, error)
}

// defaultMaxSteps bounds the number of statements/expressions a script
// may evaluate before it is aborted, so a runaway loop can't hang the
// chat turn.
const defaultMaxSteps = 100000

// Run executes code and returns the text the script printed (via the
// built-in print function) or returned (via a return statement),
// whichever the script used. A script error is returned as a Go error;
// callers should surface it as tool-result text, not propagate it.
func Run(code string, cb Callbacks, maxSteps int) (string, error) {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	wrapped := "package script\nfunc main() {\n" + code + "\n}\n"
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "script.go", wrapped, 0)
	if err != nil {
		return "", fmt.Errorf("parse error: %w", err)
	}

	var body *ast.BlockStmt
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Name.Name == "main" {
			body = fn.Body
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("internal error: no main function found")
	}

	in := &interp{
		vars:     map[string]any{},
		cb:       cb,
		maxSteps: maxSteps,
	}

	if _, err := in.execStmts(body.List); err != nil {
		return "", err
	}
	if in.returned {
		return toDisplayString(in.returnValue), nil
	}
	return in.output.String(), nil
}

type interp struct {
	vars        map[string]any
	cb          Callbacks
	output      strings.Builder
	steps       int
	maxSteps    int
	returned    bool
	returnValue any
}

// controlFlow signals a return unwinding out of nested statement lists.
type controlFlow int

const (
	flowNone controlFlow = iota
	flowReturn
	flowBreak
	flowContinue
)

func (in *interp) tick() error {
	in.steps++
	if in.steps > in.maxSteps {
		return fmt.Errorf("instruction limit exceeded (%d steps)", in.maxSteps)
	}
	return nil
}

func (in *interp) execStmts(stmts []ast.Stmt) (controlFlow, error) {
	for _, stmt := range stmts {
		flow, err := in.execStmt(stmt)
		if err != nil {
			return flowNone, err
		}
		if flow != flowNone {
			return flow, nil
		}
	}
	return flowNone, nil
}

func (in *interp) execStmt(stmt ast.Stmt) (controlFlow, error) {
	if err := in.tick(); err != nil {
		return flowNone, err
	}

	switch s := stmt.(type) {
	case *ast.ExprStmt:
		_, err := in.eval(s.X)
		return flowNone, err

	case *ast.AssignStmt:
		return flowNone, in.execAssign(s)

	case *ast.DeclStmt:
		genDecl, ok := s.Decl.(*ast.GenDecl)
		if !ok || genDecl.Tok != token.VAR {
			return flowNone, fmt.Errorf("unsupported declaration")
		}
		for _, spec := range genDecl.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for i, name := range vs.Names {
				var val any
				if i < len(vs.Values) {
					v, err := in.eval(vs.Values[i])
					if err != nil {
						return flowNone, err
					}
					val = v
				}
				in.vars[name.Name] = val
			}
		}
		return flowNone, nil

	case *ast.IfStmt:
		return in.execIf(s)

	case *ast.ForStmt:
		return in.execFor(s)

	case *ast.ReturnStmt:
		var val any
		if len(s.Results) > 0 {
			v, err := in.eval(s.Results[0])
			if err != nil {
				return flowNone, err
			}
			val = v
		}
		in.returned = true
		in.returnValue = val
		return flowReturn, nil

	case *ast.BranchStmt:
		switch s.Tok {
		case token.BREAK:
			return flowBreak, nil
		case token.CONTINUE:
			return flowContinue, nil
		}
		return flowNone, fmt.Errorf("unsupported branch statement")

	case *ast.BlockStmt:
		return in.execStmts(s.List)

	default:
		return flowNone, fmt.Errorf("unsupported statement type %T", stmt)
	}
}

func (in *interp) execAssign(s *ast.AssignStmt) error {
	if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
		return fmt.Errorf("only single-value assignment is supported")
	}
	ident, ok := s.Lhs[0].(*ast.Ident)
	if !ok {
		return fmt.Errorf("assignment target must be a simple name")
	}

	val, err := in.eval(s.Rhs[0])
	if err != nil {
		return err
	}

	switch s.Tok {
	case token.DEFINE, token.ASSIGN:
		in.vars[ident.Name] = val
	case token.ADD_ASSIGN, token.SUB_ASSIGN, token.MUL_ASSIGN, token.QUO_ASSIGN:
		current, ok := in.vars[ident.Name]
		if !ok {
			return fmt.Errorf("undefined variable: %s", ident.Name)
		}
		combined, err := applyBinOp(opForAssign(s.Tok), current, val)
		if err != nil {
			return err
		}
		in.vars[ident.Name] = combined
	default:
		return fmt.Errorf("unsupported assignment operator")
	}
	return nil
}

func opForAssign(tok token.Token) token.Token {
	switch tok {
	case token.ADD_ASSIGN:
		return token.ADD
	case token.SUB_ASSIGN:
		return token.SUB
	case token.MUL_ASSIGN:
		return token.MUL
	case token.QUO_ASSIGN:
		return token.QUO
	}
	return token.ILLEGAL
}

func (in *interp) execIf(s *ast.IfStmt) (controlFlow, error) {
	cond, err := in.eval(s.Cond)
	if err != nil {
		return flowNone, err
	}
	truthy, ok := cond.(bool)
	if !ok {
		return flowNone, fmt.Errorf("if condition must be boolean")
	}
	if truthy {
		return in.execStmts(s.Body.List)
	}
	if s.Else != nil {
		return in.execStmt(s.Else)
	}
	return flowNone, nil
}

func (in *interp) execFor(s *ast.ForStmt) (controlFlow, error) {
	if s.Init != nil {
		if _, err := in.execStmt(s.Init); err != nil {
			return flowNone, err
		}
	}
	for {
		if err := in.tick(); err != nil {
			return flowNone, err
		}
		if s.Cond != nil {
			cond, err := in.eval(s.Cond)
			if err != nil {
				return flowNone, err
			}
			truthy, ok := cond.(bool)
			if !ok {
				return flowNone, fmt.Errorf("for condition must be boolean")
			}
			if !truthy {
				break
			}
		}

		flow, err := in.execStmts(s.Body.List)
		if err != nil {
			return flowNone, err
		}
		if flow == flowReturn {
			return flow, nil
		}
		if flow == flowBreak {
			break
		}

		if s.Post != nil {
			if _, err := in.execStmt(s.Post); err != nil {
				return flowNone, err
			}
		}
	}
	return flowNone, nil
}

func (in *interp) eval(expr ast.Expr) (any, error) {
	if err := in.tick(); err != nil {
		return nil, err
	}

	switch e := expr.(type) {
	case *ast.BasicLit:
		return literalValue(e)

	case *ast.Ident:
		switch e.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "nil":
			return nil, nil
		}
		val, ok := in.vars[e.Name]
		if !ok {
			return nil, fmt.Errorf("undefined variable: %s", e.Name)
		}
		return val, nil

	case *ast.ParenExpr:
		return in.eval(e.X)

	case *ast.UnaryExpr:
		val, err := in.eval(e.X)
		if err != nil {
			return nil, err
		}
		return applyUnaryOp(e.Op, val)

	case *ast.BinaryExpr:
		left, err := in.eval(e.X)
		if err != nil {
			return nil, err
		}
		if e.Op == token.LAND || e.Op == token.LOR {
			leftBool, ok := left.(bool)
			if !ok {
				return nil, fmt.Errorf("logical operands must be boolean")
			}
			if e.Op == token.LAND && !leftBool {
				return false, nil
			}
			if e.Op == token.LOR && leftBool {
				return true, nil
			}
			right, err := in.eval(e.Y)
			if err != nil {
				return nil, err
			}
			rightBool, ok := right.(bool)
			if !ok {
				return nil, fmt.Errorf("logical operands must be boolean")
			}
			return rightBool, nil
		}
		right, err := in.eval(e.Y)
		if err != nil {
			return nil, err
		}
		return applyBinOp(e.Op, left, right)

	case *ast.CallExpr:
		return in.evalCall(e)

	default:
		return nil, fmt.Errorf("unsupported expression type %T", expr)
	}
}

func literalValue(lit *ast.BasicLit) (any, error) {
	switch lit.Kind {
	case token.INT:
		n, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer literal: %s", lit.Value)
		}
		return n, nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float literal: %s", lit.Value)
		}
		return f, nil
	case token.STRING:
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid string literal: %s", lit.Value)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported literal kind")
	}
}

func (in *interp) evalCall(call *ast.CallExpr) (any, error) {
	ident, ok := call.Fun.(*ast.Ident)
	if !ok {
		return nil, fmt.Errorf("only direct function calls are supported")
	}

	args := make([]any, 0, len(call.Args))
	for _, a := range call.Args {
		v, err := in.eval(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	switch ident.Name {
	case "print":
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = toDisplayString(a)
		}
		in.output.WriteString(strings.Join(parts, " "))
		in.output.WriteString("\n")
		return nil, nil

	case "len":
		if len(args) != 1 {
			return nil, fmt.Errorf("len expects 1 argument")
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("len expects a string argument")
		}
		return int64(len(s)), nil

	case "string":
		if len(args) != 1 {
			return nil, fmt.Errorf("string expects 1 argument")
		}
		return toDisplayString(args[0]), nil

	case "read":
		if in.cb.Read == nil {
			return nil, fmt.Errorf("read is not available in this context")
		}
		path, err := stringArg(args, 0, "read")
		if err != nil {
			return nil, err
		}
		return in.cb.Read(path)

	case "write":
		if in.cb.Write == nil {
			return nil, fmt.Errorf("write is not available in this context")
		}
		path, err := stringArg(args, 0, "write")
		if err != nil {
			return nil, err
		}
		content, err := stringArg(args, 1, "write")
		if err != nil {
			return nil, err
		}
		return in.cb.Write(path, content)

	case "edit":
		if in.cb.Edit == nil {
			return nil, fmt.Errorf("edit is not available in this context")
		}
		path, err := stringArg(args, 0, "edit")
		if err != nil {
			return nil, err
		}
		oldText, err := stringArg(args, 1, "edit")
		if err != nil {
			return nil, err
		}
		newText, err := stringArg(args, 2, "edit")
		if err != nil {
			return nil, err
		}
		return in.cb.Edit(path, oldText, newText)

	default:
		return nil, fmt.Errorf("unknown function: %s", ident.Name)
	}
}

func stringArg(args []any, i int, fn string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%s: missing argument %d", fn, i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %d must be a string", fn, i)
	}
	return s, nil
}

func toDisplayString(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func applyUnaryOp(op token.Token, val any) (any, error) {
	switch op {
	case token.SUB:
		switch n := val.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		}
		return nil, fmt.Errorf("unary - requires a numeric operand")
	case token.NOT:
		b, ok := val.(bool)
		if !ok {
			return nil, fmt.Errorf("unary ! requires a boolean operand")
		}
		return !b, nil
	}
	return nil, fmt.Errorf("unsupported unary operator")
}

func applyBinOp(op token.Token, left, right any) (any, error) {
	if ls, ok := left.(string); ok {
		rs, ok := right.(string)
		if !ok {
			return nil, fmt.Errorf("cannot combine string with non-string")
		}
		switch op {
		case token.ADD:
			return ls + rs, nil
		case token.EQL:
			return ls == rs, nil
		case token.NEQ:
			return ls != rs, nil
		case token.LSS:
			return ls < rs, nil
		case token.GTR:
			return ls > rs, nil
		case token.LEQ:
			return ls <= rs, nil
		case token.GEQ:
			return ls >= rs, nil
		}
		return nil, fmt.Errorf("unsupported string operator")
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("operands must be numeric or string")
	}

	_, lInt := left.(int64)
	_, rInt := right.(int64)
	bothInt := lInt && rInt

	switch op {
	case token.ADD:
		if bothInt {
			return left.(int64) + right.(int64), nil
		}
		return lf + rf, nil
	case token.SUB:
		if bothInt {
			return left.(int64) - right.(int64), nil
		}
		return lf - rf, nil
	case token.MUL:
		if bothInt {
			return left.(int64) * right.(int64), nil
		}
		return lf * rf, nil
	case token.QUO:
		if bothInt {
			if right.(int64) == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return left.(int64) / right.(int64), nil
		}
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case token.REM:
		if !bothInt {
			return nil, fmt.Errorf("%% requires integer operands")
		}
		if right.(int64) == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return left.(int64) % right.(int64), nil
	case token.EQL:
		return lf == rf, nil
	case token.NEQ:
		return lf != rf, nil
	case token.LSS:
		return lf < rf, nil
	case token.GTR:
		return lf > rf, nil
	case token.LEQ:
		return lf <= rf, nil
	case token.GEQ:
		return lf >= rf, nil
	}
	return nil, fmt.Errorf("unsupported operator")
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
