// Package frontend parses a small integer subset of C with tree-sitter and
// lowers it to statement trees of abstract instructions.
//
// Supported: int functions and globals, local declarations, assignment
// (including compound forms and ++/--), calls, if/else, while, for, break,
// continue and return. Every value is a 64-bit integer.
package frontend

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"

	"github.com/l3aro/go-flowc/pkg/diag"
	"github.com/l3aro/go-flowc/pkg/ir"
)

var (
	// ErrSyntax is returned when the source does not parse.
	ErrSyntax = errors.New("syntax error")

	// ErrUnsupported is returned for valid C outside the supported subset.
	ErrUnsupported = errors.New("unsupported construct")

	// ErrUndeclared is returned for a use of an unknown variable.
	ErrUndeclared = errors.New("undeclared identifier")

	// ErrRedeclared is returned for a second definition of a name.
	ErrRedeclared = errors.New("redeclared identifier")

	// ErrArity is returned for a call with the wrong number of arguments to
	// a function defined in the same unit.
	ErrArity = errors.New("wrong number of arguments")
)

// Options control lowering.
type Options struct {
	// ExplicitReturns appends "return 0" to function bodies that do not
	// end in a return statement.
	ExplicitReturns bool
}

// DefaultOptions returns the options used by the compiler driver.
func DefaultOptions() Options {
	return Options{ExplicitReturns: true}
}

// Parse parses src and lowers every function definition in it. Errors are
// *diag.Error values carrying file and position.
func Parse(ctx context.Context, file string, src []byte, opts Options) (*ir.Unit, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(c.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, diag.WithFile(syntaxError(root), file)
	}

	l := &unitLowerer{
		src:       src,
		opts:      opts,
		unit:      &ir.Unit{File: file},
		globals:   make(map[string]bool),
		signature: make(map[string]int),
	}
	if err := l.lowerUnit(root); err != nil {
		return nil, diag.WithFile(err, file)
	}

	return l.unit, nil
}

// unitLowerer holds the state shared by every function in one unit.
type unitLowerer struct {
	src       []byte
	opts      Options
	unit      *ir.Unit
	globals   map[string]bool
	signature map[string]int // function name -> parameter count
}

func (l *unitLowerer) lowerUnit(root *sitter.Node) error {
	// Signatures first, so calls may precede definitions.
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			name, params, err := l.functionSignature(child.ChildByFieldName("declarator"))
			if err != nil {
				return err
			}
			if _, dup := l.signature[name]; dup {
				return diag.Errorf(position(child), ErrRedeclared, "function %s defined twice", name)
			}
			l.signature[name] = len(params)
		case "declaration":
			if err := l.prototypes(child); err != nil {
				return err
			}
		}
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			fn, err := l.lowerFunction(child)
			if err != nil {
				return err
			}
			l.unit.Functions = append(l.unit.Functions, fn)
		case "declaration":
			if err := l.lowerGlobals(child); err != nil {
				return err
			}
		case "comment", "preproc_include":
		default:
			return diag.Errorf(position(child), ErrUnsupported, "unsupported top-level %s", child.Type())
		}
	}

	return nil
}

// prototypes records the arity of function declarations without a body.
// Prototypes do not count as definitions.
func (l *unitLowerer) prototypes(decl *sitter.Node) error {
	for _, d := range declarators(decl) {
		if d.Type() != "function_declarator" {
			continue
		}
		name, params, err := l.functionSignature(d)
		if err != nil {
			return err
		}
		if n, ok := l.signature[name]; ok && n != len(params) {
			return diag.Errorf(position(d), ErrRedeclared, "conflicting declarations of %s", name)
		}
		l.signature[name] = len(params)
	}
	return nil
}

func (l *unitLowerer) lowerGlobals(decl *sitter.Node) error {
	for _, d := range declarators(decl) {
		var name string
		var init int64

		switch d.Type() {
		case "function_declarator":
			continue
		case "identifier":
			name = l.text(d)
		case "init_declarator":
			nameNode := d.ChildByFieldName("declarator")
			if nameNode == nil || nameNode.Type() != "identifier" {
				return diag.Errorf(position(d), ErrUnsupported, "unsupported global declarator")
			}
			name = l.text(nameNode)

			v, err := l.constant(d.ChildByFieldName("value"))
			if err != nil {
				return err
			}
			init = v
		default:
			return diag.Errorf(position(d), ErrUnsupported, "unsupported global declarator %s", d.Type())
		}

		if l.globals[name] {
			return diag.Errorf(position(d), ErrRedeclared, "global %s declared twice", name)
		}
		l.globals[name] = true
		l.unit.Globals = append(l.unit.Globals, ir.Global{Name: name, Init: init})
	}
	return nil
}

// constant evaluates a global initializer, which must be an integer or
// character literal, optionally negated.
func (l *unitLowerer) constant(n *sitter.Node) (int64, error) {
	if n == nil {
		return 0, nil
	}
	switch n.Type() {
	case "number_literal":
		return l.number(n)
	case "char_literal":
		return l.char(n)
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	case "parenthesized_expression":
		return l.constant(n.NamedChild(0))
	case "unary_expression":
		op := n.ChildByFieldName("operator")
		if op != nil && op.Type() == "-" {
			v, err := l.constant(n.ChildByFieldName("argument"))
			return -v, err
		}
	}
	return 0, diag.Errorf(position(n), ErrUnsupported, "global initializer must be a constant").
		WithHint("assign the value at the start of main instead")
}

func (l *unitLowerer) functionSignature(decl *sitter.Node) (string, []string, error) {
	if decl == nil || decl.Type() != "function_declarator" {
		return "", nil, diag.Errorf(position(decl), ErrUnsupported, "unsupported function declarator")
	}
	nameNode := decl.ChildByFieldName("declarator")
	if nameNode == nil || nameNode.Type() != "identifier" {
		return "", nil, diag.Errorf(position(decl), ErrUnsupported, "unsupported function name")
	}

	var params []string
	list := decl.ChildByFieldName("parameters")
	for i := 0; list != nil && i < int(list.NamedChildCount()); i++ {
		p := list.NamedChild(i)
		if p.Type() != "parameter_declaration" {
			continue
		}
		pd := p.ChildByFieldName("declarator")
		if pd == nil {
			// "(void)" or an unnamed prototype parameter
			if l.text(p) == "void" {
				continue
			}
			params = append(params, "")
			continue
		}
		if pd.Type() != "identifier" {
			return "", nil, diag.Errorf(position(pd), ErrUnsupported, "unsupported parameter declarator %s", pd.Type())
		}
		params = append(params, l.text(pd))
	}

	return l.text(nameNode), params, nil
}

func (l *unitLowerer) lowerFunction(node *sitter.Node) (ir.Function, error) {
	name, params, err := l.functionSignature(node.ChildByFieldName("declarator"))
	if err != nil {
		return ir.Function{}, err
	}

	fl := &funcLowerer{unitLowerer: l, locals: make(map[string]bool)}
	for _, p := range params {
		if p == "" {
			return ir.Function{}, diag.Errorf(position(node), ErrUnsupported, "function %s has an unnamed parameter", name)
		}
		if fl.locals[p] {
			return ir.Function{}, diag.Errorf(position(node), ErrRedeclared, "parameter %s declared twice", p)
		}
		fl.locals[p] = true
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return ir.Function{}, diag.Errorf(position(node), ErrUnsupported, "function %s has no body", name)
	}
	stmts, err := fl.compound(body)
	if err != nil {
		return ir.Function{}, err
	}

	if l.opts.ExplicitReturns && !endsInReturn(stmts) {
		stmts = append(stmts, ir.Simple{Instructions: []ir.Instruction{ir.Const{Value: 0}, ir.Return{}}})
	}

	return ir.Function{Name: name, Params: params, Body: stmts, Pos: position(node)}, nil
}

func endsInReturn(stmts []ir.Stmt) bool {
	if len(stmts) == 0 {
		return false
	}
	s, ok := stmts[len(stmts)-1].(ir.Simple)
	if !ok || len(s.Instructions) == 0 {
		return false
	}
	_, ok = s.Instructions[len(s.Instructions)-1].(ir.Return)
	return ok
}

// declarators returns the declarator children of a declaration.
func declarators(decl *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(decl.ChildCount()); i++ {
		if decl.FieldNameForChild(i) == "declarator" {
			out = append(out, decl.Child(i))
		}
	}
	return out
}

// syntaxError locates the first error or missing node below n.
func syntaxError(n *sitter.Node) error {
	if n.Type() == "ERROR" {
		return diag.Errorf(position(n), ErrSyntax, "syntax error")
	}
	if n.IsMissing() {
		return diag.Errorf(position(n), ErrSyntax, "syntax error: missing %s", n.Type())
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child != nil && (child.HasError() || child.IsMissing()) {
			return syntaxError(child)
		}
	}
	return diag.Errorf(position(n), ErrSyntax, "syntax error")
}

func position(n *sitter.Node) ir.Pos {
	if n == nil {
		return ir.Pos{}
	}
	p := n.StartPoint()
	return ir.Pos{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

func (l *unitLowerer) text(n *sitter.Node) string {
	return n.Content(l.src)
}
