package frontend

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/go-flowc/pkg/diag"
	"github.com/l3aro/go-flowc/pkg/ir"
)

// funcLowerer lowers the body of one function.
type funcLowerer struct {
	*unitLowerer
	locals map[string]bool
	loops  []loopKind

	// pending holds statements an expression needs run before its value,
	// such as the branches of && and ||. Statement lowering drains it.
	pending []ir.Stmt
	temps   int
}

type loopKind int

const (
	loopWhile loopKind = iota
	loopFor
)

func (f *funcLowerer) compound(n *sitter.Node) ([]ir.Stmt, error) {
	var stmts []ir.Stmt
	for i := 0; i < int(n.NamedChildCount()); i++ {
		lowered, err := f.statement(n.NamedChild(i))
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, lowered...)
	}
	return stmts, nil
}

// statement lowers one C statement. Compound statements and declarations
// with several declarators expand to more than one IR statement.
func (f *funcLowerer) statement(n *sitter.Node) ([]ir.Stmt, error) {
	switch n.Type() {
	case "comment":
		return nil, nil

	case "compound_statement":
		return f.compound(n)

	case "declaration":
		return f.declaration(n)

	case "expression_statement":
		if n.NamedChildCount() == 0 {
			return nil, nil
		}
		instrs, err := f.exprStatement(n.NamedChild(0))
		if err != nil {
			return nil, err
		}
		return append(f.take(), ir.Simple{Instructions: instrs}), nil

	case "return_statement":
		var instrs []ir.Instruction
		if n.NamedChildCount() > 0 {
			v, err := f.expr(n.NamedChild(0))
			if err != nil {
				return nil, err
			}
			instrs = v
		} else {
			instrs = []ir.Instruction{ir.Const{Value: 0}}
		}
		return append(f.take(), ir.Simple{Instructions: append(instrs, ir.Return{})}), nil

	case "if_statement":
		return f.ifStatement(n)

	case "while_statement":
		return f.whileStatement(n)

	case "for_statement":
		return f.forStatement(n)

	case "break_statement":
		return []ir.Stmt{ir.Break{Pos: position(n)}}, nil

	case "continue_statement":
		if len(f.loops) > 0 && f.loops[len(f.loops)-1] == loopFor {
			return nil, diag.Errorf(position(n), ErrUnsupported, "continue inside a for loop").
				WithHint("rewrite the loop as a while loop with the update before continue")
		}
		return []ir.Stmt{ir.Continue{Pos: position(n)}}, nil
	}

	return nil, diag.Errorf(position(n), ErrUnsupported, "unsupported statement %s", n.Type())
}

func (f *funcLowerer) declaration(n *sitter.Node) ([]ir.Stmt, error) {
	var stmts []ir.Stmt
	for _, d := range declarators(n) {
		var nameNode, value *sitter.Node
		switch d.Type() {
		case "identifier":
			nameNode = d
		case "init_declarator":
			nameNode = d.ChildByFieldName("declarator")
			value = d.ChildByFieldName("value")
		}
		if nameNode == nil || nameNode.Type() != "identifier" {
			return nil, diag.Errorf(position(d), ErrUnsupported, "unsupported declarator %s", d.Type())
		}

		name := f.text(nameNode)
		if f.locals[name] {
			return nil, diag.Errorf(position(nameNode), ErrRedeclared, "%s declared twice", name)
		}

		instrs := []ir.Instruction{ir.Const{Value: 0}}
		if value != nil {
			v, err := f.expr(value)
			if err != nil {
				return nil, err
			}
			instrs = v
		}
		// Declared after the initializer so "int x = x;" is rejected.
		f.locals[name] = true

		stmts = append(stmts, f.take()...)
		stmts = append(stmts, ir.Simple{Instructions: append(instrs, ir.StoreLocal{Name: name})})
	}
	return stmts, nil
}

// ifStatement lowers an if. "if (a && b) s" without an else nests as
// "if (a) { if (b) s }"; other conditions with && or || first compute
// their value into a temporary.
func (f *funcLowerer) ifStatement(n *sitter.Node) ([]ir.Stmt, error) {
	condNode := n.ChildByFieldName("condition")
	alt := n.ChildByFieldName("alternative")
	if alt == nil && isLogical(unparen(condNode), "&&") {
		then, err := f.statement(n.ChildByFieldName("consequence"))
		if err != nil {
			return nil, err
		}
		return f.guard(unparen(condNode), then, position(n))
	}

	cond, err := f.condition(condNode)
	if err != nil {
		return nil, err
	}
	pre := f.take()

	then, err := f.statement(n.ChildByFieldName("consequence"))
	if err != nil {
		return nil, err
	}

	var els []ir.Stmt
	if alt != nil {
		if alt.Type() == "else_clause" {
			alt = alt.NamedChild(0)
		}
		if els, err = f.statement(alt); err != nil {
			return nil, err
		}
	}

	return append(pre, ir.If{Cond: cond, Then: then, Else: els, Pos: position(n)}), nil
}

// guard wraps then in one if per operand of an && chain.
func (f *funcLowerer) guard(c *sitter.Node, then []ir.Stmt, pos ir.Pos) ([]ir.Stmt, error) {
	c = unparen(c)
	if isLogical(c, "&&") {
		inner, err := f.guard(c.ChildByFieldName("right"), then, pos)
		if err != nil {
			return nil, err
		}
		return f.guard(c.ChildByFieldName("left"), inner, pos)
	}

	cond, err := f.expr(c)
	if err != nil {
		return nil, err
	}
	return append(f.take(), ir.If{Cond: cond, Then: then, Pos: pos}), nil
}

func (f *funcLowerer) whileStatement(n *sitter.Node) ([]ir.Stmt, error) {
	cond, err := f.condition(n.ChildByFieldName("condition"))
	if err != nil {
		return nil, err
	}
	pre := f.take()

	f.loops = append(f.loops, loopWhile)
	body, err := f.statement(n.ChildByFieldName("body"))
	f.loops = f.loops[:len(f.loops)-1]
	if err != nil {
		return nil, err
	}

	return []ir.Stmt{newLoop(pre, cond, body, position(n))}, nil
}

// newLoop builds a while loop. When the condition needs statements of its own
// they run at the top of every iteration, followed by a break on a false
// condition:
//
//	while (1) { pre; if (!cond) break; body }
func newLoop(pre []ir.Stmt, cond []ir.Instruction, body []ir.Stmt, pos ir.Pos) ir.While {
	if len(pre) == 0 {
		return ir.While{Cond: cond, Body: body, Pos: pos}
	}
	exit := ir.If{
		Cond: append(cond, ir.UnOp{Op: ir.OpNot}),
		Then: []ir.Stmt{ir.Break{Pos: pos}},
		Pos:  pos,
	}
	loopBody := append(append(pre, exit), body...)
	return ir.While{Cond: []ir.Instruction{ir.Const{Value: 1}}, Body: loopBody, Pos: pos}
}

// forStatement lowers "for (init; cond; update) body" to
//
//	init; while (cond) { body; update }
//
// A missing condition loops until break.
func (f *funcLowerer) forStatement(n *sitter.Node) ([]ir.Stmt, error) {
	var stmts []ir.Stmt
	var updates, pre []ir.Stmt
	var cond []ir.Instruction

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch n.FieldNameForChild(i) {
		case "initializer":
			if child.Type() == "declaration" {
				init, err := f.declaration(child)
				if err != nil {
					return nil, err
				}
				stmts = append(stmts, init...)
				continue
			}
			instrs, err := f.exprStatement(child)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, f.take()...)
			stmts = append(stmts, ir.Simple{Instructions: instrs})
		case "condition":
			c, err := f.expr(child)
			if err != nil {
				return nil, err
			}
			cond = c
			pre = f.take()
		case "update":
			instrs, err := f.exprStatement(child)
			if err != nil {
				return nil, err
			}
			updates = append(updates, f.take()...)
			updates = append(updates, ir.Simple{Instructions: instrs})
		}
	}
	if cond == nil {
		cond = []ir.Instruction{ir.Const{Value: 1}}
	}

	f.loops = append(f.loops, loopFor)
	body, err := f.statement(n.ChildByFieldName("body"))
	f.loops = f.loops[:len(f.loops)-1]
	if err != nil {
		return nil, err
	}

	return append(stmts, newLoop(pre, cond, append(body, updates...), position(n))), nil
}

func (f *funcLowerer) condition(n *sitter.Node) ([]ir.Instruction, error) {
	if n == nil {
		return nil, diag.Errorf(ir.Pos{}, ErrSyntax, "missing condition")
	}
	return f.expr(unparen(n))
}

func unparen(n *sitter.Node) *sitter.Node {
	for n != nil && n.Type() == "parenthesized_expression" {
		n = n.NamedChild(0)
	}
	return n
}

// isLogical reports whether n is a binary expression using op.
func isLogical(n *sitter.Node, op string) bool {
	if n == nil || n.Type() != "binary_expression" {
		return false
	}
	opNode := n.ChildByFieldName("operator")
	return opNode != nil && opNode.Type() == op
}
