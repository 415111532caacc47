package frontend

import (
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/go-flowc/pkg/diag"
	"github.com/l3aro/go-flowc/pkg/ir"
)

var binaryOps = map[string]ir.Op{
	"+":  ir.OpAdd,
	"-":  ir.OpSub,
	"*":  ir.OpMul,
	"/":  ir.OpDiv,
	"%":  ir.OpMod,
	"<":  ir.OpLt,
	"<=": ir.OpLe,
	">":  ir.OpGt,
	">=": ir.OpGe,
	"==": ir.OpEq,
	"!=": ir.OpNe,
}

// exprStatement lowers an expression evaluated for its effect. It leaves
// nothing on the stack.
func (f *funcLowerer) exprStatement(n *sitter.Node) ([]ir.Instruction, error) {
	switch n.Type() {
	case "assignment_expression":
		return f.assignment(n, false)
	case "update_expression":
		return f.update(n, false)
	case "comma_expression":
		left, err := f.exprStatement(n.ChildByFieldName("left"))
		if err != nil {
			return nil, err
		}
		mark := len(f.pending)
		right, err := f.exprStatement(n.ChildByFieldName("right"))
		if err != nil {
			return nil, err
		}
		if len(f.pending) > mark {
			f.queueAt(mark, ir.Simple{Instructions: left})
			return right, nil
		}
		return append(left, right...), nil
	}

	instrs, err := f.expr(n)
	if err != nil {
		return nil, err
	}
	return append(instrs, ir.Pop{}), nil
}

// expr lowers an expression that leaves exactly one value on the stack.
// Statements queued in f.pending while lowering must run before the
// returned instructions.
func (f *funcLowerer) expr(n *sitter.Node) ([]ir.Instruction, error) {
	switch n.Type() {
	case "number_literal":
		v, err := f.number(n)
		if err != nil {
			return nil, err
		}
		return []ir.Instruction{ir.Const{Value: v}}, nil

	case "char_literal":
		v, err := f.char(n)
		if err != nil {
			return nil, err
		}
		return []ir.Instruction{ir.Const{Value: v}}, nil

	case "true":
		return []ir.Instruction{ir.Const{Value: 1}}, nil

	case "false":
		return []ir.Instruction{ir.Const{Value: 0}}, nil

	case "identifier":
		load, err := f.load(n)
		if err != nil {
			return nil, err
		}
		return []ir.Instruction{load}, nil

	case "parenthesized_expression":
		return f.expr(n.NamedChild(0))

	case "binary_expression":
		opNode := n.ChildByFieldName("operator")
		switch opNode.Type() {
		case "&&":
			return f.logical(n, true)
		case "||":
			return f.logical(n, false)
		}
		op, ok := binaryOps[opNode.Type()]
		if !ok {
			return nil, diag.Errorf(position(opNode), ErrUnsupported, "unsupported operator %s", opNode.Type())
		}
		left, err := f.expr(n.ChildByFieldName("left"))
		if err != nil {
			return nil, err
		}
		mark := len(f.pending)
		right, err := f.expr(n.ChildByFieldName("right"))
		if err != nil {
			return nil, err
		}
		out := append(f.spill(left, mark), right...)
		return append(out, ir.BinOp{Op: op}), nil

	case "unary_expression":
		opNode := n.ChildByFieldName("operator")
		arg, err := f.expr(n.ChildByFieldName("argument"))
		if err != nil {
			return nil, err
		}
		switch opNode.Type() {
		case "-":
			return append(arg, ir.UnOp{Op: ir.OpNeg}), nil
		case "!":
			return append(arg, ir.UnOp{Op: ir.OpNot}), nil
		case "+":
			return arg, nil
		}
		return nil, diag.Errorf(position(opNode), ErrUnsupported, "unsupported operator %s", opNode.Type())

	case "call_expression":
		return f.call(n)

	case "assignment_expression":
		return f.assignment(n, true)

	case "update_expression":
		return f.update(n, true)
	}

	return nil, diag.Errorf(position(n), ErrUnsupported, "unsupported expression %s", n.Type())
}

// logical lowers && and || so the right operand only runs when the left
// one does not decide the result:
//
//	t = 0; if (a) { t = b != 0 }     a && b
//	t = 1; if (!a) { t = b != 0 }    a || b
//
// The statements are queued and the expression loads t.
func (f *funcLowerer) logical(n *sitter.Node, and bool) ([]ir.Instruction, error) {
	cond, err := f.expr(n.ChildByFieldName("left"))
	if err != nil {
		return nil, err
	}

	outer := f.pending
	f.pending = nil
	right, err := f.expr(n.ChildByFieldName("right"))
	inner := f.pending
	f.pending = outer
	if err != nil {
		return nil, err
	}

	tmp := f.temp()
	init := int64(0)
	if !and {
		init = 1
		cond = append(cond, ir.UnOp{Op: ir.OpNot})
	}
	set := append(right, ir.Const{Value: 0}, ir.BinOp{Op: ir.OpNe}, ir.StoreLocal{Name: tmp})

	f.pending = append(f.pending,
		ir.Simple{Instructions: []ir.Instruction{ir.Const{Value: init}, ir.StoreLocal{Name: tmp}}},
		ir.If{Cond: cond, Then: append(inner, ir.Simple{Instructions: set}), Pos: position(n)},
	)
	return []ir.Instruction{ir.LoadLocal{Name: tmp}}, nil
}

// temp returns a fresh local no C identifier can collide with.
func (f *funcLowerer) temp() string {
	name := fmt.Sprintf("$sc%d", f.temps)
	f.temps++
	return name
}

// queueAt inserts s into the pending statements at index i.
func (f *funcLowerer) queueAt(i int, s ir.Stmt) {
	f.pending = append(f.pending, nil)
	copy(f.pending[i+1:], f.pending[i:])
	f.pending[i] = s
}

// spill keeps instrs, lowered before mark, ahead of the statements queued
// since. If any were queued its value moves to a temporary.
func (f *funcLowerer) spill(instrs []ir.Instruction, mark int) []ir.Instruction {
	if len(f.pending) == mark {
		return instrs
	}
	tmp := f.temp()
	store := append(instrs[:len(instrs):len(instrs)], ir.StoreLocal{Name: tmp})
	f.queueAt(mark, ir.Simple{Instructions: store})
	return []ir.Instruction{ir.LoadLocal{Name: tmp}}
}

// take returns the pending statements and clears them.
func (f *funcLowerer) take() []ir.Stmt {
	pre := f.pending
	f.pending = nil
	return pre
}

func (f *funcLowerer) call(n *sitter.Node) ([]ir.Instruction, error) {
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" {
		return nil, diag.Errorf(position(n), ErrUnsupported, "only direct calls are supported")
	}
	name := f.text(fn)

	var values [][]ir.Instruction
	spilled := 0 // values[:spilled] only load temporaries
	args := n.ChildByFieldName("arguments")
	for i := 0; args != nil && i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() == "comment" {
			continue
		}
		mark := len(f.pending)
		v, err := f.expr(arg)
		if err != nil {
			return nil, err
		}
		if len(f.pending) > mark {
			// earlier arguments are evaluated first
			for j := spilled; j < len(values); j++ {
				values[j] = f.spill(values[j], mark)
				mark++
			}
			spilled = len(values)
		}
		values = append(values, v)
	}
	argc := len(values)

	var out []ir.Instruction
	for _, v := range values {
		out = append(out, v...)
	}

	if want, ok := f.signature[name]; ok && want != argc {
		return nil, diag.Errorf(position(n), ErrArity, "%s takes %d arguments, got %d", name, want, argc)
	}

	return append(out, ir.Call{Name: name, Argc: argc}), nil
}

// assignment lowers "x = v" and "x op= v". With keep the assigned value
// is left on the stack.
func (f *funcLowerer) assignment(n *sitter.Node, keep bool) ([]ir.Instruction, error) {
	target := n.ChildByFieldName("left")
	if target == nil || target.Type() != "identifier" {
		return nil, diag.Errorf(position(n), ErrUnsupported, "can only assign to variables")
	}
	store, err := f.store(target)
	if err != nil {
		return nil, err
	}

	value, err := f.expr(n.ChildByFieldName("right"))
	if err != nil {
		return nil, err
	}

	var out []ir.Instruction
	opNode := n.ChildByFieldName("operator")
	if op := opNode.Type(); op != "=" {
		binop, ok := binaryOps[strings.TrimSuffix(op, "=")]
		if !ok {
			return nil, diag.Errorf(position(opNode), ErrUnsupported, "unsupported operator %s", op)
		}
		load, _ := f.load(target)
		out = append(out, load)
		out = append(out, value...)
		out = append(out, ir.BinOp{Op: binop})
	} else {
		out = value
	}

	out = append(out, store)
	if keep {
		load, _ := f.load(target)
		out = append(out, load)
	}
	return out, nil
}

// update lowers ++ and --. With keep, the prefix form leaves the new value
// and the postfix form the old one.
func (f *funcLowerer) update(n *sitter.Node, keep bool) ([]ir.Instruction, error) {
	target := n.ChildByFieldName("argument")
	if target == nil || target.Type() != "identifier" {
		return nil, diag.Errorf(position(n), ErrUnsupported, "can only increment variables")
	}
	load, err := f.load(target)
	if err != nil {
		return nil, err
	}
	store, _ := f.store(target)

	opNode := n.ChildByFieldName("operator")
	op := ir.OpAdd
	if opNode.Type() == "--" {
		op = ir.OpSub
	}
	prefix := opNode.StartByte() < target.StartByte()

	var out []ir.Instruction
	if keep && !prefix {
		out = append(out, load)
	}
	out = append(out, load, ir.Const{Value: 1}, ir.BinOp{Op: op}, store)
	if keep && prefix {
		out = append(out, load)
	}
	return out, nil
}

func (f *funcLowerer) load(n *sitter.Node) (ir.Instruction, error) {
	name := f.text(n)
	switch {
	case f.locals[name]:
		return ir.LoadLocal{Name: name}, nil
	case f.globals[name]:
		return ir.LoadGlobal{Name: name}, nil
	}
	return nil, diag.Errorf(position(n), ErrUndeclared, "undeclared identifier %s", name)
}

func (f *funcLowerer) store(n *sitter.Node) (ir.Instruction, error) {
	name := f.text(n)
	switch {
	case f.locals[name]:
		return ir.StoreLocal{Name: name}, nil
	case f.globals[name]:
		return ir.StoreGlobal{Name: name}, nil
	}
	return nil, diag.Errorf(position(n), ErrUndeclared, "undeclared identifier %s", name)
}

func (l *unitLowerer) number(n *sitter.Node) (int64, error) {
	text := strings.TrimRight(l.text(n), "uUlL")
	v, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		return 0, diag.Errorf(position(n), ErrUnsupported, "invalid integer literal %s", l.text(n))
	}
	return v, nil
}

func (l *unitLowerer) char(n *sitter.Node) (int64, error) {
	if l.text(n) == `'\0'` {
		return 0, nil
	}
	s, err := strconv.Unquote(l.text(n))
	if err != nil || len([]rune(s)) != 1 {
		return 0, diag.Errorf(position(n), ErrUnsupported, "invalid character literal %s", l.text(n))
	}
	return int64([]rune(s)[0]), nil
}
