// Package ir defines the abstract instruction set, basic blocks and statement
// trees shared by every lowering stage of the compiler.
package ir

import (
	"fmt"
	"strconv"
)

// Op names a binary or unary operator.
type Op string

const (
	OpAdd Op = "add"
	OpSub Op = "sub"
	OpMul Op = "mul"
	OpDiv Op = "div"
	OpMod Op = "mod"
	OpLt  Op = "lt"
	OpLe  Op = "le"
	OpGt  Op = "gt"
	OpGe  Op = "ge"
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpAnd Op = "and" // logical, both operands evaluated
	OpOr  Op = "or"  // logical, both operands evaluated
	OpNeg Op = "neg"
	OpNot Op = "not"
)

var binaryOps = map[Op]bool{
	OpAdd: true, OpSub: true, OpMul: true, OpDiv: true, OpMod: true,
	OpLt: true, OpLe: true, OpGt: true, OpGe: true, OpEq: true, OpNe: true,
	OpAnd: true, OpOr: true,
}

// IsBinary reports whether op takes two operands.
func (op Op) IsBinary() bool { return binaryOps[op] }

// IsUnary reports whether op takes one operand.
func (op Op) IsUnary() bool { return op == OpNeg || op == OpNot }

// Instruction is a single stack-machine instruction. The set of
// implementations is closed: only the types in this file satisfy it.
type Instruction interface {
	instruction()
	String() string
}

// Const pushes an integer constant.
type Const struct {
	Value int64
}

// LoadLocal pushes the value of a local variable or parameter.
type LoadLocal struct {
	Name string
}

// StoreLocal pops a value into a local variable.
type StoreLocal struct {
	Name string
}

// LoadGlobal pushes the value of a global variable.
type LoadGlobal struct {
	Name string
}

// StoreGlobal pops a value into a global variable.
type StoreGlobal struct {
	Name string
}

// BinOp pops two operands and pushes the result.
type BinOp struct {
	Op Op
}

// UnOp pops one operand and pushes the result.
type UnOp struct {
	Op Op
}

// Call pops Argc arguments, calls Name and pushes its result.
type Call struct {
	Name string
	Argc int
}

// Pop discards the top of the stack.
type Pop struct{}

// Goto transfers control unconditionally to Label.
type Goto struct {
	Label string
}

// CondBranch pops a condition and transfers control to True when it is
// non-zero, False otherwise.
type CondBranch struct {
	True  string
	False string
}

// Return pops the result and leaves the function.
type Return struct{}

func (Const) instruction()       {}
func (LoadLocal) instruction()   {}
func (StoreLocal) instruction()  {}
func (LoadGlobal) instruction()  {}
func (StoreGlobal) instruction() {}
func (BinOp) instruction()       {}
func (UnOp) instruction()        {}
func (Call) instruction()        {}
func (Pop) instruction()         {}
func (Goto) instruction()        {}
func (CondBranch) instruction()  {}
func (Return) instruction()      {}

func (i Const) String() string       { return "push " + strconv.FormatInt(i.Value, 10) }
func (i LoadLocal) String() string   { return "load_local " + i.Name }
func (i StoreLocal) String() string  { return "store_local " + i.Name }
func (i LoadGlobal) String() string  { return "load_global " + i.Name }
func (i StoreGlobal) String() string { return "store_global " + i.Name }
func (i BinOp) String() string       { return string(i.Op) }
func (i UnOp) String() string        { return string(i.Op) }
func (i Call) String() string        { return fmt.Sprintf("call %s/%d", i.Name, i.Argc) }
func (Pop) String() string           { return "pop" }
func (i Goto) String() string        { return "goto " + i.Label }
func (i CondBranch) String() string  { return "cbranch " + i.True + ", " + i.False }
func (Return) String() string        { return "return" }

// IsTerminator reports whether instr is a control instruction, i.e. one
// that may only appear as the last instruction of a block.
func IsTerminator(instr Instruction) bool {
	switch instr.(type) {
	case Goto, CondBranch, Return:
		return true
	default:
		return false
	}
}

// Targets returns the labels control may transfer to after instr. It
// returns nil for Return and for value instructions.
func Targets(instr Instruction) []string {
	switch t := instr.(type) {
	case Goto:
		return []string{t.Label}
	case CondBranch:
		return []string{t.True, t.False}
	default:
		return nil
	}
}
