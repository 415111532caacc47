package ir

import "fmt"

// Pos is a 1-based source position. The zero value means unknown.
type Pos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// IsValid reports whether the position is known.
func (p Pos) IsValid() bool { return p.Line > 0 }

func (p Pos) String() string {
	if !p.IsValid() {
		return "unknown position"
	}
	return fmt.Sprintf("line %d, column %d", p.Line, p.Column)
}

// Stmt is a node of the statement tree handed to control-flow lowering.
// The set of implementations is closed.
type Stmt interface {
	stmt()
}

// Simple is one lowered source statement: straight-line instructions with
// no control flow except possibly a trailing Return.
type Simple struct {
	Instructions []Instruction
}

// Block is a labeled run of straight-line instructions. Labels assigned
// before flattening are provisional.
type Block struct {
	Label        string
	Instructions []Instruction
}

// If is a two-way conditional. Cond leaves the condition on the stack.
type If struct {
	Cond []Instruction
	Then []Stmt
	Else []Stmt
	Pos  Pos
}

// While is a pre-tested loop. Cond leaves the condition on the stack.
type While struct {
	Cond []Instruction
	Body []Stmt
	Pos  Pos
}

// Break leaves the innermost enclosing While.
type Break struct {
	Pos Pos
}

// Continue re-tests the innermost enclosing While.
type Continue struct {
	Pos Pos
}

func (Simple) stmt()   {}
func (Block) stmt()    {}
func (If) stmt()       {}
func (While) stmt()    {}
func (Break) stmt()    {}
func (Continue) stmt() {}

// Function is a named function with its statement body.
type Function struct {
	Name   string
	Params []string
	Body   []Stmt
	Pos    Pos
}

// Global is a module-level variable with a constant initial value.
type Global struct {
	Name string
	Init int64
}

// Unit is one compilation unit (a source file).
type Unit struct {
	File      string
	Globals   []Global
	Functions []Function
}
