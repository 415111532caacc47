// Package structure rebuilds nested block, loop and if constructs from a
// flat control flow graph, for targets that cannot express raw jumps.
package structure

import (
	"github.com/l3aro/go-flowc/pkg/ir"
)

// Node is a structured control flow construct.
type Node interface {
	node()
}

// Code is straight-line code taken from one basic block. A Goto terminator
// is dropped; a Return terminator is kept.
type Code struct {
	Label        string
	Instructions []ir.Instruction
}

// Block is a forward branch target. A Br to its label jumps past its end.
type Block struct {
	Label string
	Body  []Node
}

// Loop is a backward branch target. A Br to its label jumps to its start.
type Loop struct {
	Label  string
	Header string // Label of the flat test block
	Body   []Node
}

// If runs Cond and then one of its arms.
type If struct {
	Label string // Label of the flat test block
	Cond  []ir.Instruction
	Then  []Node
	Else  []Node
}

// Br branches to an enclosing Block or Loop.
type Br struct {
	Target string
}

// BrIf pops a condition and branches to an enclosing Block or Loop when it
// holds. Negate inverts the condition first.
type BrIf struct {
	Target string
	Negate bool
}

func (Code) node()  {}
func (Block) node() {}
func (Loop) node()  {}
func (If) node()    {}
func (Br) node()    {}
func (BrIf) node()  {}

// LoopLabel returns the structured label of the loop headed by header.
func LoopLabel(header string) string { return "loop_" + header }

// ExitLabel returns the structured label of the block wrapping the loop
// headed by header.
func ExitLabel(header string) string { return "exit_" + header }

// MergeLabel returns the structured label of the block wrapping the if/else
// tested in test, used when a nested arm jumps straight to its merge point.
func MergeLabel(test string) string { return "merge_" + test }
