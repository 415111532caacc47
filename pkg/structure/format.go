package structure

import (
	"fmt"
	"strings"

	"github.com/l3aro/go-flowc/pkg/ir"
)

// Format renders nodes as indented text in the style of a structured
// module listing. Source block labels appear as ";; L" comments.
func Format(nodes []Node) string {
	var sb strings.Builder
	formatNodes(&sb, nodes, 0)
	return sb.String()
}

func formatNodes(sb *strings.Builder, nodes []Node, depth int) {
	for _, n := range nodes {
		formatNode(sb, n, depth)
	}
}

func formatNode(sb *strings.Builder, n Node, depth int) {
	line := func(format string, args ...interface{}) {
		sb.WriteString(strings.Repeat("  ", depth))
		fmt.Fprintf(sb, format, args...)
		sb.WriteString("\n")
	}
	instrs := func(list []ir.Instruction) {
		for _, instr := range list {
			line("%s", instr)
		}
	}

	switch n := n.(type) {
	case Code:
		line(";; %s", n.Label)
		instrs(n.Instructions)
	case Block:
		line("block $%s", n.Label)
		formatNodes(sb, n.Body, depth+1)
		line("end")
	case Loop:
		line("loop $%s", n.Label)
		formatNodes(sb, n.Body, depth+1)
		line("end")
	case If:
		line(";; %s", n.Label)
		instrs(n.Cond)
		line("if")
		formatNodes(sb, n.Then, depth+1)
		if len(n.Else) > 0 {
			line("else")
			formatNodes(sb, n.Else, depth+1)
		}
		line("end")
	case Br:
		line("br $%s", n.Target)
	case BrIf:
		if n.Negate {
			line("i32.eqz")
		}
		line("br_if $%s", n.Target)
	}
}

// Verify checks that every Br and BrIf names an enclosing Block or Loop
// and that no raw Goto or CondBranch survives in the output.
func Verify(nodes []Node) error {
	return verify(nodes, nil)
}

func verify(nodes []Node, scope []string) error {
	inScope := func(target string) bool {
		for _, s := range scope {
			if s == target {
				return true
			}
		}
		return false
	}
	noJumps := func(label string, list []ir.Instruction) error {
		for _, instr := range list {
			switch instr.(type) {
			case ir.Goto, ir.CondBranch:
				return fmt.Errorf("%w: %s left in %s", ErrUnstructured, instr, label)
			}
		}
		return nil
	}

	for _, n := range nodes {
		switch n := n.(type) {
		case Code:
			if err := noJumps(n.Label, n.Instructions); err != nil {
				return err
			}
		case Block:
			if err := verify(n.Body, append(scope, n.Label)); err != nil {
				return err
			}
		case Loop:
			if err := verify(n.Body, append(scope, n.Label)); err != nil {
				return err
			}
		case If:
			if err := noJumps(n.Label, n.Cond); err != nil {
				return err
			}
			if err := verify(n.Then, scope); err != nil {
				return err
			}
			if err := verify(n.Else, scope); err != nil {
				return err
			}
		case Br:
			if !inScope(n.Target) {
				return fmt.Errorf("%w: br to %s outside its construct", ErrUnstructured, n.Target)
			}
		case BrIf:
			if !inScope(n.Target) {
				return fmt.Errorf("%w: br_if to %s outside its construct", ErrUnstructured, n.Target)
			}
		}
	}
	return nil
}
