package structure

import (
	"errors"
	"fmt"

	"github.com/l3aro/go-flowc/pkg/ir"
)

var errOutOfSteps = errors.New("step budget exhausted")

// machine runs stack code for both the flat and the structured form of a
// function and records every store and call it performs.
type machine struct {
	locals map[string]int64
	stack  []int64
	trace  []string
	steps  int
}

func newMachine(locals map[string]int64, steps int) *machine {
	m := &machine{locals: make(map[string]int64, len(locals)), steps: steps}
	for k, v := range locals {
		m.locals[k] = v
	}
	return m
}

func (m *machine) push(v int64) { m.stack = append(m.stack, v) }

func (m *machine) pop() int64 {
	if len(m.stack) == 0 {
		return 0
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

func (m *machine) tick() error {
	m.steps--
	if m.steps < 0 {
		return errOutOfSteps
	}
	return nil
}

func truth(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func binop(op ir.Op, a, b int64) int64 {
	switch op {
	case ir.OpAdd:
		return a + b
	case ir.OpSub:
		return a - b
	case ir.OpMul:
		return a * b
	case ir.OpDiv:
		if b == 0 {
			return 0
		}
		return a / b
	case ir.OpMod:
		if b == 0 {
			return 0
		}
		return a % b
	case ir.OpLt:
		return truth(a < b)
	case ir.OpLe:
		return truth(a <= b)
	case ir.OpGt:
		return truth(a > b)
	case ir.OpGe:
		return truth(a >= b)
	case ir.OpEq:
		return truth(a == b)
	case ir.OpNe:
		return truth(a != b)
	case ir.OpAnd:
		return truth(a != 0 && b != 0)
	case ir.OpOr:
		return truth(a != 0 || b != 0)
	}
	panic("unknown operator " + string(op))
}

// step runs one straight-line instruction. It reports whether the
// instruction was a Return.
func (m *machine) step(in ir.Instruction) (bool, error) {
	if err := m.tick(); err != nil {
		return false, err
	}
	switch in := in.(type) {
	case ir.Const:
		m.push(in.Value)
	case ir.LoadLocal:
		m.push(m.locals[in.Name])
	case ir.StoreLocal:
		v := m.pop()
		m.locals[in.Name] = v
		m.trace = append(m.trace, fmt.Sprintf("%s=%d", in.Name, v))
	case ir.BinOp:
		b, a := m.pop(), m.pop()
		m.push(binop(in.Op, a, b))
	case ir.UnOp:
		v := m.pop()
		if in.Op == ir.OpNeg {
			m.push(-v)
		} else {
			m.push(truth(v == 0))
		}
	case ir.Call:
		for i := 0; i < in.Argc; i++ {
			m.pop()
		}
		m.trace = append(m.trace, "call "+in.Name)
		m.push(0)
	case ir.Pop:
		m.pop()
	case ir.Return:
		return true, nil
	default:
		return false, fmt.Errorf("unexpected instruction %s", in)
	}
	return false, nil
}

// runBlocks executes flat blocks from the first one.
func (m *machine) runBlocks(blocks []ir.BasicBlock) (int64, error) {
	byLabel := make(map[string]ir.BasicBlock, len(blocks))
	for _, b := range blocks {
		byLabel[b.Label] = b
	}

	label := blocks[0].Label
	for {
		b, ok := byLabel[label]
		if !ok {
			return 0, fmt.Errorf("jump to unknown block %s", label)
		}
		next := ""
		for _, in := range b.Instructions {
			switch in := in.(type) {
			case ir.Goto:
				next = in.Label
			case ir.CondBranch:
				if m.pop() != 0 {
					next = in.True
				} else {
					next = in.False
				}
			default:
				done, err := m.step(in)
				if err != nil {
					return 0, err
				}
				if done {
					return m.pop(), nil
				}
			}
		}
		if next == "" {
			return 0, fmt.Errorf("block %s falls off its end", label)
		}
		if err := m.tick(); err != nil {
			return 0, err
		}
		label = next
	}
}

// signal is how a structured node list finished: by falling off its end,
// by a branch to target, or by a Return.
type signal struct {
	target   string
	returned bool
}

// runNodes executes structured nodes with Block, Loop and Br semantics.
func (m *machine) runNodes(nodes []Node) (int64, error) {
	sig, err := m.exec(nodes)
	if err != nil {
		return 0, err
	}
	if sig.target != "" {
		return 0, fmt.Errorf("branch to %s escaped the function", sig.target)
	}
	if !sig.returned {
		return 0, errors.New("function fell off its end")
	}
	return m.pop(), nil
}

func (m *machine) exec(nodes []Node) (signal, error) {
	for _, n := range nodes {
		sig, err := m.node(n)
		if err != nil || sig.returned || sig.target != "" {
			return sig, err
		}
	}
	return signal{}, nil
}

func (m *machine) node(n Node) (signal, error) {
	switch n := n.(type) {
	case Code:
		for _, in := range n.Instructions {
			done, err := m.step(in)
			if err != nil {
				return signal{}, err
			}
			if done {
				return signal{returned: true}, nil
			}
		}
	case If:
		for _, in := range n.Cond {
			if _, err := m.step(in); err != nil {
				return signal{}, err
			}
		}
		if m.pop() != 0 {
			return m.exec(n.Then)
		}
		return m.exec(n.Else)
	case Block:
		sig, err := m.exec(n.Body)
		if sig.target == n.Label {
			sig.target = ""
		}
		return sig, err
	case Loop:
		for {
			sig, err := m.exec(n.Body)
			if err != nil || sig.target != n.Label {
				return sig, err
			}
			if err := m.tick(); err != nil {
				return signal{}, err
			}
		}
	case Br:
		return signal{target: n.Target}, nil
	case BrIf:
		cond := m.pop() != 0
		if n.Negate {
			cond = !cond
		}
		if cond {
			return signal{target: n.Target}, nil
		}
	default:
		return signal{}, fmt.Errorf("unexpected node %T", n)
	}
	return signal{}, nil
}
