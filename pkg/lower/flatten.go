package lower

import (
	"errors"
	"fmt"

	"github.com/l3aro/go-flowc/pkg/diag"
	"github.com/l3aro/go-flowc/pkg/ir"
)

var (
	// ErrLoopControlOutsideLoop is returned for a break or continue with no
	// enclosing while loop.
	ErrLoopControlOutsideLoop = errors.New("loop control outside loop")

	// ErrFallOffEnd is returned when control would reach the end of the
	// function without a return.
	ErrFallOffEnd = errors.New("control reaches end of function without return")

	// ErrUnexpectedStatement is returned for a statement variant the
	// flattener does not handle, such as an unmerged Simple.
	ErrUnexpectedStatement = errors.New("unexpected statement")
)

// LoopContext holds the branch targets of the innermost enclosing loop.
type LoopContext struct {
	BreakLabel    string // Where control goes after the loop
	ContinueLabel string // The loop's test block
}

// FlattenState is the state of one flattening run: the label source and
// the stack of enclosing loops. It must not be shared between functions.
type FlattenState struct {
	labels *ir.LabelGenerator
	loops  []LoopContext
}

// NewFlattenState creates a state drawing labels from labels.
func NewFlattenState(labels *ir.LabelGenerator) *FlattenState {
	return &FlattenState{labels: labels}
}

// Depth returns the current loop nesting depth.
func (s *FlattenState) Depth() int {
	return len(s.loops)
}

// linked is the result of linking one statement or statement list: its
// blocks in order and the label control enters through. An empty list
// links to no blocks and enters at its continuation.
type linked struct {
	blocks []ir.BasicBlock
	entry  string
}

// Flatten lowers a merged function body into basic blocks, each ending in
// exactly one Goto, CondBranch or Return. Every block gets a fresh label
// from labels; provisional labels on the input are discarded.
func Flatten(body []ir.Stmt, labels *ir.LabelGenerator) ([]ir.BasicBlock, error) {
	return NewFlattenState(labels).Flatten(body)
}

// Flatten lowers body using the state's label generator.
func (s *FlattenState) Flatten(body []ir.Stmt) ([]ir.BasicBlock, error) {
	res, err := s.linkList(body, "")
	if err != nil {
		return nil, err
	}
	if d := s.Depth(); d != 0 {
		return nil, fmt.Errorf("internal error: %d loop contexts left open", d)
	}

	for _, b := range res.blocks {
		if err := ir.ValidateBlock(b); err != nil {
			return nil, fmt.Errorf("internal error: %w", err)
		}
	}

	return res.blocks, nil
}

// linkList links stmts back to front so each statement's continuation is
// already known when it is linked. next is "" at the end of the function.
func (s *FlattenState) linkList(stmts []ir.Stmt, next string) (linked, error) {
	var blocks []ir.BasicBlock
	for i := len(stmts) - 1; i >= 0; i-- {
		res, err := s.linkStatement(stmts[i], next)
		if err != nil {
			return linked{}, err
		}
		blocks = append(res.blocks, blocks...)
		next = res.entry
	}
	return linked{blocks: blocks, entry: next}, nil
}

func (s *FlattenState) linkStatement(stmt ir.Stmt, next string) (linked, error) {
	switch st := stmt.(type) {
	case ir.Block:
		return s.linkBlock(st, next)
	case ir.If:
		return s.linkIf(st, next)
	case ir.While:
		return s.linkWhile(st, next)
	case ir.Break:
		return s.linkLoopControl(st.Pos, "break")
	case ir.Continue:
		return s.linkLoopControl(st.Pos, "continue")
	default:
		return linked{}, fmt.Errorf("%w: %T", ErrUnexpectedStatement, stmt)
	}
}

func (s *FlattenState) linkBlock(block ir.Block, next string) (linked, error) {
	label := s.labels.Next()
	instrs := block.Instructions

	if !endsInReturn(instrs) {
		if next == "" {
			return linked{}, diag.Errorf(ir.Pos{}, ErrFallOffEnd, "%s", ErrFallOffEnd).
				WithHint("add a return statement at the end of the function")
		}
		instrs = withTerminator(instrs, ir.Goto{Label: next})
	}

	return linked{
		blocks: []ir.BasicBlock{{Label: label, Instructions: instrs}},
		entry:  label,
	}, nil
}

// linkIf emits the test block followed by the then and else blocks. Both
// arms continue at next; no separate merge block is created.
func (s *FlattenState) linkIf(stmt ir.If, next string) (linked, error) {
	testLabel := s.labels.Next()

	thenRes, err := s.linkList(stmt.Then, next)
	if err != nil {
		return linked{}, err
	}
	elseRes, err := s.linkList(stmt.Else, next)
	if err != nil {
		return linked{}, err
	}
	if thenRes.entry == "" || elseRes.entry == "" {
		return linked{}, diag.Errorf(stmt.Pos, ErrFallOffEnd, "%s", ErrFallOffEnd).
			WithHint("an empty branch of this if falls off the end of the function")
	}

	test := ir.BasicBlock{
		Label:        testLabel,
		Instructions: withTerminator(stmt.Cond, ir.CondBranch{True: thenRes.entry, False: elseRes.entry}),
	}

	blocks := make([]ir.BasicBlock, 0, 1+len(thenRes.blocks)+len(elseRes.blocks))
	blocks = append(blocks, test)
	blocks = append(blocks, thenRes.blocks...)
	blocks = append(blocks, elseRes.blocks...)

	return linked{blocks: blocks, entry: testLabel}, nil
}

// linkWhile emits the test block followed by the body blocks. The body
// continues at the test block; break and continue inside it resolve
// against this loop's context.
func (s *FlattenState) linkWhile(stmt ir.While, next string) (linked, error) {
	testLabel := s.labels.Next()
	if next == "" {
		return linked{}, diag.Errorf(stmt.Pos, ErrFallOffEnd, "%s", ErrFallOffEnd).
			WithHint("add a return statement after the loop")
	}

	s.loops = append(s.loops, LoopContext{BreakLabel: next, ContinueLabel: testLabel})
	bodyRes, err := s.linkList(stmt.Body, testLabel)
	s.loops = s.loops[:len(s.loops)-1]
	if err != nil {
		return linked{}, err
	}

	test := ir.BasicBlock{
		Label:        testLabel,
		Instructions: withTerminator(stmt.Cond, ir.CondBranch{True: bodyRes.entry, False: next}),
	}

	blocks := make([]ir.BasicBlock, 0, 1+len(bodyRes.blocks))
	blocks = append(blocks, test)
	blocks = append(blocks, bodyRes.blocks...)

	return linked{blocks: blocks, entry: testLabel}, nil
}

// linkLoopControl emits a single Goto block to the innermost loop's break
// or continue target.
func (s *FlattenState) linkLoopControl(pos ir.Pos, keyword string) (linked, error) {
	if len(s.loops) == 0 {
		return linked{}, diag.Errorf(pos, ErrLoopControlOutsideLoop, "%s outside loop", keyword)
	}

	loop := s.loops[len(s.loops)-1]
	target := loop.BreakLabel
	if keyword == "continue" {
		target = loop.ContinueLabel
	}

	label := s.labels.Next()
	return linked{
		blocks: []ir.BasicBlock{{Label: label, Instructions: []ir.Instruction{ir.Goto{Label: target}}}},
		entry:  label,
	}, nil
}

func withTerminator(instrs []ir.Instruction, term ir.Instruction) []ir.Instruction {
	out := make([]ir.Instruction, 0, len(instrs)+1)
	out = append(out, instrs...)
	return append(out, term)
}
