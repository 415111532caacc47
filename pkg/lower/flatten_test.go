package lower

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/l3aro/go-flowc/pkg/diag"
	"github.com/l3aro/go-flowc/pkg/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func retBlock(v int64) ir.Block {
	return ir.Block{Label: "placeholder", Instructions: []ir.Instruction{ir.Const{Value: v}, ir.Return{}}}
}

func codeBlock(instrs ...ir.Instruction) ir.Block {
	return ir.Block{Label: "placeholder", Instructions: instrs}
}

func lessThan(name string, v int64) []ir.Instruction {
	return []ir.Instruction{ir.LoadLocal{Name: name}, ir.Const{Value: v}, ir.BinOp{Op: ir.OpLt}}
}

func byLabel(t *testing.T, blocks []ir.BasicBlock, label string) ir.BasicBlock {
	t.Helper()
	for _, b := range blocks {
		if b.Label == label {
			return b
		}
	}
	t.Fatalf("block %s not found", label)
	return ir.BasicBlock{}
}

func terminator(t *testing.T, b ir.BasicBlock) ir.Instruction {
	t.Helper()
	term, ok := b.Terminator()
	require.True(t, ok, "block %s has no terminator", b.Label)
	return term
}

func TestFlatten_IfWithTerminalArms(t *testing.T) {
	body := []ir.Stmt{
		ir.If{Cond: lessThan("n", 2), Then: []ir.Stmt{retBlock(1)}, Else: []ir.Stmt{retBlock(2)}},
	}

	blocks, err := Flatten(body, ir.NewLabelGenerator(""))
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	test := blocks[0]
	assert.Equal(t, ir.CondBranch{True: blocks[1].Label, False: blocks[2].Label}, terminator(t, test))
	assert.Equal(t, lessThan("n", 2), test.Body())

	for _, b := range blocks[1:] {
		assert.True(t, b.EndsInReturn())
		assert.Len(t, b.Instructions, 2)
	}
}

func TestFlatten_NestedIfScenario(t *testing.T) {
	body := []ir.Stmt{
		ir.If{
			Cond: lessThan("n", 2),
			Then: []ir.Stmt{retBlock(1)},
			Else: []ir.Stmt{
				ir.If{Cond: lessThan("n", 10), Then: []ir.Stmt{retBlock(2)}, Else: []ir.Stmt{retBlock(3)}},
			},
		},
	}

	blocks, err := Flatten(body, ir.NewLabelGenerator(""))
	require.NoError(t, err)
	require.Len(t, blocks, 5)

	labels := make([]string, 0, len(blocks))
	for _, b := range blocks {
		labels = append(labels, b.Label)
	}
	assert.Equal(t, []string{"L0", "L1", "L2", "L3", "L4"}, labels)

	assert.Equal(t, ir.CondBranch{True: "L1", False: "L2"}, terminator(t, byLabel(t, blocks, "L0")))
	assert.Equal(t, ir.CondBranch{True: "L3", False: "L4"}, terminator(t, byLabel(t, blocks, "L2")))
	for _, l := range []string{"L1", "L3", "L4"} {
		assert.True(t, byLabel(t, blocks, l).EndsInReturn(), "%s should be terminal", l)
	}
}

func TestFlatten_WhileWithoutLoopControl(t *testing.T) {
	body := []ir.Stmt{
		ir.While{Cond: lessThan("x", 10), Body: []ir.Stmt{
			codeBlock(ir.LoadLocal{Name: "x"}, ir.Call{Name: "print", Argc: 1}, ir.Pop{}),
		}},
		retBlock(0),
	}

	blocks, err := Flatten(body, ir.NewLabelGenerator(""))
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	test, loopBody, exit := blocks[0], blocks[1], blocks[2]
	assert.Equal(t, ir.CondBranch{True: loopBody.Label, False: exit.Label}, terminator(t, test))
	assert.Equal(t, ir.Goto{Label: test.Label}, terminator(t, loopBody))
	assert.True(t, exit.EndsInReturn())
}

func TestFlatten_NestedLoopControlResolvesToInnermostLoop(t *testing.T) {
	body := []ir.Stmt{
		ir.While{Cond: lessThan("i", 10), Body: []ir.Stmt{
			ir.While{Cond: lessThan("j", 10), Body: []ir.Stmt{
				ir.Break{},
				ir.Continue{},
			}},
			codeBlock(ir.Const{Value: 0}, ir.StoreLocal{Name: "j"}),
			ir.Continue{},
		}},
		retBlock(0),
	}

	blocks, err := Flatten(body, ir.NewLabelGenerator(""))
	require.NoError(t, err)

	// Back to front: return L0, outer test L1, outer continue L2,
	// reset block L3, inner test L4, inner continue L5, inner break L6.
	outerTest := byLabel(t, blocks, "L1")
	innerTest := byLabel(t, blocks, "L4")
	assert.Equal(t, ir.CondBranch{True: "L4", False: "L0"}, terminator(t, outerTest))
	assert.Equal(t, ir.CondBranch{True: "L6", False: "L3"}, terminator(t, innerTest))

	assert.Equal(t, ir.Goto{Label: "L3"}, terminator(t, byLabel(t, blocks, "L6")), "inner break leaves the inner loop only")
	assert.Equal(t, ir.Goto{Label: "L4"}, terminator(t, byLabel(t, blocks, "L5")), "inner continue re-tests the inner loop")
	assert.Equal(t, ir.Goto{Label: "L1"}, terminator(t, byLabel(t, blocks, "L2")), "outer continue re-tests the outer loop")
	assert.Equal(t, ir.Goto{Label: "L2"}, terminator(t, byLabel(t, blocks, "L3")))
}

func TestFlatten_ReturnBlockGetsNoGoto(t *testing.T) {
	body := []ir.Stmt{retBlock(1), retBlock(2)}

	blocks, err := Flatten(body, ir.NewLabelGenerator(""))
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	for _, b := range blocks {
		assert.Equal(t, ir.Return{}, terminator(t, b))
		assert.Len(t, b.Instructions, 2)
	}
}

func TestFlatten_DiscardsPlaceholderLabels(t *testing.T) {
	body := []ir.Stmt{
		ir.Block{Label: "B7", Instructions: []ir.Instruction{ir.Const{Value: 1}, ir.StoreLocal{Name: "x"}}},
		ir.Block{Label: "B8", Instructions: []ir.Instruction{ir.LoadLocal{Name: "x"}, ir.Return{}}},
	}

	blocks, err := Flatten(body, ir.NewLabelGenerator(""))
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "L1", blocks[0].Label)
	assert.Equal(t, "L0", blocks[1].Label)
	assert.Equal(t, ir.Goto{Label: "L0"}, terminator(t, blocks[0]))
}

func TestFlatten_EmptyArmFallsThroughToContinuation(t *testing.T) {
	body := []ir.Stmt{
		ir.If{Cond: lessThan("x", 0), Then: []ir.Stmt{codeBlock(ir.Const{Value: 0}, ir.StoreLocal{Name: "x"})}},
		retBlock(0),
	}

	blocks, err := Flatten(body, ir.NewLabelGenerator(""))
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	// return L0, test L1, then-arm L2; the empty else arm enters at L0.
	assert.Equal(t, ir.CondBranch{True: "L2", False: "L0"}, terminator(t, byLabel(t, blocks, "L1")))
	assert.Equal(t, ir.Goto{Label: "L0"}, terminator(t, byLabel(t, blocks, "L2")))
}

func TestFlatten_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    []ir.Stmt
		wantErr error
		wantPos ir.Pos
	}{
		{
			name:    "break outside loop",
			body:    []ir.Stmt{ir.Break{Pos: ir.Pos{Line: 3, Column: 5}}, retBlock(0)},
			wantErr: ErrLoopControlOutsideLoop,
			wantPos: ir.Pos{Line: 3, Column: 5},
		},
		{
			name: "continue inside if but outside loop",
			body: []ir.Stmt{
				ir.If{Cond: lessThan("x", 1), Then: []ir.Stmt{ir.Continue{Pos: ir.Pos{Line: 7, Column: 9}}}},
				retBlock(0),
			},
			wantErr: ErrLoopControlOutsideLoop,
			wantPos: ir.Pos{Line: 7, Column: 9},
		},
		{
			name:    "block falls off the end",
			body:    []ir.Stmt{codeBlock(ir.Const{Value: 1}, ir.Pop{})},
			wantErr: ErrFallOffEnd,
		},
		{
			name:    "loop at the end",
			body:    []ir.Stmt{ir.While{Cond: lessThan("x", 1), Pos: ir.Pos{Line: 2, Column: 1}}},
			wantErr: ErrFallOffEnd,
			wantPos: ir.Pos{Line: 2, Column: 1},
		},
		{
			name:    "empty else arm at the end",
			body:    []ir.Stmt{ir.If{Cond: lessThan("x", 1), Then: []ir.Stmt{retBlock(1)}, Pos: ir.Pos{Line: 5, Column: 1}}},
			wantErr: ErrFallOffEnd,
			wantPos: ir.Pos{Line: 5, Column: 1},
		},
		{
			name:    "unmerged simple statement",
			body:    []ir.Stmt{ir.Simple{Instructions: []ir.Instruction{ir.Const{Value: 0}, ir.Return{}}}},
			wantErr: ErrUnexpectedStatement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks, err := Flatten(tt.body, ir.NewLabelGenerator(""))
			require.Error(t, err)
			assert.Nil(t, blocks)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			if tt.wantPos.IsValid() {
				var d *diag.Error
				require.True(t, errors.As(err, &d))
				assert.Equal(t, tt.wantPos, d.Pos)
			}
		})
	}
}

func TestFlatten_MisplacedTerminatorIsInternalError(t *testing.T) {
	body := []ir.Stmt{codeBlock(ir.Goto{Label: "L9"}, ir.Const{Value: 0}, ir.Return{})}

	_, err := Flatten(body, ir.NewLabelGenerator(""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ir.ErrInvalidBlock))
}

func TestFlatten_EmptyBody(t *testing.T) {
	blocks, err := Flatten(nil, ir.NewLabelGenerator(""))
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestFlattenState_IndependentRuns(t *testing.T) {
	body := []ir.Stmt{
		ir.While{Cond: lessThan("x", 3), Body: []ir.Stmt{ir.Break{}}},
		retBlock(0),
	}

	first, err := Flatten(body, ir.NewLabelGenerator(""))
	require.NoError(t, err)
	second, err := Flatten(body, ir.NewLabelGenerator(""))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	state := NewFlattenState(ir.NewLabelGenerator(""))
	_, err = state.Flatten(body)
	require.NoError(t, err)
	assert.Equal(t, 0, state.Depth())
}

// treeGen builds random statement trees in which loop control only appears
// inside loops and the body always ends in a returning block.
type treeGen struct {
	rng   *rand.Rand
	stmts int
}

func (g *treeGen) list(depth int, inLoop bool) []ir.Stmt {
	n := g.rng.Intn(4)
	out := make([]ir.Stmt, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.stmt(depth, inLoop))
	}
	return out
}

func (g *treeGen) stmt(depth int, inLoop bool) ir.Stmt {
	g.stmts++
	choice := g.rng.Intn(6)
	if depth <= 0 {
		choice = g.rng.Intn(2)
	}
	switch choice {
	case 0:
		return codeBlock(ir.Const{Value: int64(g.rng.Intn(100))}, ir.StoreLocal{Name: "x"})
	case 1:
		return retBlock(int64(g.rng.Intn(100)))
	case 2:
		return ir.If{Cond: lessThan("x", 5), Then: g.list(depth-1, inLoop), Else: g.list(depth-1, inLoop)}
	case 3:
		return ir.While{Cond: lessThan("x", 5), Body: g.list(depth-1, true)}
	case 4:
		if inLoop {
			return ir.Break{}
		}
		return codeBlock(ir.Const{Value: 1}, ir.Pop{})
	default:
		if inLoop {
			return ir.Continue{}
		}
		return codeBlock(ir.Const{Value: 2}, ir.Pop{})
	}
}

func TestFlatten_RandomTreesKeepBlockInvariant(t *testing.T) {
	g := &treeGen{rng: rand.New(rand.NewSource(42))}

	for i := 0; i < 500; i++ {
		g.stmts = 0
		body := append(g.list(4, false), retBlock(0))
		emitted := g.stmts + 1

		blocks, err := Flatten(body, ir.NewLabelGenerator(""))
		require.NoError(t, err, "tree %d", i)

		assert.NoError(t, ir.ValidateBlocks(blocks), "tree %d", i)
		assert.Len(t, blocks, emitted, "every statement yields exactly one block of its own")
		for _, b := range blocks {
			for _, instr := range b.Body() {
				assert.False(t, ir.IsTerminator(instr), "tree %d block %s", i, b.Label)
			}
		}
	}
}
