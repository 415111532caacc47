package cfg

import (
	"errors"
	"fmt"

	"github.com/l3aro/go-flowc/pkg/ir"
)

var (
	// ErrMissingTerminator is returned for a block that does not end in a
	// control instruction.
	ErrMissingTerminator = errors.New("block has no terminator")

	// ErrMisplacedTerminator is returned for a control instruction before
	// the end of a block.
	ErrMisplacedTerminator = errors.New("control instruction before end of block")

	// ErrUnknownLabel is returned for a branch to a label with no block.
	ErrUnknownLabel = errors.New("branch to unknown label")

	// ErrDuplicateLabel is returned when two blocks share a label.
	ErrDuplicateLabel = errors.New("duplicate block label")
)

// Edge is a directed edge between two block labels.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is a read-only view over a finalized block list. Successors and
// predecessors come from each block's terminator; back edges and loop
// headers come from a depth-first search from the entry block.
type Graph struct {
	Entry        string              // Label of the first block
	Order        []string            // Labels in block list order
	Successors   map[string][]string // Branch targets per label
	Predecessors map[string][]string // Branch sources per label
	BackEdges    []Edge              // Edges to a block on the DFS stack
	LoopHeaders  map[string]bool     // Targets of back edges

	blocks    map[string]ir.BasicBlock
	reachable map[string]bool
	backEdges map[Edge]bool
}

// Analyze builds the graph for blocks. The first block is the entry. The
// loop detection assumes a reducible graph with one entry per loop, which
// holds for everything the flattener emits.
func Analyze(blocks []ir.BasicBlock) (*Graph, error) {
	g := &Graph{
		Order:        make([]string, 0, len(blocks)),
		Successors:   make(map[string][]string, len(blocks)),
		Predecessors: make(map[string][]string, len(blocks)),
		LoopHeaders:  make(map[string]bool),
		blocks:       make(map[string]ir.BasicBlock, len(blocks)),
		reachable:    make(map[string]bool, len(blocks)),
		backEdges:    make(map[Edge]bool),
	}
	if len(blocks) == 0 {
		return g, nil
	}

	for _, b := range blocks {
		if _, dup := g.blocks[b.Label]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLabel, b.Label)
		}
		g.blocks[b.Label] = b
		g.Order = append(g.Order, b.Label)
		g.Predecessors[b.Label] = []string{}
	}

	for _, b := range blocks {
		term, ok := b.Terminator()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingTerminator, b.Label)
		}
		for i, instr := range b.Body() {
			if ir.IsTerminator(instr) {
				return nil, fmt.Errorf("%w: %s at position %d of %s", ErrMisplacedTerminator, instr, i, b.Label)
			}
		}

		succs := ir.Targets(term)
		for _, target := range succs {
			if _, ok := g.blocks[target]; !ok {
				return nil, fmt.Errorf("%w: %s branches to %s", ErrUnknownLabel, b.Label, target)
			}
			g.Predecessors[target] = append(g.Predecessors[target], b.Label)
		}
		if succs == nil {
			succs = []string{}
		}
		g.Successors[b.Label] = succs
	}

	g.Entry = blocks[0].Label
	g.detectBackEdges()

	return g, nil
}

// detectBackEdges runs a DFS from the entry keeping the set of labels on
// the current path. An edge into that set is a back edge and its target
// is a loop header.
func (g *Graph) detectBackEdges() {
	onStack := make(map[string]bool)

	var dfs func(label string)
	dfs = func(label string) {
		if g.reachable[label] {
			return
		}
		g.reachable[label] = true
		onStack[label] = true

		for _, succ := range g.Successors[label] {
			if onStack[succ] {
				edge := Edge{From: label, To: succ}
				if !g.backEdges[edge] {
					g.backEdges[edge] = true
					g.BackEdges = append(g.BackEdges, edge)
				}
				g.LoopHeaders[succ] = true
				continue
			}
			dfs(succ)
		}

		delete(onStack, label)
	}

	dfs(g.Entry)
}

// Block returns the block with the given label.
func (g *Graph) Block(label string) (ir.BasicBlock, bool) {
	b, ok := g.blocks[label]
	return b, ok
}

// IsLoopHeader reports whether label is the target of a back edge.
func (g *Graph) IsLoopHeader(label string) bool {
	return g.LoopHeaders[label]
}

// IsBackEdge reports whether from -> to is a back edge.
func (g *Graph) IsBackEdge(from, to string) bool {
	return g.backEdges[Edge{From: from, To: to}]
}

// IsReachable reports whether label is reachable from the entry block.
func (g *Graph) IsReachable(label string) bool {
	return g.reachable[label]
}

// Len returns the number of blocks.
func (g *Graph) Len() int {
	return len(g.Order)
}
