package cfg

import (
	"github.com/l3aro/go-flowc/pkg/ir"
)

// Info builds the report for the graph under the given function name.
// Complexity is E - N + 2 counted over blocks reachable from the entry.
func (g *Graph) Info(name string) *CFGInfo {
	info := &CFGInfo{
		FunctionName: name,
		Blocks:       make(map[string]CFGBlock, len(g.Order)),
		BlockOrder:   append([]string(nil), g.Order...),
		Edges:        []CFGEdge{},
		EntryBlockID: g.Entry,
		ExitBlockIDs: []string{},
		LoopHeaders:  []string{},
	}

	nodes, edges := 0, 0
	for _, label := range g.Order {
		b := g.blocks[label]
		term, _ := b.Terminator()

		statements := make([]string, 0, len(b.Instructions))
		for _, instr := range b.Instructions {
			statements = append(statements, instr.String())
		}

		info.Blocks[label] = CFGBlock{
			ID:           label,
			Type:         g.blockType(label, term),
			Statements:   statements,
			Predecessors: append([]string{}, g.Predecessors[label]...),
			Successors:   append([]string{}, g.Successors[label]...),
			Reachable:    g.reachable[label],
		}

		if _, ok := term.(ir.Return); ok {
			info.ExitBlockIDs = append(info.ExitBlockIDs, label)
		}
		if g.LoopHeaders[label] {
			info.LoopHeaders = append(info.LoopHeaders, label)
		}

		info.Edges = append(info.Edges, g.edgesFrom(label, term)...)

		if g.reachable[label] {
			nodes++
			edges += len(g.Successors[label])
		}
	}

	if nodes > 0 {
		info.CyclomaticComplexity = edges - nodes + 2
	}

	return info
}

func (g *Graph) blockType(label string, term ir.Instruction) BlockType {
	switch {
	case label == g.Entry:
		return BlockTypeEntry
	case g.LoopHeaders[label]:
		return BlockTypeLoopHeader
	}
	switch term.(type) {
	case ir.Return:
		return BlockTypeReturn
	case ir.CondBranch:
		return BlockTypeBranch
	default:
		return BlockTypePlain
	}
}

func (g *Graph) edgesFrom(label string, term ir.Instruction) []CFGEdge {
	edgeType := func(target string, fallback EdgeType) EdgeType {
		if g.IsBackEdge(label, target) {
			return EdgeTypeBackEdge
		}
		return fallback
	}

	switch t := term.(type) {
	case ir.Goto:
		return []CFGEdge{{SourceID: label, TargetID: t.Label, EdgeType: edgeType(t.Label, EdgeTypeUnconditional)}}
	case ir.CondBranch:
		return []CFGEdge{
			{SourceID: label, TargetID: t.True, EdgeType: edgeType(t.True, EdgeTypeTrue)},
			{SourceID: label, TargetID: t.False, EdgeType: edgeType(t.False, EdgeTypeFalse)},
		}
	}
	return nil
}
