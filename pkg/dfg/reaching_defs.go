package dfg

import (
	"container/list"
	"sort"

	"github.com/l3aro/go-flowc/pkg/cfg"
	"github.com/l3aro/go-flowc/pkg/ir"
)

// definition is one entry in the analyzer's definition table. Undefined
// entries stand for "no store yet" on function entry.
type definition struct {
	ref       VarRef
	undefined bool
}

// ReachingDefsAnalyzer performs reaching definitions analysis on a control flow graph.
// It uses a worklist-based algorithm to compute which definitions reach each block,
// then builds def-use chains from these results.
type ReachingDefsAnalyzer struct {
	g      *cfg.Graph
	params []string

	defs []definition
	// blockGen maps block label to the last definition of each variable in it
	blockGen map[string]map[int]struct{}
	// blockKill maps block label to the variables stored in it
	blockKill map[string]map[string]struct{}
	// entryDefs holds parameters and undefined markers
	entryDefs map[int]struct{}
}

// NewReachingDefsAnalyzer creates an analyzer for the function whose flat
// graph is g. params are defined on entry.
func NewReachingDefsAnalyzer(g *cfg.Graph, params []string) *ReachingDefsAnalyzer {
	return &ReachingDefsAnalyzer{
		g:         g,
		params:    params,
		blockGen:  make(map[string]map[int]struct{}),
		blockKill: make(map[string]map[string]struct{}),
		entryDefs: make(map[int]struct{}),
	}
}

// Analyze computes the data flow graph of the function. Unreachable blocks
// are ignored.
func Analyze(name string, params []string, g *cfg.Graph) *DFGInfo {
	return NewReachingDefsAnalyzer(g, params).Analyze(name)
}

// Analyze runs the analysis and returns def-use chains for every use.
func (r *ReachingDefsAnalyzer) Analyze(name string) *DFGInfo {
	info := &DFGInfo{
		FunctionName: name,
		Variables:    make(map[string][]VarRef),
	}
	if r.g == nil || r.g.Len() == 0 {
		return info
	}

	refs := r.initialize()
	for _, ref := range refs {
		info.VarRefs = append(info.VarRefs, ref)
		info.Variables[ref.Name] = append(info.Variables[ref.Name], ref)
	}

	in := r.solve()
	info.DataflowEdges, info.Uninitialized = r.buildDefUseChains(refs, in)
	return info
}

// initialize numbers the definitions and builds gen/kill sets. It returns
// every reference in block order.
func (r *ReachingDefsAnalyzer) initialize() []VarRef {
	var refs []VarRef
	entry := r.g.Entry

	isParam := make(map[string]bool, len(r.params))
	for _, p := range r.params {
		isParam[p] = true
		ref := VarRef{Name: p, RefType: RefTypeParameter, Block: entry, Index: -1}
		r.entryDefs[len(r.defs)] = struct{}{}
		r.defs = append(r.defs, definition{ref: ref})
		refs = append(refs, ref)
	}

	// one undefined marker per local, in order of first appearance
	seen := make(map[string]bool)
	r.eachReachable(func(label string, b ir.BasicBlock) {
		for _, instr := range b.Instructions {
			var v string
			switch i := instr.(type) {
			case ir.StoreLocal:
				v = i.Name
			case ir.LoadLocal:
				v = i.Name
			default:
				continue
			}
			if isParam[v] || seen[v] {
				continue
			}
			seen[v] = true
			r.entryDefs[len(r.defs)] = struct{}{}
			r.defs = append(r.defs, definition{ref: VarRef{Name: v, Block: entry, Index: -1}, undefined: true})
		}
	})

	r.eachReachable(func(label string, b ir.BasicBlock) {
		last := make(map[string]int)
		kill := make(map[string]struct{})
		for idx, instr := range b.Instructions {
			switch i := instr.(type) {
			case ir.StoreLocal:
				ref := VarRef{Name: i.Name, RefType: RefTypeDefinition, Block: label, Index: idx}
				last[i.Name] = len(r.defs)
				kill[i.Name] = struct{}{}
				r.defs = append(r.defs, definition{ref: ref})
				refs = append(refs, ref)
			case ir.LoadLocal:
				refs = append(refs, VarRef{Name: i.Name, RefType: RefTypeUse, Block: label, Index: idx})
			}
		}
		gen := make(map[int]struct{}, len(last))
		for _, id := range last {
			gen[id] = struct{}{}
		}
		r.blockGen[label] = gen
		r.blockKill[label] = kill
	})

	return refs
}

func (r *ReachingDefsAnalyzer) eachReachable(fn func(label string, b ir.BasicBlock)) {
	for _, label := range r.g.Order {
		if !r.g.IsReachable(label) {
			continue
		}
		b, _ := r.g.Block(label)
		fn(label, b)
	}
}

// solve iterates in[b] = entry(b) U (U out[p]) and
// out[b] = gen[b] U (in[b] - kill[b]) to a fixpoint.
func (r *ReachingDefsAnalyzer) solve() map[string]map[int]struct{} {
	in := make(map[string]map[int]struct{})
	out := make(map[string]map[int]struct{})

	worklist := list.New()
	queued := make(map[string]bool)
	r.eachReachable(func(label string, _ ir.BasicBlock) {
		in[label] = make(map[int]struct{})
		out[label] = make(map[int]struct{})
		worklist.PushBack(label)
		queued[label] = true
	})

	for worklist.Len() > 0 {
		label := worklist.Remove(worklist.Front()).(string)
		queued[label] = false

		inSet := make(map[int]struct{})
		if label == r.g.Entry {
			for id := range r.entryDefs {
				inSet[id] = struct{}{}
			}
		}
		for _, pred := range r.g.Predecessors[label] {
			for id := range out[pred] {
				inSet[id] = struct{}{}
			}
		}
		in[label] = inSet

		outSet := r.computeOut(inSet, label)
		if setsEqual(outSet, out[label]) {
			continue
		}
		out[label] = outSet
		for _, succ := range r.g.Successors[label] {
			if !queued[succ] {
				worklist.PushBack(succ)
				queued[succ] = true
			}
		}
	}

	return in
}

// computeOut computes out[block] = gen[block] U (in[block] - kill[block]).
func (r *ReachingDefsAnalyzer) computeOut(inSet map[int]struct{}, label string) map[int]struct{} {
	outSet := make(map[int]struct{})
	for id := range r.blockGen[label] {
		outSet[id] = struct{}{}
	}
	for id := range inSet {
		if _, killed := r.blockKill[label][r.defs[id].ref.Name]; !killed {
			outSet[id] = struct{}{}
		}
	}
	return outSet
}

// buildDefUseChains connects every use to the definitions reaching it. A
// store earlier in the same block shadows everything reaching the block.
func (r *ReachingDefsAnalyzer) buildDefUseChains(refs []VarRef, in map[string]map[int]struct{}) ([]DataflowEdge, []VarRef) {
	var (
		edges         []DataflowEdge
		uninitialized []VarRef
	)

	// latest definition id per (block, var) while scanning forward
	local := make(map[string]int)
	block := ""
	defID := 0
	for _, d := range r.defs {
		if d.ref.RefType == RefTypeDefinition {
			break
		}
		defID++
	}

	for _, ref := range refs {
		if ref.Block != block {
			block = ref.Block
			local = make(map[string]int)
		}
		switch ref.RefType {
		case RefTypeDefinition:
			local[ref.Name] = defID
			defID++
			continue
		case RefTypeParameter:
			continue
		}

		if id, ok := local[ref.Name]; ok {
			edges = append(edges, DataflowEdge{DefRef: r.defs[id].ref, UseRef: ref, VarName: ref.Name})
			continue
		}

		reaching := sortedIDs(in[ref.Block])
		undefined := false
		for _, id := range reaching {
			d := r.defs[id]
			if d.ref.Name != ref.Name {
				continue
			}
			if d.undefined {
				undefined = true
				continue
			}
			edges = append(edges, DataflowEdge{DefRef: d.ref, UseRef: ref, VarName: ref.Name})
		}
		if undefined {
			uninitialized = append(uninitialized, ref)
		}
	}

	return edges, uninitialized
}

func sortedIDs(set map[int]struct{}) []int {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// setsEqual checks if two sets are equal.
func setsEqual(a, b map[int]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
