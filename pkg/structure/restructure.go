package structure

import (
	"errors"
	"fmt"

	"github.com/l3aro/go-flowc/pkg/cfg"
	"github.com/l3aro/go-flowc/pkg/ir"
)

// ErrUnstructured is returned for a graph shape the restructurer cannot
// express with nested constructs, such as a block reached from two places
// that are not a loop header or a merge point.
var ErrUnstructured = errors.New("control flow cannot be structured")

type loopFrame struct {
	header string
	exit   string
}

// regionFrame is an if/else whose arms are being walked. stop is its merge
// point; used is set once an inner Br leaves the region through it.
type regionFrame struct {
	test string
	stop string
	used bool
}

type restructurer struct {
	g         *cfg.Graph
	processed map[string]bool
	loops     []loopFrame
	regions   []*regionFrame
}

// Restructure converts a flat block list into structured nodes. g is the
// analysis of blocks; when nil it is computed. Blocks not reachable from
// the entry are dropped.
//
// Only the shapes the flattener emits are supported: single-condition if
// and while, with break and continue to the innermost loop.
func Restructure(blocks []ir.BasicBlock, g *cfg.Graph) ([]Node, error) {
	if g == nil {
		var err error
		if g, err = cfg.Analyze(blocks); err != nil {
			return nil, err
		}
	}
	if g.Len() == 0 {
		return nil, nil
	}

	r := &restructurer{
		g:         g,
		processed: make(map[string]bool, g.Len()),
	}
	return r.walk(g.Entry, "")
}

// walk emits the region starting at label. The region ends at stop, at a
// branch to an enclosing loop, or at a block with no fallthrough.
func (r *restructurer) walk(label, stop string) ([]Node, error) {
	var out []Node

	for label != "" {
		if label == stop {
			return out, nil
		}
		if target, ok := r.enclosingTarget(label); ok {
			return append(out, Br{Target: target}), nil
		}
		if r.processed[label] {
			return nil, fmt.Errorf("%w: block %s is entered twice", ErrUnstructured, label)
		}
		r.processed[label] = true

		b, ok := r.g.Block(label)
		if !ok {
			return nil, fmt.Errorf("%w: %s", cfg.ErrUnknownLabel, label)
		}
		term, ok := b.Terminator()
		if !ok {
			return nil, fmt.Errorf("%w: %s", cfg.ErrMissingTerminator, label)
		}

		switch t := term.(type) {
		case ir.Return:
			return append(out, Code{Label: label, Instructions: b.Instructions}), nil

		case ir.Goto:
			if body := b.Body(); len(body) > 0 {
				out = append(out, Code{Label: label, Instructions: body})
			}
			label = t.Label

		case ir.CondBranch:
			if r.g.IsLoopHeader(label) {
				node, err := r.loop(b, t)
				if err != nil {
					return nil, err
				}
				out = append(out, node)
				label = t.False
				continue
			}

			node, merge, err := r.branch(b, t, stop)
			if err != nil {
				return nil, err
			}
			out = append(out, node)
			label = merge

		default:
			return nil, fmt.Errorf("%w: unexpected terminator %s in %s", ErrUnstructured, term, label)
		}
	}

	return out, nil
}

// enclosingTarget maps a label that is the header or exit of an enclosing
// loop, or the merge point of an enclosing if/else, to the structured label
// a Br must name.
func (r *restructurer) enclosingTarget(label string) (string, bool) {
	for i := len(r.loops) - 1; i >= 0; i-- {
		switch label {
		case r.loops[i].header:
			return LoopLabel(label), true
		case r.loops[i].exit:
			return ExitLabel(r.loops[i].header), true
		}
	}
	for i := len(r.regions) - 1; i >= 0; i-- {
		if f := r.regions[i]; f.stop == label {
			f.used = true
			return MergeLabel(f.test), true
		}
	}
	return "", false
}

// loop wraps the loop headed by b as
//
//	block exit { loop header { cond; eqz; br_if exit; body } }
//
// The body is walked with the loop pushed so back edges become Br to the
// loop label and exits become Br to the block label.
func (r *restructurer) loop(b ir.BasicBlock, t ir.CondBranch) (Node, error) {
	header := b.Label

	r.loops = append(r.loops, loopFrame{header: header, exit: t.False})
	body, err := r.walk(t.True, "")
	r.loops = r.loops[:len(r.loops)-1]
	if err != nil {
		return nil, err
	}

	loopBody := make([]Node, 0, len(body)+2)
	loopBody = append(loopBody,
		Code{Label: header, Instructions: b.Body()},
		BrIf{Target: ExitLabel(header), Negate: true},
	)
	loopBody = append(loopBody, body...)

	return Block{
		Label: ExitLabel(header),
		Body:  []Node{Loop{Label: LoopLabel(header), Header: header, Body: loopBody}},
	}, nil
}

// branch emits an if/else for b and returns the label the walk continues
// at, or "" when neither arm falls through to a common block. When a nested
// arm jumps straight to the merge point, the if is wrapped in a block that
// the jump leaves with a Br.
func (r *restructurer) branch(b ir.BasicBlock, t ir.CondBranch, stop string) (Node, string, error) {
	merge := r.mergePoint(t.True, t.False, stop)

	armStop := merge
	if armStop == "" {
		armStop = stop
	}

	var frame *regionFrame
	if merge != "" {
		frame = &regionFrame{test: b.Label, stop: merge}
		r.regions = append(r.regions, frame)
	}
	then, els, err := r.arms(t, armStop)
	if frame != nil {
		r.regions = r.regions[:len(r.regions)-1]
	}
	if err != nil {
		return nil, "", err
	}

	var node Node = If{Label: b.Label, Cond: b.Body(), Then: then, Else: els}
	if frame != nil && frame.used {
		node = Block{Label: MergeLabel(b.Label), Body: []Node{node}}
	}
	return node, merge, nil
}

func (r *restructurer) arms(t ir.CondBranch, stop string) (then, els []Node, err error) {
	if then, err = r.walk(t.True, stop); err != nil {
		return nil, nil, err
	}
	if els, err = r.walk(t.False, stop); err != nil {
		return nil, nil, err
	}
	return then, els, nil
}

// mergePoint finds the first block both arms reach. Reachability ignores
// back edges and does not pass through the current stop, the merge point of
// any enclosing if/else or any enclosing loop label, so the merge always
// lies inside the current region. Among common blocks the one reaching the
// most blocks is first in flow order; ties fall back to block order.
func (r *restructurer) mergePoint(a, b, stop string) string {
	boundary := r.boundary(stop)
	fromA := r.reach(a, boundary)
	fromB := r.reach(b, boundary)

	best, bestSize := "", -1
	for _, label := range r.g.Order {
		if !fromA[label] || !fromB[label] {
			continue
		}
		if size := len(r.reach(label, boundary)); size > bestSize {
			best, bestSize = label, size
		}
	}
	return best
}

func (r *restructurer) boundary(stop string) map[string]bool {
	boundary := make(map[string]bool, 2*len(r.loops)+len(r.regions)+1)
	if stop != "" {
		boundary[stop] = true
	}
	for _, f := range r.regions {
		boundary[f.stop] = true
	}
	for _, l := range r.loops {
		boundary[l.header] = true
		boundary[l.exit] = true
	}
	return boundary
}

func (r *restructurer) reach(from string, boundary map[string]bool) map[string]bool {
	seen := make(map[string]bool)
	if boundary[from] {
		return seen
	}

	queue := []string{from}
	seen[from] = true
	for len(queue) > 0 {
		label := queue[0]
		queue = queue[1:]
		for _, succ := range r.g.Successors[label] {
			if seen[succ] || boundary[succ] || r.g.IsBackEdge(label, succ) {
				continue
			}
			seen[succ] = true
			queue = append(queue, succ)
		}
	}
	return seen
}
