// Package pipeline drives compilation of a unit: front end, block merging,
// flattening, CFG analysis and, for the structured backend, restructuring.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/l3aro/go-flowc/internal/log"
	"github.com/l3aro/go-flowc/pkg/cache"
	"github.com/l3aro/go-flowc/pkg/cfg"
	"github.com/l3aro/go-flowc/pkg/diag"
	"github.com/l3aro/go-flowc/pkg/frontend"
	"github.com/l3aro/go-flowc/pkg/ir"
	"github.com/l3aro/go-flowc/pkg/lower"
	"github.com/l3aro/go-flowc/pkg/structure"
)

// Backend selects the output form.
type Backend string

const (
	// BackendFlat emits labeled basic blocks with explicit jumps.
	BackendFlat Backend = "flat"
	// BackendStructured emits nested block, loop and if constructs.
	BackendStructured Backend = "structured"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendFlat, BackendStructured:
		return Backend(s), nil
	}
	return "", fmt.Errorf("unknown backend %q (want %s or %s)", s, BackendFlat, BackendStructured)
}

// provisionalPrefix labels blocks between merging and flattening. The
// flattener replaces every one of them.
const provisionalPrefix = "B"

// Options configure a Compiler.
type Options struct {
	Backend     Backend
	LabelPrefix string
	Frontend    frontend.Options
	Logger      log.Logger
	Cache       *cache.ResultCache // nil disables caching
}

// Function is one compiled function.
type Function struct {
	Name       string
	Params     []string
	Blocks     []ir.BasicBlock
	Graph      *cfg.Graph
	Structured []structure.Node // nil for the flat backend
}

// Result is one compiled unit.
type Result struct {
	File      string
	Backend   Backend
	Globals   []ir.Global
	Functions []Function
	Cached    bool // flat blocks came from the result cache
}

// Compiler runs the pipeline with fixed options. It is safe for
// concurrent use; every run owns its label generators.
type Compiler struct {
	opts Options
	log  log.Logger
}

// New creates a Compiler. Missing options take their defaults.
func New(opts Options) *Compiler {
	if opts.Backend == "" {
		opts.Backend = BackendStructured
	}
	if opts.LabelPrefix == "" {
		opts.LabelPrefix = ir.DefaultLabelPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Compiler{opts: opts, log: logger}
}

// Options returns the compiler's effective options.
func (c *Compiler) Options() Options {
	return c.opts
}

// CompileSource parses and compiles one source file. With a cache, an
// unchanged file skips the front end and flattening.
func (c *Compiler) CompileSource(ctx context.Context, file string, src []byte) (*Result, error) {
	flog := c.log.With("file", file)
	key := c.cacheKey(src)
	if c.opts.Cache != nil {
		if cached, ok := c.opts.Cache.Get(key); ok {
			flog.Debug("cache hit")
			return c.fromCache(file, cached)
		}
	}

	unit, err := frontend.Parse(ctx, file, src, c.opts.Frontend)
	if err != nil {
		return nil, err
	}

	res, err := c.CompileUnit(unit)
	if err != nil {
		return nil, err
	}

	if c.opts.Cache != nil {
		wire := make([]ir.WireFunction, 0, len(res.Functions))
		for _, fn := range res.Functions {
			wire = append(wire, ir.EncodeFunction(fn.Name, fn.Params, fn.Blocks))
		}
		if err := c.opts.Cache.Put(key, cache.NewUnit(file, res.Globals, wire)); err != nil {
			flog.Warn("caching failed", "error", err)
		}
	}

	return res, nil
}

// CompileUnit compiles every function of unit. The first failing
// function aborts the unit.
func (c *Compiler) CompileUnit(unit *ir.Unit) (*Result, error) {
	res := &Result{
		File:      unit.File,
		Backend:   c.opts.Backend,
		Globals:   unit.Globals,
		Functions: make([]Function, 0, len(unit.Functions)),
	}

	// One provisional generator per unit; flattening labels restart per
	// function.
	provisional := ir.NewLabelGenerator(provisionalPrefix)

	for _, fn := range unit.Functions {
		compiled, err := c.CompileFunction(fn, provisional)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", fn.Name, diag.WithFile(err, unit.File))
		}
		res.Functions = append(res.Functions, compiled)
	}

	c.log.Debug("compiled unit", "file", unit.File, "functions", len(res.Functions))
	return res, nil
}

// CompileFunction runs merging, flattening and the backend stages on fn.
// provisional supplies the labels for merged blocks.
func (c *Compiler) CompileFunction(fn ir.Function, provisional *ir.LabelGenerator) (Function, error) {
	merged := lower.MergeFunction(fn, provisional)
	c.log.Debug("merged blocks", "function", fn.Name, "statements", len(merged.Body))

	labels := ir.NewLabelGenerator(c.opts.LabelPrefix)
	blocks, err := lower.Flatten(merged.Body, labels)
	if err != nil {
		return Function{}, err
	}
	c.log.Debug("flattened", "function", fn.Name, "blocks", len(blocks), "labels", labels.Count())

	return c.finish(fn.Name, fn.Params, blocks)
}

// finish runs the stages that follow flattening.
func (c *Compiler) finish(name string, params []string, blocks []ir.BasicBlock) (Function, error) {
	g, err := cfg.Analyze(blocks)
	if err != nil {
		return Function{}, err
	}
	c.log.Debug("analyzed", "function", name, "loop_headers", len(g.LoopHeaders), "back_edges", len(g.BackEdges))

	out := Function{Name: name, Params: params, Blocks: blocks, Graph: g}
	if c.opts.Backend != BackendStructured {
		return out, nil
	}

	nodes, err := structure.Restructure(blocks, g)
	if err != nil {
		return Function{}, err
	}
	if err := structure.Verify(nodes); err != nil {
		return Function{}, fmt.Errorf("internal error: %w", err)
	}
	c.log.Debug("restructured", "function", name, "nodes", len(nodes))

	out.Structured = nodes
	return out, nil
}

func (c *Compiler) fromCache(file string, cached *cache.Unit) (*Result, error) {
	res := &Result{
		File:      file,
		Backend:   c.opts.Backend,
		Globals:   cached.IRGlobals(),
		Functions: make([]Function, 0, len(cached.Functions)),
		Cached:    true,
	}
	for _, wf := range cached.Functions {
		blocks, err := wf.DecodeBlocks()
		if err == nil {
			err = ir.ValidateBlocks(blocks)
		}
		if err != nil {
			return nil, fmt.Errorf("function %s: cached blocks: %w", wf.Name, err)
		}
		fn, err := c.finish(wf.Name, wf.Params, blocks)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", wf.Name, err)
		}
		res.Functions = append(res.Functions, fn)
	}
	return res, nil
}

// cacheKey covers every option that changes the flat blocks. The backend
// is not part of it: both backends start from the same blocks.
func (c *Compiler) cacheKey(src []byte) string {
	return cache.Key(src, c.opts.LabelPrefix, strconv.FormatBool(c.opts.Frontend.ExplicitReturns))
}

// Function returns the compiled function with the given name.
func (r *Result) Function(name string) (*Function, bool) {
	for i := range r.Functions {
		if r.Functions[i].Name == name {
			return &r.Functions[i], true
		}
	}
	return nil, false
}

// Listing renders fn in the result's backend form.
func (r *Result) Listing(fn *Function) string {
	if r.Backend == BackendStructured && fn.Structured != nil {
		return structure.Format(fn.Structured)
	}
	return ir.FormatBlocks(fn.Blocks)
}

// Format renders the whole unit: globals, then every function under a
// header line.
func (r *Result) Format() string {
	var sb strings.Builder
	for _, g := range r.Globals {
		fmt.Fprintf(&sb, "global %s = %d\n", g.Name, g.Init)
	}
	if len(r.Globals) > 0 {
		sb.WriteString("\n")
	}

	for i := range r.Functions {
		fn := &r.Functions[i]
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "func %s(%s):\n", fn.Name, strings.Join(fn.Params, ", "))
		for _, line := range strings.Split(strings.TrimRight(r.Listing(fn), "\n"), "\n") {
			sb.WriteString("  ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Wire returns the flat blocks of every function in serialisable form.
func (r *Result) Wire() []ir.WireFunction {
	out := make([]ir.WireFunction, 0, len(r.Functions))
	for _, fn := range r.Functions {
		out = append(out, ir.EncodeFunction(fn.Name, fn.Params, fn.Blocks))
	}
	return out
}
