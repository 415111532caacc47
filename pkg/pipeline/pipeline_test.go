package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-flowc/internal/log"
	"github.com/l3aro/go-flowc/pkg/cache"
	"github.com/l3aro/go-flowc/pkg/diag"
	"github.com/l3aro/go-flowc/pkg/frontend"
	"github.com/l3aro/go-flowc/pkg/ir"
	"github.com/l3aro/go-flowc/pkg/lower"
	"github.com/l3aro/go-flowc/pkg/structure"
)

const countSrc = `
int count(int n) {
    int i = 0;
    while (i < n) {
        i = i + 1;
    }
    return i;
}
`

func newCompiler(backend Backend) *Compiler {
	return New(Options{
		Backend:  backend,
		Frontend: frontend.DefaultOptions(),
		Logger:   log.Discard(),
	})
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("flat")
	require.NoError(t, err)
	assert.Equal(t, BackendFlat, b)

	b, err = ParseBackend("structured")
	require.NoError(t, err)
	assert.Equal(t, BackendStructured, b)

	_, err = ParseBackend("wasm")
	assert.Error(t, err)
}

func TestCompileSource_Flat(t *testing.T) {
	res, err := newCompiler(BackendFlat).CompileSource(context.Background(), "count.c", []byte(countSrc))
	require.NoError(t, err)
	require.Len(t, res.Functions, 1)

	fn := res.Functions[0]
	assert.Nil(t, fn.Structured)
	assert.Equal(t, `L3:
  push 0
  store_local i
  goto L1
L1:
  load_local i
  load_local n
  lt
  cbranch L2, L0
L2:
  load_local i
  push 1
  add
  store_local i
  goto L1
L0:
  load_local i
  return
`, ir.FormatBlocks(fn.Blocks))

	assert.True(t, fn.Graph.IsLoopHeader("L1"))
	assert.NoError(t, ir.ValidateBlocks(fn.Blocks))
}

func TestCompileSource_Structured(t *testing.T) {
	res, err := newCompiler(BackendStructured).CompileSource(context.Background(), "count.c", []byte(countSrc))
	require.NoError(t, err)

	assert.Equal(t, `func count(n):
  ;; L3
  push 0
  store_local i
  block $exit_L1
    loop $loop_L1
      ;; L1
      load_local i
      load_local n
      lt
      i32.eqz
      br_if $exit_L1
      ;; L2
      load_local i
      push 1
      add
      store_local i
      br $loop_L1
    end
  end
  ;; L0
  load_local i
  return
`, res.Format())
}

func TestCompileSource_BreakInsideNestedIf(t *testing.T) {
	src := `
int f(int a, int b) {
    int x = 0;
    while (a < 10) {
        if (a > 0) {
            if (b > 0) {
                break;
            } else {
                x = 1;
            }
        }
        break;
    }
    return x;
}
`
	res, err := newCompiler(BackendStructured).CompileSource(context.Background(), "brk.c", []byte(src))
	require.NoError(t, err)

	fn, ok := res.Function("f")
	require.True(t, ok)
	require.NotEmpty(t, fn.Structured)
	require.NoError(t, structure.Verify(fn.Structured))
	assert.Contains(t, res.Format(), "block $merge_")
}

func TestCompileSource_LabelsRestartPerFunction(t *testing.T) {
	src := `
int one() { return 1; }
int two(int x) {
    if (x) return 2;
    return 3;
}
`
	res, err := newCompiler(BackendStructured).CompileSource(context.Background(), "two.c", []byte(src))
	require.NoError(t, err)
	require.Len(t, res.Functions, 2)

	for _, fn := range res.Functions {
		labels := make([]string, 0, len(fn.Blocks))
		for _, b := range fn.Blocks {
			labels = append(labels, b.Label)
		}
		assert.Contains(t, labels, "L0", "function %s", fn.Name)
	}

	fn, ok := res.Function("two")
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, fn.Params)
	_, ok = res.Function("three")
	assert.False(t, ok)
}

func TestCompileSource_CustomPrefix(t *testing.T) {
	c := New(Options{Backend: BackendFlat, LabelPrefix: "bb", Frontend: frontend.DefaultOptions(), Logger: log.Discard()})
	res, err := c.CompileSource(context.Background(), "one.c", []byte("int one() { return 1; }"))
	require.NoError(t, err)
	assert.Equal(t, "bb0", res.Functions[0].Blocks[0].Label)
}

func TestCompileSource_Globals(t *testing.T) {
	src := `
int total = 10;
int get() { return total; }
`
	res, err := newCompiler(BackendFlat).CompileSource(context.Background(), "g.c", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, []ir.Global{{Name: "total", Init: 10}}, res.Globals)
	assert.True(t, strings.HasPrefix(res.Format(), "global total = 10\n\nfunc get():\n"))
}

func TestCompileSource_Errors(t *testing.T) {
	t.Run("break outside loop", func(t *testing.T) {
		src := "int f() {\n    break;\n}\n"
		_, err := newCompiler(BackendStructured).CompileSource(context.Background(), "f.c", []byte(src))
		require.Error(t, err)
		assert.ErrorIs(t, err, lower.ErrLoopControlOutsideLoop)
		assert.True(t, strings.HasPrefix(err.Error(), "function f: f.c:2:5: "), err.Error())

		var d *diag.Error
		require.True(t, errors.As(err, &d))
		assert.Equal(t, "f.c", d.File)

		formatted := diag.Format(err, []byte(src))
		assert.Contains(t, formatted, "2 |     break;")
		assert.Contains(t, formatted, "function f: break outside loop")
	})

	t.Run("fall off end without explicit returns", func(t *testing.T) {
		c := New(Options{Backend: BackendFlat, Logger: log.Discard()})
		_, err := c.CompileSource(context.Background(), "f.c", []byte("void f() { tick(); }"))
		assert.ErrorIs(t, err, lower.ErrFallOffEnd)
	})

	t.Run("front end error", func(t *testing.T) {
		_, err := newCompiler(BackendFlat).CompileSource(context.Background(), "f.c", []byte("int f() { return y; }"))
		assert.ErrorIs(t, err, frontend.ErrUndeclared)
	})
}

func TestCompileUnit_NestedIfScenario(t *testing.T) {
	ret := func(v int64) ir.Stmt {
		return ir.Simple{Instructions: []ir.Instruction{ir.Const{Value: v}, ir.Return{}}}
	}
	lt := func(v int64) []ir.Instruction {
		return []ir.Instruction{ir.LoadLocal{Name: "n"}, ir.Const{Value: v}, ir.BinOp{Op: ir.OpLt}}
	}
	unit := &ir.Unit{File: "scenario", Functions: []ir.Function{{
		Name:   "classify",
		Params: []string{"n"},
		Body: []ir.Stmt{
			ir.If{Cond: lt(2), Then: []ir.Stmt{ret(1)}, Else: []ir.Stmt{
				ir.If{Cond: lt(10), Then: []ir.Stmt{ret(2)}, Else: []ir.Stmt{ret(3)}},
			}},
		},
	}}}

	res, err := newCompiler(BackendStructured).CompileUnit(unit)
	require.NoError(t, err)

	fn := res.Functions[0]
	labels := make([]string, 0, len(fn.Blocks))
	for _, b := range fn.Blocks {
		labels = append(labels, b.Label)
	}
	assert.Equal(t, []string{"L0", "L1", "L2", "L3", "L4"}, labels)
	assert.Equal(t, ir.CondBranch{True: "L1", False: "L2"}, fn.Blocks[0].Instructions[3])
	assert.Equal(t, ir.CondBranch{True: "L3", False: "L4"}, fn.Blocks[2].Instructions[3])

	require.Len(t, fn.Structured, 1)
	assert.IsType(t, structure.If{}, fn.Structured[0])
}

func TestCompileSource_Cache(t *testing.T) {
	rc := cache.NewResultCache(8)
	c := New(Options{Backend: BackendStructured, Frontend: frontend.DefaultOptions(), Logger: log.Discard(), Cache: rc})

	first, err := c.CompileSource(context.Background(), "count.c", []byte(countSrc))
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := c.CompileSource(context.Background(), "count.c", []byte(countSrc))
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Functions[0].Blocks, second.Functions[0].Blocks)
	assert.Equal(t, first.Format(), second.Format())

	// a different prefix misses
	other := New(Options{LabelPrefix: "X", Frontend: frontend.DefaultOptions(), Logger: log.Discard(), Cache: rc})
	third, err := other.CompileSource(context.Background(), "count.c", []byte(countSrc))
	require.NoError(t, err)
	assert.False(t, third.Cached)

	stats := rc.Stats()
	assert.Equal(t, int64(1), stats.HitCount)
	assert.Equal(t, int64(2), stats.MissCount)
}

func TestCompileSource_RejectsCorruptCacheEntry(t *testing.T) {
	rc := cache.NewResultCache(8)
	c := New(Options{Backend: BackendFlat, Frontend: frontend.DefaultOptions(), Logger: log.Discard(), Cache: rc})

	src := []byte("int one() { return 1; }")
	ret := []ir.Instruction{ir.Const{Value: 1}, ir.Return{}}
	corrupt := []ir.BasicBlock{
		{Label: "L0", Instructions: ret},
		{Label: "L0", Instructions: ret},
	}
	require.NoError(t, rc.Put(c.cacheKey(src), cache.NewUnit("one.c", nil, []ir.WireFunction{
		ir.EncodeFunction("one", nil, corrupt),
	})))

	_, err := c.CompileSource(context.Background(), "one.c", src)
	assert.ErrorIs(t, err, ir.ErrInvalidBlock)
	assert.ErrorContains(t, err, "duplicate label L0")
}

func TestCompileFunction_LogsLabelCount(t *testing.T) {
	var buf strings.Builder
	logger := log.New(log.LoggerConfig{Level: log.DebugLevel, Stderr: &buf})
	c := New(Options{Backend: BackendFlat, Frontend: frontend.DefaultOptions(), Logger: logger})

	res, err := c.CompileSource(context.Background(), "count.c", []byte(countSrc))
	require.NoError(t, err)

	want := fmt.Sprintf("flattened function=count blocks=%d labels=", len(res.Functions[0].Blocks))
	assert.Contains(t, buf.String(), want)
}

func TestCompileFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.c")
	bad := filepath.Join(dir, "bad.c")
	require.NoError(t, os.WriteFile(good, []byte(countSrc), 0644))
	require.NoError(t, os.WriteFile(bad, []byte("int f() { continue; }"), 0644))
	missing := filepath.Join(dir, "missing.c")

	results, err := newCompiler(BackendStructured).CompileFiles(context.Background(), []string{good, bad, missing}, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, good, results[0].Path)
	assert.NoError(t, results[0].Err)
	require.NotNil(t, results[0].Result)
	assert.Equal(t, "count", results[0].Result.Functions[0].Name)

	assert.ErrorIs(t, results[1].Err, lower.ErrLoopControlOutsideLoop)
	assert.Nil(t, results[1].Result)
	assert.NotEmpty(t, results[1].Source)

	assert.ErrorIs(t, results[2].Err, os.ErrNotExist)
}

func TestCompileFiles_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newCompiler(BackendFlat).CompileFiles(ctx, []string{"a.c"}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResult_Wire(t *testing.T) {
	res, err := newCompiler(BackendFlat).CompileSource(context.Background(), "count.c", []byte(countSrc))
	require.NoError(t, err)

	wire := res.Wire()
	require.Len(t, wire, 1)
	blocks, err := wire[0].DecodeBlocks()
	require.NoError(t, err)
	assert.Equal(t, res.Functions[0].Blocks, blocks)
}
