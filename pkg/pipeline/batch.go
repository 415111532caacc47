package pipeline

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// FileResult is the outcome of compiling one file in a batch.
type FileResult struct {
	Path   string
	Source []byte
	Result *Result
	Err    error // compile error for this file only
}

// CompileFiles compiles paths concurrently with at most workers files in
// flight (GOMAXPROCS when workers <= 0). A file that fails to compile does
// not stop the others; its error is recorded in its FileResult. The
// returned error is non-nil only when ctx is cancelled. Results keep the
// order of paths.
func (c *Compiler) CompileFiles(ctx context.Context, paths []string, workers int) ([]FileResult, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]FileResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			flog := c.log.With("file", path)
			results[i] = FileResult{Path: path}
			src, err := os.ReadFile(path)
			if err != nil {
				results[i].Err = fmt.Errorf("reading %s: %w", path, err)
				return nil
			}
			results[i].Source = src

			res, err := c.CompileSource(ctx, path, src)
			if err != nil {
				results[i].Err = err
				flog.Debug("compile failed", "error", err)
				return nil
			}
			results[i].Result = res
			flog.Info("compiled", "functions", len(res.Functions), "cached", res.Cached)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
