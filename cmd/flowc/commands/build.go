package commands

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-flowc/internal/log"
	"github.com/l3aro/go-flowc/internal/scanner"
	"github.com/l3aro/go-flowc/pkg/cache"
	"github.com/l3aro/go-flowc/pkg/pipeline"
)

// BuildFile is the outcome of one file in the build report.
type BuildFile struct {
	Path      string `json:"path"`
	Success   bool   `json:"success"`
	Functions int    `json:"functions"`
	Cached    bool   `json:"cached"`
	Error     string `json:"error,omitempty"`
}

// BuildOutput represents the output of the build command
type BuildOutput struct {
	RootDir  string       `json:"root_dir"`
	Backend  string       `json:"backend"`
	Files    []BuildFile  `json:"files"`
	Failed   int          `json:"failed"`
	CacheDir string       `json:"cache_dir,omitempty"`
	Cache    *cache.Stats `json:"cache,omitempty"`
}

func newBuildCmd(a *app) *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:   "build [path]",
		Short: "Compile every source file under a directory",
		Long: `Scans a directory for .c files (honouring .flowcignore), compiles every
function with the configured backend and reports per-file results.
Unchanged files are served from the result cache.`,
		Args: cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			return a.runBuild(cmd, root, noCache)
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Ignore and do not update the result cache")
	return cmd
}

func (a *app) runBuild(cmd *cobra.Command, root string, noCache bool) error {
	opts := scanner.DefaultOptions()
	opts.IgnoreFileName = a.cfg.IgnoreFile
	files, err := scanner.New(opts).Scan(root)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", root, err)
	}
	a.logger.Debug("scanned", "root", root, "files", len(files))

	var rc *cache.ResultCache
	cacheDir := ""
	if a.cfg.CacheEnabled() && !noCache {
		cacheDir = a.cfg.CacheDir
		if !filepath.IsAbs(cacheDir) {
			cacheDir = filepath.Join(root, cacheDir)
		}
		rc, err = cache.OpenResultCache(cacheDir, a.cfg.CacheSize)
		if err != nil {
			// a corrupt cache is rebuilt rather than blocking the build
			a.logger.Warn("discarding result cache", "dir", cacheDir, "error", err)
			rc = cache.NewResultCache(a.cfg.CacheSize)
		}
	}

	c, err := a.compiler("", func(o *pipeline.Options) { o.Cache = rc })
	if err != nil {
		return err
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.FullPath)
	}

	spinner := log.NewProgressSpinner(fmt.Sprintf("Compiling %d files...", len(paths)))
	spinner.Start()
	results, err := c.CompileFiles(cmd.Context(), paths, a.cfg.Workers)
	spinner.Stop()
	if err != nil {
		return err
	}

	report := BuildOutput{
		RootDir: root,
		Backend: string(c.Options().Backend),
		Files:   make([]BuildFile, 0, len(results)),
	}
	for i, r := range results {
		bf := BuildFile{Path: files[i].Path, Success: r.Err == nil}
		if r.Err != nil {
			report.Failed++
			bf.Error = r.Err.Error()
		} else {
			bf.Functions = len(r.Result.Functions)
			bf.Cached = r.Result.Cached
		}
		report.Files = append(report.Files, bf)
	}

	if rc != nil {
		if err := rc.Flush(); err != nil {
			a.logger.Warn("writing result cache", "path", rc.Path(), "error", err)
		}
		stats := rc.Stats()
		report.Cache = &stats
		report.CacheDir = cacheDir
	}

	out := cmd.OutOrStdout()
	if a.jsonOutput() {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else {
		printBuildReport(out, report, results)
	}

	if report.Failed > 0 {
		return fmt.Errorf("%d of %d files failed to compile", report.Failed, len(results))
	}
	return nil
}

func printBuildReport(w io.Writer, report BuildOutput, results []pipeline.FileResult) {
	for i, f := range report.Files {
		if !f.Success {
			fmt.Fprintf(w, "FAIL %s\n", f.Path)
			rendered := Render(&sourceError{err: results[i].Err, src: results[i].Source})
			for _, line := range strings.Split(rendered, "\n") {
				fmt.Fprintf(w, "     %s\n", line)
			}
			continue
		}
		note := ""
		if f.Cached {
			note = " (cached)"
		}
		fmt.Fprintf(w, "ok   %s: %d functions%s\n", f.Path, f.Functions, note)
	}

	fmt.Fprintf(w, "\n%d files, %d failed, backend %s\n", len(report.Files), report.Failed, report.Backend)
	if report.Cache != nil {
		fmt.Fprintf(w, "cache: %d hits, %d misses, %d entries\n",
			report.Cache.HitCount, report.Cache.MissCount, report.Cache.Length)
	}
}
