// Package commands provides the CLI commands for the flowc tool.
package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-flowc/internal/config"
	"github.com/l3aro/go-flowc/internal/log"
	"github.com/l3aro/go-flowc/pkg/diag"
	"github.com/l3aro/go-flowc/pkg/frontend"
	"github.com/l3aro/go-flowc/pkg/pipeline"
)

// Version is set by main.
var Version = "dev"

// app carries the state shared by every subcommand once the root's
// PersistentPreRunE has loaded configuration.
type app struct {
	cfg    *config.Config
	logger *log.DefaultLogger

	// flag values
	configPath  string
	verbose     bool
	backend     string
	jsonOut     bool
	labelPrefix string
}

// NewRootCmd builds the flowc command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "flowc",
		Short: "flowc - control flow lowering for a small C subset",
		Long: `flowc lowers structured C functions to flat basic blocks, analyzes their
control flow graphs and rebuilds nested block/loop/if constructs.

Commands:
  flatten     Print the flat basic blocks of a file
  cfg         Print the control flow graph of a function
  structure   Print the structured form of a file
  build       Compile every source file under a directory
  init        Create a configuration file interactively
  repl        Compile functions interactively

Use "flowc [command] --help" for more information about a command.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetVersionTemplate("flowc version {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file path (default: ~/.flowc and ./.flowc)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Verbose logging")
	pf.StringVarP(&a.backend, "backend", "b", "", "Output backend: flat or structured")
	pf.BoolVarP(&a.jsonOut, "json", "j", false, "Output as JSON")
	pf.StringVar(&a.labelPrefix, "label-prefix", "", "Prefix for block labels")

	root.AddCommand(
		newFlattenCmd(a),
		newCFGCmd(a),
		newStructureCmd(a),
		newBuildCmd(a),
		newInitCmd(a),
		newReplCmd(a),
	)
	return root
}

// Execute runs the command tree and prints any error to stderr.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), Render(err))
	}
	return err
}

func (a *app) setup(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromFile(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("verbose") {
		cfg.Verbose = a.verbose
	}
	if flags.Changed("backend") {
		cfg.Backend = config.BackendType(a.backend)
	}
	if flags.Changed("json") && a.jsonOut {
		cfg.Output = config.OutputJSON
	}
	if flags.Changed("label-prefix") {
		cfg.LabelPrefix = a.labelPrefix
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level := log.InfoLevel
	if cfg.Verbose {
		level = log.DebugLevel
	}
	a.logger = log.New(log.LoggerConfig{
		Level:      level,
		JSONOutput: cfg.JSONLogs,
		Stderr:     cmd.ErrOrStderr(),
	})
	a.logger.Debug("configuration loaded", "backend", cfg.Backend, "label_prefix", cfg.LabelPrefix)
	return nil
}

// compiler builds a pipeline compiler for backend from the configuration.
// An empty backend uses the configured one.
func (a *app) compiler(backend config.BackendType, opts ...func(*pipeline.Options)) (*pipeline.Compiler, error) {
	if backend == "" {
		backend = a.cfg.Backend
	}
	b, err := pipeline.ParseBackend(string(backend))
	if err != nil {
		return nil, err
	}
	o := pipeline.Options{
		Backend:     b,
		LabelPrefix: a.cfg.LabelPrefix,
		Frontend:    frontend.Options{ExplicitReturns: a.cfg.ExplicitReturns},
		Logger:      a.logger,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return pipeline.New(o), nil
}

func (a *app) jsonOutput() bool {
	return a.cfg.Output == config.OutputJSON
}

// sourceError keeps the source text of a failed compilation so the error
// can be rendered with the offending line.
type sourceError struct {
	err error
	src []byte
}

func (e *sourceError) Error() string { return e.err.Error() }
func (e *sourceError) Unwrap() error { return e.err }

// Render formats err for the terminal. Compile errors carrying their
// source are shown with the offending line and a caret.
func Render(err error) string {
	var se *sourceError
	if errors.As(err, &se) {
		return diag.Format(se.err, se.src)
	}
	return diag.Format(err, nil)
}

// readSource reads a single source file argument.
func readSource(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, expected a file: %s", path)
	}
	return os.ReadFile(path)
}

// compileFile reads and compiles path with c.
func compileFile(cmd *cobra.Command, c *pipeline.Compiler, path string) (*pipeline.Result, error) {
	src, err := readSource(path)
	if err != nil {
		return nil, err
	}
	res, err := c.CompileSource(cmd.Context(), path, src)
	if err != nil {
		return nil, &sourceError{err: err, src: src}
	}
	return res, nil
}

// lookupFunction finds name in res, suggesting close matches when absent.
func lookupFunction(res *pipeline.Result, name string) (*pipeline.Function, error) {
	if fn, ok := res.Function(name); ok {
		return fn, nil
	}
	names := make([]string, 0, len(res.Functions))
	for _, fn := range res.Functions {
		names = append(names, fn.Name)
	}
	if s := suggest(name, names); s != "" {
		return nil, fmt.Errorf("function %q not found in %s\nDid you mean: %s?", name, res.File, s)
	}
	return nil, fmt.Errorf("function %q not found in %s", name, res.File)
}
