package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-flowc/internal/config"
)

func newInitCmd(a *app) *cobra.Command {
	var (
		defaults bool
		force    bool
		global   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a flowc configuration file interactively",
		Long: `Guides you through setting up flowc configuration step by step and
writes it to ./.flowc/config.yaml (or ~/.flowc/config.yaml).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if defaults {
				path := config.ProjectConfigPath(".")
				if global {
					path = config.GlobalConfigPath()
				}
				if _, err := os.Stat(path); err == nil && !force {
					return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
				}
				return saveConfig(out, config.DefaultConfig(), path)
			}
			return runInit(out, a.cfg)
		},
	}
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Write the default configuration without prompting")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file (with --defaults)")
	cmd.Flags().BoolVar(&global, "global", false, "Write the global file (with --defaults)")
	return cmd
}

func runInit(out io.Writer, current *config.Config) error {
	cfg := *current
	cacheSize := strconv.Itoa(cfg.CacheSize)

	// === SECTION 1: Compiler ===
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[config.BackendType]().
				Title("Backend").
				Description("Output form for structure and build").
				Options(
					huh.NewOption("Structured (block / loop / if)", config.BackendStructured),
					huh.NewOption("Flat (labeled blocks with jumps)", config.BackendFlat),
				).
				Value(&cfg.Backend),
			huh.NewInput().
				Title("Label prefix").
				Description("Blocks are labeled <prefix>0, <prefix>1, ...").
				Placeholder("L").
				Value(&cfg.LabelPrefix).
				Validate(func(s string) error {
					candidate := cfg
					candidate.LabelPrefix = s
					return candidate.Validate()
				}),
			huh.NewConfirm().
				Title("Explicit returns").
				Description("Append \"return 0\" to functions that fall off the end?").
				Affirmative("Yes").
				Negative("No, report an error").
				Value(&cfg.ExplicitReturns),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Output and cache ===
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[config.OutputFormat]().
				Title("Output format").
				Options(
					huh.NewOption("Text", config.OutputText),
					huh.NewOption("JSON", config.OutputJSON),
				).
				Value(&cfg.Output),
			huh.NewInput().
				Title("Result cache size").
				Description("Number of compiled files to keep; 0 disables the cache").
				Value(&cacheSize).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 0 {
						return fmt.Errorf("enter a non-negative number")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.CacheSize, _ = strconv.Atoi(cacheSize)

	// === SECTION 3: Config Location ===
	var location string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Project (./.flowc/config.yaml)", "project"),
					huh.NewOption("Global (~/.flowc/config.yaml)", "global"),
				).
				Value(&location),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	path := config.ProjectConfigPath(".")
	if location == "global" {
		path = config.GlobalConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", path)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	return saveConfig(out, &cfg, path)
}

func saveConfig(out io.Writer, cfg *config.Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Fprintln(out, "=== Configuration Preview ===")
	fmt.Fprintf(out, "Config path: %s\n", path)
	fmt.Fprintf(out, "Backend: %s\n", cfg.Backend)
	fmt.Fprintf(out, "Label prefix: %s\n", cfg.LabelPrefix)
	fmt.Fprintf(out, "Explicit returns: %t\n", cfg.ExplicitReturns)
	fmt.Fprintf(out, "Output: %s\n", cfg.Output)
	fmt.Fprintf(out, "Cache: %s (%d entries)\n", cfg.CacheDir, cfg.CacheSize)
	fmt.Fprintln(out, "=============================")

	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(out, "Configuration saved to: %s\n", path)
	return nil
}
