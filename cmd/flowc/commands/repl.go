package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-flowc/internal/config"
	"github.com/l3aro/go-flowc/pkg/frontend"
)

const (
	historyFile = "history"
	promptMain  = "flowc> "
	promptCont  = "  ...> "
	replFile    = "<repl>"
)

const replHelp = `Enter C declarations; input continues until braces balance.
Globals and functions accumulate across entries.
  :flat        show flat basic blocks
  :structured  show the structured form
  :reset       forget earlier entries
  :quit        exit`

// lineReader is the part of the line editor the loop needs.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

func newReplCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Compile functions interactively",
		Long:  "Reads C functions from the terminal and prints their compiled form.\n\n" + replHelp,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			histPath := filepath.Join(filepath.Dir(config.GlobalConfigPath()), historyFile)

			ln := liner.NewLiner()
			defer ln.Close()
			ln.SetCtrlCAborts(true)

			if f, err := os.Open(histPath); err == nil {
				_, _ = ln.ReadHistory(f)
				_ = f.Close()
			}
			defer func() {
				if err := os.MkdirAll(filepath.Dir(histPath), 0755); err != nil {
					return
				}
				if f, err := os.Create(histPath); err == nil {
					_, _ = ln.WriteHistory(f)
					_ = f.Close()
				}
			}()

			r := &repl{app: a, in: ln, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr(), backend: a.cfg.Backend}
			fmt.Fprintln(r.out, "flowc "+Version+" - type :help for commands")
			return r.run(cmd.Context())
		},
	}
}

type repl struct {
	*app
	in      lineReader
	out     io.Writer
	errOut  io.Writer
	backend config.BackendType
	session strings.Builder // accepted entries
	defined int             // functions in session
}

func (r *repl) run(ctx context.Context) error {
	for {
		entry, ok := r.read()
		if !ok {
			fmt.Fprintln(r.out)
			return nil
		}

		trimmed := strings.TrimSpace(entry)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, ":") {
			if quit := r.command(trimmed); quit {
				return nil
			}
			continue
		}

		r.eval(ctx, entry)
		r.in.AppendHistory(strings.ReplaceAll(entry, "\n", " "))
	}
}

// read collects lines until the braces of the entry balance. ok is false
// at end of input.
func (r *repl) read() (entry string, ok bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := r.in.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			// Ctrl-C drops the pending entry
			return "", true
		}
		if err != nil {
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		if frontend.BraceDepth(b.String()) <= 0 {
			return b.String(), true
		}
	}
}

func (r *repl) command(cmd string) (quit bool) {
	switch strings.ToLower(cmd) {
	case ":quit", ":q", ":exit":
		return true
	case ":flat":
		r.backend = config.BackendFlat
		fmt.Fprintln(r.out, "backend: flat")
	case ":structured":
		r.backend = config.BackendStructured
		fmt.Fprintln(r.out, "backend: structured")
	case ":reset":
		r.session.Reset()
		r.defined = 0
		fmt.Fprintln(r.out, "session cleared")
	case ":help":
		fmt.Fprintln(r.out, replHelp)
	default:
		fmt.Fprintf(r.out, "unknown command %s. Type :help for commands.\n", cmd)
	}
	return false
}

// eval compiles the session plus entry and prints the functions the entry
// defines. Failing entries are not added to the session.
func (r *repl) eval(ctx context.Context, entry string) {
	c, err := r.compiler(r.backend)
	if err != nil {
		fmt.Fprintln(r.errOut, Render(err))
		return
	}

	src := r.session.String() + entry + "\n"
	res, err := c.CompileSource(ctx, replFile, []byte(src))
	if err != nil {
		fmt.Fprintln(r.errOut, Render(&sourceError{err: err, src: []byte(src)}))
		return
	}

	r.session.WriteString(entry)
	r.session.WriteString("\n")

	fresh := res.Functions[r.defined:]
	r.defined = len(res.Functions)
	if len(fresh) == 0 {
		fmt.Fprintln(r.out, "ok")
		return
	}
	for i := range fresh {
		fn := &fresh[i]
		fmt.Fprintf(r.out, "func %s(%s):\n", fn.Name, strings.Join(fn.Params, ", "))
		fmt.Fprint(r.out, indent(res.Listing(fn)))
	}
}

func indent(s string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(s, "\n") {
		if line == "" || line == "\n" {
			b.WriteString(line)
			continue
		}
		b.WriteString("  ")
		b.WriteString(line)
	}
	return b.String()
}

var _ lineReader = (*liner.State)(nil)
