package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/l3aro/go-flowc/pkg/ir"
	"github.com/l3aro/go-flowc/pkg/pipeline"
	"github.com/l3aro/go-flowc/pkg/structure"
)

// GlobalOutput is a module-level variable in JSON output.
type GlobalOutput struct {
	Name string `json:"name"`
	Init int64  `json:"init"`
}

// FlatOutput is the JSON form of the flatten command.
type FlatOutput struct {
	File      string            `json:"file"`
	Globals   []GlobalOutput    `json:"globals"`
	Functions []ir.WireFunction `json:"functions"`
}

// StructuredFunction is one function in the JSON form of the structure
// command.
type StructuredFunction struct {
	Name   string     `json:"name"`
	Params []string   `json:"params"`
	Body   []NodeJSON `json:"body"`
}

// NodeJSON is a structured node tagged with its kind.
type NodeJSON struct {
	Kind         string     `json:"kind"`
	Label        string     `json:"label,omitempty"`
	Header       string     `json:"header,omitempty"`
	Target       string     `json:"target,omitempty"`
	Negate       bool       `json:"negate,omitempty"`
	Instructions []string   `json:"instructions,omitempty"`
	Cond         []string   `json:"cond,omitempty"`
	Body         []NodeJSON `json:"body,omitempty"`
	Then         []NodeJSON `json:"then,omitempty"`
	Else         []NodeJSON `json:"else,omitempty"`
}

func globalsOutput(globals []ir.Global) []GlobalOutput {
	out := make([]GlobalOutput, 0, len(globals))
	for _, g := range globals {
		out = append(out, GlobalOutput{Name: g.Name, Init: g.Init})
	}
	return out
}

func instructionStrings(instrs []ir.Instruction) []string {
	out := make([]string, 0, len(instrs))
	for _, instr := range instrs {
		out = append(out, instr.String())
	}
	return out
}

func nodesJSON(nodes []structure.Node) []NodeJSON {
	out := make([]NodeJSON, 0, len(nodes))
	for _, n := range nodes {
		switch n := n.(type) {
		case structure.Code:
			out = append(out, NodeJSON{Kind: "code", Label: n.Label, Instructions: instructionStrings(n.Instructions)})
		case structure.Block:
			out = append(out, NodeJSON{Kind: "block", Label: n.Label, Body: nodesJSON(n.Body)})
		case structure.Loop:
			out = append(out, NodeJSON{Kind: "loop", Label: n.Label, Header: n.Header, Body: nodesJSON(n.Body)})
		case structure.If:
			out = append(out, NodeJSON{Kind: "if", Label: n.Label, Cond: instructionStrings(n.Cond), Then: nodesJSON(n.Then), Else: nodesJSON(n.Else)})
		case structure.Br:
			out = append(out, NodeJSON{Kind: "br", Target: n.Target})
		case structure.BrIf:
			out = append(out, NodeJSON{Kind: "br_if", Target: n.Target, Negate: n.Negate})
		}
	}
	return out
}

func structuredOutput(fns []pipeline.Function) []StructuredFunction {
	out := make([]StructuredFunction, 0, len(fns))
	for _, fn := range fns {
		out = append(out, StructuredFunction{Name: fn.Name, Params: fn.Params, Body: nodesJSON(fn.Structured)})
	}
	return out
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// suggest returns the candidate closest to name: a case-insensitive match
// first, then the shortest candidate sharing a prefix or substring.
func suggest(name string, candidates []string) string {
	lower := strings.ToLower(name)
	best := ""
	for _, c := range candidates {
		lc := strings.ToLower(c)
		if lc == lower {
			return c
		}
		if strings.HasPrefix(lc, lower) || strings.HasPrefix(lower, lc) ||
			strings.Contains(lc, lower) || strings.Contains(lower, lc) {
			if best == "" || len(c) < len(best) {
				best = c
			}
		}
	}
	return best
}
