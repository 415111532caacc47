// Package dfg computes data flow over flat basic blocks: reaching
// definitions of locals and the def-use chains they induce.
package dfg

// RefType represents the type of variable reference in data flow analysis.
type RefType string

const (
	RefTypeParameter  RefType = "parameter"  // Value on function entry
	RefTypeDefinition RefType = "definition" // store_local
	RefTypeUse        RefType = "use"        // load_local
)

// VarRef is one reference to a local. Index is the instruction position
// inside Block; parameters have Index -1 in the entry block.
type VarRef struct {
	Name    string  `json:"name"`     // Variable name
	RefType RefType `json:"ref_type"` // Type of reference
	Block   string  `json:"block"`    // Label of the containing block
	Index   int     `json:"index"`    // Instruction index within the block
}

// DataflowEdge represents a data flow edge between two variable references.
// It connects a definition to a use it may reach.
type DataflowEdge struct {
	DefRef  VarRef `json:"def_ref"`  // Definition or parameter
	UseRef  VarRef `json:"use_ref"`  // Use reference
	VarName string `json:"var_name"` // Name of the variable being tracked
}

// DFGInfo represents the complete Data Flow Graph for a function.
type DFGInfo struct {
	FunctionName  string              `json:"function_name"`  // Name of the function
	VarRefs       []VarRef            `json:"var_refs"`       // All references in block order
	DataflowEdges []DataflowEdge      `json:"dataflow_edges"` // Def-use chains
	Variables     map[string][]VarRef `json:"variables"`      // References grouped by name
	Uninitialized []VarRef            `json:"uninitialized"`  // Uses no definition reaches on some path
}
