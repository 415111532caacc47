// Package cfg analyzes flat basic-block lists as Control Flow Graphs (CFGs)
// and provides the report types used to present them.
package cfg

// BlockType represents the role of a block in the report.
type BlockType string

const (
	BlockTypeEntry      BlockType = "entry"       // Function entry point
	BlockTypeBranch     BlockType = "branch"      // Ends in a conditional branch
	BlockTypeLoopHeader BlockType = "loop_header" // Target of a back edge
	BlockTypeReturn     BlockType = "return"      // Ends in a return
	BlockTypePlain      BlockType = "plain"       // Ends in an unconditional jump
)

// EdgeType represents the type of a CFG edge.
type EdgeType string

const (
	EdgeTypeUnconditional EdgeType = "unconditional" // Goto
	EdgeTypeTrue          EdgeType = "true"          // True target of a conditional branch
	EdgeTypeFalse         EdgeType = "false"         // False target of a conditional branch
	EdgeTypeBackEdge      EdgeType = "back_edge"     // Edge to a block on the DFS stack
)

// CFGBlock represents a basic block in the report.
type CFGBlock struct {
	ID           string    `json:"id"`           // Block label
	Type         BlockType `json:"type"`         // Role of the block
	Statements   []string  `json:"statements"`   // Instructions in listing form
	Predecessors []string  `json:"predecessors"` // Labels of blocks that branch here
	Successors   []string  `json:"successors"`   // Labels this block branches to
	Reachable    bool      `json:"reachable"`    // Reachable from the entry block
}

// CFGEdge represents a directed edge between two CFG blocks.
type CFGEdge struct {
	SourceID string   `json:"source_id"` // Label of the source block
	TargetID string   `json:"target_id"` // Label of the target block
	EdgeType EdgeType `json:"edge_type"` // Type of edge
}

// CFGInfo represents the complete Control Flow Graph report for a function.
type CFGInfo struct {
	FunctionName         string              `json:"function_name"`         // Name of the function
	Blocks               map[string]CFGBlock `json:"blocks"`                // Map of block label to block
	BlockOrder           []string            `json:"block_order"`           // Labels in emission order
	Edges                []CFGEdge           `json:"edges"`                 // List of edges in the graph
	EntryBlockID         string              `json:"entry_block_id"`        // Label of the entry block
	ExitBlockIDs         []string            `json:"exit_block_ids"`        // Labels of returning blocks
	LoopHeaders          []string            `json:"loop_headers"`          // Labels of loop headers
	CyclomaticComplexity int                 `json:"cyclomatic_complexity"` // E - N + 2 over reachable blocks
}
