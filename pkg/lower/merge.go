// Package lower turns statement trees into flat lists of basic blocks.
//
// MergeBlocks groups straight-line statements into provisional blocks and
// Flatten resolves If, While, Break and Continue into labeled blocks that
// each end in an explicit Goto, CondBranch or Return.
package lower

import "github.com/l3aro/go-flowc/pkg/ir"

// MergeBlocks replaces every maximal run of Simple statements with one
// Block under a fresh label from labels. Other statements keep their
// position; the statement lists nested in If and While are merged too.
//
// A run also ends after a statement that returns, so no Return ever lands
// in the middle of a block.
func MergeBlocks(stmts []ir.Stmt, labels *ir.LabelGenerator) []ir.Stmt {
	if len(stmts) == 0 {
		return nil
	}

	result := make([]ir.Stmt, 0, len(stmts))
	var pending []ir.Instruction

	flush := func() {
		if len(pending) == 0 {
			return
		}
		result = append(result, ir.Block{Label: labels.Next(), Instructions: pending})
		pending = nil
	}

	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case ir.Simple:
			pending = append(pending, s.Instructions...)
			if endsInReturn(s.Instructions) {
				flush()
			}
		case ir.If:
			flush()
			result = append(result, ir.If{
				Cond: s.Cond,
				Then: MergeBlocks(s.Then, labels),
				Else: MergeBlocks(s.Else, labels),
				Pos:  s.Pos,
			})
		case ir.While:
			flush()
			result = append(result, ir.While{
				Cond: s.Cond,
				Body: MergeBlocks(s.Body, labels),
				Pos:  s.Pos,
			})
		default:
			flush()
			result = append(result, stmt)
		}
	}
	flush()

	return result
}

// MergeFunction returns fn with its body merged into blocks.
func MergeFunction(fn ir.Function, labels *ir.LabelGenerator) ir.Function {
	fn.Body = MergeBlocks(fn.Body, labels)
	return fn
}

func endsInReturn(instrs []ir.Instruction) bool {
	if len(instrs) == 0 {
		return false
	}
	_, ok := instrs[len(instrs)-1].(ir.Return)
	return ok
}
