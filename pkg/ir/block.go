package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidBlock is returned when a block breaks the terminator invariant.
var ErrInvalidBlock = errors.New("invalid basic block")

// BasicBlock is a labeled straight-line instruction sequence whose last
// instruction, and only its last, is a control instruction.
type BasicBlock struct {
	Label        string
	Instructions []Instruction
}

// Terminator returns the block's final instruction if it is a control
// instruction.
func (b BasicBlock) Terminator() (Instruction, bool) {
	if len(b.Instructions) == 0 {
		return nil, false
	}
	last := b.Instructions[len(b.Instructions)-1]
	if !IsTerminator(last) {
		return nil, false
	}
	return last, true
}

// Body returns the instructions preceding the terminator. For an
// unterminated block it returns every instruction.
func (b BasicBlock) Body() []Instruction {
	if _, ok := b.Terminator(); ok {
		return b.Instructions[:len(b.Instructions)-1]
	}
	return b.Instructions
}

// EndsInReturn reports whether the block's terminator is a Return.
func (b BasicBlock) EndsInReturn() bool {
	term, ok := b.Terminator()
	if !ok {
		return false
	}
	_, isReturn := term.(Return)
	return isReturn
}

// ValidateBlock checks that the block ends in exactly one control
// instruction and holds none before it.
func ValidateBlock(b BasicBlock) error {
	if b.Label == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidBlock)
	}
	if _, ok := b.Terminator(); !ok {
		return fmt.Errorf("%w: block %s has no terminator", ErrInvalidBlock, b.Label)
	}
	for i, instr := range b.Body() {
		if IsTerminator(instr) {
			return fmt.Errorf("%w: block %s has %q at position %d before its end", ErrInvalidBlock, b.Label, instr, i)
		}
	}
	return nil
}

// ValidateBlocks validates every block, label uniqueness and that every
// branch target names a block in the list.
func ValidateBlocks(blocks []BasicBlock) error {
	labels := make(map[string]struct{}, len(blocks))
	for _, b := range blocks {
		if err := ValidateBlock(b); err != nil {
			return err
		}
		if _, dup := labels[b.Label]; dup {
			return fmt.Errorf("%w: duplicate label %s", ErrInvalidBlock, b.Label)
		}
		labels[b.Label] = struct{}{}
	}
	for _, b := range blocks {
		term, _ := b.Terminator()
		for _, target := range Targets(term) {
			if _, ok := labels[target]; !ok {
				return fmt.Errorf("%w: block %s branches to unknown label %s", ErrInvalidBlock, b.Label, target)
			}
		}
	}
	return nil
}

// FormatBlocks renders blocks as a flat listing, one label line per block
// followed by its indented instructions.
func FormatBlocks(blocks []BasicBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		sb.WriteString(b.Label)
		sb.WriteString(":\n")
		for _, instr := range b.Instructions {
			sb.WriteString("  ")
			sb.WriteString(instr.String())
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
