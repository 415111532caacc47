// Package diag provides positioned compiler diagnostics and renders them
// with the offending source line and a caret under the reported column.
package diag

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/l3aro/go-flowc/pkg/ir"
)

// Error is a compiler error tied to a source position.
type Error struct {
	File string // Source file, empty if unknown
	Pos  ir.Pos // Position, zero if unknown
	Msg  string // Human readable message
	Hint string // Optional suggestion shown below the message
	Err  error  // Underlying cause, usually a package sentinel
}

// Errorf creates an Error wrapping cause with a formatted message.
func Errorf(pos ir.Pos, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Pos: pos,
		Msg: fmt.Sprintf(format, args...),
		Err: cause,
	}
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.File != "" {
		sb.WriteString(e.File)
		sb.WriteString(":")
	}
	if e.Pos.IsValid() {
		sb.WriteString(strconv.Itoa(e.Pos.Line))
		sb.WriteString(":")
		sb.WriteString(strconv.Itoa(e.Pos.Column))
		sb.WriteString(":")
	}
	if sb.Len() > 0 {
		sb.WriteString(" ")
	}
	sb.WriteString(e.Msg)
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithHint sets the hint and returns e.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithFile records file on the first diagnostic in err's chain if it has
// none. Call it before wrapping: wrapper messages are fixed at creation.
func WithFile(err error, file string) error {
	var d *Error
	if errors.As(err, &d) && d.File == "" {
		d.File = file
	}
	return err
}

// Format renders err for display. Diagnostics get a header, the source
// line with a caret and the hint; other errors render as their message.
func Format(err error, source []byte) string {
	var d *Error
	if !errors.As(err, &d) {
		return "error: " + err.Error()
	}

	file := d.File
	if file == "" {
		file = "<source>"
	}

	var lines []string
	if d.Pos.IsValid() {
		lines = append(lines, fmt.Sprintf("error: %s:%d:%d", file, d.Pos.Line, d.Pos.Column))
	} else {
		lines = append(lines, "error: "+file)
	}

	if src, ok := sourceLine(source, d.Pos.Line); ok {
		prefix := strconv.Itoa(d.Pos.Line) + " | "
		lines = append(lines, "")
		lines = append(lines, prefix+src)
		col := d.Pos.Column
		if col < 1 {
			col = 1
		}
		lines = append(lines, strings.Repeat(" ", len(prefix)+col-1)+"^")
	}

	lines = append(lines, "")
	lines = append(lines, message(err, d))

	if d.Hint != "" {
		lines = append(lines, "")
		lines = append(lines, "Hint: "+d.Hint)
	}

	return strings.Join(lines, "\n")
}

// message returns the outer error text with the diagnostic's own location
// prefix removed, keeping any context added by wrappers.
func message(err error, d *Error) string {
	full := err.Error()
	located := d.Error()
	if idx := strings.Index(full, located); idx >= 0 {
		return full[:idx] + d.Msg + full[idx+len(located):]
	}
	return d.Msg
}

func sourceLine(source []byte, line int) (string, bool) {
	if line < 1 || len(source) == 0 {
		return "", false
	}
	lines := strings.Split(string(source), "\n")
	if line > len(lines) {
		return "", false
	}
	return strings.TrimRight(lines[line-1], "\r"), true
}
