package diag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/l3aro/go-flowc/pkg/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSample = errors.New("sample")

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"file and position", &Error{File: "a.c", Pos: ir.Pos{Line: 3, Column: 5}, Msg: "boom"}, "a.c:3:5: boom"},
		{"position only", &Error{Pos: ir.Pos{Line: 1, Column: 1}, Msg: "boom"}, "1:1: boom"},
		{"file only", &Error{File: "a.c", Msg: "boom"}, "a.c: boom"},
		{"bare", &Error{Msg: "boom"}, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorf_Unwrap(t *testing.T) {
	err := Errorf(ir.Pos{Line: 2, Column: 4}, errSample, "bad %s", "thing")
	wrapped := fmt.Errorf("function f: %w", err)

	assert.True(t, errors.Is(wrapped, errSample))

	var d *Error
	require.True(t, errors.As(wrapped, &d))
	assert.Equal(t, "bad thing", d.Msg)
}

func TestWithFile(t *testing.T) {
	err := Errorf(ir.Pos{Line: 2, Column: 4}, errSample, "bad")
	WithFile(err, "main.c")
	assert.Equal(t, "main.c:2:4: bad", err.Error())

	WithFile(err, "other.c")
	assert.Equal(t, "main.c", err.File, "existing file must be kept")

	plain := errors.New("plain")
	assert.Equal(t, plain, WithFile(plain, "main.c"))
}

func TestFormat(t *testing.T) {
	source := []byte("int f() {\n    break;\n}\n")
	err := Errorf(ir.Pos{Line: 2, Column: 5}, errSample, "break outside loop").
		WithHint("move the break inside a while loop")
	WithFile(err, "f.c")

	got := Format(fmt.Errorf("function f: %w", err), source)

	want := "error: f.c:2:5\n" +
		"\n" +
		"2 |     break;\n" +
		"        ^\n" +
		"\n" +
		"function f: break outside loop\n" +
		"\n" +
		"Hint: move the break inside a while loop"
	assert.Equal(t, want, got)
}

func TestFormat_NoPosition(t *testing.T) {
	err := &Error{Msg: "no body"}
	assert.Equal(t, "error: <source>\n\nno body", Format(err, nil))

	assert.Equal(t, "error: plain", Format(errors.New("plain"), nil))
}
