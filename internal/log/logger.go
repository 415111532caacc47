// Package log is the leveled key/value logger used by the compiler and the
// CLI. Output goes to stderr so stdout only carries compiler output.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Level represents log severity levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel

	silent // above every level
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

// tag is the fixed-width level marker of text output.
func (l Level) tag() string {
	switch l {
	case DebugLevel:
		return "DBG"
	case InfoLevel:
		return "INF"
	case WarnLevel:
		return "WRN"
	case ErrorLevel:
		return "ERR"
	default:
		return "???"
	}
}

// Logger logs messages followed by alternating key/value pairs.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	// With returns a logger that appends kv to every message.
	With(kv ...interface{}) Logger
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level      Level
	JSONOutput bool
	Stderr     io.Writer
}

// sink is the destination shared by a logger and everything derived from
// it with With.
type sink struct {
	mu     sync.Mutex
	w      io.Writer
	level  Level
	json   bool
	colors bool
	now    func() time.Time
}

// DefaultLogger writes text or JSON lines to its sink.
type DefaultLogger struct {
	sink   *sink
	fields []interface{}
}

var (
	defaultLogger *DefaultLogger
	once          sync.Once
)

// New creates a new logger with the given configuration
func New(cfg LoggerConfig) *DefaultLogger {
	w := cfg.Stderr
	if w == nil {
		w = os.Stderr
	}
	return &DefaultLogger{sink: &sink{
		w:      w,
		level:  cfg.Level,
		json:   cfg.JSONOutput,
		colors: !cfg.JSONOutput && isTerminal(w),
		now:    time.Now,
	}}
}

// Default returns the process-wide logger, writing info and above to stderr.
func Default() *DefaultLogger {
	once.Do(func() {
		defaultLogger = New(LoggerConfig{Level: InfoLevel})
	})
	return defaultLogger
}

// Discard returns a logger that drops every message.
func Discard() *DefaultLogger {
	return New(LoggerConfig{Level: silent, Stderr: io.Discard})
}

// isTerminal reports whether w is a terminal that accepts colors.
func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsTTY checks if the standard error is a terminal
func IsTTY() bool {
	return isTerminal(os.Stderr)
}

// With returns a logger sharing l's output that adds kv to every message.
func (l *DefaultLogger) With(kv ...interface{}) Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(kv))
	fields = append(fields, l.fields...)
	fields = append(fields, kv...)
	return &DefaultLogger{sink: l.sink, fields: fields}
}

// SetLevel sets the minimum log level
func (l *DefaultLogger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

func (l *DefaultLogger) Debug(msg string, kv ...interface{}) { l.log(DebugLevel, msg, kv) }
func (l *DefaultLogger) Info(msg string, kv ...interface{})  { l.log(InfoLevel, msg, kv) }
func (l *DefaultLogger) Warn(msg string, kv ...interface{})  { l.log(WarnLevel, msg, kv) }
func (l *DefaultLogger) Error(msg string, kv ...interface{}) { l.log(ErrorLevel, msg, kv) }

func (l *DefaultLogger) log(level Level, msg string, kv []interface{}) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.level {
		return
	}

	fields := pairs(append(append([]interface{}{}, l.fields...), kv...))
	ts := s.now()

	if s.json {
		entry := make(map[string]interface{}, len(fields)+3)
		for _, p := range fields {
			entry[p.key] = jsonValue(p.value)
		}
		entry["time"] = ts.Format(time.RFC3339)
		entry["level"] = level.String()
		entry["msg"] = msg
		data, err := json.Marshal(entry)
		if err != nil {
			data, _ = json.Marshal(map[string]string{"level": level.String(), "msg": msg, "log_error": err.Error()})
		}
		fmt.Fprintln(s.w, string(data))
		return
	}

	var sb strings.Builder
	sb.WriteString(ts.Format("15:04:05"))
	sb.WriteByte(' ')
	if s.colors {
		sb.WriteString(color(level) + level.tag() + "\033[0m")
	} else {
		sb.WriteString(level.tag())
	}
	sb.WriteByte(' ')
	sb.WriteString(msg)
	for _, p := range fields {
		fmt.Fprintf(&sb, " %s=%v", p.key, p.value)
	}
	fmt.Fprintln(s.w, sb.String())
}

type pair struct {
	key   string
	value interface{}
}

// pairs groups kv into key/value pairs. A trailing key without a value is
// kept with the value "(missing)"; non-string keys are printed with %v.
func pairs(kv []interface{}) []pair {
	out := make([]pair, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 == len(kv) {
			out = append(out, pair{key, "(missing)"})
			break
		}
		out = append(out, pair{key, kv[i+1]})
	}
	return out
}

// jsonValue keeps errors readable in JSON output.
func jsonValue(v interface{}) interface{} {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return v
}

func color(level Level) string {
	switch level {
	case DebugLevel:
		return "\033[36m"
	case InfoLevel:
		return "\033[32m"
	case WarnLevel:
		return "\033[33m"
	case ErrorLevel:
		return "\033[31m"
	default:
		return ""
	}
}

var _ Logger = (*DefaultLogger)(nil)
