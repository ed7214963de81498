package logging

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// frames between the caller of an Adapter method and zap's Check
	adapterCallerSkip = 2
	maxReportedCauses = 32
)

type scopeFrame struct {
	id    string
	level int
}

// Adapter wraps a zap logger with per-logger indentation and message
// normalisation. It is not safe for concurrent use.
type Adapter struct {
	logger *zap.Logger
	name   string
	path   string
	spaces int

	level int
	stack []scopeFrame
}

// NewAdapter wraps logger. path is the directory EnsurePath creates and
// spaces the width of one indentation level.
func NewAdapter(logger *zap.Logger, name, path string, spaces int) *Adapter {
	return &Adapter{
		logger: logger.WithOptions(zap.AddCallerSkip(adapterCallerSkip)),
		name:   name,
		path:   path,
		spaces: spaces,
	}
}

func (a *Adapter) Name() string {
	return a.name
}

// Path is the per-logger directory below the session root.
func (a *Adapter) Path() string {
	return a.path
}

// EnsurePath creates the logger directory and its parents.
func (a *Adapter) EnsurePath() error {
	if a.path == "" {
		return ErrNoLogsDir
	}
	if err := os.MkdirAll(a.path, 0o755); err != nil {
		return fmt.Errorf("create logger directory: %w", err)
	}
	return nil
}

// Zap returns the underlying logger, without indentation.
func (a *Adapter) Zap() *zap.Logger {
	return a.logger.WithOptions(zap.AddCallerSkip(-adapterCallerSkip))
}

func (a *Adapter) Sync() error {
	return a.logger.Sync()
}

// Process turns msg into the text handed to the sinks: errors become a
// report of their type, message, causes and the logging call stack; any
// other value is printed with fmt. Each line is indented by the open scopes.
func (a *Adapter) Process(msg any) string {
	return a.indent(render(msg))
}

// render never panics: nil errors behind an interface and failing Error
// methods fall back to fmt, which reports them inline.
func render(msg any) (text string) {
	err, ok := msg.(error)
	if !ok || isNil(err) {
		return fmt.Sprint(msg)
	}
	defer func() {
		if r := recover(); r != nil {
			text = fmt.Sprint(msg)
		}
	}()
	return errorReport(err)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func (a *Adapter) indent(text string) string {
	width := a.level * a.spaces
	if width <= 0 {
		return text
	}
	prefix := strings.Repeat(" ", width)
	return prefix + strings.ReplaceAll(text, "\n", "\n"+prefix)
}

func (a *Adapter) Debug(msg any, fields ...zap.Field) {
	a.log(Debug, msg, fields)
}

func (a *Adapter) Info(msg any, fields ...zap.Field) {
	a.log(Info, msg, fields)
}

func (a *Adapter) Warn(msg any, fields ...zap.Field) {
	a.log(Warn, msg, fields)
}

func (a *Adapter) Error(msg any, fields ...zap.Field) {
	a.log(Error, msg, fields)
}

func (a *Adapter) Critical(msg any, fields ...zap.Field) {
	a.log(Critical, msg, fields)
}

func (a *Adapter) Debugf(format string, args ...any) {
	a.log(Debug, fmt.Sprintf(format, args...), nil)
}

func (a *Adapter) Infof(format string, args ...any) {
	a.log(Info, fmt.Sprintf(format, args...), nil)
}

func (a *Adapter) Warnf(format string, args ...any) {
	a.log(Warn, fmt.Sprintf(format, args...), nil)
}

func (a *Adapter) Errorf(format string, args ...any) {
	a.log(Error, fmt.Sprintf(format, args...), nil)
}

func (a *Adapter) Criticalf(format string, args ...any) {
	a.log(Critical, fmt.Sprintf(format, args...), nil)
}

// Log writes msg at an arbitrary level.
func (a *Adapter) Log(level Level, msg any, fields ...zap.Field) {
	a.log(level, msg, fields)
}

func (a *Adapter) log(level Level, msg any, fields []zap.Field) {
	ce := a.logger.Check(level.zapLevel(), "")
	if ce == nil {
		return
	}
	ce.Message = a.Process(msg)
	ce.Write(fields...)
}

// Push records the current indentation under id. Pop(id) returns to it.
func (a *Adapter) Push(id string) *Adapter {
	a.stack = append(a.stack, scopeFrame{id: id, level: a.level})
	return a
}

// Pop restores the indentation recorded by Push(id), discarding any scope
// pushed after it. Popping an id that is not open only logs a warning.
func (a *Adapter) Pop(id string) *Adapter {
	if !a.unwind(id) {
		a.log(Warn, notOpen(id), nil)
	}
	return a
}

// unwind drops the frame of id and every frame above it.
func (a *Adapter) unwind(id string) bool {
	for i := len(a.stack) - 1; i >= 0; i-- {
		if a.stack[i].id == id {
			a.level = a.stack[i].level
			a.stack = a.stack[:i]
			return true
		}
	}
	return false
}

func notOpen(id string) string {
	return fmt.Sprintf("indentation scope %q is not open", id)
}

// Add increases the indentation by n levels.
func (a *Adapter) Add(n int) *Adapter {
	a.level += n
	return a
}

// Sub decreases the indentation by n levels, never below zero.
func (a *Adapter) Sub(n int) *Adapter {
	a.level = max(a.level-n, 0)
	return a
}

// IndentLevel is the current number of indentation levels.
func (a *Adapter) IndentLevel() int {
	return a.level
}

// Depth is the number of open scopes.
func (a *Adapter) Depth() int {
	return len(a.stack)
}

func errorReport(err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%T: %s\n", err, err.Error())
	if verbose := fmt.Sprintf("%+v", err); verbose != err.Error() {
		b.WriteString(verbose)
		b.WriteByte('\n')
	}
	for _, cause := range causes(err) {
		fmt.Fprintf(&b, "caused by %T: %s\n", cause, cause.Error())
	}
	// skip errorReport, render and Process
	b.WriteString(zap.StackSkip("", 3).String)

	lines := strings.Split(b.String(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// causes lists the errors wrapped by err, breadth first.
func causes(err error) []error {
	var out []error
	queue := []error{err}
	for len(queue) > 0 && len(out) < maxReportedCauses {
		cur := queue[0]
		queue = queue[1:]

		var next []error
		if members := multierr.Errors(cur); len(members) > 1 {
			next = members
		} else if joined, ok := cur.(interface{ Unwrap() []error }); ok {
			next = joined.Unwrap()
		} else if inner := errors.Unwrap(cur); inner != nil {
			next = []error{inner}
		}
		for _, e := range next {
			if !isNil(e) {
				out = append(out, e)
				queue = append(queue, e)
			}
		}
	}
	if len(out) > maxReportedCauses {
		out = out[:maxReportedCauses]
	}
	return out
}
