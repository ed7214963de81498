package logging

import "github.com/google/uuid"

// Scope is one open indentation level of an Adapter.
type Scope struct {
	adapter *Adapter
	id      string
	closed  bool
}

// Enter opens a scope with a fresh id and indents every following line by one
// level until the scope is closed.
func (a *Adapter) Enter() *Scope {
	id := uuid.NewString()
	a.Push(id).Add(1)
	return &Scope{adapter: a, id: id}
}

func (s *Scope) ID() string {
	return s.id
}

// Close returns the adapter to the indentation it had before Enter. Closing
// twice is a no-op.
func (s *Scope) Close() {
	if s.closed {
		return
	}
	s.closed = true
	// the warning must be logged one frame below Close's caller, like Pop
	if !s.adapter.unwind(s.id) {
		s.adapter.log(Warn, notOpen(s.id), nil)
	}
}

// Indent wraps fn so that every call runs inside its own scope of a. The
// scope is closed when fn returns, fails or panics.
func Indent(a *Adapter, fn func() error) func() error {
	return func() error {
		scope := a.Enter()
		defer scope.Close()
		return fn()
	}
}

// IndentValue is Indent for functions returning a value.
func IndentValue[T any](a *Adapter, fn func() (T, error)) func() (T, error) {
	return func() (T, error) {
		scope := a.Enter()
		defer scope.Close()
		return fn()
	}
}
