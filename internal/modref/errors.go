package modref

import "fmt"

// ResolveError reports a failure to resolve a module reference to bytes.
// It is fatal at startup per spec.md §7.
type ResolveError struct {
	Ref    Reference
	Reason string
	Err    error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %s: %s: %v", e.Ref, e.Reason, e.Err)
	}
	return fmt.Sprintf("resolve %s: %s", e.Ref, e.Reason)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// ErrWatUnsupported is returned for local ".wat" references. No
// WAT-to-Wasm conversion library appears anywhere in the dependency
// surface this project draws from, so textual modules are rejected with
// a clear diagnostic rather than silently mistreated as binary. See
// DESIGN.md.
var ErrWatUnsupported = fmt.Errorf("wat source files are not supported; precompile to binary wasm")
