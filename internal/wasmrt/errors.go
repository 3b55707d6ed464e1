package wasmrt

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout indicates a per-request wall-clock deadline interrupted
	// execution (spec.md §5, "Cancellation").
	ErrTimeout = errors.New("wasm execution timed out")

	// ErrMissingEntrypoint indicates the requested export is not present
	// on the compiled module.
	ErrMissingEntrypoint = errors.New("entrypoint not exported")
)

// ABIError reports a module that fails the engine's load-time shape
// checks (spec.md §4.A: "bytes pass an engine-side validity check").
type ABIError struct {
	Reason string
}

func (e *ABIError) Error() string {
	return fmt.Sprintf("wasm module invalid: %s", e.Reason)
}

// RuntimeError wraps an error the engine collaborator (wazero) returned
// while compiling or instantiating a module.
type RuntimeError struct {
	Operation string
	Err       error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("wasm runtime error during %s: %v", e.Operation, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
