// Package wasmrt is the sandboxed Wasm execution layer: it instantiates
// a handler's compiled module with scoped filesystem, environment, and
// stdio capabilities, runs a named entrypoint, and collects stdout
// (spec.md §4.C), memoizing compiled artifacts by content hash (§4.H).
package wasmrt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Engine owns the shared wazero runtime, the WASI and host-function
// imports registered on it, and the compilation cache. One Engine is
// constructed at startup and lives for the process; it is safe for
// concurrent use by many requests.
type Engine struct {
	runtime wazero.Runtime
	disk    wazero.CompilationCache
	logger  *slog.Logger

	outbound OutboundFetcher

	mu       sync.RWMutex
	compiled map[string]wazero.CompiledModule // keyed by modref.Bytes.Hash
}

// NewEngine constructs the shared runtime, registers WASI and the
// outbound-HTTP/logging host module, and wires an optional on-disk
// compilation cache directory (empty string disables it; its absence
// has no semantic effect per spec.md §4.H).
func NewEngine(ctx context.Context, cacheDir string, outbound OutboundFetcher, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = discardLogger()
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)

	var disk wazero.CompilationCache
	if cacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			logger.Warn("failed to create wasm compilation cache, continuing without it", "dir", cacheDir, "error", err)
		} else {
			disk = c
			rtConfig = rtConfig.WithCompilationCache(disk)
		}
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		cleanup(ctx, rt, disk)
		return nil, fmt.Errorf("instantiate wasi: %w", err)
	}

	e := &Engine{
		runtime:  rt,
		disk:     disk,
		logger:   logger,
		outbound: outbound,
		compiled: make(map[string]wazero.CompiledModule),
	}

	if err := e.registerHostModule(ctx); err != nil {
		cleanup(ctx, rt, disk)
		return nil, fmt.Errorf("register host functions: %w", err)
	}

	return e, nil
}

// Close releases the runtime and on-disk cache. Safe to call once, at
// process shutdown.
func (e *Engine) Close(ctx context.Context) error {
	return cleanup(ctx, e.runtime, e.disk)
}

func cleanup(ctx context.Context, rt wazero.Runtime, disk wazero.CompilationCache) error {
	var firstErr error
	if disk != nil {
		if err := disk.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if rt != nil {
		if err := rt.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Precompile compiles raw bytes and memoizes the result by content hash,
// so repeated handlers sharing a module (or sub-route discovery
// revisiting the parent module) compile the engine exactly once. It is
// the Precompile callback spec.md §4.B's config loader requires, and the
// component H memoization point.
func (e *Engine) Precompile(ctx context.Context, hash string, raw []byte) (wazero.CompiledModule, error) {
	e.mu.RLock()
	if cm, ok := e.compiled[hash]; ok {
		e.mu.RUnlock()
		return cm, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if cm, ok := e.compiled[hash]; ok {
		return cm, nil
	}

	cm, err := e.runtime.CompileModule(ctx, raw)
	if err != nil {
		return nil, &RuntimeError{Operation: "compile", Err: err}
	}
	if err := validateExports(cm); err != nil {
		ccx := context.Background()
		cm.Close(ccx)
		return nil, err
	}

	e.compiled[hash] = cm
	return cm, nil
}

// validateExports confirms the module exports a "memory". No function
// export is checked here; per-route entrypoint existence is validated
// lazily at call time, since a module may export many named entrypoints
// beyond "_start".
func validateExports(cm wazero.CompiledModule) error {
	if _, ok := cm.ExportedMemories()["memory"]; !ok {
		return &ABIError{Reason: "module does not export linear memory"}
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
