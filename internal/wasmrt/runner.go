package wasmrt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/sys"

	"github.com/deislabs/wagi-go/internal/handler"
)

// Result is the outcome of one module invocation (spec.md §4.C).
type Result struct {
	ExitOK   bool
	ExitCode int
	Timeout  bool
	Stdout   []byte
	Stderr   []byte
}

var instanceCounter atomic.Uint64

// Run instantiates spec's compiled module with scoped filesystem, env,
// and stdio capabilities, runs the named entrypoint (default "_start"),
// and returns the captured output. Each call creates a fresh module
// instance with fresh linear memory and file-descriptor table; instances
// are never shared across calls.
func Run(ctx context.Context, e *Engine, spec *handler.Spec, args []string, stdin []byte, extraEnv map[string]string, logger *slog.Logger) (Result, error) {
	cm, err := e.Precompile(ctx, spec.ModuleBytes.Hash, spec.ModuleBytes.Raw)
	if err != nil {
		return Result{}, err
	}

	fsConfig := wazero.NewFSConfig()
	guestPaths := make([]string, 0, len(spec.Volumes))
	for guest := range spec.Volumes {
		guestPaths = append(guestPaths, guest)
	}
	sort.Strings(guestPaths)
	for _, guest := range guestPaths {
		fsConfig = fsConfig.WithDirMount(spec.Volumes[guest], guest)
	}

	env := make(map[string]string, len(spec.Environment)+len(extraEnv))
	for k, v := range spec.Environment {
		env[k] = v
	}
	for k, v := range extraEnv {
		env[k] = v
	}
	envKeys := make([]string, 0, len(env))
	for k := range env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)

	var stdout, stderr bytes.Buffer
	name := fmt.Sprintf("wagi-%d", instanceCounter.Add(1))

	entrypoint := spec.EntrypointOrDefault()

	modCfg := wazero.NewModuleConfig().
		WithName(name).
		WithStdin(bytes.NewReader(stdin)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithArgs(append([]string{entrypoint}, args...)...).
		WithFSConfig(fsConfig).
		WithSysWalltime().
		WithSysNanotime()

	if entrypoint != handler.DefaultEntrypoint {
		modCfg = modCfg.WithStartFunctions()
	}

	for _, k := range envKeys {
		modCfg = modCfg.WithEnv(k, env[k])
	}

	runCtx := withRequestCaps(ctx, &requestCaps{
		allowedHosts: spec.AllowedHosts,
		logger:       logger,
		handlerName:  spec.SourceRoute,
	})

	mod, err := e.runtime.InstantiateModule(runCtx, cm, modCfg)

	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = int(exitErr.ExitCode())
			res.ExitOK = res.ExitCode == 0
			return res, nil
		}
		if runCtx.Err() != nil {
			res.Timeout = true
			return res, nil
		}
		// Guest trap.
		res.ExitOK = false
		return res, nil
	}
	defer mod.Close(context.Background())

	if entrypoint != handler.DefaultEntrypoint {
		fn := mod.ExportedFunction(entrypoint)
		if fn == nil {
			return res, ErrMissingEntrypoint
		}
		if _, err := fn.Call(runCtx); err != nil {
			var exitErr *sys.ExitError
			if errors.As(err, &exitErr) {
				res.ExitCode = int(exitErr.ExitCode())
				res.ExitOK = res.ExitCode == 0
				res.Stdout = stdout.Bytes()
				res.Stderr = stderr.Bytes()
				return res, nil
			}
			if runCtx.Err() != nil {
				res.Timeout = true
				res.Stdout = stdout.Bytes()
				res.Stderr = stderr.Bytes()
				return res, nil
			}
			res.ExitOK = false
			res.Stdout = stdout.Bytes()
			res.Stderr = stderr.Bytes()
			return res, nil
		}
	}

	res.ExitOK = true
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()
	return res, nil
}
