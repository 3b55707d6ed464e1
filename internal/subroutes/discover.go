// Package subroutes implements the startup-time "_routes" discovery
// described in spec.md §4.E: each handler whose module exports a
// function named "_routes" is invoked once, and its stdout is parsed
// into additional routing entries nested under the parent route.
package subroutes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deislabs/wagi-go/internal/handler"
	"github.com/deislabs/wagi-go/internal/wasmrt"
)

const routesEntrypoint = "_routes"

// DiscoveryError aborts startup on a malformed "_routes" output line.
type DiscoveryError struct {
	Route string
	Line  string
	Err   error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("sub-route discovery for %q: %q: %v", e.Route, e.Line, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Discover runs _routes (if exported) for spec and returns the derived
// sub-route HandlerSpecs. Returns (nil, nil) if the module does not
// export "_routes".
func Discover(ctx context.Context, engine *wasmrt.Engine, spec *handler.Spec, logger *slog.Logger) ([]*handler.Spec, error) {
	cm, err := engine.Precompile(ctx, spec.ModuleBytes.Hash, spec.ModuleBytes.Raw)
	if err != nil {
		return nil, err
	}
	if _, ok := cm.ExportedFunctions()[routesEntrypoint]; !ok {
		return nil, nil
	}

	discoverySpec := spec.Derive(spec.Pattern, routesEntrypoint)
	result, err := wasmrt.Run(ctx, engine, discoverySpec, nil, nil, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("invoke _routes for %q: %w", spec.SourceRoute, err)
	}
	if !result.ExitOK {
		return nil, fmt.Errorf("_routes export for %q exited abnormally", spec.SourceRoute)
	}

	return parseRoutes(spec, string(result.Stdout))
}

func parseRoutes(parent *handler.Spec, output string) ([]*handler.Spec, error) {
	parentPrefix := parent.Pattern.Prefix

	var derived []*handler.Spec
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, &DiscoveryError{Route: parent.SourceRoute, Line: line, Err: fmt.Errorf("expected \"<sub-pattern> <entrypoint>\"")}
		}

		subPattern, entrypoint := fields[0], fields[1]
		if !strings.HasPrefix(subPattern, "/") {
			return nil, &DiscoveryError{Route: parent.SourceRoute, Line: line, Err: fmt.Errorf("sub-pattern must begin with /")}
		}

		fullRoute := parentPrefix + subPattern
		pattern := handler.ParseRoutePattern(fullRoute)
		derived = append(derived, parent.Derive(pattern, entrypoint))
	}

	return derived, nil
}
