// Package config loads a declarative routing manifest (file-based or
// bindle-derived) into a validated sequence of handler.Spec, per
// spec.md §4.B.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deislabs/wagi-go/internal/handler"
	"github.com/deislabs/wagi-go/internal/modref"
	"github.com/deislabs/wagi-go/internal/safefile"
)

// MaxManifestSize bounds the size of a module manifest file (4MB).
const MaxManifestSize = 4 * 1024 * 1024

// entry is one module-manifest record. Unknown fields (including the
// reserved "repository" name) are ignored by yaml.Unmarshal's default
// behavior.
type entry struct {
	Route        string            `yaml:"route"`
	Module       string            `yaml:"module"`
	Entrypoint   string            `yaml:"entrypoint"`
	Volumes      map[string]string `yaml:"volumes"`
	Environment  map[string]string `yaml:"environment"`
	AllowedHosts []string          `yaml:"allowed_hosts"`
}

type manifest struct {
	Entries []entry `yaml:"entries"`
}

// Precompile is called once per manifest entry with its module's bytes, so
// the engine collaborator can reject invalid modules at startup per
// spec.md §4.B's last validation rule. Implementations should memoize by
// content hash; Load does not do so itself.
type Precompile func(ctx context.Context, bytes modref.Bytes) error

// Load reads and validates a module manifest file, returning an
// unordered sequence of handler.Spec (ordering is the routing table's
// job, not the loader's).
func Load(ctx context.Context, path string, resolver *modref.Resolver, precompile Precompile) ([]*handler.Spec, error) {
	f, info, err := safefile.OpenRegular(path)
	if err != nil {
		return nil, &ConfigError{Reason: "open manifest", Err: err}
	}
	defer f.Close()

	if info.Size() > MaxManifestSize {
		return nil, &ConfigError{Reason: "manifest file too large"}
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxManifestSize+1))
	if err != nil {
		return nil, &ConfigError{Reason: "read manifest", Err: err}
	}
	if len(data) > MaxManifestSize {
		return nil, &ConfigError{Reason: "manifest file too large"}
	}

	return LoadBytes(ctx, data, resolver, precompile)
}

// LoadBytes parses and validates a module manifest from raw YAML bytes.
func LoadBytes(ctx context.Context, data []byte, resolver *modref.Resolver, precompile Precompile) ([]*handler.Spec, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ConfigError{Reason: "parse YAML", Err: err}
	}
	if len(m.Entries) == 0 {
		return nil, &ConfigError{Reason: "manifest has no entries"}
	}

	seenRoutes := make(map[string]struct{}, len(m.Entries))
	specs := make([]*handler.Spec, 0, len(m.Entries))

	for _, e := range m.Entries {
		if e.Route == "" || !strings.HasPrefix(e.Route, "/") {
			return nil, &ConfigError{Route: e.Route, Reason: "route must be non-empty and begin with /"}
		}
		pattern := handler.ParseRoutePattern(e.Route)
		key := pattern.String()
		if _, dup := seenRoutes[key]; dup {
			return nil, &ConfigError{Route: e.Route, Reason: "duplicate route"}
		}
		seenRoutes[key] = struct{}{}

		for guestPath, hostPath := range e.Volumes {
			info, err := os.Stat(hostPath)
			if err != nil || !info.IsDir() {
				return nil, &ConfigError{Route: e.Route, Reason: fmt.Sprintf("volume host path %q does not exist or is not a directory", hostPath)}
			}
			if guestPath == "" {
				return nil, &ConfigError{Route: e.Route, Reason: "volume guest path must be non-empty"}
			}
		}

		ref, err := ParseModuleURL(e.Module)
		if err != nil {
			return nil, &ConfigError{Route: e.Route, Reason: "invalid module reference", Err: err}
		}

		bytes, err := resolver.Resolve(ctx, ref)
		if err != nil {
			return nil, &ConfigError{Route: e.Route, Reason: "module resolution failed", Err: err}
		}

		if precompile != nil {
			if err := precompile(ctx, bytes); err != nil {
				return nil, &ConfigError{Route: e.Route, Reason: "module failed to precompile", Err: err}
			}
		}

		allowed := make(map[string]struct{}, len(e.AllowedHosts))
		for _, origin := range e.AllowedHosts {
			allowed[origin] = struct{}{}
		}

		specs = append(specs, &handler.Spec{
			ModuleBytes:  bytes,
			Entrypoint:   e.Entrypoint,
			Pattern:      pattern,
			Volumes:      e.Volumes,
			Environment:  e.Environment,
			AllowedHosts: allowed,
			SourceRoute:  e.Route,
		})
	}

	return specs, nil
}

// ParseModuleURL parses a manifest "module" field into a modref.Reference.
// Recognized schemes: "file://", "oci:", "bindle:".
func ParseModuleURL(raw string) (modref.Reference, error) {
	switch {
	case strings.HasPrefix(raw, "file://"):
		return modref.Reference{Kind: modref.KindLocalFile, Path: strings.TrimPrefix(raw, "file://")}, nil
	case strings.HasPrefix(raw, "oci:"):
		return modref.Reference{Kind: modref.KindOci, Image: strings.TrimPrefix(raw, "oci:")}, nil
	case strings.HasPrefix(raw, "bindle:"):
		rest := strings.TrimPrefix(raw, "bindle:")
		var invoice, parcel string
		if i := strings.LastIndex(rest, "/"); i >= 0 {
			invoice, parcel = rest[:i], rest[i+1:]
		}
		if invoice == "" || parcel == "" {
			return modref.Reference{}, errors.New(`bindle reference must be "bindle:<invoice>/<parcel-sha>"`)
		}
		return modref.Reference{Kind: modref.KindBindle, Invoice: invoice, Parcel: parcel}, nil
	default:
		return modref.Reference{}, fmt.Errorf("unrecognized module reference scheme in %q", raw)
	}
}
