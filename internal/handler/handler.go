// Package handler defines the shapes shared by configuration loading,
// routing, sub-route discovery, and the Wasm runner: RoutePattern and
// HandlerSpec from spec.md §3.
package handler

import (
	"strings"
	"sync/atomic"

	"github.com/deislabs/wagi-go/internal/modref"
)

// PatternKind tags a RoutePattern as exact or wildcard.
type PatternKind int

const (
	// Exact matches only the literal path.
	Exact PatternKind = iota
	// Wildcard matches the prefix itself and anything below it.
	Wildcard
)

// RoutePattern is either Exact(path) or Wildcard(prefix), constructed
// from a configured route string: a trailing "/..." yields Wildcard with
// the ellipsis stripped; anything else yields Exact.
type RoutePattern struct {
	Kind   PatternKind
	Prefix string // the path for Exact, the prefix (no trailing slash) for Wildcard
}

// ParseRoutePattern builds a RoutePattern from a configured route string.
func ParseRoutePattern(route string) RoutePattern {
	const ellipsis = "/..."
	if strings.HasSuffix(route, ellipsis) {
		return RoutePattern{Kind: Wildcard, Prefix: strings.TrimSuffix(route, ellipsis)}
	}
	return RoutePattern{Kind: Exact, Prefix: route}
}

// String renders the canonical pattern string (wildcards as "/...").
func (p RoutePattern) String() string {
	if p.Kind == Wildcard {
		return p.Prefix + "/..."
	}
	return p.Prefix
}

// Match reports whether requestPath matches p, and if p is a wildcard,
// the tail of requestPath after the matched prefix.
func (p RoutePattern) Match(requestPath string) (ok bool, tail string) {
	switch p.Kind {
	case Exact:
		return requestPath == p.Prefix, ""
	case Wildcard:
		if requestPath == p.Prefix {
			return true, ""
		}
		if strings.HasPrefix(requestPath, p.Prefix+"/") {
			return true, strings.TrimPrefix(requestPath, p.Prefix+"/")
		}
		return false, ""
	default:
		return false, ""
	}
}

// DefaultEntrypoint is the export called when a HandlerSpec does not
// name one explicitly.
const DefaultEntrypoint = "_start"

// Spec is everything needed to invoke a module for one route
// (spec.md's HandlerSpec).
type Spec struct {
	ModuleBytes  modref.Bytes
	Entrypoint   string
	Pattern      RoutePattern
	Volumes      map[string]string // guest path -> host path
	Environment  map[string]string
	AllowedHosts map[string]struct{}

	// SourceRoute is the configured route string this spec was built
	// from, kept for diagnostics (logs and error messages).
	SourceRoute string

	Stats Stats
}

// EntrypointOrDefault returns the configured entrypoint, or "_start".
func (s *Spec) EntrypointOrDefault() string {
	if s.Entrypoint == "" {
		return DefaultEntrypoint
	}
	return s.Entrypoint
}

// IsHostAllowed reports whether origin may be contacted via the
// outbound-HTTP capability. An empty allow-list denies everything.
func (s *Spec) IsHostAllowed(origin string) bool {
	_, ok := s.AllowedHosts[origin]
	return ok
}

// Derive builds a sub-route HandlerSpec identical to s except for
// Pattern, Entrypoint, and SourceRoute (set to pattern's string form),
// per spec.md §4.E. The derived spec's Stats start at zero.
func (s *Spec) Derive(pattern RoutePattern, entrypoint string) *Spec {
	return &Spec{
		ModuleBytes:  s.ModuleBytes,
		Entrypoint:   entrypoint,
		Pattern:      pattern,
		Volumes:      s.Volumes,
		Environment:  s.Environment,
		AllowedHosts: s.AllowedHosts,
		SourceRoute:  pattern.String(),
	}
}

// Stats accumulates per-handler request counters for the operational
// surface exposed at /healthz. Safe for concurrent use.
type Stats struct {
	Requests     atomic.Int64
	Errors       atomic.Int64
	Timeouts     atomic.Int64
	TotalLatency atomic.Int64 // nanoseconds
}
