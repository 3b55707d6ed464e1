package routing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deislabs/wagi-go/internal/handler"
	"github.com/deislabs/wagi-go/internal/routing"
)

func spec(route string) *handler.Spec {
	return &handler.Spec{
		Pattern:     handler.ParseRoutePattern(route),
		SourceRoute: route,
	}
}

func TestBuild_ExactBeforeWildcard(t *testing.T) {
	table := routing.Build([]*handler.Spec{
		spec("/api/..."),
		spec("/api/widgets"),
	})

	matched, _, ok := table.Match("/api/widgets")
	require.True(t, ok)
	assert.Equal(t, "/api/widgets", matched.SourceRoute, "exact route must win over an overlapping wildcard")
}

func TestBuild_LongestPrefixFirst(t *testing.T) {
	table := routing.Build([]*handler.Spec{
		spec("/..."),
		spec("/api/..."),
	})

	matched, tail, ok := table.Match("/api/v1/widgets")
	require.True(t, ok)
	assert.Equal(t, "/api/...", matched.SourceRoute)
	assert.Equal(t, "v1/widgets", tail)
}

func TestBuild_InsertionOrderTieBreak(t *testing.T) {
	first := spec("/hello")
	second := spec("/hello")
	table := routing.Build([]*handler.Spec{first, second})

	matched, _, ok := table.Match("/hello")
	require.True(t, ok)
	assert.Same(t, first, matched)
}

func TestMatch_NoRouteFound(t *testing.T) {
	table := routing.Build([]*handler.Spec{spec("/hello")})

	_, _, ok := table.Match("/goodbye")
	assert.False(t, ok)
}

func TestMatch_WildcardTailEmptyWhenEqual(t *testing.T) {
	table := routing.Build([]*handler.Spec{spec("/api/...")})

	_, tail, ok := table.Match("/api")
	require.True(t, ok)
	assert.Empty(t, tail)
}

func TestBuild_DoesNotMutateInput(t *testing.T) {
	input := []*handler.Spec{spec("/api/..."), spec("/hello")}
	original := make([]*handler.Spec, len(input))
	copy(original, input)

	routing.Build(input)

	assert.Equal(t, original, input)
}

func TestLen(t *testing.T) {
	table := routing.Build([]*handler.Spec{spec("/a"), spec("/b"), spec("/c/...")})
	assert.Equal(t, 3, table.Len())
}
