package cgi_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deislabs/wagi-go/internal/cgi"
	"github.com/deislabs/wagi-go/internal/handler"
)

func TestBuildEnv_ExactRoute(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/hello?name=world", nil)
	pattern := handler.ParseRoutePattern("/hello")

	env := cgi.BuildEnv(req, pattern, "", "localhost")

	assert.Equal(t, "GET", env["REQUEST_METHOD"])
	assert.Equal(t, "/hello", env["SCRIPT_NAME"])
	assert.Equal(t, "", env["PATH_INFO"])
	assert.Equal(t, "name=world", env["QUERY_STRING"])
	assert.Equal(t, "example.com", env["SERVER_NAME"])
	assert.Equal(t, "80", env["SERVER_PORT"])
	assert.Equal(t, "CGI/1.1", env["GATEWAY_INTERFACE"])
}

func TestBuildEnv_WildcardRoute_PathInfo(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/widgets", nil)
	pattern := handler.ParseRoutePattern("/api/...")

	env := cgi.BuildEnv(req, pattern, "v1/widgets", "localhost")

	assert.Equal(t, "/api", env["SCRIPT_NAME"])
	assert.Equal(t, "/v1/widgets", env["PATH_INFO"])
	assert.Equal(t, "v1/widgets", env["X_RELATIVE_PATH"])
}

func TestBuildEnv_WildcardRoute_PathInfoEmptyWhenEqual(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api", nil)
	pattern := handler.ParseRoutePattern("/api/...")

	env := cgi.BuildEnv(req, pattern, "", "localhost")

	assert.Empty(t, env["PATH_INFO"])
}

func TestBuildEnv_HeadersFoldedToHTTPPrefixed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/hello", nil)
	req.Header.Set("X-Custom-Header", "value1")
	req.Header.Add("X-Custom-Header", "value2")
	pattern := handler.ParseRoutePattern("/hello")

	env := cgi.BuildEnv(req, pattern, "", "localhost")

	assert.Equal(t, "value1, value2", env["HTTP_X_CUSTOM_HEADER"])
}

func TestBuildEnv_ContentTypeAndLength(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/hello", nil)
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = 42
	pattern := handler.ParseRoutePattern("/hello")

	env := cgi.BuildEnv(req, pattern, "", "localhost")

	assert.Equal(t, "application/json", env["CONTENT_TYPE"])
	assert.Equal(t, "42", env["CONTENT_LENGTH"])
}

func TestBuildEnv_DefaultHostUsedWhenHostEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/hello", nil)
	req.Host = ""
	pattern := handler.ParseRoutePattern("/hello")

	env := cgi.BuildEnv(req, pattern, "", "fallback.local")

	assert.Equal(t, "fallback.local", env["SERVER_NAME"])
}

func TestArgs_SplitsOnAmpersand(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/hello?a=1&b=2", nil)
	assert.Equal(t, []string{"a=1", "b=2"}, cgi.Args(req))
}

func TestArgs_EmptyQueryIsNil(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/hello", nil)
	assert.Nil(t, cgi.Args(req))
}
