package dispatch

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deislabs/wagi-go/internal/handler"
	"github.com/deislabs/wagi-go/internal/routing"
	"github.com/deislabs/wagi-go/internal/wasmrt"
)

func TestServeHTTP_NoRouteMatch404(t *testing.T) {
	d := &Dispatcher{Table: routing.Build(nil)}

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeHTTP_BodyTooLarge(t *testing.T) {
	spec := &handler.Spec{Pattern: handler.ParseRoutePattern("/hello"), SourceRoute: "/hello"}
	d := &Dispatcher{
		Table:        routing.Build([]*handler.Spec{spec}),
		MaxBodyBytes: 4,
	}

	req := httptest.NewRequest(http.MethodPost, "/hello", strings.NewReader("this body is way too long"))
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWriteResponse_SuccessfulExit(t *testing.T) {
	d := &Dispatcher{}
	spec := &handler.Spec{SourceRoute: "/hello"}
	result := wasmrt.Result{
		ExitOK: true,
		Stdout: []byte("Content-Type: text/plain\n\nhello world"),
	}

	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	rec := httptest.NewRecorder()
	status := d.writeResponse(rec, result, spec, req, d.logger())

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hello world", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestWriteResponse_NonZeroExitWithParseableResponse(t *testing.T) {
	d := &Dispatcher{}
	spec := &handler.Spec{SourceRoute: "/hello"}
	result := wasmrt.Result{
		ExitOK:   false,
		ExitCode: 1,
		Stdout:   []byte("Status: 500 Internal Server Error\nContent-Type: text/plain\n\noops"),
	}

	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	rec := httptest.NewRecorder()
	status := d.writeResponse(rec, result, spec, req, d.logger())

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "oops", rec.Body.String())
}

func TestWriteResponse_NonZeroExitUnparseableIs500(t *testing.T) {
	d := &Dispatcher{}
	spec := &handler.Spec{SourceRoute: "/hello"}
	result := wasmrt.Result{ExitOK: false, ExitCode: 1, Stdout: []byte("garbage")}

	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	rec := httptest.NewRecorder()
	status := d.writeResponse(rec, result, spec, req, d.logger())

	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestWriteResponse_MalformedResponseIs502(t *testing.T) {
	d := &Dispatcher{}
	spec := &handler.Spec{SourceRoute: "/hello"}
	result := wasmrt.Result{ExitOK: true, Stdout: []byte("no headers or blank line at all, just a body")}

	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	rec := httptest.NewRecorder()
	status := d.writeResponse(rec, result, spec, req, d.logger())

	assert.Equal(t, http.StatusBadGateway, status)
}

func TestDispatcher_DefaultLogger(t *testing.T) {
	d := &Dispatcher{}
	require.NotNil(t, d.logger())
}
