// Package dispatch orchestrates per-request handling: match route,
// build CGI env, run module, write HTTP response (spec.md §4.G).
package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/deislabs/wagi-go/internal/cgi"
	"github.com/deislabs/wagi-go/internal/handler"
	"github.com/deislabs/wagi-go/internal/routing"
	"github.com/deislabs/wagi-go/internal/wasmrt"
)

// DefaultMaxBodyBytes bounds the request body WAGI will read into
// memory before handing it to a guest on stdin (10MB).
const DefaultMaxBodyBytes = 10 * 1024 * 1024

// Dispatcher is the public HTTP entry point: an http.Handler that routes
// requests to Wasm modules via the CGI adapter and the runner.
type Dispatcher struct {
	Table          *routing.Table
	Engine         *wasmrt.Engine
	Logger         *slog.Logger
	DefaultHost    string
	MaxBodyBytes   int64
	RequestTimeout time.Duration // 0 disables the per-request deadline
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := d.logger()

	spec, tail, ok := d.Table.Match(r.URL.Path)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", http.StatusNotFound, "duration", time.Since(start))
		return
	}

	maxBody := d.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		logger.Error("request body read failed", "method", r.Method, "path", r.URL.Path, "error", err)
		return
	}
	if int64(len(body)) > maxBody {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", http.StatusRequestEntityTooLarge, "duration", time.Since(start))
		return
	}

	env := cgi.BuildEnv(r, spec.Pattern, tail, d.DefaultHost)
	args := cgi.Args(r)

	ctx := r.Context()
	var cancel context.CancelFunc
	if d.RequestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.RequestTimeout)
		defer cancel()
	}

	spec.Stats.Requests.Add(1)
	result, err := wasmrt.Run(ctx, d.Engine, spec, args, body, env, logger)
	status := http.StatusOK

	switch {
	case err != nil:
		spec.Stats.Errors.Add(1)
		status = http.StatusInternalServerError
		w.WriteHeader(status)
		logger.Error("module invocation failed", "method", r.Method, "path", r.URL.Path, "route", spec.SourceRoute, "error", err)

	case result.Timeout:
		spec.Stats.Timeouts.Add(1)
		status = http.StatusGatewayTimeout
		w.WriteHeader(status)
		logger.Warn("module execution timed out", "method", r.Method, "path", r.URL.Path, "route", spec.SourceRoute)

	default:
		status = d.writeResponse(w, result, spec, r, logger)
	}

	spec.Stats.TotalLatency.Add(int64(time.Since(start)))
	logger.Info("request", "method", r.Method, "path", r.URL.Path, "route", spec.SourceRoute, "status", status, "duration", time.Since(start))
}

// writeResponse parses the module's stdout and translates it into an
// HTTP response, or maps a parse/exit failure to the 5xx status
// spec.md §7 requires. It returns the status code actually written.
func (d *Dispatcher) writeResponse(w http.ResponseWriter, result wasmrt.Result, spec *handler.Spec, r *http.Request, logger *slog.Logger) int {
	parsed, parseErr := cgi.ParseResponse(result.Stdout)

	if !result.ExitOK {
		spec.Stats.Errors.Add(1)
		if parseErr != nil {
			w.WriteHeader(http.StatusInternalServerError)
			logger.Error("module failed without a parseable response", "route", spec.SourceRoute, "exit_code", result.ExitCode)
			return http.StatusInternalServerError
		}
		// The guest produced a usable response before failing.
		writeParsed(w, parsed)
		return parsed.Status
	}

	if parseErr != nil {
		var gwErr *cgi.GatewayError
		if errors.As(parseErr, &gwErr) {
			spec.Stats.Errors.Add(1)
			w.WriteHeader(http.StatusBadGateway)
			logger.Error("malformed module response", "route", spec.SourceRoute, "error", gwErr)
			return http.StatusBadGateway
		}
		spec.Stats.Errors.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		logger.Error("module response parse failed", "route", spec.SourceRoute, "error", parseErr)
		return http.StatusInternalServerError
	}

	writeParsed(w, parsed)
	return parsed.Status
}

func writeParsed(w http.ResponseWriter, parsed cgi.Response) {
	h := w.Header()
	for name, values := range parsed.Header {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	w.WriteHeader(parsed.Status)
	if len(parsed.Body) > 0 {
		_, _ = w.Write(parsed.Body)
	}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
