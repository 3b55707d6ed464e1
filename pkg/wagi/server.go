package wagi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/deislabs/wagi-go/internal/bindle"
	"github.com/deislabs/wagi-go/internal/config"
	"github.com/deislabs/wagi-go/internal/dispatch"
	"github.com/deislabs/wagi-go/internal/handler"
	"github.com/deislabs/wagi-go/internal/modref"
	"github.com/deislabs/wagi-go/internal/routing"
	"github.com/deislabs/wagi-go/internal/subroutes"
	"github.com/deislabs/wagi-go/internal/wasmrt"
)

// Options configures a Server. Exactly one of ManifestPath or
// BindleInvoice must be set, per spec.md §6's CLI contract.
type Options struct {
	ManifestPath string
	ModuleCacheDir string // engine compilation cache directory; "" disables the on-disk cache

	BindleInvoice    string
	BindleServerURL  string

	Listen         string
	DefaultHost    string
	GlobalEnv      map[string]string // applied to every handler before its own environment
	RequestTimeout time.Duration
	MaxBodyBytes   int64

	Logger *slog.Logger
}

// Server is a frozen routing table plus the Wasm engine that serves it.
// Config is loaded once at construction; Non-goals exclude live
// reconfiguration (spec.md §1), so a Server is immutable after New.
type Server struct {
	engine     *wasmrt.Engine
	table      *routing.Table
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	opts       Options
}

// New resolves and validates configuration, pre-compiles every module,
// runs sub-route discovery, and builds the immutable routing table. Any
// failure here is fatal: the caller should treat a non-nil error as a
// startup error naming the first offending entry (spec.md §6, §7).
func New(ctx context.Context, opts Options) (*Server, error) {
	if (opts.ManifestPath == "") == (opts.BindleInvoice == "") {
		return nil, errors.New("exactly one of ManifestPath or BindleInvoice must be set")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	engine, err := wasmrt.NewEngine(ctx, opts.ModuleCacheDir, &wasmrt.DefaultOutboundFetcher{}, logger)
	if err != nil {
		return nil, fmt.Errorf("start wasm engine: %w", err)
	}

	precompile := func(ctx context.Context, b modref.Bytes) error {
		_, err := engine.Precompile(ctx, b.Hash, b.Raw)
		return err
	}

	var specs []*handler.Spec
	if opts.ManifestPath != "" {
		resolver := &modref.Resolver{}
		specs, err = config.Load(ctx, opts.ManifestPath, resolver, precompile)
	} else {
		store := bindle.NewClient(opts.BindleServerURL)
		specs, err = config.LoadBindle(ctx, opts.BindleInvoice, store, precompile)
	}
	if err != nil {
		engine.Close(ctx)
		return nil, err
	}

	applyGlobalEnv(specs, opts.GlobalEnv)

	all := make([]*handler.Spec, 0, len(specs))
	all = append(all, specs...)

	for _, parent := range specs {
		derived, err := subroutes.Discover(ctx, engine, parent, logger)
		if err != nil {
			engine.Close(ctx)
			return nil, fmt.Errorf("sub-route discovery: %w", err)
		}
		all = append(all, derived...)
	}

	table := routing.Build(all)

	d := &dispatch.Dispatcher{
		Table:          table,
		Engine:         engine,
		Logger:         logger,
		DefaultHost:    opts.DefaultHost,
		MaxBodyBytes:   opts.MaxBodyBytes,
		RequestTimeout: opts.RequestTimeout,
	}

	return &Server{engine: engine, table: table, dispatcher: d, logger: logger, opts: opts}, nil
}

func applyGlobalEnv(specs []*handler.Spec, global map[string]string) {
	if len(global) == 0 {
		return
	}
	for _, s := range specs {
		merged := make(map[string]string, len(global)+len(s.Environment))
		for k, v := range global {
			merged[k] = v
		}
		for k, v := range s.Environment {
			merged[k] = v
		}
		s.Environment = merged
	}
}

// Handler returns the server's http.Handler, with an operational
// "/healthz" surface mounted outside the routing table (it never invokes
// a module).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.serveHealthz)
	mux.Handle("/", s.dispatcher)
	return mux
}

// ListenAndServe blocks serving HTTP on opts.Listen until ctx is
// cancelled or an unrecoverable server error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.opts.Listen,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close releases the Wasm engine and its compilation cache.
func (s *Server) Close(ctx context.Context) error {
	return s.engine.Close(ctx)
}

type healthStatus struct {
	Routes int                    `json:"routes"`
	Stats  map[string]routeStats  `json:"stats"`
}

type routeStats struct {
	Requests int64 `json:"requests"`
	Errors   int64 `json:"errors"`
	Timeouts int64 `json:"timeouts"`
}

func (s *Server) serveHealthz(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Routes: s.table.Len(), Stats: make(map[string]routeStats)}
	for _, e := range s.table.Entries() {
		status.Stats[e.Pattern.String()] = routeStats{
			Requests: e.Stats.Requests.Load(),
			Errors:   e.Stats.Errors.Load(),
			Timeouts: e.Stats.Timeouts.Load(),
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}
