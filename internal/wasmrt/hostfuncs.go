package wasmrt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tetratelabs/wazero/api"
	"golang.org/x/time/rate"
)

const (
	// MaxHostLogSize is the maximum size of a single plugin log message.
	MaxHostLogSize = 512

	// HostLogRateLimit bounds log calls per second per engine, guarding
	// the host's own stderr/observability pipeline against a noisy or
	// malicious guest (mirrors the teacher's host.go rate limiting).
	HostLogRateLimit = 50

	// outboundTimeout bounds a single outbound-HTTP host call so a slow
	// upstream cannot stall a request indefinitely.
	outboundTimeout = 5 * time.Second

	// deniedSentinel is returned to the guest when the requested origin
	// is not in the handler's allow-list: the "defined error" spec.md
	// §4.C requires for denied outbound calls.
	deniedSentinel = 0xFFFFFFFE
	// bufTooSmallSentinel is returned when out_buf cannot hold the response.
	bufTooSmallSentinel = 0xFFFFFFFF
)

// OutboundFetcher performs the outbound HTTP call on behalf of a guest,
// after the allow-list check has already passed. The default
// implementation is the standard library's http.Client; tests can
// substitute a fake.
type OutboundFetcher interface {
	Fetch(ctx context.Context, method, url string, body []byte) (status int, respBody []byte, err error)
}

// DefaultOutboundFetcher performs real outbound HTTP calls via the
// standard library's net/http client.
type DefaultOutboundFetcher struct {
	Client *http.Client
}

// Fetch implements OutboundFetcher.
func (f *DefaultOutboundFetcher) Fetch(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, outboundTimeout)
	defer cancel()

	var rdr io.Reader
	if len(body) > 0 {
		rdr = strings.NewReader(string(body))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return 0, nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, wasmrtMaxResponseBody))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, out, nil
}

const wasmrtMaxResponseBody = 4 * 1024 * 1024

// requestCaps is the per-invocation capability bundle carried on the
// context passed into an exported function call: the allow-list for
// this handler and where to send guest log lines. Host functions read
// it back off ctx, since wazero threads the call's context through to
// every host function it invokes.
type requestCaps struct {
	allowedHosts map[string]struct{}
	logger       *slog.Logger
	handlerName  string
}

type requestCapsKey struct{}

func withRequestCaps(ctx context.Context, caps *requestCaps) context.Context {
	return context.WithValue(ctx, requestCapsKey{}, caps)
}

func requestCapsFrom(ctx context.Context) *requestCaps {
	if c, ok := ctx.Value(requestCapsKey{}).(*requestCaps); ok {
		return c
	}
	return &requestCaps{}
}

// registerHostModule registers the "wagi" host module exposing the
// outbound-HTTP capability and a rate-limited logging function, the
// same shape as the teacher's internal/wasm/host.go "env" module:
// thin wrappers around a hostFunctions receiver, exported individually.
func (e *Engine) registerHostModule(ctx context.Context) error {
	hf := &hostFunctions{
		outbound:    e.outbound,
		rateLimiter: rate.NewLimiter(HostLogRateLimit, HostLogRateLimit),
		logger:      e.logger,
	}

	b := e.runtime.NewHostModuleBuilder("wagi")

	b = b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, methodPtr, methodLen, urlPtr, urlLen, bodyPtr, bodyLen, outBufPtr, outBufLen uint32) uint32 {
			return hf.httpFetch(ctx, m, methodPtr, methodLen, urlPtr, urlLen, bodyPtr, bodyLen, outBufPtr, outBufLen)
		}).
		Export("http_fetch")

	b = b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, level, ptr, msgLen uint32) {
			hf.log(ctx, m, level, ptr, msgLen)
		}).
		Export("log")

	_, err := b.Instantiate(ctx)
	return err
}

type hostFunctions struct {
	outbound    OutboundFetcher
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// httpFetch implements the outbound-HTTP host function.
// Signature: (method_ptr, method_len, url_ptr, url_len, body_ptr,
// body_len, out_buf_ptr, out_buf_len) -> bytes written | deniedSentinel
// | bufTooSmallSentinel. On success the bytes written to out_buf are a
// CGI-style response: "<status>\n" followed by the raw response body.
func (h *hostFunctions) httpFetch(ctx context.Context, m api.Module, methodPtr, methodLen, urlPtr, urlLen, bodyPtr, bodyLen, outBufPtr, outBufLen uint32) uint32 {
	methodBytes, ok := m.Memory().Read(methodPtr, methodLen)
	if !ok {
		return 0
	}
	urlBytes, ok := m.Memory().Read(urlPtr, urlLen)
	if !ok {
		return 0
	}
	var reqBody []byte
	if bodyLen > 0 {
		reqBody, ok = m.Memory().Read(bodyPtr, bodyLen)
		if !ok {
			return 0
		}
	}

	method := string(methodBytes)
	url := string(urlBytes)

	caps := requestCapsFrom(ctx)
	origin, err := originOf(url)
	if err != nil {
		return 0
	}
	if _, allowed := caps.allowedHosts[origin]; !allowed {
		if caps.logger != nil {
			caps.logger.Warn("denied outbound http call", "handler", caps.handlerName, "origin", origin)
		}
		return deniedSentinel
	}

	if h.outbound == nil {
		return 0
	}

	status, respBody, err := h.outbound.Fetch(ctx, method, url, reqBody)
	if err != nil {
		return 0
	}

	payload := []byte(fmt.Sprintf("%d\n", status))
	payload = append(payload, respBody...)

	if uint32(len(payload)) > outBufLen {
		return bufTooSmallSentinel
	}
	if !m.Memory().Write(outBufPtr, payload) {
		return 0
	}
	return uint32(len(payload))
}

// log implements the logging host function: level 0=debug..3=error,
// rate-limited and size-bounded exactly as the teacher's host.go does.
func (h *hostFunctions) log(ctx context.Context, m api.Module, level, ptr, msgLen uint32) {
	if !h.rateLimiter.Allow() {
		return
	}

	truncated := false
	if msgLen > MaxHostLogSize {
		truncated = true
		msgLen = MaxHostLogSize
	}

	msgBytes, ok := m.Memory().Read(ptr, msgLen)
	if !ok {
		return
	}
	msg := strings.ToValidUTF8(string(msgBytes), "�")
	if truncated {
		msg += " [truncated]"
	}

	caps := requestCapsFrom(ctx)
	logger := caps.logger
	if logger == nil {
		logger = h.logger
	}
	if logger == nil {
		return
	}

	switch level {
	case 0:
		logger.Debug("[guest] " + msg)
	case 1:
		logger.Info("[guest] " + msg)
	case 2:
		logger.Warn("[guest] " + msg)
	default:
		logger.Error("[guest] " + msg)
	}
}

func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Scheme + "://" + u.Host, nil
}
