// Package httphost implements the guest-facing HTTP import surface
// (component G, spec §4.G): a guest issues an outgoing request and
// blocks until a fully materialized response is available. There is no
// streaming request/response body support in this core, mirroring the
// scope spec §4.G states explicitly.
package httphost

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"

	"github.com/tjfontaine/wasihost/internal/errs"
)

// restrictedHeaders are dropped from every outgoing request regardless
// of what the guest supplied, per spec §4.G.
var restrictedHeaders = map[string]bool{
	"host":       true,
	"user-agent": true,
}

// Request is a guest outgoing request.
type Request struct {
	Method  string
	URL     string
	Headers []Header
	Body    []byte
}

// Header preserves the order and case the guest specified. HTTP headers
// are list-valued; a request/response may repeat a name.
type Header struct {
	Name  string
	Value string
}

// Response is a fully materialized incoming response.
type Response struct {
	Status  int
	OK      bool
	Headers []Header
	Body    []byte
}

// Host issues outgoing requests on behalf of a guest using a plain
// net/http.Client — spec §4.G's request/response cycle is a simple
// synchronous round trip, with no need for the richer transport/pooling
// surface a dedicated HTTP client library would add over net/http.
type Host struct {
	client    *http.Client
	corsProxy string
	logger    *zap.Logger
}

// Option configures a Host beyond the request timeout New already takes.
type Option func(*Host)

// WithCORSProxy rewrites every outbound request through proxy, per spec
// §6's CORS_PROXY configuration knob: "for outbound HTTP when the target
// host forbids direct access". The original URL is appended to proxy,
// matching the append-target-URL convention a CORS-relay proxy expects.
func WithCORSProxy(proxy string) Option {
	return func(h *Host) { h.corsProxy = proxy }
}

// WithLogger attaches a zap logger; a nil logger (the default) disables
// logging. Only request-level failures are logged, never a per-call
// success, matching wazero's own discipline of not logging hot paths.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New builds a Host with the given request timeout. A zero timeout
// disables it, matching net/http.Client's own zero-value semantics.
func New(timeout time.Duration, opts ...Option) *Host {
	h := &Host{client: &http.Client{Timeout: timeout}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fetch performs req and blocks until the response is fully received.
// Non-2xx status is not an error (spec §4.G). A request that cannot be
// built (bad method or URL) is errs.Invalid; a transport-level failure
// is errs.IO. Each call is tagged with a
// request id (github.com/google/uuid, as rclone-rclone's backends use
// for the same "correlate this call across log lines" purpose) purely
// for the logger — it never reaches the guest.
func (h *Host) Fetch(req Request) (Response, errs.Errno) {
	requestID := uuid.NewString()

	targetURL := req.URL
	if h.corsProxy != "" {
		targetURL = strings.TrimSuffix(h.corsProxy, "/") + "/" + req.URL
	}

	httpReq, err := http.NewRequest(req.Method, targetURL, bytes.NewReader(req.Body))
	if err != nil {
		h.logger.Debug("invalid outbound request", zap.String("request_id", requestID), zap.Error(err))
		return Response{}, errs.Invalid
	}
	for _, hdr := range req.Headers {
		if restrictedHeaders[strings.ToLower(hdr.Name)] {
			continue
		}
		if !httpguts.ValidHeaderFieldName(hdr.Name) || !httpguts.ValidHeaderFieldValue(hdr.Value) {
			continue
		}
		httpReq.Header.Add(hdr.Name, hdr.Value)
	}
	// An empty User-Agent entry stops net/http from adding its default
	// one, so no User-Agent header reaches the server.
	httpReq.Header.Set("User-Agent", "")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		h.logger.Warn("outbound request failed", zap.String("request_id", requestID), zap.String("url", targetURL), zap.Error(err))
		return Response{}, errs.IO
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.logger.Warn("reading response body failed", zap.String("request_id", requestID), zap.Error(err))
		return Response{}, errs.IO
	}

	return Response{
		Status:  resp.StatusCode,
		OK:      resp.StatusCode >= 200 && resp.StatusCode < 300,
		Headers: foldHeaders(resp.Header),
		Body:    body,
	}, errs.Success
}

// foldHeaders flattens an http.Header (which is unordered and
// case-normalized by net/http) into Header pairs preserving each value's
// original order within its name, per spec §4.G "response header folding
// preserves order".
func foldHeaders(h http.Header) []Header {
	out := make([]Header, 0, len(h))
	for name, values := range h {
		for _, v := range values {
			out = append(out, Header{Name: name, Value: v})
		}
	}
	return out
}
