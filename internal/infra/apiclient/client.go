// Package apiclient is the console's single seam to the Parakeet
// platform. It owns URL resolution, tenant header injection, timeouts,
// retry, degradation, and the error taxonomy; nothing else in the
// console talks HTTP to the platform directly.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/parakeetlabs/perch/internal/domain/company"
	"github.com/parakeetlabs/perch/pkg/common/logger"
	commonotel "github.com/parakeetlabs/perch/pkg/common/otel"
)

// Response body caps. Failed responses keep a short prefix for operator
// display; successful ones are bounded against a runaway platform.
const (
	maxResponseSize = 1 << 20
	errorBodyCap    = 2048
)

// TenantSource supplies the active company at dispatch time. The session
// implements it; the client never caches the answer.
type TenantSource interface {
	ActiveID() (company.ID, bool)
}

// Config holds the client's dispatch settings.
type Config struct {
	// BaseURL is the platform origin, no trailing path.
	BaseURL string
	// APIRoot is the prefix joined in front of relative paths.
	APIRoot string
	// DefaultTimeout bounds attempts that do not set their own.
	DefaultTimeout time.Duration
	// ProbeTimeout bounds availability probes.
	ProbeTimeout time.Duration
	// MaxAttempts is the default attempt budget for retryable calls.
	MaxAttempts int
	// RetryBaseDelay seeds the exponential retry schedule.
	RetryBaseDelay time.Duration
	// FragilePrefixes lists resolved-URL prefixes that degrade softly.
	FragilePrefixes []string
	// ScheduleProbeURL is the scheduling service health endpoint.
	ScheduleProbeURL string
	// Debug enables per-attempt request logging.
	Debug bool
}

// Client dispatches requests against the platform.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tenants    TenantSource
	log        *logger.Logger
	tracer     trace.Tracer
	metrics    ClientMetrics

	avail availabilityState
}

// Option adjusts a Client at construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Used by tests and
// by callers that need custom transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics wires a metrics sink.
func WithMetrics(m ClientMetrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// New constructs a Client. tenants may be nil for a console that never
// scopes by company (tests mostly); tracer may be nil when telemetry is
// off.
func New(cfg Config, tenants TenantSource, log *logger.Logger, tracer trace.Tracer, opts ...Option) *Client {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 8 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if log == nil {
		log = logger.Noop()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}

	c := &Client{
		cfg:     cfg,
		tenants: tenants,
		log:     log.With("component", "apiclient"),
		tracer:  tracer,
		metrics: nopMetrics{},
		// Deadlines come from request contexts, so no client-level
		// timeout here.
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response is a raw dispatch result. Degraded responses carry the
// fallback payload and never an error.
type Response struct {
	Status         int
	Header         http.Header
	Body           []byte
	Degraded       bool
	DegradedReason string
}

// Do dispatches one logical request: resolve, retry on timeouts when
// asked, then soften fragile-path transport failures into fallbacks.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	endpoint := c.resolveURL(req)
	path := endpointPath(endpoint)
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := c.tracer.Start(ctx, "platform.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", endpoint),
		),
	)
	defer span.End()

	resp, err := c.doWithRetry(ctx, req, method, endpoint, path)

	if c.isFragile(endpoint) {
		// Reachability follows every live outcome: only transport-level
		// failures mean the service is away.
		c.noteScheduleOutcome(ctx, !isSoftFailure(err))
	}

	if err != nil {
		if fallback, ok := c.maybeDegrade(ctx, req, endpoint, path, err); ok {
			span.AddEvent("degraded fallback substituted")
			span.SetStatus(codes.Ok, "degraded")
			return fallback, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "request complete")
	return resp, nil
}

// attempt runs a single HTTP exchange with its own deadline.
func (c *Client) attempt(ctx context.Context, req Request, method, endpoint, path, requestID string, body []byte, attempt int) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(actx, method, endpoint, reader)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Endpoint: path, Message: "building request", Err: err}
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		contentType := "application/json"
		if req.RawBody != nil && req.ContentType != "" {
			contentType = req.ContentType
		}
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set(HeaderRequestID, requestID)
	// The company header is read at dispatch time, never captured when
	// the descriptor was built. A switch between attempts is carried.
	if req.TenantScoped && c.tenants != nil {
		if id, ok := c.tenants.ActiveID(); ok {
			httpReq.Header.Set(HeaderCompanyID, id.String())
		}
	}
	commonotel.InjectHeaders(actx, httpReq)
	for k, vs := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		cerr := classifyTransport(path, timeout, err)
		c.observe(ctx, path, method, 0, cerr.Kind, duration, attempt, cerr)
		return nil, cerr
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		cerr := classifyTransport(path, timeout, err)
		c.observe(ctx, path, method, httpResp.StatusCode, cerr.Kind, duration, attempt, cerr)
		return nil, cerr
	}

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		herr := &Error{
			Kind:     KindHTTP,
			Status:   httpResp.StatusCode,
			Endpoint: path,
			Message:  strings.ToLower(http.StatusText(httpResp.StatusCode)),
			Body:     truncate(payload, errorBodyCap),
		}
		c.observe(ctx, path, method, httpResp.StatusCode, KindHTTP, duration, attempt, herr)
		return nil, herr
	}

	c.observe(ctx, path, method, httpResp.StatusCode, 0, duration, attempt, nil)
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: payload}, nil
}

func (c *Client) observe(ctx context.Context, path, method string, status int, kind Kind, d time.Duration, attempt int, err error) {
	kindLabel := ""
	if kind != 0 {
		kindLabel = kind.String()
	}
	c.metrics.ObserveRequest(ctx, path, method, status, kindLabel, d)

	if !c.cfg.Debug {
		return
	}
	args := []any{
		"method", method,
		"url", path,
		"attempt", attempt,
		"status", status,
		"duration_ms", d.Milliseconds(),
	}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	c.log.Debug(ctx, "platform request", args...)
}

// resolveURL applies the three-way rule: absolute URLs pass through,
// root-relative paths join the bare origin, anything else joins the API
// root.
func (c *Client) resolveURL(req Request) string {
	p := req.Path
	var resolved string
	switch {
	case strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://"):
		resolved = p
	case strings.HasPrefix(p, "/"):
		resolved = strings.TrimRight(c.cfg.BaseURL, "/") + p
	default:
		root := "/" + strings.Trim(c.cfg.APIRoot, "/")
		resolved = strings.TrimRight(c.cfg.BaseURL, "/") + root + "/" + p
	}

	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(resolved, "?") {
			sep = "&"
		}
		resolved += sep + req.Query.Encode()
	}
	return resolved
}

// endpointPath strips origin and query for metric labels and error text.
func endpointPath(endpoint string) string {
	s := endpoint
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
		if j := strings.Index(s, "/"); j >= 0 {
			s = s[j:]
		} else {
			s = "/"
		}
	}
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	return s
}

func classifyTransport(path string, timeout time.Duration, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Kind:     KindTimeout,
			Endpoint: path,
			Message:  "no response within " + timeout.String(),
			Err:      err,
		}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{
			Kind:     KindTimeout,
			Endpoint: path,
			Message:  "no response within " + timeout.String(),
			Err:      err,
		}
	}
	return &Error{Kind: KindNetwork, Endpoint: path, Message: "transport failure", Err: err}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

// marshalBody materializes the request body once so every retry attempt
// can replay it from the start.
func marshalBody(req Request) ([]byte, *Error) {
	switch {
	case req.Body != nil:
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &Error{Kind: KindProtocol, Endpoint: req.Path, Message: "encoding request body", Err: err}
		}
		return b, nil
	case req.RawBody != nil:
		b, err := io.ReadAll(req.RawBody)
		if err != nil {
			return nil, &Error{Kind: KindProtocol, Endpoint: req.Path, Message: "reading request body", Err: err}
		}
		return b, nil
	}
	return nil, nil
}

func newRequestID() string { return uuid.New().String() }
