package apiclient

import (
	"io"
	"net/http"
	"net/url"
	"time"
)

// Headers the client computes on every dispatch.
const (
	HeaderCompanyID = "X-Company-ID"
	HeaderRequestID = "X-Request-ID"
)

// Request describes one logical platform call. The zero value is not
// usable; build descriptors with NewRequest or the method helpers so
// tenant scoping defaults on.
type Request struct {
	// Method defaults to GET when empty.
	Method string

	// Path feeds the three-way URL rule: absolute http(s) URLs pass
	// through untouched, a leading slash joins the bare origin, and
	// anything else joins the API root.
	Path string

	// Query is appended after URL resolution.
	Query url.Values

	// Header entries override the computed headers key by key.
	Header http.Header

	// Body is JSON-marshaled when non-nil.
	Body any

	// RawBody carries a pre-encoded body (multipart uploads). Mutually
	// exclusive with Body; read fully once so retries can replay it.
	RawBody io.Reader

	// ContentType labels RawBody. Ignored for Body, which is always
	// application/json.
	ContentType string

	// Timeout bounds each attempt; zero uses the client default.
	Timeout time.Duration

	// Retry opts this call into the timeout-retry policy.
	Retry bool

	// MaxAttempts caps retries for this call; zero uses the client
	// default. Meaningful only with Retry set.
	MaxAttempts int

	// TenantScoped requests carry the active company header, read at
	// dispatch time. Platform-wide calls switch this off.
	TenantScoped bool

	// Fallback marks the call degradable: when the resolved URL is on a
	// fragile prefix and the transport fails softly, the payload below
	// substitutes for a response instead of an error.
	Fallback *FallbackSpec
}

// FallbackSpec is the endpoint-specific response substituted when a
// fragile service cannot be reached.
type FallbackSpec struct {
	// Payload is the default response body, already JSON.
	Payload []byte
	// Reason is the operator-facing explanation attached to the result.
	Reason string
}

// NewRequest returns a tenant-scoped descriptor for the given method and
// path.
func NewRequest(method, path string) Request {
	return Request{Method: method, Path: path, TenantScoped: true}
}

// Get returns a tenant-scoped GET descriptor.
func Get(path string) Request { return NewRequest(http.MethodGet, path) }

// Post returns a tenant-scoped POST descriptor carrying body.
func Post(path string, body any) Request {
	r := NewRequest(http.MethodPost, path)
	r.Body = body
	return r
}

// Delete returns a tenant-scoped DELETE descriptor.
func Delete(path string) Request { return NewRequest(http.MethodDelete, path) }
