package apiclient

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the client can surface. Callers branch
// on the kind, never on transport internals.
type Kind uint8

// Failure kinds.
const (
	// KindTimeout means the request deadline expired before a response
	// arrived. The only retryable kind.
	KindTimeout Kind = iota + 1
	// KindNetwork means the transport failed outright: refused
	// connection, DNS failure, reset, or caller cancellation.
	KindNetwork
	// KindHTTP means the platform answered with a non-2xx status.
	KindHTTP
	// KindProtocol means the platform answered 2xx but the payload did
	// not match the endpoint's schema.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is the single failure type the client returns. Status is set for
// KindHTTP only; Body holds a truncated copy of the response for
// operator display.
type Error struct {
	Kind     Kind
	Status   int
	Endpoint string
	Message  string
	Body     []byte
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Kind, e.Endpoint, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func kindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}

// IsTimeout reports whether err is a client timeout failure.
func IsTimeout(err error) bool { k, ok := kindOf(err); return ok && k == KindTimeout }

// IsNetwork reports whether err is a client transport failure.
func IsNetwork(err error) bool { k, ok := kindOf(err); return ok && k == KindNetwork }

// IsHTTP reports whether err is a non-2xx platform response.
func IsHTTP(err error) bool { k, ok := kindOf(err); return ok && k == KindHTTP }

// IsProtocol reports whether err is a malformed platform response.
func IsProtocol(err error) bool { k, ok := kindOf(err); return ok && k == KindProtocol }

// HTTPStatus extracts the status code from a KindHTTP failure.
func HTTPStatus(err error) (int, bool) {
	var ce *Error
	if errors.As(err, &ce) && ce.Kind == KindHTTP {
		return ce.Status, true
	}
	return 0, false
}
