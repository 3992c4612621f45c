package apiclient

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Result carries a decoded payload plus degradation metadata, so callers
// can render substituted data honestly without error handling.
type Result[T any] struct {
	Value    T
	Degraded bool
	Reason   string
}

// Call dispatches req and decodes the answer into T. A 2xx payload that
// fails to decode or validate is a protocol failure; every endpoint's
// schema is checked here and nowhere downstream.
func Call[T any](ctx context.Context, c *Client, req Request) (Result[T], error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return Result[T]{}, err
	}

	var out T
	if len(resp.Body) > 0 {
		if uerr := json.Unmarshal(resp.Body, &out); uerr != nil {
			return Result[T]{}, &Error{
				Kind:     KindProtocol,
				Endpoint: req.Path,
				Message:  "decoding response",
				Err:      uerr,
			}
		}
	}

	if verr := validatePayload(out); verr != nil {
		return Result[T]{}, &Error{
			Kind:     KindProtocol,
			Endpoint: req.Path,
			Message:  "response failed validation",
			Err:      verr,
		}
	}

	return Result[T]{Value: out, Degraded: resp.Degraded, Reason: resp.DegradedReason}, nil
}

// CallNoContent dispatches req and discards any response body.
func CallNoContent(ctx context.Context, c *Client, req Request) error {
	_, err := c.Do(ctx, req)
	return err
}

// validatePayload runs a payload's own Validate method when it has one,
// falling back to struct-tag validation, element-wise over collections.
func validatePayload(v any) error {
	if val, ok := v.(interface{ Validate() error }); ok {
		return val.Validate()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Struct:
		return validate.Struct(v)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := validatePayload(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	case reflect.Pointer:
		if !rv.IsNil() {
			return validatePayload(rv.Elem().Interface())
		}
	}
	return nil
}
