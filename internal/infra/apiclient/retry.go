package apiclient

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxRetryInterval caps a single wait; with the default base the budget
// runs out long before this matters.
const maxRetryInterval = 30 * time.Second

// newBackoff builds the deterministic exponential schedule: base, then
// double per retry, no jitter. Each logical call gets a fresh instance.
func (c *Client) newBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBaseDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = maxRetryInterval
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// doWithRetry runs attempts until success, a non-retryable failure, or
// an exhausted budget. Only timeouts are retryable, and only for
// descriptors that opted in. The final attempt's error is returned
// unchanged.
func (c *Client) doWithRetry(ctx context.Context, req Request, method, endpoint, path string) (*Response, error) {
	body, merr := marshalBody(req)
	if merr != nil {
		return nil, merr
	}

	attempts := 1
	if req.Retry {
		attempts = req.MaxAttempts
		if attempts < 1 {
			attempts = c.cfg.MaxAttempts
		}
	}

	// One id across the whole attempt group so the platform can match
	// retries to the original.
	requestID := newRequestID()

	bo := c.newBackoff()
	var resp *Response
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := bo.NextBackOff()
			c.metrics.IncRetry(ctx, path)
			c.log.Debug(ctx, "retrying platform request",
				"method", method,
				"url", path,
				"attempt", attempt,
				"delay_ms", delay.Milliseconds(),
			)
			if werr := waitRetry(ctx, delay); werr != nil {
				// The caller gave up while we were waiting; surface the
				// attempt that drove us here.
				return nil, err
			}
		}

		resp, err = c.attempt(ctx, req, method, endpoint, path, requestID, body, attempt)
		if err == nil {
			return resp, nil
		}
		if !IsTimeout(err) {
			return nil, err
		}
	}
	return nil, err
}

// waitRetry sleeps for d unless the context ends first.
func waitRetry(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
