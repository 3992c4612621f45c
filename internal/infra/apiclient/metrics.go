package apiclient

import (
	"context"
	"time"
)

// ClientMetrics records dispatch outcomes. Implemented in infra/metrics;
// the client only depends on this interface.
type ClientMetrics interface {
	// ObserveRequest records one finished attempt. status is zero when
	// no response arrived; kind is empty on success.
	ObserveRequest(ctx context.Context, endpoint, method string, status int, kind string, d time.Duration)

	// IncRetry counts one retry wait before a repeat attempt.
	IncRetry(ctx context.Context, endpoint string)

	// IncDegraded counts one fallback substitution on a fragile path.
	IncDegraded(ctx context.Context, endpoint string)
}

// nopMetrics is used when no metrics sink is wired.
type nopMetrics struct{}

var _ ClientMetrics = nopMetrics{}

func (nopMetrics) ObserveRequest(context.Context, string, string, int, string, time.Duration) {}
func (nopMetrics) IncRetry(context.Context, string)                                           {}
func (nopMetrics) IncDegraded(context.Context, string)                                        {}
