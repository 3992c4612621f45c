package apiclient

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/parakeetlabs/perch/internal/domain/schedule"
)

// availabilityState tracks the scheduling service's last known
// reachability. Starts Unknown; every live fragile-path outcome moves
// it.
type availabilityState struct {
	v atomic.Int32
}

func (s *availabilityState) load() schedule.Availability {
	return schedule.Availability(s.v.Load())
}

// swap stores the new state and reports whether it changed.
func (s *availabilityState) swap(next schedule.Availability) bool {
	return s.v.Swap(int32(next)) != int32(next)
}

// isFragile reports whether the resolved URL sits on a fragile prefix.
func (c *Client) isFragile(endpoint string) bool {
	for _, prefix := range c.cfg.FragilePrefixes {
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(endpoint, prefix) {
			return true
		}
		// Root-relative prefixes also match proxied paths.
		if strings.HasPrefix(prefix, "/") && strings.HasPrefix(endpointPath(endpoint), prefix) {
			return true
		}
	}
	return false
}

// isSoftFailure reports whether err means the service was unreachable.
// HTTP and protocol failures come from a service that answered.
func isSoftFailure(err error) bool {
	return IsTimeout(err) || IsNetwork(err)
}

// noteScheduleOutcome records a fragile-path outcome on the tri-state
// flag, logging transitions only so a flapping sidecar cannot flood the
// log.
func (c *Client) noteScheduleOutcome(ctx context.Context, reachable bool) {
	next := schedule.AvailabilityUp
	if !reachable {
		next = schedule.AvailabilityDown
	}
	prev := c.avail.load()
	if c.avail.swap(next) {
		c.log.Warn(ctx, "schedule service availability changed",
			"from", prev.String(),
			"to", next.String(),
		)
	}
}

// ScheduleAvailability returns the last known reachability of the
// scheduling service. Advisory only: no call is skipped because of it.
func (c *Client) ScheduleAvailability() schedule.Availability {
	return c.avail.load()
}

// maybeDegrade substitutes the descriptor's fallback when a fragile call
// failed softly. Genuine platform answers (HTTP, protocol) always pass
// through.
func (c *Client) maybeDegrade(ctx context.Context, req Request, endpoint, path string, err error) (*Response, bool) {
	if req.Fallback == nil || !c.isFragile(endpoint) || !isSoftFailure(err) {
		return nil, false
	}

	c.metrics.IncDegraded(ctx, path)
	c.log.Debug(ctx, "substituting degraded fallback",
		"url", path,
		"reason", req.Fallback.Reason,
	)
	return &Response{
		Status:         http.StatusOK,
		Body:           req.Fallback.Payload,
		Degraded:       true,
		DegradedReason: req.Fallback.Reason,
	}, true
}

// ProbeSchedule checks the scheduling service health endpoint once. The
// outcome updates the availability flag like any live call; the error is
// informational.
func (c *Client) ProbeSchedule(ctx context.Context) error {
	if c.cfg.ScheduleProbeURL == "" {
		return nil
	}
	req := Request{
		Method:  http.MethodGet,
		Path:    c.cfg.ScheduleProbeURL,
		Timeout: c.cfg.ProbeTimeout,
	}
	_, err := c.Do(ctx, req)
	return err
}
