// Package health probes the platform's services in parallel and folds
// the outcomes into one system verdict. The aggregate never fails: a
// probe that cannot complete is an unhealthy service, not an error.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/parakeetlabs/perch/internal/domain/company"
	"github.com/parakeetlabs/perch/internal/domain/health"
	"github.com/parakeetlabs/perch/internal/infra/apiclient"
	"github.com/parakeetlabs/perch/pkg/common/logger"
	"github.com/parakeetlabs/perch/pkg/common/timeutil"
)

// Defaults for probing.
const (
	DefaultProbeTimeout = 3 * time.Second
	DefaultInterval     = 30 * time.Second
)

// Target is one probed service.
type Target struct {
	Name     string
	Path     string
	Critical bool
	// Timeout bounds the probe; zero uses DefaultProbeTimeout.
	Timeout time.Duration
	// Fallback marks the probe degradable, so a soft failure reports the
	// degradation reason instead of a transport error.
	Fallback *apiclient.FallbackSpec
}

// DefaultTargets is the standard probe set. scheduleProbe is the
// scheduling service health URL; empty means the proxied path.
func DefaultTargets(scheduleProbe string) []Target {
	if scheduleProbe == "" {
		scheduleProbe = "/health/schedule-service"
	}
	return []Target{
		{Name: "platform-api", Path: "/health", Critical: true},
		{Name: "chat-pipeline", Path: "health/chat", Critical: true},
		{Name: "document-store", Path: "health/documents"},
		{Name: "schedule-service", Path: scheduleProbe, Fallback: &apiclient.FallbackSpec{
			Payload: []byte(`{"status":"unknown"}`),
			Reason:  "scheduling service unreachable",
		}},
	}
}

// HealthMetrics is the sink for probe outcomes, implemented in
// infra/metrics.
type HealthMetrics interface {
	SetSystemHealth(ctx context.Context, status string)
	ObserveProbe(ctx context.Context, service string, healthy bool, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) SetSystemHealth(context.Context, string)                   {}
func (nopMetrics) ObserveProbe(context.Context, string, bool, time.Duration) {}

// Service runs the probes.
type Service struct {
	client  *apiclient.Client
	targets []Target
	clock   timeutil.Provider
	log     *logger.Logger
	tracer  trace.Tracer
	metrics HealthMetrics
}

// NewService builds the aggregator over client. Empty targets fall back
// to DefaultTargets with the proxied schedule path.
func NewService(client *apiclient.Client, targets []Target, clock timeutil.Provider, log *logger.Logger, tracer trace.Tracer, metrics HealthMetrics) *Service {
	if len(targets) == 0 {
		targets = DefaultTargets("")
	}
	if clock == nil {
		clock = timeutil.Default()
	}
	if log == nil {
		log = logger.Noop()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		client:  client,
		targets: targets,
		clock:   clock,
		log:     log.With("component", "health"),
		tracer:  tracer,
		metrics: metrics,
	}
}

// Check probes every target in parallel and reduces the outcomes.
// Results keep target order whatever the completion order. Check never
// returns an error; a broken probe is an unhealthy service.
func (s *Service) Check(ctx context.Context) health.SystemHealth {
	ctx, span := s.tracer.Start(ctx, "health.check",
		trace.WithAttributes(attribute.Int("health.targets", len(s.targets))),
	)
	defer span.End()

	results := make([]health.ServiceHealth, len(s.targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range s.targets {
		g.Go(func() error {
			results[i] = s.probe(gctx, target)
			return nil
		})
	}
	// Probes fold their own failures, so the group never errors.
	_ = g.Wait()

	status := health.Reduce(results)
	s.metrics.SetSystemHealth(ctx, string(status))
	span.SetAttributes(attribute.String("health.status", string(status)))

	if status != health.SystemHealthy {
		s.log.Warn(ctx, "system health degraded", "status", string(status))
	}
	return health.SystemHealth{Status: status, Services: results, CheckedAt: s.clock.Now()}
}

// probePayload is what the platform's health endpoints report.
type probePayload struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

func (s *Service) probe(ctx context.Context, t Target) (res health.ServiceHealth) {
	start := s.clock.Now()
	res = health.ServiceHealth{Name: t.Name, Critical: t.Critical, Status: health.StatusUnhealthy}
	defer func() {
		if r := recover(); r != nil {
			res.Status = health.StatusUnhealthy
			res.Detail = fmt.Sprintf("probe panic: %v", r)
		}
		res.Latency = s.clock.Since(start)
		res.CheckedAt = s.clock.Now()
		s.metrics.ObserveProbe(ctx, t.Name, res.Status == health.StatusHealthy, res.Latency)
	}()

	req := apiclient.Get(t.Path)
	req.TenantScoped = false
	req.Timeout = t.Timeout
	if req.Timeout <= 0 {
		req.Timeout = DefaultProbeTimeout
	}
	req.Fallback = t.Fallback

	resp, err := s.client.Do(ctx, req)
	switch {
	case err != nil:
		res.Detail = err.Error()
	case resp.Degraded:
		res.Detail = resp.DegradedReason
	default:
		res.Status = health.StatusHealthy
		if len(resp.Body) > 0 {
			var p probePayload
			if jerr := json.Unmarshal(resp.Body, &p); jerr != nil {
				res.Status = health.StatusUnhealthy
				res.Detail = "undecodable health payload"
			} else if p.Status != "" && p.Status != "ok" && p.Status != "healthy" {
				res.Status = health.StatusUnhealthy
				res.Detail = p.Status
				if p.Detail != "" {
					res.Detail = p.Status + ": " + p.Detail
				}
			}
		}
	}
	return res
}

// CheckCompany fetches the deep per-company health view. Unlike Check
// this is an on-demand admin read and may error.
func (s *Service) CheckCompany(ctx context.Context, id company.ID) (health.CompanyHealth, error) {
	if err := id.Validate(); err != nil {
		return health.CompanyHealth{}, err
	}

	ctx, span := s.tracer.Start(ctx, "health.check_company",
		trace.WithAttributes(attribute.String("company.id", id.String())),
	)
	defer span.End()

	res, err := apiclient.Call[health.CompanyHealth](ctx, s.client, apiclient.Get("health/company/"+id.String()))
	if err != nil {
		span.RecordError(err)
		return health.CompanyHealth{}, fmt.Errorf("checking company %s: %w", id, err)
	}
	return res.Value, nil
}

// Watch runs Check on a fixed interval until ctx ends, pushing every
// aggregate to fn. The first check fires immediately.
func (s *Service) Watch(ctx context.Context, interval time.Duration, fn func(health.SystemHealth)) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(s.Check(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(s.Check(ctx))
		}
	}
}
