// Package admin carries the destructive platform-wide operations and
// the console's composed diagnostics view. Nothing here is
// tenant-scoped; these act on the whole platform.
package admin

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/parakeetlabs/perch/internal/application/health"
	"github.com/parakeetlabs/perch/internal/domain/admin"
	"github.com/parakeetlabs/perch/internal/infra/apiclient"
	"github.com/parakeetlabs/perch/internal/infra/statuscache"
	"github.com/parakeetlabs/perch/pkg/common/logger"
	"github.com/parakeetlabs/perch/pkg/common/timeutil"
)

// Service wraps the admin endpoints.
type Service struct {
	client    *apiclient.Client
	cache     *statuscache.Cache
	health    *health.Service
	clock     timeutil.Provider
	startedAt time.Time
	log       *logger.Logger
	tracer    trace.Tracer
}

// NewService builds the admin service. startedAt is captured now for the
// uptime figure in diagnostics.
func NewService(client *apiclient.Client, cache *statuscache.Cache, healthSvc *health.Service, clock timeutil.Provider, log *logger.Logger, tracer trace.Tracer) *Service {
	if clock == nil {
		clock = timeutil.Default()
	}
	if log == nil {
		log = logger.Noop()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Service{
		client:    client,
		cache:     cache,
		health:    healthSvc,
		clock:     clock,
		startedAt: clock.Now(),
		log:       log.With("component", "admin"),
		tracer:    tracer,
	}
}

// ResetSystem wipes the platform's conversations and document indexes
// across every company. On success the whole status cache is flushed;
// everything it held describes a world that no longer exists.
func (s *Service) ResetSystem(ctx context.Context) (admin.ResetReport, error) {
	ctx, span := s.tracer.Start(ctx, "admin.ResetSystem")
	defer span.End()

	req := apiclient.Post("admin/system/reset", nil)
	req.TenantScoped = false
	res, err := apiclient.Call[admin.ResetReport](ctx, s.client, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error resetting system")
		return admin.ResetReport{}, fmt.Errorf("resetting system: %w", err)
	}

	s.cache.Reset()
	s.log.Warn(ctx, "system reset executed",
		"cleared_conversations", res.Value.ClearedConversations,
		"cleared_documents", res.Value.ClearedDocuments,
	)
	span.SetStatus(codes.Ok, "system reset")
	return res.Value, nil
}

// ReloadCompanies tells the platform to re-read every company's
// configuration. Cached config entries are dropped for all tenants on
// success.
func (s *Service) ReloadCompanies(ctx context.Context) (admin.ReloadReport, error) {
	ctx, span := s.tracer.Start(ctx, "admin.ReloadCompanies")
	defer span.End()

	req := apiclient.Post("admin/companies/reload-config", nil)
	req.TenantScoped = false
	res, err := apiclient.Call[admin.ReloadReport](ctx, s.client, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error reloading companies")
		return admin.ReloadReport{}, fmt.Errorf("reloading companies: %w", err)
	}

	s.cache.InvalidateKind("config")
	s.log.Info(ctx, "company configs reloaded",
		"companies", res.Value.Companies,
		"changed", res.Value.Changed,
	)
	return res.Value, nil
}

// Diagnostics assembles the console's composed view: a fresh health
// aggregate plus client-side state. The error return is reserved; the
// composition itself cannot fail.
func (s *Service) Diagnostics(ctx context.Context) (admin.Diagnostics, error) {
	ctx, span := s.tracer.Start(ctx, "admin.Diagnostics")
	defer span.End()

	system := s.health.Check(ctx)
	diag := admin.Diagnostics{
		Health:               system,
		CacheEntries:         s.cache.Len(),
		ScheduleAvailability: s.client.ScheduleAvailability().String(),
		Uptime:               s.clock.Since(s.startedAt),
	}
	span.SetAttributes(attribute.String("health.status", string(system.Status)))
	return diag, nil
}
