// Package company is the console's view of the platform's tenants:
// listing, selection, and the cached per-company status and config
// reads.
package company

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/parakeetlabs/perch/internal/application/session"
	"github.com/parakeetlabs/perch/internal/domain/company"
	"github.com/parakeetlabs/perch/internal/infra/apiclient"
	"github.com/parakeetlabs/perch/internal/infra/statuscache"
	"github.com/parakeetlabs/perch/pkg/common/logger"
)

// Cache key kinds this service owns.
const (
	kindStatus = "status"
	kindConfig = "config"
)

// Service wraps the company endpoints.
type Service struct {
	client  *apiclient.Client
	cache   *statuscache.Cache
	session *session.Session
	log     *logger.Logger
	tracer  trace.Tracer
}

// NewService builds the company service.
func NewService(client *apiclient.Client, cache *statuscache.Cache, sess *session.Session, log *logger.Logger, tracer trace.Tracer) *Service {
	if log == nil {
		log = logger.Noop()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Service{
		client:  client,
		cache:   cache,
		session: sess,
		log:     log.With("component", "company"),
		tracer:  tracer,
	}
}

// List fetches every company the console may administer. Tenant-agnostic:
// the platform scopes the answer by operator credentials, not by the
// active company.
func (s *Service) List(ctx context.Context) ([]company.Company, error) {
	ctx, span := s.tracer.Start(ctx, "company.List")
	defer span.End()

	req := apiclient.Get("companies")
	req.TenantScoped = false
	res, err := apiclient.Call[[]company.Company](ctx, s.client, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error listing companies")
		return nil, fmt.Errorf("listing companies: %w", err)
	}
	span.SetAttributes(attribute.Int("company.count", len(res.Value)))
	return res.Value, nil
}

// Status returns the operational snapshot for id, served through the
// status cache. Meta tells the caller whether the answer was cached and
// whether it is stale.
func (s *Service) Status(ctx context.Context, id company.ID) (company.Status, statuscache.Meta, error) {
	if err := id.Validate(); err != nil {
		return company.Status{}, statuscache.Meta{}, err
	}

	ctx, span := s.tracer.Start(ctx, "company.Status", trace.WithAttributes(
		attribute.String("company.id", id.String()),
	))
	defer span.End()

	status, meta, err := statuscache.Fetch(ctx, s.cache, statuscache.Key{Kind: kindStatus, Tenant: id},
		func(ctx context.Context) (company.Status, error) {
			// Idempotent read on the dashboard's hottest path; a timeout
			// is worth a second attempt before falling back to stale data.
			req := apiclient.Get("status/" + id.String())
			req.Retry = true
			res, err := apiclient.Call[company.Status](ctx, s.client, req)
			if err != nil {
				return company.Status{}, err
			}
			return res.Value, nil
		})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error fetching status")
		return company.Status{}, meta, fmt.Errorf("fetching status for %s: %w", id, err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", meta.Hit), attribute.Bool("cache.stale", meta.Stale))
	return status, meta, nil
}

// Config returns the runtime configuration for id, cached like Status.
func (s *Service) Config(ctx context.Context, id company.ID) (company.RuntimeConfig, statuscache.Meta, error) {
	if err := id.Validate(); err != nil {
		return company.RuntimeConfig{}, statuscache.Meta{}, err
	}

	ctx, span := s.tracer.Start(ctx, "company.Config", trace.WithAttributes(
		attribute.String("company.id", id.String()),
	))
	defer span.End()

	cfg, meta, err := statuscache.Fetch(ctx, s.cache, statuscache.Key{Kind: kindConfig, Tenant: id},
		func(ctx context.Context) (company.RuntimeConfig, error) {
			res, err := apiclient.Call[company.RuntimeConfig](ctx, s.client, apiclient.Get("companies/"+id.String()+"/config"))
			if err != nil {
				return company.RuntimeConfig{}, err
			}
			return res.Value, nil
		})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error fetching config")
		return company.RuntimeConfig{}, meta, fmt.Errorf("fetching config for %s: %w", id, err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", meta.Hit), attribute.Bool("cache.stale", meta.Stale))
	return cfg, meta, nil
}

// Select validates id against the platform's company list and makes it
// the active company. Unknown ids are refused with company.ErrNotFound
// before the session is touched.
func (s *Service) Select(ctx context.Context, id company.ID) error {
	warnings, err := s.SelectAndReport(ctx, id)
	if warnings != nil {
		s.log.Warn(ctx, "company selected with subscriber warnings", "company_id", id.String(), "warnings", warnings.Error())
	}
	return err
}

// SelectAndReport is Select plus the joined subscriber warnings for the
// console UI.
func (s *Service) SelectAndReport(ctx context.Context, id company.ID) (warnings error, err error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "company.Select", trace.WithAttributes(
		attribute.String("company.id", id.String()),
	))
	defer span.End()

	companies, err := s.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error validating company")
		return nil, fmt.Errorf("validating company %s: %w", id, err)
	}

	known := false
	for _, c := range companies {
		if c.ID == id {
			known = true
			break
		}
	}
	if !known {
		span.RecordError(company.ErrNotFound)
		span.SetStatus(codes.Error, "company not found")
		return nil, fmt.Errorf("%s: %w", id, company.ErrNotFound)
	}

	warnings, err = s.session.SelectAndReport(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error switching company")
		return nil, err
	}
	span.SetStatus(codes.Ok, "company selected")
	return warnings, nil
}
