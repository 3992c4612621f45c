// Package document administers a company's knowledge base: the
// documents its bot answers from, semantic search over them, and index
// cleanup.
package document

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/parakeetlabs/perch/internal/application/session"
	"github.com/parakeetlabs/perch/internal/domain/company"
	"github.com/parakeetlabs/perch/internal/domain/document"
	"github.com/parakeetlabs/perch/internal/infra/apiclient"
	"github.com/parakeetlabs/perch/internal/infra/statuscache"
	"github.com/parakeetlabs/perch/pkg/common/logger"
)

// DefaultUploadTimeout bounds document uploads, which carry whole files
// and routinely outlive the standard request timeout.
const DefaultUploadTimeout = 60 * time.Second

// Service wraps the knowledge-base endpoints. Every operation is
// tenant-scoped: it snapshots the active company on entry and drops the
// result if the operator switched away mid-call.
type Service struct {
	client        *apiclient.Client
	cache         *statuscache.Cache
	session       *session.Session
	uploadTimeout time.Duration
	log           *logger.Logger
	tracer        trace.Tracer
}

// NewService builds the document service.
func NewService(client *apiclient.Client, cache *statuscache.Cache, sess *session.Session, uploadTimeout time.Duration, log *logger.Logger, tracer trace.Tracer) *Service {
	if uploadTimeout <= 0 {
		uploadTimeout = DefaultUploadTimeout
	}
	if log == nil {
		log = logger.Noop()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Service{
		client:        client,
		cache:         cache,
		session:       sess,
		uploadTimeout: uploadTimeout,
		log:           log.With("component", "document"),
		tracer:        tracer,
	}
}

func (s *Service) snapshot() (company.ID, error) {
	id, ok := s.session.Active()
	if !ok {
		return "", session.ErrNoActiveCompany
	}
	return id, nil
}

// List returns the active company's documents.
func (s *Service) List(ctx context.Context) ([]document.Document, error) {
	tenant, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "document.List", trace.WithAttributes(
		attribute.String("company.id", tenant.String()),
	))
	defer span.End()

	res, err := apiclient.Call[[]document.Document](ctx, s.client, apiclient.Get("documents"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error listing documents")
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	if !s.session.StillActive(tenant) {
		return nil, session.ErrStaleTenant
	}
	span.SetAttributes(attribute.Int("document.count", len(res.Value)))
	return res.Value, nil
}

// Upload adds a document to the active company's knowledge base. Runs
// under the upload timeout, not the standard one.
func (s *Service) Upload(ctx context.Context, up document.Upload) (document.Document, error) {
	if err := up.Validate(); err != nil {
		return document.Document{}, err
	}
	tenant, err := s.snapshot()
	if err != nil {
		return document.Document{}, err
	}

	ctx, span := s.tracer.Start(ctx, "document.Upload", trace.WithAttributes(
		attribute.String("company.id", tenant.String()),
		attribute.String("document.name", up.Name),
	))
	defer span.End()

	req := apiclient.Post("documents", up)
	req.Timeout = s.uploadTimeout
	res, err := apiclient.Call[document.Document](ctx, s.client, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error uploading document")
		return document.Document{}, fmt.Errorf("uploading %s: %w", up.Name, err)
	}

	// The upload landed; the company's document count moved.
	s.cache.Invalidate("status", tenant)

	if !s.session.StillActive(tenant) {
		return document.Document{}, session.ErrStaleTenant
	}
	s.log.Info(ctx, "document uploaded", "company_id", tenant.String(), "document_id", res.Value.ID)
	return res.Value, nil
}

// Delete removes one document. A platform 404 maps to
// document.ErrNotFound.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return document.ErrNotFound
	}
	tenant, err := s.snapshot()
	if err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "document.Delete", trace.WithAttributes(
		attribute.String("company.id", tenant.String()),
		attribute.String("document.id", id),
	))
	defer span.End()

	if err := apiclient.CallNoContent(ctx, s.client, apiclient.Delete("documents/"+id)); err != nil {
		if status, ok := apiclient.HTTPStatus(err); ok && status == http.StatusNotFound {
			return fmt.Errorf("%s: %w", id, document.ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "error deleting document")
		return fmt.Errorf("deleting %s: %w", id, err)
	}

	s.cache.Invalidate("status", tenant)
	s.log.Info(ctx, "document deleted", "company_id", tenant.String(), "document_id", id)
	return nil
}

// Search runs a semantic query over the active company's documents.
// Read-only and idempotent, so it opts into the timeout retry policy.
func (s *Service) Search(ctx context.Context, q document.SearchQuery) ([]document.Match, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.TopK == 0 {
		q.TopK = document.DefaultTopK
	}
	tenant, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "document.Search", trace.WithAttributes(
		attribute.String("company.id", tenant.String()),
		attribute.Int("search.top_k", q.TopK),
	))
	defer span.End()

	req := apiclient.Post("documents/search", q)
	req.Retry = true
	res, err := apiclient.Call[[]document.Match](ctx, s.client, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error searching documents")
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	if !s.session.StillActive(tenant) {
		return nil, session.ErrStaleTenant
	}
	span.SetAttributes(attribute.Int("search.matches", len(res.Value)))
	return res.Value, nil
}

// Cleanup prunes orphaned chunks from the active company's index. The
// tenant's cache entries are dropped whatever happens to the report,
// since the platform-side state did change.
func (s *Service) Cleanup(ctx context.Context) (document.CleanupReport, error) {
	tenant, err := s.snapshot()
	if err != nil {
		return document.CleanupReport{}, err
	}

	ctx, span := s.tracer.Start(ctx, "document.Cleanup", trace.WithAttributes(
		attribute.String("company.id", tenant.String()),
	))
	defer span.End()

	res, err := apiclient.Call[document.CleanupReport](ctx, s.client, apiclient.Post("documents/cleanup", nil))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error cleaning up documents")
		return document.CleanupReport{}, fmt.Errorf("cleaning up documents: %w", err)
	}

	s.cache.InvalidateTenant(tenant)
	s.log.Info(ctx, "knowledge base cleaned",
		"company_id", tenant.String(),
		"removed", res.Value.Removed,
		"freed_bytes", res.Value.FreedBytes,
	)

	if !s.session.StillActive(tenant) {
		return document.CleanupReport{}, session.ErrStaleTenant
	}
	return res.Value, nil
}
