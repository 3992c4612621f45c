// Package conversation lets an operator exercise a company's bot end to
// end: text chat plus the voice and vision pipelines.
package conversation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/parakeetlabs/perch/internal/application/session"
	"github.com/parakeetlabs/perch/internal/domain/company"
	"github.com/parakeetlabs/perch/internal/domain/conversation"
	"github.com/parakeetlabs/perch/internal/infra/apiclient"
	"github.com/parakeetlabs/perch/pkg/common/logger"
)

// Service wraps the chat and multimedia endpoints. All calls are
// tenant-scoped with the snapshot/re-validate pattern: a reply that
// arrives after the operator switched companies is dropped.
type Service struct {
	client        *apiclient.Client
	session       *session.Session
	uploadTimeout time.Duration
	log           *logger.Logger
	tracer        trace.Tracer
}

// NewService builds the conversation service. uploadTimeout bounds the
// multimedia calls; zero falls back to 60s.
func NewService(client *apiclient.Client, sess *session.Session, uploadTimeout time.Duration, log *logger.Logger, tracer trace.Tracer) *Service {
	if uploadTimeout <= 0 {
		uploadTimeout = 60 * time.Second
	}
	if log == nil {
		log = logger.Noop()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Service{
		client:        client,
		session:       sess,
		uploadTimeout: uploadTimeout,
		log:           log.With("component", "conversation"),
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

// Send posts one chat turn to the active company's bot. A reply without
// text is a protocol failure, never an empty success.
func (s *Service) Send(ctx context.Context, msg conversation.Message) (conversation.Reply, error) {
	if err := msg.Validate(); err != nil {
		return conversation.Reply{}, err
	}
	tenant, err := s.snapshot()
	if err != nil {
		return conversation.Reply{}, err
	}

	ctx, span := s.tracer.Start(ctx, "conversation.Send", trace.WithAttributes(
		attribute.String("company.id", tenant.String()),
	))
	defer span.End()

	res, err := apiclient.Call[conversation.Reply](ctx, s.client, apiclient.Post("chat", msg))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error sending message")
		return conversation.Reply{}, fmt.Errorf("sending message: %w", err)
	}
	if !s.session.StillActive(tenant) {
		return conversation.Reply{}, session.ErrStaleTenant
	}
	span.SetAttributes(attribute.Int64("chat.latency_ms", res.Value.LatencyMS))
	return res.Value, nil
}

// Transcribe runs a voice clip through the company's voice pipeline.
// Uses the upload timeout; audio payloads are slow to move and slower to
// transcribe.
func (s *Service) Transcribe(ctx context.Context, in conversation.VoiceInput) (conversation.VoiceResult, error) {
	if err := in.Validate(); err != nil {
		return conversation.VoiceResult{}, err
	}
	tenant, err := s.snapshot()
	if err != nil {
		return conversation.VoiceResult{}, err
	}

	ctx, span := s.tracer.Start(ctx, "conversation.Transcribe", trace.WithAttributes(
		attribute.String("company.id", tenant.String()),
		attribute.String("audio.format", string(in.Format)),
	))
	defer span.End()

	req := apiclient.Post("multimedia/process-voice", in)
	req.Timeout = s.uploadTimeout
	res, err := apiclient.Call[conversation.VoiceResult](ctx, s.client, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error processing voice")
		return conversation.VoiceResult{}, fmt.Errorf("processing voice: %w", err)
	}
	if !s.session.StillActive(tenant) {
		return conversation.VoiceResult{}, session.ErrStaleTenant
	}
	return res.Value, nil
}

// Describe runs an image through the company's vision pipeline.
func (s *Service) Describe(ctx context.Context, in conversation.ImageInput) (conversation.ImageResult, error) {
	if err := in.Validate(); err != nil {
		return conversation.ImageResult{}, err
	}
	tenant, err := s.snapshot()
	if err != nil {
		return conversation.ImageResult{}, err
	}

	ctx, span := s.tracer.Start(ctx, "conversation.Describe", trace.WithAttributes(
		attribute.String("company.id", tenant.String()),
	))
	defer span.End()

	req := apiclient.Post("multimedia/process-image", in)
	req.Timeout = s.uploadTimeout
	res, err := apiclient.Call[conversation.ImageResult](ctx, s.client, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error processing image")
		return conversation.ImageResult{}, fmt.Errorf("processing image: %w", err)
	}
	if !s.session.StillActive(tenant) {
		return conversation.ImageResult{}, session.ErrStaleTenant
	}
	return res.Value, nil
}
