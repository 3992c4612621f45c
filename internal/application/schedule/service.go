// Package schedule wraps the scheduling sidecar, the one integration
// the console must keep working around. Every call here is degradable:
// when the service is unreachable the console gets a usable default, not
// an error.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/parakeetlabs/perch/internal/application/session"
	"github.com/parakeetlabs/perch/internal/domain/company"
	"github.com/parakeetlabs/perch/internal/domain/schedule"
	"github.com/parakeetlabs/perch/internal/infra/apiclient"
	"github.com/parakeetlabs/perch/pkg/common/logger"
)

// unavailableReason is what degraded schedule results carry.
const unavailableReason = "scheduling service unavailable"

// Service wraps the scheduling endpoints.
type Service struct {
	client  *apiclient.Client
	session *session.Session
	base    string
	log     *logger.Logger
	tracer  trace.Tracer
}

// NewService builds the schedule service. scheduleURL is the sidecar
// origin; empty means the platform proxies it and root-relative paths
// are used instead.
func NewService(client *apiclient.Client, sess *session.Session, scheduleURL string, log *logger.Logger, tracer trace.Tracer) *Service {
	if log == nil {
		log = logger.Noop()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Service{
		client:  client,
		session: sess,
		base:    strings.TrimRight(scheduleURL, "/"),
		log:     log.With("component", "schedule"),
		tracer:  tracer,
	}
}

// path builds a sidecar path: absolute when a schedule origin is
// configured, root-relative (proxied) otherwise.
func (s *Service) path(p string) string {
	return s.base + p
}

func (s *Service) snapshot() (company.ID, error) {
	id, ok := s.session.Active()
	if !ok {
		return "", session.ErrNoActiveCompany
	}
	return id, nil
}

// Slots lists the bookable agent-handoff windows for day (YYYY-MM-DD;
// empty means today, decided by the service). Degrades to an empty list
// when the sidecar is away — check Result.Degraded before telling the
// operator there is nothing free.
func (s *Service) Slots(ctx context.Context, day string) (apiclient.Result[[]schedule.Slot], error) {
	tenant, err := s.snapshot()
	if err != nil {
		return apiclient.Result[[]schedule.Slot]{}, err
	}

	ctx, span := s.tracer.Start(ctx, "schedule.Slots", trace.WithAttributes(
		attribute.String("company.id", tenant.String()),
	))
	defer span.End()

	req := apiclient.Get(s.path("/schedule/available-slots"))
	if day != "" {
		req.Query = url.Values{"date": {day}}
	}
	req.Fallback = &apiclient.FallbackSpec{Payload: []byte(`[]`), Reason: unavailableReason}

	res, err := apiclient.Call[[]schedule.Slot](ctx, s.client, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error listing slots")
		return apiclient.Result[[]schedule.Slot]{}, fmt.Errorf("listing slots: %w", err)
	}
	if !s.session.StillActive(tenant) {
		return apiclient.Result[[]schedule.Slot]{}, session.ErrStaleTenant
	}
	span.SetAttributes(
		attribute.Int("schedule.slots", len(res.Value)),
		attribute.Bool("schedule.degraded", res.Degraded),
	)
	return res, nil
}

// Book reserves a slot. The request carries an idempotency key so a
// timeout-and-retry on the platform side cannot double-book; callers may
// supply their own, otherwise one is generated. When the sidecar is away
// the result is a deferred booking, not an error.
func (s *Service) Book(ctx context.Context, breq schedule.BookingRequest) (apiclient.Result[schedule.Booking], error) {
	if err := breq.Validate(); err != nil {
		return apiclient.Result[schedule.Booking]{}, err
	}
	tenant, err := s.snapshot()
	if err != nil {
		return apiclient.Result[schedule.Booking]{}, err
	}
	if breq.IdempotencyKey == "" {
		breq.IdempotencyKey = uuid.New().String()
	}

	ctx, span := s.tracer.Start(ctx, "schedule.Book", trace.WithAttributes(
		attribute.String("company.id", tenant.String()),
		attribute.String("schedule.slot_id", breq.SlotID),
	))
	defer span.End()

	deferred, err := json.Marshal(schedule.Deferred(breq.SlotID))
	if err != nil {
		return apiclient.Result[schedule.Booking]{}, fmt.Errorf("encoding fallback booking: %w", err)
	}

	req := apiclient.Post(s.path("/schedule/book"), breq)
	req.Fallback = &apiclient.FallbackSpec{Payload: deferred, Reason: unavailableReason}

	res, err := apiclient.Call[schedule.Booking](ctx, s.client, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error booking slot")
		return apiclient.Result[schedule.Booking]{}, fmt.Errorf("booking slot %s: %w", breq.SlotID, err)
	}
	if !s.session.StillActive(tenant) {
		return apiclient.Result[schedule.Booking]{}, session.ErrStaleTenant
	}

	if res.Degraded {
		s.log.Warn(ctx, "booking deferred, scheduling service unavailable",
			"company_id", tenant.String(),
			"slot_id", breq.SlotID,
		)
	} else {
		s.log.Info(ctx, "slot booked",
			"company_id", tenant.String(),
			"slot_id", breq.SlotID,
			"booking_id", res.Value.ID,
			"status", string(res.Value.Status),
		)
	}
	return res, nil
}

// Availability reports the sidecar's last known reachability. Advisory:
// the next call always tries regardless.
func (s *Service) Availability() schedule.Availability {
	return s.client.ScheduleAvailability()
}
