// Package session tracks which company the console is working on and
// fans the switch out to the features that cache per-company state.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/parakeetlabs/perch/internal/domain/company"
	"github.com/parakeetlabs/perch/pkg/common/logger"
)

// Common errors
var (
	// ErrNoActiveCompany means a tenant-scoped operation ran before any
	// company was selected.
	ErrNoActiveCompany = errors.New("no active company selected")
	// ErrStaleTenant means the active company changed while a call was
	// in flight; the result was dropped rather than applied to the
	// wrong tenant.
	ErrStaleTenant = errors.New("active company changed during call")
)

// Subscriber is invoked after the active company changes. Subscribers
// run sequentially in registration order; a failure or panic in one
// never stops the rest.
type Subscriber struct {
	Name   string
	Notify func(ctx context.Context, id company.ID) error
}

// SessionMetrics is the sink for switch activity, implemented in
// infra/metrics.
type SessionMetrics interface {
	IncSwitch(ctx context.Context)
	IncSubscriberFailure(ctx context.Context, name string)
}

type nopMetrics struct{}

func (nopMetrics) IncSwitch(context.Context)                    {}
func (nopMetrics) IncSubscriberFailure(context.Context, string) {}

// Session holds the single active company. At most one company is
// active at a time; callers read it at dispatch time rather than
// capturing it.
type Session struct {
	log     *logger.Logger
	metrics SessionMetrics

	// switchMu serializes switches end to end, subscribers included,
	// so two concurrent Selects cannot interleave their notifications.
	switchMu sync.Mutex

	mu     sync.RWMutex
	active company.ID
	subs   []Subscriber
}

// New builds an empty session; no company is active until Select.
func New(log *logger.Logger, metrics SessionMetrics) *Session {
	if log == nil {
		log = logger.Noop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Session{log: log.With("component", "session"), metrics: metrics}
}

// Active returns the current company, false when none is selected.
func (s *Session) Active() (company.ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.active != ""
}

// ActiveID implements the client's tenant source.
func (s *Session) ActiveID() (company.ID, bool) { return s.Active() }

// ActiveOrEmpty returns the current company or "".
func (s *Session) ActiveOrEmpty() company.ID {
	id, _ := s.Active()
	return id
}

// StillActive reports whether id is still the active company. Callers
// that snapshot the tenant before a platform call re-validate with this
// before applying the result; a stale result is dropped.
func (s *Session) StillActive(id company.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active == id
}

// Subscribe registers fn to run after every switch. Registration order
// is invocation order. A subscription made while a switch is being
// notified takes effect from the next switch.
func (s *Session) Subscribe(name string, fn func(ctx context.Context, id company.ID) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, Subscriber{Name: name, Notify: fn})
}

// Select makes id the active company and notifies subscribers. The
// switch holds even when subscribers fail; their errors go to the log
// and metrics only. Re-selecting the current company is a no-op with no
// notifications.
func (s *Session) Select(ctx context.Context, id company.ID) error {
	_, err := s.switchTo(ctx, id)
	return err
}

// SelectAndReport is Select plus the joined subscriber failures, for a
// UI that wants to render them as warnings. err non-nil means the
// switch itself was refused (invalid id); warnings never imply a
// rollback.
func (s *Session) SelectAndReport(ctx context.Context, id company.ID) (warnings error, err error) {
	return s.switchTo(ctx, id)
}

func (s *Session) switchTo(ctx context.Context, id company.ID) (error, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.mu.Lock()
	if s.active == id {
		s.mu.Unlock()
		return nil, nil
	}
	prev := s.active
	s.active = id
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	// The switch is committed from here on; nothing below rolls it back.
	s.metrics.IncSwitch(ctx)
	s.log.Info(ctx, "active company switched", "from", prev.String(), "to", id.String())

	var failures []error
	for _, sub := range subs {
		if nerr := notify(ctx, sub, id); nerr != nil {
			s.metrics.IncSubscriberFailure(ctx, sub.Name)
			s.log.Error(ctx, "subscriber refresh failed",
				"subscriber", sub.Name,
				"company_id", id.String(),
				"error", nerr.Error(),
			)
			failures = append(failures, fmt.Errorf("%s: %w", sub.Name, nerr))
		}
	}
	return errors.Join(failures...), nil
}

// notify runs one subscriber with panic isolation.
func notify(ctx context.Context, sub Subscriber, id company.ID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sub.Notify(ctx, id)
}
