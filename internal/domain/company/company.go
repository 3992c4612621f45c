// Package company holds the tenant-side domain types for the Parakeet
// platform. Every company is one paying customer; the active company
// scopes almost every call the console makes.
package company

import (
	"errors"
	"regexp"
	"time"
)

// Common errors
var (
	ErrNotFound  = errors.New("company not found")
	ErrInvalidID = errors.New("invalid company id")
)

// ID identifies a company across the platform. It travels in the
// X-Company-ID header on every tenant-scoped request.
type ID string

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate checks the id against the platform's slug rules.
func (id ID) Validate() error {
	if id == "" || !idPattern.MatchString(string(id)) {
		return ErrInvalidID
	}
	return nil
}

func (id ID) String() string { return string(id) }

// Plan represents a company's subscription plan
type Plan string

// Predefined subscription plans
const (
	PlanTrial      Plan = "trial"
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// IsValid checks if the plan is one of the known plans.
func (p Plan) IsValid() bool {
	switch p {
	case PlanTrial, PlanStarter, PlanPro, PlanEnterprise:
		return true
	default:
		return false
	}
}

func (p Plan) String() string { return string(p) }

// Company represents a customer tenant as the platform reports it.
type Company struct {
	ID        ID        `json:"id" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Plan      Plan      `json:"plan"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Status is the operational snapshot the admin status endpoint returns
// for one company. It is the payload the status cache holds.
type Status struct {
	CompanyID          ID        `json:"company_id" validate:"required"`
	Plan               Plan      `json:"plan"`
	DocumentCount      int       `json:"document_count"`
	ConversationsToday int       `json:"conversations_today"`
	IndexedAt          time.Time `json:"indexed_at"`
	Flags              []string  `json:"flags,omitempty"`
}

// Limits carries the per-company quota settings.
type Limits struct {
	MaxDocuments    int `json:"max_documents"`
	MaxTokensPerDay int `json:"max_tokens_per_day"`
	MaxSessions     int `json:"max_sessions"`
}

/// RuntimeConfig is the per-company runtime configuration: feature
// switches plus quota limits. Cached alongside Status.
type RuntimeConfig struct {
	CompanyID ID              `json:"company_id" validate:"required"`
	Features  map[string]bool `json:"features"`
	Limits    Limits          `json:"limits"`
}
