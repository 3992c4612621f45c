package company

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDValidate(t *testing.T) {
	tests := []struct {
		name    string
		id      ID
		wantErr bool
	}{
		{"simple slug", "acme", false},
		{"with digits and hyphen", "acme-42", false},
		{"with underscore", "acme_labs", false},
		{"empty", "", true},
		{"uppercase", "Acme", true},
		{"leading hyphen", "-acme", true},
		{"spaces", "acme corp", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.id.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidID)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPlanIsValid(t *testing.T) {
	tests := []struct {
		name     string
		plan     Plan
		expected bool
	}{
		{"trial", PlanTrial, true},
		{"starter", PlanStarter, true},
		{"pro", PlanPro, true},
		{"enterprise", PlanEnterprise, true},
		{"empty", Plan(""), false},
		{"unknown", Plan("platinum"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.plan.IsValid())
		})
	}
}
