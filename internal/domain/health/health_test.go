package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReduce(t *testing.T) {
	tests := []struct {
		name     string
		services []ServiceHealth
		expected SystemStatus
	}{
		{
			name: "all healthy",
			services: []ServiceHealth{
				{Name: "platform-api", Critical: true, Status: StatusHealthy},
				{Name: "chat-pipeline", Critical: true, Status: StatusHealthy},
				{Name: "document-store", Status: StatusHealthy},
				{Name: "schedule-service", Status: StatusHealthy},
			},
			expected: SystemHealthy,
		},
		{
			name: "non-critical service down",
			services: []ServiceHealth{
				{Name: "platform-api", Critical: true, Status: StatusHealthy},
				{Name: "schedule-service", Status: StatusUnhealthy},
			},
			expected: SystemPartial,
		},
		{
			name: "critical service down",
			services: []ServiceHealth{
				{Name: "platform-api", Critical: true, Status: StatusUnhealthy},
				{Name: "schedule-service", Status: StatusHealthy},
			},
			expected: SystemCritical,
		},
		{
			name: "critical down outranks non-critical down",
			services: []ServiceHealth{
				{Name: "platform-api", Critical: true, Status: StatusUnhealthy},
				{Name: "schedule-service", Status: StatusUnhealthy},
			},
			expected: SystemCritical,
		},
		{
			name: "critical down listed after non-critical down",
			services: []ServiceHealth{
				{Name: "schedule-service", Status: StatusUnhealthy},
				{Name: "chat-pipeline", Critical: true, Status: StatusUnhealthy},
			},
			expected: SystemCritical,
		},
		{
			name: "unknown counts as unhealthy",
			services: []ServiceHealth{
				{Name: "platform-api", Critical: true, Status: StatusHealthy},
				{Name: "document-store", Status: StatusUnknown},
			},
			expected: SystemPartial,
		},
		{
			name: "unknown on critical service",
			services: []ServiceHealth{
				{Name: "platform-api", Critical: true, Status: StatusUnknown},
			},
			expected: SystemCritical,
		},
		{
			name:     "no services",
			services: nil,
			expected: SystemHealthy,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Reduce(tc.services)
			assert.Equal(t, tc.expected, got)
		})
	}
}
