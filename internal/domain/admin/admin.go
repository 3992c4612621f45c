// Package admin holds the payloads of the destructive platform-wide
// operations and the console's composed diagnostics view.
package admin

import (
	"time"

	"github.com/parakeetlabs/perch/internal/domain/health"
)

// ResetReport is the platform's answer to a full system reset.
type ResetReport struct {
	ClearedConversations int `json:"cleared_conversations"`
	ClearedDocuments     int `json:"cleared_documents"`
}

// ReloadReport is the platform's answer to a company config reload.
type ReloadReport struct {
	Companies int `json:"companies"`
	Changed   int `json:"changed"`
}

// Diagnostics is the console's own composed view: the latest health
// aggregate plus client-side state. It is assembled locally, never
// fetched.
type Diagnostics struct {
	Health               health.SystemHealth `json:"health"`
	CacheEntries         int                 `json:"cache_entries"`
	ScheduleAvailability string              `json:"schedule_availability"`
	Uptime               time.Duration       `json:"uptime_ns"`
}
