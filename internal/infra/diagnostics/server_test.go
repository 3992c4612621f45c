package diagnostics_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parakeetlabs/perch/internal/domain/admin"
	healthDomain "github.com/parakeetlabs/perch/internal/domain/health"
	"github.com/parakeetlabs/perch/internal/infra/diagnostics"
)

type stubSource struct {
	diag admin.Diagnostics
	err  error
}

func (s stubSource) Diagnostics(context.Context) (admin.Diagnostics, error) {
	return s.diag, s.err
}

func newTestServer(t *testing.T, source diagnostics.DiagnosticsSource) (*diagnostics.Server, *httptest.Server) {
	t.Helper()
	srv := diagnostics.NewServer("127.0.0.1:0", source, nil)
	ts := httptest.NewServer(srv.Server().Handler)
	t.Cleanup(ts.Close)
	return srv, ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthEndpointBeforeFirstReport(t *testing.T) {
	_, ts := newTestServer(t, stubSource{})

	var body map[string]string
	code := getJSON(t, ts.URL+"/v1/health", &body)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unknown", body["status"])
}

func TestHealthEndpointFollowsAggregate(t *testing.T) {
	srv, ts := newTestServer(t, stubSource{})

	srv.Record(healthDomain.SystemHealth{
		Status: healthDomain.SystemHealthy,
		Services: []healthDomain.ServiceHealth{
			{Name: "platform-api", Critical: true, Status: healthDomain.StatusHealthy},
		},
	})
	var got healthDomain.SystemHealth
	code := getJSON(t, ts.URL+"/v1/health", &got)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, healthDomain.SystemHealthy, got.Status)
	require.Len(t, got.Services, 1)

	srv.Record(healthDomain.SystemHealth{Status: healthDomain.SystemPartial})
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/health", nil),
		"partial still answers 200, only critical trips the probe")

	srv.Record(healthDomain.SystemHealth{Status: healthDomain.SystemCritical})
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/v1/health", nil))
}

func TestDiagEndpoint(t *testing.T) {
	_, ts := newTestServer(t, stubSource{diag: admin.Diagnostics{
		Health:               healthDomain.SystemHealth{Status: healthDomain.SystemHealthy},
		CacheEntries:         3,
		ScheduleAvailability: "up",
		Uptime:               2 * time.Hour,
	}})

	var got admin.Diagnostics
	code := getJSON(t, ts.URL+"/v1/diag", &got)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, got.CacheEntries)
	assert.Equal(t, "up", got.ScheduleAvailability)
	assert.Equal(t, 2*time.Hour, got.Uptime)
}

func TestDiagEndpointSurfacesSourceFailure(t *testing.T) {
	_, ts := newTestServer(t, stubSource{err: assert.AnError})

	var body map[string]string
	code := getJSON(t, ts.URL+"/v1/diag", &body)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.NotEmpty(t, body["error"])
}

func TestRuntimeVisualizerMounted(t *testing.T) {
	_, ts := newTestServer(t, stubSource{})

	resp, err := http.Get(ts.URL + "/debug/statsviz/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEqual(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunStopsOnContextEnd(t *testing.T) {
	srv := diagnostics.NewServer("127.0.0.1:0", stubSource{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop after context end")
	}
}
