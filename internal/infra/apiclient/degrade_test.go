package apiclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parakeetlabs/perch/internal/domain/schedule"
	"github.com/parakeetlabs/perch/internal/infra/apiclient"
)

// deadOrigin returns an origin nothing listens on anymore.
func deadOrigin(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	origin := srv.URL
	srv.Close()
	return origin
}

func slotsRequest(origin string) apiclient.Request {
	req := apiclient.Get(origin + "/schedule/available-slots")
	req.Fallback = &apiclient.FallbackSpec{
		Payload: []byte(`[]`),
		Reason:  "schedule service unreachable",
	}
	return req
}

func TestFragilePathDegradesOnTransportFailure(t *testing.T) {
	origin := deadOrigin(t)
	cfg := apiclient.Config{
		BaseURL:         "http://platform.internal",
		APIRoot:         "/api",
		FragilePrefixes: []string{origin},
	}
	client := apiclient.New(cfg, nil, nil, nil)

	assert.Equal(t, schedule.AvailabilityUnknown, client.ScheduleAvailability())

	res, err := client.Do(context.Background(), slotsRequest(origin))
	require.NoError(t, err, "a fragile transport failure is absorbed, not surfaced")

	assert.True(t, res.Degraded)
	assert.Equal(t, "schedule service unreachable", res.DegradedReason)
	assert.JSONEq(t, `[]`, string(res.Body))
	assert.Equal(t, schedule.AvailabilityDown, client.ScheduleAvailability())
}

func TestFragilePathPassesThroughPlatformAnswers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"boom"}`)
	}))
	defer srv.Close()

	cfg := apiclient.Config{
		BaseURL:         "http://platform.internal",
		APIRoot:         "/api",
		FragilePrefixes: []string{srv.URL},
	}
	client := apiclient.New(cfg, nil, nil, nil)

	_, err := client.Do(context.Background(), slotsRequest(srv.URL))

	require.Error(t, err, "an answering service is not degraded, whatever it said")
	assert.True(t, apiclient.IsHTTP(err))
	// It answered, so it is reachable.
	assert.Equal(t, schedule.AvailabilityUp, client.ScheduleAvailability())
}

func TestNonFragilePathNeverDegrades(t *testing.T) {
	origin := deadOrigin(t)
	cfg := apiclient.Config{BaseURL: "http://platform.internal", APIRoot: "/api"}
	client := apiclient.New(cfg, nil, nil, nil)

	_, err := client.Do(context.Background(), slotsRequest(origin))

	require.Error(t, err)
	assert.True(t, apiclient.IsNetwork(err))
	assert.Equal(t, schedule.AvailabilityUnknown, client.ScheduleAvailability(),
		"only fragile paths feed the availability flag")
}

func TestFallbackRequiredForDegradation(t *testing.T) {
	origin := deadOrigin(t)
	cfg := apiclient.Config{
		BaseURL:         "http://platform.internal",
		APIRoot:         "/api",
		FragilePrefixes: []string{origin},
	}
	client := apiclient.New(cfg, nil, nil, nil)

	req := apiclient.Get(origin + "/schedule/available-slots")
	_, err := client.Do(context.Background(), req)

	require.Error(t, err)
	assert.True(t, apiclient.IsNetwork(err))
	assert.Equal(t, schedule.AvailabilityDown, client.ScheduleAvailability())
}

func TestRootRelativeFragilePrefix(t *testing.T) {
	origin := deadOrigin(t)
	cfg := apiclient.Config{
		BaseURL:         origin,
		APIRoot:         "/api",
		FragilePrefixes: []string{"/health/schedule-service"},
	}
	client := apiclient.New(cfg, nil, nil, nil)

	req := apiclient.Get("/health/schedule-service")
	req.Fallback = &apiclient.FallbackSpec{Payload: []byte(`{"status":"unknown"}`), Reason: "probe skipped"}

	res, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, schedule.AvailabilityDown, client.ScheduleAvailability())
}

func TestAvailabilityRecoversOnSuccess(t *testing.T) {
	var reachable atomic.Bool
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !reachable.Load() {
			// Simulate the sidecar being away by hijacking and dropping.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		io.WriteString(w, `[]`)
	}))
	defer proxy.Close()

	cfg := apiclient.Config{
		BaseURL:         "http://platform.internal",
		APIRoot:         "/api",
		FragilePrefixes: []string{proxy.URL},
	}
	client := apiclient.New(cfg, nil, nil, nil)

	_, err := client.Do(context.Background(), slotsRequest(proxy.URL))
	require.NoError(t, err)
	assert.Equal(t, schedule.AvailabilityDown, client.ScheduleAvailability())

	reachable.Store(true)
	res, err := client.Do(context.Background(), slotsRequest(proxy.URL))
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, schedule.AvailabilityUp, client.ScheduleAvailability())
}

func TestCallCarriesDegradationMetadata(t *testing.T) {
	origin := deadOrigin(t)
	cfg := apiclient.Config{
		BaseURL:         "http://platform.internal",
		APIRoot:         "/api",
		FragilePrefixes: []string{origin},
	}
	client := apiclient.New(cfg, nil, nil, nil)

	res, err := apiclient.Call[[]schedule.Slot](context.Background(), client, slotsRequest(origin))
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, "schedule service unreachable", res.Reason)
	assert.Empty(t, res.Value)
}

func TestProbeScheduleUpdatesAvailability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	cfg := apiclient.Config{
		BaseURL:          "http://platform.internal",
		APIRoot:          "/api",
		ScheduleProbeURL: srv.URL + "/health",
		FragilePrefixes:  []string{srv.URL},
	}
	client := apiclient.New(cfg, nil, nil, nil)

	require.NoError(t, client.ProbeSchedule(context.Background()))
	assert.Equal(t, schedule.AvailabilityUp, client.ScheduleAvailability())
}
