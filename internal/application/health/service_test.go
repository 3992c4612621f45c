package health_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parakeetlabs/perch/internal/application/health"
	healthDomain "github.com/parakeetlabs/perch/internal/domain/health"
	"github.com/parakeetlabs/perch/internal/infra/apiclient"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, payload string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(payload)),
	}
}

// probeClient builds a client whose transport answers per path.
func probeClient(answers map[string]func() (*http.Response, error)) *apiclient.Client {
	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if answer, ok := answers[r.URL.Path]; ok {
			return answer()
		}
		return jsonResponse(http.StatusOK, `{"status":"ok"}`), nil
	})
	cfg := apiclient.Config{
		BaseURL:         "http://platform.internal",
		APIRoot:         "/api",
		FragilePrefixes: []string{"/health/schedule-service"},
	}
	return apiclient.New(cfg, nil, nil, nil, apiclient.WithHTTPClient(&http.Client{Transport: transport}))
}

func targetNames(services []healthDomain.ServiceHealth) []string {
	names := make([]string, len(services))
	for i, s := range services {
		names[i] = s.Name
	}
	return names
}

func TestCheckAllHealthy(t *testing.T) {
	svc := health.NewService(probeClient(nil), nil, nil, nil, nil, nil)

	got := svc.Check(context.Background())

	assert.Equal(t, healthDomain.SystemHealthy, got.Status)
	assert.Equal(t,
		[]string{"platform-api", "chat-pipeline", "document-store", "schedule-service"},
		targetNames(got.Services),
		"results keep target order whatever finishes first")
	for _, s := range got.Services {
		assert.Equal(t, healthDomain.StatusHealthy, s.Status, s.Name)
	}
}

func TestCheckCriticalFailureIsCritical(t *testing.T) {
	client := probeClient(map[string]func() (*http.Response, error){
		"/health": func() (*http.Response, error) {
			return jsonResponse(http.StatusInternalServerError, `{"error":"db gone"}`), nil
		},
	})
	svc := health.NewService(client, nil, nil, nil, nil, nil)

	got := svc.Check(context.Background())

	assert.Equal(t, healthDomain.SystemCritical, got.Status)
	assert.Equal(t, healthDomain.StatusUnhealthy, got.Services[0].Status)
	assert.NotEmpty(t, got.Services[0].Detail)
}

func TestCheckNonCriticalFailureIsPartial(t *testing.T) {
	client := probeClient(map[string]func() (*http.Response, error){
		"/api/health/documents": func() (*http.Response, error) {
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		},
	})
	svc := health.NewService(client, nil, nil, nil, nil, nil)

	got := svc.Check(context.Background())

	assert.Equal(t, healthDomain.SystemPartial, got.Status)
}

func TestCheckUnhealthyPayloadCountsAgainstService(t *testing.T) {
	client := probeClient(map[string]func() (*http.Response, error){
		"/api/health/chat": func() (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"status":"degraded","detail":"queue backed up"}`), nil
		},
	})
	svc := health.NewService(client, nil, nil, nil, nil, nil)

	got := svc.Check(context.Background())

	assert.Equal(t, healthDomain.SystemCritical, got.Status, "the chat pipeline is critical")
	assert.Equal(t, "degraded: queue backed up", got.Services[1].Detail)
}

func TestCheckDegradedScheduleProbe(t *testing.T) {
	client := probeClient(map[string]func() (*http.Response, error){
		"/health/schedule-service": func() (*http.Response, error) {
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		},
	})
	svc := health.NewService(client, nil, nil, nil, nil, nil)

	got := svc.Check(context.Background())

	assert.Equal(t, healthDomain.SystemPartial, got.Status, "the schedule sidecar is not critical")

	sched := got.Services[3]
	assert.Equal(t, healthDomain.StatusUnhealthy, sched.Status)
	assert.Equal(t, "scheduling service unreachable", sched.Detail)
}

func TestCheckCompany(t *testing.T) {
	client := probeClient(map[string]func() (*http.Response, error){
		"/api/health/company/acme": func() (*http.Response, error) {
			return jsonResponse(http.StatusOK,
				`{"company_id":"acme","status":"healthy","components":[{"name":"index","status":"healthy"}]}`), nil
		},
		"/api/health/company/ghost": func() (*http.Response, error) {
			return jsonResponse(http.StatusNotFound, `{"error":"unknown company"}`), nil
		},
	})
	svc := health.NewService(client, nil, nil, nil, nil, nil)

	got, err := svc.CheckCompany(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.CompanyID)
	require.Len(t, got.Components, 1)

	_, err = svc.CheckCompany(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, apiclient.IsHTTP(err))

	_, err = svc.CheckCompany(context.Background(), "")
	require.Error(t, err)
}

func TestWatchChecksOnInterval(t *testing.T) {
	synctest.Run(func() {
		svc := health.NewService(probeClient(nil), nil, nil, nil, nil, nil)

		ctx, cancel := context.WithCancel(context.Background())
		var checks atomic.Int32
		done := make(chan struct{})
		go func() {
			defer close(done)
			svc.Watch(ctx, time.Minute, func(healthDomain.SystemHealth) {
				checks.Add(1)
			})
		}()

		// The first check is immediate; two more ticks land inside the
		// window.
		time.Sleep(2*time.Minute + time.Second)
		cancel()
		<-done

		assert.Equal(t, int32(3), checks.Load())
	})
}
