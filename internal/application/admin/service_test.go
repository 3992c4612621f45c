package admin_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parakeetlabs/perch/internal/application/admin"
	"github.com/parakeetlabs/perch/internal/application/health"
	companyDomain "github.com/parakeetlabs/perch/internal/domain/company"
	healthDomain "github.com/parakeetlabs/perch/internal/domain/health"
	"github.com/parakeetlabs/perch/internal/infra/apiclient"
	"github.com/parakeetlabs/perch/internal/infra/statuscache"
	"github.com/parakeetlabs/perch/pkg/common/timeutil"
)

type fixture struct {
	svc   *admin.Service
	cache *statuscache.Cache
	clock *timeutil.Mock
}

func newFixture(t *testing.T, handler http.Handler) fixture {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	clock := timeutil.NewMock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	cache := statuscache.New(5*time.Minute, clock, nil, nil)
	client := apiclient.New(apiclient.Config{BaseURL: srv.URL, APIRoot: "/api"}, nil, nil, nil)
	healthSvc := health.NewService(client, []health.Target{
		{Name: "platform-api", Path: "/health", Critical: true},
	}, clock, nil, nil, nil)

	return fixture{
		svc:   admin.NewService(client, cache, healthSvc, clock, nil, nil),
		cache: cache,
		clock: clock,
	}
}

func seed(t *testing.T, cache *statuscache.Cache, kind string, tenant companyDomain.ID) {
	t.Helper()
	_, _, err := statuscache.Fetch(context.Background(), cache, statuscache.Key{Kind: kind, Tenant: tenant},
		func(context.Context) (string, error) { return "seeded", nil })
	require.NoError(t, err)
}

func TestResetSystemFlushesCache(t *testing.T) {
	var gotMethod, gotCompany string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/system/reset", func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCompany = r.Header.Get(apiclient.HeaderCompanyID)
		io.WriteString(w, `{"cleared_conversations":120,"cleared_documents":48}`)
	})

	f := newFixture(t, mux)
	seed(t, f.cache, "status", "acme")
	seed(t, f.cache, "config", "globex")
	require.Equal(t, 2, f.cache.Len())

	report, err := f.svc.ResetSystem(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Empty(t, gotCompany, "reset acts on the whole platform, never one company")
	assert.Equal(t, 120, report.ClearedConversations)
	assert.Equal(t, 48, report.ClearedDocuments)
	assert.Zero(t, f.cache.Len(), "everything cached describes pre-reset state")
}

func TestResetSystemKeepsCacheOnFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/system/reset", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	f := newFixture(t, mux)
	seed(t, f.cache, "status", "acme")

	_, err := f.svc.ResetSystem(context.Background())
	require.Error(t, err)
	assert.True(t, apiclient.IsHTTP(err))
	assert.Equal(t, 1, f.cache.Len(), "a failed reset changed nothing, so the cache stays")
}

func TestReloadCompaniesDropsConfigEntriesOnly(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/companies/reload-config", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"companies":7,"changed":2}`)
	})

	f := newFixture(t, mux)
	seed(t, f.cache, "status", "acme")
	seed(t, f.cache, "config", "acme")
	seed(t, f.cache, "config", "globex")

	report, err := f.svc.ReloadCompanies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, report.Companies)
	assert.Equal(t, 2, report.Changed)
	assert.Equal(t, 1, f.cache.Len())

	// The survivor is the status entry: a fetch finds it fresh and never
	// calls through.
	v, meta, err := statuscache.Fetch(context.Background(), f.cache, statuscache.Key{Kind: "status", Tenant: "acme"},
		func(context.Context) (string, error) { return "", assert.AnError })
	require.NoError(t, err)
	assert.True(t, meta.Hit)
	assert.Equal(t, "seeded", v)
}

func TestDiagnosticsComposesConsoleState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"ok"}`)
	})

	f := newFixture(t, mux)
	seed(t, f.cache, "status", "acme")
	seed(t, f.cache, "status", "globex")
	f.clock.Advance(90 * time.Minute)

	diag, err := f.svc.Diagnostics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, healthDomain.SystemHealthy, diag.Health.Status)
	require.Len(t, diag.Health.Services, 1)
	assert.Equal(t, 2, diag.CacheEntries)
	assert.Equal(t, "unknown", diag.ScheduleAvailability)
	assert.Equal(t, 90*time.Minute, diag.Uptime)
}

func TestDiagnosticsSurvivesPlatformOutage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	f := newFixture(t, mux)

	diag, err := f.svc.Diagnostics(context.Background())
	require.NoError(t, err, "diagnostics report outages, they do not become one")
	assert.Equal(t, healthDomain.SystemCritical, diag.Health.Status)
}
