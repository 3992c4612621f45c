package document_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parakeetlabs/perch/internal/application/document"
	"github.com/parakeetlabs/perch/internal/application/session"
	companyDomain "github.com/parakeetlabs/perch/internal/domain/company"
	documentDomain "github.com/parakeetlabs/perch/internal/domain/document"
	"github.com/parakeetlabs/perch/internal/infra/apiclient"
	"github.com/parakeetlabs/perch/internal/infra/statuscache"
	"github.com/parakeetlabs/perch/pkg/common/timeutil"
)

type fixture struct {
	svc     *document.Service
	session *session.Session
	cache   *statuscache.Cache
}

func newFixture(t *testing.T, handler http.Handler) *fixture {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sess := session.New(nil, nil)
	cache := statuscache.New(5*time.Minute, timeutil.NewMock(time.Now()), nil, nil)
	client := apiclient.New(apiclient.Config{BaseURL: srv.URL, APIRoot: "/api"}, sess, nil, nil)

	return &fixture{
		svc:     document.NewService(client, cache, sess, 0, nil, nil),
		session: sess,
		cache:   cache,
	}
}

// seedStatus plants a cached status entry for tenant so invalidation is
// observable.
func seedStatus(t *testing.T, cache *statuscache.Cache, tenant companyDomain.ID) {
	t.Helper()
	_, _, err := statuscache.Fetch(context.Background(), cache,
		statuscache.Key{Kind: "status", Tenant: tenant},
		func(ctx context.Context) (string, error) { return "cached", nil })
	require.NoError(t, err)
}

func TestListRequiresActiveCompany(t *testing.T) {
	f := newFixture(t, http.NewServeMux())

	_, err := f.svc.List(context.Background())
	assert.ErrorIs(t, err, session.ErrNoActiveCompany)
}

func TestListScopesToActiveCompany(t *testing.T) {
	var gotCompany string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/documents", func(w http.ResponseWriter, r *http.Request) {
		gotCompany = r.Header.Get(apiclient.HeaderCompanyID)
		io.WriteString(w, `[{"id":"doc-1","name":"faq.md","content_type":"text/markdown","size_bytes":2048,"indexed":true}]`)
	})

	f := newFixture(t, mux)
	require.NoError(t, f.session.Select(context.Background(), "acme"))

	docs, err := f.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1", docs[0].ID)
	assert.Equal(t, "acme", gotCompany)
}

func TestListDropsResultAfterSwitch(t *testing.T) {
	var sess *session.Session
	mux := http.NewServeMux()
	mux.HandleFunc("/api/documents", func(w http.ResponseWriter, r *http.Request) {
		// The operator switches away while the platform is answering.
		require.NoError(t, sess.Select(r.Context(), "globex"))
		io.WriteString(w, `[]`)
	})

	f := newFixture(t, mux)
	sess = f.session
	require.NoError(t, f.session.Select(context.Background(), "acme"))

	_, err := f.svc.List(context.Background())
	assert.ErrorIs(t, err, session.ErrStaleTenant)
}

func TestUploadValidatesAndInvalidatesStatus(t *testing.T) {
	var gotBody documentDomain.Upload
	mux := http.NewServeMux()
	mux.HandleFunc("/api/documents", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		io.WriteString(w, `{"id":"doc-9","name":"manual.pdf","content_type":"application/pdf","size_bytes":1,"indexed":false}`)
	})

	f := newFixture(t, mux)
	require.NoError(t, f.session.Select(context.Background(), "acme"))
	seedStatus(t, f.cache, "acme")
	require.Equal(t, 1, f.cache.Len())

	_, err := f.svc.Upload(context.Background(), documentDomain.Upload{})
	assert.ErrorIs(t, err, documentDomain.ErrEmptyUpload)

	doc, err := f.svc.Upload(context.Background(), documentDomain.Upload{
		Name:        "manual.pdf",
		Content:     "JVBERi0xLjQ=",
		ContentType: "application/pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-9", doc.ID)
	assert.Equal(t, "manual.pdf", gotBody.Name)
	assert.Equal(t, 0, f.cache.Len(), "the cached status is outdated once the upload lands")
}

func TestDeleteMapsNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/documents/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/documents/doc-1" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"no such document"}`)
	})

	f := newFixture(t, mux)
	require.NoError(t, f.session.Select(context.Background(), "acme"))

	require.NoError(t, f.svc.Delete(context.Background(), "doc-1"))

	err := f.svc.Delete(context.Background(), "ghost")
	assert.ErrorIs(t, err, documentDomain.ErrNotFound)

	err = f.svc.Delete(context.Background(), "")
	assert.ErrorIs(t, err, documentDomain.ErrNotFound)
}

func TestSearchAppliesDefaultTopK(t *testing.T) {
	var gotQuery documentDomain.SearchQuery
	mux := http.NewServeMux()
	mux.HandleFunc("/api/documents/search", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotQuery))
		io.WriteString(w, `[{"document":{"id":"doc-1","name":"faq.md"},"score":0.92,"snippet":"refunds are processed"}]`)
	})

	f := newFixture(t, mux)
	require.NoError(t, f.session.Select(context.Background(), "acme"))

	matches, err := f.svc.Search(context.Background(), documentDomain.SearchQuery{Query: "refund policy"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, documentDomain.DefaultTopK, gotQuery.TopK)
	assert.InDelta(t, 0.92, matches[0].Score, 1e-9)

	_, err = f.svc.Search(context.Background(), documentDomain.SearchQuery{})
	assert.ErrorIs(t, err, documentDomain.ErrInvalidQuery)

	_, err = f.svc.Search(context.Background(), documentDomain.SearchQuery{Query: "x", TopK: 500})
	assert.ErrorIs(t, err, documentDomain.ErrInvalidQuery)
}

func TestCleanupInvalidatesTenantEntries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/documents/cleanup", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"removed":17,"freed_bytes":65536}`)
	})

	f := newFixture(t, mux)
	require.NoError(t, f.session.Select(context.Background(), "acme"))
	seedStatus(t, f.cache, "acme")
	seedStatus(t, f.cache, "globex")
	require.Equal(t, 2, f.cache.Len())

	report, err := f.svc.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 17, report.Removed)
	assert.Equal(t, int64(65536), report.FreedBytes)
	assert.Equal(t, 1, f.cache.Len(), "only the active company's entries are dropped")
}
