package schedule_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parakeetlabs/perch/internal/application/schedule"
	"github.com/parakeetlabs/perch/internal/application/session"
	scheduleDomain "github.com/parakeetlabs/perch/internal/domain/schedule"
	"github.com/parakeetlabs/perch/internal/infra/apiclient"
)

const slotsPayload = `[
	{"id":"slot-1","start":"2026-09-01T09:00:00Z","end":"2026-09-01T09:30:00Z","agent":"maria"},
	{"id":"slot-2","start":"2026-09-01T10:00:00Z","end":"2026-09-01T10:30:00Z"}
]`

// newProxied wires the service in proxied mode: no sidecar origin, so
// root-relative schedule paths hit the platform directly.
func newProxied(t *testing.T, handler http.Handler) (*schedule.Service, *session.Session) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sess := session.New(nil, nil)
	client := apiclient.New(apiclient.Config{
		BaseURL:         srv.URL,
		APIRoot:         "/api",
		FragilePrefixes: []string{"/schedule"},
	}, sess, nil, nil)
	return schedule.NewService(client, sess, "", nil, nil), sess
}

// newUnreachable wires the service against a sidecar origin nothing
// listens on.
func newUnreachable(t *testing.T) (*schedule.Service, *session.Session, *apiclient.Client) {
	t.Helper()
	srv := httptest.NewServer(http.NewServeMux())
	origin := srv.URL
	srv.Close()

	sess := session.New(nil, nil)
	client := apiclient.New(apiclient.Config{
		BaseURL:         "http://platform.internal",
		APIRoot:         "/api",
		FragilePrefixes: []string{origin},
	}, sess, nil, nil)
	return schedule.NewService(client, sess, origin, nil, nil), sess, client
}

func TestSlotsListsHandoffWindows(t *testing.T) {
	var gotDate string
	mux := http.NewServeMux()
	mux.HandleFunc("/schedule/available-slots", func(w http.ResponseWriter, r *http.Request) {
		gotDate = r.URL.Query().Get("date")
		io.WriteString(w, slotsPayload)
	})

	svc, sess := newProxied(t, mux)
	require.NoError(t, sess.Select(context.Background(), "acme"))

	res, err := svc.Slots(context.Background(), "2026-09-01")
	require.NoError(t, err)
	assert.Equal(t, "2026-09-01", gotDate)
	assert.False(t, res.Degraded)
	require.Len(t, res.Value, 2)
	assert.Equal(t, "slot-1", res.Value[0].ID)
	assert.Equal(t, "maria", res.Value[0].Agent)
	assert.Equal(t, scheduleDomain.AvailabilityUp, svc.Availability())
}

func TestSlotsOmitDateWhenUnset(t *testing.T) {
	var gotRawQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/schedule/available-slots", func(w http.ResponseWriter, r *http.Request) {
		gotRawQuery = r.URL.RawQuery
		io.WriteString(w, `[]`)
	})

	svc, sess := newProxied(t, mux)
	require.NoError(t, sess.Select(context.Background(), "acme"))

	_, err := svc.Slots(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, gotRawQuery)
}

func TestSlotsDegradeWhenSidecarAway(t *testing.T) {
	svc, sess, _ := newUnreachable(t)
	require.NoError(t, sess.Select(context.Background(), "acme"))

	res, err := svc.Slots(context.Background(), "")
	require.NoError(t, err, "an unreachable sidecar must not surface as an error")
	assert.True(t, res.Degraded)
	assert.Equal(t, "scheduling service unavailable", res.Reason)
	assert.Empty(t, res.Value)
	assert.Equal(t, scheduleDomain.AvailabilityDown, svc.Availability())
}

func TestSlotsRequireActiveCompany(t *testing.T) {
	svc, _ := newProxied(t, http.NewServeMux())

	_, err := svc.Slots(context.Background(), "")
	assert.ErrorIs(t, err, session.ErrNoActiveCompany)
}

func TestBookGeneratesIdempotencyKey(t *testing.T) {
	var got scheduleDomain.BookingRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/schedule/book", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"id":"bk-1","slot_id":"slot-1","confirmed":true,"status":"confirmed"}`)
	})

	svc, sess := newProxied(t, mux)
	require.NoError(t, sess.Select(context.Background(), "acme"))

	res, err := svc.Book(context.Background(), scheduleDomain.BookingRequest{SlotID: "slot-1", Subject: "billing dispute"})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, scheduleDomain.StatusConfirmed, res.Value.Status)
	_, uerr := uuid.Parse(got.IdempotencyKey)
	assert.NoError(t, uerr, "generated idempotency key should be a uuid")

	_, err = svc.Book(context.Background(), scheduleDomain.BookingRequest{
		SlotID:         "slot-1",
		Subject:        "billing dispute",
		IdempotencyKey: "operator-chosen",
	})
	require.NoError(t, err)
	assert.Equal(t, "operator-chosen", got.IdempotencyKey, "caller-supplied keys pass through untouched")
}

func TestBookDefersWhenSidecarAway(t *testing.T) {
	svc, sess, _ := newUnreachable(t)
	require.NoError(t, sess.Select(context.Background(), "acme"))

	res, err := svc.Book(context.Background(), scheduleDomain.BookingRequest{SlotID: "slot-9", Subject: "handoff"})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, scheduleDomain.StatusDeferred, res.Value.Status)
	assert.Equal(t, "slot-9", res.Value.SlotID)
	assert.False(t, res.Value.Confirmed)
}

func TestBookSurfacesServiceRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/schedule/book", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":"slot already taken"}`)
	})

	svc, sess := newProxied(t, mux)
	require.NoError(t, sess.Select(context.Background(), "acme"))

	_, err := svc.Book(context.Background(), scheduleDomain.BookingRequest{SlotID: "slot-1", Subject: "handoff"})
	require.Error(t, err, "a rejection is a real answer, never softened into a fallback")
	status, ok := apiclient.HTTPStatus(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, status)
}

func TestBookValidatesRequest(t *testing.T) {
	svc, sess := newProxied(t, http.NewServeMux())
	require.NoError(t, sess.Select(context.Background(), "acme"))

	_, err := svc.Book(context.Background(), scheduleDomain.BookingRequest{Subject: "no slot"})
	assert.ErrorIs(t, err, scheduleDomain.ErrInvalidBooking)

	_, err = svc.Book(context.Background(), scheduleDomain.BookingRequest{SlotID: "slot-1"})
	assert.ErrorIs(t, err, scheduleDomain.ErrInvalidBooking)
}
