package planif

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boreal-data/neige-cli/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(
		WithDataURL(srv.URL+"/planifications"),
		WithMetadataURL(srv.URL+"/metadata"),
		WithHTTPClient(srv.Client()),
	)
}

func TestStatusesBareArray(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"cote_rue_id": 10200162, "etat_deneig": 2,
			 "date_deb_planif": "2026-01-16T07:00:00.000000",
			 "date_fin_planif": "2026-01-16T19:00:00.000000",
			 "date_maj": "2026-01-15T22:10:00"},
			{"cote_rue_id": 10200163, "etat_deneig": 10}
		]`))
	})

	statuses, err := c.Statuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	first := statuses[0]
	assert.Equal(t, 10200162, first.StreetID)
	assert.Equal(t, model.StatusScheduled, first.Code)
	assert.Equal(t, "scheduled", first.State)
	require.NotNil(t, first.PlannedStart)
	assert.Equal(t, time.Date(2026, 1, 16, 7, 0, 0, 0, time.UTC), *first.PlannedStart)
	require.NotNil(t, first.LastUpdated)
	assert.Nil(t, first.ReplannedStart)

	assert.Equal(t, model.StatusClear, statuses[1].Code)
	assert.Nil(t, statuses[1].PlannedStart)
}

func TestStatusesWrappedCamelCase(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"planifications": [
			{"coteRueId": "10200162", "etatDeneig": "5",
			 "dateDebutReplanif": "2026-01-16 08:30:00",
			 "dateFinReplanif": "2026-01-16 20:00:00"}
		]}`))
	})

	statuses, err := c.Statuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, 10200162, statuses[0].StreetID)
	assert.Equal(t, model.StatusInProgress, statuses[0].Code)
	assert.Equal(t, "in_progress", statuses[0].State)
	require.NotNil(t, statuses[0].ReplannedStart)
	assert.Equal(t, time.Date(2026, 1, 16, 8, 30, 0, 0, time.UTC), *statuses[0].ReplannedStart)
}

func TestStatusesSkipsMalformedEntries(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"cote_rue_id": 1, "etat_deneig": 0},
			{"etat_deneig": 2},
			{"cote_rue_id": "not-a-number", "etat_deneig": 2},
			{"cote_rue_id": 2},
			{"cote_rue_id": 3, "etat_deneig": 99}
		]`))
	})

	statuses, err := c.Statuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, 1, statuses[0].StreetID)

	// An unrecognized code passes through rather than being dropped.
	assert.Equal(t, model.StatusCode(99), statuses[1].Code)
	assert.Equal(t, "unknown", statuses[1].State)
}

func TestStatusesBadDatesDegradeToAbsent(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"cote_rue_id": 1, "etat_deneig": 2,
			 "date_deb_planif": "soon", "date_fin_planif": "1900-01-01T00:00:00"}
		]`))
	})

	statuses, err := c.Statuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Nil(t, statuses[0].PlannedStart)
	assert.Nil(t, statuses[0].PlannedEnd)
}

func TestStatusesUpstreamError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})

	_, err := c.Statuses(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestStatusesBadJSON(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>offline</html>`))
	})

	_, err := c.Statuses(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestStreetStatus(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"cote_rue_id": 1, "etat_deneig": 0},
			{"cote_rue_id": 2, "etat_deneig": 1}
		]`))
	})

	st, err := c.StreetStatus(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, model.StatusCleared, st.Code)

	st, err = c.StreetStatus(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/metadata", r.URL.Path)
		w.Write([]byte(`{
			"last_update": "2026-01-15T22:10:00",
			"from_date": "2026-01-15",
			"record_count": 42818,
			"status": "ok"
		}`))
	})

	md, err := c.Metadata(context.Background())
	require.NoError(t, err)
	require.NotNil(t, md.LastUpdate)
	assert.Equal(t, time.Date(2026, 1, 15, 22, 10, 0, 0, time.UTC), *md.LastUpdate)
	require.NotNil(t, md.FromDate)
	assert.Equal(t, 42818, md.RecordCount)
	assert.Equal(t, "ok", md.Status)
}

func TestClientSendsUserAgent(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(WithDataURL(srv.URL), WithUserAgent("neige-cli/test"))
	_, err := c.Statuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "neige-cli/test", gotUA)
}
