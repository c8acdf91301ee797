package cache_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/trackergw/internal/cache"
	"github.com/steveyegge/trackergw/internal/config"
	"github.com/steveyegge/trackergw/internal/trackerclient"
)

// fakeTracker serves a minimal Redmine-shaped surface: one project, two
// issues, one version, and a /users.json endpoint that can be toggled to
// return 403 so the partial-failure path (spec §4.2) can be exercised.
type fakeTracker struct {
	denyUsers bool
}

func (f *fakeTracker) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/projects.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"projects": []map[string]interface{}{
				{"id": 1, "identifier": "ncel", "name": "NCEL Project", "description": "d"},
			},
		})
	})
	mux.HandleFunc("/issues.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"total_count": 2,
			"offset":      0,
			"limit":       100,
			"issues": []map[string]interface{}{
				{
					"id": 1, "subject": "Fix login bug",
					"project": map[string]interface{}{"id": 1, "name": "NCEL Project"},
					"tracker": map[string]interface{}{"id": 1, "name": "bug"},
					"status":  map[string]interface{}{"id": 2, "name": "in_progress"},
					"priority": map[string]interface{}{"id": 3, "name": "high"},
					"created_on": "2026-01-01T10:00:00Z",
					"updated_on": "2026-01-05T10:00:00Z",
					"done_ratio": 40,
				},
				{
					"id": 2, "subject": "Add export feature",
					"project": map[string]interface{}{"id": 1, "name": "NCEL Project"},
					"tracker": map[string]interface{}{"id": 2, "name": "feature"},
					"status":  map[string]interface{}{"id": 5, "name": "closed"},
					"priority": map[string]interface{}{"id": 2, "name": "normal"},
					"created_on": "2025-12-01T10:00:00Z",
					"updated_on": "2025-12-20T10:00:00Z",
					"closed_on":  strPtr("2025-12-20T10:00:00Z"),
					"done_ratio": 100,
				},
			},
		})
	})
	mux.HandleFunc("/projects/1/versions.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"versions": []map[string]interface{}{
				{"id": 10, "name": "Sprint 1", "status": "open"},
			},
		})
	})
	mux.HandleFunc("/users.json", func(w http.ResponseWriter, r *http.Request) {
		if f.denyUsers {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["forbidden"]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"users": []map[string]interface{}{
				{"id": 1, "firstname": "Ada", "lastname": "Lovelace"},
			},
		})
	})
	return mux
}

func strPtr(s string) *string { return &s }

func newTestEngine(t *testing.T, srv *httptest.Server) *cache.Engine {
	t.Helper()
	client := trackerclient.New(srv.URL, "test-key", "", srv.Client(), 4)
	return cache.NewEngine(client, config.DefaultEnumMaps(), time.UTC, time.Minute)
}

func TestEngineRefreshBuildsSnapshot(t *testing.T) {
	ft := &fakeTracker{}
	srv := httptest.NewServer(ft.handler())
	defer srv.Close()

	e := newTestEngine(t, srv)
	require.NoError(t, e.Enable(t.Context()))

	st := e.StatusNow()
	assert.True(t, st.Enabled)
	assert.True(t, st.Initialized)
	assert.Equal(t, 2, st.IssueCount)
	assert.Equal(t, 1, st.ProjectCount)
	assert.Equal(t, 1, st.VersionCount)
	assert.Equal(t, 1, st.UserCount)
	assert.Empty(t, st.EndpointErrors)
}

func TestEngineTolerates403OnUsers(t *testing.T) {
	ft := &fakeTracker{denyUsers: true}
	srv := httptest.NewServer(ft.handler())
	defer srv.Close()

	e := newTestEngine(t, srv)
	require.NoError(t, e.Enable(t.Context()))

	st := e.StatusNow()
	assert.True(t, st.Initialized, "a denied /users.json must not fail the wider refresh")
	assert.Equal(t, 0, st.UserCount)
	require.Len(t, st.EndpointErrors, 1)
	assert.Equal(t, "users", st.EndpointErrors[0].Endpoint)
	assert.Equal(t, http.StatusForbidden, st.EndpointErrors[0].Status)
}

func TestEngineQueryBeforeEnableIsUnavailable(t *testing.T) {
	ft := &fakeTracker{}
	srv := httptest.NewServer(ft.handler())
	defer srv.Close()

	e := newTestEngine(t, srv)
	_, err := e.Query(t.Context())
	assert.ErrorIs(t, err, cache.ErrCacheUnavailable)
}

func TestEngineDisableDropsSnapshot(t *testing.T) {
	ft := &fakeTracker{}
	srv := httptest.NewServer(ft.handler())
	defer srv.Close()

	e := newTestEngine(t, srv)
	require.NoError(t, e.Enable(t.Context()))
	e.Disable()

	st := e.StatusNow()
	assert.False(t, st.Enabled)
	assert.False(t, st.Initialized)

	_, err := e.Query(t.Context())
	assert.ErrorIs(t, err, cache.ErrCacheUnavailable)
}
