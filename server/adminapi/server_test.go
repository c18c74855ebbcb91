package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optipath/config"
	"optipath/pkg/prober"
	"optipath/pkg/selector"
	"optipath/server"
)

func newTestServer(apiKey string, routes *selector.State) *Server {
	sel := selector.New(selector.SelectorOptions{
		Targets:  []config.TargetConfig{{Name: "a", Addr: "10.0.0.1:80"}},
		Interval: time.Hour,
		State:    routes,
	})
	return New(ServerOptions{
		Addr:     "127.0.0.1:0",
		APIKey:   apiKey,
		Routes:   routes,
		Selector: sel,
	})
}

func publishRoute(state *selector.State) {
	state.Publish(&selector.Route{
		Name:       "a",
		Addr:       "10.0.0.1:80",
		Score:      prober.Score{Value: 42 * time.Millisecond, Successes: 10},
		Generation: 3,
		DecidedAt:  time.Now(),
	})
}

func TestHealthz(t *testing.T) {
	state := selector.NewState()
	srv := newTestServer("", state)
	handler := srv.setupRoutes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["route_selected"])

	publishRoute(state)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["route_selected"])
}

func TestRouteEndpoint(t *testing.T) {
	state := selector.NewState()
	srv := newTestServer("", state)
	handler := srv.setupRoutes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/route", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	publishRoute(state)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/route", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body routeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "a", body.Target)
	assert.Equal(t, "10.0.0.1:80", body.Addr)
	assert.Equal(t, int64(42), body.ScoreMs)
	assert.Equal(t, uint64(3), body.Generation)
}

func TestTargetsEndpointBeforeFirstCycle(t *testing.T) {
	srv := newTestServer("", selector.NewState())
	handler := srv.setupRoutes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/targets", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBackendsEndpoint(t *testing.T) {
	state := selector.NewState()
	sel := selector.New(selector.SelectorOptions{
		Targets:  []config.TargetConfig{{Name: "a", Addr: "10.0.0.1:80"}},
		Interval: time.Hour,
		State:    state,
	})
	health := server.NewBackendHealth()
	health.RecordFailure("a", assert.AnError)

	srv := New(ServerOptions{
		Addr:     "127.0.0.1:0",
		Routes:   state,
		Selector: sel,
		Health:   health,
	})
	handler := srv.setupRoutes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/backends", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Backends []server.BackendStatus `json:"backends"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Backends, 1)
	assert.Equal(t, "a", body.Backends[0].Target)
	assert.Equal(t, 1, body.Backends[0].ConsecutiveFailures)
}

func TestAuthMiddleware(t *testing.T) {
	state := selector.NewState()
	publishRoute(state)
	srv := newTestServer("secret-key", state)
	handler := srv.setupRoutes()

	// Health stays open even with a key configured.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/route", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest("GET", "/api/v1/route", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest("GET", "/api/v1/route", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
