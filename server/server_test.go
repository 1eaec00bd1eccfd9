package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/casevine/casevine/config"
	cvtest "github.com/casevine/casevine/internal/testing"
	"github.com/casevine/casevine/realtime"
	"github.com/casevine/casevine/sched"
)

type noopNotifier struct{}

func (noopNotifier) SendNotification(uuid.UUID, string) error { return nil }

type noopMailer struct{}

func (noopMailer) SendTemplateEmail(string, string, string, map[string]any) error { return nil }

type noopPayments struct{}

func (noopPayments) ExecuteScheduledPaymentRelease(uuid.UUID) error { return nil }

func newTestServer(t *testing.T) (*Server, *httptest.Server, *realtime.Registry) {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()

	registry := realtime.NewRegistry(log)
	hub := realtime.NewHub(registry, log)
	hub.Start()
	t.Cleanup(hub.Stop)

	dispatcher := realtime.NewDispatcher(registry, hub, log)

	conn := cvtest.CreateTestDB(t)
	store := sched.NewStore(conn)
	handlers := sched.NewHandlers(noopNotifier{}, noopMailer{}, noopPayments{}, log)
	engine := sched.NewEngine(store, handlers, sched.DefaultEngineConfig(), log)

	cfg := &config.Config{}
	cfg.Server.AllowedOrigins = []string{"http://localhost"}

	s := New(cfg, hub, dispatcher, engine, log)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv, registry
}

func TestHandleHealth(t *testing.T) {
	_, srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "version")
	assert.EqualValues(t, 0, body["clients"])
}

func TestHandleSchedulerStatus(t *testing.T) {
	_, srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/scheduler/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status sched.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, sched.EngineName, status.Engine)
	assert.NotEmpty(t, status.InstanceID)
	assert.Equal(t, 0, status.ScheduledJobs)
}

func TestHandleSchedulerStatusMethodNotAllowed(t *testing.T) {
	_, srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/scheduler/status", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleSchedulerStatusDisabledEngine(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	registry := realtime.NewRegistry(log)
	hub := realtime.NewHub(registry, log)
	hub.Start()
	t.Cleanup(hub.Stop)

	cfg := &config.Config{}
	s := New(cfg, hub, realtime.NewDispatcher(registry, hub, log), nil, log)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/scheduler/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "disabled", body["engine"])
	assert.Equal(t, false, body["running"])
}

func TestHandleBroadcast(t *testing.T) {
	_, srv, registry := newTestServer(t)
	userID := uuid.New()

	// Hold a websocket connection open so the broadcast has a receiver
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"X-User-Id": []string{userID.String()}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return registry.IsConnected(userID)
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/api/broadcast", "application/json",
		strings.NewReader(`{"message": "scheduled maintenance tonight"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var received string
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&received))
	assert.Equal(t, "scheduled maintenance tonight", received)
}

func TestHandleBroadcastRejectsBlankMessage(t *testing.T) {
	_, srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/broadcast", "application/json",
		strings.NewReader(`{"message": "   "}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORSHeaders(t *testing.T) {
	_, srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	// Disallowed origins get no CORS grant
	req.Header.Set("Origin", "https://evil.example")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	_, srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/broadcast", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
