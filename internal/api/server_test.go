package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ble-pacer.klederson.com/internal/bluetooth"
	"ble-pacer.klederson.com/internal/config"
	"ble-pacer.klederson.com/internal/daemon"
	"ble-pacer.klederson.com/internal/scan"
)

type fakeBackend struct {
	state     scan.State
	sessions  []scan.SessionInfo
	screen    []bool
	triggered int
	manual    bool
	stopped   bool
}

func (b *fakeBackend) Snapshot(context.Context) (daemon.Snapshot, error) {
	if b.stopped {
		return daemon.Snapshot{}, errors.New("stopped")
	}
	return daemon.Snapshot{Controller: scan.Status{State: b.state, Sessions: len(b.sessions)}}, nil
}

func (b *fakeBackend) Sessions(context.Context) ([]scan.SessionInfo, error) {
	return b.sessions, nil
}

func (b *fakeBackend) AddSession(_ context.Context, sc config.SessionConfig) (scan.SessionInfo, error) {
	info := scan.SessionInfo{ID: "id-" + sc.Name, Name: sc.Name}
	b.sessions = append(b.sessions, info)
	return info, nil
}

func (b *fakeBackend) RemoveSession(_ context.Context, id string) error {
	for i, s := range b.sessions {
		if s.ID == id {
			b.sessions = append(b.sessions[:i], b.sessions[i+1:]...)
			return nil
		}
	}
	return daemon.ErrSessionNotFound
}

func (b *fakeBackend) SetScreen(on bool) error {
	if !b.manual {
		return daemon.ErrScreenNotManual
	}
	b.screen = append(b.screen, on)
	return nil
}

func (b *fakeBackend) TriggerMotion() error {
	if !b.manual {
		return daemon.ErrMotionNotManual
	}
	b.triggered++
	return nil
}

func (b *fakeBackend) Devices() []bluetooth.Device {
	return []bluetooth.Device{{MAC: "AA:BB:CC:DD:EE:FF", RSSI: -60}}
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func newTestServer(b *fakeBackend) *Server {
	return NewServer("127.0.0.1:0", b, zerolog.Nop())
}

func TestHealthAndStatus(t *testing.T) {
	b := &fakeBackend{state: scan.SlowScan}
	s := newTestServer(b)

	rec := do(t, s, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "slow-scan", decode(t, rec)["state"])

	rec = do(t, s, "GET", "/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ctrl := decode(t, rec)["controller"].(map[string]interface{})
	assert.Equal(t, "slow-scan", ctrl["state"])

	b.stopped = true
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, "GET", "/health", "").Code)
}

func TestSessionEndpoints(t *testing.T) {
	b := &fakeBackend{}
	s := newTestServer(b)

	rec := do(t, s, "POST", "/v1/sessions", `{"name":"beacons","callback_type":"first"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "id-beacons", decode(t, rec)["id"])

	rec = do(t, s, "GET", "/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	assert.Equal(t, http.StatusNoContent, do(t, s, "DELETE", "/v1/sessions/id-beacons", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, "DELETE", "/v1/sessions/id-beacons", "").Code)
}

func TestCreateSessionValidation(t *testing.T) {
	s := newTestServer(&fakeBackend{})

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"unknown field", `{"name":"x","bogus":1}`},
		{"missing name", `{}`},
		{"bad callback type", `{"name":"x","callback_type":"sometimes"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, "POST", "/v1/sessions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Bad Request", decode(t, rec)["error"])
		})
	}
}

func TestScreenAndMotionEndpoints(t *testing.T) {
	b := &fakeBackend{}
	s := newTestServer(b)

	assert.Equal(t, http.StatusConflict, do(t, s, "PUT", "/v1/screen/on", "").Code)
	assert.Equal(t, http.StatusConflict, do(t, s, "POST", "/v1/motion/trigger", "").Code)

	b.manual = true
	assert.Equal(t, http.StatusAccepted, do(t, s, "PUT", "/v1/screen/off", "").Code)
	assert.Equal(t, http.StatusAccepted, do(t, s, "PUT", "/v1/screen/on", "").Code)
	assert.Equal(t, []bool{false, true}, b.screen)
	assert.Equal(t, http.StatusNotFound, do(t, s, "PUT", "/v1/screen/dim", "").Code)

	assert.Equal(t, http.StatusAccepted, do(t, s, "POST", "/v1/motion/trigger", "").Code)
	assert.Equal(t, 1, b.triggered)
}

func TestDevicesAndMetrics(t *testing.T) {
	s := newTestServer(&fakeBackend{})

	rec := do(t, s, "GET", "/v1/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = do(t, s, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "blepacer_controller_state")
}

func TestStartStop(t *testing.T) {
	s := newTestServer(&fakeBackend{})
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop())
}
