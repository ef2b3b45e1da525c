package endpoint

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/welterm/udsd/internal/config"
	"codeberg.org/welterm/udsd/internal/hardware"
	"codeberg.org/welterm/udsd/internal/onewire"
	"codeberg.org/welterm/udsd/internal/store"
)

const sensorBody = `{"meta":{"hw":{"id":"28-00000a0b0c0d","hardware_type":"TemperatureSensor"},"source":{"source_type":"OneWire"}},"temperature":1.234,"resolution":12}`

func get(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	return w
}

func TestTemperatureRoutes(t *testing.T) {
	st := store.New()
	st.UpsertSensor(hardware.NewSensorReading("28-00000a0b0c0d", 1.234, 12))
	srv := New(config.PassiveEndpoint{}, st)

	w := get(srv.Engine(), "/temperature", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "["+sensorBody+"]", w.Body.String())

	w = get(srv.Engine(), "/temperature/28-00000a0b0c0d", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, sensorBody, w.Body.String())

	w = get(srv.Engine(), "/temperature/28-ffffffffffff", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, `{"error":"not found"}`, w.Body.String())
}

func TestTemperatureListEmpty(t *testing.T) {
	srv := New(config.PassiveEndpoint{}, store.New())

	w := get(srv.Engine(), "/temperature", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String(), "An empty list is never null")
}

func TestUpsRoutes(t *testing.T) {
	st := store.New()
	st.UpsertUPS(hardware.NewUPSReading("[rack]admin@10.0.0.5:3493", map[string]string{
		"ups.status":     "OL",
		"battery.charge": "100",
	}))
	srv := New(config.PassiveEndpoint{}, st)

	upsBody := `{"meta":{"hw":{"id":"[rack]admin@10.0.0.5:3493","hardware_type":"UninterruptiblePowerSupply"},"source":{"source_type":"NetworkUpsTools"}},"variables":{"battery.charge":"100","ups.status":"OL"}}`

	w := get(srv.Engine(), "/ups", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "["+upsBody+"]", w.Body.String())

	w = get(srv.Engine(), "/ups/[rack]admin@10.0.0.5:3493", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, upsBody, w.Body.String())

	w = get(srv.Engine(), "/ups/[office]admin@10.0.0.5:3493", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBearerAuth(t *testing.T) {
	srv := New(config.PassiveEndpoint{BearerToken: "hunter2"}, store.New())

	w := get(srv.Engine(), "/temperature", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `{"error":"unauthorized"}`, w.Body.String())

	w = get(srv.Engine(), "/temperature", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(srv.Engine(), "/temperature", "hunter2")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(srv.Engine(), "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code, "Health stays reachable without a token")

	w = get(srv.Engine(), "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code, "Metrics stay reachable without a token")
}

func TestNoAuthWhenTokenEmpty(t *testing.T) {
	srv := New(config.PassiveEndpoint{}, store.New())

	w := get(srv.Engine(), "/temperature", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthz(t *testing.T) {
	srv := New(config.PassiveEndpoint{}, store.New())

	w := get(srv.Engine(), "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsExposition(t *testing.T) {
	srv := New(config.PassiveEndpoint{}, store.New())

	get(srv.Engine(), "/healthz", "")
	w := get(srv.Engine(), "/metrics", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "udsd_endpoint_requests_total")
}

func TestUnknownRoute(t *testing.T) {
	srv := New(config.PassiveEndpoint{}, store.New())

	w := get(srv.Engine(), "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, `{"error":"not found"}`, w.Body.String())
}

func TestSysfsToEndpoint(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "28-00000a0b0c0d")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "temperature"), []byte("21437\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "resolution"), []byte("12\n"), 0o644))

	st := store.New()
	onewire.NewPoller(onewire.NewSysfsReader(base), st, false).Cycle(context.Background())

	srv := New(config.PassiveEndpoint{}, st)
	w := get(srv.Engine(), "/temperature/28-00000a0b0c0d", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"temperature":21.437`)
	assert.Contains(t, w.Body.String(), `"resolution":12`)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	srv := New(config.PassiveEndpoint{Port: 0}, store.New())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	srv := New(config.PassiveEndpoint{Port: ln.Addr().(*net.TCPAddr).Port}, store.New())
	require.Error(t, srv.Run(context.Background()))
}
