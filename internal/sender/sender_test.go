package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/welterm/udsd/internal/config"
	"codeberg.org/welterm/udsd/internal/hardware"
	"codeberg.org/welterm/udsd/internal/store"
)

type capturedRequest struct {
	method      string
	contentType string
	auth        string
	body        string
}

func captureServer(t *testing.T) (*httptest.Server, chan capturedRequest) {
	t.Helper()

	requests := make(chan capturedRequest, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- capturedRequest{
			method:      r.Method,
			contentType: r.Header.Get("Content-Type"),
			auth:        r.Header.Get("Authorization"),
			body:        string(body),
		}
	}))
	t.Cleanup(srv.Close)

	return srv, requests
}

func TestCycleDeliversSnapshot(t *testing.T) {
	srv, requests := captureServer(t)

	st := store.New()
	st.UpsertSensor(hardware.NewSensorReading("28-00000a0b0c0d", 1.234, 12))

	s := New(config.ActiveSender{Endpoints: []config.Endpoint{{URL: srv.URL}}}, st)
	s.Cycle(context.Background())

	got := <-requests
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "application/json", got.contentType)
	assert.Empty(t, got.auth, "No Authorization header without a token")

	var snap store.Snapshot
	require.NoError(t, json.Unmarshal([]byte(got.body), &snap))
	require.Len(t, snap.Sensors, 1)
	assert.Equal(t, "28-00000a0b0c0d", snap.Sensors[0].Meta.HW.ID)
	assert.InDelta(t, 1.234, snap.Sensors[0].Temperature, 0.0001)
	assert.Contains(t, got.body, `"upses":[]`)
}

func TestCycleSendsEmptyEnvelope(t *testing.T) {
	srv, requests := captureServer(t)

	s := New(config.ActiveSender{Endpoints: []config.Endpoint{{URL: srv.URL}}}, store.New())
	s.Cycle(context.Background())

	got := <-requests
	assert.Equal(t, `{"sensors":[],"upses":[]}`, got.body)
}

func TestCycleSetsBearerToken(t *testing.T) {
	srv, requests := captureServer(t)

	s := New(config.ActiveSender{
		Endpoints: []config.Endpoint{{URL: srv.URL, BearerToken: "sekrit"}},
	}, store.New())
	s.Cycle(context.Background())

	got := <-requests
	assert.Equal(t, "Bearer sekrit", got.auth)
}

func TestCycleAttemptsEveryEndpoint(t *testing.T) {
	var okHits, rejectHits atomic.Int32

	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		okHits.Add(1)
	}))
	defer okSrv.Close()

	rejectSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		rejectHits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer rejectSrv.Close()

	deadSrv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := deadSrv.URL
	deadSrv.Close()

	s := New(config.ActiveSender{
		IgnoreConnectionErrors: true,
		Endpoints: []config.Endpoint{
			{URL: deadURL},
			{URL: rejectSrv.URL},
			{URL: okSrv.URL},
		},
	}, store.New())
	s.Cycle(context.Background())

	assert.Equal(t, int32(1), okHits.Load())
	assert.Equal(t, int32(1), rejectHits.Load(), "A dead endpoint must not shadow the live ones")
}

func TestCycleSurvivesConnectionErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := srv.URL
	srv.Close()

	for _, ignore := range []bool{true, false} {
		t.Run(fmt.Sprintf("ignore=%t", ignore), func(t *testing.T) {
			s := New(config.ActiveSender{
				IgnoreConnectionErrors: ignore,
				Endpoints:              []config.Endpoint{{URL: deadURL}},
			}, store.New())

			s.Cycle(context.Background())
		})
	}
}

func TestCycleRecoversOnNextCycle(t *testing.T) {
	var hits atomic.Int32
	var failing atomic.Bool
	failing.Store(true)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	s := New(config.ActiveSender{Endpoints: []config.Endpoint{{URL: srv.URL}}}, store.New())

	s.Cycle(context.Background())
	failing.Store(false)
	s.Cycle(context.Background())

	assert.Equal(t, int32(2), hits.Load(), "Rejection must not stop later cycles")
}
