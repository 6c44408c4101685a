package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sharegate/sharegate/internal/config"
	"github.com/sharegate/sharegate/internal/metrics"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) PingContext(ctx context.Context) error { return p.err }

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel) // Reduce noise in tests
	logger.SetOutput(io.Discard)
	opts.Logger = logger
	return New(opts)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, Options{DB: &fakePinger{}})
	s.SetVersion("1.2.3", "abc123", "2026-05-01")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, "abc123", body.Commit)
	assert.Empty(t, body.Error)
}

func TestHealthz_DatabaseDown(t *testing.T) {
	s := newTestServer(t, Options{DB: &fakePinger{err: errors.New("database is closed")}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "database is closed", body.Error)
}

func TestHealthz_Head(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestMetricsEndpoint(t *testing.T) {
	mm := metrics.NewManager(config.MetricsConfig{Enable: true, Path: "/metrics"})
	s := newTestServer(t, Options{MetricsPath: "/metrics", Metrics: mm})
	mm.RecordEvaluation("interstitial", "ok", time.Millisecond)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "sharegate_share_evaluations_total")
	assert.Contains(t, body, `sharegate_http_requests_total{method="GET",path="/healthz",status="200"} 1`)
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/s/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStart_GracefulShutdown(t *testing.T) {
	s := newTestServer(t, Options{Listen: "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStart_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := newTestServer(t, Options{Listen: ln.Addr().String()})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, s.Start(ctx))
}
