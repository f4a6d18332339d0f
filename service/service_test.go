package service

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-rerun/metrics"
)

func TestHealthzHandle(t *testing.T) {
	rec := httptest.NewRecorder()
	(&HealthzServer{}).Handle(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetricsHandler(t *testing.T) {
	metrics.RecordRerun("svc::Group")

	srv := httptest.NewServer((&MetricsServer{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `rerun_group_reruns_total{group="svc::Group"} 1`)
}

func TestShutdownBeforeStart(t *testing.T) {
	s := New(Config{HealthzAddr: "127.0.0.1:0"})
	s.Config.Metrics.Enabled = true
	// neither server was started, shutting down must not panic
	s.Shutdown()
}
