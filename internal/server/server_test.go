package server

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/exposure-engine/internal/adapters"
	"github.com/aristath/exposure-engine/internal/cache"
	"github.com/aristath/exposure-engine/internal/decomposer"
	"github.com/aristath/exposure-engine/internal/events"
	"github.com/aristath/exposure-engine/internal/hive"
	"github.com/aristath/exposure-engine/internal/ingestion"
	"github.com/aristath/exposure-engine/internal/pipeline"
	"github.com/aristath/exposure-engine/internal/resolver"
)

// testHarness bundles a Server with the pieces a test needs direct
// access to (the HTTP test server and the health report path).
type testHarness struct {
	server     *Server
	httpServer *httptest.Server
	healthPath string
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	store, err := cache.Open("file::memory:?cache=shared", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bus := events.NewBus(zerolog.Nop())
	hiveClient := hive.New(hive.Config{}, zerolog.Nop())
	res := resolver.New(resolver.Config{Tier1WeightThreshold: 0.005}, store, hiveClient, nil, nil, nil, zerolog.Nop())
	decomp := decomposer.New(decomposer.Config{Tier1WeightThreshold: 0.005}, store, hiveClient, adapters.NewRegistry(nil), res, zerolog.Nop())

	healthPath := filepath.Join(t.TempDir(), "pipeline_health.json")
	orch := pipeline.New(pipeline.Config{Tier1WeightThreshold: 0.005, HealthReportPath: healthPath}, bus, decomp, res, zerolog.Nop())

	manualStore, err := adapters.NewFileManualStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	srv := New(Config{Port: 0, Version: "test", HealthReportPath: healthPath}, Deps{
		Store: store, Bus: bus, Orchestrator: orch, Ingestor: ingestion.New(zerolog.Nop()),
		Hive: hiveClient, ManualStore: manualStore,
	}, zerolog.Nop())

	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)

	return &testHarness{server: srv, httpServer: ts, healthPath: healthPath}
}

func TestPlainHealthEndpointReturnsOK(t *testing.T) {
	h := newTestHarness(t)
	resp, err := h.httpServer.Client().Get(h.httpServer.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
}

func TestVersionEndpointReturnsConfiguredVersion(t *testing.T) {
	h := newTestHarness(t)
	resp, err := h.httpServer.Client().Get(h.httpServer.URL + "/api/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "test", body["version"])
}
