package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/api/handlers"
	"github.com/BaSui01/arpublish/internal/metrics"
	"github.com/BaSui01/arpublish/types"
	"github.com/BaSui01/arpublish/workflow"
)

func newTestAPI(t *testing.T) (*apiApp, *httptest.Server, string) {
	t.Helper()
	cfg := newRelayConfig(t)
	cfg.Export.OutputDir = writeExports(t, "glb", "usdz")
	relayURL := strings.TrimSuffix(cfg.Publish.Endpoint, "/api/upload")

	app, err := newAPIApp(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(app.close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := httptest.NewServer(app.handler(ctx))
	t.Cleanup(srv.Close)
	return app, srv, relayURL
}

func TestAPI_PublishCycleThroughRelay(t *testing.T) {
	app, srv, _ := newTestAPI(t)

	// 未加载主体：周期以失败结束，不发布
	resp, err := http.Post(srv.URL+"/api/v1/publish", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	app.controller.Wait()
	last, ok := app.hub.Last()
	require.True(t, ok)
	assert.Equal(t, workflow.EventFailure, last.Type)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/subjects", strings.NewReader(`{"subjects":[{"id":"1CRN"}]}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/publish", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	app.controller.Wait()

	// 周期以 idle 收尾
	last, ok = app.hub.Last()
	require.True(t, ok)
	assert.Equal(t, workflow.EventIdle, last.Type)

	resp, err = http.Get(srv.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status struct {
		Data struct {
			State    string `json:"state"`
			Strategy string `json:"strategy"`
			Subjects int    `json:"subjects"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "idle", status.Data.State)
	assert.Equal(t, "token", status.Data.Strategy)
	assert.Equal(t, 1, status.Data.Subjects)
}

func TestAPI_ResultEventCarriesRelayLink(t *testing.T) {
	app, srv, relayURL := newTestAPI(t)

	events, cancel := app.hub.Subscribe()
	defer cancel()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/subjects", strings.NewReader(`{"subjects":[{"id":"4hhb"}]}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Post(srv.URL+"/api/v1/publish", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	var result workflow.Event
	timeout := time.After(5 * time.Second)
	for result.Type != workflow.EventResult {
		select {
		case e := <-events:
			require.NotEqual(t, workflow.EventFailure, e.Type, e.Message)
			result = e
		case <-timeout:
			t.Fatal("no result event")
		}
	}
	assert.True(t, strings.HasPrefix(result.ARLink, relayURL+"/ar/"), result.ARLink)
	assert.True(t, strings.HasPrefix(result.QRCodeURL, "data:image/png;base64,"))

	page, err := http.Get(result.ARLink)
	require.NoError(t, err)
	defer page.Body.Close()
	body, err := io.ReadAll(page.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, string(body), `rel="ar"`)
}

func TestAPI_PreviewRoutes(t *testing.T) {
	_, srv, _ := newTestAPI(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/preview", nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Data struct {
			URL    string `json:"url"`
			Handle string `json:"handle"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	blob, err := http.Get(srv.URL + "/preview/" + created.Data.Handle)
	require.NoError(t, err)
	defer blob.Body.Close()
	data, err := io.ReadAll(blob.Body)
	require.NoError(t, err)
	assert.Equal(t, "usdz-bytes", string(data))
}

func TestAPI_HealthAndMiddleware(t *testing.T) {
	_, srv, _ := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	resp2, err := http.Get(srv.URL + "/api/v1/unknown")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestAPI_HealthReportsControllerAndSubjects(t *testing.T) {
	app, srv, _ := newTestAPI(t)

	get := func(path string) (int, handlers.HealthStatus) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		var status handlers.HealthStatus
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		return resp.StatusCode, status
	}

	code, status := get("/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "idle", status.Info["state"])
	assert.Equal(t, app.controller.Strategy(), status.Info["strategy"])

	code, status = get("/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, handlers.StatusDegraded, status.Status)
	assert.Equal(t, "warn", status.Checks["subjects_loaded"].Status)

	app.subjects.Set([]types.Subject{{ID: "1CRN"}})
	code, status = get("/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, handlers.StatusHealthy, status.Status)
}

func TestAPI_APIKeyRequired(t *testing.T) {
	cfg := newRelayConfig(t)
	cfg.Export.OutputDir = writeExports(t, "glb", "usdz")
	cfg.Server.APIKeys = []string{"secret"}
	app, err := newAPIApp(cfg, metrics.NewCollector("cmd_api_key_test", nil), zap.NewNop())
	require.NoError(t, err)
	defer app.close()
	h := app.handler(context.Background())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	r.Header.Set("X-API-Key", "secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewAPIApp_PreviewDisabled(t *testing.T) {
	cfg := newRelayConfig(t)
	cfg.Export.OutputDir = writeExports(t, "glb")
	cfg.Preview.Enabled = false
	app, err := newAPIApp(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	defer app.close()
	assert.Nil(t, app.previewer)

	w := httptest.NewRecorder()
	app.routes().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/preview", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewAPIApp_Errors(t *testing.T) {
	cfg := newRelayConfig(t)
	cfg.Export.OutputDir = ""
	_, err := newAPIApp(cfg, nil, nil)
	assert.Error(t, err)

	cfg.Export.OutputDir = writeExports(t, "glb")
	cfg.Preview.Format = "fbx"
	_, err = newAPIApp(cfg, nil, nil)
	assert.ErrorContains(t, err, "preview format")
}

func TestRelayHandler_Health(t *testing.T) {
	cfg := newRelayConfig(t)
	base := strings.TrimSuffix(cfg.Publish.Endpoint, "/api/upload")
	resp, err := http.Get(base + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(base + "/health")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var status handlers.HealthStatus
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&status))
	assert.Equal(t, cfg.Relay.Index, status.Info["index"])
}

func TestRunServer_StopsOnCancel(t *testing.T) {
	cfg := newRelayConfig(t)
	cfg.Export.OutputDir = writeExports(t, "glb", "usdz")
	cfg.Server.HTTPPort = freePort(t)
	cfg.Server.MetricsPort = freePort(t)
	cfg.Relay.HTTPPort = freePort(t)
	cfg.Server.ShutdownTimeout = 2 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, cfg, serverOptions{api: true}, zap.NewNop()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + itoa(cfg.Server.HTTPPort) + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:" + itoa(cfg.Server.HTTPPort) + "/health")
	require.NoError(t, err)
	var status handlers.HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, map[string]any{"api": true, "metrics": true}, status.Info["servers"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
