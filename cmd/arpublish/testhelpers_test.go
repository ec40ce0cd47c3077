package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/config"
	"github.com/BaSui01/arpublish/relay"
)

// newRelayConfig 启动进程内 relay，返回指向它的 token 策略配置
func newRelayConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.LocalDir = t.TempDir()
	cfg.Log.OutputPaths = []string{"stderr"}
	cfg.Log.Level = "error"

	var h http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg.Relay.PublicURL = srv.URL
	rs, closeRelay, err := relay.New(context.Background(), cfg, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeRelay() })
	h = relayHandler(rs, nil, zap.NewNop())

	cfg.Publish.Strategy = "token"
	cfg.Publish.Endpoint = srv.URL + "/api/upload"
	cfg.Publish.TokenURL = srv.URL + "/api/token"
	return cfg
}

// writeExports 写出渲染器产物 export.{glb,usdz}
func writeExports(t *testing.T, formats ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range formats {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "export."+f), []byte(f+"-bytes"), 0o600))
	}
	return dir
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func itoa(n int) string { return strconv.Itoa(n) }
