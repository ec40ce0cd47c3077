package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/codec"
	"github.com/BaSui01/arpublish/config"
	"github.com/BaSui01/arpublish/exporter"
	"github.com/BaSui01/arpublish/identity"
	"github.com/BaSui01/arpublish/internal/metrics"
	"github.com/BaSui01/arpublish/publish"
	"github.com/BaSui01/arpublish/types"
)

type relayFixture struct {
	srv   *Server
	http  *httptest.Server
	store *LocalStore
	index *MemoryIndex
}

func newRelay(t *testing.T, mutate func(*config.RelayConfig)) *relayFixture {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	index := NewMemoryIndex()
	tokens, err := NewTokenIssuer("test-secret", time.Minute, index)
	require.NoError(t, err)

	cfg := config.DefaultRelayConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	// PublicURL 需要指向测试服务器自身
	mux := http.NewServeMux()
	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)
	if cfg.PublicURL == config.DefaultRelayConfig().PublicURL {
		cfg.PublicURL = hs.URL + "/"
	}

	srv, err := NewServer(cfg, tokens, store, index, nil, zap.NewNop())
	require.NoError(t, err)
	mux.Handle("/", srv.Handler())

	return &relayFixture{srv: srv, http: hs, store: store, index: index}
}

func encodeAll(t *testing.T, id identity.Identity, strategy codec.Strategy, models map[types.Format][]byte) map[types.Format]*codec.Encoded {
	t.Helper()
	arts := make(map[types.Format]*exporter.Artifact, len(models))
	for f, data := range models {
		arts[f] = exporter.NewArtifact(f, data)
	}
	out, err := codec.NewEncoder(nil).EncodeAll(context.Background(), arts, id.Filename, strategy)
	require.NoError(t, err)
	return out
}

var testModels = map[types.Format][]byte{
	types.FormatGLB:  []byte("glTF-binary-payload"),
	types.FormatUSDZ: []byte("usdz-zip-payload"),
}

var testIdentity = identity.Identity{SubjectID: "1CRN", Stamp: "2024-01-01T00:00:00.000Z", Token: "abc123"}

func fetchModel(t *testing.T, url string) (string, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.Header.Get("Content-Type"), body
}

func viewerPageFor(t *testing.T, link string) string {
	t.Helper()
	resp, err := http.Get(link)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRelay_TokenPublisherRoundTrip(t *testing.T) {
	f := newRelay(t, nil)
	pub := publish.NewTokenPublisher(f.http.URL+"/api/token", f.http.URL+"/api/upload", true, f.http.Client(), 128, nil)

	res, err := pub.Publish(context.Background(), testIdentity, encodeAll(t, testIdentity, codec.StrategyBase64, testModels))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ARLink, f.http.URL+"/ar/"))
	assert.True(t, strings.HasPrefix(res.QRCodeURL, "data:image/png;base64,"))

	shareID := strings.TrimPrefix(res.ARLink, f.http.URL+"/ar/")
	share, err := f.index.GetShare(context.Background(), shareID)
	require.NoError(t, err)
	assert.Equal(t, "1CRN", share.SubjectID)

	ct, body := fetchModel(t, f.http.URL+"/models/"+share.Models[types.FormatGLB])
	assert.Equal(t, "model/gltf-binary", ct)
	assert.Equal(t, testModels[types.FormatGLB], body)

	ct, body = fetchModel(t, f.http.URL+"/models/"+share.Models[types.FormatUSDZ])
	assert.Equal(t, "model/vnd.usdz+zip", ct)
	assert.Equal(t, testModels[types.FormatUSDZ], body)

	page := viewerPageFor(t, res.ARLink)
	assert.Contains(t, page, `rel="ar"`)
	assert.Contains(t, page, "<model-viewer")
	assert.Contains(t, page, share.Models[types.FormatUSDZ])
}

func TestRelay_MultipartPublisherRoundTrip(t *testing.T) {
	f := newRelay(t, func(c *config.RelayConfig) { c.RequireToken = false })
	pub := publish.NewMultipartPublisher(f.http.URL+"/api/upload", f.http.Client(), 128, nil)

	res, err := pub.Publish(context.Background(), testIdentity, encodeAll(t, testIdentity, codec.StrategyMultipart, testModels))
	require.NoError(t, err)
	assert.NotEmpty(t, res.QRCodeURL)

	shareID := strings.TrimPrefix(res.ARLink, f.http.URL+"/ar/")
	share, err := f.index.GetShare(context.Background(), shareID)
	require.NoError(t, err)
	assert.Equal(t, "1CRN", share.SubjectID)
	assert.Len(t, share.Models, 2)
}

func TestRelay_ProxyPublisherRoundTrip(t *testing.T) {
	f := newRelay(t, func(c *config.RelayConfig) { c.RequireToken = false })
	pub := publish.NewProxyPublisher(f.http.URL+"/api/upload", f.http.Client(), 128, nil)

	res, err := pub.Publish(context.Background(), testIdentity, encodeAll(t, testIdentity, codec.StrategyBase64, testModels))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.QRCodeURL, "data:image/png;base64,"))
}

func TestRelay_RequiresToken(t *testing.T) {
	f := newRelay(t, nil)
	pub := publish.NewProxyPublisher(f.http.URL+"/api/upload", f.http.Client(), 128, nil)

	_, err := pub.Publish(context.Background(), testIdentity, encodeAll(t, testIdentity, codec.StrategyBase64, testModels))
	require.Error(t, err)
	assert.Equal(t, types.CauseUploadStatus, types.PublishCause(err))
}

func TestRelay_TokenIsSingleUse(t *testing.T) {
	f := newRelay(t, nil)

	resp, err := http.Get(f.http.URL + "/api/token")
	require.NoError(t, err)
	var tok tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	resp.Body.Close()
	require.NotEmpty(t, tok.Token)

	upload := func() int {
		body := `{"subjectId":"1CRN","glb":"` + codec.DataURI("model/gltf-binary", []byte("g")) + `"}`
		req, err := http.NewRequest(http.MethodPost, f.http.URL+"/api/upload", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tok.Token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, upload())
	assert.Equal(t, http.StatusUnauthorized, upload())
}

func TestRelay_UploadValidation(t *testing.T) {
	f := newRelay(t, func(c *config.RelayConfig) {
		c.RequireToken = false
		c.MaxUploadBytes = 64
	})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "malformed json", body: `{`, status: http.StatusBadRequest},
		{name: "no models", body: `{"subjectId":"x"}`, status: http.StatusBadRequest},
		{name: "bad base64", body: `{"glb":"***"}`, status: http.StatusBadRequest},
		{name: "too large", body: `{"glb":"` + strings.Repeat("A", 200) + `"}`, status: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(f.http.URL+"/api/upload", "application/json", bytes.NewBufferString(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			var out uploadResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.False(t, out.Success)
			assert.NotEmpty(t, out.Error)
		})
	}
}

// flakyStore 第 failOn 次 Put 失败，并记录写入过的名称
type flakyStore struct {
	*LocalStore
	failOn int
	puts   int
	names  []string
}

func (s *flakyStore) Put(ctx context.Context, name string, data []byte) (*Object, error) {
	s.puts++
	if s.puts == s.failOn {
		return nil, errors.New("disk full")
	}
	s.names = append(s.names, name)
	return s.LocalStore.Put(ctx, name, data)
}

// rejectingIndex 拒绝保存任何分享
type rejectingIndex struct {
	*MemoryIndex
}

func (rejectingIndex) SaveShare(context.Context, *Share) error {
	return errors.New("index unavailable")
}

func TestRelay_SaveRemovesModelsWhenShareIsNotRecorded(t *testing.T) {
	tests := []struct {
		name   string
		failOn int
		index  ShareIndex
	}{
		{"second model write fails", 2, NewMemoryIndex()},
		{"share index rejects", 0, rejectingIndex{NewMemoryIndex()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local, err := NewLocalStore(t.TempDir())
			require.NoError(t, err)
			store := &flakyStore{LocalStore: local, failOn: tt.failOn}
			tokens, err := NewTokenIssuer("s", time.Minute, NewMemoryIndex())
			require.NoError(t, err)
			srv, err := NewServer(config.DefaultRelayConfig(), tokens, store, tt.index, nil, zap.NewNop())
			require.NoError(t, err)

			_, err = srv.save(context.Background(), "1CRN", testModels)
			require.Error(t, err)

			require.NotEmpty(t, store.names)
			for _, name := range store.names {
				_, _, err := local.Get(context.Background(), name)
				assert.ErrorIs(t, err, ErrModelNotFound, name)
			}
		})
	}
}

func TestRelay_NotFound(t *testing.T) {
	f := newRelay(t, nil)

	for _, path := range []string{"/models/missing.glb", "/ar/missing"} {
		resp, err := http.Get(f.http.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestRelay_ShareTTL(t *testing.T) {
	f := newRelay(t, func(c *config.RelayConfig) {
		c.RequireToken = false
		c.ShareTTL = time.Hour
	})
	base := time.Now()
	f.srv.now = func() time.Time { return base }

	pub := publish.NewProxyPublisher(f.http.URL+"/api/upload", f.http.Client(), 128, nil)
	res, err := pub.Publish(context.Background(), testIdentity, encodeAll(t, testIdentity, codec.StrategyBase64, testModels))
	require.NoError(t, err)

	id := strings.TrimPrefix(res.ARLink, f.http.URL+"/ar/")
	f.index.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = f.index.GetShare(context.Background(), id)
	assert.ErrorIs(t, err, ErrShareNotFound)
}

func TestRelay_Metrics(t *testing.T) {
	collector := metrics.NewCollector("relay_server_test", nil)
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	index := NewMemoryIndex()
	tokens, err := NewTokenIssuer("s", time.Minute, index)
	require.NoError(t, err)

	srv, err := NewServer(config.DefaultRelayConfig(), tokens, store, index, collector, nil)
	require.NoError(t, err)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/token", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ar/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(config.DefaultRelayConfig(), nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestNew_FromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.LocalDir = t.TempDir()

	srv, closeFn, err := New(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, "memory", srv.index.Name())
}
