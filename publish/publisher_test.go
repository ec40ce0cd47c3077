package publish

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/codec"
	"github.com/BaSui01/arpublish/config"
	"github.com/BaSui01/arpublish/identity"
	"github.com/BaSui01/arpublish/types"
)

var testID = identity.Identity{SubjectID: "1crn", Stamp: "20261017T120102123Z", Token: "ab12cd34"}

func base64Arts() map[types.Format]*codec.Encoded {
	return map[types.Format]*codec.Encoded{
		types.FormatGLB: {
			Format: types.FormatGLB, Filename: testID.Filename(types.FormatGLB),
			Strategy: codec.StrategyBase64, Base64: base64.StdEncoding.EncodeToString([]byte("glb-bytes")),
		},
		types.FormatUSDZ: {
			Format: types.FormatUSDZ, Filename: testID.Filename(types.FormatUSDZ),
			Strategy: codec.StrategyBase64, Base64: base64.StdEncoding.EncodeToString([]byte("usdz-bytes")),
		},
	}
}

func multipartArts() map[types.Format]*codec.Encoded {
	out := map[types.Format]*codec.Encoded{}
	for f, data := range map[types.Format]string{types.FormatGLB: "glb-bytes", types.FormatUSDZ: "usdz-bytes"} {
		out[f] = &codec.Encoded{
			Format: f, Filename: testID.Filename(f), Strategy: codec.StrategyMultipart,
			Part: &codec.Part{Field: string(f), Filename: testID.Filename(f), ContentType: f.ContentType(), Data: []byte(data)},
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func assertCause(t *testing.T, err error, cause types.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, types.ErrPublishFailure, types.GetErrorCode(err))
	assert.Equal(t, cause, types.PublishCause(err))
}

// =============================================================================
// token
// =============================================================================

type relayStub struct {
	tokenCalls  atomic.Int32
	uploadCalls atomic.Int32
	lastAuth    atomic.Value
	lastBody    atomic.Value
	tokenStatus int
	tokenBody   any
	uploadResp  func(w http.ResponseWriter)
}

func (s *relayStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/token", func(w http.ResponseWriter, r *http.Request) {
		n := s.tokenCalls.Add(1)
		status := s.tokenStatus
		if status == 0 {
			status = http.StatusOK
		}
		body := s.tokenBody
		if body == nil {
			body = map[string]string{"token": "tok-" + string(rune('0'+n))}
		}
		writeJSON(w, status, body)
	})
	mux.HandleFunc("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		s.uploadCalls.Add(1)
		s.lastAuth.Store(r.Header.Get("Authorization"))
		data, _ := io.ReadAll(r.Body)
		s.lastBody.Store(data)
		if s.uploadResp != nil {
			s.uploadResp(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "arLink": "https://x/y"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenPublisher_Success(t *testing.T) {
	stub := &relayStub{}
	srv := stub.server(t)
	p := NewTokenPublisher(srv.URL+"/api/token", srv.URL+"/api/upload", true, srv.Client(), 128, zap.NewNop())

	res, err := p.Publish(t.Context(), testID, base64Arts())
	require.NoError(t, err)
	assert.Equal(t, "https://x/y", res.ARLink)
	assert.True(t, strings.HasPrefix(res.QRCodeURL, "data:image/png;base64,"))
	assert.Equal(t, "Bearer tok-1", stub.lastAuth.Load())

	var body map[string]any
	require.NoError(t, json.Unmarshal(stub.lastBody.Load().([]byte), &body))
	assert.Equal(t, "1crn", body["subjectId"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("glb-bytes")), body["glb"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("usdz-bytes")), body["usdz"])
	names := body["filenames"].(map[string]any)
	assert.Equal(t, "1crn_20261017T120102123Z_ab12cd34.glb", names["glb"])
}

func TestTokenPublisher_FreshCredentialPerUpload(t *testing.T) {
	stub := &relayStub{}
	srv := stub.server(t)
	p := NewTokenPublisher(srv.URL+"/api/token", srv.URL+"/api/upload", false, srv.Client(), 0, nil)

	for i := 0; i < 2; i++ {
		res, err := p.Publish(t.Context(), testID, base64Arts())
		require.NoError(t, err)
		assert.Empty(t, res.QRCodeURL)
	}
	assert.Equal(t, int32(2), stub.tokenCalls.Load())
	assert.Equal(t, "Bearer tok-2", stub.lastAuth.Load())
}

func TestTokenPublisher_Failures(t *testing.T) {
	tests := []struct {
		name        string
		stub        *relayStub
		cause       types.ErrorCode
		wantUploads int32
	}{
		{
			name:  "token endpoint rejects",
			stub:  &relayStub{tokenStatus: http.StatusForbidden, tokenBody: map[string]string{"error": "nope"}},
			cause: types.CauseTokenStatus,
		},
		{
			name:  "token missing",
			stub:  &relayStub{tokenBody: map[string]string{}},
			cause: types.CauseInvalidResponse,
		},
		{
			name: "upload status",
			stub: &relayStub{uploadResp: func(w http.ResponseWriter) {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false})
			}},
			cause:       types.CauseUploadStatus,
			wantUploads: 1,
		},
		{
			name: "success false",
			stub: &relayStub{uploadResp: func(w http.ResponseWriter) {
				writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "quota"})
			}},
			cause:       types.CauseInvalidResponse,
			wantUploads: 1,
		},
		{
			name: "missing success flag",
			stub: &relayStub{uploadResp: func(w http.ResponseWriter) {
				writeJSON(w, http.StatusOK, map[string]any{"arLink": "https://x/y"})
			}},
			cause:       types.CauseInvalidResponse,
			wantUploads: 1,
		},
		{
			name: "missing link",
			stub: &relayStub{uploadResp: func(w http.ResponseWriter) {
				writeJSON(w, http.StatusOK, map[string]any{"success": true})
			}},
			cause:       types.CauseInvalidResponse,
			wantUploads: 1,
		},
		{
			name: "malformed body",
			stub: &relayStub{uploadResp: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("<html>"))
			}},
			cause:       types.CauseInvalidResponse,
			wantUploads: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := tt.stub.server(t)
			p := NewTokenPublisher(srv.URL+"/api/token", srv.URL+"/api/upload", true, srv.Client(), 0, zap.NewNop())

			res, err := p.Publish(t.Context(), testID, base64Arts())
			assert.Nil(t, res)
			assertCause(t, err, tt.cause)
			assert.Equal(t, "token", err.(*types.Error).Strategy)
			assert.Equal(t, tt.wantUploads, tt.stub.uploadCalls.Load())
		})
	}
}

func TestTokenPublisher_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewTokenPublisher(url+"/api/token", url+"/api/upload", true, &http.Client{Timeout: time.Second}, 0, nil)
	_, err := p.Publish(t.Context(), testID, base64Arts())
	assertCause(t, err, types.CauseNetwork)
	assert.True(t, types.IsRetryable(err))
}

// =============================================================================
// proxy
// =============================================================================

func TestProxyPublisher_PassesThroughResult(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true, "arLink": "https://x/y", "qrCodeUrl": "data:image/png;base64,AAAA",
		})
	}))
	defer srv.Close()

	p := NewProxyPublisher(srv.URL, srv.Client(), 0, zap.NewNop())
	assert.Equal(t, codec.StrategyBase64, p.Encoding())

	res, err := p.Publish(t.Context(), testID, base64Arts())
	require.NoError(t, err)
	assert.Equal(t, &Result{ARLink: "https://x/y", QRCodeURL: "data:image/png;base64,AAAA"}, res)
	assert.Equal(t, "1crn", got["subjectId"])
}

func TestProxyPublisher_GeneratesMissingCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "arLink": "https://x/y"})
	}))
	defer srv.Close()

	res, err := NewProxyPublisher(srv.URL, srv.Client(), 0, nil).Publish(t.Context(), testID, base64Arts())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.QRCodeURL, "data:image/png;base64,"))
}

func TestProxyPublisher_SuccessFalseMatchesNetworkFailureShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "bad model"})
	}))
	defer srv.Close()

	_, rejected := NewProxyPublisher(srv.URL, srv.Client(), 0, nil).Publish(t.Context(), testID, base64Arts())

	srv2 := httptest.NewServer(http.NotFoundHandler())
	dead := srv2.URL
	srv2.Close()
	_, unreachable := NewProxyPublisher(dead, &http.Client{Timeout: time.Second}, 0, nil).Publish(t.Context(), testID, base64Arts())

	assert.Equal(t, types.GetErrorCode(rejected), types.GetErrorCode(unreachable))
	assert.Equal(t, types.ErrPublishFailure, types.GetErrorCode(rejected))
}

// =============================================================================
// dispatch
// =============================================================================

func TestDispatchPublisher(t *testing.T) {
	var auth string
	var body struct {
		EventType     string         `json:"event_type"`
		ClientPayload map[string]any `json:"client_payload"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewDispatchPublisher(srv.URL, "ghp_secret", "publish-ar",
		"https://acme.github.io/ar/?glb=models/{glb}&usdz=models/{usdz}&s={subject}",
		srv.Client(), 0, zap.NewNop())

	res, err := p.Publish(t.Context(), testID, base64Arts())
	require.NoError(t, err)
	assert.Equal(t, "token ghp_secret", auth)
	assert.Equal(t, "publish-ar", body.EventType)
	assert.Equal(t, "1crn", body.ClientPayload["subjectId"])
	assert.NotEmpty(t, body.ClientPayload["glb"])
	assert.Equal(t,
		"https://acme.github.io/ar/?glb=models/1crn_20261017T120102123Z_ab12cd34.glb&usdz=models/1crn_20261017T120102123Z_ab12cd34.usdz&s=1crn",
		res.ARLink)
	assert.True(t, strings.HasPrefix(res.QRCodeURL, "data:image/png;base64,"))
}

func TestDispatchPublisher_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewDispatchPublisher(srv.URL, "bad", "publish-ar", "https://x/{glb}", srv.Client(), 0, nil)
	_, err := p.Publish(t.Context(), testID, base64Arts())
	assertCause(t, err, types.CauseUploadStatus)
}

// =============================================================================
// multipart
// =============================================================================

func TestMultipartPublisher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "1crn", r.FormValue(SubjectField))

		f, hdr, err := r.FormFile("glb")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "glb-bytes", string(data))
		assert.Equal(t, "1crn_20261017T120102123Z_ab12cd34.glb", hdr.Filename)

		_, hdr, err = r.FormFile("usdz")
		require.NoError(t, err)
		assert.Equal(t, "model/vnd.usdz+zip", hdr.Header.Get("Content-Type"))

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "arLink": "https://x/y"})
	}))
	defer srv.Close()

	p := NewMultipartPublisher(srv.URL, srv.Client(), 0, zap.NewNop())
	assert.Equal(t, codec.StrategyMultipart, p.Encoding())

	res, err := p.Publish(t.Context(), testID, multipartArts())
	require.NoError(t, err)
	assert.Equal(t, "https://x/y", res.ARLink)
	assert.NotEmpty(t, res.QRCodeURL)
}

func TestMultipartPublisher_RejectsBase64Artifacts(t *testing.T) {
	p := NewMultipartPublisher("http://127.0.0.1:1", nil, 0, nil)
	_, err := p.Publish(t.Context(), testID, base64Arts())
	assertCause(t, err, types.CauseInvalidResponse)
}

// =============================================================================
// factory & code
// =============================================================================

func TestNew_SelectsStrategy(t *testing.T) {
	tests := []struct {
		strategy string
		want     any
	}{
		{"dispatch", &DispatchPublisher{}},
		{"proxy", &ProxyPublisher{}},
		{"token", &TokenPublisher{}},
		{"", &TokenPublisher{}},
		{"multipart", &MultipartPublisher{}},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			cfg := config.DefaultPublishConfig()
			cfg.Strategy = tt.strategy
			p, err := New(cfg, zap.NewNop())
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}

	cfg := config.DefaultPublishConfig()
	cfg.Strategy = "carrier-pigeon"
	_, err := New(cfg, nil)
	assert.Error(t, err)

	cfg = config.DefaultPublishConfig()
	cfg.CAFile = "/does/not/exist.pem"
	_, err = New(cfg, nil)
	assert.Error(t, err)
}

func TestGenerateCode(t *testing.T) {
	uri, err := GenerateCode("https://x/y", 0)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	png, err := codec.DecodeBase64(uri)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	_, err = GenerateCode("", 128)
	assert.Error(t, err)
}
