package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/codec"
	"github.com/BaSui01/arpublish/config"
	"github.com/BaSui01/arpublish/internal/database"
	"github.com/BaSui01/arpublish/internal/metrics"
	"github.com/BaSui01/arpublish/publish"
	"github.com/BaSui01/arpublish/types"
)

// =============================================================================
// 📡 Relay HTTP 服务
// =============================================================================

// uploadRequest JSON 上传体
type uploadRequest struct {
	SubjectID string            `json:"subjectId"`
	GLB       string            `json:"glb"`
	USDZ      string            `json:"usdz"`
	Filenames map[string]string `json:"filenames,omitempty"`
}

// uploadResponse 上传响应
type uploadResponse struct {
	Success   bool   `json:"success"`
	ARLink    string `json:"arLink,omitempty"`
	QRCodeURL string `json:"qrCodeUrl,omitempty"`
	Error     string `json:"error,omitempty"`
}

// tokenResponse 令牌响应
type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Server relay HTTP 处理器
type Server struct {
	cfg     config.RelayConfig
	tokens  *TokenIssuer
	store   ModelStore
	index   ShareIndex
	metrics *metrics.Collector
	logger  *zap.Logger
	page    *template.Template
	now     func() time.Time
}

// NewServer 创建 relay 服务。collector 可为 nil。
func NewServer(cfg config.RelayConfig, tokens *TokenIssuer, store ModelStore, index ShareIndex, collector *metrics.Collector, logger *zap.Logger) (*Server, error) {
	if tokens == nil || store == nil || index == nil {
		return nil, fmt.Errorf("relay: tokens, store and index are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = config.DefaultRelayConfig().MaxUploadBytes
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &Server{
		cfg:     cfg,
		tokens:  tokens,
		store:   store,
		index:   index,
		metrics: collector,
		logger:  logger.With(zap.String("component", "relay")),
		page:    template.Must(template.New("viewer").Parse(viewerPage)),
		now:     time.Now,
	}, nil
}

// IndexName 分享索引后端名称
func (s *Server) IndexName() string { return s.index.Name() }

// Ping 检查分享索引连通性；内存索引总是可用
func (s *Server) Ping(ctx context.Context) error {
	if p, ok := s.index.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Info 健康检查附带信息：索引后端，SQL 索引另附连接池统计
func (s *Server) Info() map[string]any {
	info := map[string]any{"index": s.index.Name()}
	if st, ok := s.index.(interface{ Stats() database.PoolStats }); ok {
		info["pool"] = st.Stats()
	}
	return info
}

// Handler 返回路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/token", s.handleToken)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /models/{name}", s.handleModel)
	mux.HandleFunc("GET /ar/{shareId}", s.handleViewer)
	return mux
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	token, exp, err := s.tokens.Issue()
	if err != nil {
		s.logger.Error("issue token failed", zap.Error(err))
		s.recordToken("error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not issue token"})
		return
	}
	s.recordToken("issued")
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: exp})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	encoding := "json"
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		encoding = "multipart"
	}

	if s.cfg.RequireToken {
		if err := s.authorize(ctx, r); err != nil {
			s.recordUpload(encoding, "unauthorized")
			s.logger.Warn("upload rejected", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, uploadResponse{Error: err.Error()})
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var (
		subject string
		models  map[types.Format][]byte
		err     error
	)
	if encoding == "multipart" {
		subject, models, err = s.readMultipart(r)
	} else {
		subject, models, err = s.readJSON(r)
	}
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		s.recordUpload(encoding, "invalid")
		writeJSON(w, status, uploadResponse{Error: err.Error()})
		return
	}

	share, err := s.save(ctx, subject, models)
	if err != nil {
		s.recordUpload(encoding, "error")
		s.logger.Error("store upload failed", zap.String("subject", subject), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, uploadResponse{Error: "could not store models"})
		return
	}

	link := s.cfg.PublicURL + "/ar/" + share.ID
	qr, err := publish.GenerateCode(link, s.cfg.CodeSize)
	if err != nil {
		s.recordUpload(encoding, "error")
		s.logger.Error("generate qr code failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, uploadResponse{Error: "could not generate code"})
		return
	}

	s.recordUpload(encoding, "success")
	s.logger.Info("upload stored",
		zap.String("share_id", share.ID),
		zap.String("subject", subject),
		zap.Int("models", len(models)),
		zap.String("encoding", encoding),
	)
	writeJSON(w, http.StatusOK, uploadResponse{Success: true, ARLink: link, QRCodeURL: qr})
}

// authorize 校验 Bearer 令牌
func (s *Server) authorize(ctx context.Context, r *http.Request) error {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		s.recordToken("missing")
		return errors.New("missing bearer token")
	}
	if err := s.tokens.Verify(ctx, strings.TrimSpace(token)); err != nil {
		switch {
		case errors.Is(err, ErrTokenReused):
			s.recordToken("reused")
		case errors.Is(err, ErrTokenInvalid):
			s.recordToken("invalid")
		default:
			s.recordToken("error")
		}
		return err
	}
	s.recordToken("accepted")
	return nil
}

func (s *Server) readJSON(r *http.Request) (string, map[types.Format][]byte, error) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	models := make(map[types.Format][]byte, 2)
	for format, payload := range map[types.Format]string{types.FormatGLB: req.GLB, types.FormatUSDZ: req.USDZ} {
		if payload == "" {
			continue
		}
		data, err := codec.DecodeBase64(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", format, err)
		}
		models[format] = data
	}
	if err := checkModels(models); err != nil {
		return "", nil, err
	}
	return req.SubjectID, models, nil
}

func (s *Server) readMultipart(r *http.Request) (string, map[types.Format][]byte, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return "", nil, fmt.Errorf("invalid multipart body: %w", err)
	}
	var subject string
	models := make(map[types.Format][]byte, 2)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("read multipart body: %w", err)
		}
		field := part.FormName()
		if field == publish.SubjectField {
			v, err := codec.ReadAllLimited(part, 256)
			if err != nil {
				return "", nil, fmt.Errorf("%s: %w", field, err)
			}
			subject = strings.TrimSpace(string(v))
			continue
		}
		format, ok := types.ParseFormat(field)
		if !ok {
			continue
		}
		data, err := codec.ReadAllLimited(part, s.cfg.MaxUploadBytes)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", field, err)
		}
		models[format] = data
	}
	if err := checkModels(models); err != nil {
		return "", nil, err
	}
	return subject, models, nil
}

func checkModels(models map[types.Format][]byte) error {
	if len(models) == 0 {
		return errors.New("no models in upload")
	}
	for f, data := range models {
		if len(data) == 0 {
			return fmt.Errorf("%s: empty model", f)
		}
	}
	return nil
}

// save 写入模型并记录分享
func (s *Server) save(ctx context.Context, subject string, models map[types.Format][]byte) (*Share, error) {
	now := s.now().UTC()
	share := &Share{
		ID:        xid.New().String(),
		SubjectID: subject,
		Models:    make(map[types.Format]string, len(models)),
		CreatedAt: now,
	}
	if s.cfg.ShareTTL > 0 {
		share.ExpiresAt = now.Add(s.cfg.ShareTTL)
	}
	for format, data := range models {
		name := ObjectName(share.ID, format)
		if _, err := s.store.Put(ctx, name, data); err != nil {
			s.discard(ctx, share)
			return nil, err
		}
		share.Models[format] = name
	}
	if err := s.index.SaveShare(ctx, share); err != nil {
		s.discard(ctx, share)
		return nil, fmt.Errorf("save share: %w", err)
	}
	return share, nil
}

// discard 删除未能登记的分享已写入的模型
func (s *Server) discard(ctx context.Context, share *Share) {
	for _, name := range share.Models {
		if err := s.store.Delete(ctx, name); err != nil && !errors.Is(err, ErrModelNotFound) {
			s.logger.Warn("failed to remove orphaned model", zap.String("name", name), zap.Error(err))
		}
	}
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	body, obj, err := s.store.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, ErrModelNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("read model failed", zap.String("name", name), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", fmt.Sprint(obj.Size))
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := io.Copy(w, body); err != nil {
		s.logger.Debug("model stream interrupted", zap.String("name", name), zap.Error(err))
	}
}

// viewerData AR 页面数据
type viewerData struct {
	SubjectID string
	GLBURL    string
	USDZURL   string
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("shareId")
	share, err := s.index.GetShare(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrShareNotFound) {
			s.recordIndex(false)
			http.NotFound(w, r)
			return
		}
		s.logger.Error("lookup share failed", zap.String("share_id", id), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.recordIndex(true)

	data := viewerData{SubjectID: share.SubjectID}
	if name, ok := share.Models[types.FormatGLB]; ok {
		data.GLBURL = s.cfg.PublicURL + "/models/" + name
	}
	if name, ok := share.Models[types.FormatUSDZ]; ok {
		data.USDZURL = s.cfg.PublicURL + "/models/" + name
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		s.logger.Error("render viewer failed", zap.Error(err))
	}
}

func (s *Server) recordUpload(encoding, status string) {
	if s.metrics != nil {
		s.metrics.RecordRelayUpload(encoding, status)
	}
}

func (s *Server) recordToken(event string) {
	if s.metrics != nil {
		s.metrics.RecordRelayToken(event)
	}
}

func (s *Server) recordIndex(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.RecordIndexHit(s.index.Name())
		return
	}
	s.metrics.RecordIndexMiss(s.index.Name())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const viewerPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{if .SubjectID}}{{.SubjectID}} in AR{{else}}AR model{{end}}</title>
<script type="module" src="https://ajax.googleapis.com/ajax/libs/model-viewer/3.5.0/model-viewer.min.js"></script>
<style>body{margin:0;font-family:sans-serif}model-viewer{width:100vw;height:85vh}a.ar{display:block;padding:1em;text-align:center}</style>
</head>
<body>
{{if .GLBURL}}<model-viewer src="{{.GLBURL}}"{{if .USDZURL}} ios-src="{{.USDZURL}}"{{end}} ar ar-modes="webxr scene-viewer quick-look" camera-controls auto-rotate alt="{{.SubjectID}}"></model-viewer>{{end}}
{{if .USDZURL}}<a class="ar" rel="ar" href="{{.USDZURL}}">View in AR</a>{{end}}
</body>
</html>
`
