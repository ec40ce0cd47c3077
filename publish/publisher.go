package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/codec"
	"github.com/BaSui01/arpublish/identity"
	"github.com/BaSui01/arpublish/types"
)

// maxResponseBytes 上限，防止异常服务返回超大响应
const maxResponseBytes = 1 << 20

// Publisher 发布传输策略
type Publisher interface {
	// Name 返回策略名
	Name() string
	// Encoding 返回该策略需要的产物编码
	Encoding() codec.Strategy
	// Publish 上传产物并返回分享结果
	Publish(ctx context.Context, id identity.Identity, arts map[types.Format]*codec.Encoded) (*Result, error)
}

// Result 发布结果
type Result struct {
	ARLink    string `json:"arLink"`
	QRCodeURL string `json:"qrCodeUrl,omitempty"`
}

// Credential 上传前临时获取的令牌，不跨请求缓存
type Credential struct {
	Token     string
	FetchedAt time.Time
}

// uploadResponse 上传端点的通用响应
type uploadResponse struct {
	Success   *bool  `json:"success"`
	ARLink    string `json:"arLink"`
	QRCodeURL string `json:"qrCodeUrl"`
	Error     string `json:"error"`
}

// transport 各策略共享的 HTTP 细节
type transport struct {
	name     string
	endpoint string
	client   *http.Client
	codeSize int
	logger   *zap.Logger
}

func newTransport(name, endpoint string, client *http.Client, codeSize int, logger *zap.Logger) transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return transport{
		name:     name,
		endpoint: endpoint,
		client:   client,
		codeSize: codeSize,
		logger:   logger.With(zap.String("component", "publisher"), zap.String("strategy", name)),
	}
}

// fail builds a PUBLISH_FAILURE carrying cause.
func (t *transport) fail(cause types.ErrorCode, msg string, err error) *types.Error {
	inner := types.NewError(cause, msg)
	if err != nil {
		inner.WithCause(err)
	}
	return types.NewError(types.ErrPublishFailure, "publish via "+t.name+" failed").
		WithStrategy(t.name).
		WithRetryable(cause == types.CauseNetwork).
		WithCause(inner)
}

// do sends req and returns status and a bounded body.
func (t *transport) do(req *http.Request) (int, []byte, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, t.fail(types.CauseNetwork, "request "+req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, t.fail(types.CauseNetwork, "read response", err)
	}
	return resp.StatusCode, body, nil
}

// postJSON posts payload to the configured endpoint.
func (t *transport) postJSON(ctx context.Context, payload any, header http.Header) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, t.fail(types.CauseInvalidResponse, "marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(data))
	if err != nil {
		return 0, nil, t.fail(types.CauseNetwork, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	t.logger.Debug("posting artifacts", zap.String("endpoint", req.URL.Redacted()), zap.Int("bytes", len(data)))
	return t.do(req)
}

// parseUpload validates an upload response body.
func (t *transport) parseUpload(status int, body []byte) (*uploadResponse, error) {
	if status < 200 || status >= 300 {
		return nil, t.fail(types.CauseUploadStatus,
			fmt.Sprintf("upload status=%d body=%s", status, truncate(body, 256)), nil)
	}
	var out uploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, t.fail(types.CauseInvalidResponse, "decode upload response", err)
	}
	if out.Success == nil {
		return nil, t.fail(types.CauseInvalidResponse, "response missing success flag", nil)
	}
	if !*out.Success {
		msg := out.Error
		if msg == "" {
			msg = "upload rejected"
		}
		return nil, t.fail(types.CauseInvalidResponse, msg, nil)
	}
	if out.ARLink == "" {
		return nil, t.fail(types.CauseInvalidResponse, "response missing arLink", nil)
	}
	return &out, nil
}

// code renders the local QR code for link.
func (t *transport) code(link string) (string, error) {
	uri, err := GenerateCode(link, t.codeSize)
	if err != nil {
		return "", t.fail(types.CauseInvalidResponse, "generate code", err)
	}
	return uri, nil
}

// jsonBody builds {subjectId, <format>: base64, filenames}.
func jsonBody(id identity.Identity, arts map[types.Format]*codec.Encoded) map[string]any {
	body := map[string]any{"subjectId": id.SubjectID}
	names := make(map[string]string, len(arts))
	for format, enc := range arts {
		body[string(format)] = enc.Base64
		names[string(format)] = enc.Filename
	}
	if len(names) > 0 {
		body["filenames"] = names
	}
	return body
}

// sortedFormats 返回稳定顺序的格式列表
func sortedFormats(arts map[types.Format]*codec.Encoded) []types.Format {
	out := make([]types.Format, 0, len(arts))
	for f := range arts {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
