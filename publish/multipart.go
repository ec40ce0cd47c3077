package publish

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/codec"
	"github.com/BaSui01/arpublish/identity"
	"github.com/BaSui01/arpublish/types"
)

// SubjectField multipart 表单中的主体字段名
const SubjectField = "pdbId"

// MultipartPublisher 以 multipart/form-data 上传文件字段
type MultipartPublisher struct {
	transport
}

// NewMultipartPublisher creates a multipart publisher.
func NewMultipartPublisher(endpoint string, client *http.Client, codeSize int, logger *zap.Logger) *MultipartPublisher {
	return &MultipartPublisher{transport: newTransport("multipart", endpoint, client, codeSize, logger)}
}

// Name returns "multipart".
func (p *MultipartPublisher) Name() string { return p.name }

// Encoding returns multipart.
func (p *MultipartPublisher) Encoding() codec.Strategy { return codec.StrategyMultipart }

// Publish uploads pdbId plus one file part per format.
func (p *MultipartPublisher) Publish(ctx context.Context, id identity.Identity, arts map[types.Format]*codec.Encoded) (*Result, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField(SubjectField, id.SubjectID); err != nil {
		return nil, p.fail(types.CauseNetwork, "write form", err)
	}
	for _, f := range sortedFormats(arts) {
		part := arts[f].Part
		if part == nil {
			return nil, p.fail(types.CauseInvalidResponse, fmt.Sprintf("%s artifact is not multipart encoded", f), nil)
		}
		if err := codec.WritePart(w, part); err != nil {
			return nil, p.fail(types.CauseNetwork, "write form", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, p.fail(types.CauseNetwork, "write form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &buf)
	if err != nil {
		return nil, p.fail(types.CauseNetwork, "build request", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	status, body, err := p.do(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.parseUpload(status, body)
	if err != nil {
		return nil, err
	}
	qr, err := p.code(resp.ARLink)
	if err != nil {
		return nil, err
	}
	p.logger.Info("multipart upload complete", zap.String("subject", id.SubjectID), zap.String("ar_link", resp.ARLink))
	return &Result{ARLink: resp.ARLink, QRCodeURL: qr}, nil
}
