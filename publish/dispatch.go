package publish

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/codec"
	"github.com/BaSui01/arpublish/identity"
	"github.com/BaSui01/arpublish/types"
)

// DispatchPublisher 通过静态凭证触发远端分发事件（如 GitHub repository_dispatch）。
// 远端异步处理，链接由模板按派生文件名拼出。
type DispatchPublisher struct {
	transport
	credential   string
	eventType    string
	linkTemplate string
}

// NewDispatchPublisher creates a dispatch publisher.
func NewDispatchPublisher(endpoint, credential, eventType, linkTemplate string, client *http.Client, codeSize int, logger *zap.Logger) *DispatchPublisher {
	return &DispatchPublisher{
		transport:    newTransport("dispatch", endpoint, client, codeSize, logger),
		credential:   credential,
		eventType:    eventType,
		linkTemplate: linkTemplate,
	}
}

// Name returns "dispatch".
func (p *DispatchPublisher) Name() string { return p.name }

// Encoding returns base64.
func (p *DispatchPublisher) Encoding() codec.Strategy { return codec.StrategyBase64 }

// Publish sends the dispatch event. Any 2xx is success.
func (p *DispatchPublisher) Publish(ctx context.Context, id identity.Identity, arts map[types.Format]*codec.Encoded) (*Result, error) {
	payload := map[string]any{
		"event_type":     p.eventType,
		"client_payload": jsonBody(id, arts),
	}
	header := http.Header{}
	header.Set("Authorization", "token "+p.credential)
	header.Set("Accept", "application/vnd.github+json")

	status, body, err := p.postJSON(ctx, payload, header)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, p.fail(types.CauseUploadStatus,
			fmt.Sprintf("dispatch status=%d body=%s", status, truncate(body, 256)), nil)
	}

	link := p.Link(id, arts)
	qr, err := p.code(link)
	if err != nil {
		return nil, err
	}
	p.logger.Info("dispatch accepted", zap.String("subject", id.SubjectID), zap.String("ar_link", link))
	return &Result{ARLink: link, QRCodeURL: qr}, nil
}

// Link expands {subject}, {key} and {<format>} placeholders in the link template.
func (p *DispatchPublisher) Link(id identity.Identity, arts map[types.Format]*codec.Encoded) string {
	pairs := []string{
		"{subject}", url.PathEscape(id.SubjectID),
		"{key}", url.PathEscape(id.Key()),
	}
	for _, f := range sortedFormats(arts) {
		pairs = append(pairs, "{"+string(f)+"}", url.PathEscape(arts[f].Filename))
	}
	return strings.NewReplacer(pairs...).Replace(p.linkTemplate)
}
