package publish

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/codec"
	"github.com/BaSui01/arpublish/identity"
	"github.com/BaSui01/arpublish/types"
)

// ProxyPublisher 直接 POST JSON 到无鉴权代理
type ProxyPublisher struct {
	transport
}

// NewProxyPublisher creates a proxy publisher.
func NewProxyPublisher(endpoint string, client *http.Client, codeSize int, logger *zap.Logger) *ProxyPublisher {
	return &ProxyPublisher{transport: newTransport("proxy", endpoint, client, codeSize, logger)}
}

// Name returns "proxy".
func (p *ProxyPublisher) Name() string { return p.name }

// Encoding returns base64.
func (p *ProxyPublisher) Encoding() codec.Strategy { return codec.StrategyBase64 }

// Publish posts {subjectId, glb, usdz} and returns the proxy's link and code.
// A response without qrCodeUrl gets a locally generated code.
func (p *ProxyPublisher) Publish(ctx context.Context, id identity.Identity, arts map[types.Format]*codec.Encoded) (*Result, error) {
	status, body, err := p.postJSON(ctx, jsonBody(id, arts), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.parseUpload(status, body)
	if err != nil {
		return nil, err
	}

	qr := resp.QRCodeURL
	if qr == "" {
		if qr, err = p.code(resp.ARLink); err != nil {
			return nil, err
		}
	}
	p.logger.Info("proxy upload complete", zap.String("subject", id.SubjectID), zap.String("ar_link", resp.ARLink))
	return &Result{ARLink: resp.ARLink, QRCodeURL: qr}, nil
}
