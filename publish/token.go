package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/codec"
	"github.com/BaSui01/arpublish/identity"
	"github.com/BaSui01/arpublish/types"
)

// TokenPublisher 先获取短期令牌，再携带 Bearer 头上传
type TokenPublisher struct {
	transport
	tokenURL     string
	generateCode bool
	now          func() time.Time
}

// NewTokenPublisher creates a token-proxy publisher.
func NewTokenPublisher(tokenURL, endpoint string, generateCode bool, client *http.Client, codeSize int, logger *zap.Logger) *TokenPublisher {
	return &TokenPublisher{
		transport:    newTransport("token", endpoint, client, codeSize, logger),
		tokenURL:     tokenURL,
		generateCode: generateCode,
		now:          time.Now,
	}
}

// Name returns "token".
func (p *TokenPublisher) Name() string { return p.name }

// Encoding returns base64.
func (p *TokenPublisher) Encoding() codec.Strategy { return codec.StrategyBase64 }

// FetchCredential gets a fresh token. It is called once per upload.
func (p *TokenPublisher) FetchCredential(ctx context.Context) (*Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.tokenURL, nil)
	if err != nil {
		return nil, p.fail(types.CauseNetwork, "build token request", err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := p.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, p.fail(types.CauseTokenStatus,
			fmt.Sprintf("token status=%d body=%s", status, truncate(body, 256)), nil)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, p.fail(types.CauseInvalidResponse, "decode token response", err)
	}
	if out.Token == "" {
		return nil, p.fail(types.CauseInvalidResponse, "token response missing token", nil)
	}
	return &Credential{Token: out.Token, FetchedAt: p.now()}, nil
}

// Publish fetches a credential, uploads, and renders the code locally when enabled.
func (p *TokenPublisher) Publish(ctx context.Context, id identity.Identity, arts map[types.Format]*codec.Encoded) (*Result, error) {
	cred, err := p.FetchCredential(ctx)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred.Token)
	status, body, err := p.postJSON(ctx, jsonBody(id, arts), header)
	if err != nil {
		return nil, err
	}
	resp, err := p.parseUpload(status, body)
	if err != nil {
		return nil, err
	}

	result := &Result{ARLink: resp.ARLink}
	if p.generateCode {
		if result.QRCodeURL, err = p.code(resp.ARLink); err != nil {
			return nil, err
		}
	}
	p.logger.Info("token upload complete",
		zap.String("subject", id.SubjectID),
		zap.String("ar_link", resp.ARLink),
		zap.Bool("code", result.QRCodeURL != ""),
	)
	return result, nil
}
