package publish

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/config"
	"github.com/BaSui01/arpublish/internal/tlsutil"
)

// New creates the publisher selected by cfg.Strategy.
//
// Supported strategies: dispatch, proxy, token, multipart.
func New(cfg config.PublishConfig, logger *zap.Logger) (Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := tlsutil.NewHTTPClient(tlsutil.ClientOptions{
		Timeout: cfg.Timeout,
		CAFile:  cfg.CAFile,
	})
	if err != nil {
		return nil, fmt.Errorf("publish client: %w", err)
	}

	switch cfg.Strategy {
	case "dispatch":
		return NewDispatchPublisher(cfg.Endpoint, cfg.Credential, cfg.EventType, cfg.LinkTemplate, client, cfg.CodeSize, logger), nil
	case "proxy":
		return NewProxyPublisher(cfg.Endpoint, client, cfg.CodeSize, logger), nil
	case "token", "":
		return NewTokenPublisher(cfg.TokenURL, cfg.Endpoint, cfg.GenerateCode, client, cfg.CodeSize, logger), nil
	case "multipart":
		return NewMultipartPublisher(cfg.Endpoint, client, cfg.CodeSize, logger), nil
	default:
		return nil, fmt.Errorf("unknown publish strategy %q", cfg.Strategy)
	}
}
