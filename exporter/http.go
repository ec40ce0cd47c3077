package exporter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/BaSui01/arpublish/internal/tlsutil"
)

// maxExportBytes 单个导出结果的大小上限
const maxExportBytes = 256 << 20

// HTTPExporter fetches the payload from a renderer endpoint.
// Request parameters are sent as query parameters.
type HTTPExporter struct {
	url    string
	client *http.Client
	header http.Header
}

// NewHTTPExporter creates an exporter for endpoint.
func NewHTTPExporter(endpoint string, timeout time.Duration) *HTTPExporter {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPExporter{
		url:    endpoint,
		client: tlsutil.SecureHTTPClient(timeout),
		header: make(http.Header),
	}
}

// WithHeader adds a request header.
func (e *HTTPExporter) WithHeader(key, value string) *HTTPExporter {
	e.header.Add(key, value)
	return e
}

// WithClient overrides the HTTP client.
func (e *HTTPExporter) WithClient(c *http.Client) *HTTPExporter {
	e.client = c
	return e
}

// Export performs a GET and returns the body.
func (e *HTTPExporter) Export(ctx context.Context, params map[string]string) ([]byte, error) {
	u, err := url.Parse(e.url)
	if err != nil {
		return nil, fmt.Errorf("invalid exporter url: %w", err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range e.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("renderer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("renderer error: status=%d body=%s", resp.StatusCode, string(errBody))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxExportBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read renderer response: %w", err)
	}
	if len(data) > maxExportBytes {
		return nil, fmt.Errorf("renderer response exceeds %d bytes", maxExportBytes)
	}
	return data, nil
}
