package exporter

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/BaSui01/arpublish/types"
)

// Exporter produces the binary payload for one format.
type Exporter interface {
	Export(ctx context.Context, params map[string]string) ([]byte, error)
}

// ExporterFunc adapts an ordinary function to the Exporter interface.
type ExporterFunc func(ctx context.Context, params map[string]string) ([]byte, error)

// Export invokes the wrapped function.
func (f ExporterFunc) Export(ctx context.Context, params map[string]string) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("nil exporter func")
	}
	return f(ctx, params)
}

// Request 导出请求，创建后不可修改
type Request struct {
	formats []types.Format
	params  map[types.Format]map[string]string
}

// NewRequest creates a request for the given formats. Duplicates are dropped.
func NewRequest(formats ...types.Format) Request {
	seen := make(map[types.Format]struct{}, len(formats))
	out := make([]types.Format, 0, len(formats))
	for _, f := range formats {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return Request{formats: out, params: map[types.Format]map[string]string{}}
}

// WithParams returns a copy of the request with format-specific parameters set.
func (r Request) WithParams(format types.Format, params map[string]string) Request {
	next := Request{
		formats: r.formats,
		params:  make(map[types.Format]map[string]string, len(r.params)+1),
	}
	for k, v := range r.params {
		next.params[k] = v
	}
	cp := make(map[string]string, len(params))
	for k, v := range params {
		cp[k] = v
	}
	next.params[format] = cp
	return next
}

// Formats returns a copy of the requested formats.
func (r Request) Formats() []types.Format {
	out := make([]types.Format, len(r.formats))
	copy(out, r.formats)
	return out
}

// Params returns a copy of the parameters for format.
func (r Request) Params(format types.Format) map[string]string {
	src := r.params[format]
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Artifact 单次导出的二进制结果
type Artifact struct {
	Format      types.Format `json:"format"`
	ContentType string       `json:"content_type"`
	Size        int64        `json:"size"`
	// Placeholder 为 true 表示字节来自 DerivedFrom 格式，并非真正的转换结果
	Placeholder bool         `json:"placeholder,omitempty"`
	DerivedFrom types.Format `json:"derived_from,omitempty"`

	open func() (io.ReadCloser, error)
}

// NewArtifact wraps in-memory bytes.
func NewArtifact(format types.Format, data []byte) *Artifact {
	return &Artifact{
		Format:      format,
		ContentType: format.ContentType(),
		Size:        int64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// NewStreamArtifact wraps a lazily opened payload, e.g. a file a renderer wrote.
func NewStreamArtifact(format types.Format, size int64, open func() (io.ReadCloser, error)) *Artifact {
	return &Artifact{
		Format:      format,
		ContentType: format.ContentType(),
		Size:        size,
		open:        open,
	}
}

// Open returns a reader over the artifact bytes.
func (a *Artifact) Open() (io.ReadCloser, error) {
	if a == nil || a.open == nil {
		return nil, fmt.Errorf("artifact has no content")
	}
	return a.open()
}

// Bytes reads the full artifact content.
func (a *Artifact) Bytes() ([]byte, error) {
	rc, err := a.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
