package preview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/exporter"
	"github.com/BaSui01/arpublish/types"
)

// DefaultReleaseAfter 句柄默认保留时间
const DefaultReleaseAfter = 30 * time.Second

// Source 产出导出产物
type Source interface {
	ExportAll(ctx context.Context, req exporter.Request) (map[types.Format]*exporter.Artifact, error)
}

// Viewer 打开预览地址
type Viewer interface {
	Open(ctx context.Context, url string, format types.Format) error
}

// ViewerFunc adapts a function to Viewer.
type ViewerFunc func(ctx context.Context, url string, format types.Format) error

// Open calls f.
func (f ViewerFunc) Open(ctx context.Context, url string, format types.Format) error {
	return f(ctx, url, format)
}

// Handle 一次预览的结果
type Handle struct {
	ID          string       `json:"handle"`
	URL         string       `json:"url"`
	Format      types.Format `json:"format"`
	Placeholder bool         `json:"placeholder,omitempty"`
	ExpiresAt   time.Time    `json:"expiresAt,omitempty"`
}

// Config Previewer 配置
type Config struct {
	Format       types.Format
	ReleaseAfter time.Duration
	// BaseURL 句柄地址前缀，句柄挂在 {BaseURL}/preview/{handle}
	BaseURL string
}

// Previewer 本地 AR 预览
type Previewer struct {
	cfg        Config
	source     Source
	store      *BlobStore
	viewer     Viewer
	capability func() Capability
	logger     *zap.Logger
}

// NewPreviewer creates a previewer. capability is usually the workflow
// controller's memoized probe.
func NewPreviewer(cfg Config, source Source, store *BlobStore, viewer Viewer, capability func() Capability, logger *zap.Logger) *Previewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Format == "" {
		cfg.Format = types.FormatUSDZ
	}
	if cfg.ReleaseAfter <= 0 {
		cfg.ReleaseAfter = DefaultReleaseAfter
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if viewer == nil {
		viewer = ViewerFunc(func(context.Context, string, types.Format) error { return nil })
	}
	if capability == nil {
		capability = func() Capability { return Capability{} }
	}
	return &Previewer{
		cfg:        cfg,
		source:     source,
		store:      store,
		viewer:     viewer,
		capability: capability,
		logger:     logger.With(zap.String("component", "previewer")),
	}
}

// Store returns the backing blob store.
func (p *Previewer) Store() *BlobStore { return p.store }

// Preview exports the AR format, hosts it under a temporary handle and opens
// it with the viewer. The handle is released after ReleaseAfter.
func (p *Previewer) Preview(ctx context.Context) (*Handle, error) {
	return p.PreviewFor(ctx, p.capability())
}

// PreviewFor is Preview gated on an explicit capability, used when the
// requesting device is not the local one.
func (p *Previewer) PreviewFor(ctx context.Context, c Capability) (*Handle, error) {
	if !c.ARSupported() {
		return nil, types.NewError(types.ErrUnsupported,
			fmt.Sprintf("local AR preview not available on %s", c.Platform))
	}

	arts, err := p.source.ExportAll(ctx, exporter.NewRequest(p.cfg.Format))
	if err != nil {
		return nil, err
	}
	art, ok := arts[p.cfg.Format]
	if !ok {
		return nil, types.NewError(types.ErrExportFailure, fmt.Sprintf("no %s artifact produced", p.cfg.Format))
	}
	data, err := art.Bytes()
	if err != nil {
		return nil, types.NewError(types.ErrExportFailure, "read preview artifact").WithCause(err)
	}

	blob := p.store.Put(p.cfg.Format, data, p.cfg.ReleaseAfter)
	h := &Handle{
		ID:          blob.Handle,
		URL:         p.cfg.BaseURL + "/preview/" + blob.Handle,
		Format:      p.cfg.Format,
		Placeholder: art.Placeholder,
		ExpiresAt:   blob.ExpiresAt,
	}

	if err := p.viewer.Open(ctx, h.URL, h.Format); err != nil {
		p.store.Release(blob.Handle)
		return nil, fmt.Errorf("open preview: %w", err)
	}
	p.logger.Info("preview opened",
		zap.String("handle", h.ID),
		zap.Bool("placeholder", h.Placeholder),
		zap.Duration("release_after", p.cfg.ReleaseAfter),
	)
	return h, nil
}
