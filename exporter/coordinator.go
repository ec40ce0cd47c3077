package exporter

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/arpublish/types"
)

// Coordinator 按格式调度导出器
type Coordinator struct {
	mu           sync.RWMutex
	exporters    map[types.Format]Exporter
	placeholders map[types.Format]types.Format // target -> source
	logger       *zap.Logger
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		exporters:    make(map[types.Format]Exporter),
		placeholders: make(map[types.Format]types.Format),
		logger:       logger.With(zap.String("component", "export_coordinator")),
	}
}

// Register binds an exporter to a format, replacing any previous one.
func (c *Coordinator) Register(format types.Format, exp Exporter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exporters[format] = exp
}

// AllowPlaceholder declares that target may be derived from source's bytes
// when target has no exporter of its own. The resulting artifact is marked.
func (c *Coordinator) AllowPlaceholder(target, source types.Format) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.placeholders[target] = source
}

// Supports reports whether format can be produced, natively or as a placeholder.
func (c *Coordinator) Supports(format types.Format) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.exporters[format]; ok {
		return true
	}
	src, ok := c.placeholders[format]
	if !ok {
		return false
	}
	_, ok = c.exporters[src]
	return ok
}

// Native reports whether format has a dedicated exporter.
func (c *Coordinator) Native(format types.Format) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.exporters[format]
	return ok
}

type plan struct {
	run         map[types.Format]Exporter
	placeholder map[types.Format]types.Format
}

func (c *Coordinator) plan(req Request) (*plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	formats := req.Formats()
	if len(formats) == 0 {
		return nil, types.NewError(types.ErrExportFailure, "no export formats requested")
	}

	p := &plan{
		run:         make(map[types.Format]Exporter),
		placeholder: make(map[types.Format]types.Format),
	}
	for _, f := range formats {
		if exp, ok := c.exporters[f]; ok {
			p.run[f] = exp
			continue
		}
		src, ok := c.placeholders[f]
		if !ok {
			return nil, types.NewError(types.ErrExportFailure,
				fmt.Sprintf("no exporter registered for %s", f))
		}
		exp, ok := c.exporters[src]
		if !ok {
			return nil, types.NewError(types.ErrExportFailure,
				fmt.Sprintf("placeholder source %s for %s has no exporter", src, f))
		}
		p.run[src] = exp
		p.placeholder[f] = src
	}
	return p, nil
}

// ExportAll runs every exporter the request needs concurrently and joins them.
// The first failure cancels the remaining exporters.
func (c *Coordinator) ExportAll(ctx context.Context, req Request) (map[types.Format]*Artifact, error) {
	p, err := c.plan(req)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		payload = make(map[types.Format][]byte, len(p.run))
	)

	g, gctx := errgroup.WithContext(ctx)
	for format, exp := range p.run {
		format, exp := format, exp
		g.Go(func() error {
			data, err := runExporter(gctx, exp, req.Params(format))
			if err != nil {
				return types.NewError(types.ErrExportFailure,
					fmt.Sprintf("exporter %s failed", format)).WithCause(err)
			}
			if len(data) == 0 {
				return types.NewError(types.ErrExportFailure,
					fmt.Sprintf("exporter %s returned empty result", format))
			}
			mu.Lock()
			payload[format] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Warn("export failed", zap.Error(err))
		return nil, err
	}

	out := make(map[types.Format]*Artifact, len(req.formats))
	for _, f := range req.formats {
		if src, ok := p.placeholder[f]; ok {
			a := NewArtifact(f, payload[src])
			a.Placeholder = true
			a.DerivedFrom = src
			c.logger.Warn("placeholder artifact derived from another format",
				zap.String("format", string(f)),
				zap.String("derived_from", string(src)),
			)
			out[f] = a
			continue
		}
		out[f] = NewArtifact(f, payload[f])
	}

	c.logger.Debug("export completed", zap.Int("artifacts", len(out)))
	return out, nil
}

// runExporter converts an exporter panic into an error.
func runExporter(ctx context.Context, exp Exporter, params map[string]string) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("exporter panicked: %v", r)
		}
	}()
	return exp.Export(ctx, params)
}
