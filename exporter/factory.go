package exporter

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/config"
	"github.com/BaSui01/arpublish/types"
)

// NewFromConfig builds a coordinator for cfg and returns the requested formats.
//
// Per format the source is, in order: files[format], {OutputDir}/export.{ext},
// RendererURL with {format} substituted. A format without a source must be
// covered by a placeholder rule.
func NewFromConfig(cfg config.ExportConfig, files map[types.Format]string, logger *zap.Logger) (*Coordinator, []types.Format, error) {
	formats := make([]types.Format, 0, len(cfg.Formats))
	for _, name := range cfg.Formats {
		f, ok := types.ParseFormat(name)
		if !ok {
			return nil, nil, fmt.Errorf("unknown export format %q", name)
		}
		formats = append(formats, f)
	}
	if len(formats) == 0 {
		return nil, nil, fmt.Errorf("no export formats configured")
	}

	c := NewCoordinator(logger)
	for _, f := range formats {
		switch {
		case files[f] != "":
			c.Register(f, FileExporter{Path: files[f]})
		case cfg.OutputDir != "":
			c.Register(f, FileExporter{Path: filepath.Join(cfg.OutputDir, "export."+f.Extension())})
		case cfg.RendererURL != "":
			c.Register(f, NewHTTPExporter(strings.ReplaceAll(cfg.RendererURL, "{format}", f.Extension()), cfg.Timeout))
		}
	}

	for target, source := range cfg.Placeholders {
		t, ok := types.ParseFormat(target)
		if !ok {
			return nil, nil, fmt.Errorf("unknown placeholder target %q", target)
		}
		s, ok := types.ParseFormat(source)
		if !ok {
			return nil, nil, fmt.Errorf("unknown placeholder source %q", source)
		}
		c.AllowPlaceholder(t, s)
	}

	for _, f := range formats {
		if !c.Supports(f) {
			return nil, nil, fmt.Errorf("no exporter for %s", f)
		}
	}
	return c, formats, nil
}
