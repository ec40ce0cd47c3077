package exporter

import (
	"context"
	"fmt"
	"os"
)

// FileExporter reads the payload a renderer wrote to disk.
type FileExporter struct {
	Path string
}

// Export reads the whole file.
func (e FileExporter) Export(ctx context.Context, _ map[string]string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return nil, fmt.Errorf("read export file: %w", err)
	}
	return data, nil
}
