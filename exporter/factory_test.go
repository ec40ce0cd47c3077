package exporter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/arpublish/config"
	"github.com/BaSui01/arpublish/types"
)

func TestNewFromConfig_OutputDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "export.glb"), []byte("glb-bytes"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "export.usdz"), []byte("usdz-bytes"), 0o600))

	c, formats, err := NewFromConfig(config.ExportConfig{Formats: []string{"GLB", "usdz"}, OutputDir: dir}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []types.Format{types.FormatGLB, types.FormatUSDZ}, formats)

	arts, err := c.ExportAll(context.Background(), NewRequest(formats...))
	require.NoError(t, err)
	usdz, err := arts[types.FormatUSDZ].Bytes()
	require.NoError(t, err)
	assert.Equal(t, "usdz-bytes", string(usdz))
	assert.False(t, arts[types.FormatUSDZ].Placeholder)
}

func TestNewFromConfig_FilesOverrideAndPlaceholder(t *testing.T) {
	dir := t.TempDir()
	glb := filepath.Join(dir, "model.glb")
	require.NoError(t, os.WriteFile(glb, []byte("glb-bytes"), 0o600))

	cfg := config.ExportConfig{
		Formats:      []string{"glb", "usdz"},
		Placeholders: map[string]string{"usdz": "glb"},
	}
	c, formats, err := NewFromConfig(cfg, map[types.Format]string{types.FormatGLB: glb}, nil)
	require.NoError(t, err)
	assert.True(t, c.Native(types.FormatGLB))
	assert.False(t, c.Native(types.FormatUSDZ))

	arts, err := c.ExportAll(context.Background(), NewRequest(formats...))
	require.NoError(t, err)
	assert.True(t, arts[types.FormatUSDZ].Placeholder)
	assert.Equal(t, types.FormatGLB, arts[types.FormatUSDZ].DerivedFrom)
}

func TestNewFromConfig_RendererURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	c, formats, err := NewFromConfig(config.ExportConfig{Formats: []string{"glb"}, RendererURL: srv.URL + "/export/{format}"}, nil, nil)
	require.NoError(t, err)
	exp := c.exporters[types.FormatGLB].(*HTTPExporter)
	exp.WithClient(srv.Client())

	arts, err := c.ExportAll(context.Background(), NewRequest(formats...))
	require.NoError(t, err)
	data, err := arts[types.FormatGLB].Bytes()
	require.NoError(t, err)
	assert.Equal(t, "/export/glb", string(data))
}

func TestNewFromConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ExportConfig
		want string
	}{
		{"no formats", config.ExportConfig{}, "no export formats"},
		{"unknown format", config.ExportConfig{Formats: []string{"obj"}}, `unknown export format "obj"`},
		{"no source", config.ExportConfig{Formats: []string{"glb"}}, "no exporter for glb"},
		{"bad placeholder target", config.ExportConfig{Formats: []string{"glb"}, OutputDir: "x", Placeholders: map[string]string{"fbx": "glb"}}, "placeholder target"},
		{"bad placeholder source", config.ExportConfig{Formats: []string{"glb"}, OutputDir: "x", Placeholders: map[string]string{"usdz": "fbx"}}, "placeholder source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewFromConfig(tt.cfg, nil, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
