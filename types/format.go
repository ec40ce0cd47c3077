package types

import "strings"

// Format 导出格式
type Format string

const (
	// FormatGLB 通用 glTF 二进制格式，用于 Web/Android 查看器
	FormatGLB Format = "glb"
	// FormatUSDZ Apple Quick Look 使用的 AR 格式
	FormatUSDZ Format = "usdz"
)

// Extension returns the file extension without the leading dot.
func (f Format) Extension() string {
	return strings.ToLower(string(f))
}

// ContentType returns the MIME type used when uploading or serving the format.
func (f Format) ContentType() string {
	switch f {
	case FormatGLB:
		return "model/gltf-binary"
	case FormatUSDZ:
		return "model/vnd.usdz+zip"
	default:
		return "application/octet-stream"
	}
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	return f == FormatGLB || f == FormatUSDZ
}

// ParseFormat parses a case-insensitive format name.
func ParseFormat(s string) (Format, bool) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	return f, f.Valid()
}
