package codec

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/exporter"
	"github.com/BaSui01/arpublish/types"
)

// Strategy 传输编码方式
type Strategy string

const (
	StrategyBase64    Strategy = "base64"
	StrategyMultipart Strategy = "multipart"
)

// Part 一个 multipart 文件字段
type Part struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// Encoded 传输就绪的产物
type Encoded struct {
	Format      types.Format
	Filename    string
	Strategy    Strategy
	Base64      string
	Part        *Part
	Placeholder bool
}

// Encoder 产物编码器
type Encoder struct {
	logger *zap.Logger
}

// NewEncoder creates an encoder.
func NewEncoder(logger *zap.Logger) *Encoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Encoder{logger: logger.With(zap.String("component", "encoder"))}
}

// Encode reads the artifact and encodes it with strategy.
func (e *Encoder) Encode(ctx context.Context, a *exporter.Artifact, filename string, strategy Strategy) (*Encoded, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewError(types.ErrEncodingFailure, "encoding cancelled").WithCause(err)
	}
	if a == nil {
		return nil, types.NewError(types.ErrEncodingFailure, "nil artifact")
	}

	data, err := a.Bytes()
	if err != nil {
		return nil, types.NewError(types.ErrEncodingFailure,
			fmt.Sprintf("read %s artifact", a.Format)).WithCause(err)
	}

	out := &Encoded{
		Format:      a.Format,
		Filename:    filename,
		Strategy:    strategy,
		Placeholder: a.Placeholder,
	}
	switch strategy {
	case StrategyBase64:
		out.Base64 = base64.StdEncoding.EncodeToString(data)
	case StrategyMultipart:
		ct := a.ContentType
		if ct == "" {
			ct = a.Format.ContentType()
		}
		out.Part = &Part{
			Field:       string(a.Format),
			Filename:    filename,
			ContentType: ct,
			Data:        data,
		}
	default:
		return nil, types.NewError(types.ErrEncodingFailure,
			fmt.Sprintf("unknown encoding strategy %q", strategy))
	}

	e.logger.Debug("artifact encoded",
		zap.String("format", string(a.Format)),
		zap.String("strategy", string(strategy)),
		zap.Int("bytes", len(data)),
	)
	return out, nil
}

// EncodeAll encodes every artifact, naming each with name(format).
func (e *Encoder) EncodeAll(ctx context.Context, arts map[types.Format]*exporter.Artifact, name func(types.Format) string, strategy Strategy) (map[types.Format]*Encoded, error) {
	out := make(map[types.Format]*Encoded, len(arts))
	for format, a := range arts {
		enc, err := e.Encode(ctx, a, name(format), strategy)
		if err != nil {
			return nil, err
		}
		out[format] = enc
	}
	return out, nil
}

// StripDataURI removes a "data:<type>;base64," header if present.
func StripDataURI(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ","); i >= 0 {
		return s[i+1:]
	}
	return s
}

// DecodeBase64 decodes standard base64, tolerating a data URI header.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(StripDataURI(strings.TrimSpace(s)))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return data, nil
}

// DataURI renders data as a base64 data URI.
func DataURI(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// WritePart writes p as a file field of w.
func WritePart(w *multipart.Writer, p *Part) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.Field, p.Filename))
	h.Set("Content-Type", p.ContentType)
	pw, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part %s: %w", p.Field, err)
	}
	if _, err := pw.Write(p.Data); err != nil {
		return fmt.Errorf("write part %s: %w", p.Field, err)
	}
	return nil
}

// ReadAllLimited reads at most limit bytes from r and fails if more remain.
func ReadAllLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("payload exceeds %d bytes", limit)
	}
	return data, nil
}
