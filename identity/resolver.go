package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/BaSui01/arpublish/types"
)

// UnknownSubject is used when no subject id can be extracted.
const UnknownSubject = "unknown"

const (
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	// DefaultTokenLength 随机令牌长度
	DefaultTokenLength = 8
	stampLayout        = "2006-01-02T15:04:05.000Z"
)

// Identity 一次导出的复合标识
type Identity struct {
	SubjectID string `json:"subjectId"`
	Stamp     string `json:"stamp"`
	Token     string `json:"token"`
}

// Key returns subject, stamp and token joined by underscores.
func (id Identity) Key() string {
	return id.SubjectID + "_" + id.Stamp + "_" + id.Token
}

// Filename derives the artifact filename for format.
func (id Identity) Filename(format types.Format) string {
	return id.Key() + "." + format.Extension()
}

// Resolver 派生 Identity
type Resolver struct {
	now         func() time.Time
	token       func(n int) (string, error)
	tokenLength int
}

// Option 配置 Resolver
type Option func(*Resolver)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithTokenSource overrides the random token source.
func WithTokenSource(fn func(n int) (string, error)) Option {
	return func(r *Resolver) { r.token = fn }
}

// WithTokenLength sets the random token length. Values below 6 are raised to 6.
func WithTokenLength(n int) Option {
	return func(r *Resolver) {
		if n < 6 {
			n = 6
		}
		r.tokenLength = n
	}
}

// NewResolver creates a resolver backed by the wall clock and crypto/rand.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		now:         time.Now,
		token:       RandomToken,
		tokenLength: DefaultTokenLength,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve derives a fresh identity for the loaded subjects.
// A token source failure falls back to a time-derived token so resolution
// itself never blocks an export.
func (r *Resolver) Resolve(subjects []types.Subject) Identity {
	tok, err := r.token(r.tokenLength)
	now := r.now()
	if err != nil || tok == "" {
		tok = fallbackToken(now, r.tokenLength)
	}
	return Identity{
		SubjectID: SubjectID(subjects),
		Stamp:     Stamp(now),
		Token:     tok,
	}
}

// SubjectID extracts the id of the first loaded subject.
func SubjectID(subjects []types.Subject) string {
	if len(subjects) == 0 {
		return UnknownSubject
	}
	id := sanitize(subjects[0].ID)
	if id == "" {
		return UnknownSubject
	}
	return id
}

// Stamp formats t in UTC with separator punctuation stripped.
func Stamp(t time.Time) string {
	return strings.NewReplacer("-", "", ":", "", ".", "").Replace(t.UTC().Format(stampLayout))
}

// RandomToken draws n characters uniformly from [a-z0-9].
func RandomToken(n int) (string, error) {
	max := big.NewInt(int64(len(tokenAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("draw random token: %w", err)
		}
		b.WriteByte(tokenAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

func fallbackToken(t time.Time, n int) string {
	s := strings.ToLower(big.NewInt(t.UnixNano()).Text(36))
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}

// sanitize keeps filename-safe characters only.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			b.WriteRune(c)
		case c == ' ', c == '_', c == '.':
			b.WriteByte('-')
		}
	}
	return b.String()
}
