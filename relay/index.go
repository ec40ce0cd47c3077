package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/arpublish/types"
)

var (
	// ErrShareNotFound 分享不存在或已过期
	ErrShareNotFound = errors.New("share not found")
	// ErrShareExpired 保存时分享已经过期
	ErrShareExpired = errors.New("share already expired")
)

// Share 一次上传对应的分享记录
type Share struct {
	ID        string                  `json:"id"`
	SubjectID string                  `json:"subjectId"`
	Models    map[types.Format]string `json:"models"`
	CreatedAt time.Time               `json:"createdAt"`
	ExpiresAt time.Time               `json:"expiresAt,omitempty"`
}

// Expired 判断分享在 now 时刻是否已过期。零值 ExpiresAt 表示永久。
func (s *Share) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// ShareIndex 保存分享记录与已使用的令牌
type ShareIndex interface {
	TokenConsumer
	Name() string
	SaveShare(ctx context.Context, share *Share) error
	GetShare(ctx context.Context, id string) (*Share, error)
}

// =============================================================================
// 🧠 内存索引
// =============================================================================

// MemoryIndex 进程内索引，重启即丢失
type MemoryIndex struct {
	mu     sync.Mutex
	shares map[string]*Share
	tokens map[string]time.Time
	now    func() time.Time
}

// NewMemoryIndex 创建内存索引
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		shares: make(map[string]*Share),
		tokens: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Name returns "memory".
func (m *MemoryIndex) Name() string { return "memory" }

// SaveShare 保存分享
func (m *MemoryIndex) SaveShare(_ context.Context, share *Share) error {
	if share.Expired(m.now()) {
		return ErrShareExpired
	}
	cp := *share
	cp.Models = make(map[types.Format]string, len(share.Models))
	for k, v := range share.Models {
		cp.Models[k] = v
	}
	m.mu.Lock()
	m.shares[share.ID] = &cp
	m.mu.Unlock()
	return nil
}

// GetShare 读取分享，过期记录会被移除
func (m *MemoryIndex) GetShare(_ context.Context, id string) (*Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shares[id]
	if !ok {
		return nil, ErrShareNotFound
	}
	if s.Expired(m.now()) {
		delete(m.shares, id)
		return nil, ErrShareNotFound
	}
	cp := *s
	return &cp, nil
}

// ConsumeToken 记录 jti，顺带清理已过期的记录
func (m *MemoryIndex) ConsumeToken(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, exp := range m.tokens {
		if !now.Before(exp) {
			delete(m.tokens, k)
		}
	}
	if _, used := m.tokens[jti]; used {
		return false, nil
	}
	m.tokens[jti] = now.Add(ttl)
	return true, nil
}
