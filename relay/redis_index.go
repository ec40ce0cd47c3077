package relay

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/arpublish/internal/cache"
)

// RedisIndex 基于 Redis 的索引，分享过期交给键 TTL
type RedisIndex struct {
	cache *cache.Manager
}

// NewRedisIndex 创建 Redis 索引
func NewRedisIndex(m *cache.Manager) *RedisIndex {
	return &RedisIndex{cache: m}
}

// Name returns "redis".
func (r *RedisIndex) Name() string { return "redis" }

// SaveShare 写入分享，ExpiresAt 非零时设置 TTL
func (r *RedisIndex) SaveShare(ctx context.Context, share *Share) error {
	var ttl time.Duration
	if !share.ExpiresAt.IsZero() {
		ttl = time.Until(share.ExpiresAt)
		if ttl <= 0 {
			return ErrShareExpired
		}
	}
	return r.cache.SetJSON(ctx, r.cache.Key("share", share.ID), share, ttl)
}

// GetShare 读取分享
func (r *RedisIndex) GetShare(ctx context.Context, id string) (*Share, error) {
	var s Share
	if err := r.cache.GetJSON(ctx, r.cache.Key("share", id), &s); err != nil {
		if cache.IsCacheMiss(err) {
			return nil, ErrShareNotFound
		}
		return nil, err
	}
	if s.Expired(time.Now()) {
		return nil, ErrShareNotFound
	}
	return &s, nil
}

// ConsumeToken 用 SETNX 原子记录 jti
func (r *RedisIndex) ConsumeToken(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if jti == "" {
		return false, errors.New("empty jti")
	}
	return r.cache.SetNX(ctx, r.cache.Key("jti", jti), "1", ttl)
}

// Ping 检查 Redis 连接
func (r *RedisIndex) Ping(ctx context.Context) error {
	return r.cache.Ping(ctx)
}
