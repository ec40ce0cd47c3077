package relay

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/config"
	"github.com/BaSui01/arpublish/internal/cache"
	"github.com/BaSui01/arpublish/internal/database"
	"github.com/BaSui01/arpublish/internal/metrics"
)

// NewModelStore 按 storage.backend 创建模型存储
func NewModelStore(ctx context.Context, cfg config.StorageConfig) (ModelStore, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.LocalDir)
	case "s3":
		client, err := NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, cfg.S3.Bucket, cfg.S3.Prefix)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// NewShareIndex 按 relay.index 创建分享索引。返回的 closer 释放底层连接。
func NewShareIndex(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (ShareIndex, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Relay.Index {
	case "", "memory":
		return NewMemoryIndex(), noop, nil
	case "redis":
		m, err := cache.NewManager(cfg.Redis, cache.DefaultOptions(), logger)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisIndex(m), m.Close, nil
	case "sql":
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		pool, err := database.NewPoolManager(db, "relay", database.PoolConfigFrom(cfg.Database), collector, logger)
		if err != nil {
			return nil, nil, err
		}
		idx, err := NewSQLIndex(ctx, pool)
		if err != nil {
			return nil, nil, errors.Join(err, pool.Close())
		}
		return idx, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown relay index %q", cfg.Relay.Index)
	}
}

// New 由完整配置组装 relay 服务
func New(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*Server, func() error, error) {
	store, err := NewModelStore(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("model store: %w", err)
	}
	index, closeIndex, err := NewShareIndex(ctx, cfg, collector, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("share index: %w", err)
	}
	tokens, err := NewTokenIssuer(cfg.Relay.TokenSecret, cfg.Relay.TokenTTL, index)
	if err != nil {
		return nil, nil, errors.Join(err, closeIndex())
	}
	srv, err := NewServer(cfg.Relay, tokens, store, index, collector, logger)
	if err != nil {
		return nil, nil, errors.Join(err, closeIndex())
	}
	return srv, closeIndex, nil
}
