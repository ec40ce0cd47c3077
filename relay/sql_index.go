package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/arpublish/internal/database"
	"github.com/BaSui01/arpublish/types"
)

// shareRecord 分享表
type shareRecord struct {
	ID        string `gorm:"primaryKey;size:32"`
	SubjectID string `gorm:"size:128;index"`
	Models    string `gorm:"type:text"`
	CreatedAt time.Time
	ExpiresAt *time.Time `gorm:"index"`
}

func (shareRecord) TableName() string { return "relay_shares" }

// tokenRecord 已使用令牌表
type tokenRecord struct {
	JTI       string    `gorm:"primaryKey;size:64"`
	ExpiresAt time.Time `gorm:"index"`
}

func (tokenRecord) TableName() string { return "relay_used_tokens" }

// SQLIndex 基于 gorm 的索引，支持 postgres 与 sqlite
type SQLIndex struct {
	pool *database.PoolManager
}

// NewSQLIndex 创建 SQL 索引并自动迁移表结构
func NewSQLIndex(ctx context.Context, pool *database.PoolManager) (*SQLIndex, error) {
	if err := pool.DB().WithContext(ctx).AutoMigrate(&shareRecord{}, &tokenRecord{}); err != nil {
		return nil, fmt.Errorf("migrate relay tables: %w", err)
	}
	return &SQLIndex{pool: pool}, nil
}

// Name returns "sql".
func (s *SQLIndex) Name() string { return "sql" }

// SaveShare 写入分享，已存在时覆盖
func (s *SQLIndex) SaveShare(ctx context.Context, share *Share) error {
	if share.Expired(time.Now()) {
		return ErrShareExpired
	}
	models, err := json.Marshal(share.Models)
	if err != nil {
		return fmt.Errorf("marshal share models: %w", err)
	}
	rec := shareRecord{
		ID:        share.ID,
		SubjectID: share.SubjectID,
		Models:    string(models),
		CreatedAt: share.CreatedAt,
	}
	if !share.ExpiresAt.IsZero() {
		exp := share.ExpiresAt
		rec.ExpiresAt = &exp
	}
	return s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	})
}

// GetShare 读取分享
func (s *SQLIndex) GetShare(ctx context.Context, id string) (*Share, error) {
	var rec shareRecord
	err := s.pool.DB().WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query share: %w", err)
	}

	share := &Share{ID: rec.ID, SubjectID: rec.SubjectID, CreatedAt: rec.CreatedAt}
	if rec.ExpiresAt != nil {
		share.ExpiresAt = *rec.ExpiresAt
	}
	if share.Expired(time.Now()) {
		return nil, ErrShareNotFound
	}
	share.Models = make(map[types.Format]string)
	if err := json.Unmarshal([]byte(rec.Models), &share.Models); err != nil {
		return nil, fmt.Errorf("decode share models: %w", err)
	}
	return share, nil
}

// ConsumeToken 插入 jti，冲突即表示已使用
func (s *SQLIndex) ConsumeToken(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	now := time.Now()
	var first bool
	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("expires_at <= ?", now).Delete(&tokenRecord{}).Error; err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&tokenRecord{JTI: jti, ExpiresAt: now.Add(ttl)})
		if res.Error != nil {
			return res.Error
		}
		first = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("record token: %w", err)
	}
	return first, nil
}

// Ping 检查数据库连接
func (s *SQLIndex) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Stats 连接池统计
func (s *SQLIndex) Stats() database.PoolStats {
	return s.pool.GetStats()
}
