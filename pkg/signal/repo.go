// 文件: pkg/signal/repo.go
package signal

import (
	"context"

	"gorm.io/gorm"
)

// Repo 信号落库仓储 (MySQL)
type Repo struct {
	db *gorm.DB
}

// NewRepo 创建仓储
func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// AutoMigrate 建表
func (r *Repo) AutoMigrate() error {
	return r.db.AutoMigrate(&SignalRecord{})
}

// Create 写入单条信号
func (r *Repo) Create(ctx context.Context, rec *SignalRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// BatchInsert 批量写入信号
func (r *Repo) BatchInsert(ctx context.Context, recs []*SignalRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(recs, 100).Error
}

// GetBySymbol 按交易对查询最近的信号
func (r *Repo) GetBySymbol(ctx context.Context, symbol string, limit int) ([]*SignalRecord, error) {
	var recs []*SignalRecord
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// CountByKind 按类型统计信号数
func (r *Repo) CountByKind(ctx context.Context, kind Kind) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&SignalRecord{}).
		Where("kind = ?", kind).
		Count(&n).Error
	return n, err
}
