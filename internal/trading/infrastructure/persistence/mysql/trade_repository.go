// Package mysql 交易上下文仓储的 MySQL 实现
package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/cryptocustody/internal/trading/domain"
	"github.com/wyfcoding/cryptocustody/pkg/db"
)

type tradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository 创建成交仓储
func NewTradeRepository(gdb *gorm.DB) domain.TradeRepository {
	return &tradeRepository{db: gdb}
}

func (r *tradeRepository) getDB(ctx context.Context) *gorm.DB {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *tradeRepository) Create(ctx context.Context, trade *domain.Trade) error {
	if err := r.getDB(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

func (r *tradeRepository) ListByOwner(ctx context.Context, userID string, limit, offset int) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	err := r.getDB(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Limit(limit).
		Offset(offset).
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}
