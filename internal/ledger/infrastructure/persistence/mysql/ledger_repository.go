package mysql

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/cryptocustody/internal/ledger/domain"
	"github.com/wyfcoding/cryptocustody/pkg/db"
)

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository 创建流水仓储
func NewLedgerRepository(gdb *gorm.DB) domain.LedgerRepository {
	return &ledgerRepository{db: gdb}
}

func (r *ledgerRepository) getDB(ctx context.Context) *gorm.DB {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *ledgerRepository) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	if err := r.getDB(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (r *ledgerRepository) ListByOwner(ctx context.Context, userID string, limit, offset int) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	err := r.getDB(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

func (r *ledgerRepository) SumByOwnerCurrency(ctx context.Context, userID, currency string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := r.getDB(ctx).Model(&domain.LedgerEntry{}).
		Select("SUM(amount)").
		Where("user_id = ? AND currency = ?", userID, currency).
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}
