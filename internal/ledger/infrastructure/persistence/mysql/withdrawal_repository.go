package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/cryptocustody/internal/ledger/domain"
	"github.com/wyfcoding/cryptocustody/pkg/db"
)

type withdrawalRepository struct {
	db *gorm.DB
}

// NewWithdrawalRepository 创建提现仓储
func NewWithdrawalRepository(gdb *gorm.DB) domain.WithdrawalRepository {
	return &withdrawalRepository{db: gdb}
}

func (r *withdrawalRepository) getDB(ctx context.Context) *gorm.DB {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *withdrawalRepository) Create(ctx context.Context, withdrawal *domain.Withdrawal) error {
	if err := r.getDB(ctx).Create(withdrawal).Error; err != nil {
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}
	return nil
}

func (r *withdrawalRepository) ListPendingByOwner(ctx context.Context, userID string) ([]*domain.Withdrawal, error) {
	var withdrawals []*domain.Withdrawal
	err := r.getDB(ctx).
		Where("user_id = ? AND status = ?", userID, domain.WithdrawalPending).
		Order("created_at desc").
		Find(&withdrawals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending withdrawals: %w", err)
	}
	return withdrawals, nil
}
