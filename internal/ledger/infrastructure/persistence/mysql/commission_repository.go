package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/cryptocustody/internal/ledger/domain"
	"github.com/wyfcoding/cryptocustody/pkg/db"
)

type commissionRepository struct {
	db *gorm.DB
}

// NewCommissionRepository 创建推荐佣金仓储
func NewCommissionRepository(gdb *gorm.DB) domain.CommissionRepository {
	return &commissionRepository{db: gdb}
}

func (r *commissionRepository) getDB(ctx context.Context) *gorm.DB {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *commissionRepository) Create(ctx context.Context, commission *domain.ReferralCommission) error {
	if err := r.getDB(ctx).Create(commission).Error; err != nil {
		return fmt.Errorf("failed to create referral commission: %w", err)
	}
	return nil
}
