package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/cryptocustody/internal/ledger/domain"
	"github.com/wyfcoding/cryptocustody/pkg/db"
)

type depositRepository struct {
	db *gorm.DB
}

// NewDepositRepository 创建充值仓储
func NewDepositRepository(gdb *gorm.DB) domain.DepositRepository {
	return &depositRepository{db: gdb}
}

func (r *depositRepository) getDB(ctx context.Context) *gorm.DB {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *depositRepository) Create(ctx context.Context, deposit *domain.Deposit) error {
	if err := r.getDB(ctx).Create(deposit).Error; err != nil {
		return fmt.Errorf("failed to create deposit: %w", err)
	}
	return nil
}

func (r *depositRepository) Get(ctx context.Context, depositID string) (*domain.Deposit, error) {
	var deposit domain.Deposit
	err := r.getDB(ctx).Where("deposit_id = ?", depositID).First(&deposit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return &deposit, nil
}

func (r *depositRepository) FindByTxID(ctx context.Context, txid string) (*domain.Deposit, error) {
	var deposit domain.Deposit
	err := r.getDB(ctx).Where("txid = ?", txid).First(&deposit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find deposit by txid: %w", err)
	}
	return &deposit, nil
}

func (r *depositRepository) ListPending(ctx context.Context) ([]*domain.Deposit, error) {
	var deposits []*domain.Deposit
	err := r.getDB(ctx).
		Where("status = ?", domain.DepositPending).
		Order("created_at desc").
		Find(&deposits).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deposits: %w", err)
	}
	return deposits, nil
}

func (r *depositRepository) ListPendingByOwner(ctx context.Context, userID string) ([]*domain.Deposit, error) {
	var deposits []*domain.Deposit
	err := r.getDB(ctx).
		Where("user_id = ? AND status = ?", userID, domain.DepositPending).
		Order("created_at desc").
		Find(&deposits).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deposits by owner: %w", err)
	}
	return deposits, nil
}

func (r *depositRepository) Transition(ctx context.Context, depositID string, expected, next domain.DepositStatus) (bool, error) {
	// 条件更新充当 CAS，保证同一充值至多被处理一次
	result := r.getDB(ctx).Model(&domain.Deposit{}).
		Where("deposit_id = ? AND status = ?", depositID, expected).
		Update("status", next)
	if result.Error != nil {
		return false, fmt.Errorf("failed to transition deposit status: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *depositRepository) DeletePending(ctx context.Context, depositID string) (bool, error) {
	result := r.getDB(ctx).
		Where("deposit_id = ? AND status = ?", depositID, domain.DepositPending).
		Delete(&domain.Deposit{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete pending deposit: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
