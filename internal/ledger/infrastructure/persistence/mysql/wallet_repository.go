// Package mysql 账务上下文仓储的 MySQL 实现
package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/cryptocustody/internal/ledger/domain"
	"github.com/wyfcoding/cryptocustody/pkg/db"
	"github.com/wyfcoding/cryptocustody/pkg/errs"
)

type walletRepository struct {
	db *gorm.DB
}

// NewWalletRepository 创建钱包仓储
func NewWalletRepository(gdb *gorm.DB) domain.WalletRepository {
	return &walletRepository{db: gdb}
}

// getDB 优先使用 context 中的事务句柄
func (r *walletRepository) getDB(ctx context.Context) *gorm.DB {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *walletRepository) FindByOwner(ctx context.Context, userID string) ([]*domain.Wallet, error) {
	var wallets []*domain.Wallet
	if err := r.getDB(ctx).Where("user_id = ?", userID).Order("currency asc").Find(&wallets).Error; err != nil {
		return nil, fmt.Errorf("failed to find wallets by owner: %w", err)
	}
	return wallets, nil
}

func (r *walletRepository) Find(ctx context.Context, userID, currency string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := r.getDB(ctx).Where("user_id = ? AND currency = ?", userID, currency).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) FindByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := r.getDB(ctx).Where("address = ?", address).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find wallet by address: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) FindOrCreate(ctx context.Context, userID, currency string) (*domain.Wallet, error) {
	wallet, err := r.Find(ctx, userID, currency)
	if err != nil {
		return nil, err
	}
	if wallet != nil {
		return wallet, nil
	}

	wallet = &domain.Wallet{
		UserID:   userID,
		Currency: currency,
		Balance:  decimal.Zero,
		Address:  uuid.New().String(),
	}
	if err := r.getDB(ctx).Create(wallet).Error; err != nil {
		// 并发创建时唯一索引冲突，回读已有记录
		existing, ferr := r.Find(ctx, userID, currency)
		if ferr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return wallet, nil
}

func (r *walletRepository) AdjustBalance(ctx context.Context, walletID uint, delta decimal.Decimal) error {
	// 带守卫的更新：余额不会被扣成负数
	result := r.getDB(ctx).Model(&domain.Wallet{}).
		Where("id = ? AND balance + ? >= 0", walletID, delta).
		Update("balance", gorm.Expr("balance + ?", delta))
	if result.Error != nil {
		return fmt.Errorf("failed to adjust balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// 守卫未命中即余额不足，分类保持业务语义而非依赖故障
		return errs.InsufficientFunds(fmt.Sprintf("balance adjustment rejected for wallet %d", walletID))
	}
	return nil
}
