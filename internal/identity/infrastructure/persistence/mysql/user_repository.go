// Package mysql 身份上下文仓储的 MySQL 实现
package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/cryptocustody/internal/identity/domain"
	"github.com/wyfcoding/cryptocustody/pkg/db"
)

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(gdb *gorm.DB) domain.UserRepository {
	return &userRepository{db: gdb}
}

func (r *userRepository) getDB(ctx context.Context) *gorm.DB {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if err := r.getDB(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) findOne(ctx context.Context, query string, args ...interface{}) (*domain.User, error) {
	var user domain.User
	err := r.getDB(ctx).Where(query, args...).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) FindByUserID(ctx context.Context, userID string) (*domain.User, error) {
	return r.findOne(ctx, "user_id = ?", userID)
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, "username = ?", username)
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *userRepository) FindByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	return r.findOne(ctx, "referral_code = ?", code)
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]*domain.User, int64, error) {
	var total int64
	if err := r.getDB(ctx).Model(&domain.User{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var users []*domain.User
	err := r.getDB(ctx).
		Order("created_at desc, id desc").
		Limit(limit).
		Offset(offset).
		Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

func (r *userRepository) UpdateStatus(ctx context.Context, userID string, status domain.Status) error {
	err := r.getDB(ctx).Model(&domain.User{}).
		Where("user_id = ?", userID).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	return nil
}

func (r *userRepository) UpdateRole(ctx context.Context, userID string, role domain.Role) error {
	err := r.getDB(ctx).Model(&domain.User{}).
		Where("user_id = ?", userID).
		Update("role", role).Error
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	return nil
}
