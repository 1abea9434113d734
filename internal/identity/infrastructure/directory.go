// Package infrastructure 身份上下文对其他上下文暴露的适配器
package infrastructure

import (
	"context"

	"github.com/wyfcoding/cryptocustody/internal/identity/domain"
	ledgerdomain "github.com/wyfcoding/cryptocustody/internal/ledger/domain"
)

// AccountDirectory 账务上下文账户目录端口的适配实现
type AccountDirectory struct {
	users domain.UserRepository
}

// NewAccountDirectory 创建账户目录适配器
func NewAccountDirectory(users domain.UserRepository) *AccountDirectory {
	return &AccountDirectory{users: users}
}

func toAccountInfo(user *domain.User) *ledgerdomain.AccountInfo {
	if user == nil {
		return nil
	}
	return &ledgerdomain.AccountInfo{
		UserID:       user.UserID,
		Role:         ledgerdomain.AccountRole(user.Role),
		Status:       ledgerdomain.AccountStatus(user.Status),
		ReferralCode: user.ReferralCode,
		ReferredBy:   user.ReferredBy,
	}
}

// Get 根据用户 ID 获取账户视图
func (d *AccountDirectory) Get(ctx context.Context, userID string) (*ledgerdomain.AccountInfo, error) {
	user, err := d.users.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toAccountInfo(user), nil
}

// FindByReferralCode 根据推荐码获取账户视图
func (d *AccountDirectory) FindByReferralCode(ctx context.Context, code string) (*ledgerdomain.AccountInfo, error) {
	user, err := d.users.FindByReferralCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return toAccountInfo(user), nil
}
