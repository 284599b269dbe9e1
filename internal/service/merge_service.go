package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/vintagemart/internal/datamodels/cart"
)

// MergeService 登录时把游客购物车折叠进用户购物车
type MergeService struct {
	db       *gorm.DB
	cartRepo cart.Repository
}

func NewMergeService(db *gorm.DB, cartRepo cart.Repository) *MergeService {
	return &MergeService{db: db, cartRepo: cartRepo}
}

// MergeGuestCart 合并流程，整体一个事务：
//  1. 查找/创建用户购物车（锁定）
//  2. 按会话标识找游客购物车，没有就是空操作
//  3. 两辆车是同一行（会话早已绑定到该用户）时只清掉 guest_session_id
//  4. 否则把用户车里没有的商品搬过去，保留游客车的 added_at；已有的以先见时间为准
//  5. 删游客车明细，再删游客车整行
//  6. 刷新用户车 updated_at
//
// 第 4 步按 product_id 做差集而不是盲拷，重复执行合并是安全的。
func (s *MergeService) MergeGuestCart(ctx context.Context, userID, guestSessionID uuid.UUID) (*cart.Cart, error) {
	var userCart *cart.Cart

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.cartRepo.WithTx(tx)

		var err error
		userCart, err = findOrCreateLocked(ctx, tx, repo, cart.OwnedByUser(userID))
		if err != nil {
			return err
		}

		guestCart, err := repo.WithTx(lockForUpdate(tx)).FindByOwner(ctx, cart.OwnedByGuest(guestSessionID))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// 游客从没加过购，直接用（可能是新建的）用户购物车
				return repo.Touch(ctx, userCart.ID)
			}
			return err
		}

		if guestCart.ID == userCart.ID {
			// 边界情况：这辆车同时挂着 user_id 和 guest_session_id，把会话标识摘掉即可
			if err := repo.ClearGuestSession(ctx, userCart.ID); err != nil {
				return err
			}
			return repo.Touch(ctx, userCart.ID)
		}

		guestItems, err := repo.ListItems(ctx, guestCart.ID)
		if err != nil {
			return err
		}
		for _, item := range guestItems {
			exists, err := repo.HasItem(ctx, userCart.ID, item.ProductID)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := repo.AddItemAt(ctx, userCart.ID, item.ProductID, item.AddedAt); err != nil {
				return err
			}
		}

		if err := repo.ClearItems(ctx, guestCart.ID); err != nil {
			return err
		}
		if err := repo.DeleteCart(ctx, guestCart.ID); err != nil {
			return err
		}
		return repo.Touch(ctx, userCart.ID)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("guest cart merged",
		zap.String("user_id", userID.String()),
		zap.String("guest_session_id", guestSessionID.String()))
	return userCart, nil
}

// findOrCreateLocked 在事务里锁定归属对应的购物车行，没有则创建。
// 读写同锁，后面的存在性判断和搬运才不会跟并发合并/结算交错。
func findOrCreateLocked(ctx context.Context, tx *gorm.DB, repo cart.Repository, owner cart.Owner) (*cart.Cart, error) {
	c, err := repo.WithTx(lockForUpdate(tx)).FindByOwner(ctx, owner)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return repo.FindOrCreateByOwner(ctx, owner)
}
