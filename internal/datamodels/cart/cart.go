package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrOwnerConflict 购物车归属字段非法：user_id 与 guest_session_id 必须恰好设置一个
var ErrOwnerConflict = errors.New("cart must belong to exactly one of user or guest session")

// Cart 购物车。归属要么是登录用户（UserID），要么是匿名会话（GuestSessionID），
// 二者互斥且必居其一。游客购物车在合并或结算后整行删除，用户购物车清空后保留复用。
type Cart struct {
	ID             uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	UserID         *uuid.UUID `gorm:"type:char(36);uniqueIndex" json:"user_id,omitempty"`
	GuestSessionID *uuid.UUID `gorm:"type:char(36);uniqueIndex" json:"guest_session_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (c *Cart) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if (c.UserID == nil) == (c.GuestSessionID == nil) {
		return ErrOwnerConflict
	}
	return nil
}

// Item 购物车明细。(cart_id, product_id) 唯一，没有数量字段：
// 二手商品一件即一行，重复加购是幂等空操作。
type Item struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	CartID    uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_cart_product" json:"cart_id"`
	ProductID uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_cart_product" json:"product_id"`
	AddedAt   time.Time `gorm:"not null" json:"added_at"`
}

func (i *Item) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.AddedAt.IsZero() {
		i.AddedAt = time.Now()
	}
	return nil
}

// Owner 购物车归属，查找/创建时二选一
type Owner struct {
	UserID         *uuid.UUID
	GuestSessionID *uuid.UUID
}

// OwnedByUser 构造用户归属
func OwnedByUser(userID uuid.UUID) Owner {
	return Owner{UserID: &userID}
}

// OwnedByGuest 构造游客归属
func OwnedByGuest(sessionID uuid.UUID) Owner {
	return Owner{GuestSessionID: &sessionID}
}

// Repository 购物车仓储接口。所有方法都接受事务内的调用：
// 实现通过 WithTx 返回绑定到指定事务的仓储。
type Repository interface {
	// WithTx 返回使用 tx 的仓储副本，用于把多个操作圈进同一事务
	WithTx(tx *gorm.DB) Repository

	// FindByOwner 按归属查找购物车，找不到返回 gorm.ErrRecordNotFound
	FindByOwner(ctx context.Context, owner Owner) (*Cart, error)
	// FindOrCreateByOwner 按归属查找购物车，不存在则创建。
	// 首次加购的并发场景下必须与后续写操作同事务调用。
	FindOrCreateByOwner(ctx context.Context, owner Owner) (*Cart, error)

	// AddItem 插入 (cart_id, product_id)，唯一键冲突视为成功（幂等加购）
	AddItem(ctx context.Context, cartID, productID uuid.UUID) error
	// AddItemAt 同 AddItem，但保留指定的 added_at（合并时使用）
	AddItemAt(ctx context.Context, cartID, productID uuid.UUID, addedAt time.Time) error
	// RemoveItem 删除明细，0 行受影响不算错误（幂等移除）
	RemoveItem(ctx context.Context, cartID, productID uuid.UUID) error
	// DeleteItemByID 按明细主键删除（剔除失效商品时使用）
	DeleteItemByID(ctx context.Context, itemID uuid.UUID) error

	// ListItems 按加入时间顺序返回购物车明细
	ListItems(ctx context.Context, cartID uuid.UUID) ([]*Item, error)
	// HasItem 购物车里是否已有该商品
	HasItem(ctx context.Context, cartID, productID uuid.UUID) (bool, error)

	// ClearItems 清空购物车明细
	ClearItems(ctx context.Context, cartID uuid.UUID) error
	// DeleteCart 删除购物车行（仅游客购物车会走到这里）
	DeleteCart(ctx context.Context, cartID uuid.UUID) error
	// ClearGuestSession 把购物车的 guest_session_id 置空（会话已绑定到本用户的边界情况）
	ClearGuestSession(ctx context.Context, cartID uuid.UUID) error

	// Touch 刷新 updated_at，视图构建后调用，"看过"也算一次交互
	Touch(ctx context.Context, cartID uuid.UUID) error
}
