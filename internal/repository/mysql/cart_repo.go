package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/vintagemart/internal/datamodels/cart"
)

type cartRepo struct {
	db *gorm.DB
}

// NewCartRepository 创建购物车仓储
func NewCartRepository(db *gorm.DB) cart.Repository {
	return &cartRepo{db: db}
}

func (r *cartRepo) WithTx(tx *gorm.DB) cart.Repository {
	return &cartRepo{db: tx}
}

func ownerQuery(db *gorm.DB, owner cart.Owner) *gorm.DB {
	if owner.UserID != nil {
		return db.Where("user_id = ?", *owner.UserID)
	}
	return db.Where("guest_session_id = ?", *owner.GuestSessionID)
}

func (r *cartRepo) FindByOwner(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	var c cart.Cart
	if err := ownerQuery(r.db.WithContext(ctx), owner).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *cartRepo) FindOrCreateByOwner(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	c, err := r.FindByOwner(ctx, owner)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	created := &cart.Cart{UserID: owner.UserID, GuestSessionID: owner.GuestSessionID}
	if err := r.db.WithContext(ctx).Create(created).Error; err != nil {
		// 并发首次加购时另一个事务可能先建了同归属的车，唯一索引冲突后重查
		if c, ferr := r.FindByOwner(ctx, owner); ferr == nil {
			return c, nil
		}
		return nil, err
	}
	return created, nil
}

func (r *cartRepo) AddItem(ctx context.Context, cartID, productID uuid.UUID) error {
	return r.AddItemAt(ctx, cartID, productID, time.Now())
}

func (r *cartRepo) AddItemAt(ctx context.Context, cartID, productID uuid.UUID, addedAt time.Time) error {
	item := &cart.Item{CartID: cartID, ProductID: productID, AddedAt: addedAt}
	// (cart_id, product_id) 冲突时不做任何事：重复加购是幂等的
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
		DoNothing: true,
	}).Create(item).Error
}

func (r *cartRepo) RemoveItem(ctx context.Context, cartID, productID uuid.UUID) error {
	// 0 行受影响不算错误
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&cart.Item{}).Error
}

func (r *cartRepo) DeleteItemByID(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&cart.Item{}, "id = ?", itemID).Error
}

func (r *cartRepo) ListItems(ctx context.Context, cartID uuid.UUID) ([]*cart.Item, error) {
	var items []*cart.Item
	if err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("added_at ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *cartRepo) HasItem(ctx context.Context, cartID, productID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&cart.Item{}).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *cartRepo) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&cart.Item{}).Error
}

func (r *cartRepo) DeleteCart(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&cart.Cart{}, "id = ?", cartID).Error
}

func (r *cartRepo) ClearGuestSession(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&cart.Cart{}).
		Where("id = ?", cartID).
		Update("guest_session_id", nil).Error
}

func (r *cartRepo) Touch(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&cart.Cart{}).
		Where("id = ?", cartID).
		Update("updated_at", time.Now()).Error
}
