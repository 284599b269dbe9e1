package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/vintagemart/internal/auth"
	"github.com/example/vintagemart/internal/datamodels/cart"
	"github.com/example/vintagemart/internal/datamodels/product"
)

// CartLine 视图里的一行：明细 + 当前商品数据
type CartLine struct {
	ItemID  uuid.UUID        `json:"item_id"`
	Product *product.Product `json:"product"`
	AddedAt time.Time        `json:"added_at"`
}

// CartView 展示用购物车视图，总价在构建时汇总
type CartView struct {
	CartID         uuid.UUID  `json:"cart_id"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	GuestSessionID *uuid.UUID `json:"guest_session_id,omitempty"`
	Items          []CartLine `json:"items"`
	TotalItems     int        `json:"total_items"`
	TotalPrice     int64      `json:"total_price"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CartService 购物车的增删与视图构建
type CartService struct {
	db          *gorm.DB
	cartRepo    cart.Repository
	productRepo product.Repository
}

func NewCartService(db *gorm.DB, cartRepo cart.Repository, productRepo product.Repository) *CartService {
	return &CartService{db: db, cartRepo: cartRepo, productRepo: productRepo}
}

// ownerOf 把请求身份映射成购物车归属；Anonymous 没有可操作的购物车
func ownerOf(identity auth.Identity) (cart.Owner, error) {
	switch identity.Kind {
	case auth.KindAuthenticated:
		return cart.OwnedByUser(identity.UserID), nil
	case auth.KindGuest:
		return cart.OwnedByGuest(identity.GuestSessionID), nil
	default:
		return cart.Owner{}, ErrUnauthorized
	}
}

// AddItem 加购。浏览路径上的可售校验用普通读即可，
// 真正的防超卖在结算的行锁里。购物车的查找/创建和明细插入
// 圈在同一事务里，避免同一身份并发首次加购建出两辆车。
func (s *CartService) AddItem(ctx context.Context, identity auth.Identity, productID uuid.UUID) (*CartView, error) {
	owner, err := ownerOf(identity)
	if err != nil {
		return nil, err
	}

	p, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !p.Available() {
		return nil, &UnavailableError{ProductID: p.ID, Name: p.Name}
	}

	var c *cart.Cart
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.cartRepo.WithTx(tx)
		c, err = repo.FindOrCreateByOwner(ctx, owner)
		if err != nil {
			return err
		}
		return repo.AddItem(ctx, c.ID, productID)
	})
	if err != nil {
		return nil, err
	}
	return s.buildView(ctx, c)
}

// RemoveItem 移除商品。明细不存在是幂等成功，购物车不存在才是 ErrNotFound。
func (s *CartService) RemoveItem(ctx context.Context, identity auth.Identity, productID uuid.UUID) (*CartView, error) {
	owner, err := ownerOf(identity)
	if err != nil {
		return nil, err
	}
	c, err := s.cartRepo.FindByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.cartRepo.RemoveItem(ctx, c.ID, productID); err != nil {
		return nil, err
	}
	return s.buildView(ctx, c)
}

// View 查看购物车。没有购物车时返回空视图，不隐式创建。
func (s *CartService) View(ctx context.Context, identity auth.Identity) (*CartView, error) {
	owner, err := ownerOf(identity)
	if err != nil {
		return nil, err
	}
	c, err := s.cartRepo.FindByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &CartView{Items: []CartLine{}}, nil
		}
		return nil, err
	}
	return s.buildView(ctx, c)
}

// buildView 装配展示视图。失效商品（已售/已下架/已删除）的明细当场删掉，
// 不是过滤掉——不清理的话僵尸明细会一直赖在购物车里。
// 清理和 updated_at 刷新都是尽力而为：失败只记日志，视图照常返回。
func (s *CartService) buildView(ctx context.Context, c *cart.Cart) (*CartView, error) {
	items, err := s.cartRepo.ListItems(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	view := &CartView{
		CartID:         c.ID,
		UserID:         c.UserID,
		GuestSessionID: c.GuestSessionID,
		Items:          make([]CartLine, 0, len(items)),
		UpdatedAt:      c.UpdatedAt,
	}

	for _, item := range items {
		p, err := s.productRepo.GetByID(ctx, item.ProductID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err != nil || !p.Available() {
			zap.L().Warn("pruning stale cart item",
				zap.String("cart_id", c.ID.String()),
				zap.String("product_id", item.ProductID.String()))
			if derr := s.cartRepo.DeleteItemByID(ctx, item.ID); derr != nil {
				zap.L().Error("stale cart item delete failed", zap.Error(derr))
			}
			continue
		}
		view.TotalPrice += p.Price
		view.Items = append(view.Items, CartLine{
			ItemID:  item.ID,
			Product: p,
			AddedAt: item.AddedAt,
		})
	}
	view.TotalItems = len(view.Items)

	// 清空后的购物车也要刷新 updated_at，"看过"就算交互
	if err := s.cartRepo.Touch(ctx, c.ID); err != nil {
		zap.L().Error("cart touch failed", zap.String("cart_id", c.ID.String()), zap.Error(err))
	} else {
		view.UpdatedAt = time.Now()
	}

	return view, nil
}
