package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/vintagemart/internal/auth"
	"github.com/example/vintagemart/internal/datamodels/order"
	"github.com/example/vintagemart/internal/datamodels/product"
	"github.com/example/vintagemart/internal/datamodels/user"
)

// OrderItemDetail 订单明细 + 商品快照
type OrderItemDetail struct {
	Item    *order.Item      `json:"item"`
	Product *product.Product `json:"product,omitempty"`
}

// OrderDetails 订单详情
type OrderDetails struct {
	Order *order.Order      `json:"order"`
	Items []OrderItemDetail `json:"items"`
}

// OrderService 订单查询与后台状态流转
type OrderService struct {
	repo        order.Repository
	productRepo product.Repository
}

func NewOrderService(repo order.Repository, productRepo product.Repository) *OrderService {
	return &OrderService{repo: repo, productRepo: productRepo}
}

// ListByIdentity 用户看自己的订单，游客凭会话标识看自己的订单
func (s *OrderService) ListByIdentity(ctx context.Context, identity auth.Identity) ([]*order.Order, error) {
	switch identity.Kind {
	case auth.KindAuthenticated:
		return s.repo.ListByUser(ctx, identity.UserID)
	case auth.KindGuest:
		return s.repo.ListByGuestSession(ctx, identity.GuestSessionID)
	default:
		return nil, ErrUnauthorized
	}
}

// ListRecent 后台最近订单
func (s *OrderService) ListRecent(ctx context.Context, limit int) ([]*order.Order, error) {
	return s.repo.ListRecent(ctx, limit)
}

// GetDetails 订单详情。非管理员只能看自己的订单。
func (s *OrderService) GetDetails(ctx context.Context, identity auth.Identity, orderID uuid.UUID) (*OrderDetails, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !s.canAccess(identity, o) {
		// 不暴露订单是否存在
		return nil, ErrNotFound
	}

	items, err := s.repo.ListItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	details := &OrderDetails{Order: o, Items: make([]OrderItemDetail, 0, len(items))}
	for _, item := range items {
		d := OrderItemDetail{Item: item}
		// 商品行可能已被下架清理，详情里缺商品快照不算错误
		if p, err := s.productRepo.GetByID(ctx, item.ProductID); err == nil {
			d.Product = p
		}
		details.Items = append(details.Items, d)
	}
	return details, nil
}

func (s *OrderService) canAccess(identity auth.Identity, o *order.Order) bool {
	switch identity.Kind {
	case auth.KindAuthenticated:
		if identity.Role == user.RoleAdmin {
			return true
		}
		return o.UserID != nil && *o.UserID == identity.UserID
	case auth.KindGuest:
		return o.GuestSessionID != nil && *o.GuestSessionID == identity.GuestSessionID
	}
	return false
}

// UpdateStatus 后台的订单状态流转，非法转移拒绝。
// 结算只会产出 pending，后续流转全部走这里。
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*order.Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !order.CanTransition(o.Status, status) {
		return nil, validationErr("订单状态不能从 %s 变为 %s", o.Status, status)
	}
	if err := s.repo.UpdateStatus(ctx, orderID, status); err != nil {
		return nil, err
	}
	o.Status = status
	return o, nil
}
