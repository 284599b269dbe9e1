package service

import (
	"bytes"
	"context"
	"errors"
	"net/mail"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/vintagemart/internal/auth"
	"github.com/example/vintagemart/internal/config"
	"github.com/example/vintagemart/internal/datamodels/cart"
	"github.com/example/vintagemart/internal/datamodels/order"
	"github.com/example/vintagemart/internal/datamodels/product"
)

// CheckoutForm 结算表单：收件信息 + 支付方式标签，游客还要带联系邮箱
type CheckoutForm struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	AddressLine1  string `json:"address_line1"`
	AddressLine2  string `json:"address_line2"`
	City          string `json:"city"`
	PostalCode    string `json:"postal_code"`
	Country       string `json:"country"`
	Phone         string `json:"phone"`
	PaymentMethod string `json:"payment_method"`
	GuestEmail    string `json:"guest_email"`
}

// validate 表单校验，在碰存储之前全部做完
func (f *CheckoutForm) validate(isGuest bool) error {
	required := []struct {
		name  string
		value string
	}{
		{"first_name", f.FirstName},
		{"last_name", f.LastName},
		{"address_line1", f.AddressLine1},
		{"city", f.City},
		{"postal_code", f.PostalCode},
		{"country", f.Country},
		{"phone", f.Phone},
	}
	var missing []string
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return validationErr("缺少必填字段: %s", strings.Join(missing, ", "))
	}
	if !order.ValidPaymentMethod(f.PaymentMethod) {
		return validationErr("无效支付方式: %q", f.PaymentMethod)
	}
	if isGuest {
		// 游客结算没有邮箱就无法送达订单确认
		if strings.TrimSpace(f.GuestEmail) == "" {
			return validationErr("游客结算必须提供邮箱")
		}
		if _, err := mail.ParseAddress(f.GuestEmail); err != nil {
			return validationErr("游客邮箱格式不正确")
		}
	}
	return nil
}

// CheckoutResult 结算结果：已提交的订单和明细
type CheckoutResult struct {
	Order *order.Order  `json:"order"`
	Items []*order.Item `json:"items"`
}

// CheckoutService 结算引擎。把一车商品原子地变成一张订单：
// 锁车、锁货、验状态、算总价、落订单、清车、批量置为已售，全在一个事务里。
type CheckoutService struct {
	db       *gorm.DB
	cartRepo cart.Repository
	notifier Notifier
	cfg      *config.CheckoutConfig
}

func NewCheckoutService(db *gorm.DB, cartRepo cart.Repository, notifier Notifier, cfg *config.CheckoutConfig) *CheckoutService {
	return &CheckoutService{db: db, cartRepo: cartRepo, notifier: notifier, cfg: cfg}
}

// PlaceOrder 下单。任何一件商品已不可售都会让整个事务干净中止，
// 不存在部分成交；两个并发结算抢同一件商品时，后拿到行锁的一方
// 会看到状态已翻成 sold，直接收到 ErrUnavailable。
func (s *CheckoutService) PlaceOrder(ctx context.Context, identity auth.Identity, form *CheckoutForm) (*CheckoutResult, error) {
	GetMonitor().RecordCheckoutRequest()

	if identity.Kind == auth.KindAnonymous {
		return nil, ErrUnauthorized
	}
	if err := form.validate(identity.Kind == auth.KindGuest); err != nil {
		return nil, err
	}
	owner, err := ownerOf(identity)
	if err != nil {
		return nil, err
	}

	var (
		result    CheckoutResult
		snapItems []SnapshotItem
	)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.cartRepo.WithTx(tx)

		// 1) 锁定购物车行
		c, err := repo.WithTx(lockForUpdate(tx)).FindByOwner(ctx, owner)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return validationErr("购物车不存在或为空")
			}
			return err
		}

		// 2) 锁定购物车明细
		var items []*cart.Item
		if err := lockForUpdate(tx).
			Where("cart_id = ?", c.ID).
			Order("added_at ASC").
			Find(&items).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return validationErr("购物车为空")
		}

		// 3) 按 product_id 的固定顺序逐件锁定商品并验状态。
		// 所有并发结算用同一锁序，抢同一件商品只会让后来者失败，不会互相死锁。
		sorted := make([]*cart.Item, len(items))
		copy(sorted, items)
		sort.Slice(sorted, func(i, j int) bool {
			return bytes.Compare(sorted[i].ProductID[:], sorted[j].ProductID[:]) < 0
		})

		var (
			total      int64
			soldIDs    []uuid.UUID
			orderItems []*order.Item
		)
		for _, item := range sorted {
			var p product.Product
			if err := lockForUpdate(tx).
				First(&p, "id = ?", item.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					// 商品整行没了（后台删库等），同样按失效处理
					return &UnavailableError{ProductID: item.ProductID, Name: item.ProductID.String()}
				}
				return err
			}
			if !p.Available() {
				return &UnavailableError{ProductID: p.ID, Name: p.Name}
			}
			// 成交价取行锁下读到的当前价，购物车里的价格可能已经过期
			total += p.Price
			soldIDs = append(soldIDs, p.ID)
			orderItems = append(orderItems, &order.Item{
				ProductID:       p.ID,
				PriceAtPurchase: p.Price,
			})
			snapItems = append(snapItems, SnapshotItem{
				ProductID:       p.ID.String(),
				Name:            p.Name,
				PriceAtPurchase: p.Price,
			})
		}

		// 4) 创建订单
		o := &order.Order{
			Status:               order.StatusPending,
			TotalPrice:           total + s.cfg.ShippingFee,
			ShippingFee:          s.cfg.ShippingFee,
			ShippingFirstName:    form.FirstName,
			ShippingLastName:     form.LastName,
			ShippingAddressLine1: form.AddressLine1,
			ShippingAddressLine2: form.AddressLine2,
			ShippingCity:         form.City,
			ShippingPostalCode:   form.PostalCode,
			ShippingCountry:      form.Country,
			ShippingPhone:        form.Phone,
			PaymentMethod:        form.PaymentMethod,
		}
		if identity.Kind == auth.KindAuthenticated {
			uid := identity.UserID
			o.UserID = &uid
		} else {
			sid := identity.GuestSessionID
			o.GuestSessionID = &sid
			o.GuestEmail = strings.TrimSpace(form.GuestEmail)
		}
		if err := tx.Create(o).Error; err != nil {
			return err
		}
		for _, oi := range orderItems {
			oi.OrderID = o.ID
			if err := tx.Create(oi).Error; err != nil {
				return err
			}
		}

		// 5) 清空购物车；游客车整行删掉，用户车留着复用
		if err := repo.ClearItems(ctx, c.ID); err != nil {
			return err
		}
		if c.GuestSessionID != nil {
			if err := repo.DeleteCart(ctx, c.ID); err != nil {
				return err
			}
		}

		// 6) 批量翻转商品状态
		if err := tx.Model(&product.Product{}).
			Where("id IN ?", soldIDs).
			Update("status", product.StatusSold).Error; err != nil {
			return err
		}

		result.Order = o
		result.Items = orderItems
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			GetMonitor().RecordCheckoutConflict()
		} else if !errors.Is(err, ErrValidation) && !errors.Is(err, ErrUnauthorized) {
			GetMonitor().RecordDBError()
		}
		return nil, err
	}

	GetMonitor().RecordCheckoutSuccess()

	// 7) 提交之后才发通知，发布失败只记日志，订单不受影响
	s.notify(ctx, identity, &result, snapItems)

	return &result, nil
}

func (s *CheckoutService) notify(ctx context.Context, identity auth.Identity, result *CheckoutResult, items []SnapshotItem) {
	if s.notifier == nil {
		return
	}
	email := identity.Email
	if identity.Kind == auth.KindGuest {
		email = result.Order.GuestEmail
	}
	snap := NewSnapshot(result.Order, items, email)
	if err := s.notifier.PublishOrderConfirmation(ctx, snap); err != nil {
		GetMonitor().RecordMQError()
		zap.L().Error("order confirmation publish failed",
			zap.String("order_id", result.Order.ID.String()),
			zap.Error(err))
	}
}
