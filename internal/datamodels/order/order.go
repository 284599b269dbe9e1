package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 订单状态机：pending -> processing -> shipped -> delivered，
// cancelled 只能从 pending / processing 进入。结算只会创建 pending 订单。
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

// 支付方式标签，只做持久化，不对接支付网关
const (
	PaymentBlik     = "blik"
	PaymentTransfer = "transfer"
)

// ValidPaymentMethod 校验支付方式标签
func ValidPaymentMethod(m string) bool {
	return m == PaymentBlik || m == PaymentTransfer
}

// CanTransition 状态机转移是否允许
func CanTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCancelled
	case StatusProcessing:
		return to == StatusShipped || to == StatusCancelled
	case StatusShipped:
		return to == StatusDelivered
	}
	return false
}

// Order 订单。归属要么是登录用户（UserID），要么是游客（GuestEmail + GuestSessionID）。
// TotalPrice 在创建时一次算定：明细成交价之和加固定运费，此后不再重算。
type Order struct {
	ID         uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:char(36);index" json:"user_id,omitempty"`
	GuestEmail string     `gorm:"size:255" json:"guest_email,omitempty"`
	// GuestSessionID 游客下单时记录会话标识，方便游客凭会话查单
	GuestSessionID *uuid.UUID `gorm:"type:char(36);index" json:"guest_session_id,omitempty"`
	Status         string     `gorm:"size:16;index;not null" json:"status"`
	TotalPrice     int64      `gorm:"not null" json:"total_price"` // 分
	ShippingFee    int64      `gorm:"not null" json:"shipping_fee"`

	ShippingFirstName    string `gorm:"size:100;not null" json:"shipping_first_name"`
	ShippingLastName     string `gorm:"size:100;not null" json:"shipping_last_name"`
	ShippingAddressLine1 string `gorm:"size:255;not null" json:"shipping_address_line1"`
	ShippingAddressLine2 string `gorm:"size:255" json:"shipping_address_line2,omitempty"`
	ShippingCity         string `gorm:"size:100;not null" json:"shipping_city"`
	ShippingPostalCode   string `gorm:"size:20;not null" json:"shipping_postal_code"`
	ShippingCountry      string `gorm:"size:100;not null" json:"shipping_country"`
	ShippingPhone        string `gorm:"size:30;not null" json:"shipping_phone"`
	PaymentMethod        string `gorm:"size:16;not null" json:"payment_method"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	return nil
}

// Item 订单明细。PriceAtPurchase 是结算时在行锁下读到的成交价，
// 落库后不可变，历史订单金额与后续改价解耦。
type Item struct {
	ID              uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	OrderID         uuid.UUID `gorm:"type:char(36);index;not null" json:"order_id"`
	ProductID       uuid.UUID `gorm:"type:char(36);index;not null" json:"product_id"`
	PriceAtPurchase int64     `gorm:"not null" json:"price_at_purchase"`
}

func (i *Item) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Repository 订单仓储接口
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Order, error)
	ListByGuestSession(ctx context.Context, sessionID uuid.UUID) ([]*Order, error)
	ListRecent(ctx context.Context, limit int) ([]*Order, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]*Item, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}
