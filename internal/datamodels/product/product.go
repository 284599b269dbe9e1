package product

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 商品状态
const (
	StatusAvailable = "available" // 可售
	StatusReserved  = "reserved"  // 已预定
	StatusSold      = "sold"      // 已售出
	StatusArchived  = "archived"  // 已下架
)

// ValidStatus 校验状态值是否合法
func ValidStatus(s string) bool {
	switch s {
	case StatusAvailable, StatusReserved, StatusSold, StatusArchived:
		return true
	}
	return false
}

// Product 商品模型。二手商品每件唯一，没有库存数量的概念，
// 状态从 available 流转到 sold 即完成一次售卖。
type Product struct {
	ID          uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Description string    `gorm:"size:1024" json:"description"`
	Price       int64     `gorm:"not null" json:"price"`       // 分
	Gender      string    `gorm:"size:16;index" json:"gender"` // women / men
	Condition   string    `gorm:"size:16" json:"condition"`    // new / like_new / very_good / good
	Category    string    `gorm:"size:32;index" json:"category"`
	Status      string    `gorm:"size:16;index;not null" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = StatusAvailable
	}
	return nil
}

// Available 商品是否可加购/可结算
func (p *Product) Available() bool {
	return p.Status == StatusAvailable
}

// Repository 商品仓储接口
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	ListAll(ctx context.Context) ([]*Product, error)
	ListAvailable(ctx context.Context) ([]*Product, error)
	ListByCategory(ctx context.Context, category string) ([]*Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	UpdateStatusBatch(ctx context.Context, ids []uuid.UUID, status string) error
}
