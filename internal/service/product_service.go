package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/vintagemart/internal/datamodels/product"
)

type ProductService struct {
	repo product.Repository
}

func NewProductService(repo product.Repository) *ProductService {
	return &ProductService{repo: repo}
}

// GetByID 查询商品，不存在返回 ErrNotFound
func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListAvailable 前台商品列表，只返回可售商品
func (s *ProductService) ListAvailable(ctx context.Context) ([]*product.Product, error) {
	return s.repo.ListAvailable(ctx)
}

// ListByCategory 按分类查询可售商品
func (s *ProductService) ListByCategory(ctx context.Context, category string) ([]*product.Product, error) {
	return s.repo.ListByCategory(ctx, category)
}

// ListAll 后台商品列表，包含所有状态
func (s *ProductService) ListAll(ctx context.Context) ([]*product.Product, error) {
	return s.repo.ListAll(ctx)
}

// Create 创建商品
func (s *ProductService) Create(ctx context.Context, p *product.Product) error {
	if p.Name == "" {
		return validationErr("商品名称不能为空")
	}
	if p.Price <= 0 {
		return validationErr("价格必须大于 0")
	}
	if p.Status != "" && !product.ValidStatus(p.Status) {
		return validationErr("无效商品状态: %s", p.Status)
	}
	return s.repo.Create(ctx, p)
}

// Update 更新商品
func (s *ProductService) Update(ctx context.Context, p *product.Product) error {
	if !product.ValidStatus(p.Status) {
		return validationErr("无效商品状态: %s", p.Status)
	}
	return s.repo.Update(ctx, p)
}

// Archive 下架商品。不做物理删除，历史订单还引用着它。
func (s *ProductService) Archive(ctx context.Context, id uuid.UUID) error {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	p.Status = product.StatusArchived
	return s.repo.Update(ctx, p)
}
