package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// 服务层错误分类，路由层据此映射 HTTP 状态码。
// 校验和冲突错误都在写库之前发现，带干净回滚；内部错误整个事务回滚。
var (
	// ErrNotFound 引用的购物车/商品/订单不存在
	ErrNotFound = errors.New("not found")
	// ErrUnavailable 商品在结算时已不可售
	ErrUnavailable = errors.New("product no longer available")
	// ErrValidation 表单不完整或非法
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized 操作要求身份但没有可用身份
	ErrUnauthorized = errors.New("identity required")
)

// UnavailableError 带上是哪件商品没了，结算失败时要能告诉用户
type UnavailableError struct {
	ProductID uuid.UUID
	Name      string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("商品 %q 已不可购买，请从购物车移除后重试", e.Name)
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
