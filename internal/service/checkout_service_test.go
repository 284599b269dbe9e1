package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/vintagemart/internal/auth"
	"github.com/example/vintagemart/internal/datamodels/cart"
	"github.com/example/vintagemart/internal/datamodels/order"
	"github.com/example/vintagemart/internal/datamodels/product"
)

func newCheckoutEnv(t *testing.T) (*CheckoutService, *CartService, *fakeNotifier, *testEnv) {
	t.Helper()
	env := newEnv(t)
	notifier := &fakeNotifier{}
	checkout := NewCheckoutService(env.db, env.cartRepo, notifier, testCheckoutConfig())
	carts := NewCartService(env.db, env.cartRepo, env.productRepo)
	return checkout, carts, notifier, env
}

func TestPlaceOrderUser(t *testing.T) {
	checkout, carts, notifier, env := newCheckoutEnv(t)
	ctx := context.Background()
	u := userIdentity()

	p1 := createProduct(t, env.db, "风衣", 1000, product.StatusAvailable)
	p2 := createProduct(t, env.db, "短靴", 2000, product.StatusAvailable)
	for _, pid := range []uuid.UUID{p1.ID, p2.ID} {
		if _, err := carts.AddItem(ctx, u, pid); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	result, err := checkout.PlaceOrder(ctx, u, validForm())
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	o := result.Order
	if o.Status != order.StatusPending {
		t.Fatalf("expected pending order, got %s", o.Status)
	}
	if o.TotalPrice != 1000+2000+1500 {
		t.Fatalf("expected total 4500 (items + shipping), got %d", o.TotalPrice)
	}
	if o.ShippingFee != 1500 {
		t.Fatalf("expected shipping fee 1500, got %d", o.ShippingFee)
	}
	if o.UserID == nil || *o.UserID != u.UserID {
		t.Fatalf("order should belong to user %s", u.UserID)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 order items, got %d", len(result.Items))
	}

	// 两件商品翻成已售
	for _, pid := range []uuid.UUID{p1.ID, p2.ID} {
		var p product.Product
		if err := env.db.First(&p, "id = ?", pid).Error; err != nil {
			t.Fatalf("reload product: %v", err)
		}
		if p.Status != product.StatusSold {
			t.Fatalf("product %s should be sold, got %s", pid, p.Status)
		}
	}

	// 用户购物车保留但被清空
	c, err := env.cartRepo.FindByOwner(ctx, cart.OwnedByUser(u.UserID))
	if err != nil {
		t.Fatalf("user cart should survive checkout: %v", err)
	}
	items, err := env.cartRepo.ListItems(ctx, c.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("user cart should be empty, got %d items", len(items))
	}

	// 提交后恰好发出一条确认通知
	snaps := notifier.published()
	if len(snaps) != 1 {
		t.Fatalf("expected 1 confirmation, got %d", len(snaps))
	}
	if snaps[0].Email != u.Email {
		t.Fatalf("confirmation should go to %s, got %s", u.Email, snaps[0].Email)
	}
	if snaps[0].TotalPrice != o.TotalPrice || len(snaps[0].Items) != 2 {
		t.Fatalf("snapshot mismatch: %+v", snaps[0])
	}
}

func TestPlaceOrderGuest(t *testing.T) {
	checkout, carts, notifier, env := newCheckoutEnv(t)
	ctx := context.Background()
	g := guestIdentity()

	p := createProduct(t, env.db, "呢子大衣", 7000, product.StatusAvailable)
	if _, err := carts.AddItem(ctx, g, p.ID); err != nil {
		t.Fatalf("add: %v", err)
	}

	form := validForm()
	form.GuestEmail = "guest@example.com"
	result, err := checkout.PlaceOrder(ctx, g, form)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	o := result.Order
	if o.UserID != nil {
		t.Fatal("guest order should not carry a user id")
	}
	if o.GuestEmail != "guest@example.com" {
		t.Fatalf("expected guest email recorded, got %q", o.GuestEmail)
	}
	if o.GuestSessionID == nil || *o.GuestSessionID != g.GuestSessionID {
		t.Fatal("guest order should record the session id")
	}

	// 游客购物车整行删除
	if _, err := env.cartRepo.FindByOwner(ctx, cart.OwnedByGuest(g.GuestSessionID)); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("guest cart should be deleted, got %v", err)
	}

	snaps := notifier.published()
	if len(snaps) != 1 || snaps[0].Email != "guest@example.com" {
		t.Fatalf("confirmation should go to the guest email, got %+v", snaps)
	}
}

func TestPlaceOrderUnavailableAbortsWholeOrder(t *testing.T) {
	checkout, carts, notifier, env := newCheckoutEnv(t)
	ctx := context.Background()
	u := userIdentity()

	pa := createProduct(t, env.db, "还在", 1000, product.StatusAvailable)
	pb := createProduct(t, env.db, "没了", 2000, product.StatusAvailable)
	for _, pid := range []uuid.UUID{pa.ID, pb.ID} {
		if _, err := carts.AddItem(ctx, u, pid); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	// 结算前 B 被别人买走
	if err := env.db.Model(&product.Product{}).
		Where("id = ?", pb.ID).
		Update("status", product.StatusSold).Error; err != nil {
		t.Fatalf("mark sold: %v", err)
	}

	_, err := checkout.PlaceOrder(ctx, u, validForm())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	var ue *UnavailableError
	if !errors.As(err, &ue) || ue.ProductID != pb.ID {
		t.Fatalf("error should name the sold product, got %v", err)
	}

	// 没有部分成交：订单零张，A 仍可售，购物车原样
	var orders int64
	if err := env.db.Model(&order.Order{}).Count(&orders).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orders != 0 {
		t.Fatalf("expected no orders, got %d", orders)
	}
	var pA product.Product
	if err := env.db.First(&pA, "id = ?", pa.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if pA.Status != product.StatusAvailable {
		t.Fatalf("product A should stay available, got %s", pA.Status)
	}
	c, err := env.cartRepo.FindByOwner(ctx, cart.OwnedByUser(u.UserID))
	if err != nil {
		t.Fatalf("cart should survive failed checkout: %v", err)
	}
	items, err := env.cartRepo.ListItems(ctx, c.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("cart should be untouched, got %d items", len(items))
	}
	if len(notifier.published()) != 0 {
		t.Fatal("failed checkout must not publish a confirmation")
	}
}

func TestPlaceOrderTwiceSameProduct(t *testing.T) {
	checkout, carts, notifier, env := newCheckoutEnv(t)
	ctx := context.Background()

	p := createProduct(t, env.db, "孤品", 9900, product.StatusAvailable)
	u1 := userIdentity()
	u2 := userIdentity()
	for _, u := range []auth.Identity{u1, u2} {
		if _, err := carts.AddItem(ctx, u, p.ID); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	if _, err := checkout.PlaceOrder(ctx, u1, validForm()); err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	// 同一件商品第二个人只能失败
	if _, err := checkout.PlaceOrder(ctx, u2, validForm()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for second buyer, got %v", err)
	}

	var orders int64
	if err := env.db.Model(&order.Order{}).Count(&orders).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orders != 1 {
		t.Fatalf("one item sells exactly once, got %d orders", orders)
	}
	if len(notifier.published()) != 1 {
		t.Fatalf("expected exactly 1 confirmation, got %d", len(notifier.published()))
	}
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	checkout, carts, _, env := newCheckoutEnv(t)
	ctx := context.Background()
	u := userIdentity()

	// 没有购物车
	if _, err := checkout.PlaceOrder(ctx, u, validForm()); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation without a cart, got %v", err)
	}

	// 有购物车但是空的
	p := createProduct(t, env.db, "加了又删", 1000, product.StatusAvailable)
	if _, err := carts.AddItem(ctx, u, p.ID); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := carts.RemoveItem(ctx, u, p.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := checkout.PlaceOrder(ctx, u, validForm()); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty cart, got %v", err)
	}
}

func TestPlaceOrderAnonymous(t *testing.T) {
	checkout, _, _, _ := newCheckoutEnv(t)
	_, err := checkout.PlaceOrder(context.Background(), auth.Identity{Kind: auth.KindAnonymous}, validForm())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestPlaceOrderSurvivesNotifyFailure(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	notifier := &fakeNotifier{err: errors.New("broker down")}
	checkout := NewCheckoutService(env.db, env.cartRepo, notifier, testCheckoutConfig())
	carts := NewCartService(env.db, env.cartRepo, env.productRepo)
	u := userIdentity()

	p := createProduct(t, env.db, "皮衣", 12000, product.StatusAvailable)
	if _, err := carts.AddItem(ctx, u, p.ID); err != nil {
		t.Fatalf("add: %v", err)
	}

	// 通知发不出去不影响订单提交
	result, err := checkout.PlaceOrder(ctx, u, validForm())
	if err != nil {
		t.Fatalf("checkout should succeed despite notify failure: %v", err)
	}
	var got order.Order
	if err := env.db.First(&got, "id = ?", result.Order.ID).Error; err != nil {
		t.Fatalf("order should be committed: %v", err)
	}
}

func TestCheckoutFormValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*CheckoutForm)
		isGuest bool
	}{
		{"missing first name", func(f *CheckoutForm) { f.FirstName = "" }, false},
		{"missing address", func(f *CheckoutForm) { f.AddressLine1 = "  " }, false},
		{"missing phone", func(f *CheckoutForm) { f.Phone = "" }, false},
		{"bad payment method", func(f *CheckoutForm) { f.PaymentMethod = "paypal" }, false},
		{"guest without email", func(f *CheckoutForm) { f.GuestEmail = "" }, true},
		{"guest with bad email", func(f *CheckoutForm) { f.GuestEmail = "not-an-email" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := validForm()
			if tc.isGuest {
				form.GuestEmail = "guest@example.com"
			}
			tc.mutate(form)
			if err := form.validate(tc.isGuest); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}

	form := validForm()
	if err := form.validate(false); err != nil {
		t.Fatalf("valid user form rejected: %v", err)
	}
	form.GuestEmail = "guest@example.com"
	if err := form.validate(true); err != nil {
		t.Fatalf("valid guest form rejected: %v", err)
	}
	form.PaymentMethod = order.PaymentTransfer
	if err := form.validate(true); err != nil {
		t.Fatalf("transfer payment rejected: %v", err)
	}
}
