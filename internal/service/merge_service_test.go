package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/vintagemart/internal/datamodels/cart"
	"github.com/example/vintagemart/internal/datamodels/product"
)

func TestMergeMovesMissingItems(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	cartSvc := NewCartService(env.db, env.cartRepo, env.productRepo)
	mergeSvc := NewMergeService(env.db, env.cartRepo)

	p1 := createProduct(t, env.db, "只在游客车", 1000, product.StatusAvailable)
	p2 := createProduct(t, env.db, "两边都有", 2000, product.StatusAvailable)

	u := userIdentity()
	g := guestIdentity()

	for _, pid := range []uuid.UUID{p1.ID, p2.ID} {
		if _, err := cartSvc.AddItem(ctx, g, pid); err != nil {
			t.Fatalf("guest add: %v", err)
		}
	}
	if _, err := cartSvc.AddItem(ctx, u, p2.ID); err != nil {
		t.Fatalf("user add: %v", err)
	}

	guestCart, err := env.cartRepo.FindByOwner(ctx, cart.OwnedByGuest(g.GuestSessionID))
	if err != nil {
		t.Fatalf("find guest cart: %v", err)
	}
	guestItems, err := env.cartRepo.ListItems(ctx, guestCart.ID)
	if err != nil {
		t.Fatalf("list guest items: %v", err)
	}
	var guestAddedAt time.Time
	for _, item := range guestItems {
		if item.ProductID == p1.ID {
			guestAddedAt = item.AddedAt
		}
	}

	merged, err := mergeSvc.MergeGuestCart(ctx, u.UserID, g.GuestSessionID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	items, err := env.cartRepo.ListItems(ctx, merged.ID)
	if err != nil {
		t.Fatalf("list merged items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items after merge, got %d", len(items))
	}
	for _, item := range items {
		if item.ProductID == p1.ID && !item.AddedAt.Equal(guestAddedAt) {
			t.Fatalf("moved item should keep guest added_at: want %v, got %v", guestAddedAt, item.AddedAt)
		}
	}

	// 游客车整行消失，明细也不残留
	if _, err := env.cartRepo.FindByOwner(ctx, cart.OwnedByGuest(g.GuestSessionID)); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("guest cart should be gone, got %v", err)
	}
	var orphans int64
	if err := env.db.Model(&cart.Item{}).Where("cart_id = ?", guestCart.ID).Count(&orphans).Error; err != nil {
		t.Fatalf("count orphans: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("expected no orphan guest items, found %d", orphans)
	}
}

func TestMergeWithoutGuestCart(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	mergeSvc := NewMergeService(env.db, env.cartRepo)
	u := userIdentity()

	merged, err := mergeSvc.MergeGuestCart(ctx, u.UserID, uuid.New())
	if err != nil {
		t.Fatalf("merge without guest cart should be a no-op, got %v", err)
	}
	items, err := env.cartRepo.ListItems(ctx, merged.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty user cart, got %d items", len(items))
	}
}

func TestMergeIdempotent(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	cartSvc := NewCartService(env.db, env.cartRepo, env.productRepo)
	mergeSvc := NewMergeService(env.db, env.cartRepo)

	p := createProduct(t, env.db, "牛仔外套", 3000, product.StatusAvailable)
	u := userIdentity()
	g := guestIdentity()
	if _, err := cartSvc.AddItem(ctx, g, p.ID); err != nil {
		t.Fatalf("guest add: %v", err)
	}

	if _, err := mergeSvc.MergeGuestCart(ctx, u.UserID, g.GuestSessionID); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	merged, err := mergeSvc.MergeGuestCart(ctx, u.UserID, g.GuestSessionID)
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	items, err := env.cartRepo.ListItems(ctx, merged.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("repeated merge should not duplicate items, got %d", len(items))
	}
}

func TestMergeCartBoundToBothOwners(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	cartSvc := NewCartService(env.db, env.cartRepo, env.productRepo)
	mergeSvc := NewMergeService(env.db, env.cartRepo)

	p := createProduct(t, env.db, "丝巾", 900, product.StatusAvailable)
	u := userIdentity()
	g := guestIdentity()
	if _, err := cartSvc.AddItem(ctx, g, p.ID); err != nil {
		t.Fatalf("guest add: %v", err)
	}

	// 历史数据里一辆车可能同时挂着两种归属，手工构造这种行
	if err := env.db.Model(&cart.Cart{}).
		Where("guest_session_id = ?", g.GuestSessionID).
		Update("user_id", u.UserID).Error; err != nil {
		t.Fatalf("bind user: %v", err)
	}

	merged, err := mergeSvc.MergeGuestCart(ctx, u.UserID, g.GuestSessionID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	got, err := env.cartRepo.FindByOwner(ctx, cart.OwnedByUser(u.UserID))
	if err != nil {
		t.Fatalf("find user cart: %v", err)
	}
	if got.ID != merged.ID {
		t.Fatalf("expected same cart row, got %s vs %s", got.ID, merged.ID)
	}
	if got.GuestSessionID != nil {
		t.Fatal("guest session binding should be cleared")
	}
	items, err := env.cartRepo.ListItems(ctx, got.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items should survive untouched, got %d", len(items))
	}
}
