package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/vintagemart/internal/auth"
	"github.com/example/vintagemart/internal/config"
	"github.com/example/vintagemart/internal/datamodels/cart"
	"github.com/example/vintagemart/internal/datamodels/product"
	"github.com/example/vintagemart/internal/repository/mysql"
)

// testEnv 聚合一套测试依赖
type testEnv struct {
	db          *gorm.DB
	cartRepo    cart.Repository
	productRepo product.Repository
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	database := newTestDB(t)
	return &testEnv{
		db:          database,
		cartRepo:    mysql.NewCartRepository(database),
		productRepo: mysql.NewProductRepository(database),
	}
}

// newTestDB 每个测试一个独立的内存库，建全套表结构。
// cache=shared 让同一个库名下的多个连接看到同一份数据。
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := mysql.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createProduct(t *testing.T, db *gorm.DB, name string, price int64, status string) *product.Product {
	t.Helper()
	p := &product.Product{
		Name:     name,
		Price:    price,
		Status:   status,
		Gender:   "women",
		Category: "jackets",
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create product %q: %v", name, err)
	}
	return p
}

func userIdentity() auth.Identity {
	return auth.Identity{
		Kind:   auth.KindAuthenticated,
		UserID: uuid.New(),
		Email:  "buyer@example.com",
	}
}

func guestIdentity() auth.Identity {
	return auth.Identity{
		Kind:           auth.KindGuest,
		GuestSessionID: uuid.New(),
	}
}

// fakeNotifier 记录发布过的快照，用来断言通知只在提交后发出
type fakeNotifier struct {
	mu    sync.Mutex
	snaps []*OrderSnapshot
	err   error
}

func (f *fakeNotifier) PublishOrderConfirmation(_ context.Context, snap *OrderSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.snaps = append(f.snaps, snap)
	return nil
}

func (f *fakeNotifier) published() []*OrderSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snaps
}

func testCheckoutConfig() *config.CheckoutConfig {
	return &config.CheckoutConfig{ShippingFee: 1500}
}

func validForm() *CheckoutForm {
	return &CheckoutForm{
		FirstName:     "Anna",
		LastName:      "Kowalska",
		AddressLine1:  "ul. Piotrkowska 1",
		City:          "Łódź",
		PostalCode:    "90-001",
		Country:       "PL",
		Phone:         "+48123456789",
		PaymentMethod: "blik",
	}
}
