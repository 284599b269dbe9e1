package mysql

import (
	"log"
	"sync"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/example/vintagemart/internal/config"
	"github.com/example/vintagemart/internal/datamodels/cart"
	"github.com/example/vintagemart/internal/datamodels/order"
	"github.com/example/vintagemart/internal/datamodels/product"
	"github.com/example/vintagemart/internal/datamodels/user"
)

var (
	db   *gorm.DB
	once sync.Once
)

// Init 初始化全局 GORM 实例并自动迁移表结构
func Init(cfg *config.MySQLConfig) *gorm.DB {
	once.Do(func() {
		var err error
		db, err = gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}

		if err = Migrate(db); err != nil {
			log.Fatalf("auto migrate failed: %v", err)
		}
	})
	return db
}

// Migrate 迁移所有表结构，测试里也用它建 SQLite 库
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&user.User{},
		&product.Product{},
		&cart.Cart{},
		&cart.Item{},
		&order.Order{},
		&order.Item{},
	)
}

// DB 获取全局 DB
func DB() *gorm.DB {
	return db
}
