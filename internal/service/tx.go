package service

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lockForUpdate 给查询加排他行锁（SELECT ... FOR UPDATE）。
// SQLite 不认 FOR UPDATE 语法，事务本身就是单写者，直接跳过。
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
