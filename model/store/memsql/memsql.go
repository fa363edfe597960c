package memsql

import (
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"

	"enrolltrack/model/model"
)

// MemSQL is the gorm backed store. MemSQL speaks the MySQL protocol,
// so the mysql dialect is used for both.
type MemSQL struct {
	db *gorm.DB
}

func New(db *gorm.DB) *MemSQL {
	return &MemSQL{db: db}
}

// boundTimestamp applies an inclusive unix range on the timestamp
// column. A zero bound leaves that side open.
func boundTimestamp(query *gorm.DB, from, to int64) *gorm.DB {
	if from > 0 {
		query = query.Where("timestamp >= ?", from)
	}
	if to > 0 {
		query = query.Where("timestamp <= ?", to)
	}
	return query
}

// AutoMigrate creates or updates the engine tables. Used by
// development setups; production schemas are managed by migration
// scripts.
func (store *MemSQL) AutoMigrate() error {
	return store.db.AutoMigrate(
		&model.Visitor{},
		&model.Touchpoint{},
		&model.Handoff{},
		&model.ExternalCompletion{},
	).Error
}
