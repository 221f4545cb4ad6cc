// Package database opens the MySQL and Redis connections.
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
)

// NewMySQL opens the ledger database, sizes its pool and migrates the
// ledger tables.
func NewMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("[Database] MySQL connected")
	return db, nil
}

// Migrate creates or updates the ledger tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.SourceFile{}, &model.ChunkLedger{}); err != nil {
		return fmt.Errorf("migrate ledger tables: %w", err)
	}
	return nil
}
