package fakes

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/grasp-labs/ds-envelope-go-sdk/envelope"
)

// NewDB opens a sqlite database and migrates the envelope records table.
func NewDB(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&envelope.EnvelopeRecord{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}
