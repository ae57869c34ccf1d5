package store

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database standing in for
// Postgres in tests, adapted from internal/db/test_db.go's pattern.
func SetupTestDB() (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	s := NewGormStore(db)
	if err := s.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate test database: %w", err)
	}
	return s, nil
}

// CleanupTestDB releases the in-memory database's connection.
func CleanupTestDB(s *GormStore) {
	_ = s.Close()
}
