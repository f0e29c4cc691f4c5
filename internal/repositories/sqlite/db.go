// Package sqlite implements the repository registry on a SQLite file through gorm. It backs local
// development and tests when no Firestore project is configured.
package sqlite

import (
	"context"
	"errors"
	"fmt"

	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hanko-field/storefront/internal/repositories"
)

// Open connects to the database at path (":memory:" for a throwaway database) and migrates the
// schema.
func Open(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite: database path is required")
	}
	db, err := gorm.Open(gormsqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite: handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRecord{}, &cartRecord{}, &cartItemRecord{}, &orderRecord{}, &orderItemRecord{}); err != nil {
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return db, nil
}

func wrapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repositories.NewNotFound(op, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return repositories.NewConflict(op, err)
	default:
		return repositories.NewUnknown(op, err)
	}
}
