// Package testutil opens throwaway sqlite databases wired like production:
// same gorm config, same tenant guard plugin.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// OpenDB installs a fresh file-backed sqlite database as the global DB.
// Transactions begin IMMEDIATE so concurrent writers queue on busy_timeout
// instead of failing on lock upgrade.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settlement.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate", path)
	db, err := gorm.Open(sqlite.Open(dsn), config.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := config.SetDB(db); err != nil {
		t.Fatalf("install db: %v", err)
	}
	t.Cleanup(func() {
		_ = config.SetDB(nil)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// BusinessContext is a request context for businessId acting as user 1.
func BusinessContext(businessId string) context.Context {
	ctx := utils.SetBusinessIdInContext(context.Background(), businessId)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "tester")
	return utils.SetCorrelationIdInContext(ctx, "test-"+businessId)
}
