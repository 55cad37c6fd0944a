// Package dbtest opens migrated in-memory SQLite databases for tests.
package dbtest

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scancodes/config"
	"scancodes/internal/database"
	"scancodes/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New returns a fresh database private to t. A single connection keeps the
// in-memory database alive and serializes access.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return open(t, fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano()), 1)
}

// NewFile returns a file-backed database with a real connection pool, for
// tests that race transactions against each other. Writers take the lock at
// BEGIN and wait on each other instead of failing with SQLITE_BUSY.
func NewFile(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	return open(t, "file:"+path+"?_busy_timeout=10000&_txlock=immediate&_journal_mode=WAL", 8)
}

func open(t testing.TB, dsn string, conns int) *gorm.DB {
	t.Helper()
	db, err := database.NewDB(&config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             dsn,
		MaxIdleConns:    conns,
		MaxOpenConns:    conns,
		ConnMaxLifetime: time.Hour,
	}, logger.Silent)
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// SeedUser creates a user and, when balance is not empty, a wallet.
func SeedUser(t testing.TB, db *gorm.DB, email, balance string) *models.User {
	t.Helper()
	u := &models.User{Email: email, FirstName: "Ada", LastName: "Obi", Role: "CUSTOMER"}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	if balance != "" {
		w := models.NewWallet(u.ID)
		w.Balance = decimal.RequireFromString(balance)
		if err := db.Create(w).Error; err != nil {
			t.Fatalf("seeding wallet: %v", err)
		}
	}
	return u
}

// Balance reads a wallet balance rendered with two decimals.
func Balance(t testing.TB, db *gorm.DB, userID uint) string {
	t.Helper()
	var w models.Wallet
	if err := db.Where("user_id = ?", userID).First(&w).Error; err != nil {
		t.Fatalf("loading wallet: %v", err)
	}
	return w.Balance.StringFixed(2)
}
