package testutil

import (
	"database/sql"
	"os"
	"testing"

	"github.com/xxxsen/docsearch/internal/config"
	"github.com/xxxsen/docsearch/internal/db"
)

const testDims = 3

func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	conn, err := db.Open(config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     "docsearch",
		Password: "docsearch_pass",
		DBName:   "docsearch_test",
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn, testDims); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
	}
}
