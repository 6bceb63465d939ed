// Package dbtest opens throwaway sqlite databases carrying the outbox schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE outbox_records (
		id TEXT PRIMARY KEY,
		aggregate_id TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload BLOB NOT NULL,
		status TEXT NOT NULL,
		occurred_on DATETIME NOT NULL,
		next_attempt_at DATETIME NOT NULL,
		retry_attempts INTEGER NOT NULL DEFAULT 0,
		claimed_by TEXT,
		claimed_until DATETIME,
		last_error TEXT,
		dead_lettered_at DATETIME,
		sent_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE INDEX idx_outbox_records_claim ON outbox_records (status, next_attempt_at, occurred_on)`,
	`CREATE TABLE event_history (
		id TEXT PRIMARY KEY,
		aggregate_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		occurred_on DATETIME NOT NULL,
		description TEXT NOT NULL,
		event_data TEXT NOT NULL
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE employees (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		salary TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
}

// Open returns an isolated in-memory database with every table created.
// The pool is pinned to one connection, so code running inside a transaction
// must only use the transaction handle.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
