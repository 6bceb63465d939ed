package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func countRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return count
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db, nil)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *Tx) error {
		return tx.DB().Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}
	if count := countRows(t, db); count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *Tx) error {
		if err := tx.DB().Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if count := countRows(t, db); count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithTx_AfterCommitRunsOncePerRegistration(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db, nil)

	var calls []string
	err := client.WithTx(context.Background(), func(tx *Tx) error {
		tx.AfterCommit(func(context.Context) { calls = append(calls, "first") })
		tx.AfterCommit(func(context.Context) { calls = append(calls, "second") })
		if len(calls) != 0 {
			t.Fatalf("callbacks must not run before commit, ran %v", calls)
		}
		return tx.DB().Create(&testModel{Name: "hooked"}).Error
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("expected callbacks in registration order, got %v", calls)
	}
}

func TestWithTx_AfterCommitSkippedOnRollback(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db, nil)

	fired := 0
	err := client.WithTx(context.Background(), func(tx *Tx) error {
		tx.AfterCommit(func(context.Context) { fired++ })
		if err := tx.DB().Create(&testModel{Name: "doomed"}).Error; err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if fired != 0 {
		t.Fatalf("callback fired %d times after rollback", fired)
	}
	if count := countRows(t, db); count != 0 {
		t.Fatalf("expected no rows after rollback, got %d", count)
	}
}

func TestWithTx_AfterCommitSkippedOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db, nil)

	fired := 0
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *Tx) error {
			tx.AfterCommit(func(context.Context) { fired++ })
			panic("kaboom")
		})
	}()
	if fired != 0 {
		t.Fatalf("callback fired %d times after panic", fired)
	}
}

func TestWithTx_PanickingCallbackDoesNotFailCommit(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db, nil)

	after := 0
	err := client.WithTx(context.Background(), func(tx *Tx) error {
		tx.AfterCommit(func(context.Context) { panic("listener bug") })
		tx.AfterCommit(func(context.Context) { after++ })
		return tx.DB().Create(&testModel{Name: "kept"}).Error
	})
	if err != nil {
		t.Fatalf("commit must succeed, got %v", err)
	}
	if after != 1 {
		t.Fatalf("expected later callbacks to still run, got %d", after)
	}
	if count := countRows(t, db); count != 1 {
		t.Fatalf("expected committed row, got %d", count)
	}
}

func TestTx_AfterCommitIgnoredOnceFinished(t *testing.T) {
	tx := newTx(nil)
	tx.AfterCommit(func(context.Context) {})
	if tx.Pending() != 1 {
		t.Fatalf("expected 1 pending callback, got %d", tx.Pending())
	}
	tx.discard()
	tx.AfterCommit(func(context.Context) {})
	if tx.Pending() != 0 {
		t.Fatalf("expected finished tx to refuse callbacks, got %d", tx.Pending())
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db, nil)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error is not a violation")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: employees.email"), "") {
		t.Fatal("expected sqlite unique failure to be detected")
	}
	if !IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "ux_employees_email"`), "ux_employees_email") {
		t.Fatal("expected named constraint to match")
	}
	if IsUniqueViolation(errors.New("connection reset"), "") {
		t.Fatal("unrelated error must not match")
	}
}
