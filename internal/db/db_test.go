package db

import (
	"fmt"
	"testing"
	"time"
)

func TestOpenMemoryDSNSyncsSchema(t *testing.T) {
	dsn := fmt.Sprintf("file:db_mem_%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := Open(dsn)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	for _, model := range []any{
		&User{}, &Category{}, &Task{}, &Conversation{}, &Message{},
		&RefreshToken{}, &PasswordReset{},
	} {
		if !gdb.Migrator().HasTable(model) {
			t.Fatalf("missing table for %T", model)
		}
	}
}

func TestSyncSchemaIsIdempotent(t *testing.T) {
	dsn := fmt.Sprintf("file:db_idem_%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := Open(dsn)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := SyncSchema(gdb); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
}

func TestTaskDefaults(t *testing.T) {
	dsn := fmt.Sprintf("file:db_defaults_%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := Open(dsn)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	now := time.Now().UTC().Unix()
	row := Task{ID: "t1", UserID: "u1", Title: "x", Priority: "medium", Status: "todo", CreatedAt: now, UpdatedAt: now}
	if err := gdb.Create(&row).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	var loaded Task
	if err := gdb.Where("id = ?", "t1").Take(&loaded).Error; err != nil {
		t.Fatalf("load failed: %v", err)
	}
	// Absence is encoded as empty strings, never NULL.
	if loaded.PreviousStatus != "" || loaded.CategoryID != "" || loaded.DueDate != "" {
		t.Fatalf("empty-string defaults not applied: %+v", loaded)
	}
}
