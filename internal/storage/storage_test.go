package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"projd/internal/slogutil"
)

func TestOpenMemory(t *testing.T) {
	db, err := OpenMemory(slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if db.Path() != MemoryPath {
		t.Errorf("Path() = %q, want %q", db.Path(), MemoryPath)
	}
	version, err := db.getSchemaVersion()
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, currentSchemaVersion)
	}

	// The single pooled connection keeps the schema visible to later
	// statements.
	for _, table := range []string{"build_nodes", "build_inputs", "build_outputs"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestOpenOnDiskReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := db.Exec("INSERT INTO build_nodes (node, config_path, built_at) VALUES (?, ?, ?)", "/a/tsconfig.json", "/a/tsconfig.json", 1); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".projd", "build.db")); err != nil {
		t.Fatalf("database file not created: %v", err)
	}

	db, err = Open(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM build_nodes").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("rows after reopen = %d, want 1", count)
	}
}

func TestWithTxRollback(t *testing.T) {
	db, err := OpenMemory(nil)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	err = db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO build_nodes (node, config_path, built_at) VALUES ('n', 'n', 1)"); err != nil {
			return err
		}
		return errRollback
	})
	if err != errRollback {
		t.Fatalf("WithTx error = %v, want %v", err, errRollback)
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM build_nodes").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("rows after rollback = %d, want 0", count)
	}
}

var errRollback = errors.New("rollback")

func TestForeignKeyCascade(t *testing.T) {
	db, err := OpenMemory(nil)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	stmts := []string{
		"INSERT INTO build_nodes (node, config_path, built_at) VALUES ('n', 'n', 1)",
		"INSERT INTO build_inputs (node, path, mod_time, hash) VALUES ('n', '/a.ts', 1, 'h')",
		"INSERT INTO build_outputs (node, path) VALUES ('n', '/a.js')",
		"DELETE FROM build_nodes WHERE node = 'n'",
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("%s: %v", s, err)
		}
	}
	for _, table := range []string{"build_inputs", "build_outputs"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if count != 0 {
			t.Errorf("%s rows = %d, want 0 after cascade", table, count)
		}
	}
}

func TestPragmasOnEveryConnection(t *testing.T) {
	db, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	var conns []*sql.Conn
	for i := 0; i < 3; i++ {
		c, err := db.Conn().Conn(ctx)
		if err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		conns = append(conns, c)
	}
	for i, c := range conns {
		var fk int
		if err := c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		if fk != 1 {
			t.Errorf("conn %d: foreign_keys = %d, want 1", i, fk)
		}
	}
	for _, c := range conns {
		_ = c.Close()
	}
}
