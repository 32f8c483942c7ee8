package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  string
		name     string
	}{
		{"0001_init.sql", true, "0001", "init"},
		{"0012_add_summaries.sql", true, "0012", "add_summaries"},
		{"001_invalid.sql", false, "", ""},       // wrong number format
		{"0001_test", false, "", ""},             // missing .sql
		{"0001.sql", false, "", ""},              // missing name
		{"invalid_0001_test.sql", false, "", ""}, // wrong order
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			m := migrationPattern.FindStringSubmatch(tt.filename)
			if (m != nil) != tt.valid {
				t.Fatalf("match = %v, want valid=%v", m != nil, tt.valid)
			}
			if m == nil {
				return
			}
			if m[1] != tt.version || m[2] != tt.name {
				t.Errorf("parsed (%s, %s), want (%s, %s)", m[1], m[2], tt.version, tt.name)
			}
		})
	}
}

func TestReadMigrations_SortedByVersion(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"0002_second.sql": "CREATE TABLE b (id INT);",
		"0001_first.sql":  "CREATE TABLE a (id INT);",
		"notes.txt":       "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	migrations, err := readMigrations(dir)
	if err != nil {
		t.Fatalf("readMigrations failed: %v", err)
	}

	if len(migrations) != 2 {
		t.Fatalf("got %d migrations, want 2", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("migrations out of order: %+v", migrations)
	}
	if migrations[0].Checksum == "" || migrations[0].Checksum == migrations[1].Checksum {
		t.Error("checksums missing or not content-derived")
	}
}
