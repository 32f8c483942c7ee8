package main

import (
	"crypto/sha256"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	_ "github.com/lib/pq"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

var (
	databaseURL   = flag.String("database", os.Getenv("DATABASE_URL"), "Postgres connection string (or set DATABASE_URL)")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir = flag.String("migrations", "migrations", "Path to migrations directory")
)

var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

func main() {
	flag.Parse()

	if *databaseURL == "" {
		log.Fatal("Error: -database flag or DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", *databaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := ensureSchemaMigrationsTable(db); err != nil {
		log.Fatalf("Failed to ensure schema_migrations table: %v", err)
	}

	migrations, err := readMigrations(*migrationsDir)
	if err != nil {
		log.Fatalf("Failed to read migrations: %v", err)
	}
	log.Printf("Found %d migration files", len(migrations))

	appliedVersions, err := getAppliedVersions(db)
	if err != nil {
		log.Fatalf("Failed to get applied migrations: %v", err)
	}
	log.Printf("Found %d already applied migrations", len(appliedVersions))

	appliedCount := 0
	for _, migration := range migrations {
		if appliedVersions[migration.Version] {
			log.Printf("  [SKIP] %04d_%s (already applied)", migration.Version, migration.Name)
			continue
		}

		log.Printf("  [RUN]  %04d_%s", migration.Version, migration.Name)
		if err := applyMigration(db, migration); err != nil {
			log.Fatalf("Failed to apply %s: %v", migration.Filename, err)
		}
		appliedCount++
	}

	log.Printf("Done: %d migrations applied", appliedCount)
}

func ensureSchemaMigrationsTable(db *sql.DB) error {
	const query = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INT PRIMARY KEY,
			name       TEXT NOT NULL,
			checksum   TEXT NOT NULL,
			applied_by TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL
		)`
	_, err := db.Exec(query)
	return err
}

// readMigrations loads NNNN_name.sql files sorted by version.
func readMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := migrationPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}

		version, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("parsing version of %s: %w", entry.Name(), err)
		}

		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     m[2],
			Filename: entry.Name(),
			SQL:      string(content),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func getAppliedVersions(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// applyMigration runs the migration and records it in one transaction.
func applyMigration(db *sql.DB, migration Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}

	const record = `
		INSERT INTO schema_migrations (version, name, checksum, applied_by, applied_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.Exec(record, migration.Version, migration.Name, migration.Checksum, *appliedBy, time.Now()); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	return tx.Commit()
}
