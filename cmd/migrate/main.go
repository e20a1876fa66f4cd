// Applies migrations/*.sql in filename order, recording each applied file in
// schema_migrations so reruns are no-ops.
package main

import (
	"bufio"
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"zenux/internal/config"
	"zenux/internal/db"
)

const (
	migrationsDir = "migrations"
	downMarker    = "-- +migrate Down"
)

func main() {
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("migrate: connect: %v", err)
	}
	defer database.Close()

	if _, err := database.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		log.Fatalf("migrate: ensure ledger: %v", err)
	}

	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		log.Fatalf("migrate: read %s: %v", migrationsDir, err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, filename := range files {
		var exists bool
		if err := database.Get(&exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			log.Fatalf("migrate: ledger lookup: %v", err)
		}
		if exists {
			continue
		}
		if err := applyUp(database, filepath.Join(migrationsDir, filename)); err != nil {
			log.Fatalf("migrate: apply %s: %v", filename, err)
		}
		if _, err := database.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, filename); err != nil {
			log.Fatalf("migrate: record %s: %v", filename, err)
		}
		log.Printf("migrate: applied %s", filename)
		applied++
	}
	log.Printf("migrate: done, %d applied", applied)
}

// applyUp runs the up section of a migration file, statement by statement.
// Everything after the down marker is ignored.
func applyUp(conn sqlExecer, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	up, _, _ := strings.Cut(string(content), downMarker)
	for _, stmt := range statements(up) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// statements splits SQL text on semicolons at line granularity, dropping
// comment lines. Good enough for our DDL; no string literal in the schema
// carries a semicolon.
func statements(sqlText string) []string {
	var out []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(sqlText))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteRune('\n')
		if strings.Contains(line, ";") {
			out = append(out, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		out = append(out, current.String())
	}
	return out
}

type sqlExecer interface {
	Exec(query string, args ...any) (sql.Result, error)
}
