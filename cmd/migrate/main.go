package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fulfillment-be/internal/config"
	"fulfillment-be/internal/db"
	"fulfillment-be/internal/logger"

	"go.uber.org/zap"
)

func main() {
	mode := flag.String("mode", "up", "migration mode: up, down or status")
	dir := flag.String("dir", "./migrations", "directory holding *.sql migrations")
	steps := flag.Int("steps", 1, "migrations to roll back in down mode")
	flag.Parse()

	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	conn, err := db.NewDatabase(cfg)
	if err != nil {
		logger.L().Fatal("failed to connect db", zap.Error(err))
	}
	defer conn.Close()

	if err := run(context.Background(), conn, *mode, *dir, *steps); err != nil {
		logger.L().Fatal("migration failed", zap.Error(err))
	}
}

func run(ctx context.Context, conn *sql.DB, mode, migrationsDir string, steps int) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.sql"))
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	switch mode {
	case "up":
		return runMigrationsUp(ctx, conn, files)
	case "down":
		return runMigrationsDown(ctx, conn, files, steps)
	case "status":
		return printStatus(ctx, conn, files, os.Stdout)
	default:
		return fmt.Errorf("unknown mode: %s (use up, down or status)", mode)
	}
}

// appliedVersions returns applied versions, most recent first.
func appliedVersions(ctx context.Context, conn *sql.DB) ([]string, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT version FROM schema_migrations ORDER BY applied_at DESC, version DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("load applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func applyFile(ctx context.Context, conn *sql.DB, file, section, record string) error {
	version := filepath.Base(file)
	content, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", version, err)
	}
	body := extractMigrationPart(string(content), section)

	return db.WithTx(ctx, conn, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, body); err != nil {
			return fmt.Errorf("migration %s %s: %w", version, strings.ToLower(section), err)
		}
		_, err := tx.ExecContext(ctx, record, version)
		return err
	})
}

// runMigrationsUp applies pending files in name order, each in its own
// transaction together with its schema_migrations row.
func runMigrationsUp(ctx context.Context, conn *sql.DB, files []string) error {
	log := logger.L().With(zap.String("layer", "migrate"))

	versions, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}
	done := make(map[string]bool, len(versions))
	for _, v := range versions {
		done[v] = true
	}

	applied := 0
	for _, file := range files {
		version := filepath.Base(file)
		if done[version] {
			continue
		}
		log.Info("applying migration", zap.String("version", version))
		if err := applyFile(ctx, conn, file, "Up", `INSERT INTO schema_migrations (version) VALUES ($1)`); err != nil {
			return err
		}
		applied++
	}

	log.Info("migrations up to date", zap.Int("applied", applied))
	return nil
}

// runMigrationsDown rolls back the most recent steps migrations.
func runMigrationsDown(ctx context.Context, conn *sql.DB, files []string, steps int) error {
	log := logger.L().With(zap.String("layer", "migrate"))
	if steps <= 0 {
		steps = 1
	}

	versions, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		log.Info("no migrations to roll back")
		return nil
	}
	if len(versions) > steps {
		versions = versions[:steps]
	}

	byVersion := make(map[string]string, len(files))
	for _, f := range files {
		byVersion[filepath.Base(f)] = f
	}

	for _, version := range versions {
		file, ok := byVersion[version]
		if !ok {
			return fmt.Errorf("migration file not found for version: %s", version)
		}
		log.Info("rolling back migration", zap.String("version", version))
		if err := applyFile(ctx, conn, file, "Down", `DELETE FROM schema_migrations WHERE version = $1`); err != nil {
			return err
		}
	}
	return nil
}

func printStatus(ctx context.Context, conn *sql.DB, files []string, out io.Writer) error {
	versions, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}
	done := make(map[string]bool, len(versions))
	for _, v := range versions {
		done[v] = true
	}

	for _, f := range files {
		state := "pending"
		if done[filepath.Base(f)] {
			state = "applied"
		}
		fmt.Fprintf(out, "%-8s %s\n", state, filepath.Base(f))
	}
	return nil
}

// extractMigrationPart returns the lines between "-- +migrate <section>" and
// the next marker.
func extractMigrationPart(content string, section string) string {
	var part strings.Builder
	inPart := false

	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, "-- +migrate "+section) {
			inPart = true
			continue
		}
		if inPart && strings.HasPrefix(line, "-- +migrate") {
			break
		}
		if inPart {
			part.WriteString(line + "\n")
		}
	}
	return part.String()
}
