package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migration is one goose SQL file.
type Migration struct {
	Version int64
	Name    string
	SQL     string
}

// MigrationStatus reports whether a migration has been applied.
type MigrationStatus struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies the embedded SQL migrations with goose.
type Migrator struct {
	pool *pgxpool.Pool
	db   *sql.DB
	fsys fs.FS
}

// NewMigrator returns a Migrator over the migrations compiled into the binary.
// goose works on *sql.DB, so a database/sql handle is opened on top of pool;
// Close releases it without closing pool.
func NewMigrator(pool *pgxpool.Pool) (*Migrator, error) {
	fsys, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return newMigrator(pool, fsys)
}

func newMigrator(pool *pgxpool.Pool, fsys fs.FS) (*Migrator, error) {
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	m := &Migrator{pool: pool, fsys: fsys}
	if pool != nil {
		m.db = stdlib.OpenDBFromPool(pool)
	}
	return m, nil
}

// LoadMigrations lists the migration files sorted by version. Files whose
// name does not start with a numeric prefix are skipped.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue
		}
		content, err := fs.ReadFile(m.fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", name, err)
		}
		migrations = append(migrations, Migration{Version: version, Name: name, SQL: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Up applies all pending migrations and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	before, err := m.Version(ctx)
	if err != nil {
		return 0, err
	}
	goose.SetBaseFS(m.fsys)
	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}

	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, mig := range migrations {
		if mig.Version > before {
			count++
		}
	}
	return count, nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	goose.SetBaseFS(m.fsys)
	if err := goose.DownContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("roll back migration: %w", err)
	}
	return nil
}

// Version returns the current schema version, 0 before the first migration.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	version, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// Status returns every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}
	applied, err := m.appliedAt(ctx)
	if err != nil {
		return nil, err
	}
	return mergeStatus(migrations, applied), nil
}

// appliedAt reads goose's version table. A missing table means nothing has
// been applied yet.
func (m *Migrator) appliedAt(ctx context.Context) (map[int64]time.Time, error) {
	rows, err := m.pool.Query(ctx,
		`SELECT version_id, tstamp FROM goose_db_version WHERE is_applied AND version_id > 0`)
	if err != nil {
		if isUndefinedTable(err) {
			return map[int64]time.Time{}, nil
		}
		return nil, fmt.Errorf("query migration status: %w", err)
	}
	versions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (appliedVersion, error) {
		var v appliedVersion
		err := row.Scan(&v.version, &v.at)
		return v, err
	})
	if err != nil {
		if isUndefinedTable(err) {
			return map[int64]time.Time{}, nil
		}
		return nil, fmt.Errorf("scan migration status: %w", err)
	}

	applied := make(map[int64]time.Time, len(versions))
	for _, v := range versions {
		applied[v.version] = v.at
	}
	return applied, nil
}

type appliedVersion struct {
	version int64
	at      time.Time
}

func mergeStatus(migrations []Migration, applied map[int64]time.Time) []MigrationStatus {
	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		status := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := applied[mig.Version]; ok {
			status.Applied = true
			appliedAt := at
			status.AppliedAt = &appliedAt
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Close releases the database/sql handle. The pool stays open.
func (m *Migrator) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

func isUndefinedTable(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "42P01"
}
