package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/openfroyo/fwgen/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

var _ Store = (*SQLiteStore)(nil)

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: opens its own database.
	if isMemory(cfg.Path) {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// dsn builds a modernc.org/sqlite connection string with per-connection pragmas.
func (s *SQLiteStore) dsn() string {
	pragmas := []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)", "_txlock=immediate"}
	if !isMemory(s.cfg.Path) {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	}

	sep := "?"
	if strings.Contains(s.cfg.Path, "?") {
		sep = "&"
	}
	return s.cfg.Path + sep + strings.Join(pragmas, "&")
}

// Init initializes the database connection.
func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RecordBuild stores a build with its registrations and errors in one
// transaction.
func (s *SQLiteStore) RecordBuild(ctx context.Context, rec *BuildRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("build record requires an id")
	}

	components, err := marshalJSON(rec.Components, "[]")
	if err != nil {
		return err
	}
	autoLoaded, err := marshalJSON(rec.AutoLoaded, "{}")
	if err != nil {
		return err
	}
	defines, err := marshalJSON(rec.Defines, "[]")
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO builds (id, source, project, status, started_at, duration_ms, components, auto_loaded, defines, config_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.Source,
		rec.Project,
		string(rec.Status),
		rec.StartedAt.UTC(),
		rec.Duration.Milliseconds(),
		components,
		autoLoaded,
		defines,
		rec.ConfigHash,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create build: %w", err)
	}

	for _, reg := range rec.Registrations {
		options, err := marshalJSON(reg.Options, "{}")
		if err != nil {
			return err
		}
		statements, err := marshalJSON(reg.Statements, "[]")
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO registrations (build_id, position, component, instance_id, options, statements)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.ID, reg.Position, reg.Component, reg.InstanceID, options, statements)
		if err != nil {
			return fmt.Errorf("failed to create registration %s: %w", reg.Component, err)
		}
	}

	for i, e := range rec.Errors {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO build_errors (build_id, seq, kind, component, message)
			VALUES (?, ?, ?, ?, ?)
		`, rec.ID, i, e.Kind, e.Component, e.Message)
		if err != nil {
			return fmt.Errorf("failed to create build error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit build: %w", err)
	}

	return nil
}

const buildColumns = `id, source, project, status, started_at, duration_ms, components, auto_loaded, defines, config_hash, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBuild(row rowScanner) (*BuildRecord, error) {
	rec := &BuildRecord{}
	var status, components, autoLoaded, defines string
	var durationMS int64

	err := row.Scan(
		&rec.ID,
		&rec.Source,
		&rec.Project,
		&status,
		&rec.StartedAt,
		&durationMS,
		&components,
		&autoLoaded,
		&defines,
		&rec.ConfigHash,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = engine.BuildStatus(status)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal([]byte(components), &rec.Components); err != nil {
		return nil, fmt.Errorf("failed to decode components: %w", err)
	}
	if err := json.Unmarshal([]byte(autoLoaded), &rec.AutoLoaded); err != nil {
		return nil, fmt.Errorf("failed to decode auto_loaded: %w", err)
	}
	if err := json.Unmarshal([]byte(defines), &rec.Defines); err != nil {
		return nil, fmt.Errorf("failed to decode defines: %w", err)
	}

	return rec, nil
}

// GetBuild retrieves a build with its registrations and errors.
func (s *SQLiteStore) GetBuild(ctx context.Context, id string) (*BuildRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+buildColumns+` FROM builds WHERE id = ?`, id)

	rec, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("build %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}

	if rec.Registrations, err = s.listRegistrations(ctx, id); err != nil {
		return nil, err
	}
	if rec.Errors, err = s.listErrors(ctx, id); err != nil {
		return nil, err
	}

	return rec, nil
}

func (s *SQLiteStore) listRegistrations(ctx context.Context, buildID string) ([]RegistrationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, component, instance_id, options, statements
		FROM registrations
		WHERE build_id = ?
		ORDER BY position
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	var regs []RegistrationRecord
	for rows.Next() {
		var reg RegistrationRecord
		var options, statements string
		if err := rows.Scan(&reg.Position, &reg.Component, &reg.InstanceID, &options, &statements); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		if err := json.Unmarshal([]byte(options), &reg.Options); err != nil {
			return nil, fmt.Errorf("failed to decode options: %w", err)
		}
		if err := json.Unmarshal([]byte(statements), &reg.Statements); err != nil {
			return nil, fmt.Errorf("failed to decode statements: %w", err)
		}
		regs = append(regs, reg)
	}

	return regs, rows.Err()
}

func (s *SQLiteStore) listErrors(ctx context.Context, buildID string) ([]ErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, component, message
		FROM build_errors
		WHERE build_id = ?
		ORDER BY seq
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list build errors: %w", err)
	}
	defer rows.Close()

	var errs []ErrorRecord
	for rows.Next() {
		var e ErrorRecord
		if err := rows.Scan(&e.Kind, &e.Component, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan build error: %w", err)
		}
		errs = append(errs, e)
	}

	return errs, rows.Err()
}

// ListBuilds lists builds newest first, without registrations. An empty
// project lists every project.
func (s *SQLiteStore) ListBuilds(ctx context.Context, project string, limit, offset int) ([]*BuildRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + buildColumns + ` FROM builds`
	args := []interface{}{}
	if project != "" {
		query += ` WHERE project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY started_at DESC, created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	var builds []*BuildRecord
	for rows.Next() {
		rec, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		builds = append(builds, rec)
	}

	return builds, rows.Err()
}

// DeleteBuild deletes a build and, through cascading keys, its children.
func (s *SQLiteStore) DeleteBuild(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM builds WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete build: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("build %s: %w", id, ErrNotFound)
	}

	return nil
}

// PruneBuilds keeps the newest keep builds and deletes the rest.
func (s *SQLiteStore) PruneBuilds(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative")
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM builds
		WHERE id NOT IN (
			SELECT id FROM builds ORDER BY started_at DESC, created_at DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune builds: %w", err)
	}

	return result.RowsAffected()
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

func marshalJSON(v interface{}, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode %T: %w", v, err)
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}
