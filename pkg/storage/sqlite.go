package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite is the embedded database backend, the default history store.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (or creates) the database at path and runs migrations.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLite{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const recordColumns = `id, timestamp, plan_file, plan_hash, plan_name, status,
	duration_ms, total_steps, passed_steps, failed_steps,
	runner_version, runner_report, tags, metadata, created_at`

// Save upserts a record. The report blob is gzipped at rest.
func (s *SQLite) Save(ctx context.Context, rec *ExecutionRecord) error {
	tags, err := json.Marshal(orEmptyTags(rec.Tags))
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	meta, err := json.Marshal(orEmptyMeta(rec.Metadata))
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	var report []byte
	if len(rec.RunnerReport) > 0 {
		if report, err = gzipBytes(rec.RunnerReport); err != nil {
			return fmt.Errorf("failed to compress report: %w", err)
		}
	}

	query := `
		INSERT INTO executions (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			timestamp = excluded.timestamp,
			plan_file = excluded.plan_file,
			plan_hash = excluded.plan_hash,
			plan_name = excluded.plan_name,
			status = excluded.status,
			duration_ms = excluded.duration_ms,
			total_steps = excluded.total_steps,
			passed_steps = excluded.passed_steps,
			failed_steps = excluded.failed_steps,
			runner_version = excluded.runner_version,
			runner_report = excluded.runner_report,
			tags = excluded.tags,
			metadata = excluded.metadata
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.PlanFile,
		nullable(rec.PlanHash),
		nullable(rec.PlanName),
		rec.Status,
		rec.DurationMs,
		rec.TotalSteps,
		rec.PassedSteps,
		rec.FailedSteps,
		nullable(rec.RunnerVersion),
		report,
		string(tags),
		string(meta),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save execution record: %w", err)
	}
	return nil
}

// Get retrieves one record by id.
func (s *SQLite) Get(ctx context.Context, id string) (*ExecutionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM executions WHERE id = ?`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution record not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution record: %w", err)
	}
	return rec, nil
}

// List returns records most-recent-first, applying all set filters as AND.
func (s *SQLite) List(ctx context.Context, filter ListFilter) ([]*ExecutionRecord, error) {
	var (
		clauses []string
		args    []interface{}
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.StartDate.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.StartDate.UTC().Format(time.RFC3339Nano))
	}
	if !filter.EndDate.IsZero() {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filter.EndDate.UTC().Format(time.RFC3339Nano))
	}
	for _, tag := range filter.Tags {
		clauses = append(clauses, "tags LIKE ?")
		args = append(args, `%"`+tag+`"%`)
	}

	query := `SELECT ` + recordColumns + ` FROM executions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC LIMIT ? OFFSET ?"
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit, filter.Offset)

	return s.queryRecords(ctx, query, args...)
}

// Delete removes a record, reporting whether it existed.
func (s *SQLite) Delete(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete execution record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Stats aggregates counts and the time range of stored records.
func (s *SQLite) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failure' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0),
			MIN(timestamp), MAX(timestamp)
		FROM executions
	`
	st := &Stats{Backend: "sqlite"}
	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx, query).Scan(
		&st.Total, &st.SuccessCount, &st.FailureCount, &st.ErrorCount, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	if t, ok := parseNullTime(oldest); ok {
		st.Oldest = &t
	}
	if t, ok := parseNullTime(newest); ok {
		st.Newest = &t
	}
	if info, err := os.Stat(s.path); err == nil {
		st.SizeBytes = info.Size()
	}
	return st, nil
}

// Clear removes every record and returns how many were deleted.
func (s *SQLite) Clear(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM executions`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear executions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// Search matches text against id, plan name, plan file and tags.
func (s *SQLite) Search(ctx context.Context, text string) ([]*ExecutionRecord, error) {
	pattern := "%" + text + "%"
	query := `SELECT ` + recordColumns + ` FROM executions
		WHERE id LIKE ? OR plan_name LIKE ? OR plan_file LIKE ? OR tags LIKE ?
		ORDER BY timestamp DESC LIMIT ?`
	return s.queryRecords(ctx, query, pattern, pattern, pattern, pattern, DefaultListLimit)
}

// GetByPlanHash returns all executions of one plan content, newest first.
func (s *SQLite) GetByPlanHash(ctx context.Context, hash string) ([]*ExecutionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM executions
		WHERE plan_hash = ? ORDER BY timestamp DESC`
	return s.queryRecords(ctx, query, hash)
}

// GetLatest returns the most recent record, or nil when the store is empty.
func (s *SQLite) GetLatest(ctx context.Context) (*ExecutionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM executions ORDER BY timestamp DESC LIMIT 1`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest record: %w", err)
	}
	return rec, nil
}

// Vacuum reclaims space after deletions.
func (s *SQLite) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

func (s *SQLite) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	records := []*ExecutionRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*ExecutionRecord, error) {
	var (
		rec                           ExecutionRecord
		timestamp, createdAt          string
		planHash, planName, runnerVer sql.NullString
		report                        []byte
		tags, meta                    string
	)
	err := row.Scan(
		&rec.ID, &timestamp, &rec.PlanFile, &planHash, &planName, &rec.Status,
		&rec.DurationMs, &rec.TotalSteps, &rec.PassedSteps, &rec.FailedSteps,
		&runnerVer, &report, &tags, &meta, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	rec.PlanHash = planHash.String
	rec.PlanName = planName.String
	rec.RunnerVersion = runnerVer.String
	if rec.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp); err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", timestamp, err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if len(report) > 0 {
		if rec.RunnerReport, err = gunzipBytes(report); err != nil {
			return nil, fmt.Errorf("failed to decompress report: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
		return nil, fmt.Errorf("invalid tags payload: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("invalid metadata payload: %w", err)
	}
	return &rec, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func parseNullTime(ns sql.NullString) (time.Time, bool) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func orEmptyTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func orEmptyMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return map[string]string{}
	}
	return meta
}
