package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Compile-time check to verify that SQLStore implements Repository.
var _ Repository = (*SQLStore)(nil)

// sqliteSchema mirrors migrations/001_create_decision_audit.sql for SQLite.
// Timestamps are stored as RFC 3339 text written by the application.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS decision_case_logs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT    NOT NULL,
    node_name  TEXT    NOT NULL,
    case_name  TEXT    NOT NULL,
    success    INTEGER NOT NULL,
    data       TEXT,
    error_type TEXT    NOT NULL DEFAULT '',
    created_at TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decision_case_logs_run_id ON decision_case_logs (run_id);

CREATE TABLE IF NOT EXISTS decision_node_logs (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id              TEXT    NOT NULL,
    node_name           TEXT    NOT NULL,
    success             INTEGER NOT NULL,
    updates             TEXT,
    is_experimental     INTEGER NOT NULL DEFAULT 0,
    successor_node_name TEXT    NOT NULL DEFAULT '',
    failure_node_name   TEXT    NOT NULL DEFAULT '',
    created_at          TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decision_node_logs_run_id ON decision_node_logs (run_id);

CREATE TABLE IF NOT EXISTS experiments (
    id          INTEGER PRIMARY KEY,
    name        TEXT    NOT NULL,
    description TEXT    NOT NULL DEFAULT '',
    version     INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS experiment_visit_logs (
    id                TEXT PRIMARY KEY,
    experiment_id     INTEGER NOT NULL REFERENCES experiments (id),
    run_id            TEXT    NOT NULL,
    subject_id        TEXT    NOT NULL,
    account_id        TEXT    NOT NULL DEFAULT '',
    extra             TEXT,
    success           INTEGER,
    linked_outcome_id TEXT,
    created_at        TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_visit_logs_run ON experiment_visit_logs (run_id);
CREATE INDEX IF NOT EXISTS idx_visit_logs_subject ON experiment_visit_logs (experiment_id, subject_id);
`

// SQLStore is the Repository implementation for SQLite.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the SQLite database at path and applies the schema.
// Use ":memory:" for an ephemeral database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite serialises writers anyway, and an in-memory database only lives
	// on the connection that created it.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA foreign_keys = ON;", "PRAGMA busy_timeout = 5000;", sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialise sqlite schema: %w", err)
		}
	}

	return &SQLStore{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the handle for health checks and tests.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) timestamp() (time.Time, string) {
	t := s.now().UTC()
	return t, t.Format(time.RFC3339Nano)
}

func (s *SQLStore) CreateCaseLog(ctx context.Context, row *CaseLog) error {
	createdAt, ts := s.timestamp()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_case_logs (run_id, node_name, case_name, success, data, error_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.RunID, row.NodeName, row.CaseName, row.Success, nullableText(row.Data), row.ErrorType, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert case log: %w", err)
	}
	if row.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read case log id: %w", err)
	}
	row.CreatedAt = createdAt
	return nil
}

func (s *SQLStore) CreateNodeLog(ctx context.Context, row *NodeLog) error {
	createdAt, ts := s.timestamp()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_node_logs (run_id, node_name, success, updates, is_experimental, successor_node_name, failure_node_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.RunID, row.NodeName, row.Success, nullableText(row.Updates), row.IsExperimental, row.SuccessorNodeName, row.FailureNodeName, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert node log: %w", err)
	}
	if row.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read node log id: %w", err)
	}
	row.CreatedAt = createdAt
	return nil
}

func (s *SQLStore) UpsertExperimentDefinition(ctx context.Context, def ExperimentDefinition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiments (id, name, description, version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		def.ID, def.Name, def.Description, def.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert experiment %d: %w", def.ID, err)
	}
	return nil
}

func (s *SQLStore) CreateVisitLog(ctx context.Context, row *VisitLog) error {
	createdAt, ts := s.timestamp()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiment_visit_logs (id, experiment_id, run_id, subject_id, account_id, extra, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.ExperimentID, row.RunID, row.SubjectID, row.AccountID, nullableText(row.Extra), nullableBool(row.Success), ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert visit log: %w", err)
	}
	row.CreatedAt = createdAt
	return nil
}

func (s *SQLStore) UpdateVisitLogSuccess(ctx context.Context, id string, success bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE experiment_visit_logs SET success = ? WHERE id = ? AND success IS NULL`,
		success, id,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve visit log %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM experiment_visit_logs WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrVisitLogNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to look up visit log %s: %w", id, err)
	}
	return fmt.Errorf("%w: %s", ErrVisitLogNotPending, id)
}

func (s *SQLStore) LinkVisitLogOutcome(ctx context.Context, id, outcomeID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE experiment_visit_logs SET linked_outcome_id = ? WHERE id = ?`,
		outcomeID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to link visit log %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrVisitLogNotFound, id)
	}
	return nil
}

func (s *SQLStore) FindPendingVisitLogs(ctx context.Context, runID string, experimentIDs []int64) ([]VisitLog, error) {
	if len(experimentIDs) == 0 {
		return []VisitLog{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(experimentIDs)), ",")
	args := make([]any, 0, len(experimentIDs)+1)
	args = append(args, runID)
	for _, id := range experimentIDs {
		args = append(args, id)
	}

	query := `SELECT ` + visitLogColumns + ` FROM experiment_visit_logs
		WHERE run_id = ? AND success IS NULL AND experiment_id IN (` + placeholders + `)
		ORDER BY created_at, id`
	return s.queryVisitLogs(ctx, query, args...)
}

func (s *SQLStore) FindVisitLogsByRun(ctx context.Context, runID string) ([]VisitLog, error) {
	query := `SELECT ` + visitLogColumns + ` FROM experiment_visit_logs
		WHERE run_id = ?
		ORDER BY created_at, id`
	return s.queryVisitLogs(ctx, query, runID)
}

func (s *SQLStore) HasSuccessfulLinkedVisit(ctx context.Context, experimentID int64, subjectID, accountID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM experiment_visit_logs
			WHERE experiment_id = ? AND subject_id = ? AND account_id = ?
			  AND success = 1 AND linked_outcome_id IS NOT NULL
		)`,
		experimentID, subjectID, accountID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check prior visits: %w", err)
	}
	return exists, nil
}

func (s *SQLStore) CountSuccessfulLinkedVisits(ctx context.Context, subjectID string, experimentID int64, excludeOutcomeID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM experiment_visit_logs
		WHERE subject_id = ? AND experiment_id = ?
		  AND success = 1 AND linked_outcome_id IS NOT NULL
		  AND linked_outcome_id <> ?`,
		subjectID, experimentID, excludeOutcomeID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count linked visits: %w", err)
	}
	return total, nil
}

func (s *SQLStore) queryVisitLogs(ctx context.Context, query string, args ...any) ([]VisitLog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query visit logs: %w", err)
	}
	defer rows.Close()

	visits := make([]VisitLog, 0)
	for rows.Next() {
		var (
			v         VisitLog
			extra     sql.NullString
			success   sql.NullBool
			linked    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&v.ID, &v.ExperimentID, &v.RunID, &v.SubjectID, &v.AccountID, &extra, &success, &linked, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan visit log row: %w", err)
		}
		if extra.Valid {
			v.Extra = []byte(extra.String)
		}
		if success.Valid {
			b := success.Bool
			v.Success = &b
		}
		if linked.Valid {
			l := linked.String
			v.LinkedOutcomeID = &l
		}
		if v.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse visit log timestamp: %w", err)
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return visits, nil
}

func nullableText(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}
