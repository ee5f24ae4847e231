package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time check to verify that PostgresStore implements Repository.
var _ Repository = (*PostgresStore)(nil)

// PostgresStore is the Repository implementation backed by PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new repository instance with the given connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	if db == nil {
		panic("store: database pool cannot be nil")
	}
	return &PostgresStore{db: db}
}

const visitLogColumns = `id, experiment_id, run_id, subject_id, account_id, extra, success, linked_outcome_id, created_at`

// CreateCaseLog inserts a case execution row and populates ID and CreatedAt.
func (s *PostgresStore) CreateCaseLog(ctx context.Context, row *CaseLog) error {
	query := `
		INSERT INTO decision_case_logs (run_id, node_name, case_name, success, data, error_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := s.db.QueryRow(ctx, query,
		row.RunID,
		row.NodeName,
		row.CaseName,
		row.Success,
		nullableJSON(row.Data),
		row.ErrorType,
	).Scan(&row.ID, &row.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert case log: %w", err)
	}
	return nil
}

// CreateNodeLog inserts a node execution row and populates ID and CreatedAt.
func (s *PostgresStore) CreateNodeLog(ctx context.Context, row *NodeLog) error {
	query := `
		INSERT INTO decision_node_logs (run_id, node_name, success, updates, is_experimental, successor_node_name, failure_node_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := s.db.QueryRow(ctx, query,
		row.RunID,
		row.NodeName,
		row.Success,
		nullableJSON(row.Updates),
		row.IsExperimental,
		row.SuccessorNodeName,
		row.FailureNodeName,
	).Scan(&row.ID, &row.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert node log: %w", err)
	}
	return nil
}

// UpsertExperimentDefinition relies on ON CONFLICT DO NOTHING so concurrent first runs cannot collide.
func (s *PostgresStore) UpsertExperimentDefinition(ctx context.Context, def ExperimentDefinition) error {
	query := `
		INSERT INTO experiments (id, name, description, version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.db.Exec(ctx, query, def.ID, def.Name, def.Description, def.Version); err != nil {
		return fmt.Errorf("failed to upsert experiment %d: %w", def.ID, err)
	}
	return nil
}

// CreateVisitLog inserts a visit row. The caller assigns the ID.
func (s *PostgresStore) CreateVisitLog(ctx context.Context, row *VisitLog) error {
	query := `
		INSERT INTO experiment_visit_logs (id, experiment_id, run_id, subject_id, account_id, extra, success)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := s.db.QueryRow(ctx, query,
		row.ID,
		row.ExperimentID,
		row.RunID,
		row.SubjectID,
		row.AccountID,
		nullableJSON(row.Extra),
		row.Success,
	).Scan(&row.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert visit log: %w", err)
	}
	return nil
}

// UpdateVisitLogSuccess resolves a pending visit exactly once.
func (s *PostgresStore) UpdateVisitLogSuccess(ctx context.Context, id string, success bool) error {
	query := `
		UPDATE experiment_visit_logs
		SET success = $2, updated_at = now()
		WHERE id = $1 AND success IS NULL
	`
	tag, err := s.db.Exec(ctx, query, id, success)
	if err != nil {
		return fmt.Errorf("failed to resolve visit log %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.missingOrResolved(ctx, id)
}

// LinkVisitLogOutcome attaches the downstream outcome id to a visit.
func (s *PostgresStore) LinkVisitLogOutcome(ctx context.Context, id, outcomeID string) error {
	query := `
		UPDATE experiment_visit_logs
		SET linked_outcome_id = $2, updated_at = now()
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query, id, outcomeID)
	if err != nil {
		return fmt.Errorf("failed to link visit log %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrVisitLogNotFound, id)
	}
	return nil
}

// FindPendingVisitLogs returns the run's unresolved visits for the given experiments.
func (s *PostgresStore) FindPendingVisitLogs(ctx context.Context, runID string, experimentIDs []int64) ([]VisitLog, error) {
	if len(experimentIDs) == 0 {
		return []VisitLog{}, nil
	}

	query := `SELECT ` + visitLogColumns + `
		FROM experiment_visit_logs
		WHERE run_id = $1 AND success IS NULL AND experiment_id = ANY($2)
		ORDER BY created_at, id
	`
	return s.queryVisitLogs(ctx, query, runID, experimentIDs)
}

// FindVisitLogsByRun returns every visit recorded for the run.
func (s *PostgresStore) FindVisitLogsByRun(ctx context.Context, runID string) ([]VisitLog, error) {
	query := `SELECT ` + visitLogColumns + `
		FROM experiment_visit_logs
		WHERE run_id = $1
		ORDER BY created_at, id
	`
	return s.queryVisitLogs(ctx, query, runID)
}

// HasSuccessfulLinkedVisit backs the grandfather rule.
func (s *PostgresStore) HasSuccessfulLinkedVisit(ctx context.Context, experimentID int64, subjectID, accountID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM experiment_visit_logs
			WHERE experiment_id = $1 AND subject_id = $2 AND account_id = $3
			  AND success = TRUE AND linked_outcome_id IS NOT NULL
		)
	`
	var exists bool
	if err := s.db.QueryRow(ctx, query, experimentID, subjectID, accountID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check prior visits: %w", err)
	}
	return exists, nil
}

// CountSuccessfulLinkedVisits counts prior benefits of the subject, excluding excludeOutcomeID.
func (s *PostgresStore) CountSuccessfulLinkedVisits(ctx context.Context, subjectID string, experimentID int64, excludeOutcomeID string) (int64, error) {
	query := `
		SELECT count(*) FROM experiment_visit_logs
		WHERE subject_id = $1 AND experiment_id = $2
		  AND success = TRUE AND linked_outcome_id IS NOT NULL
		  AND linked_outcome_id <> $3
	`
	var total int64
	if err := s.db.QueryRow(ctx, query, subjectID, experimentID, excludeOutcomeID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count linked visits: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) queryVisitLogs(ctx context.Context, query string, args ...any) ([]VisitLog, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query visit logs: %w", err)
	}
	// Ensure rows are closed to prevent connection leaks in the pool.
	defer rows.Close()

	visits := make([]VisitLog, 0)
	for rows.Next() {
		var v VisitLog
		var extra []byte
		if err := rows.Scan(
			&v.ID,
			&v.ExperimentID,
			&v.RunID,
			&v.SubjectID,
			&v.AccountID,
			&extra,
			&v.Success,
			&v.LinkedOutcomeID,
			&v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan visit log row: %w", err)
		}
		v.Extra = extra
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return visits, nil
}

// missingOrResolved distinguishes a missing row from an already resolved one
// after an UPDATE matched nothing.
func (s *PostgresStore) missingOrResolved(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRow(ctx, `SELECT 1 FROM experiment_visit_logs WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrVisitLogNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to look up visit log %s: %w", id, err)
	}
	return fmt.Errorf("%w: %s", ErrVisitLogNotPending, id)
}
