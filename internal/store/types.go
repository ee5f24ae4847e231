// Package store provides the persistence collaborator of the decision engine:
// the audit trail (case and node execution logs), experiment definitions and
// experiment visit logs with their pending -> resolved -> linked lifecycle.
//
// PostgresStore is the production implementation, SQLStore backs single-node
// deployments on SQLite, and MemoryStore serves tests and dry runs.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrVisitLogNotFound is returned when a visit log id does not exist.
	ErrVisitLogNotFound = errors.New("store: visit log not found")

	// ErrVisitLogNotPending is returned by UpdateVisitLogSuccess when the row
	// was already resolved. A visit log is resolved at most once.
	ErrVisitLogNotPending = errors.New("store: visit log already resolved")
)

// CaseLog is one row per evaluated case when audit is enabled.
type CaseLog struct {
	ID        int64
	RunID     string
	NodeName  string
	CaseName  string
	Success   bool
	Data      json.RawMessage
	ErrorType string
	CreatedAt time.Time
}

// NodeLog is one row per evaluated node when audit is enabled. IsExperimental
// marks experiment nodes regardless of the walk's outcome.
type NodeLog struct {
	ID                int64
	RunID             string
	NodeName          string
	Success           bool
	Updates           json.RawMessage
	IsExperimental    bool
	SuccessorNodeName string
	FailureNodeName   string
	CreatedAt         time.Time
}

// ExperimentDefinition describes an experiment. It is upserted lazily the first
// time the experiment runs.
type ExperimentDefinition struct {
	ID          int64
	Name        string
	Description string
	Version     int
}

// VisitLog records one subject's participation in one experiment run.
//
// Success is nil while the outcome is pending. LinkedOutcomeID is attached later,
// when a downstream artifact created from the run is reported.
type VisitLog struct {
	ID              string
	ExperimentID    int64
	RunID           string
	SubjectID       string
	AccountID       string
	Extra           json.RawMessage
	Success         *bool
	LinkedOutcomeID *string
	CreatedAt       time.Time
}

// Pending reports whether the visit still awaits resolution.
func (v VisitLog) Pending() bool {
	return v.Success == nil
}

// Repository is the persistence contract consumed by the decision engine.
// Every call is awaited and failures propagate to the caller.
type Repository interface {
	CreateCaseLog(ctx context.Context, row *CaseLog) error
	CreateNodeLog(ctx context.Context, row *NodeLog) error

	// UpsertExperimentDefinition inserts the definition when its id is absent and is a no-op otherwise.
	UpsertExperimentDefinition(ctx context.Context, def ExperimentDefinition) error

	CreateVisitLog(ctx context.Context, row *VisitLog) error

	// UpdateVisitLogSuccess resolves a pending visit. It returns ErrVisitLogNotPending
	// when the row was already resolved and ErrVisitLogNotFound when it does not exist.
	UpdateVisitLogSuccess(ctx context.Context, id string, success bool) error

	// LinkVisitLogOutcome attaches the id of the downstream artifact produced by the run.
	LinkVisitLogOutcome(ctx context.Context, id, outcomeID string) error

	// FindPendingVisitLogs returns the run's visits with a NULL outcome, restricted to experimentIDs.
	FindPendingVisitLogs(ctx context.Context, runID string, experimentIDs []int64) ([]VisitLog, error)

	// FindVisitLogsByRun returns every visit recorded for the run.
	FindVisitLogsByRun(ctx context.Context, runID string) ([]VisitLog, error)

	// HasSuccessfulLinkedVisit reports whether the subject already benefited from the experiment.
	HasSuccessfulLinkedVisit(ctx context.Context, experimentID int64, subjectID, accountID string) (bool, error)

	// CountSuccessfulLinkedVisits counts successful, linked visits of the subject for the
	// experiment, ignoring the ones linked to excludeOutcomeID.
	CountSuccessfulLinkedVisits(ctx context.Context, subjectID string, experimentID int64, excludeOutcomeID string) (int64, error)
}

// nullableJSON maps an empty payload to SQL NULL.
func nullableJSON(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}
