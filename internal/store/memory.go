package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Compile-time check to verify that MemoryStore implements Repository.
var _ Repository = (*MemoryStore)(nil)

// MemoryStore keeps every row in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	caseLogs    []CaseLog
	nodeLogs    []NodeLog
	experiments map[int64]ExperimentDefinition
	visits      []*VisitLog
	byID        map[string]*VisitLog
	seq         int64
	now         func() time.Time
}

// NewMemoryStore returns an empty in-memory repository.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[int64]ExperimentDefinition),
		byID:        make(map[string]*VisitLog),
		now:         time.Now,
	}
}

func (m *MemoryStore) CreateCaseLog(_ context.Context, row *CaseLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	row.ID = m.seq
	row.CreatedAt = m.now().UTC()
	m.caseLogs = append(m.caseLogs, *row)
	return nil
}

func (m *MemoryStore) CreateNodeLog(_ context.Context, row *NodeLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	row.ID = m.seq
	row.CreatedAt = m.now().UTC()
	m.nodeLogs = append(m.nodeLogs, *row)
	return nil
}

func (m *MemoryStore) UpsertExperimentDefinition(_ context.Context, def ExperimentDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.experiments[def.ID]; !ok {
		m.experiments[def.ID] = def
	}
	return nil
}

func (m *MemoryStore) CreateVisitLog(_ context.Context, row *VisitLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.experiments[row.ExperimentID]; !ok {
		return fmt.Errorf("failed to insert visit log: unknown experiment %d", row.ExperimentID)
	}
	if _, dup := m.byID[row.ID]; dup {
		return fmt.Errorf("failed to insert visit log: duplicate id %s", row.ID)
	}

	row.CreatedAt = m.now().UTC()
	stored := cloneVisit(*row)
	m.visits = append(m.visits, &stored)
	m.byID[row.ID] = &stored
	return nil
}

func (m *MemoryStore) UpdateVisitLogSuccess(_ context.Context, id string, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVisitLogNotFound, id)
	}
	if !v.Pending() {
		return fmt.Errorf("%w: %s", ErrVisitLogNotPending, id)
	}
	v.Success = &success
	return nil
}

func (m *MemoryStore) LinkVisitLogOutcome(_ context.Context, id, outcomeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVisitLogNotFound, id)
	}
	v.LinkedOutcomeID = &outcomeID
	return nil
}

func (m *MemoryStore) FindPendingVisitLogs(_ context.Context, runID string, experimentIDs []int64) ([]VisitLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]VisitLog, 0)
	for _, v := range m.visits {
		if v.RunID == runID && v.Pending() && slices.Contains(experimentIDs, v.ExperimentID) {
			out = append(out, cloneVisit(*v))
		}
	}
	return out, nil
}

func (m *MemoryStore) FindVisitLogsByRun(_ context.Context, runID string) ([]VisitLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]VisitLog, 0)
	for _, v := range m.visits {
		if v.RunID == runID {
			out = append(out, cloneVisit(*v))
		}
	}
	return out, nil
}

func (m *MemoryStore) HasSuccessfulLinkedVisit(_ context.Context, experimentID int64, subjectID, accountID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, v := range m.visits {
		if v.ExperimentID == experimentID && v.SubjectID == subjectID && v.AccountID == accountID && successfulLinked(v) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) CountSuccessfulLinkedVisits(_ context.Context, subjectID string, experimentID int64, excludeOutcomeID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, v := range m.visits {
		if v.SubjectID == subjectID && v.ExperimentID == experimentID && successfulLinked(v) && *v.LinkedOutcomeID != excludeOutcomeID {
			total++
		}
	}
	return total, nil
}

// CaseLogs returns a snapshot of the recorded case logs.
func (m *MemoryStore) CaseLogs() []CaseLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.caseLogs)
}

// NodeLogs returns a snapshot of the recorded node logs.
func (m *MemoryStore) NodeLogs() []NodeLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.nodeLogs)
}

// Experiments returns a snapshot of the stored definitions.
func (m *MemoryStore) Experiments() map[int64]ExperimentDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int64]ExperimentDefinition, len(m.experiments))
	for id, def := range m.experiments {
		out[id] = def
	}
	return out
}

// VisitLogs returns a snapshot of every visit log in insertion order.
func (m *MemoryStore) VisitLogs() []VisitLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]VisitLog, 0, len(m.visits))
	for _, v := range m.visits {
		out = append(out, cloneVisit(*v))
	}
	return out
}

func successfulLinked(v *VisitLog) bool {
	return v.Success != nil && *v.Success && v.LinkedOutcomeID != nil
}

func cloneVisit(v VisitLog) VisitLog {
	if v.Success != nil {
		s := *v.Success
		v.Success = &s
	}
	if v.LinkedOutcomeID != nil {
		l := *v.LinkedOutcomeID
		v.LinkedOutcomeID = &l
	}
	v.Extra = slices.Clone(v.Extra)
	return v
}
