// Package decision implements the decision-graph engine: nodes made of ordered
// cases, success and failure edges between nodes, a merge-accumulated result,
// an audit trail and experiment nodes whose outcome is resolved after the walk.
package decision

import (
	"maps"
	"slices"
)

// Trigger identifies what started an evaluation.
type Trigger string

const (
	// TriggerUserRequest is an explicit request made by the subject. It is the
	// only trigger allowed to consume experiment quota.
	TriggerUserRequest Trigger = "user_request"
	TriggerBackground  Trigger = "background"
	TriggerScheduled   Trigger = "scheduled"
)

// Context describes the subject and the run. The engine reads it and only
// ever writes RunID, once, before the walk starts.
type Context struct {
	SubjectID    string         `json:"subject_id"`
	AccountID    string         `json:"account_id"`
	Trigger      Trigger        `json:"trigger"`
	AuditEnabled bool           `json:"audit_enabled"`
	RunID        string         `json:"run_id,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// Attribute returns a domain field carried by the context.
func (c *Context) Attribute(key string) (any, bool) {
	v, ok := c.Attributes[key]
	return v, ok
}

// CaseStatus is one entry of the walk-wide case history.
type CaseStatus struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// Updates is a partial result contributed by a case. It is deep-merged into
// Result.Fields.
type Updates map[string]any

// Result accumulates the decision across the walk. It is replaced at every
// step; methods return a new value and never modify the receiver.
type Result struct {
	CaseResolutionStatus []CaseStatus  `json:"case_resolution_status"`
	IsExperimental       bool           `json:"is_experimental"`
	Fields               map[string]any `json:"fields"`
}

// NewResult returns a result seeded with default domain fields.
func NewResult(defaults map[string]any) Result {
	return Result{Fields: DeepMerge(nil, defaults)}
}

// Get returns a top-level domain field.
func (r Result) Get(key string) (any, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// Bool returns a top-level boolean field, false when absent or not a bool.
func (r Result) Bool(key string) bool {
	b, _ := r.Fields[key].(bool)
	return b
}

// Merge returns a copy of r with u deep-merged into its fields.
func (r Result) Merge(u Updates) Result {
	if len(u) == 0 {
		return r
	}
	r.Fields = DeepMerge(r.Fields, u)
	return r
}

// Passed reports the recorded status of the most recent case with that name.
func (r Result) Passed(caseName string) (passed, found bool) {
	for i := len(r.CaseResolutionStatus) - 1; i >= 0; i-- {
		if r.CaseResolutionStatus[i].Name == caseName {
			return r.CaseResolutionStatus[i].Passed, true
		}
	}
	return false, false
}

// Clone returns a copy that shares no mutable state with r.
func (r Result) Clone() Result {
	return Result{
		CaseResolutionStatus: slices.Clone(r.CaseResolutionStatus),
		IsExperimental:       r.IsExperimental,
		Fields:               DeepMerge(nil, r.Fields),
	}
}

// withStatus appends to the case history without touching the backing array
// of earlier results.
func (r Result) withStatus(name string, passed bool) Result {
	r.CaseResolutionStatus = append(slices.Clip(r.CaseResolutionStatus), CaseStatus{Name: name, Passed: passed})
	return r
}

// CaseError is a business rejection returned by a case. It is a value that
// selects the failure edge, not a Go error.
type CaseError struct {
	// Type is a stable discriminant used for labels and audit rows.
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CaseOutcome is what a case produces. A nil Error means the case passed.
type CaseOutcome struct {
	Updates Updates
	Error   *CaseError
	LogData map[string]any
}

// Passed reports whether the case passed.
func (o CaseOutcome) Passed() bool {
	return o.Error == nil
}

// Pass builds a passing outcome.
func Pass(updates Updates) CaseOutcome {
	return CaseOutcome{Updates: updates}
}

// Reject builds a failing outcome.
func Reject(errType, message string) CaseOutcome {
	return CaseOutcome{Error: &CaseError{Type: errType, Message: message}}
}

// WithLogData returns a copy of o carrying extra audit data.
func (o CaseOutcome) WithLogData(data map[string]any) CaseOutcome {
	o.LogData = maps.Clone(data)
	return o
}
