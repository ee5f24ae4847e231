package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rafaeljc/arbiter/internal/store"
	"github.com/rafaeljc/arbiter/internal/validation"
)

// DefaultResolveConcurrency bounds how many pending visits are resolved at once.
const DefaultResolveConcurrency = 5

// ErrNilRoot is returned by NewEngine when the graph has no root node.
var ErrNilRoot = errors.New("decision: root node is nil")

// Engine walks a static decision graph. It holds no per-run state and is safe
// for concurrent use once the graph is fully built.
type Engine struct {
	root               *Node
	repo               store.Repository
	metrics            Metrics
	logger             *slog.Logger
	resolveConcurrency int
	newID              func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics sets the metrics collaborator.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithResolveConcurrency bounds concurrent visit resolution. Values below 1 are ignored.
func WithResolveConcurrency(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.resolveConcurrency = n
		}
	}
}

// WithIDGenerator overrides run and visit id generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine creates an engine for the graph rooted at root.
func NewEngine(root *Node, repo store.Repository, opts ...Option) (*Engine, error) {
	if root == nil {
		return nil, ErrNilRoot
	}
	validation.AssertNotNil(repo, "repository")

	e := &Engine{
		root:               root,
		repo:               repo,
		metrics:            NopMetrics{},
		logger:             slog.Default(),
		resolveConcurrency: DefaultResolveConcurrency,
		newID:              uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Root returns the graph's entry node.
func (e *Engine) Root() *Node {
	return e.root
}

// Evaluate walks the graph from the root and returns the final result. When
// audit is enabled and dctx has no RunID, one is assigned before the walk.
//
// Any error is an infrastructure fault: the walk is aborted and no partial
// result is returned. Business rejections are part of the returned Result.
func (e *Engine) Evaluate(ctx context.Context, dctx *Context, initial Result) (Result, error) {
	validation.AssertNotNil(dctx, "decision context")

	if dctx.AuditEnabled && dctx.RunID == "" {
		dctx.RunID = e.newID()
	}

	log := e.logger.With(slog.String("run_id", dctx.RunID), slog.String("subject_id", dctx.SubjectID))
	log.Debug("evaluation started", slog.String("root", e.root.name))

	result := initial.Clone()
	var prev Updates
	for node := e.root; ; {
		next, res, cumulative, err := e.evaluateNode(ctx, node, dctx, result, prev)
		if err != nil {
			return Result{}, err
		}
		result = res

		if next == nil {
			log.Debug("terminal node reached", slog.String("node", node.name))
			return e.Finish(ctx, dctx, result)
		}
		node, prev = next, cumulative
	}
}

// evaluateNode runs every case of n in order, regardless of earlier failures,
// then selects the edge to follow.
func (e *Engine) evaluateNode(ctx context.Context, n *Node, dctx *Context, result Result, prev Updates) (*Node, Result, Updates, error) {
	var (
		errs       []CaseError
		cumulative = Updates{}
	)

	for _, c := range n.cases {
		outcome, err := e.runCase(ctx, n, c, dctx, result, prev)
		if err != nil {
			return nil, Result{}, nil, fmt.Errorf("node %q case %q: %w", n.name, c.Name, err)
		}

		result = result.Merge(outcome.Updates).withStatus(c.Name, outcome.Passed())
		cumulative = DeepMerge(cumulative, outcome.Updates)

		if dctx.AuditEnabled {
			if err := e.logCase(ctx, n, c, dctx, outcome); err != nil {
				return nil, Result{}, nil, err
			}
		}
		if outcome.Error != nil {
			errs = append(errs, *outcome.Error)
		}
	}

	passed := len(errs) == 0
	var (
		next *Node
		err  error
	)
	if passed {
		result, err = n.afterAllCases(ctx, dctx, result)
		next = n.onSuccess
	} else {
		result, err = n.onError(ctx, errs, dctx, result)
		next = n.onFailure
	}
	if err != nil {
		return nil, Result{}, nil, fmt.Errorf("node %q hook: %w", n.name, err)
	}

	if dctx.AuditEnabled {
		if err := e.logNode(ctx, n, dctx, passed, cumulative); err != nil {
			return nil, Result{}, nil, err
		}
	}
	e.metrics.NodeEvaluated(n.name, passed)

	return next, result, cumulative, nil
}

func (e *Engine) runCase(ctx context.Context, n *Node, c Case, dctx *Context, result Result, prev Updates) (CaseOutcome, error) {
	if n.experiment != nil {
		return e.runExperiment(ctx, n, dctx, result)
	}
	if c.Run == nil {
		return CaseOutcome{}, fmt.Errorf("case has no implementation")
	}
	return c.Run(ctx, dctx, result, prev)
}

func (e *Engine) logCase(ctx context.Context, n *Node, c Case, dctx *Context, outcome CaseOutcome) error {
	row := &store.CaseLog{
		RunID:    dctx.RunID,
		NodeName: n.name,
		CaseName: c.Name,
		Success:  outcome.Passed(),
	}
	if outcome.Error != nil {
		row.ErrorType = outcome.Error.Type
	}
	data, err := marshalOptional(outcome.LogData)
	if err != nil {
		return fmt.Errorf("failed to encode log data of case %q: %w", c.Name, err)
	}
	row.Data = data

	if err := e.repo.CreateCaseLog(ctx, row); err != nil {
		return err
	}
	e.metrics.CaseEvaluated(n.name, c.Name, outcome.Passed(), row.ErrorType)
	return nil
}

func (e *Engine) logNode(ctx context.Context, n *Node, dctx *Context, passed bool, cumulative Updates) error {
	updates, err := marshalOptional(cumulative)
	if err != nil {
		return fmt.Errorf("failed to encode updates of node %q: %w", n.name, err)
	}
	return e.repo.CreateNodeLog(ctx, &store.NodeLog{
		RunID:             dctx.RunID,
		NodeName:          n.name,
		Success:           passed,
		Updates:           updates,
		IsExperimental:    n.experiment != nil,
		SuccessorNodeName: n.onSuccess.nameOrEmpty(),
		FailureNodeName:   n.onFailure.nameOrEmpty(),
	})
}

// runExperiment is the synthetic case of an experiment node.
func (e *Engine) runExperiment(ctx context.Context, n *Node, dctx *Context, result Result) (CaseOutcome, error) {
	policy := n.experiment
	def := policy.Definition()

	if err := e.repo.UpsertExperimentDefinition(ctx, def); err != nil {
		return CaseOutcome{}, err
	}

	eligible, err := e.eligible(ctx, policy, dctx, result)
	if err != nil {
		return CaseOutcome{}, fmt.Errorf("experiment %q eligibility: %w", def.Name, err)
	}

	outcome, err := policy.ExperimentCase(ctx, dctx, eligible, result)
	if err != nil {
		return CaseOutcome{}, err
	}

	if eligible && dctx.AuditEnabled {
		e.metrics.ExperimentVisited(def.Name)

		extra, err := marshalOptional(outcome.LogData)
		if err != nil {
			return CaseOutcome{}, fmt.Errorf("failed to encode visit data: %w", err)
		}
		visit := &store.VisitLog{
			ID:           e.newID(),
			ExperimentID: def.ID,
			RunID:        dctx.RunID,
			SubjectID:    dctx.SubjectID,
			AccountID:    dctx.AccountID,
			Extra:        extra,
		}
		if !outcome.Passed() {
			failed := false
			visit.Success = &failed
		}
		if err := e.repo.CreateVisitLog(ctx, visit); err != nil {
			return CaseOutcome{}, err
		}
	}

	return outcome, nil
}

// eligible applies the grandfather rule, then ANDs the policy's limiters.
func (e *Engine) eligible(ctx context.Context, policy ExperimentPolicy, dctx *Context, result Result) (bool, error) {
	def := policy.Definition()

	if dctx.SubjectID != "" {
		benefited, err := e.repo.HasSuccessfulLinkedVisit(ctx, def.ID, dctx.SubjectID, dctx.AccountID)
		if err != nil {
			return false, err
		}
		if benefited {
			return true, nil
		}
	}

	limiters := policy.Limiters()
	allowed := make([]bool, len(limiters))

	g, gctx := errgroup.WithContext(ctx)
	for i, l := range limiters {
		g.Go(func() error {
			ok, err := l.Allowed(gctx, dctx, result)
			allowed[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	return !slices.Contains(allowed, false), nil
}

// Finish resolves the run's pending visits for experiments of the live graph
// and sets IsExperimental when any resolved successfully. It runs at every
// terminal node and is a no-op without a RunID. Visits already resolved are
// never resolved again, so calling it twice is safe.
func (e *Engine) Finish(ctx context.Context, dctx *Context, result Result) (Result, error) {
	if dctx.RunID == "" {
		return result, nil
	}

	experiments := experimentsByID(e.root)
	if len(experiments) == 0 {
		result.IsExperimental = false
		return result, nil
	}

	ids := make([]int64, 0, len(experiments))
	for id := range experiments {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	pending, err := e.repo.FindPendingVisitLogs(ctx, dctx.RunID, ids)
	if err != nil {
		return Result{}, err
	}

	successful := make([]bool, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.resolveConcurrency)
	for i, visit := range pending {
		node := experiments[visit.ExperimentID]
		g.Go(func() error {
			ok, err := e.resolveVisit(gctx, node, visit, dctx, result)
			successful[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	result.IsExperimental = slices.Contains(successful, true)
	return result, nil
}

// resolveVisit decides one pending visit and reports whether it counts toward
// IsExperimental.
func (e *Engine) resolveVisit(ctx context.Context, n *Node, visit store.VisitLog, dctx *Context, result Result) (bool, error) {
	def := n.experiment.Definition()

	success, err := n.experiment.IsSuccessful(ctx, dctx, result)
	if err != nil {
		return false, fmt.Errorf("experiment %q success predicate: %w", def.Name, err)
	}

	if err := e.repo.UpdateVisitLogSuccess(ctx, visit.ID, success); err != nil {
		if errors.Is(err, store.ErrVisitLogNotPending) {
			// Resolved concurrently by another finisher.
			return false, nil
		}
		return false, err
	}

	e.metrics.ExperimentResolved(def.Name, success)
	e.logger.Info("experiment visit resolved",
		slog.String("experiment", def.Name),
		slog.String("visit_id", visit.ID),
		slog.Bool("success", success),
	)
	return success, nil
}

// AdvanceCreated links the downstream artifact outcomeID to the run's
// successful visits and notifies each owning experiment. Visits already
// linked are skipped, so redelivered events are harmless.
//
// The experiment hook runs before the visit is linked. A failed hook leaves
// the visit unlinked and a retry runs it again; a failed link after a
// successful hook can only over-count the quota, never exceed it.
func (e *Engine) AdvanceCreated(ctx context.Context, runID, outcomeID string) error {
	if runID == "" || outcomeID == "" {
		return fmt.Errorf("advance created: run id and outcome id are required")
	}

	visits, err := e.repo.FindVisitLogsByRun(ctx, runID)
	if err != nil {
		return err
	}
	experiments := experimentsByID(e.root)

	for _, visit := range visits {
		n, ok := experiments[visit.ExperimentID]
		if !ok || visit.Success == nil || !*visit.Success || visit.LinkedOutcomeID != nil {
			continue
		}
		def := n.experiment.Definition()

		prior, err := e.repo.CountSuccessfulLinkedVisits(ctx, visit.SubjectID, visit.ExperimentID, outcomeID)
		if err != nil {
			return err
		}
		firstTime := prior == 0
		linked := visit
		linked.LinkedOutcomeID = &outcomeID
		if err := n.experiment.OnAdvanceCreated(ctx, outcomeID, linked, firstTime); err != nil {
			return fmt.Errorf("experiment %q advance hook: %w", def.Name, err)
		}
		if err := e.repo.LinkVisitLogOutcome(ctx, visit.ID, outcomeID); err != nil {
			return err
		}
		e.metrics.AdvanceLinked(def.Name, firstTime)
	}
	return nil
}

func marshalOptional[T ~map[string]any](v T) (json.RawMessage, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}
