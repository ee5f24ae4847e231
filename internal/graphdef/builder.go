package graphdef

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/rafaeljc/arbiter/internal/counter"
	"github.com/rafaeljc/arbiter/internal/decision"
	"github.com/rafaeljc/arbiter/internal/experiment"
	"github.com/rafaeljc/arbiter/internal/ruleengine"
)

var (
	// ErrUnknownNode is returned when the root or an edge names a node that
	// is not declared.
	ErrUnknownNode = errors.New("unknown node")

	ErrDuplicateNode = errors.New("duplicate node")

	// ErrCycle is returned when a walk from the root could revisit a node.
	ErrCycle = errors.New("graph contains a cycle")

	ErrInvalidExperiment = errors.New("invalid experiment")
)

// Graph is a built decision graph.
type Graph struct {
	Root     *decision.Node
	Defaults map[string]any

	nodes map[string]*decision.Node
}

// Node returns the built node declared under name.
func (g *Graph) Node(name string) (*decision.Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// InitialResult returns a fresh result seeded with the definition defaults.
func (g *Graph) InitialResult() decision.Result {
	return decision.NewResult(g.Defaults)
}

// Option configures Build.
type Option func(*builder)

// WithCounters provides the counter store used by experiments declaring a
// counter_limit.
func WithCounters(counters counter.Store) Option {
	return func(b *builder) { b.counters = counters }
}

// WithRuleEngine replaces the default rule engine.
func WithRuleEngine(e *ruleengine.Engine) Option {
	return func(b *builder) { b.rules = e }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *builder) { b.logger = l }
}

type builder struct {
	rules    *ruleengine.Engine
	counters counter.Store
	logger   *slog.Logger
}

// Build validates def and turns it into a decision graph.
func Build(def *Definition, opts ...Option) (*Graph, error) {
	b := &builder{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	if b.rules == nil {
		b.rules = ruleengine.New(b.logger)
	}

	if def == nil || def.Root == "" {
		return nil, errors.New("graph definition requires a root node")
	}

	nodes := make(map[string]*decision.Node, len(def.Nodes))
	decls := make(map[string]NodeDef, len(def.Nodes))
	experimentIDs := make(map[int64]string)

	for _, nd := range def.Nodes {
		if nd.Name == "" {
			return nil, errors.New("every node requires a name")
		}
		if _, exists := nodes[nd.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateNode, nd.Name)
		}

		n, err := b.buildNode(nd)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nd.Name, err)
		}
		if nd.Experiment != nil {
			if other, taken := experimentIDs[nd.Experiment.ID]; taken {
				return nil, fmt.Errorf("node %q: %w: experiment id %d already used by %q",
					nd.Name, ErrInvalidExperiment, nd.Experiment.ID, other)
			}
			experimentIDs[nd.Experiment.ID] = nd.Name
		}
		nodes[nd.Name] = n
		decls[nd.Name] = nd
	}

	root, ok := nodes[def.Root]
	if !ok {
		return nil, fmt.Errorf("%w: root %q", ErrUnknownNode, def.Root)
	}

	for name, nd := range decls {
		if err := link(nodes, name, nd); err != nil {
			return nil, err
		}
	}

	if err := checkAcyclic(decls, def.Root); err != nil {
		return nil, err
	}

	reachable := make(map[*decision.Node]struct{}, len(nodes))
	decision.Walk(root, func(n *decision.Node) bool {
		reachable[n] = struct{}{}
		return true
	})
	for name, n := range nodes {
		if _, ok := reachable[n]; !ok {
			b.logger.Warn("graph node is unreachable from root", "node", name, "root", def.Root)
		}
	}

	return &Graph{Root: root, Defaults: def.Defaults, nodes: nodes}, nil
}

func (b *builder) buildNode(nd NodeDef) (*decision.Node, error) {
	if nd.Experiment == nil {
		cases, err := b.rules.Cases(nd.Rules)
		if err != nil {
			return nil, err
		}
		return decision.NewNode(nd.Name, cases), nil
	}

	if len(nd.Rules) > 0 {
		return nil, fmt.Errorf("%w: experiment nodes cannot declare rules", ErrInvalidExperiment)
	}
	gate, err := b.buildGate(nd.Name, nd.Experiment)
	if err != nil {
		return nil, err
	}
	return gate.Node(), nil
}

func (b *builder) buildGate(nodeName string, ed *ExperimentDef) (*experiment.Gate, error) {
	name := ed.Name
	if name == "" {
		name = nodeName
	}
	if name != nodeName {
		return nil, fmt.Errorf("%w: experiment name %q must match node name", ErrInvalidExperiment, name)
	}
	if ed.ID <= 0 {
		return nil, fmt.Errorf("%w: id must be positive", ErrInvalidExperiment)
	}
	if ed.SuccessField == "" {
		return nil, fmt.Errorf("%w: success_field is required", ErrInvalidExperiment)
	}

	opts := []experiment.Option{
		experiment.WithDescription(ed.Description),
		experiment.WithLogger(b.logger),
	}
	if ed.Version > 0 {
		opts = append(opts, experiment.WithVersion(ed.Version))
	}
	if ed.Ratio != nil {
		opts = append(opts, experiment.WithRatio(*ed.Ratio))
	}
	if ed.Active != nil {
		opts = append(opts, experiment.WithActive(*ed.Active))
	}
	if len(ed.Treatment) > 0 {
		opts = append(opts, experiment.WithTreatment(ed.Treatment))
	}
	if ed.CounterLimit != nil {
		if b.counters == nil {
			return nil, fmt.Errorf("%w: counter_limit requires a counter store", ErrInvalidExperiment)
		}
		if *ed.CounterLimit < 0 {
			return nil, fmt.Errorf("%w: counter_limit must not be negative", ErrInvalidExperiment)
		}
		increment := experiment.FirstTimeOnly
		if ed.CountEveryAdvance {
			increment = experiment.Always
		}
		opts = append(opts, experiment.WithCounter(b.counters, *ed.CounterLimit, increment))
	}

	return experiment.NewGate(ed.ID, name, experiment.SuccessField(ed.SuccessField), opts...)
}

func link(nodes map[string]*decision.Node, name string, nd NodeDef) error {
	n := nodes[name]
	if nd.OnSuccess != "" {
		next, ok := nodes[nd.OnSuccess]
		if !ok {
			return fmt.Errorf("%w: %q referenced by on_success of %q", ErrUnknownNode, nd.OnSuccess, name)
		}
		n.OnSuccess(next)
	}
	if nd.OnFailure != "" {
		next, ok := nodes[nd.OnFailure]
		if !ok {
			return fmt.Errorf("%w: %q referenced by on_failure of %q", ErrUnknownNode, nd.OnFailure, name)
		}
		n.OnFailure(next)
	}
	return nil
}

// checkAcyclic runs a colouring DFS from root over the declared edges.
func checkAcyclic(decls map[string]NodeDef, root string) error {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(decls))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case inProgress:
			return fmt.Errorf("%w: %v", ErrCycle, append(path, name))
		case done:
			return nil
		}
		state[name] = inProgress
		nd := decls[name]
		for _, next := range []string{nd.OnSuccess, nd.OnFailure} {
			if next == "" {
				continue
			}
			if err := visit(next, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}
	return visit(root, nil)
}
