package decision

import (
	"context"
	"slices"
)

// CaseFunc evaluates one step of a node. prev holds the cumulative updates of
// the node evaluated before this one. A returned error is an infrastructure
// fault and aborts the walk; rejections belong in CaseOutcome.Error.
type CaseFunc func(ctx context.Context, dctx *Context, result Result, prev Updates) (CaseOutcome, error)

// Case is a named step.
type Case struct {
	Name string
	Run  CaseFunc
}

// AfterAllCasesFunc runs when every case of a node passed.
type AfterAllCasesFunc func(ctx context.Context, dctx *Context, result Result) (Result, error)

// OnErrorFunc runs when at least one case of a node failed.
type OnErrorFunc func(ctx context.Context, errs []CaseError, dctx *Context, result Result) (Result, error)

// Node is a vertex of the decision graph. The same *Node may be reachable from
// several parents; identity is the pointer.
type Node struct {
	name      string
	cases     []Case
	onSuccess *Node
	onFailure *Node

	afterAllCases AfterAllCasesFunc
	onError       OnErrorFunc

	experiment ExperimentPolicy
}

// NodeOption customises a node at construction.
type NodeOption func(*Node)

// WithAfterAllCases sets the hook run when every case passed.
func WithAfterAllCases(fn AfterAllCasesFunc) NodeOption {
	return func(n *Node) { n.afterAllCases = fn }
}

// WithOnError sets the hook run when at least one case failed.
func WithOnError(fn OnErrorFunc) NodeOption {
	return func(n *Node) { n.onError = fn }
}

// NewNode builds a decision node whose cases run in the given order.
func NewNode(name string, cases []Case, opts ...NodeOption) *Node {
	n := &Node{
		name:  name,
		cases: slices.Clone(cases),
		afterAllCases: func(_ context.Context, _ *Context, result Result) (Result, error) {
			return result, nil
		},
		onError: func(_ context.Context, _ []CaseError, _ *Context, result Result) (Result, error) {
			return result, nil
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NewExperimentNode builds a node with a single synthetic case driven by the
// experiment policy. The node is named after the experiment.
func NewExperimentNode(policy ExperimentPolicy, opts ...NodeOption) *Node {
	def := policy.Definition()
	n := NewNode(def.Name, []Case{{Name: def.Name}}, opts...)
	n.experiment = policy
	return n
}

// OnSuccess sets the success edge and returns next for chaining.
func (n *Node) OnSuccess(next *Node) *Node {
	n.onSuccess = next
	return next
}

// OnFailure sets the failure edge and returns next for chaining.
func (n *Node) OnFailure(next *Node) *Node {
	n.onFailure = next
	return next
}

func (n *Node) Name() string       { return n.name }
func (n *Node) SuccessNode() *Node { return n.onSuccess }
func (n *Node) FailureNode() *Node { return n.onFailure }

// Cases returns the node's cases in evaluation order.
func (n *Node) Cases() []Case {
	return slices.Clone(n.cases)
}

// IsExperiment reports whether the node is an experiment node.
func (n *Node) IsExperiment() bool {
	return n.experiment != nil
}

// Experiment returns the node's experiment policy, nil for plain nodes.
func (n *Node) Experiment() ExperimentPolicy {
	return n.experiment
}

func (n *Node) nameOrEmpty() string {
	if n == nil {
		return ""
	}
	return n.name
}
