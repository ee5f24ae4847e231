package decision

// Metrics receives engine events. Implementations must not block and must not fail.
type Metrics interface {
	CaseEvaluated(node, caseName string, passed bool, errorType string)
	NodeEvaluated(node string, passed bool)
	ExperimentVisited(experiment string)
	ExperimentResolved(experiment string, success bool)
	AdvanceLinked(experiment string, firstTime bool)
}

// NopMetrics discards every event.
type NopMetrics struct{}

func (NopMetrics) CaseEvaluated(string, string, bool, string) {}
func (NopMetrics) NodeEvaluated(string, bool)                 {}
func (NopMetrics) ExperimentVisited(string)                   {}
func (NopMetrics) ExperimentResolved(string, bool)            {}
func (NopMetrics) AdvanceLinked(string, bool)                 {}
