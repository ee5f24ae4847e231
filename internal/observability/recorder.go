package observability

import (
	"strconv"
	"time"

	"github.com/rafaeljc/arbiter/internal/decision"
)

// Compile-time check to verify that Recorder implements decision.Metrics.
var _ decision.Metrics = Recorder{}

// Recorder forwards engine events to the Prometheus collectors.
type Recorder struct{}

func (Recorder) CaseEvaluated(node, caseName string, passed bool, errorType string) {
	EngineCasesTotal.WithLabelValues(node, caseName, outcome(passed), errorType).Inc()
}

func (Recorder) NodeEvaluated(node string, passed bool) {
	EngineNodesTotal.WithLabelValues(node, outcome(passed)).Inc()
}

func (Recorder) ExperimentVisited(experiment string) {
	ExperimentVisitsTotal.WithLabelValues(experiment).Inc()
}

func (Recorder) ExperimentResolved(experiment string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	ExperimentResolutionsTotal.WithLabelValues(experiment, result).Inc()
}

func (Recorder) AdvanceLinked(experiment string, firstTime bool) {
	ExperimentAdvancesLinkedTotal.WithLabelValues(experiment, strconv.FormatBool(firstTime)).Inc()
}

func outcome(passed bool) string {
	if passed {
		return "pass"
	}
	return "fail"
}

// ObserveEvaluation records the duration of one Engine.Evaluate call.
func ObserveEvaluation(start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "fault"
	}
	EngineEvaluationDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}
