package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/rafaeljc/arbiter/internal/testsupport"
)

func TestRecorder(t *testing.T) {
	r := Recorder{}

	testsupport.AssertMetricDelta(t, "arbiter_engine_cases_total",
		map[string]string{"node": "rec-node", "case": "rec-case", "outcome": "fail", "error_type": "too-young"}, 1,
		func() { r.CaseEvaluated("rec-node", "rec-case", false, "too-young") })

	testsupport.AssertMetricDelta(t, "arbiter_engine_nodes_total",
		map[string]string{"node": "rec-node", "outcome": "pass"}, 2,
		func() {
			r.NodeEvaluated("rec-node", true)
			r.NodeEvaluated("rec-node", true)
		})

	testsupport.AssertMetricDelta(t, "arbiter_experiment_visits_total",
		map[string]string{"experiment": "rec-exp"}, 1,
		func() { r.ExperimentVisited("rec-exp") })

	testsupport.AssertMetricDelta(t, "arbiter_experiment_resolutions_total",
		map[string]string{"experiment": "rec-exp", "result": "success"}, 1,
		func() { r.ExperimentResolved("rec-exp", true) })

	testsupport.AssertMetricDelta(t, "arbiter_experiment_advances_linked_total",
		map[string]string{"experiment": "rec-exp", "first_time": "true"}, 1,
		func() { r.AdvanceLinked("rec-exp", true) })

	ObserveEvaluation(time.Now(), errors.New("db down"))
	testsupport.AssertHistogramRecorded(t, "arbiter_engine_evaluation_seconds", map[string]string{"status": "fault"})
}
