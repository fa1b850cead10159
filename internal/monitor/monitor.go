// Package monitor aggregates batch statistics: validation, outcome and
// storage counters, recursion depths and collapse stages. Counters are
// optionally mirrored into Prometheus collectors.
package monitor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/boshu2/rdee/internal/trace"
)

// Monitor is safe for concurrent use.
type Monitor struct {
	mu sync.Mutex

	batchID           string
	totalRuns         int
	validRuns         int
	failedValidations int
	survived          int
	collapsed         int
	engineErrors      int
	storageOK         int
	storageFailed     int
	depthSum          int
	depthCount        int
	collapseStages    map[string]int

	metrics *Metrics
}

// New returns a Monitor. When reg is non-nil, counters are mirrored into
// collectors registered on it.
func New(reg prometheus.Registerer) *Monitor {
	m := &Monitor{collapseStages: make(map[string]int)}
	if reg != nil {
		m.metrics = NewMetrics(reg)
	}
	return m
}

// Metrics returns the Prometheus mirror, or nil.
func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// SetBatchID labels the report.
func (m *Monitor) SetBatchID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchID = id
}

// RegisterValidation records one validation step. Every unit passes
// through validation, so this also counts total runs.
func (m *Monitor) RegisterValidation(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalRuns++
	status := "valid"
	if ok {
		m.validRuns++
	} else {
		m.failedValidations++
		status = "invalid"
	}
	if m.metrics != nil {
		m.metrics.ValidationsTotal.WithLabelValues(status).Inc()
	}
}

// RegisterOutcome records a finalized trace, including its recursion depth.
func (m *Monitor) RegisterOutcome(t *trace.Trace, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result, stage := "survived", ""
	if t.FinalSurvival {
		m.survived++
	} else {
		m.collapsed++
		stage = string(t.CollapseStage)
		m.collapseStages[stage]++
		result = "collapsed"
	}
	m.addDepth(t.RecursionDepth)
	if m.metrics != nil {
		m.metrics.OutcomesTotal.WithLabelValues(result, stage).Inc()
		m.metrics.NodesEvaluated.Observe(float64(t.NodesEvaluated))
		m.metrics.RunDurationSeconds.Observe(elapsed.Seconds())
	}
}

// RegisterEngineError records a run that raised instead of finalizing.
func (m *Monitor) RegisterEngineError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engineErrors++
	if m.metrics != nil {
		m.metrics.EngineErrorsTotal.Inc()
	}
}

// RegisterStorage records the outcome of a trace write.
func (m *Monitor) RegisterStorage(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := "success"
	if ok {
		m.storageOK++
	} else {
		m.storageFailed++
		status = "failure"
	}
	if m.metrics != nil {
		m.metrics.StorageTotal.WithLabelValues(status).Inc()
	}
}

func (m *Monitor) addDepth(depth int) {
	m.depthSum += depth
	m.depthCount++
	if m.metrics != nil {
		m.metrics.RecursionDepth.Observe(float64(depth))
	}
}

// StageCount is one collapse stage tally.
type StageCount struct {
	Stage string `json:"stage" yaml:"stage"`
	Count int    `json:"count" yaml:"count"`
}

// Report is a snapshot of the monitor.
type Report struct {
	BatchID               string       `json:"batch_id,omitempty" yaml:"batch_id,omitempty"`
	TotalRuns             int          `json:"total_runs" yaml:"total_runs"`
	ValidRuns             int          `json:"valid_runs" yaml:"valid_runs"`
	FailedValidations     int          `json:"failed_validations" yaml:"failed_validations"`
	SurvivedRuns          int          `json:"survived_runs" yaml:"survived_runs"`
	CollapsedRuns         int          `json:"collapsed_runs" yaml:"collapsed_runs"`
	EngineErrors          int          `json:"engine_errors" yaml:"engine_errors"`
	SuccessfulStorage     int          `json:"successful_storage" yaml:"successful_storage"`
	StorageFailures       int          `json:"storage_failures" yaml:"storage_failures"`
	AverageRecursionDepth float64      `json:"average_recursion_depth" yaml:"average_recursion_depth"`
	SurvivalRatio         float64      `json:"survival_ratio" yaml:"survival_ratio"`
	CollapseStages        []StageCount `json:"collapse_stages,omitempty" yaml:"collapse_stages,omitempty"`
}

// Report returns the current statistics. The survival ratio is survived
// runs over finalized runs; both ratios are 0 with no data.
func (m *Monitor) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Report{
		BatchID:           m.batchID,
		TotalRuns:         m.totalRuns,
		ValidRuns:         m.validRuns,
		FailedValidations: m.failedValidations,
		SurvivedRuns:      m.survived,
		CollapsedRuns:     m.collapsed,
		EngineErrors:      m.engineErrors,
		SuccessfulStorage: m.storageOK,
		StorageFailures:   m.storageFailed,
	}
	if m.depthCount > 0 {
		r.AverageRecursionDepth = float64(m.depthSum) / float64(m.depthCount)
	}
	if finalized := m.survived + m.collapsed; finalized > 0 {
		r.SurvivalRatio = float64(m.survived) / float64(finalized)
	}
	for stage, n := range m.collapseStages {
		r.CollapseStages = append(r.CollapseStages, StageCount{Stage: stage, Count: n})
	}
	sort.Slice(r.CollapseStages, func(i, j int) bool {
		if r.CollapseStages[i].Count != r.CollapseStages[j].Count {
			return r.CollapseStages[i].Count > r.CollapseStages[j].Count
		}
		return r.CollapseStages[i].Stage < r.CollapseStages[j].Stage
	})
	return r
}

// WriteTextfile writes every metric gathered from g in the node exporter
// textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
