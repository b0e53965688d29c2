package usecase

import (
	"sync"
	"time"

	"github.com/example/eyescan/internal/classifier"
	"github.com/example/eyescan/internal/disease"
)

// MetricsSummary represents aggregated analysis insights since process start.
// Stale outcomes are counted only in StaleDiscarded.
type MetricsSummary struct {
	ActiveSessions           int                  `json:"active_sessions"`
	AnalysesStarted          int64                `json:"analyses_started"`
	AnalysesSucceeded        int64                `json:"analyses_succeeded"`
	AnalysesFailed           int64                `json:"analyses_failed"`
	StaleDiscarded           int64                `json:"stale_discarded"`
	SuccessRate              float64              `json:"success_rate"`
	AverageConfidence        float64              `json:"average_confidence"`
	AverageAnalysisLatencyMs float64              `json:"average_analysis_latency_ms"`
	ResultsByDisease         map[disease.ID]int64 `json:"results_by_disease"`
	FailuresByKind           map[string]int64     `json:"failures_by_kind"`
}

type metrics struct {
	mu             sync.Mutex
	started        int64
	succeeded      int64
	failed         int64
	stale          int64
	confidenceSum  float64
	latencySum     time.Duration
	completed      int64
	byDisease      map[disease.ID]int64
	failuresByKind map[string]int64
}

func newMetrics() *metrics {
	return &metrics{
		byDisease:      make(map[disease.ID]int64),
		failuresByKind: make(map[string]int64),
	}
}

func (m *metrics) recordStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *metrics) recordOutcome(res classifier.Result, err error, latency time.Duration, applied bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !applied {
		m.stale++
		return
	}
	m.completed++
	m.latencySum += latency
	if err != nil {
		m.failed++
		kind := "unknown"
		if adv := asAdvisory(err); adv != nil {
			kind = string(adv.Kind)
		}
		m.failuresByKind[kind]++
		return
	}
	m.succeeded++
	m.confidenceSum += res.Confidence
	m.byDisease[res.Disease]++
}

func (m *metrics) summary(activeSessions int) *MetricsSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := &MetricsSummary{
		ActiveSessions:    activeSessions,
		AnalysesStarted:   m.started,
		AnalysesSucceeded: m.succeeded,
		AnalysesFailed:    m.failed,
		StaleDiscarded:    m.stale,
		ResultsByDisease:  make(map[disease.ID]int64, len(m.byDisease)),
		FailuresByKind:    make(map[string]int64, len(m.failuresByKind)),
	}
	for id, n := range m.byDisease {
		summary.ResultsByDisease[id] = n
	}
	for kind, n := range m.failuresByKind {
		summary.FailuresByKind[kind] = n
	}

	if m.completed > 0 {
		summary.SuccessRate = float64(m.succeeded) / float64(m.completed)
		summary.AverageAnalysisLatencyMs = float64(m.latencySum.Milliseconds()) / float64(m.completed)
	}
	if m.succeeded > 0 {
		summary.AverageConfidence = m.confidenceSum / float64(m.succeeded)
	}
	return summary
}
