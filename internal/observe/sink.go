// Package observe provides the metrics sink implementations: a
// Prometheus-backed sink for production and a no-op sink for embedders
// that bring their own.
package observe

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/remitstream/remitcore/contracts"
)

// PromSink records core counters and latencies in Prometheus and mirrors
// compliance alerts to the log.
type PromSink struct {
	stageTotal    *prometheus.CounterVec
	stageSeconds  *prometheus.HistogramVec
	workerTotal   *prometheus.CounterVec
	workerSeconds *prometheus.HistogramVec
	workflowTotal *prometheus.CounterVec
	alertTotal    *prometheus.CounterVec
	log           *zap.Logger
}

// NewPromSink creates a sink registered on the given registerer.
// A nil registerer uses the default global one.
func NewPromSink(reg prometheus.Registerer, log *zap.Logger) *PromSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &PromSink{
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remitcore",
			Name:      "stage_total",
			Help:      "Stage completions by stage id and outcome.",
		}, []string{"stage", "outcome"}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "remitcore",
			Name:      "stage_duration_seconds",
			Help:      "Stage wall time by stage id.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		workerTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remitcore",
			Name:      "worker_invocations_total",
			Help:      "Worker invocations by worker, capability and outcome.",
		}, []string{"worker", "capability", "outcome"}),
		workerSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "remitcore",
			Name:      "worker_duration_seconds",
			Help:      "Worker processing time by capability.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"capability"}),
		workflowTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remitcore",
			Name:      "workflow_total",
			Help:      "Terminal workflow results by status.",
		}, []string{"status"}),
		alertTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remitcore",
			Name:      "compliance_alerts_total",
			Help:      "Compliance and risk alerts by category.",
		}, []string{"category"}),
		log: log,
	}

	reg.MustRegister(s.stageTotal, s.stageSeconds, s.workerTotal,
		s.workerSeconds, s.workflowTotal, s.alertTotal)
	return s
}

func (s *PromSink) RecordStage(stage contracts.StageID, ok bool, elapsed time.Duration) {
	s.stageTotal.WithLabelValues(string(stage), outcome(ok)).Inc()
	s.stageSeconds.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

func (s *PromSink) RecordWorker(id contracts.WorkerID, capability contracts.Capability, result string, elapsed time.Duration) {
	s.workerTotal.WithLabelValues(string(id), string(capability), result).Inc()
	s.workerSeconds.WithLabelValues(string(capability)).Observe(elapsed.Seconds())
}

func (s *PromSink) RecordWorkflow(status contracts.WorkflowStatus, elapsed time.Duration) {
	s.workflowTotal.WithLabelValues(string(status)).Inc()
}

func (s *PromSink) Alert(category, message string) {
	s.alertTotal.WithLabelValues(category).Inc()
	s.log.Warn("compliance alert",
		zap.String("category", category),
		zap.String("message", message))
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

// NopSink discards all observations.
type NopSink struct{}

func (NopSink) RecordStage(contracts.StageID, bool, time.Duration)                           {}
func (NopSink) RecordWorker(contracts.WorkerID, contracts.Capability, string, time.Duration) {}
func (NopSink) RecordWorkflow(contracts.WorkflowStatus, time.Duration)                       {}
func (NopSink) Alert(string, string)                                                         {}
