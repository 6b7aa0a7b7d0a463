// Package metrics exposes pipeline counters for operators. Registration is
// optional: a nil *Pipeline is safe to call, so tests and the CLI can run
// without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline holds the per-run and per-stage instruments.
type Pipeline struct {
	RunsTotal    prometheus.Counter
	RunDuration  prometheus.Histogram
	StageErrors  *prometheus.CounterVec
	OCRPolls     prometheus.Counter
	LLMFallbacks prometheus.Counter
}

// NewPipeline builds and registers the pipeline instruments.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snaplens_runs_total",
			Help: "Pipeline runs started.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "snaplens_run_duration_seconds",
			Help:    "End-to-end pipeline run duration.",
			Buckets: prometheus.DefBuckets,
		}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snaplens_stage_errors_total",
			Help: "Stage failures by stage name (metadata, ocr, vision, llm).",
		}, []string{"stage"}),
		OCRPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snaplens_ocr_poll_attempts_total",
			Help: "OCR poll attempts across all runs.",
		}),
		LLMFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snaplens_llm_fallbacks_total",
			Help: "Runs classified by the deterministic cascade because no advisory hint was available.",
		}),
	}
	if reg != nil {
		reg.MustRegister(p.RunsTotal, p.RunDuration, p.StageErrors, p.OCRPolls, p.LLMFallbacks)
	}
	return p
}

// RunStarted records one pipeline run.
func (p *Pipeline) RunStarted() {
	if p == nil {
		return
	}
	p.RunsTotal.Inc()
}

// RunFinished records the run duration.
func (p *Pipeline) RunFinished(d time.Duration) {
	if p == nil {
		return
	}
	p.RunDuration.Observe(d.Seconds())
}

// StageError records a failure for one stage.
func (p *Pipeline) StageError(stage string) {
	if p == nil {
		return
	}
	p.StageErrors.WithLabelValues(stage).Inc()
}

// OCRPoll records one poll attempt against the OCR service.
func (p *Pipeline) OCRPoll() {
	if p == nil {
		return
	}
	p.OCRPolls.Inc()
}

// LLMFallback records a run that used only the deterministic classifier.
func (p *Pipeline) LLMFallback() {
	if p == nil {
		return
	}
	p.LLMFallbacks.Inc()
}
