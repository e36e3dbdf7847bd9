package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the meeting pipeline.
type Metrics struct {
	ChunksSubmittedTotal *prometheus.CounterVec
	ChunksRejectedTotal  *prometheus.CounterVec
	SegmentsTotal        *prometheus.CounterVec
	WatermarkLag         prometheus.Histogram

	JobsTriggeredTotal *prometheus.CounterVec
	JobsFinishedTotal  *prometheus.CounterVec
	JobRetriesTotal    prometheus.Counter
	SummarySeconds     prometheus.Histogram
}

// NewMetrics creates a new set of pipeline metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChunksSubmittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scribe_chunks_submitted_total",
				Help: "Total audio chunks accepted",
			},
			[]string{"meeting_id"},
		),
		ChunksRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scribe_chunks_rejected_total",
				Help: "Total audio chunks rejected",
			},
			[]string{"reason"},
		),
		SegmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scribe_transcript_segments_total",
				Help: "Total transcript segments produced",
			},
			[]string{"status"},
		),
		WatermarkLag: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scribe_watermark_lag_chunks",
				Help:    "Chunks buffered ahead of the watermark at submit time",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		JobsTriggeredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scribe_summary_jobs_triggered_total",
				Help: "Total summary job triggers",
			},
			[]string{"kind"},
		),
		JobsFinishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scribe_summary_jobs_finished_total",
				Help: "Total summary jobs reaching a terminal state",
			},
			[]string{"state"},
		),
		JobRetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scribe_summary_job_retries_total",
				Help: "Total summary job retry attempts",
			},
		),
		SummarySeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scribe_summary_seconds",
				Help:    "Summarization latency",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
	}
}

// RecordChunkAccepted records an accepted chunk.
func (m *Metrics) RecordChunkAccepted(meetingID string) {
	m.ChunksSubmittedTotal.WithLabelValues(meetingID).Inc()
}

// RecordChunkRejected records a rejected chunk.
func (m *Metrics) RecordChunkRejected(reason string) {
	m.ChunksRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordSegment records a produced transcript segment.
func (m *Metrics) RecordSegment(status string) {
	m.SegmentsTotal.WithLabelValues(status).Inc()
}

// RecordTrigger records a summary job trigger.
func (m *Metrics) RecordTrigger(kind string) {
	m.JobsTriggeredTotal.WithLabelValues(kind).Inc()
}

// RecordJobFinished records a job reaching a terminal state.
func (m *Metrics) RecordJobFinished(state string) {
	m.JobsFinishedTotal.WithLabelValues(state).Inc()
}

// RecordRetry records a retry attempt.
func (m *Metrics) RecordRetry() {
	m.JobRetriesTotal.Inc()
}

// RecordSummaryLatency records summarization latency.
func (m *Metrics) RecordSummaryLatency(seconds float64) {
	m.SummarySeconds.Observe(seconds)
}
