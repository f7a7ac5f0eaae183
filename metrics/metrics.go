package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type VodflowMetrics struct {
	JobsConsumed     prometheus.Counter
	PipelineResults  *prometheus.CounterVec
	PipelineDuration *prometheus.SummaryVec

	StageDuration *prometheus.SummaryVec
	StageAttempts *prometheus.CounterVec

	RenditionOutcome  *prometheus.CounterVec
	TranscodeDuration *prometheus.HistogramVec

	UploadedFiles prometheus.Counter
	UploadedBytes prometheus.Counter
}

func NewMetrics() *VodflowMetrics {
	m := &VodflowMetrics{
		JobsConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vodflow_jobs_consumed_total",
			Help: "The total number of processing jobs dequeued from the broker",
		}),
		PipelineResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vodflow_pipeline_results_total",
			Help: "Completed pipeline runs broken up by success",
		}, []string{"success"}),
		PipelineDuration: promauto.NewSummaryVec(prometheus.SummaryOpts{
			Name: "vodflow_pipeline_duration_seconds",
			Help: "The time a full pipeline run takes, broken up by success",
		}, []string{"success"}),
		StageDuration: promauto.NewSummaryVec(prometheus.SummaryOpts{
			Name: "vodflow_stage_duration_seconds",
			Help: "The time each pipeline stage takes, broken up by stage and success",
		}, []string{"stage", "success"}),
		StageAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vodflow_stage_attempts_total",
			Help: "Stage attempts broken up by stage, including retries",
		}, []string{"stage"}),
		RenditionOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vodflow_rendition_outcome_total",
			Help: "Transcode fan-out child outcomes broken up by quality and outcome (encoded, skipped, failed)",
		}, []string{"quality", "outcome"}),
		TranscodeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vodflow_transcode_duration_seconds",
			Help:    "Time taken to encode a single rendition",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"quality"}),
		UploadedFiles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vodflow_uploaded_files_total",
			Help: "The total number of files written to the processed bucket",
		}),
		UploadedBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vodflow_uploaded_bytes_total",
			Help: "The total number of bytes written to the processed bucket",
		}),
	}
	return m
}

var Metrics = NewMetrics()
