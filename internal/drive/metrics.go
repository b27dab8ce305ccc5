package drive

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// Metrics holds Prometheus collectors for the drive engine.
type Metrics struct {
	CommitsTotal        *prometheus.CounterVec // drive_commits_total{decision}
	ConflictsTotal      prometheus.Counter     // drive_conflicts_total
	PlanRetriesTotal    prometheus.Counter     // drive_plan_retries_total
	BlobDeleteFailures  *prometheus.CounterVec // drive_blob_delete_failures_total{source}
	PurgeJobsTotal      *prometheus.CounterVec // drive_purge_jobs_total{status}
	PurgedBytesTotal    prometheus.Counter     // drive_purged_bytes_total
	RetiredVersions     prometheus.Counter     // drive_retired_versions_total
	QuotaRejectedTotal  prometheus.Counter     // drive_quota_rejected_total
	QuotaFallbacksTotal prometheus.Counter     // drive_quota_fallbacks_total
}

// InitMetrics registers the drive collectors once and returns the shared instance.
func InitMetrics(registry prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		factory := promauto.With(registry)
		metricsInstance = &Metrics{
			CommitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "drive_commits_total",
				Help: "Committed writes by decision",
			}, []string{"decision"}),
			ConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
				Name: "drive_conflicts_total",
				Help: "Writes answered with a filename conflict",
			}),
			PlanRetriesTotal: factory.NewCounter(prometheus.CounterOpts{
				Name: "drive_plan_retries_total",
				Help: "Write plans re-run after a duplicate version insert",
			}),
			BlobDeleteFailures: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "drive_blob_delete_failures_total",
				Help: "Best-effort blob deletions that failed",
			}, []string{"source"}),
			PurgeJobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "drive_purge_jobs_total",
				Help: "Purge jobs processed by final status",
			}, []string{"status"}),
			PurgedBytesTotal: factory.NewCounter(prometheus.CounterOpts{
				Name: "drive_purged_bytes_total",
				Help: "Bytes released by permanent deletes",
			}),
			RetiredVersions: factory.NewCounter(prometheus.CounterOpts{
				Name: "drive_retired_versions_total",
				Help: "File versions retired by retention",
			}),
			QuotaRejectedTotal: factory.NewCounter(prometheus.CounterOpts{
				Name: "drive_quota_rejected_total",
				Help: "Writes rejected by the project quota",
			}),
			QuotaFallbacksTotal: factory.NewCounter(prometheus.CounterOpts{
				Name: "drive_quota_fallbacks_total",
				Help: "Quota updates that fell back to read-modify-write",
			}),
		}
	})

	return metricsInstance
}

func (m *Metrics) recordCommit(decision Decision) {
	if m == nil {
		return
	}
	m.CommitsTotal.WithLabelValues(string(decision)).Inc()
}

func (m *Metrics) recordConflict() {
	if m == nil {
		return
	}
	m.ConflictsTotal.Inc()
}

func (m *Metrics) recordPlanRetry() {
	if m == nil {
		return
	}
	m.PlanRetriesTotal.Inc()
}

func (m *Metrics) recordBlobDeleteFailure(source string) {
	if m == nil {
		return
	}
	m.BlobDeleteFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) recordPurgeJob(status string) {
	if m == nil {
		return
	}
	m.PurgeJobsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) recordPurgedBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.PurgedBytesTotal.Add(float64(n))
}

func (m *Metrics) recordRetired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RetiredVersions.Add(float64(n))
}

func (m *Metrics) recordQuotaRejected() {
	if m == nil {
		return
	}
	m.QuotaRejectedTotal.Inc()
}

func (m *Metrics) recordQuotaFallback() {
	if m == nil {
		return
	}
	m.QuotaFallbacksTotal.Inc()
}
