package drive

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-drive/library/log"
)

// PurgeWorker drains the permanent-delete queue.
type PurgeWorker struct {
	svc    *Service
	logger logSDK.Logger
}

// StartPurgeWorkers starts the configured number of purge workers.
func (s *Service) StartPurgeWorkers(ctx context.Context) error {
	if s == nil {
		return errors.New("drive service is nil")
	}
	count := s.settings.Purge.Workers
	if count <= 0 {
		return nil
	}
	for i := 0; i < count; i++ {
		worker := s.NewPurgeWorker()
		go func() {
			if err := worker.Start(ctx); err != nil {
				worker.logger.Warn("purge worker stopped", zap.Error(err))
			}
		}()
	}
	return nil
}

// NewPurgeWorker constructs a purge worker.
func (s *Service) NewPurgeWorker() *PurgeWorker {
	logger := s.logger
	if logger == nil {
		logger = log.Logger.Named("drive_purge_worker")
	}
	return &PurgeWorker{svc: s, logger: logger.Named("purge_worker")}
}

// Start runs the worker loop until the context is cancelled.
func (w *PurgeWorker) Start(ctx context.Context) error {
	if w == nil || w.svc == nil {
		return errors.New("worker is not configured")
	}
	interval := w.svc.settings.Purge.PollInterval
	for {
		if isContextDone(ctx) {
			return nil
		}
		if err := w.RunOnce(ctx); err != nil {
			w.logger.Warn("purge worker run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunOnce processes one batch of due jobs.
func (w *PurgeWorker) RunOnce(ctx context.Context) error {
	jobs, err := w.claimJobs(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if _, err := w.runJob(ctx, job); err != nil {
			w.logger.Warn("process purge job failed", zap.Error(err), zap.Int64("job_id", job.ID))
		}
	}
	return nil
}

// claimJobs selects and marks due jobs as processing.
func (w *PurgeWorker) claimJobs(ctx context.Context) ([]PurgeJob, error) {
	svc := w.svc
	now := svc.clock()

	var jobs []PurgeJob
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := "SELECT * FROM drive_purge_jobs WHERE status = ? AND available_at <= ? ORDER BY id ASC LIMIT ?"
		if isPostgresDialect(tx) {
			query += " FOR UPDATE SKIP LOCKED"
		}
		if err := tx.Raw(query, purgeJobPending, now, svc.settings.Purge.BatchSize).Scan(&jobs).Error; err != nil {
			return errors.Wrap(err, "claim purge jobs")
		}
		if len(jobs) == 0 {
			return nil
		}
		ids := make([]int64, 0, len(jobs))
		for _, job := range jobs {
			ids = append(ids, job.ID)
		}
		if err := tx.Model(&PurgeJob{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     purgeJobProcessing,
				"updated_at": now,
			}).Error; err != nil {
			return errors.Wrap(err, "mark jobs processing")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// processJob claims a single pending job and runs it. Used for inline purges.
func (w *PurgeWorker) processJob(ctx context.Context, job PurgeJob) (int64, error) {
	svc := w.svc
	res := svc.db.WithContext(ctx).Model(&PurgeJob{}).
		Where("id = ? AND status = ?", job.ID, purgeJobPending).
		Updates(map[string]any{
			"status":     purgeJobProcessing,
			"updated_at": svc.clock(),
		})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "claim purge job")
	}
	if res.RowsAffected == 0 {
		return 0, errors.WithStack(NewError(ErrCodeResourceBusy, "purge job already claimed", true))
	}
	return w.runJob(ctx, job)
}

// runJob sweeps the job's node and records the outcome.
func (w *PurgeWorker) runJob(ctx context.Context, job PurgeJob) (int64, error) {
	freed, err := w.svc.purgeNode(ctx, job.NodeID)
	if err != nil {
		if markErr := w.handleJobError(ctx, job, err); markErr != nil {
			return freed, errors.Wrap(markErr, "reschedule purge job")
		}
		return freed, err
	}
	return freed, w.markJobDone(ctx, job, freed)
}

// handleJobError schedules a retry with linear backoff or marks the job failed.
func (w *PurgeWorker) handleJobError(ctx context.Context, job PurgeJob, err error) error {
	svc := w.svc
	if job.RetryCount >= svc.settings.Purge.RetryMax {
		return w.markJobFailed(ctx, job, err)
	}
	next := svc.clock().Add(svc.settings.Purge.RetryBackoff * time.Duration(job.RetryCount+1))
	return svc.db.WithContext(ctx).Model(&PurgeJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":       purgeJobPending,
			"retry_count":  job.RetryCount + 1,
			"last_error":   err.Error(),
			"available_at": next,
			"updated_at":   svc.clock(),
		}).Error
}

// markJobFailed updates the job status to failed.
func (w *PurgeWorker) markJobFailed(ctx context.Context, job PurgeJob, err error) error {
	svc := w.svc
	w.logger.Warn("purge job failed", zap.Error(err), zap.Int64("job_id", job.ID), zap.String("node_id", job.NodeID))
	svc.metrics.recordPurgeJob(purgeJobFailed)
	return svc.db.WithContext(ctx).Model(&PurgeJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":     purgeJobFailed,
			"last_error": err.Error(),
			"updated_at": svc.clock(),
		}).Error
}

// markJobDone updates the job status to done.
func (w *PurgeWorker) markJobDone(ctx context.Context, job PurgeJob, freed int64) error {
	svc := w.svc
	svc.metrics.recordPurgeJob(purgeJobDone)
	return svc.db.WithContext(ctx).Model(&PurgeJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":      purgeJobDone,
			"freed_bytes": freed,
			"last_error":  "",
			"updated_at":  svc.clock(),
		}).Error
}
