package drive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm"
)

const quotaSavePoint = "drive_quota_delta"

// CheckQuota rejects a positive delta that would push the project over its cap.
func (s *Service) CheckQuota(ctx context.Context, projectID string, sizeDelta int64) error {
	project, err := getProject(ctx, s.db, projectID)
	if err != nil {
		return err
	}
	return s.checkQuota(project, sizeDelta)
}

// checkQuota evaluates the cap against an already loaded project row.
// A zero cap means unlimited.
func (s *Service) checkQuota(project *Project, sizeDelta int64) error {
	if sizeDelta <= 0 || project.MaxStorageBytes <= 0 {
		return nil
	}
	if project.CurrentStorageBytes+sizeDelta > project.MaxStorageBytes {
		s.metrics.recordQuotaRejected()
		return errors.WithStack(NewError(ErrCodeQuotaExceeded, fmt.Sprintf(
			"storage quota exceeded: %d of %d bytes used, %d requested",
			project.CurrentStorageBytes, project.MaxStorageBytes, sizeDelta), false))
	}
	return nil
}

// applyQuotaDelta moves the project counter by delta inside tx, clamped at zero.
// The atomic increment falls back to read-modify-write when it fails.
func (s *Service) applyQuotaDelta(ctx context.Context, tx *gorm.DB, projectID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	now := s.clock()

	_, inTx := tx.Statement.ConnPool.(gorm.TxCommitter)
	savepoint := false
	if inTx {
		savepoint = tx.SavePoint(quotaSavePoint).Error == nil
	}

	err := incrementStorageCounter(ctx, tx, projectID, delta, now)
	if err == nil || IsCode(err, ErrCodeNotFound) {
		return err
	}

	s.metrics.recordQuotaFallback()
	s.warnOnError(ctx, err, "atomic quota update failed, falling back",
		zap.String("project_id", projectID), zap.Int64("delta", delta))
	if savepoint {
		if rbErr := tx.RollbackTo(quotaSavePoint).Error; rbErr != nil {
			return errors.Wrap(rbErr, "rollback quota savepoint")
		}
	}
	return readModifyWriteQuota(ctx, tx, projectID, delta, now)
}

// incrementStorageCounter issues a single clamped increment.
func incrementStorageCounter(ctx context.Context, db *gorm.DB, projectID string, delta int64, now time.Time) error {
	clamp := "MAX(current_storage_bytes + ?, 0)"
	if isPostgresDialect(db) {
		clamp = "GREATEST(current_storage_bytes + ?, 0)"
	}
	result := db.WithContext(ctx).Exec(
		"UPDATE drive_projects SET current_storage_bytes = "+clamp+", updated_at = ? WHERE id = ?",
		delta, now, projectID,
	)
	if result.Error != nil {
		return errors.Wrap(result.Error, "increment storage counter")
	}
	if result.RowsAffected == 0 {
		return errors.WithStack(errNotFound("project"))
	}
	return nil
}

// readModifyWriteQuota is the non-atomic fallback; concurrent writers may race.
func readModifyWriteQuota(ctx context.Context, db *gorm.DB, projectID string, delta int64, now time.Time) error {
	project, err := getProject(ctx, db, projectID)
	if err != nil {
		return err
	}
	next := project.CurrentStorageBytes + delta
	if next < 0 {
		next = 0
	}
	if err := db.WithContext(ctx).Model(&Project{}).
		Where("id = ?", projectID).
		Updates(map[string]any{
			"current_storage_bytes": next,
			"updated_at":            now,
		}).Error; err != nil {
		return errors.Wrap(err, "update storage counter")
	}
	return nil
}

// ReconcileQuota recomputes the counter from ACTIVE and TRASHED file sizes.
func (s *Service) ReconcileQuota(ctx context.Context, projectID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getProject(ctx, tx, projectID); err != nil {
			return err
		}
		var sum sql.NullInt64
		row := tx.WithContext(ctx).Model(&Node{}).
			Where("project_id = ? AND type = ? AND status IN ?", projectID, NodeTypeFile, []NodeStatus{StatusActive, StatusTrashed}).
			Select("SUM(size)").
			Row()
		if err := row.Scan(&sum); err != nil {
			return errors.Wrap(err, "sum file sizes")
		}
		total = sum.Int64
		return tx.WithContext(ctx).Model(&Project{}).
			Where("id = ?", projectID).
			Updates(map[string]any{
				"current_storage_bytes": total,
				"updated_at":            s.clock(),
			}).Error
	})
	if err != nil {
		return 0, errors.Wrapf(err, "reconcile quota for %s", projectID)
	}
	return total, nil
}

// ReconcileAllQuotas recomputes every project counter and returns the new values.
func (s *Service) ReconcileAllQuotas(ctx context.Context) (map[string]int64, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&Project{}).Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, errors.Wrap(err, "list projects")
	}

	out := make(map[string]int64, len(ids))
	for _, id := range ids {
		if isContextDone(ctx) {
			return out, ctx.Err()
		}
		total, err := s.ReconcileQuota(ctx, id)
		if err != nil {
			return out, err
		}
		out[id] = total
	}
	return out, nil
}
