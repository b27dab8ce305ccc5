package drive

import (
	"context"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// purgeNode destroys the blobs and rows behind a DELETED_PENDING node and
// returns the bytes released. A node that is already gone frees nothing.
func (s *Service) purgeNode(ctx context.Context, nodeID string) (int64, error) {
	node, err := getNode(ctx, s.db, nodeID)
	if err != nil {
		if IsCode(err, ErrCodeNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if node.Status != StatusDeletedPending {
		// restored or re-created before the sweep ran
		return 0, nil
	}

	var freed int64
	if node.IsFile() {
		freed, err = s.purgeCohort(ctx, node.ProjectID, node.ParentID, node.Name, true)
	} else {
		freed, err = s.purgeFolder(ctx, node)
	}
	s.metrics.recordPurgedBytes(freed)
	return freed, err
}

// purgeFolder removes every descendant of folder and then the folder row.
// Sub-folders are swept first; file versions are removed per cohort.
func (s *Service) purgeFolder(ctx context.Context, folder *Node) (int64, error) {
	children, err := listChildren(ctx, s.db, folder.ProjectID, &folder.ID)
	if err != nil {
		return 0, err
	}

	var (
		freed    int64
		firstErr error
		seen     = make(map[string]struct{}, len(children))
	)
	for i := range children {
		if isContextDone(ctx) {
			return freed, ctx.Err()
		}
		child := &children[i]
		var (
			n   int64
			err error
		)
		if child.Type == NodeTypeFolder {
			n, err = s.purgeFolder(ctx, child)
		} else {
			if _, dup := seen[child.Name]; dup {
				continue
			}
			seen[child.Name] = struct{}{}
			n, err = s.purgeCohort(ctx, folder.ProjectID, &folder.ID, child.Name, false)
		}
		freed += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return freed, firstErr
	}

	remaining, err := countChildren(ctx, s.db, folder.ID)
	if err != nil {
		return freed, err
	}
	if remaining > 0 {
		return freed, errors.WithStack(NewError(ErrCodeResourceBusy, "folder still has children", true))
	}
	if err := s.db.WithContext(ctx).Where("id = ?", folder.ID).Delete(&Node{}).Error; err != nil {
		return freed, errors.Wrap(err, "delete folder row")
	}
	return freed, nil
}

// purgeCohort deletes the blobs and rows of one file. When pendingOnly is set
// only DELETED_PENDING versions are touched. Blob failures are logged and
// counted; the rows are removed regardless.
func (s *Service) purgeCohort(ctx context.Context, projectID string, parentID *string, name string, pendingOnly bool) (int64, error) {
	var statuses []NodeStatus
	if pendingOnly {
		statuses = []NodeStatus{StatusDeletedPending}
	}
	versions, err := listCohort(ctx, s.db, projectID, parentID, name, statuses...)
	if err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		return 0, nil
	}

	logger := s.LoggerFromContext(ctx)
	var group errgroup.Group
	group.SetLimit(s.settings.BlobDeleteConcurrency)
	for i := range versions {
		if versions[i].BlobKey == nil {
			continue
		}
		key := *versions[i].BlobKey
		group.Go(func() error {
			if err := s.blobs.Delete(ctx, key); err != nil {
				s.metrics.recordBlobDeleteFailure("purge")
				logger.Warn("purge blob delete failed, continuing",
					zap.String("key", key), zap.String("project_id", projectID), zap.Error(err))
			}
			return nil
		})
	}
	_ = group.Wait()

	ids := make([]string, 0, len(versions))
	for i := range versions {
		ids = append(ids, versions[i].ID)
	}

	freed, err := s.deleteVersionRows(ctx, projectID, ids)
	if err != nil {
		return 0, err
	}

	logger.Debug("purged file",
		zap.String("project_id", projectID),
		zap.String("name", name),
		zap.Int("versions", len(versions)),
		zap.Int64("freed_bytes", freed))
	return freed, nil
}

// deleteVersionRows removes the given rows and releases only the bytes of rows
// this call actually deleted, so overlapping sweeps never count a row twice.
func (s *Service) deleteVersionRows(ctx context.Context, projectID string, ids []string) (int64, error) {
	var freed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var deleted []Node
		if err := tx.Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}, {Name: "size"}}}).
			Where("id IN ?", ids).
			Delete(&deleted).Error; err != nil {
			return errors.Wrap(err, "delete version rows")
		}
		for i := range deleted {
			freed += deleted[i].Size
		}
		if freed == 0 {
			return nil
		}
		return s.applyQuotaDelta(ctx, tx, projectID, -freed)
	})
	if err != nil {
		return 0, err
	}
	return freed, nil
}
