package drive

import (
	"context"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm"
)

// loadMutableNode loads a node that is still visible to lifecycle operations
// and checks that identity may change it.
func (s *Service) loadMutableNode(ctx context.Context, identity Identity, nodeID string) (*Node, *Project, error) {
	node, err := getNode(ctx, s.db, nodeID)
	if err != nil {
		return nil, nil, err
	}
	if node.Status == StatusDeletedPending {
		return nil, nil, errors.WithStack(errNotFound("node"))
	}
	project, err := getProject(ctx, s.db, node.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.requireMutable(ctx, identity, project); err != nil {
		return nil, nil, err
	}
	if err := s.requireOwnerOrAdmin(identity, node); err != nil {
		return nil, nil, err
	}
	return node, project, nil
}

// nodeTargetScope matches the rows a lifecycle change applies to: the whole
// cohort for a file, the single row for a folder.
func nodeTargetScope(node *Node) func(*gorm.DB) *gorm.DB {
	if node.IsFile() {
		return cohortScope(node.ProjectID, node.ParentID, node.Name)
	}
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", node.ID)
	}
}

// TrashNode soft-deletes a node. Folder children are left untouched.
func (s *Service) TrashNode(ctx context.Context, identity Identity, nodeID string) (*Node, error) {
	node, project, err := s.loadMutableNode(ctx, identity, nodeID)
	if err != nil {
		return nil, err
	}
	if node.Status == StatusTrashed {
		return node, nil
	}

	now := s.clock()
	err = s.db.WithContext(ctx).Model(&Node{}).
		Scopes(nodeTargetScope(node)).
		Where("status = ?", StatusActive).
		Updates(map[string]any{
			"status":     StatusTrashed,
			"trashed_at": now,
			"updated_at": now,
		}).Error
	if err != nil {
		return nil, errors.Wrap(err, "trash node")
	}

	s.notifyActivity(ctx, project, Event{Kind: EventTrashed, NodeID: node.ID, Name: node.Name, Actor: identity.Email})
	return getNode(ctx, s.db, node.ID)
}

// RestoreNode brings a trashed node back to ACTIVE.
func (s *Service) RestoreNode(ctx context.Context, identity Identity, nodeID string) (*Node, error) {
	node, project, err := s.loadMutableNode(ctx, identity, nodeID)
	if err != nil {
		return nil, err
	}
	if node.Status == StatusActive {
		return node, nil
	}

	if node.ParentID != nil {
		parent, err := getNode(ctx, s.db, *node.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.Status == StatusDeletedPending {
			return nil, errors.WithStack(errNotFound("parent folder"))
		}
	}
	if node.Type == NodeTypeFolder {
		if _, err := findActiveFolder(ctx, s.db, node.ProjectID, node.ParentID, node.Name); err == nil {
			return nil, errors.WithStack(NewError(ErrCodeConflict, "an active folder with this name already exists", false))
		} else if !IsCode(err, ErrCodeNotFound) {
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).Model(&Node{}).
		Scopes(nodeTargetScope(node)).
		Where("status = ?", StatusTrashed).
		Updates(map[string]any{
			"status":     StatusActive,
			"trashed_at": nil,
			"updated_at": s.clock(),
		}).Error
	if err != nil {
		return nil, errors.Wrap(err, "restore node")
	}

	s.notifyActivity(ctx, project, Event{Kind: EventRestored, NodeID: node.ID, Name: node.Name, Actor: identity.Email})
	return getNode(ctx, s.db, node.ID)
}

// PermanentlyDelete hides the node at once and queues the recursive purge.
// With inline purging enabled the sweep also runs before returning.
func (s *Service) PermanentlyDelete(ctx context.Context, identity Identity, nodeID string) (DeleteResult, error) {
	node, err := getNode(ctx, s.db, nodeID)
	if err != nil {
		return DeleteResult{}, err
	}
	project, err := getProject(ctx, s.db, node.ProjectID)
	if err != nil {
		return DeleteResult{}, err
	}
	if err := s.requireMutable(ctx, identity, project); err != nil {
		return DeleteResult{}, err
	}
	if err := s.requireOwnerOrAdmin(identity, node); err != nil {
		return DeleteResult{}, err
	}

	result := DeleteResult{NodeID: node.ID}
	var job PurgeJob
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock()
		if node.Status != StatusDeletedPending {
			if err := tx.Model(&Node{}).
				Scopes(nodeTargetScope(node)).
				Where("status IN ?", []NodeStatus{StatusActive, StatusTrashed}).
				Updates(map[string]any{
					"status":     StatusDeletedPending,
					"updated_at": now,
				}).Error; err != nil {
				return errors.Wrap(err, "mark node deleted")
			}
		}

		err := tx.Where("node_id = ? AND status IN ?", node.ID, []string{purgeJobPending, purgeJobProcessing}).
			First(&job).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrap(err, "find purge job")
		}
		job = PurgeJob{
			ProjectID:   node.ProjectID,
			NodeID:      node.ID,
			Status:      purgeJobPending,
			AvailableAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(&job).Error; err != nil {
			return errors.Wrap(err, "enqueue purge job")
		}
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}
	result.JobID = job.ID

	s.notifyActivity(ctx, project, Event{Kind: EventDeleted, NodeID: node.ID, Name: node.Name, Actor: identity.Email})

	if s.settings.Purge.Inline && job.Status == purgeJobPending {
		worker := s.NewPurgeWorker()
		freed, err := worker.processJob(ctx, job)
		if err != nil {
			s.LoggerFromContext(ctx).Warn("inline purge failed, left for workers",
				zap.Int64("job_id", job.ID), zap.Error(err))
			return result, nil
		}
		result.FreedBytes = freed
		result.Inline = true
	}

	return result, nil
}

// ListTrash returns the caller's trashed nodes, or every trashed node for admins.
// A file appears once, as its highest trashed version.
func (s *Service) ListTrash(ctx context.Context, identity Identity) ([]Node, error) {
	if identity.Anonymous() {
		return nil, errors.WithStack(errForbidden("authentication required"))
	}
	owner := normalizeEmail(identity.Email)
	if s.isAdmin(identity) {
		owner = ""
	}

	nodes, err := listTrashed(ctx, s.db, owner)
	if err != nil {
		return nil, err
	}
	return latestPerCohort(nodes), nil
}

// cohortKey identifies a file cohort in memory.
type cohortKey struct {
	projectID string
	parentID  string
	name      string
}

func keyOf(node *Node) cohortKey {
	parent := ""
	if node.ParentID != nil {
		parent = *node.ParentID
	}
	return cohortKey{projectID: node.ProjectID, parentID: parent, name: node.Name}
}

// latestPerCohort collapses file versions to the highest one, keeping input order.
func latestPerCohort(nodes []Node) []Node {
	best := make(map[cohortKey]int, len(nodes))
	out := make([]Node, 0, len(nodes))
	for _, node := range nodes {
		if !node.IsFile() {
			out = append(out, node)
			continue
		}
		key := keyOf(&node)
		if idx, ok := best[key]; ok {
			if node.Version > out[idx].Version {
				out[idx] = node
			}
			continue
		}
		best[key] = len(out)
		out = append(out, node)
	}
	return out
}
