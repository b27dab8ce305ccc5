package drive

import (
	"context"
	"io"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// CreateFolder adds an empty folder under parentID.
func (s *Service) CreateFolder(ctx context.Context, identity Identity, projectID string, parentID *string, name string) (*Node, error) {
	project, err := getProject(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMutable(ctx, identity, project); err != nil {
		return nil, err
	}
	if err := validateNodeName(name); err != nil {
		return nil, err
	}
	if _, err := s.ResolveFolder(ctx, project.ID, parentID); err != nil {
		return nil, err
	}

	now := s.clock()
	folder := &Node{
		ID:           uuid.NewString(),
		ParentID:     parentID,
		ProjectID:    project.ID,
		Name:         name,
		Type:         NodeTypeFolder,
		OwnerEmail:   normalizeEmail(identity.Email),
		CreatedBy:    normalizeEmail(identity.Email),
		SharingScope: SharingPrivate,
		Version:      1,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureNameFree(ctx, tx, project.ID, parentID, NodeTypeFolder, name); err != nil {
			return err
		}
		if err := tx.Create(folder).Error; err != nil {
			return errors.Wrap(err, "insert folder")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// ensureNameFree rejects a sibling collision: an active folder of the same
// name for folders, any surviving version for files.
func ensureNameFree(ctx context.Context, db *gorm.DB, projectID string, parentID *string, typ NodeType, name string) error {
	if typ == NodeTypeFolder {
		_, err := findActiveFolder(ctx, db, projectID, parentID, name)
		if err == nil {
			return errors.WithStack(NewError(ErrCodeConflict, "a folder with this name already exists", false))
		}
		if IsCode(err, ErrCodeNotFound) {
			return nil
		}
		return err
	}

	var count int64
	if err := db.WithContext(ctx).Model(&Node{}).
		Scopes(cohortScope(projectID, parentID, name)).
		Count(&count).Error; err != nil {
		return errors.Wrap(err, "check file name")
	}
	if count > 0 {
		return errors.WithStack(NewError(ErrCodeConflict, "a file with this name already exists", false))
	}
	return nil
}

// RenameNode renames a folder, or every surviving version of a file.
func (s *Service) RenameNode(ctx context.Context, identity Identity, nodeID, newName string) (*Node, error) {
	node, _, err := s.loadMutableNode(ctx, identity, nodeID)
	if err != nil {
		return nil, err
	}
	if err := validateNodeName(newName); err != nil {
		return nil, err
	}
	if node.Name == newName {
		return node, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureNameFree(ctx, tx, node.ProjectID, node.ParentID, node.Type, newName); err != nil {
			return err
		}
		query := tx.Model(&Node{}).Scopes(nodeTargetScope(node))
		if node.IsFile() {
			query = query.Where("status IN ?", []NodeStatus{StatusActive, StatusTrashed})
		}
		if err := query.Updates(map[string]any{
			"name":       newName,
			"updated_at": s.clock(),
		}).Error; err != nil {
			return errors.Wrap(err, "rename node")
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.WithStack(NewError(ErrCodeConflict, "a file with this name already exists", false))
		}
		return nil, err
	}
	return getNode(ctx, s.db, node.ID)
}

// MoveNode reparents a node inside its project. A folder cannot move into
// itself or any of its descendants.
func (s *Service) MoveNode(ctx context.Context, identity Identity, nodeID string, targetParentID *string) (*Node, error) {
	node, _, err := s.loadMutableNode(ctx, identity, nodeID)
	if err != nil {
		return nil, err
	}
	if sameParent(node.ParentID, targetParentID) {
		return node, nil
	}

	target, err := s.ResolveFolder(ctx, node.ProjectID, targetParentID)
	if err != nil {
		return nil, err
	}
	if node.Type == NodeTypeFolder {
		for _, crumb := range target.Breadcrumbs {
			if crumb.ID == node.ID {
				return nil, errors.WithStack(errInvalid("cannot move a folder into itself"))
			}
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureNameFree(ctx, tx, node.ProjectID, targetParentID, node.Type, node.Name); err != nil {
			return err
		}
		query := tx.Model(&Node{}).Scopes(nodeTargetScope(node))
		if node.IsFile() {
			query = query.Where("status IN ?", []NodeStatus{StatusActive, StatusTrashed})
		}
		if err := query.Updates(map[string]any{
			"parent_id":  targetParentID,
			"updated_at": s.clock(),
		}).Error; err != nil {
			return errors.Wrap(err, "move node")
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.WithStack(NewError(ErrCodeConflict, "a file with this name already exists", false))
		}
		return nil, err
	}
	return getNode(ctx, s.db, node.ID)
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ListFolder returns active folders and, for every file, its latest version
// when that version is active.
func (s *Service) ListFolder(ctx context.Context, identity Identity, projectID string, parentID *string) ([]Node, error) {
	if err := s.requireProjectAccess(ctx, identity, projectID); err != nil {
		return nil, err
	}
	if _, err := s.ResolveFolder(ctx, projectID, parentID); err != nil {
		return nil, err
	}

	children, err := listChildren(ctx, s.db, projectID, parentID, StatusActive, StatusTrashed)
	if err != nil {
		return nil, err
	}

	out := make([]Node, 0, len(children))
	for _, node := range latestPerCohort(children) {
		if node.Status == StatusActive {
			out = append(out, node)
		}
	}
	return out, nil
}

// UpdateSharing changes the sharing scope of a node. An empty password clears it.
func (s *Service) UpdateSharing(ctx context.Context, identity Identity, nodeID string, scope SharingScope, password string) (*Node, error) {
	node, _, err := s.loadMutableNode(ctx, identity, nodeID)
	if err != nil {
		return nil, err
	}
	if scope != SharingPrivate && scope != SharingPublic {
		return nil, errors.WithStack(errInvalid("unknown sharing scope"))
	}

	hashed := ""
	if password != "" {
		raw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, errors.Wrap(err, "hash share password")
		}
		hashed = string(raw)
	}

	query := s.db.WithContext(ctx).Model(&Node{}).Scopes(nodeTargetScope(node))
	if node.IsFile() {
		query = query.Where("status IN ?", []NodeStatus{StatusActive, StatusTrashed})
	}
	if err := query.Updates(map[string]any{
		"sharing_scope":  scope,
		"share_password": hashed,
		"updated_at":     s.clock(),
	}).Error; err != nil {
		return nil, errors.Wrap(err, "update sharing")
	}
	return getNode(ctx, s.db, node.ID)
}

// OpenNode streams a file version. Project members may always read; anyone
// may read a PUBLIC node when the share password, if set, matches.
func (s *Service) OpenNode(ctx context.Context, identity Identity, nodeID, password string) (io.ReadCloser, *Node, error) {
	node, err := getNode(ctx, s.db, nodeID)
	if err != nil {
		return nil, nil, err
	}
	if !node.IsFile() || node.Status != StatusActive {
		return nil, nil, errors.WithStack(errNotFound("file"))
	}
	if node.IsRetired() {
		return nil, nil, errors.WithStack(errInvalid("version was retired and has no content"))
	}

	if err := s.requireProjectAccess(ctx, identity, node.ProjectID); err != nil {
		if !IsCode(err, ErrCodeForbidden) || node.SharingScope != SharingPublic {
			return nil, nil, err
		}
		if node.SharePassword != "" &&
			bcrypt.CompareHashAndPassword([]byte(node.SharePassword), []byte(password)) != nil {
			return nil, nil, errors.WithStack(errForbidden("share password does not match"))
		}
	}

	body, err := s.blobs.Get(ctx, *node.BlobKey)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open blob")
	}
	return body, node, nil
}
