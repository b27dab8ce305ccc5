package drive

import (
	"context"

	errors "github.com/Laisky/errors/v2"
)

// ListVersions returns the history of the file nodeID belongs to, newest first.
// Retired versions are included as placeholders.
func (s *Service) ListVersions(ctx context.Context, identity Identity, nodeID string) ([]Node, error) {
	node, err := getNode(ctx, s.db, nodeID)
	if err != nil {
		return nil, err
	}
	if !node.IsFile() {
		return nil, errors.WithStack(errInvalid("folders have no versions"))
	}
	if node.Status == StatusDeletedPending {
		return nil, errors.WithStack(errNotFound("node"))
	}
	if err := s.requireProjectAccess(ctx, identity, node.ProjectID); err != nil {
		return nil, err
	}

	versions, err := listCohort(ctx, s.db, node.ProjectID, node.ParentID, node.Name, StatusActive, StatusTrashed)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(versions)-1; i < j; i, j = i+1, j-1 {
		versions[i], versions[j] = versions[j], versions[i]
	}
	return versions, nil
}

// RollbackToVersion copies an old version's blob and commits it as the newest version.
// The copy is charged against the quota like any other new version.
func (s *Service) RollbackToVersion(ctx context.Context, identity Identity, nodeID string) (CommitResult, error) {
	node, err := getNode(ctx, s.db, nodeID)
	if err != nil {
		return CommitResult{}, err
	}
	if !node.IsFile() || node.Status == StatusDeletedPending {
		return CommitResult{}, errors.WithStack(errNotFound("file version"))
	}
	if node.IsRetired() {
		return CommitResult{}, errors.WithStack(errInvalid("version was retired and has no content"))
	}
	project, err := getProject(ctx, s.db, node.ProjectID)
	if err != nil {
		return CommitResult{}, err
	}
	if err := s.requireMutable(ctx, identity, project); err != nil {
		return CommitResult{}, err
	}
	folder, err := s.ResolveFolder(ctx, project.ID, node.ParentID)
	if err != nil {
		return CommitResult{}, err
	}

	req := WriteRequest{
		ProjectID:   project.ID,
		ParentID:    node.ParentID,
		Filename:    node.Name,
		Size:        node.Size,
		ContentType: node.ContentType,
		Resolution:  ResolutionUpdate,
	}
	plan, err := s.planWrite(ctx, s.db, identity, req)
	if err != nil {
		return CommitResult{}, err
	}
	if err := s.checkQuota(project, plan.SizeDelta); err != nil {
		return CommitResult{}, err
	}

	key := s.blobKeyForWrite(project, folder, plan.TargetVersion, node.Name)
	if err := s.blobs.Copy(ctx, *node.BlobKey, key); err != nil {
		if IsCode(err, ErrCodeNotFound) {
			return CommitResult{}, errors.WithStack(NewError(ErrCodeBlobIntegrity, "source version blob is missing", false))
		}
		return CommitResult{}, errors.Wrap(err, "copy version blob")
	}

	result, err := s.commitWrite(ctx, identity, project, CommitRequest{WriteRequest: req, BlobKey: key}, EventRolledBack)
	if err != nil {
		s.deleteBlobBestEffort(ctx, key, "rollback_abort")
		return CommitResult{}, err
	}
	return result, nil
}
