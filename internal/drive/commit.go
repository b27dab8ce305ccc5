package drive

import (
	"context"
	"io"
	"strings"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PrepareUpload plans a write, checks the quota, mints a blob key and
// presigns an upload URL for it. A CONFLICT plan mints nothing.
func (s *Service) PrepareUpload(ctx context.Context, identity Identity, req WriteRequest) (UploadTicket, error) {
	project, err := getProject(ctx, s.db, req.ProjectID)
	if err != nil {
		return UploadTicket{}, err
	}
	if err := s.requireMutable(ctx, identity, project); err != nil {
		return UploadTicket{}, err
	}
	folder, err := s.ResolveFolder(ctx, project.ID, req.ParentID)
	if err != nil {
		return UploadTicket{}, err
	}

	plan, err := s.planWrite(ctx, s.db, identity, req)
	if err != nil {
		return UploadTicket{}, err
	}
	if plan.Decision == DecisionConflict {
		s.metrics.recordConflict()
		return UploadTicket{Plan: plan}, nil
	}
	if err := s.checkQuota(project, plan.SizeDelta); err != nil {
		return UploadTicket{}, err
	}

	key := s.blobKeyForWrite(project, folder, plan.TargetVersion, req.Filename)
	uploadURL, err := s.blobs.IssueUploadURL(ctx, key, req.ContentType, s.settings.UploadURLTTL)
	if err != nil {
		return UploadTicket{}, errors.Wrap(err, "issue upload url")
	}

	return UploadTicket{
		Plan:      plan,
		BlobKey:   key,
		UploadURL: uploadURL,
		ExpiresAt: s.clock().Add(s.settings.UploadURLTTL),
	}, nil
}

// CommitWrite verifies the uploaded blob and records it in the index.
// An unresolved filename collision yields a CONFLICT result and a nil error.
func (s *Service) CommitWrite(ctx context.Context, identity Identity, req CommitRequest) (CommitResult, error) {
	project, err := getProject(ctx, s.db, req.ProjectID)
	if err != nil {
		return CommitResult{}, err
	}
	if err := s.requireMutable(ctx, identity, project); err != nil {
		return CommitResult{}, err
	}
	if _, err := s.ResolveFolder(ctx, project.ID, req.ParentID); err != nil {
		return CommitResult{}, err
	}
	if err := s.validateMintedKey(ctx, project, req.BlobKey); err != nil {
		return CommitResult{}, err
	}

	return s.commitWrite(ctx, identity, project, req, EventUploaded)
}

// Upload streams body to the blob store and commits it in one call.
// The blob is removed again when the commit does not take it.
func (s *Service) Upload(ctx context.Context, identity Identity, req WriteRequest, body io.Reader) (CommitResult, error) {
	ticket, err := s.PrepareUpload(ctx, identity, req)
	if err != nil {
		return CommitResult{}, err
	}
	if ticket.Plan.Decision == DecisionConflict {
		return CommitResult{Plan: ticket.Plan}, nil
	}

	if err := s.blobs.Put(ctx, ticket.BlobKey, body, req.Size, req.ContentType); err != nil {
		return CommitResult{}, errors.Wrap(err, "put blob")
	}

	project, err := getProject(ctx, s.db, req.ProjectID)
	if err != nil {
		s.deleteBlobBestEffort(ctx, ticket.BlobKey, "upload_abort")
		return CommitResult{}, err
	}
	result, err := s.commitWrite(ctx, identity, project, CommitRequest{WriteRequest: req, BlobKey: ticket.BlobKey}, EventUploaded)
	if err != nil || result.Plan.Decision == DecisionConflict {
		s.deleteBlobBestEffort(ctx, ticket.BlobKey, "upload_abort")
	}
	return result, err
}

// commitWrite runs blob verification, the retrying node write and the async tail.
func (s *Service) commitWrite(ctx context.Context, identity Identity, project *Project, req CommitRequest, kind EventKind) (CommitResult, error) {
	logger := s.LoggerFromContext(ctx)

	info, err := s.blobs.Head(ctx, req.BlobKey)
	if err != nil {
		if IsCode(err, ErrCodeNotFound) {
			return CommitResult{}, errors.WithStack(NewError(ErrCodeBlobIntegrity, "uploaded blob is missing", false))
		}
		return CommitResult{}, errors.Wrap(err, "head uploaded blob")
	}
	if info.Size != req.Size {
		return CommitResult{}, errors.WithStack(NewError(ErrCodeBlobIntegrity, "uploaded blob size mismatch", false))
	}
	if req.ContentType == "" {
		req.ContentType = info.ContentType
	}

	var (
		result  CommitResult
		oldBlob *string
	)
	for attempt := 1; ; attempt++ {
		result, oldBlob, err = s.commitOnce(ctx, identity, req)
		if err == nil {
			break
		}
		if !isUniqueViolation(err) {
			return CommitResult{}, err
		}
		if attempt >= s.settings.PlanRetryMax {
			return CommitResult{}, errors.WithStack(NewError(ErrCodeDuplicateVersion,
				"concurrent writes to the same file, please retry", true))
		}
		s.metrics.recordPlanRetry()
		logger.Debug("duplicate version on commit, re-planning",
			zap.String("filename", req.Filename), zap.Int("attempt", attempt))
	}

	if result.Plan.Decision == DecisionConflict {
		s.metrics.recordConflict()
		return result, nil
	}
	s.metrics.recordCommit(result.Plan.Decision)

	// the old blob goes only after the row points at the new one
	if oldBlob != nil && *oldBlob != req.BlobKey {
		s.deleteBlobBestEffort(ctx, *oldBlob, "overwrite")
	}

	if limit := project.Settings.VersionRetentionLimit; limit > 0 {
		projectID, parentID, name := req.ProjectID, req.ParentID, req.Filename
		s.goAsync(ctx, "retention", func(ctx context.Context) error {
			_, err := s.EnforceRetention(ctx, projectID, parentID, name, limit)
			return err
		})
	}
	s.notifyActivity(ctx, project, Event{
		Kind:    kind,
		NodeID:  result.Node.ID,
		Name:    result.Node.Name,
		Version: result.Node.Version,
		Actor:   identity.Email,
	})

	return result, nil
}

// commitOnce re-plans inside a transaction and writes the node row and quota delta.
func (s *Service) commitOnce(ctx context.Context, identity Identity, req CommitRequest) (CommitResult, *string, error) {
	var (
		result  CommitResult
		oldBlob *string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := getProject(ctx, tx, req.ProjectID)
		if err != nil {
			return err
		}
		plan, err := s.planWrite(ctx, tx, identity, req.WriteRequest)
		if err != nil {
			return err
		}
		result.Plan = plan
		if plan.Decision == DecisionConflict {
			return nil
		}
		if version, ok := blobKeyVersion(req.BlobKey); !ok || version != plan.TargetVersion {
			return errors.WithStack(NewError(ErrCodeDuplicateVersion,
				"file version changed since the upload was prepared, please prepare again", true))
		}
		if err := s.checkQuota(project, plan.SizeDelta); err != nil {
			return err
		}

		now := s.clock()
		blobKey := req.BlobKey
		var node *Node
		switch plan.Decision {
		case DecisionCreate, DecisionNewVersion:
			node = &Node{
				ID:           uuid.NewString(),
				ParentID:     req.ParentID,
				ProjectID:    req.ProjectID,
				Name:         req.Filename,
				Type:         NodeTypeFile,
				BlobKey:      &blobKey,
				ContentType:  req.ContentType,
				Size:         req.Size,
				OwnerEmail:   normalizeEmail(identity.Email),
				CreatedBy:    normalizeEmail(identity.Email),
				SharingScope: SharingPrivate,
				Version:      plan.TargetVersion,
				Status:       StatusActive,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if prev := plan.previous; prev != nil {
				// history keeps its owner and sharing across versions
				node.OwnerEmail = prev.OwnerEmail
				node.SharingScope = prev.SharingScope
				node.SharePassword = prev.SharePassword
			}
			if err := tx.Create(node).Error; err != nil {
				return errors.Wrap(err, "insert file version")
			}
		case DecisionOverwrite:
			oldBlob = plan.previous.BlobKey
			res := tx.Model(&Node{}).
				Where("id = ? AND version = ? AND status = ?", plan.OverwriteNodeID, plan.TargetVersion, StatusActive).
				Updates(map[string]any{
					"blob_key":     blobKey,
					"size":         req.Size,
					"content_type": req.ContentType,
					"updated_at":   now,
				})
			if res.Error != nil {
				return errors.Wrap(res.Error, "overwrite file version")
			}
			if res.RowsAffected == 0 {
				return errors.WithStack(NewError(ErrCodeResourceBusy, "file changed during overwrite, please retry", true))
			}
			if node, err = getNode(ctx, tx, plan.OverwriteNodeID); err != nil {
				return err
			}
		default:
			return errors.Errorf("unexpected write decision %q", plan.Decision)
		}

		if err := s.applyQuotaDelta(ctx, tx, req.ProjectID, plan.SizeDelta); err != nil {
			return err
		}
		result.Node = node
		return nil
	})
	if err != nil {
		return CommitResult{}, nil, err
	}
	return result, oldBlob, nil
}

// validateMintedKey accepts only keys this engine could have minted for the
// project that no node already references.
func (s *Service) validateMintedKey(ctx context.Context, project *Project, key string) error {
	prefix := BuildBlobKeyPrefix(s.settings.KeyPrefix, project.Name)
	if _, ok := blobKeyVersion(key); !ok || !strings.HasPrefix(key, prefix) || strings.Contains(key, "..") {
		return errors.WithStack(errInvalid("blob key was not issued for this project"))
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&Node{}).Where("blob_key = ?", key).Count(&count).Error; err != nil {
		return errors.Wrap(err, "check blob key usage")
	}
	if count > 0 {
		return errors.WithStack(errInvalid("blob key is already committed"))
	}
	return nil
}

// deleteBlobBestEffort logs and counts failures instead of returning them.
func (s *Service) deleteBlobBestEffort(ctx context.Context, key, source string) bool {
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.metrics.recordBlobDeleteFailure(source)
		s.warnOnError(ctx, err, "delete blob", zap.String("key", key), zap.String("source", source))
		return false
	}
	return true
}
