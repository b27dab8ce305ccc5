package drive

import (
	"context"
	"strings"
	"unicode/utf8"

	errors "github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

const maxNodeNameBytes = 255

// validateNodeName rejects names that cannot live inside a folder.
func validateNodeName(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return errors.WithStack(errInvalid("name is required"))
	case trimmed != name:
		return errors.WithStack(errInvalid("name must not start or end with whitespace"))
	case name == "." || name == "..":
		return errors.WithStack(errInvalid("name is reserved"))
	case strings.ContainsAny(name, "/\\\x00"):
		return errors.WithStack(errInvalid("name must not contain path separators"))
	case len(name) > maxNodeNameBytes:
		return errors.WithStack(errInvalid("name is too long"))
	case !utf8.ValidString(name):
		return errors.WithStack(errInvalid("name must be valid utf-8"))
	}
	return nil
}

// PlanWrite decides how an incoming file write lands in its cohort.
// It never writes; a CONFLICT decision is returned with a nil error.
func (s *Service) PlanWrite(ctx context.Context, identity Identity, req WriteRequest) (WritePlan, error) {
	project, err := getProject(ctx, s.db, req.ProjectID)
	if err != nil {
		return WritePlan{}, err
	}
	if err := s.requireProjectAccess(ctx, identity, project.ID); err != nil {
		return WritePlan{}, err
	}
	if _, err := s.ResolveFolder(ctx, project.ID, req.ParentID); err != nil {
		return WritePlan{}, err
	}

	plan, err := s.planWrite(ctx, s.db, identity, req)
	if err != nil {
		return WritePlan{}, err
	}
	if plan.Decision == DecisionConflict {
		s.metrics.recordConflict()
	}
	return plan, nil
}

// planWrite computes the plan against db, which may be a transaction.
func (s *Service) planWrite(ctx context.Context, db *gorm.DB, identity Identity, req WriteRequest) (WritePlan, error) {
	if err := validateNodeName(req.Filename); err != nil {
		return WritePlan{}, err
	}
	if req.Size < 0 {
		return WritePlan{}, errors.WithStack(errInvalid("size must not be negative"))
	}

	cohort, err := listCohort(ctx, db, req.ProjectID, req.ParentID, req.Filename, StatusActive, StatusTrashed)
	if err != nil {
		return WritePlan{}, err
	}
	// pending purges still hold their version numbers until the row is gone
	highest, err := maxCohortVersion(ctx, db, req.ProjectID, req.ParentID, req.Filename)
	if err != nil {
		return WritePlan{}, err
	}

	if len(cohort) == 0 {
		return WritePlan{
			Decision:      DecisionCreate,
			TargetVersion: highest + 1,
			SizeDelta:     req.Size,
		}, nil
	}

	latest := cohort[len(cohort)-1]
	switch req.Resolution {
	case ResolutionNone:
		return WritePlan{
			Decision: DecisionConflict,
			Conflict: &ConflictInfo{
				LatestVersion:  latest.Version,
				LatestNodeID:   latest.ID,
				LatestStatus:   latest.Status,
				Owner:          latest.OwnerEmail,
				IsOwnerOrAdmin: s.isOwnerOrAdmin(identity, &latest),
			},
			previous: &latest,
		}, nil
	case ResolutionUpdate:
		return WritePlan{
			Decision:      DecisionNewVersion,
			TargetVersion: highest + 1,
			SizeDelta:     req.Size,
			previous:      &latest,
		}, nil
	case ResolutionOverwrite:
		if err := s.requireOwnerOrAdmin(identity, &latest); err != nil {
			return WritePlan{}, err
		}
		if latest.Status != StatusActive {
			return WritePlan{}, errors.WithStack(NewError(ErrCodeConflict, "latest version is in trash, restore it before overwriting", false))
		}
		return WritePlan{
			Decision:        DecisionOverwrite,
			TargetVersion:   latest.Version,
			OverwriteNodeID: latest.ID,
			SizeDelta:       req.Size - latest.Size,
			previous:        &latest,
		}, nil
	default:
		return WritePlan{}, errors.WithStack(errInvalid("unknown conflict resolution"))
	}
}
