package drive

import (
	"context"
	"strings"

	errors "github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

// AccessPolicy answers role questions for an identity.
type AccessPolicy interface {
	IsAdmin(identity Identity) bool
	IsProjectMember(ctx context.Context, identity Identity, projectID string) (bool, error)
}

// MemberPolicy treats configured emails as admins and the project creator
// plus drive_project_members rows as members.
type MemberPolicy struct {
	db     *gorm.DB
	admins map[string]struct{}
}

// NewMemberPolicy builds the default policy.
func NewMemberPolicy(db *gorm.DB, admins []string) *MemberPolicy {
	set := make(map[string]struct{}, len(admins))
	for _, email := range normalizeEmails(admins) {
		set[email] = struct{}{}
	}
	return &MemberPolicy{db: db, admins: set}
}

// IsAdmin implements AccessPolicy.
func (p *MemberPolicy) IsAdmin(identity Identity) bool {
	if identity.Anonymous() {
		return false
	}
	_, ok := p.admins[normalizeEmail(identity.Email)]
	return ok
}

// IsProjectMember implements AccessPolicy.
func (p *MemberPolicy) IsProjectMember(ctx context.Context, identity Identity, projectID string) (bool, error) {
	if identity.Anonymous() {
		return false, nil
	}
	email := normalizeEmail(identity.Email)

	project, err := getProject(ctx, p.db, projectID)
	if err != nil {
		return false, err
	}
	if normalizeEmail(project.CreatedBy) == email {
		return true, nil
	}

	var count int64
	if err := p.db.WithContext(ctx).Model(&ProjectMember{}).
		Where("project_id = ? AND email = ?", projectID, email).
		Count(&count).Error; err != nil {
		return false, errors.Wrap(err, "check project membership")
	}
	return count > 0, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsAdmin reports whether identity administers the whole drive.
func (s *Service) IsAdmin(identity Identity) bool {
	return s.isAdmin(identity)
}

// isAdmin is a nil-safe wrapper around the policy.
func (s *Service) isAdmin(identity Identity) bool {
	return s.policy != nil && s.policy.IsAdmin(identity)
}

// isOwnerOrAdmin reports whether identity owns node or is an admin.
func (s *Service) isOwnerOrAdmin(identity Identity, node *Node) bool {
	if identity.Anonymous() || node == nil {
		return false
	}
	if s.isAdmin(identity) {
		return true
	}
	return normalizeEmail(node.OwnerEmail) == normalizeEmail(identity.Email)
}

// requireProjectAccess allows admins and project members.
func (s *Service) requireProjectAccess(ctx context.Context, identity Identity, projectID string) error {
	if identity.Anonymous() {
		return errors.WithStack(errForbidden("authentication required"))
	}
	if s.isAdmin(identity) {
		return nil
	}
	ok, err := s.policy.IsProjectMember(ctx, identity, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.WithStack(errForbidden("not a member of this project"))
	}
	return nil
}

// requireMutable allows project access and rejects non-admin writes to read-only projects.
func (s *Service) requireMutable(ctx context.Context, identity Identity, project *Project) error {
	if err := s.requireProjectAccess(ctx, identity, project.ID); err != nil {
		return err
	}
	if project.Settings.ReadOnly && !s.isAdmin(identity) {
		return errors.WithStack(errForbidden("project is read-only"))
	}
	return nil
}

// requireOwnerOrAdmin rejects callers that neither own node nor administer the drive.
func (s *Service) requireOwnerOrAdmin(identity Identity, node *Node) error {
	if !s.isOwnerOrAdmin(identity, node) {
		return errors.WithStack(errForbidden("only the owner or an admin may do this"))
	}
	return nil
}
