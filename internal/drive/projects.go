package drive

import (
	"context"
	"strings"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProjectUpdate carries optional project changes; nil fields are left alone.
type ProjectUpdate struct {
	Settings        *ProjectSettings
	MaxStorageBytes *int64
}

// CreateProject registers a project. Only admins may create projects.
func (s *Service) CreateProject(ctx context.Context, identity Identity, name string, maxStorageBytes *int64) (*Project, error) {
	if !s.isAdmin(identity) {
		return nil, errors.WithStack(errForbidden("only admins may create projects"))
	}
	name = strings.TrimSpace(name)
	if err := validateNodeName(name); err != nil {
		return nil, err
	}

	limit := s.settings.DefaultMaxStorageBytes
	if maxStorageBytes != nil {
		if *maxStorageBytes < 0 {
			return nil, errors.WithStack(errInvalid("max storage bytes must not be negative"))
		}
		limit = *maxStorageBytes
	}

	now := s.clock()
	project := &Project{
		ID:              uuid.NewString(),
		Name:            name,
		MaxStorageBytes: limit,
		CreatedBy:       normalizeEmail(identity.Email),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.WithContext(ctx).Create(project).Error; err != nil {
		return nil, errors.Wrap(err, "insert project")
	}
	return project, nil
}

// GetProject resolves a reference and checks the caller may see it.
func (s *Service) GetProject(ctx context.Context, identity Identity, ref ProjectRef) (*Project, error) {
	project, err := s.ResolveProject(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.requireProjectAccess(ctx, identity, project.ID); err != nil {
		return nil, err
	}
	return project, nil
}

// ListProjects returns every project for admins, otherwise the ones the caller
// created or was added to.
func (s *Service) ListProjects(ctx context.Context, identity Identity) ([]Project, error) {
	if identity.Anonymous() {
		return nil, errors.WithStack(errForbidden("authentication required"))
	}

	query := s.db.WithContext(ctx).Model(&Project{})
	if !s.isAdmin(identity) {
		email := normalizeEmail(identity.Email)
		query = query.Where("created_by = ? OR id IN (?)", email,
			s.db.Model(&ProjectMember{}).Select("project_id").Where("email = ?", email))
	}

	var projects []Project
	if err := query.Order("created_at ASC").Find(&projects).Error; err != nil {
		return nil, errors.Wrap(err, "list projects")
	}
	return projects, nil
}

// UpdateProject changes settings or the storage cap. Admins and the creator may do this.
func (s *Service) UpdateProject(ctx context.Context, identity Identity, projectID string, update ProjectUpdate) (*Project, error) {
	project, err := getProject(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.requireProjectOwner(identity, project); err != nil {
		return nil, err
	}

	changes := map[string]any{"updated_at": s.clock()}
	if update.Settings != nil {
		if update.Settings.VersionRetentionLimit < 0 {
			return nil, errors.WithStack(errInvalid("version retention limit must not be negative"))
		}
		changes["setting_notify_on_activity"] = update.Settings.NotifyOnActivity
		changes["setting_version_retention_limit"] = update.Settings.VersionRetentionLimit
		changes["setting_read_only"] = update.Settings.ReadOnly
	}
	if update.MaxStorageBytes != nil {
		if *update.MaxStorageBytes < 0 {
			return nil, errors.WithStack(errInvalid("max storage bytes must not be negative"))
		}
		changes["max_storage_bytes"] = *update.MaxStorageBytes
	}

	if err := s.db.WithContext(ctx).Model(&Project{}).Where("id = ?", project.ID).Updates(changes).Error; err != nil {
		return nil, errors.Wrap(err, "update project")
	}
	return getProject(ctx, s.db, project.ID)
}

// AddProjectMember grants email access to the project. Adding twice is a no-op.
func (s *Service) AddProjectMember(ctx context.Context, identity Identity, projectID, email string) error {
	project, err := getProject(ctx, s.db, projectID)
	if err != nil {
		return err
	}
	if err := s.requireProjectOwner(identity, project); err != nil {
		return err
	}
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return errors.WithStack(errInvalid("a valid email is required"))
	}

	member := ProjectMember{ProjectID: project.ID, Email: email, CreatedAt: s.clock()}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error
	})
	if err != nil {
		return errors.Wrap(err, "add project member")
	}
	return nil
}

// requireProjectOwner allows admins and the project creator.
func (s *Service) requireProjectOwner(identity Identity, project *Project) error {
	if s.isAdmin(identity) {
		return nil
	}
	if !identity.Anonymous() && normalizeEmail(project.CreatedBy) == normalizeEmail(identity.Email) {
		return nil
	}
	return errors.WithStack(errForbidden("only the project owner or an admin may do this"))
}
