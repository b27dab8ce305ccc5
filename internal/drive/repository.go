package drive

import (
	"context"
	"database/sql"
	"strings"

	errors "github.com/Laisky/errors/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// parentScope matches rows under the given parent; nil means the project root.
func parentScope(parentID *string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if parentID == nil {
			return db.Where("parent_id IS NULL")
		}
		return db.Where("parent_id = ?", *parentID)
	}
}

// cohortScope matches every version row of one logical file.
func cohortScope(projectID string, parentID *string, name string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("project_id = ? AND name = ? AND type = ?", projectID, name, NodeTypeFile).
			Scopes(parentScope(parentID))
	}
}

// getNode loads a node by id.
func getNode(ctx context.Context, db *gorm.DB, id string) (*Node, error) {
	var node Node
	if err := db.WithContext(ctx).Where("id = ?", id).First(&node).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithStack(errNotFound("node"))
		}
		return nil, errors.Wrap(err, "load node")
	}
	return &node, nil
}

// getProject loads a project by id.
func getProject(ctx context.Context, db *gorm.DB, id string) (*Project, error) {
	var project Project
	if err := db.WithContext(ctx).Where("id = ?", id).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithStack(errNotFound("project"))
		}
		return nil, errors.Wrap(err, "load project")
	}
	return &project, nil
}

// findProjectByName returns the earliest created project with an exact name match.
func findProjectByName(ctx context.Context, db *gorm.DB, name string) (*Project, error) {
	var project Project
	err := db.WithContext(ctx).
		Where("name = ?", name).
		Order("created_at ASC").
		Order("id ASC").
		First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithStack(errNotFound("project"))
		}
		return nil, errors.Wrap(err, "find project by name")
	}
	return &project, nil
}

// findActiveFolder returns the active folder named name directly under parentID.
func findActiveFolder(ctx context.Context, db *gorm.DB, projectID string, parentID *string, name string) (*Node, error) {
	var node Node
	err := db.WithContext(ctx).
		Where("project_id = ? AND type = ? AND name = ? AND status = ?", projectID, NodeTypeFolder, name, StatusActive).
		Scopes(parentScope(parentID)).
		Order("created_at ASC").
		First(&node).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithStack(errNotFound("folder " + name))
		}
		return nil, errors.Wrap(err, "find folder")
	}
	return &node, nil
}

// listChildren returns direct children of a folder, optionally filtered by status.
func listChildren(ctx context.Context, db *gorm.DB, projectID string, parentID *string, statuses ...NodeStatus) ([]Node, error) {
	query := db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Scopes(parentScope(parentID))
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var nodes []Node
	if err := query.Order("type DESC").Order("name ASC").Order("version ASC").Find(&nodes).Error; err != nil {
		return nil, errors.Wrap(err, "list children")
	}
	return nodes, nil
}

// countChildren counts every row whose parent is folderID, whatever its status.
func countChildren(ctx context.Context, db *gorm.DB, folderID string) (int64, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&Node{}).Where("parent_id = ?", folderID).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "count children")
	}
	return count, nil
}

// listCohort returns the versions of one file ordered by version ascending.
func listCohort(ctx context.Context, db *gorm.DB, projectID string, parentID *string, name string, statuses ...NodeStatus) ([]Node, error) {
	query := db.WithContext(ctx).Scopes(cohortScope(projectID, parentID, name))
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var nodes []Node
	if err := query.Order("version ASC").Find(&nodes).Error; err != nil {
		return nil, errors.Wrap(err, "list file versions")
	}
	return nodes, nil
}

// maxCohortVersion returns the highest version ever used by a cohort, including pending purges.
func maxCohortVersion(ctx context.Context, db *gorm.DB, projectID string, parentID *string, name string) (int, error) {
	var max sql.NullInt64
	row := db.WithContext(ctx).Model(&Node{}).
		Scopes(cohortScope(projectID, parentID, name)).
		Select("MAX(version)").
		Row()
	if err := row.Scan(&max); err != nil {
		return 0, errors.Wrap(err, "max file version")
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64), nil
}

// listTrashed returns trashed nodes, scoped to one owner unless owner is empty.
func listTrashed(ctx context.Context, db *gorm.DB, owner string) ([]Node, error) {
	query := db.WithContext(ctx).Where("status = ?", StatusTrashed)
	if owner != "" {
		query = query.Where("owner_email = ?", owner)
	}

	var nodes []Node
	if err := query.Order("trashed_at DESC").Order("name ASC").Order("version ASC").Find(&nodes).Error; err != nil {
		return nil, errors.Wrap(err, "list trash")
	}
	return nodes, nil
}

// isUniqueViolation reports whether err came from a unique constraint.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
