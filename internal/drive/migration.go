package drive

import (
	"context"
	"strings"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-drive/library/log"
)

// RunMigrations ensures drive tables and indexes exist.
func RunMigrations(ctx context.Context, db *gorm.DB, logger logSDK.Logger) error {
	if db == nil {
		return errors.New("gorm db is required")
	}
	if logger == nil {
		logger = log.Logger.Named("drive_migration")
	}

	if err := db.WithContext(ctx).AutoMigrate(&Project{}, &ProjectMember{}, &Node{}, &PurgeJob{}); err != nil {
		return errors.Wrap(err, "auto migrate drive tables")
	}

	// Both sqlite and postgres accept expression and partial indexes.
	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_drive_nodes_file_version ON drive_nodes (project_id, COALESCE(parent_id, ''), name, version) WHERE type = 'FILE'`,
		`CREATE INDEX IF NOT EXISTS idx_drive_nodes_trash ON drive_nodes (owner_email, trashed_at) WHERE status = 'TRASHED'`,
		`CREATE INDEX IF NOT EXISTS idx_drive_purge_jobs_pending ON drive_purge_jobs (status, available_at, id)`,
	}
	if isPostgresDialect(db) {
		statements = append(statements,
			`CREATE INDEX IF NOT EXISTS idx_drive_projects_name_created ON drive_projects (name, created_at)`,
		)
	}

	for _, stmt := range statements {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return errors.Wrap(err, "create index")
		}
	}

	logger.Debug("drive migrations completed")
	return nil
}

// isPostgresDialect reports whether the gorm dialector is Postgres.
func isPostgresDialect(db *gorm.DB) bool {
	if db == nil || db.Dialector == nil {
		return false
	}
	return strings.EqualFold(db.Dialector.Name(), "postgres")
}
