package drive

import "time"

// Node represents a file or folder row in the hierarchical index.
type Node struct {
	ID            string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ParentID      *string      `gorm:"type:varchar(36);index:idx_drive_nodes_scope,priority:2" json:"parent_id"`
	ProjectID     string       `gorm:"type:varchar(36);not null;index:idx_drive_nodes_scope,priority:1" json:"project_id"`
	Name          string       `gorm:"type:varchar(255);not null;index:idx_drive_nodes_scope,priority:3" json:"name"`
	Type          NodeType     `gorm:"type:varchar(16);not null" json:"type"`
	BlobKey       *string      `gorm:"type:varchar(1024)" json:"blob_key"`
	ContentType   string       `gorm:"type:varchar(255)" json:"content_type"`
	Size          int64        `gorm:"not null;default:0" json:"size"`
	OwnerEmail    string       `gorm:"type:varchar(320);index" json:"owner_email"`
	CreatedBy     string       `gorm:"type:varchar(320)" json:"created_by"`
	SharingScope  SharingScope `gorm:"type:varchar(16);not null;default:PRIVATE" json:"sharing_scope"`
	SharePassword string       `gorm:"type:varchar(100)" json:"-"`
	Version       int          `gorm:"not null;default:1" json:"version"`
	Status        NodeStatus   `gorm:"type:varchar(32);not null;index" json:"status"`
	TrashedAt     *time.Time   `json:"trashed_at"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// TableName returns the database table name.
func (Node) TableName() string {
	return "drive_nodes"
}

// IsFile reports whether the node is a file version.
func (n *Node) IsFile() bool {
	return n != nil && n.Type == NodeTypeFile
}

// IsRetired reports whether the version's blob was purged by retention.
func (n *Node) IsRetired() bool {
	return n.IsFile() && n.BlobKey == nil
}

// ProjectSettings holds per-project behavior switches.
type ProjectSettings struct {
	NotifyOnActivity      bool `json:"notify_on_activity"`
	VersionRetentionLimit int  `json:"version_retention_limit"`
	ReadOnly              bool `json:"read_only"`
}

// Project is a quota and namespace boundary.
type Project struct {
	ID                  string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name                string          `gorm:"type:varchar(255);not null;index" json:"name"`
	MaxStorageBytes     int64           `gorm:"not null;default:0" json:"max_storage_bytes"`
	CurrentStorageBytes int64           `gorm:"not null;default:0" json:"current_storage_bytes"`
	Settings            ProjectSettings `gorm:"embedded;embeddedPrefix:setting_" json:"settings"`
	CreatedBy           string          `gorm:"type:varchar(320)" json:"created_by"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// TableName returns the database table name.
func (Project) TableName() string {
	return "drive_projects"
}

// ProjectMember grants a non-owner identity access to a project.
type ProjectMember struct {
	ProjectID string    `gorm:"primaryKey;type:varchar(36)"`
	Email     string    `gorm:"primaryKey;type:varchar(320)"`
	CreatedAt time.Time
}

// TableName returns the database table name.
func (ProjectMember) TableName() string {
	return "drive_project_members"
}

// PurgeJob is a queued permanent-delete sweep.
type PurgeJob struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	ProjectID   string    `gorm:"type:varchar(36);not null"`
	NodeID      string    `gorm:"type:varchar(36);not null"`
	Status      string    `gorm:"type:varchar(16);not null"`
	RetryCount  int       `gorm:"not null;default:0"`
	FreedBytes  int64     `gorm:"not null;default:0"`
	LastError   string    `gorm:"type:text"`
	AvailableAt time.Time `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the database table name.
func (PurgeJob) TableName() string {
	return "drive_purge_jobs"
}

const (
	purgeJobPending    = "pending"
	purgeJobProcessing = "processing"
	purgeJobDone       = "done"
	purgeJobFailed     = "failed"
)
