package web

import (
	"time"

	"github.com/jinzhu/copier"

	"github.com/Laisky/laisky-drive/internal/drive"
)

// NodeDTO is the wire shape of a node.
type NodeDTO struct {
	ID           string             `json:"id"`
	ParentID     *string            `json:"parent_id"`
	ProjectID    string             `json:"project_id"`
	Name         string             `json:"name"`
	Type         drive.NodeType     `json:"type"`
	ContentType  string             `json:"content_type,omitempty"`
	Size         int64              `json:"size"`
	OwnerEmail   string             `json:"owner_email"`
	CreatedBy    string             `json:"created_by"`
	SharingScope drive.SharingScope `json:"sharing_scope"`
	Version      int                `json:"version"`
	Status       drive.NodeStatus   `json:"status"`
	TrashedAt    *time.Time         `json:"trashed_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`

	Retired     bool `json:"retired"`
	HasPassword bool `json:"has_password"`
}

// ProjectDTO is the wire shape of a project.
type ProjectDTO struct {
	ID                  string                `json:"id"`
	Name                string                `json:"name"`
	MaxStorageBytes     int64                 `json:"max_storage_bytes"`
	CurrentStorageBytes int64                 `json:"current_storage_bytes"`
	Settings            drive.ProjectSettings `json:"settings"`
	CreatedBy           string                `json:"created_by"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

func toNodeDTO(node *drive.Node) (*NodeDTO, error) {
	if node == nil {
		return nil, nil
	}
	dto := &NodeDTO{}
	if err := copier.Copy(dto, node); err != nil {
		return nil, err
	}
	dto.Retired = node.IsRetired()
	dto.HasPassword = node.SharePassword != ""
	return dto, nil
}

func toNodeDTOs(nodes []drive.Node) ([]*NodeDTO, error) {
	out := make([]*NodeDTO, 0, len(nodes))
	for i := range nodes {
		dto, err := toNodeDTO(&nodes[i])
		if err != nil {
			return nil, err
		}
		out = append(out, dto)
	}
	return out, nil
}

func toProjectDTO(project *drive.Project) (*ProjectDTO, error) {
	dto := &ProjectDTO{}
	if err := copier.Copy(dto, project); err != nil {
		return nil, err
	}
	return dto, nil
}

func toProjectDTOs(projects []drive.Project) ([]*ProjectDTO, error) {
	out := make([]*ProjectDTO, 0, len(projects))
	for i := range projects {
		dto, err := toProjectDTO(&projects[i])
		if err != nil {
			return nil, err
		}
		out = append(out, dto)
	}
	return out, nil
}

type createProjectRequest struct {
	Name            string `json:"name" binding:"required"`
	MaxStorageBytes *int64 `json:"max_storage_bytes"`
}

type updateProjectRequest struct {
	Settings        *drive.ProjectSettings `json:"settings"`
	MaxStorageBytes *int64                 `json:"max_storage_bytes"`
}

type addMemberRequest struct {
	Email string `json:"email" binding:"required"`
}

type createFolderRequest struct {
	ParentID *string `json:"parent_id"`
	Name     string  `json:"name" binding:"required"`
}

type writeRequest struct {
	ParentID    *string `json:"parent_id"`
	Filename    string  `json:"filename" binding:"required"`
	Size        int64   `json:"size"`
	ContentType string  `json:"content_type"`
	Resolution  string  `json:"resolution"`
}

type commitRequest struct {
	writeRequest
	BlobKey string `json:"blob_key" binding:"required"`
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

type moveRequest struct {
	ParentID *string `json:"parent_id"`
}

type sharingRequest struct {
	Scope    drive.SharingScope `json:"scope" binding:"required"`
	Password string             `json:"password"`
}

type retentionRequest struct {
	ParentID *string `json:"parent_id"`
	Filename string  `json:"filename" binding:"required"`
	Limit    *int    `json:"limit"`
}

type uploadTicketResponse struct {
	Plan      drive.WritePlan `json:"plan"`
	BlobKey   string          `json:"blob_key,omitempty"`
	UploadURL string          `json:"upload_url,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

type commitResponse struct {
	Plan drive.WritePlan `json:"plan"`
	Node *NodeDTO        `json:"node,omitempty"`
}

type treeResponse struct {
	ProjectID   string             `json:"project_id"`
	FolderID    *string            `json:"folder_id"`
	Breadcrumbs []drive.Breadcrumb `json:"breadcrumbs"`
	Nodes       []*NodeDTO         `json:"nodes"`
}

type deleteResponse struct {
	NodeID     string `json:"node_id"`
	JobID      int64  `json:"job_id"`
	FreedBytes int64  `json:"freed_bytes"`
	Inline     bool   `json:"inline"`
}

type retentionResponse struct {
	Retired    []int `json:"retired"`
	FreedBytes int64 `json:"freed_bytes"`
}

type reconcileResponse struct {
	ProjectID           string `json:"project_id"`
	CurrentStorageBytes int64  `json:"current_storage_bytes"`
}
