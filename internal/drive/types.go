package drive

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NodeType describes whether a node is a folder or a file version.
type NodeType string

const (
	// NodeTypeFolder is a container node.
	NodeTypeFolder NodeType = "FOLDER"
	// NodeTypeFile is one version of a logical file.
	NodeTypeFile NodeType = "FILE"
)

// NodeStatus is the lifecycle state of a node.
type NodeStatus string

const (
	StatusActive         NodeStatus = "ACTIVE"
	StatusTrashed        NodeStatus = "TRASHED"
	StatusDeletedPending NodeStatus = "DELETED_PENDING"
)

// SharingScope controls anonymous visibility of a node.
type SharingScope string

const (
	SharingPrivate SharingScope = "PRIVATE"
	SharingPublic  SharingScope = "PUBLIC"
)

// Resolution is the caller's answer to a filename conflict.
type Resolution string

const (
	// ResolutionNone means the caller has not decided yet.
	ResolutionNone Resolution = ""
	// ResolutionUpdate keeps history and appends a new version.
	ResolutionUpdate Resolution = "update"
	// ResolutionOverwrite replaces the latest version in place.
	ResolutionOverwrite Resolution = "overwrite"
)

// ParseResolution validates a resolution coming from an API boundary.
func ParseResolution(raw string) (Resolution, error) {
	switch Resolution(strings.ToLower(strings.TrimSpace(raw))) {
	case ResolutionNone:
		return ResolutionNone, nil
	case ResolutionUpdate:
		return ResolutionUpdate, nil
	case ResolutionOverwrite:
		return ResolutionOverwrite, nil
	default:
		return ResolutionNone, errInvalid("unknown conflict resolution")
	}
}

// Decision is the outcome of write planning.
type Decision string

const (
	DecisionCreate     Decision = "CREATE"
	DecisionNewVersion Decision = "NEW_VERSION"
	DecisionOverwrite  Decision = "OVERWRITE"
	DecisionConflict   Decision = "CONFLICT"
)

// Identity is the authenticated caller.
type Identity struct {
	Email string
	Name  string
}

// Anonymous reports whether no identity was presented.
func (i Identity) Anonymous() bool {
	return strings.TrimSpace(i.Email) == ""
}

// ProjectRef identifies a project either by id or by human name.
type ProjectRef struct {
	id   string
	name string
}

// ProjectByID builds a reference from a canonical id.
func ProjectByID(id string) ProjectRef {
	return ProjectRef{id: id}
}

// ProjectByName builds a reference from a display name.
func ProjectByName(name string) ProjectRef {
	return ProjectRef{name: name}
}

// ParseProjectRef classifies a raw reference once at the API boundary.
func ParseProjectRef(raw string) ProjectRef {
	trimmed := strings.TrimSpace(raw)
	if parsed, err := uuid.Parse(trimmed); err == nil {
		return ProjectByID(parsed.String())
	}
	return ProjectByName(trimmed)
}

// ID returns the id and whether the reference is id-based.
func (r ProjectRef) ID() (string, bool) {
	return r.id, r.id != ""
}

// Name returns the name and whether the reference is name-based.
func (r ProjectRef) Name() (string, bool) {
	return r.name, r.id == "" && r.name != ""
}

// String renders the reference for logs.
func (r ProjectRef) String() string {
	if r.id != "" {
		return "id:" + r.id
	}
	return "name:" + r.name
}

// Breadcrumb is one folder in a resolved path.
type Breadcrumb struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ResolvedPath is the result of path resolution.
type ResolvedPath struct {
	ProjectID   string
	FolderID    *string
	Breadcrumbs []Breadcrumb
}

// FolderPath joins breadcrumb names with slashes.
func (r ResolvedPath) FolderPath() string {
	names := make([]string, 0, len(r.Breadcrumbs))
	for _, crumb := range r.Breadcrumbs {
		names = append(names, crumb.Name)
	}
	return strings.Join(names, "/")
}

// ConflictInfo describes the existing latest version when a write collides.
type ConflictInfo struct {
	LatestVersion  int        `json:"latest_version"`
	LatestNodeID   string     `json:"latest_node_id"`
	LatestStatus   NodeStatus `json:"latest_status"`
	Owner          string     `json:"owner"`
	IsOwnerOrAdmin bool       `json:"is_owner_or_admin"`
}

// WriteRequest describes an incoming write into a folder.
type WriteRequest struct {
	ProjectID   string
	ParentID    *string
	Filename    string
	Size        int64
	ContentType string
	Resolution  Resolution
}

// WritePlan is the decision produced by PlanWrite.
type WritePlan struct {
	Decision        Decision      `json:"decision"`
	TargetVersion   int           `json:"target_version"`
	OverwriteNodeID string        `json:"overwrite_node_id,omitempty"`
	SizeDelta       int64         `json:"size_delta"`
	Conflict        *ConflictInfo `json:"conflict,omitempty"`

	previous *Node
}

// UploadTicket is returned when an upload is prepared.
type UploadTicket struct {
	Plan      WritePlan
	BlobKey   string
	UploadURL string
	ExpiresAt time.Time
}

// CommitRequest finalizes a write once the blob has been uploaded.
type CommitRequest struct {
	WriteRequest
	BlobKey string
}

// CommitResult is the outcome of CommitWrite.
type CommitResult struct {
	Plan WritePlan
	Node *Node
}

// DeleteResult is returned by PermanentlyDelete.
type DeleteResult struct {
	NodeID     string
	JobID      int64
	FreedBytes int64
	Inline     bool
}

// RetentionResult summarizes one retention sweep.
type RetentionResult struct {
	Retired    []int
	FreedBytes int64
}
