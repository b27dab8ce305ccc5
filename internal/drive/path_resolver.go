package drive

import (
	"context"
	"net/url"
	"strings"

	errors "github.com/Laisky/errors/v2"
)

// maxFolderDepth bounds parent walks so a corrupted cycle cannot spin forever.
const maxFolderDepth = 256

// ResolveProject normalizes a project reference to a project row.
func (s *Service) ResolveProject(ctx context.Context, ref ProjectRef) (*Project, error) {
	if id, ok := ref.ID(); ok {
		return getProject(ctx, s.db, id)
	}
	if name, ok := ref.Name(); ok {
		return findProjectByName(ctx, s.db, name)
	}
	return nil, errors.WithStack(errInvalid("empty project reference"))
}

// ResolvePath walks percent-encoded folder segments from the project root.
// Missing segments are reported as NOT_FOUND and are never created.
func (s *Service) ResolvePath(ctx context.Context, ref ProjectRef, segments []string) (ResolvedPath, error) {
	project, err := s.ResolveProject(ctx, ref)
	if err != nil {
		return ResolvedPath{}, err
	}

	resolved := ResolvedPath{ProjectID: project.ID, Breadcrumbs: []Breadcrumb{}}
	var parentID *string
	for _, raw := range segments {
		if raw == "" {
			continue
		}
		name, err := url.PathUnescape(raw)
		if err != nil {
			return ResolvedPath{}, errors.WithStack(errInvalid("malformed path segment"))
		}
		folder, err := findActiveFolder(ctx, s.db, project.ID, parentID, name)
		if err != nil {
			return ResolvedPath{}, err
		}
		id := folder.ID
		parentID = &id
		resolved.Breadcrumbs = append(resolved.Breadcrumbs, Breadcrumb{ID: folder.ID, Name: folder.Name})
	}
	resolved.FolderID = parentID

	return resolved, nil
}

// SplitPath splits a slash-delimited folder path into raw segments.
func SplitPath(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ResolveFolder validates that folderID is an active folder of projectID and
// returns its breadcrumb chain. A nil folderID is the project root.
func (s *Service) ResolveFolder(ctx context.Context, projectID string, folderID *string) (ResolvedPath, error) {
	resolved := ResolvedPath{ProjectID: projectID, FolderID: folderID, Breadcrumbs: []Breadcrumb{}}
	if folderID == nil {
		return resolved, nil
	}

	folder, err := getNode(ctx, s.db, *folderID)
	if err != nil {
		return ResolvedPath{}, err
	}
	if folder.Type != NodeTypeFolder || folder.Status != StatusActive {
		return ResolvedPath{}, errors.WithStack(errNotFound("folder"))
	}

	chain, err := s.ancestorChain(ctx, folder)
	if err != nil {
		return ResolvedPath{}, err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].ProjectID != projectID {
			return ResolvedPath{}, errors.WithStack(errInvalid("folder belongs to another project"))
		}
		// trashed ancestors hide a folder but only a pending purge dooms it
		if chain[i].Status == StatusDeletedPending {
			return ResolvedPath{}, errors.WithStack(errNotFound("folder"))
		}
		resolved.Breadcrumbs = append(resolved.Breadcrumbs, Breadcrumb{ID: chain[i].ID, Name: chain[i].Name})
	}

	return resolved, nil
}

// ancestorChain returns node followed by its ancestors up to the root.
func (s *Service) ancestorChain(ctx context.Context, node *Node) ([]*Node, error) {
	chain := []*Node{node}
	seen := map[string]struct{}{node.ID: {}}
	current := node
	for current.ParentID != nil {
		if len(chain) > maxFolderDepth {
			return nil, errors.New("folder chain too deep")
		}
		parent, err := getNode(ctx, s.db, *current.ParentID)
		if err != nil {
			return nil, errors.Wrapf(err, "load ancestor of %s", current.ID)
		}
		if _, dup := seen[parent.ID]; dup {
			return nil, errors.Errorf("folder cycle detected at %s", parent.ID)
		}
		if parent.ProjectID != node.ProjectID {
			return nil, errors.WithStack(errInvalid("folder chain crosses project boundary"))
		}
		seen[parent.ID] = struct{}{}
		chain = append(chain, parent)
		current = parent
	}
	return chain, nil
}
