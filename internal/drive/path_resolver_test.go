package drive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestResolvePathWalksSegments verifies breadcrumbs and percent-decoding.
func TestResolvePathWalksSegments(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Tree", 0)
	ctx := context.Background()

	a := env.folder(t, project.ID, nil, "a")
	b := env.folder(t, project.ID, &a.ID, "b c")

	resolved, err := env.svc.ResolvePath(ctx, ProjectByName("Tree"), SplitPath("/a/b%20c/"))
	require.NoError(t, err)
	require.Equal(t, project.ID, resolved.ProjectID)
	require.Equal(t, b.ID, *resolved.FolderID)
	require.Equal(t, []Breadcrumb{{ID: a.ID, Name: "a"}, {ID: b.ID, Name: "b c"}}, resolved.Breadcrumbs)
	require.Equal(t, "a/b c", resolved.FolderPath())

	root, err := env.svc.ResolvePath(ctx, ParseProjectRef(project.ID), nil)
	require.NoError(t, err)
	require.Nil(t, root.FolderID)
	require.Empty(t, root.Breadcrumbs)

	_, err = env.svc.ResolvePath(ctx, ProjectByID(project.ID), []string{"a", "missing"})
	require.True(t, IsCode(err, ErrCodeNotFound))

	_, err = env.svc.ResolvePath(ctx, ProjectByID(project.ID), []string{"%zz"})
	require.True(t, IsCode(err, ErrCodeInvalidArgument))

	// missing segments are never created
	var count int64
	require.NoError(t, env.db.Model(&Node{}).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

// TestResolveProjectByNamePicksEarliest verifies duplicate names resolve to the oldest project.
func TestResolveProjectByNamePicksEarliest(t *testing.T) {
	env := newTestEnv(t)
	first := env.newProject(t, "Dup", 0)
	env.clock.Advance(time.Second)
	second := env.newProject(t, "Dup", 0)
	require.NotEqual(t, first.ID, second.ID)

	project, err := env.svc.ResolveProject(context.Background(), ProjectByName("Dup"))
	require.NoError(t, err)
	require.Equal(t, first.ID, project.ID)

	_, err = env.svc.ResolveProject(context.Background(), ProjectByName("nope"))
	require.True(t, IsCode(err, ErrCodeNotFound))
}

// TestResolveFolderRejectsOtherProject verifies a folder id cannot cross project boundaries.
func TestResolveFolderRejectsOtherProject(t *testing.T) {
	env := newTestEnv(t)
	p1 := env.newProject(t, "One", 0)
	p2 := env.newProject(t, "Two", 0)
	folder := env.folder(t, p1.ID, nil, "docs")

	_, err := env.svc.ResolveFolder(context.Background(), p2.ID, &folder.ID)
	require.True(t, IsCode(err, ErrCodeInvalidArgument))

	_, err = env.svc.PlanWrite(context.Background(), ownerID, WriteRequest{ProjectID: p2.ID, ParentID: &folder.ID, Filename: "x", Size: 1})
	require.True(t, IsCode(err, ErrCodeInvalidArgument))
}

// TestParseProjectRef verifies the id/name classification.
func TestParseProjectRef(t *testing.T) {
	ref := ParseProjectRef(" 0b4f8d4e-2a1c-4f57-9d6c-3f2e2a8d9b10 ")
	id, ok := ref.ID()
	require.True(t, ok)
	require.Equal(t, "0b4f8d4e-2a1c-4f57-9d6c-3f2e2a8d9b10", id)
	_, ok = ref.Name()
	require.False(t, ok)

	ref = ParseProjectRef("Marketing")
	name, ok := ref.Name()
	require.True(t, ok)
	require.Equal(t, "Marketing", name)
	require.Equal(t, "name:Marketing", ref.String())
}
