package drive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

const mb = 1 << 20

// TestPlanWriteCreateInEmptyFolder covers a brand-new file.
func TestPlanWriteCreateInEmptyFolder(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Reports", 0)

	plan, err := env.svc.PlanWrite(context.Background(), ownerID, WriteRequest{
		ProjectID: project.ID,
		Filename:  "report.pdf",
		Size:      2 * mb,
	})
	require.NoError(t, err)
	require.Equal(t, DecisionCreate, plan.Decision)
	require.Equal(t, 1, plan.TargetVersion)
	require.Equal(t, int64(2*mb), plan.SizeDelta)

	result := env.upload(t, ownerID, project.ID, nil, "report.pdf", 2*mb, ResolutionNone)
	require.Equal(t, DecisionCreate, result.Plan.Decision)
	require.Equal(t, 1, result.Node.Version)
	require.Equal(t, int64(2*mb), env.storage(t, project.ID))
}

// TestPlanWriteConflictThenUpdate covers a second upload without and with a resolution.
func TestPlanWriteConflictThenUpdate(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Reports", 0)
	first := env.upload(t, ownerID, project.ID, nil, "report.pdf", 2*mb, ResolutionNone)

	conflict := env.upload(t, ownerID, project.ID, nil, "report.pdf", 2*mb, ResolutionNone)
	require.Equal(t, DecisionConflict, conflict.Plan.Decision)
	require.Nil(t, conflict.Node)
	require.NotNil(t, conflict.Plan.Conflict)
	require.Equal(t, 1, conflict.Plan.Conflict.LatestVersion)
	require.Equal(t, testOwner, conflict.Plan.Conflict.Owner)
	require.True(t, conflict.Plan.Conflict.IsOwnerOrAdmin)
	require.Equal(t, int64(2*mb), env.storage(t, project.ID))

	updated := env.upload(t, ownerID, project.ID, nil, "report.pdf", 2*mb, ResolutionUpdate)
	require.Equal(t, DecisionNewVersion, updated.Plan.Decision)
	require.Equal(t, 2, updated.Plan.TargetVersion)
	require.Equal(t, int64(2*mb), updated.Plan.SizeDelta)
	require.Equal(t, int64(4*mb), env.storage(t, project.ID))
	require.True(t, env.blobs.has(*first.Node.BlobKey), "old version blob must be retained")
}

// TestPlanWriteOverwriteShrinks covers an owner overwrite with a smaller file.
func TestPlanWriteOverwriteShrinks(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Reports", 0)
	first := env.upload(t, ownerID, project.ID, nil, "report.pdf", 2*mb, ResolutionNone)
	oldKey := *first.Node.BlobKey

	result := env.upload(t, ownerID, project.ID, nil, "report.pdf", 1*mb, ResolutionOverwrite)
	require.Equal(t, DecisionOverwrite, result.Plan.Decision)
	require.Equal(t, first.Node.ID, result.Plan.OverwriteNodeID)
	require.Equal(t, 1, result.Plan.TargetVersion)
	require.Equal(t, int64(-1*mb), result.Plan.SizeDelta)

	require.Equal(t, first.Node.ID, result.Node.ID)
	require.NotEqual(t, oldKey, *result.Node.BlobKey)
	require.False(t, env.blobs.has(oldKey))
	require.True(t, env.blobs.has(*result.Node.BlobKey))
	require.Equal(t, int64(1*mb), env.storage(t, project.ID))
}

// TestPlanWriteOverwriteRequiresOwner verifies members cannot overwrite others' files.
func TestPlanWriteOverwriteRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Reports", 0)
	env.upload(t, ownerID, project.ID, nil, "report.pdf", 10, ResolutionNone)

	_, err := env.svc.PlanWrite(context.Background(), memberID, WriteRequest{
		ProjectID:  project.ID,
		Filename:   "report.pdf",
		Size:       5,
		Resolution: ResolutionOverwrite,
	})
	require.True(t, IsCode(err, ErrCodeForbidden))

	plan, err := env.svc.PlanWrite(context.Background(), memberID, WriteRequest{
		ProjectID: project.ID,
		Filename:  "report.pdf",
		Size:      5,
	})
	require.NoError(t, err)
	require.False(t, plan.Conflict.IsOwnerOrAdmin)

	plan, err = env.svc.PlanWrite(context.Background(), adminID, WriteRequest{
		ProjectID:  project.ID,
		Filename:   "report.pdf",
		Size:       5,
		Resolution: ResolutionOverwrite,
	})
	require.NoError(t, err)
	require.Equal(t, DecisionOverwrite, plan.Decision)
}

// TestPlanWriteConflictIsIdempotent verifies repeated planning yields the same payload.
func TestPlanWriteConflictIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Reports", 0)
	env.upload(t, ownerID, project.ID, nil, "a.txt", 3, ResolutionNone)
	env.upload(t, ownerID, project.ID, nil, "a.txt", 4, ResolutionUpdate)

	req := WriteRequest{ProjectID: project.ID, Filename: "a.txt", Size: 9}
	first, err := env.svc.PlanWrite(context.Background(), memberID, req)
	require.NoError(t, err)
	second, err := env.svc.PlanWrite(context.Background(), memberID, req)
	require.NoError(t, err)
	require.Equal(t, DecisionConflict, first.Decision)
	require.Equal(t, *first.Conflict, *second.Conflict)
	require.Equal(t, 2, first.Conflict.LatestVersion)
}

// TestPlanWriteVersionsNeverReused verifies numbering skips versions held by pending purges.
func TestPlanWriteVersionsNeverReused(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Reports", 0)
	for i := 0; i < 3; i++ {
		resolution := ResolutionUpdate
		if i == 0 {
			resolution = ResolutionNone
		}
		env.upload(t, ownerID, project.ID, nil, "a.txt", 3, resolution)
	}

	versions, err := env.svc.ListVersions(context.Background(), ownerID, mustLatest(t, env, project.ID, "a.txt").ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	require.Equal(t, []int{3, 2, 1}, []int{versions[0].Version, versions[1].Version, versions[2].Version})

	_, err = env.svc.PermanentlyDelete(context.Background(), ownerID, versions[0].ID)
	require.NoError(t, err)

	plan, err := env.svc.PlanWrite(context.Background(), ownerID, WriteRequest{ProjectID: project.ID, Filename: "a.txt", Size: 1})
	require.NoError(t, err)
	require.Equal(t, DecisionCreate, plan.Decision)
	require.Equal(t, 4, plan.TargetVersion)
}

// TestPlanWriteRejectsBadNames verifies name validation.
func TestPlanWriteRejectsBadNames(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Reports", 0)
	for _, name := range []string{"", " lead", "..", "a/b", `a\b`} {
		_, err := env.svc.PlanWrite(context.Background(), ownerID, WriteRequest{ProjectID: project.ID, Filename: name, Size: 1})
		require.True(t, IsCode(err, ErrCodeInvalidArgument), "name %q", name)
	}
}

// TestPlanWriteRequiresMembership verifies outsiders are rejected.
func TestPlanWriteRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Reports", 0)
	_, err := env.svc.PlanWrite(context.Background(), strayID, WriteRequest{ProjectID: project.ID, Filename: "a", Size: 1})
	require.True(t, IsCode(err, ErrCodeForbidden))
	_, err = env.svc.PlanWrite(context.Background(), Identity{}, WriteRequest{ProjectID: project.ID, Filename: "a", Size: 1})
	require.True(t, IsCode(err, ErrCodeForbidden))
}

// mustLatest returns the highest version row of a root-level file.
func mustLatest(t *testing.T, env *testEnv, projectID, name string) Node {
	t.Helper()
	versions, err := listCohort(context.Background(), env.db, projectID, nil, name)
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	return versions[len(versions)-1]
}

// TestPlanWriteOverwriteTrashedLatest verifies a trashed latest version must be restored before it is overwritten.
func TestPlanWriteOverwriteTrashedLatest(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Reports", 0)
	ctx := context.Background()
	first := env.upload(t, ownerID, project.ID, nil, "report.pdf", 10, ResolutionNone)
	_, err := env.svc.TrashNode(ctx, ownerID, first.Node.ID)
	require.NoError(t, err)

	req := WriteRequest{
		ProjectID:  project.ID,
		Filename:   "report.pdf",
		Size:       5,
		Resolution: ResolutionOverwrite,
	}
	_, err = env.svc.PlanWrite(ctx, ownerID, req)
	require.True(t, IsCode(err, ErrCodeConflict), "got %v", err)

	_, err = env.svc.RestoreNode(ctx, ownerID, first.Node.ID)
	require.NoError(t, err)
	plan, err := env.svc.PlanWrite(ctx, ownerID, req)
	require.NoError(t, err)
	require.Equal(t, DecisionOverwrite, plan.Decision)
	require.Equal(t, int64(-5), plan.SizeDelta)
}
