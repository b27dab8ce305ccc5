package drive

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestCommitWriteRejectsMissingBlob verifies no row is written for an absent blob.
func TestCommitWriteRejectsMissingBlob(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Docs", 0)
	ctx := context.Background()

	req := WriteRequest{ProjectID: project.ID, Filename: "a.txt", Size: 4}
	ticket, err := env.svc.PrepareUpload(ctx, ownerID, req)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ticket.BlobKey, "projects/docs/"))
	require.Contains(t, ticket.BlobKey, "_v1_a.txt")
	require.NotEmpty(t, ticket.UploadURL)

	_, err = env.svc.CommitWrite(ctx, ownerID, CommitRequest{WriteRequest: req, BlobKey: ticket.BlobKey})
	require.True(t, IsCode(err, ErrCodeBlobIntegrity))

	var count int64
	require.NoError(t, env.db.Model(&Node{}).Count(&count).Error)
	require.Zero(t, count)
	require.Zero(t, env.storage(t, project.ID))
}

// TestCommitWriteRejectsSizeMismatch verifies the head check compares sizes.
func TestCommitWriteRejectsSizeMismatch(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Docs", 0)
	ctx := context.Background()

	req := WriteRequest{ProjectID: project.ID, Filename: "a.txt", Size: 4}
	ticket, err := env.svc.PrepareUpload(ctx, ownerID, req)
	require.NoError(t, err)
	require.NoError(t, env.blobs.Put(ctx, ticket.BlobKey, bytes.NewReader([]byte("abc")), 3, "text/plain"))

	_, err = env.svc.CommitWrite(ctx, ownerID, CommitRequest{WriteRequest: req, BlobKey: ticket.BlobKey})
	require.True(t, IsCode(err, ErrCodeBlobIntegrity))
}

// TestCommitWriteTwoPhase covers the presigned upload flow end to end.
func TestCommitWriteTwoPhase(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Docs", 0)
	ctx := context.Background()

	req := WriteRequest{ProjectID: project.ID, Filename: "a.txt", Size: 4}
	ticket, err := env.svc.PrepareUpload(ctx, memberID, req)
	require.NoError(t, err)
	require.NoError(t, env.blobs.Put(ctx, ticket.BlobKey, bytes.NewReader([]byte("abcd")), 4, "text/plain"))

	result, err := env.svc.CommitWrite(ctx, memberID, CommitRequest{WriteRequest: req, BlobKey: ticket.BlobKey})
	require.NoError(t, err)
	require.Equal(t, DecisionCreate, result.Plan.Decision)
	require.Equal(t, testMember, result.Node.OwnerEmail)
	require.Equal(t, "text/plain", result.Node.ContentType)
	require.Equal(t, ticket.BlobKey, *result.Node.BlobKey)

	// the same key cannot be committed twice
	_, err = env.svc.CommitWrite(ctx, memberID, CommitRequest{
		WriteRequest: WriteRequest{ProjectID: project.ID, Filename: "b.txt", Size: 4},
		BlobKey:      ticket.BlobKey,
	})
	require.True(t, IsCode(err, ErrCodeInvalidArgument))
}

// TestCommitWriteRejectsForeignKey verifies client-chosen keys are refused.
func TestCommitWriteRejectsForeignKey(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Docs", 0)
	ctx := context.Background()

	require.NoError(t, env.blobs.Put(ctx, "elsewhere/a.txt", bytes.NewReader([]byte("abcd")), 4, ""))
	_, err := env.svc.CommitWrite(ctx, ownerID, CommitRequest{
		WriteRequest: WriteRequest{ProjectID: project.ID, Filename: "a.txt", Size: 4},
		BlobKey:      "elsewhere/a.txt",
	})
	require.True(t, IsCode(err, ErrCodeInvalidArgument))
}

// TestPrepareUploadQuotaExceeded verifies the cap is checked before any blob work.
func TestPrepareUploadQuotaExceeded(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Docs", 10)
	env.upload(t, ownerID, project.ID, nil, "a.txt", 8, ResolutionNone)

	_, err := env.svc.PrepareUpload(context.Background(), ownerID, WriteRequest{ProjectID: project.ID, Filename: "b.txt", Size: 3})
	require.True(t, IsCode(err, ErrCodeQuotaExceeded))

	// shrinking overwrite is always allowed
	result := env.upload(t, ownerID, project.ID, nil, "a.txt", 2, ResolutionOverwrite)
	require.Equal(t, DecisionOverwrite, result.Plan.Decision)
	require.Equal(t, int64(2), env.storage(t, project.ID))
}

// TestCommitWriteReadOnlyProject verifies read-only projects only accept admin writes.
func TestCommitWriteReadOnlyProject(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Docs", 0)
	ctx := context.Background()

	_, err := env.svc.UpdateProject(ctx, ownerID, project.ID, ProjectUpdate{Settings: &ProjectSettings{ReadOnly: true}})
	require.NoError(t, err)

	_, err = env.svc.PrepareUpload(ctx, ownerID, WriteRequest{ProjectID: project.ID, Filename: "a.txt", Size: 1})
	require.True(t, IsCode(err, ErrCodeForbidden))

	result := env.upload(t, adminID, project.ID, nil, "a.txt", 1, ResolutionNone)
	require.Equal(t, DecisionCreate, result.Plan.Decision)
}

// TestCommitWriteNoDanglingRow verifies every referenced key exists after commits.
func TestCommitWriteNoDanglingRow(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Docs", 0)
	docs := env.folder(t, project.ID, nil, "docs")

	env.upload(t, ownerID, project.ID, nil, "a.txt", 5, ResolutionNone)
	env.upload(t, ownerID, project.ID, nil, "a.txt", 6, ResolutionUpdate)
	env.upload(t, ownerID, project.ID, nil, "a.txt", 2, ResolutionOverwrite)
	env.upload(t, memberID, project.ID, &docs.ID, "b.txt", 7, ResolutionNone)

	var nodes []Node
	require.NoError(t, env.db.Where("blob_key IS NOT NULL").Find(&nodes).Error)
	require.Len(t, nodes, 3)
	for _, node := range nodes {
		info, err := env.blobs.Head(context.Background(), *node.BlobKey)
		require.NoError(t, err)
		require.Equal(t, node.Size, info.Size)
	}
	require.Equal(t, int64(5+2+7), env.storage(t, project.ID))
}

// TestUniqueIndexRejectsDuplicateVersion verifies the relational guard on versions.
func TestUniqueIndexRejectsDuplicateVersion(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Docs", 0)
	now := env.clock.Now()

	row := func() *Node {
		return &Node{
			ID:        uuid.NewString(),
			ProjectID: project.ID,
			Name:      "race.txt",
			Type:      NodeTypeFile,
			Version:   1,
			Status:    StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	require.NoError(t, env.db.Create(row()).Error)
	err := env.db.Create(row()).Error
	require.Error(t, err)
	require.True(t, isUniqueViolation(err))

	// folders are not versioned and may share a name across statuses
	folder := row()
	folder.Type = NodeTypeFolder
	require.NoError(t, env.db.Create(folder).Error)
}

// TestCommitWriteNotifies verifies activity events are emitted when enabled.
func TestCommitWriteNotifies(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Docs", 0)
	ctx := context.Background()

	env.upload(t, ownerID, project.ID, nil, "quiet.txt", 1, ResolutionNone)
	require.Empty(t, env.notifier.kinds())

	_, err := env.svc.UpdateProject(ctx, ownerID, project.ID, ProjectUpdate{Settings: &ProjectSettings{NotifyOnActivity: true}})
	require.NoError(t, err)
	result := env.upload(t, ownerID, project.ID, nil, "loud.txt", 1, ResolutionNone)
	_, err = env.svc.TrashNode(ctx, ownerID, result.Node.ID)
	require.NoError(t, err)
	env.svc.Wait()

	require.Equal(t, []EventKind{EventUploaded, EventTrashed}, env.notifier.kinds())
}

// TestCommitWriteRejectsStaleTicketVersion verifies a ticket whose key names a
// version the file has since moved past must be prepared again.
func TestCommitWriteRejectsStaleTicketVersion(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, "Docs", 0)
	ctx := context.Background()

	req := WriteRequest{ProjectID: project.ID, Filename: "a.txt", Size: 4, Resolution: ResolutionUpdate}
	ticket, err := env.svc.PrepareUpload(ctx, memberID, req)
	require.NoError(t, err)
	require.Equal(t, DecisionCreate, ticket.Plan.Decision)
	require.Contains(t, ticket.BlobKey, "_v1_a.txt")
	require.NoError(t, env.blobs.Put(ctx, ticket.BlobKey, bytes.NewReader([]byte("abcd")), 4, "text/plain"))

	// another writer lands v1 first
	env.upload(t, ownerID, project.ID, nil, "a.txt", 3, ResolutionNone)

	_, err = env.svc.CommitWrite(ctx, memberID, CommitRequest{WriteRequest: req, BlobKey: ticket.BlobKey})
	require.True(t, IsCode(err, ErrCodeDuplicateVersion), "got %v", err)
	require.Equal(t, int64(3), env.storage(t, project.ID))

	var count int64
	require.NoError(t, env.db.Model(&Node{}).Where("name = ?", "a.txt").Count(&count).Error)
	require.Equal(t, int64(1), count)

	fresh, err := env.svc.PrepareUpload(ctx, memberID, req)
	require.NoError(t, err)
	require.Contains(t, fresh.BlobKey, "_v2_a.txt")
	require.NoError(t, env.blobs.Put(ctx, fresh.BlobKey, bytes.NewReader([]byte("abcd")), 4, "text/plain"))
	result, err := env.svc.CommitWrite(ctx, memberID, CommitRequest{WriteRequest: req, BlobKey: fresh.BlobKey})
	require.NoError(t, err)
	require.Equal(t, 2, result.Node.Version)
}
