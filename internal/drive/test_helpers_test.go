package drive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testAdmin  = "admin@example.com"
	testOwner  = "owner@example.com"
	testMember = "member@example.com"
	testStray  = "stray@example.com"
)

var (
	adminID  = Identity{Email: testAdmin}
	ownerID  = Identity{Email: testOwner}
	memberID = Identity{Email: testMember}
	strayID  = Identity{Email: testStray}
)

// memoryBlob is one stored object.
type memoryBlob struct {
	data        []byte
	contentType string
}

// memoryBlobStore keeps objects in memory and records deletions.
type memoryBlobStore struct {
	mu         sync.Mutex
	objects    map[string]memoryBlob
	deletes    []string
	failDelete map[string]bool
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{objects: map[string]memoryBlob{}, failDelete: map[string]bool{}}
}

// Put stores the body.
func (m *memoryBlobStore) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryBlob{data: data, contentType: contentType}
	return nil
}

// Head reports the stored size.
func (m *memoryBlobStore) Head(_ context.Context, key string) (BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return BlobInfo{}, errors.WithStack(errNotFound("blob"))
	}
	return BlobInfo{Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

// Get opens the stored body.
func (m *memoryBlobStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, errors.WithStack(errNotFound("blob"))
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete removes the object unless a failure was injected for it.
func (m *memoryBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, key)
	if m.failDelete[key] {
		return errors.Errorf("injected delete failure for %s", key)
	}
	delete(m.objects, key)
	return nil
}

// Copy duplicates an object.
func (m *memoryBlobStore) Copy(_ context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[src]
	if !ok {
		return errors.WithStack(errNotFound("blob"))
	}
	m.objects[dst] = memoryBlob{data: append([]byte(nil), obj.data...), contentType: obj.contentType}
	return nil
}

// IssueUploadURL returns a fake presigned URL.
func (m *memoryBlobStore) IssueUploadURL(_ context.Context, key, _ string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://blobs.test/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (m *memoryBlobStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *memoryBlobStore) deleteCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletes...)
}

// recordingNotifier captures events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

// Notify records the event.
func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv bundles a service with its fakes.
type testEnv struct {
	svc      *Service
	db       *gorm.DB
	blobs    *memoryBlobStore
	notifier *recordingNotifier
	clock    *testClock
}

// newTestDB creates an in-memory sqlite database.
func newTestDB(t *testing.T) *gorm.DB {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", name, time.Now().UTC().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	return db
}

// testSettings returns settings suitable for unit tests.
func testSettings() Settings {
	return Settings{
		Bucket:                "drive-test",
		Admins:                []string{testAdmin},
		BlobDeleteConcurrency: 2,
		Purge: PurgeSettings{
			BatchSize:    10,
			RetryMax:     2,
			RetryBackoff: time.Second,
		},
	}.withDefaults()
}

// newTestEnv constructs a service with deterministic dependencies.
func newTestEnv(t *testing.T, mutate ...func(*Settings)) *testEnv {
	settings := testSettings()
	for _, fn := range mutate {
		fn(&settings)
	}
	db := newTestDB(t)
	blobs := newMemoryBlobStore()
	notifier := &recordingNotifier{}
	clock := &testClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}

	svc, err := NewService(db, settings, blobs, notifier, nil, nil, clock.Now)
	require.NoError(t, err)
	t.Cleanup(svc.Wait)

	return &testEnv{svc: svc, db: db, blobs: blobs, notifier: notifier, clock: clock}
}

// newProject creates a project owned by testOwner with testMember as member.
func (e *testEnv) newProject(t *testing.T, name string, maxBytes int64) *Project {
	ctx := context.Background()
	project, err := e.svc.CreateProject(ctx, adminID, name, &maxBytes)
	require.NoError(t, err)
	require.NoError(t, e.db.Model(&Project{}).Where("id = ?", project.ID).Update("created_by", testOwner).Error)
	require.NoError(t, e.svc.AddProjectMember(ctx, adminID, project.ID, testMember))
	project, err = getProject(ctx, e.db, project.ID)
	require.NoError(t, err)
	return project
}

// upload writes size bytes of content through the one-shot path.
func (e *testEnv) upload(t *testing.T, who Identity, projectID string, parentID *string, name string, size int, resolution Resolution) CommitResult {
	t.Helper()
	result, err := e.svc.Upload(context.Background(), who, WriteRequest{
		ProjectID:   projectID,
		ParentID:    parentID,
		Filename:    name,
		Size:        int64(size),
		ContentType: "application/octet-stream",
		Resolution:  resolution,
	}, bytes.NewReader(bytes.Repeat([]byte("x"), size)))
	require.NoError(t, err)
	e.svc.Wait()
	return result
}

// folder creates a folder as the owner.
func (e *testEnv) folder(t *testing.T, projectID string, parentID *string, name string) *Node {
	t.Helper()
	node, err := e.svc.CreateFolder(context.Background(), ownerID, projectID, parentID, name)
	require.NoError(t, err)
	return node
}

// storage returns the project's counter.
func (e *testEnv) storage(t *testing.T, projectID string) int64 {
	t.Helper()
	project, err := getProject(context.Background(), e.db, projectID)
	require.NoError(t, err)
	return project.CurrentStorageBytes
}

func strPtr(s string) *string {
	return &s
}
