package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-drive/internal/drive"
	"github.com/Laisky/laisky-drive/library/jwt"
)

var (
	ginModeOnce sync.Once
)

func setupGinTestMode() {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.TestMode)
	})
}

const (
	adminEmail  = "admin@example.com"
	memberEmail = "member@example.com"
	strayEmail  = "stray@example.com"
)

// blobStore is an in-memory drive.BlobStore.
type blobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newBlobStore() *blobStore {
	return &blobStore{objects: map[string][]byte{}}
}

func (b *blobStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *blobStore) Head(_ context.Context, key string) (drive.BlobInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return drive.BlobInfo{}, drive.NewError(drive.ErrCodeNotFound, "blob not found", false)
	}
	return drive.BlobInfo{Size: int64(len(data))}, nil
}

func (b *blobStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, drive.NewError(drive.ErrCodeNotFound, "blob not found", false)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *blobStore) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *blobStore) Copy(_ context.Context, src, dst string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[src]
	if !ok {
		return drive.NewError(drive.ErrCodeNotFound, "blob not found", false)
	}
	b.objects[dst] = append([]byte(nil), data...)
	return nil
}

func (b *blobStore) IssueUploadURL(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://blobs.example.com/" + key, nil
}

// apiEnv is a fully wired HTTP server over sqlite.
type apiEnv struct {
	server *gin.Engine
	svc    *drive.Service
	blobs  *blobStore
	jwt    *jwt.JWT
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	setupGinTestMode()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", name, time.Now().UTC().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	blobs := newBlobStore()
	settings := drive.Settings{
		Admins: []string{adminEmail},
		Purge:  drive.PurgeSettings{Inline: true},
	}
	svc, err := drive.NewService(db, settings, blobs, nil, nil, logSDK.Shared.Named("drive_test"), nil)
	require.NoError(t, err)
	t.Cleanup(svc.Wait)

	signer, err := jwt.New([]byte("test-secret"))
	require.NoError(t, err)

	ctl := NewController(svc, nil, signer)
	return &apiEnv{
		server: NewServer(ctl, logSDK.Shared.Named("gin_test")),
		svc:    svc,
		blobs:  blobs,
		jwt:    signer,
	}
}

func (e *apiEnv) token(t *testing.T, email string) string {
	t.Helper()
	token, err := e.jwt.Sign(email, "", time.Hour, time.Now())
	require.NoError(t, err)
	return token
}

// do sends a JSON request as email; an empty email is anonymous.
func (e *apiEnv) do(t *testing.T, email, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if email != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, email))
	}

	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

// upload posts a multipart file as email.
func (e *apiEnv) upload(t *testing.T, email, project, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	buf := &bytes.Buffer{}
	form := multipart.NewWriter(buf)
	part, err := form.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, form.WriteField(k, v))
	}
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/projects/"+project+"/files", buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.token(t, email))

	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	e.svc.Wait()
	return w
}

// createProject creates a project as admin and adds memberEmail to it.
func (e *apiEnv) createProject(t *testing.T, name string) ProjectDTO {
	t.Helper()

	w := e.do(t, adminEmail, http.MethodPost, "/api/v1/projects", createProjectRequest{Name: name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var project ProjectDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &project))

	w = e.do(t, adminEmail, http.MethodPost, "/api/v1/projects/"+project.ID+"/members", addMemberRequest{Email: memberEmail})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	return project
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
