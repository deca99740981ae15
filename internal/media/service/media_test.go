package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clipstash/clipstash-backend/internal/media/biz"
	apperrors "github.com/clipstash/clipstash-backend/internal/pkg/errors"
	"github.com/clipstash/clipstash-backend/internal/pkg/logger"
	"github.com/clipstash/clipstash-backend/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	obj  *biz.MediaObject
	fail bool
}

func (r *stubRepo) Upsert(_ context.Context, _ *biz.MediaObject) error {
	if r.fail {
		return errors.New("database unavailable")
	}
	return nil
}

func (r *stubRepo) GetByID(_ context.Context, id string) (*biz.MediaObject, error) {
	if r.fail {
		return nil, errors.New("database unavailable")
	}
	if r.obj != nil && r.obj.ID == id {
		cp := *r.obj
		return &cp, nil
	}
	return nil, nil
}

func (r *stubRepo) ListRecent(_ context.Context, _ int) ([]*biz.MediaObject, error) {
	if r.fail {
		return nil, errors.New("database unavailable")
	}
	return nil, nil
}

func (r *stubRepo) DeleteByID(_ context.Context, _ string) (bool, error) {
	if r.fail {
		return false, errors.New("database unavailable")
	}
	return false, nil
}

type stubBlobs struct {
	failStat bool
}

func (stubBlobs) ObjectKey(id, _ string) string { return "videos/" + id }
func (stubBlobs) Put(_ context.Context, key string, _ io.Reader, _ int64, _ string) (string, error) {
	return "http://blob.local/" + key, nil
}
func (stubBlobs) Exists(_ context.Context, _ string) (bool, error) { return true, nil }
func (b stubBlobs) Stat(_ context.Context, _ string) (int64, error) {
	if b.failStat {
		return 0, errors.New("storage unavailable")
	}
	return 1, nil
}
func (stubBlobs) IssueGrant(_ context.Context, key string, _ time.Duration) (string, error) {
	return "http://blob.local/presigned/" + key, nil
}
func (stubBlobs) PublicURL(key string) string { return "http://blob.local/" + key }

type stubCache struct{}

func (stubCache) Get(_ context.Context, _, _ string, _ interface{}) (bool, error) { return false, nil }
func (stubCache) Set(_ context.Context, _, _ string, _ interface{}) error         { return nil }
func (stubCache) Delete(_ context.Context, _, _ string) error                     { return nil }
func (stubCache) ClearGroup(_ context.Context, _ string) error                    { return nil }
func (stubCache) ListGroup(_ context.Context, _ string) ([]string, error)         { return nil, nil }
func (stubCache) GroupSize(_ context.Context, _ string) (int64, error)            { return 0, nil }

type stubQueue struct{}

func (stubQueue) Enqueue(_ context.Context, _ *biz.CompletionSignal) error { return nil }

func newTestRouter(t *testing.T, repo biz.MediaRepo, blobs biz.BlobStore) *gin.Engine {
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "console"})
	require.NoError(t, err)

	uc := biz.NewMediaUseCase(repo, blobs, stubCache{}, stubQueue{}, time.Minute, log)
	svc := NewMediaService(uc, stubCache{}, nil, log.GetZapLogger())

	gin.SetMode(gin.TestMode)
	router := gin.New()
	svc.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetMapsNotFound(t *testing.T) {
	router := newTestRouter(t, &stubRepo{}, stubBlobs{})

	w := doRequest(router, http.MethodGet, "/api/v1/media/no-such-id")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.ErrMediaNotFound, decodeResponse(t, w).Code)
}

func TestGetMapsPersistFailure(t *testing.T) {
	router := newTestRouter(t, &stubRepo{fail: true}, stubBlobs{})

	w := doRequest(router, http.MethodGet, "/api/v1/media/any-id")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.ErrMediaPersistFailed, decodeResponse(t, w).Code)
}

func TestListMapsPersistFailure(t *testing.T) {
	router := newTestRouter(t, &stubRepo{fail: true}, stubBlobs{})

	w := doRequest(router, http.MethodGet, "/api/v1/media")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.ErrMediaPersistFailed, decodeResponse(t, w).Code)
}

func TestCompleteUploadMapsStorageFailure(t *testing.T) {
	repo := &stubRepo{obj: &biz.MediaObject{
		ID:         "pending-1",
		Filename:   "b.webm",
		StorageKey: "videos/pending-1.webm",
	}}
	router := newTestRouter(t, repo, stubBlobs{failStat: true})

	w := doRequest(router, http.MethodPost, "/api/v1/media/pending-1/complete")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.ErrMediaStorageFailed, decodeResponse(t, w).Code)
}
