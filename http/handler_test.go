package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sagarc03/strongbox"
	strongboxhttp "github.com/sagarc03/strongbox/http"
	"github.com/sagarc03/strongbox/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// readSeekNopCloser wraps an io.ReadSeeker to add a no-op Close method
type readSeekNopCloser struct {
	io.ReadSeeker
}

func (r readSeekNopCloser) Close() error { return nil }

func content(s string) io.ReadSeekCloser {
	return readSeekNopCloser{strings.NewReader(s)}
}

// MockService is a mock implementation of http.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) CreateBucket(ctx context.Context, name, ownerName string) (strongbox.Bucket, error) {
	args := m.Called(ctx, name, ownerName)
	return args.Get(0).(strongbox.Bucket), args.Error(1)
}

func (m *MockService) DeleteBucket(ctx context.Context, name, ownerName string, cascade bool) error {
	args := m.Called(ctx, name, ownerName, cascade)
	return args.Error(0)
}

func (m *MockService) ListBuckets(ctx context.Context, ownerName string) ([]strongbox.BucketWithStats, error) {
	args := m.Called(ctx, ownerName)
	return args.Get(0).([]strongbox.BucketWithStats), args.Error(1)
}

func (m *MockService) PutObject(ctx context.Context, req strongbox.PutObject, body io.Reader) (strongbox.Object, error) {
	args := m.Called(ctx, req, body)
	return args.Get(0).(strongbox.Object), args.Error(1)
}

func (m *MockService) StatObject(ctx context.Context, bucketName, key, ownerName string) (strongbox.Object, error) {
	args := m.Called(ctx, bucketName, key, ownerName)
	return args.Get(0).(strongbox.Object), args.Error(1)
}

func (m *MockService) GetObject(ctx context.Context, bucketName, key, ownerName string) (strongbox.Object, io.ReadSeekCloser, error) {
	args := m.Called(ctx, bucketName, key, ownerName)
	if args.Get(1) == nil {
		return args.Get(0).(strongbox.Object), nil, args.Error(2)
	}
	return args.Get(0).(strongbox.Object), args.Get(1).(io.ReadSeekCloser), args.Error(2)
}

func (m *MockService) DeleteObject(ctx context.Context, bucketName, key, ownerName string) error {
	args := m.Called(ctx, bucketName, key, ownerName)
	return args.Error(0)
}

func (m *MockService) ListObjects(ctx context.Context, bucketName, ownerName string) ([]strongbox.Object, error) {
	args := m.Called(ctx, bucketName, ownerName)
	return args.Get(0).([]strongbox.Object), args.Error(1)
}

func (m *MockService) PresignObject(ctx context.Context, bucketName, key, ownerName string, expiryMinutes int) (string, error) {
	args := m.Called(ctx, bucketName, key, ownerName, expiryMinutes)
	return args.String(0), args.Error(1)
}

func (m *MockService) OpenWithCapability(ctx context.Context, req strongbox.CapabilityRequest) (strongbox.StoredFile, io.ReadSeekCloser, error) {
	args := m.Called(ctx, req)
	if args.Get(1) == nil {
		return args.Get(0).(strongbox.StoredFile), nil, args.Error(2)
	}
	return args.Get(0).(strongbox.StoredFile), args.Get(1).(io.ReadSeekCloser), args.Error(2)
}

type stubHealth struct{ err error }

func (s stubHealth) Ping(context.Context) error { return s.err }

func newTestHandler(t *testing.T, mutate ...func(*strongboxhttp.HandlerConfig)) (http.Handler, *MockService) {
	t.Helper()
	cfg := &strongboxhttp.HandlerConfig{Authenticator: testAuth}
	for _, fn := range mutate {
		fn(cfg)
	}
	service := new(MockService)
	return strongboxhttp.NewHandler(cfg, service).Router(), service
}

func do(h http.Handler, method, target, token string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body strongboxhttp.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestHandler_OwnerRoutesRequireIdentity(t *testing.T) {
	h, service := newTestHandler(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/buckets"},
		{http.MethodPut, "/buckets/alpha"},
		{http.MethodDelete, "/buckets/alpha"},
		{http.MethodGet, "/buckets/alpha/objects"},
		{http.MethodGet, "/objects"},
		{http.MethodPut, "/buckets/alpha/objects/a.txt"},
		{http.MethodGet, "/buckets/alpha/objects/a.txt"},
		{http.MethodDelete, "/buckets/alpha/objects/a.txt"},
		{http.MethodPost, "/buckets/alpha/objects/a.txt/presign"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := do(h, rt.method, rt.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	service.AssertNotCalled(t, "ListBuckets", mock.Anything, mock.Anything)
}

func TestHandler_ListBuckets(t *testing.T) {
	h, service := newTestHandler(t)

	buckets := []strongbox.BucketWithStats{{
		Bucket:      strongbox.Bucket{ID: uuid.New(), Name: "alpha", OwnerName: "alice"},
		BucketStats: strongbox.BucketStats{FileCount: 2, SizeBytes: 30},
	}}
	service.On("ListBuckets", mock.Anything, "alice").Return(buckets, nil)

	rec := do(h, http.MethodGet, "/buckets", "alice-token", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Buckets []map[string]any `json:"buckets"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Buckets, 1)
	assert.Equal(t, "alpha", body.Buckets[0]["bucket_name"])
	assert.EqualValues(t, 2, body.Buckets[0]["file_count"])
	assert.EqualValues(t, 30, body.Buckets[0]["size_bytes"])
	service.AssertExpectations(t)
}

func TestHandler_CreateBucket(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"created", nil, http.StatusCreated},
		{"taken", strongbox.ErrAlreadyExists, http.StatusConflict},
		{"invalid name", strongbox.ErrInvalidInput, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, service := newTestHandler(t)
			service.On("CreateBucket", mock.Anything, "alpha", "alice").Return(strongbox.Bucket{Name: "alpha", OwnerName: "alice"}, tt.err)

			rec := do(h, http.MethodPut, "/buckets/alpha", "alice-token", nil)

			assert.Equal(t, tt.wantCode, rec.Code)
			service.AssertExpectations(t)
		})
	}
}

func TestHandler_DeleteBucket(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantCascade bool
		err         error
		wantCode    int
	}{
		{"plain", "", false, nil, http.StatusNoContent},
		{"cascade", "?cascade=true", true, nil, http.StatusNoContent},
		{"not empty", "", false, strongbox.ErrBucketNotEmpty, http.StatusConflict},
		{"foreign", "", false, strongbox.ErrForbidden, http.StatusForbidden},
		{"missing", "", false, strongbox.ErrNotFound, http.StatusNotFound},
		{"files left behind", "?cascade=1", true, strongbox.ErrStorage, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, service := newTestHandler(t)
			service.On("DeleteBucket", mock.Anything, "alpha", "alice", tt.wantCascade).Return(tt.err)

			rec := do(h, http.MethodDelete, "/buckets/alpha"+tt.query, "alice-token", nil)

			assert.Equal(t, tt.wantCode, rec.Code)
			service.AssertExpectations(t)
		})
	}
}

func TestHandler_DeleteBucket_BadCascade(t *testing.T) {
	h, service := newTestHandler(t)

	rec := do(h, http.MethodDelete, "/buckets/alpha?cascade=maybe", "alice-token", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	service.AssertNotCalled(t, "DeleteBucket", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_ListObjects(t *testing.T) {
	h, service := newTestHandler(t)

	service.On("ListObjects", mock.Anything, "alpha", "alice").Return([]strongbox.Object{{Key: "a.txt"}}, nil)
	service.On("ListObjects", mock.Anything, "", "alice").Return([]strongbox.Object{{Key: "a.txt"}, {Key: "b.txt"}}, nil)
	service.On("ListObjects", mock.Anything, "beta", "alice").Return([]strongbox.Object(nil), strongbox.ErrForbidden)

	rec := do(h, http.MethodGet, "/buckets/alpha/objects", "alice-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"object_key":"a.txt"`)

	rec = do(h, http.MethodGet, "/objects", "alice-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"object_key":"b.txt"`)

	rec = do(h, http.MethodGet, "/buckets/beta/objects", "alice-token", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_PutObject(t *testing.T) {
	m := metrics.New()
	h, service := newTestHandler(t, func(c *strongboxhttp.HandlerConfig) { c.Metrics = m })

	service.On("PutObject", mock.Anything, strongbox.PutObject{
		BucketName: "alpha",
		Key:        "report.csv",
		OwnerName:  "alice",
		FileName:   "Q3 report.csv",
	}, mock.Anything).Return(strongbox.Object{BucketName: "alpha", Key: "report.csv", Size: 10, DownloadURL: "https://x/presigned/alpha/report.csv?sig"}, nil)

	req := httptest.NewRequest(http.MethodPut, "/buckets/alpha/objects/report.csv", strings.NewReader("0123456789"))
	req.Header.Set("Authorization", "Bearer alice-token")
	req.Header.Set(strongboxhttp.HeaderFileName, "Q3 report.csv")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"download_url"`)
	service.AssertExpectations(t)

	mrec := do(h, http.MethodGet, "/metrics", "", nil)
	assert.Contains(t, mrec.Body.String(), "strongbox_upload_bytes_total 10")
	assert.Contains(t, mrec.Body.String(), `route="/buckets/{bucket}/objects/{key}"`)
}

func TestHandler_PutObject_TooLarge(t *testing.T) {
	h, service := newTestHandler(t, func(c *strongboxhttp.HandlerConfig) { c.MaxUploadBytes = 4 })

	var readErr error
	service.On("PutObject", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			_, readErr = io.ReadAll(args.Get(2).(io.Reader))
		}).
		Return(strongbox.Object{}, &http.MaxBytesError{Limit: 4})

	rec := do(h, http.MethodPut, "/buckets/alpha/objects/big.bin", "alice-token", strings.NewReader("0123456789"))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var tooLarge *http.MaxBytesError
	assert.ErrorAs(t, readErr, &tooLarge)
}

func TestHandler_GetObject(t *testing.T) {
	h, service := newTestHandler(t)

	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	obj := strongbox.Object{BucketName: "alpha", Key: "report.json", Extension: "json", Size: 10, Etag: "abc", UpdatedAt: updated}
	service.On("GetObject", mock.Anything, "alpha", "report.json", "alice").Return(obj, content("0123456789"), nil)
	service.On("GetObject", mock.Anything, "alpha", "report.json", "bob").Return(strongbox.Object{}, nil, strongbox.ErrForbidden)
	service.On("GetObject", mock.Anything, "alpha", "missing.txt", "alice").Return(strongbox.Object{}, nil, strongbox.ErrNotFound)

	rec := do(h, http.MethodGet, "/buckets/alpha/objects/report.json", "alice-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0123456789", rec.Body.String())
	assert.Equal(t, "10", rec.Header().Get("Content-Length"))
	assert.Equal(t, `"abc"`, rec.Header().Get("ETag"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, updated.Format(http.TimeFormat), rec.Header().Get("Last-Modified"))

	rec = do(h, http.MethodGet, "/buckets/alpha/objects/report.json", "bob-token", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorCode(t, rec))

	rec = do(h, http.MethodGet, "/buckets/alpha/objects/missing.txt", "alice-token", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_GetObject_IgnoresRange(t *testing.T) {
	h, service := newTestHandler(t)

	service.On("GetObject", mock.Anything, "alpha", "a.bin", "alice").Return(strongbox.Object{Key: "a.bin", Size: 6}, content("abcdef"), nil)

	req := httptest.NewRequest(http.MethodGet, "/buckets/alpha/objects/a.bin", nil)
	req.Header.Set("Authorization", "Bearer alice-token")
	req.Header.Set("Range", "bytes=0-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abcdef", rec.Body.String())
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
}

func TestHandler_HeadObject(t *testing.T) {
	h, service := newTestHandler(t)

	service.On("StatObject", mock.Anything, "alpha", "a.txt", "alice").Return(strongbox.Object{Extension: "txt", Size: 3, Etag: "e"}, nil)
	service.On("StatObject", mock.Anything, "alpha", "b.txt", "alice").Return(strongbox.Object{}, strongbox.ErrNotFound)

	rec := do(h, http.MethodHead, "/buckets/alpha/objects/a.txt", "alice-token", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("Content-Length"))
	assert.Empty(t, rec.Body.String())

	rec = do(h, http.MethodHead, "/buckets/alpha/objects/b.txt", "alice-token", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHandler_DeleteObject(t *testing.T) {
	h, service := newTestHandler(t)

	service.On("DeleteObject", mock.Anything, "alpha", "a.txt", "alice").Return(nil)
	service.On("DeleteObject", mock.Anything, "alpha", "missing.txt", "alice").Return(strongbox.ErrNotFound)
	service.On("DeleteObject", mock.Anything, "alpha", "stuck.txt", "alice").Return(errors.New("metadata removed, file remains: storage failure"))

	assert.Equal(t, http.StatusNoContent, do(h, http.MethodDelete, "/buckets/alpha/objects/a.txt", "alice-token", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodDelete, "/buckets/alpha/objects/missing.txt", "alice-token", nil).Code)

	rec := do(h, http.MethodDelete, "/buckets/alpha/objects/stuck.txt", "alice-token", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "metadata removed")
}

func TestHandler_EscapedKey(t *testing.T) {
	h, service := newTestHandler(t)

	service.On("DeleteObject", mock.Anything, "alpha", "my file.txt", "alice").Return(nil)
	service.On("DeleteObject", mock.Anything, "alpha", "100%.txt", "alice").Return(nil)

	assert.Equal(t, http.StatusNoContent, do(h, http.MethodDelete, "/buckets/alpha/objects/my%20file.txt", "alice-token", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(h, http.MethodDelete, "/buckets/alpha/objects/100%25.txt", "alice-token", nil).Code)
	service.AssertExpectations(t)
}

func TestHandler_Presign(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantMinutes int
		wantCode    int
	}{
		{"default expiry", "", 0, http.StatusOK},
		{"explicit expiry", "?expires_minutes=15", 15, http.StatusOK},
		{"zero", "?expires_minutes=0", 0, http.StatusBadRequest},
		{"negative", "?expires_minutes=-5", 0, http.StatusBadRequest},
		{"not a number", "?expires_minutes=soon", 0, http.StatusBadRequest},
		{"too long", "?expires_minutes=20000", 0, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, service := newTestHandler(t)
			service.On("PresignObject", mock.Anything, "alpha", "a.txt", "alice", tt.wantMinutes).Return("https://files.example.com/presigned/alpha/a.txt?signature=x", nil)

			rec := do(h, http.MethodPost, "/buckets/alpha/objects/a.txt/presign"+tt.query, "alice-token", nil)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				var body strongboxhttp.PresignResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Contains(t, body.URL, "/presigned/alpha/a.txt")
				service.AssertExpectations(t)
			} else {
				service.AssertNotCalled(t, "PresignObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestHandler_PresignedGet(t *testing.T) {
	m := metrics.New()
	h, service := newTestHandler(t, func(c *strongboxhttp.HandlerConfig) { c.Metrics = m })

	query := url.Values{
		strongbox.ParamAccessKeyID: {"AKIATEST"},
		strongbox.ParamExpires:     {"1700000000"},
		strongbox.ParamSignature:   {"sig"},
	}

	service.On("OpenWithCapability", mock.Anything, mock.MatchedBy(func(r strongbox.CapabilityRequest) bool {
		return r.Method == http.MethodGet && r.BucketName == "alpha" && r.Key == "report.pdf" &&
			r.Query.Get(strongbox.ParamSignature) == "sig"
	})).Return(strongbox.StoredFile{BucketName: "alpha", Key: "report.pdf", Size: 10}, content("0123456789"), nil).Once()

	rec := do(h, http.MethodGet, "/presigned/alpha/report.pdf?"+query.Encode(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0123456789", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	failures := []error{strongbox.ErrCapabilityMalformed, strongbox.ErrCapabilityInvalid, strongbox.ErrCapabilityExpired}
	for _, failure := range failures {
		service.On("OpenWithCapability", mock.Anything, mock.Anything).Return(strongbox.StoredFile{}, nil, failure).Once()

		rec := do(h, http.MethodGet, "/presigned/alpha/report.pdf?"+query.Encode(), "", nil)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "access_denied", errorCode(t, rec))
	}

	body := do(h, http.MethodGet, "/metrics", "", nil).Body.String()
	assert.Contains(t, body, `strongbox_capability_verifications_total{outcome="authorized"} 1`)
	assert.Contains(t, body, `strongbox_capability_verifications_total{outcome="expired"} 1`)
	assert.Contains(t, body, `route="/presigned/{bucket}/{key}"`)
	assert.NotContains(t, body, "report.pdf")
}

func TestHandler_PresignedGet_BodiesIdentical(t *testing.T) {
	h, service := newTestHandler(t)

	service.On("OpenWithCapability", mock.Anything, mock.Anything).Return(strongbox.StoredFile{}, nil, strongbox.ErrCapabilityExpired).Once()
	expired := do(h, http.MethodGet, "/presigned/alpha/a.txt?expires=1", "", nil)

	service.On("OpenWithCapability", mock.Anything, mock.Anything).Return(strongbox.StoredFile{}, nil, strongbox.ErrCapabilityInvalid).Once()
	forged := do(h, http.MethodGet, "/presigned/alpha/a.txt?expires=1", "", nil)

	assert.Equal(t, expired.Code, forged.Code)
	assert.True(t, bytes.Equal(expired.Body.Bytes(), forged.Body.Bytes()))
}

func TestHandler_Health(t *testing.T) {
	h, _ := newTestHandler(t, func(c *strongboxhttp.HandlerConfig) { c.Health = stubHealth{} })
	rec := do(h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	h, _ = newTestHandler(t, func(c *strongboxhttp.HandlerConfig) { c.Health = stubHealth{err: errors.New("down")} })
	rec = do(h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandler_CORS(t *testing.T) {
	h, _ := newTestHandler(t, func(c *strongboxhttp.HandlerConfig) {
		c.CORS = strongboxhttp.CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"https://app.example.com"},
			AllowedMethods: []string{http.MethodGet, http.MethodPut},
			AllowedHeaders: []string{"Authorization"},
		}
	})

	req := httptest.NewRequest(http.MethodOptions, "/buckets", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
