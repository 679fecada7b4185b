package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/sagarc03/strongbox"
	"github.com/sagarc03/strongbox/metrics"
)

const (
	// HeaderFileName carries the client-side file name of an upload.
	HeaderFileName = "X-File-Name"

	maxPresignMinutes = 7 * 24 * 60
)

type Service interface {
	CreateBucket(ctx context.Context, name, ownerName string) (strongbox.Bucket, error)
	DeleteBucket(ctx context.Context, name, ownerName string, cascade bool) error
	ListBuckets(ctx context.Context, ownerName string) ([]strongbox.BucketWithStats, error)
	PutObject(ctx context.Context, req strongbox.PutObject, content io.Reader) (strongbox.Object, error)
	StatObject(ctx context.Context, bucketName, key, ownerName string) (strongbox.Object, error)
	GetObject(ctx context.Context, bucketName, key, ownerName string) (strongbox.Object, io.ReadSeekCloser, error)
	DeleteObject(ctx context.Context, bucketName, key, ownerName string) error
	ListObjects(ctx context.Context, bucketName, ownerName string) ([]strongbox.Object, error)
	PresignObject(ctx context.Context, bucketName, key, ownerName string, expiryMinutes int) (string, error)
	OpenWithCapability(ctx context.Context, req strongbox.CapabilityRequest) (strongbox.StoredFile, io.ReadSeekCloser, error)
}

// HealthChecker reports whether the metadata store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type HandlerConfig struct {
	Authenticator Authenticator
	Health        HealthChecker
	Metrics       *metrics.Metrics
	MetricsPath   string
	// MaxUploadBytes bounds request bodies on upload. Zero means unlimited.
	MaxUploadBytes int64
	CORS           CORSConfig
}

// Handler provides HTTP handlers for bucket and object operations.
type Handler struct {
	config  HandlerConfig
	service Service
}

// NewHandler creates a new Handler with the given configuration and service.
func NewHandler(config *HandlerConfig, service Service) *Handler {
	return &Handler{
		config:  *config,
		service: service,
	}
}

// Router returns an http.Handler with all routes mounted. Owner routes sit
// behind the identity middleware; the presigned route is authorised by its
// capability alone.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	if h.config.Metrics != nil {
		r.Use(MetricsMiddleware(h.config.Metrics))
	}

	if h.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORS.AllowedOrigins,
			AllowedMethods:   h.config.CORS.AllowedMethods,
			AllowedHeaders:   h.config.CORS.AllowedHeaders,
			ExposedHeaders:   h.config.CORS.ExposedHeaders,
			AllowCredentials: h.config.CORS.AllowCredentials,
			MaxAge:           h.config.CORS.MaxAge,
		}))
	}

	r.Get("/healthz", h.handleHealth)

	if h.config.Metrics != nil {
		path := h.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		metrics.Register(r, path, h.config.Metrics)
	}

	r.Get(strongbox.PresignedPathPrefix+"/{bucket}/{key}", h.handlePresignedGet)

	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware(h.config.Authenticator))

		r.Get("/buckets", h.handleListBuckets)
		r.Put("/buckets/{bucket}", h.handleCreateBucket)
		r.Delete("/buckets/{bucket}", h.handleDeleteBucket)
		r.Get("/buckets/{bucket}/objects", h.handleListObjects)
		r.Get("/objects", h.handleListObjects)

		r.Put("/buckets/{bucket}/objects/{key}", h.handlePutObject)
		r.Get("/buckets/{bucket}/objects/{key}", h.handleGetObject)
		r.Head("/buckets/{bucket}/objects/{key}", h.handleHeadObject)
		r.Delete("/buckets/{bucket}/objects/{key}", h.handleDeleteObject)
		r.Post("/buckets/{bucket}/objects/{key}/presign", h.handlePresign)
	})

	return r
}

// pathParam returns a decoded route parameter. chi matches against RawPath
// when the request carries one, leaving parameters escaped.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	decoded, err := url.PathUnescape(v)
	if err != nil {
		return v
	}
	return decoded
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.config.Health != nil {
		if err := h.config.Health.Ping(r.Context()); err != nil {
			slog.Error("health check failed", "error", err)
			WriteError(w, http.StatusServiceUnavailable, "unavailable", "Metadata store unreachable")
			return
		}
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	caller := mustIdentity(r)

	buckets, err := h.service.ListBuckets(r.Context(), caller.Username)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"buckets": buckets})
}

func (h *Handler) handleCreateBucket(w http.ResponseWriter, r *http.Request) {
	caller := mustIdentity(r)

	bucket, err := h.service.CreateBucket(r.Context(), pathParam(r, "bucket"), caller.Username)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusCreated, bucket)
}

func (h *Handler) handleDeleteBucket(w http.ResponseWriter, r *http.Request) {
	caller := mustIdentity(r)

	cascade := false
	if raw := r.URL.Query().Get("cascade"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_input", "cascade must be a boolean")
			return
		}
		cascade = parsed
	}

	if err := h.service.DeleteBucket(r.Context(), pathParam(r, "bucket"), caller.Username, cascade); err != nil {
		HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListObjects(w http.ResponseWriter, r *http.Request) {
	caller := mustIdentity(r)

	objects, err := h.service.ListObjects(r.Context(), pathParam(r, "bucket"), caller.Username)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"objects": objects})
}

func (h *Handler) handlePutObject(w http.ResponseWriter, r *http.Request) {
	caller := mustIdentity(r)

	body := r.Body
	if h.config.MaxUploadBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	}

	obj, err := h.service.PutObject(r.Context(), strongbox.PutObject{
		BucketName: pathParam(r, "bucket"),
		Key:        pathParam(r, "key"),
		OwnerName:  caller.Username,
		FileName:   r.Header.Get(HeaderFileName),
	}, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "Upload exceeds size limit")
			return
		}
		HandleError(w, err)
		return
	}

	if h.config.Metrics != nil {
		h.config.Metrics.ObserveUpload(obj.Size)
	}

	_ = WriteJSON(w, http.StatusOK, obj)
}

func (h *Handler) handleGetObject(w http.ResponseWriter, r *http.Request) {
	caller := mustIdentity(r)

	obj, content, err := h.service.GetObject(r.Context(), pathParam(r, "bucket"), pathParam(r, "key"), caller.Username)
	if err != nil {
		HandleError(w, err)
		return
	}
	defer func() { _ = content.Close() }()

	setObjectHeaders(w, obj.Extension, obj.Size, obj.UpdatedAt)
	w.Header().Set("ETag", `"`+obj.Etag+`"`)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, content); err != nil {
		slog.Warn("object download interrupted", "bucket", obj.BucketName, "key", obj.Key, "error", err)
	}
}

func (h *Handler) handleHeadObject(w http.ResponseWriter, r *http.Request) {
	caller := mustIdentity(r)

	obj, err := h.service.StatObject(r.Context(), pathParam(r, "bucket"), pathParam(r, "key"), caller.Username)
	if err != nil {
		w.WriteHeader(statusFor(err))
		return
	}

	setObjectHeaders(w, obj.Extension, obj.Size, obj.UpdatedAt)
	w.Header().Set("ETag", `"`+obj.Etag+`"`)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	caller := mustIdentity(r)

	if err := h.service.DeleteObject(r.Context(), pathParam(r, "bucket"), pathParam(r, "key"), caller.Username); err != nil {
		HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PresignResponse is the body returned by the presign route.
type PresignResponse struct {
	URL            string `json:"url"`
	ExpiresMinutes int    `json:"expires_minutes,omitempty"`
}

func (h *Handler) handlePresign(w http.ResponseWriter, r *http.Request) {
	caller := mustIdentity(r)

	minutes := 0
	if raw := r.URL.Query().Get("expires_minutes"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxPresignMinutes {
			WriteError(w, http.StatusBadRequest, "invalid_input", "expires_minutes must be between 1 and 10080")
			return
		}
		minutes = parsed
	}

	link, err := h.service.PresignObject(r.Context(), pathParam(r, "bucket"), pathParam(r, "key"), caller.Username, minutes)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, PresignResponse{URL: link, ExpiresMinutes: minutes})
}

func (h *Handler) handlePresignedGet(w http.ResponseWriter, r *http.Request) {
	info, content, err := h.service.OpenWithCapability(r.Context(), strongbox.CapabilityRequest{
		Method:     r.Method,
		BucketName: pathParam(r, "bucket"),
		Key:        pathParam(r, "key"),
		Query:      r.URL.Query(),
	})
	if h.config.Metrics != nil && (err == nil || isCapabilityError(err)) {
		h.config.Metrics.ObserveCapability(err)
	}
	if err != nil {
		HandleError(w, err)
		return
	}
	defer func() { _ = content.Close() }()

	setObjectHeaders(w, strongbox.ExtensionOf(info.Key), info.Size, info.ModTime)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, content); err != nil {
		slog.Warn("presigned download interrupted", "bucket", info.BucketName, "key", info.Key, "error", err)
	}
}

func setObjectHeaders(w http.ResponseWriter, extension string, size int64, modified time.Time) {
	contentType := ""
	if extension != "" {
		contentType = mime.TypeByExtension("." + extension)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	if !modified.IsZero() {
		w.Header().Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
	}
}
