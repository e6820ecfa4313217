package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cartonstore/carton/internal/config"
	s3err "github.com/cartonstore/carton/internal/errors"
	"github.com/cartonstore/carton/internal/store"
	"github.com/cartonstore/carton/internal/xmlutil"
)

// BucketHandler contains handlers for the bucket-level operations.
type BucketHandler struct {
	store *store.Store
	owner string
	site  config.WebsiteConfig
}

// NewBucketHandler creates a BucketHandler with the given dependencies.
func NewBucketHandler(s *store.Store, owner string, site config.WebsiteConfig) *BucketHandler {
	return &BucketHandler{store: s, owner: owner, site: site}
}

// ListBuckets handles GET / and returns all buckets.
func (h *BucketHandler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.store.GetBuckets()
	if err != nil {
		slog.Error("listing buckets", "error", err)
		xmlutil.RenderError(w, r, s3err.ErrInternalError)
		return
	}

	xmlutil.WriteXML(w, http.StatusOK, xmlutil.BuildBuckets(h.owner, buckets))
}

// CreateBucket handles PUT /{bucket}. The name is validated first; creating
// an existing bucket is a conflict.
func (h *BucketHandler) CreateBucket(w http.ResponseWriter, r *http.Request) {
	name := extractBucketName(r)

	if !validateBucketName(name) {
		xmlutil.RenderError(w, r, s3err.ErrInvalidBucketName)
		return
	}

	if _, err := h.store.GetBucket(name); err == nil {
		xmlutil.RenderError(w, r, s3err.ErrBucketAlreadyExists)
		return
	}

	if err := h.store.PutBucket(name); err != nil {
		slog.Error("creating bucket", "bucket", name, "error", err)
		xmlutil.RenderError(w, r, s3err.ErrInternalError)
		return
	}

	slog.Info("bucket created", "bucket", name)
	w.Header().Set("Location", "/"+name)
	w.WriteHeader(http.StatusOK)
}

// HeadBucket handles HEAD /{bucket}. Bucket existence was already verified by
// the dispatch layer, so this is always a bare 200.
func (h *BucketHandler) HeadBucket(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// DeleteBucket handles DELETE /{bucket}. Only empty buckets can be deleted.
func (h *BucketHandler) DeleteBucket(w http.ResponseWriter, r *http.Request) {
	name := extractBucketName(r)

	if err := h.store.DeleteBucket(name); err != nil {
		switch {
		case errors.Is(err, store.ErrBucketNotFound):
			xmlutil.RenderError(w, r, s3err.ErrNoSuchBucket)
		case errors.Is(err, store.ErrBucketNotEmpty):
			xmlutil.RenderError(w, r, s3err.ErrBucketNotEmpty)
		default:
			slog.Error("deleting bucket", "bucket", name, "error", err)
			xmlutil.RenderError(w, r, s3err.ErrInternalError)
		}
		return
	}

	slog.Info("bucket deleted", "bucket", name)
	w.WriteHeader(http.StatusNoContent)
}

// GetBucket handles GET /{bucket}: in static-site mode it serves the index
// document, otherwise it lists the bucket's objects.
func (h *BucketHandler) GetBucket(w http.ResponseWriter, r *http.Request) {
	name := extractBucketName(r)

	if h.site.IndexDocument != "" {
		obj, body, err := h.store.GetObject(name, h.site.IndexDocument, nil)
		if err == nil {
			serveObjectBody(w, obj, body, http.StatusOK)
			return
		}
		if !errors.Is(err, store.ErrObjectNotFound) {
			slog.Error("loading index document", "bucket", name, "key", h.site.IndexDocument, "error", err)
			xmlutil.RenderError(w, r, s3err.ErrInternalError)
			return
		}
		serveWebsiteFallback(w, h.store, name, h.site)
		return
	}

	h.listObjects(w, r, name)
}

// listObjects parses the list query parameters and renders one listing page.
func (h *BucketHandler) listObjects(w http.ResponseWriter, r *http.Request, bucket string) {
	q := r.URL.Query()

	opts := store.ListOptions{
		Prefix:    q.Get("prefix"),
		Marker:    q.Get("marker"),
		Delimiter: q.Get("delimiter"),
		MaxKeys:   store.DefaultMaxKeys,
	}
	if mk := q.Get("max-keys"); mk != "" {
		if parsed, err := strconv.Atoi(mk); err == nil && parsed > 0 {
			opts.MaxKeys = parsed
		}
	}

	page, err := h.store.ListObjects(bucket, opts)
	if err != nil {
		slog.Error("listing objects", "bucket", bucket, "error", err)
		xmlutil.RenderError(w, r, s3err.ErrInternalError)
		return
	}

	xmlutil.WriteXML(w, http.StatusOK, xmlutil.BuildBucketQuery(bucket, opts, page))
}
