package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cartonstore/carton/internal/config"
	s3err "github.com/cartonstore/carton/internal/errors"
	"github.com/cartonstore/carton/internal/store"
	"github.com/cartonstore/carton/internal/xmlutil"
)

// ObjectHandler contains handlers for the object-level operations.
type ObjectHandler struct {
	store *store.Store
	owner string
	site  config.WebsiteConfig
}

// NewObjectHandler creates an ObjectHandler with the given dependencies.
func NewObjectHandler(s *store.Store, owner string, site config.WebsiteConfig) *ObjectHandler {
	return &ObjectHandler{store: s, owner: owner, site: site}
}

// GetObject handles GET /{bucket}/{key}. ACL queries get the canned policy.
// A miss runs the static-site decision chain; a hit evaluates conditional
// headers, then streams the body, partial when a satisfiable Range applied.
func (h *ObjectHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	bucket := extractBucketName(r)
	key := extractObjectKey(r)

	if r.URL.Query().Has("acl") {
		xmlutil.WriteXML(w, http.StatusOK, xmlutil.BuildAcl(h.owner))
		return
	}

	// Load metadata first; the range needs the size to resolve suffix forms.
	meta, err := h.store.HeadObject(bucket, key)
	if err != nil {
		if err == store.ErrObjectNotFound {
			serveKeyMiss(w, r, h.store, bucket, key, h.site)
			return
		}
		slog.Error("loading object", "bucket", bucket, "key", key, "error", err)
		xmlutil.RenderError(w, r, s3err.ErrInternalError)
		return
	}

	if notModified(r, meta) {
		w.Header().Set("ETag", `"`+meta.MD5+`"`)
		w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(meta.ModifiedDate))
		w.WriteHeader(http.StatusNotModified)
		return
	}

	rng := parseRange(r.Header.Get("Range"), meta.Size)
	obj, body, err := h.store.GetObject(bucket, key, rng)
	if err != nil {
		if err == store.ErrObjectNotFound {
			serveKeyMiss(w, r, h.store, bucket, key, h.site)
			return
		}
		slog.Error("opening object", "bucket", bucket, "key", key, "error", err)
		xmlutil.RenderError(w, r, s3err.ErrInternalError)
		return
	}

	// An unsatisfiable range came back as a nil effective window; serve the
	// full body with 200 in that case.
	if obj.Range != nil {
		defer body.Close()
		setObjectResponseHeaders(w, obj)
		length := obj.Range.End - obj.Range.Start + 1
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", obj.Range.Start, obj.Range.End, obj.Size))
		w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
		w.WriteHeader(http.StatusPartialContent)
		io.Copy(w, body)
		return
	}

	serveObjectBody(w, obj, body, http.StatusOK)
}

// HeadObject handles HEAD /{bucket}/{key}: the GET headers without the body.
func (h *ObjectHandler) HeadObject(w http.ResponseWriter, r *http.Request) {
	bucket := extractBucketName(r)
	key := extractObjectKey(r)

	obj, err := h.store.HeadObject(bucket, key)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if notModified(r, obj) {
		w.Header().Set("ETag", `"`+obj.MD5+`"`)
		w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(obj.ModifiedDate))
		w.WriteHeader(http.StatusNotModified)
		return
	}

	setObjectResponseHeaders(w, obj)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.WriteHeader(http.StatusOK)
}

// PutObject handles PUT /{bucket}/{key}: a copy when x-amz-copy-source is
// present, a streaming upload otherwise.
func (h *ObjectHandler) PutObject(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("x-amz-copy-source") != "" {
		h.copyObject(w, r)
		return
	}

	bucket := extractBucketName(r)
	key := extractObjectKey(r)

	obj, err := h.store.PutObject(bucket, key, r.Body, extractMeta(r))
	if err != nil {
		slog.Error("storing object", "bucket", bucket, "key", key, "error", err)
		xmlutil.RenderError(w, r, s3err.ErrInternalError)
		return
	}

	slog.Info("object stored", "bucket", bucket, "key", key, "size", obj.Size)
	w.Header().Set("ETag", `"`+obj.MD5+`"`)
	w.WriteHeader(http.StatusOK)
}

// PostObject handles POST /{bucket}/{key} (form-style upload). The body is
// stored as-is, like a PUT upload.
func (h *ObjectHandler) PostObject(w http.ResponseWriter, r *http.Request) {
	bucket := extractBucketName(r)
	key := extractObjectKey(r)

	obj, err := h.store.PutObject(bucket, key, r.Body, extractMeta(r))
	if err != nil {
		slog.Error("storing object", "bucket", bucket, "key", key, "error", err)
		xmlutil.RenderError(w, r, s3err.ErrInternalError)
		return
	}

	w.Header().Set("ETag", `"`+obj.MD5+`"`)
	w.WriteHeader(http.StatusOK)
}

// copyObject implements PUT /{bucket}/{key} with x-amz-copy-source. The
// source bucket and key are verified before the copy; metadata is replaced
// only under x-amz-metadata-directive: REPLACE.
func (h *ObjectHandler) copyObject(w http.ResponseWriter, r *http.Request) {
	dstBucket := extractBucketName(r)
	dstKey := extractObjectKey(r)

	srcBucket, srcKey, ok := parseCopySource(r.Header.Get("x-amz-copy-source"))
	if !ok {
		xmlutil.RenderError(w, r, s3err.ErrNoSuchKey)
		return
	}

	if _, err := h.store.GetBucket(srcBucket); err != nil {
		xmlutil.RenderError(w, r, s3err.ErrNoSuchBucket)
		return
	}
	exists, err := h.store.GetObjectExists(srcBucket, srcKey)
	if err != nil {
		slog.Error("checking copy source", "bucket", srcBucket, "key", srcKey, "error", err)
		xmlutil.RenderError(w, r, s3err.ErrInternalError)
		return
	}
	if !exists {
		xmlutil.RenderError(w, r, s3err.ErrNoSuchKey)
		return
	}

	replace := strings.EqualFold(r.Header.Get("x-amz-metadata-directive"), "REPLACE")

	obj, err := h.store.CopyObject(store.CopySpec{
		SrcBucket:       srcBucket,
		SrcKey:          srcKey,
		DstBucket:       dstBucket,
		DstKey:          dstKey,
		ReplaceMetadata: replace,
		NewMeta:         extractMeta(r),
	})
	if err != nil {
		if err == store.ErrObjectNotFound {
			xmlutil.RenderError(w, r, s3err.ErrNoSuchKey)
			return
		}
		slog.Error("copying object", "src", srcBucket+"/"+srcKey, "dst", dstBucket+"/"+dstKey, "error", err)
		xmlutil.RenderError(w, r, s3err.ErrInternalError)
		return
	}

	slog.Info("object copied", "src", srcBucket+"/"+srcKey, "dst", dstBucket+"/"+dstKey)
	xmlutil.WriteXML(w, http.StatusOK, xmlutil.BuildCopyObject(obj.MD5, obj.ModifiedDate))
}

// DeleteObject handles DELETE /{bucket}/{key}. Deleting a missing object is
// a NoSuchKey error.
func (h *ObjectHandler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	bucket := extractBucketName(r)
	key := extractObjectKey(r)

	if err := h.store.DeleteObject(bucket, key); err != nil {
		if err == store.ErrObjectNotFound {
			xmlutil.RenderError(w, r, s3err.ErrNoSuchKey)
			return
		}
		slog.Error("deleting object", "bucket", bucket, "key", key, "error", err)
		xmlutil.RenderError(w, r, s3err.ErrInternalError)
		return
	}

	slog.Info("object deleted", "bucket", bucket, "key", key)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteObjects handles POST /{bucket}?delete. The batch runs in two phases:
// every key's existence is verified before anything is removed, then the keys
// are deleted in document order. A miss in phase one aborts the whole batch;
// a failure in phase two leaves earlier deletions in place.
func (h *ObjectHandler) DeleteObjects(w http.ResponseWriter, r *http.Request) {
	bucket := extractBucketName(r)

	var req xmlutil.DeleteRequest
	if err := xmlDecode(r.Body, &req); err != nil {
		slog.Error("parsing batch delete body", "bucket", bucket, "error", err)
		xmlutil.RenderError(w, r, s3err.ErrInternalError)
		return
	}

	keys := make([]string, 0, len(req.Objects))
	for _, obj := range req.Objects {
		keys = append(keys, obj.Key)
	}

	// Phase one: verify every key before deleting anything.
	for _, key := range keys {
		exists, err := h.store.GetObjectExists(bucket, key)
		if err != nil {
			slog.Error("checking batch delete key", "bucket", bucket, "key", key, "error", err)
			xmlutil.RenderError(w, r, s3err.ErrInternalError)
			return
		}
		if !exists {
			xmlutil.RenderKeyError(w, r, s3err.ErrNoSuchKey, key)
			return
		}
	}

	// Phase two: delete in document order.
	for _, key := range keys {
		if err := h.store.DeleteObject(bucket, key); err != nil {
			slog.Error("batch deleting object", "bucket", bucket, "key", key, "error", err)
			xmlutil.RenderError(w, r, s3err.ErrInternalError)
			return
		}
	}

	slog.Info("batch delete complete", "bucket", bucket, "count", len(keys))
	xmlutil.WriteXML(w, http.StatusOK, xmlutil.BuildObjectsDeleted(keys))
}
