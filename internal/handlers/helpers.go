// Package handlers implements the HTTP request handlers for the S3-compatible
// API operations: one handler per operation, translating between the wire
// protocol and the object store.
package handlers

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cartonstore/carton/internal/fs"
	"github.com/cartonstore/carton/internal/store"
	"github.com/cartonstore/carton/internal/xmlutil"
)

// bucketNameRegex validates bucket names: lowercase letters, digits, and
// dot/hyphen separated segments, 3-63 characters.
var bucketNameRegex = regexp.MustCompile(`^[a-z0-9]+([.-][-a-z0-9]+)*$`)

// validateBucketName checks whether the given name is a valid bucket name.
func validateBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	return bucketNameRegex.MatchString(name)
}

// extractBucketName extracts the bucket name from the URL path.
func extractBucketName(r *http.Request) string {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		return path[:idx]
	}
	return path
}

// extractObjectKey extracts the object key from the request URL path.
// The key is everything after the bucket name in the path.
func extractObjectKey(r *http.Request) string {
	path := strings.TrimPrefix(r.URL.Path, "/")
	idx := strings.IndexByte(path, '/')
	if idx < 0 {
		return ""
	}
	return path[idx+1:]
}

// extractUserMetadata scans request headers for x-amz-meta-* prefixed headers
// and returns them as ordered name/value pairs. Names are lowercased and keep
// their x-amz-meta- prefix so they can be echoed back verbatim. Header names
// are sorted for a deterministic order.
func extractUserMetadata(r *http.Request) []store.MetaHeader {
	var names []string
	for name := range r.Header {
		if strings.HasPrefix(strings.ToLower(name), "x-amz-meta-") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var meta []store.MetaHeader
	for _, name := range names {
		meta = append(meta, store.MetaHeader{
			Name:  strings.ToLower(name),
			Value: r.Header.Get(name),
		})
	}
	return meta
}

// extractMeta builds the object metadata from the upload request headers.
func extractMeta(r *http.Request) store.Meta {
	return store.Meta{
		ContentType:        r.Header.Get("Content-Type"),
		ContentEncoding:    r.Header.Get("Content-Encoding"),
		ContentDisposition: r.Header.Get("Content-Disposition"),
		CustomMetadata:     extractUserMetadata(r),
	}
}

// parseCopySource parses the x-amz-copy-source header and returns the source
// bucket and key. The header value is URL-decoded and expected in the format
// "/bucket/key" or "bucket/key".
func parseCopySource(header string) (bucket, key string, ok bool) {
	decoded, err := url.PathUnescape(header)
	if err != nil {
		return "", "", false
	}

	decoded = strings.TrimPrefix(decoded, "/")
	idx := strings.IndexByte(decoded, '/')
	if idx <= 0 || idx == len(decoded)-1 {
		return "", "", false
	}

	return decoded[:idx], decoded[idx+1:], true
}

// parseRange parses an HTTP Range header value into a byte range. Supports:
//   - bytes=0-4   (first 5 bytes)
//   - bytes=5-    (from byte 5 to end; End = -1)
//   - bytes=-10   (last 10 bytes, resolved against size)
//
// Returns nil for malformed or multi-range headers; the caller then serves
// the full body. Clamping against the object size is the store's job.
func parseRange(rangeHeader string, size int64) *fs.ByteRange {
	spec, ok := strings.CutPrefix(rangeHeader, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return nil
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return nil
	}

	if startStr == "" {
		// Suffix range: last N bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return nil
		}
		start := size - n
		if start < 0 {
			start = 0
		}
		return &fs.ByteRange{Start: start, End: -1}
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil
	}

	end := int64(-1)
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return nil
		}
	}

	return &fs.ByteRange{Start: start, End: end}
}

// xmlDecode decodes an XML request body into v.
func xmlDecode(body io.Reader, v interface{}) error {
	return xml.NewDecoder(body).Decode(v)
}

// notModified evaluates the conditional request headers against the object's
// MD5 and modification time, in order: If-None-Match first, then
// If-Modified-Since. If-Modified-Since compares at second precision and
// treats an equal timestamp as not modified.
func notModified(r *http.Request, obj *store.Object) bool {
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		if inm == "*" || inm == `"`+obj.MD5+`"` {
			return true
		}
	}

	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil {
			if !t.Before(obj.ModifiedDate.Truncate(time.Second)) {
				return true
			}
		}
	}

	return false
}

// setObjectResponseHeaders sets the standard object response headers: ETag,
// Last-Modified, content headers, and the preserved x-amz-meta-* headers.
// Content-Length and Content-Range are handled by the caller since they
// depend on whether a range applies.
func setObjectResponseHeaders(w http.ResponseWriter, obj *store.Object) {
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("ETag", `"`+obj.MD5+`"`)
	w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(obj.ModifiedDate))
	w.Header().Set("Accept-Ranges", "bytes")

	if obj.ContentEncoding != "" {
		w.Header().Set("Content-Encoding", obj.ContentEncoding)
	}
	if obj.ContentDisposition != "" {
		w.Header().Set("Content-Disposition", obj.ContentDisposition)
	}

	for _, h := range obj.CustomMetadata {
		w.Header().Set(h.Name, h.Value)
	}
}
