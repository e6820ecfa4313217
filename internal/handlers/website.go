package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cartonstore/carton/internal/config"
	s3err "github.com/cartonstore/carton/internal/errors"
	"github.com/cartonstore/carton/internal/store"
	"github.com/cartonstore/carton/internal/xmlutil"
)

// notFoundPage is served when static-site mode is active but neither the
// requested object nor the error document exists.
const notFoundPage = `<!DOCTYPE html>
<html>
<head><title>404 - Resource Not Found</title></head>
<body><h1>404 - Resource Not Found</h1></body>
</html>
`

// serveObjectBody streams an object as the response with the given status
// code, setting the standard object headers. The caller has already decided
// conditionals and status.
func serveObjectBody(w http.ResponseWriter, obj *store.Object, body io.ReadCloser, status int) {
	defer body.Close()

	setObjectResponseHeaders(w, obj)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.WriteHeader(status)

	if _, err := io.Copy(w, body); err != nil {
		slog.Debug("object stream aborted", "key", obj.Key, "error", err)
	}
}

// serveWebsiteFallback handles a GET miss in static-site mode: serve the
// configured error document with status 404 if it exists, else the fixed
// HTML not-found page.
func serveWebsiteFallback(w http.ResponseWriter, s *store.Store, bucket string, site config.WebsiteConfig) {
	if site.ErrorDocument != "" {
		obj, body, err := s.GetObject(bucket, site.ErrorDocument, nil)
		if err == nil {
			serveObjectBody(w, obj, body, http.StatusNotFound)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusNotFound)
	io.WriteString(w, notFoundPage)
}

// serveRedirect issues the routing-rule redirect for a missed key. The
// Location host falls back to the request's host when the rule names none.
func serveRedirect(w http.ResponseWriter, r *http.Request, key string, rule *config.RoutingRule) {
	host := rule.HostName
	if host == "" {
		host = r.Host
	}

	location := rule.Protocol + "://" + host + "/" + rule.ReplaceKeyPrefixWith + key
	w.Header().Set("Location", location)
	w.WriteHeader(rule.HTTPRedirectCode)
}

// serveKeyMiss applies the GET-miss decision chain: routing-rule redirect
// first, then an index-document retry, then the static-site fallback, and
// finally a plain NoSuchKey error when no site behavior is configured.
func serveKeyMiss(w http.ResponseWriter, r *http.Request, s *store.Store, bucket, key string, site config.WebsiteConfig) {
	if site.RoutingRule != nil {
		serveRedirect(w, r, key, site.RoutingRule)
		return
	}

	if site.IndexDocument != "" {
		indexKey := key + "/" + site.IndexDocument
		obj, body, err := s.GetObject(bucket, indexKey, nil)
		if err == nil {
			serveObjectBody(w, obj, body, http.StatusOK)
			return
		}
		if !errors.Is(err, store.ErrObjectNotFound) {
			slog.Error("loading index document", "bucket", bucket, "key", indexKey, "error", err)
			xmlutil.RenderError(w, r, s3err.ErrInternalError)
			return
		}
		serveWebsiteFallback(w, s, bucket, site)
		return
	}

	if site.ErrorDocument != "" {
		serveWebsiteFallback(w, s, bucket, site)
		return
	}

	xmlutil.RenderError(w, r, s3err.ErrNoSuchKey)
}
