package server

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/cartonstore/carton/internal/config"
	"github.com/cartonstore/carton/internal/fs"
)

func newWebsiteServer(t *testing.T, site config.WebsiteConfig) *Server {
	t.Helper()
	return newTestServerWithConfig(t, &config.Config{
		Server:  config.ServerConfig{Host: "localhost", Port: 4578, Owner: "CartonStore"},
		Storage: config.StorageConfig{Directory: "/data"},
		Website: site,
	})
}

func TestIndexDocumentOnBucketRoot(t *testing.T) {
	srv := newWebsiteServer(t, config.WebsiteConfig{IndexDocument: "index.html"})
	seedObject(t, srv, "site", "index.html", "<html>home</html>")

	w := do(t, srv, "GET", "/site", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /site = %d, want 200", w.Code)
	}
	if w.Body.String() != "<html>home</html>" {
		t.Errorf("body = %q, want index document bytes", w.Body.String())
	}
}

func TestIndexDocumentOnDirectoryKey(t *testing.T) {
	srv := newWebsiteServer(t, config.WebsiteConfig{IndexDocument: "index.html"})
	seedObject(t, srv, "site", "docs/index.html", "docs home")

	w := do(t, srv, "GET", "/site/docs", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /site/docs = %d, want 200", w.Code)
	}
	if w.Body.String() != "docs home" {
		t.Errorf("body = %q, want the directory's index document", w.Body.String())
	}
}

func TestIndexDocumentLoadFailureIsInternalError(t *testing.T) {
	filesystem := &brokenFS{FileSystem: fs.NewMem(), openErr: errors.New("read failed")}
	srv, err := New(&config.Config{
		Server:  config.ServerConfig{Host: "localhost", Port: 4578, Owner: "CartonStore"},
		Storage: config.StorageConfig{Directory: "/data"},
		Website: config.WebsiteConfig{IndexDocument: "index.html"},
	}, WithFileSystem(filesystem))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	srv.Store().PutBucket("site")

	w := do(t, srv, "GET", "/site", nil, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("GET with failing index read = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "InternalError") {
		t.Errorf("body = %s, a read failure must not look like a miss", w.Body.String())
	}
}

func TestErrorDocumentOnMiss(t *testing.T) {
	srv := newWebsiteServer(t, config.WebsiteConfig{
		IndexDocument: "index.html",
		ErrorDocument: "404.html",
	})
	seedObject(t, srv, "site", "404.html", "custom not found")

	w := do(t, srv, "GET", "/site/nope", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET miss = %d, want 404", w.Code)
	}
	if w.Body.String() != "custom not found" {
		t.Errorf("body = %q, want the error document", w.Body.String())
	}
}

func TestFixedNotFoundPageWhenErrorDocumentMissing(t *testing.T) {
	srv := newWebsiteServer(t, config.WebsiteConfig{
		IndexDocument: "index.html",
		ErrorDocument: "404.html",
	})
	srv.Store().PutBucket("site")

	w := do(t, srv, "GET", "/site/nope", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET miss = %d, want 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html" {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(w.Body.String(), "404") {
		t.Errorf("body = %q, want fixed not-found page", w.Body.String())
	}
}

func TestRoutingRuleRedirect(t *testing.T) {
	srv := newWebsiteServer(t, config.WebsiteConfig{
		RoutingRule: &config.RoutingRule{
			HostName:             "example.com:443",
			Protocol:             "https",
			ReplaceKeyPrefixWith: "new/",
			HTTPRedirectCode:     301,
		},
	})
	srv.Store().PutBucket("foo")

	w := do(t, srv, "GET", "/foo/old", nil, nil)
	if w.Code != http.StatusMovedPermanently {
		t.Fatalf("GET miss with routing rule = %d, want 301", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "https://example.com:443/new/old" {
		t.Errorf("Location = %q, want https://example.com:443/new/old", loc)
	}
	if w.Body.Len() != 0 {
		t.Errorf("redirect body should be empty, got %q", w.Body.String())
	}
}

func TestRoutingRuleUsesRequestHostWhenUnset(t *testing.T) {
	srv := newWebsiteServer(t, config.WebsiteConfig{
		RoutingRule: &config.RoutingRule{
			Protocol:         "http",
			HTTPRedirectCode: 307,
		},
	})
	srv.Store().PutBucket("foo")

	w := do(t, srv, "GET", "http://myhost:4578/foo/old", nil, nil)
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("GET miss = %d, want 307", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "http://myhost:4578/old" {
		t.Errorf("Location = %q, want the request host", loc)
	}
}

func TestRoutingRuleDoesNotShadowHits(t *testing.T) {
	srv := newWebsiteServer(t, config.WebsiteConfig{
		RoutingRule: &config.RoutingRule{
			HostName:         "example.com",
			Protocol:         "https",
			HTTPRedirectCode: 301,
		},
	})
	seedObject(t, srv, "foo", "present", "here")

	w := do(t, srv, "GET", "/foo/present", nil, nil)
	if w.Code != http.StatusOK || w.Body.String() != "here" {
		t.Errorf("existing key should be served, got %d %q", w.Code, w.Body.String())
	}
}
