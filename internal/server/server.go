// Package server implements the Carton HTTP server and S3-compatible route
// multiplexer.
package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cartonstore/carton/internal/config"
	s3err "github.com/cartonstore/carton/internal/errors"
	"github.com/cartonstore/carton/internal/fs"
	"github.com/cartonstore/carton/internal/handlers"
	"github.com/cartonstore/carton/internal/metrics"
	"github.com/cartonstore/carton/internal/store"
	"github.com/cartonstore/carton/internal/xmlutil"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the Carton HTTP server. It routes incoming requests to the
// appropriate S3-compatible handler based on the request method and path.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	filesystem fs.FileSystem
	store      *store.Store
	bucket     *handlers.BucketHandler
	object     *handlers.ObjectHandler
	httpServer *http.Server
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Body HealthBody
}

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithFileSystem injects a filesystem implementation for the object store.
// Tests use this to run against an in-memory filesystem.
func WithFileSystem(filesystem fs.FileSystem) Option {
	return func(s *Server) {
		s.filesystem = filesystem
	}
}

// New creates a Server with the given configuration and wires up all
// S3-compatible routes on the Chi router with the Huma API.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("Carton S3 API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:    cfg,
		router: router,
		api:    api,
	}

	for _, opt := range opts {
		opt(s)
	}

	st, err := store.New(cfg.Storage.Directory, s.filesystem)
	if err != nil {
		return nil, err
	}
	s.store = st

	s.bucket = handlers.NewBucketHandler(st, cfg.Server.Owner, cfg.Website)
	s.object = handlers.NewObjectHandler(st, cfg.Server.Owner, cfg.Website)

	s.registerRoutes()
	return s, nil
}

// Store exposes the underlying object store, mainly for tests that need to
// seed data directly.
func (s *Server) Store() *store.Store {
	return s.store
}

// Handler returns the fully wrapped HTTP handler, usable with httptest
// without binding a listener.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router
	// Rewrite x-amz-meta-* headers to lowercase (must be innermost wrapper).
	handler = metadataHeaderMiddleware(handler)
	handler = commonHeaders(handler)
	handler = metricsMiddleware(handler)
	return handler
}

// ListenAndServe starts the HTTP server on the given address.
// The returned http.Server is stored so it can be shut down gracefully.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes configures all routes on the Chi router.
// Huma routes (/health, /docs, /openapi.json) and /metrics are registered
// first; the S3 catch-all /* is registered last. Chi matches more specific
// routes first.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the Carton server.",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		return &HealthOutput{Body: HealthBody{Status: "ok"}}, nil
	})

	// Register HEAD /health separately (Huma only does one method per registration).
	s.router.Head("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	s.router.Handle("/metrics", promhttp.Handler())

	// S3 catch-all: all remaining requests go through the dispatch function.
	s.router.HandleFunc("/*", s.dispatch)
}

// parsePath extracts bucket and object key from the request path.
// Returns ("", "") for root "/", ("bucket", "") for "/{bucket}",
// and ("bucket", "key/path") for "/{bucket}/{key...}".
func parsePath(path string) (bucket, key string) {
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	if path == "" {
		return "", ""
	}
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			return path[:i], path[i+1:]
		}
	}
	return path, ""
}

// op wraps a handler invocation, recording the S3 operation counter with a
// success/error outcome derived from the response status.
func (s *Server) op(name string, h http.HandlerFunc, w http.ResponseWriter, r *http.Request) {
	rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	h(rec, r)

	outcome := "success"
	if rec.statusCode >= http.StatusBadRequest {
		outcome = "error"
	}
	metrics.S3OperationsTotal.WithLabelValues(name, outcome).Inc()
}

// dispatch is the main request dispatcher. It parses the path to extract
// bucket and object key, resolves the bucket for bucket-scoped operations,
// then routes by HTTP method and query parameters.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	bucket, key := parsePath(r.URL.Path)
	q := r.URL.Query()

	// Service-level operations (no bucket in path).
	if bucket == "" {
		switch r.Method {
		case http.MethodGet:
			s.op("ListBuckets", s.bucket.ListBuckets, w, r)
		default:
			xmlutil.RenderError(w, r, s3err.ErrMethodNotAllowed)
		}
		return
	}

	// Bucket resolution: every bucket-scoped operation except bucket creation
	// requires the bucket to exist.
	if !(r.Method == http.MethodPut && key == "") {
		if _, err := s.store.GetBucket(bucket); err != nil {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			xmlutil.RenderError(w, r, s3err.ErrNoSuchBucket)
			return
		}
	}

	// Object-level operations (bucket + key in path).
	if key != "" {
		switch r.Method {
		case http.MethodGet:
			s.op("GetObject", s.object.GetObject, w, r)
		case http.MethodHead:
			s.op("HeadObject", s.object.HeadObject, w, r)
		case http.MethodPut:
			if r.Header.Get("x-amz-copy-source") != "" {
				s.op("CopyObject", s.object.PutObject, w, r)
			} else {
				s.op("PutObject", s.object.PutObject, w, r)
			}
		case http.MethodPost:
			s.op("PostObject", s.object.PostObject, w, r)
		case http.MethodDelete:
			s.op("DeleteObject", s.object.DeleteObject, w, r)
		default:
			xmlutil.RenderError(w, r, s3err.ErrMethodNotAllowed)
		}
		return
	}

	// Bucket-level operations (bucket in path, no key).
	switch r.Method {
	case http.MethodPut:
		s.op("CreateBucket", s.bucket.CreateBucket, w, r)
	case http.MethodGet:
		s.op("ListObjects", s.bucket.GetBucket, w, r)
	case http.MethodHead:
		s.op("HeadBucket", s.bucket.HeadBucket, w, r)
	case http.MethodDelete:
		s.op("DeleteBucket", s.bucket.DeleteBucket, w, r)
	case http.MethodPost:
		if q.Has("delete") {
			s.op("DeleteObjects", s.object.DeleteObjects, w, r)
		} else {
			xmlutil.RenderError(w, r, s3err.ErrMethodNotAllowed)
		}
	default:
		xmlutil.RenderError(w, r, s3err.ErrMethodNotAllowed)
	}
}

// Addr formats the configured listen address.
func Addr(cfg *config.Config) string {
	return cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
}
