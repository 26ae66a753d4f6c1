package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"simpleindex/internal/config"
	"simpleindex/internal/index"
	"simpleindex/internal/logger"
	"simpleindex/internal/metrics"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Reindexer regenerates the cached root index
type Reindexer interface {
	ReindexBucket(ctx context.Context) (*index.WriteResult, error)
}

// Server exposes the package index and the ops endpoints
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	index     *index.Router
	reindexer Reindexer
	metrics   *metrics.Metrics
	router    *mux.Router
	ops       *mux.Router
	started   time.Time
}

// New creates a new server
func New(cfg *config.Config, log *logger.Logger, router *index.Router, reindexer Reindexer, m *metrics.Metrics) *Server {
	s := &Server{
		config:    cfg,
		logger:    log,
		index:     router,
		reindexer: reindexer,
		metrics:   m,
		router:    mux.NewRouter(),
		ops:       mux.NewRouter(),
		started:   time.Now(),
	}

	s.setupRoutes()
	s.setupOpsRoutes()
	return s
}

// Handler returns the public index handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// OpsHandler returns the health, status and metrics handler
func (s *Server) OpsHandler() http.Handler {
	return s.ops
}

// setupRoutes sends every path to the index router, which owns matching
func (s *Server) setupRoutes() {
	// Paths are matched verbatim; "//" and ".." must not be rewritten
	s.router.SkipClean(true)
	s.router.Use(s.requestIDMiddleware, s.loggingMiddleware, s.metrics.Middleware(s.routeLabel))
	s.router.PathPrefix("/").HandlerFunc(s.handleIndex)
}

// handleIndex serves one index request
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	res, err := s.index.Route(r.Context(), r.Method, r.URL.Path)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"request_id": RequestID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).WithError(err).Error("Failed to serve index request")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeResponse(w, r, res)
}

// writeResponse copies an envelope onto the wire; HEAD gets headers only
func writeResponse(w http.ResponseWriter, r *http.Request, res index.Response) {
	for k, v := range res.Headers {
		w.Header().Set(k, v)
	}
	if res.Body != "" {
		w.Header().Set("Content-Length", strconv.Itoa(len(res.Body)))
	}
	w.WriteHeader(res.StatusCode)

	if r.Method == http.MethodHead || res.Body == "" {
		return
	}
	_, _ = w.Write([]byte(res.Body))
}

func (s *Server) routeLabel(r *http.Request) string {
	return s.index.Resolve(r.Method, r.URL.Path).Kind.String()
}
