package server

import (
	"context"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"

	"vscmirror/internal/extensions"
	"vscmirror/internal/metrics"
	"vscmirror/internal/updates"
	"vscmirror/internal/utils"
)

const (
	requestIDHeader = "X-Request-Id"

	queryRoute           = "/_apis/public/gallery/extensionquery"
	updateRoute          = "/api/update/{platform}/{quality}/{commit}"
	commitRoute          = "/commit:{commit}/{platform}/{quality}"
	recommendationsRoute = "/extensions/workspaceRecommendations.json.gz"
	maliciousRoute       = "/extensions/marketplace.json"
	metricsRoute         = "/metrics"
)

// SnapshotSource is the part of the gallery index the gateway reads.
type SnapshotSource interface {
	Snapshot() *extensions.Snapshot
	State() extensions.State
}

type Options struct {
	Index        SnapshotSource
	Engine       *extensions.Engine
	Updates      *updates.Responder
	ArtifactsDir string

	UseHTTPS bool
	CertFile string
	KeyFile  string

	Logger  *utils.Logger
	Metrics metrics.GatewayMetrics
	// MetricsHandler is mounted on /metrics when set.
	MetricsHandler http.Handler
}

type Server struct {
	index        SnapshotSource
	engine       *extensions.Engine
	updates      *updates.Responder
	artifactsDir string
	logger       *utils.Logger
	metrics      metrics.GatewayMetrics
	metricsH     http.Handler

	router   *mux.Router
	server   *http.Server
	useHTTPS bool
	certFile string
	keyFile  string
	started  time.Time
}

func New(opts Options) *Server {
	s := &Server{
		index:        opts.Index,
		engine:       opts.Engine,
		updates:      opts.Updates,
		artifactsDir: opts.ArtifactsDir,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		metricsH:     opts.MetricsHandler,
		router:       mux.NewRouter(),
		useHTTPS:     opts.UseHTTPS,
		certFile:     opts.CertFile,
		keyFile:      opts.KeyFile,
		started:      time.Now(),
	}
	if s.logger == nil {
		s.logger = &utils.Logger{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Noop{}
	}
	if s.engine == nil {
		s.engine = extensions.NewEngine(extensions.EngineOptions{Logger: s.logger.Slog(), Metrics: s.metrics})
	}
	s.setupRoutes()
	return s
}

// Router returns the full handler chain, compression included.
func (s *Server) Router() http.Handler {
	return gzhttp.GzipHandler(s.router)
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	s.logger.LogServerStart(addr, s.useHTTPS)
	if s.useHTTPS {
		return s.server.ListenAndServeTLS(s.certFile, s.keyFile)
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) setupRoutes() {
	root := s.router.PathPrefix("/").Subrouter()

	root.HandleFunc("/", s.handleRoot).Methods("GET", "OPTIONS")
	root.HandleFunc(queryRoute, s.handleExtensionQuery).Methods("POST", "OPTIONS")
	root.HandleFunc(updateRoute, s.handleUpdate).Methods("GET", "OPTIONS")
	root.HandleFunc(commitRoute, s.handleCommit).Methods("GET", "OPTIONS")
	root.HandleFunc(recommendationsRoute, s.handleRawFile(utils.RecommendationsFile)).Methods("GET", "OPTIONS")
	root.HandleFunc(maliciousRoute, s.handleRawFile(utils.MaliciousFile)).Methods("GET", "OPTIONS")
	if s.metricsH != nil {
		root.Handle(metricsRoute, s.metricsH).Methods("GET")
	}
	root.PathPrefix(utils.ArtifactsURLPrefix + "/").Handler(s.artifactsHandler()).Methods("GET", "HEAD", "OPTIONS")

	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)
}

// statusRecorder remembers the status written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.LogRequest(r)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.LogResponse(r, rec.status, start)
		s.metrics.ObserveRequest(r.Method, routeName(r), strconv.Itoa(rec.status), time.Since(start).Seconds())
	})
}

// routeName is the matched route template, keeping metric labels bounded.
func routeName(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}
	if tpl, err := route.GetPathTemplate(); err == nil {
		return tpl
	}
	return "unknown"
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w)
		s.setHTTPHeaders(w)

		if r.Method == http.MethodOptions {
			s.logger.LogCORS(r)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", utils.CORSAllowOrigin)
	w.Header().Set("Access-Control-Allow-Methods", utils.CORSAllowMethods)
	w.Header().Set("Access-Control-Allow-Headers", utils.CORSAllowHeaders)
	w.Header().Set("Access-Control-Allow-Credentials", utils.CORSAllowCredentials)
	w.Header().Set("Access-Control-Max-Age", utils.CORSMaxAge)
}

func (s *Server) setHTTPHeaders(w http.ResponseWriter) {
	w.Header().Set(utils.CacheControlHeader, utils.HTTPCacheControl)
	w.Header().Set("Pragma", utils.HTTPPragma)
	w.Header().Set("Expires", utils.HTTPExpires)
	w.Header().Set("X-Content-Type-Options", utils.HTTPContentTypeOptions)
	w.Header().Set("X-XSS-Protection", utils.HTTPXSSProtection)
	w.Header().Set("X-Frame-Options", utils.HTTPFrameOptions)
	w.Header().Set("Strict-Transport-Security", utils.HTTPHSTS)
}

// artifactsHandler serves files from the mirror root. Directories are
// never listed.
func (s *Server) artifactsHandler() http.Handler {
	files := http.StripPrefix(utils.ArtifactsURLPrefix, http.FileServer(filesOnly{http.Dir(s.artifactsDir)}))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") || strings.Contains(r.URL.Path, "..") {
			s.handleNotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// filesOnly hides directories from http.FileServer.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(path.Clean(name))
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
