// Package serve exposes a run's outputs over HTTP: the rendered plots, the
// run report, the chunk listing, Prometheus metrics and, while a run is in
// progress, its live status over a WebSocket.
package serve

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/agnvar/agnvar/internal/metrics"
	"github.com/agnvar/agnvar/internal/output"
	"github.com/agnvar/agnvar/internal/report"
	"github.com/agnvar/agnvar/internal/state"
)

// Default file names inside the output directory.
const (
	ReportFile = "report.json"
	StateFile  = "state.yaml"
	PlotsDir   = "plots"
)

// Server serves one output directory.
type Server struct {
	dir       string
	plotsDir  string
	statePath string
	addr      string
	logger    *slog.Logger
	metrics   *metrics.Metrics
	hub       *Hub
	status    StatusFunc
	devMode   bool
	staticFS  fs.FS
	server    *http.Server
}

// Option configures the server.
type Option func(*Server)

// WithMetrics exposes the registry on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHub streams live status on /api/ws.
func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithStatus serves the live run status on /api/status.
func WithStatus(fn StatusFunc) Option {
	return func(s *Server) { s.status = fn }
}

// WithPlotsDir overrides the plots directory, by default plots/ inside the
// output directory.
func WithPlotsDir(dir string) Option {
	return func(s *Server) { s.plotsDir = dir }
}

// WithStatePath overrides the run state file, by default state.yaml inside
// the output directory.
func WithStatePath(path string) Option {
	return func(s *Server) { s.statePath = path }
}

// WithStaticFS serves index.html from fsys at the root instead of
// redirecting to the plot listing.
func WithStaticFS(fsys fs.FS) Option {
	return func(s *Server) { s.staticFS = fsys }
}

// WithDevMode enables permissive CORS.
func WithDevMode(dev bool) Option {
	return func(s *Server) { s.devMode = dev }
}

// New creates a server for the output directory dir listening on addr.
func New(dir, addr string, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		dir:       dir,
		plotsDir:  filepath.Join(dir, PlotsDir),
		statePath: filepath.Join(dir, StateFile),
		addr:      addr,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler, wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = mux
	if s.devMode {
		handler = corsMiddleware(handler)
	}
	return requestLogger(s.logger, handler)
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", "addr", s.addr, "dir", s.dir)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/report", s.handleReport)
	mux.HandleFunc("GET /api/chunks", s.handleChunks)
	mux.HandleFunc("GET /api/chunks/{index}", s.handleChunk)
	mux.HandleFunc("GET /api/plots", s.handlePlots)
	mux.Handle("GET /plots/", http.StripPrefix("/plots/", http.FileServer(http.Dir(s.plotsDir))))

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.hub != nil {
		mux.HandleFunc("/api/ws", s.hub.HandleWebSocket)
	}
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		if s.staticFS != nil {
			http.ServeFileFS(w, r, s.staticFS, "index.html")
			return
		}
		http.Redirect(w, r, "/api/plots", http.StatusFound)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports the live run when one is attached, otherwise the
// persisted run state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status != nil {
		if st := s.status(); st != nil {
			jsonResponse(w, http.StatusOK, st)
			return
		}
	}
	st, err := state.Load(s.statePath)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if st == nil {
		errorResponse(w, http.StatusNotFound, "no run status available")
		return
	}
	jsonResponse(w, http.StatusOK, newStateResponse(st))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := report.ReadJSON(filepath.Join(s.dir, ReportFile))
	if errors.Is(err, fs.ErrNotExist) {
		errorResponse(w, http.StatusNotFound, "no report in "+s.dir)
		return
	}
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, rep)
}

func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	paths, err := output.Glob(s.dir)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	files := make([]ChunkFile, 0, len(paths))
	for _, p := range paths {
		idx, _ := output.ChunkIndex(p)
		cf := ChunkFile{Index: idx, Name: filepath.Base(p)}
		if info, err := os.Stat(p); err == nil {
			cf.Size = info.Size()
			cf.Modified = info.ModTime().UTC()
		}
		files = append(files, cf)
	}
	jsonResponse(w, http.StatusOK, files)
}

// handleChunk downloads one persisted chunk.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	var idx int
	if _, err := fmt.Sscanf(r.PathValue("index"), "%d", &idx); err != nil || idx < 0 {
		errorResponse(w, http.StatusBadRequest, "chunk index must be a non-negative integer")
		return
	}
	path := filepath.Join(s.dir, output.FileName(idx))
	if _, err := os.Stat(path); err != nil {
		errorResponse(w, http.StatusNotFound, fmt.Sprintf("chunk %d not found", idx))
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	http.ServeFile(w, r, path)
}

func (s *Server) handlePlots(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.plotsDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	plots := make([]PlotLink, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".html" {
			continue
		}
		plots = append(plots, PlotLink{Name: e.Name(), URL: "/plots/" + e.Name()})
	}
	jsonResponse(w, http.StatusOK, plots)
}
