package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dshills/tome/internal/indexer"
	"github.com/dshills/tome/internal/query"
	"github.com/dshills/tome/internal/storage"
)

// Server is the HTTP API server for tome.
type Server struct {
	router       chi.Router
	storage      storage.Storage
	engine       *query.Engine
	indexer      *indexer.Indexer
	log          *slog.Logger
	defaultDepth int
}

// NewServer creates and configures the HTTP server. defaultDepth is the
// crawl depth used when an ingest request does not name one.
func NewServer(store storage.Storage, engine *query.Engine, idx *indexer.Indexer, log *slog.Logger, defaultDepth int) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		storage:      store,
		engine:       engine,
		indexer:      idx,
		log:          log,
		defaultDepth: defaultDepth,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)

	r.Route("/api/domains/{domain}", func(r chi.Router) {
		r.Use(domainParam)

		r.Get("/doc", s.handleGetDocument)
		r.Get("/toc", s.handleTOC)
		r.Get("/search", s.handleSearch)
		r.Post("/ingest", s.handleIngestDomain)
		r.Post("/documents", s.handleIngestDocument)
		r.Delete("/", s.handleDeleteDomain)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
