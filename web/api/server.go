// Package api implements the HTTP surface: four thin JSON endpoints that
// decode a request, call into the core orchestration/research packages, and
// encode the result. Routing uses gorilla/mux for the {jobId} path
// parameter the standard library mux cannot express cleanly.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/modelclient"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/orchestrator"
)

// queryRunner is the subset of orchestrator.Orchestrator the API depends on.
type queryRunner interface {
	Orchestrate(ctx context.Context, prompt string, mode domain.Mode, modelIDs []string, judgeModelOverride string) (*orchestrator.Result, error)
}

// imageGenerator is the subset of modelclient.Client the API depends on for
// image generation.
type imageGenerator interface {
	CallImageModel(ctx context.Context, modelID, prompt string, timeout time.Duration) (*modelclient.ImageResult, error)
}

// jobSubmitter is the subset of jobstore.Store the API depends on for
// creating and reading deep-research jobs.
type jobSubmitter interface {
	Create(query string, options domain.JobOptions, userID string) *domain.Job
	Get(jobID, userID string) *domain.Job
}

// jobTrigger nudges the Async Worker to poll immediately after a job is
// enqueued, instead of waiting for the next tick.
type jobTrigger interface {
	Trigger()
}

// metricsHandler exposes a Prometheus scrape endpoint.
type metricsHandler interface {
	Handler() http.Handler
}

// Deps carries the Server's collaborators. Fields are interfaces so tests
// can substitute fakes without standing up the full orchestration stack.
type Deps struct {
	Query   queryRunner
	Image   imageGenerator
	Jobs    jobSubmitter
	Trigger jobTrigger
	Metrics metricsHandler

	FrontendOrigin    string
	PerModelTimeout   time.Duration
	ImageTimeout      time.Duration
	MaxPromptLength   int
	DefaultModelIDs   []string
	DefaultJudgeModel string
	DefaultImageModel string
}

// Server is the HTTP API server.
type Server struct {
	router *mux.Router
	deps   Deps
}

// NewServer creates an API server wired to deps and registers its routes.
func NewServer(deps Deps) *Server {
	s := &Server{router: mux.NewRouter(), deps: deps}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/query", s.queryHandler).Methods(http.MethodPost)
	v1.HandleFunc("/generate-image", s.generateImageHandler).Methods(http.MethodPost)
	v1.HandleFunc("/deep-research", s.submitResearchHandler).Methods(http.MethodPost)
	v1.HandleFunc("/deep-research/{jobId}", s.getResearchHandler).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}
}

// Handler returns the composed HTTP handler, logging and CORS middleware
// applied.
func (s *Server) Handler() http.Handler {
	return loggingMiddleware(s.withCORS(s.router))
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.FrontendOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.deps.FrontendOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
