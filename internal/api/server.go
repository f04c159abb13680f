package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/soochol/minizaps/internal/connectors"
	"github.com/soochol/minizaps/internal/services"
	"github.com/soochol/minizaps/internal/zaps/ports"
)

// ServiceName is reported by the banner endpoint.
const ServiceName = "Mini-Zaps Workflow Builder API"

type Server struct {
	workflowSvc   *services.WorkflowService
	runHistorySvc *services.RunHistoryService
	statusCtl     *services.StatusController
	registry      *connectors.Registry
	store         ports.RunStore
	loader        ports.DefinitionLoader
	active        ports.ActiveRegistry
	schedulerSvc  *services.SchedulerService
	limiter       *services.ConcurrencyLimiter
}

func NewServer(
	workflowSvc *services.WorkflowService,
	runHistorySvc *services.RunHistoryService,
	statusCtl *services.StatusController,
	registry *connectors.Registry,
	store ports.RunStore,
) *Server {
	return &Server{
		workflowSvc:   workflowSvc,
		runHistorySvc: runHistorySvc,
		statusCtl:     statusCtl,
		registry:      registry,
		store:         store,
	}
}

// SetDefinitionLoader enables workflow listing.
func (s *Server) SetDefinitionLoader(loader ports.DefinitionLoader) {
	s.loader = loader
}

// SetActiveRegistry configures the source of /api/active.
func (s *Server) SetActiveRegistry(active ports.ActiveRegistry) {
	s.active = active
}

// SetSchedulerService configures the scheduler service.
func (s *Server) SetSchedulerService(svc *services.SchedulerService) {
	s.schedulerSvc = svc
}

// SetConcurrencyLimiter configures the concurrency limiter.
func (s *Server) SetConcurrencyLimiter(limiter *services.ConcurrencyLimiter) {
	s.limiter = limiter
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/", s.banner)
	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/trigger", s.triggerWorkflow)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.listRuns)
			r.Get("/{id}", s.getRun)
			r.Post("/{id}/control", s.controlRun)
		})
		r.Get("/active", s.listActive)
		r.Get("/connectors", s.listConnectors)
		r.Get("/workflows", s.listWorkflows)
		r.Get("/schedules", s.listSchedules)
		r.Get("/scheduler/stats", s.getSchedulerStats)
	})
	return r
}
