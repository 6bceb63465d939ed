package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/hrcore-backend/api/controllers"
	"github.com/angelmondragon/hrcore-backend/api/middleware"
	"github.com/angelmondragon/hrcore-backend/internal/employees"
	"github.com/angelmondragon/hrcore-backend/pkg/config"
	"github.com/angelmondragon/hrcore-backend/pkg/enums"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
	"github.com/angelmondragon/hrcore-backend/pkg/metrics"
)

// Deps carries everything the HTTP surface needs. Gatherer is optional and
// exposes /metrics on the API listener when set.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	Checks      []controllers.ReadinessCheck
	Employees   employees.Service
	OutboxStats controllers.OutboxStatsReader
	DeadLetters controllers.DeadLetterLister
	Gatherer    prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Checks...))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.JWT.Enabled() {
			r.Use(middleware.Auth(cfg.JWT, logg))
		} else {
			r.Use(middleware.Anonymous(enums.MemberRoleAdmin))
		}

		r.Route("/employees", func(r chi.Router) {
			r.With(middleware.RequireWriter(logg)).Post("/", controllers.EmployeeCreate(deps.Employees, logg))
			r.Route("/{employeeId}", func(r chi.Router) {
				r.Get("/", controllers.EmployeeGet(deps.Employees, logg))
				r.Get("/history", controllers.EmployeeHistory(deps.Employees, logg))
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireWriter(logg))
					r.Patch("/status", controllers.EmployeeChangeStatus(deps.Employees, logg))
					r.Post("/reactivate", controllers.EmployeeReactivate(deps.Employees, logg))
				})
			})
		})

		r.Route("/outbox", func(r chi.Router) {
			r.Get("/stats", controllers.OutboxStats(deps.OutboxStats, logg))
			r.Get("/dlq", controllers.OutboxDeadLetters(deps.DeadLetters, logg))
		})
	})

	return r
}
