package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/hrcore-backend/api/responses"
	"github.com/angelmondragon/hrcore-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/hrcore-backend/pkg/errors"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
)

const (
	envHeader          = "X-HRCore-Env"
	readyCheckTimeout  = 2 * time.Second
	readyStatusOK      = "ok"
	readyStatusFailing = "failing"
)

// ReadinessCheck is one named dependency checked by HealthReady.
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every check and answers 503 with the per-check status
// when any of them fails.
func HealthReady(cfg *config.Config, logg *logger.Logger, checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		statuses := make(map[string]string, len(checks))
		ready := true
		for _, check := range checks {
			if check.Ping == nil {
				continue
			}
			if err := check.Ping(ctx); err != nil {
				ready = false
				statuses[check.Name] = readyStatusFailing
				if logg != nil {
					logg.Warn(logg.WithFields(r.Context(), map[string]any{"check": check.Name, "error": err.Error()}), "readiness check failed")
				}
				continue
			}
			statuses[check.Name] = readyStatusOK
		}

		if !ready {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotReady, "service not ready").WithDetails(statuses))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": statuses})
	}
}
