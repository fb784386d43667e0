package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/fleetadmin/fleetadmin/infrastructure/http/response"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/logger"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db     Pinger
	logger logger.Logger
}

func NewHealthHandler(db Pinger, log logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: log}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Error(r.Context(), "Health check failed", err, nil)
			response.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
