package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		return respond(c, http.StatusServiceUnavailable,
			map[string]string{"status": "degraded", "database": "unreachable"}, "Database is unreachable")
	}
	return respond(c, http.StatusOK, map[string]string{"status": "ok", "database": "ok"}, "Healthy")
}
