package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wizanyx/finsent/internal/ingest"
)

// IngestHandler exposes the on-demand ingestion trigger. When a JWT secret
// is configured the route requires a bearer token; otherwise it is open,
// which suits single-user deployments.
type IngestHandler struct {
	Service *ingest.Service
	Secret  []byte
}

func (h *IngestHandler) Register(g *echo.Group) {
	if len(h.Secret) > 0 {
		g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, h.Secret) })
	}
	g.POST("/run", h.run)
}

func (h *IngestHandler) run(c echo.Context) error {
	query := c.QueryParam("query")
	report, err := h.Service.RunOnce(c.Request().Context(), query)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}
