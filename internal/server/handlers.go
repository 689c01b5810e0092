package server

import (
	"net/http"

	"api-gateway/internal/health"

	"github.com/labstack/echo/v4"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type livenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type readinessResponse struct {
	Status   string               `json:"status"`
	Services []health.CheckResult `json:"services"`
}

type indexResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

func (s *Server) liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, livenessResponse{
		Status:    "healthy",
		Timestamp: s.now().UTC().Format(timestampLayout),
	})
}

// readiness fans out to every backend; the body always lists each backend.
func (s *Server) readiness(c echo.Context) error {
	report := s.prober.CheckAll(c.Request().Context(), s.backends)

	if report.Healthy {
		return c.JSON(http.StatusOK, readinessResponse{Status: "ready", Services: report.Checks})
	}
	return c.JSON(http.StatusServiceUnavailable, readinessResponse{Status: "not ready", Services: report.Checks})
}

func (s *Server) apiIndex(c echo.Context) error {
	return c.JSON(http.StatusOK, indexResponse{
		Name:      s.name,
		Version:   s.version,
		Endpoints: s.table.Prefixes(),
	})
}
