package server

import (
	"time"

	"api-gateway/internal/metrics"

	"github.com/labstack/echo/v4"
)

var fixedEndpoints = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
	"/api":     {},
}

// completion is the outermost middleware: it turns handler errors into responses,
// then emits exactly one metrics sample and one access log line per request.
func (s *Server) completion(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		if err := next(c); err != nil {
			c.Error(err)
		}

		req := c.Request()
		res := c.Response()
		route := s.routeLabel(req.URL.Path)
		elapsed := time.Since(start)

		s.recorder.Observe(metrics.Sample{
			Method:   req.Method,
			Route:    route,
			Status:   res.Status,
			Duration: elapsed,
		})

		s.logger.Info().
			Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
			Str("remote_ip", c.RealIP()).
			Str("method", req.Method).
			Str("uri", req.RequestURI).
			Str("route", route).
			Int("status", res.Status).
			Int64("bytes_out", res.Size).
			Dur("latency", elapsed).
			Msg("request")
		return nil
	}
}

// routeLabel keeps metric cardinality bounded: the matched route prefix, a fixed
// endpoint path, or metrics.UnmatchedRoute.
func (s *Server) routeLabel(path string) string {
	if rt, ok := s.dispatcher.Match(path); ok {
		return rt.Prefix
	}
	if _, ok := fixedEndpoints[path]; ok {
		return path
	}
	return metrics.UnmatchedRoute
}
