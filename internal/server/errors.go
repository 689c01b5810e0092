package server

import (
	"errors"
	"fmt"
	"net/http"

	"api-gateway/internal/apierror"

	"github.com/labstack/echo/v4"
)

// handleError renders every error as the JSON envelope. 5xx details are logged,
// never sent to the client.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := http.StatusText(status)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		// Unknown method on a known path is reported like any unknown route.
		if status == http.StatusMethodNotAllowed {
			status = http.StatusNotFound
			he = echo.ErrNotFound
			c.Response().Header().Del(echo.HeaderAllow)
		}
		message = http.StatusText(status)
		if status < http.StatusInternalServerError {
			if m, ok := he.Message.(string); ok && m != "" {
				message = m
			} else if he.Message != nil {
				message = fmt.Sprint(he.Message)
			}
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Msg("Unhandled error")
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, apierror.New(status, message))
	}
	if werr != nil {
		s.logger.Warn().Err(werr).Msg("Failed to write error response")
	}
}
