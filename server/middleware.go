package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/existflow/collabtask/internal/db"
	"github.com/existflow/collabtask/internal/logger"
	"github.com/existflow/collabtask/internal/presence"
	"github.com/existflow/collabtask/internal/protocol"
	"github.com/labstack/echo/v4"
)

// HeaderConnectionID names the live connection a REST mutation comes
// from, for the mutation log line
const HeaderConnectionID = "X-Connection-ID"

func connectionID(c echo.Context) string {
	return c.Request().Header.Get(HeaderConnectionID)
}

func taskID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}
	return id, nil
}

// errorStatus maps store errors to HTTP status and socket error codes
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, db.ErrValidation), errors.Is(err, presence.ErrInvalidUsername):
		return http.StatusBadRequest, protocol.CodeValidation
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, protocol.CodeNotFound
	default:
		return http.StatusServiceUnavailable, protocol.CodeUnavailable
	}
}

// respondError writes err as a JSON error body
func respondError(c echo.Context, err error) error {
	status, _ := errorStatus(err)
	if status == http.StatusServiceUnavailable {
		logger.Error("Store failure", logger.F("uri", c.Request().RequestURI), logger.Err(err))
		return c.JSON(status, map[string]string{"error": "store unavailable, try again"})
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

// socketError builds the error message sent back to a socket origin
func socketError(err error) protocol.Message {
	_, code := errorStatus(err)
	if code == protocol.CodeUnavailable {
		return protocol.Error(code, "store unavailable, try again")
	}
	return protocol.Error(code, err.Error())
}

// httpErrorHandler renders echo errors as {"error": ...}
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msg := http.StatusText(status)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(status)
		}
	}

	if err := c.JSON(status, map[string]string{"error": msg}); err != nil {
		logger.Warn("Failed to write error response", logger.Err(err))
	}
}
