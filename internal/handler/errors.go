package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-table-reservation/internal/apperror"
	"github.com/iliyamo/restaurant-table-reservation/internal/logger"
)

type errorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

var kindStatus = map[apperror.Kind]int{
	apperror.KindInvalidRequest:    http.StatusBadRequest,
	apperror.KindNotFound:          http.StatusNotFound,
	apperror.KindCapacityExceeded:  http.StatusBadRequest,
	apperror.KindSlotTaken:         http.StatusConflict,
	apperror.KindLockConflict:      http.StatusLocked,
	apperror.KindForbidden:         http.StatusForbidden,
	apperror.KindAlreadySeated:     http.StatusBadRequest,
	apperror.KindInvalidTransition: http.StatusBadRequest,
	apperror.KindInvalidStatus:     http.StatusBadRequest,
	apperror.KindUnavailable:       http.StatusServiceUnavailable,
	apperror.KindInternal:          http.StatusInternalServerError,
}

// statusFor returns the HTTP status for a failure kind.
func statusFor(kind apperror.Kind) int {
	if s, ok := kindStatus[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error", "code"}.  Untyped errors never leak
// their text to the client.
func writeError(c echo.Context, err error) error {
	var ae *apperror.Error
	if !errors.As(err, &ae) {
		logger.FromContext(c.Request().Context()).Error("unhandled error", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: string(apperror.KindInternal)})
	}

	status := statusFor(ae.Kind)
	resp := errorResponse{Error: ae.Detail, Code: string(ae.Kind)}
	switch ae.Kind {
	case apperror.KindLockConflict:
		secs := apperror.RetryAfterSeconds(err)
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		resp.RetryAfter = secs
	case apperror.KindUnavailable, apperror.KindInternal:
		logger.FromContext(c.Request().Context()).Error("request failed", zap.Error(err))
	}
	if resp.Error == "" {
		resp.Error = http.StatusText(status)
	}
	return c.JSON(status, resp)
}

func badRequest(c echo.Context, msg string) error {
	return writeError(c, apperror.New(apperror.KindInvalidRequest, msg))
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized", Code: "unauthorized"})
}
