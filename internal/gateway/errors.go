package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/miradorstack/mirador-risk/internal/models"
	"github.com/miradorstack/mirador-risk/internal/repo"
	"github.com/miradorstack/mirador-risk/internal/services"
	"github.com/miradorstack/mirador-risk/internal/utils"
)

// Error codes returned in ErrorResponse.Code.
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeUpstreamFailure    = "UPSTREAM_FAILURE"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// ErrorResponse is the JSON envelope for every non-2xx gateway response.
type ErrorResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"requestId"`
	Timestamp time.Time      `json:"timestamp"`
	Retryable bool           `json:"retryable"`
}

func writeError(c echo.Context, statusCode int, code, message string, retryable bool, details map[string]any) error {
	requestID, _ := c.Get(contextKeyRequestID).(string)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	return c.JSON(statusCode, ErrorResponse{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Retryable: retryable,
	})
}

// classify maps a domain error onto an HTTP status, error code and retryability.
func classify(err error) (int, string, bool) {
	var validationErr *models.ValidationError
	var fetchErr *repo.FetchError
	switch {
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, ErrCodeUpstreamFailure, true
	case errors.As(err, &validationErr), errors.Is(err, repo.ErrInvalidURL):
		return http.StatusBadRequest, ErrCodeInvalidRequest, false
	case errors.Is(err, services.ErrNoFetcher), errors.Is(err, utils.ErrNotConfigured):
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable, false
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeUpstreamFailure, true
	default:
		return http.StatusInternalServerError, ErrCodeInternalError, true
	}
}

func validationDetails(err error) map[string]any {
	details := map[string]any{}
	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) && len(validationErr.Missing) > 0 {
		details["missing"] = validationErr.Missing
	}
	var fetchErr *repo.FetchError
	if errors.As(err, &fetchErr) {
		details["url"] = fetchErr.URL
		if fetchErr.StatusCode != 0 {
			details["upstreamStatus"] = fetchErr.StatusCode
		}
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// httpErrorHandler renders echo routing errors (404, 405, oversized bodies) in the ErrorResponse
// envelope.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	statusCode := http.StatusInternalServerError
	message := http.StatusText(statusCode)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		statusCode = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(statusCode)
		}
	}

	code := ErrCodeInternalError
	switch statusCode {
	case http.StatusNotFound:
		code = ErrCodeNotFound
	case http.StatusMethodNotAllowed:
		code = ErrCodeMethodNotAllowed
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		code = ErrCodeInvalidRequest
	}
	_ = writeError(c, statusCode, code, message, statusCode >= 500, nil)
}
