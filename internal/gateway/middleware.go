package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/miradorstack/mirador-risk/internal/metrics"
)

const (
	contextKeyRequestID = "requestID"
	headerRequestID     = "X-Request-Id"
)

// requestIDMiddleware accepts a caller supplied UUID request ID or generates one, and echoes it
// in the response headers.
func requestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(headerRequestID)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.New().String()
			}
			c.Set(contextKeyRequestID, requestID)
			c.Response().Header().Set(headerRequestID, requestID)
			return next(c)
		}
	}
}

// rateLimitMiddleware rejects requests once the shared token bucket is empty. Probe endpoints are
// never limited.
func rateLimitMiddleware(limiter *rate.Limiter, limit rate.Limit, burst int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter == nil || isProbe(c.Path()) {
				return next(c)
			}
			if !limiter.Allow() {
				metrics.IncRateLimited()
				c.Response().Header().Set("Retry-After", "1")
				return writeError(c, http.StatusTooManyRequests, ErrCodeRateLimitExceeded,
					"rate limit exceeded, please retry later", true,
					map[string]any{"limit": float64(limit), "burst": burst})
			}
			c.Response().Header().Set("X-RateLimit-Limit", strconv.FormatFloat(float64(limit), 'g', -1, 64))
			c.Response().Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", int(limiter.Tokens())))
			return next(c)
		}
	}
}

// loggerMiddleware writes one structured log line per request.
func loggerMiddleware(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			case isProbe(c.Path()):
				level = slog.LevelDebug
			}
			requestID, _ := c.Get(contextKeyRequestID).(string)
			logger.LogAttrs(req.Context(), level, "http request",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote", c.RealIP()),
				slog.String("request_id", requestID),
			)
			return nil
		}
	}
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz"
}
