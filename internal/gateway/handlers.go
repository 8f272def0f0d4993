package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/miradorstack/mirador-risk/internal/models"
)

// PredictFromURLRequest is the body of POST /predict-from-url.
type PredictFromURLRequest struct {
	APIURL string `json:"api_url"`
}

// HealthResponse is returned by the probe endpoints.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

func (g *Gateway) health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now().UTC()})
}

func (g *Gateway) ready(c echo.Context) error {
	if g.svc == nil || !g.svc.Ready() {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:    "not_ready",
			Timestamp: time.Now().UTC(),
			Reason:    "risk engine not initialised",
		})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ready", Timestamp: time.Now().UTC()})
}

func (g *Gateway) predict(c echo.Context) error {
	body, err := g.readBody(c)
	if err != nil {
		return writeError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), false, nil)
	}
	snapshot, err := models.DecodeSnapshot(body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), false, validationDetails(err))
	}

	assessment, err := g.svc.Analyze(c.Request().Context(), snapshot)
	if err != nil {
		return g.fail(c, err)
	}
	return c.JSON(http.StatusOK, assessment)
}

func (g *Gateway) predictFromURL(c echo.Context) error {
	body, err := g.readBody(c)
	if err != nil {
		return writeError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), false, nil)
	}
	var req PredictFromURLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return writeError(c, http.StatusBadRequest, ErrCodeInvalidRequest, fmt.Sprintf("invalid request body: %v", err), false, nil)
	}
	if strings.TrimSpace(req.APIURL) == "" {
		return writeError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "api_url is required", false,
			map[string]any{"missing": []string{"api_url"}})
	}

	assessment, err := g.svc.AnalyzeURL(c.Request().Context(), req.APIURL)
	if err != nil {
		return g.fail(c, err)
	}
	return c.JSON(http.StatusOK, assessment)
}

func (g *Gateway) fail(c echo.Context, err error) error {
	statusCode, code, retryable := classify(err)
	if statusCode >= http.StatusInternalServerError && statusCode != http.StatusBadGateway {
		g.logger.Error("prediction failed", slog.String("path", c.Path()), slog.Any("error", err))
	}
	return writeError(c, statusCode, code, err.Error(), retryable, validationDetails(err))
}

func (g *Gateway) readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, g.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if int64(len(body)) > g.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("request body exceeds %d bytes", g.cfg.MaxBodyBytes)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, fmt.Errorf("request body is empty")
	}
	return body, nil
}
