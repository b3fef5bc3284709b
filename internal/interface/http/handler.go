package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/flarecast/internal/domain/insight"
)

// Handler wires the HTTP transport to the insight service.
type Handler struct {
	insightSvc insight.Service
	logger     *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(insightSvc insight.Service, logger *slog.Logger) *Handler {
	return &Handler{
		insightSvc: insightSvc,
		logger:     logger.With("component", "http.handler"),
	}
}

// analyzeRequest is the client payload: the analysis inputs plus an
// optional force flag. user_id is taken from the token, not the body.
type analyzeRequest struct {
	Symptoms       []insight.SymptomRecord   `json:"symptoms"`
	Weather        []insight.WeatherSnapshot `json:"weather"`
	HourlyForecast []insight.WeatherSnapshot `json:"hourly_forecast"`
	WeeklyForecast []insight.WeatherSnapshot `json:"weekly_forecast"`
	Diagnoses      []string                  `json:"diagnoses"`
	Force          bool                      `json:"force"`
}

// Healthz reports liveness.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Analyze triggers an analysis for the caller's session. The response is 202
// unless the caller waited for the outcome or the inputs were unchanged.
func (h *Handler) Analyze(c *gin.Context) {
	claims, ok := getClaims(c)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing claims", nil))
		return
	}

	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	wait := false
	if raw := c.Query("wait"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "wait must be a boolean", err))
			return
		}
		wait = parsed
	}

	userID := claims.UserID
	receipt, err := h.insightSvc.Analyze(c.Request.Context(), userID, insight.Submission{
		Request: insight.AnalysisRequest{
			Symptoms:       req.Symptoms,
			Weather:        req.Weather,
			HourlyForecast: req.HourlyForecast,
			WeeklyForecast: req.WeeklyForecast,
			Diagnoses:      req.Diagnoses,
			UserID:         &userID,
		},
		BearerToken: getBearer(c),
		Force:       req.Force,
		Wait:        wait,
	})
	if err != nil {
		abortWithError(c, fromDomainError(err, "analyze_failed"))
		return
	}

	status := http.StatusAccepted
	if wait || receipt.Skipped {
		status = http.StatusOK
	}
	c.JSON(status, receipt)
}

// State returns the caller's latest insight state.
func (h *Handler) State(c *gin.Context) {
	claims, ok := getClaims(c)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing claims", nil))
		return
	}
	state, err := h.insightSvc.State(c.Request.Context(), claims.UserID)
	if err != nil {
		abortWithError(c, fromDomainError(err, "state_failed"))
		return
	}
	c.JSON(http.StatusOK, state)
}

// Stream pushes every published state using Server-Sent Events until the
// client disconnects or the session is reset.
func (h *Handler) Stream(c *gin.Context) {
	claims, ok := getClaims(c)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing claims", nil))
		return
	}

	states, err := h.insightSvc.Watch(c.Request.Context(), claims.UserID)
	if err != nil {
		abortWithError(c, fromDomainError(err, "stream_failed"))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "stream_unsupported", "streaming not supported", nil))
		return
	}

	// The server write timeout would otherwise cut long-lived streams.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for state := range states {
		payload, err := json.Marshal(state)
		if err != nil {
			h.logger.Error("marshal state failed", "error", err)
			continue
		}
		c.Writer.Write([]byte("data: "))
		c.Writer.Write(payload)
		c.Writer.Write([]byte("\n\n"))
		flusher.Flush()
	}
}

// Reset discards the caller's session.
func (h *Handler) Reset(c *gin.Context) {
	h.resetSession(c, "reset_failed")
}

// Logout ends the session. Tokens are stateless, so this only clears
// insight state.
func (h *Handler) Logout(c *gin.Context) {
	h.resetSession(c, "logout_failed")
}

func (h *Handler) resetSession(c *gin.Context, fallbackCode string) {
	claims, ok := getClaims(c)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing claims", nil))
		return
	}
	if err := h.insightSvc.Reset(c.Request.Context(), claims.UserID); err != nil {
		abortWithError(c, fromDomainError(err, fallbackCode))
		return
	}
	c.Status(http.StatusNoContent)
}
