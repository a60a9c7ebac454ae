package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"inbox-triage/internal/logger"
	"inbox-triage/internal/model"
	"inbox-triage/internal/repository"
	"inbox-triage/internal/service"
)

// APIHandler exposes the processor as JSON.
type APIHandler struct {
	processor service.EmailProcessor
	logger    *logger.Logger
}

func NewAPIHandler(processor service.EmailProcessor, logger *logger.Logger) *APIHandler {
	return &APIHandler{processor: processor, logger: logger}
}

type processRequest struct {
	FromStart bool `json:"from_start"`
}

type decisionsRequest struct {
	Decisions map[string]model.Decision `json:"decisions"`
}

type restoreRequest struct {
	IDs []string `json:"ids"`
}

type restoreResponse struct {
	Restored []string `json:"restored"`
	Error    string   `json:"error,omitempty"`
}

func (h *APIHandler) Status(c echo.Context) error {
	status, err := h.processor.GetPaginationStatus(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

func (h *APIHandler) Stats(c echo.Context) error {
	stats, err := h.processor.GetStats(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *APIHandler) PendingRun(c echo.Context) error {
	run, err := h.processor.GetPendingReview(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	if run == nil {
		return h.fail(c, service.ErrNoPendingRun)
	}
	return c.JSON(http.StatusOK, run)
}

func (h *APIHandler) IncompleteRun(c echo.Context) error {
	info, err := h.processor.GetIncompleteRunInfo(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	if info == nil {
		return h.fail(c, service.ErrNoPendingRun)
	}
	return c.JSON(http.StatusOK, info)
}

func (h *APIHandler) RunProgress(c echo.Context) error {
	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}
	progress, err := h.processor.GetRunProgress(c.Request().Context(), runID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, progress)
}

func (h *APIHandler) ProcessPage(c echo.Context) error {
	var req processRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	result, err := h.processor.ProcessNextPage(c.Request().Context(), service.ProcessOptions{FromStart: req.FromStart})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *APIHandler) ApplyDecisions(c echo.Context) error {
	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}
	var req decisionsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	result, err := h.processor.ApplyDecisions(c.Request().Context(), runID, req.Decisions)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *APIHandler) DeletionHistory(c echo.Context) error {
	days := 0
	if raw := c.QueryParam("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "days must be a positive number"})
		}
		days = v
	}
	history, err := h.processor.GetDeletionHistory(c.Request().Context(), days)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, history)
}

func (h *APIHandler) RestoreEmails(c echo.Context) error {
	var req restoreRequest
	if err := c.Bind(&req); err != nil || len(req.IDs) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "ids are required"})
	}
	restored, err := h.processor.RestoreEmails(c.Request().Context(), req.IDs)
	if restored == nil {
		restored = []string{}
	}
	if errors.Is(err, service.ErrNotRestorable) {
		return c.JSON(http.StatusBadRequest, restoreResponse{Restored: restored, Error: err.Error()})
	}
	if err != nil {
		h.logger.Error("Restore failed:", err)
		return c.JSON(http.StatusBadGateway, restoreResponse{Restored: restored, Error: err.Error()})
	}
	return c.JSON(http.StatusOK, restoreResponse{Restored: restored})
}

func (h *APIHandler) TestConnections(c echo.Context) error {
	report := h.processor.TestConnections(c.Request().Context())
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}

func (h *APIHandler) fail(c echo.Context, err error) error {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("API request failed:", err)
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

// errorStatus maps processor errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrRunMismatch), errors.Is(err, service.ErrDecisionConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoPendingRun), errors.Is(err, repository.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrIncompleteDecisions),
		errors.Is(err, service.ErrUnknownEmail),
		errors.Is(err, service.ErrInvalidDecision),
		errors.Is(err, service.ErrNotRestorable):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrDeletionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
