package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"

	"inbox-triage/internal/logger"
	"inbox-triage/internal/model"
	"inbox-triage/internal/service"
)

// WebHandler serves the HTML review surface.
type WebHandler struct {
	processor service.EmailProcessor
	flash     flasher
	logger    *logger.Logger
}

func NewWebHandler(processor service.EmailProcessor, store sessions.Store, logger *logger.Logger) *WebHandler {
	return &WebHandler{
		processor: processor,
		flash:     flasher{store: store},
		logger:    logger,
	}
}

type dashboardPage struct {
	Flashes      []Flash
	Stats        *model.Stats
	Pagination   model.PaginationStats
	CanContinue  bool
	PendingRunID int64
}

type reviewPage struct {
	Flashes []Flash
	Run     *model.RunWithEmails
}

// Dashboard shows progress and the main actions
func (h *WebHandler) Dashboard(c echo.Context) error {
	ctx := c.Request().Context()

	stats, err := h.processor.GetStats(ctx)
	if err != nil {
		h.logger.Error("Failed to load stats:", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Error loading dashboard")
	}
	status, err := h.processor.GetPaginationStatus(ctx)
	if err != nil {
		h.logger.Error("Failed to load pagination status:", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Error loading dashboard")
	}

	page := dashboardPage{
		Flashes:     h.flash.pop(c),
		Stats:       stats,
		Pagination:  status.Stats,
		CanContinue: status.CanContinue,
	}
	pending, err := h.processor.GetPendingReview(ctx)
	if err != nil {
		h.logger.Error("Failed to load pending run:", err)
	} else if pending != nil {
		page.PendingRunID = pending.Run.ID
	}
	return c.Render(http.StatusOK, "dashboard.html", page)
}

// Analyze processes the next page and sends the user to review it
func (h *WebHandler) Analyze(c echo.Context) error {
	result, err := h.processor.ProcessNextPage(c.Request().Context(), service.ProcessOptions{})
	if err != nil {
		h.logger.Error("Analysis failed:", err)
		h.flash.add(c, flashError, "Failed to analyze emails - please try again")
		return c.Redirect(http.StatusSeeOther, "/")
	}

	switch result.Outcome {
	case service.OutcomeNoEmails:
		h.flash.add(c, flashWarning, "No emails found on this page")
	case service.OutcomeNothingToAnalyze:
		h.flash.add(c, flashWarning, "No emails remaining after filtering protected senders")
	case service.OutcomeRecovered:
		h.flash.add(c, flashSuccess, fmt.Sprintf("Recovered %d unreviewed emails and analyzed %d new ones",
			result.RecoveredCount, result.EmailCount-result.RecoveredCount))
	default:
		h.flash.add(c, flashSuccess, fmt.Sprintf("Successfully analyzed %d emails!", result.EmailCount))
	}

	if !result.CreatedRun() {
		return c.Redirect(http.StatusSeeOther, "/")
	}
	return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/review/%d", result.RunID))
}

// Review lists the undecided emails of the pending run
func (h *WebHandler) Review(c echo.Context) error {
	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}

	pending, err := h.processor.GetPendingReview(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to load pending run:", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Error loading emails for review")
	}
	if pending == nil || pending.Run.ID != runID {
		h.flash.add(c, flashError, "No pending analysis found for this run")
		return c.Redirect(http.StatusSeeOther, "/")
	}

	return c.Render(http.StatusOK, "review.html", reviewPage{
		Flashes: h.flash.pop(c),
		Run:     pending,
	})
}

// ExecuteDeletions deletes the checked emails and keeps every other
// undecided one.
func (h *WebHandler) ExecuteDeletions(c echo.Context) error {
	ctx := c.Request().Context()
	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}
	reviewURL := fmt.Sprintf("/review/%d", runID)

	form, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	selected := form["selected_emails"]
	if len(selected) == 0 {
		h.flash.add(c, flashWarning, "No emails selected for deletion")
		return c.Redirect(http.StatusSeeOther, reviewURL)
	}

	pending, err := h.processor.GetPendingReview(ctx)
	if err != nil || pending == nil || pending.Run.ID != runID {
		h.flash.add(c, flashError, "Run not found")
		return c.Redirect(http.StatusSeeOther, "/")
	}

	decisions := DefaultToKeep(pending, selected)
	result, err := h.processor.ApplyDecisions(ctx, runID, decisions)
	if err != nil {
		h.logger.Error("Failed to execute decisions:", err)
		if errors.Is(err, service.ErrRunMismatch) {
			h.flash.add(c, flashError, "This run was replaced, please review the new one")
			return c.Redirect(http.StatusSeeOther, "/")
		}
		h.flash.add(c, flashError, "Failed to delete emails")
		return c.Redirect(http.StatusSeeOther, reviewURL)
	}

	h.flash.add(c, flashSuccess, fmt.Sprintf("Successfully deleted %d emails!", len(result.Deleted)))
	return c.Redirect(http.StatusSeeOther, "/")
}

// TestConnections probes the model and the mailbox
func (h *WebHandler) TestConnections(c echo.Context) error {
	report := h.processor.TestConnections(c.Request().Context())
	if report.OK() {
		h.flash.add(c, flashSuccess, "All API connections working correctly!")
	} else {
		h.flash.add(c, flashError, "Some API connections failed. Check logs.")
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

// DefaultToKeep builds a full decision map for the run's undecided emails:
// selected ids are deleted, everything else is kept.
func DefaultToKeep(run *model.RunWithEmails, selected []string) map[string]model.Decision {
	chosen := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		chosen[id] = struct{}{}
	}

	decisions := make(map[string]model.Decision)
	for _, e := range run.Undecided() {
		if _, ok := chosen[e.EmailID]; ok {
			decisions[e.EmailID] = model.DecisionDelete
		} else {
			decisions[e.EmailID] = model.DecisionKeep
		}
	}
	return decisions
}
