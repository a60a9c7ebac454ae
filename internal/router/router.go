package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inbox-triage/internal/handler"
)

// SetupRoutes registers the HTML surface, the JSON API, and the
// operational endpoints. authHandler may be nil when the mailbox is not
// Gmail.
func SetupRoutes(
	e *echo.Echo,
	webHandler *handler.WebHandler,
	apiHandler *handler.APIHandler,
	authHandler *handler.AuthHandler,
) {
	if authHandler != nil {
		e.GET("/auth/:provider", authHandler.BeginAuthHandler)
		e.GET("/auth/:provider/callback", authHandler.CallbackHandler)
		e.GET("/auth/logout", authHandler.LogoutHandler)
	}

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/", webHandler.Dashboard)
	e.POST("/analyze", webHandler.Analyze)
	e.GET("/review/:id", webHandler.Review)
	e.POST("/delete/:id", webHandler.ExecuteDeletions)
	e.POST("/test", webHandler.TestConnections)

	api := e.Group("/api")
	api.GET("/status", apiHandler.Status)
	api.GET("/stats", apiHandler.Stats)
	api.GET("/test", apiHandler.TestConnections)
	api.GET("/runs/pending", apiHandler.PendingRun)
	api.GET("/runs/incomplete", apiHandler.IncompleteRun)
	api.GET("/runs/:id/progress", apiHandler.RunProgress)
	api.POST("/runs/process", apiHandler.ProcessPage)
	api.POST("/runs/:id/decisions", apiHandler.ApplyDecisions)
	api.GET("/deletions", apiHandler.DeletionHistory)
	api.POST("/deletions/restore", apiHandler.RestoreEmails)
}
