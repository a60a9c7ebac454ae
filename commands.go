package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	flag "github.com/spf13/pflag"

	"inbox-triage/internal/cli"
	"inbox-triage/internal/config"
	"inbox-triage/internal/handler"
	"inbox-triage/internal/middleware"
	"inbox-triage/internal/router"
	"inbox-triage/internal/service"
)

func (a *app) serve(ctx context.Context) error {
	renderer, err := handler.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Renderer = renderer

	// Middleware
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(a.logger))
	e.Use(middleware.Metrics())

	store := handler.NewSessionStore([]byte(a.cfg.SessionSecret), a.cfg.Env == "production")
	webHandler := handler.NewWebHandler(a.processor, store, a.logger)
	apiHandler := handler.NewAPIHandler(a.processor, a.logger)

	var authHandler *handler.AuthHandler
	if a.cfg.MailProvider == config.ProviderGmail {
		authHandler = handler.NewAuthHandler(a.cfg.GoogleClientID, a.cfg.GoogleClientSecret, a.cfg.BaseURL, store, a.creds, a.logger)
	}
	router.SetupRoutes(e, webHandler, apiHandler, authHandler)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Failed to shut down server:", err)
		}
	}()

	// Start server
	a.logger.Info("Starting server on port", a.cfg.Port)
	if err := e.Start(":" + a.cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *app) page(ctx context.Context, args []string) error {
	opts, err := parsePageFlags(args)
	if err != nil {
		return err
	}

	result, err := a.processor.ProcessNextPage(ctx, opts)
	if err != nil {
		fmt.Println(cli.Error("Page analysis failed (will retry same page)"))
		return err
	}
	a.printResult(result)
	return nil
}

func parsePageFlags(args []string) (service.ProcessOptions, error) {
	fs := flag.NewFlagSet("page", flag.ContinueOnError)
	fromStart := fs.Bool("from-start", false, "Ignore the saved position and start from the newest email")
	if err := fs.Parse(args); err != nil {
		return service.ProcessOptions{}, err
	}
	return service.ProcessOptions{FromStart: *fromStart}, nil
}

func (a *app) continuePages(ctx context.Context) error {
	status, err := a.processor.GetPaginationStatus(ctx)
	if err != nil {
		return err
	}
	if !status.CanContinue {
		fmt.Println(cli.Warning("No more pages to process"))
		return nil
	}
	return a.page(ctx, nil)
}

func (a *app) printResult(result *service.ProcessResult) {
	fmt.Println(cli.ProcessResult(result, a.cfg.BaseURL))
	if result.Report != nil {
		fmt.Println()
		fmt.Println(result.Report.Text())
	}
}

func (a *app) status(ctx context.Context) error {
	pending, err := a.processor.GetPendingReview(ctx)
	if err != nil {
		return err
	}
	status, err := a.processor.GetPaginationStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Println(cli.Status(pending, status, a.cfg.BaseURL))
	return nil
}

func (a *app) stats(ctx context.Context) error {
	stats, err := a.processor.GetStats(ctx)
	if err != nil {
		return err
	}
	status, err := a.processor.GetPaginationStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Println(cli.Stats(stats, status, a.processor.Settings().PageSize))
	return nil
}

func (a *app) test(ctx context.Context) error {
	report := a.processor.TestConnections(ctx)
	fmt.Println(cli.Connections(report))
	if !report.OK() {
		return errors.New("connection test failed")
	}
	return nil
}

func (a *app) history(ctx context.Context, args []string) error {
	days, err := parseHistoryFlags(args)
	if err != nil {
		return err
	}

	entries, err := a.processor.GetDeletionHistory(ctx, days)
	if err != nil {
		return err
	}
	fmt.Println(cli.History(entries, days))
	return nil
}

func parseHistoryFlags(args []string) (int, error) {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	days := fs.Int("days", 30, "How many days back to list")
	if err := fs.Parse(args); err != nil {
		return 0, err
	}
	return *days, nil
}

func (a *app) restore(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return errors.New("at least one email id is required")
	}
	restored, err := a.processor.RestoreEmails(ctx, ids)
	if len(restored) > 0 {
		fmt.Println(cli.Success(fmt.Sprintf("Restored %d of %d emails", len(restored), len(ids))))
	}
	return err
}

// deleteOne trashes the first undecided email of the pending run and keeps
// the rest of the run.
func (a *app) deleteOne(ctx context.Context) error {
	pending, err := a.processor.GetPendingReview(ctx)
	if err != nil {
		return err
	}
	if pending == nil {
		fmt.Println(cli.Warning("No pending analysis found. Run 'inbox-triage page' first."))
		return nil
	}
	undecided := pending.Undecided()
	if len(undecided) == 0 {
		fmt.Println(cli.Warning("No emails in pending analysis."))
		return nil
	}

	first := undecided[0]
	fmt.Println(cli.Candidate(first))
	ok, err := cli.ConfirmDeletion("Delete this email?", "Every other email in the run will be kept.")
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Deletion cancelled.")
		return nil
	}

	decisions := handler.DefaultToKeep(pending, []string{first.EmailID})
	result, err := a.processor.ApplyDecisions(ctx, pending.Run.ID, decisions)
	if err != nil {
		fmt.Println(cli.Error("Deletion failed."))
		return err
	}
	fmt.Println(cli.Success(fmt.Sprintf("Email deleted successfully! (%d kept)", result.Kept)))
	fmt.Println("Check your mailbox trash folder to confirm.")
	return nil
}

func (a *app) imapPassword() error {
	var password string
	err := huh.NewInput().
		Title("IMAP password for " + a.cfg.IMAP.Username).
		EchoMode(huh.EchoModePassword).
		Value(&password).
		Run()
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("password is empty")
	}
	if err := a.creds.SetIMAPPassword(password); err != nil {
		return err
	}
	fmt.Println(cli.Success("IMAP password stored in the keyring"))
	return nil
}
