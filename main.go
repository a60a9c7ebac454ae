package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"inbox-triage/internal/ai"
	"inbox-triage/internal/config"
	"inbox-triage/internal/credential"
	"inbox-triage/internal/gmail"
	"inbox-triage/internal/imap"
	"inbox-triage/internal/logger"
	"inbox-triage/internal/repository"
	"inbox-triage/internal/repository/memory"
	"inbox-triage/internal/repository/sqlstore"
	"inbox-triage/internal/service"
)

func main() {
	flag.Usage = printUsage
	cmd, cmdArgs, err := parseCommand(flag.CommandLine, os.Args[1:])
	if err != nil {
		fatal("%v", err)
	}
	if cmd == "" {
		printUsage()
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fatal("failed to load config: %v", err)
	}

	appLogger := logger.New()
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	validate := cfg.Validate
	switch cmd {
	case "stats", "history", "imap-password":
		validate = cfg.ValidateStore
	}
	if err := validate(); err != nil {
		fatal("config validation failed: %v", err)
	}

	a, err := newApp(ctx, cfg, appLogger)
	if err != nil {
		fatal("%v", err)
	}
	defer a.close()

	switch cmd {
	case "serve":
		err = a.serve(ctx)
	case "page":
		err = a.page(ctx, cmdArgs)
	case "continue":
		err = a.continuePages(ctx)
	case "status":
		err = a.status(ctx)
	case "stats":
		err = a.stats(ctx)
	case "test":
		err = a.test(ctx)
	case "history":
		err = a.history(ctx, cmdArgs)
	case "restore":
		err = a.restore(ctx, cmdArgs)
	case "delete-one":
		err = a.deleteOne(ctx)
	case "imap-password":
		err = a.imapPassword()
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		a.close()
		fatal("%s: %v", cmd, err)
	}
}

// parseCommand parses the global flags and splits off the command name.
// Parsing stops at the first non-flag argument so command flags such as
// "page --from-start" reach the command's own flag set.
func parseCommand(fs *flag.FlagSet, args []string) (string, []string, error) {
	fs.SetInterspersed(false)
	if err := fs.Parse(args); err != nil {
		return "", nil, err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return "", nil, nil
	}
	return rest[0], rest[1:], nil
}

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *logger.Logger
	repo      repository.RunRepository
	creds     *credential.Store
	processor *service.Processor
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: appLogger}

	switch cfg.DBDriver {
	case config.DriverMemory:
		a.repo = memory.NewInMemoryRunRepository()
		appLogger.Info("Using in-memory run store")
	default:
		dsn := cfg.DBPath
		if cfg.DBDriver == config.DriverPostgres {
			dsn = cfg.DatabaseURL
		}
		store, err := sqlstore.Open(ctx, cfg.DBDriver, dsn, appLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to open run store: %w", err)
		}
		a.repo = store
		a.closers = append(a.closers, store.Close)
		appLogger.Info("Using", cfg.DBDriver, "run store")
	}

	creds, err := credential.Open(cfg.KeyringDir, cfg.KeyringPassword)
	if err != nil {
		a.close()
		return nil, err
	}
	a.creds = creds

	mailbox, err := a.newMailbox()
	if err != nil {
		a.close()
		return nil, err
	}

	aiClient := ai.NewClient(ai.Options{
		Provider:        cfg.AIProvider,
		APIKey:          cfg.AIKey,
		Model:           cfg.Rules.AI.Model,
		MaxBatch:        cfg.Rules.AI.MaxBatch,
		FallbackOnError: cfg.Rules.AI.FallbackOnError,
	}, appLogger)

	a.processor = service.NewProcessor(a.repo, mailbox, aiClient, service.Settings{
		PageSize: cfg.Rules.Pagination.PageSize,
		DaysBack: cfg.Rules.Mailbox.DaysToAnalyze,
		Rules:    cfg.Rules.RuleSet(),
	}, appLogger)
	return a, nil
}

func (a *app) newMailbox() (service.MailboxClient, error) {
	switch a.cfg.MailProvider {
	case config.ProviderIMAP:
		password, err := a.creds.IMAPPassword(a.cfg.IMAP.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to read IMAP password: %w", err)
		}
		return imap.NewClient(imap.Config{
			Host:        a.cfg.IMAP.Host,
			Port:        a.cfg.IMAP.Port,
			Username:    a.cfg.IMAP.Username,
			Password:    password,
			TLS:         a.cfg.IMAP.TLS,
			TrashFolder: a.cfg.IMAP.TrashFolder,
		}, a.logger), nil
	default:
		oauth := gmail.OAuthConfig(a.cfg.GoogleClientID, a.cfg.GoogleClientSecret, a.cfg.BaseURL+"/auth/google/callback")
		return gmail.NewAccountClient(oauth, a.creds, a.logger), nil
	}
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("Failed to close resource:", err)
		}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `inbox-triage - review and clean up your inbox one page at a time

Usage:
  inbox-triage <command> [options]

Commands:
  serve              Start the web review surface
  page [--from-start] Analyze the next page of emails
  continue           Analyze the next page if one is left
  status             Show what is waiting for review
  stats              Show processing statistics
  test               Test model and mailbox connections
  history [--days N] List deleted emails
  restore <id...>    Move deleted emails back to the inbox
  delete-one         Delete the first pending email after confirmation
  imap-password      Store the IMAP password in the system keyring
`)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
