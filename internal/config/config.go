package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"inbox-triage/internal/model"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

type Config struct {
	Port               string
	BaseURL            string
	Env                string
	SessionSecret      string
	DatabaseURL        string
	DBDriver           string
	DBPath             string
	MailProvider       string
	GoogleClientID     string
	GoogleClientSecret string
	IMAP               IMAPConfig
	AIProvider         string
	AIKey              string
	KeyringDir         string
	KeyringPassword    string
	RulesFile          string
	Rules              Rules
}

type IMAPConfig struct {
	Host        string
	Port        string
	Username    string
	Password    string
	TLS         bool
	TrashFolder string
}

// RuleSet returns the sender rules handed to the processor.
func (r Rules) RuleSet() model.RuleSet {
	return model.RuleSet{
		ProtectedSenders:   r.DeletionRules.ProtectedSenders,
		AutoDeletePatterns: r.DeletionRules.AutoDeletePatterns,
	}
}

// Rules mirrors the YAML rules file.
type Rules struct {
	Pagination    PaginationRules `yaml:"pagination"`
	Mailbox       MailboxRules    `yaml:"mailbox"`
	DeletionRules DeletionRules   `yaml:"deletion_rules"`
	AI            AIRules         `yaml:"ai"`
}

type PaginationRules struct {
	PageSize int `yaml:"page_size"`
}

type MailboxRules struct {
	DaysToAnalyze int `yaml:"days_to_analyze"`
}

type DeletionRules struct {
	ProtectedSenders   []string `yaml:"protected_senders"`
	AutoDeletePatterns []string `yaml:"auto_delete_patterns"`
}

type AIRules struct {
	Model           string `yaml:"model"`
	MaxBatch        int    `yaml:"max_batch"`
	FallbackOnError bool   `yaml:"fallback_on_error"`
}

func DefaultRules() Rules {
	return Rules{
		Pagination: PaginationRules{PageSize: 50},
		Mailbox:    MailboxRules{DaysToAnalyze: 30},
		AI:         AIRules{MaxBatch: 30},
	}
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:               GetEnv("PORT", "8080"),
		BaseURL:            GetEnv("BASE_URL", "http://localhost:8080"),
		Env:                GetEnv("ENV", "development"),
		SessionSecret:      GetEnv("SESSION_SECRET", "f3b1c0de-8a3e-4a51-9d0e-inbox-triage"),
		DatabaseURL:        GetEnv("DATABASE_URL", ""),
		DBDriver:           GetEnv("DB_DRIVER", ""),
		DBPath:             GetEnv("DB_PATH", "data/emails.db"),
		MailProvider:       GetEnv("MAIL_PROVIDER", ProviderGmail),
		GoogleClientID:     GetEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: GetEnv("GOOGLE_CLIENT_SECRET", ""),
		IMAP: IMAPConfig{
			Host:        GetEnv("IMAP_HOST", ""),
			Port:        GetEnv("IMAP_PORT", "993"),
			Username:    GetEnv("IMAP_USERNAME", ""),
			Password:    GetEnv("IMAP_PASSWORD", ""),
			TLS:         GetEnvBool("IMAP_TLS", true),
			TrashFolder: GetEnv("IMAP_TRASH_FOLDER", ""),
		},
		AIProvider:      GetEnv("AI_PROVIDER", "groq"),
		AIKey:           GetEnv("AI_API_KEY", ""),
		KeyringDir:      GetEnv("KEYRING_DIR", "data/keyring"),
		KeyringPassword: GetEnv("KEYRING_PASSWORD", ""),
		RulesFile:       GetEnv("RULES_FILE", "config/config.yaml"),
	}

	if cfg.DBDriver == "" {
		if cfg.DatabaseURL != "" {
			cfg.DBDriver = DriverPostgres
		} else {
			cfg.DBDriver = DriverSQLite
		}
	}

	rules, err := LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	cfg.Rules = rules
	applyRuleOverrides(&cfg.Rules)

	return cfg, nil
}

// LoadRules reads the YAML rules file. A missing file yields the defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rules, nil
		}
		return rules, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&rules); err != nil {
		return rules, fmt.Errorf("failed to decode rules file %s: %w", path, err)
	}

	if rules.Pagination.PageSize <= 0 {
		rules.Pagination.PageSize = 50
	}
	if rules.Mailbox.DaysToAnalyze <= 0 {
		rules.Mailbox.DaysToAnalyze = 30
	}
	if rules.AI.MaxBatch <= 0 {
		rules.AI.MaxBatch = 30
	}
	return rules, nil
}

func applyRuleOverrides(rules *Rules) {
	if v := GetEnvInt("PAGE_SIZE", 0); v > 0 {
		rules.Pagination.PageSize = v
	}
	if v := GetEnvInt("DAYS_BACK", 0); v > 0 {
		rules.Mailbox.DaysToAnalyze = v
	}
	if v := GetEnv("AI_MODEL", ""); v != "" {
		rules.AI.Model = v
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvInt(key string, defaultValue int) int {
	raw := strings.TrimSpace(GetEnv(key, ""))
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func GetEnvBool(key string, defaultValue bool) bool {
	raw := strings.TrimSpace(GetEnv(key, ""))
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	switch c.MailProvider {
	case ProviderGmail:
		if c.GoogleClientID == "" {
			return fmt.Errorf("GOOGLE_CLIENT_ID is required")
		}
		if c.GoogleClientSecret == "" {
			return fmt.Errorf("GOOGLE_CLIENT_SECRET is required")
		}
	case ProviderIMAP:
		if c.IMAP.Host == "" {
			return fmt.Errorf("IMAP_HOST is required")
		}
		if c.IMAP.Username == "" {
			return fmt.Errorf("IMAP_USERNAME is required")
		}
	default:
		return fmt.Errorf("unsupported MAIL_PROVIDER: %s", c.MailProvider)
	}

	if c.AIKey == "" {
		return fmt.Errorf("AI_API_KEY is required")
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	return nil
}

// ValidateStore checks only the storage settings; read-only commands such as
// stats and history need nothing else.
func (c *Config) ValidateStore() error {
	switch c.DBDriver {
	case DriverSQLite, DriverMemory:
		return nil
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
		return nil
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
}
