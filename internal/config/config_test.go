package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadRulesMissingFileUsesDefaults(t *testing.T) {
	rules, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), rules)
}

func TestLoadRules(t *testing.T) {
	path := writeRules(t, `
pagination:
  page_size: 25
deletion_rules:
  protected_senders: ["@bank.com"]
  auto_delete_patterns: ["newsletter"]
ai:
  fallback_on_error: true
`)
	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, 25, rules.Pagination.PageSize)
	assert.Equal(t, 30, rules.Mailbox.DaysToAnalyze)
	assert.Equal(t, 30, rules.AI.MaxBatch)
	assert.True(t, rules.AI.FallbackOnError)

	set := rules.RuleSet()
	assert.Equal(t, []string{"@bank.com"}, set.ProtectedSenders)
	assert.Equal(t, []string{"newsletter"}, set.AutoDeletePatterns)
}

func TestLoadRulesRejectsBadYAML(t *testing.T) {
	_, err := LoadRules(writeRules(t, "pagination: [oops"))
	assert.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("RULES_FILE", writeRules(t, "pagination:\n  page_size: 10\n"))
	t.Setenv("PAGE_SIZE", "20")
	t.Setenv("DAYS_BACK", "7")
	t.Setenv("DATABASE_URL", "postgres://localhost/triage")
	t.Setenv("DB_DRIVER", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Rules.Pagination.PageSize)
	assert.Equal(t, 7, cfg.Rules.Mailbox.DaysToAnalyze)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DBDriver:           DriverSQLite,
			DBPath:             "data/emails.db",
			MailProvider:       ProviderGmail,
			GoogleClientID:     "id",
			GoogleClientSecret: "secret",
			AIKey:              "key",
			SessionSecret:      "secret",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, "unsupported DB_DRIVER"},
		{"postgres without url", func(c *Config) { c.DBDriver = DriverPostgres }, "DATABASE_URL"},
		{"missing ai key", func(c *Config) { c.AIKey = "" }, "AI_API_KEY"},
		{"imap without host", func(c *Config) { c.MailProvider = ProviderIMAP }, "IMAP_HOST"},
		{"unknown provider", func(c *Config) { c.MailProvider = "pop3" }, "unsupported MAIL_PROVIDER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateStoreIgnoresMailbox(t *testing.T) {
	c := &Config{DBDriver: DriverMemory}
	assert.NoError(t, c.ValidateStore())
}
