package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "outreach.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "sheets", cfg.Leads.Backend)
	assert.Equal(t, "test_sheets", cfg.Sheets.SourceSheet)
	assert.Equal(t, "outreach_personalisation", cfg.Sheets.OutputSheet)
	assert.Equal(t, "leads.xlsx", cfg.Workbook.Path)
	assert.Equal(t, "compass/google-maps-reviews-scraper", cfg.Apify.Actor)
	assert.Equal(t, "https://api.apify.com/v2", cfg.Apify.BaseURL)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, int64(1024), cfg.Anthropic.MaxTokens)
	assert.Equal(t, 20, cfg.Pipeline.MaxReviews)
	assert.Equal(t, "en", cfg.Pipeline.ReviewLanguage)
	assert.Equal(t, 0, cfg.Pipeline.MaxLeads)
	assert.Equal(t, 1, cfg.Pipeline.Concurrency)
	assert.True(t, cfg.Pipeline.ContinueOnError)
	assert.Equal(t, 120*time.Second, cfg.Pipeline.LeadTimeout())
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
	assert.Equal(t, "Lead", cfg.Salesforce.LeadObject)
	assert.Equal(t, "Outreach_Personalisation__c", cfg.Salesforce.OutputObject)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
leads:
  backend: workbook
workbook:
  path: /data/leads.xlsx
pipeline:
  max_reviews: 10
  concurrency: 4
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "workbook", cfg.Leads.Backend)
	assert.Equal(t, "/data/leads.xlsx", cfg.Workbook.Path)
	assert.Equal(t, 10, cfg.Pipeline.MaxReviews)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, "en", cfg.Pipeline.ReviewLanguage)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
leads:
  backend: workbook
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("OUTREACH_LEADS_BACKEND", "postgres")
	t.Setenv("OUTREACH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Leads.Backend)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("OUTREACH_PIPELINE_MAX_LEADS", "25")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Pipeline.MaxLeads)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Leads.Backend = "sheets"
	cfg.Pipeline.MaxReviews = 20
	cfg.Pipeline.Concurrency = 1
	cfg.Server.Port = 8080
	return cfg
}

func TestValidatePipeline_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Apify.Token = "apify_api_token"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Sheets.SpreadsheetID = "sheet-id"
	cfg.Sheets.Token = "ya29.token"

	assert.NoError(t, cfg.Validate("pipeline"))
}

func TestValidatePipeline_MissingFields(t *testing.T) {
	cfg := validDefaults()
	// All pipeline-required fields are empty

	err := cfg.Validate("pipeline")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "apify.token is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "sheets.spreadsheet_id is required")
}

func TestValidateImport_SkipsPipelineSettings(t *testing.T) {
	cfg := validDefaults()
	cfg.Leads.Backend = "workbook"
	cfg.Workbook.Path = "leads.xlsx"

	// No apify/anthropic credentials needed for import
	assert.NoError(t, cfg.Validate("import"))
}

func TestValidateBackends(t *testing.T) {
	t.Run("postgres requires database_url", func(t *testing.T) {
		cfg := validDefaults()
		cfg.Apify.Token = "tok"
		cfg.Anthropic.Key = "key"
		cfg.Leads.Backend = "postgres"

		err := cfg.Validate("pipeline")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "postgres.database_url is required")

		cfg.Postgres.DatabaseURL = "postgres://localhost/outreach"
		assert.NoError(t, cfg.Validate("pipeline"))
	})

	t.Run("salesforce requires jwt settings", func(t *testing.T) {
		cfg := validDefaults()
		cfg.Leads.Backend = "salesforce"

		err := cfg.Validate("import")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "salesforce.client_id is required")
		assert.Contains(t, err.Error(), "salesforce.username is required")
		assert.Contains(t, err.Error(), "salesforce.key_path is required")
	})

	t.Run("unknown backend rejected", func(t *testing.T) {
		cfg := validDefaults()
		cfg.Leads.Backend = "airtable"

		err := cfg.Validate("import")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "leads.backend must be one of")
	})
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Apify.Token = "tok"
	cfg.Anthropic.Key = "key"
	cfg.Sheets.SpreadsheetID = "sheet-id"
	cfg.Sheets.Token = "ya29.token"
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Apify.Token = "tok"
	cfg.Anthropic.Key = "key"
	cfg.Sheets.SpreadsheetID = "sheet-id"
	cfg.Sheets.Token = "ya29.token"

	cfg.Pipeline.Concurrency = 0
	err := cfg.Validate("pipeline")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.concurrency must be between 1 and 50")

	cfg.Pipeline.Concurrency = 51
	err = cfg.Validate("pipeline")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.concurrency must be between 1 and 50")

	cfg.Pipeline.Concurrency = 50
	assert.NoError(t, cfg.Validate("pipeline"))
}
