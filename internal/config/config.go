package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Leads      LeadsConfig      `yaml:"leads" mapstructure:"leads"`
	Sheets     SheetsConfig     `yaml:"sheets" mapstructure:"sheets"`
	Workbook   WorkbookConfig   `yaml:"workbook" mapstructure:"workbook"`
	Postgres   PostgresConfig   `yaml:"postgres" mapstructure:"postgres"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Apify      ApifyConfig      `yaml:"apify" mapstructure:"apify"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run-history database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LeadsConfig selects the lead table backend.
type LeadsConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
}

// SheetsConfig holds Google Sheets settings for the sheet backend.
type SheetsConfig struct {
	SpreadsheetID string `yaml:"spreadsheet_id" mapstructure:"spreadsheet_id"`
	SourceSheet   string `yaml:"source_sheet" mapstructure:"source_sheet"`
	OutputSheet   string `yaml:"output_sheet" mapstructure:"output_sheet"`
	Token         string `yaml:"token" mapstructure:"token"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
}

// WorkbookConfig holds settings for the local XLSX backend.
type WorkbookConfig struct {
	Path        string `yaml:"path" mapstructure:"path"`
	SourceSheet string `yaml:"source_sheet" mapstructure:"source_sheet"`
	OutputSheet string `yaml:"output_sheet" mapstructure:"output_sheet"`
}

// PostgresConfig holds settings for the Postgres lead backend.
type PostgresConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SalesforceConfig holds Salesforce JWT auth settings and object mapping.
type SalesforceConfig struct {
	ClientID        string `yaml:"client_id" mapstructure:"client_id"`
	Username        string `yaml:"username" mapstructure:"username"`
	KeyPath         string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL        string `yaml:"login_url" mapstructure:"login_url"`
	LeadObject      string `yaml:"lead_object" mapstructure:"lead_object"`
	PlaceIDField    string `yaml:"place_id_field" mapstructure:"place_id_field"`
	OutputObject    string `yaml:"output_object" mapstructure:"output_object"`
	ExternalIDField string `yaml:"external_id_field" mapstructure:"external_id_field"`
}

// ApifyConfig holds Apify API settings for the review scraper.
type ApifyConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	Actor   string `yaml:"actor" mapstructure:"actor"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PipelineConfig configures lead processing behavior.
type PipelineConfig struct {
	MaxReviews      int    `yaml:"max_reviews" mapstructure:"max_reviews"`
	ReviewLanguage  string `yaml:"review_language" mapstructure:"review_language"`
	MaxLeads        int    `yaml:"max_leads" mapstructure:"max_leads"`
	Concurrency     int    `yaml:"concurrency" mapstructure:"concurrency"`
	ContinueOnError bool   `yaml:"continue_on_error" mapstructure:"continue_on_error"`
	LeadTimeoutSecs int    `yaml:"lead_timeout_secs" mapstructure:"lead_timeout_secs"`
	PromptsPath     string `yaml:"prompts_path" mapstructure:"prompts_path"`
}

// LeadTimeout returns the per-lead deadline as a duration.
func (p PipelineConfig) LeadTimeout() time.Duration {
	return time.Duration(p.LeadTimeoutSecs) * time.Second
}

// NotionConfig holds the optional run-report sink settings.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	RunsDB string `yaml:"runs_db" mapstructure:"runs_db"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "outreach.db")
	v.SetDefault("leads.backend", "sheets")
	v.SetDefault("sheets.source_sheet", "test_sheets")
	v.SetDefault("sheets.output_sheet", "outreach_personalisation")
	v.SetDefault("workbook.path", "leads.xlsx")
	v.SetDefault("workbook.source_sheet", "test_sheets")
	v.SetDefault("workbook.output_sheet", "outreach_personalisation")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.lead_object", "Lead")
	v.SetDefault("salesforce.place_id_field", "Place_ID__c")
	v.SetDefault("salesforce.output_object", "Outreach_Personalisation__c")
	v.SetDefault("salesforce.external_id_field", "Lead_ID__c")
	v.SetDefault("apify.actor", "compass/google-maps-reviews-scraper")
	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("pipeline.max_reviews", 20)
	v.SetDefault("pipeline.review_language", "en")
	v.SetDefault("pipeline.max_leads", 0)
	v.SetDefault("pipeline.concurrency", 1)
	v.SetDefault("pipeline.continue_on_error", true)
	v.SetDefault("pipeline.lead_timeout_secs", 120)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that every setting the given command mode needs is present.
// Modes: "pipeline" (run, serve), "serve" (pipeline plus server), "import"
// (lead backend only).
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "pipeline":
		problems = append(problems, c.pipelineProblems()...)
	case "serve":
		problems = append(problems, c.pipelineProblems()...)
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "import":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	problems = append(problems, c.leadBackendProblems()...)

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) pipelineProblems() []string {
	var problems []string
	if c.Apify.Token == "" {
		problems = append(problems, "apify.token is required")
	}
	if c.Anthropic.Key == "" {
		problems = append(problems, "anthropic.key is required")
	}
	if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 50 {
		problems = append(problems, "pipeline.concurrency must be between 1 and 50")
	}
	if c.Pipeline.MaxReviews < 1 {
		problems = append(problems, "pipeline.max_reviews must be >= 1")
	}
	return problems
}

func (c *Config) leadBackendProblems() []string {
	var problems []string
	switch c.Leads.Backend {
	case "sheets":
		if c.Sheets.SpreadsheetID == "" {
			problems = append(problems, "sheets.spreadsheet_id is required")
		}
		if c.Sheets.Token == "" {
			problems = append(problems, "sheets.token is required")
		}
	case "workbook":
		if c.Workbook.Path == "" {
			problems = append(problems, "workbook.path is required")
		}
	case "postgres":
		if c.Postgres.DatabaseURL == "" {
			problems = append(problems, "postgres.database_url is required")
		}
	case "salesforce":
		if c.Salesforce.ClientID == "" {
			problems = append(problems, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			problems = append(problems, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			problems = append(problems, "salesforce.key_path is required")
		}
	default:
		problems = append(problems, "leads.backend must be one of sheets, workbook, postgres, salesforce")
	}
	return problems
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
