package main

import (
	"context"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/db"
	"github.com/sells-group/outreach-cli/internal/insight"
	"github.com/sells-group/outreach-cli/internal/leadstore"
	"github.com/sells-group/outreach-cli/internal/pipeline"
	"github.com/sells-group/outreach-cli/internal/review"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
	"github.com/sells-group/outreach-cli/pkg/apify"
	"github.com/sells-group/outreach-cli/pkg/gsheets"
	"github.com/sells-group/outreach-cli/pkg/notion"
	sfpkg "github.com/sells-group/outreach-cli/pkg/salesforce"
)

// pipelineEnv holds the initialized store, lead backend, clients, and the
// pipeline needed by the run/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Leads    leadstore.Store
	Pipeline *pipeline.Pipeline
	Notion   notion.Client // nil when the run-report sink is not configured

	closers []func()
}

// Close releases resources in reverse acquisition order.
func (pe *pipelineEnv) Close() {
	for i := len(pe.closers) - 1; i >= 0; i-- {
		pe.closers[i]()
	}
}

// initPipeline validates config for the given mode, then sets up the run
// store, the lead backend, the review and insight clients, and the pipeline.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{Store: st}
	env.closers = append(env.closers, func() { _ = st.Close() })

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	leads, closeLeads, err := initLeadStore(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Leads = leads
	env.closers = append(env.closers, closeLeads)

	var apifyOpts []apify.Option
	if cfg.Apify.BaseURL != "" {
		apifyOpts = append(apifyOpts, apify.WithBaseURL(cfg.Apify.BaseURL))
	}
	reviews := review.NewAggregator(apify.NewClient(cfg.Apify.Token, apifyOpts...), review.Options{
		Actor:      cfg.Apify.Actor,
		MaxPerLead: cfg.Pipeline.MaxReviews,
		Language:   cfg.Pipeline.ReviewLanguage,
	})

	prompts, err := insight.LoadPrompts(cfg.Pipeline.PromptsPath)
	if err != nil {
		env.Close()
		return nil, err
	}
	insights := insight.NewGenerator(anthropic.NewClient(cfg.Anthropic.Key), insight.Options{
		Model:     cfg.Anthropic.Model,
		MaxTokens: cfg.Anthropic.MaxTokens,
		Prompts:   prompts,
	})

	if cfg.Notion.Token != "" {
		env.Notion = notion.NewClient(cfg.Notion.Token)
	}

	env.Pipeline = pipeline.New(leads, reviews, insights, pipeline.Options{
		MaxLeads:        cfg.Pipeline.MaxLeads,
		Concurrency:     cfg.Pipeline.Concurrency,
		ContinueOnError: cfg.Pipeline.ContinueOnError,
		LeadTimeout:     cfg.Pipeline.LeadTimeout(),
		Model:           cfg.Anthropic.Model,
	})

	return env, nil
}

// initStore opens the run-history store named by config.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "outreach.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initLeadStore opens the configured lead backend. The returned closer
// releases backend resources and is a no-op for file and API backends.
func initLeadStore(ctx context.Context) (leadstore.Store, func(), error) {
	noop := func() {}

	switch cfg.Leads.Backend {
	case "sheets":
		var opts []gsheets.Option
		if cfg.Sheets.BaseURL != "" {
			opts = append(opts, gsheets.WithBaseURL(cfg.Sheets.BaseURL))
		}
		client := gsheets.NewClient(cfg.Sheets.Token, opts...)
		return leadstore.NewSheetStore(client, cfg.Sheets.SpreadsheetID, cfg.Sheets.SourceSheet, cfg.Sheets.OutputSheet), noop, nil

	case "workbook":
		return leadstore.NewWorkbookStore(cfg.Workbook.Path, cfg.Workbook.SourceSheet, cfg.Workbook.OutputSheet), noop, nil

	case "postgres":
		pool, err := db.NewPool(ctx, cfg.Postgres.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		ls := leadstore.NewPostgres(pool)
		if err := ls.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return ls, pool.Close, nil

	case "salesforce":
		client, err := initSalesforce()
		if err != nil {
			return nil, nil, err
		}
		return leadstore.NewSalesforce(client, leadstore.SalesforceMapping{
			LeadObject:      cfg.Salesforce.LeadObject,
			PlaceIDField:    cfg.Salesforce.PlaceIDField,
			OutputObject:    cfg.Salesforce.OutputObject,
			ExternalIDField: cfg.Salesforce.ExternalIDField,
		}), noop, nil

	default:
		return nil, nil, eris.Errorf("unsupported lead backend: %s", cfg.Leads.Backend)
	}
}

// initSalesforce authenticates against Salesforce with the configured JWT key.
func initSalesforce() (sfpkg.Client, error) {
	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf), nil
}
