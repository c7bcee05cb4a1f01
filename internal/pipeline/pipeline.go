// Package pipeline orchestrates one enrichment run: load leads, filter out
// processed identifiers, then fetch reviews, generate insights, and upsert a
// personalization row per lead.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/leadstore"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// ErrNoLeads is returned when the lead source table has no rows.
var ErrNoLeads = eris.New("pipeline: no leads found in source table")

// ReviewFetcher fetches one review group per lead identifier.
type ReviewFetcher interface {
	Fetch(ctx context.Context, ids []string) ([][]model.Review, error)
}

// InsightGenerator produces review insights and DM openers, accumulating
// model token usage across calls.
type InsightGenerator interface {
	Summarize(ctx context.Context, reviews []model.Review, businessName string) (model.ReviewInsight, error)
	Personalize(ctx context.Context, lead model.Lead) (string, error)
	Usage() anthropic.TokenUsage
}

// Options configures a pipeline run.
type Options struct {
	// MaxLeads caps the work queue after filtering. 0 means unbounded.
	MaxLeads int
	// Concurrency bounds the worker pool. Defaults to 1 (sequential).
	Concurrency int
	// ContinueOnError keeps the run going after a lead fails. When false,
	// the first failure cancels the pool and fails the run.
	ContinueOnError bool
	// LeadTimeout is the per-lead deadline. Defaults to 2 minutes.
	LeadTimeout time.Duration
	// Model is the generation model id, used for cost estimation.
	Model string
}

// Pipeline runs the enrichment flow over a lead store.
type Pipeline struct {
	leads    leadstore.Store
	reviews  ReviewFetcher
	insights InsightGenerator
	opts     Options
}

// New creates a Pipeline with all collaborators.
func New(leads leadstore.Store, reviews ReviewFetcher, insights InsightGenerator, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.LeadTimeout <= 0 {
		opts.LeadTimeout = 2 * time.Minute
	}
	return &Pipeline{
		leads:    leads,
		reviews:  reviews,
		insights: insights,
		opts:     opts,
	}
}

// Run executes one full pipeline pass and returns its report. The report is
// data: callers persist it, render it, or publish it without re-parsing logs.
func (p *Pipeline) Run(ctx context.Context) (*model.RunReport, error) {
	start := time.Now()
	// The generator's usage is cumulative over its lifetime; snapshot it so
	// the report carries only this run's tokens when the pipeline is reused
	// across runs (serve mode).
	startUsage := p.insights.Usage()

	processed, err := p.leads.ReadProcessedIDs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read processed identifiers")
	}

	leads, err := p.leads.ReadAllLeads(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read leads")
	}
	if len(leads) == 0 {
		return nil, ErrNoLeads
	}

	queue := filterLeads(leads, processed)
	if p.opts.MaxLeads > 0 && len(queue) > p.opts.MaxLeads {
		queue = queue[:p.opts.MaxLeads]
	}

	report := &model.RunReport{
		TotalLeads: len(leads),
		Queued:     len(queue),
		Skipped:    len(leads) - len(queue),
	}

	zap.L().Info("pipeline: starting run",
		zap.Int("total_leads", len(leads)),
		zap.Int("processed", len(processed)),
		zap.Int("queued", len(queue)),
	)

	if len(queue) == 0 {
		report.Duration = time.Since(start).Milliseconds()
		zap.L().Info("pipeline: nothing to do, all leads already processed")
		return report, nil
	}

	results := make([]model.LeadResult, len(queue))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for i, lead := range queue {
		g.Go(func() error {
			// A canceled pool means an earlier lead already failed the
			// run; leave this slot empty rather than recording a
			// cascade of context errors.
			if gCtx.Err() != nil {
				return nil
			}

			res := p.processLead(gCtx, lead)
			results[i] = res

			if res.Status == model.LeadStatusFailed && !p.opts.ContinueOnError {
				return eris.Errorf("pipeline: lead %s failed: %s", lead.DisplayName(), res.Error)
			}
			return nil
		})
	}

	runErr := g.Wait()

	for _, res := range results {
		if res.Status == "" {
			continue
		}
		report.Results = append(report.Results, res)
		switch res.Status {
		case model.LeadStatusSucceeded:
			report.Succeeded++
		case model.LeadStatusFailed:
			report.Failed++
		}
	}

	usage := p.insights.Usage().Sub(startUsage)
	report.TotalTokens = usage.Total()
	report.TotalCost = usage.EstimateCost(p.opts.Model)
	report.Duration = time.Since(start).Milliseconds()

	if runErr != nil {
		return report, runErr
	}

	usage.LogCost(p.opts.Model, "run")
	zap.L().Info("pipeline: run complete",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int64("total_tokens", report.TotalTokens),
		zap.Int64("duration_ms", report.Duration),
	)
	return report, nil
}

// processLead runs one lead through enrich, personalize, and upsert under
// its own deadline. Failures are captured in the result, not returned.
func (p *Pipeline) processLead(ctx context.Context, lead model.Lead) model.LeadResult {
	ctx, cancel := context.WithTimeout(ctx, p.opts.LeadTimeout)
	defer cancel()

	start := time.Now()
	log := zap.L().With(zap.String("business", lead.DisplayName()), zap.String("lead_id", lead.ID))
	log.Info("pipeline: processing lead")

	res := model.LeadResult{
		LeadID:   lead.ID,
		Business: lead.DisplayName(),
	}
	fail := func(err error) model.LeadResult {
		log.Error("pipeline: lead failed", zap.Error(err))
		res.Status = model.LeadStatusFailed
		res.Error = err.Error()
		res.Duration = time.Since(start).Milliseconds()
		return res
	}

	enriched, reviewCount, err := p.enrich(ctx, lead)
	if err != nil {
		return fail(err)
	}
	res.Reviews = reviewCount

	opener, err := p.insights.Personalize(ctx, enriched)
	if err != nil {
		return fail(err)
	}

	// A lead without an identifier still gets its message generated but is
	// never written to the output table.
	if enriched.ID == "" {
		log.Warn("pipeline: lead has no identifier, skipping upsert")
		res.Status = model.LeadStatusSkipped
		res.Duration = time.Since(start).Milliseconds()
		return res
	}

	err = p.leads.Upsert(ctx, model.Personalization{
		LeadID:   enriched.ID,
		Name:     enriched.DisplayName(),
		Owner:    enriched.OwnerName,
		DMOpener: opener,
	})
	if err != nil {
		return fail(err)
	}

	log.Info("pipeline: lead complete", zap.Int("reviews", reviewCount))
	res.Status = model.LeadStatusSucceeded
	res.Duration = time.Since(start).Milliseconds()
	return res
}

// enrich fetches the lead's reviews and folds the summarized insight into
// it. Leads without an identifier, and leads whose fetch returns no
// reviews, pass through unchanged.
func (p *Pipeline) enrich(ctx context.Context, lead model.Lead) (model.Lead, int, error) {
	if lead.ID == "" {
		zap.L().Warn("pipeline: lead has no identifier, skipping review fetch",
			zap.String("business", lead.DisplayName()))
		return lead, 0, nil
	}

	groups, err := p.reviews.Fetch(ctx, []string{lead.ID})
	if err != nil {
		return lead, 0, eris.Wrap(err, "pipeline: fetch reviews")
	}

	var reviews []model.Review
	if len(groups) > 0 {
		reviews = groups[0]
	}
	if len(reviews) == 0 {
		zap.L().Warn("pipeline: no reviews found",
			zap.String("business", lead.DisplayName()),
			zap.String("lead_id", lead.ID))
		return lead, 0, nil
	}

	insight, err := p.insights.Summarize(ctx, reviews, lead.Business)
	if err != nil {
		return lead, len(reviews), eris.Wrap(err, "pipeline: summarize reviews")
	}

	return lead.WithInsight(insight), len(reviews), nil
}

// filterLeads returns the leads still needing processing: those carrying an
// identifier not in the processed set. Source order is preserved.
func filterLeads(leads []model.Lead, processed map[string]struct{}) []model.Lead {
	var queue []model.Lead
	for _, l := range leads {
		if l.ID == "" {
			continue
		}
		if _, done := processed[l.ID]; done {
			continue
		}
		queue = append(queue, l)
	}
	return queue
}
