package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// fakeLeadStore is an in-memory lead store. Upserted rows feed the
// processed set so a second run sees them.
type fakeLeadStore struct {
	mu    sync.Mutex
	leads []model.Lead
	rows  map[string]model.Personalization

	readErr   error
	upsertErr error
}

func newFakeLeadStore(leads ...model.Lead) *fakeLeadStore {
	return &fakeLeadStore{leads: leads, rows: make(map[string]model.Personalization)}
}

func (s *fakeLeadStore) ReadAllLeads(_ context.Context) ([]model.Lead, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.leads, nil
}

func (s *fakeLeadStore) ReadProcessedIDs(_ context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]struct{}, len(s.rows))
	for id := range s.rows {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (s *fakeLeadStore) Upsert(_ context.Context, p model.Personalization) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.LeadID] = p
	return nil
}

// fakeReviewFetcher returns canned review groups and counts calls.
type fakeReviewFetcher struct {
	mu      sync.Mutex
	batches [][]string
	fn      func(ctx context.Context, ids []string) ([][]model.Review, error)
}

func (f *fakeReviewFetcher) Fetch(ctx context.Context, ids []string) ([][]model.Review, error) {
	f.mu.Lock()
	f.batches = append(f.batches, ids)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, ids)
	}
	groups := make([][]model.Review, len(ids))
	for i, id := range ids {
		groups[i] = []model.Review{{Name: "Priya", Text: "Great service from " + id}}
	}
	return groups, nil
}

func (f *fakeReviewFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

// fakeInsights returns canned insights and openers and counts calls.
type fakeInsights struct {
	mu               sync.Mutex
	summarizeCalls   int
	personalizeCalls int
	personalized     []model.Lead

	summarizeFn   func(ctx context.Context, reviews []model.Review, businessName string) (model.ReviewInsight, error)
	personalizeFn func(ctx context.Context, lead model.Lead) (string, error)
	usage         anthropic.TokenUsage
}

func (f *fakeInsights) Summarize(ctx context.Context, reviews []model.Review, businessName string) (model.ReviewInsight, error) {
	f.mu.Lock()
	f.summarizeCalls++
	f.mu.Unlock()
	if f.summarizeFn != nil {
		return f.summarizeFn(ctx, reviews, businessName)
	}
	return model.ReviewInsight{OwnerName: "Rob", ReviewSummary: "Customers love the fast service."}, nil
}

func (f *fakeInsights) Personalize(ctx context.Context, lead model.Lead) (string, error) {
	f.mu.Lock()
	f.personalizeCalls++
	f.personalized = append(f.personalized, lead)
	f.mu.Unlock()
	if f.personalizeFn != nil {
		return f.personalizeFn(ctx, lead)
	}
	return "Hi " + lead.DisplayName() + ", loved what your customers say.", nil
}

func (f *fakeInsights) Usage() anthropic.TokenUsage {
	return f.usage
}

func newTestPipeline(store *fakeLeadStore, opts Options) (*Pipeline, *fakeReviewFetcher, *fakeInsights) {
	fetcher := &fakeReviewFetcher{}
	insights := &fakeInsights{usage: anthropic.TokenUsage{InputTokens: 300, OutputTokens: 60}}
	return New(store, fetcher, insights, opts), fetcher, insights
}

func TestRunProcessesAllLeads(t *testing.T) {
	store := newFakeLeadStore(
		model.Lead{ID: "A", Business: "Acme Plumbing"},
		model.Lead{ID: "B", Business: "Beta Bakery"},
	)
	p, fetcher, insights := newTestPipeline(store, Options{})

	report, err := p.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalLeads)
	assert.Equal(t, 2, report.Queued)
	assert.Equal(t, 2, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.Skipped)
	assert.Equal(t, int64(360), report.TotalTokens)
	assert.GreaterOrEqual(t, report.Duration, int64(0))

	require.Len(t, report.Results, 2)
	assert.Equal(t, "A", report.Results[0].LeadID)
	assert.Equal(t, "B", report.Results[1].LeadID)
	assert.Equal(t, 1, report.Results[0].Reviews)

	// One single-identifier fetch per lead.
	assert.Equal(t, [][]string{{"A"}, {"B"}}, fetcher.batches)
	assert.Equal(t, 2, insights.summarizeCalls)
	assert.Equal(t, 2, insights.personalizeCalls)

	require.Len(t, store.rows, 2)
	rowA := store.rows["A"]
	assert.Equal(t, "Acme Plumbing", rowA.Name)
	assert.Equal(t, "Rob", rowA.Owner)
	assert.NotEmpty(t, rowA.DMOpener)
}

func TestRunRerunMakesNoBackendCalls(t *testing.T) {
	store := newFakeLeadStore(
		model.Lead{ID: "A", Business: "Acme Plumbing"},
		model.Lead{ID: "B", Business: "Beta Bakery"},
	)
	p, fetcher, insights := newTestPipeline(store, Options{})

	_, err := p.Run(t.Context())
	require.NoError(t, err)
	require.Len(t, store.rows, 2)
	firstOpener := store.rows["A"].DMOpener

	report, err := p.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalLeads)
	assert.Zero(t, report.Queued)
	assert.Equal(t, 2, report.Skipped)
	assert.Empty(t, report.Results)

	// No new backend traffic and the table is unchanged.
	assert.Equal(t, 2, fetcher.calls())
	assert.Equal(t, 2, insights.summarizeCalls)
	assert.Equal(t, 2, insights.personalizeCalls)
	assert.Equal(t, firstOpener, store.rows["A"].DMOpener)
}

func TestRunEmptyLeadTable(t *testing.T) {
	p, fetcher, _ := newTestPipeline(newFakeLeadStore(), Options{})

	_, err := p.Run(t.Context())
	assert.ErrorIs(t, err, ErrNoLeads)
	assert.Zero(t, fetcher.calls())
}

func TestRunLeadReadError(t *testing.T) {
	store := newFakeLeadStore()
	store.readErr = eris.New("sheet gone")
	p, _, _ := newTestPipeline(store, Options{})

	_, err := p.Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read leads")
}

func TestRunFilterSkipsProcessedAndUnidentified(t *testing.T) {
	store := newFakeLeadStore(
		model.Lead{ID: "A", Business: "Acme Plumbing"},
		model.Lead{Business: "No Web Presence LLC"},
		model.Lead{ID: "B", Business: "Beta Bakery"},
	)
	store.rows["A"] = model.Personalization{LeadID: "A", DMOpener: "old opener"}

	p, fetcher, _ := newTestPipeline(store, Options{})

	report, err := p.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalLeads)
	assert.Equal(t, 1, report.Queued)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, [][]string{{"B"}}, fetcher.batches)
	assert.Equal(t, "old opener", store.rows["A"].DMOpener)
}

func TestRunMaxLeadsCap(t *testing.T) {
	store := newFakeLeadStore(
		model.Lead{ID: "A", Business: "Acme Plumbing"},
		model.Lead{ID: "B", Business: "Beta Bakery"},
		model.Lead{ID: "C", Business: "Gamma Gym"},
	)
	p, fetcher, _ := newTestPipeline(store, Options{MaxLeads: 2})

	report, err := p.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Queued)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, [][]string{{"A"}, {"B"}}, fetcher.batches)
	assert.NotContains(t, store.rows, "C")
}

func TestRunNoReviewsStillPersonalizesAndUpserts(t *testing.T) {
	store := newFakeLeadStore(model.Lead{ID: "C", Business: "Gamma Gym"})
	p, fetcher, insights := newTestPipeline(store, Options{})
	fetcher.fn = func(_ context.Context, ids []string) ([][]model.Review, error) {
		return make([][]model.Review, len(ids)), nil
	}

	report, err := p.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	assert.Zero(t, insights.summarizeCalls)
	assert.Equal(t, 1, insights.personalizeCalls)

	// The lead passed to personalize is unenriched.
	require.Len(t, insights.personalized, 1)
	assert.Empty(t, insights.personalized[0].OwnerName)

	require.Contains(t, store.rows, "C")
	assert.NotEmpty(t, store.rows["C"].DMOpener)
	assert.Zero(t, report.Results[0].Reviews)
}

func TestProcessLeadWithoutIDNeverUpserts(t *testing.T) {
	store := newFakeLeadStore()
	p, fetcher, insights := newTestPipeline(store, Options{})

	res := p.processLead(t.Context(), model.Lead{Business: "No Web Presence LLC"})

	assert.Equal(t, model.LeadStatusSkipped, res.Status)
	assert.Zero(t, fetcher.calls())
	assert.Equal(t, 1, insights.personalizeCalls)
	assert.Empty(t, store.rows)
}

func TestRunContinuesAfterLeadFailure(t *testing.T) {
	store := newFakeLeadStore(
		model.Lead{ID: "A", Business: "Acme Plumbing"},
		model.Lead{ID: "B", Business: "Beta Bakery"},
		model.Lead{ID: "C", Business: "Gamma Gym"},
	)
	p, fetcher, _ := newTestPipeline(store, Options{ContinueOnError: true})
	fetcher.fn = func(_ context.Context, ids []string) ([][]model.Review, error) {
		if ids[0] == "B" {
			return nil, eris.New("scraper quota exceeded")
		}
		return [][]model.Review{{{Text: "fine"}}}, nil
	}

	report, err := p.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 3)
	assert.Equal(t, model.LeadStatusFailed, report.Results[1].Status)
	assert.Contains(t, report.Results[1].Error, "fetch reviews")

	assert.Contains(t, store.rows, "A")
	assert.NotContains(t, store.rows, "B")
	assert.Contains(t, store.rows, "C")
}

func TestRunAbortsOnFirstFailure(t *testing.T) {
	store := newFakeLeadStore(
		model.Lead{ID: "A", Business: "Acme Plumbing"},
		model.Lead{ID: "B", Business: "Beta Bakery"},
		model.Lead{ID: "C", Business: "Gamma Gym"},
	)
	p, fetcher, _ := newTestPipeline(store, Options{ContinueOnError: false})
	fetcher.fn = func(_ context.Context, ids []string) ([][]model.Review, error) {
		if ids[0] == "B" {
			return nil, eris.New("scraper quota exceeded")
		}
		return [][]model.Review{{{Text: "fine"}}}, nil
	}

	report, err := p.Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Beta Bakery")

	require.NotNil(t, report)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	// The third lead was never attempted.
	assert.Equal(t, 2, fetcher.calls())
	assert.NotContains(t, store.rows, "C")
}

func TestRunSummarizeErrorFailsLead(t *testing.T) {
	store := newFakeLeadStore(model.Lead{ID: "A", Business: "Acme Plumbing"})
	p, _, insights := newTestPipeline(store, Options{ContinueOnError: true})
	insights.summarizeFn = func(_ context.Context, _ []model.Review, _ string) (model.ReviewInsight, error) {
		return model.ReviewInsight{}, eris.New("model overloaded")
	}

	report, err := p.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Results[0].Error, "summarize reviews")
	// Summarize failed, so the opener was never requested.
	assert.Zero(t, insights.personalizeCalls)
	assert.Empty(t, store.rows)
}

func TestRunPersonalizeErrorFailsLead(t *testing.T) {
	store := newFakeLeadStore(model.Lead{ID: "A", Business: "Acme Plumbing"})
	p, _, insights := newTestPipeline(store, Options{ContinueOnError: true})
	insights.personalizeFn = func(_ context.Context, _ model.Lead) (string, error) {
		return "", eris.New("model overloaded")
	}

	report, err := p.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, store.rows)
}

func TestRunUpsertErrorFailsLead(t *testing.T) {
	store := newFakeLeadStore(model.Lead{ID: "A", Business: "Acme Plumbing"})
	store.upsertErr = eris.New("sheet write denied")
	p, _, _ := newTestPipeline(store, Options{ContinueOnError: true})

	report, err := p.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Results[0].Error, "sheet write denied")
}

func TestRunBoundedConcurrency(t *testing.T) {
	var leads []model.Lead
	for _, id := range []string{"A", "B", "C", "D", "E", "F"} {
		leads = append(leads, model.Lead{ID: id, Business: id + " Co"})
	}
	store := newFakeLeadStore(leads...)
	p, fetcher, _ := newTestPipeline(store, Options{Concurrency: 3, ContinueOnError: true})

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	fetcher.fn = func(_ context.Context, ids []string) ([][]model.Review, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return [][]model.Review{{{Text: "fine"}}}, nil
	}

	report, err := p.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 6, report.Succeeded)
	assert.LessOrEqual(t, maxInFlight, 3)
	assert.Len(t, store.rows, 6)
}

func TestRunPerLeadTimeout(t *testing.T) {
	store := newFakeLeadStore(model.Lead{ID: "A", Business: "Acme Plumbing"})
	p, fetcher, _ := newTestPipeline(store, Options{ContinueOnError: true, LeadTimeout: 10 * time.Millisecond})
	fetcher.fn = func(ctx context.Context, _ []string) ([][]model.Review, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return [][]model.Review{{{Text: "too late"}}}, nil
		}
	}

	report, err := p.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Results[0].Error, "context deadline exceeded")
}

func TestRunCostEstimate(t *testing.T) {
	store := newFakeLeadStore(model.Lead{ID: "A", Business: "Acme Plumbing"})
	p, _, insights := newTestPipeline(store, Options{Model: "claude-haiku-4-5-20251001"})
	insights.usage = anthropic.TokenUsage{InputTokens: 1_000_000}

	report, err := p.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, int64(1_000_000), report.TotalTokens)
	assert.InDelta(t, 0.80, report.TotalCost, 1e-9)
}

func TestRunReportsOnlyOwnUsage(t *testing.T) {
	store := newFakeLeadStore(model.Lead{ID: "A", Business: "Acme Plumbing"})
	p, _, insights := newTestPipeline(store, Options{})

	// The generator accumulates usage across its lifetime, the way the real
	// one does: 100 tokens per call, two calls per lead.
	insights.usage = anthropic.TokenUsage{}
	perCall := anthropic.TokenUsage{InputTokens: 80, OutputTokens: 20}
	insights.summarizeFn = func(_ context.Context, _ []model.Review, _ string) (model.ReviewInsight, error) {
		insights.mu.Lock()
		insights.usage = insights.usage.Add(perCall)
		insights.mu.Unlock()
		return model.ReviewInsight{OwnerName: "Rob", ReviewSummary: "Fast service."}, nil
	}
	insights.personalizeFn = func(_ context.Context, lead model.Lead) (string, error) {
		insights.mu.Lock()
		insights.usage = insights.usage.Add(perCall)
		insights.mu.Unlock()
		return "Hi " + lead.DisplayName(), nil
	}

	first, err := p.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Succeeded)
	assert.Equal(t, int64(200), first.TotalTokens)

	// A later run on the same pipeline processes one new lead and must
	// report that lead's tokens alone, not the generator's running total.
	store.mu.Lock()
	store.leads = append(store.leads, model.Lead{ID: "B", Business: "Beta Bakery"})
	store.mu.Unlock()

	second, err := p.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Succeeded)
	assert.Equal(t, int64(200), second.TotalTokens)
	assert.Equal(t, int64(400), insights.Usage().Total())
}

func TestFilterLeads(t *testing.T) {
	leads := []model.Lead{
		{ID: "A"},
		{Business: "no id"},
		{ID: "B"},
		{ID: "C"},
		{ID: "D"},
	}
	processed := map[string]struct{}{"B": {}, "D": {}}

	queue := filterLeads(leads, processed)

	require.Len(t, queue, 2)
	assert.Equal(t, "A", queue[0].ID)
	assert.Equal(t, "C", queue[1].ID)

	assert.Empty(t, filterLeads(nil, nil))
	assert.Len(t, filterLeads(leads, nil), 4)
}
