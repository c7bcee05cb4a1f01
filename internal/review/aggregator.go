// Package review fetches customer reviews for a batch of leads and groups
// them back per lead identifier.
package review

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/apify"
)

// ErrEmptyBatch is returned when Fetch is called with no identifiers.
var ErrEmptyBatch = eris.New("review: empty identifier batch")

// datasetPageSize is how many dataset items one list call requests.
const datasetPageSize = 1000

// Aggregator runs the scraping actor for a batch of place ids and
// partitions the result stream back into per-id review lists.
type Aggregator struct {
	client     apify.Client
	actor      string
	maxPerLead int
	language   string
	pollOpts   []apify.PollOption
}

// Options configures an Aggregator.
type Options struct {
	// Actor is the scraping actor to run.
	Actor string
	// MaxPerLead caps how many reviews are kept per identifier. Items
	// beyond the cap are discarded. Defaults to 20.
	MaxPerLead int
	// Language is the review language requested from the actor.
	// Defaults to "en".
	Language string
	// PollOpts tune run polling, mainly for tests.
	PollOpts []apify.PollOption
}

// NewAggregator creates an Aggregator over the given client.
func NewAggregator(client apify.Client, opts Options) *Aggregator {
	if opts.MaxPerLead <= 0 {
		opts.MaxPerLead = 20
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	return &Aggregator{
		client:     client,
		actor:      opts.Actor,
		maxPerLead: opts.MaxPerLead,
		language:   opts.Language,
		pollOpts:   opts.PollOpts,
	}
}

// Fetch retrieves reviews for each identifier, returning one review list per
// input id in input order. Identifiers with no scraped reviews get an empty
// list. The batch must be non-empty.
func (a *Aggregator) Fetch(ctx context.Context, ids []string) ([][]model.Review, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}

	run, err := a.client.StartRun(ctx, a.actor, apify.RunInput{
		PlaceIDs:   ids,
		MaxReviews: a.maxPerLead,
		Language:   a.language,
	})
	if err != nil {
		return nil, eris.Wrap(err, "review: start scrape run")
	}

	zap.L().Info("review: scrape run started",
		zap.String("run_id", run.ID),
		zap.Int("places", len(ids)),
	)

	finished, err := apify.WaitForRun(ctx, a.client, run.ID, a.pollOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "review: wait for scrape run")
	}
	if finished.Status != apify.RunStatusSucceeded {
		return nil, eris.Errorf("review: scrape run %s ended with status %s", finished.ID, finished.Status)
	}

	items, err := a.listAllItems(ctx, finished.DefaultDatasetID)
	if err != nil {
		return nil, err
	}

	return a.group(ids, items), nil
}

// listAllItems pages through the run's dataset until a short page.
func (a *Aggregator) listAllItems(ctx context.Context, datasetID string) ([]apify.ReviewItem, error) {
	var items []apify.ReviewItem
	for offset := 0; ; offset += datasetPageSize {
		page, err := a.client.ListDatasetItems(ctx, datasetID, offset, datasetPageSize)
		if err != nil {
			return nil, eris.Wrap(err, "review: list dataset items")
		}
		items = append(items, page...)
		if len(page) < datasetPageSize {
			return items, nil
		}
	}
}

// group partitions the flat item stream into per-id lists in input order.
// Items carrying a place id are grouped by that key; stray items without one
// are dropped rather than guessed at. Only when every item lacks a key does
// grouping fall back to fixed-size positional blocks, which only holds if
// the stream preserves input order.
func (a *Aggregator) group(ids []string, items []apify.ReviewItem) [][]model.Review {
	keyed := 0
	for _, item := range items {
		if item.PlaceID != "" {
			keyed++
		}
	}

	if keyed == 0 {
		if len(items) > 0 {
			zap.L().Warn("review: dataset items missing place ids, falling back to positional grouping",
				zap.Int("items", len(items)),
			)
		}
		return a.groupByPosition(ids, items)
	}

	if dropped := len(items) - keyed; dropped > 0 {
		zap.L().Warn("review: dropping dataset items without place ids",
			zap.Int("dropped", dropped),
			zap.Int("keyed", keyed),
		)
	}
	return a.groupByKey(ids, items)
}

func (a *Aggregator) groupByKey(ids []string, items []apify.ReviewItem) [][]model.Review {
	byID := make(map[string][]model.Review, len(ids))
	for _, item := range items {
		if item.PlaceID == "" {
			continue
		}
		if len(byID[item.PlaceID]) >= a.maxPerLead {
			continue
		}
		byID[item.PlaceID] = append(byID[item.PlaceID], model.Review{
			Title: item.Title,
			Name:  item.Name,
			Text:  item.Text,
		})
	}

	grouped := make([][]model.Review, len(ids))
	for i, id := range ids {
		grouped[i] = byID[id]
	}
	return grouped
}

func (a *Aggregator) groupByPosition(ids []string, items []apify.ReviewItem) [][]model.Review {
	grouped := make([][]model.Review, len(ids))
	pos := 0
	for i := range ids {
		for n := 0; n < a.maxPerLead && pos < len(items); n++ {
			item := items[pos]
			grouped[i] = append(grouped[i], model.Review{
				Title: item.Title,
				Name:  item.Name,
				Text:  item.Text,
			})
			pos++
		}
	}
	return grouped
}
