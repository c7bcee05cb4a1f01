// Package insight turns scraped reviews into a review summary and a
// personalized outreach opener using the Anthropic API.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// maxSummaryReviews caps how many reviews feed one summary call.
const maxSummaryReviews = 5

// Generator issues the summarize and personalize model calls and accumulates
// token usage across them.
type Generator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	prompts   Prompts

	mu    sync.Mutex
	usage anthropic.TokenUsage
}

// Options configures a Generator.
type Options struct {
	Model     string
	MaxTokens int64
	// Prompts overrides the built-in prompt set when non-zero.
	Prompts Prompts
}

// NewGenerator creates a Generator over the given client.
func NewGenerator(client anthropic.Client, opts Options) *Generator {
	if opts.Model == "" {
		opts.Model = "claude-haiku-4-5-20251001"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.Prompts == (Prompts{}) {
		opts.Prompts = DefaultPrompts()
	}
	return &Generator{
		client:    client,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		prompts:   opts.Prompts,
	}
}

// Summarize distills a lead's reviews into owner name and review summary.
// Only the first five reviews are considered; reviews with empty text are
// skipped. When no usable text remains, the sentinel insight is returned
// without a model call.
func (g *Generator) Summarize(ctx context.Context, reviews []model.Review, businessName string) (model.ReviewInsight, error) {
	sample := reviews
	if len(sample) > maxSummaryReviews {
		sample = sample[:maxSummaryReviews]
	}

	// Numbering follows the review's slot so the model can tell reviews
	// apart even when empty ones were skipped.
	var snippets []string
	for i, r := range sample {
		if r.Text == "" {
			continue
		}
		snippets = append(snippets, fmt.Sprintf("Review %d: %s", i+1, r.Text))
	}

	if len(snippets) == 0 {
		zap.L().Warn("insight: no review text to summarize", zap.String("business", businessName))
		return model.SentinelInsight(), nil
	}

	prompt := fmt.Sprintf("Business: %s\n\nReviews:\n%s", businessName, strings.Join(snippets, "\n\n"))

	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    g.prompts.ReviewSummary,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return model.ReviewInsight{}, eris.Wrap(err, "insight: summarize reviews")
	}
	g.recordUsage(resp.Usage)

	var insight model.ReviewInsight
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &insight); err != nil {
		return model.ReviewInsight{}, eris.Wrap(err, "insight: parse summary response")
	}

	if insight.OwnerName == "" {
		insight.OwnerName = model.UnknownValue
	}
	if insight.ReviewSummary == "" {
		insight.ReviewSummary = model.NoReviewsSummary
	}
	return insight, nil
}

// Personalize generates the DM opener for a lead. Missing profile fields
// fall back to the fixed placeholder values so the prompt shape is stable.
func (g *Generator) Personalize(ctx context.Context, lead model.Lead) (string, error) {
	profile := fmt.Sprintf(`Lead Information:
- Business Name: %s
- Owner Name: %s
- Review Summary: %s`,
		lead.DisplayName(),
		fallback(lead.OwnerName, model.UnknownValue),
		fallback(lead.ReviewSummary, model.NoReviewsSummary),
	)

	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    g.prompts.DMOpener,
		Messages: []anthropic.Message{
			{Role: "user", Content: "Generate a personalized WhatsApp opener for this lead.\n\n" + profile},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "insight: generate opener")
	}
	g.recordUsage(resp.Usage)

	var msg struct {
		DMOpener string `json:"dm_opener"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &msg); err != nil {
		return "", eris.Wrap(err, "insight: parse opener response")
	}

	opener := strings.TrimSpace(msg.DMOpener)
	if opener == "" {
		return "", eris.New("insight: model returned an empty opener")
	}
	return opener, nil
}

// Usage returns the token usage accumulated so far.
func (g *Generator) Usage() anthropic.TokenUsage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usage
}

// Model returns the model the generator calls.
func (g *Generator) Model() string {
	return g.model
}

func (g *Generator) recordUsage(u anthropic.TokenUsage) {
	g.mu.Lock()
	g.usage = g.usage.Add(u)
	g.mu.Unlock()
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
