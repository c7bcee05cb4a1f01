package insight

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// defaultReviewSummaryPrompt is the system prompt for Summarize.
const defaultReviewSummaryPrompt = `You are an outreach researcher analyzing customer reviews of a small business.

From the reviews, identify the owner's name if any reviewer mentions one, and write a 2-3 sentence summary of what customers consistently praise or criticize. Be concrete: name the services, products, or staff the reviews actually talk about.

Return a valid JSON object: {"owner_name": "<name, or Unknown if never mentioned>", "review_summary": "<summary>"}`

// defaultDMOpenerPrompt is the system prompt for Personalize.
const defaultDMOpenerPrompt = `You are an outreach copywriter. Write a short, personal WhatsApp opener (1-2 sentences) for the lead described by the user.

Reference something specific from the review summary when one is available. Address the owner by name when it is known. No generic flattery, no "I hope this finds you well", no placeholder brackets.

Return a valid JSON object: {"dm_opener": "<opener text>"}`

// Prompts holds the system prompts the generator sends with each call.
type Prompts struct {
	ReviewSummary string `yaml:"review_summary"`
	DMOpener      string `yaml:"dm_opener"`
}

// DefaultPrompts returns the built-in prompt set.
func DefaultPrompts() Prompts {
	return Prompts{
		ReviewSummary: defaultReviewSummaryPrompt,
		DMOpener:      defaultDMOpenerPrompt,
	}
}

// LoadPrompts reads a YAML prompt pack and overlays it on the defaults.
// Keys left empty in the pack keep their built-in text. An empty path
// returns the defaults unchanged.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, eris.Wrap(err, "insight: read prompt pack "+path)
	}

	var pack Prompts
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return prompts, eris.Wrap(err, "insight: parse prompt pack "+path)
	}

	if pack.ReviewSummary != "" {
		prompts.ReviewSummary = pack.ReviewSummary
	}
	if pack.DMOpener != "" {
		prompts.DMOpener = pack.DMOpener
	}
	return prompts, nil
}
