package notion

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// RunSummary holds the fields published to the runs database.
type RunSummary struct {
	RunID     string
	Status    string
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	CostUSD   float64
	Duration  time.Duration
	Error     string
}

// CreateRunPage creates a page for a pipeline run in the runs database and
// returns the page ID for later updates.
func CreateRunPage(ctx context.Context, c Client, dbID string, sum RunSummary) (string, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: buildRunProperties(sum),
	}

	page, err := c.CreatePage(ctx, req)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("notion: create run page %s", sum.RunID))
	}
	return string(page.ID), nil
}

// UpdateRunPage rewrites the result properties of an existing run page.
func UpdateRunPage(ctx context.Context, c Client, pageID string, sum RunSummary) error {
	req := &notionapi.PageUpdateRequest{
		Properties: buildRunProperties(sum),
	}

	if _, err := c.UpdatePage(ctx, pageID, req); err != nil {
		return eris.Wrap(err, fmt.Sprintf("notion: update run page %s", sum.RunID))
	}
	return nil
}

// buildRunProperties converts a RunSummary to Notion page properties.
// The run ID becomes the title; counters are number properties; the error
// column is only written when set.
func buildRunProperties(sum RunSummary) notionapi.Properties {
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: "outreach run " + shortID(sum.RunID)}},
			},
		},
		"Status": notionapi.StatusProperty{
			Status: notionapi.Status{
				Name: sum.Status,
			},
		},
		"Leads":     numberProperty(sum.Total),
		"Succeeded": numberProperty(sum.Succeeded),
		"Failed":    numberProperty(sum.Failed),
		"Skipped":   numberProperty(sum.Skipped),
		"Cost USD": notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: sum.CostUSD,
		},
		"Duration": notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: sum.Duration.Round(time.Millisecond).String()}},
			},
		},
	}

	if sum.Error != "" {
		props["Error"] = notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: sum.Error}},
			},
		}
	}

	return props
}

func numberProperty(n int) notionapi.NumberProperty {
	return notionapi.NumberProperty{
		Type:   notionapi.PropertyTypeNumber,
		Number: float64(n),
	}
}

// shortID truncates a run UUID to the 8-char prefix used across CLI output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
