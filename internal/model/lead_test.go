package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLeadFromRow(t *testing.T) {
	t.Parallel()

	t.Run("maps canonical headers", func(t *testing.T) {
		t.Parallel()
		headers := []string{"id", "business", "website", "email", "phone", "instagram", "facebook", "linkedin", "address", "owner_name", "review_summary"}
		row := []string{"place-1", "Acme Plumbing", "https://acme.test", "info@acme.test", "555-0100", "@acme", "fb/acme", "in/acme", "1 Main St", "Pat", "Great service"}

		l := LeadFromRow(headers, row)

		assert.Equal(t, "place-1", l.ID)
		assert.Equal(t, "Acme Plumbing", l.Business)
		assert.Equal(t, "https://acme.test", l.Website)
		assert.Equal(t, "info@acme.test", l.Email)
		assert.Equal(t, "555-0100", l.Phone)
		assert.Equal(t, "@acme", l.Instagram)
		assert.Equal(t, "fb/acme", l.Facebook)
		assert.Equal(t, "in/acme", l.LinkedIn)
		assert.Equal(t, "1 Main St", l.Address)
		assert.Equal(t, "Pat", l.OwnerName)
		assert.Equal(t, "Great service", l.ReviewSummary)
	})

	t.Run("headers match case-insensitively", func(t *testing.T) {
		t.Parallel()
		l := LeadFromRow([]string{"ID", "Business", "Owner_Name"}, []string{"p-2", "Beta Bakery", "Sam"})
		assert.Equal(t, "p-2", l.ID)
		assert.Equal(t, "Beta Bakery", l.Business)
		assert.Equal(t, "Sam", l.OwnerName)
	})

	t.Run("unknown headers are ignored", func(t *testing.T) {
		t.Parallel()
		l := LeadFromRow([]string{"id", "rating", "business"}, []string{"p-3", "4.5", "Gamma Gym"})
		assert.Equal(t, "p-3", l.ID)
		assert.Equal(t, "Gamma Gym", l.Business)
	})

	t.Run("short rows leave trailing fields empty", func(t *testing.T) {
		t.Parallel()
		l := LeadFromRow([]string{"id", "business", "website"}, []string{"p-4"})
		assert.Equal(t, "p-4", l.ID)
		assert.Empty(t, l.Business)
		assert.Empty(t, l.Website)
	})
}

func TestLeadDisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Acme", Lead{Business: "Acme"}.DisplayName())
	assert.Equal(t, UnknownValue, Lead{}.DisplayName())
}

func TestLeadWithInsight(t *testing.T) {
	t.Parallel()

	lead := Lead{ID: "p-1", Business: "Acme", OwnerName: "stale", ReviewSummary: "stale"}
	got := lead.WithInsight(ReviewInsight{OwnerName: "Pat", ReviewSummary: "Customers love the fast service."})

	assert.Equal(t, "Pat", got.OwnerName)
	assert.Equal(t, "Customers love the fast service.", got.ReviewSummary)
	// original is untouched
	assert.Equal(t, "stale", lead.OwnerName)
}

func TestPersonalizationRow(t *testing.T) {
	t.Parallel()

	p := Personalization{LeadID: "p-1", Name: "Acme", Owner: "Pat", DMOpener: "Hey Pat!"}
	row := p.Row()

	assert.Equal(t, []string{"p-1", "Acme", "Pat", "Hey Pat!", "", "", ""}, row)
	assert.Len(t, row, len(OutputHeaders))
}

func TestSentinelInsight(t *testing.T) {
	t.Parallel()

	in := SentinelInsight()
	assert.Equal(t, UnknownValue, in.OwnerName)
	assert.Equal(t, NoReviewsSummary, in.ReviewSummary)
}
