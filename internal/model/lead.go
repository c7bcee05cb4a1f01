package model

import "strings"

// Fallback values used when lead fields are missing.
const (
	UnknownValue     = "Unknown"
	NoReviewsSummary = "No reviews available"
)

// Lead is one row of the lead source table.
type Lead struct {
	ID            string `json:"id"`
	Business      string `json:"business"`
	Website       string `json:"website,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Instagram     string `json:"instagram,omitempty"`
	Facebook      string `json:"facebook,omitempty"`
	LinkedIn      string `json:"linkedin,omitempty"`
	Address       string `json:"address,omitempty"`
	OwnerName     string `json:"owner_name,omitempty"`
	ReviewSummary string `json:"review_summary,omitempty"`
}

// LeadFromRow maps a table row onto a Lead using the header row. Header names
// match case-insensitively; cells beyond the row length are treated as empty.
func LeadFromRow(headers, row []string) Lead {
	var l Lead
	for i, h := range headers {
		var val string
		if i < len(row) {
			val = row[i]
		}
		switch strings.ToLower(h) {
		case "id":
			l.ID = val
		case "business":
			l.Business = val
		case "website":
			l.Website = val
		case "email":
			l.Email = val
		case "phone":
			l.Phone = val
		case "instagram":
			l.Instagram = val
		case "facebook":
			l.Facebook = val
		case "linkedin":
			l.LinkedIn = val
		case "address":
			l.Address = val
		case "owner_name":
			l.OwnerName = val
		case "review_summary":
			l.ReviewSummary = val
		}
	}
	return l
}

// SourceHeaders is the canonical header row of the lead source table.
var SourceHeaders = []string{"id", "business", "website", "email", "phone", "instagram", "facebook", "linkedin", "address", "owner_name", "review_summary"}

// Row renders the lead in source-column order.
func (l Lead) Row() []string {
	return []string{l.ID, l.Business, l.Website, l.Email, l.Phone, l.Instagram, l.Facebook, l.LinkedIn, l.Address, l.OwnerName, l.ReviewSummary}
}

// DisplayName returns the business name, or "Unknown" when it is missing.
func (l Lead) DisplayName() string {
	if l.Business == "" {
		return UnknownValue
	}
	return l.Business
}

// WithInsight returns a copy of the lead with owner name and review summary
// replaced by the insight values.
func (l Lead) WithInsight(in ReviewInsight) Lead {
	l.OwnerName = in.OwnerName
	l.ReviewSummary = in.ReviewSummary
	return l
}

// Review is a single customer review returned by the scraping backend.
type Review struct {
	Title string `json:"title"`
	Name  string `json:"name"`
	Text  string `json:"text"`
}

// ReviewInsight is what the model distills from a lead's reviews.
type ReviewInsight struct {
	OwnerName     string `json:"owner_name"`
	ReviewSummary string `json:"review_summary"`
}

// SentinelInsight is returned when a lead's reviews carry no usable text.
func SentinelInsight() ReviewInsight {
	return ReviewInsight{OwnerName: UnknownValue, ReviewSummary: NoReviewsSummary}
}

// OutputHeaders is the header row of the personalization table.
var OutputHeaders = []string{"ID", "Name", "Owner", "DM opener", "Call Script", "Email Opener", "Notes"}

// Personalization is one output row, keyed by lead identifier.
type Personalization struct {
	LeadID      string `json:"id"`
	Name        string `json:"name"`
	Owner       string `json:"owner"`
	DMOpener    string `json:"dm_opener"`
	CallScript  string `json:"call_script,omitempty"`
	EmailOpener string `json:"email_opener,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Row renders the personalization in output-column order.
func (p Personalization) Row() []string {
	return []string{p.LeadID, p.Name, p.Owner, p.DMOpener, p.CallScript, p.EmailOpener, p.Notes}
}
