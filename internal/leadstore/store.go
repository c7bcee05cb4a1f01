// Package leadstore reads the lead source table and reconciles
// personalization rows into the output table. Four backends implement the
// same contract: Google Sheets, a local XLSX workbook, Postgres, and
// Salesforce.
package leadstore

import (
	"context"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Store is the lead table backend consumed by the pipeline.
type Store interface {
	// ReadAllLeads returns every row of the source table in table order.
	// An empty table yields an empty slice, not an error.
	ReadAllLeads(ctx context.Context) ([]model.Lead, error)

	// ReadProcessedIDs returns the identifiers already present in the
	// output table. A missing or header-only table yields an empty set.
	ReadProcessedIDs(ctx context.Context) (map[string]struct{}, error)

	// Upsert writes one personalization row keyed by lead identifier,
	// leaving at most one row per identifier in the output table.
	Upsert(ctx context.Context, p model.Personalization) error
}

// Importer is implemented by backends that accept bulk-loaded source leads.
// Returns the number of leads written.
type Importer interface {
	ImportLeads(ctx context.Context, leads []model.Lead) (int, error)
}

// findIDColumn returns the 0-based index of the identifier column: the first
// header matching "id" case-insensitively, else column 0.
func findIDColumn(header []string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "id") {
			return i
		}
	}
	return 0
}

// cellAt returns the trimmed cell value, or "" when the row is too short.
func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// leadsFromRows maps a header row plus data rows onto Leads.
func leadsFromRows(rows [][]string) []model.Lead {
	if len(rows) < 2 {
		return nil
	}
	header := rows[0]
	leads := make([]model.Lead, 0, len(rows)-1)
	for _, row := range rows[1:] {
		leads = append(leads, model.LeadFromRow(header, row))
	}
	return leads
}

// processedIDsFromRows collects non-empty identifier cells from data rows.
func processedIDsFromRows(rows [][]string) map[string]struct{} {
	ids := make(map[string]struct{})
	if len(rows) < 2 {
		return ids
	}
	idCol := findIDColumn(rows[0])
	for _, row := range rows[1:] {
		if id := cellAt(row, idCol); id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids
}
