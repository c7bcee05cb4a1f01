package leadstore

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/gsheets"
)

// SheetStore keeps leads in a Google spreadsheet: one worksheet for the
// source table, one for the personalization output.
type SheetStore struct {
	client        gsheets.Client
	spreadsheetID string
	sourceSheet   string
	outputSheet   string

	// Serializes the output table's read-modify-write so concurrent
	// workers cannot both append a row for the same identifier.
	mu sync.Mutex
}

// NewSheetStore creates a SheetStore over the given worksheets.
func NewSheetStore(client gsheets.Client, spreadsheetID, sourceSheet, outputSheet string) *SheetStore {
	return &SheetStore{
		client:        client,
		spreadsheetID: spreadsheetID,
		sourceSheet:   sourceSheet,
		outputSheet:   outputSheet,
	}
}

func (s *SheetStore) ReadAllLeads(ctx context.Context) ([]model.Lead, error) {
	rows, err := s.client.GetValues(ctx, s.spreadsheetID, s.sourceSheet)
	if err != nil {
		return nil, eris.Wrap(err, "leadstore: read source sheet")
	}
	return leadsFromRows(rows), nil
}

func (s *SheetStore) ReadProcessedIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.client.GetValues(ctx, s.spreadsheetID, s.outputSheet)
	if err != nil {
		if gsheets.IsMissingSheet(err) {
			return map[string]struct{}{}, nil
		}
		return nil, eris.Wrap(err, "leadstore: read output sheet")
	}
	return processedIDsFromRows(rows), nil
}

func (s *SheetStore) Upsert(ctx context.Context, p model.Personalization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.client.GetValues(ctx, s.spreadsheetID, s.outputSheet)
	if err != nil {
		if !gsheets.IsMissingSheet(err) {
			return eris.Wrap(err, "leadstore: read output sheet")
		}
		if err := s.client.AddSheet(ctx, s.spreadsheetID, s.outputSheet); err != nil {
			return eris.Wrap(err, "leadstore: create output sheet")
		}
		rows = nil
	}

	if len(rows) == 0 {
		if err := s.client.AppendRow(ctx, s.spreadsheetID, s.outputSheet, model.OutputHeaders); err != nil {
			return eris.Wrap(err, "leadstore: write output header")
		}
		rows = [][]string{model.OutputHeaders}
	}

	idCol := findIDColumn(rows[0])
	values := p.Row()

	for i, row := range rows[1:] {
		if cellAt(row, idCol) != p.LeadID {
			continue
		}
		// Sheet rows are 1-based and row 1 is the header.
		rowNum := i + 2
		for col, v := range values {
			if err := s.client.UpdateCell(ctx, s.spreadsheetID, s.outputSheet, rowNum, col+1, v); err != nil {
				return eris.Wrapf(err, "leadstore: update output row %d", rowNum)
			}
		}
		return nil
	}

	if err := s.client.AppendRow(ctx, s.spreadsheetID, s.outputSheet, values); err != nil {
		return eris.Wrap(err, "leadstore: append output row")
	}
	return nil
}

// ImportLeads appends source rows, creating the worksheet and header when
// absent. Rows whose identifier already exists in the sheet are skipped.
func (s *SheetStore) ImportLeads(ctx context.Context, leads []model.Lead) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.client.GetValues(ctx, s.spreadsheetID, s.sourceSheet)
	if err != nil {
		if !gsheets.IsMissingSheet(err) {
			return 0, eris.Wrap(err, "leadstore: read source sheet")
		}
		if err := s.client.AddSheet(ctx, s.spreadsheetID, s.sourceSheet); err != nil {
			return 0, eris.Wrap(err, "leadstore: create source sheet")
		}
		rows = nil
	}

	if len(rows) == 0 {
		if err := s.client.AppendRow(ctx, s.spreadsheetID, s.sourceSheet, model.SourceHeaders); err != nil {
			return 0, eris.Wrap(err, "leadstore: write source header")
		}
		rows = [][]string{model.SourceHeaders}
	}

	existing := processedIDsFromRows(rows)

	written := 0
	for _, l := range leads {
		if l.ID != "" {
			if _, ok := existing[l.ID]; ok {
				continue
			}
			existing[l.ID] = struct{}{}
		}
		if err := s.client.AppendRow(ctx, s.spreadsheetID, s.sourceSheet, l.Row()); err != nil {
			return written, eris.Wrap(err, "leadstore: append lead row")
		}
		written++
	}
	return written, nil
}
