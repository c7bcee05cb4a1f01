package leadstore

import (
	"context"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/model"
)

// WorkbookStore keeps leads in a local XLSX workbook, mirroring the
// spreadsheet layout for offline use.
type WorkbookStore struct {
	path        string
	sourceSheet string
	outputSheet string

	// The whole file is rewritten on save, so all access is serialized.
	mu sync.Mutex
}

// NewWorkbookStore creates a WorkbookStore over the given file path.
func NewWorkbookStore(path, sourceSheet, outputSheet string) *WorkbookStore {
	return &WorkbookStore{
		path:        path,
		sourceSheet: sourceSheet,
		outputSheet: outputSheet,
	}
}

func (s *WorkbookStore) ReadAllLeads(ctx context.Context) ([]model.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := xlsx.OpenFile(s.path)
	if err != nil {
		return nil, eris.Wrapf(err, "leadstore: open workbook %s", s.path)
	}

	sheet, ok := f.Sheet[s.sourceSheet]
	if !ok {
		return nil, eris.Errorf("leadstore: source sheet %q not found in %s", s.sourceSheet, s.path)
	}

	return leadsFromRows(sheetRows(sheet)), nil
}

func (s *WorkbookStore) ReadProcessedIDs(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := xlsx.OpenFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}
		return nil, eris.Wrapf(err, "leadstore: open workbook %s", s.path)
	}

	sheet, ok := f.Sheet[s.outputSheet]
	if !ok {
		return map[string]struct{}{}, nil
	}

	return processedIDsFromRows(sheetRows(sheet)), nil
}

func (s *WorkbookStore) Upsert(ctx context.Context, p model.Personalization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.openOrCreate()
	if err != nil {
		return err
	}

	sheet, err := getOrAddSheet(f, s.outputSheet)
	if err != nil {
		return err
	}

	if len(sheet.Rows) == 0 {
		appendRow(sheet, model.OutputHeaders)
	}

	idCol := findIDColumn(rowStrings(sheet.Rows[0]))
	values := p.Row()

	updated := false
	for _, row := range sheet.Rows[1:] {
		if cellAt(rowStrings(row), idCol) != p.LeadID {
			continue
		}
		setRow(row, values)
		updated = true
		break
	}
	if !updated {
		appendRow(sheet, values)
	}

	if err := f.Save(s.path); err != nil {
		return eris.Wrapf(err, "leadstore: save workbook %s", s.path)
	}
	return nil
}

// ImportLeads appends source rows, creating the workbook, sheet, and header
// when absent. Rows whose identifier already exists are skipped.
func (s *WorkbookStore) ImportLeads(ctx context.Context, leads []model.Lead) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.openOrCreate()
	if err != nil {
		return 0, err
	}

	sheet, err := getOrAddSheet(f, s.sourceSheet)
	if err != nil {
		return 0, err
	}

	if len(sheet.Rows) == 0 {
		appendRow(sheet, model.SourceHeaders)
	}

	existing := processedIDsFromRows(sheetRows(sheet))

	written := 0
	for _, l := range leads {
		if l.ID != "" {
			if _, ok := existing[l.ID]; ok {
				continue
			}
			existing[l.ID] = struct{}{}
		}
		appendRow(sheet, l.Row())
		written++
	}

	if err := f.Save(s.path); err != nil {
		return 0, eris.Wrapf(err, "leadstore: save workbook %s", s.path)
	}
	return written, nil
}

func (s *WorkbookStore) openOrCreate() (*xlsx.File, error) {
	f, err := xlsx.OpenFile(s.path)
	if err == nil {
		return f, nil
	}
	if os.IsNotExist(err) {
		return xlsx.NewFile(), nil
	}
	return nil, eris.Wrapf(err, "leadstore: open workbook %s", s.path)
}

func getOrAddSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if sheet, ok := f.Sheet[name]; ok {
		return sheet, nil
	}
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "leadstore: add sheet %s", name)
	}
	return sheet, nil
}

func sheetRows(sheet *xlsx.Sheet) [][]string {
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowStrings(row))
	}
	return rows
}

func rowStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}

func appendRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// setRow overwrites every column of an existing row, growing it as needed.
func setRow(row *xlsx.Row, values []string) {
	for col, v := range values {
		for len(row.Cells) <= col {
			row.AddCell()
		}
		row.Cells[col].SetString(v)
	}
}
