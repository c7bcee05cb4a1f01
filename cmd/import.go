package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/fetcher"
	"github.com/sells-group/outreach-cli/internal/leadstore"
	"github.com/sells-group/outreach-cli/internal/model"
)

var (
	importSource  string
	importCharset string
	importSheet   string
	importDelim   string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import leads from a vendor file into the lead source",
	Long:  "Reads a CSV or XLSX lead file from a local path, http(s) URL, or ftp URL and loads the rows into the configured lead backend.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		leads, err := readLeadFile(ctx, importSource, importCharset, importSheet, importDelim)
		if err != nil {
			return err
		}
		if len(leads) == 0 {
			return eris.Errorf("no leads found in %s", importSource)
		}

		ls, closeLeads, err := initLeadStore(ctx)
		if err != nil {
			return err
		}
		defer closeLeads()

		imp, ok := ls.(leadstore.Importer)
		if !ok {
			return eris.Errorf("import is not supported for the %s backend", cfg.Leads.Backend)
		}

		n, err := imp.ImportLeads(ctx, leads)
		if err != nil {
			return eris.Wrap(err, "import leads")
		}

		zap.L().Info("import complete",
			zap.Int("imported", n),
			zap.Int("parsed", len(leads)),
			zap.String("source", importSource),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "", "lead file: local path, http(s) URL, or ftp URL (required)")
	importCmd.Flags().StringVar(&importCharset, "charset", "", "CSV charset (e.g. windows-1252); default UTF-8")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	importCmd.Flags().StringVar(&importDelim, "delimiter", "", "CSV field delimiter (default comma)")
	_ = importCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(importCmd)
}

// readLeadFile fetches and parses a lead file. The format comes from the
// source extension: .xlsx parses as a workbook, anything else as CSV.
func readLeadFile(ctx context.Context, source, charset, sheet, delim string) ([]model.Lead, error) {
	if strings.EqualFold(sourceExt(source), ".xlsx") {
		return readXLSXLeads(ctx, source, sheet)
	}
	return readCSVLeads(ctx, source, charset, delim)
}

// sourceExt returns the file extension of a path or URL, ignoring any query string.
func sourceExt(source string) string {
	if i := strings.IndexByte(source, '?'); i >= 0 {
		source = source[:i]
	}
	return filepath.Ext(source)
}

func readCSVLeads(ctx context.Context, source, charset, delim string) ([]model.Lead, error) {
	r, err := fetcher.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	headerCh := make(chan []string, 1)
	opts := fetcher.CSVOptions{
		Charset:   charset,
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	}
	if delim != "" {
		opts.Delimiter = []rune(delim)[0]
	}

	rows, errCh := fetcher.StreamCSV(ctx, r, opts)

	header := model.SourceHeaders
	first := true
	var leads []model.Lead
	for row := range rows {
		if first {
			first = false
			// The parser delivers the header before any data row.
			select {
			case h := <-headerCh:
				header = h
			default:
			}
		}
		leads = append(leads, model.LeadFromRow(header, row))
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return leads, nil
}

func readXLSXLeads(ctx context.Context, source, sheet string) ([]model.Lead, error) {
	tmp, err := os.CreateTemp("", "outreach-import-*.xlsx")
	if err != nil {
		return nil, eris.Wrap(err, "create temp file")
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	path, err := fetcher.FetchToFile(ctx, source, tmp.Name())
	if err != nil {
		return nil, err
	}

	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: sheet})
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, nil
	}

	header := rows[0]
	leads := make([]model.Lead, 0, len(rows)-1)
	for _, row := range rows[1:] {
		leads = append(leads, model.LeadFromRow(header, row))
	}
	return leads, nil
}
