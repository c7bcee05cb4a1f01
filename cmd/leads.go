package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/model"
)

var leadsPending bool

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List source leads and their processing status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		ls, closeLeads, err := initLeadStore(ctx)
		if err != nil {
			return err
		}
		defer closeLeads()

		leads, err := ls.ReadAllLeads(ctx)
		if err != nil {
			return eris.Wrap(err, "read leads")
		}
		processed, err := ls.ReadProcessedIDs(ctx)
		if err != nil {
			return eris.Wrap(err, "read processed ids")
		}

		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}

		formatLeadsList(os.Stdout, leads, processed, leadsPending)
		return nil
	},
}

func init() {
	leadsCmd.Flags().BoolVar(&leadsPending, "pending", false, "show only leads not yet personalized")
	rootCmd.AddCommand(leadsCmd)
}

// leadStatus classifies a source lead against the processed-id set.
func leadStatus(l model.Lead, processed map[string]struct{}) string {
	if l.ID == "" {
		return "no-id"
	}
	if _, ok := processed[l.ID]; ok {
		return "processed"
	}
	return "pending"
}

// formatLeadsList writes a tabular list of leads to out. With pendingOnly,
// only leads still awaiting personalization are shown.
func formatLeadsList(out io.Writer, leads []model.Lead, processed map[string]struct{}, pendingOnly bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tBUSINESS\tOWNER\tSTATUS")
	_, _ = fmt.Fprintln(w, "--\t--------\t-----\t------")

	for _, l := range leads {
		status := leadStatus(l, processed)
		if pendingOnly && status != "pending" {
			continue
		}

		business := l.Business
		if len(business) > 30 {
			business = business[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.ID, business, l.OwnerName, status)
	}
	_ = w.Flush()
}
