package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-agent/internal/model"
)

var enrichForce bool

var enrichCmd = &cobra.Command{
	Use:   "enrich <company-id>...",
	Short: "Enrich companies with generic contact emails",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, len(args))
		for i, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return eris.Errorf("invalid company id %q", arg)
			}
			ids[i] = id
		}

		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		outcomes, err := e.engine.EnrichCompanies(cmd.Context(), ids, enrichForce)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCOMPANY\tSTATUS\tEMAILS\tNOTE")
		for _, o := range outcomes {
			note := o.Error
			if o.Status == model.OutcomeCompleted {
				note = ""
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
				o.CompanyID, o.CompanyName, o.Status, len(o.Emails), note)
		}
		return w.Flush()
	},
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichForce, "force", false, "re-enrich even if enriched recently")
	rootCmd.AddCommand(enrichCmd)
}
