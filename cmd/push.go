package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-agent/internal/model"
	"github.com/sells-group/outreach-agent/pkg/instantly"
)

var pushCampaign string

var pushCmd = &cobra.Command{
	Use:   "push <company-id>...",
	Short: "Push enriched company emails into an Instantly campaign",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if pushCampaign == "" {
			return eris.New("--campaign is required")
		}

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

		companies, err := e.store.GetCompaniesByIDs(cmd.Context(), ids)
		if err != nil {
			return err
		}

		var leads []instantly.Lead
		skippedUnenriched := 0
		for _, c := range companies {
			if c.EnrichmentStatus != model.EnrichmentCompleted || c.Email == "" {
				skippedUnenriched++
				continue
			}
			leads = append(leads, instantly.Lead{
				Email:       c.Email,
				CompanyName: c.Name,
				Website:     c.Website,
			})
		}
		if len(leads) == 0 {
			return eris.New("no enriched companies with emails to push")
		}

		result, err := e.instantly.AddLeadsToCampaign(cmd.Context(), pushCampaign, leads)
		if err != nil {
			return err
		}

		zap.L().Info("campaign push complete",
			zap.String("campaign", pushCampaign),
			zap.Int("added", result.Added),
			zap.Int("duplicates", result.Skipped),
			zap.Int("unenriched", skippedUnenriched))
		fmt.Printf("pushed %d leads to campaign %s (%d duplicates skipped, %d companies not enriched)\n",
			result.Added, pushCampaign, result.Skipped, skippedUnenriched)
		return nil
	},
}

func init() {
	pushCmd.Flags().StringVar(&pushCampaign, "campaign", "", "Instantly campaign ID")
	rootCmd.AddCommand(pushCmd)
}
