package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neotracker/neotracker/internal/ingest"
)

var ingestFlags ingest.Params

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch close approaches from the source API and store them",
	Long: `Runs one ingestion batch in this process: fetch from the JPL CAD API,
drop invalid rows, write the rest in one transaction and bump the catalog
cache so running API servers reload.`,
	RunE: runIngest,
}

func init() {
	addParamFlags(ingestCmd, &ingestFlags)
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	svc, err := ensureIngester(cmd.Context())
	if err != nil {
		return err
	}
	summary, err := svc.Run(cmd.Context(), defaultParams(ingestFlags))
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	cmd.Printf("batch %s: fetched %d, saved %d, rejected %d in %s\n",
		summary.BatchID, summary.Fetched, summary.Saved, summary.Rejected, summary.Duration)
	return nil
}

func addParamFlags(cmd *cobra.Command, p *ingest.Params) {
	cmd.Flags().Float64Var(&p.DistMax, "dist-max", 0, "maximum approach distance in AU (default from INGEST_DIST_MAX)")
	cmd.Flags().IntVar(&p.Limit, "limit", 0, "maximum records to fetch (default from INGEST_LIMIT)")
	cmd.Flags().StringVar(&p.DateMin, "date-min", "", "earliest approach date, YYYY-MM-DD or 'now'")
	cmd.Flags().StringVar(&p.DateMax, "date-max", "", "latest approach date, YYYY-MM-DD or '+60'")
}
