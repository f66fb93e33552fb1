package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var queueJSON bool

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show ingestion queue statistics",
	RunE:  runQueue,
}

func init() {
	queueCmd.Flags().BoolVar(&queueJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(queueCmd)
}

func runQueue(cmd *cobra.Command, _ []string) error {
	ops, err := ensureQueueOps()
	if err != nil {
		return err
	}
	stats, err := ops.InspectQueue(cmd.Context())
	if err != nil {
		return err
	}
	if queueJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	cmd.Printf("queue %s: pending=%d active=%d scheduled=%d retry=%d completed=%d archived=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Completed, stats.Archived)
	return nil
}
