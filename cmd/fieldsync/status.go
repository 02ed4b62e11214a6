package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <checkpoint-id>",
	Short: "Show progress and recovery hints for a bulk sync job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	status, err := a.service.GetSyncStatus(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Job:       %s (%s)\n", status.CheckpointID, status.JobKind)
	fmt.Printf("Progress:  %.1f%% (%d/%d records)\n",
		status.Progress, status.Processed, status.Total)

	switch {
	case status.Completed:
		color.Green("State:     completed")
	case status.Stale:
		color.Red("State:     stale")
	default:
		color.Yellow("State:     active")
	}

	if len(status.FailedRecords) > 0 {
		color.Red("Failed:    %d records", len(status.FailedRecords))
		for _, id := range status.FailedRecords {
			fmt.Printf("           - %s\n", id)
		}
	}
	if status.LastError != "" {
		color.Red("Last error: %s", status.LastError)
	}

	if len(status.Recommendations) > 0 {
		fmt.Println("Recommendations:")
		for _, hint := range status.Recommendations {
			fmt.Printf("  * %s\n", hint)
		}
	}

	return nil
}
