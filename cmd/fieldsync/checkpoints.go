package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MonteBryce/fieldsync/internal/models"
)

var (
	listStaleOnly    bool
	cleanupRetention time.Duration
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect and maintain bulk sync checkpoints",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active bulk sync checkpoints",
	RunE:  runCheckpointsList,
}

var checkpointsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge checkpoints older than the retention window",
	RunE:  runCheckpointsCleanup,
}

var checkpointsResumeCmd = &cobra.Command{
	Use:   "resume <checkpoint-id>",
	Short: "Resume an interrupted bulk job from its last completed batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointsResume,
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.AddCommand(checkpointsListCmd, checkpointsCleanupCmd, checkpointsResumeCmd)

	checkpointsListCmd.Flags().BoolVar(&listStaleOnly, "stale", false,
		"Show only stale checkpoints")
	checkpointsCleanupCmd.Flags().DurationVar(&cleanupRetention, "retention", 0,
		"Retention window (default from config)")
}

func runCheckpointsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var checkpoints []*models.Checkpoint
	if listStaleOnly {
		checkpoints, err = a.service.ListStaleCheckpoints(ctx, cfg.Checkpoint.MaxAge)
	} else {
		checkpoints, err = a.service.ListActiveCheckpoints(ctx)
	}
	if err != nil {
		return err
	}

	if len(checkpoints) == 0 {
		fmt.Println("No matching checkpoints.")
		return nil
	}

	for _, cp := range checkpoints {
		line := fmt.Sprintf("%-40s %-20s %5.1f%%  started %s",
			cp.ID, cp.JobKind, cp.Progress(),
			cp.StartTime.Local().Format(time.RFC822))
		if cp.IsStale(cfg.Checkpoint.MaxAge) {
			color.Red("%s  [stale]", line)
		} else {
			fmt.Println(line)
		}
	}

	return nil
}

func runCheckpointsCleanup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	retention := cleanupRetention
	if retention <= 0 {
		retention = cfg.Checkpoint.Retention
	}

	removed, err := a.service.CleanupCheckpoints(ctx, retention)
	if err != nil {
		return err
	}

	fmt.Printf("Removed %d checkpoints older than %s.\n", removed, retention)
	return nil
}

func runCheckpointsResume(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.service.ResumeBulkSync(ctx, args[0]); err != nil {
		return err
	}

	color.Green("Resumed job %s.", args[0])
	fmt.Println("Track it with: fieldsync status", args[0])

	// The job runs in the background of this process; wait for it here.
	return waitForCompletion(ctx, a, args[0])
}

func waitForCompletion(ctx context.Context, a *app, checkpointID string) error {
	for {
		status, err := a.service.GetSyncStatus(ctx, checkpointID)
		if err != nil {
			return err
		}
		if status.Completed {
			color.Green("Job completed: %d/%d records (%d failed).",
				status.Processed, status.Total, len(status.FailedRecords))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
