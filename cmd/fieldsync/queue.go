package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MonteBryce/fieldsync/internal/models"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the pending sync queue",
	RunE:  runQueueList,
}

var queuePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove rejected (non-retryable) entries from the queue",
	RunE:  runQueuePurge,
}

var unsyncedCmd = &cobra.Command{
	Use:   "unsynced <project-id>",
	Short: "List records not yet confirmed in the remote store",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnsynced,
}

func init() {
	rootCmd.AddCommand(queueCmd, unsyncedCmd)
	queueCmd.AddCommand(queuePurgeCmd)
}

func runQueueList(cmd *cobra.Command, args []string) error {
	a, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.service.QueueEntries()
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}

	for _, e := range entries {
		line := fmt.Sprintf("%-8s %-50s retries=%d enqueued %s",
			e.Op, e.RemotePath(), e.RetryCount,
			e.CreatedAt.Local().Format(time.RFC822))
		switch {
		case e.Rejected:
			color.Red("%s  [rejected: %s]", line, e.LastError)
		case e.RetryCount > 0:
			color.Yellow("%s  [last error: %s]", line, e.LastError)
		default:
			fmt.Println(line)
		}
	}

	return nil
}

// recordDetail renders the domain fields an operator scans the list for.
func recordDetail(r *models.Record) string {
	if reading, err := r.AsReading(); err == nil && reading.EquipmentID != "" {
		return fmt.Sprintf("  %s temp=%.1f", reading.EquipmentID, reading.Temperature)
	}
	if rollup, err := r.AsRollup(); err == nil && rollup.Date != "" {
		return fmt.Sprintf("  %s (%d readings)", rollup.Date, rollup.ReadingCount)
	}
	return ""
}

func runQueuePurge(cmd *cobra.Command, args []string) error {
	a, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer a.close()

	purged, err := a.service.PurgeRejected()
	if err != nil {
		return err
	}

	fmt.Printf("Purged %d rejected entries.\n", purged)
	return nil
}

func runUnsynced(cmd *cobra.Command, args []string) error {
	a, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer a.close()

	records, err := a.service.ListUnsynced(args[0])
	if err != nil {
		return err
	}

	if len(records) == 0 {
		color.Green("All records for project %s are synced.", args[0])
		return nil
	}

	color.Yellow("%d unsynced records:", len(records))
	for _, r := range records {
		line := fmt.Sprintf("%-36s %-10s %-10s updated %s%s",
			r.ID, r.Kind, r.Status, r.UpdatedAt.Local().Format(time.RFC822),
			recordDetail(r))
		if r.SyncError != "" {
			color.Red("%s  [%s]", line, r.SyncError)
		} else {
			fmt.Println(line)
		}
	}

	return nil
}
