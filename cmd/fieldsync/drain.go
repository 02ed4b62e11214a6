package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MonteBryce/fieldsync/internal/models"
)

var (
	drainUntilEmpty bool
	drainInterval   time.Duration
)

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Attempt pending sync queue entries against the remote store",
	Long: `Drain runs one pass over the sync queue. With --until-empty it keeps
draining on an interval until every retryable entry has been confirmed,
showing progress as entries clear.`,
	RunE: runDrain,
}

func init() {
	rootCmd.AddCommand(drainCmd)

	drainCmd.Flags().BoolVar(&drainUntilEmpty, "until-empty", false,
		"Keep draining until the queue has no retryable entries")
	drainCmd.Flags().DurationVar(&drainInterval, "interval", 10*time.Second,
		"Delay between passes with --until-empty")
}

func runDrain(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if !drainUntilEmpty {
		result, err := a.service.DrainOnce(ctx)
		if err != nil {
			return err
		}
		printDrainResult(result.Attempted, result.Succeeded, result.Transient, result.Rejected)
		return nil
	}

	entries, err := a.service.QueueEntries()
	if err != nil {
		return err
	}
	retryable := countRetryable(entries)
	if retryable == 0 {
		color.Green("Queue is empty.")
		return nil
	}

	bar := pb.StartNew(retryable)
	defer bar.Finish()

	for {
		result, err := a.service.DrainOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if !errors.Is(err, models.ErrDrainInProgress) {
				return err
			}
		} else {
			bar.Add(result.Succeeded)
		}

		entries, err := a.service.QueueEntries()
		if err != nil {
			return err
		}
		if countRetryable(entries) == 0 {
			bar.Finish()
			color.Green("Queue drained.")
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(drainInterval):
		}
	}
}

func countRetryable(entries []*models.QueueEntry) int {
	n := 0
	for _, e := range entries {
		if !e.Rejected {
			n++
		}
	}
	return n
}

func printDrainResult(attempted, succeeded, transient, rejected int) {
	fmt.Printf("Attempted: %d\n", attempted)
	if succeeded > 0 {
		color.Green("Succeeded: %d", succeeded)
	}
	if transient > 0 {
		color.Yellow("Transient failures (will retry): %d", transient)
	}
	if rejected > 0 {
		color.Red("Rejected (needs manual action): %d", rejected)
	}
	if attempted == 0 {
		fmt.Println("Nothing ready to sync.")
	}
}
