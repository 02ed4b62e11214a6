package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MonteBryce/fieldsync/internal/checkpoint"
	"github.com/MonteBryce/fieldsync/internal/config"
	"github.com/MonteBryce/fieldsync/internal/events"
	"github.com/MonteBryce/fieldsync/internal/queue"
	"github.com/MonteBryce/fieldsync/internal/recovery"
	"github.com/MonteBryce/fieldsync/internal/remote"
	"github.com/MonteBryce/fieldsync/internal/services/sync"
	"github.com/MonteBryce/fieldsync/internal/store"
)

var (
	cfgPath string
	cfg     *config.Config
	logger  *events.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Operator tool for the fieldsync local-first record store",
	Long: `fieldsync inspects and drives the local record store and its sync
queue: pending writes, bulk job checkpoints, and recovery state.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.NewLoader(cfgPath).Load()
		if err != nil {
			return err
		}
		logger, err = events.NewLogger(&cfg.Log)
		if err != nil {
			return err
		}
		events.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"Config file path (default: fieldsync.json, ~/.config/fieldsync/config.json)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired service with everything that needs closing.
type app struct {
	service *sync.Service
	records store.Store
	queue   queue.Queue
	repo    checkpoint.Repository
}

// newApp wires the service the way the library embeds it.
func newApp(ctx context.Context) (*app, error) {
	records, err := store.NewSQLiteStore(cfg.Storage.DBFile, logger)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	q, err := queue.NewSQLiteQueue(cfg.Storage.DBFile, queue.Backoff{
		Base: cfg.Sync.BackoffBase,
		Cap:  cfg.Sync.BackoffCap,
	}, logger)
	if err != nil {
		records.Close()
		return nil, fmt.Errorf("open sync queue: %w", err)
	}

	var repo checkpoint.Repository
	switch cfg.Checkpoint.Backend {
	case "dynamodb":
		repo, err = checkpoint.NewDynamoRepository(ctx,
			cfg.Checkpoint.TableName, cfg.Checkpoint.Region, cfg.Checkpoint.Retention)
	default:
		repo, err = checkpoint.NewSQLiteRepository(cfg.Storage.DBFile, logger)
	}
	if err != nil {
		records.Close()
		q.Close()
		return nil, fmt.Errorf("open checkpoint repository: %w", err)
	}

	manager := checkpoint.NewManager(repo, cfg.Checkpoint.MaxAge, logger)
	strategy := recovery.NewStrategy(cfg.Checkpoint.MaxAge, logger)
	remoteStore := remote.NewHTTPStore(&cfg.Remote, logger)

	service := sync.NewService(records, q, remoteStore, manager, strategy,
		&sync.ServiceConfig{
			MaxConcurrent: cfg.Sync.MaxConcurrent,
			BatchSize:     cfg.Sync.BatchSize,
			Timeout:       cfg.Remote.Timeout,
		}, logger)

	return &app{service: service, records: records, queue: q, repo: repo}, nil
}

func (a *app) close() {
	a.service.Close()
	_ = a.repo.Close()
	_ = a.queue.Close()
	_ = a.records.Close()
}
