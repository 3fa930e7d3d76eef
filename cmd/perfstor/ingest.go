package main

import (
	"context"
	"fmt"

	"github.com/ethpandaops/perfstor/pkg/api/ingester"
	"github.com/ethpandaops/perfstor/pkg/api/storage"
	"github.com/ethpandaops/perfstor/pkg/api/store"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Import pending run files from the storage backend once",
	Long: `Run a single ingest pass: every .json object under ingest.prefix
that has not been imported before is decoded and saved as new runs.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !cfg.Storage.IsConfigured() {
		return fmt.Errorf("ingest requires a storage backend")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	backend, err := storage.New(log, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating storage backend: %w", err)
	}

	st := store.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop store")
		}
	}()

	// The interval is unused for a single pass.
	in := ingester.NewIngester(
		log, st, backend, cfg.Ingest.Prefix, 0, cfg.Ingest.Concurrency,
	)

	n, err := in.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("ingesting runs: %w", err)
	}

	log.WithField("backend", backend.Name()).
		WithField("objects", n).
		Info("Ingest complete")

	return nil
}
