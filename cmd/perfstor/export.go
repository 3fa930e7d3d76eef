package main

import (
	"context"
	"fmt"

	"github.com/ethpandaops/perfstor/pkg/api/storage"
	"github.com/ethpandaops/perfstor/pkg/api/store"
	"github.com/ethpandaops/perfstor/pkg/export"
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportPrefix string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a snapshot of all runs to the storage backend",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "",
		"snapshot format (json, yaml); overrides export.format")
	exportCmd.Flags().StringVar(&exportPrefix, "prefix", "",
		"object key prefix; overrides export.prefix")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if exportFormat != "" {
		cfg.Export.Format = exportFormat
	}

	if exportPrefix != "" {
		cfg.Export.Prefix = exportPrefix
	}

	if !cfg.Storage.IsConfigured() {
		return fmt.Errorf("export requires a storage backend")
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

	exp, err := export.NewExporter(
		log, st.Runs(), backend, cfg.Export.Prefix, cfg.Export.Format,
	)
	if err != nil {
		return err
	}

	key, err := exp.Export(ctx)
	if err != nil {
		return fmt.Errorf("exporting runs: %w", err)
	}

	log.WithField("backend", backend.Name()).
		WithField("key", key).
		Info("Export complete")

	return nil
}
