package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/watchwell/screener/internal/auditlog"
	"github.com/watchwell/screener/internal/catalog"
	"github.com/watchwell/screener/internal/index"
	"github.com/watchwell/screener/internal/indexer"
)

var reindexForce bool

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Run one catalog convergence pass and exit",
	Long:  "Fetches the dataset catalog, updates every stale dataset and rolls the alias over, without starting the server.",
	RunE:  runReindex,
}

func init() {
	reindexCmd.Flags().BoolVar(&reindexForce, "force", false,
		"Rebuild every dataset even if its indexed version is current")
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := setup()
	if err != nil {
		return err
	}
	provider, err := index.NewOpenSearchProvider(ctx, cfg.Index)
	if err != nil {
		return err
	}
	defer provider.Close()

	manifest, err := catalog.LoadManifest(cfg.Catalog.Manifest)
	if err != nil {
		return err
	}
	loader := catalog.NewLoader(manifest)
	audit := auditlog.New(provider, cfg.Index.Name)

	return indexer.New(cfg, provider, loader, audit).Run(ctx, reindexForce)
}
