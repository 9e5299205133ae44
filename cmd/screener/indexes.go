package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/watchwell/screener/internal/config"
	"github.com/watchwell/screener/internal/index"
)

var indexesJSONOutput bool

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Inspect and clean up entity indices",
	Long:  "List the versioned entity indices and the alias members, or delete orphans left behind by aborted reindex runs.",
}

func init() {
	indexesCmd.PersistentFlags().BoolVar(&indexesJSONOutput, "json", false,
		"Output in JSON format")

	indexesCmd.AddCommand(indexesListCmd)
	indexesCmd.AddCommand(indexesCleanupCmd)
}

// withProvider loads config, connects to the backend and runs fn.
func withProvider(fn func(ctx context.Context, cfg *config.Config, provider index.Provider) error) error {
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
	return fn(ctx, cfg, provider)
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type indexInfo struct {
	Name    string `json:"name"`
	Aliased bool   `json:"aliased"`
}

var indexesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List entity indices and their alias membership",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(func(ctx context.Context, cfg *config.Config, provider index.Provider) error {
			alias := index.EntitiesAlias(cfg.Index.Name)
			aliased, err := provider.AliasIndices(ctx, alias)
			if err != nil {
				return err
			}
			inAlias := make(map[string]bool, len(aliased))
			for _, name := range aliased {
				inAlias[name] = true
			}
			all, err := provider.ListIndices(ctx, alias+"-*")
			if err != nil {
				return err
			}

			infos := make([]indexInfo, 0, len(all))
			for _, name := range all {
				infos = append(infos, indexInfo{Name: name, Aliased: inAlias[name]})
			}
			if indexesJSONOutput {
				return printJSON(cmd.OutOrStdout(), infos)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tALIASED")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%v\n", info.Name, info.Aliased)
			}
			return tw.Flush()
		})
	},
}

var indexesCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete versioned indices not behind the alias",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(func(ctx context.Context, cfg *config.Config, provider index.Provider) error {
			alias := index.EntitiesAlias(cfg.Index.Name)
			aliased, err := provider.AliasIndices(ctx, alias)
			if err != nil {
				return err
			}
			inAlias := make(map[string]bool, len(aliased))
			for _, name := range aliased {
				inAlias[name] = true
			}
			all, err := provider.ListIndices(ctx, alias+"-*")
			if err != nil {
				return err
			}

			audit := index.AuditLogIndex(cfg.Index.Name)
			var deleted []string
			for _, name := range all {
				if inAlias[name] || name == audit {
					continue
				}
				if err := provider.DeleteIndex(ctx, name); err != nil {
					return fmt.Errorf("deleting %s: %w", name, err)
				}
				deleted = append(deleted, name)
			}
			if indexesJSONOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{"deleted": deleted})
			}
			for _, name := range deleted {
				fmt.Fprintln(cmd.OutOrStdout(), "deleted", name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d indices deleted\n", len(deleted))
			return nil
		})
	},
}
