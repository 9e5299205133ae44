// Package indexer converges the search backend to the catalog's current
// dataset versions with the least work possible, and makes every switch
// atomic for readers via alias rollover.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/watchwell/screener/internal/auditlog"
	"github.com/watchwell/screener/internal/catalog"
	"github.com/watchwell/screener/internal/config"
	"github.com/watchwell/screener/internal/index"
	"github.com/watchwell/screener/internal/metrics"
	"github.com/watchwell/screener/internal/model"
)

// heartbeatInterval is how often a running ingestion refreshes its lock.
const heartbeatInterval = 60 * time.Second

// Indexer drives dataset ingestion for one service replica.
type Indexer struct {
	cfg      *config.Config
	provider index.Provider
	loader   *catalog.Loader
	audit    *auditlog.Log
}

// New creates an Indexer.
func New(cfg *config.Config, provider index.Provider, loader *catalog.Loader, audit *auditlog.Log) *Indexer {
	return &Indexer{cfg: cfg, provider: provider, loader: loader, audit: audit}
}

// Run refreshes every dataset in the catalog. Per-dataset failures are
// logged and do not abort the remaining datasets; the first error is
// returned after all datasets have been attempted.
func (ix *Indexer) Run(ctx context.Context, force bool) error {
	if err := ix.audit.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("preparing audit log: %w", err)
	}
	cat, err := ix.loader.FetchCatalog(ctx)
	if err != nil {
		return fmt.Errorf("resolving catalog: %w", err)
	}

	var firstErr error
	for _, ds := range cat.Datasets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := ix.UpdateDataset(ctx, ds, force); err != nil {
			if errors.Is(err, auditlog.ErrLockHeld) {
				slog.Info("dataset is being reindexed elsewhere, skipping",
					"dataset", ds.Name)
				continue
			}
			slog.Error("dataset update failed", "dataset", ds.Name, "error", err)
			metrics.IndexerRuns.WithLabelValues(ds.Name, "error").Inc()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
	}
	return firstErr
}

// UpdateDataset converges one dataset to its declared version.
func (ix *Indexer) UpdateDataset(ctx context.Context, ds *model.Dataset, force bool) error {
	if ds.Composite() || !ds.Load || ds.EntitiesURL == "" {
		return nil
	}

	prefix := ix.cfg.Index.Name
	software := ix.cfg.Index.Version
	alias := index.EntitiesAlias(prefix)

	aliased, err := ix.provider.AliasIndices(ctx, alias)
	if err != nil {
		return err
	}
	baseIndex, baseVersion := "", ""
	for _, name := range aliased {
		if v := index.DatasetVersion(name, prefix, ds.Name, software); v != "" {
			baseIndex, baseVersion = name, v
		}
	}

	plan := ix.loader.BuildPlan(ctx, ds, baseVersion, force, ix.cfg.Indexer.DeltaUpdates)
	if !catalog.NeedsUpdate(ds, plan, baseVersion) {
		slog.Debug("dataset is current", "dataset", ds.Name, "version", baseVersion)
		return nil
	}

	next := index.VersionedIndex(prefix, ds.Name, software, plan.TargetVersion)
	if next == baseIndex {
		return nil
	}

	reindexType := auditlog.ReindexFull
	if !plan.Full {
		reindexType = auditlog.ReindexPartial
	}
	rec := auditlog.Record{
		AliasIndex:      alias,
		Index:           next,
		Dataset:         ds.Name,
		DatasetVersion:  plan.TargetVersion,
		SoftwareVersion: software,
		ReindexType:     reindexType,
	}
	lock, err := ix.audit.AcquireLock(ctx, rec)
	if err != nil {
		return err
	}

	start := time.Now()
	err = ix.build(ctx, lock, plan, baseIndex, next)
	if err != nil {
		// Cancellation keeps the lock; heartbeat expiry lets another
		// replica recover the slot. Everything else releases explicitly.
		if ctx.Err() == nil {
			if delErr := ix.provider.DeleteIndex(context.WithoutCancel(ctx), next); delErr != nil {
				slog.Error("failed to delete partial index", "index", next, "error", delErr)
			}
			lock.Release(context.WithoutCancel(ctx), false)
		}
		return fmt.Errorf("building %s: %w", next, err)
	}

	if err := ix.provider.Rollover(ctx, alias, next, index.DatasetPattern(prefix, ds.Name)); err != nil {
		lock.Release(context.WithoutCancel(ctx), false)
		return fmt.Errorf("rolling over alias to %s: %w", next, err)
	}
	rollover := rec
	rollover.MessageType = auditlog.MessageRolloverComplete
	if err := ix.audit.Append(ctx, rollover); err != nil {
		slog.Warn("failed to record rollover", "index", next, "error", err)
	}
	lock.Release(ctx, true)

	// Old versions are no longer aliased; retire them.
	ix.cleanupOld(ctx, prefix, ds.Name, next)

	slog.Info("dataset updated",
		"dataset", ds.Name,
		"index", next,
		"reindex_type", reindexType,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	metrics.IndexerRuns.WithLabelValues(ds.Name, "ok").Inc()
	return nil
}

// build creates or clones the target index and streams the plan into it.
func (ix *Indexer) build(ctx context.Context, lock *auditlog.Lock, plan *catalog.Plan, baseIndex, next string) error {
	// A leftover from an earlier failed run is unreliable; rebuild it.
	exists, err := ix.provider.IndexExists(ctx, next)
	if err != nil {
		return err
	}
	if exists {
		slog.Warn("deleting stale partial index", "index", next)
		if err := ix.provider.DeleteIndex(ctx, next); err != nil {
			return err
		}
	}

	if !plan.Full && baseIndex != "" {
		slog.Info("cloning base index for delta replay", "base", baseIndex, "target", next)
		if err := ix.provider.CloneIndex(ctx, baseIndex, next); err != nil {
			return err
		}
	} else {
		mapping := index.EntityMapping(ix.cfg.Index.Shards, ix.cfg.Index.Replicas)
		if err := ix.provider.CreateIndex(ctx, next, mapping); err != nil {
			return err
		}
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go heartbeatLoop(hbCtx, lock)

	count, err := ix.stream(ctx, plan, next)
	if err != nil {
		return err
	}
	if err := ix.provider.Refresh(ctx, next); err != nil {
		return err
	}
	slog.Info("ingestion finished", "index", next, "ops", count)
	metrics.IndexedOps.WithLabelValues(plan.Dataset.Name).Add(float64(count))
	return nil
}

// stream applies the plan's operations in chunks.
func (ix *Indexer) stream(ctx context.Context, plan *catalog.Plan, next string) (int, error) {
	batchSize := ix.cfg.Indexer.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	var ops []index.BulkOp
	count := 0

	flush := func() error {
		if len(ops) == 0 {
			return nil
		}
		if err := ix.provider.Bulk(ctx, next, ops); err != nil {
			return err
		}
		ops = ops[:0]
		return nil
	}

	err := ix.loader.Stream(ctx, plan, func(op catalog.Op) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		count++
		switch op.Op {
		case catalog.OpAdd, catalog.OpMod:
			ops = append(ops, index.BulkOp{
				Action: index.BulkIndex,
				ID:     op.Entity.ID,
				Doc:    index.BuildDocument(op.Entity),
			})
			// Referent ids get stub documents so lookups by a merged id
			// redirect to the canonical entity.
			for _, ref := range op.Entity.Referents {
				ops = append(ops, index.BulkOp{
					Action: index.BulkIndex,
					ID:     ref,
					Doc:    index.Stub{CanonicalID: op.Entity.ID},
				})
			}
		case catalog.OpDel:
			ops = append(ops, index.BulkOp{Action: index.BulkDelete, ID: op.Entity.ID})
			for _, ref := range op.Entity.Referents {
				ops = append(ops, index.BulkOp{Action: index.BulkDelete, ID: ref})
			}
		}
		if len(ops) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	return count, flush()
}

func heartbeatLoop(ctx context.Context, lock *auditlog.Lock) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Heartbeat(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("lock heartbeat failed", "error", err)
			}
		}
	}
}

// cleanupOld deletes versioned indices for the dataset other than current.
func (ix *Indexer) cleanupOld(ctx context.Context, prefix, dataset, current string) {
	names, err := ix.provider.ListIndices(ctx, index.DatasetPattern(prefix, dataset))
	if err != nil {
		slog.Warn("failed to list old indices", "dataset", dataset, "error", err)
		return
	}
	for _, name := range names {
		if name == current {
			continue
		}
		if err := ix.provider.DeleteIndex(ctx, name); err != nil {
			slog.Warn("failed to delete old index", "index", name, "error", err)
		} else {
			slog.Info("deleted superseded index", "index", name)
		}
	}
}
