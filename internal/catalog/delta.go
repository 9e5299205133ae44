package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/watchwell/screener/internal/index"
	"github.com/watchwell/screener/internal/model"
)

// Delta operation kinds.
const (
	OpAdd = "ADD"
	OpMod = "MOD"
	OpDel = "DEL"
)

// Op is one entity change operation. Full ingestions yield only ADDs.
type Op struct {
	Op     string        `json:"op"`
	Entity *model.Entity `json:"entity,omitempty"`
}

// Plan is the computed work for converging one dataset: either a single full
// ingestion or an ordered sequence of delta replays.
type Plan struct {
	Dataset       *model.Dataset
	Full          bool
	TargetVersion string
	// DeltaURLs holds the delta streams to replay, ascending by version.
	DeltaURLs []string
}

// Empty reports whether the plan requires no work against the given base.
// Versions compare in their sanitized forms.
func (p *Plan) Empty(baseVersion string) bool {
	if p.Full {
		return index.SanitizeVersion(p.TargetVersion) == index.SanitizeVersion(baseVersion)
	}
	return len(p.DeltaURLs) == 0
}

// NeedsUpdate reports whether a dataset has work to do against the version
// currently aliased in the index.
func NeedsUpdate(ds *model.Dataset, plan *Plan, baseVersion string) bool {
	if !ds.Load || ds.EntitiesURL == "" {
		return false
	}
	return !plan.Empty(baseVersion)
}

// deltaIndex is the version → delta-stream-URL mapping published per dataset.
type deltaIndex struct {
	Versions map[string]string `json:"versions"`
}

// BuildPlan decides between full ingestion and delta replay for one dataset.
// Any failure to fetch or parse the delta index degrades to a full ingestion
// with a logged warning, never a silent skip.
func (l *Loader) BuildPlan(ctx context.Context, ds *model.Dataset, baseVersion string, forceFull, deltasEnabled bool) *Plan {
	full := &Plan{Dataset: ds, Full: true, TargetVersion: ds.Version}

	if forceFull || ds.DeltaURL == "" || !deltasEnabled {
		return full
	}
	if baseVersion == "" {
		return full
	}

	idx, err := l.fetchDeltaIndex(ctx, ds.DeltaURL)
	if err != nil {
		slog.Warn("delta index unavailable, falling back to full ingestion",
			"dataset", ds.Name, "error", err)
		return full
	}
	if len(idx.Versions) == 0 {
		return full
	}

	// Comparisons run on sanitized version strings, the form index names
	// encode, so the base version read back from an index name lines up.
	base := index.SanitizeVersion(baseVersion)
	declared := index.SanitizeVersion(ds.Version)
	versions := make([]string, 0, len(idx.Versions))
	urls := make(map[string]string, len(idx.Versions))
	for v, url := range idx.Versions {
		s := index.SanitizeVersion(v)
		versions = append(versions, s)
		urls[s] = url
	}
	sort.Strings(versions)

	// The delta window must cover the base version; if our base predates the
	// oldest delta we cannot replay our way forward.
	if base < versions[0] {
		return full
	}

	plan := &Plan{Dataset: ds, TargetVersion: baseVersion}
	for _, v := range versions {
		if v > base && v <= declared {
			plan.DeltaURLs = append(plan.DeltaURLs, urls[v])
			plan.TargetVersion = v
		}
	}
	return plan
}

func (l *Loader) fetchDeltaIndex(ctx context.Context, url string) (*deltaIndex, error) {
	body, err := l.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetching delta index %s: %w", url, err)
	}
	defer body.Close()
	idx := &deltaIndex{}
	if err := json.NewDecoder(body).Decode(idx); err != nil {
		return nil, fmt.Errorf("parsing delta index %s: %w", url, err)
	}
	return idx, nil
}

// Stream yields the plan's operations in order: every entity as an ADD for a
// full ingestion, else each delta stream ascending by version.
func (l *Loader) Stream(ctx context.Context, plan *Plan, fn func(Op) error) error {
	if plan.Full {
		return l.StreamEntities(ctx, plan.Dataset.EntitiesURL, func(e *model.Entity) error {
			return fn(Op{Op: OpAdd, Entity: e})
		})
	}
	for _, url := range plan.DeltaURLs {
		if err := l.streamDelta(ctx, url, fn); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) streamDelta(ctx context.Context, url string, fn func(Op) error) error {
	body, err := l.fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("fetching delta %s: %w", url, err)
	}
	defer body.Close()
	return streamLines(body, func(line []byte) error {
		var op Op
		if err := json.Unmarshal(line, &op); err != nil {
			slog.Warn("skipping invalid delta line", "url", url, "error", err)
			return nil
		}
		switch op.Op {
		case OpAdd, OpMod, OpDel:
		default:
			slog.Warn("skipping delta with unknown op", "url", url, "op", op.Op)
			return nil
		}
		if op.Entity == nil {
			slog.Warn("skipping delta without entity", "url", url, "op", op.Op)
			return nil
		}
		if err := op.Entity.Validate(); err != nil {
			slog.Warn("skipping delta with invalid entity", "url", url, "error", err)
			return nil
		}
		return fn(op)
	})
}
