// Package matcher runs query-by-example batches: candidate recall through
// the search service, then pairwise scoring against each example.
package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/watchwell/screener/internal/analyzer"
	"github.com/watchwell/screener/internal/config"
	"github.com/watchwell/screener/internal/index"
	"github.com/watchwell/screener/internal/metrics"
	"github.com/watchwell/screener/internal/model"
	"github.com/watchwell/screener/internal/scorer"
	"github.com/watchwell/screener/internal/search"
)

// StringList accepts either a JSON string or an array of strings, so example
// properties can be written either way.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler for StringList.
func (l *StringList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*l = StringList(list)
	return nil
}

// Query is one example entity in a match batch.
type Query struct {
	Schema     string                `json:"schema"`
	Properties map[string]StringList `json:"properties"`
}

// Params are the batch-wide matching options.
type Params struct {
	Limit      int
	Threshold  float64
	Cutoff     float64
	Algorithm  string
	Filters    search.Filters
	ExcludeIDs []string
	Weights    map[string]float64
}

// Result is one scored candidate.
type Result struct {
	*model.Entity
	Score    float64            `json:"score"`
	Match    bool               `json:"match"`
	Features map[string]float64 `json:"features"`
}

// Response is the outcome for one example in the batch.
type Response struct {
	Status  int           `json:"status"`
	Query   *model.Entity `json:"query"`
	Results []Result      `json:"results"`
	Total   int64         `json:"total"`
}

// Matcher fans match batches out over the search backend, bounded by a
// process-wide concurrency budget shared across requests.
type Matcher struct {
	cfg *config.Config
	svc *search.Service
	sem *semaphore.Weighted
}

// New creates a matcher on the given search service.
func New(cfg *config.Config, svc *search.Service) *Matcher {
	concurrency := cfg.Matching.QueryConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Matcher{cfg: cfg, svc: svc, sem: semaphore.NewWeighted(int64(concurrency))}
}

// normalize turns an example query into a validated entity. Country-typed
// values are normalized so the echoed query shows what was actually matched.
func normalize(q Query) (*model.Entity, error) {
	if q.Schema == "" {
		return nil, fmt.Errorf("%w: example without schema", index.ErrInvalid)
	}
	schema := model.GetSchema(q.Schema)
	if schema == nil {
		return nil, fmt.Errorf("%w: unknown schema %q", index.ErrInvalid, q.Schema)
	}
	if !schema.Matchable {
		return nil, fmt.Errorf("%w: schema %q is not matchable", index.ErrInvalid, q.Schema)
	}
	entity := &model.Entity{
		ID:         "query",
		Schema:     q.Schema,
		Properties: map[string][]model.Value{},
	}
	for name, values := range q.Properties {
		decl, ok := schema.Prop(name)
		if !ok {
			continue
		}
		for _, v := range values {
			if v == "" {
				continue
			}
			if decl.Type == model.TypeCountry {
				v = analyzer.NormalizeCountry(v)
			}
			entity.Properties[name] = append(entity.Properties[name], model.Value{Str: v})
		}
	}
	return entity, nil
}

// candidateSize computes how many candidates to recall for one example.
func (m *Matcher) candidateSize(limit int) int {
	size := limit * m.cfg.Matching.Candidates
	if size > m.cfg.Matching.MaxMatches {
		size = m.cfg.Matching.MaxMatches
	}
	if size < 20 {
		size = 20
	}
	return size
}

// MatchBatch scores every example against the index. The whole batch is
// rejected when it is too large or any example is invalid.
func (m *Matcher) MatchBatch(ctx context.Context, queries map[string]Query, p Params) (map[string]*Response, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("%w: empty query batch", index.ErrInvalid)
	}
	if len(queries) > m.cfg.Matching.MaxBatch {
		return nil, fmt.Errorf("%w: batch of %d exceeds limit %d",
			index.ErrInvalid, len(queries), m.cfg.Matching.MaxBatch)
	}

	algorithm := p.Algorithm
	if algorithm == "" {
		algorithm = scorer.DefaultAlgorithm
	}
	algo, ok := scorer.Get(algorithm)
	if !ok {
		return nil, fmt.Errorf("%w: unknown algorithm %q", index.ErrInvalid, algorithm)
	}

	limit := p.Limit
	if limit <= 0 {
		limit = m.cfg.Matching.MatchPage
	}
	if limit > m.cfg.Matching.MaxMatches {
		limit = m.cfg.Matching.MaxMatches
	}
	threshold := m.cfg.Matching.ScoreThreshold
	if p.Threshold > 0 {
		threshold = p.Threshold
	}
	cutoff := m.cfg.Matching.ScoreCutoff
	if p.Cutoff > 0 {
		cutoff = p.Cutoff
	}

	// Validate the whole batch before running any of it.
	examples := make(map[string]*model.Entity, len(queries))
	for key, q := range queries {
		example, err := normalize(q)
		if err != nil {
			return nil, fmt.Errorf("example %q: %w", key, err)
		}
		examples[key] = example
	}

	responses := make(map[string]*Response, len(examples))
	for key := range examples {
		responses[key] = &Response{Status: http.StatusOK, Results: []Result{}}
	}

	g, gctx := errgroup.WithContext(ctx)
	for key, example := range examples {
		key, example := key, example
		g.Go(func() error {
			if err := m.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer m.sem.Release(1)
			return m.matchOne(gctx, example, algo, p, limit, threshold, cutoff, responses[key])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	metrics.MatchQueries.WithLabelValues(algorithm).Add(float64(len(examples)))
	return responses, nil
}

func (m *Matcher) matchOne(ctx context.Context, example *model.Entity, algo scorer.Algorithm,
	p Params, limit int, threshold, cutoff float64, resp *Response) error {
	candidates, err := m.svc.Candidates(ctx, example, p.Filters, p.ExcludeIDs, m.candidateSize(limit))
	if err != nil {
		return err
	}

	cfg := scorer.Config{Weights: p.Weights}
	results := make([]Result, 0, len(candidates))
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if excluded(candidate, p.ExcludeIDs) {
			continue
		}
		scored := algo.Compare(example, candidate, cfg)
		if scored.Score <= cutoff {
			continue
		}
		results = append(results, Result{
			Entity:   candidate,
			Score:    scored.Score,
			Match:    scored.Score >= threshold,
			Features: scored.Features,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	resp.Total = int64(len(results))
	if len(results) > limit {
		results = results[:limit]
	}
	resp.Query = example
	resp.Results = results
	return nil
}

// excluded reports whether a candidate's canonical id or any referent is in
// the exclusion list.
func excluded(candidate *model.Entity, ids []string) bool {
	for _, id := range ids {
		if candidate.HasID(id) {
			return true
		}
	}
	return false
}
