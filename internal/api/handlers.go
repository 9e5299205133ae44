// Package api exposes the HTTP surface: search, matching, entity fetch,
// catalog and operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/watchwell/screener/internal/catalog"
	"github.com/watchwell/screener/internal/config"
	"github.com/watchwell/screener/internal/index"
	"github.com/watchwell/screener/internal/matcher"
	"github.com/watchwell/screener/internal/model"
	"github.com/watchwell/screener/internal/scorer"
	"github.com/watchwell/screener/internal/search"
)

// Paging hard limits. The backend refuses windows past 10k documents, so the
// API rejects them up front.
const (
	maxLimit  = 500
	maxOffset = 9499
)

// Updater triggers catalog convergence outside the cron cadence.
type Updater interface {
	Trigger(ctx context.Context, force bool) bool
}

// Handler holds the dependencies of all HTTP handlers.
type Handler struct {
	cfg      *config.Config
	svc      *search.Service
	matcher  *matcher.Matcher
	catalog  *catalog.Cache
	provider index.Provider
	updater  Updater
}

// NewHandler creates a Handler.
func NewHandler(cfg *config.Config, svc *search.Service, m *matcher.Matcher,
	cat *catalog.Cache, provider index.Provider, updater Updater) *Handler {
	return &Handler{
		cfg:      cfg,
		svc:      svc,
		matcher:  m,
		catalog:  cat,
		provider: provider,
		updater:  updater,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: parameter %s must be an integer", index.ErrInvalid, name)
	}
	return n, nil
}

func queryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parameter %s must be a number", index.ErrInvalid, name)
	}
	return f, nil
}

// scopeFilters resolves the path dataset and the shared filter parameters.
func (h *Handler) scopeFilters(r *http.Request, dataset string) (search.Filters, error) {
	cat, err := h.catalog.Catalog(r.Context())
	if err != nil {
		return search.Filters{}, err
	}
	scope := cat.Scope(dataset)
	if len(scope) == 0 {
		return search.Filters{}, fmt.Errorf("dataset %q: %w", dataset, index.ErrNotFound)
	}
	q := r.URL.Query()
	f := search.Filters{
		Datasets:        scope,
		IncludeDatasets: q["include_dataset"],
		ExcludeDatasets: q["exclude_dataset"],
		Schema:          q.Get("schema"),
		ExcludeSchemas:  q["exclude_schema"],
		Countries:       q["countries"],
		Topics:          q["topics"],
		ChangedSince:    q.Get("changed_since"),
	}
	if raw := q.Get("target"); raw != "" {
		target := raw == "true"
		f.Target = &target
	}
	return f, nil
}

// Search handles GET /search/{dataset}.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	filters, err := h.scopeFilters(r, chi.URLParam(r, "dataset"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		MapError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		MapError(w, r, err)
		return
	}
	if limit < 0 || limit > maxLimit || offset < 0 || offset > maxOffset {
		WriteProblem(w, r, http.StatusUnprocessableEntity,
			fmt.Sprintf("Paging out of range: limit must be 0-%d, offset 0-%d", maxLimit, maxOffset))
		return
	}

	q := r.URL.Query()
	fuzzy := h.cfg.Matching.Fuzzy
	if raw := q.Get("fuzzy"); raw != "" {
		fuzzy = raw == "true"
	}
	page, err := h.svc.Search(r.Context(), search.Params{
		Query:   q.Get("q"),
		Filters: filters,
		Limit:   limit,
		Offset:  offset,
		Sorts:   q["sort"],
		Facets:  q["facets"],
		Fuzzy:   fuzzy,
	})
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": page.Results,
		"total":   map[string]any{"value": page.Total, "relation": "eq"},
		"limit":   limit,
		"offset":  offset,
		"facets":  page.Facets,
	})
}

type matchRequest struct {
	Queries map[string]matcher.Query `json:"queries"`
	Weights map[string]float64       `json:"weights"`
}

// Match handles POST /match/{dataset}.
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	filters, err := h.scopeFilters(r, chi.URLParam(r, "dataset"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	var body matchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		MapError(w, r, err)
		return
	}
	threshold, err := queryFloat(r, "threshold")
	if err != nil {
		MapError(w, r, err)
		return
	}
	cutoff, err := queryFloat(r, "cutoff")
	if err != nil {
		MapError(w, r, err)
		return
	}
	params := matcher.Params{
		Limit:      limit,
		Threshold:  threshold,
		Cutoff:     cutoff,
		Algorithm:  r.URL.Query().Get("algorithm"),
		Filters:    filters,
		ExcludeIDs: r.URL.Query()["exclude_entity_ids"],
		Weights:    body.Weights,
	}
	responses, err := h.matcher.MatchBatch(r.Context(), body.Queries, params)
	if err != nil {
		MapError(w, r, err)
		return
	}

	algorithm := params.Algorithm
	if algorithm == "" {
		algorithm = scorer.DefaultAlgorithm
	}
	algo, _ := scorer.Get(algorithm)
	writeJSON(w, http.StatusOK, map[string]any{
		"responses": responses,
		"matcher":   algo.Explain(),
		"limit":     limit,
	})
}

// Entity handles GET /entities/{id}. Referent ids redirect to the canonical
// entity; nested resolution is on unless nested=false.
func (h *Handler) Entity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entity, canonical, err := h.svc.Get(r.Context(), id)
	if err != nil {
		MapError(w, r, err)
		return
	}
	if canonical != "" {
		http.Redirect(w, r, "/entities/"+canonical, http.StatusFound)
		return
	}
	if r.URL.Query().Get("nested") != "false" {
		if entity, err = h.svc.Nested(r.Context(), entity); err != nil {
			MapError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, entity)
}

// Adjacent handles GET /entities/{id}/adjacent and /adjacent/{prop}.
func (h *Handler) Adjacent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	prop := chi.URLParam(r, "prop")
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		MapError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		MapError(w, r, err)
		return
	}
	if limit < 0 || limit > maxLimit || offset < 0 || offset > maxOffset {
		WriteProblem(w, r, http.StatusUnprocessableEntity,
			fmt.Sprintf("Paging out of range: limit must be 0-%d, offset 0-%d", maxLimit, maxOffset))
		return
	}

	entity, canonical, err := h.svc.Get(r.Context(), id)
	if err != nil {
		MapError(w, r, err)
		return
	}
	if canonical != "" {
		target := "/entities/" + canonical + "/adjacent"
		if prop != "" {
			target += "/" + prop
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	adjacent, err := h.svc.Adjacent(r.Context(), entity, prop, limit, offset)
	if err != nil {
		MapError(w, r, err)
		return
	}
	if prop != "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"entity":  entity.ID,
			"prop":    prop,
			"results": adjacent[prop].Results,
			"total":   adjacent[prop].Total,
			"limit":   limit,
			"offset":  offset,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entity":   entity.ID,
		"adjacent": adjacent,
	})
}

// Suggest handles GET /suggest/{dataset}: name prefix autocompletion.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	filters, err := h.scopeFilters(r, chi.URLParam(r, "dataset"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		MapError(w, r, err)
		return
	}
	if limit < 0 || limit > maxLimit {
		WriteProblem(w, r, http.StatusUnprocessableEntity,
			fmt.Sprintf("Paging out of range: limit must be 0-%d", maxLimit))
		return
	}
	prefix := r.URL.Query().Get("q")
	if prefix == "" {
		writeJSON(w, http.StatusOK, map[string]any{"results": []*model.Entity{}})
		return
	}
	results, err := h.svc.Suggest(r.Context(), prefix, filters, limit)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Catalog handles GET /catalog.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	cat, err := h.catalog.Catalog(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": cat.Datasets})
}

// Algorithms handles GET /algorithms.
func (h *Handler) Algorithms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"algorithms": scorer.Explains(),
		"default":    scorer.DefaultAlgorithm,
	})
}

// Health handles GET /healthz. It only proves the process is serving.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Ready handles GET /readyz: the cluster is reachable and the read alias has
// at least one index behind it.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.CheckHealth(r.Context()); err != nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Search backend unavailable")
		return
	}
	alias := index.EntitiesAlias(h.cfg.Index.Name)
	indices, err := h.provider.AliasIndices(r.Context(), alias)
	if err != nil || len(indices) == 0 {
		WriteProblem(w, r, http.StatusServiceUnavailable, "No datasets indexed yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "indices": len(indices)})
}

// Update handles POST /updatez: token-gated trigger for catalog convergence.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	token := h.cfg.Indexer.UpdateToken
	if token == "" {
		WriteProblem(w, r, http.StatusForbidden, "Update endpoint is disabled")
		return
	}
	if !constantTimeEqual(r.URL.Query().Get("token"), token) {
		WriteProblem(w, r, http.StatusForbidden, "Invalid update token")
		return
	}
	h.catalog.Invalidate()
	force := r.URL.Query().Get("force") == "true"
	if r.URL.Query().Get("sync") == "true" {
		if !h.updater.Trigger(r.Context(), force) {
			WriteProblem(w, r, http.StatusConflict, "An update is already running")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	go h.updater.Trigger(context.WithoutCancel(r.Context()), force)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}
