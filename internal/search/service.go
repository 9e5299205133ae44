package search

import (
	"context"
	"fmt"

	"github.com/watchwell/screener/internal/config"
	"github.com/watchwell/screener/internal/index"
	"github.com/watchwell/screener/internal/model"
)

// adjacentScan bounds how many referencing documents one entity pulls in
// while resolving incoming edges.
const adjacentScan = 1000

// Service runs entity queries against the read alias.
type Service struct {
	cfg      *config.Config
	provider index.Provider
	alias    string
}

// New creates a search service on the configured entities alias.
func New(cfg *config.Config, provider index.Provider) *Service {
	return &Service{
		cfg:      cfg,
		provider: provider,
		alias:    index.EntitiesAlias(cfg.Index.Name),
	}
}

// Params are the inputs of one free-text search.
type Params struct {
	Query   string
	Filters Filters
	Limit   int
	Offset  int
	Sorts   []string
	Facets  []string
	Fuzzy   bool
}

// Page is one page of search results.
type Page struct {
	Results []*model.Entity
	Total   int64
	Facets  map[string]Facet
}

// Search runs a free-text query and returns one result page.
func (s *Service) Search(ctx context.Context, p Params) (*Page, error) {
	query, err := TextQuery(p.Query, p.Filters, p.Fuzzy)
	if err != nil {
		return nil, err
	}
	sorts, err := ParseSorts(p.Sorts)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"query": query,
		"size":  p.Limit,
		"from":  p.Offset,
		"sort":  sorts,
	}
	if len(p.Facets) > 0 {
		aggs, err := FacetAggs(p.Facets)
		if err != nil {
			return nil, err
		}
		body["aggs"] = aggs
	}
	res, err := s.provider.Search(ctx, s.alias, body)
	if err != nil {
		return nil, err
	}
	entities, _, err := ParseEntities(res)
	if err != nil {
		return nil, err
	}
	facets, err := ParseFacets(res.Aggregations)
	if err != nil {
		return nil, err
	}
	return &Page{Results: entities, Total: res.Total, Facets: facets}, nil
}

// Get fetches one entity by canonical or referent id. A referent id returns
// an empty entity and the canonical id the caller should redirect to.
func (s *Service) Get(ctx context.Context, id string) (*model.Entity, string, error) {
	body := map[string]any{
		"query": map[string]any{"ids": map[string]any{"values": []string{id}}},
		"size":  2,
	}
	res, err := s.provider.Search(ctx, s.alias, body)
	if err != nil {
		return nil, "", err
	}
	canonical := ""
	for _, hit := range res.Hits {
		entity, redirect, err := ParseHit(hit)
		if err != nil {
			return nil, "", err
		}
		if entity != nil {
			return entity, "", nil
		}
		canonical = redirect
	}
	if canonical != "" {
		return nil, canonical, nil
	}
	return nil, "", fmt.Errorf("entity %s: %w", id, index.ErrNotFound)
}

// byIDs batch-fetches entities by id, following referent stubs one hop.
// The result maps every requested id that resolved to its entity.
func (s *Service) byIDs(ctx context.Context, ids []string) (map[string]*model.Entity, error) {
	out := make(map[string]*model.Entity, len(ids))
	pending := ids
	// Two rounds at most: requested ids, then canonicals behind stubs.
	stubFor := map[string][]string{}
	for round := 0; round < 2 && len(pending) > 0; round++ {
		body := map[string]any{
			"query": map[string]any{"ids": map[string]any{"values": pending}},
			"size":  len(pending),
		}
		res, err := s.provider.Search(ctx, s.alias, body)
		if err != nil {
			return nil, err
		}
		var next []string
		for _, hit := range res.Hits {
			entity, canonical, err := ParseHit(hit)
			if err != nil {
				return nil, err
			}
			if entity != nil {
				out[hit.ID] = entity
				for _, stub := range stubFor[hit.ID] {
					out[stub] = entity
				}
				continue
			}
			if _, done := out[canonical]; done {
				out[hit.ID] = out[canonical]
				continue
			}
			stubFor[canonical] = append(stubFor[canonical], hit.ID)
			next = append(next, canonical)
		}
		pending = next
	}
	return out, nil
}

// Nested resolves the entity graph one edge deep: outgoing entity-typed
// values become nested entities, incoming edges attach under their reverse
// property names, and edge entities expand through to their far side.
func (s *Service) Nested(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	visited := map[string]bool{}
	for _, id := range e.AllIDs() {
		visited[id] = true
	}

	if err := s.resolveOutgoing(ctx, e, visited); err != nil {
		return nil, err
	}
	if err := s.resolveIncoming(ctx, e, visited); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) resolveOutgoing(ctx context.Context, e *model.Entity, visited map[string]bool) error {
	schema := e.GetSchema()
	if schema == nil {
		return nil
	}
	var wanted []string
	for prop, values := range e.Properties {
		decl, ok := schema.Prop(prop)
		if !ok || decl.Type != model.TypeEntity {
			continue
		}
		for _, v := range values {
			if v.Str != "" && !visited[v.Str] {
				wanted = append(wanted, v.Str)
			}
		}
	}
	if len(wanted) == 0 {
		return nil
	}
	fetched, err := s.byIDs(ctx, wanted)
	if err != nil {
		return err
	}

	// Edge entities among the neighbours expand one hop further, so the far
	// side of a sanction or ownership arrives in the same response.
	var farSide []string
	for _, neighbour := range fetched {
		ns := neighbour.GetSchema()
		if ns == nil || !ns.Edge {
			continue
		}
		for prop, values := range neighbour.Properties {
			decl, ok := ns.Prop(prop)
			if !ok || decl.Type != model.TypeEntity {
				continue
			}
			for _, v := range values {
				if v.Str != "" && !visited[v.Str] {
					farSide = append(farSide, v.Str)
				}
			}
		}
	}
	far := map[string]*model.Entity{}
	if len(farSide) > 0 {
		if far, err = s.byIDs(ctx, farSide); err != nil {
			return err
		}
	}
	for _, neighbour := range fetched {
		if ns := neighbour.GetSchema(); ns != nil && ns.Edge {
			embed(neighbour, far, visited)
		}
	}
	embed(e, fetched, visited)
	return nil
}

// embed swaps id-valued entity properties for the resolved entities.
func embed(e *model.Entity, resolved map[string]*model.Entity, visited map[string]bool) {
	schema := e.GetSchema()
	if schema == nil {
		return
	}
	for prop, values := range e.Properties {
		decl, ok := schema.Prop(prop)
		if !ok || decl.Type != model.TypeEntity {
			continue
		}
		for i, v := range values {
			if ent, ok := resolved[v.Str]; ok && !visited[v.Str] {
				values[i] = model.Value{Entity: ent}
			}
		}
		e.Properties[prop] = values
	}
}

func (s *Service) resolveIncoming(ctx context.Context, e *model.Entity, visited map[string]bool) error {
	incoming, err := s.referencing(ctx, e)
	if err != nil {
		return err
	}

	var farSide []string
	for _, ref := range incoming {
		rs := ref.Entity.GetSchema()
		if rs == nil || !rs.Edge {
			continue
		}
		for prop, values := range ref.Entity.Properties {
			decl, ok := rs.Prop(prop)
			if !ok || decl.Type != model.TypeEntity {
				continue
			}
			for _, v := range values {
				if v.Str != "" && !visited[v.Str] && !e.HasID(v.Str) {
					farSide = append(farSide, v.Str)
				}
			}
		}
	}
	far := map[string]*model.Entity{}
	if len(farSide) > 0 {
		if far, err = s.byIDs(ctx, farSide); err != nil {
			return err
		}
	}
	for _, ref := range incoming {
		if rs := ref.Entity.GetSchema(); rs != nil && rs.Edge {
			embed(ref.Entity, far, visited)
		}
		if e.Properties == nil {
			e.Properties = map[string][]model.Value{}
		}
		e.Properties[ref.Reverse] = append(e.Properties[ref.Reverse], model.Value{Entity: ref.Entity})
	}
	return nil
}

// reference is one entity pointing at the subject, with the reverse property
// name it attaches under.
type reference struct {
	Reverse string
	Entity  *model.Entity
}

// referencing finds entities whose entity-typed properties point at any of
// the subject's ids.
func (s *Service) referencing(ctx context.Context, e *model.Entity) ([]reference, error) {
	body := map[string]any{
		"query": map[string]any{"terms": map[string]any{"entities": e.AllIDs()}},
		"size":  adjacentScan,
	}
	res, err := s.provider.Search(ctx, s.alias, body)
	if err != nil {
		return nil, err
	}
	entities, _, err := ParseEntities(res)
	if err != nil {
		return nil, err
	}
	var out []reference
	for _, ref := range entities {
		if e.HasID(ref.ID) {
			continue
		}
		rs := ref.GetSchema()
		if rs == nil {
			continue
		}
		for prop := range ref.Properties {
			decl, ok := rs.Prop(prop)
			if !ok || decl.Type != model.TypeEntity || decl.Reverse == "" {
				continue
			}
			for _, id := range ref.Values(prop) {
				if e.HasID(id) {
					out = append(out, reference{Reverse: decl.Reverse, Entity: ref})
					break
				}
			}
		}
	}
	return out, nil
}

// Adjacency is one paginated adjacency listing.
type Adjacency struct {
	Results []*model.Entity `json:"results"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// reverseNames collects every reverse property name declared in the schema
// registry.
func reverseNames() map[string]bool {
	out := map[string]bool{}
	for _, schema := range model.Schemata {
		for _, prop := range schema.Properties {
			if prop.Reverse != "" {
				out[prop.Reverse] = true
			}
		}
	}
	return out
}

// Adjacent pages through the entities adjacent to e. With prop set, only
// that forward or reverse property is listed; an unknown prop is not found.
func (s *Service) Adjacent(ctx context.Context, e *model.Entity, prop string, limit, offset int) (map[string]*Adjacency, error) {
	schema := e.GetSchema()
	if schema == nil {
		return nil, fmt.Errorf("entity %s: unknown schema %q: %w", e.ID, e.Schema, index.ErrNotFound)
	}
	out := map[string]*Adjacency{}

	forward := prop == ""
	if !forward {
		if decl, ok := schema.Prop(prop); ok && decl.Type == model.TypeEntity {
			forward = true
		} else if !reverseNames()[prop] {
			return nil, fmt.Errorf("property %q: %w", prop, index.ErrNotFound)
		}
	}

	if forward {
		for name := range e.Properties {
			if prop != "" && name != prop {
				continue
			}
			decl, ok := schema.Prop(name)
			if !ok || decl.Type != model.TypeEntity {
				continue
			}
			adj, err := s.forwardAdjacency(ctx, e, name, limit, offset)
			if err != nil {
				return nil, err
			}
			if adj != nil {
				out[name] = adj
			}
		}
	}

	if prop == "" || !forward {
		incoming, err := s.referencing(ctx, e)
		if err != nil {
			return nil, err
		}
		grouped := map[string][]*model.Entity{}
		for _, ref := range incoming {
			if prop != "" && ref.Reverse != prop {
				continue
			}
			grouped[ref.Reverse] = append(grouped[ref.Reverse], ref.Entity)
		}
		for name, refs := range grouped {
			out[name] = pageOf(refs, limit, offset)
		}
	}

	if prop != "" {
		if _, ok := out[prop]; !ok {
			out[prop] = &Adjacency{Results: []*model.Entity{}, Limit: limit, Offset: offset}
		}
	}
	return out, nil
}

func (s *Service) forwardAdjacency(ctx context.Context, e *model.Entity, prop string, limit, offset int) (*Adjacency, error) {
	ids := e.Values(prop)
	if len(ids) == 0 {
		return nil, nil
	}
	adj := &Adjacency{Results: []*model.Entity{}, Total: int64(len(ids)), Limit: limit, Offset: offset}
	if offset >= len(ids) {
		return adj, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	window := ids[offset:end]
	fetched, err := s.byIDs(ctx, window)
	if err != nil {
		return nil, err
	}
	for _, id := range window {
		if ent, ok := fetched[id]; ok {
			adj.Results = append(adj.Results, ent)
		}
	}
	return adj, nil
}

func pageOf(entities []*model.Entity, limit, offset int) *Adjacency {
	adj := &Adjacency{Results: []*model.Entity{}, Total: int64(len(entities)), Limit: limit, Offset: offset}
	if offset >= len(entities) {
		return adj
	}
	end := offset + limit
	if end > len(entities) {
		end = len(entities)
	}
	adj.Results = entities[offset:end]
	return adj
}

// Suggest returns entities whose names start with the given prefix.
func (s *Service) Suggest(ctx context.Context, prefix string, f Filters, limit int) ([]*model.Entity, error) {
	query, err := SuggestQuery(prefix, f)
	if err != nil {
		return nil, err
	}
	body := map[string]any{"query": query, "size": limit}
	res, err := s.provider.Search(ctx, s.alias, body)
	if err != nil {
		return nil, err
	}
	entities, _, err := ParseEntities(res)
	return entities, err
}

// Candidates recalls scoring candidates for one example entity.
func (s *Service) Candidates(ctx context.Context, example *model.Entity, f Filters, excludeIDs []string, size int) ([]*model.Entity, error) {
	query, err := MatchQuery(example, f, excludeIDs, s.cfg.Matching.Fuzzy)
	if err != nil {
		return nil, err
	}
	body := map[string]any{"query": query, "size": size}
	res, err := s.provider.Search(ctx, s.alias, body)
	if err != nil {
		return nil, err
	}
	entities, _, err := ParseEntities(res)
	return entities, err
}
