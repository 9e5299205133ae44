// Package search builds backend queries for the entities alias and parses
// the results back into entities.
package search

import (
	"fmt"
	"strings"

	"github.com/watchwell/screener/internal/analyzer"
	"github.com/watchwell/screener/internal/index"
	"github.com/watchwell/screener/internal/model"
)

// Filters is the shared filter envelope applied to every entity query.
type Filters struct {
	// Datasets is the leaf-dataset scope resolved from the path dataset.
	Datasets        []string
	IncludeDatasets []string
	ExcludeDatasets []string
	Schema          string
	ExcludeSchemas  []string
	Countries       []string
	Topics          []string
	ChangedSince    string
	Target          *bool
}

func (f Filters) scopedDatasets() []string {
	if len(f.IncludeDatasets) == 0 {
		return f.Datasets
	}
	in := make(map[string]bool, len(f.Datasets))
	for _, d := range f.Datasets {
		in[d] = true
	}
	var out []string
	for _, d := range f.IncludeDatasets {
		if in[d] {
			out = append(out, d)
		}
	}
	return out
}

// clauses renders the filter envelope into bool filter and must_not clauses.
func (f Filters) clauses() (filter, mustNot []any, err error) {
	if datasets := f.scopedDatasets(); len(datasets) > 0 {
		filter = append(filter, map[string]any{"terms": map[string]any{"datasets": datasets}})
	}
	if f.Schema != "" {
		schema := model.GetSchema(f.Schema)
		if schema == nil {
			return nil, nil, fmt.Errorf("%w: unknown schema %q", index.ErrInvalid, f.Schema)
		}
		filter = append(filter, map[string]any{"terms": map[string]any{"schema": schema.MatchableSubtree()}})
	}
	if len(f.Countries) > 0 {
		codes := make([]string, 0, len(f.Countries))
		for _, c := range f.Countries {
			codes = append(codes, analyzer.NormalizeCountry(c))
		}
		filter = append(filter, map[string]any{"terms": map[string]any{"countries": codes}})
	}
	if len(f.Topics) > 0 {
		filter = append(filter, map[string]any{"terms": map[string]any{"topics": f.Topics}})
	}
	if f.ChangedSince != "" {
		filter = append(filter, map[string]any{"range": map[string]any{
			"last_change": map[string]any{"gt": f.ChangedSince},
		}})
	}
	if f.Target != nil {
		filter = append(filter, map[string]any{"term": map[string]any{"target": *f.Target}})
	}
	if len(f.ExcludeDatasets) > 0 {
		mustNot = append(mustNot, map[string]any{"terms": map[string]any{"datasets": f.ExcludeDatasets}})
	}
	for _, name := range f.ExcludeSchemas {
		schema := model.GetSchema(name)
		if schema == nil {
			return nil, nil, fmt.Errorf("%w: unknown schema %q", index.ErrInvalid, name)
		}
		mustNot = append(mustNot, map[string]any{"terms": map[string]any{"schema": schema.Descendants()}})
	}
	// Referent stubs carry no datasets; keep them out of every listing.
	mustNot = append(mustNot, map[string]any{"exists": map[string]any{"field": "canonical_id"}})
	return filter, mustNot, nil
}

func boolQuery(should, filter, mustNot []any) map[string]any {
	inner := map[string]any{}
	if len(should) > 0 {
		inner["should"] = should
		inner["minimum_should_match"] = 1
	}
	if len(filter) > 0 {
		inner["filter"] = filter
	}
	if len(mustNot) > 0 {
		inner["must_not"] = mustNot
	}
	return map[string]any{"bool": inner}
}

// TextQuery builds the free-text search query: a query_string clause over
// names and the text catch-all inside the filter envelope. An empty query
// matches everything in scope.
func TextQuery(q string, f Filters, fuzzy bool) (map[string]any, error) {
	filter, mustNot, err := f.clauses()
	if err != nil {
		return nil, err
	}
	var should []any
	if strings.TrimSpace(q) != "" {
		clause := map[string]any{
			"query":            q,
			"fields":           []string{"names^3", "text"},
			"default_operator": "AND",
		}
		if fuzzy {
			clause["fuzziness"] = "AUTO"
		}
		should = append(should, map[string]any{"query_string": clause})
	} else {
		should = append(should, map[string]any{"match_all": map[string]any{}})
	}
	return boolQuery(should, filter, mustNot), nil
}

// MatchQuery builds the candidate-generation query for one example entity:
// name clauses plus typed term clauses, any one of which recalls a candidate.
// The filter envelope narrows to the example's matchable schema subtree.
func MatchQuery(example *model.Entity, f Filters, excludeIDs []string, fuzzy bool) (map[string]any, error) {
	schema := example.GetSchema()
	if schema == nil {
		return nil, fmt.Errorf("%w: unknown schema %q", index.ErrInvalid, example.Schema)
	}
	filter, mustNot, err := f.clauses()
	if err != nil {
		return nil, err
	}
	filter = append(filter, map[string]any{"terms": map[string]any{"schema": schema.MatchableSubtree()}})
	if len(excludeIDs) > 0 {
		mustNot = append(mustNot,
			map[string]any{"ids": map[string]any{"values": excludeIDs}},
			map[string]any{"terms": map[string]any{"referents": excludeIDs}},
		)
	}

	var should []any
	names := analyzer.AnalyzeEntity(example)
	forms := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		if name.Form != "" && !seen[name.Form] {
			seen[name.Form] = true
			forms = append(forms, name.Form)
		}
	}
	// Few names get one fuzzy clause each; many names collapse into a single
	// bag-of-tokens clause to keep the query from exploding.
	if len(forms) > 0 && len(forms) <= 4 {
		for _, form := range forms {
			clause := map[string]any{"query": form, "boost": 3.0}
			if fuzzy {
				clause["fuzziness"] = "AUTO"
			}
			should = append(should, map[string]any{"match": map[string]any{"names": clause}})
		}
	} else if len(forms) > 4 {
		should = append(should, map[string]any{"match": map[string]any{
			"names": map[string]any{"query": strings.Join(forms, " "), "boost": 3.0},
		}})
	}

	phonetics := map[string]bool{}
	symbols := map[string]bool{}
	for _, name := range names {
		for _, part := range name.Parts {
			if part.Phonetic != "" {
				phonetics[part.Phonetic] = true
			}
		}
		for _, sym := range name.Symbols {
			if sym.Indexable() {
				symbols[sym.String()] = true
			}
		}
	}
	if len(phonetics) > 0 {
		should = append(should, map[string]any{"terms": map[string]any{
			"name_phonetic": keys(phonetics), "boost": 0.5,
		}})
	}
	if len(symbols) > 0 {
		should = append(should, map[string]any{"terms": map[string]any{
			"name_symbols": keys(symbols), "boost": 1.5,
		}})
	}

	for prop := range example.Properties {
		decl, ok := schema.Prop(prop)
		if !ok || decl.Type == model.TypeEntity {
			continue
		}
		for _, value := range example.Values(prop) {
			switch decl.Type {
			case model.TypeName:
				// covered by the name clauses above
			case model.TypeCountry:
				should = append(should, map[string]any{"term": map[string]any{
					"countries": analyzer.NormalizeCountry(value),
				}})
			case model.TypeDate:
				should = append(should, map[string]any{"term": map[string]any{"dates": value}})
			case model.TypeIdentifier:
				should = append(should, map[string]any{"term": map[string]any{"identifiers": value}})
			case model.TypePhone:
				should = append(should, map[string]any{"term": map[string]any{"phones": value}})
			case model.TypeEmail:
				should = append(should, map[string]any{"term": map[string]any{"emails": value}})
			case model.TypeTopic:
				should = append(should, map[string]any{"term": map[string]any{"topics": value}})
			case model.TypeGender:
				should = append(should, map[string]any{"term": map[string]any{"genders": value}})
			case model.TypeAddress:
				should = append(should, map[string]any{"match": map[string]any{
					"addresses": map[string]any{"query": value},
				}})
			default:
				should = append(should, map[string]any{"match_phrase": map[string]any{
					"text": map[string]any{"query": value},
				}})
			}
		}
	}
	if len(should) == 0 {
		return nil, fmt.Errorf("%w: example entity has no matchable properties", index.ErrInvalid)
	}
	return boolQuery(should, filter, mustNot), nil
}

// SuggestQuery builds the name autocomplete query.
func SuggestQuery(prefix string, f Filters) (map[string]any, error) {
	filter, mustNot, err := f.clauses()
	if err != nil {
		return nil, err
	}
	should := []any{map[string]any{"match_phrase_prefix": map[string]any{
		"names": map[string]any{"query": prefix, "slop": 2},
	}}}
	return boolQuery(should, filter, mustNot), nil
}

// ParseSorts turns "field:asc" specifiers into a backend sort list, always
// ending on score so unsorted ties stay relevance-ordered. Missing values
// sort last.
func ParseSorts(raw []string) ([]any, error) {
	var out []any
	for _, spec := range raw {
		field, order := spec, "asc"
		if i := strings.LastIndex(spec, ":"); i >= 0 {
			field, order = spec[:i], spec[i+1:]
		}
		if field == "" {
			return nil, fmt.Errorf("%w: empty sort field", index.ErrInvalid)
		}
		if order != "asc" && order != "desc" {
			return nil, fmt.Errorf("%w: sort order must be asc or desc, got %q", index.ErrInvalid, order)
		}
		out = append(out, map[string]any{field: map[string]any{
			"order":         order,
			"missing":       "_last",
			"unmapped_type": "keyword",
		}})
	}
	out = append(out, "_score")
	return out, nil
}

// facetFields maps facet names the API accepts to document fields.
var facetFields = map[string]string{
	"datasets":  "datasets",
	"schema":    "schema",
	"countries": "countries",
	"topics":    "topics",
	"genders":   "genders",
}

// FacetAggs builds terms aggregations for the requested facet names.
func FacetAggs(names []string) (map[string]any, error) {
	out := make(map[string]any, len(names))
	for _, name := range names {
		field, ok := facetFields[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown facet %q", index.ErrInvalid, name)
		}
		out[name] = map[string]any{"terms": map[string]any{"field": field, "size": 1000}}
	}
	return out, nil
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
