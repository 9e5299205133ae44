package search

import (
	"encoding/json"
	"fmt"

	"github.com/watchwell/screener/internal/index"
	"github.com/watchwell/screener/internal/model"
)

// hitDoc is the subset of an index document the serving path reads back:
// the verbatim entity, or the canonical pointer of a referent stub.
type hitDoc struct {
	Entity      *model.Entity `json:"entity"`
	CanonicalID string        `json:"canonical_id"`
}

// ParseHit decodes one hit into an entity. Referent stubs return an empty
// entity and the canonical id instead.
func ParseHit(hit index.Hit) (entity *model.Entity, canonical string, err error) {
	var doc hitDoc
	if err := json.Unmarshal(hit.Source, &doc); err != nil {
		return nil, "", fmt.Errorf("decoding document %s: %w", hit.ID, err)
	}
	if doc.CanonicalID != "" {
		return nil, doc.CanonicalID, nil
	}
	if doc.Entity == nil {
		return nil, "", fmt.Errorf("document %s has no entity body", hit.ID)
	}
	return doc.Entity, "", nil
}

// ParseEntities decodes all non-stub hits in order, keyed alongside their
// backend scores.
func ParseEntities(res *index.Result) ([]*model.Entity, []float64, error) {
	entities := make([]*model.Entity, 0, len(res.Hits))
	scores := make([]float64, 0, len(res.Hits))
	for _, hit := range res.Hits {
		entity, _, err := ParseHit(hit)
		if err != nil {
			return nil, nil, err
		}
		if entity == nil {
			continue
		}
		entities = append(entities, entity)
		scores = append(scores, hit.Score)
	}
	return entities, scores, nil
}

// FacetValue is one bucket of a facet aggregation.
type FacetValue struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Facet is the bucket list for one faceted field.
type Facet struct {
	Values []FacetValue `json:"values"`
}

// ParseFacets decodes terms aggregations into facet bucket lists.
func ParseFacets(aggs map[string]json.RawMessage) (map[string]Facet, error) {
	if len(aggs) == 0 {
		return nil, nil
	}
	out := make(map[string]Facet, len(aggs))
	for name, raw := range aggs {
		var parsed struct {
			Buckets []struct {
				Key      any   `json:"key"`
				DocCount int64 `json:"doc_count"`
			} `json:"buckets"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("decoding facet %s: %w", name, err)
		}
		facet := Facet{Values: make([]FacetValue, 0, len(parsed.Buckets))}
		for _, b := range parsed.Buckets {
			facet.Values = append(facet.Values, FacetValue{
				Name:  fmt.Sprintf("%v", b.Key),
				Count: b.DocCount,
			})
		}
		out[name] = facet
	}
	return out, nil
}
