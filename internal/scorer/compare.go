package scorer

import (
	"sort"
	"strings"

	"github.com/xrash/smetrics"

	"github.com/watchwell/screener/internal/analyzer"
	"github.com/watchwell/screener/internal/model"
)

// bestNameSimilarity returns the best Jaro-Winkler similarity across all
// name pairs of the two entities, comparing legal-form-substituted forms
// both as-is and token-sorted so "Putin Vladimir" still lines up.
func bestNameSimilarity(query, candidate *model.Entity) float64 {
	qNames := analyzer.AnalyzeEntity(query)
	cNames := analyzer.AnalyzeEntity(candidate)
	best := 0.0
	for _, qn := range qNames {
		qForm := analyzer.ComparableForm(qn)
		qSorted := tokenSort(qForm)
		for _, cn := range cNames {
			cForm := analyzer.ComparableForm(cn)
			if qForm == "" || cForm == "" {
				continue
			}
			sim := smetrics.JaroWinkler(qForm, cForm, 0.7, 4)
			if sorted := smetrics.JaroWinkler(qSorted, tokenSort(cForm), 0.7, 4); sorted > sim {
				sim = sorted
			}
			if sim > best {
				best = sim
			}
		}
	}
	return best
}

func tokenSort(form string) string {
	tokens := strings.Fields(form)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// phoneticOverlap returns the Jaccard overlap of the phonetic code sets of
// the two entities' names.
func phoneticOverlap(query, candidate *model.Entity) float64 {
	qCodes := phoneticSet(query)
	cCodes := phoneticSet(candidate)
	if len(qCodes) == 0 || len(cCodes) == 0 {
		return 0
	}
	shared := 0
	for code := range qCodes {
		if cCodes[code] {
			shared++
		}
	}
	union := len(qCodes) + len(cCodes) - shared
	return float64(shared) / float64(union)
}

func phoneticSet(e *model.Entity) map[string]bool {
	out := map[string]bool{}
	for _, name := range analyzer.AnalyzeEntity(e) {
		for _, part := range name.Parts {
			if part.Phonetic != "" {
				out[part.Phonetic] = true
			}
		}
	}
	return out
}

// symbolOverlap reports whether the two entities share any indexed name
// symbol (org class, synonym token or known-name id).
func symbolOverlap(query, candidate *model.Entity) bool {
	qSyms := symbolSet(query)
	for sym := range symbolSet(candidate) {
		if qSyms[sym] {
			return true
		}
	}
	return false
}

func symbolSet(e *model.Entity) map[string]bool {
	out := map[string]bool{}
	for _, name := range analyzer.AnalyzeEntity(e) {
		for _, sym := range name.Symbols {
			if sym.Indexable() {
				out[sym.String()] = true
			}
		}
	}
	return out
}

// countryValues returns the normalized country codes of an entity.
func countryValues(e *model.Entity) map[string]bool {
	out := map[string]bool{}
	for _, v := range e.TypedValues(model.TypeCountry) {
		out[analyzer.NormalizeCountry(v)] = true
	}
	return out
}

// disjoint reports whether two non-empty sets share no element.
func disjoint(a, b map[string]bool) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for k := range a {
		if b[k] {
			return false
		}
	}
	return true
}

// birthYears extracts the year prefixes of date-typed values.
func birthYears(e *model.Entity) map[string]bool {
	out := map[string]bool{}
	for _, v := range e.TypedValues(model.TypeDate) {
		if len(v) >= 4 {
			out[v[:4]] = true
		}
	}
	return out
}

// identifierMatch reports whether any identifier value matches exactly
// (case-insensitive, separators stripped).
func identifierMatch(query, candidate *model.Entity) bool {
	qIDs := identifierSet(query)
	if len(qIDs) == 0 {
		return false
	}
	for id := range identifierSet(candidate) {
		if qIDs[id] {
			return true
		}
	}
	return false
}

func identifierSet(e *model.Entity) map[string]bool {
	out := map[string]bool{}
	for _, v := range e.TypedValues(model.TypeIdentifier) {
		cleaned := strings.Map(func(r rune) rune {
			switch r {
			case ' ', '-', '.', '/':
				return -1
			}
			return r
		}, strings.ToLower(v))
		if cleaned != "" {
			out[cleaned] = true
		}
	}
	return out
}
