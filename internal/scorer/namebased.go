package scorer

import "github.com/watchwell/screener/internal/model"

func init() {
	register(nameBased{})
	register(nameQualified{})
}

// nameBased scores on names alone: string similarity of the best name pair,
// phonetic overlap, and shared name symbols.
type nameBased struct{}

func (nameBased) Name() string { return "name-based" }

func (nameBased) Explain() Explain {
	return Explain{
		Name:        "name-based",
		Description: "Compares entity names only, using string similarity, phonetic overlap and shared name symbols.",
		Features: []FeatureDoc{
			{Name: "name_similarity", Description: "Best Jaro-Winkler similarity across all name pairs.", Coefficient: 0.75},
			{Name: "name_phonetic", Description: "Overlap of metaphone codes across name tokens.", Coefficient: 0.15},
			{Name: "name_symbols", Description: "Shared legal-form, synonym or known-name symbols.", Coefficient: 0.10},
		},
	}
}

func (a nameBased) Compare(query, candidate *model.Entity, cfg Config) Result {
	features := map[string]float64{}

	sim := bestNameSimilarity(query, candidate) * cfg.weight("name_similarity", 0.75)
	features["name_similarity"] = sim

	phon := phoneticOverlap(query, candidate) * cfg.weight("name_phonetic", 0.15)
	features["name_phonetic"] = phon

	syms := 0.0
	if symbolOverlap(query, candidate) {
		syms = cfg.weight("name_symbols", 0.10)
	}
	features["name_symbols"] = syms

	return Result{Score: clamp(sim + phon + syms), Features: features}
}

// nameQualified starts from the name-based score and qualifies it with the
// typed properties screening analysts weigh: dates of birth, countries,
// gender and registration identifiers.
type nameQualified struct{}

func (nameQualified) Name() string { return "name-qualified" }

func (nameQualified) Explain() Explain {
	return Explain{
		Name:        "name-qualified",
		Description: "Name comparison qualified by dates, countries, gender and identifiers.",
		Features: []FeatureDoc{
			{Name: "name_similarity", Description: "Best Jaro-Winkler similarity across all name pairs.", Coefficient: 0.75},
			{Name: "name_phonetic", Description: "Overlap of metaphone codes across name tokens.", Coefficient: 0.15},
			{Name: "name_symbols", Description: "Shared legal-form, synonym or known-name symbols.", Coefficient: 0.10},
			{Name: "date_mismatch", Description: "Penalty when no date value shares a year.", Coefficient: -0.15},
			{Name: "country_mismatch", Description: "Penalty when country sets are disjoint.", Coefficient: -0.10},
			{Name: "gender_mismatch", Description: "Penalty when genders differ.", Coefficient: -0.10},
			{Name: "identifier_match", Description: "Boost for an exact registration identifier match.", Coefficient: 0.30},
		},
	}
}

func (a nameQualified) Compare(query, candidate *model.Entity, cfg Config) Result {
	base := nameBased{}.Compare(query, candidate, cfg)
	features := base.Features
	score := base.Score

	if qYears := birthYears(query); len(qYears) > 0 {
		if disjoint(qYears, birthYears(candidate)) {
			penalty := cfg.weight("date_mismatch", -0.15)
			features["date_mismatch"] = penalty
			score += penalty
		}
	}

	if disjoint(countryValues(query), countryValues(candidate)) {
		penalty := cfg.weight("country_mismatch", -0.10)
		features["country_mismatch"] = penalty
		score += penalty
	}

	qGender := query.First("gender")
	cGender := candidate.First("gender")
	if qGender != "" && cGender != "" && qGender != cGender {
		penalty := cfg.weight("gender_mismatch", -0.10)
		features["gender_mismatch"] = penalty
		score += penalty
	}

	if identifierMatch(query, candidate) {
		boost := cfg.weight("identifier_match", 0.30)
		features["identifier_match"] = boost
		score += boost
	}

	return Result{Score: clamp(score), Features: features}
}
