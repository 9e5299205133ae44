package scorer

import (
	"testing"

	"github.com/watchwell/screener/internal/model"
)

func person(name string, props map[string][]string) *model.Entity {
	e := &model.Entity{
		ID:         "e-" + name,
		Schema:     "Person",
		Properties: map[string][]model.Value{},
	}
	if name != "" {
		e.Properties["name"] = []model.Value{{Str: name}}
	}
	for prop, values := range props {
		for _, v := range values {
			e.Properties[prop] = append(e.Properties[prop], model.Value{Str: v})
		}
	}
	return e
}

func company(name string) *model.Entity {
	return &model.Entity{
		ID:     "c-" + name,
		Schema: "Company",
		Properties: map[string][]model.Value{
			"name": {{Str: name}},
		},
	}
}

func TestRegistry(t *testing.T) {
	if _, ok := Get("name-based"); !ok {
		t.Error("name-based not registered")
	}
	if _, ok := Get("name-qualified"); !ok {
		t.Error("name-qualified not registered")
	}
	if _, ok := Get("neural-net"); ok {
		t.Error("unknown algorithm should not resolve")
	}
	names := Names()
	if len(names) != 2 || names[0] != "name-based" {
		t.Errorf("names = %v", names)
	}
}

func TestNameBasedExactMatch(t *testing.T) {
	algo, _ := Get("name-based")
	res := algo.Compare(person("Vladimir Putin", nil), person("Vladimir Putin", nil), Config{})
	if res.Score < 0.9 {
		t.Errorf("identical names score = %f", res.Score)
	}
	if res.Features["name_similarity"] == 0 {
		t.Error("expected name_similarity feature")
	}
}

func TestNameBasedTokenOrder(t *testing.T) {
	algo, _ := Get("name-based")
	res := algo.Compare(person("Putin Vladimir", nil), person("Vladimir Putin", nil), Config{})
	if res.Score < 0.85 {
		t.Errorf("token-reordered names score = %f", res.Score)
	}
}

func TestNameBasedUnrelated(t *testing.T) {
	algo, _ := Get("name-based")
	res := algo.Compare(person("Vladimir Putin", nil), person("Angela Merkel", nil), Config{})
	if res.Score > 0.6 {
		t.Errorf("unrelated names score = %f", res.Score)
	}
}

func TestNameBasedLegalFormEquivalence(t *testing.T) {
	algo, _ := Get("name-based")
	ooo := algo.Compare(company("Gazprom Bank OOO"), company("Gazprom Bank LLC"), Config{})
	if ooo.Score < 0.9 {
		t.Errorf("legal-form variants score = %f", ooo.Score)
	}
}

func TestNameQualifiedDateMismatch(t *testing.T) {
	algo, _ := Get("name-qualified")
	base := algo.Compare(
		person("Vladimir Putin", map[string][]string{"birthDate": {"1952-10-07"}}),
		person("Vladimir Putin", map[string][]string{"birthDate": {"1952-10-07"}}),
		Config{})
	mismatched := algo.Compare(
		person("Vladimir Putin", map[string][]string{"birthDate": {"1952-10-07"}}),
		person("Vladimir Putin", map[string][]string{"birthDate": {"1981-03-02"}}),
		Config{})
	if mismatched.Score >= base.Score {
		t.Errorf("date mismatch should lower score: %f >= %f", mismatched.Score, base.Score)
	}
	if _, ok := mismatched.Features["date_mismatch"]; !ok {
		t.Error("expected date_mismatch feature")
	}
}

func TestNameQualifiedCountryMismatch(t *testing.T) {
	algo, _ := Get("name-qualified")
	res := algo.Compare(
		person("Vladimir Putin", map[string][]string{"country": {"ru"}}),
		person("Vladimir Putin", map[string][]string{"country": {"de"}}),
		Config{})
	if _, ok := res.Features["country_mismatch"]; !ok {
		t.Error("expected country_mismatch feature")
	}
}

func TestNameQualifiedMissingSideNoPenalty(t *testing.T) {
	algo, _ := Get("name-qualified")
	res := algo.Compare(
		person("Vladimir Putin", map[string][]string{"country": {"ru"}}),
		person("Vladimir Putin", nil),
		Config{})
	if _, ok := res.Features["country_mismatch"]; ok {
		t.Error("one-sided country should not penalize")
	}
}

func TestNameQualifiedIdentifierBoost(t *testing.T) {
	algo, _ := Get("name-qualified")
	with := algo.Compare(
		person("V Putin", map[string][]string{"passportNumber": {"AB 123-456"}}),
		person("Vladimir Putin", map[string][]string{"passportNumber": {"ab123456"}}),
		Config{})
	without := algo.Compare(
		person("V Putin", nil),
		person("Vladimir Putin", nil),
		Config{})
	if with.Score <= without.Score {
		t.Errorf("identifier match should boost: %f <= %f", with.Score, without.Score)
	}
	if _, ok := with.Features["identifier_match"]; !ok {
		t.Error("expected identifier_match feature")
	}
}

func TestScoreClamped(t *testing.T) {
	algo, _ := Get("name-qualified")
	res := algo.Compare(
		person("Vladimir Putin", map[string][]string{"passportNumber": {"X1"}}),
		person("Vladimir Putin", map[string][]string{"passportNumber": {"X1"}}),
		Config{})
	if res.Score > 1 || res.Score < 0 {
		t.Errorf("score out of range: %f", res.Score)
	}
}

func TestConfigWeightOverride(t *testing.T) {
	algo, _ := Get("name-based")
	cfg := Config{Weights: map[string]float64{"name_similarity": 0.2}}
	res := algo.Compare(person("Vladimir Putin", nil), person("Vladimir Putin", nil), cfg)
	if res.Features["name_similarity"] > 0.25 {
		t.Errorf("weight override ignored: %f", res.Features["name_similarity"])
	}
}
