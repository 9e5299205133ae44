package index

import (
	"testing"

	"github.com/watchwell/screener/internal/model"
)

func testPerson() *model.Entity {
	return &model.Entity{
		ID:     "Q7747",
		Schema: "Person",
		Properties: map[string][]model.Value{
			"name":      {{Str: "Vladimir Putin"}},
			"alias":     {{Str: "Владимир Путин"}},
			"birthDate": {{Str: "1952-10-07"}},
			"country":   {{Str: "Russia"}},
			"gender":    {{Str: "male"}},
			"topics":    {{Str: "role.pep"}},
			"notes":     {{Str: "President of Russia"}},
		},
		Datasets:   []string{"test_peps"},
		Referents:  []string{"ofac-123"},
		Target:     true,
		LastChange: "2024-03-01T00:00:00",
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func TestBuildDocument(t *testing.T) {
	doc := BuildDocument(testPerson())

	if doc.Entity == nil || doc.Entity.ID != "Q7747" {
		t.Fatal("verbatim entity missing from document")
	}
	if doc.Schema != "Person" || !doc.Target {
		t.Errorf("schema/target not copied: %+v", doc)
	}
	if !contains(doc.Names, "vladimir putin") {
		t.Errorf("names = %v", doc.Names)
	}
	if !contains(doc.Countries, "ru") {
		t.Errorf("countries should be normalized, got %v", doc.Countries)
	}
	if !contains(doc.Dates, "1952") || !contains(doc.Dates, "1952-10-07") {
		t.Errorf("dates should be prefix-expanded, got %v", doc.Dates)
	}
	if len(doc.NamePhonetic) == 0 {
		t.Error("expected phonetic codes")
	}
	if !contains(doc.Genders, "male") {
		t.Errorf("genders = %v", doc.Genders)
	}
	if !contains(doc.Text, "President of Russia") {
		t.Errorf("text catch-all = %v", doc.Text)
	}
}

func TestBuildDocumentTransliteratedPhonetics(t *testing.T) {
	doc := BuildDocument(testPerson())
	// Latin and Cyrillic spellings of the same name share codes, so the
	// deduplicated set is smaller than the token count.
	codes := map[string]bool{}
	for _, c := range doc.NamePhonetic {
		codes[c] = true
	}
	if len(codes) != len(doc.NamePhonetic) {
		t.Errorf("phonetic codes not deduplicated: %v", doc.NamePhonetic)
	}
	if len(codes) > 2 {
		t.Errorf("expected shared codes across scripts, got %v", doc.NamePhonetic)
	}
}

func TestBuildDocumentEntityRefs(t *testing.T) {
	sanction := &model.Entity{
		ID:     "s1",
		Schema: "Sanction",
		Properties: map[string][]model.Value{
			"entity":    {{Str: "Q7747"}},
			"authority": {{Str: "OFAC"}},
		},
	}
	doc := BuildDocument(sanction)
	if !contains(doc.Entities, "Q7747") {
		t.Errorf("entity refs = %v", doc.Entities)
	}
	if contains(doc.Text, "Q7747") {
		t.Error("entity ids should not leak into the text catch-all")
	}
}
