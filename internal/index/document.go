package index

import (
	"github.com/watchwell/screener/internal/analyzer"
	"github.com/watchwell/screener/internal/model"
)

// Document is the indexed form of an entity: the verbatim body plus the
// synthesized searchable sidecar fields.
type Document struct {
	Entity     *model.Entity `json:"entity"`
	Schema     string        `json:"schema"`
	Caption    string        `json:"caption,omitempty"`
	Datasets   []string      `json:"datasets,omitempty"`
	Referents  []string      `json:"referents,omitempty"`
	Target     bool          `json:"target"`
	FirstSeen  string        `json:"first_seen,omitempty"`
	LastSeen   string        `json:"last_seen,omitempty"`
	LastChange string        `json:"last_change,omitempty"`

	Names        []string `json:"names,omitempty"`
	NameParts    []string `json:"name_parts,omitempty"`
	NamePhonetic []string `json:"name_phonetic,omitempty"`
	NameSymbols  []string `json:"name_symbols,omitempty"`

	Countries   []string `json:"countries,omitempty"`
	Dates       []string `json:"dates,omitempty"`
	Identifiers []string `json:"identifiers,omitempty"`
	Phones      []string `json:"phones,omitempty"`
	Emails      []string `json:"emails,omitempty"`
	Addresses   []string `json:"addresses,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	Genders     []string `json:"genders,omitempty"`
	Entities    []string `json:"entities,omitempty"`

	Text []string `json:"text,omitempty"`
}

// Stub is the redirect document indexed under every referent id, so lookups
// by a merged id resolve to the canonical entity.
type Stub struct {
	CanonicalID string `json:"canonical_id"`
}

// BuildDocument synthesizes the index document for an entity.
func BuildDocument(e *model.Entity) *Document {
	doc := &Document{
		Entity:     e,
		Schema:     e.Schema,
		Caption:    e.DisplayName(),
		Datasets:   e.Datasets,
		Referents:  e.Referents,
		Target:     e.Target,
		FirstSeen:  e.FirstSeen,
		LastSeen:   e.LastSeen,
		LastChange: e.LastChange,
	}

	seenText := map[string]bool{}
	addText := func(v string) {
		if v != "" && !seenText[v] {
			seenText[v] = true
			doc.Text = append(doc.Text, v)
		}
	}

	for _, name := range analyzer.AnalyzeEntity(e) {
		doc.Names = append(doc.Names, name.Form)
		addText(name.Form)
		for _, part := range name.Parts {
			doc.NameParts = append(doc.NameParts, part.Text)
			if part.Phonetic != "" {
				doc.NamePhonetic = append(doc.NamePhonetic, part.Phonetic)
			}
		}
		for _, sym := range name.Symbols {
			if sym.Indexable() {
				doc.NameSymbols = append(doc.NameSymbols, sym.String())
			}
		}
	}

	schema := e.GetSchema()
	if schema == nil {
		return doc
	}
	for prop := range e.Properties {
		decl, ok := schema.Prop(prop)
		if !ok {
			continue
		}
		for _, value := range e.Values(prop) {
			switch decl.Type {
			case model.TypeCountry:
				doc.Countries = append(doc.Countries, analyzer.NormalizeCountry(value))
			case model.TypeDate:
				doc.Dates = append(doc.Dates, analyzer.ExpandDate(value)...)
			case model.TypeIdentifier:
				doc.Identifiers = append(doc.Identifiers, value)
			case model.TypePhone:
				doc.Phones = append(doc.Phones, value)
			case model.TypeEmail:
				doc.Emails = append(doc.Emails, value)
			case model.TypeAddress:
				doc.Addresses = append(doc.Addresses, value)
			case model.TypeTopic:
				doc.Topics = append(doc.Topics, value)
			case model.TypeGender:
				doc.Genders = append(doc.Genders, value)
			case model.TypeEntity:
				doc.Entities = append(doc.Entities, value)
			}
			if decl.Type != model.TypeEntity {
				addText(value)
			}
		}
	}
	for _, c := range doc.Countries {
		addText(c)
	}
	doc.Countries = uniq(doc.Countries)
	doc.Dates = uniq(doc.Dates)
	doc.NameSymbols = uniq(doc.NameSymbols)
	doc.NamePhonetic = uniq(doc.NamePhonetic)
	return doc
}

func uniq(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
