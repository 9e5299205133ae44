// Package analyzer turns entity names into the normalized forms, phonetic
// codes and symbol tags that candidate generation and scoring rely on.
package analyzer

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/watchwell/screener/internal/model"
)

// Part tags classify name tokens.
const (
	TagLegal   = "LEGAL"
	TagPerson  = "PERSON"
	TagAny     = "ANY"
	TagInitial = "INITIAL"
)

// Part is a single token of a name with its tag and optional phonetic code.
type Part struct {
	Text     string
	Tag      string
	Phonetic string
}

// Name is the analyzed form of one raw name string.
type Name struct {
	Raw     string
	Form    string
	Parts   []Part
	Symbols []Symbol
}

// honorifics are stripped from the head of person names before normalizing.
var honorifics = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "miss": true, "dr": true,
	"sir": true, "dame": true, "lord": true, "lady": true, "prof": true,
	"gen": true, "general": true, "col": true, "colonel": true,
	"mme": true, "herr": true, "frau": true, "don": true,
}

// Normalize lowercases, applies Unicode NFC and squashes whitespace.
func Normalize(raw string) string {
	s := norm.NFC.String(raw)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// Analyze produces the analyzed Name for a raw value on an entity of the
// given schema. Person schemas get honorifics stripped; organization schemas
// get legal-form detection.
func Analyze(raw string, schema *model.Schema) Name {
	form := Normalize(raw)
	tokens := tokenize(form)

	isPerson := schema != nil && schema.IsA("Person")
	isOrg := schema != nil && (schema.IsA("Organization") || schema.IsA("Company"))

	if isPerson {
		for len(tokens) > 1 && honorifics[strings.TrimRight(tokens[0], ".")] {
			tokens = tokens[1:]
		}
		form = strings.Join(tokens, " ")
	}

	name := Name{Raw: raw, Form: form}
	for _, tok := range tokens {
		part := Part{Text: tok, Tag: TagAny}
		switch {
		case isSingleLetter(tok):
			part.Tag = TagInitial
		case isOrg && orgClassOf(tok) != "":
			part.Tag = TagLegal
		case isPerson:
			part.Tag = TagPerson
		}
		if part.Tag != TagInitial && !isPunct(tok) {
			part.Phonetic = PhoneticCode(tok)
		}
		name.Parts = append(name.Parts, part)
	}
	name.Symbols = symbolize(tokens, isOrg)
	return name
}

// AnalyzeEntity analyzes every name of the entity.
func AnalyzeEntity(e *model.Entity) []Name {
	schema := e.GetSchema()
	var out []Name
	for _, raw := range e.Names() {
		out = append(out, Analyze(raw, schema))
	}
	return out
}

// ComparableForm substitutes detected legal-form tokens with their canonical
// class placeholder, so "Gazprom Bank OOO" and "Gazprom Bank LLC" compare
// equal on the organizational part.
func ComparableForm(n Name) string {
	parts := make([]string, 0, len(n.Parts))
	for _, p := range n.Parts {
		if p.Tag == TagLegal {
			if cls := orgClassOf(p.Text); cls != "" {
				parts = append(parts, "<"+cls+">")
				continue
			}
		}
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, " ")
}

func tokenize(form string) []string {
	return strings.FieldsFunc(form, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == '/' || r == '(' || r == ')'
	})
}

func isSingleLetter(tok string) bool {
	runes := []rune(strings.TrimRight(tok, "."))
	return len(runes) == 1 && unicode.IsLetter(runes[0])
}

func isPunct(tok string) bool {
	for _, r := range tok {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
