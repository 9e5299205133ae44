package model

import (
	"encoding/json"
	"testing"
)

func TestFromJSON(t *testing.T) {
	data := []byte(`{
		"id": "Q7747",
		"caption": "Vladimir Putin",
		"schema": "Person",
		"properties": {
			"name": ["Vladimir Putin", "Владимир Путин"],
			"birthDate": ["1952-10-07"],
			"country": ["ru"],
			"bogus": ["dropped"]
		},
		"datasets": ["test_peps"],
		"referents": ["ofac-123"],
		"target": true
	}`)
	entity, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if entity.Schema != "Person" {
		t.Errorf("schema = %q", entity.Schema)
	}
	if got := entity.Values("name"); len(got) != 2 {
		t.Errorf("names = %v", got)
	}
	if _, ok := entity.Properties["bogus"]; ok {
		t.Error("unknown property should be dropped")
	}
	if !entity.HasID("ofac-123") {
		t.Error("referent id should resolve via HasID")
	}
	if !entity.HasID("Q7747") {
		t.Error("canonical id should resolve via HasID")
	}
	if entity.HasID("other") {
		t.Error("unrelated id should not resolve")
	}
}

func TestFromJSONRejectsUnknownSchema(t *testing.T) {
	_, err := FromJSON([]byte(`{"id": "x", "schema": "Wizard", "properties": {}}`))
	if err == nil {
		t.Fatal("expected error for unknown schema")
	}
}

func TestFromJSONRejectsMissingID(t *testing.T) {
	_, err := FromJSON([]byte(`{"schema": "Person", "properties": {}}`))
	if err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestValueUnion(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`"plain-id"`), &v); err != nil {
		t.Fatalf("string value: %v", err)
	}
	if v.Str != "plain-id" || v.Entity != nil {
		t.Errorf("string value parsed as %+v", v)
	}

	nested := []byte(`{"id": "addr-1", "schema": "Address", "properties": {"full": ["1 Main St"]}}`)
	if err := json.Unmarshal(nested, &v); err != nil {
		t.Fatalf("nested value: %v", err)
	}
	if v.Entity == nil || v.Entity.ID != "addr-1" {
		t.Errorf("nested value parsed as %+v", v)
	}

	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal nested: %v", err)
	}
	var back Entity
	if err := json.Unmarshal(out, &back); err != nil || back.ID != "addr-1" {
		t.Errorf("nested value round trip = %s, err %v", out, err)
	}
}

func TestNamesAndDisplayName(t *testing.T) {
	entity := &Entity{
		ID:     "e1",
		Schema: "Company",
		Properties: map[string][]Value{
			"name":  {{Str: "Acme Corp"}},
			"alias": {{Str: "Acme"}},
		},
	}
	names := entity.Names()
	if len(names) != 2 || names[0] != "Acme Corp" {
		t.Errorf("names = %v", names)
	}
	if entity.DisplayName() != "Acme Corp" {
		t.Errorf("display name = %q", entity.DisplayName())
	}
	entity.Caption = "ACME Corporation"
	if entity.DisplayName() != "ACME Corporation" {
		t.Errorf("caption should win, got %q", entity.DisplayName())
	}
}

func TestTypedValues(t *testing.T) {
	entity := &Entity{
		ID:     "e1",
		Schema: "Person",
		Properties: map[string][]Value{
			"country":     {{Str: "ru"}},
			"nationality": {{Str: "de"}},
			"name":        {{Str: "Someone"}},
		},
	}
	countries := entity.TypedValues(TypeCountry)
	if len(countries) != 2 || countries[0] != "de" || countries[1] != "ru" {
		t.Errorf("countries = %v", countries)
	}
}
