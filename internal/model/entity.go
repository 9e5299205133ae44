package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Value is one property value: either a plain string (possibly the id of
// another entity) or, on serving paths, a nested entity resolved in place.
type Value struct {
	Str    string
	Entity *Entity
}

// MarshalJSON emits the string form or the nested entity object.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Entity != nil {
		return json.Marshal(v.Entity)
	}
	return json.Marshal(v.Str)
}

// UnmarshalJSON accepts either a JSON string or a nested entity object.
func (v *Value) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &v.Str)
	}
	ent := &Entity{}
	if err := json.Unmarshal(data, ent); err != nil {
		return err
	}
	v.Entity = ent
	return nil
}

// Entity is a typed record with multivalued properties. Properties are kept
// exactly as loaded; searchable sidecar fields are synthesized at index time.
type Entity struct {
	ID         string             `json:"id"`
	Caption    string             `json:"caption,omitempty"`
	Schema     string             `json:"schema"`
	Properties map[string][]Value `json:"properties"`
	Datasets   []string           `json:"datasets,omitempty"`
	Referents  []string           `json:"referents,omitempty"`
	Target     bool               `json:"target"`
	FirstSeen  string             `json:"first_seen,omitempty"`
	LastSeen   string             `json:"last_seen,omitempty"`
	LastChange string             `json:"last_change,omitempty"`
}

// FromJSON parses a single entity object and validates its schema and
// property membership. Unknown properties are dropped, not fatal.
func FromJSON(data []byte) (*Entity, error) {
	ent := &Entity{}
	if err := json.Unmarshal(data, ent); err != nil {
		return nil, fmt.Errorf("parsing entity: %w", err)
	}
	return ent, ent.Validate()
}

// Validate checks schema membership and drops undeclared properties.
func (e *Entity) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entity without id")
	}
	schema := GetSchema(e.Schema)
	if schema == nil {
		return fmt.Errorf("entity %s: unknown schema %q", e.ID, e.Schema)
	}
	for name := range e.Properties {
		if _, ok := schema.Prop(name); !ok {
			delete(e.Properties, name)
		}
	}
	return nil
}

// GetSchema returns the resolved schema of the entity, or nil.
func (e *Entity) GetSchema() *Schema {
	return GetSchema(e.Schema)
}

// Values returns the string forms of a property, skipping nested entities.
func (e *Entity) Values(prop string) []string {
	var out []string
	for _, v := range e.Properties[prop] {
		if v.Entity != nil {
			out = append(out, v.Entity.ID)
			continue
		}
		if v.Str != "" {
			out = append(out, v.Str)
		}
	}
	return out
}

// First returns the first string value of a property, or "".
func (e *Entity) First(prop string) string {
	vals := e.Values(prop)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// nameProps are the property names whose values count as names of the entity.
var nameProps = []string{"name", "alias", "weakAlias", "previousName"}

// Names returns all name-typed values of the entity, in declaration order.
func (e *Entity) Names() []string {
	var out []string
	for _, prop := range nameProps {
		out = append(out, e.Values(prop)...)
	}
	return out
}

// DisplayName picks a caption for the entity: the explicit caption if set,
// else the first name, else the id.
func (e *Entity) DisplayName() string {
	if e.Caption != "" {
		return e.Caption
	}
	if name := e.First("name"); name != "" {
		return name
	}
	return e.ID
}

// TypedValues returns property name/value pairs whose property carries the
// given type, across all properties of the entity's schema.
func (e *Entity) TypedValues(t *PropType) []string {
	schema := e.GetSchema()
	if schema == nil {
		return nil
	}
	var out []string
	for name := range e.Properties {
		prop, ok := schema.Prop(name)
		if !ok || prop.Type != t {
			continue
		}
		out = append(out, e.Values(name)...)
	}
	sort.Strings(out)
	return out
}

// AllIDs returns the canonical id plus every referent id.
func (e *Entity) AllIDs() []string {
	out := make([]string, 0, len(e.Referents)+1)
	out = append(out, e.ID)
	out = append(out, e.Referents...)
	return out
}

// HasID reports whether the given id is the canonical id or a referent.
func (e *Entity) HasID(id string) bool {
	if e.ID == id {
		return true
	}
	for _, r := range e.Referents {
		if r == id {
			return true
		}
	}
	return false
}
