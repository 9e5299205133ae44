package model

// PropType classifies property values and assigns them to an index group.
// Grouped values are copied into a shared searchable field (countries, dates,
// identifiers...) at index time.
type PropType struct {
	Name      string
	Group     string
	Matchable bool
}

var (
	TypeString     = &PropType{Name: "string"}
	TypeText       = &PropType{Name: "text"}
	TypeName       = &PropType{Name: "name", Matchable: true}
	TypeCountry    = &PropType{Name: "country", Group: "countries", Matchable: true}
	TypeDate       = &PropType{Name: "date", Group: "dates", Matchable: true}
	TypeIdentifier = &PropType{Name: "identifier", Group: "identifiers", Matchable: true}
	TypePhone      = &PropType{Name: "phone", Group: "phones", Matchable: true}
	TypeEmail      = &PropType{Name: "email", Group: "emails", Matchable: true}
	TypeURL        = &PropType{Name: "url"}
	TypeAddress    = &PropType{Name: "address", Group: "addresses", Matchable: true}
	TypeTopic      = &PropType{Name: "topic", Group: "topics"}
	TypeGender     = &PropType{Name: "gender", Group: "genders"}
	TypeEntity     = &PropType{Name: "entity", Group: "entities"}
)

// Property describes one named property of a schema.
type Property struct {
	Name string
	Type *PropType
	// Range restricts entity-typed properties to a schema subtree.
	Range string
	// Reverse names the property under which referencing entities appear on
	// the pointed-to entity during nested fetch and adjacency.
	Reverse string
}

// Schema is a node in the entity type lattice. Edge schemas (Sanction,
// Payment, Ownership...) connect other entities and are expanded through
// during nested fetch instead of being terminal nodes themselves.
type Schema struct {
	Name       string
	Extends    []string
	Matchable  bool
	Edge       bool
	Properties map[string]Property

	parents map[string]bool
}

func props(list ...Property) map[string]Property {
	out := make(map[string]Property, len(list))
	for _, p := range list {
		out[p.Name] = p
	}
	return out
}

func merged(base map[string]Property, list ...Property) map[string]Property {
	out := make(map[string]Property, len(base)+len(list))
	for k, v := range base {
		out[k] = v
	}
	for _, p := range list {
		out[p.Name] = p
	}
	return out
}

var thingProps = props(
	Property{Name: "name", Type: TypeName},
	Property{Name: "alias", Type: TypeName},
	Property{Name: "weakAlias", Type: TypeName},
	Property{Name: "previousName", Type: TypeName},
	Property{Name: "country", Type: TypeCountry},
	Property{Name: "topics", Type: TypeTopic},
	Property{Name: "address", Type: TypeAddress},
	Property{Name: "addressEntity", Type: TypeEntity, Range: "Address", Reverse: "residents"},
	Property{Name: "notes", Type: TypeText},
	Property{Name: "sourceUrl", Type: TypeURL},
)

var legalEntityProps = merged(thingProps,
	Property{Name: "email", Type: TypeEmail},
	Property{Name: "phone", Type: TypePhone},
	Property{Name: "website", Type: TypeURL},
	Property{Name: "idNumber", Type: TypeIdentifier},
	Property{Name: "taxNumber", Type: TypeIdentifier},
	Property{Name: "registrationNumber", Type: TypeIdentifier},
	Property{Name: "jurisdiction", Type: TypeCountry},
	Property{Name: "incorporationDate", Type: TypeDate},
	Property{Name: "dissolutionDate", Type: TypeDate},
	Property{Name: "legalForm", Type: TypeString},
)

// Schemata is the registry of all known schemata, keyed by name.
var Schemata = buildSchemata(
	&Schema{Name: "Thing", Properties: thingProps},
	&Schema{Name: "LegalEntity", Extends: []string{"Thing"}, Matchable: true,
		Properties: legalEntityProps},
	&Schema{Name: "Person", Extends: []string{"LegalEntity"}, Matchable: true,
		Properties: merged(legalEntityProps,
			Property{Name: "birthDate", Type: TypeDate},
			Property{Name: "deathDate", Type: TypeDate},
			Property{Name: "birthPlace", Type: TypeString},
			Property{Name: "nationality", Type: TypeCountry},
			Property{Name: "citizenship", Type: TypeCountry},
			Property{Name: "gender", Type: TypeGender},
			Property{Name: "title", Type: TypeString},
			Property{Name: "position", Type: TypeString},
			Property{Name: "passportNumber", Type: TypeIdentifier},
		)},
	&Schema{Name: "Organization", Extends: []string{"LegalEntity"}, Matchable: true,
		Properties: legalEntityProps},
	&Schema{Name: "Company", Extends: []string{"Organization"}, Matchable: true,
		Properties: merged(legalEntityProps,
			Property{Name: "ticker", Type: TypeIdentifier},
			Property{Name: "ogrnCode", Type: TypeIdentifier},
			Property{Name: "innCode", Type: TypeIdentifier},
		)},
	&Schema{Name: "PublicBody", Extends: []string{"Organization"}, Matchable: true,
		Properties: legalEntityProps},
	&Schema{Name: "Vessel", Extends: []string{"Thing"}, Matchable: true,
		Properties: merged(thingProps,
			Property{Name: "imoNumber", Type: TypeIdentifier},
			Property{Name: "mmsi", Type: TypeIdentifier},
			Property{Name: "callSign", Type: TypeIdentifier},
			Property{Name: "flag", Type: TypeCountry},
			Property{Name: "type", Type: TypeString},
		)},
	&Schema{Name: "Airplane", Extends: []string{"Thing"}, Matchable: true,
		Properties: merged(thingProps,
			Property{Name: "registrationNumber", Type: TypeIdentifier},
			Property{Name: "serialNumber", Type: TypeIdentifier},
		)},
	&Schema{Name: "Address", Extends: []string{"Thing"}, Matchable: true,
		Properties: merged(thingProps,
			Property{Name: "full", Type: TypeAddress},
			Property{Name: "street", Type: TypeString},
			Property{Name: "city", Type: TypeString},
			Property{Name: "postalCode", Type: TypeIdentifier},
		)},
	&Schema{Name: "Security", Extends: []string{"Thing"}, Matchable: true,
		Properties: merged(thingProps,
			Property{Name: "isin", Type: TypeIdentifier},
			Property{Name: "issuer", Type: TypeEntity, Range: "LegalEntity", Reverse: "securities"},
		)},
	&Schema{Name: "CryptoWallet", Extends: []string{"Thing"}, Matchable: true,
		Properties: merged(thingProps,
			Property{Name: "publicKey", Type: TypeIdentifier},
			Property{Name: "currency", Type: TypeString},
			Property{Name: "holder", Type: TypeEntity, Range: "LegalEntity", Reverse: "cryptoWallets"},
		)},

	&Schema{Name: "Sanction", Extends: []string{"Thing"}, Edge: true,
		Properties: merged(thingProps,
			Property{Name: "entity", Type: TypeEntity, Range: "Thing", Reverse: "sanctions"},
			Property{Name: "authority", Type: TypeString},
			Property{Name: "program", Type: TypeString},
			Property{Name: "reason", Type: TypeText},
			Property{Name: "startDate", Type: TypeDate},
			Property{Name: "endDate", Type: TypeDate},
		)},
	&Schema{Name: "Payment", Extends: []string{"Thing"}, Edge: true,
		Properties: merged(thingProps,
			Property{Name: "payer", Type: TypeEntity, Range: "LegalEntity", Reverse: "payments"},
			Property{Name: "beneficiary", Type: TypeEntity, Range: "LegalEntity", Reverse: "paymentsReceived"},
			Property{Name: "amount", Type: TypeString},
			Property{Name: "currency", Type: TypeString},
			Property{Name: "date", Type: TypeDate},
		)},
	&Schema{Name: "Ownership", Extends: []string{"Thing"}, Edge: true,
		Properties: merged(thingProps,
			Property{Name: "owner", Type: TypeEntity, Range: "LegalEntity", Reverse: "ownerships"},
			Property{Name: "asset", Type: TypeEntity, Range: "Thing", Reverse: "owners"},
			Property{Name: "percentage", Type: TypeString},
			Property{Name: "startDate", Type: TypeDate},
			Property{Name: "endDate", Type: TypeDate},
		)},
	&Schema{Name: "Directorship", Extends: []string{"Thing"}, Edge: true,
		Properties: merged(thingProps,
			Property{Name: "director", Type: TypeEntity, Range: "LegalEntity", Reverse: "directorships"},
			Property{Name: "organization", Type: TypeEntity, Range: "Organization", Reverse: "directors"},
			Property{Name: "role", Type: TypeString},
			Property{Name: "startDate", Type: TypeDate},
			Property{Name: "endDate", Type: TypeDate},
		)},
	&Schema{Name: "Membership", Extends: []string{"Thing"}, Edge: true,
		Properties: merged(thingProps,
			Property{Name: "member", Type: TypeEntity, Range: "LegalEntity", Reverse: "memberships"},
			Property{Name: "organization", Type: TypeEntity, Range: "Organization", Reverse: "members"},
			Property{Name: "role", Type: TypeString},
		)},
	&Schema{Name: "Family", Extends: []string{"Thing"}, Edge: true,
		Properties: merged(thingProps,
			Property{Name: "person", Type: TypeEntity, Range: "Person", Reverse: "family"},
			Property{Name: "relative", Type: TypeEntity, Range: "Person", Reverse: "familyOf"},
			Property{Name: "relationship", Type: TypeString},
		)},
	&Schema{Name: "Associate", Extends: []string{"Thing"}, Edge: true,
		Properties: merged(thingProps,
			Property{Name: "person", Type: TypeEntity, Range: "Person", Reverse: "associations"},
			Property{Name: "associate", Type: TypeEntity, Range: "Person", Reverse: "associateOf"},
			Property{Name: "relationship", Type: TypeString},
		)},
	&Schema{Name: "Identification", Extends: []string{"Thing"}, Edge: true,
		Properties: merged(thingProps,
			Property{Name: "holder", Type: TypeEntity, Range: "LegalEntity", Reverse: "identifications"},
			Property{Name: "number", Type: TypeIdentifier},
			Property{Name: "authority", Type: TypeString},
		)},
	&Schema{Name: "UnknownLink", Extends: []string{"Thing"}, Edge: true,
		Properties: merged(thingProps,
			Property{Name: "subject", Type: TypeEntity, Range: "Thing", Reverse: "links"},
			Property{Name: "object", Type: TypeEntity, Range: "Thing", Reverse: "linkedFrom"},
			Property{Name: "role", Type: TypeString},
		)},
)

func buildSchemata(list ...*Schema) map[string]*Schema {
	out := make(map[string]*Schema, len(list))
	for _, s := range list {
		out[s.Name] = s
	}
	// Resolve the transitive parent sets once.
	var resolve func(s *Schema) map[string]bool
	resolve = func(s *Schema) map[string]bool {
		if s.parents != nil {
			return s.parents
		}
		s.parents = map[string]bool{s.Name: true}
		for _, p := range s.Extends {
			parent, ok := out[p]
			if !ok {
				continue
			}
			for a := range resolve(parent) {
				s.parents[a] = true
			}
		}
		return s.parents
	}
	for _, s := range list {
		resolve(s)
	}
	return out
}

// GetSchema returns the schema for the given name, or nil if unknown.
func GetSchema(name string) *Schema {
	return Schemata[name]
}

// IsA reports whether the schema is the ancestor itself or descends from it.
func (s *Schema) IsA(ancestor string) bool {
	return s.parents[ancestor]
}

// Descendants returns the names of all schemata at or below s in the lattice.
func (s *Schema) Descendants() []string {
	var out []string
	for name, other := range Schemata {
		if other.IsA(s.Name) {
			out = append(out, name)
		}
	}
	return out
}

// MatchableSubtree returns the matchable schema names at or below s. Used to
// widen schema filters: searching for LegalEntity must also return Person.
func (s *Schema) MatchableSubtree() []string {
	var out []string
	for name, other := range Schemata {
		if other.Matchable && other.IsA(s.Name) {
			out = append(out, name)
		}
	}
	return out
}

// Prop looks up a property declared on the schema.
func (s *Schema) Prop(name string) (Property, bool) {
	p, ok := s.Properties[name]
	return p, ok
}

// EdgeProps returns the entity-typed properties of an edge schema, i.e. the
// endpoints that nested fetch expands through.
func (s *Schema) EdgeProps() []Property {
	var out []Property
	for _, p := range s.Properties {
		if p.Type == TypeEntity {
			out = append(out, p)
		}
	}
	return out
}
