// Package scorer turns a (query entity, candidate entity) pair into a score
// in [0,1] with per-feature contributions, using one of an enumerated set of
// enabled algorithms.
package scorer

import (
	"sort"

	"github.com/watchwell/screener/internal/model"
)

// Result is the outcome of comparing a query against one candidate.
type Result struct {
	Score    float64            `json:"score"`
	Features map[string]float64 `json:"features"`
}

// Config carries per-request scoring options. Weights scale individual
// feature contributions; unknown names are ignored.
type Config struct {
	Weights map[string]float64
}

func (c Config) weight(name string, fallback float64) float64 {
	if w, ok := c.Weights[name]; ok {
		return w
	}
	return fallback
}

// FeatureDoc documents one feature of an algorithm for the explain response.
type FeatureDoc struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Coefficient float64 `json:"coefficient"`
}

// Explain is the self-description every algorithm publishes; match responses
// embed the active one so callers can audit how scores were produced.
type Explain struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Features    []FeatureDoc `json:"features"`
}

// Algorithm is a pure function of two entities and a scoring config.
type Algorithm interface {
	Name() string
	Compare(query, candidate *model.Entity, cfg Config) Result
	Explain() Explain
}

// registry holds the enabled algorithms. Anything absent here is a 400 at
// the API boundary, which is how disabled algorithms are turned off.
var registry = map[string]Algorithm{}

func register(a Algorithm) {
	registry[a.Name()] = a
}

// DefaultAlgorithm is used when a match request names none.
const DefaultAlgorithm = "name-based"

// Get returns an enabled algorithm by name.
func Get(name string) (Algorithm, bool) {
	a, ok := registry[name]
	return a, ok
}

// Names lists the enabled algorithm names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Explains lists the explain docs of all enabled algorithms, sorted by name.
func Explains() []Explain {
	out := make([]Explain, 0, len(registry))
	for _, name := range Names() {
		out = append(out, registry[name].Explain())
	}
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
