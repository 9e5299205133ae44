package model

// Dataset describes one curated dataset in the catalog. Version strings are
// compared lexicographically, so they must be ISO-timestamp-like to stay
// monotonic.
type Dataset struct {
	Name        string   `json:"name" yaml:"name"`
	Title       string   `json:"title" yaml:"title"`
	Load        bool     `json:"load" yaml:"load"`
	Version     string   `json:"version" yaml:"version"`
	EntitiesURL string   `json:"entities_url" yaml:"entities_url"`
	DeltaURL    string   `json:"delta_url" yaml:"delta_url"`
	Children    []string `json:"datasets" yaml:"datasets"`
}

// Composite reports whether the dataset is a collection of child datasets.
func (d *Dataset) Composite() bool {
	return len(d.Children) > 0
}

// Catalog is the resolved set of datasets the service is configured to serve.
type Catalog struct {
	Datasets []*Dataset
}

// Get returns the named dataset, or nil.
func (c *Catalog) Get(name string) *Dataset {
	for _, d := range c.Datasets {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// Names returns all dataset names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.Datasets))
	for _, d := range c.Datasets {
		out = append(out, d.Name)
	}
	return out
}

// Scope resolves a dataset name to the set of leaf dataset names it covers:
// itself for a plain dataset, its children (recursively) for a composite.
// Unknown children are skipped.
func (c *Catalog) Scope(name string) []string {
	ds := c.Get(name)
	if ds == nil {
		return nil
	}
	if !ds.Composite() {
		return []string{ds.Name}
	}
	seen := map[string]bool{}
	var walk func(d *Dataset)
	walk = func(d *Dataset) {
		if !d.Composite() {
			seen[d.Name] = true
			return
		}
		for _, child := range d.Children {
			if next := c.Get(child); next != nil && !seen[next.Name] {
				seen[next.Name] = true
				walk(next)
			}
		}
	}
	walk(ds)
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return out
}
