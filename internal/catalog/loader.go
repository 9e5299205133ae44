// Package catalog resolves the dataset manifest and plans dataset updates,
// either as full ingestions or as ordered delta replays.
package catalog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/watchwell/screener/internal/model"
)

// Manifest is the operator-provided dataset configuration: inline datasets
// plus external catalogs to merge in.
type Manifest struct {
	Catalogs []CatalogSource  `yaml:"catalogs"`
	Datasets []*model.Dataset `yaml:"datasets"`
}

// CatalogSource points at an external JSON catalog of datasets.
type CatalogSource struct {
	URL string `yaml:"url"`
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	manifest := &Manifest{}
	if err := yaml.Unmarshal(data, manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return manifest, nil
}

// Loader fetches catalogs, entity streams and delta indexes over HTTP. The
// default transport honours HTTP_PROXY from the environment.
type Loader struct {
	manifest *Manifest
	client   *http.Client
}

// NewLoader creates a Loader for the given manifest.
func NewLoader(manifest *Manifest) *Loader {
	return &Loader{
		manifest: manifest,
		client:   &http.Client{Timeout: 10 * time.Minute},
	}
}

// FetchCatalog resolves the manifest into the full dataset catalog: external
// catalogs first, inline datasets appended (overriding same-named entries).
func (l *Loader) FetchCatalog(ctx context.Context) (*model.Catalog, error) {
	catalog := &model.Catalog{}
	for _, source := range l.manifest.Catalogs {
		remote, err := l.fetchRemoteCatalog(ctx, source.URL)
		if err != nil {
			return nil, err
		}
		catalog.Datasets = append(catalog.Datasets, remote...)
	}
	for _, ds := range l.manifest.Datasets {
		if existing := catalog.Get(ds.Name); existing != nil {
			*existing = *ds
			continue
		}
		catalog.Datasets = append(catalog.Datasets, ds)
	}
	return catalog, nil
}

func (l *Loader) fetchRemoteCatalog(ctx context.Context, url string) ([]*model.Dataset, error) {
	body, err := l.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog %s: %w", url, err)
	}
	defer body.Close()
	var parsed struct {
		Datasets []*model.Dataset `json:"datasets"`
	}
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", url, err)
	}
	return parsed.Datasets, nil
}

func (l *Loader) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	res, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", url, res.Status)
	}
	return res.Body, nil
}

// maxLineBytes bounds a single entity line in an NDJSON stream.
const maxLineBytes = 16 * 1024 * 1024

// streamLines scans an NDJSON body line by line.
func streamLines(body io.Reader, fn func(line []byte) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// StreamEntities fetches a newline-delimited JSON entity stream and invokes
// fn for every parsed entity. Individual malformed entities are logged and
// skipped; transport errors abort the stream.
func (l *Loader) StreamEntities(ctx context.Context, url string, fn func(*model.Entity) error) error {
	body, err := l.fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("fetching entities %s: %w", url, err)
	}
	defer body.Close()
	return streamLines(body, func(line []byte) error {
		entity, err := model.FromJSON(line)
		if err != nil {
			slog.Warn("skipping invalid entity", "url", url, "error", err)
			return nil
		}
		return fn(entity)
	})
}
