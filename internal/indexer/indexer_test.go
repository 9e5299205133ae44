package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/watchwell/screener/internal/auditlog"
	"github.com/watchwell/screener/internal/catalog"
	"github.com/watchwell/screener/internal/config"
	"github.com/watchwell/screener/internal/index"
	"github.com/watchwell/screener/internal/model"
)

// fakeProvider is an in-memory search backend covering what ingestion needs:
// index lifecycle, alias rollover, bulk writes and the audit-log protocol.
type fakeProvider struct {
	indices map[string]bool
	aliases map[string][]string
	bulks   map[string][]index.BulkOp
	deleted []string
	cloned  [][2]string

	auditDocs []auditDoc
	nextID    int
}

type auditDoc struct {
	id    string
	index string
	ts    int64
	raw   []byte
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		indices: map[string]bool{},
		aliases: map[string][]string{},
		bulks:   map[string][]index.BulkOp{},
	}
}

func (f *fakeProvider) CheckHealth(ctx context.Context) error { return nil }

func (f *fakeProvider) IndexExists(ctx context.Context, name string) (bool, error) {
	return f.indices[name], nil
}

func (f *fakeProvider) CreateIndex(ctx context.Context, name string, mapping any) error {
	f.indices[name] = true
	return nil
}

func (f *fakeProvider) CloneIndex(ctx context.Context, base, target string) error {
	if !f.indices[base] {
		return fmt.Errorf("clone source %s missing", base)
	}
	f.indices[target] = true
	f.cloned = append(f.cloned, [2]string{base, target})
	return nil
}

func (f *fakeProvider) DeleteIndex(ctx context.Context, name string) error {
	delete(f.indices, name)
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeProvider) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for name := range f.indices {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeProvider) AliasIndices(ctx context.Context, alias string) ([]string, error) {
	return f.aliases[alias], nil
}

func (f *fakeProvider) Rollover(ctx context.Context, alias, next, removePattern string) error {
	prefix := strings.TrimSuffix(removePattern, "*")
	var kept []string
	for _, name := range f.aliases[alias] {
		if !strings.HasPrefix(name, prefix) {
			kept = append(kept, name)
		}
	}
	f.aliases[alias] = append(kept, next)
	return nil
}

func (f *fakeProvider) Bulk(ctx context.Context, indexName string, ops []index.BulkOp) error {
	f.bulks[indexName] = append(f.bulks[indexName], ops...)
	return nil
}

func (f *fakeProvider) IndexDoc(ctx context.Context, indexName, id string, doc any) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	var fields struct {
		Index     string `json:"index"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", err
	}
	f.nextID++
	docID := fmt.Sprintf("doc-%04d", f.nextID)
	f.auditDocs = append(f.auditDocs, auditDoc{
		id: docID, index: fields.Index, ts: fields.Timestamp, raw: raw,
	})
	return docID, nil
}

func (f *fakeProvider) UpdateDoc(ctx context.Context, indexName, id string, partial any) error {
	return nil
}

func (f *fakeProvider) Search(ctx context.Context, indexName string, body map[string]any) (*index.Result, error) {
	target := ""
	if q, ok := body["query"].(map[string]any); ok {
		if term, ok := q["term"].(map[string]any); ok {
			target, _ = term["index"].(string)
		}
	}
	size := len(f.auditDocs)
	if s, ok := body["size"].(int); ok {
		size = s
	}
	matched := make([]auditDoc, 0, len(f.auditDocs))
	for _, d := range f.auditDocs {
		if d.index == target {
			matched = append(matched, d)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].ts > matched[j].ts })
	if len(matched) > size {
		matched = matched[:size]
	}
	res := &index.Result{Total: int64(len(matched))}
	for _, d := range matched {
		res.Hits = append(res.Hits, index.Hit{ID: d.id, Source: d.raw})
	}
	return res, nil
}

func (f *fakeProvider) Refresh(ctx context.Context, indexName string) error { return nil }
func (f *fakeProvider) Close() error                                        { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Index: config.IndexConfig{
			Name:     "screener",
			Version:  "011",
			Shards:   1,
			Replicas: 0,
		},
		Indexer: config.IndexerConfig{
			DeltaUpdates: true,
			BatchSize:    2,
		},
	}
}

func TestUpdateDatasetFullIngestion(t *testing.T) {
	entities := `{"id": "e1", "schema": "Person", "properties": {"name": ["Alpha"]}, "referents": ["ref-1"]}
{"id": "e2", "schema": "Company", "properties": {"name": ["Beta GmbH"]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(entities))
	}))
	defer srv.Close()

	provider := newFakeProvider()
	cfg := testConfig()
	loader := catalog.NewLoader(&catalog.Manifest{})
	audit := auditlog.New(provider, cfg.Index.Name)
	ix := New(cfg, provider, loader, audit)

	ds := &model.Dataset{Name: "us_ofac", Load: true, Version: "20240301", EntitiesURL: srv.URL}
	if err := ix.UpdateDataset(context.Background(), ds, false); err != nil {
		t.Fatalf("UpdateDataset: %v", err)
	}

	next := index.VersionedIndex("screener", "us_ofac", "011", "20240301")
	if !provider.indices[next] {
		t.Fatalf("expected index %s to exist, have %v", next, provider.indices)
	}
	aliased := provider.aliases["screener-entities"]
	if len(aliased) != 1 || aliased[0] != next {
		t.Errorf("alias members = %v", aliased)
	}

	ops := provider.bulks[next]
	if len(ops) != 3 {
		t.Fatalf("expected 2 entities + 1 stub, got %d ops", len(ops))
	}
	var stubs int
	for _, op := range ops {
		if op.Action != index.BulkIndex {
			t.Errorf("full ingestion should only index, got %s", op.Action)
		}
		if _, ok := op.Doc.(index.Stub); ok {
			stubs++
			if op.ID != "ref-1" {
				t.Errorf("stub id = %q", op.ID)
			}
		}
	}
	if stubs != 1 {
		t.Errorf("expected one referent stub, got %d", stubs)
	}

	// The audit history ends in rollover and completion records.
	var sawRollover, sawCompleted bool
	for _, d := range provider.auditDocs {
		var rec auditlog.Record
		json.Unmarshal(d.raw, &rec)
		switch rec.MessageType {
		case auditlog.MessageRolloverComplete:
			sawRollover = true
		case auditlog.MessageCompleted:
			sawCompleted = true
		}
	}
	if !sawRollover || !sawCompleted {
		t.Errorf("rollover=%v completed=%v", sawRollover, sawCompleted)
	}
}

func TestUpdateDatasetDeltaReplay(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/delta/index.json", func(w http.ResponseWriter, r *http.Request) {
		host := "http://" + r.Host
		json.NewEncoder(w).Encode(map[string]any{"versions": map[string]string{
			"20240301": host + "/delta/1.json",
			"20240302": host + "/delta/2.json",
		}})
	})
	mux.HandleFunc("/delta/2.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"op": "MOD", "entity": {"id": "e1", "schema": "Person", "properties": {"name": ["Alpha Updated"]}}}
{"op": "DEL", "entity": {"id": "e9", "schema": "Person", "properties": {}, "referents": ["ref-9"]}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	provider := newFakeProvider()
	cfg := testConfig()
	base := index.VersionedIndex("screener", "us_ofac", "011", "20240301")
	provider.indices[base] = true
	provider.aliases["screener-entities"] = []string{base}

	loader := catalog.NewLoader(&catalog.Manifest{})
	audit := auditlog.New(provider, cfg.Index.Name)
	ix := New(cfg, provider, loader, audit)

	ds := &model.Dataset{
		Name: "us_ofac", Load: true, Version: "20240302",
		EntitiesURL: srv.URL + "/entities.json",
		DeltaURL:    srv.URL + "/delta/index.json",
	}
	if err := ix.UpdateDataset(context.Background(), ds, false); err != nil {
		t.Fatalf("UpdateDataset: %v", err)
	}

	next := index.VersionedIndex("screener", "us_ofac", "011", "20240302")
	if len(provider.cloned) != 1 || provider.cloned[0] != [2]string{base, next} {
		t.Errorf("clone calls = %v", provider.cloned)
	}

	ops := provider.bulks[next]
	if len(ops) != 3 {
		t.Fatalf("expected MOD + DEL + referent delete, got %d ops", len(ops))
	}
	if ops[0].Action != index.BulkIndex || ops[0].ID != "e1" {
		t.Errorf("first op = %+v", ops[0])
	}
	if ops[1].Action != index.BulkDelete || ops[1].ID != "e9" {
		t.Errorf("second op = %+v", ops[1])
	}
	if ops[2].Action != index.BulkDelete || ops[2].ID != "ref-9" {
		t.Errorf("third op = %+v", ops[2])
	}

	aliased := provider.aliases["screener-entities"]
	if len(aliased) != 1 || aliased[0] != next {
		t.Errorf("alias members = %v", aliased)
	}
	// The superseded base index is retired after rollover.
	found := false
	for _, name := range provider.deleted {
		if name == base {
			found = true
		}
	}
	if !found {
		t.Errorf("base index not cleaned up, deleted = %v", provider.deleted)
	}
}

func TestUpdateDatasetCurrentIsNoop(t *testing.T) {
	provider := newFakeProvider()
	cfg := testConfig()
	current := index.VersionedIndex("screener", "us_ofac", "011", "20240301")
	provider.indices[current] = true
	provider.aliases["screener-entities"] = []string{current}

	loader := catalog.NewLoader(&catalog.Manifest{})
	audit := auditlog.New(provider, cfg.Index.Name)
	ix := New(cfg, provider, loader, audit)

	// Declared version matches the aliased one; no delta URL, so the plan is
	// full and empty.
	ds := &model.Dataset{Name: "us_ofac", Load: true, Version: "20240301", EntitiesURL: "http://unused"}
	if err := ix.UpdateDataset(context.Background(), ds, false); err != nil {
		t.Fatalf("UpdateDataset: %v", err)
	}
	if len(provider.bulks) != 0 {
		t.Errorf("no writes expected, got %v", provider.bulks)
	}
	if len(provider.auditDocs) != 0 {
		t.Errorf("no lock traffic expected, got %d records", len(provider.auditDocs))
	}
}

func TestUpdateDatasetSkipsComposite(t *testing.T) {
	provider := newFakeProvider()
	cfg := testConfig()
	ix := New(cfg, provider, catalog.NewLoader(&catalog.Manifest{}), auditlog.New(provider, cfg.Index.Name))

	ds := &model.Dataset{Name: "default", Load: true, Version: "1", Children: []string{"a", "b"}}
	if err := ix.UpdateDataset(context.Background(), ds, false); err != nil {
		t.Fatalf("UpdateDataset: %v", err)
	}
	if len(provider.auditDocs) != 0 {
		t.Error("composite dataset should be skipped")
	}
}

func TestUpdateDatasetLockHeld(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "e1", "schema": "Person", "properties": {"name": ["Alpha"]}}`))
	}))
	defer srv.Close()

	provider := newFakeProvider()
	cfg := testConfig()
	loader := catalog.NewLoader(&catalog.Manifest{})
	audit := auditlog.New(provider, cfg.Index.Name)
	ix := New(cfg, provider, loader, audit)

	// Another replica holds the lock for the target index.
	next := index.VersionedIndex("screener", "us_ofac", "011", "20240301")
	other := auditlog.New(provider, cfg.Index.Name)
	if _, err := other.AcquireLock(context.Background(), auditlog.Record{
		AliasIndex: "screener-entities",
		Index:      next,
		Dataset:    "us_ofac",
	}); err != nil {
		t.Fatalf("staging lock: %v", err)
	}

	ds := &model.Dataset{Name: "us_ofac", Load: true, Version: "20240301", EntitiesURL: srv.URL}
	err := ix.UpdateDataset(context.Background(), ds, false)
	if !errors.Is(err, auditlog.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	if len(provider.bulks) != 0 {
		t.Error("no writes expected while the lock is held elsewhere")
	}
}
