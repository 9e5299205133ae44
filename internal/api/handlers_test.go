package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/watchwell/screener/internal/catalog"
	"github.com/watchwell/screener/internal/config"
	"github.com/watchwell/screener/internal/index"
	"github.com/watchwell/screener/internal/matcher"
	"github.com/watchwell/screener/internal/model"
	"github.com/watchwell/screener/internal/search"
)

// fakeProvider serves scripted documents and health state to the handlers.
type fakeProvider struct {
	docs       map[string]json.RawMessage
	aliased    []string
	unhealthy  bool
	lastSearch map[string]any
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{docs: map[string]json.RawMessage{}, aliased: []string{"screener-entities-x"}}
}

func (f *fakeProvider) addEntity(e *model.Entity) {
	raw, _ := json.Marshal(map[string]any{"entity": e})
	f.docs[e.ID] = raw
}

func (f *fakeProvider) addStub(id, canonical string) {
	raw, _ := json.Marshal(map[string]any{"canonical_id": canonical})
	f.docs[id] = raw
}

func (f *fakeProvider) CheckHealth(ctx context.Context) error {
	if f.unhealthy {
		return index.ErrIndexNotReady
	}
	return nil
}
func (f *fakeProvider) IndexExists(ctx context.Context, name string) (bool, error) {
	return true, nil
}
func (f *fakeProvider) CreateIndex(ctx context.Context, name string, mapping any) error { return nil }
func (f *fakeProvider) CloneIndex(ctx context.Context, base, target string) error       { return nil }
func (f *fakeProvider) DeleteIndex(ctx context.Context, name string) error              { return nil }
func (f *fakeProvider) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	return nil, nil
}
func (f *fakeProvider) AliasIndices(ctx context.Context, alias string) ([]string, error) {
	return f.aliased, nil
}
func (f *fakeProvider) Rollover(ctx context.Context, alias, next, removePattern string) error {
	return nil
}
func (f *fakeProvider) Bulk(ctx context.Context, indexName string, ops []index.BulkOp) error {
	return nil
}
func (f *fakeProvider) IndexDoc(ctx context.Context, indexName, id string, doc any) (string, error) {
	return id, nil
}
func (f *fakeProvider) UpdateDoc(ctx context.Context, indexName, id string, partial any) error {
	return nil
}
func (f *fakeProvider) Refresh(ctx context.Context, indexName string) error { return nil }
func (f *fakeProvider) Close() error                                        { return nil }

func (f *fakeProvider) Search(ctx context.Context, indexName string, body map[string]any) (*index.Result, error) {
	f.lastSearch = body
	res := &index.Result{}
	query, _ := body["query"].(map[string]any)

	if ids, ok := query["ids"].(map[string]any); ok {
		values, _ := ids["values"].([]string)
		for _, id := range values {
			if raw, ok := f.docs[id]; ok {
				res.Hits = append(res.Hits, index.Hit{ID: id, Source: raw})
			}
		}
		res.Total = int64(len(res.Hits))
		return res, nil
	}
	if terms, ok := query["terms"].(map[string]any); ok {
		if _, ok := terms["entities"]; ok {
			return res, nil
		}
	}
	// Free-text, suggest and match recall all land here.
	for id, raw := range f.docs {
		var doc struct {
			Entity *model.Entity `json:"entity"`
		}
		if json.Unmarshal(raw, &doc) == nil && doc.Entity != nil {
			res.Hits = append(res.Hits, index.Hit{ID: id, Source: raw})
		}
	}
	res.Total = int64(len(res.Hits))
	return res, nil
}

// fakeUpdater records trigger calls and answers with a fixed outcome.
type fakeUpdater struct {
	allow bool
	calls int
}

func (u *fakeUpdater) Trigger(ctx context.Context, force bool) bool {
	u.calls++
	return u.allow
}

func testRouter(t *testing.T, provider *fakeProvider, updater Updater, token string) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Index:   config.IndexConfig{Name: "screener", Type: "opensearch", Version: "011"},
		Indexer: config.IndexerConfig{UpdateToken: token},
		Matching: config.MatchingConfig{
			Fuzzy:            true,
			MatchPage:        5,
			MaxMatches:       500,
			MaxBatch:         10,
			Candidates:       10,
			ScoreThreshold:   0.7,
			ScoreCutoff:      0.5,
			QueryConcurrency: 4,
		},
	}
	manifest := &catalog.Manifest{Datasets: []*model.Dataset{
		{Name: "default", Title: "Default", Load: true, Version: "1"},
		{Name: "us_ofac", Title: "OFAC", Load: true, Version: "1"},
	}}
	cache := catalog.NewCache(catalog.NewLoader(manifest), time.Minute)
	svc := search.New(cfg, provider)
	h := NewHandler(cfg, svc, matcher.New(cfg, svc), cache, provider, updater)
	return NewRouter(h)
}

func doRequest(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	router := testRouter(t, newFakeProvider(), &fakeUpdater{}, "")
	rec := doRequest(t, router, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	provider := newFakeProvider()
	router := testRouter(t, provider, &fakeUpdater{}, "")
	if rec := doRequest(t, router, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("ready status = %d", rec.Code)
	}

	provider.aliased = nil
	if rec := doRequest(t, router, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("empty alias status = %d", rec.Code)
	}

	provider.unhealthy = true
	if rec := doRequest(t, router, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d", rec.Code)
	}
}

func TestServerErrorBodyIsGeneric(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/entities/e1", nil)
	rec := httptest.NewRecorder()
	MapError(rec, req, errors.New("backend exploded"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	body := decodeBody(t, rec)
	if len(body) != 1 || body["status"] != "error" {
		t.Errorf("body = %v", body)
	}
}

func TestReadyzErrorBodyIsGeneric(t *testing.T) {
	provider := newFakeProvider()
	provider.unhealthy = true
	router := testRouter(t, provider, &fakeUpdater{}, "")

	rec := doRequest(t, router, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if len(body) != 1 || body["status"] != "error" {
		t.Errorf("body = %v", body)
	}
}

func TestSearchUnknownDataset(t *testing.T) {
	router := testRouter(t, newFakeProvider(), &fakeUpdater{}, "")
	rec := doRequest(t, router, http.MethodGet, "/search/nope?q=x", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestSearchPagingOutOfRange(t *testing.T) {
	router := testRouter(t, newFakeProvider(), &fakeUpdater{}, "")
	for _, target := range []string{
		"/search/default?limit=501",
		"/search/default?offset=9500",
		"/search/default?limit=-1",
	} {
		rec := doRequest(t, router, http.MethodGet, target, "")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status = %d", target, rec.Code)
		}
	}
}

func TestSearchBadLimit(t *testing.T) {
	router := testRouter(t, newFakeProvider(), &fakeUpdater{}, "")
	rec := doRequest(t, router, http.MethodGet, "/search/default?limit=ten", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSearchOK(t *testing.T) {
	provider := newFakeProvider()
	provider.addEntity(&model.Entity{ID: "e1", Schema: "Person", Datasets: []string{"default"},
		Properties: map[string][]model.Value{"name": {{Str: "Alpha"}}}})
	router := testRouter(t, provider, &fakeUpdater{}, "")

	rec := doRequest(t, router, http.MethodGet, "/search/default?q=alpha", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	results := body["results"].([]any)
	if len(results) != 1 {
		t.Errorf("results = %v", results)
	}
	total := body["total"].(map[string]any)
	if total["value"].(float64) != 1 || total["relation"] != "eq" {
		t.Errorf("total = %v", total)
	}
	if rec.Header().Get("x-trace-id") == "" {
		t.Error("missing trace id header")
	}
}

// searchFuzziness digs the fuzziness setting out of the recorded query body.
func searchFuzziness(t *testing.T, body map[string]any) any {
	t.Helper()
	query := body["query"].(map[string]any)
	should := query["bool"].(map[string]any)["should"].([]any)
	qs := should[0].(map[string]any)["query_string"].(map[string]any)
	return qs["fuzziness"]
}

func TestSearchFuzzyParam(t *testing.T) {
	provider := newFakeProvider()
	provider.addEntity(&model.Entity{ID: "e1", Schema: "Person", Datasets: []string{"default"},
		Properties: map[string][]model.Value{"name": {{Str: "Vladimir"}}}})
	router := testRouter(t, provider, &fakeUpdater{}, "")

	// No parameter: the configured default applies.
	if rec := doRequest(t, router, http.MethodGet, "/search/default?q=vladimir", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := searchFuzziness(t, provider.lastSearch); got != "AUTO" {
		t.Errorf("default fuzziness = %v", got)
	}

	// The request parameter overrides the config.
	if rec := doRequest(t, router, http.MethodGet, "/search/default?q=vladimir&fuzzy=false", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := searchFuzziness(t, provider.lastSearch); got != nil {
		t.Errorf("fuzzy=false still sets fuzziness %v", got)
	}
}

func TestMatchUnknownAlgorithm(t *testing.T) {
	router := testRouter(t, newFakeProvider(), &fakeUpdater{}, "")
	body := `{"queries": {"q1": {"schema": "Person", "properties": {"name": ["X"]}}}}`
	rec := doRequest(t, router, http.MethodPost, "/match/default?algorithm=neural-net", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMatchInvalidJSON(t *testing.T) {
	router := testRouter(t, newFakeProvider(), &fakeUpdater{}, "")
	rec := doRequest(t, router, http.MethodPost, "/match/default", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestMatchOK(t *testing.T) {
	provider := newFakeProvider()
	provider.addEntity(&model.Entity{ID: "e1", Schema: "Person", Datasets: []string{"default"},
		Properties: map[string][]model.Value{"name": {{Str: "Vladimir Putin"}}}})
	router := testRouter(t, provider, &fakeUpdater{}, "")

	body := `{"queries": {"q1": {"schema": "Person", "properties": {"name": "Vladimir Putin"}}}}`
	rec := doRequest(t, router, http.MethodPost, "/match/default", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	out := decodeBody(t, rec)
	responses := out["responses"].(map[string]any)
	q1 := responses["q1"].(map[string]any)
	results := q1["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("results = %v", results)
	}
	top := results[0].(map[string]any)
	if top["id"] != "e1" || top["match"] != true {
		t.Errorf("top = %v", top)
	}
	if out["matcher"] == nil {
		t.Error("missing matcher explanation")
	}
}

func TestEntityFound(t *testing.T) {
	provider := newFakeProvider()
	provider.addEntity(&model.Entity{ID: "e1", Schema: "Person", Datasets: []string{"default"},
		Properties: map[string][]model.Value{"name": {{Str: "Alpha"}}}})
	router := testRouter(t, provider, &fakeUpdater{}, "")

	rec := doRequest(t, router, http.MethodGet, "/entities/e1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["id"] != "e1" {
		t.Errorf("body = %v", body)
	}
}

func TestEntityReferentRedirect(t *testing.T) {
	provider := newFakeProvider()
	provider.addEntity(&model.Entity{ID: "e1", Schema: "Person",
		Properties: map[string][]model.Value{"name": {{Str: "Alpha"}}}})
	provider.addStub("ref-1", "e1")
	router := testRouter(t, provider, &fakeUpdater{}, "")

	rec := doRequest(t, router, http.MethodGet, "/entities/ref-1", "")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/entities/e1" {
		t.Errorf("location = %q", loc)
	}
}

func TestEntityNotFound(t *testing.T) {
	router := testRouter(t, newFakeProvider(), &fakeUpdater{}, "")
	rec := doRequest(t, router, http.MethodGet, "/entities/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestAdjacentUnknownProperty(t *testing.T) {
	provider := newFakeProvider()
	provider.addEntity(&model.Entity{ID: "e1", Schema: "Person",
		Properties: map[string][]model.Value{"name": {{Str: "Alpha"}}}})
	router := testRouter(t, provider, &fakeUpdater{}, "")

	rec := doRequest(t, router, http.MethodGet, "/entities/e1/adjacent/favouriteColor", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSuggestEmptyQuery(t *testing.T) {
	router := testRouter(t, newFakeProvider(), &fakeUpdater{}, "")
	rec := doRequest(t, router, http.MethodGet, "/suggest/default", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if results := decodeBody(t, rec)["results"].([]any); len(results) != 0 {
		t.Errorf("results = %v", results)
	}
}

func TestCatalogListsDatasets(t *testing.T) {
	router := testRouter(t, newFakeProvider(), &fakeUpdater{}, "")
	rec := doRequest(t, router, http.MethodGet, "/catalog", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if datasets := decodeBody(t, rec)["datasets"].([]any); len(datasets) != 2 {
		t.Errorf("datasets = %v", datasets)
	}
}

func TestAlgorithms(t *testing.T) {
	router := testRouter(t, newFakeProvider(), &fakeUpdater{}, "")
	rec := doRequest(t, router, http.MethodGet, "/algorithms", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["default"] == "" || body["algorithms"] == nil {
		t.Errorf("body = %v", body)
	}
}

func TestUpdateDisabledWithoutToken(t *testing.T) {
	router := testRouter(t, newFakeProvider(), &fakeUpdater{allow: true}, "")
	rec := doRequest(t, router, http.MethodPost, "/updatez?token=whatever", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestUpdateWrongToken(t *testing.T) {
	router := testRouter(t, newFakeProvider(), &fakeUpdater{allow: true}, "secret")
	rec := doRequest(t, router, http.MethodPost, "/updatez?token=guess", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestUpdateSync(t *testing.T) {
	updater := &fakeUpdater{allow: true}
	router := testRouter(t, newFakeProvider(), updater, "secret")
	rec := doRequest(t, router, http.MethodPost, "/updatez?token=secret&sync=true", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if updater.calls != 1 {
		t.Errorf("trigger calls = %d", updater.calls)
	}
}

func TestUpdateSyncConflict(t *testing.T) {
	router := testRouter(t, newFakeProvider(), &fakeUpdater{allow: false}, "secret")
	rec := doRequest(t, router, http.MethodPost, "/updatez?token=secret&sync=true", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestUpdateAsyncAccepted(t *testing.T) {
	router := testRouter(t, newFakeProvider(), &fakeUpdater{allow: true}, "secret")
	rec := doRequest(t, router, http.MethodPost, "/updatez?token=secret", "")
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d", rec.Code)
	}
}
