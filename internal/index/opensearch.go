package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/sethvargo/go-retry"

	"github.com/watchwell/screener/internal/config"
)

// OpenSearchProvider implements Provider against an OpenSearch or
// Elasticsearch compatible cluster over the plain HTTP API.
type OpenSearchProvider struct {
	client *opensearch.Client
}

// connectAttempts bounds the startup backoff loop.
const connectAttempts = 8

// NewOpenSearchProvider connects to the configured cluster, retrying with
// bounded exponential backoff so the service survives a backend that is
// still booting.
func NewOpenSearchProvider(ctx context.Context, cfg config.IndexConfig) (*OpenSearchProvider, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("creating search client: %w", err)
	}

	p := &OpenSearchProvider{client: client}
	backoff := retry.WithMaxRetries(connectAttempts, retry.NewExponential(time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := p.ping(ctx); err != nil {
			slog.Warn("search backend not reachable yet", "url", cfg.URL, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to search backend at %s: %w", cfg.URL, err)
	}
	slog.Info("connected to search backend", "url", cfg.URL, "type", cfg.Type)
	return p, nil
}

func (p *OpenSearchProvider) ping(ctx context.Context) error {
	res, err := opensearchapi.InfoRequest{}.Do(ctx, p.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("cluster info: %s", res.Status())
	}
	return nil
}

// CheckHealth waits briefly for the cluster to reach yellow or better.
func (p *OpenSearchProvider) CheckHealth(ctx context.Context) error {
	res, err := opensearchapi.ClusterHealthRequest{
		WaitForStatus: "yellow",
		Timeout:       5 * time.Second,
	}.Do(ctx, p.client)
	if err != nil {
		return fmt.Errorf("cluster health: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("cluster health: %s", res.Status())
	}
	return nil
}

func (p *OpenSearchProvider) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := opensearchapi.IndicesExistsRequest{Index: []string{name}}.Do(ctx, p.client)
	if err != nil {
		return false, fmt.Errorf("checking index %s: %w", name, err)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("checking index %s: %s", name, res.Status())
	}
}

func (p *OpenSearchProvider) CreateIndex(ctx context.Context, name string, mapping any) error {
	body, err := encode(mapping)
	if err != nil {
		return err
	}
	res, err := opensearchapi.IndicesCreateRequest{Index: name, Body: body}.Do(ctx, p.client)
	if err != nil {
		return fmt.Errorf("creating index %s: %w", name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		// A concurrent creator is not an error worth surfacing.
		if apiErrorType(res) == "resource_already_exists_exception" {
			return nil
		}
		return fmt.Errorf("creating index %s: %s", name, errorDetail(res))
	}
	return nil
}

// CloneIndex marks the source read-only, clones it into target and restores
// write access afterwards even if the clone fails.
func (p *OpenSearchProvider) CloneIndex(ctx context.Context, base, target string) error {
	if err := p.setWriteBlock(ctx, base, true); err != nil {
		return err
	}
	defer func() {
		if err := p.setWriteBlock(context.WithoutCancel(ctx), base, false); err != nil {
			slog.Error("failed to restore write access after clone", "index", base, "error", err)
		}
	}()

	res, err := opensearchapi.IndicesCloneRequest{Index: base, Target: target}.Do(ctx, p.client)
	if err != nil {
		return fmt.Errorf("cloning %s to %s: %w", base, target, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("cloning %s to %s: %s", base, target, errorDetail(res))
	}
	return nil
}

func (p *OpenSearchProvider) setWriteBlock(ctx context.Context, name string, blocked bool) error {
	body, err := encode(map[string]any{"settings": map[string]any{"index.blocks.write": blocked}})
	if err != nil {
		return err
	}
	res, err := opensearchapi.IndicesPutSettingsRequest{Index: []string{name}, Body: body}.Do(ctx, p.client)
	if err != nil {
		return fmt.Errorf("setting write block on %s: %w", name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("setting write block on %s: %s", name, errorDetail(res))
	}
	return nil
}

func (p *OpenSearchProvider) DeleteIndex(ctx context.Context, name string) error {
	res, err := opensearchapi.IndicesDeleteRequest{Index: []string{name}}.Do(ctx, p.client)
	if err != nil {
		return fmt.Errorf("deleting index %s: %w", name, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("deleting index %s: %s", name, errorDetail(res))
	}
	return nil
}

func (p *OpenSearchProvider) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	res, err := opensearchapi.IndicesGetRequest{Index: []string{pattern}}.Do(ctx, p.client)
	if err != nil {
		return nil, fmt.Errorf("listing indices %s: %w", pattern, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("listing indices %s: %s", pattern, errorDetail(res))
	}
	var parsed map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parsing index listing: %w", err)
	}
	names := make([]string, 0, len(parsed))
	for name := range parsed {
		names = append(names, name)
	}
	return names, nil
}

func (p *OpenSearchProvider) AliasIndices(ctx context.Context, alias string) ([]string, error) {
	res, err := opensearchapi.IndicesGetAliasRequest{Name: []string{alias}}.Do(ctx, p.client)
	if err != nil {
		return nil, fmt.Errorf("resolving alias %s: %w", alias, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("resolving alias %s: %s", alias, errorDetail(res))
	}
	var parsed map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parsing alias response: %w", err)
	}
	names := make([]string, 0, len(parsed))
	for name := range parsed {
		names = append(names, name)
	}
	return names, nil
}

// Rollover publishes next under the alias and retires every index matching
// removePattern in the same atomic alias-update call, so concurrent readers
// never observe an empty alias.
func (p *OpenSearchProvider) Rollover(ctx context.Context, alias, next, removePattern string) error {
	actions := []map[string]any{
		{"remove": map[string]any{"index": removePattern, "alias": alias}},
		{"add": map[string]any{"index": next, "alias": alias}},
	}
	body, err := encode(map[string]any{"actions": actions})
	if err != nil {
		return err
	}
	res, err := opensearchapi.IndicesUpdateAliasesRequest{Body: body}.Do(ctx, p.client)
	if err != nil {
		return fmt.Errorf("alias rollover to %s: %w", next, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		// The remove action 404s when no prior index matches; retry with
		// the add action alone for the very first rollover of a dataset.
		if res.StatusCode == http.StatusNotFound {
			return p.addAlias(ctx, alias, next)
		}
		return fmt.Errorf("alias rollover to %s: %s", next, errorDetail(res))
	}
	return nil
}

func (p *OpenSearchProvider) addAlias(ctx context.Context, alias, name string) error {
	body, err := encode(map[string]any{"actions": []map[string]any{
		{"add": map[string]any{"index": name, "alias": alias}},
	}})
	if err != nil {
		return err
	}
	res, err := opensearchapi.IndicesUpdateAliasesRequest{Body: body}.Do(ctx, p.client)
	if err != nil {
		return fmt.Errorf("adding alias %s to %s: %w", alias, name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("adding alias %s to %s: %s", alias, name, errorDetail(res))
	}
	return nil
}

// Bulk executes a batch of index/delete operations as one NDJSON request.
func (p *OpenSearchProvider) Bulk(ctx context.Context, indexName string, ops []BulkOp) error {
	if len(ops) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, op := range ops {
		meta := map[string]any{string(op.Action): map[string]any{"_index": indexName, "_id": op.ID}}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encoding bulk meta: %w", err)
		}
		buf.Write(metaJSON)
		buf.WriteByte('\n')
		if op.Action == BulkIndex {
			docJSON, err := json.Marshal(op.Doc)
			if err != nil {
				return fmt.Errorf("encoding bulk doc %s: %w", op.ID, err)
			}
			buf.Write(docJSON)
			buf.WriteByte('\n')
		}
	}

	res, err := opensearchapi.BulkRequest{Body: &buf}.Do(ctx, p.client)
	if err != nil {
		return fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk request: %s", errorDetail(res))
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("parsing bulk response: %w", err)
	}
	if parsed.Errors {
		for _, item := range parsed.Items {
			for _, detail := range item {
				// Deleting an id that is already gone is fine.
				if detail.Error != nil && detail.Status != http.StatusNotFound {
					return fmt.Errorf("bulk item %s failed: %s: %s",
						detail.ID, detail.Error.Type, detail.Error.Reason)
				}
			}
		}
	}
	return nil
}

func (p *OpenSearchProvider) IndexDoc(ctx context.Context, indexName, id string, doc any) (string, error) {
	body, err := encode(doc)
	if err != nil {
		return "", err
	}
	res, err := opensearchapi.IndexRequest{Index: indexName, DocumentID: id, Body: body}.Do(ctx, p.client)
	if err != nil {
		return "", fmt.Errorf("indexing document: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return "", fmt.Errorf("indexing document: %s", errorDetail(res))
	}
	var parsed struct {
		ID string `json:"_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parsing index response: %w", err)
	}
	return parsed.ID, nil
}

func (p *OpenSearchProvider) UpdateDoc(ctx context.Context, indexName, id string, partial any) error {
	body, err := encode(map[string]any{"doc": partial})
	if err != nil {
		return err
	}
	res, err := opensearchapi.UpdateRequest{Index: indexName, DocumentID: id, Body: body}.Do(ctx, p.client)
	if err != nil {
		return fmt.Errorf("updating document %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("updating document %s: %w", id, ErrNotFound)
	}
	if res.IsError() {
		return fmt.Errorf("updating document %s: %s", id, errorDetail(res))
	}
	return nil
}

func (p *OpenSearchProvider) Search(ctx context.Context, indexName string, body map[string]any) (*Result, error) {
	encoded, err := encode(body)
	if err != nil {
		return nil, err
	}
	res, err := opensearchapi.SearchRequest{Index: []string{indexName}, Body: encoded}.Do(ctx, p.client)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		switch apiErrorType(res) {
		case "index_not_found_exception":
			return nil, fmt.Errorf("search: %w", ErrIndexNotReady)
		case "search_phase_execution_exception", "parsing_exception",
			"query_shard_exception", "x_content_parse_exception",
			"illegal_argument_exception":
			return nil, fmt.Errorf("search: %w", ErrInvalid)
		}
		return nil, fmt.Errorf("search: %s", errorDetail(res))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string          `json:"_id"`
				Score  float64         `json:"_score"`
				Index  string          `json:"_index"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
		Aggregations map[string]json.RawMessage `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	result := &Result{
		Total:        parsed.Hits.Total.Value,
		Aggregations: parsed.Aggregations,
	}
	for _, h := range parsed.Hits.Hits {
		result.Hits = append(result.Hits, Hit{ID: h.ID, Score: h.Score, Index: h.Index, Source: h.Source})
	}
	return result, nil
}

func (p *OpenSearchProvider) Refresh(ctx context.Context, indexName string) error {
	res, err := opensearchapi.IndicesRefreshRequest{Index: []string{indexName}}.Do(ctx, p.client)
	if err != nil {
		return fmt.Errorf("refreshing %s: %w", indexName, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("refreshing %s: %s", indexName, errorDetail(res))
	}
	return nil
}

// Close releases the underlying transport. The HTTP client has no explicit
// shutdown, so this is a no-op kept for interface symmetry.
func (p *OpenSearchProvider) Close() error {
	return nil
}

func encode(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

// apiErrorType extracts error.type from an error response body. The body is
// consumed; callers must not read it again.
func apiErrorType(res *opensearchapi.Response) string {
	if res.Body == nil {
		return ""
	}
	var parsed struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return ""
	}
	return parsed.Error.Type
}

func errorDetail(res *opensearchapi.Response) string {
	if res.Body == nil {
		return res.Status()
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, 2048))
	if err != nil || len(data) == 0 {
		return res.Status()
	}
	return res.Status() + ": " + strings.TrimSpace(string(data))
}
