// Package auditlog stores reindex lifecycle events in a dedicated index and
// implements the race-safe reindex lock on top of them. The search store is
// the only coordination medium between replicas.
package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/watchwell/screener/internal/index"
)

// Message types for audit-log records.
const (
	MessageLockTentative    = "REINDEX_LOCK_TENTATIVE"
	MessageStarted          = "REINDEX_STARTED"
	MessageCompleted        = "REINDEX_COMPLETED"
	MessageFailed           = "REINDEX_FAILED"
	MessageRolloverComplete = "INDEX_ALIAS_ROLLOVER_COMPLETE"
)

// Reindex types.
const (
	ReindexFull    = "full"
	ReindexPartial = "partial"
)

// LockExpiry is how long a lock survives without a heartbeat.
const LockExpiry = 5 * time.Minute

// ErrLockHeld is returned when another writer holds the reindex lock.
var ErrLockHeld = errors.New("reindex lock held by another writer")

// Record is one audit-log document. Timestamps are epoch millis.
type Record struct {
	AliasIndex      string `json:"alias_index"`
	Index           string `json:"index"`
	Dataset         string `json:"dataset"`
	DatasetVersion  string `json:"dataset_version"`
	SoftwareVersion string `json:"software_version"`
	MessageType     string `json:"message_type"`
	ReindexType     string `json:"reindex_type"`
	Writer          string `json:"writer"`
	Timestamp       int64  `json:"timestamp"`
	Heartbeat       int64  `json:"heartbeat_timestamp,omitempty"`
}

type storedRecord struct {
	Record
	docID string
}

// Log reads and writes audit records for one audit-log index.
type Log struct {
	provider index.Provider
	name     string
	writer   string
	now      func() time.Time
}

// New creates a Log with a fresh writer id identifying this replica.
func New(provider index.Provider, prefix string) *Log {
	return &Log{
		provider: provider,
		name:     index.AuditLogIndex(prefix),
		writer:   ulid.Make().String(),
		now:      time.Now,
	}
}

// Writer returns the id this replica signs its records with.
func (l *Log) Writer() string {
	return l.writer
}

// EnsureIndex creates the audit-log index if it does not exist yet.
func (l *Log) EnsureIndex(ctx context.Context) error {
	exists, err := l.provider.IndexExists(ctx, l.name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return l.provider.CreateIndex(ctx, l.name, index.AuditLogMapping())
}

// Append writes a record without participating in locking, e.g. the
// rollover-complete marker.
func (l *Log) Append(ctx context.Context, rec Record) error {
	rec.Writer = l.writer
	rec.Timestamp = l.now().UnixMilli()
	_, err := l.provider.IndexDoc(ctx, l.name, "", rec)
	return err
}

// recent returns the newest records for a target index, newest first.
func (l *Log) recent(ctx context.Context, indexName string, size int) ([]storedRecord, error) {
	body := map[string]any{
		"query": map[string]any{"term": map[string]any{"index": indexName}},
		"sort":  []any{map[string]any{"timestamp": "desc"}},
		"size":  size,
	}
	res, err := l.provider.Search(ctx, l.name, body)
	if err != nil {
		if errors.Is(err, index.ErrIndexNotReady) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading audit log: %w", err)
	}
	out := make([]storedRecord, 0, len(res.Hits))
	for _, hit := range res.Hits {
		var rec Record
		if err := json.Unmarshal(hit.Source, &rec); err != nil {
			return nil, fmt.Errorf("parsing audit record %s: %w", hit.ID, err)
		}
		out = append(out, storedRecord{Record: rec, docID: hit.ID})
	}
	return out, nil
}

// locked classifies the head record of an index's audit history.
func (l *Log) locked(rec Record) bool {
	now := l.now().UnixMilli()
	expiry := LockExpiry.Milliseconds()
	switch rec.MessageType {
	case MessageLockTentative:
		return now-rec.Timestamp < expiry
	case MessageStarted:
		beat := rec.Heartbeat
		if beat == 0 {
			beat = rec.Timestamp
		}
		return now-beat < expiry
	default:
		// A terminal record after REINDEX_STARTED frees the slot regardless
		// of heartbeat age.
		return false
	}
}

// Lock is an acquired reindex lock. Heartbeat keeps it alive; Release ends
// it with a terminal record.
type Lock struct {
	log       *Log
	rec       Record
	startedID string
}

// AcquireLock runs the two-phase tentative/confirm protocol for the index
// named in rec.Index. The backend offers no compare-and-swap across inserts,
// so every contender writes a tentative record and the eventually-consistent
// write order picks exactly one winner.
func (l *Log) AcquireLock(ctx context.Context, rec Record) (*Lock, error) {
	head, err := l.recent(ctx, rec.Index, 1)
	if err != nil {
		return nil, err
	}
	if len(head) > 0 && l.locked(head[0].Record) {
		return nil, fmt.Errorf("index %s: %w", rec.Index, ErrLockHeld)
	}

	tentative := rec
	tentative.MessageType = MessageLockTentative
	tentative.Writer = l.writer
	tentative.Timestamp = l.now().UnixMilli()
	ownID, err := l.provider.IndexDoc(ctx, l.name, "", tentative)
	if err != nil {
		return nil, fmt.Errorf("writing tentative lock: %w", err)
	}
	if err := l.provider.Refresh(ctx, l.name); err != nil {
		return nil, fmt.Errorf("refreshing audit log: %w", err)
	}

	recent, err := l.recent(ctx, rec.Index, 50)
	if err != nil {
		return nil, err
	}

	// Walk newest to older and collect the contiguous run of tentative
	// records at the head. The winner is the oldest record of that run,
	// tie-broken by document id so all contenders agree. Tentative records
	// past the expiry window belong to crashed writers and never win.
	var winner *storedRecord
	now := l.now().UnixMilli()
	for i := range recent {
		r := &recent[i]
		if r.MessageType != MessageLockTentative {
			break
		}
		if now-r.Timestamp >= LockExpiry.Milliseconds() {
			continue
		}
		if winner == nil || r.Timestamp < winner.Timestamp ||
			(r.Timestamp == winner.Timestamp && r.docID < winner.docID) {
			winner = r
		}
	}
	if winner == nil || winner.docID != ownID {
		slog.Debug("lost reindex lock race", "index", rec.Index, "writer", l.writer)
		return nil, fmt.Errorf("index %s: %w", rec.Index, ErrLockHeld)
	}

	started := rec
	started.MessageType = MessageStarted
	started.Writer = l.writer
	started.Timestamp = l.now().UnixMilli()
	started.Heartbeat = started.Timestamp
	startedID, err := l.provider.IndexDoc(ctx, l.name, "", started)
	if err != nil {
		return nil, fmt.Errorf("confirming lock: %w", err)
	}
	if err := l.provider.Refresh(ctx, l.name); err != nil {
		return nil, fmt.Errorf("refreshing audit log: %w", err)
	}
	slog.Info("reindex lock acquired", "index", rec.Index, "writer", l.writer)
	return &Lock{log: l, rec: rec, startedID: startedID}, nil
}

// Heartbeat refreshes the lock's liveness timestamp.
func (k *Lock) Heartbeat(ctx context.Context) error {
	partial := map[string]any{"heartbeat_timestamp": k.log.now().UnixMilli()}
	if err := k.log.provider.UpdateDoc(ctx, k.log.name, k.startedID, partial); err != nil {
		return fmt.Errorf("lock heartbeat: %w", err)
	}
	return nil
}

// Release ends the lock with a terminal record. Failure to write the record
// is logged; heartbeat expiry recovers the slot either way.
func (k *Lock) Release(ctx context.Context, success bool) {
	rec := k.rec
	rec.MessageType = MessageFailed
	if success {
		rec.MessageType = MessageCompleted
	}
	if err := k.log.Append(ctx, rec); err != nil {
		slog.Error("failed to release reindex lock", "index", rec.Index, "error", err)
		return
	}
	if err := k.log.provider.Refresh(ctx, k.log.name); err != nil {
		slog.Warn("failed to refresh audit log after release", "error", err)
	}
}
