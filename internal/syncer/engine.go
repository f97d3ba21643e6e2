// Package syncer decides, per inbound request, whether the local cache is
// fresh, needs an incremental merge, or needs a full replace, and carries
// the chosen sync out against the configured upstream source.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kwhalen/projectmap/internal/notify"
	"github.com/kwhalen/projectmap/internal/record"
	"github.com/kwhalen/projectmap/internal/source"
	"github.com/kwhalen/projectmap/internal/storage"
)

// Sync metadata keys. Values are wall-clock millis as decimal strings,
// except viewHash which is a hex digest.
const (
	MetaLastSync       = "lastSync"
	MetaLastFullResync = "lastFullResync"
	MetaViewHash       = "viewHash"
)

// Options are the caller's per-request sync flags.
type Options struct {
	ForceFull bool // force a full replace regardless of intervals
	ForceSync bool // treat the TTL as expired
}

// Result reports what a sync evaluation did. A fetch failure is reported
// here (Synced=false, Error set), never as a Go error: the cache keeps
// serving last-known-good data.
type Result struct {
	Synced      bool   `json:"synced"`
	Full        bool   `json:"full,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Mode        string `json:"mode"`
	Changed     int    `json:"changed"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Config holds the scheduler intervals and the view identity used for
// fingerprinting.
type Config struct {
	TTL                time.Duration // freshness window for any sync
	FullResyncInterval time.Duration // how often a full replace is due
	View               string        // upstream view name, part of the fingerprint
}

// Engine orchestrates source, store and notifier.
type Engine struct {
	store *storage.Store
	src   source.Source
	cfg   Config
	hub   *notify.Hub
	now   func() time.Time

	group singleflight.Group
}

// New creates an Engine. hub may be nil when no push subscribers exist
// (one-shot CLI sync).
func New(store *storage.Store, src source.Source, cfg Config, hub *notify.Hub) *Engine {
	return &Engine{
		store: store,
		src:   src,
		cfg:   cfg,
		hub:   hub,
		now:   time.Now,
	}
}

// SyncIfStale evaluates the cache's freshness and syncs if needed.
//
// Concurrent callers with the same flags collapse into one in-flight sync,
// so a stampede of stale requests costs one upstream fetch. The returned
// error is reserved for persistence failures; without a working store there
// is nothing meaningful to serve.
func (e *Engine) SyncIfStale(ctx context.Context, opts Options) (Result, error) {
	key := fmt.Sprintf("%s/full=%t/force=%t", e.src.Mode(), opts.ForceFull, opts.ForceSync)
	v, err, _ := e.group.Do(key, func() (any, error) {
		return e.evaluate(ctx, opts)
	})
	if err != nil {
		return Result{Mode: e.src.Mode()}, err
	}
	return v.(Result), nil
}

func (e *Engine) evaluate(ctx context.Context, opts Options) (Result, error) {
	mode := e.src.Mode()
	now := e.now()

	lastSync, err := e.metaMillis(MetaLastSync)
	if err != nil {
		return Result{}, err
	}
	lastFull, err := e.metaMillis(MetaLastFullResync)
	if err != nil {
		return Result{}, err
	}

	ttlExpired := opts.ForceSync || lastSync == 0 || now.Sub(millisTime(lastSync)) > e.cfg.TTL
	fullDue := lastFull == 0 || now.Sub(millisTime(lastFull)) > e.cfg.FullResyncInterval

	// Full wins over incremental whenever both apply: it is a superset
	// operation and the only one that prunes stale records.
	doFull := opts.ForceFull || lastSync == 0 || !e.src.Incremental() || fullDue

	if !ttlExpired && !doFull {
		return Result{Synced: false, Reason: "fresh", Mode: mode}, nil
	}

	var since *time.Time
	if !doFull {
		t := millisTime(lastSync)
		since = &t
	}

	records, err := e.src.Fetch(ctx, since)
	if err != nil {
		// A failed fetch is a complete no-op on cache and metadata.
		slog.Warn("sync fetch failed", "mode", mode, "full", doFull, "error", err)
		return Result{Synced: false, Mode: mode, Error: err.Error()}, nil
	}

	if doFull {
		fp := record.Fingerprint(records, e.cfg.View)
		if err := e.store.ReplaceAll(records); err != nil {
			return Result{}, err
		}
		nowMillis := strconv.FormatInt(now.UnixMilli(), 10)
		if err := e.store.SetMeta(MetaViewHash, fp); err != nil {
			return Result{}, err
		}
		if err := e.store.SetMeta(MetaLastFullResync, nowMillis); err != nil {
			return Result{}, err
		}
		if err := e.store.SetMeta(MetaLastSync, nowMillis); err != nil {
			return Result{}, err
		}
		e.publish()
		slog.Info("full resync complete", "mode", mode, "records", len(records), "fingerprint", fp)
		return Result{Synced: true, Full: true, Mode: mode, Changed: len(records), Fingerprint: fp}, nil
	}

	if err := e.store.UpsertProjects(records); err != nil {
		return Result{}, err
	}
	if err := e.store.SetMeta(MetaLastSync, strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		return Result{}, err
	}
	e.publish()
	slog.Info("incremental sync complete", "mode", mode, "changed", len(records))
	return Result{Synced: true, Full: false, Mode: mode, Changed: len(records)}, nil
}

func (e *Engine) publish() {
	if e.hub != nil {
		e.hub.Publish()
	}
}

// metaMillis reads a millis meta key, treating a never-written key as zero.
func (e *Engine) metaMillis(key string) (int64, error) {
	v, err := e.store.GetMeta(key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing meta %s: %w", key, err)
	}
	return n, nil
}

func millisTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}
