package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"postsvc/internal/cache"
	"postsvc/internal/es"
	"postsvc/internal/util"
)

// Repository translates post load/save into event store operations. Loads
// go snapshot-first with a tail replay; saves append uncommitted events
// sequentially, each carrying the revision it expects the stream to be at.
type Repository struct {
	client            *es.Client
	cache             *cache.TTLCache[PostState]
	invalidator       *cache.Invalidator
	snapshotFrequency int
	logger            *slog.Logger
}

type RepositoryConfig struct {
	SnapshotFrequency int
	CacheTTL          time.Duration
}

type RepositoryOption func(*Repository, *[]cache.Option[PostState])

// UseCacheTimestamp injects the clock the read cache expires entries by.
func UseCacheTimestamp(tp util.Timestamp) RepositoryOption {
	return func(_ *Repository, cacheOpts *[]cache.Option[PostState]) {
		*cacheOpts = append(*cacheOpts, cache.UseTimestamp[PostState](tp))
	}
}

// WithInvalidator enables cross-instance cache eviction broadcasts.
func WithInvalidator(inv *cache.Invalidator) RepositoryOption {
	return func(r *Repository, _ *[]cache.Option[PostState]) {
		r.invalidator = inv
	}
}

func NewRepository(client *es.Client, cfg RepositoryConfig, options ...RepositoryOption) *Repository {
	if cfg.SnapshotFrequency <= 0 {
		cfg.SnapshotFrequency = 10
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}

	r := &Repository{
		client:            client,
		snapshotFrequency: cfg.SnapshotFrequency,
		logger:            slog.Default().With("component", "post-repository"),
	}

	var cacheOpts []cache.Option[PostState]
	for _, opt := range options {
		opt(r, &cacheOpts)
	}
	r.cache = cache.New[PostState](cfg.CacheTTL, cacheOpts...)

	return r
}

// GetByID loads a post. Cache hit: no network call. Cache miss: snapshot
// first, then only the events after the snapshot's version, replayed on
// top. Returns nil when the post never existed.
func (r *Repository) GetByID(ctx context.Context, postID string) (*PostAggregate, error) {
	if state, ok := r.cache.Get(postID); ok {
		return FromState(state), nil
	}

	var agg *PostAggregate
	fromRevision := int64(-1)

	snap, err := r.client.LoadSnapshot(ctx, PostType, postID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot for post %s: %w", postID, err)
	}
	if snap != nil {
		var state PostState
		if err := decodeData(snap.State, &state); err != nil {
			return nil, fmt.Errorf("decode snapshot for post %s: %w", postID, err)
		}
		if state.Version != snap.Version {
			// A snapshot whose embedded version disagrees with its
			// envelope cannot be trusted; fall back to full replay.
			r.logger.Warn("snapshot version mismatch, replaying from start",
				"post_id", postID, "state_version", state.Version, "snapshot_version", snap.Version)
		} else {
			agg = FromState(state)
			fromRevision = int64(state.Version)
		}
	}

	sawEvents := false
	for {
		events, err := r.client.ReadStream(ctx, StreamName(postID), es.ReadStreamOptions{
			FromRevision:    fromRevision,
			MaxCount:        es.MaxReadCount,
			IncludeMetadata: true,
		})
		if err != nil {
			return nil, fmt.Errorf("read stream for post %s: %w", postID, err)
		}
		if len(events) == 0 {
			break
		}
		sawEvents = true

		if agg == nil {
			if agg, err = FromHistory(events); err != nil {
				return nil, fmt.Errorf("rebuild post %s: %w", postID, err)
			}
		} else if err := agg.Replay(events...); err != nil {
			return nil, fmt.Errorf("replay tail for post %s: %w", postID, err)
		}

		if len(events) < es.MaxReadCount {
			break
		}
		if fromRevision < 0 {
			fromRevision = 0
		}
		fromRevision += int64(len(events))
	}

	if agg == nil && !sawEvents {
		return nil, nil
	}

	r.cache.Set(postID, agg.State())
	return agg, nil
}

type SaveResult struct {
	EventsAppended int  `json:"events_appended"`
	SnapshotTaken  bool `json:"snapshot_taken"`
	Version        int  `json:"version"`
}

// Save appends the post's uncommitted events to its stream in order. A
// failed append aborts the save; events already appended stay in the
// stream, so callers retry the whole operation. A revision conflict means
// another writer got there first: reload and retry.
func (r *Repository) Save(ctx context.Context, p *PostAggregate) (SaveResult, error) {
	pending := p.UncommittedEvents()
	if len(pending) == 0 {
		return SaveResult{Version: p.Version}, nil
	}

	stream := StreamName(p.ID)
	appended := 0
	for _, event := range pending {
		// The stream must hold exactly version-1 events before this
		// append, otherwise a concurrent writer has interleaved.
		expectedRevision := int64(event.Metadata.Version) - 1
		if _, err := r.client.AppendEvent(ctx, stream, event, expectedRevision); err != nil {
			if errors.Is(err, es.ErrConcurrency) {
				r.cache.Delete(p.ID)
			}
			return SaveResult{EventsAppended: appended}, fmt.Errorf("save post %s: %w", p.ID, err)
		}
		appended++
	}

	p.Commit()
	result := SaveResult{EventsAppended: appended, Version: p.Version}

	if p.NeedsSnapshot(r.snapshotFrequency) {
		// Snapshots only shorten replay; a failure here must not fail
		// the save.
		if err := r.client.CreateSnapshot(ctx, PostType, p.ID, p.State(), p.Version); err != nil {
			r.logger.Warn("snapshot creation failed", "post_id", p.ID, "version", p.Version, "error", err)
		} else {
			result.SnapshotTaken = true
		}
	}

	r.cache.Set(p.ID, p.State())

	if r.invalidator != nil {
		if err := r.invalidator.Publish(ctx, p.ID); err != nil {
			r.logger.Warn("cache invalidation publish failed", "post_id", p.ID, "error", err)
		}
	}

	return result, nil
}

// Exists treats deleted posts as non-existent.
func (r *Repository) Exists(ctx context.Context, postID string) (bool, error) {
	p, err := r.GetByID(ctx, postID)
	if err != nil {
		return false, err
	}
	return p != nil && !p.IsDeleted, nil
}

// Version returns 0 for posts that do not exist.
func (r *Repository) Version(ctx context.Context, postID string) (int, error) {
	p, err := r.GetByID(ctx, postID)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, nil
	}
	return p.Version, nil
}

type RepositoryStats struct {
	Client es.Stats    `json:"client"`
	Cache  cache.Stats `json:"cache"`
}

func (r *Repository) Stats() RepositoryStats {
	return RepositoryStats{
		Client: r.client.Stats(),
		Cache:  r.cache.Stats(),
	}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.client.Health(ctx)
}

func (r *Repository) ClearCache() {
	r.cache.Clear()
}

// ListenInvalidations blocks, evicting cache entries saved by other
// instances, until the context is cancelled. No-op without an invalidator.
func (r *Repository) ListenInvalidations(ctx context.Context) {
	if r.invalidator == nil {
		return
	}
	r.invalidator.Listen(ctx, r.cache.Delete)
}
