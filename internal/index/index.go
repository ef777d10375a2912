package index

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/teemow/calpane/internal/instrumentation"
	"github.com/teemow/calpane/internal/logging"
)

// CreatedEventsKey is the store key holding the JSON array of created event ids.
const CreatedEventsKey = "createdEventIds"

// Index records which remote calendar events were created by this client.
//
// It is advisory: storage failures never reach the caller. A read that fails
// or finds corrupt data behaves as an empty index and a failed write is logged
// and dropped.
type Index struct {
	mu      sync.Mutex
	store   Store
	key     string
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger used for storage failures.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(i *Index) {
		i.metrics = m
	}
}

// WithKey overrides the store key (default: CreatedEventsKey).
func WithKey(key string) Option {
	return func(i *Index) {
		if key != "" {
			i.key = key
		}
	}
}

// New creates an index backed by store.
func New(store Store, opts ...Option) *Index {
	i := &Index{
		store:  store,
		key:    CreatedEventsKey,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = logging.WithComponent(i.logger, "index")
	return i
}

// Add records id as created by this client. Adding a present or empty id is a no-op.
func (i *Index) Add(ctx context.Context, id string) {
	if id == "" {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	ids, ok := i.read(ctx)
	if !ok {
		i.logger.Warn("created index unavailable, not recording id", logging.EventID(id))
		i.metrics.RecordIndexMutation(ctx, instrumentation.IndexAdd, instrumentation.StatusError)
		return
	}
	if slices.Contains(ids, id) {
		return
	}
	i.write(ctx, instrumentation.IndexAdd, append(ids, id))
}

// Remove forgets id. Removing an absent or empty id is a no-op.
func (i *Index) Remove(ctx context.Context, id string) {
	if id == "" {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	ids, ok := i.read(ctx)
	if !ok {
		i.logger.Warn("created index unavailable, not removing id", logging.EventID(id))
		i.metrics.RecordIndexMutation(ctx, instrumentation.IndexRemove, instrumentation.StatusError)
		return
	}
	idx := slices.Index(ids, id)
	if idx == -1 {
		return
	}
	i.write(ctx, instrumentation.IndexRemove, slices.Delete(ids, idx, idx+1))
}

// Contains reports whether id was recorded as created by this client.
func (i *Index) Contains(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	ids, _ := i.read(ctx)
	return slices.Contains(ids, id)
}

// List returns the recorded ids in insertion order.
func (i *Index) List(ctx context.Context) []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	ids, _ := i.read(ctx)
	return ids
}

// Clear removes every recorded id.
func (i *Index) Clear(ctx context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.write(ctx, instrumentation.IndexRemove, []string{})
}

// read never fails: absent, unreadable and corrupt data all yield an empty
// slice. ok is false when the store itself returned an error, so callers
// must not write back over data they could not see.
func (i *Index) read(ctx context.Context) (ids []string, ok bool) {
	raw, found, err := i.store.Get(ctx, i.key)
	if err != nil {
		i.logger.Debug("created index unreadable, treating as empty", logging.Err(err))
		i.metrics.RecordIndexReadFailure(ctx)
		return []string{}, false
	}
	if !found || raw == "" {
		return []string{}, true
	}

	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		i.logger.Debug("created index corrupt, treating as empty", logging.Err(err))
		i.metrics.RecordIndexReadFailure(ctx)
		return []string{}, true
	}
	if ids == nil {
		return []string{}, true
	}
	return ids, true
}

func (i *Index) write(ctx context.Context, op string, ids []string) {
	data, err := json.Marshal(ids)
	if err != nil {
		i.logger.Warn("failed to encode created index", logging.Err(err))
		i.metrics.RecordIndexMutation(ctx, op, instrumentation.StatusError)
		return
	}
	if err := i.store.Set(ctx, i.key, string(data)); err != nil {
		i.logger.Warn("failed to persist created index", logging.Operation(op), logging.Err(err))
		i.metrics.RecordIndexMutation(ctx, op, instrumentation.StatusError)
		return
	}
	i.metrics.RecordIndexMutation(ctx, op, instrumentation.StatusSuccess)
}
