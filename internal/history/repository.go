// Package history keeps a read-only snapshot of past analyses fetched in
// bulk from the diagnosis service.
package history

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cropdx/leafscan/internal/diagnosis"
	"github.com/cropdx/leafscan/internal/errors"
	"github.com/cropdx/leafscan/internal/logger"
)

const componentName = "history"

// Source is the remote store of history records.
type Source interface {
	ListHistory(ctx context.Context) ([]diagnosis.HistoryRecord, error)
	ClearHistory(ctx context.Context) error
}

// RefreshFunc observes every completed refresh or clear. records is the
// snapshot size after the call; err is nil on success.
type RefreshFunc func(records int, err error)

type snapshot struct {
	records     []diagnosis.HistoryRecord
	seq         uint64
	refreshedAt time.Time
}

// Repository holds the latest history snapshot. Readers never observe a
// partially applied refresh. Safe for concurrent use.
type Repository struct {
	source Source
	log    logger.Logger

	current atomic.Pointer[snapshot]
	issued  atomic.Uint64

	// applyMu serializes the compare-and-replace of the snapshot.
	applyMu   sync.Mutex
	observers []RefreshFunc
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger for the repository.
func WithLogger(l logger.Logger) Option {
	return func(r *Repository) {
		r.log = l
	}
}

// NewRepository creates a repository with no snapshot loaded.
func NewRepository(source Source, opts ...Option) *Repository {
	r := &Repository{
		source: source,
		log:    logger.Global().Module(componentName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnRefresh registers an observer for refresh and clear completions.
func (r *Repository) OnRefresh(fn RefreshFunc) {
	if fn == nil {
		return
	}
	r.applyMu.Lock()
	defer r.applyMu.Unlock()
	r.observers = append(r.observers, fn)
}

// Refresh fetches the full record set and replaces the snapshot.
//
// Each call takes a sequence token when issued. A response older than the
// snapshot already applied, including one issued before a completed ClearAll,
// is discarded and the newer snapshot is returned instead. On failure the
// previous snapshot is kept and a remote-fetch error is returned.
func (r *Repository) Refresh(ctx context.Context) ([]diagnosis.HistoryRecord, error) {
	seq := r.issued.Add(1)
	start := time.Now()

	records, err := r.source.ListHistory(ctx)
	if err != nil {
		err = asCategory(err, errors.CategoryRemoteFetch, "Could not load history: ", "list_history")
		r.log.Warn("History refresh failed",
			logger.Uint64("seq", seq),
			logger.Error(err))
		r.notify(len(r.Snapshot()), err)
		return nil, err
	}
	if records == nil {
		records = []diagnosis.HistoryRecord{}
	}

	applied := r.apply(&snapshot{records: records, seq: seq, refreshedAt: time.Now()})
	if !applied {
		r.log.Debug("Discarding out-of-order history response", logger.Uint64("seq", seq))
		return r.Snapshot(), nil
	}

	r.log.Debug("History refreshed",
		logger.Int("records", len(records)),
		logger.Uint64("seq", seq),
		logger.Duration("took", time.Since(start)))
	r.notify(len(records), nil)
	return slices.Clone(records), nil
}

// ClearAll deletes every record on the service. The local snapshot is
// emptied only when the service confirms; on failure it is left untouched
// and a remote-clear error is returned.
func (r *Repository) ClearAll(ctx context.Context) error {
	if err := r.source.ClearHistory(ctx); err != nil {
		err = asCategory(err, errors.CategoryRemoteClear, "Could not clear history: ", "clear_history")
		r.log.Warn("History clear failed", logger.Error(err))
		r.notify(len(r.Snapshot()), err)
		return err
	}

	// Token taken at completion so refreshes issued before the clear finished
	// cannot resurrect deleted records.
	seq := r.issued.Add(1)
	r.apply(&snapshot{records: []diagnosis.HistoryRecord{}, seq: seq, refreshedAt: time.Now()})

	r.log.Info("History cleared", logger.Uint64("seq", seq))
	r.notify(0, nil)
	return nil
}

// Snapshot returns a copy of the current records, or nil before the first load.
func (r *Repository) Snapshot() []diagnosis.HistoryRecord {
	s := r.current.Load()
	if s == nil {
		return nil
	}
	return slices.Clone(s.records)
}

// Loaded reports whether the snapshot has ever been populated by the service.
func (r *Repository) Loaded() bool {
	return r.current.Load() != nil
}

// LastRefreshed returns when the current snapshot was applied.
func (r *Repository) LastRefreshed() time.Time {
	s := r.current.Load()
	if s == nil {
		return time.Time{}
	}
	return s.refreshedAt
}

// apply installs next unless a newer snapshot is already in place.
func (r *Repository) apply(next *snapshot) bool {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	if cur := r.current.Load(); cur != nil && cur.seq > next.seq {
		return false
	}
	r.current.Store(next)
	return true
}

func (r *Repository) notify(records int, err error) {
	r.applyMu.Lock()
	observers := slices.Clone(r.observers)
	r.applyMu.Unlock()

	for _, fn := range observers {
		fn(records, err)
	}
}

func asCategory(err error, category errors.ErrorCategory, prefix, operation string) error {
	if errors.IsCategory(err, category) {
		return err
	}
	return errors.New(err).
		Component(componentName).
		Category(category).
		UserMessage(prefix+errors.UserMessage(err)).
		Context("operation", operation).
		Build()
}
