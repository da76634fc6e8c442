package extensions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"vscmirror/internal/metrics"
	"vscmirror/internal/models"
	"vscmirror/internal/utils"
)

const (
	defaultLoadConcurrency = 8
	defaultRefreshInterval = time.Hour
)

// State is the lifecycle position of an Index.
type State int32

const (
	StateEmpty State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Snapshot is an immutable view of every loaded extension. Readers may hold
// on to it for as long as they like; a refresh publishes a new one instead
// of mutating it.
type Snapshot struct {
	byIdentity map[string]*models.ExtensionRecord
	ordered    []*models.ExtensionRecord
	LoadedAt   time.Time
}

func newSnapshot(records map[string]*models.ExtensionRecord, loadedAt time.Time) *Snapshot {
	ordered := make([]*models.ExtensionRecord, 0, len(records))
	for _, rec := range records {
		ordered = append(ordered, rec)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Identity < ordered[j].Identity })
	return &Snapshot{byIdentity: records, ordered: ordered, LoadedAt: loadedAt}
}

// NewSnapshot builds a snapshot from records, keyed by identity.
func NewSnapshot(records ...*models.ExtensionRecord) *Snapshot {
	m := make(map[string]*models.ExtensionRecord, len(records))
	for _, rec := range records {
		m[rec.Identity] = rec
	}
	return newSnapshot(m, time.Now())
}

func (s *Snapshot) Len() int { return len(s.ordered) }

// Records returns the extensions ordered by identity. The slice must not be
// modified.
func (s *Snapshot) Records() []*models.ExtensionRecord { return s.ordered }

func (s *Snapshot) Lookup(identity string) (*models.ExtensionRecord, bool) {
	rec, ok := s.byIdentity[identity]
	return rec, ok
}

// Recommended returns the records flagged as recommended.
func (s *Snapshot) Recommended() []*models.ExtensionRecord {
	var out []*models.ExtensionRecord
	for _, rec := range s.ordered {
		if rec.Recommended {
			out = append(out, rec)
		}
	}
	return out
}

// IndexOptions configures an Index.
type IndexOptions struct {
	ExtensionsDir     string
	URLRoot           string
	IncludePrerelease bool
	Concurrency       int
	Logger            *slog.Logger
	Metrics           metrics.IndexMetrics
}

// Index holds the current gallery snapshot and rebuilds it from disk on
// demand. Concurrent refreshes collapse into one.
type Index struct {
	opts    IndexOptions
	store   *ManifestStore
	logger  *slog.Logger
	metrics metrics.IndexMetrics

	current atomic.Pointer[Snapshot]
	state   atomic.Int32
	group   singleflight.Group
}

func NewIndex(opts IndexOptions) *Index {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultLoadConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	idx := &Index{
		opts:    opts,
		store:   NewManifestStore(opts.URLRoot, logger),
		logger:  logger,
		metrics: m,
	}
	idx.current.Store(newSnapshot(map[string]*models.ExtensionRecord{}, time.Time{}))
	return idx
}

// Snapshot returns the most recently published snapshot. It is never nil.
func (i *Index) Snapshot() *Snapshot { return i.current.Load() }

func (i *Index) State() State { return State(i.state.Load()) }

// Refresh rebuilds the snapshot from the extensions directory and publishes
// it. A call made while a refresh is running waits for that refresh and
// shares its result. On failure the previous snapshot stays in place.
func (i *Index) Refresh(ctx context.Context) (int, error) {
	v, err, _ := i.group.Do("refresh", func() (interface{}, error) {
		return i.refresh(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (i *Index) refresh(ctx context.Context) (int, error) {
	start := time.Now()
	prev := i.State()
	i.state.Store(int32(StateLoading))

	records, err := i.load(ctx)
	if err != nil {
		i.state.Store(int32(prev))
		i.metrics.ObserveRefresh("error", time.Since(start).Seconds())
		return 0, err
	}

	i.current.Store(newSnapshot(records, time.Now()))
	i.state.Store(int32(StateReady))
	i.metrics.ObserveRefresh("ok", time.Since(start).Seconds())
	i.metrics.SetExtensions(len(records))
	i.logger.Info("gallery index refreshed", "extensions", len(records), "duration", time.Since(start).String())
	return len(records), nil
}

func (i *Index) load(ctx context.Context) (map[string]*models.ExtensionRecord, error) {
	dirs, err := utils.SubDirectories(i.opts.ExtensionsDir)
	if err != nil {
		return nil, fmt.Errorf("list extensions: %w", err)
	}

	var mu sync.Mutex
	records := make(map[string]*models.ExtensionRecord, len(dirs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.opts.Concurrency)
	for _, name := range dirs {
		dir := filepath.Join(i.opts.ExtensionsDir, name)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := i.store.LoadLatest(dir)
			if err != nil {
				if errors.Is(err, ErrCorrupt) {
					i.logger.Warn("skipping extension", "dir", dir, "error", err)
				} else {
					i.logger.Debug("skipping extension", "dir", dir, "error", err)
				}
				return nil
			}
			if !i.opts.IncludePrerelease {
				rec.Versions = LatestReleaseVersions(rec)
			}

			mu.Lock()
			defer mu.Unlock()
			if _, ok := records[rec.Identity]; ok {
				i.logger.Warn("duplicate extension identity", "identity", rec.Identity, "dir", dir)
			}
			records[rec.Identity] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// Run refreshes immediately, then on every tick of interval and whenever a
// value arrives on signals. It returns when ctx is done.
func (i *Index) Run(ctx context.Context, interval time.Duration, signals <-chan struct{}) {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	i.refreshAndLog(ctx, "startup")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.refreshAndLog(ctx, "timer")
		case _, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			i.refreshAndLog(ctx, "signal")
		}
	}
}

func (i *Index) refreshAndLog(ctx context.Context, trigger string) {
	if _, err := i.Refresh(ctx); err != nil && ctx.Err() == nil {
		i.logger.Error("gallery index refresh failed", "trigger", trigger, "error", err)
	}
}
