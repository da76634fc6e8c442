package extensions

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"vscmirror/internal/utils"
)

const defaultPollInterval = 10 * time.Second

// Watcher signals when the sync process rewrites the updated marker in the
// artifact root. It prefers filesystem notifications and falls back to
// polling the marker's modification time.
type Watcher struct {
	root         string
	pollInterval time.Duration
	logger       *slog.Logger
	signals      chan struct{}
}

func NewWatcher(root string, pollInterval time.Duration, logger *slog.Logger) *Watcher {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		root:         root,
		pollInterval: pollInterval,
		logger:       logger,
		signals:      make(chan struct{}, 1),
	}
}

// Signals delivers at most one pending notification at a time.
func (w *Watcher) Signals() <-chan struct{} { return w.signals }

func (w *Watcher) notify() {
	select {
	case w.signals <- struct{}{}:
	default:
	}
}

func (w *Watcher) marker() string {
	return filepath.Join(w.root, utils.UpdatedSignalFile)
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err == nil {
		err = fw.Add(w.root)
		if err != nil {
			fw.Close()
		}
	}
	if err != nil {
		w.logger.Warn("filesystem notifications unavailable, polling", "root", w.root, "error", err)
		return w.Poll(ctx)
	}
	defer fw.Close()

	w.logger.Debug("watching for sync updates", "marker", w.marker())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return w.Poll(ctx)
			}
			if filepath.Base(ev.Name) != utils.UpdatedSignalFile {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.logger.Info("sync update detected", "event", ev.Op.String())
				w.notify()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return w.Poll(ctx)
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// Poll compares the marker's modification time and size on every tick.
func (w *Watcher) Poll(ctx context.Context) error {
	last, _ := w.stat()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cur, ok := w.stat()
			if !ok || cur.same(last) {
				continue
			}
			last = cur
			w.logger.Info("sync update detected", "event", "poll")
			w.notify()
		}
	}
}

type markerStat struct {
	modTime time.Time
	size    int64
}

func (s markerStat) same(o markerStat) bool {
	return s.modTime.Equal(o.modTime) && s.size == o.size
}

func (w *Watcher) stat() (markerStat, bool) {
	info, err := os.Stat(w.marker())
	if err != nil {
		return markerStat{}, false
	}
	return markerStat{modTime: info.ModTime(), size: info.Size()}, true
}
