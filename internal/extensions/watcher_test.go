package extensions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vscmirror/internal/utils"
)

func touchMarker(t *testing.T, root string, n int) {
	t.Helper()
	data := []byte(fmt.Sprintf(`{"updated": %d}`, n))
	if err := os.WriteFile(filepath.Join(root, utils.UpdatedSignalFile), data, 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
}

func TestWatcherNotifyCoalesces(t *testing.T) {
	w := NewWatcher(t.TempDir(), time.Second, quietLogger())
	w.notify()
	w.notify()
	w.notify()
	if len(w.signals) != 1 {
		t.Fatalf("expected one pending signal, got %d", len(w.signals))
	}
}

func TestWatcherPollDetectsMarker(t *testing.T) {
	root := t.TempDir()
	w := NewWatcher(root, 20*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Poll(ctx)

	time.Sleep(50 * time.Millisecond)
	touchMarker(t, root, 1)

	select {
	case <-w.Signals():
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not signal")
	}
}

func TestWatcherNotificationsDetectMarker(t *testing.T) {
	root := t.TempDir()
	w := NewWatcher(root, time.Hour, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	deadline := time.After(5 * time.Second)
	for n := 0; ; n++ {
		touchMarker(t, root, n)
		select {
		case <-w.Signals():
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("watcher did not signal")
		}
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	w := NewWatcher(root, time.Hour, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	os.WriteFile(filepath.Join(root, "recommendations.json"), []byte(`{}`), 0o644)

	select {
	case <-w.Signals():
		t.Fatal("unexpected signal for unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}
