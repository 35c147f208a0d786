package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const testDebounce = 100 * time.Millisecond

type recorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *recorder) onChange(paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, paths)
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.batches...)
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func txtOnly(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".txt")
}

func startWatcher(t *testing.T, dir string, recursive bool, rec *recorder) *Watcher {
	t.Helper()
	w := NewWatcher(dir, recursive, txtOnly, rec.onChange, WithDebounce(testDebounce))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_DebouncesBurstIntoOneBatch(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, dir, true, rec)

	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a, "one")
	writeFile(t, a, "two")
	writeFile(t, b, "three")

	waitFor(t, func() bool { return len(rec.snapshot()) >= 1 })
	time.Sleep(3 * testDebounce)
	batches := rec.snapshot()
	if len(batches) != 1 {
		t.Fatalf("expected one batch, got %v", batches)
	}
	if len(batches[0]) != 2 || batches[0][0] != a || batches[0][1] != b {
		t.Errorf("batch = %v, want [%s %s]", batches[0], a, b)
	}
}

func TestWatcher_IgnoresNonMatchingAndHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, dir, true, rec)

	writeFile(t, filepath.Join(dir, "image.png"), "x")
	writeFile(t, filepath.Join(dir, ".swap.txt"), "x")
	time.Sleep(4 * testDebounce)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("expected no batches, got %v", got)
	}
}

func TestWatcher_RemoveTriggersChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	writeFile(t, path, "bye")
	rec := &recorder{}
	startWatcher(t, dir, true, rec)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	if got := rec.snapshot()[0]; len(got) != 1 || got[0] != path {
		t.Errorf("batch = %v", got)
	}
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, dir, true, rec)

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// give the watcher time to add the new directory
	time.Sleep(testDebounce / 2)
	nested := filepath.Join(sub, "nested.txt")
	writeFile(t, nested, "hello")

	waitFor(t, func() bool {
		for _, b := range rec.snapshot() {
			for _, p := range b {
				if p == nested {
					return true
				}
			}
		}
		return false
	})
}

func TestWatcher_StopDropsPendingAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := NewWatcher(dir, true, txtOnly, rec.onChange, WithDebounce(time.Hour))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "a.txt"), "x")
	time.Sleep(testDebounce)
	w.Stop()
	w.Stop()
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("expected no batches after stop, got %v", got)
	}
}

func TestWatcher_ContextCancelStops(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := NewWatcher(dir, false, nil, rec.onChange, WithDebounce(testDebounce))
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	waitFor(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return !w.started
	})
}

func TestWatcher_StartMissingRoot(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing"), true, nil, nil)
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Fatal("expected error for missing root")
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func TestHidden(t *testing.T) {
	if !hidden("/kb", "/kb/.git/config") {
		t.Error("expected .git path to be hidden")
	}
	if hidden("/kb", "/kb/it/vpn.txt") || hidden("/kb", "/kb") {
		t.Error("expected visible path")
	}
}
