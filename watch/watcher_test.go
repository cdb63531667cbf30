package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestNew_Defaults(t *testing.T) {
	w, err := New(t.TempDir(), "", 0, nil)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer w.Stop()

	if w.pattern != "**/*.md" {
		t.Errorf("expected default pattern **/*.md, got %s", w.pattern)
	}
	if w.debounce != 500*time.Millisecond {
		t.Errorf("expected default debounce 500ms, got %v", w.debounce)
	}
}

func TestWatcher_PatternMatching(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"**/*.md", "a.md", true},
		{"**/*.md", "notes/a.md", true},
		{"**/*.md", "notes/deep/a.md", true},
		{"**/*.md", "a.txt", false},
		{"docs/*.md", "docs/a.md", true},
		{"docs/*.md", "docs/sub/a.md", false},
		{"**/*.{md,txt}", "notes/a.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.path, func(t *testing.T) {
			w, err := New(t.TempDir(), tt.pattern, 0, nil)
			if err != nil {
				t.Fatalf("failed to create watcher: %v", err)
			}
			defer w.Stop()

			if got := w.matches(tt.path); got != tt.want {
				t.Errorf("matches(%q) with %q = %v, want %v", tt.path, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestWatcher_FileCreation(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := New(tmpDir, "**/*.md", 50*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	testFile := filepath.Join(tmpDir, "test.md")
	if err := os.WriteFile(testFile, []byte("# Test Document\n\nContent here."), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	select {
	case event := <-w.Events():
		if event.Op != OpCreate {
			t.Errorf("expected create, got %s", event.Op)
		}
		if event.Path != "test.md" {
			t.Errorf("expected path test.md, got %s", event.Path)
		}
	case <-time.After(1 * time.Second):
		t.Error("timeout waiting for create event")
	}
}

func TestWatcher_FileModification(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.md")
	if err := os.WriteFile(testFile, []byte("# Initial Content"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	w, err := New(tmpDir, "**/*.md", 50*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	w.PrimeHashes()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(testFile, []byte("# Modified Content\n\nMore text."), 0644); err != nil {
		t.Fatalf("failed to modify test file: %v", err)
	}

	select {
	case event := <-w.Events():
		if event.Op != OpModify {
			t.Errorf("expected modify, got %s", event.Op)
		}
		if event.Path != "test.md" {
			t.Errorf("expected path test.md, got %s", event.Path)
		}
	case <-time.After(1 * time.Second):
		t.Error("timeout waiting for modify event")
	}
}

func TestWatcher_UnchangedRewriteSuppressed(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.md")
	content := "# Same Content"
	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	w, err := New(tmpDir, "**/*.md", 50*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	w.PrimeHashes()

	if _, ok := w.GetHash("test.md"); !ok {
		t.Fatal("expected priming to record a hash")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to rewrite test file: %v", err)
	}

	select {
	case event := <-w.Events():
		t.Errorf("unexpected event for unchanged content: %+v", event)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_FileDeletion(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.md")
	if err := os.WriteFile(testFile, []byte("# To Be Deleted"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	w, err := New(tmpDir, "**/*.md", 50*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	w.PrimeHashes()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	if err := os.Remove(testFile); err != nil {
		t.Fatalf("failed to remove test file: %v", err)
	}

	select {
	case event := <-w.Events():
		if event.Op != OpDelete {
			t.Errorf("expected delete, got %s", event.Op)
		}
		if event.Path != "test.md" {
			t.Errorf("expected path test.md, got %s", event.Path)
		}
		if _, ok := w.GetHash("test.md"); ok {
			t.Error("expected hash to be forgotten on delete")
		}
	case <-time.After(1 * time.Second):
		t.Error("timeout waiting for delete event")
	}
}

func TestWatcher_IgnoresNonMatchingFiles(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := New(tmpDir, "**/*.md", 50*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	testFile := filepath.Join(tmpDir, "test.go")
	if err := os.WriteFile(testFile, []byte("package main"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	select {
	case event := <-w.Events():
		t.Errorf("unexpected event for non-matching file: %+v", event)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_IgnoresSkippedDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	excludedDir := filepath.Join(tmpDir, ".git")
	if err := os.MkdirAll(excludedDir, 0755); err != nil {
		t.Fatalf("failed to create excluded dir: %v", err)
	}

	w, err := New(tmpDir, "**/*.md", 50*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	testFile := filepath.Join(excludedDir, "test.md")
	if err := os.WriteFile(testFile, []byte("# Excluded"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	select {
	case event := <-w.Events():
		t.Errorf("unexpected event for file in skipped directory: %+v", event)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_NewSubdirectoryIsWatched(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := New(tmpDir, "**/*.md", 50*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	subDir := filepath.Join(tmpDir, "notes")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatalf("failed to create subdirectory: %v", err)
	}

	// Give the watcher time to register the new directory.
	time.Sleep(200 * time.Millisecond)

	testFile := filepath.Join(subDir, "note.md")
	if err := os.WriteFile(testFile, []byte("# Nested"), 0644); err != nil {
		t.Fatalf("failed to write nested file: %v", err)
	}

	select {
	case event := <-w.Events():
		if event.Op != OpCreate {
			t.Errorf("expected create, got %s", event.Op)
		}
		if event.Path != filepath.Join("notes", "note.md") {
			t.Errorf("expected path notes/note.md, got %s", event.Path)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for nested create event")
	}
}

func TestWatcher_SetGetHash(t *testing.T) {
	w, err := New(t.TempDir(), "", 0, nil)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer w.Stop()

	w.SetHash("file.md", "abc123")

	hash, ok := w.GetHash("file.md")
	if !ok {
		t.Error("expected hash to exist")
	}
	if hash != "abc123" {
		t.Errorf("expected hash abc123, got %s", hash)
	}

	if _, ok := w.GetHash("nonexistent.md"); ok {
		t.Error("expected no hash for unknown file")
	}
}

func TestWatcher_NoDroppedEventsInitially(t *testing.T) {
	w, err := New(t.TempDir(), "", 0, nil)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer w.Stop()

	if w.DroppedEvents() != 0 {
		t.Errorf("expected 0 dropped events, got %d", w.DroppedEvents())
	}
}
