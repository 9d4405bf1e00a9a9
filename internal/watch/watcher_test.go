package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewRequiresHandler(t *testing.T) {
	if _, err := New(t.TempDir(), time.Second, nil, nil); err == nil {
		t.Error("New() error = nil without handler")
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")

	w, err := New(dir, time.Second, func(context.Context) {}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.fsw.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("snapshot directory not created: %v", err)
	}
}

func TestDebouncedTrigger(t *testing.T) {
	dir := t.TempDir()
	fired := make(chan struct{}, 1)

	w, err := New(dir, 50*time.Millisecond, func(context.Context) {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watch a moment to attach before generating events.
	time.Sleep(100 * time.Millisecond)

	// A burst of writes collapses into one trigger.
	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, "alice.json")
		if err := os.WriteFile(path, []byte(`{"data":{"items":[]}}`), 0644); err != nil {
			t.Fatalf("write snapshot: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("handler did not fire after snapshot writes")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}
}

func TestIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	fired := make(chan struct{}, 1)

	w, err := New(dir, 50*time.Millisecond, func(context.Context) {
		fired <- struct{}{}
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	select {
	case <-fired:
		t.Error("handler fired for a non-snapshot file")
	case <-time.After(300 * time.Millisecond):
	}
}
