package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStagingJanitorSweep(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "upload-old.jpg")
	fresh := filepath.Join(dir, "audio-fresh.webm")
	for _, p := range []string{old, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "keep"), 0755); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	j := NewStagingJanitor(dir, 15*time.Minute, time.Minute)
	n, err := j.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d files, want 1", n)
	}
	if _, err := os.Stat(old); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("old file still present")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh file removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "keep")); err != nil {
		t.Errorf("directory removed: %v", err)
	}
}

func TestStagingJanitorMissingDir(t *testing.T) {
	j := NewStagingJanitor(filepath.Join(t.TempDir(), "nope"), time.Minute, time.Minute)
	n, err := j.Sweep()
	if err != nil || n != 0 {
		t.Fatalf("Sweep() = %d, %v", n, err)
	}
}

func TestTreeRunsJanitor(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "upload-stale.png")
	if err := os.WriteFile(stale, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	os.Chtimes(stale, past, past)

	tree := NewTree(nil, TreeConfig{ShutdownTimeout: time.Second})
	tree.AddMaintenanceService(NewStagingJanitor(dir, time.Minute, 20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(stale); errors.Is(err, os.ErrNotExist) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("janitor did not remove stale file")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop")
	}
}
