package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	if err := os.WriteFile(path, []byte("esp32:\n  board: first\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type reload struct {
		doc *Document
		err error
	}
	reloads := make(chan reload, 8)
	done := make(chan error, 1)

	go func() {
		done <- newTestLoader().Watch(ctx, path, 20*time.Millisecond, func(doc *Document, err error) {
			reloads <- reload{doc, err}
		})
	}()

	next := func() reload {
		t.Helper()
		select {
		case r := <-reloads:
			return r
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for reload")
			return reload{}
		}
	}

	first := next()
	if first.err != nil || first.doc.Raw.Components["esp32"]["board"] != "first" {
		t.Fatalf("Unexpected initial load: %+v", first)
	}

	if err := os.WriteFile(path, []byte("esp32: 3\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	second := next()
	if second.err == nil {
		t.Fatal("Expected reload error for invalid content")
	}

	if err := os.WriteFile(path, []byte("esp32:\n  board: third\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	third := next()
	for third.err != nil {
		third = next()
	}
	if third.doc.Raw.Components["esp32"]["board"] != "third" {
		t.Errorf("Expected reloaded board third, got %v", third.doc.Raw.Components["esp32"])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestLoader_WatchMissingDirectory(t *testing.T) {
	err := newTestLoader().Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "node.yaml"), 0, func(*Document, error) {})
	if err == nil {
		t.Fatal("Expected error for missing directory")
	}
}
