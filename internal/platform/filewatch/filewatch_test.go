package filewatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestUntilModifiedCancelsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel, err := UntilModified(context.Background(), path)
	if err != nil {
		t.Fatalf("UntilModified: %v", err)
	}
	defer cancel()

	if err := os.WriteFile(path, []byte("a: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled after file write")
	}
}

func TestUntilModifiedIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel, err := UntilModified(context.Background(), path)
	if err != nil {
		t.Fatalf("UntilModified: %v", err)
	}
	defer cancel()

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("b: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ctx.Done():
		t.Fatal("cancelled by unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestUntilModifiedParentCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	parent, parentCancel := context.WithCancel(context.Background())
	ctx, cancel, err := UntilModified(parent, path)
	if err != nil {
		t.Fatalf("UntilModified: %v", err)
	}
	defer cancel()

	parentCancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("child context outlived parent")
	}
}
