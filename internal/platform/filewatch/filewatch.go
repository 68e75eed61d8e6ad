// Package filewatch cancels a context when a watched file changes on disk.
// The trainer catalog loader uses it to reload family definitions without
// restarting the service.
package filewatch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// UntilModified derives a context from parent that is cancelled the first
// time the file at path is written, created, renamed or removed. Watching
// is set up on the parent directory so that editors which replace the file
// (write to temp, rename over) are still observed.
func UntilModified(parent context.Context, path string) (context.Context, context.CancelFunc, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	ctx, cancel := context.WithCancel(parent)
	go func() {
		defer watcher.Close()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != abs {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					return
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return ctx, cancel, nil
}
