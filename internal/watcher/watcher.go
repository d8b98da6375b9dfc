package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 500 * time.Millisecond

// SyncFunc is invoked once per burst of relevant file events.
type SyncFunc func(ctx context.Context) error

// Watcher watches a document tree and calls Sync after matching files change.
type Watcher struct {
	root     string
	match    func(path string) bool
	sync     SyncFunc
	debounce time.Duration
}

func New(root string, match func(path string) bool, sync SyncFunc, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{root: root, match: match, sync: sync, debounce: debounce}
}

// Run blocks until ctx is done. Sync errors are logged and do not stop the
// watch.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher failed: %w", err)
	}
	defer fsw.Close()

	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("create documents dir failed: %w", err)
	}
	if err := addTree(fsw, w.root); err != nil {
		return err
	}
	log.Printf("watcher: watching %s", w.root)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	trigger := make(chan struct{}, 1)
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			select {
			case trigger <- struct{}{}:
			default:
			}
		})
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.relevant(fsw, ev) {
				schedule()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Printf("watcher: %v", err)
		case <-trigger:
			if err := w.sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("watcher: sync failed: %v", err)
			}
		}
	}
}

// relevant reports whether ev should trigger a sync. New directories are
// added to the watch and trigger one, since files may already be inside.
func (w *Watcher) relevant(fsw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addTree(fsw, ev.Name); err != nil {
				log.Printf("watcher: %v", err)
			}
			return true
		}
	}
	return w.match(ev.Name)
}

func addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s failed: %w", path, err)
		}
		return nil
	})
}
