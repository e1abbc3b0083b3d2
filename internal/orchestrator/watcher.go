package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gantrydev/gantry/internal/compose"
)

var composeFileNames = func() map[string]bool {
	m := make(map[string]bool, len(compose.FileNames))
	for _, name := range compose.FileNames {
		m[name] = true
	}
	return m
}()

// ComposeWatcher rescans a project whenever its compose file is written,
// created, renamed or removed. Bursts of events are collapsed into one
// rescan per project.
type ComposeWatcher struct {
	o        *Orchestrator
	debounce time.Duration
	resync   time.Duration

	watcher *fsnotify.Watcher

	mu     sync.Mutex
	dirs   map[string]string // watched directory -> hostname
	timers map[string]*time.Timer
	closed bool
}

// NewComposeWatcher watches every registered project directory. resync is
// how often the set of watched directories is refreshed from the registry.
func (o *Orchestrator) NewComposeWatcher(debounce, resync time.Duration) *ComposeWatcher {
	return &ComposeWatcher{
		o:        o,
		debounce: debounce,
		resync:   resync,
		dirs:     make(map[string]string),
		timers:   make(map[string]*time.Timer),
	}
}

// Run watches until ctx is cancelled.
func (w *ComposeWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher
	defer w.close()

	w.sync()

	ticker := time.NewTicker(w.resync)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sync()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.o.logger.Debug("compose watcher error", "err", err)
		}
	}
}

// sync adds newly registered project directories and drops unregistered
// ones.
func (w *ComposeWatcher) sync() {
	projects, err := w.o.projects.List()
	if err != nil {
		w.o.logger.Error("compose watcher: failed to list projects", "err", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	want := make(map[string]string, len(projects))
	for _, p := range projects {
		want[filepath.Clean(p.Path)] = p.Hostname
	}
	for dir := range w.dirs {
		if _, ok := want[dir]; !ok {
			_ = w.watcher.Remove(dir)
			delete(w.dirs, dir)
		}
	}
	for dir, hostname := range want {
		if _, ok := w.dirs[dir]; ok {
			w.dirs[dir] = hostname
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			w.o.logger.Debug("compose watcher: failed to watch", "dir", dir, "err", err)
			continue
		}
		w.dirs[dir] = hostname
	}
}

func (w *ComposeWatcher) handle(event fsnotify.Event) {
	if !composeFileNames[filepath.Base(event.Name)] {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	hostname, ok := w.dirs[filepath.Dir(event.Name)]
	w.mu.Unlock()
	if ok {
		w.schedule(hostname)
	}
}

func (w *ComposeWatcher) schedule(hostname string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if t, ok := w.timers[hostname]; ok {
		t.Stop()
	}
	w.timers[hostname] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		closed := w.closed
		delete(w.timers, hostname)
		w.mu.Unlock()
		if closed {
			return
		}
		if _, err := w.o.Rescan(hostname); err != nil {
			w.o.logger.Error("rescan failed", "project", hostname, "err", err)
		}
	})
}

func (w *ComposeWatcher) close() {
	w.mu.Lock()
	w.closed = true
	for hostname, t := range w.timers {
		t.Stop()
		delete(w.timers, hostname)
	}
	w.mu.Unlock()
	_ = w.watcher.Close()
}
