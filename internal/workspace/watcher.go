// Package workspace implements the Workspace Watcher (C7): it scans a
// workspace root for *.hl7v.toml schema files, loads them into the
// Schema Registry, and keeps the overlay in sync with on-disk edits via
// fsnotify, debounced 200ms per path per spec §4.7.
package workspace

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cybersorcerer/hl7-ls/internal/logger"
	"github.com/cybersorcerer/hl7-ls/internal/schema"
)

// DebounceWindow is the per-path debounce window spec §4.7 calls for.
const DebounceWindow = 200 * time.Millisecond

// Watcher recursively watches a workspace root for *.hl7v.toml files and
// drives the Schema Registry from them.
type Watcher struct {
	root     string
	registry *schema.Registry
	fsw      *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer
	done   chan struct{}
}

// NewWatcher builds a Watcher rooted at root.
func NewWatcher(root string, registry *schema.Registry) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:     root,
		registry: registry,
		fsw:      fsw,
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}, nil
}

// isSchemaFile reports whether path names a workspace schema file.
func isSchemaFile(path string) bool {
	return strings.HasSuffix(path, ".hl7v.toml")
}

// ScanAndLoad recursively walks root, loading every *.hl7v.toml file
// found into the registry, and adds every directory to the fsnotify
// watch list. Called once at startup, before Start.
func (w *Watcher) ScanAndLoad() error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("workspace: walk error at %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if addErr := w.fsw.Add(path); addErr != nil {
				logger.Warn("workspace: failed to watch %s: %v", path, addErr)
			}
			return nil
		}
		if isSchemaFile(path) {
			w.load(path)
		}
		return nil
	})
}

// Start runs the fsnotify event loop until Stop is called. Intended to
// run on its own goroutine.
func (w *Watcher) Start() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("workspace: watcher error: %v", err)
		}
	}
}

// Stop terminates the watcher.
func (w *Watcher) Stop() {
	close(w.done)
	w.fsw.Close()

	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(ev.Name); err != nil {
				logger.Warn("workspace: failed to watch new directory %s: %v", ev.Name, err)
			}
			return
		}
	}

	if !isSchemaFile(ev.Name) {
		return
	}

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.debounce(ev.Name, func() { w.remove(ev.Name) })
	case ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create):
		w.debounce(ev.Name, func() { w.load(ev.Name) })
	}
}

// debounce coalesces repeated events for the same path within
// DebounceWindow into a single call to fn.
func (w *Watcher) debounce(path string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(DebounceWindow, fn)
}

func (w *Watcher) load(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("workspace: failed to read schema file %s: %v", path, err)
		return
	}
	ws, warnings, err := schema.ParseWorkspaceSchema(data)
	if err != nil {
		logger.Warn("workspace: failed to parse schema file %s: %v", path, err)
		return
	}
	for _, warning := range warnings {
		logger.Warn("workspace: %s: %s", path, warning)
	}
	affected := w.registry.Apply(path, ws)
	logger.Info("workspace: loaded schema overlay %s, affecting %v", path, affected)
}

func (w *Watcher) remove(path string) {
	affected := w.registry.Remove(path)
	logger.Info("workspace: removed schema overlay %s, affecting %v", path, affected)
}
