// Package watch wraps fsnotify into the filesystem-monitor collaborator
// consumed by the change-driven scheduler: recursive watches over a source
// tree with a single event callback.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/treekeep/treekeep/internal/treekeep/logging"
	"github.com/treekeep/treekeep/internal/treekeep/types"
)

// Monitor owns an fsnotify watcher and the goroutine that drains it. The
// underlying OS handles are released by Stop. fsnotify watches are not
// recursive, so AddWatch registers every subdirectory and the drain loop
// registers directories created while watching.
type Monitor struct {
	log logging.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cb      func(types.ChangeEvent)
	started bool
	done    chan struct{}
}

// NewMonitor creates a monitor with no watches.
func NewMonitor(log logging.Logger) (*Monitor, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	return &Monitor{log: log, watcher: w}, nil
}

// SetEventCallback installs the function invoked for every change event.
// The callback runs on the monitor's drain goroutine and must not block.
func (m *Monitor) SetEventCallback(cb func(types.ChangeEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb = cb
}

// AddWatch registers dir and all of its subdirectories.
func (m *Monitor) AddWatch(dir string) bool {
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if werr := m.watcher.Add(path); werr != nil {
				m.log.Warn(fmt.Sprintf("watch: could not watch %s: %v", path, werr))
			}
		}
		return nil
	})
	if err != nil {
		m.log.Warn(fmt.Sprintf("watch: add %s: %v", dir, err))
		return false
	}
	return true
}

// RemoveWatch drops the watch on dir itself.
func (m *Monitor) RemoveWatch(dir string) bool {
	if err := m.watcher.Remove(dir); err != nil {
		m.log.Warn(fmt.Sprintf("watch: remove %s: %v", dir, err))
		return false
	}
	return true
}

// Start launches the drain goroutine. It reports false when the monitor was
// already started.
func (m *Monitor) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return false
	}
	m.started = true
	m.done = make(chan struct{})
	go m.drain()
	return true
}

// Stop closes the watcher, releasing its OS handles, and waits for the
// drain goroutine to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		_ = m.watcher.Close()
		return
	}
	done := m.done
	m.mu.Unlock()

	_ = m.watcher.Close()
	<-done
}

func (m *Monitor) drain() {
	defer close(m.done)
	for {
		select {
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handle(ev)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.Warn(fmt.Sprintf("watch: %v", err))
		}
	}
}

func (m *Monitor) handle(ev fsnotify.Event) {
	// A directory created inside a watched directory must itself be
	// watched, or changes below it would go unseen.
	if ev.Op.Has(fsnotify.Create) {
		if fi, err := os.Lstat(ev.Name); err == nil && fi.IsDir() {
			if err := m.watcher.Add(ev.Name); err != nil {
				m.log.Warn(fmt.Sprintf("watch: could not watch new dir %s: %v", ev.Name, err))
			}
		}
	}

	kind, ok := changeKind(ev.Op)
	if !ok {
		return
	}
	m.mu.Lock()
	cb := m.cb
	m.mu.Unlock()
	if cb != nil {
		cb(types.ChangeEvent{Path: ev.Name, Kind: kind})
	}
}

func changeKind(op fsnotify.Op) (types.ChangeKind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return types.ChangeCreated, true
	case op.Has(fsnotify.Write):
		return types.ChangeModified, true
	case op.Has(fsnotify.Remove):
		return types.ChangeDeleted, true
	case op.Has(fsnotify.Rename):
		return types.ChangeRenamed, true
	default:
		return 0, false
	}
}
