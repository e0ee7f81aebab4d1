package sched

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/treekeep/treekeep/internal/treekeep/filter"
	"github.com/treekeep/treekeep/internal/treekeep/logging"
	"github.com/treekeep/treekeep/internal/treekeep/task"
	"github.com/treekeep/treekeep/internal/treekeep/types"
	"github.com/treekeep/treekeep/internal/treekeep/watch"
)

// defaultDebounce is used when the configuration leaves DebounceMs at zero.
const defaultDebounce = 1000 * time.Millisecond

// tickInterval is the worker's drain cadence while no events arrive.
const tickInterval = time.Second

// Realtime watches the source tree and runs a backup when changes settle.
// Events are coalesced: while a backup is in flight new events only mark
// the queue dirty, and a single follow-up backup subsumes all of them.
type Realtime struct {
	log logging.Logger

	mu      sync.Mutex
	cfg     types.BackupConfig
	filters filter.Chain
	mon     *watch.Monitor
	running bool
	cancel  *types.CancelFlag
	stop    chan struct{}
	done    chan struct{}

	queueMu sync.Mutex
	queue   []types.ChangeEvent
	notify  chan struct{}

	inFlight atomic.Bool
}

// NewRealtime builds a stopped change-driven scheduler.
func NewRealtime(log logging.Logger) *Realtime {
	return &Realtime{log: log}
}

// Start adds a recursive watch on the source, runs one immediate backup to
// capture the current tree state, and launches the worker.
func (r *Realtime) Start(cfg types.BackupConfig, filters filter.Chain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrAlreadyRunning
	}
	if fi, err := os.Lstat(cfg.SourceDir); err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: %s", task.ErrSourceMissing, cfg.SourceDir)
	}
	if err := acquireDestination(cfg.DestinationDir, "realtime"); err != nil {
		return err
	}

	mon, err := watch.NewMonitor(r.log)
	if err != nil {
		releaseDestination(cfg.DestinationDir)
		return err
	}
	mon.SetEventCallback(r.enqueue)
	if !mon.AddWatch(cfg.SourceDir) {
		mon.Stop()
		releaseDestination(cfg.DestinationDir)
		return fmt.Errorf("sched: could not watch %s", cfg.SourceDir)
	}

	r.cfg = cfg
	r.filters = filters
	r.mon = mon
	r.cancel = &types.CancelFlag{}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.notify = make(chan struct{}, 1)
	r.queue = nil
	r.running = true

	mon.Start()

	// Capture the tree as it stands before any change arrives.
	status := task.NewBackupTask(cfg, filters, r.log, r.cancel).Execute()
	r.log.Info(fmt.Sprintf("realtime backup started, initial snapshot: %s", status))

	go r.worker()
	return nil
}

// Stop halts the watcher, interrupts any running backup, and joins the
// worker. The watcher's OS handles are released before Stop returns.
func (r *Realtime) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	mon := r.mon
	r.cancel.Cancel()
	close(r.stop)
	done := r.done
	dest := r.cfg.DestinationDir
	r.mu.Unlock()

	mon.Stop()
	<-done
	releaseDestination(dest)
	r.log.Info("realtime backup stopped")
}

// IsRunning reports whether the scheduler is active.
func (r *Realtime) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// InFlight reports whether a backup is currently executing.
func (r *Realtime) InFlight() bool { return r.inFlight.Load() }

// enqueue is the monitor callback. It never blocks the watcher goroutine.
func (r *Realtime) enqueue(ev types.ChangeEvent) {
	r.queueMu.Lock()
	r.queue = append(r.queue, ev)
	r.queueMu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Realtime) drain() []types.ChangeEvent {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	events := r.queue
	r.queue = nil
	return events
}

func (r *Realtime) snapshot() (types.BackupConfig, filter.Chain, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	debounce := defaultDebounce
	if r.cfg.DebounceMs > 0 {
		debounce = time.Duration(r.cfg.DebounceMs) * time.Millisecond
	}
	return r.cfg, r.filters, debounce
}

// worker drains events on a one-second tick, debounces, and fires at most
// one backup at a time. Events arriving during a backup keep the dirty flag
// set, so one follow-up run subsumes them.
func (r *Realtime) worker() {
	defer close(r.done)

	dirty := false
	lastBackup := time.Now()

	for {
		select {
		case <-r.stop:
			return
		case <-r.notify:
		case <-time.After(tickInterval):
		}

		if events := r.drain(); len(events) > 0 {
			dirty = true
			r.log.Debug(fmt.Sprintf("realtime backup: %d change events pending", len(events)))
		}

		cfg, filters, debounce := r.snapshot()
		if !dirty || r.inFlight.Load() || time.Since(lastBackup) < debounce {
			continue
		}

		select {
		case <-r.stop:
			return
		default:
		}

		r.inFlight.Store(true)
		status := task.NewBackupTask(cfg, filters, r.log, r.cancel).Execute()
		r.inFlight.Store(false)

		dirty = false
		if status == types.StatusCompleted {
			lastBackup = time.Now()
		}
		r.log.Debug(fmt.Sprintf("realtime backup finished: %s", status))
	}
}
