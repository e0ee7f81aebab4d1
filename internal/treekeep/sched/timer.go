package sched

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/treekeep/treekeep/internal/treekeep/filter"
	"github.com/treekeep/treekeep/internal/treekeep/logging"
	"github.com/treekeep/treekeep/internal/treekeep/task"
	"github.com/treekeep/treekeep/internal/treekeep/types"
)

// ErrAlreadyRunning is returned when Start is called on a scheduler that is
// already running.
var ErrAlreadyRunning = errors.New("sched: already running")

// Timer runs a backup at a fixed interval on its own worker goroutine. The
// loop is pausable and interruptible; a running backup observes the shared
// cancel flag at its checkpoints, so Stop returns within one checkpoint
// interval.
type Timer struct {
	log logging.Logger

	mu       sync.Mutex
	cfg      types.BackupConfig
	filters  filter.Chain
	interval time.Duration
	running  bool
	cancel   *types.CancelFlag
	stop     chan struct{}
	wake     chan struct{}
	done     chan struct{}

	paused atomic.Bool
}

// NewTimer builds a stopped periodic scheduler.
func NewTimer(log logging.Logger) *Timer {
	return &Timer{log: log}
}

// Start validates the configuration and launches the worker. It rejects a
// second start, a missing source directory, and a destination that another
// scheduler already serves.
func (t *Timer) Start(cfg types.BackupConfig, filters filter.Chain) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return ErrAlreadyRunning
	}
	if fi, err := os.Lstat(cfg.SourceDir); err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: %s", task.ErrSourceMissing, cfg.SourceDir)
	}
	if err := acquireDestination(cfg.DestinationDir, "periodic"); err != nil {
		return err
	}

	t.cfg = cfg
	t.filters = filters
	t.interval = intervalFor(cfg.IntervalSeconds)
	t.cancel = &types.CancelFlag{}
	t.stop = make(chan struct{})
	t.wake = make(chan struct{}, 1)
	t.done = make(chan struct{})
	t.running = true
	t.paused.Store(false)

	go t.loop()
	t.log.Info(fmt.Sprintf("periodic backup started, interval %s", t.interval))
	return nil
}

func intervalFor(seconds int) time.Duration {
	if seconds <= 0 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

// Stop interrupts a running backup, wakes the worker, and joins it.
func (t *Timer) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.cancel.Cancel()
	close(t.stop)
	done := t.done
	dest := t.cfg.DestinationDir
	t.mu.Unlock()

	<-done
	releaseDestination(dest)
	t.log.Info("periodic backup stopped")
}

// Pause suspends backups; the interval wait keeps running.
func (t *Timer) Pause() {
	if t.paused.CompareAndSwap(false, true) {
		t.log.Info("periodic backup paused")
	}
}

// Resume re-enables backups and wakes the worker.
func (t *Timer) Resume() {
	if t.paused.CompareAndSwap(true, false) {
		t.nudge()
		t.log.Info("periodic backup resumed")
	}
}

// IsRunning reports whether the worker is active.
func (t *Timer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// IsPaused reports whether backups are currently suspended.
func (t *Timer) IsPaused() bool { return t.paused.Load() }

// SetInterval updates the interval in place; the next wait honours the new
// value.
func (t *Timer) SetInterval(seconds int) {
	if seconds <= 0 {
		return
	}
	t.mu.Lock()
	t.interval = time.Duration(seconds) * time.Second
	t.mu.Unlock()
	t.nudge()
	t.log.Info(fmt.Sprintf("periodic backup interval set to %ds", seconds))
}

// UpdateConfig atomically replaces the task configuration. The current
// interval is preserved unless the new configuration names one.
func (t *Timer) UpdateConfig(cfg types.BackupConfig, filters filter.Chain) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cfg.IntervalSeconds > 0 {
		t.interval = time.Duration(cfg.IntervalSeconds) * time.Second
	}
	t.cfg = cfg
	t.filters = filters
	t.log.Info("periodic backup configuration updated")
}

// nudge wakes a waiting worker without blocking.
func (t *Timer) nudge() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Timer) snapshot() (types.BackupConfig, filter.Chain, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg, t.filters, t.interval
}

func (t *Timer) loop() {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		cfg, filters, interval := t.snapshot()
		if !t.paused.Load() {
			status := task.NewBackupTask(cfg, filters, t.log, t.cancel).Execute()
			t.log.Debug(fmt.Sprintf("periodic backup finished: %s", status))
		}

		select {
		case <-t.stop:
			return
		case <-t.wake:
		case <-time.After(interval):
		}
	}
}
