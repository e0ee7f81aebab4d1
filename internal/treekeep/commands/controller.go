// Package commands exposes the controller entry points the CLI drives:
// one-shot backup and restore, the periodic scheduler, the change-driven
// scheduler, and configuration updates. Configuration reaches the core only
// through these functions, always by value.
package commands

import (
	"sync"

	"github.com/treekeep/treekeep/internal/treekeep/filter"
	"github.com/treekeep/treekeep/internal/treekeep/logging"
	"github.com/treekeep/treekeep/internal/treekeep/sched"
	"github.com/treekeep/treekeep/internal/treekeep/task"
	"github.com/treekeep/treekeep/internal/treekeep/types"
)

// Controller owns the schedulers and the current configuration. All methods
// are safe for concurrent use.
type Controller struct {
	log logging.Logger

	mu      sync.Mutex
	cfg     types.BackupConfig
	filters filter.Chain

	timer    *sched.Timer
	realtime *sched.Realtime
}

// NewController builds a controller around the given configuration.
func NewController(cfg types.BackupConfig, filters filter.Chain, log logging.Logger) *Controller {
	return &Controller{
		log:      log,
		cfg:      cfg,
		filters:  filters,
		timer:    sched.NewTimer(log),
		realtime: sched.NewRealtime(log),
	}
}

func (c *Controller) snapshot() (types.BackupConfig, filter.Chain) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg, c.filters
}

// ExecuteBackup runs one backup to completion and reports success. cancel
// may be nil.
func (c *Controller) ExecuteBackup(cancel *types.CancelFlag) bool {
	cfg, filters := c.snapshot()
	status := task.NewBackupTask(cfg, filters, c.log, cancel).Execute()
	return status == types.StatusCompleted
}

// ExecuteRestore restores the configured backup into restoreDir and reports
// success. A non-empty password overrides the configured one for this run.
func (c *Controller) ExecuteRestore(restoreDir, password string, cancel *types.CancelFlag) bool {
	cfg, _ := c.snapshot()
	if password != "" {
		cfg.Password = password
	}
	status := task.NewRestoreTask(cfg, restoreDir, c.log, cancel).Execute()
	return status == types.StatusCompleted
}

// StartRealtime launches the change-driven scheduler.
func (c *Controller) StartRealtime() error {
	cfg, filters := c.snapshot()
	return c.realtime.Start(cfg, filters)
}

// StopRealtime stops the change-driven scheduler and waits for it.
func (c *Controller) StopRealtime() {
	c.realtime.Stop()
}

// StartTimer launches the periodic scheduler. A positive intervalSeconds
// overrides the configured interval.
func (c *Controller) StartTimer(intervalSeconds int) error {
	cfg, filters := c.snapshot()
	if intervalSeconds > 0 {
		cfg.IntervalSeconds = intervalSeconds
	}
	return c.timer.Start(cfg, filters)
}

// StopTimer stops the periodic scheduler and waits for it.
func (c *Controller) StopTimer() {
	c.timer.Stop()
}

// PauseTimer suspends periodic backups without stopping the worker.
func (c *Controller) PauseTimer() {
	c.timer.Pause()
}

// ResumeTimer re-enables periodic backups.
func (c *Controller) ResumeTimer() {
	c.timer.Resume()
}

// UpdateConfig atomically replaces the configuration used by subsequent
// operations and pushes it into a running periodic scheduler.
func (c *Controller) UpdateConfig(cfg types.BackupConfig, filters filter.Chain) {
	c.mu.Lock()
	c.cfg = cfg
	c.filters = filters
	c.mu.Unlock()
	if c.timer.IsRunning() {
		c.timer.UpdateConfig(cfg, filters)
	}
}

// FilterDescriptions lists the active filters in human-readable form.
func (c *Controller) FilterDescriptions() []string {
	_, filters := c.snapshot()
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		out = append(out, f.Description())
	}
	return out
}
