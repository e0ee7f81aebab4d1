package watch_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treekeep/treekeep/internal/treekeep/logging"
	"github.com/treekeep/treekeep/internal/treekeep/types"
	"github.com/treekeep/treekeep/internal/treekeep/watch"
)

// eventCollector gathers callback events under a lock.
type eventCollector struct {
	mu     sync.Mutex
	events []types.ChangeEvent
}

func (c *eventCollector) add(ev types.ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *eventCollector) find(path string, kind types.ChangeKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.events {
		if ev.Path == path && ev.Kind == kind {
			return true
		}
	}
	return false
}

func TestMonitorReportsCreateAndModify(t *testing.T) {
	dir := t.TempDir()
	collector := &eventCollector{}

	mon, err := watch.NewMonitor(logging.Nop())
	require.NoError(t, err)
	mon.SetEventCallback(collector.add)
	require.True(t, mon.AddWatch(dir))
	require.True(t, mon.Start())
	defer mon.Stop()

	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		return collector.find(path, types.ChangeCreated)
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("xy"), 0o644))
	require.Eventually(t, func() bool {
		return collector.find(path, types.ChangeModified)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestMonitorReportsDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	collector := &eventCollector{}
	mon, err := watch.NewMonitor(logging.Nop())
	require.NoError(t, err)
	mon.SetEventCallback(collector.add)
	require.True(t, mon.AddWatch(dir))
	require.True(t, mon.Start())
	defer mon.Stop()

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		return collector.find(path, types.ChangeDeleted)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestMonitorWatchesCreatedSubdirectories(t *testing.T) {
	dir := t.TempDir()
	collector := &eventCollector{}

	mon, err := watch.NewMonitor(logging.Nop())
	require.NoError(t, err)
	mon.SetEventCallback(collector.add)
	require.True(t, mon.AddWatch(dir))
	require.True(t, mon.Start())
	defer mon.Stop()

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Let the drain goroutine register the new directory.
	time.Sleep(200 * time.Millisecond)

	nested := filepath.Join(sub, "nested.txt")
	require.NoError(t, os.WriteFile(nested, []byte("x"), 0o644))
	require.Eventually(t, func() bool {
		return collector.find(nested, types.ChangeCreated)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestMonitorStartTwice(t *testing.T) {
	mon, err := watch.NewMonitor(logging.Nop())
	require.NoError(t, err)
	require.True(t, mon.Start())
	assert.False(t, mon.Start())
	mon.Stop()
}
