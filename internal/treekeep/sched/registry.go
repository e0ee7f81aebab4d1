// Package sched contains the periodic and change-driven backup schedulers.
// At most one scheduler of either kind may target a given destination at a
// time; the package-level registry enforces the exclusion.
package sched

import (
	"fmt"
	"sync"

	"github.com/treekeep/treekeep/internal/treekeep/lib"
)

var (
	registryMu sync.Mutex
	registry   = make(map[string]string) // normalized destination -> scheduler kind
)

func acquireDestination(dest, kind string) error {
	key := lib.NormalizeDirPath(dest)
	registryMu.Lock()
	defer registryMu.Unlock()
	if other, ok := registry[key]; ok {
		return fmt.Errorf("sched: a %s scheduler is already running for %s", other, key)
	}
	registry[key] = kind
	return nil
}

func releaseDestination(dest string) {
	key := lib.NormalizeDirPath(dest)
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, key)
}
