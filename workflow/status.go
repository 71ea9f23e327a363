package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aksrustagi/PULL-backend-sub010/storage"
)

// RunPhase is the coarse lifecycle state of a workflow run.
type RunPhase string

const (
	PhaseRunning   RunPhase = "running"
	PhaseComplete  RunPhase = "complete"
	PhaseFailed    RunPhase = "failed"
	PhaseCancelled RunPhase = "cancelled"
)

// Queryable exposes a point-in-time status snapshot of a running workflow.
type Queryable interface {
	Snapshot() interface{}
}

type registryEntry struct {
	run *Run
	q   Queryable
}

// Registry tracks in-flight workflow runs for the query and cancel surface.
// Finished runs fall back to the persisted snapshot store.
type Registry struct {
	mu      sync.RWMutex
	active  map[string]registryEntry
	persist *storage.StatusStore
}

// NewRegistry creates a registry. The persisted store may be nil in tests.
func NewRegistry(persist *storage.StatusStore) *Registry {
	return &Registry{active: make(map[string]registryEntry), persist: persist}
}

// Register makes a run queryable (and cancellable) while it is in flight.
func (reg *Registry) Register(run *Run, q Queryable) {
	reg.mu.Lock()
	reg.active[run.ID] = registryEntry{run: run, q: q}
	reg.mu.Unlock()
}

// Finish persists the final snapshot and drops the run from the live set.
func (reg *Registry) Finish(ctx context.Context, run *Run, q Queryable) {
	if reg.persist != nil {
		if err := reg.persist.SaveSnapshot(ctx, run.ID, q.Snapshot()); err != nil {
			log.Printf("[Workflow] persist final status for run %s: %v", run.ID, err)
		}
	}
	reg.mu.Lock()
	delete(reg.active, run.ID)
	reg.mu.Unlock()
}

// Status returns the serialized snapshot for a run: the live one when the run
// is in flight, else whatever the snapshot store still holds. Returns nil when
// the run is unknown.
func (reg *Registry) Status(ctx context.Context, runID string) ([]byte, error) {
	reg.mu.RLock()
	entry, ok := reg.active[runID]
	reg.mu.RUnlock()
	if ok {
		data, err := json.Marshal(entry.q.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("marshal status for run %s: %w", runID, err)
		}
		return data, nil
	}
	if reg.persist == nil {
		return nil, nil
	}
	return reg.persist.GetSnapshot(ctx, runID)
}

// Cancel delivers a cancellation signal to an in-flight run. Returns false
// when the run is not active.
func (reg *Registry) Cancel(runID string) bool {
	reg.mu.RLock()
	entry, ok := reg.active[runID]
	reg.mu.RUnlock()
	if !ok {
		return false
	}
	entry.run.Cancel()
	return true
}

// ActiveRuns lists the IDs of runs currently in flight.
func (reg *Registry) ActiveRuns() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	ids := make([]string, 0, len(reg.active))
	for id := range reg.active {
		ids = append(ids, id)
	}
	return ids
}

// nowUTC keeps snapshot timestamps consistent across workflows.
func nowUTC() time.Time {
	return time.Now().UTC()
}
