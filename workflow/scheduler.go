package workflow

import (
	"context"
	"log"
	"sync"
	"time"
)

// Scheduler drives the periodic workflows: the fraud surveillance scan and
// the trader stats recompute. Both run immediately on start, then on their
// configured intervals.
type Scheduler struct {
	fraud *FraudWorkflow
	stats *StatsWorkflow

	fraudInterval time.Duration
	statsInterval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler for the periodic workflows.
func NewScheduler(fraud *FraudWorkflow, stats *StatsWorkflow, fraudInterval, statsInterval time.Duration) *Scheduler {
	return &Scheduler{
		fraud:         fraud,
		stats:         stats,
		fraudInterval: fraudInterval,
		statsInterval: statsInterval,
	}
}

// Start launches the schedule loops. Safe to call once; subsequent calls are
// no-ops until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	log.Printf("[Scheduler] starting (fraud every %s, stats every %s)", s.fraudInterval, s.statsInterval)

	s.startLoop(ctx, "fraud-scan", s.fraudInterval, func(ctx context.Context, runID string) error {
		_, err := s.fraud.Scan(ctx, runID, "")
		return err
	})
	s.startLoop(ctx, "stats-recompute", s.statsInterval, func(ctx context.Context, runID string) error {
		_, err := s.stats.Recompute(ctx, runID, "")
		return err
	})
}

// Stop halts the schedule loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	log.Printf("[Scheduler] stopped")
}

func (s *Scheduler) startLoop(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context, runID string) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		run := func() {
			// The run ID is derived from the schedule slot, so a worker that
			// crashes mid-run and restarts resumes the same run via replay.
			runID := name + "-" + time.Now().UTC().Truncate(interval).Format(time.RFC3339)
			if err := fn(ctx, runID); err != nil {
				log.Printf("[Scheduler] %s run %s failed: %v", name, runID, err)
			}
		}

		run()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}
