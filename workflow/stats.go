package workflow

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aksrustagi/PULL-backend-sub010/activities"
	"github.com/aksrustagi/PULL-backend-sub010/config"
	"github.com/aksrustagi/PULL-backend-sub010/models"
	"github.com/aksrustagi/PULL-backend-sub010/storage"
)

// StatsSnapshot is the queryable status of one stats recompute run.
type StatsSnapshot struct {
	RunID          string    `json:"run_id"`
	Phase          RunPhase  `json:"phase"`
	TotalUsers     int       `json:"total_users"`
	ProcessedUsers int       `json:"processed_users"`
	SkippedUsers   int       `json:"skipped_users"`
	FailedUsers    int       `json:"failed_users"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// StatsWorkflow recomputes trader performance metrics across the standard
// windows and refreshes leaderboard positions.
type StatsWorkflow struct {
	cfg      config.StatsConfig
	fast     RetryPolicy
	acts     activities.Stats
	audit    activities.Audit
	store    storage.DataStore
	registry *Registry
}

// NewStatsWorkflow wires the stats recompute workflow.
func NewStatsWorkflow(cfg config.StatsConfig, retry config.RetryProfiles, acts activities.Stats, audit activities.Audit, store storage.DataStore, registry *Registry) *StatsWorkflow {
	return &StatsWorkflow{
		cfg:      cfg,
		fast:     PolicyFromConfig(retry.Fast),
		acts:     acts,
		audit:    audit,
		store:    store,
		registry: registry,
	}
}

type statsRun struct {
	run *Run

	mu       sync.Mutex
	snapshot StatsSnapshot
}

func (r *statsRun) Snapshot() interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

func (r *statsRun) bump(processed, skipped, failed int) {
	r.mu.Lock()
	r.snapshot.ProcessedUsers += processed
	r.snapshot.SkippedUsers += skipped
	r.snapshot.FailedUsers += failed
	r.snapshot.UpdatedAt = nowUTC()
	r.mu.Unlock()
}

func (r *statsRun) setPhase(phase RunPhase) {
	r.mu.Lock()
	r.snapshot.Phase = phase
	r.snapshot.UpdatedAt = nowUTC()
	r.mu.Unlock()
}

// Recompute refreshes stats for one trader (targetUserID set) or the whole
// population. Per-user failures are logged and do not block the batch commit
// for the users that succeeded.
func (w *StatsWorkflow) Recompute(ctx context.Context, runID, targetUserID string) (StatsSnapshot, error) {
	run := NewRun(runID, w.store)

	var users []string
	var err error
	if targetUserID != "" {
		users = []string{targetUserID}
	} else {
		users, err = Execute(ctx, run, "population", w.fast, func(ctx context.Context) ([]string, error) {
			return w.acts.ListTraders(ctx)
		})
		if err != nil {
			return StatsSnapshot{}, fmt.Errorf("list trader population: %w", err)
		}
	}

	state := &statsRun{
		run: run,
		snapshot: StatsSnapshot{
			RunID:      runID,
			Phase:      PhaseRunning,
			TotalUsers: len(users),
			StartedAt:  nowUTC(),
			UpdatedAt:  nowUTC(),
		},
	}
	if w.registry != nil {
		w.registry.Register(run, state)
		defer w.registry.Finish(ctx, run, state)
	}
	log.Printf("[Stats] run %s: recomputing stats for %d traders", runID, len(users))

	batchSize := w.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 25
	}

	var mu sync.Mutex
	var pending []models.TraderStats

	for start := 0; start < len(users); start += batchSize {
		end := start + batchSize
		if end > len(users) {
			end = len(users)
		}

		ForEachBatch(ctx, batchSize, users[start:end], func(ctx context.Context, _ int, userID string) error {
			stats, skip, err := w.computeUserStats(ctx, run, userID)
			if err != nil {
				log.Printf("[Stats] run %s: stats failed for %s: %v", runID, userID, err)
				state.bump(0, 0, 1)
				return nil
			}
			if skip {
				state.bump(0, 1, 0)
				return nil
			}
			mu.Lock()
			pending = append(pending, stats)
			mu.Unlock()
			state.bump(1, 0, 0)
			return nil
		})
	}

	if len(pending) > 0 {
		if err := Do(ctx, run, "commit", w.fast, func(ctx context.Context) error {
			return w.acts.BatchUpdateTraderStats(ctx, pending)
		}); err != nil {
			state.setPhase(PhaseFailed)
			w.auditBoundary(ctx, run, "stats_recompute_failed", map[string]interface{}{"error": err.Error()})
			return state.Snapshot().(StatsSnapshot), fmt.Errorf("commit trader stats: %w", err)
		}
	}

	if err := Do(ctx, run, "leaderboard", w.fast, func(ctx context.Context) error {
		return w.acts.RecalculateLeaderboardPositions(ctx)
	}); err != nil {
		state.setPhase(PhaseFailed)
		w.auditBoundary(ctx, run, "stats_recompute_failed", map[string]interface{}{"error": err.Error()})
		return state.Snapshot().(StatsSnapshot), fmt.Errorf("recalculate leaderboard: %w", err)
	}

	state.setPhase(PhaseComplete)
	snap := state.Snapshot().(StatsSnapshot)
	w.auditBoundary(ctx, run, "stats_recompute_completed", map[string]interface{}{
		"processed": snap.ProcessedUsers,
		"skipped":   snap.SkippedUsers,
		"failed":    snap.FailedUsers,
	})
	log.Printf("[Stats] run %s: done (%d updated, %d skipped, %d failed)",
		runID, snap.ProcessedUsers, snap.SkippedUsers, snap.FailedUsers)
	return snap, nil
}

// computeUserStats pulls the four standard windows and derives the metrics.
// skip is true when the user has no trades at all.
func (w *StatsWorkflow) computeUserStats(ctx context.Context, run *Run, userID string) (models.TraderStats, bool, error) {
	now := nowUTC()
	windows := map[models.StatsPeriod]time.Time{
		models.PeriodAllTime: {},
		models.Period30D:     now.AddDate(0, 0, -30),
		models.Period7D:      now.AddDate(0, 0, -7),
		models.Period24H:     now.Add(-24 * time.Hour),
	}

	trades := make(map[models.StatsPeriod][]models.LedgerTrade, len(windows))
	for period, start := range windows {
		result, err := Execute(ctx, run, "trades:"+userID+":"+string(period), w.fast, func(ctx context.Context) ([]models.LedgerTrade, error) {
			return w.acts.GetTradesForPeriod(ctx, userID, start, now)
		})
		if err != nil {
			return models.TraderStats{}, false, fmt.Errorf("trades for %s window: %w", period, err)
		}
		trades[period] = result
	}

	allTime := trades[models.PeriodAllTime]
	if len(allTime) == 0 {
		return models.TraderStats{}, true, nil
	}

	winLoss := activities.CalculateWinLossStats(allTime)
	maxDD, currentDD := activities.CalculateMaxDrawdown(allTime)

	stats := models.TraderStats{
		UserID:           userID,
		Period:           models.PeriodAllTime,
		TotalReturn:      activities.CalculateReturns(allTime),
		Return30D:        activities.CalculateReturns(trades[models.Period30D]),
		Return7D:         activities.CalculateReturns(trades[models.Period7D]),
		Return24H:        activities.CalculateReturns(trades[models.Period24H]),
		SharpeRatio:      activities.CalculateSharpeRatio(trades[models.Period30D], w.cfg.RiskFreeRate),
		SortinoRatio:     activities.CalculateSortinoRatio(trades[models.Period30D], w.cfg.RiskFreeRate),
		MaxDrawdown:      maxDD,
		CurrentDrawdown:  currentDD,
		WinRate:          winLoss.WinRate,
		AvgWin:           winLoss.AvgWin,
		AvgLoss:          winLoss.AvgLoss,
		TotalTrades:      winLoss.TotalTrades,
		ProfitableTrades: winLoss.ProfitableTrades,
		AvgHoldingPeriod: activities.CalculateAvgHoldingPeriod(allTime),
		UpdatedAt:        now,
	}
	return stats, false, nil
}

func (w *StatsWorkflow) auditBoundary(ctx context.Context, run *Run, action string, metadata map[string]interface{}) {
	if w.audit == nil {
		return
	}
	entry := models.AuditLogEntry{
		Action:       action,
		ResourceType: "stats_recompute",
		ResourceID:   run.ID,
		Metadata:     metadata,
		CreatedAt:    nowUTC(),
	}
	if err := w.audit.RecordAuditLog(ctx, entry); err != nil {
		log.Printf("[Stats] run %s: audit write failed: %v", run.ID, err)
	}
}
