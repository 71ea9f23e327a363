package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aksrustagi/PULL-backend-sub010/activities"
	"github.com/aksrustagi/PULL-backend-sub010/config"
	"github.com/aksrustagi/PULL-backend-sub010/models"
	"github.com/aksrustagi/PULL-backend-sub010/storage"
)

func testStatsConfig() config.StatsConfig {
	return config.StatsConfig{
		RefreshIntervalHours: 24,
		RiskFreeRate:         0.02,
		BatchSize:            25,
	}
}

func newStatsFixture() (*StatsWorkflow, *activities.Mock) {
	mock := activities.NewMock()
	store := storage.NewMockStore()
	return NewStatsWorkflow(testStatsConfig(), testRetryProfiles(), mock, mock, store, NewRegistry(nil)), mock
}

func seedTrades(mock *activities.Mock, userID string, pnls []float64) {
	now := time.Now().UTC()
	trades := make([]models.LedgerTrade, len(pnls))
	for i, pnl := range pnls {
		trades[i] = models.LedgerTrade{
			ID:         userID + "-t" + string(rune('a'+i)),
			UserID:     userID,
			Symbol:     "ACME",
			Side:       "buy",
			Quantity:   100,
			Price:      0.50,
			PNL:        pnl,
			ExecutedAt: now.Add(-time.Duration(i+1) * time.Hour),
			ClosedAt:   now.Add(-time.Duration(i) * time.Hour),
		}
	}
	mock.Trades[userID] = trades
}

func TestRecomputeWritesStatsAndLeaderboard(t *testing.T) {
	w, mock := newStatsFixture()
	mock.Traders = []string{"trader-1"}
	seedTrades(mock, "trader-1", []float64{10, -5, 20})

	snap, err := w.Recompute(context.Background(), "stats-1", "")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if snap.ProcessedUsers != 1 {
		t.Fatalf("processed = %d, want 1", snap.ProcessedUsers)
	}
	if len(mock.StatsUpdates) != 1 {
		t.Fatalf("stats updates = %d, want 1", len(mock.StatsUpdates))
	}

	stats := mock.StatsUpdates[0]
	if stats.UserID != "trader-1" {
		t.Errorf("user = %s, want trader-1", stats.UserID)
	}
	if stats.TotalTrades != 3 || stats.ProfitableTrades != 2 {
		t.Errorf("trade counts = %d/%d, want 3/2", stats.TotalTrades, stats.ProfitableTrades)
	}
	if !floatEquals(stats.WinRate, 2.0/3.0, 0.001) {
		t.Errorf("win rate = %.4f, want %.4f", stats.WinRate, 2.0/3.0)
	}
	if mock.Calls["RecalculateLeaderboardPositions"] != 1 {
		t.Errorf("leaderboard recalc calls = %d, want 1", mock.Calls["RecalculateLeaderboardPositions"])
	}
}

func TestRecomputeSkipsTradersWithoutTrades(t *testing.T) {
	w, mock := newStatsFixture()
	mock.Traders = []string{"idle-trader"}

	snap, err := w.Recompute(context.Background(), "stats-idle", "")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if snap.SkippedUsers != 1 {
		t.Errorf("skipped = %d, want 1", snap.SkippedUsers)
	}
	if len(mock.StatsUpdates) != 0 {
		t.Errorf("stats written for a trader with no trades: %+v", mock.StatsUpdates)
	}
	// Leaderboard still refreshes even when nothing changed.
	if mock.Calls["RecalculateLeaderboardPositions"] != 1 {
		t.Errorf("leaderboard recalc calls = %d, want 1", mock.Calls["RecalculateLeaderboardPositions"])
	}
}

func TestRecomputeTransientErrorRetried(t *testing.T) {
	w, mock := newStatsFixture()
	mock.Traders = []string{"trader-1", "trader-2"}
	seedTrades(mock, "trader-1", []float64{10})
	seedTrades(mock, "trader-2", []float64{5})
	// The first window fetch fails once; the fast profile retries it.
	mock.ErrorOnNext["GetTradesForPeriod"] = errors.New("ledger down")

	snap, err := w.Recompute(context.Background(), "stats-iso", "")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if snap.Phase != PhaseComplete {
		t.Fatalf("phase = %s, want complete", snap.Phase)
	}
	// ErrorOnNext fires once; the retry succeeds, so both users commit.
	if snap.ProcessedUsers != 2 {
		t.Errorf("processed = %d, want 2 (transient error retried)", snap.ProcessedUsers)
	}
	if len(mock.StatsUpdates) != 2 {
		t.Errorf("stats updates = %d, want 2", len(mock.StatsUpdates))
	}
}

func TestRecomputeTargetedUser(t *testing.T) {
	w, mock := newStatsFixture()
	mock.Traders = []string{"trader-1", "trader-2"}
	seedTrades(mock, "trader-2", []float64{7})

	snap, err := w.Recompute(context.Background(), "stats-target", "trader-2")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if snap.TotalUsers != 1 || snap.ProcessedUsers != 1 {
		t.Errorf("totals = %d/%d, want 1/1", snap.TotalUsers, snap.ProcessedUsers)
	}
	if mock.Calls["ListTraders"] != 0 {
		t.Error("targeted recompute fetched the whole population")
	}
}
