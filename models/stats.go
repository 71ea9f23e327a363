package models

import "time"

// StatsPeriod identifies the aggregation window for trader stats.
type StatsPeriod string

const (
	PeriodAllTime StatsPeriod = "all_time"
	Period30D     StatsPeriod = "30d"
	Period7D      StatsPeriod = "7d"
	Period24H     StatsPeriod = "24h"
)

// TraderStats holds the recomputed risk/performance metrics for one trader.
// Last-write-wins per (UserID, Period).
type TraderStats struct {
	UserID           string      `json:"user_id"`
	Period           StatsPeriod `json:"period"`
	TotalReturn      float64     `json:"total_return"`
	Return30D        float64     `json:"return_30d"`
	Return7D         float64     `json:"return_7d"`
	Return24H        float64     `json:"return_24h"`
	SharpeRatio      float64     `json:"sharpe_ratio"`
	SortinoRatio     float64     `json:"sortino_ratio"`
	MaxDrawdown      float64     `json:"max_drawdown"`
	CurrentDrawdown  float64     `json:"current_drawdown"`
	WinRate          float64     `json:"win_rate"`
	AvgWin           float64     `json:"avg_win"`
	AvgLoss          float64     `json:"avg_loss"`
	TotalTrades      int         `json:"total_trades"`
	ProfitableTrades int         `json:"profitable_trades"`
	AvgHoldingPeriod float64     `json:"avg_holding_period"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// LedgerTrade is one settled trade pulled from the trade ledger for stats
// recomputation and fraud baselines.
type LedgerTrade struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	PNL        float64   `json:"pnl"`
	ExecutedAt time.Time `json:"executed_at"`
	ClosedAt   time.Time `json:"closed_at,omitempty"`
}

// LeaderboardEntry is one ranked row on the trader leaderboard.
type LeaderboardEntry struct {
	UserID       string  `json:"user_id"`
	Rank         int     `json:"rank"`
	PreviousRank int     `json:"previous_rank"`
	Score        float64 `json:"score"`
}

// WinLossStats aggregates win/loss outcomes over a window.
type WinLossStats struct {
	WinRate          float64 `json:"win_rate"`
	AvgWin           float64 `json:"avg_win"`
	AvgLoss          float64 `json:"avg_loss"`
	TotalTrades      int     `json:"total_trades"`
	ProfitableTrades int     `json:"profitable_trades"`
}
