package storage

import (
	"context"
	"time"

	"github.com/aksrustagi/PULL-backend-sub010/models"
)

// DataStore defines the interface for storage backends.
type DataStore interface {
	Close() error

	// Users
	GetUser(ctx context.Context, id string) (*models.User, error)

	// Copy subscriptions
	GetActiveSubscriptions(ctx context.Context, traderID string) ([]models.CopySubscription, error)
	GetSubscription(ctx context.Context, id string) (*models.CopySubscription, error)
	UpdateSubscriptionStats(ctx context.Context, subscriptionID string, notional float64) error

	// Copy trade records (append-only audit trail, keyed by (original order, copier))
	GetCopyTradeRecord(ctx context.Context, originalOrderID, copierID string) (*models.CopyTradeRecord, error)
	SaveCopyTradeRecord(ctx context.Context, record models.CopyTradeRecord) error
	ListCopyTradeRecords(ctx context.Context, originalOrderID string) ([]models.CopyTradeRecord, error)

	// Copier accounts
	GetPortfolioValue(ctx context.Context, userID string) (float64, error)
	GetAvailableBalance(ctx context.Context, userID string) (float64, error)
	ApplyCopyFees(ctx context.Context, copierID string, fees models.CopyTradeFees) error

	// Fraud surveillance
	ListTraderIDs(ctx context.Context) ([]string, error)
	SaveFraudDetection(ctx context.Context, detection models.FraudDetection) error
	ListFraudDetections(ctx context.Context, userID string, limit int) ([]models.FraudDetection, error)
	DisableCopyFeatures(ctx context.Context, userID string) error
	GetWashTradeStats(ctx context.Context, userID string, since time.Time) (models.WashTradingResult, error)
	GetCopyLeaders(ctx context.Context, copierID string) ([]string, error)
	GetPumpSignals(ctx context.Context, userID string, since time.Time) (models.PumpSignals, error)
	GetFollowerAudit(ctx context.Context, userID string, minAccountAgeDays int) (models.FollowerAudit, error)

	// Social feeds
	SaveActivity(ctx context.Context, activity models.SocialActivity) error
	GetFollowers(ctx context.Context, userID string, offset, limit int) ([]string, error)
	SaveFeedItems(ctx context.Context, items []models.FeedItem) error

	// Trader stats & leaderboard
	GetTradesForPeriod(ctx context.Context, userID string, start, end time.Time) ([]models.LedgerTrade, error)
	BatchUpdateTraderStats(ctx context.Context, stats []models.TraderStats) error
	RecalculateLeaderboardPositions(ctx context.Context) error
	GetLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)

	// Durable workflow bookkeeping
	GetWorkflowStep(ctx context.Context, runID, stepKey string) ([]byte, bool, error)
	RecordWorkflowStep(ctx context.Context, runID, stepKey string, result []byte) error
	RecordAuditLog(ctx context.Context, entry models.AuditLogEntry) error
}
