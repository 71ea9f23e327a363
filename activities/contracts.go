// Package activities is the library of narrow, idempotent operations the
// workflows orchestrate. Each activity is individually retryable and holds no
// workflow-level state.
package activities

import (
	"context"
	"time"

	"github.com/aksrustagi/PULL-backend-sub010/models"
)

// OrderStatus is the execution engine's verdict on a submitted order.
type OrderStatus string

const (
	OrderFilled      OrderStatus = "filled"
	OrderPartialFill OrderStatus = "partial_fill"
	OrderFailed      OrderStatus = "failed"
)

// OrderRequest is a copier order submitted to the matching engine at the
// leader's price.
type OrderRequest struct {
	CopierID         string  `json:"copier_id"`
	Symbol           string  `json:"symbol"`
	Side             string  `json:"side"`
	Quantity         float64 `json:"quantity"`
	Price            float64 `json:"price"`
	OriginalTradeID  string  `json:"original_trade_id"`
	OriginalTraderID string  `json:"original_trader_id"`
}

// OrderResult is the matching engine's response.
type OrderResult struct {
	Status         OrderStatus `json:"status"`
	FilledQuantity float64     `json:"filled_quantity"`
	AveragePrice   float64     `json:"average_price"`
	OrderID        string      `json:"order_id"`
	Reason         string      `json:"reason,omitempty"`
}

// BalanceCheck reports whether a copier can cover a required notional.
type BalanceCheck struct {
	Sufficient bool    `json:"sufficient"`
	Available  float64 `json:"available"`
}

// PumpThresholds parameterize the pump-and-dump detector.
type PumpThresholds struct {
	SpikeMultiple  float64
	PriceImpactPct float64
	FollowerGain   int
	LookbackDays   int
}

// FollowerThresholds parameterize the fake-followers detector.
type FollowerThresholds struct {
	InactivePct       float64
	MinAccountAgeDays int
	MinFollowers      int
}

// Notification is one outbound user-facing message.
type Notification struct {
	RecipientID string                 `json:"recipient_id"`
	Kind        string                 `json:"kind"`
	Title       string                 `json:"title"`
	Body        string                 `json:"body"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// CopyTrade groups the activities used by the copy-trade propagation
// workflow.
type CopyTrade interface {
	GetActiveCopiers(ctx context.Context, traderID string) ([]models.CopySubscription, error)
	GetCopierPortfolioValue(ctx context.Context, copierID string) (float64, error)
	CheckCopierBalance(ctx context.Context, copierID string, requiredAmount float64) (BalanceCheck, error)
	ExecuteCopierOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	SettleCopyFees(ctx context.Context, copierID string, fees models.CopyTradeFees) error
	GetCopyTradeRecord(ctx context.Context, originalOrderID, copierID string) (*models.CopyTradeRecord, error)
	RecordCopyTrade(ctx context.Context, record models.CopyTradeRecord) error
	UpdateCopySettingsStats(ctx context.Context, subscriptionID string, notional float64) error
	SendCopyNotification(ctx context.Context, n Notification) error
}

// Fraud groups the activities used by the surveillance scan.
type Fraud interface {
	ListTraders(ctx context.Context) ([]string, error)
	DetectWashTrading(ctx context.Context, userID string, lookbackDays int) (models.WashTradingResult, error)
	DetectCircularCopying(ctx context.Context, userID string, maxChainLength int) (models.CircularCopyingResult, error)
	DetectPumpAndDump(ctx context.Context, userID string, t PumpThresholds) (models.PumpAndDumpResult, error)
	DetectFakeFollowers(ctx context.Context, userID string, t FollowerThresholds) (models.FakeFollowersResult, error)
	RecordFraudFlag(ctx context.Context, detection models.FraudDetection) error
	DisableCopyFeatures(ctx context.Context, userID string) error
	SendFraudAlert(ctx context.Context, n Notification) error
}

// Social groups the activities used by the fan-out workflow.
type Social interface {
	CreateSocialActivity(ctx context.Context, activity models.SocialActivity) (string, error)
	GetFollowersForFanout(ctx context.Context, userID string, offset, limit int) ([]string, error)
	FanOutToFeeds(ctx context.Context, items []models.FeedItem) error
	SendActivityNotifications(ctx context.Context, activityID string, recipientIDs []string) error
}

// Stats groups the activities used by the stats/leaderboard workflow.
type Stats interface {
	ListTraders(ctx context.Context) ([]string, error)
	GetTradesForPeriod(ctx context.Context, userID string, start, end time.Time) ([]models.LedgerTrade, error)
	BatchUpdateTraderStats(ctx context.Context, stats []models.TraderStats) error
	RecalculateLeaderboardPositions(ctx context.Context) error
}

// Audit records workflow lifecycle boundaries for traceability.
type Audit interface {
	RecordAuditLog(ctx context.Context, entry models.AuditLogEntry) error
}

// OrderEngine is the external order-matching engine contract.
type OrderEngine interface {
	ExecuteOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// Notifier delivers user-facing notifications through the outbound bus.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
