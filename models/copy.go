package models

import (
	"fmt"
	"time"
)

// CopyMode is the sizing strategy translating a leader's trade into the
// copier's trade size.
type CopyMode string

const (
	CopyModeFixedAmount         CopyMode = "fixed_amount"
	CopyModePercentagePortfolio CopyMode = "percentage_portfolio"
	CopyModeProportional        CopyMode = "proportional"
	CopyModeFixedRatio          CopyMode = "fixed_ratio"
)

// SubscriptionStatus is the lifecycle state of a copy subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// CopySubscription links a copier to a leader trader with sizing and risk
// limits. Owned by the copier, read-only during propagation.
type CopySubscription struct {
	ID                  string             `json:"id"`
	CopierID            string             `json:"copier_id"`
	TraderID            string             `json:"trader_id"`
	CopyMode            CopyMode           `json:"copy_mode"`
	FixedAmount         float64            `json:"fixed_amount,omitempty"`
	PortfolioPercentage float64            `json:"portfolio_percentage,omitempty"`
	CopyRatio           float64            `json:"copy_ratio,omitempty"`
	MaxPositionSize     float64            `json:"max_position_size"`
	MinPositionSize     float64            `json:"min_position_size"`
	MaxDailyLoss        float64            `json:"max_daily_loss"`
	MaxTotalExposure    float64            `json:"max_total_exposure"`
	ExcludedSymbols     []string           `json:"excluded_symbols,omitempty"`
	ExcludeMarketTypes  []string           `json:"exclude_market_types,omitempty"`
	CopyFeeRate         float64            `json:"copy_fee_rate"`
	CopyDelaySeconds    int                `json:"copy_delay_seconds"`
	Status              SubscriptionStatus `json:"status"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// Validate checks structural invariants on the subscription.
func (s CopySubscription) Validate() error {
	if s.MinPositionSize > s.MaxPositionSize && s.MaxPositionSize > 0 {
		return fmt.Errorf("min position size %.2f exceeds max %.2f", s.MinPositionSize, s.MaxPositionSize)
	}
	switch s.CopyMode {
	case CopyModeFixedAmount, CopyModePercentagePortfolio, CopyModeProportional, CopyModeFixedRatio:
	default:
		return fmt.Errorf("unknown copy mode %q", s.CopyMode)
	}
	return nil
}

// ExcludesMarketType reports whether the subscription filters out the given
// market type.
func (s CopySubscription) ExcludesMarketType(marketType string) bool {
	if marketType == "" {
		return false
	}
	for _, mt := range s.ExcludeMarketTypes {
		if mt == marketType {
			return true
		}
	}
	return false
}

// ExcludesSymbol reports whether the subscription filters out the symbol.
func (s CopySubscription) ExcludesSymbol(symbol string) bool {
	for _, sym := range s.ExcludedSymbols {
		if sym == symbol {
			return true
		}
	}
	return false
}

// CopyTradeStatus is the terminal (or pending) state of one copy attempt.
type CopyTradeStatus string

const (
	CopyTradePending   CopyTradeStatus = "pending"
	CopyTradeExecuted  CopyTradeStatus = "executed"
	CopyTradePartial   CopyTradeStatus = "partial"
	CopyTradeSkipped   CopyTradeStatus = "skipped"
	CopyTradeFailed    CopyTradeStatus = "failed"
	CopyTradeCancelled CopyTradeStatus = "cancelled"
)

// CopyTradeFees breaks down what a copier was charged on execution.
type CopyTradeFees struct {
	CopyFee     float64 `json:"copy_fee"`
	PlatformFee float64 `json:"platform_fee"`
}

// CopyTradeRecord is one row per (leader trade x copier) attempt. Append-only:
// immutable once a terminal status is reached. The idempotency key is
// (OriginalOrderID, CopierID).
type CopyTradeRecord struct {
	ID               string          `json:"id"`
	SubscriptionID   string          `json:"subscription_id"`
	CopierID         string          `json:"copier_id"`
	TraderID         string          `json:"trader_id"`
	OriginalOrderID  string          `json:"original_order_id"`
	Symbol           string          `json:"symbol"`
	Side             string          `json:"side"`
	OriginalQuantity float64         `json:"original_quantity"`
	CopiedQuantity   float64         `json:"copied_quantity"`
	OriginalPrice    float64         `json:"original_price"`
	CopiedPrice      float64         `json:"copied_price,omitempty"`
	Status           CopyTradeStatus `json:"status"`
	SkipReason       string          `json:"skip_reason,omitempty"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	Fees             CopyTradeFees   `json:"fees"`
	OrderID          string          `json:"order_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ExecutedAt       *time.Time      `json:"executed_at,omitempty"`
}

// LeaderTrade is one leader order-execution event, the input that triggers
// copy-trade propagation.
type LeaderTrade struct {
	TraderID        string    `json:"trader_id"`
	OriginalOrderID string    `json:"original_order_id"`
	Symbol          string    `json:"symbol"`
	Side            string    `json:"side"`
	Quantity        float64   `json:"quantity"`
	Price           float64   `json:"price"`
	MarketType      string    `json:"market_type,omitempty"`
	ExecutedAt      time.Time `json:"executed_at"`
}

// Notional is the leader trade's quantity x price.
func (t LeaderTrade) Notional() float64 {
	return t.Quantity * t.Price
}
