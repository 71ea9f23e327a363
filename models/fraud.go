package models

import "time"

// FraudType identifies which detector produced a finding.
type FraudType string

const (
	FraudWashTrading     FraudType = "wash_trading"
	FraudCircularCopying FraudType = "circular_copying"
	FraudPumpAndDump     FraudType = "pump_and_dump"
	FraudFakeFollowers   FraudType = "fake_followers"
)

// Severity grades a fraud finding. Rank order: low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal position of the severity for comparisons.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// AtLeast reports whether s is as severe as other or more.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// FraudDetection is one immutable finding produced by a scan. Consumed by
// enforcement and human review tooling.
type FraudDetection struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"user_id"`
	Type       FraudType              `json:"type"`
	Severity   Severity               `json:"severity"`
	Evidence   map[string]interface{} `json:"evidence"`
	DetectedAt time.Time              `json:"detected_at"`
}

// WashTradingResult is the raw output of the wash-trading detector query.
type WashTradingResult struct {
	Detected         bool     `json:"detected"`
	Occurrences      int      `json:"occurrences"`
	SuspiciousTrades []string `json:"suspicious_trades,omitempty"`
	TotalVolume      float64  `json:"total_volume"`
}

// CircularCopyingResult is the raw output of the circular-copying detector.
type CircularCopyingResult struct {
	Detected      bool       `json:"detected"`
	Chains        [][]string `json:"chains,omitempty"`
	InvolvedUsers []string   `json:"involved_users,omitempty"`
}

// PumpAndDumpResult is the raw output of the pump-and-dump detector.
type PumpAndDumpResult struct {
	Detected        bool    `json:"detected"`
	ImpactedCopiers int     `json:"impacted_copiers"`
	PriceImpact     float64 `json:"price_impact"`
	FollowerGain    int     `json:"follower_gain"`
	TraderPNL       float64 `json:"trader_pnl"`
}

// PumpSignals are the raw ledger signals the pump-and-dump detector grades
// against configured thresholds.
type PumpSignals struct {
	BaselinePositionSize float64 `json:"baseline_position_size"`
	PeakPositionSize     float64 `json:"peak_position_size"`
	PriceImpactPct       float64 `json:"price_impact_pct"`
	FollowerGain         int     `json:"follower_gain"`
	ImpactedCopiers      int     `json:"impacted_copiers"`
	TraderPNL            float64 `json:"trader_pnl"`
}

// FollowerAudit is the raw follower-population snapshot the fake-followers
// detector grades against configured thresholds.
type FollowerAudit struct {
	TotalFollowers     int      `json:"total_followers"`
	InactiveFollowers  int      `json:"inactive_followers"`
	YoungFollowers     int      `json:"young_followers"`
	SuspiciousAccounts []string `json:"suspicious_accounts,omitempty"`
}

// FakeFollowersResult is the raw output of the fake-followers detector.
type FakeFollowersResult struct {
	Detected           bool     `json:"detected"`
	FakePercent        float64  `json:"fake_percent"`
	TotalFollowers     int      `json:"total_followers"`
	FakeFollowers      int      `json:"fake_followers"`
	SuspiciousAccounts []string `json:"suspicious_accounts,omitempty"`
}
