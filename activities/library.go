package activities

import (
	"context"
	"fmt"
	"time"

	"github.com/aksrustagi/PULL-backend-sub010/models"
	"github.com/aksrustagi/PULL-backend-sub010/storage"
)

// Library implements every activity group against the data store, the order
// engine, and the notification bus.
type Library struct {
	store    storage.DataStore
	engine   OrderEngine
	notifier Notifier
}

// NewLibrary wires the activity library to its collaborators.
func NewLibrary(store storage.DataStore, engine OrderEngine, notifier Notifier) *Library {
	return &Library{store: store, engine: engine, notifier: notifier}
}

// --- CopyTrade ---

func (l *Library) GetActiveCopiers(ctx context.Context, traderID string) ([]models.CopySubscription, error) {
	return l.store.GetActiveSubscriptions(ctx, traderID)
}

func (l *Library) GetCopierPortfolioValue(ctx context.Context, copierID string) (float64, error) {
	return l.store.GetPortfolioValue(ctx, copierID)
}

func (l *Library) CheckCopierBalance(ctx context.Context, copierID string, requiredAmount float64) (BalanceCheck, error) {
	available, err := l.store.GetAvailableBalance(ctx, copierID)
	if err != nil {
		return BalanceCheck{}, err
	}
	return BalanceCheck{
		Sufficient: available >= requiredAmount,
		Available:  available,
	}, nil
}

func (l *Library) ExecuteCopierOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	return l.engine.ExecuteOrder(ctx, req)
}

func (l *Library) SettleCopyFees(ctx context.Context, copierID string, fees models.CopyTradeFees) error {
	return l.store.ApplyCopyFees(ctx, copierID, fees)
}

func (l *Library) GetCopyTradeRecord(ctx context.Context, originalOrderID, copierID string) (*models.CopyTradeRecord, error) {
	return l.store.GetCopyTradeRecord(ctx, originalOrderID, copierID)
}

func (l *Library) RecordCopyTrade(ctx context.Context, record models.CopyTradeRecord) error {
	return l.store.SaveCopyTradeRecord(ctx, record)
}

func (l *Library) UpdateCopySettingsStats(ctx context.Context, subscriptionID string, notional float64) error {
	return l.store.UpdateSubscriptionStats(ctx, subscriptionID, notional)
}

func (l *Library) SendCopyNotification(ctx context.Context, n Notification) error {
	return l.notifier.Send(ctx, n)
}

// --- Fraud ---

func (l *Library) ListTraders(ctx context.Context) ([]string, error) {
	return l.store.ListTraderIDs(ctx)
}

func (l *Library) DetectWashTrading(ctx context.Context, userID string, lookbackDays int) (models.WashTradingResult, error) {
	since := time.Now().AddDate(0, 0, -lookbackDays)
	result, err := l.store.GetWashTradeStats(ctx, userID, since)
	if err != nil {
		return models.WashTradingResult{}, fmt.Errorf("wash trading stats for %s: %w", userID, err)
	}
	result.Detected = result.Occurrences > 0
	return result, nil
}

// DetectCircularCopying walks the copy graph outward from the user looking
// for a path back to them within maxChainLength hops.
func (l *Library) DetectCircularCopying(ctx context.Context, userID string, maxChainLength int) (models.CircularCopyingResult, error) {
	var result models.CircularCopyingResult

	type node struct {
		id   string
		path []string
	}

	seen := map[string]bool{userID: true}
	queue := []node{{id: userID, path: []string{userID}}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if len(current.path) > maxChainLength {
			continue
		}

		leaders, err := l.store.GetCopyLeaders(ctx, current.id)
		if err != nil {
			return models.CircularCopyingResult{}, fmt.Errorf("copy leaders for %s: %w", current.id, err)
		}
		for _, leader := range leaders {
			if leader == userID {
				// Cycle closed back to the origin.
				result.Detected = true
				result.Chains = append(result.Chains, append(append([]string(nil), current.path...), userID))
				for _, member := range current.path {
					result.InvolvedUsers = appendUnique(result.InvolvedUsers, member)
				}
				continue
			}
			if !seen[leader] {
				seen[leader] = true
				queue = append(queue, node{
					id:   leader,
					path: append(append([]string(nil), current.path...), leader),
				})
			}
		}
	}
	return result, nil
}

func (l *Library) DetectPumpAndDump(ctx context.Context, userID string, t PumpThresholds) (models.PumpAndDumpResult, error) {
	lookback := t.LookbackDays
	if lookback <= 0 {
		lookback = 7
	}
	since := time.Now().AddDate(0, 0, -lookback)

	sig, err := l.store.GetPumpSignals(ctx, userID, since)
	if err != nil {
		return models.PumpAndDumpResult{}, fmt.Errorf("pump signals for %s: %w", userID, err)
	}

	spiked := sig.BaselinePositionSize > 0 && sig.PeakPositionSize >= sig.BaselinePositionSize*t.SpikeMultiple
	result := models.PumpAndDumpResult{
		ImpactedCopiers: sig.ImpactedCopiers,
		PriceImpact:     sig.PriceImpactPct,
		FollowerGain:    sig.FollowerGain,
		TraderPNL:       sig.TraderPNL,
	}
	result.Detected = spiked &&
		sig.PriceImpactPct >= t.PriceImpactPct &&
		sig.FollowerGain >= t.FollowerGain
	return result, nil
}

func (l *Library) DetectFakeFollowers(ctx context.Context, userID string, t FollowerThresholds) (models.FakeFollowersResult, error) {
	audit, err := l.store.GetFollowerAudit(ctx, userID, t.MinAccountAgeDays)
	if err != nil {
		return models.FakeFollowersResult{}, fmt.Errorf("follower audit for %s: %w", userID, err)
	}

	result := models.FakeFollowersResult{
		TotalFollowers:     audit.TotalFollowers,
		SuspiciousAccounts: audit.SuspiciousAccounts,
	}
	// Small accounts are skipped outright to avoid false positives.
	if audit.TotalFollowers < t.MinFollowers {
		return result, nil
	}

	fake := audit.InactiveFollowers
	if audit.YoungFollowers > fake {
		fake = audit.YoungFollowers
	}
	result.FakeFollowers = fake
	result.FakePercent = float64(fake) / float64(audit.TotalFollowers) * 100
	result.Detected = result.FakePercent >= t.InactivePct
	return result, nil
}

func (l *Library) RecordFraudFlag(ctx context.Context, detection models.FraudDetection) error {
	return l.store.SaveFraudDetection(ctx, detection)
}

func (l *Library) DisableCopyFeatures(ctx context.Context, userID string) error {
	return l.store.DisableCopyFeatures(ctx, userID)
}

func (l *Library) SendFraudAlert(ctx context.Context, n Notification) error {
	return l.notifier.Send(ctx, n)
}

// --- Social ---

func (l *Library) CreateSocialActivity(ctx context.Context, activity models.SocialActivity) (string, error) {
	if err := l.store.SaveActivity(ctx, activity); err != nil {
		return "", err
	}
	return activity.ID, nil
}

func (l *Library) GetFollowersForFanout(ctx context.Context, userID string, offset, limit int) ([]string, error) {
	return l.store.GetFollowers(ctx, userID, offset, limit)
}

func (l *Library) FanOutToFeeds(ctx context.Context, items []models.FeedItem) error {
	return l.store.SaveFeedItems(ctx, items)
}

func (l *Library) SendActivityNotifications(ctx context.Context, activityID string, recipientIDs []string) error {
	for _, recipient := range recipientIDs {
		if err := l.notifier.Send(ctx, Notification{
			RecipientID: recipient,
			Kind:        "social_activity",
			Title:       "New activity",
			Metadata:    map[string]interface{}{"activity_id": activityID},
		}); err != nil {
			return fmt.Errorf("notify %s: %w", recipient, err)
		}
	}
	return nil
}

// --- Stats ---

func (l *Library) GetTradesForPeriod(ctx context.Context, userID string, start, end time.Time) ([]models.LedgerTrade, error) {
	return l.store.GetTradesForPeriod(ctx, userID, start, end)
}

func (l *Library) BatchUpdateTraderStats(ctx context.Context, stats []models.TraderStats) error {
	return l.store.BatchUpdateTraderStats(ctx, stats)
}

func (l *Library) RecalculateLeaderboardPositions(ctx context.Context) error {
	return l.store.RecalculateLeaderboardPositions(ctx)
}

// --- Audit ---

func (l *Library) RecordAuditLog(ctx context.Context, entry models.AuditLogEntry) error {
	return l.store.RecordAuditLog(ctx, entry)
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
