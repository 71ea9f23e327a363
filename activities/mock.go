package activities

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aksrustagi/PULL-backend-sub010/models"
)

// Mock implements every activity group in memory for workflow tests. Seed the
// exported maps before use; inspect Calls and the captured slices after.
type Mock struct {
	mu sync.Mutex

	// Seeded inputs.
	Copiers         map[string][]models.CopySubscription // traderID -> subscriptions
	PortfolioValues map[string]float64                   // copierID -> value
	Balances        map[string]float64                   // copierID -> available
	OrderResults    map[string]OrderResult               // originalOrderID:copierID -> result
	Records         map[string]*models.CopyTradeRecord   // originalOrderID:copierID -> record
	Traders         []string
	WashResults     map[string]models.WashTradingResult
	CircularResults map[string]models.CircularCopyingResult
	PumpResults     map[string]models.PumpAndDumpResult
	FakeResults     map[string]models.FakeFollowersResult
	Followers       map[string][]string // userID -> follower IDs
	Trades          map[string][]models.LedgerTrade

	// Captured outputs.
	SavedRecords  []models.CopyTradeRecord
	FeesSettled   map[string]models.CopyTradeFees
	Notifications []Notification
	Detections    []models.FraudDetection
	Disabled      map[string]int
	Activities    []models.SocialActivity
	FeedItems     []models.FeedItem
	NotifiedIDs   []string
	StatsUpdates  []models.TraderStats
	AuditEntries  []models.AuditLogEntry

	// Calls counts invocations per method name. ErrorOnNext makes the named
	// method fail once, then clears.
	Calls       map[string]int
	ErrorOnNext map[string]error
}

// NewMock creates an empty mock with all maps initialized.
func NewMock() *Mock {
	return &Mock{
		Copiers:         make(map[string][]models.CopySubscription),
		PortfolioValues: make(map[string]float64),
		Balances:        make(map[string]float64),
		OrderResults:    make(map[string]OrderResult),
		Records:         make(map[string]*models.CopyTradeRecord),
		WashResults:     make(map[string]models.WashTradingResult),
		CircularResults: make(map[string]models.CircularCopyingResult),
		PumpResults:     make(map[string]models.PumpAndDumpResult),
		FakeResults:     make(map[string]models.FakeFollowersResult),
		Followers:       make(map[string][]string),
		Trades:          make(map[string][]models.LedgerTrade),
		FeesSettled:     make(map[string]models.CopyTradeFees),
		Disabled:        make(map[string]int),
		Calls:           make(map[string]int),
		ErrorOnNext:     make(map[string]error),
	}
}

func (m *Mock) trackCall(method string) error {
	m.Calls[method]++
	if err, ok := m.ErrorOnNext[method]; ok {
		delete(m.ErrorOnNext, method)
		return err
	}
	return nil
}

// --- CopyTrade ---

func (m *Mock) GetActiveCopiers(ctx context.Context, traderID string) ([]models.CopySubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetActiveCopiers"); err != nil {
		return nil, err
	}
	return m.Copiers[traderID], nil
}

func (m *Mock) GetCopierPortfolioValue(ctx context.Context, copierID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetCopierPortfolioValue"); err != nil {
		return 0, err
	}
	return m.PortfolioValues[copierID], nil
}

func (m *Mock) CheckCopierBalance(ctx context.Context, copierID string, requiredAmount float64) (BalanceCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("CheckCopierBalance"); err != nil {
		return BalanceCheck{}, err
	}
	available := m.Balances[copierID]
	return BalanceCheck{Sufficient: available >= requiredAmount, Available: available}, nil
}

func (m *Mock) ExecuteCopierOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("ExecuteCopierOrder:" + req.CopierID); err != nil {
		return OrderResult{}, err
	}
	if err := m.trackCall("ExecuteCopierOrder"); err != nil {
		return OrderResult{}, err
	}
	key := req.OriginalTradeID + ":" + req.CopierID
	if result, ok := m.OrderResults[key]; ok {
		return result, nil
	}
	// Default: full fill at the requested price.
	return OrderResult{
		Status:         OrderFilled,
		FilledQuantity: req.Quantity,
		AveragePrice:   req.Price,
		OrderID:        "order-" + key,
	}, nil
}

func (m *Mock) SettleCopyFees(ctx context.Context, copierID string, fees models.CopyTradeFees) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("SettleCopyFees"); err != nil {
		return err
	}
	m.FeesSettled[copierID] = fees
	return nil
}

func (m *Mock) GetCopyTradeRecord(ctx context.Context, originalOrderID, copierID string) (*models.CopyTradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetCopyTradeRecord"); err != nil {
		return nil, err
	}
	return m.Records[originalOrderID+":"+copierID], nil
}

func (m *Mock) RecordCopyTrade(ctx context.Context, record models.CopyTradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("RecordCopyTrade"); err != nil {
		return err
	}
	key := record.OriginalOrderID + ":" + record.CopierID
	if _, exists := m.Records[key]; exists {
		return fmt.Errorf("copy trade record %s already exists", key)
	}
	stored := record
	m.Records[key] = &stored
	m.SavedRecords = append(m.SavedRecords, record)
	return nil
}

func (m *Mock) UpdateCopySettingsStats(ctx context.Context, subscriptionID string, notional float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trackCall("UpdateCopySettingsStats")
}

func (m *Mock) SendCopyNotification(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("SendCopyNotification"); err != nil {
		return err
	}
	m.Notifications = append(m.Notifications, n)
	return nil
}

// --- Fraud ---

func (m *Mock) ListTraders(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("ListTraders"); err != nil {
		return nil, err
	}
	return m.Traders, nil
}

func (m *Mock) DetectWashTrading(ctx context.Context, userID string, lookbackDays int) (models.WashTradingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("DetectWashTrading:" + userID); err != nil {
		return models.WashTradingResult{}, err
	}
	if err := m.trackCall("DetectWashTrading"); err != nil {
		return models.WashTradingResult{}, err
	}
	return m.WashResults[userID], nil
}

func (m *Mock) DetectCircularCopying(ctx context.Context, userID string, maxChainLength int) (models.CircularCopyingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("DetectCircularCopying"); err != nil {
		return models.CircularCopyingResult{}, err
	}
	return m.CircularResults[userID], nil
}

func (m *Mock) DetectPumpAndDump(ctx context.Context, userID string, t PumpThresholds) (models.PumpAndDumpResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("DetectPumpAndDump"); err != nil {
		return models.PumpAndDumpResult{}, err
	}
	return m.PumpResults[userID], nil
}

func (m *Mock) DetectFakeFollowers(ctx context.Context, userID string, t FollowerThresholds) (models.FakeFollowersResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("DetectFakeFollowers"); err != nil {
		return models.FakeFollowersResult{}, err
	}
	return m.FakeResults[userID], nil
}

func (m *Mock) RecordFraudFlag(ctx context.Context, detection models.FraudDetection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("RecordFraudFlag"); err != nil {
		return err
	}
	m.Detections = append(m.Detections, detection)
	return nil
}

func (m *Mock) DisableCopyFeatures(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("DisableCopyFeatures"); err != nil {
		return err
	}
	m.Disabled[userID]++
	return nil
}

func (m *Mock) SendFraudAlert(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("SendFraudAlert"); err != nil {
		return err
	}
	m.Notifications = append(m.Notifications, n)
	return nil
}

// --- Social ---

func (m *Mock) CreateSocialActivity(ctx context.Context, activity models.SocialActivity) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("CreateSocialActivity"); err != nil {
		return "", err
	}
	m.Activities = append(m.Activities, activity)
	return activity.ID, nil
}

func (m *Mock) GetFollowersForFanout(ctx context.Context, userID string, offset, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetFollowersForFanout"); err != nil {
		return nil, err
	}
	all := m.Followers[userID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *Mock) FanOutToFeeds(ctx context.Context, items []models.FeedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("FanOutToFeeds"); err != nil {
		return err
	}
	m.FeedItems = append(m.FeedItems, items...)
	return nil
}

func (m *Mock) SendActivityNotifications(ctx context.Context, activityID string, recipientIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("SendActivityNotifications"); err != nil {
		return err
	}
	m.NotifiedIDs = append(m.NotifiedIDs, recipientIDs...)
	return nil
}

// --- Stats ---

func (m *Mock) GetTradesForPeriod(ctx context.Context, userID string, start, end time.Time) ([]models.LedgerTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetTradesForPeriod"); err != nil {
		return nil, err
	}
	var out []models.LedgerTrade
	for _, t := range m.Trades[userID] {
		if !t.ExecutedAt.Before(start) && t.ExecutedAt.Before(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Mock) BatchUpdateTraderStats(ctx context.Context, stats []models.TraderStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("BatchUpdateTraderStats"); err != nil {
		return err
	}
	m.StatsUpdates = append(m.StatsUpdates, stats...)
	return nil
}

func (m *Mock) RecalculateLeaderboardPositions(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trackCall("RecalculateLeaderboardPositions")
}

// --- Audit ---

func (m *Mock) RecordAuditLog(ctx context.Context, entry models.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("RecordAuditLog"); err != nil {
		return err
	}
	m.AuditEntries = append(m.AuditEntries, entry)
	return nil
}
