package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aksrustagi/PULL-backend-sub010/models"
)

// MockStore is a mock implementation of DataStore for testing.
type MockStore struct {
	mu sync.RWMutex

	// Seeded/accumulated state
	Users           map[string]models.User
	Subscriptions   map[string]models.CopySubscription // by subscription ID
	Records         map[string]models.CopyTradeRecord  // by originalOrderID:copierID
	Balances        map[string]float64
	PortfolioValues map[string]float64
	Traders         []string
	Detections      []models.FraudDetection
	Disabled        map[string]int // userID -> times disabled
	WashStats       map[string]models.WashTradingResult
	CopyLeaders     map[string][]string
	PumpSignals     map[string]models.PumpSignals
	FollowerAudits  map[string]models.FollowerAudit
	Activities      map[string]models.SocialActivity
	Followers       map[string][]string
	FeedItems       []models.FeedItem
	Trades          map[string][]models.LedgerTrade
	Stats           map[string]models.TraderStats // by userID:period
	Leaderboard     []models.LeaderboardEntry
	Steps           map[string][]byte // runID:stepKey -> result
	AuditEntries    []models.AuditLogEntry

	// Call tracking for assertions
	Calls map[string]int

	// Error injection for testing error paths
	ErrorOnNext map[string]error
}

// NewMockStore creates a new mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		Users:           make(map[string]models.User),
		Subscriptions:   make(map[string]models.CopySubscription),
		Records:         make(map[string]models.CopyTradeRecord),
		Balances:        make(map[string]float64),
		PortfolioValues: make(map[string]float64),
		Disabled:        make(map[string]int),
		WashStats:       make(map[string]models.WashTradingResult),
		CopyLeaders:     make(map[string][]string),
		PumpSignals:     make(map[string]models.PumpSignals),
		FollowerAudits:  make(map[string]models.FollowerAudit),
		Activities:      make(map[string]models.SocialActivity),
		Followers:       make(map[string][]string),
		Trades:          make(map[string][]models.LedgerTrade),
		Stats:           make(map[string]models.TraderStats),
		Steps:           make(map[string][]byte),
		Calls:           make(map[string]int),
		ErrorOnNext:     make(map[string]error),
	}
}

func (m *MockStore) trackCall(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

func recordKey(originalOrderID, copierID string) string {
	return originalOrderID + ":" + copierID
}

func (m *MockStore) Close() error {
	return m.trackCall("Close")
}

func (m *MockStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	if err := m.trackCall("GetUser"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.Users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (m *MockStore) GetActiveSubscriptions(ctx context.Context, traderID string) ([]models.CopySubscription, error) {
	if err := m.trackCall("GetActiveSubscriptions"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var subs []models.CopySubscription
	for _, sub := range m.Subscriptions {
		if sub.TraderID == traderID && sub.Status == models.SubscriptionActive {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (m *MockStore) GetSubscription(ctx context.Context, id string) (*models.CopySubscription, error) {
	if err := m.trackCall("GetSubscription"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sub, ok := m.Subscriptions[id]; ok {
		return &sub, nil
	}
	return nil, nil
}

func (m *MockStore) UpdateSubscriptionStats(ctx context.Context, subscriptionID string, notional float64) error {
	return m.trackCall("UpdateSubscriptionStats")
}

func (m *MockStore) GetCopyTradeRecord(ctx context.Context, originalOrderID, copierID string) (*models.CopyTradeRecord, error) {
	if err := m.trackCall("GetCopyTradeRecord"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.Records[recordKey(originalOrderID, copierID)]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *MockStore) SaveCopyTradeRecord(ctx context.Context, rec models.CopyTradeRecord) error {
	if err := m.trackCall("SaveCopyTradeRecord"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey(rec.OriginalOrderID, rec.CopierID)
	if _, exists := m.Records[key]; exists {
		// Append-only: replays never overwrite a terminal record.
		return nil
	}
	m.Records[key] = rec
	return nil
}

func (m *MockStore) ListCopyTradeRecords(ctx context.Context, originalOrderID string) ([]models.CopyTradeRecord, error) {
	if err := m.trackCall("ListCopyTradeRecords"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var recs []models.CopyTradeRecord
	for _, rec := range m.Records {
		if rec.OriginalOrderID == originalOrderID {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (m *MockStore) GetPortfolioValue(ctx context.Context, userID string) (float64, error) {
	if err := m.trackCall("GetPortfolioValue"); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PortfolioValues[userID], nil
}

func (m *MockStore) GetAvailableBalance(ctx context.Context, userID string) (float64, error) {
	if err := m.trackCall("GetAvailableBalance"); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Balances[userID], nil
}

func (m *MockStore) ApplyCopyFees(ctx context.Context, copierID string, fees models.CopyTradeFees) error {
	if err := m.trackCall("ApplyCopyFees"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Balances[copierID] -= fees.CopyFee + fees.PlatformFee
	return nil
}

func (m *MockStore) ListTraderIDs(ctx context.Context) ([]string, error) {
	if err := m.trackCall("ListTraderIDs"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Traders...), nil
}

func (m *MockStore) SaveFraudDetection(ctx context.Context, d models.FraudDetection) error {
	if err := m.trackCall("SaveFraudDetection"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Detections = append(m.Detections, d)
	return nil
}

func (m *MockStore) ListFraudDetections(ctx context.Context, userID string, limit int) ([]models.FraudDetection, error) {
	if err := m.trackCall("ListFraudDetections"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.FraudDetection
	for _, d := range m.Detections {
		if userID != "" && d.UserID != userID {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockStore) DisableCopyFeatures(ctx context.Context, userID string) error {
	if err := m.trackCall("DisableCopyFeatures"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Disabled[userID]++
	return nil
}

func (m *MockStore) GetWashTradeStats(ctx context.Context, userID string, since time.Time) (models.WashTradingResult, error) {
	if err := m.trackCall("GetWashTradeStats"); err != nil {
		return models.WashTradingResult{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.WashStats[userID], nil
}

func (m *MockStore) GetCopyLeaders(ctx context.Context, copierID string) ([]string, error) {
	if err := m.trackCall("GetCopyLeaders"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.CopyLeaders[copierID]...), nil
}

func (m *MockStore) GetPumpSignals(ctx context.Context, userID string, since time.Time) (models.PumpSignals, error) {
	if err := m.trackCall("GetPumpSignals"); err != nil {
		return models.PumpSignals{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PumpSignals[userID], nil
}

func (m *MockStore) GetFollowerAudit(ctx context.Context, userID string, minAccountAgeDays int) (models.FollowerAudit, error) {
	if err := m.trackCall("GetFollowerAudit"); err != nil {
		return models.FollowerAudit{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.FollowerAudits[userID], nil
}

func (m *MockStore) SaveActivity(ctx context.Context, a models.SocialActivity) error {
	if err := m.trackCall("SaveActivity"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Activities[a.ID] = a
	return nil
}

func (m *MockStore) GetFollowers(ctx context.Context, userID string, offset, limit int) ([]string, error) {
	if err := m.trackCall("GetFollowers"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	followers := m.Followers[userID]
	if offset >= len(followers) {
		return nil, nil
	}
	end := offset + limit
	if end > len(followers) {
		end = len(followers)
	}
	return append([]string(nil), followers[offset:end]...), nil
}

func (m *MockStore) SaveFeedItems(ctx context.Context, items []models.FeedItem) error {
	if err := m.trackCall("SaveFeedItems"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FeedItems = append(m.FeedItems, items...)
	return nil
}

func (m *MockStore) GetTradesForPeriod(ctx context.Context, userID string, start, end time.Time) ([]models.LedgerTrade, error) {
	if err := m.trackCall("GetTradesForPeriod"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.LedgerTrade
	for _, t := range m.Trades[userID] {
		if !t.ExecutedAt.Before(start) && t.ExecutedAt.Before(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MockStore) BatchUpdateTraderStats(ctx context.Context, stats []models.TraderStats) error {
	if err := m.trackCall("BatchUpdateTraderStats"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range stats {
		m.Stats[fmt.Sprintf("%s:%s", st.UserID, st.Period)] = st
	}
	return nil
}

func (m *MockStore) RecalculateLeaderboardPositions(ctx context.Context) error {
	return m.trackCall("RecalculateLeaderboardPositions")
}

func (m *MockStore) GetLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if err := m.trackCall("GetLeaderboard"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.Leaderboard
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return append([]models.LeaderboardEntry(nil), entries...), nil
}

func (m *MockStore) GetWorkflowStep(ctx context.Context, runID, stepKey string) ([]byte, bool, error) {
	if err := m.trackCall("GetWorkflowStep"); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result, ok := m.Steps[runID+":"+stepKey]
	return result, ok, nil
}

func (m *MockStore) RecordWorkflowStep(ctx context.Context, runID, stepKey string, result []byte) error {
	if err := m.trackCall("RecordWorkflowStep"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := runID + ":" + stepKey
	if _, exists := m.Steps[key]; !exists {
		m.Steps[key] = result
	}
	return nil
}

func (m *MockStore) RecordAuditLog(ctx context.Context, entry models.AuditLogEntry) error {
	if err := m.trackCall("RecordAuditLog"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuditEntries = append(m.AuditEntries, entry)
	return nil
}
