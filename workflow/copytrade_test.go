package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aksrustagi/PULL-backend-sub010/activities"
	"github.com/aksrustagi/PULL-backend-sub010/config"
	"github.com/aksrustagi/PULL-backend-sub010/models"
	"github.com/aksrustagi/PULL-backend-sub010/storage"
)

func testRetryProfiles() config.RetryProfiles {
	return config.RetryProfiles{
		Fast:      config.RetryConfig{InitialIntervalMS: 1, BackoffCoefficient: 2, MaxIntervalMS: 5, MaxAttempts: 2},
		Expensive: config.RetryConfig{InitialIntervalMS: 1, BackoffCoefficient: 2, MaxIntervalMS: 5, MaxAttempts: 1},
	}
}

func testCopyTradeConfig() config.CopyTradeConfig {
	return config.CopyTradeConfig{
		BatchSize:         10,
		InterBatchDelayMS: 1,
		PlatformFeeRate:   0.001,
		DefaultCopyFee:    0.002,
	}
}

func newCopyTradeFixture() (*CopyTradeWorkflow, *activities.Mock, *storage.MockStore, *Registry) {
	mock := activities.NewMock()
	store := storage.NewMockStore()
	registry := NewRegistry(nil)
	w := NewCopyTradeWorkflow(testCopyTradeConfig(), testRetryProfiles(), mock, mock, store, registry, nil)
	return w, mock, store, registry
}

func activeSub(copierID string) models.CopySubscription {
	return models.CopySubscription{
		ID:              "sub-" + copierID,
		CopierID:        copierID,
		TraderID:        "trader-1",
		CopyMode:        models.CopyModeFixedAmount,
		FixedAmount:     50,
		MinPositionSize: 5,
		Status:          models.SubscriptionActive,
	}
}

func outcomesByID(snap CopyTradeSnapshot) map[string]CopierOutcome {
	out := make(map[string]CopierOutcome, len(snap.Outcomes))
	for _, o := range snap.Outcomes {
		out[o.CopierID] = o
	}
	return out
}

func TestPropagateFixedAmountExecutes(t *testing.T) {
	w, mock, _, _ := newCopyTradeFixture()
	mock.Copiers["trader-1"] = []models.CopySubscription{activeSub("copier-1")}
	mock.Balances["copier-1"] = 1000

	trade := models.LeaderTrade{
		TraderID:        "trader-1",
		OriginalOrderID: "order-1",
		Symbol:          "ACME",
		Side:            "sell",
		Quantity:        100,
		Price:           0.55,
	}

	snap, err := w.Propagate(context.Background(), "run-a", trade)
	if err != nil {
		t.Fatalf("propagate: %v", err)
	}
	if snap.Executed != 1 {
		t.Fatalf("executed = %d, want 1 (snapshot: %+v)", snap.Executed, snap)
	}

	outcome := outcomesByID(snap)["copier-1"]
	if outcome.Status != models.CopyTradeExecuted {
		t.Fatalf("status = %s, want executed (reason %q)", outcome.Status, outcome.Reason)
	}
	if !floatEquals(outcome.Quantity, 90.909, 0.01) {
		t.Errorf("quantity = %.4f, want ~90.909", outcome.Quantity)
	}

	if len(mock.SavedRecords) != 1 {
		t.Fatalf("saved records = %d, want 1", len(mock.SavedRecords))
	}
	record := mock.SavedRecords[0]
	if record.Status != models.CopyTradeExecuted {
		t.Errorf("record status = %s, want executed", record.Status)
	}
	if record.OrderID == "" {
		t.Error("record missing engine order ID")
	}
	if len(mock.Notifications) != 1 {
		t.Errorf("notifications = %d, want 1", len(mock.Notifications))
	}
}

func TestPropagateExcludedMarketSkips(t *testing.T) {
	w, mock, _, _ := newCopyTradeFixture()
	sub := activeSub("copier-1")
	sub.ExcludeMarketTypes = []string{"sports"}
	mock.Copiers["trader-1"] = []models.CopySubscription{sub}

	trade := models.LeaderTrade{
		TraderID:        "trader-1",
		OriginalOrderID: "order-1",
		Symbol:          "ACME",
		Side:            "sell",
		Quantity:        100,
		Price:           0.55,
		MarketType:      "sports",
	}

	snap, err := w.Propagate(context.Background(), "run-b", trade)
	if err != nil {
		t.Fatalf("propagate: %v", err)
	}
	outcome := outcomesByID(snap)["copier-1"]
	if outcome.Status != models.CopyTradeSkipped {
		t.Fatalf("status = %s, want skipped", outcome.Status)
	}
	if outcome.Reason != "market excluded" {
		t.Errorf("reason = %q, want mention of exclusion", outcome.Reason)
	}
	if mock.Calls["ExecuteCopierOrder"] != 0 {
		t.Error("order engine called for an excluded market")
	}
	// Skips still leave an audit record behind.
	if len(mock.SavedRecords) != 1 || mock.SavedRecords[0].SkipReason != "market excluded" {
		t.Errorf("skip record not written: %+v", mock.SavedRecords)
	}
}

func TestPropagateFailureIsolation(t *testing.T) {
	w, mock, _, _ := newCopyTradeFixture()

	subs := make([]models.CopySubscription, 20)
	for i := range subs {
		copierID := fmt.Sprintf("copier-%d", i+1)
		subs[i] = activeSub(copierID)
		mock.Balances[copierID] = 1000
	}
	mock.Copiers["trader-1"] = subs
	mock.ErrorOnNext["ExecuteCopierOrder:copier-5"] = errors.New("engine timeout")

	trade := models.LeaderTrade{
		TraderID:        "trader-1",
		OriginalOrderID: "order-iso",
		Symbol:          "ACME",
		Side:            "buy",
		Quantity:        100,
		Price:           0.50,
	}

	snap, err := w.Propagate(context.Background(), "run-iso", trade)
	if err != nil {
		t.Fatalf("propagate: %v", err)
	}
	if snap.Failed != 1 {
		t.Fatalf("failed = %d, want exactly 1", snap.Failed)
	}
	if snap.Executed != 19 {
		t.Fatalf("executed = %d, want 19", snap.Executed)
	}

	outcomes := outcomesByID(snap)
	if outcomes["copier-5"].Status != models.CopyTradeFailed {
		t.Errorf("copier-5 status = %s, want failed", outcomes["copier-5"].Status)
	}
	for i := 1; i <= 20; i++ {
		if i == 5 {
			continue
		}
		id := fmt.Sprintf("copier-%d", i)
		if outcomes[id].Status != models.CopyTradeExecuted {
			t.Errorf("%s status = %s, want executed", id, outcomes[id].Status)
		}
	}
}

func TestPropagateIdempotentReplay(t *testing.T) {
	w, mock, _, _ := newCopyTradeFixture()
	mock.Copiers["trader-1"] = []models.CopySubscription{activeSub("copier-1")}
	mock.Balances["copier-1"] = 1000

	// A prior run already executed this (order, copier) pair.
	existing := models.CopyTradeRecord{
		ID:              "rec-1",
		CopierID:        "copier-1",
		TraderID:        "trader-1",
		OriginalOrderID: "order-dup",
		Status:          models.CopyTradeExecuted,
		CopiedQuantity:  90.9,
		OriginalPrice:   0.55,
	}
	mock.Records["order-dup:copier-1"] = &existing

	trade := models.LeaderTrade{
		TraderID:        "trader-1",
		OriginalOrderID: "order-dup",
		Symbol:          "ACME",
		Side:            "sell",
		Quantity:        100,
		Price:           0.55,
	}

	snap, err := w.Propagate(context.Background(), "run-dup", trade)
	if err != nil {
		t.Fatalf("propagate: %v", err)
	}
	outcome := outcomesByID(snap)["copier-1"]
	if outcome.Status != models.CopyTradeExecuted {
		t.Fatalf("replayed status = %s, want executed", outcome.Status)
	}
	if mock.Calls["ExecuteCopierOrder"] != 0 {
		t.Error("order re-executed despite existing terminal record")
	}
	if len(mock.SavedRecords) != 0 {
		t.Errorf("new records written on replay: %d", len(mock.SavedRecords))
	}
}

func TestPropagatePartialCopyOnLowBalance(t *testing.T) {
	w, mock, _, _ := newCopyTradeFixture()
	mock.Copiers["trader-1"] = []models.CopySubscription{activeSub("copier-1")}
	mock.Balances["copier-1"] = 25 // half the $50 target

	trade := models.LeaderTrade{
		TraderID:        "trader-1",
		OriginalOrderID: "order-partial",
		Symbol:          "ACME",
		Side:            "buy",
		Quantity:        100,
		Price:           0.50,
	}

	snap, err := w.Propagate(context.Background(), "run-partial", trade)
	if err != nil {
		t.Fatalf("propagate: %v", err)
	}
	outcome := outcomesByID(snap)["copier-1"]
	if outcome.Status != models.CopyTradeExecuted {
		t.Fatalf("status = %s (reason %q), want executed", outcome.Status, outcome.Reason)
	}
	if !floatEquals(outcome.Quantity, 50, 0.001) {
		t.Errorf("quantity = %.4f, want 50 (partial copy down to balance)", outcome.Quantity)
	}
}

func TestPropagateInsufficientBalanceSkips(t *testing.T) {
	w, mock, _, _ := newCopyTradeFixture()
	mock.Copiers["trader-1"] = []models.CopySubscription{activeSub("copier-1")}
	mock.Balances["copier-1"] = 2 // below the $5 minimum

	trade := models.LeaderTrade{
		TraderID:        "trader-1",
		OriginalOrderID: "order-broke",
		Symbol:          "ACME",
		Side:            "buy",
		Quantity:        100,
		Price:           0.50,
	}

	snap, err := w.Propagate(context.Background(), "run-broke", trade)
	if err != nil {
		t.Fatalf("propagate: %v", err)
	}
	outcome := outcomesByID(snap)["copier-1"]
	if outcome.Status != models.CopyTradeSkipped {
		t.Fatalf("status = %s, want skipped", outcome.Status)
	}
	if outcome.Reason != "insufficient balance" {
		t.Errorf("reason = %q, want insufficient balance", outcome.Reason)
	}
}

func TestPropagateFeeConservation(t *testing.T) {
	w, mock, _, _ := newCopyTradeFixture()
	mock.Copiers["trader-1"] = []models.CopySubscription{activeSub("copier-1")}
	mock.Balances["copier-1"] = 1000

	trade := models.LeaderTrade{
		TraderID:        "trader-1",
		OriginalOrderID: "order-fees",
		Symbol:          "ACME",
		Side:            "sell",
		Quantity:        100,
		Price:           0.55,
	}

	if _, err := w.Propagate(context.Background(), "run-fees", trade); err != nil {
		t.Fatalf("propagate: %v", err)
	}

	fees, ok := mock.FeesSettled["copier-1"]
	if !ok {
		t.Fatal("fees never settled")
	}
	record := mock.SavedRecords[0]
	notional := record.CopiedQuantity * record.CopiedPrice

	if !floatEquals(fees.PlatformFee, notional*0.001, 1e-9) {
		t.Errorf("platform fee = %.6f, want %.6f", fees.PlatformFee, notional*0.001)
	}
	if !floatEquals(fees.CopyFee, notional*0.002, 1e-9) {
		t.Errorf("copy fee = %.6f, want %.6f", fees.CopyFee, notional*0.002)
	}
	// No value created or destroyed.
	total := fees.CopyFee + fees.PlatformFee + SellerProceeds(notional, fees)
	if !floatEquals(total, notional, 1e-9) {
		t.Errorf("fees + proceeds = %.6f, want %.6f", total, notional)
	}
}

func TestPropagateCancellationBeforeExecution(t *testing.T) {
	w, mock, _, registry := newCopyTradeFixture()
	sub := activeSub("copier-1")
	sub.CopyDelaySeconds = 1 // window for the cancel signal to land
	mock.Copiers["trader-1"] = []models.CopySubscription{sub}
	mock.Balances["copier-1"] = 1000

	trade := models.LeaderTrade{
		TraderID:        "trader-1",
		OriginalOrderID: "order-cancel",
		Symbol:          "ACME",
		Side:            "buy",
		Quantity:        100,
		Price:           0.50,
	}

	done := make(chan CopyTradeSnapshot, 1)
	go func() {
		snap, _ := w.Propagate(context.Background(), "run-cancel", trade)
		done <- snap
	}()

	deadline := time.After(2 * time.Second)
	for !registry.Cancel("run-cancel") {
		select {
		case <-deadline:
			t.Fatal("run never became active")
		case <-time.After(5 * time.Millisecond):
		}
	}

	snap := <-done
	outcome := outcomesByID(snap)["copier-1"]
	if outcome.Status != models.CopyTradeCancelled {
		t.Fatalf("status = %s, want cancelled", outcome.Status)
	}
	if mock.Calls["ExecuteCopierOrder"] != 0 {
		t.Error("order executed despite cancellation before the execute step")
	}
	if snap.Phase != PhaseCancelled {
		t.Errorf("phase = %s, want cancelled", snap.Phase)
	}
}

func TestPropagateMonotonicClamping(t *testing.T) {
	w, mock, _, _ := newCopyTradeFixture()
	sub := activeSub("copier-1")
	sub.FixedAmount = 500
	sub.MaxPositionSize = 100
	mock.Copiers["trader-1"] = []models.CopySubscription{sub}
	mock.Balances["copier-1"] = 10000

	trade := models.LeaderTrade{
		TraderID:        "trader-1",
		OriginalOrderID: "order-clamp",
		Symbol:          "ACME",
		Side:            "buy",
		Quantity:        100,
		Price:           0.50,
	}

	snap, err := w.Propagate(context.Background(), "run-clamp", trade)
	if err != nil {
		t.Fatalf("propagate: %v", err)
	}
	outcome := outcomesByID(snap)["copier-1"]
	if outcome.Status != models.CopyTradeExecuted {
		t.Fatalf("status = %s, want executed", outcome.Status)
	}
	notional := outcome.Quantity * trade.Price
	if notional < sub.MinPositionSize-0.001 || notional > sub.MaxPositionSize+0.001 {
		t.Errorf("notional %.4f outside [%.2f, %.2f]", notional, sub.MinPositionSize, sub.MaxPositionSize)
	}
}
