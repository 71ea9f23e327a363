package workflow

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aksrustagi/PULL-backend-sub010/activities"
	"github.com/aksrustagi/PULL-backend-sub010/config"
	"github.com/aksrustagi/PULL-backend-sub010/models"
	"github.com/aksrustagi/PULL-backend-sub010/storage"
)

// CopierOutcome is the terminal result of one copier's pipeline.
type CopierOutcome struct {
	CopierID string                 `json:"copier_id"`
	Status   models.CopyTradeStatus `json:"status"`
	Reason   string                 `json:"reason,omitempty"`
	Quantity float64                `json:"quantity,omitempty"`
	Notional float64                `json:"notional,omitempty"`
}

// CopyTradeSnapshot is the queryable status of one propagation run.
type CopyTradeSnapshot struct {
	RunID           string          `json:"run_id"`
	TraderID        string          `json:"trader_id"`
	OriginalOrderID string          `json:"original_order_id"`
	Phase           RunPhase        `json:"phase"`
	TotalCopiers    int             `json:"total_copiers"`
	Processed       int             `json:"processed"`
	Executed        int             `json:"executed"`
	Partial         int             `json:"partial"`
	Skipped         int             `json:"skipped"`
	Failed          int             `json:"failed"`
	Cancelled       int             `json:"cancelled"`
	Outcomes        []CopierOutcome `json:"outcomes"`
	StartedAt       time.Time       `json:"started_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CopyTradeWorkflow propagates one leader trade to every active copier.
type CopyTradeWorkflow struct {
	cfg          config.CopyTradeConfig
	fast         RetryPolicy
	expensive    RetryPolicy
	acts         activities.CopyTrade
	audit        activities.Audit
	store        storage.DataStore
	registry     *Registry
	proportional ProportionalSizer
}

// NewCopyTradeWorkflow wires the propagation workflow. A nil proportional
// sizer falls back to the default policy.
func NewCopyTradeWorkflow(cfg config.CopyTradeConfig, retry config.RetryProfiles, acts activities.CopyTrade, audit activities.Audit, store storage.DataStore, registry *Registry, proportional ProportionalSizer) *CopyTradeWorkflow {
	if proportional == nil {
		proportional = DefaultProportionalSizer
	}
	return &CopyTradeWorkflow{
		cfg:          cfg,
		fast:         PolicyFromConfig(retry.Fast),
		expensive:    PolicyFromConfig(retry.Expensive),
		acts:         acts,
		audit:        audit,
		store:        store,
		registry:     registry,
		proportional: proportional,
	}
}

// copyTradeRun carries the mutable per-run state behind a mutex so the query
// surface can read it while batches are in flight.
type copyTradeRun struct {
	run *Run

	mu       sync.Mutex
	snapshot CopyTradeSnapshot
}

func (r *copyTradeRun) Snapshot() interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.snapshot
	snap.Outcomes = append([]CopierOutcome(nil), r.snapshot.Outcomes...)
	return snap
}

func (r *copyTradeRun) recordOutcome(outcome CopierOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot.Processed++
	switch outcome.Status {
	case models.CopyTradeExecuted:
		r.snapshot.Executed++
	case models.CopyTradePartial:
		r.snapshot.Partial++
	case models.CopyTradeSkipped:
		r.snapshot.Skipped++
	case models.CopyTradeFailed:
		r.snapshot.Failed++
	case models.CopyTradeCancelled:
		r.snapshot.Cancelled++
	}
	r.snapshot.Outcomes = append(r.snapshot.Outcomes, outcome)
	r.snapshot.UpdatedAt = nowUTC()
}

func (r *copyTradeRun) setPhase(phase RunPhase) {
	r.mu.Lock()
	r.snapshot.Phase = phase
	r.snapshot.UpdatedAt = nowUTC()
	r.mu.Unlock()
}

// Propagate runs the batch path: every active subscription of the leader.
// Individual copier failures never abort the run; only a roster-fetch failure
// or a cancelled context does.
func (w *CopyTradeWorkflow) Propagate(ctx context.Context, runID string, trade models.LeaderTrade) (CopyTradeSnapshot, error) {
	run := NewRun(runID, w.store)

	subs, err := Execute(ctx, run, "roster", w.fast, func(ctx context.Context) ([]models.CopySubscription, error) {
		return w.acts.GetActiveCopiers(ctx, trade.TraderID)
	})
	if err != nil {
		return CopyTradeSnapshot{}, fmt.Errorf("fetch copier roster: %w", err)
	}
	return w.propagate(ctx, run, trade, subs)
}

// PropagateSingle runs the single-copy path for one subscription.
func (w *CopyTradeWorkflow) PropagateSingle(ctx context.Context, runID string, trade models.LeaderTrade, sub models.CopySubscription) (CopyTradeSnapshot, error) {
	run := NewRun(runID, w.store)
	return w.propagate(ctx, run, trade, []models.CopySubscription{sub})
}

func (w *CopyTradeWorkflow) propagate(ctx context.Context, run *Run, trade models.LeaderTrade, subs []models.CopySubscription) (CopyTradeSnapshot, error) {
	state := &copyTradeRun{
		run: run,
		snapshot: CopyTradeSnapshot{
			RunID:           run.ID,
			TraderID:        trade.TraderID,
			OriginalOrderID: trade.OriginalOrderID,
			Phase:           PhaseRunning,
			TotalCopiers:    len(subs),
			StartedAt:       nowUTC(),
			UpdatedAt:       nowUTC(),
		},
	}
	if w.registry != nil {
		w.registry.Register(run, state)
		defer w.registry.Finish(ctx, run, state)
	}

	w.auditBoundary(ctx, run, trade, "copy_trade_started", nil)
	log.Printf("[CopyTrade] run %s: propagating order %s from trader %s to %d copiers",
		run.ID, trade.OriginalOrderID, trade.TraderID, len(subs))

	batchSize := w.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	delay := time.Duration(w.cfg.InterBatchDelayMS) * time.Millisecond

	for start := 0; start < len(subs); start += batchSize {
		end := start + batchSize
		if end > len(subs) {
			end = len(subs)
		}
		batch := subs[start:end]

		ForEachBatch(ctx, batchSize, batch, func(ctx context.Context, _ int, sub models.CopySubscription) error {
			outcome := w.processCopier(ctx, run, trade, sub)
			state.recordOutcome(outcome)
			return nil
		})

		if end < len(subs) {
			if err := run.Sleep(ctx, delay); err != nil {
				state.setPhase(PhaseFailed)
				w.auditBoundary(ctx, run, trade, "copy_trade_failed", map[string]interface{}{"error": err.Error()})
				return state.snapshot, err
			}
		}
	}

	final := PhaseComplete
	if run.Cancelled() {
		final = PhaseCancelled
	}
	state.setPhase(final)
	snap := state.Snapshot().(CopyTradeSnapshot)
	w.auditBoundary(ctx, run, trade, "copy_trade_completed", map[string]interface{}{
		"executed": snap.Executed,
		"partial":  snap.Partial,
		"skipped":  snap.Skipped,
		"failed":   snap.Failed,
	})
	log.Printf("[CopyTrade] run %s: done (%d executed, %d partial, %d skipped, %d failed, %d cancelled)",
		run.ID, snap.Executed, snap.Partial, snap.Skipped, snap.Failed, snap.Cancelled)
	return snap, nil
}

// processCopier runs the full per-copier pipeline. It never returns an error:
// every failure mode collapses into a terminal outcome so siblings keep going.
func (w *CopyTradeWorkflow) processCopier(ctx context.Context, run *Run, trade models.LeaderTrade, sub models.CopySubscription) CopierOutcome {
	copierID := sub.CopierID
	stepPrefix := "copier:" + copierID + ":"

	// Replay guard: an earlier run (or an earlier crash of this one) may have
	// already produced a terminal record for this (order, copier) pair.
	existing, err := Execute(ctx, run, stepPrefix+"dedup", w.fast, func(ctx context.Context) (*models.CopyTradeRecord, error) {
		return w.acts.GetCopyTradeRecord(ctx, trade.OriginalOrderID, copierID)
	})
	if err != nil {
		return w.failCopier(ctx, run, trade, sub, fmt.Sprintf("dedup lookup: %v", err))
	}
	if existing != nil {
		return CopierOutcome{
			CopierID: copierID,
			Status:   existing.Status,
			Reason:   firstNonEmpty(existing.SkipReason, existing.FailureReason),
			Quantity: existing.CopiedQuantity,
			Notional: existing.CopiedQuantity * existing.OriginalPrice,
		}
	}

	if err := sub.Validate(); err != nil {
		return w.skipCopier(ctx, run, trade, sub, err.Error())
	}
	if sub.ExcludesMarketType(trade.MarketType) {
		return w.skipCopier(ctx, run, trade, sub, "market excluded")
	}
	if sub.ExcludesSymbol(trade.Symbol) {
		return w.skipCopier(ctx, run, trade, sub, "symbol excluded")
	}

	var portfolioValue float64
	if sub.CopyMode == models.CopyModePercentagePortfolio || sub.CopyMode == models.CopyModeProportional {
		portfolioValue, err = Execute(ctx, run, stepPrefix+"portfolio", w.fast, func(ctx context.Context) (float64, error) {
			return w.acts.GetCopierPortfolioValue(ctx, copierID)
		})
		if err != nil {
			return w.failCopier(ctx, run, trade, sub, fmt.Sprintf("portfolio lookup: %v", err))
		}
	}

	size := ComputeCopySize(sub, trade, portfolioValue, w.proportional)
	if size.Skip {
		return w.skipCopier(ctx, run, trade, sub, size.SkipReason)
	}

	balance, err := Execute(ctx, run, stepPrefix+"balance", w.fast, func(ctx context.Context) (activities.BalanceCheck, error) {
		return w.acts.CheckCopierBalance(ctx, copierID, size.Notional)
	})
	if err != nil {
		return w.failCopier(ctx, run, trade, sub, fmt.Sprintf("balance check: %v", err))
	}
	if !balance.Sufficient {
		size = AdjustForBalance(size, balance.Available, sub, trade.Price)
		if size.Skip {
			return w.skipCopier(ctx, run, trade, sub, size.SkipReason)
		}
	}

	if sub.CopyDelaySeconds > 0 {
		if err := run.Sleep(ctx, time.Duration(sub.CopyDelaySeconds)*time.Second); err != nil {
			return w.failCopier(ctx, run, trade, sub, fmt.Sprintf("copy delay interrupted: %v", err))
		}
	}

	// Last cancellation checkpoint. Past this point the order submission is
	// non-cancellable and never rolled back.
	if run.Cancelled() {
		return w.cancelCopier(ctx, run, trade, sub)
	}

	orderCtx := context.WithoutCancel(ctx)
	result, err := Execute(orderCtx, run, stepPrefix+"execute", w.expensive, func(ctx context.Context) (activities.OrderResult, error) {
		return w.acts.ExecuteCopierOrder(ctx, activities.OrderRequest{
			CopierID:         copierID,
			Symbol:           trade.Symbol,
			Side:             trade.Side,
			Quantity:         size.Quantity,
			Price:            trade.Price,
			OriginalTradeID:  trade.OriginalOrderID,
			OriginalTraderID: trade.TraderID,
		})
	})
	if err != nil {
		return w.failCopier(ctx, run, trade, sub, fmt.Sprintf("order execution: %v", err))
	}

	var status models.CopyTradeStatus
	switch result.Status {
	case activities.OrderFilled:
		status = models.CopyTradeExecuted
	case activities.OrderPartialFill:
		status = models.CopyTradePartial
	default:
		return w.failCopier(ctx, run, trade, sub, firstNonEmpty(result.Reason, "order rejected"))
	}

	filledNotional := result.FilledQuantity * result.AveragePrice
	fees := w.computeFees(sub, filledNotional)
	if err := Do(orderCtx, run, stepPrefix+"fees", w.fast, func(ctx context.Context) error {
		return w.acts.SettleCopyFees(ctx, copierID, fees)
	}); err != nil {
		// The order is filled; a fee-settlement failure must not erase that.
		log.Printf("[CopyTrade] run %s copier %s: fee settlement failed after fill: %v", run.ID, copierID, err)
	}

	now := nowUTC()
	record := models.CopyTradeRecord{
		ID:               uuid.New().String(),
		SubscriptionID:   sub.ID,
		CopierID:         copierID,
		TraderID:         trade.TraderID,
		OriginalOrderID:  trade.OriginalOrderID,
		Symbol:           trade.Symbol,
		Side:             trade.Side,
		OriginalQuantity: trade.Quantity,
		CopiedQuantity:   result.FilledQuantity,
		OriginalPrice:    trade.Price,
		CopiedPrice:      result.AveragePrice,
		Status:           status,
		Fees:             fees,
		OrderID:          result.OrderID,
		CreatedAt:        now,
		ExecutedAt:       &now,
	}
	w.finalizeCopier(ctx, run, record, sub, filledNotional)

	return CopierOutcome{
		CopierID: copierID,
		Status:   status,
		Quantity: result.FilledQuantity,
		Notional: filledNotional,
	}
}

func (w *CopyTradeWorkflow) computeFees(sub models.CopySubscription, notional float64) models.CopyTradeFees {
	copyRate := sub.CopyFeeRate
	if copyRate <= 0 {
		copyRate = w.cfg.DefaultCopyFee
	}
	return models.CopyTradeFees{
		CopyFee:     notional * copyRate,
		PlatformFee: notional * w.cfg.PlatformFeeRate,
	}
}

// SellerProceeds is the notional left for the seller after both fees.
func SellerProceeds(notional float64, fees models.CopyTradeFees) float64 {
	return notional - fees.CopyFee - fees.PlatformFee
}

func (w *CopyTradeWorkflow) skipCopier(ctx context.Context, run *Run, trade models.LeaderTrade, sub models.CopySubscription, reason string) CopierOutcome {
	w.writeTerminal(ctx, run, trade, sub, models.CopyTradeSkipped, reason)
	return CopierOutcome{CopierID: sub.CopierID, Status: models.CopyTradeSkipped, Reason: reason}
}

func (w *CopyTradeWorkflow) failCopier(ctx context.Context, run *Run, trade models.LeaderTrade, sub models.CopySubscription, reason string) CopierOutcome {
	w.writeTerminal(ctx, run, trade, sub, models.CopyTradeFailed, reason)
	return CopierOutcome{CopierID: sub.CopierID, Status: models.CopyTradeFailed, Reason: reason}
}

func (w *CopyTradeWorkflow) cancelCopier(ctx context.Context, run *Run, trade models.LeaderTrade, sub models.CopySubscription) CopierOutcome {
	w.writeTerminal(ctx, run, trade, sub, models.CopyTradeCancelled, "run cancelled")
	return CopierOutcome{CopierID: sub.CopierID, Status: models.CopyTradeCancelled, Reason: "run cancelled"}
}

// writeTerminal persists a non-executed terminal record and notifies the
// copier. Best effort: bookkeeping failures are logged, not escalated.
func (w *CopyTradeWorkflow) writeTerminal(ctx context.Context, run *Run, trade models.LeaderTrade, sub models.CopySubscription, status models.CopyTradeStatus, reason string) {
	record := models.CopyTradeRecord{
		ID:               uuid.New().String(),
		SubscriptionID:   sub.ID,
		CopierID:         sub.CopierID,
		TraderID:         trade.TraderID,
		OriginalOrderID:  trade.OriginalOrderID,
		Symbol:           trade.Symbol,
		Side:             trade.Side,
		OriginalQuantity: trade.Quantity,
		OriginalPrice:    trade.Price,
		Status:           status,
		CreatedAt:        nowUTC(),
	}
	switch status {
	case models.CopyTradeFailed:
		record.FailureReason = reason
	default:
		record.SkipReason = reason
	}
	w.finalizeCopier(ctx, run, record, sub, 0)
}

func (w *CopyTradeWorkflow) finalizeCopier(ctx context.Context, run *Run, record models.CopyTradeRecord, sub models.CopySubscription, notional float64) {
	stepPrefix := "copier:" + record.CopierID + ":"

	if err := Do(ctx, run, stepPrefix+"record", w.fast, func(ctx context.Context) error {
		return w.acts.RecordCopyTrade(ctx, record)
	}); err != nil {
		log.Printf("[CopyTrade] run %s copier %s: record write failed: %v", run.ID, record.CopierID, err)
	}

	if notional > 0 {
		if err := Do(ctx, run, stepPrefix+"exposure", w.fast, func(ctx context.Context) error {
			return w.acts.UpdateCopySettingsStats(ctx, sub.ID, notional)
		}); err != nil {
			log.Printf("[CopyTrade] run %s copier %s: exposure update failed: %v", run.ID, record.CopierID, err)
		}
	}

	if err := Do(ctx, run, stepPrefix+"notify", w.fast, func(ctx context.Context) error {
		return w.acts.SendCopyNotification(ctx, copyOutcomeNotification(record))
	}); err != nil {
		log.Printf("[CopyTrade] run %s copier %s: notification failed: %v", run.ID, record.CopierID, err)
	}
}

func copyOutcomeNotification(record models.CopyTradeRecord) activities.Notification {
	n := activities.Notification{
		RecipientID: record.CopierID,
		Kind:        "copy_trade_" + string(record.Status),
		Title:       "Copy trade " + string(record.Status),
		Metadata: map[string]interface{}{
			"original_order_id": record.OriginalOrderID,
			"symbol":            record.Symbol,
		},
	}
	switch record.Status {
	case models.CopyTradeExecuted, models.CopyTradePartial:
		n.Body = fmt.Sprintf("Copied %s %s: %.4f @ %.4f", record.Side, record.Symbol, record.CopiedQuantity, record.CopiedPrice)
	case models.CopyTradeSkipped, models.CopyTradeCancelled:
		n.Body = fmt.Sprintf("Copy of %s %s skipped: %s", record.Side, record.Symbol, record.SkipReason)
	case models.CopyTradeFailed:
		n.Body = fmt.Sprintf("Copy of %s %s failed: %s", record.Side, record.Symbol, record.FailureReason)
	}
	return n
}

func (w *CopyTradeWorkflow) auditBoundary(ctx context.Context, run *Run, trade models.LeaderTrade, action string, metadata map[string]interface{}) {
	if w.audit == nil {
		return
	}
	entry := models.AuditLogEntry{
		UserID:       trade.TraderID,
		Action:       action,
		ResourceType: "copy_trade_run",
		ResourceID:   run.ID,
		Metadata:     metadata,
		CreatedAt:    nowUTC(),
	}
	if err := w.audit.RecordAuditLog(ctx, entry); err != nil {
		log.Printf("[CopyTrade] run %s: audit write failed: %v", run.ID, err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
