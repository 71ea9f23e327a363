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

// FraudScanSnapshot is the queryable status of one surveillance scan.
// ProcessedUsers counts progress through the current detector pass and resets
// when the next detector starts; CompletedPasses tracks overall progress.
type FraudScanSnapshot struct {
	RunID                string                  `json:"run_id"`
	Phase                RunPhase                `json:"phase"`
	CurrentDetector      string                  `json:"current_detector,omitempty"`
	TotalUsers           int                     `json:"total_users"`
	ProcessedUsers       int                     `json:"processed_users"`
	CompletedPasses      int                     `json:"completed_passes"`
	TotalPasses          int                     `json:"total_passes"`
	DetectionsByType     map[models.FraudType]int `json:"detections_by_type"`
	DetectionsBySeverity map[models.Severity]int  `json:"detections_by_severity"`
	Detections           []models.FraudDetection `json:"detections"`
	StartedAt            time.Time               `json:"started_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
}

// FraudWorkflow runs the four-detector surveillance scan over the trader
// population and applies the enforcement policy to its findings.
type FraudWorkflow struct {
	cfg       config.FraudConfig
	fast      RetryPolicy
	expensive RetryPolicy
	acts      activities.Fraud
	audit     activities.Audit
	store     storage.DataStore
	registry  *Registry
}

// NewFraudWorkflow wires the surveillance scan.
func NewFraudWorkflow(cfg config.FraudConfig, retry config.RetryProfiles, acts activities.Fraud, audit activities.Audit, store storage.DataStore, registry *Registry) *FraudWorkflow {
	return &FraudWorkflow{
		cfg:       cfg,
		fast:      PolicyFromConfig(retry.Fast),
		expensive: PolicyFromConfig(retry.Expensive),
		acts:      acts,
		audit:     audit,
		store:     store,
		registry:  registry,
	}
}

type fraudScanRun struct {
	run *Run

	mu       sync.Mutex
	snapshot FraudScanSnapshot
	// Users whose circular-copy cycle was already recorded this run, so one
	// cycle yields one finding no matter how many of its members get scanned.
	handledCycles map[string]bool
}

func (r *fraudScanRun) Snapshot() interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.snapshot
	snap.Detections = append([]models.FraudDetection(nil), r.snapshot.Detections...)
	snap.DetectionsByType = copyTypeCounts(r.snapshot.DetectionsByType)
	snap.DetectionsBySeverity = copySeverityCounts(r.snapshot.DetectionsBySeverity)
	return snap
}

func (r *fraudScanRun) markProcessed() {
	r.mu.Lock()
	r.snapshot.ProcessedUsers++
	r.snapshot.UpdatedAt = nowUTC()
	r.mu.Unlock()
}

func (r *fraudScanRun) addDetection(d models.FraudDetection) {
	r.mu.Lock()
	r.snapshot.Detections = append(r.snapshot.Detections, d)
	r.snapshot.DetectionsByType[d.Type]++
	r.snapshot.DetectionsBySeverity[d.Severity]++
	r.snapshot.UpdatedAt = nowUTC()
	r.mu.Unlock()
}

func (r *fraudScanRun) setDetector(name string) {
	r.mu.Lock()
	r.snapshot.CurrentDetector = name
	r.snapshot.ProcessedUsers = 0
	r.snapshot.UpdatedAt = nowUTC()
	r.mu.Unlock()
}

func (r *fraudScanRun) passDone() {
	r.mu.Lock()
	r.snapshot.CompletedPasses++
	r.snapshot.UpdatedAt = nowUTC()
	r.mu.Unlock()
}

func (r *fraudScanRun) setPhase(phase RunPhase) {
	r.mu.Lock()
	r.snapshot.Phase = phase
	r.snapshot.CurrentDetector = ""
	r.snapshot.UpdatedAt = nowUTC()
	r.mu.Unlock()
}

// cycleHandled marks all members of a cycle as handled and reports whether
// any of them had been handled before.
func (r *fraudScanRun) cycleHandled(members []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	already := false
	for _, m := range members {
		if r.handledCycles[m] {
			already = true
		}
		r.handledCycles[m] = true
	}
	return already
}

// Scan runs the full surveillance pipeline. targetUserID narrows the scan to
// one trader; empty means the whole population.
func (w *FraudWorkflow) Scan(ctx context.Context, runID, targetUserID string) (FraudScanSnapshot, error) {
	run := NewRun(runID, w.store)

	var users []string
	var err error
	if targetUserID != "" {
		users = []string{targetUserID}
	} else {
		users, err = Execute(ctx, run, "population", w.fast, func(ctx context.Context) ([]string, error) {
			return w.acts.ListTraders(ctx)
		})
		if err != nil {
			return FraudScanSnapshot{}, fmt.Errorf("list trader population: %w", err)
		}
	}

	passes := []struct {
		name string
		scan func(ctx context.Context, state *fraudScanRun, userID string) error
	}{
		{"wash_trading", w.scanWashTrading},
		{"circular_copying", w.scanCircularCopying},
		{"pump_and_dump", w.scanPumpAndDump},
		{"fake_followers", w.scanFakeFollowers},
	}

	state := &fraudScanRun{
		run: run,
		snapshot: FraudScanSnapshot{
			RunID:                runID,
			Phase:                PhaseRunning,
			TotalUsers:           len(users),
			TotalPasses:          len(passes),
			DetectionsByType:     make(map[models.FraudType]int),
			DetectionsBySeverity: make(map[models.Severity]int),
			StartedAt:            nowUTC(),
			UpdatedAt:            nowUTC(),
		},
		handledCycles: make(map[string]bool),
	}
	if w.registry != nil {
		w.registry.Register(run, state)
		defer w.registry.Finish(ctx, run, state)
	}

	w.auditBoundary(ctx, run, "fraud_scan_started", map[string]interface{}{"users": len(users)})
	log.Printf("[FraudScan] run %s: scanning %d traders", runID, len(users))

	for _, pass := range passes {
		state.setDetector(pass.name)
		if err := w.runDetectorPass(ctx, state, pass.name, users, pass.scan); err != nil {
			state.setPhase(PhaseFailed)
			w.auditBoundary(ctx, run, "fraud_scan_failed", map[string]interface{}{
				"detector": pass.name,
				"error":    err.Error(),
			})
			return state.Snapshot().(FraudScanSnapshot), fmt.Errorf("%s pass: %w", pass.name, err)
		}
		state.passDone()
	}

	state.setPhase(PhaseComplete)
	snap := state.Snapshot().(FraudScanSnapshot)
	w.auditBoundary(ctx, run, "fraud_scan_completed", map[string]interface{}{
		"users":      snap.TotalUsers,
		"passes":     snap.CompletedPasses,
		"detections": len(snap.Detections),
	})
	log.Printf("[FraudScan] run %s: done, %d findings over %d traders", runID, len(snap.Detections), snap.TotalUsers)
	return snap, nil
}

// runDetectorPass sweeps the population in batches with intra-batch
// parallelism. A single user's detector failure is logged and absorbed; only
// a context cancellation aborts the pass.
func (w *FraudWorkflow) runDetectorPass(ctx context.Context, state *fraudScanRun, name string, users []string, scan func(ctx context.Context, state *fraudScanRun, userID string) error) error {
	batchSize := w.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 25
	}

	for start := 0; start < len(users); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + batchSize
		if end > len(users) {
			end = len(users)
		}

		failures := ForEachBatch(ctx, batchSize, users[start:end], func(ctx context.Context, _ int, userID string) error {
			defer state.markProcessed()
			return scan(ctx, state, userID)
		})
		for _, f := range failures {
			log.Printf("[FraudScan] run %s: %s detector failed for %s: %v", state.run.ID, name, users[start+f.Index], f.Err)
		}
	}
	return nil
}

func (w *FraudWorkflow) scanWashTrading(ctx context.Context, state *fraudScanRun, userID string) error {
	result, err := Execute(ctx, state.run, "wash:"+userID, w.expensive, func(ctx context.Context) (models.WashTradingResult, error) {
		return w.acts.DetectWashTrading(ctx, userID, w.cfg.WashLookbackDays)
	})
	if err != nil {
		return err
	}
	if !result.Detected || result.Occurrences < w.cfg.WashMinOccurrences {
		return nil
	}

	severity := GradeWashSeverity(result.Occurrences)
	detection := models.FraudDetection{
		ID:       uuid.New().String(),
		UserID:   userID,
		Type:     models.FraudWashTrading,
		Severity: severity,
		Evidence: map[string]interface{}{
			"occurrences":       result.Occurrences,
			"suspicious_trades": result.SuspiciousTrades,
			"total_volume":      result.TotalVolume,
		},
		DetectedAt: nowUTC(),
	}
	if err := w.recordFinding(ctx, state, detection); err != nil {
		return err
	}
	if severity == models.SeverityCritical {
		return w.enforce(ctx, state, userID, detection)
	}
	// High findings stay enabled but still page operations.
	return w.alert(ctx, state, detection)
}

func (w *FraudWorkflow) scanCircularCopying(ctx context.Context, state *fraudScanRun, userID string) error {
	result, err := Execute(ctx, state.run, "circular:"+userID, w.expensive, func(ctx context.Context) (models.CircularCopyingResult, error) {
		return w.acts.DetectCircularCopying(ctx, userID, w.cfg.CircularMaxChainLength)
	})
	if err != nil {
		return err
	}
	if !result.Detected {
		return nil
	}
	// One finding per cycle, however many of its members the sweep visits.
	if state.cycleHandled(result.InvolvedUsers) {
		return nil
	}

	detection := models.FraudDetection{
		ID:       uuid.New().String(),
		UserID:   userID,
		Type:     models.FraudCircularCopying,
		Severity: models.SeverityHigh,
		Evidence: map[string]interface{}{
			"chains":         result.Chains,
			"involved_users": result.InvolvedUsers,
		},
		DetectedAt: nowUTC(),
	}
	if err := w.recordFinding(ctx, state, detection); err != nil {
		return err
	}
	// Everyone in the cycle loses copy features, not just the scanned user.
	for _, member := range result.InvolvedUsers {
		if err := w.disableUser(ctx, state, member); err != nil {
			return err
		}
	}
	return w.alert(ctx, state, detection)
}

func (w *FraudWorkflow) scanPumpAndDump(ctx context.Context, state *fraudScanRun, userID string) error {
	result, err := Execute(ctx, state.run, "pump:"+userID, w.expensive, func(ctx context.Context) (models.PumpAndDumpResult, error) {
		return w.acts.DetectPumpAndDump(ctx, userID, activities.PumpThresholds{
			SpikeMultiple:  w.cfg.PumpSpikeMultiple,
			PriceImpactPct: w.cfg.PumpPriceImpactPct,
			FollowerGain:   w.cfg.PumpFollowerGain,
			LookbackDays:   w.cfg.WashLookbackDays,
		})
	})
	if err != nil {
		return err
	}
	if !result.Detected {
		return nil
	}

	severity := GradePumpSeverity(result.ImpactedCopiers)
	detection := models.FraudDetection{
		ID:       uuid.New().String(),
		UserID:   userID,
		Type:     models.FraudPumpAndDump,
		Severity: severity,
		Evidence: map[string]interface{}{
			"impacted_copiers": result.ImpactedCopiers,
			"price_impact":     result.PriceImpact,
			"follower_gain":    result.FollowerGain,
			"trader_pnl":       result.TraderPNL,
		},
		DetectedAt: nowUTC(),
	}
	if err := w.recordFinding(ctx, state, detection); err != nil {
		return err
	}
	if severity.AtLeast(models.SeverityHigh) {
		return w.enforce(ctx, state, userID, detection)
	}
	return nil
}

func (w *FraudWorkflow) scanFakeFollowers(ctx context.Context, state *fraudScanRun, userID string) error {
	result, err := Execute(ctx, state.run, "fake:"+userID, w.expensive, func(ctx context.Context) (models.FakeFollowersResult, error) {
		return w.acts.DetectFakeFollowers(ctx, userID, activities.FollowerThresholds{
			InactivePct:       w.cfg.FakeInactivePct,
			MinAccountAgeDays: w.cfg.FakeMinAccountAgeDays,
			MinFollowers:      w.cfg.FakeMinFollowers,
		})
	})
	if err != nil {
		return err
	}
	if !result.Detected {
		return nil
	}

	severity := GradeFakeFollowerSeverity(result.FakePercent)
	detection := models.FraudDetection{
		ID:       uuid.New().String(),
		UserID:   userID,
		Type:     models.FraudFakeFollowers,
		Severity: severity,
		Evidence: map[string]interface{}{
			"fake_percent":        result.FakePercent,
			"total_followers":     result.TotalFollowers,
			"fake_followers":      result.FakeFollowers,
			"suspicious_accounts": result.SuspiciousAccounts,
		},
		DetectedAt: nowUTC(),
	}
	if err := w.recordFinding(ctx, state, detection); err != nil {
		return err
	}
	// Never auto-enforced: organic virality looks the same from here.
	if severity.AtLeast(models.SeverityHigh) {
		return w.alert(ctx, state, detection)
	}
	return nil
}

func (w *FraudWorkflow) recordFinding(ctx context.Context, state *fraudScanRun, detection models.FraudDetection) error {
	if err := Do(ctx, state.run, "finding:"+string(detection.Type)+":"+detection.UserID, w.fast, func(ctx context.Context) error {
		return w.acts.RecordFraudFlag(ctx, detection)
	}); err != nil {
		return fmt.Errorf("record %s finding for %s: %w", detection.Type, detection.UserID, err)
	}
	state.addDetection(detection)
	return nil
}

// enforce disables copy features and emits the operations alert.
func (w *FraudWorkflow) enforce(ctx context.Context, state *fraudScanRun, userID string, detection models.FraudDetection) error {
	if err := w.disableUser(ctx, state, userID); err != nil {
		return err
	}
	return w.alert(ctx, state, detection)
}

func (w *FraudWorkflow) disableUser(ctx context.Context, state *fraudScanRun, userID string) error {
	if err := Do(ctx, state.run, "disable:"+userID, w.fast, func(ctx context.Context) error {
		return w.acts.DisableCopyFeatures(ctx, userID)
	}); err != nil {
		return fmt.Errorf("disable copy features for %s: %w", userID, err)
	}
	return nil
}

// alert goes to the operations channel, never to the trader under review.
func (w *FraudWorkflow) alert(ctx context.Context, state *fraudScanRun, detection models.FraudDetection) error {
	if !detection.Severity.AtLeast(models.SeverityHigh) {
		return nil
	}
	return Do(ctx, state.run, "alert:"+string(detection.Type)+":"+detection.UserID, w.fast, func(ctx context.Context) error {
		return w.acts.SendFraudAlert(ctx, activities.Notification{
			RecipientID: "operations",
			Kind:        "fraud_alert",
			Title:       fmt.Sprintf("%s finding (%s)", detection.Type, detection.Severity),
			Body:        fmt.Sprintf("Trader %s flagged for %s with severity %s", detection.UserID, detection.Type, detection.Severity),
			Metadata:    map[string]interface{}{"detection_id": detection.ID},
		})
	})
}

func (w *FraudWorkflow) auditBoundary(ctx context.Context, run *Run, action string, metadata map[string]interface{}) {
	if w.audit == nil {
		return
	}
	entry := models.AuditLogEntry{
		Action:       action,
		ResourceType: "fraud_scan",
		ResourceID:   run.ID,
		Metadata:     metadata,
		CreatedAt:    nowUTC(),
	}
	if err := w.audit.RecordAuditLog(ctx, entry); err != nil {
		log.Printf("[FraudScan] run %s: audit write failed: %v", run.ID, err)
	}
}

// GradeWashSeverity scales with self-trade occurrence count.
func GradeWashSeverity(occurrences int) models.Severity {
	switch {
	case occurrences >= 10:
		return models.SeverityCritical
	case occurrences >= 7:
		return models.SeverityHigh
	case occurrences >= 5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// GradePumpSeverity scales with how many copiers were dragged along.
func GradePumpSeverity(impactedCopiers int) models.Severity {
	switch {
	case impactedCopiers > 50:
		return models.SeverityCritical
	case impactedCopiers > 20:
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}

// GradeFakeFollowerSeverity scales with the fake-follower percentage.
func GradeFakeFollowerSeverity(fakePercent float64) models.Severity {
	switch {
	case fakePercent > 90:
		return models.SeverityCritical
	case fakePercent > 80:
		return models.SeverityHigh
	case fakePercent > 70:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func copyTypeCounts(in map[models.FraudType]int) map[models.FraudType]int {
	out := make(map[models.FraudType]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copySeverityCounts(in map[models.Severity]int) map[models.Severity]int {
	out := make(map[models.Severity]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
