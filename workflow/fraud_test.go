package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/aksrustagi/PULL-backend-sub010/activities"
	"github.com/aksrustagi/PULL-backend-sub010/config"
	"github.com/aksrustagi/PULL-backend-sub010/models"
	"github.com/aksrustagi/PULL-backend-sub010/storage"
)

func testFraudConfig() config.FraudConfig {
	return config.FraudConfig{
		ScanIntervalHours:      6,
		BatchSize:              25,
		WashLookbackDays:       7,
		WashMinOccurrences:     3,
		CircularMaxChainLength: 2,
		PumpSpikeMultiple:      10,
		PumpPriceImpactPct:     5,
		PumpFollowerGain:       50,
		FakeInactivePct:        80,
		FakeMinAccountAgeDays:  7,
		FakeMinFollowers:       100,
	}
}

func newFraudFixture() (*FraudWorkflow, *activities.Mock) {
	mock := activities.NewMock()
	store := storage.NewMockStore()
	return NewFraudWorkflow(testFraudConfig(), testRetryProfiles(), mock, mock, store, NewRegistry(nil)), mock
}

func detectionsOfType(detections []models.FraudDetection, t models.FraudType) []models.FraudDetection {
	var out []models.FraudDetection
	for _, d := range detections {
		if d.Type == t {
			out = append(out, d)
		}
	}
	return out
}

func TestScanCriticalWashTradingEnforces(t *testing.T) {
	w, mock := newFraudFixture()
	mock.Traders = []string{"trader-1"}
	mock.WashResults["trader-1"] = models.WashTradingResult{Detected: true, Occurrences: 12}

	snap, err := w.Scan(context.Background(), "scan-c", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	washFindings := detectionsOfType(snap.Detections, models.FraudWashTrading)
	if len(washFindings) != 1 {
		t.Fatalf("wash findings = %d, want 1", len(washFindings))
	}
	if washFindings[0].Severity != models.SeverityCritical {
		t.Errorf("severity = %s, want critical", washFindings[0].Severity)
	}
	if mock.Disabled["trader-1"] != 1 {
		t.Errorf("disableCopyFeatures called %d times, want exactly 1", mock.Disabled["trader-1"])
	}
}

func TestScanHighWashTradingAlertsWithoutEnforcing(t *testing.T) {
	w, mock := newFraudFixture()
	mock.Traders = []string{"trader-1"}
	mock.WashResults["trader-1"] = models.WashTradingResult{Detected: true, Occurrences: 8}

	snap, err := w.Scan(context.Background(), "scan-h", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	washFindings := detectionsOfType(snap.Detections, models.FraudWashTrading)
	if len(washFindings) != 1 {
		t.Fatalf("wash findings = %d, want 1", len(washFindings))
	}
	if washFindings[0].Severity != models.SeverityHigh {
		t.Errorf("severity = %s, want high", washFindings[0].Severity)
	}
	if mock.Disabled["trader-1"] != 0 {
		t.Error("high wash finding auto-enforced; only critical disables")
	}
	if len(mock.Notifications) != 1 {
		t.Errorf("operations alerts = %d, want 1 for a high finding", len(mock.Notifications))
	}
}

func TestScanMediumWashTradingRecordsSilently(t *testing.T) {
	w, mock := newFraudFixture()
	mock.Traders = []string{"trader-1"}
	mock.WashResults["trader-1"] = models.WashTradingResult{Detected: true, Occurrences: 5}

	snap, err := w.Scan(context.Background(), "scan-m", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	washFindings := detectionsOfType(snap.Detections, models.FraudWashTrading)
	if len(washFindings) != 1 || washFindings[0].Severity != models.SeverityMedium {
		t.Fatalf("unexpected findings: %+v", washFindings)
	}
	if mock.Disabled["trader-1"] != 0 || len(mock.Notifications) != 0 {
		t.Errorf("medium finding escalated: disabled=%d alerts=%d",
			mock.Disabled["trader-1"], len(mock.Notifications))
	}
}

func TestScanWashBelowMinOccurrencesIgnored(t *testing.T) {
	w, mock := newFraudFixture()
	mock.Traders = []string{"trader-1"}
	mock.WashResults["trader-1"] = models.WashTradingResult{Detected: true, Occurrences: 2}

	snap, err := w.Scan(context.Background(), "scan-low", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(snap.Detections) != 0 {
		t.Errorf("detections = %d, want 0 below the occurrence floor", len(snap.Detections))
	}
	if mock.Disabled["trader-1"] != 0 {
		t.Error("enforcement fired without a finding")
	}
}

func TestScanCircularCopyingDisablesWholeCycle(t *testing.T) {
	w, mock := newFraudFixture()
	mock.Traders = []string{"user-a", "user-b"}
	cycle := models.CircularCopyingResult{
		Detected:      true,
		Chains:        [][]string{{"user-a", "user-b", "user-a"}},
		InvolvedUsers: []string{"user-a", "user-b"},
	}
	mock.CircularResults["user-a"] = cycle
	mock.CircularResults["user-b"] = models.CircularCopyingResult{
		Detected:      true,
		Chains:        [][]string{{"user-b", "user-a", "user-b"}},
		InvolvedUsers: []string{"user-b", "user-a"},
	}

	snap, err := w.Scan(context.Background(), "scan-d", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	circular := detectionsOfType(snap.Detections, models.FraudCircularCopying)
	if len(circular) != 1 {
		t.Fatalf("circular findings = %d, want exactly 1 per cycle", len(circular))
	}
	if circular[0].Severity != models.SeverityHigh {
		t.Errorf("severity = %s, want high", circular[0].Severity)
	}
	if mock.Disabled["user-a"] != 1 || mock.Disabled["user-b"] != 1 {
		t.Errorf("cycle members disabled a=%d b=%d, want 1 each",
			mock.Disabled["user-a"], mock.Disabled["user-b"])
	}
}

func TestScanPumpAndDumpSeverityDrivesEnforcement(t *testing.T) {
	tests := []struct {
		name            string
		impactedCopiers int
		wantSeverity    models.Severity
		wantDisabled    bool
	}{
		{"critical above 50 copiers", 60, models.SeverityCritical, true},
		{"high above 20 copiers", 30, models.SeverityHigh, true},
		{"medium otherwise", 5, models.SeverityMedium, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, mock := newFraudFixture()
			mock.Traders = []string{"pumper"}
			mock.PumpResults["pumper"] = models.PumpAndDumpResult{
				Detected:        true,
				ImpactedCopiers: tt.impactedCopiers,
			}

			snap, err := w.Scan(context.Background(), "scan-pump-"+tt.name, "")
			if err != nil {
				t.Fatalf("scan: %v", err)
			}
			findings := detectionsOfType(snap.Detections, models.FraudPumpAndDump)
			if len(findings) != 1 {
				t.Fatalf("findings = %d, want 1", len(findings))
			}
			if findings[0].Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", findings[0].Severity, tt.wantSeverity)
			}
			disabled := mock.Disabled["pumper"] > 0
			if disabled != tt.wantDisabled {
				t.Errorf("disabled = %v, want %v", disabled, tt.wantDisabled)
			}
		})
	}
}

func TestScanFakeFollowersAlertsWithoutEnforcing(t *testing.T) {
	w, mock := newFraudFixture()
	mock.Traders = []string{"influencer"}
	mock.FakeResults["influencer"] = models.FakeFollowersResult{
		Detected:       true,
		FakePercent:    95,
		TotalFollowers: 5000,
		FakeFollowers:  4750,
	}

	snap, err := w.Scan(context.Background(), "scan-fake", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	findings := detectionsOfType(snap.Detections, models.FraudFakeFollowers)
	if len(findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(findings))
	}
	if findings[0].Severity != models.SeverityCritical {
		t.Errorf("severity = %s, want critical", findings[0].Severity)
	}
	if mock.Disabled["influencer"] != 0 {
		t.Error("fake-follower finding auto-enforced; it must only alert")
	}
	if len(mock.Notifications) == 0 {
		t.Error("no operations alert emitted for critical finding")
	}
}

func TestScanPerUserFailureIsolation(t *testing.T) {
	w, mock := newFraudFixture()
	mock.Traders = []string{"trader-1", "trader-2", "trader-3"}
	mock.WashResults["trader-3"] = models.WashTradingResult{Detected: true, Occurrences: 8}
	// trader-2's detector fails outright (expensive profile = 1 attempt).
	mock.ErrorOnNext["DetectWashTrading:trader-2"] = errors.New("query service down")

	snap, err := w.Scan(context.Background(), "scan-iso", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if snap.Phase != PhaseComplete {
		t.Fatalf("phase = %s, want complete (single-user failure must not abort)", snap.Phase)
	}
	findings := detectionsOfType(snap.Detections, models.FraudWashTrading)
	if len(findings) != 1 || findings[0].UserID != "trader-3" {
		t.Errorf("trader-3 finding missing despite trader-2 failure: %+v", findings)
	}
}

func TestScanProgressCountsPerDetectorPass(t *testing.T) {
	w, mock := newFraudFixture()
	mock.Traders = []string{"trader-1", "trader-2"}

	snap, err := w.Scan(context.Background(), "scan-progress", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	// Four detectors each visit both traders, but the counter tracks the
	// current pass and never exceeds the population.
	if snap.ProcessedUsers != snap.TotalUsers {
		t.Errorf("processed = %d, want %d (per-pass count)", snap.ProcessedUsers, snap.TotalUsers)
	}
	if snap.CompletedPasses != snap.TotalPasses {
		t.Errorf("completed passes = %d, want %d", snap.CompletedPasses, snap.TotalPasses)
	}
	if snap.TotalPasses != 4 {
		t.Errorf("total passes = %d, want 4", snap.TotalPasses)
	}
}

func TestGradeWashSeverityMonotonic(t *testing.T) {
	occurrences := []int{4, 6, 8, 11}
	want := []models.Severity{models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical}

	prevRank := -1
	for i, occ := range occurrences {
		got := GradeWashSeverity(occ)
		if got != want[i] {
			t.Errorf("GradeWashSeverity(%d) = %s, want %s", occ, got, want[i])
		}
		if got.Rank() < prevRank {
			t.Errorf("severity decreased at occurrences=%d", occ)
		}
		prevRank = got.Rank()
	}
}

func TestGradeFakeFollowerSeverity(t *testing.T) {
	tests := []struct {
		percent float64
		want    models.Severity
	}{
		{95, models.SeverityCritical},
		{85, models.SeverityHigh},
		{75, models.SeverityMedium},
		{50, models.SeverityLow},
	}
	for _, tt := range tests {
		if got := GradeFakeFollowerSeverity(tt.percent); got != tt.want {
			t.Errorf("GradeFakeFollowerSeverity(%.0f) = %s, want %s", tt.percent, got, tt.want)
		}
	}
}

func TestScanTargetedSingleUser(t *testing.T) {
	w, mock := newFraudFixture()
	mock.Traders = []string{"trader-1", "trader-2"} // population ignored on targeted scan
	mock.WashResults["trader-2"] = models.WashTradingResult{Detected: true, Occurrences: 5}

	snap, err := w.Scan(context.Background(), "scan-target", "trader-2")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if snap.TotalUsers != 1 {
		t.Errorf("total users = %d, want 1", snap.TotalUsers)
	}
	if mock.Calls["ListTraders"] != 0 {
		t.Error("targeted scan fetched the whole population")
	}
	findings := detectionsOfType(snap.Detections, models.FraudWashTrading)
	if len(findings) != 1 || findings[0].Severity != models.SeverityMedium {
		t.Errorf("unexpected findings: %+v", findings)
	}
}
