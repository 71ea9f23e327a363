package activities

import (
	"context"
	"testing"

	"github.com/aksrustagi/PULL-backend-sub010/models"
	"github.com/aksrustagi/PULL-backend-sub010/storage"
)

func newLibraryFixture() (*Library, *storage.MockStore) {
	store := storage.NewMockStore()
	return NewLibrary(store, nil, nil), store
}

func TestDetectCircularCopying(t *testing.T) {
	tests := []struct {
		name           string
		leaders        map[string][]string
		userID         string
		maxChainLength int
		wantDetected   bool
		wantInvolved   int
	}{
		{
			name:           "two-party cycle",
			leaders:        map[string][]string{"a": {"b"}, "b": {"a"}},
			userID:         "a",
			maxChainLength: 2,
			wantDetected:   true,
			wantInvolved:   2,
		},
		{
			name:           "no cycle",
			leaders:        map[string][]string{"a": {"b"}, "b": {"c"}},
			userID:         "a",
			maxChainLength: 2,
			wantDetected:   false,
		},
		{
			name:           "three-hop cycle beyond chain limit",
			leaders:        map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"a"}},
			userID:         "a",
			maxChainLength: 2,
			wantDetected:   false,
		},
		{
			name:           "three-hop cycle within longer limit",
			leaders:        map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"a"}},
			userID:         "a",
			maxChainLength: 3,
			wantDetected:   true,
			wantInvolved:   3,
		},
		{
			name:           "self copy",
			leaders:        map[string][]string{"a": {"a"}},
			userID:         "a",
			maxChainLength: 2,
			wantDetected:   true,
			wantInvolved:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib, store := newLibraryFixture()
			for user, leaders := range tt.leaders {
				store.CopyLeaders[user] = leaders
			}

			got, err := lib.DetectCircularCopying(context.Background(), tt.userID, tt.maxChainLength)
			if err != nil {
				t.Fatalf("detect: %v", err)
			}
			if got.Detected != tt.wantDetected {
				t.Fatalf("Detected = %v, want %v (chains %v)", got.Detected, tt.wantDetected, got.Chains)
			}
			if tt.wantDetected {
				if len(got.Chains) == 0 {
					t.Error("detected cycle but no chain recorded")
				}
				if len(got.InvolvedUsers) != tt.wantInvolved {
					t.Errorf("involved users = %v, want %d members", got.InvolvedUsers, tt.wantInvolved)
				}
			}
		})
	}
}

func TestDetectPumpAndDump(t *testing.T) {
	thresholds := PumpThresholds{
		SpikeMultiple:  10,
		PriceImpactPct: 5,
		FollowerGain:   50,
		LookbackDays:   7,
	}

	tests := []struct {
		name    string
		signals models.PumpSignals
		want    bool
	}{
		{
			name: "all signals fire",
			signals: models.PumpSignals{
				BaselinePositionSize: 100,
				PeakPositionSize:     1500,
				PriceImpactPct:       8,
				FollowerGain:         120,
				ImpactedCopiers:      30,
			},
			want: true,
		},
		{
			name: "spike without price impact",
			signals: models.PumpSignals{
				BaselinePositionSize: 100,
				PeakPositionSize:     1500,
				PriceImpactPct:       1,
				FollowerGain:         120,
			},
			want: false,
		},
		{
			name: "price impact without spike",
			signals: models.PumpSignals{
				BaselinePositionSize: 100,
				PeakPositionSize:     300,
				PriceImpactPct:       8,
				FollowerGain:         120,
			},
			want: false,
		},
		{
			name: "no baseline never spikes",
			signals: models.PumpSignals{
				BaselinePositionSize: 0,
				PeakPositionSize:     1500,
				PriceImpactPct:       8,
				FollowerGain:         120,
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib, store := newLibraryFixture()
			store.PumpSignals["trader-1"] = tt.signals

			got, err := lib.DetectPumpAndDump(context.Background(), "trader-1", thresholds)
			if err != nil {
				t.Fatalf("detect: %v", err)
			}
			if got.Detected != tt.want {
				t.Errorf("Detected = %v, want %v", got.Detected, tt.want)
			}
		})
	}
}

func TestDetectFakeFollowers(t *testing.T) {
	thresholds := FollowerThresholds{
		InactivePct:       80,
		MinAccountAgeDays: 7,
		MinFollowers:      100,
	}

	tests := []struct {
		name        string
		audit       models.FollowerAudit
		wantFlag    bool
		wantPercent float64
	}{
		{
			name:        "mostly inactive",
			audit:       models.FollowerAudit{TotalFollowers: 1000, InactiveFollowers: 850, YoungFollowers: 200},
			wantFlag:    true,
			wantPercent: 85,
		},
		{
			name:        "young accounts dominate",
			audit:       models.FollowerAudit{TotalFollowers: 1000, InactiveFollowers: 100, YoungFollowers: 900},
			wantFlag:    true,
			wantPercent: 90,
		},
		{
			name:     "healthy population",
			audit:    models.FollowerAudit{TotalFollowers: 1000, InactiveFollowers: 100, YoungFollowers: 50},
			wantFlag: false,
		},
		{
			name:     "small account gated out",
			audit:    models.FollowerAudit{TotalFollowers: 50, InactiveFollowers: 50},
			wantFlag: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib, store := newLibraryFixture()
			store.FollowerAudits["trader-1"] = tt.audit

			got, err := lib.DetectFakeFollowers(context.Background(), "trader-1", thresholds)
			if err != nil {
				t.Fatalf("detect: %v", err)
			}
			if got.Detected != tt.wantFlag {
				t.Fatalf("Detected = %v, want %v (%.1f%%)", got.Detected, tt.wantFlag, got.FakePercent)
			}
			if tt.wantFlag && !floatEquals(got.FakePercent, tt.wantPercent, 0.01) {
				t.Errorf("FakePercent = %.2f, want %.2f", got.FakePercent, tt.wantPercent)
			}
		})
	}
}

func TestDetectWashTrading(t *testing.T) {
	lib, store := newLibraryFixture()
	store.WashStats["trader-1"] = models.WashTradingResult{Occurrences: 4, TotalVolume: 1200}

	got, err := lib.DetectWashTrading(context.Background(), "trader-1", 7)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !got.Detected {
		t.Error("occurrences > 0 not flagged as detected")
	}
	if got.Occurrences != 4 {
		t.Errorf("occurrences = %d, want 4", got.Occurrences)
	}

	clean, err := lib.DetectWashTrading(context.Background(), "trader-2", 7)
	if err != nil {
		t.Fatalf("detect clean: %v", err)
	}
	if clean.Detected {
		t.Error("trader with no self-trades flagged")
	}
}

func TestCheckCopierBalance(t *testing.T) {
	lib, store := newLibraryFixture()
	store.Balances["copier-1"] = 75

	got, err := lib.CheckCopierBalance(context.Background(), "copier-1", 50)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !got.Sufficient || got.Available != 75 {
		t.Errorf("balance check = %+v, want sufficient with 75 available", got)
	}

	short, err := lib.CheckCopierBalance(context.Background(), "copier-1", 100)
	if err != nil {
		t.Fatalf("check short: %v", err)
	}
	if short.Sufficient {
		t.Error("75 available reported sufficient for 100 required")
	}
}
