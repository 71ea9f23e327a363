package workflow

import (
	"math"
	"testing"

	"github.com/aksrustagi/PULL-backend-sub010/models"
)

func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func leaderTrade(quantity, price float64) models.LeaderTrade {
	return models.LeaderTrade{
		TraderID:        "trader-1",
		OriginalOrderID: "order-1",
		Symbol:          "ACME",
		Side:            "sell",
		Quantity:        quantity,
		Price:           price,
	}
}

func TestComputeCopySize(t *testing.T) {
	tests := []struct {
		name           string
		sub            models.CopySubscription
		trade          models.LeaderTrade
		portfolioValue float64
		wantQuantity   float64
		wantNotional   float64
		wantSkip       bool
	}{
		{
			name: "fixed amount $50 at $0.55",
			sub: models.CopySubscription{
				CopyMode:        models.CopyModeFixedAmount,
				FixedAmount:     50,
				MinPositionSize: 5,
			},
			trade:        leaderTrade(100, 0.55),
			wantQuantity: 90.909, // 50 / 0.55
			wantNotional: 50,
		},
		{
			name: "percentage of portfolio",
			sub: models.CopySubscription{
				CopyMode:            models.CopyModePercentagePortfolio,
				PortfolioPercentage: 10,
			},
			trade:          leaderTrade(100, 0.50),
			portfolioValue: 1000,
			wantQuantity:   200, // 1000 * 10% / 0.50
			wantNotional:   100,
		},
		{
			name: "proportional defaults to half the leader size",
			sub: models.CopySubscription{
				CopyMode: models.CopyModeProportional,
			},
			trade:        leaderTrade(100, 0.50),
			wantQuantity: 50,
			wantNotional: 25,
		},
		{
			name: "fixed ratio",
			sub: models.CopySubscription{
				CopyMode:  models.CopyModeFixedRatio,
				CopyRatio: 0.25,
			},
			trade:        leaderTrade(100, 0.40),
			wantQuantity: 25,
			wantNotional: 10,
		},
		{
			name: "below minimum skips",
			sub: models.CopySubscription{
				CopyMode:        models.CopyModeFixedAmount,
				FixedAmount:     2,
				MinPositionSize: 5,
			},
			trade:    leaderTrade(100, 0.55),
			wantSkip: true,
		},
		{
			name: "above maximum caps instead of skipping",
			sub: models.CopySubscription{
				CopyMode:        models.CopyModeFixedAmount,
				FixedAmount:     500,
				MaxPositionSize: 100,
			},
			trade:        leaderTrade(100, 0.50),
			wantQuantity: 200, // capped to 100 / 0.50
			wantNotional: 100,
		},
		{
			name: "zero price skips",
			sub: models.CopySubscription{
				CopyMode:    models.CopyModeFixedAmount,
				FixedAmount: 50,
			},
			trade:    leaderTrade(100, 0),
			wantSkip: true,
		},
		{
			name: "zero quantity skips",
			sub: models.CopySubscription{
				CopyMode:  models.CopyModeFixedRatio,
				CopyRatio: 0,
			},
			trade:    leaderTrade(100, 0.50),
			wantSkip: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeCopySize(tt.sub, tt.trade, tt.portfolioValue, nil)
			if got.Skip != tt.wantSkip {
				t.Fatalf("Skip = %v (reason %q), want %v", got.Skip, got.SkipReason, tt.wantSkip)
			}
			if tt.wantSkip {
				if got.SkipReason == "" {
					t.Error("skip result has empty reason")
				}
				return
			}
			if !floatEquals(got.Quantity, tt.wantQuantity, 0.01) {
				t.Errorf("Quantity = %.4f, want %.4f", got.Quantity, tt.wantQuantity)
			}
			if !floatEquals(got.Notional, tt.wantNotional, 0.01) {
				t.Errorf("Notional = %.4f, want %.4f", got.Notional, tt.wantNotional)
			}
		})
	}
}

func TestComputeCopySizePluggableProportional(t *testing.T) {
	sub := models.CopySubscription{CopyMode: models.CopyModeProportional}
	trade := leaderTrade(100, 0.50)

	quarter := func(copierValue, leaderNotional float64) float64 { return 0.25 }
	got := ComputeCopySize(sub, trade, 0, quarter)
	if got.Skip {
		t.Fatalf("unexpected skip: %s", got.SkipReason)
	}
	if !floatEquals(got.Quantity, 25, 0.001) {
		t.Errorf("Quantity = %.4f, want 25", got.Quantity)
	}
}

func TestAdjustForBalance(t *testing.T) {
	sub := models.CopySubscription{MinPositionSize: 5}

	tests := []struct {
		name         string
		size         SizeResult
		available    float64
		wantQuantity float64
		wantSkip     bool
	}{
		{
			name:         "sufficient balance unchanged",
			size:         SizeResult{Quantity: 100, Notional: 50},
			available:    60,
			wantQuantity: 100,
		},
		{
			name:         "partial copy down to available",
			size:         SizeResult{Quantity: 100, Notional: 50},
			available:    25,
			wantQuantity: 50, // 25 / 0.50
		},
		{
			name:      "available below minimum skips",
			size:      SizeResult{Quantity: 100, Notional: 50},
			available: 3,
			wantSkip:  true,
		},
		{
			name:      "zero balance skips",
			size:      SizeResult{Quantity: 100, Notional: 50},
			available: 0,
			wantSkip:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AdjustForBalance(tt.size, tt.available, sub, 0.50)
			if got.Skip != tt.wantSkip {
				t.Fatalf("Skip = %v (reason %q), want %v", got.Skip, got.SkipReason, tt.wantSkip)
			}
			if !tt.wantSkip && !floatEquals(got.Quantity, tt.wantQuantity, 0.001) {
				t.Errorf("Quantity = %.4f, want %.4f", got.Quantity, tt.wantQuantity)
			}
		})
	}
}
