package workflow

import (
	"fmt"

	"github.com/aksrustagi/PULL-backend-sub010/models"
)

// SizeResult is the outcome of sizing one copier's order.
type SizeResult struct {
	Quantity   float64
	Notional   float64
	Skip       bool
	SkipReason string
}

// ProportionalSizer converts copier and leader portfolio values into the
// fraction of the leader's quantity the copier should take. Pluggable.
type ProportionalSizer func(copierPortfolioValue, leaderPortfolioValue float64) float64

// DefaultProportionalSizer takes half the leader's size regardless of
// portfolio values.
func DefaultProportionalSizer(copierPortfolioValue, leaderPortfolioValue float64) float64 {
	return 0.5
}

// ComputeCopySize translates the leader's trade into the copier's order size
// per the subscription's copy mode, then clamps the resulting notional to the
// subscription's position limits. Below the minimum the copy is skipped;
// above the maximum it is capped, never skipped.
func ComputeCopySize(sub models.CopySubscription, trade models.LeaderTrade, copierPortfolioValue float64, proportional ProportionalSizer) SizeResult {
	if trade.Price <= 0 {
		return SizeResult{Skip: true, SkipReason: "invalid trade price"}
	}

	var quantity float64
	switch sub.CopyMode {
	case models.CopyModeFixedAmount:
		quantity = sub.FixedAmount / trade.Price
	case models.CopyModePercentagePortfolio:
		quantity = copierPortfolioValue * sub.PortfolioPercentage / 100 / trade.Price
	case models.CopyModeProportional:
		if proportional == nil {
			proportional = DefaultProportionalSizer
		}
		quantity = trade.Quantity * proportional(copierPortfolioValue, trade.Notional())
	case models.CopyModeFixedRatio:
		quantity = trade.Quantity * sub.CopyRatio
	default:
		return SizeResult{Skip: true, SkipReason: fmt.Sprintf("unknown copy mode %q", sub.CopyMode)}
	}

	if quantity <= 0 {
		return SizeResult{Skip: true, SkipReason: "computed quantity is zero"}
	}

	notional := quantity * trade.Price
	if sub.MinPositionSize > 0 && notional < sub.MinPositionSize {
		return SizeResult{
			Skip:       true,
			SkipReason: fmt.Sprintf("notional %.2f below minimum position size %.2f", notional, sub.MinPositionSize),
		}
	}
	if sub.MaxPositionSize > 0 && notional > sub.MaxPositionSize {
		notional = sub.MaxPositionSize
		quantity = notional / trade.Price
	}

	return SizeResult{Quantity: quantity, Notional: notional}
}

// AdjustForBalance shrinks the sized order to fit the copier's available
// balance. If the shrunk notional no longer clears the subscription's minimum
// position size, the copy is skipped instead.
func AdjustForBalance(size SizeResult, available float64, sub models.CopySubscription, price float64) SizeResult {
	if size.Skip || available >= size.Notional {
		return size
	}
	if available <= 0 || (sub.MinPositionSize > 0 && available < sub.MinPositionSize) {
		return SizeResult{Skip: true, SkipReason: "insufficient balance"}
	}
	return SizeResult{
		Quantity: available / price,
		Notional: available,
	}
}
