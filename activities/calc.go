package activities

import (
	"math"

	"github.com/aksrustagi/PULL-backend-sub010/models"
)

// CalculateReturns sums realized PNL over the trades and expresses it as a
// fraction of the capital deployed. Returns 0 for an empty window.
func CalculateReturns(trades []models.LedgerTrade) float64 {
	if len(trades) == 0 {
		return 0
	}
	var pnl, deployed float64
	for _, t := range trades {
		pnl += t.PNL
		deployed += t.Quantity * t.Price
	}
	if deployed == 0 {
		return 0
	}
	return pnl / deployed
}

// CalculateSharpeRatio computes the annualized Sharpe ratio of per-trade
// returns against the risk-free rate.
func CalculateSharpeRatio(trades []models.LedgerTrade, riskFreeRate float64) float64 {
	returns := perTradeReturns(trades)
	if len(returns) < 2 {
		return 0
	}
	mean := meanOf(returns)
	std := stdDev(returns, mean)
	if std == 0 {
		return 0
	}
	return (mean - riskFreeRate/252) / std * math.Sqrt(252)
}

// CalculateSortinoRatio is Sharpe with only downside deviation in the
// denominator.
func CalculateSortinoRatio(trades []models.LedgerTrade, riskFreeRate float64) float64 {
	returns := perTradeReturns(trades)
	if len(returns) < 2 {
		return 0
	}
	mean := meanOf(returns)

	var downside float64
	var n int
	for _, r := range returns {
		if r < 0 {
			downside += r * r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	dd := math.Sqrt(downside / float64(n))
	if dd == 0 {
		return 0
	}
	return (mean - riskFreeRate/252) / dd * math.Sqrt(252)
}

// CalculateMaxDrawdown walks the cumulative PNL curve and returns the largest
// peak-to-trough drop as a fraction of the peak, plus the drawdown at the end
// of the series.
func CalculateMaxDrawdown(trades []models.LedgerTrade) (maxDrawdown, currentDrawdown float64) {
	if len(trades) == 0 {
		return 0, 0
	}
	var equity, peak float64
	for _, t := range trades {
		equity += t.PNL
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			dd := (peak - equity) / peak
			if dd > maxDrawdown {
				maxDrawdown = dd
			}
			currentDrawdown = dd
		}
	}
	return maxDrawdown, currentDrawdown
}

// CalculateWinLossStats aggregates win/loss outcomes over the trades.
func CalculateWinLossStats(trades []models.LedgerTrade) models.WinLossStats {
	var stats models.WinLossStats
	stats.TotalTrades = len(trades)
	if len(trades) == 0 {
		return stats
	}

	var winSum, lossSum float64
	var losses int
	for _, t := range trades {
		if t.PNL > 0 {
			stats.ProfitableTrades++
			winSum += t.PNL
		} else if t.PNL < 0 {
			losses++
			lossSum += t.PNL
		}
	}
	stats.WinRate = float64(stats.ProfitableTrades) / float64(stats.TotalTrades)
	if stats.ProfitableTrades > 0 {
		stats.AvgWin = winSum / float64(stats.ProfitableTrades)
	}
	if losses > 0 {
		stats.AvgLoss = lossSum / float64(losses)
	}
	return stats
}

// CalculateAvgHoldingPeriod returns the mean holding time in hours.
func CalculateAvgHoldingPeriod(trades []models.LedgerTrade) float64 {
	if len(trades) == 0 {
		return 0
	}
	var total float64
	var n int
	for _, t := range trades {
		if t.ClosedAt.After(t.ExecutedAt) {
			total += t.ClosedAt.Sub(t.ExecutedAt).Hours()
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func perTradeReturns(trades []models.LedgerTrade) []float64 {
	returns := make([]float64, 0, len(trades))
	for _, t := range trades {
		notional := t.Quantity * t.Price
		if notional == 0 {
			continue
		}
		returns = append(returns, t.PNL/notional)
	}
	return returns
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64, mean float64) float64 {
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
