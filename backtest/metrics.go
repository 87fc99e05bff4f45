package backtest

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/miohtama/demeter/broker"
)

// Metrics summarizes a finished run from its per-tick net value series.
type Metrics struct {
	Start        time.Time
	End          time.Time
	InitialValue decimal.Decimal
	FinalValue   decimal.Decimal
	TotalReturn  float64
	MaxDrawdown  float64
	SharpeRatio  float64
	Actions      int
}

// Evaluate computes performance figures from the status history. interval is
// the tick spacing and sets the Sharpe annualization factor.
func Evaluate(statuses []broker.AccountStatus, interval time.Duration) Metrics {
	if len(statuses) == 0 {
		return Metrics{}
	}

	equity := make([]float64, len(statuses))
	for i, s := range statuses {
		equity[i] = s.NetValue.InexactFloat64()
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] != 0 {
			returns = append(returns, equity[i]/equity[i-1]-1)
		}
	}

	m := Metrics{
		Start:        statuses[0].Timestamp,
		End:          statuses[len(statuses)-1].Timestamp,
		InitialValue: statuses[0].NetValue,
		FinalValue:   statuses[len(statuses)-1].NetValue,
		MaxDrawdown:  computeDrawdown(equity),
		SharpeRatio:  computeSharpe(returns, interval),
	}
	if equity[0] > 0 {
		m.TotalReturn = equity[len(equity)-1]/equity[0] - 1
	}
	return m
}

func computeDrawdown(equity []float64) float64 {
	var peak float64
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (v - peak) / peak
		if dd < maxDD {
			maxDD = dd
		}
	}
	return math.Abs(maxDD)
}

func computeSharpe(returns []float64, interval time.Duration) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	if len(returns) > 1 {
		variance /= float64(len(returns) - 1)
	}
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}

	annualFactor := 1.0
	if interval > 0 {
		ticksPerYear := float64(365*24*time.Hour) / float64(interval)
		annualFactor = math.Sqrt(ticksPerYear)
	}
	return (mean / std) * annualFactor
}
