package vault

import (
	"github.com/shopspring/decimal"
)

// Twap returns the arithmetic mean of the named price column over the
// trailing window ending at the current status row. Near the start of the
// history the window is clipped to whatever rows exist. symbol is the base or
// synth token name.
func (m *Market) Twap(symbol string) decimal.Decimal {
	if m.statusIdx < 0 {
		return decimal.Zero
	}
	now := m.index[m.statusIdx]
	cutoff := now.Add(-TwapWindow)

	sum := decimal.Zero
	count := int64(0)
	for i := m.statusIdx; i >= 0; i-- {
		ts := m.index[i]
		if !ts.After(cutoff) {
			break
		}
		sum = sum.Add(m.priceAt(i, symbol))
		count++
	}
	if count == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(count))
}

func (m *Market) priceAt(i int, symbol string) decimal.Decimal {
	row := m.rows[i]
	switch symbol {
	case m.synth.Name:
		return row.SynthPrice
	default:
		return row.BasePrice
	}
}
