package broker

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceRow maps token symbol to unit price (in the quote currency, typically
// USD) for one timestamp.
type PriceRow map[string]decimal.Decimal

// PriceSeries is a timestamp-indexed table of token prices covering the full
// span of every market's data. Index and Rows are parallel slices.
type PriceSeries struct {
	Index []time.Time
	Rows  []PriceRow
}

func (s *PriceSeries) Len() int { return len(s.Index) }

// Append adds one row. Rows must be appended in ascending timestamp order.
func (s *PriceSeries) Append(ts time.Time, row PriceRow) {
	s.Index = append(s.Index, ts)
	s.Rows = append(s.Rows, row)
}

// Has reports whether every row carries a price for the given token symbol.
func (s *PriceSeries) Has(symbol string) bool {
	if len(s.Rows) == 0 {
		return false
	}
	for _, row := range s.Rows {
		if _, ok := row[symbol]; !ok {
			return false
		}
	}
	return true
}

// Interval returns the spacing between the first two rows, zero for series
// shorter than two rows.
func (s *PriceSeries) Interval() time.Duration {
	if len(s.Index) < 2 {
		return 0
	}
	return s.Index[1].Sub(s.Index[0])
}

// Offset locates ts in the index and returns its row position.
func (s *PriceSeries) Offset(ts time.Time) (int, error) {
	for i, t := range s.Index {
		if t.Equal(ts) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("timestamp %s not present in price series", ts)
}

// Merge joins another series column-wise. Both series must share the same
// index; tokens from other overwrite tokens already present.
func (s *PriceSeries) Merge(other *PriceSeries) error {
	if len(s.Index) == 0 {
		s.Index = append([]time.Time(nil), other.Index...)
		s.Rows = make([]PriceRow, len(other.Rows))
		for i, row := range other.Rows {
			s.Rows[i] = clonePriceRow(row)
		}
		return nil
	}
	if len(other.Index) != len(s.Index) {
		return fmt.Errorf("cannot merge price series of different lengths (%d vs %d)", len(s.Index), len(other.Index))
	}
	for i, ts := range other.Index {
		if !ts.Equal(s.Index[i]) {
			return fmt.Errorf("cannot merge price series with mismatched timestamps at row %d", i)
		}
		for sym, p := range other.Rows[i] {
			s.Rows[i][sym] = p
		}
	}
	return nil
}

func clonePriceRow(row PriceRow) PriceRow {
	out := make(PriceRow, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
