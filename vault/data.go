package vault

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/miohtama/demeter/broker"
)

const (
	dataFilePattern = "vault-controller-%s.minute.csv"
	dataTimeLayout  = "2006-01-02 15:04:05"
)

// LoadData reads one controller CSV per day from the data path, end day
// inclusive. Files are named vault-controller-{YYYY-MM-DD}.minute.csv with
// columns block_timestamp, norm_factor and one price column per token, named
// after the token. Minutes without an on-chain update carry empty cells and
// are forward-filled from the last seen value.
func (m *Market) LoadData(start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("start %s is after end %s: %w",
			start.Format(time.DateOnly), end.Format(time.DateOnly), broker.ErrInvalidRange)
	}
	m.logger.Info("loading vault controller data",
		zap.String("market", m.info.Name),
		zap.String("start", start.Format(time.DateOnly)),
		zap.String("end", end.Format(time.DateOnly)))

	var rows []Row
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		path := filepath.Join(m.dataPath, fmt.Sprintf(dataFilePattern, day.Format(time.DateOnly)))
		var err error
		rows, err = m.readControllerFile(path, rows)
		if err != nil {
			return err
		}
	}
	if len(rows) == 0 {
		return fmt.Errorf("no controller rows between %s and %s: %w",
			start.Format(time.DateOnly), end.Format(time.DateOnly), broker.ErrDataNotFound)
	}

	m.rows = rows
	m.index = make([]time.Time, len(rows))
	for i, r := range rows {
		m.index[i] = r.Timestamp
	}
	m.logger.Info("vault data prepared", zap.Int("rows", len(rows)))
	return nil
}

func (m *Market) readControllerFile(path string, rows []Row) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("resource file %s: %w", path, broker.ErrDataNotFound)
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"block_timestamp", "norm_factor", m.base.Name, m.synth.Name} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, required)
		}
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		ts, err := time.Parse(dataTimeLayout, rec[col["block_timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("%s: bad block_timestamp %q: %w", path, rec[col["block_timestamp"]], err)
		}

		var prev *Row
		if len(rows) > 0 {
			prev = &rows[len(rows)-1]
		}
		row := Row{Timestamp: ts}
		if row.NormFactor, err = fillCell(rec[col["norm_factor"]], prev, func(p *Row) decimal.Decimal { return p.NormFactor }); err != nil {
			return nil, fmt.Errorf("%s at %s: norm_factor: %w", path, ts, err)
		}
		if row.BasePrice, err = fillCell(rec[col[m.base.Name]], prev, func(p *Row) decimal.Decimal { return p.BasePrice }); err != nil {
			return nil, fmt.Errorf("%s at %s: %s: %w", path, ts, m.base.Name, err)
		}
		if row.SynthPrice, err = fillCell(rec[col[m.synth.Name]], prev, func(p *Row) decimal.Decimal { return p.SynthPrice }); err != nil {
			return nil, fmt.Errorf("%s at %s: %s: %w", path, ts, m.synth.Name, err)
		}
		rows = append(rows, row)
	}
}

// fillCell parses one cell, forward-filling empty cells from the previous row.
func fillCell(cell string, prev *Row, get func(*Row) decimal.Decimal) (decimal.Decimal, error) {
	if cell == "" {
		if prev == nil {
			return decimal.Zero, fmt.Errorf("empty cell with no prior value to fill from")
		}
		return get(prev), nil
	}
	return decimal.NewFromString(cell)
}

// SetData installs an already-built controller history, bypassing CSV loading.
// Rows must be sorted by timestamp.
func (m *Market) SetData(rows []Row) error {
	if len(rows) == 0 {
		return fmt.Errorf("empty data: %w", broker.ErrInvalidRange)
	}
	index := make([]time.Time, len(rows))
	for i, r := range rows {
		if i > 0 && !rows[i-1].Timestamp.Before(r.Timestamp) {
			return fmt.Errorf("rows are not strictly increasing at %d: %w", i, broker.ErrInvalidRange)
		}
		index[i] = r.Timestamp
	}
	m.rows = append([]Row(nil), rows...)
	m.index = index
	return nil
}

// PricesFromData derives a USD price series for both tokens from the
// controller history. The synth price is recorded in base terms and is
// converted through the base price.
func (m *Market) PricesFromData() (*broker.PriceSeries, error) {
	if len(m.rows) == 0 {
		return nil, fmt.Errorf("vault market %s has no data: %w", m.info.Name, broker.ErrDataNotFound)
	}
	series := &broker.PriceSeries{}
	for _, r := range m.rows {
		series.Append(r.Timestamp, broker.PriceRow{
			m.base.Name:  r.BasePrice,
			m.synth.Name: r.SynthPrice.Mul(r.BasePrice),
		})
	}
	return series, nil
}
