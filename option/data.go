package option

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/miohtama/demeter/broker"
)

const (
	dataFilePattern = "option-book-%s-%s.csv"
	dataTimeLayout  = "2006-01-02 15:04:05"
)

// LoadData reads one order-book CSV per day from the data path, end day
// inclusive. Files are named option-book-{token}-{YYYYMMDD}.csv and carry one
// row per (timestamp, instrument) pair with JSON-encoded ask/bid lists.
func (m *Market) LoadData(start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("start %s is after end %s: %w",
			start.Format(time.DateOnly), end.Format(time.DateOnly), broker.ErrInvalidRange)
	}
	m.logger.Info("loading option order books",
		zap.String("market", m.info.Name),
		zap.String("start", start.Format(time.DateOnly)),
		zap.String("end", end.Format(time.DateOnly)))

	var (
		index []time.Time
		rows  []map[string]*Instrument
		byTS  = make(map[time.Time]map[string]*Instrument)
	)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		path := filepath.Join(m.dataPath, fmt.Sprintf(dataFilePattern, m.token.Name, day.Format("20060102")))
		if err := readBookFile(path, byTS); err != nil {
			return err
		}
	}

	for ts := range byTS {
		index = append(index, ts)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })
	for _, ts := range index {
		rows = append(rows, byTS[ts])
	}

	if len(index) == 0 {
		return fmt.Errorf("no order-book rows between %s and %s: %w",
			start.Format(time.DateOnly), end.Format(time.DateOnly), broker.ErrDataNotFound)
	}

	m.index = index
	m.rows = rows
	m.logger.Info("option data prepared", zap.Int("rows", len(index)))
	return nil
}

func readBookFile(path string, byTS map[time.Time]map[string]*Instrument) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("resource file %s: %w", path, broker.ErrDataNotFound)
		}
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", path, err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{
		"time", "instrument_name", "state", "expiry_time", "strike_price",
		"type", "mark_price", "underlying_price", "asks", "bids",
	} {
		if _, ok := col[required]; !ok {
			return fmt.Errorf("%s: missing column %q", path, required)
		}
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		ts, err := time.Parse(dataTimeLayout, rec[col["time"]])
		if err != nil {
			return fmt.Errorf("%s: bad time %q: %w", path, rec[col["time"]], err)
		}
		inst, err := parseInstrument(rec, col)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		row, ok := byTS[ts]
		if !ok {
			row = make(map[string]*Instrument)
			byTS[ts] = row
		}
		row[inst.Name] = inst
	}
}

func parseInstrument(rec []string, col map[string]int) (*Instrument, error) {
	expiry, err := time.Parse(dataTimeLayout, rec[col["expiry_time"]])
	if err != nil {
		return nil, fmt.Errorf("bad expiry_time %q: %w", rec[col["expiry_time"]], err)
	}
	strike, err := decimal.NewFromString(rec[col["strike_price"]])
	if err != nil {
		return nil, fmt.Errorf("bad strike_price %q: %w", rec[col["strike_price"]], err)
	}
	mark, err := decimal.NewFromString(rec[col["mark_price"]])
	if err != nil {
		return nil, fmt.Errorf("bad mark_price %q: %w", rec[col["mark_price"]], err)
	}
	underlying, err := decimal.NewFromString(rec[col["underlying_price"]])
	if err != nil {
		return nil, fmt.Errorf("bad underlying_price %q: %w", rec[col["underlying_price"]], err)
	}
	asks, err := parseOrders(rec[col["asks"]])
	if err != nil {
		return nil, fmt.Errorf("bad asks: %w", err)
	}
	bids, err := parseOrders(rec[col["bids"]])
	if err != nil {
		return nil, fmt.Errorf("bad bids: %w", err)
	}

	inst := &Instrument{
		Name:            rec[col["instrument_name"]],
		State:           rec[col["state"]],
		Expiry:          expiry,
		Strike:          strike,
		Kind:            Kind(rec[col["type"]]),
		MarkPrice:       mark,
		UnderlyingPrice: underlying,
		Asks:            asks,
		Bids:            bids,
	}
	if i, ok := col["delta"]; ok && rec[i] != "" {
		if inst.Delta, err = decimal.NewFromString(rec[i]); err != nil {
			return nil, fmt.Errorf("bad delta %q: %w", rec[i], err)
		}
	}
	if i, ok := col["gamma"]; ok && rec[i] != "" {
		if inst.Gamma, err = decimal.NewFromString(rec[i]); err != nil {
			return nil, fmt.Errorf("bad gamma %q: %w", rec[i], err)
		}
	}
	return inst, nil
}

// parseOrders decodes a JSON list of [price, amount] pairs.
func parseOrders(s string) ([]Order, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var raw [][]float64
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	orders := make([]Order, 0, len(raw))
	for _, pair := range raw {
		if len(pair) != 2 {
			return nil, fmt.Errorf("order entry must be [price, amount], got %v", pair)
		}
		orders = append(orders, Order{
			Price:  decimal.NewFromFloat(pair[0]),
			Amount: decimal.NewFromFloat(pair[1]),
		})
	}
	return orders, nil
}

// SetData installs an already-built historical slice, bypassing CSV loading.
// Rows are copied so later book mutations cannot leak into the caller's data.
func (m *Market) SetData(index []time.Time, rows []map[string]Instrument) error {
	if len(index) != len(rows) {
		return fmt.Errorf("index and rows length mismatch: %d vs %d: %w", len(index), len(rows), broker.ErrInvalidRange)
	}
	if len(index) == 0 {
		return fmt.Errorf("empty data: %w", broker.ErrInvalidRange)
	}
	m.index = append([]time.Time(nil), index...)
	m.rows = make([]map[string]*Instrument, len(rows))
	for i, row := range rows {
		copied := make(map[string]*Instrument, len(row))
		for name, inst := range row {
			copied[name] = inst.clone()
		}
		m.rows[i] = copied
	}
	return nil
}

// PricesFromData derives a settlement-token price series from the underlying
// price recorded with each row, so a run can be configured without a separate
// price feed.
func (m *Market) PricesFromData() (*broker.PriceSeries, error) {
	if len(m.index) == 0 {
		return nil, fmt.Errorf("option market %s has no data: %w", m.info.Name, broker.ErrDataNotFound)
	}
	series := &broker.PriceSeries{}
	for i, ts := range m.index {
		names := make([]string, 0, len(m.rows[i]))
		for name := range m.rows[i] {
			names = append(names, name)
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("row %s has no instruments", ts)
		}
		sort.Strings(names)
		series.Append(ts, broker.PriceRow{
			m.token.Name: m.rows[i][names[0]].UnderlyingPrice,
		})
	}
	return series, nil
}
