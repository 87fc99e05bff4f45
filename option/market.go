package option

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/miohtama/demeter/broker"
)

// tolerance band for pinning a trade to a quoted price level, ±0.1%.
var priceTolerance = decimal.RequireFromString("0.001")

// Market is an options venue backtested from recorded order books. Trades are
// taker-only: buys consume asks, sells consume bids, and consumed amounts are
// written back to a live per-tick book so repeated fills within one tick see
// depleted liquidity. The historical record itself is never mutated.
type Market struct {
	info     broker.MarketInfo
	token    broker.Token
	cfg      Config
	broker   *broker.Broker
	logger   *zap.Logger
	dataPath string

	index []time.Time
	rows  []map[string]*Instrument

	statusTime time.Time
	statusIdx  int
	current    map[string]*Instrument
	positions  map[string]*Position
	dirty      bool
}

func NewMarket(name string, token broker.Token, cfg Config) *Market {
	return &Market{
		info:      broker.MarketInfo{Name: name},
		token:     token,
		cfg:       cfg,
		logger:    zap.NewNop(),
		dataPath:  "./data",
		positions: make(map[string]*Position),
		statusIdx: -1,
	}
}

func (m *Market) Info() broker.MarketInfo { return m.info }

func (m *Market) Bind(b *broker.Broker) { m.broker = b }

func (m *Market) SetLogger(l *zap.Logger) {
	if l != nil {
		m.logger = l
	}
}

func (m *Market) SetDataPath(path string) { m.dataPath = path }

// Token returns the settlement token of this venue.
func (m *Market) Token() broker.Token { return m.token }

func (m *Market) Timestamps() []time.Time { return m.index }

func (m *Market) Dirty() bool { return m.dirty }

func (m *Market) Check() error {
	if m.broker == nil {
		return fmt.Errorf("option market %s is not registered with a broker: %w", m.info.Name, broker.ErrConfig)
	}
	if len(m.index) == 0 {
		return fmt.Errorf("option market %s has no data: %w", m.info.Name, broker.ErrConfig)
	}
	return nil
}

// RefreshStatus binds the current status to the row for ts. The row's order
// books are deep-copied into the live book, discarding any amounts consumed
// during the previous tick.
func (m *Market) RefreshStatus(ts time.Time, _ broker.PriceRow) error {
	idx, err := m.rowIndex(ts)
	if err != nil {
		return err
	}
	row := m.rows[idx]
	current := make(map[string]*Instrument, len(row))
	for name, inst := range row {
		current[name] = inst.clone()
	}
	m.statusTime = ts
	m.statusIdx = idx
	m.current = current
	m.dirty = false
	return nil
}

func (m *Market) rowIndex(ts time.Time) (int, error) {
	n := len(m.index)
	i := sort.Search(n, func(i int) bool { return !m.index[i].Before(ts) })
	if i >= n || !m.index[i].Equal(ts) {
		return 0, fmt.Errorf("option market %s has no data row for %s", m.info.Name, ts)
	}
	return i, nil
}

// StatusTime returns the timestamp the current status is bound to.
func (m *Market) StatusTime() time.Time { return m.statusTime }

// Instrument returns a copy of the named instrument's current status,
// including its live order book.
func (m *Market) Instrument(name string) (Instrument, bool) {
	inst, ok := m.current[name]
	if !ok {
		return Instrument{}, false
	}
	return *inst.clone(), true
}

// Instruments returns the names quoted in the current status, sorted.
func (m *Market) Instruments() []string {
	names := make([]string, 0, len(m.current))
	for name := range m.current {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Position returns a copy of the open position in the named instrument.
func (m *Market) Position(name string) (Position, bool) {
	p, ok := m.positions[name]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns a copy of the whole position table.
func (m *Market) Positions() map[string]Position {
	out := make(map[string]Position, len(m.positions))
	for name, p := range m.positions {
		out[name] = *p
	}
	return out
}

// Buy fills the requested amount from the resting asks, sweeping price levels
// in book order. It returns the fills.
func (m *Market) Buy(name string, amount decimal.Decimal) ([]Order, error) {
	return m.trade(name, amount, nil, true)
}

// BuyAt fills only from the first ask level within ±0.1% of priceInToken.
func (m *Market) BuyAt(name string, amount, priceInToken decimal.Decimal) ([]Order, error) {
	return m.trade(name, amount, &priceInToken, true)
}

// BuyAtUSD is BuyAt with the limit quoted in USD; it is converted to
// settlement-token terms at the instrument's underlying price.
func (m *Market) BuyAtUSD(name string, amount, priceInUSD decimal.Decimal) ([]Order, error) {
	price, err := m.usdToToken(name, priceInUSD)
	if err != nil {
		return nil, err
	}
	return m.trade(name, amount, &price, true)
}

// Sell fills the requested amount from the resting bids. Selling an
// instrument with no open position fails with ErrNoPosition.
func (m *Market) Sell(name string, amount decimal.Decimal) ([]Order, error) {
	return m.trade(name, amount, nil, false)
}

// SellAt fills only from the first bid level within ±0.1% of priceInToken.
func (m *Market) SellAt(name string, amount, priceInToken decimal.Decimal) ([]Order, error) {
	return m.trade(name, amount, &priceInToken, false)
}

// SellAtUSD is SellAt with the limit quoted in USD.
func (m *Market) SellAtUSD(name string, amount, priceInUSD decimal.Decimal) ([]Order, error) {
	price, err := m.usdToToken(name, priceInUSD)
	if err != nil {
		return nil, err
	}
	return m.trade(name, amount, &price, false)
}

func (m *Market) usdToToken(name string, priceInUSD decimal.Decimal) (decimal.Decimal, error) {
	inst, ok := m.current[name]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s is not in the current order book", name)
	}
	return priceInUSD.Div(inst.UnderlyingPrice), nil
}

// trade validates the request, plans the fills against the live book, settles
// against the ledger and only then applies the book write-back and position
// update. A failure at any stage leaves book, ledger and positions untouched.
func (m *Market) trade(name string, amount decimal.Decimal, price *decimal.Decimal, isBuy bool) ([]Order, error) {
	if !isBuy {
		if _, ok := m.positions[name]; !ok {
			return nil, fmt.Errorf("sell %s: %w", name, broker.ErrNoPosition)
		}
	}

	inst, ok := m.current[name]
	if !ok {
		return nil, fmt.Errorf("%s is not in the current order book", name)
	}
	if inst.State != "open" {
		return nil, fmt.Errorf("instrument %s is not open (state %q)", name, inst.State)
	}
	if amount.LessThan(m.cfg.MinAmount()) {
		return nil, fmt.Errorf("amount %s below venue minimum %s", amount, m.cfg.MinAmount())
	}
	amount = amount.Round(m.cfg.AmountPlaces)

	side := inst.Asks
	if !isBuy {
		side = inst.Bids
	}

	fills, takes, err := planFills(name, amount, side, price)
	if err != nil {
		return nil, err
	}

	premium := decimal.Zero
	for _, f := range fills {
		premium = premium.Add(f.Price.Mul(f.Amount))
	}
	fee := m.tradeFee(amount, premium)

	if isBuy {
		if _, err := m.broker.Assets().Debit(m.token, premium.Add(fee)); err != nil {
			return nil, fmt.Errorf("buy %s: %w", name, err)
		}
	} else {
		m.broker.Assets().Credit(m.token, premium.Sub(fee))
	}

	// Book write-back: only now that settlement succeeded.
	for i, take := range takes {
		side[i].Amount = side[i].Amount.Sub(take)
	}

	avg := AveragePrice(fills)
	if isBuy {
		m.applyBuy(inst, name, amount, avg)
	} else {
		m.applySell(name, amount, avg)
	}
	m.dirty = true

	kind := broker.ActionBuy
	if !isBuy {
		kind = broker.ActionSell
	}
	m.broker.Record(&TradeAction{
		ActionBase:      broker.ActionBase{Kind: kind, Market: m.info.Name},
		Instrument:      name,
		Kind:            inst.Kind,
		AveragePrice:    avg,
		Amount:          amount,
		Premium:         premium,
		MarkPrice:       inst.MarkPrice,
		UnderlyingPrice: inst.UnderlyingPrice,
		Fee:             fee,
		Orders:          fills,
	})
	return fills, nil
}

// planFills computes the fills for amount against the given side without
// mutating it. takes maps level index to the amount consumed there.
func planFills(name string, amount decimal.Decimal, side []Order, price *decimal.Decimal) ([]Order, map[int]decimal.Decimal, error) {
	takes := make(map[int]decimal.Decimal)

	if price != nil {
		lo := decimal.NewFromInt(1).Sub(priceTolerance).Mul(*price)
		hi := decimal.NewFromInt(1).Add(priceTolerance).Mul(*price)
		for i, level := range side {
			if level.Price.GreaterThan(lo) && level.Price.LessThan(hi) {
				if amount.GreaterThan(level.Amount) {
					return nil, nil, fmt.Errorf(
						"level %s of %s holds %s, need %s: %w",
						level.Price, name, level.Amount, amount, broker.ErrInsufficientLiquidity)
				}
				takes[i] = amount
				return []Order{{Price: level.Price, Amount: amount}}, takes, nil
			}
		}
		return nil, nil, fmt.Errorf("no resting order of %s at price %s: %w", name, *price, broker.ErrInsufficientLiquidity)
	}

	var fills []Order
	remaining := amount
	for i, level := range side {
		if !level.Amount.IsPositive() {
			continue
		}
		take := decimal.Min(level.Amount, remaining)
		remaining = remaining.Sub(take)
		fills = append(fills, Order{Price: level.Price, Amount: take})
		takes[i] = take
		if remaining.IsZero() {
			return fills, takes, nil
		}
	}
	return nil, nil, fmt.Errorf(
		"book of %s exhausted, %s unfilled of %s: %w",
		name, remaining, amount, broker.ErrInsufficientLiquidity)
}

func (m *Market) applyBuy(inst *Instrument, name string, amount, avg decimal.Decimal) {
	pos, ok := m.positions[name]
	if !ok {
		m.positions[name] = &Position{
			Instrument:  name,
			Expiry:      inst.Expiry,
			Strike:      inst.Strike,
			Kind:        inst.Kind,
			Amount:      amount,
			AvgBuyPrice: avg,
			BuyAmount:   amount,
		}
		return
	}
	pos.AvgBuyPrice = AveragePrice([]Order{
		{Price: avg, Amount: amount},
		{Price: pos.AvgBuyPrice, Amount: pos.BuyAmount},
	})
	pos.BuyAmount = pos.BuyAmount.Add(amount)
	pos.Amount = pos.Amount.Add(amount)
}

func (m *Market) applySell(name string, amount, avg decimal.Decimal) {
	pos := m.positions[name]
	pos.AvgSellPrice = AveragePrice([]Order{
		{Price: avg, Amount: amount},
		{Price: pos.AvgSellPrice, Amount: pos.SellAmount},
	})
	pos.SellAmount = pos.SellAmount.Add(amount)
	pos.Amount = pos.Amount.Sub(amount)
	if !pos.Amount.IsPositive() {
		delete(m.positions, name)
	}
}

func (m *Market) tradeFee(amount, premium decimal.Decimal) decimal.Decimal {
	return decimal.Min(m.cfg.TradeFeeRate.Mul(amount), MaxFeeRate.Mul(premium)).Round(m.cfg.FeePlaces)
}

func (m *Market) deliveryFee(amount, premium decimal.Decimal) decimal.Decimal {
	return decimal.Min(m.cfg.DeliveryFeeRate.Mul(amount), MaxFeeRate.Mul(premium)).Round(m.cfg.FeePlaces)
}

// Update settles expired positions; see settleExpired.
func (m *Market) Update() error {
	return m.settleExpired()
}

// Valuation reports premium-weighted greeks and the position book's net value
// in the quote currency.
func (m *Market) Valuation(prices broker.PriceRow) (broker.MarketBalance, error) {
	tokenPrice, ok := prices[m.token.Name]
	if !ok {
		return broker.MarketBalance{}, fmt.Errorf("no price for settlement token %s", m.token.Name)
	}

	putCount := 0
	callCount := 0
	totalPremium := decimal.Zero
	delta := decimal.Zero
	gamma := decimal.Zero

	for name, pos := range m.positions {
		if pos.Kind == Put {
			putCount++
		} else {
			callCount++
		}
		inst, ok := m.current[name]
		if !ok {
			return broker.MarketBalance{}, fmt.Errorf("position %s missing from current order book", name)
		}
		premium := pos.Amount.Mul(inst.MarkPrice.Round(m.cfg.FeePlaces))
		totalPremium = totalPremium.Add(premium)
		delta = delta.Add(premium.Mul(inst.Delta.Round(m.cfg.FeePlaces)))
		gamma = gamma.Add(premium.Mul(inst.Gamma.Round(m.cfg.FeePlaces)))
	}

	if !totalPremium.IsZero() {
		delta = delta.Div(totalPremium)
		gamma = gamma.Div(totalPremium)
	} else {
		delta = decimal.Zero
		gamma = decimal.Zero
	}

	return broker.MarketBalance{
		NetValue: totalPremium.Mul(tokenPrice),
		Metrics: map[string]decimal.Decimal{
			"premium":    totalPremium,
			"put_count":  decimal.NewFromInt(int64(putCount)),
			"call_count": decimal.NewFromInt(int64(callCount)),
			"delta":      delta,
			"gamma":      gamma,
		},
	}, nil
}
