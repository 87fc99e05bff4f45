package broker

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Broker owns the ledger and the set of registered markets for one simulation
// run. Markets settle against the ledger through the reference handed to them
// at registration and report every economic event through Record.
//
// The broker is exclusively owned by the single run thread; no locking.
type Broker struct {
	assets   *Ledger
	markets  []Market
	byName   map[string]Market
	recorder func(Action)
}

func New(allowNegativeBalance bool) *Broker {
	return &Broker{
		assets: NewLedger(allowNegativeBalance),
		byName: make(map[string]Market),
	}
}

// Assets exposes the ledger.
func (b *Broker) Assets() *Ledger { return b.assets }

// SetRecorder installs the action sink. The run loop installs its own
// recorder; without one, actions are silently dropped (useful in unit tests).
func (b *Broker) SetRecorder(fn func(Action)) { b.recorder = fn }

// Record appends an action to the run's audit log. Markets call this for
// every buy, sell, settlement, vault mutation and liquidation.
func (b *Broker) Record(a Action) {
	if b.recorder != nil {
		b.recorder(a)
	}
}

// AddMarket registers a market. Registration order is the order markets are
// refreshed and settled each tick.
func (b *Broker) AddMarket(m Market) error {
	name := m.Info().Name
	if name == "" {
		return fmt.Errorf("market name must not be empty: %w", ErrConfig)
	}
	if _, dup := b.byName[name]; dup {
		return fmt.Errorf("market %q already registered: %w", name, ErrConfig)
	}
	b.markets = append(b.markets, m)
	b.byName[name] = m
	m.Bind(b)
	return nil
}

// Markets returns the registered markets in registration order.
func (b *Broker) Markets() []Market { return b.markets }

// Market looks a market up by name.
func (b *Broker) Market(name string) (Market, bool) {
	m, ok := b.byName[name]
	return m, ok
}

// AccountStatus aggregates ledger balances and market valuations into one
// snapshot for ts, using the given price row to value every token.
func (b *Broker) AccountStatus(ts time.Time, prices PriceRow) (AccountStatus, error) {
	status := AccountStatus{
		Timestamp: ts,
		Assets:    b.assets.Balances(),
		Markets:   make(map[string]MarketBalance, len(b.markets)),
	}

	net := decimal.Zero
	for _, token := range b.assets.Tokens() {
		price, ok := prices[token.Name]
		if !ok {
			return AccountStatus{}, fmt.Errorf("no price for token %s at %s", token.Name, ts)
		}
		net = net.Add(b.assets.Balance(token).Mul(price))
	}

	for _, m := range b.markets {
		balance, err := m.Valuation(prices)
		if err != nil {
			return AccountStatus{}, fmt.Errorf("valuation of market %s: %w", m.Info().Name, err)
		}
		status.Markets[m.Info().Name] = balance
		net = net.Add(balance.NetValue)
	}

	status.NetValue = net
	return status, nil
}
