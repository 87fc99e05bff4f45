package broker

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus is the per-tick snapshot of the whole portfolio: ledger
// balances plus every market's valuation, aggregated to one net value in the
// quote currency. Snapshots are appended once per tick and never mutated.
type AccountStatus struct {
	Timestamp time.Time                 `json:"timestamp"`
	NetValue  decimal.Decimal           `json:"net_value"`
	Assets    map[Token]decimal.Decimal `json:"-"`
	Markets   map[string]MarketBalance  `json:"markets"`
}
