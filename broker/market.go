package broker

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketInfo identifies a registered market.
type MarketInfo struct {
	Name string
}

// MarketBalance is the venue-specific valuation record a market contributes to
// the portfolio-wide account status. NetValue is in the quote currency;
// Metrics carries venue-specific figures such as option greeks or vault
// counts.
type MarketBalance struct {
	NetValue decimal.Decimal            `json:"net_value"`
	Metrics  map[string]decimal.Decimal `json:"metrics,omitempty"`
}

// Market is the contract every simulated venue satisfies.
//
// Lifecycle: data is loaded once, Check runs once before the first tick, then
// the run loop calls RefreshStatus / Update per tick in the order described on
// Runner.Run. A market must only read the data row whose timestamp equals the
// simulation clock, except through bounded lookback such as TWAP windows.
type Market interface {
	Info() MarketInfo

	// Bind hands the market the broker it settles against. Called once when
	// the market is registered.
	Bind(b *Broker)

	// LoadData populates the immutable historical slice for [start, end]
	// (end inclusive). Returns ErrInvalidRange for empty or inverted ranges
	// and ErrDataNotFound when backing files are absent.
	LoadData(start, end time.Time) error

	// Check validates that the market is ready to run. Failures are fatal and
	// wrapped in ErrConfig by the run loop.
	Check() error

	// Timestamps returns the data's timestamp index, ascending and gap-free.
	Timestamps() []time.Time

	// RefreshStatus binds the market's current status to the row for ts and
	// clears the dirty flag.
	RefreshStatus(ts time.Time, prices PriceRow) error

	// Dirty reports whether market state changed since the last refresh.
	Dirty() bool

	// Update is the end-of-tick settlement hook: fee accrual, expiry
	// processing, safety checks. Routine conditions never error; only
	// invariant violations do.
	Update() error

	// Valuation reports the market's contribution to the account status.
	Valuation(prices PriceRow) (MarketBalance, error)
}
