package option

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the option flavor.
type Kind string

const (
	Call Kind = "call"
	Put  Kind = "put"
)

// Order is one resting (price, amount) level, or one fill produced by the
// matching algorithm. Fills are ephemeral: they are returned to the caller and
// captured in the action log but never persisted.
type Order struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// AveragePrice returns the volume-weighted average price of a set of orders,
// zero when the total amount is zero.
func AveragePrice(orders []Order) decimal.Decimal {
	total := decimal.Zero
	notional := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.Amount)
		notional = notional.Add(o.Price.Mul(o.Amount))
	}
	if total.IsZero() {
		return decimal.Zero
	}
	return notional.Div(total)
}

// Instrument is one option series as described by a single data row: static
// identity (expiry, strike, kind) plus the tick's order book and marks.
type Instrument struct {
	Name            string
	State           string
	Expiry          time.Time
	Strike          decimal.Decimal
	Kind            Kind
	MarkPrice       decimal.Decimal
	UnderlyingPrice decimal.Decimal
	Delta           decimal.Decimal
	Gamma           decimal.Decimal
	Asks            []Order
	Bids            []Order
}

func (i *Instrument) clone() *Instrument {
	out := *i
	out.Asks = append([]Order(nil), i.Asks...)
	out.Bids = append([]Order(nil), i.Bids...)
	return &out
}

// Position is an open holding in one instrument. Amount is signed; the
// volume-weighted average buy and sell prices are recomputed on every fill.
type Position struct {
	Instrument   string
	Expiry       time.Time
	Strike       decimal.Decimal
	Kind         Kind
	Amount       decimal.Decimal
	AvgBuyPrice  decimal.Decimal
	BuyAmount    decimal.Decimal
	AvgSellPrice decimal.Decimal
	SellAmount   decimal.Decimal
}

// Config carries the venue's fee schedule and precision for one settlement
// token.
type Config struct {
	// TradeFeeRate is charged per contract on buys and sells.
	TradeFeeRate decimal.Decimal
	// DeliveryFeeRate is charged per contract on exercise settlement.
	DeliveryFeeRate decimal.Decimal
	// AmountPlaces is the number of fractional digits trade amounts are
	// rounded to; the minimum trade amount is one unit of that precision.
	AmountPlaces int32
	// FeePlaces is the number of fractional digits fees and settlement
	// amounts are rounded to.
	FeePlaces int32
}

// MinAmount is the smallest tradable amount, one unit at AmountPlaces.
func (c Config) MinAmount() decimal.Decimal {
	return decimal.New(1, -c.AmountPlaces)
}

// MaxFeeRate caps both trade and delivery fees at this share of the premium.
var MaxFeeRate = decimal.RequireFromString("0.125")

// ETHConfig is the fee schedule for ETH-settled options.
func ETHConfig() Config {
	return Config{
		TradeFeeRate:    decimal.RequireFromString("0.0003"),
		DeliveryFeeRate: decimal.RequireFromString("0.00015"),
		AmountPlaces:    0,
		FeePlaces:       6,
	}
}

// BTCConfig is the fee schedule for BTC-settled options.
func BTCConfig() Config {
	return Config{
		TradeFeeRate:    decimal.RequireFromString("0.0003"),
		DeliveryFeeRate: decimal.RequireFromString("0.00015"),
		AmountPlaces:    1,
		FeePlaces:       8,
	}
}
