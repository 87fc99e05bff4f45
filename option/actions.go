package option

import (
	"github.com/shopspring/decimal"

	"github.com/miohtama/demeter/broker"
)

// TradeAction records a buy or sell fill against the order book.
type TradeAction struct {
	broker.ActionBase
	Instrument      string          `json:"instrument"`
	Kind            Kind            `json:"option_kind"`
	AveragePrice    decimal.Decimal `json:"average_price"`
	Amount          decimal.Decimal `json:"amount"`
	Premium         decimal.Decimal `json:"premium"`
	MarkPrice       decimal.Decimal `json:"mark_price"`
	UnderlyingPrice decimal.Decimal `json:"underlying_price"`
	Fee             decimal.Decimal `json:"fee"`
	Orders          []Order         `json:"orders"`
}

// DeliverAction records an in-the-money exercise settlement.
type DeliverAction struct {
	broker.ActionBase
	Instrument      string          `json:"instrument"`
	Kind            Kind            `json:"option_kind"`
	Amount          decimal.Decimal `json:"amount"`
	MarkPrice       decimal.Decimal `json:"mark_price"`
	Strike          decimal.Decimal `json:"strike"`
	UnderlyingPrice decimal.Decimal `json:"underlying_price"`
	DeliverAmount   decimal.Decimal `json:"deliver_amount"`
	Fee             decimal.Decimal `json:"fee"`
	Income          decimal.Decimal `json:"income"`
}

// ExpireAction records a position that expired without delivery.
type ExpireAction struct {
	broker.ActionBase
	Instrument      string          `json:"instrument"`
	Kind            Kind            `json:"option_kind"`
	Amount          decimal.Decimal `json:"amount"`
	MarkPrice       decimal.Decimal `json:"mark_price"`
	Strike          decimal.Decimal `json:"strike"`
	UnderlyingPrice decimal.Decimal `json:"underlying_price"`
}
