package broker

import "time"

// ActionKind tags the audit record variant for one economic event.
type ActionKind string

const (
	ActionBuy        ActionKind = "buy"
	ActionSell       ActionKind = "sell"
	ActionDeliver    ActionKind = "deliver"
	ActionExpire     ActionKind = "expire"
	ActionMint       ActionKind = "mint"
	ActionBurn       ActionKind = "burn"
	ActionDeposit    ActionKind = "deposit"
	ActionWithdraw   ActionKind = "withdraw"
	ActionLiquidate  ActionKind = "liquidate"
	ActionReduceDebt ActionKind = "reduce_debt"
)

// ActionBase carries the fields shared by every action record. The timestamp
// is stamped by the run loop when the action is recorded; markets never set it
// themselves.
type ActionBase struct {
	Kind      ActionKind `json:"kind"`
	Market    string     `json:"market"`
	Timestamp time.Time  `json:"timestamp"`
}

func (b *ActionBase) Base() *ActionBase { return b }

// Action is an immutable, append-only audit record of one venue operation.
// Concrete variants live in the venue packages and embed ActionBase.
type Action interface {
	Base() *ActionBase
}
