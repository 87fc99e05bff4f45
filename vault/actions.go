package vault

import (
	"github.com/shopspring/decimal"

	"github.com/miohtama/demeter/broker"
)

// MintAction records an open/deposit/mint call.
type MintAction struct {
	broker.ActionBase
	Vault      VaultKey        `json:"vault"`
	Deposit    decimal.Decimal `json:"deposit"`
	MintAmount decimal.Decimal `json:"mint_amount"`
	Fee        decimal.Decimal `json:"fee"`
	Collateral decimal.Decimal `json:"collateral"`
	Short      decimal.Decimal `json:"short"`
}

// BurnAction records a burn/withdraw call.
type BurnAction struct {
	broker.ActionBase
	Vault      VaultKey        `json:"vault"`
	Burned     decimal.Decimal `json:"burned"`
	Withdrawn  decimal.Decimal `json:"withdrawn"`
	Collateral decimal.Decimal `json:"collateral"`
	Short      decimal.Decimal `json:"short"`
}

// DepositAction records a plain collateral deposit or an attached liquidity
// position.
type DepositAction struct {
	broker.ActionBase
	Vault    VaultKey        `json:"vault"`
	Amount   decimal.Decimal `json:"amount"`
	Position *PositionID     `json:"position,omitempty"`
}

// WithdrawAction records a collateral or liquidity-position withdrawal.
type WithdrawAction struct {
	broker.ActionBase
	Vault    VaultKey        `json:"vault"`
	Amount   decimal.Decimal `json:"amount"`
	Position *PositionID     `json:"position,omitempty"`
}

// ReduceDebtAction records the redemption of an attached liquidity position
// during liquidation.
type ReduceDebtAction struct {
	broker.ActionBase
	Vault       VaultKey        `json:"vault"`
	BaseAmount  decimal.Decimal `json:"base_amount"`
	SynthAmount decimal.Decimal `json:"synth_amount"`
	Burned      decimal.Decimal `json:"burned"`
	Excess      decimal.Decimal `json:"excess"`
	Bounty      decimal.Decimal `json:"bounty"`
}

// LiquidateAction records a liquidation, including rescues that stop after
// debt reduction with zero seized collateral.
type LiquidateAction struct {
	broker.ActionBase
	Vault             VaultKey        `json:"vault"`
	DebtCovered       decimal.Decimal `json:"debt_covered"`
	CollateralSeized  decimal.Decimal `json:"collateral_seized"`
	ReduceDebtBounty  decimal.Decimal `json:"reduce_debt_bounty"`
	RemainingShort    decimal.Decimal `json:"remaining_short"`
	RemainingCollater decimal.Decimal `json:"remaining_collateral"`
}
