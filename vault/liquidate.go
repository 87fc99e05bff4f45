package vault

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/miohtama/demeter/broker"
)

// rescuePlan stages the redemption of an attached liquidity position so a
// liquidation can be validated end to end before anything is mutated.
type rescuePlan struct {
	lp     PositionID
	base   decimal.Decimal
	synth  decimal.Decimal
	burned decimal.Decimal
	excess decimal.Decimal
	bounty decimal.Decimal
}

// Liquidate closes part of an unsafe vault's debt in exchange for collateral
// plus a bounty, and returns the debt amount covered.
//
// The sequence mirrors the on-chain controller. First any attached liquidity
// position is redeemed against the debt; if that alone restores safety the
// caller only earns the reduce-debt bounty and no collateral is seized.
// Otherwise up to half the remaining short is liquidated, escalating to the
// full short when the partial pass would strand dust collateral. maxDebt caps
// how much debt the caller is willing to cover; when the required amount
// exceeds it the call fails with ErrFullLiquidationRequired.
//
// The whole call is validated against prospective state first: on any error,
// including an insufficient synth balance, vault, pool and ledger are left
// untouched.
func (m *Market) Liquidate(key VaultKey, maxDebt decimal.Decimal) (decimal.Decimal, error) {
	v, ok := m.vaults[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("vault %s does not exist", key)
	}
	norm := m.NormFactor()
	if safe, _ := m.vaultStatus(v, norm); safe {
		return decimal.Zero, fmt.Errorf("vault %s: %w", key, broker.ErrVaultSafe)
	}

	work := v.clone()
	plan := m.planReduceDebt(work)

	if safe, _ := m.vaultStatus(work, norm); safe {
		// Debt reduction alone rescues the vault. The bounty is paid out and
		// no collateral changes hands.
		if err := m.commitReduceDebt(plan, key); err != nil {
			return decimal.Zero, err
		}
		if plan.bounty.IsPositive() {
			m.broker.Assets().Credit(m.base, plan.bounty)
		}
		v.ShortAmount = work.ShortAmount
		v.Collateral = work.Collateral
		v.LP = nil
		m.dirty = true
		m.broker.Record(&LiquidateAction{
			ActionBase:        broker.ActionBase{Kind: broker.ActionLiquidate, Market: m.info.Name},
			Vault:             key,
			ReduceDebtBounty:  plan.bounty,
			RemainingShort:    v.ShortAmount,
			RemainingCollater: v.Collateral,
		})
		return decimal.Zero, nil
	}

	// The rescue is not enough, so the bounty stays in the vault and is
	// liquidated along with the rest of the collateral.
	bounty := decimal.Zero
	if plan != nil {
		bounty = plan.bounty
		work.Collateral = work.Collateral.Add(bounty)
	}

	liqAmount, collateralToPay := m.liquidationResult(maxDebt, work.ShortAmount, work.Collateral)
	if maxDebt.LessThan(liqAmount) {
		return decimal.Zero, fmt.Errorf("max debt %s is below the %s required: %w",
			maxDebt, liqAmount, broker.ErrFullLiquidationRequired)
	}

	work.ShortAmount = work.ShortAmount.Sub(liqAmount)
	work.Collateral = work.Collateral.Sub(collateralToPay)
	if _, dust := m.vaultStatus(work, norm); dust {
		return decimal.Zero, fmt.Errorf("vault %s would be left below the dust threshold: %w",
			key, broker.ErrDustVaultRemaining)
	}

	if _, err := m.broker.Assets().Debit(m.synth, liqAmount); err != nil {
		return decimal.Zero, fmt.Errorf("cover debt of vault %s: %w", key, err)
	}
	if err := m.commitReduceDebt(plan, key); err != nil {
		m.broker.Assets().Credit(m.synth, liqAmount)
		return decimal.Zero, err
	}
	m.broker.Assets().Credit(m.base, collateralToPay)

	v.ShortAmount = work.ShortAmount
	v.Collateral = work.Collateral
	v.LP = nil
	m.dirty = true
	m.broker.Record(&LiquidateAction{
		ActionBase:        broker.ActionBase{Kind: broker.ActionLiquidate, Market: m.info.Name},
		Vault:             key,
		DebtCovered:       liqAmount,
		CollateralSeized:  collateralToPay,
		ReduceDebtBounty:  bounty,
		RemainingShort:    v.ShortAmount,
		RemainingCollater: v.Collateral,
	})
	return liqAmount, nil
}

// planReduceDebt stages the redemption of the vault's attached liquidity
// position against its debt, applied to the given clone only. The position's
// synth leg burns against the short, the base leg joins the collateral, and
// 2% of the redeemed value is carved out as the caller's bounty. Returns nil
// when no position is attached.
func (m *Market) planReduceDebt(work *Vault) *rescuePlan {
	if work.LP == nil {
		return nil
	}
	base, synth := m.pool.PositionAmounts(*work.LP)

	plan := &rescuePlan{
		lp:     *work.LP,
		base:   base,
		synth:  synth,
		burned: decimal.Min(synth, work.ShortAmount),
		bounty: synth.Mul(m.Mark()).Add(base).Mul(ReduceDebtBounty),
	}
	plan.excess = synth.Sub(plan.burned)

	work.ShortAmount = work.ShortAmount.Sub(plan.burned)
	work.Collateral = work.Collateral.Add(base).Sub(plan.bounty)
	work.LP = nil
	return plan
}

// commitReduceDebt executes a staged rescue: the position leaves the pool,
// synth beyond the debt is credited to the ledger and the redemption is
// recorded. No-op for a nil plan.
func (m *Market) commitReduceDebt(plan *rescuePlan, key VaultKey) error {
	if plan == nil {
		return nil
	}
	if _, _, err := m.pool.RemoveLiquidity(plan.lp); err != nil {
		return fmt.Errorf("redeem position %s: %w", plan.lp, err)
	}
	if plan.excess.IsPositive() {
		m.broker.Assets().Credit(m.synth, plan.excess)
	}
	m.broker.Record(&ReduceDebtAction{
		ActionBase:  broker.ActionBase{Kind: broker.ActionReduceDebt, Market: m.info.Name},
		Vault:       key,
		BaseAmount:  plan.base,
		SynthAmount: plan.synth,
		Burned:      plan.burned,
		Excess:      plan.excess,
		Bounty:      plan.bounty,
	})
	return nil
}

// liquidationResult sizes the liquidation. The first pass takes at most half
// the short; if that would strand less than MinCollateral the whole short
// becomes liquidatable. The payout is capped at the vault's collateral.
func (m *Market) liquidationResult(maxDebt, short, collateral decimal.Decimal) (amount, pay decimal.Decimal) {
	amount, pay = m.singleLiquidation(maxDebt, short.Div(decimal.NewFromInt(2)))
	if collateral.GreaterThan(pay) && collateral.Sub(pay).LessThan(MinCollateral) {
		amount, pay = m.singleLiquidation(maxDebt, short)
	}
	if pay.GreaterThan(collateral) {
		amount = short
		pay = collateral
	}
	return amount, pay
}

// singleLiquidation prices one liquidation slice at the synth TWAP plus the
// liquidator's bounty.
func (m *Market) singleLiquidation(maxInput, maxLiquidatable decimal.Decimal) (amount, pay decimal.Decimal) {
	amount = decimal.Min(maxInput, maxLiquidatable)
	pay = amount.Mul(m.Mark())
	pay = pay.Add(pay.Mul(LiquidationBounty))
	return amount, pay
}
