package vault

import (
	"time"

	"github.com/shopspring/decimal"
)

// VaultKey identifies one collateral/debt vault within the venue.
type VaultKey string

// PositionID identifies a liquidity position in the paired spot pool.
type PositionID string

// Vault is a per-user collateral and debt position. A vault is created on
// first deposit/mint and never implicitly destroyed; it may persist with zero
// debt. At most one liquidity position can be attached as extra collateral.
type Vault struct {
	ID          VaultKey
	Collateral  decimal.Decimal
	ShortAmount decimal.Decimal
	LP          *PositionID
}

func (v *Vault) clone() *Vault {
	out := *v
	if v.LP != nil {
		lp := *v.LP
		out.LP = &lp
	}
	return &out
}

// SpotPool is the paired AMM pool the venue prices against and in which
// attached liquidity positions live. The pool itself is an external
// collaborator; the venue only reaches it through this interface.
type SpotPool interface {
	// HasPosition reports whether the pool owns the given position.
	HasPosition(id PositionID) bool

	// Liquidity returns the position's current liquidity.
	Liquidity(id PositionID) decimal.Decimal

	// PositionAmounts returns the base and synthetic amounts backing the
	// position, including accrued fees.
	PositionAmounts(id PositionID) (base, synth decimal.Decimal)

	// TransferOut moves the position out of the caller's control (into a
	// vault); TransferIn moves it back.
	TransferOut(id PositionID) error
	TransferIn(id PositionID) error

	// RemoveLiquidity redeems the position and returns the withdrawn base and
	// synthetic amounts.
	RemoveLiquidity(id PositionID) (base, synth decimal.Decimal, err error)

	// Buy swaps base for the given synthetic amount at the pool price and
	// returns the swap fee and the base spent. Sell is the reverse and
	// returns the fee and the base received.
	Buy(synthAmount decimal.Decimal) (fee, baseSpent decimal.Decimal, err error)
	Sell(synthAmount decimal.Decimal) (fee, baseGot decimal.Decimal, err error)
}

// Row is one minute of controller state: the normalization factor plus the
// base token's USD price and the synthetic token's price in base terms.
type Row struct {
	Timestamp  time.Time
	NormFactor decimal.Decimal
	BasePrice  decimal.Decimal
	SynthPrice decimal.Decimal
}

// Venue risk parameters. A vault is safe while
// collateral x CRDenominator >= debt x CRNumerator, i.e. 150%.
var (
	CRNumerator   = decimal.NewFromInt(3)
	CRDenominator = decimal.NewFromInt(2)

	// MinDeposit is the dust threshold on effective collateral.
	MinDeposit = decimal.RequireFromString("0.5")

	// MinCollateral is the smallest collateral a partially liquidated vault
	// may be left with before liquidation escalates to the full short.
	MinCollateral = decimal.RequireFromString("0.5")

	// ReduceDebtBounty is paid for redeeming an attached liquidity position
	// during liquidation, 2% of the redeemed value.
	ReduceDebtBounty = decimal.RequireFromString("0.02")

	// LiquidationBounty is the liquidator's premium on seized collateral, 10%.
	LiquidationBounty = decimal.RequireFromString("0.1")
)

// TwapWindow is the trailing lookback used for all venue pricing. Averaging
// over several minutes damps single-tick manipulation in the mint and
// liquidation checks.
const TwapWindow = 7 * time.Minute
