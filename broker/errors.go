package broker

import "errors"

// Error taxonomy of the simulation core.
//
// ErrConfig, ErrDataNotFound and ErrInvalidRange are fatal: they surface
// before or during setup and abort the whole run. Everything else is local to
// the operation that raised it; the tick continues and the rejected action is
// simply never recorded.
var (
	// ErrConfig marks a pre-run validation failure. A run that fails
	// validation produces no account status and no actions.
	ErrConfig = errors.New("invalid configuration")

	// ErrDataNotFound is returned when a market's backing data file is absent.
	ErrDataNotFound = errors.New("data not found")

	// ErrInvalidRange is returned when a data load range is empty or inverted.
	ErrInvalidRange = errors.New("invalid data range")

	// ErrInsufficientBalance is returned by Ledger.Debit when the resulting
	// balance would be negative and negative balances are disallowed.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientLiquidity is returned when resting orders cannot cover a
	// requested trade amount. No balances or books are mutated on failure.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrNoPosition is returned when selling an instrument with no open
	// position.
	ErrNoPosition = errors.New("no position")

	// ErrUnsafeVault is returned when a vault mutation would violate the
	// collateralization requirement.
	ErrUnsafeVault = errors.New("vault collateralization is not safe")

	// ErrVaultSafe is returned when trying to liquidate a vault that is still
	// above the collateralization threshold.
	ErrVaultSafe = errors.New("cannot liquidate safe vault")

	// ErrDustVault is returned when a vault mutation would leave collateral
	// below the dust minimum.
	ErrDustVault = errors.New("vault collateral below dust minimum")

	// ErrDustVaultRemaining is returned when a liquidation would leave a
	// non-zero, sub-dust vault behind.
	ErrDustVaultRemaining = errors.New("liquidation would leave dust vault")

	// ErrFullLiquidationRequired is returned when the liquidator's stated
	// maximum debt to cover is smaller than the computed liquidation amount.
	ErrFullLiquidationRequired = errors.New("full liquidation required")

	// ErrNotFinished guards results that are only complete once a run reaches
	// the Finished state.
	ErrNotFinished = errors.New("run has not finished")
)
