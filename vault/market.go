package vault

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/miohtama/demeter/broker"
	"github.com/miohtama/demeter/internal/id"
)

// Market is a collateralized issuance venue: vaults deposit the base token as
// collateral and mint a synthetic asset against it, subject to a 150%
// collateralization requirement. Undercollateralized vaults are liquidated by
// the caller for a bounty.
//
// All safety math prices through a trailing TWAP rather than the instantaneous
// tick, so a single manipulated row cannot trip mint checks or liquidations.
type Market struct {
	info     broker.MarketInfo
	base     broker.Token
	synth    broker.Token
	pool     SpotPool
	broker   *broker.Broker
	logger   *zap.Logger
	dataPath string

	index []time.Time
	rows  []Row

	statusIdx int
	vaults    map[VaultKey]*Vault
	order     []VaultKey
	dirty     bool
}

// NewMarket builds the venue. pool may be nil when liquidity-position
// collateral and synth swaps are not used.
func NewMarket(name string, base, synth broker.Token, pool SpotPool) *Market {
	return &Market{
		info:      broker.MarketInfo{Name: name},
		base:      base,
		synth:     synth,
		pool:      pool,
		logger:    zap.NewNop(),
		dataPath:  "./data",
		statusIdx: -1,
		vaults:    make(map[VaultKey]*Vault),
	}
}

func (m *Market) Info() broker.MarketInfo { return m.info }

func (m *Market) Bind(b *broker.Broker) { m.broker = b }

func (m *Market) SetLogger(l *zap.Logger) {
	if l != nil {
		m.logger = l
	}
}

func (m *Market) SetDataPath(path string) { m.dataPath = path }

// BaseToken returns the collateral token.
func (m *Market) BaseToken() broker.Token { return m.base }

// SynthToken returns the minted synthetic token.
func (m *Market) SynthToken() broker.Token { return m.synth }

func (m *Market) Timestamps() []time.Time { return m.index }

func (m *Market) Dirty() bool { return m.dirty }

func (m *Market) Check() error {
	if m.broker == nil {
		return fmt.Errorf("vault market %s is not registered with a broker: %w", m.info.Name, broker.ErrConfig)
	}
	if len(m.index) == 0 {
		return fmt.Errorf("vault market %s has no data: %w", m.info.Name, broker.ErrConfig)
	}
	return nil
}

func (m *Market) RefreshStatus(ts time.Time, _ broker.PriceRow) error {
	n := len(m.index)
	i := sort.Search(n, func(i int) bool { return !m.index[i].Before(ts) })
	if i >= n || !m.index[i].Equal(ts) {
		return fmt.Errorf("vault market %s has no data row for %s", m.info.Name, ts)
	}
	m.statusIdx = i
	m.dirty = false
	return nil
}

// StatusTime returns the timestamp the current status is bound to.
func (m *Market) StatusTime() time.Time {
	if m.statusIdx < 0 {
		return time.Time{}
	}
	return m.index[m.statusIdx]
}

func (m *Market) currentRow() Row {
	if m.statusIdx < 0 {
		return Row{}
	}
	return m.rows[m.statusIdx]
}

// NormFactor returns the current normalization factor.
func (m *Market) NormFactor() decimal.Decimal { return m.currentRow().NormFactor }

// IndexPrice is the per-unit debt value of the synthetic asset in base terms:
// normalization factor x TWAP of the base price.
func (m *Market) IndexPrice() decimal.Decimal {
	return m.NormFactor().Mul(m.Twap(m.base.Name))
}

// Mark is the TWAP of the synthetic asset's traded price in base terms.
func (m *Market) Mark() decimal.Decimal { return m.Twap(m.synth.Name) }

// Vault returns a copy of the vault's state.
func (m *Market) Vault(key VaultKey) (Vault, bool) {
	v, ok := m.vaults[key]
	if !ok {
		return Vault{}, false
	}
	return *v.clone(), true
}

// Vaults returns the vault keys in creation order.
func (m *Market) Vaults() []VaultKey {
	return append([]VaultKey(nil), m.order...)
}

// IsSafe reports whether the vault satisfies the collateralization
// requirement.
func (m *Market) IsSafe(key VaultKey) (bool, error) {
	v, ok := m.vaults[key]
	if !ok {
		return false, fmt.Errorf("vault %s does not exist", key)
	}
	safe, _ := m.vaultStatus(v, m.NormFactor())
	return safe, nil
}

// CollateralizationRatio returns effective collateral over debt value, both
// in base terms, zero for a debt-free vault.
func (m *Market) CollateralizationRatio(key VaultKey) (decimal.Decimal, error) {
	v, ok := m.vaults[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("vault %s does not exist", key)
	}
	if v.ShortAmount.IsZero() {
		return decimal.Zero, nil
	}
	basePrice := m.Twap(m.base.Name)
	debt := v.ShortAmount.Mul(m.NormFactor()).Mul(basePrice)
	return m.effectiveCollateral(v, m.NormFactor(), basePrice).Div(debt), nil
}

// OpenDepositMint deposits collateral and mints synthetic debt in one call,
// creating a new vault when key is nil and optionally attaching a liquidity
// position. The resulting vault must satisfy both the collateralization and
// the dust requirement or the whole call fails with nothing applied.
func (m *Market) OpenDepositMint(deposit, mint decimal.Decimal, key *VaultKey, lp *PositionID) (VaultKey, error) {
	norm := m.NormFactor()

	var work *Vault
	isNew := key == nil
	if isNew {
		work = &Vault{ID: VaultKey(id.New())}
	} else {
		v, ok := m.vaults[*key]
		if !ok {
			return "", fmt.Errorf("vault %s does not exist", *key)
		}
		work = v.clone()
	}

	// Issuance fee rate is currently zero; the hook stays so a non-zero
	// schedule only needs a rate change.
	fee := decimal.Zero
	if mint.IsPositive() {
		work.ShortAmount = work.ShortAmount.Add(mint)
	}
	if deposit.IsPositive() {
		work.Collateral = work.Collateral.Add(deposit.Sub(fee))
	}
	if lp != nil {
		if err := m.validateLPAttach(work, *lp); err != nil {
			return "", err
		}
		attach := *lp
		work.LP = &attach
	}
	if err := m.checkVault(work, norm); err != nil {
		return "", err
	}

	if lp != nil {
		if err := m.pool.TransferOut(*lp); err != nil {
			return "", fmt.Errorf("attach position %s: %w", *lp, err)
		}
	}
	if deposit.IsPositive() {
		if _, err := m.broker.Assets().Debit(m.base, deposit); err != nil {
			if lp != nil {
				_ = m.pool.TransferIn(*lp)
			}
			return "", fmt.Errorf("deposit collateral: %w", err)
		}
	}
	if mint.IsPositive() {
		m.broker.Assets().Credit(m.synth, mint)
	}

	m.vaults[work.ID] = work
	if isNew {
		m.order = append(m.order, work.ID)
	}
	m.dirty = true
	m.broker.Record(&MintAction{
		ActionBase: broker.ActionBase{Kind: broker.ActionMint, Market: m.info.Name},
		Vault:      work.ID,
		Deposit:    deposit,
		MintAmount: mint,
		Fee:        fee,
		Collateral: work.Collateral,
		Short:      work.ShortAmount,
	})
	return work.ID, nil
}

// Deposit adds collateral to an existing vault.
func (m *Market) Deposit(key VaultKey, amount decimal.Decimal) error {
	v, ok := m.vaults[key]
	if !ok {
		return fmt.Errorf("vault %s does not exist", key)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("deposit amount must be positive, got %s", amount)
	}
	if _, err := m.broker.Assets().Debit(m.base, amount); err != nil {
		return fmt.Errorf("deposit collateral: %w", err)
	}
	v.Collateral = v.Collateral.Add(amount)
	m.dirty = true
	m.broker.Record(&DepositAction{
		ActionBase: broker.ActionBase{Kind: broker.ActionDeposit, Market: m.info.Name},
		Vault:      key,
		Amount:     amount,
	})
	return nil
}

// DepositLiquidityPosition attaches a spot-pool liquidity position to the
// vault as extra collateral. At most one position can be attached.
func (m *Market) DepositLiquidityPosition(key VaultKey, lp PositionID) error {
	v, ok := m.vaults[key]
	if !ok {
		return fmt.Errorf("vault %s does not exist", key)
	}
	if err := m.validateLPAttach(v, lp); err != nil {
		return err
	}
	if err := m.pool.TransferOut(lp); err != nil {
		return fmt.Errorf("attach position %s: %w", lp, err)
	}
	attach := lp
	v.LP = &attach
	m.dirty = true
	m.broker.Record(&DepositAction{
		ActionBase: broker.ActionBase{Kind: broker.ActionDeposit, Market: m.info.Name},
		Vault:      key,
		Position:   &attach,
	})
	return nil
}

// Withdraw removes collateral, clamped to what the vault holds, and fails
// without any mutation if the remainder would violate the safety predicate.
func (m *Market) Withdraw(key VaultKey, amount decimal.Decimal) error {
	v, ok := m.vaults[key]
	if !ok {
		return fmt.Errorf("vault %s does not exist", key)
	}
	amount = decimal.Min(amount, v.Collateral)

	work := v.clone()
	work.Collateral = work.Collateral.Sub(amount)
	if err := m.checkVault(work, m.NormFactor()); err != nil {
		return err
	}

	v.Collateral = work.Collateral
	m.broker.Assets().Credit(m.base, amount)
	m.dirty = true
	m.broker.Record(&WithdrawAction{
		ActionBase: broker.ActionBase{Kind: broker.ActionWithdraw, Market: m.info.Name},
		Vault:      key,
		Amount:     amount,
	})
	return nil
}

// WithdrawLiquidityPosition detaches the vault's liquidity position and
// returns it to the spot pool, subject to the safety predicate.
func (m *Market) WithdrawLiquidityPosition(key VaultKey, lp PositionID) error {
	v, ok := m.vaults[key]
	if !ok {
		return fmt.Errorf("vault %s does not exist", key)
	}
	if v.LP == nil || *v.LP != lp {
		return fmt.Errorf("position %s is not deposited in vault %s", lp, key)
	}

	work := v.clone()
	work.LP = nil
	if err := m.checkVault(work, m.NormFactor()); err != nil {
		return err
	}

	if err := m.pool.TransferIn(lp); err != nil {
		return fmt.Errorf("detach position %s: %w", lp, err)
	}
	v.LP = nil
	m.dirty = true
	m.broker.Record(&WithdrawAction{
		ActionBase: broker.ActionBase{Kind: broker.ActionWithdraw, Market: m.info.Name},
		Vault:      key,
		Position:   &lp,
	})
	return nil
}

// BurnAndWithdraw burns synthetic debt (clamped at zero short) and withdraws
// collateral in one call. Any safety violation fails the whole call with no
// partial application.
func (m *Market) BurnAndWithdraw(key VaultKey, burn, withdraw decimal.Decimal) error {
	v, ok := m.vaults[key]
	if !ok {
		return fmt.Errorf("vault %s does not exist", key)
	}

	work := v.clone()
	burned := decimal.Zero
	if burn.IsPositive() {
		burned = decimal.Min(burn, work.ShortAmount)
		work.ShortAmount = work.ShortAmount.Sub(burned)
	}
	withdrawn := decimal.Zero
	if withdraw.IsPositive() {
		withdrawn = decimal.Min(withdraw, work.Collateral)
		work.Collateral = work.Collateral.Sub(withdrawn)
	}
	if err := m.checkVault(work, m.NormFactor()); err != nil {
		return err
	}

	if burned.IsPositive() {
		if _, err := m.broker.Assets().Debit(m.synth, burned); err != nil {
			return fmt.Errorf("burn synth: %w", err)
		}
	}
	if withdrawn.IsPositive() {
		m.broker.Assets().Credit(m.base, withdrawn)
	}
	v.ShortAmount = work.ShortAmount
	v.Collateral = work.Collateral
	m.dirty = true
	m.broker.Record(&BurnAction{
		ActionBase: broker.ActionBase{Kind: broker.ActionBurn, Market: m.info.Name},
		Vault:      key,
		Burned:     burned,
		Withdrawn:  withdrawn,
		Collateral: v.Collateral,
		Short:      v.ShortAmount,
	})
	return nil
}

// BuySynth swaps base for the synthetic asset through the paired spot pool.
func (m *Market) BuySynth(amount decimal.Decimal) (fee, baseSpent decimal.Decimal, err error) {
	if m.pool == nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("vault market %s has no spot pool", m.info.Name)
	}
	return m.pool.Buy(amount)
}

// SellSynth swaps the synthetic asset back to base through the paired spot
// pool.
func (m *Market) SellSynth(amount decimal.Decimal) (fee, baseGot decimal.Decimal, err error) {
	if m.pool == nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("vault market %s has no spot pool", m.info.Name)
	}
	return m.pool.Sell(amount)
}

// Update scans every vault and logs the ones below the safety threshold.
// Liquidation itself stays a caller decision; the venue never force-closes.
func (m *Market) Update() error {
	norm := m.NormFactor()
	for _, key := range m.order {
		v := m.vaults[key]
		if safe, _ := m.vaultStatus(v, norm); !safe {
			m.logger.Warn("vault below safety threshold",
				zap.String("vault", string(key)),
				zap.String("collateral", v.Collateral.String()),
				zap.String("short", v.ShortAmount.String()))
		}
	}
	return nil
}

// Valuation reports the venue's collateral and short exposure. Long synth
// held in the ledger is valued by the ledger itself, so the net value here is
// collateral value minus short value.
func (m *Market) Valuation(_ broker.PriceRow) (broker.MarketBalance, error) {
	if m.statusIdx < 0 {
		return broker.MarketBalance{}, fmt.Errorf("vault market %s has no current status", m.info.Name)
	}
	row := m.currentRow()
	synthUSD := row.SynthPrice.Mul(row.BasePrice)

	norm := row.NormFactor
	twapBase := m.Twap(m.base.Name)
	short := decimal.Zero
	collateral := decimal.Zero
	for _, key := range m.order {
		v := m.vaults[key]
		short = short.Add(v.ShortAmount)
		collateral = collateral.Add(m.effectiveCollateral(v, norm, twapBase))
	}

	longAmount := m.broker.Assets().Balance(m.synth)
	longValue := longAmount.Mul(synthUSD)
	shortValue := short.Mul(synthUSD)
	collateralValue := collateral.Mul(row.BasePrice)

	return broker.MarketBalance{
		NetValue: collateralValue.Sub(shortValue),
		Metrics: map[string]decimal.Decimal{
			"collateral_value": collateralValue,
			"long_value":       longValue,
			"short_value":      shortValue,
			"net_synth_value":  longValue.Sub(shortValue),
			"vault_count":      decimal.NewFromInt(int64(len(m.vaults))),
			"delta":            decimal.NewFromInt(2).Mul(row.BasePrice),
			"gamma":            decimal.NewFromInt(2),
		},
	}, nil
}

func (m *Market) validateLPAttach(v *Vault, lp PositionID) error {
	if m.pool == nil {
		return fmt.Errorf("vault market %s has no spot pool", m.info.Name)
	}
	if !m.pool.HasPosition(lp) {
		return fmt.Errorf("position %s is not in the paired spot pool", lp)
	}
	if !m.pool.Liquidity(lp).IsPositive() {
		return fmt.Errorf("position %s carries no liquidity", lp)
	}
	if v.LP != nil {
		return fmt.Errorf("vault %s already has a liquidity position attached", v.ID)
	}
	return nil
}

// checkVault enforces the safety and dust predicates on a prospective vault
// state.
func (m *Market) checkVault(v *Vault, norm decimal.Decimal) error {
	safe, dust := m.vaultStatus(v, norm)
	if !safe {
		return fmt.Errorf("vault %s: %w", v.ID, broker.ErrUnsafeVault)
	}
	if dust {
		return fmt.Errorf("vault %s: %w", v.ID, broker.ErrDustVault)
	}
	return nil
}

// vaultStatus evaluates the safety and dust predicates. A debt-free vault is
// always safe and never dust.
func (m *Market) vaultStatus(v *Vault, norm decimal.Decimal) (safe, dust bool) {
	if v.ShortAmount.IsZero() {
		return true, false
	}
	basePrice := m.Twap(m.base.Name)
	debt := v.ShortAmount.Mul(norm).Mul(basePrice)
	collateral := m.effectiveCollateral(v, norm, basePrice)

	dust = collateral.LessThan(MinDeposit)
	safe = collateral.Mul(CRDenominator).GreaterThanOrEqual(debt.Mul(CRNumerator))
	return safe, dust
}

// effectiveCollateral is the base collateral plus the value of an attached
// liquidity position: its base leg and fees, plus its synth leg valued at the
// index price, all in base terms.
func (m *Market) effectiveCollateral(v *Vault, norm, basePrice decimal.Decimal) decimal.Decimal {
	baseAmount := decimal.Zero
	synthAmount := decimal.Zero
	if v.LP != nil {
		baseAmount, synthAmount = m.pool.PositionAmounts(*v.LP)
	}
	synthValue := synthAmount.Mul(norm).Mul(basePrice)
	return baseAmount.Add(synthValue).Add(v.Collateral)
}
