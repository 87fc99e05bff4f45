package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miohtama/demeter/broker"
)

// openAndSour opens a vault on tick0 and advances to tick1, where the base
// price move has made it unsafe.
func openAndSour(t *testing.T, m *Market, deposit, mint string) VaultKey {
	t.Helper()
	key, err := m.OpenDepositMint(d(deposit), d(mint), nil, nil)
	require.NoError(t, err)
	require.NoError(t, m.RefreshStatus(tick1, nil))
	safe, err := m.IsSafe(key)
	require.NoError(t, err)
	require.False(t, safe, "fixture vault must be unsafe on tick1")
	return key
}

func TestLiquidateSafeVaultRejected(t *testing.T) {
	m, _ := newTestMarket(t, nil, "0.35")
	key, err := m.OpenDepositMint(d("3"), d("10"), nil, nil)
	require.NoError(t, err)

	_, err = m.Liquidate(key, d("100"))
	require.ErrorIs(t, err, broker.ErrVaultSafe)
}

func TestLiquidatePartial(t *testing.T) {
	m, b := newTestMarket(t, nil, "0.35")
	key := openAndSour(t, m, "3", "10")
	baseBefore := b.Assets().Balance(weth)

	covered, err := m.Liquidate(key, d("10"))
	require.NoError(t, err)

	// half the short: 5, paid 5 x 0.35 x 1.1 = 1.925
	assert.True(t, covered.Equal(d("5")))
	v, _ := m.Vault(key)
	assert.True(t, v.ShortAmount.Equal(d("5")))
	assert.True(t, v.Collateral.Equal(d("1.075")), "got %s", v.Collateral)

	assert.True(t, b.Assets().Balance(synth).Equal(d("5")))
	assert.True(t, b.Assets().Balance(weth).Equal(baseBefore.Add(d("1.925"))))
}

func TestLiquidateEscalatesToFullOnDustCollateral(t *testing.T) {
	m, b := newTestMarket(t, nil, "0.35")
	key := openAndSour(t, m, "2.2", "10")

	// half pass would leave 2.2 - 1.925 = 0.275 < 0.5, so the full short is
	// liquidated and the payout is capped at the collateral
	covered, err := m.Liquidate(key, d("20"))
	require.NoError(t, err)
	assert.True(t, covered.Equal(d("10")))

	v, _ := m.Vault(key)
	assert.True(t, v.ShortAmount.IsZero())
	assert.True(t, v.Collateral.IsZero())
	assert.True(t, b.Assets().Balance(synth).IsZero())
	assert.True(t, b.Assets().Balance(weth).Equal(d("100")), "seized collateral returns to the ledger")
}

func TestLiquidateFullRequired(t *testing.T) {
	m, _ := newTestMarket(t, nil, "0.35")
	key := openAndSour(t, m, "2.2", "10")

	// escalation demands the whole short but the caller only offers 6
	_, err := m.Liquidate(key, d("6"))
	require.ErrorIs(t, err, broker.ErrFullLiquidationRequired)

	v, _ := m.Vault(key)
	assert.True(t, v.ShortAmount.Equal(d("10")), "rejected liquidation must not change the vault")
}

func TestLiquidateDustRemainingRejected(t *testing.T) {
	// synth trades at 0.85 on tick1, so covering 2 debt seizes 1.87 of the
	// 2.2 collateral and would strand 0.33 with 8 short outstanding
	m, _ := newTestMarket(t, nil, "0.85")
	key := openAndSour(t, m, "2.2", "10")

	_, err := m.Liquidate(key, d("2"))
	require.ErrorIs(t, err, broker.ErrDustVaultRemaining)

	v, _ := m.Vault(key)
	assert.True(t, v.ShortAmount.Equal(d("10")))
	assert.True(t, v.Collateral.Equal(d("2.2")))
}

func TestLiquidateReduceDebtRescue(t *testing.T) {
	pool := newFakePool()
	lp := PositionID("pos-1")
	pool.positions[lp] = poolEntry{base: d("1"), synth: d("5")}

	m, b := newTestMarket(t, pool, "0.35")
	key, err := m.OpenDepositMint(d("1"), d("7"), nil, &lp)
	require.NoError(t, err)
	require.NoError(t, m.RefreshStatus(tick1, nil))
	safe, err := m.IsSafe(key)
	require.NoError(t, err)
	require.False(t, safe)
	baseBefore := b.Assets().Balance(weth)

	var actions []broker.Action
	b.SetRecorder(func(a broker.Action) { actions = append(actions, a) })

	covered, err := m.Liquidate(key, d("100"))
	require.NoError(t, err)
	assert.True(t, covered.IsZero(), "rescue seizes no collateral")

	// redeemed value 5 x 0.35 + 1 = 2.75, bounty 2% = 0.055
	bounty := d("0.055")
	assert.True(t, b.Assets().Balance(weth).Equal(baseBefore.Add(bounty)))

	v, _ := m.Vault(key)
	assert.Nil(t, v.LP, "rescue redeems the attached position")
	assert.True(t, v.ShortAmount.Equal(d("2")), "lp synth burns against the debt")
	assert.True(t, v.Collateral.Equal(d("1").Add(d("1")).Sub(bounty)))
	assert.Equal(t, []PositionID{lp}, pool.removed)

	require.Len(t, actions, 2)
	_, ok := actions[0].(*ReduceDebtAction)
	assert.True(t, ok)
	liq, ok := actions[1].(*LiquidateAction)
	require.True(t, ok)
	assert.True(t, liq.DebtCovered.IsZero())
	assert.True(t, liq.ReduceDebtBounty.Equal(bounty))
}

func TestLiquidateFailureLeavesRescueUnapplied(t *testing.T) {
	pool := newFakePool()
	lp := PositionID("pos-1")
	pool.positions[lp] = poolEntry{base: d("0.1"), synth: d("0.5")}

	m, b := newTestMarket(t, pool, "0.35")
	key, err := m.OpenDepositMint(d("3"), d("10"), nil, &lp)
	require.NoError(t, err)
	require.NoError(t, m.RefreshStatus(tick1, nil))

	// the small position cannot rescue the vault, and the liquidator holds
	// too little synth to cover the half-short slice
	b.Assets().SetBalance(synth, d("1"))

	var actions []broker.Action
	b.SetRecorder(func(a broker.Action) { actions = append(actions, a) })

	_, err = m.Liquidate(key, d("10"))
	require.ErrorIs(t, err, broker.ErrInsufficientBalance)

	v, _ := m.Vault(key)
	require.NotNil(t, v.LP, "failed liquidation must not detach the position")
	assert.True(t, v.ShortAmount.Equal(d("10")))
	assert.True(t, v.Collateral.Equal(d("3")))
	assert.True(t, pool.HasPosition(lp), "failed liquidation must not redeem the position")
	assert.Empty(t, pool.removed)
	assert.Empty(t, actions)
	assert.True(t, b.Assets().Balance(synth).Equal(d("1")))
}

func TestLiquidateDebitsLedgerSynth(t *testing.T) {
	m, b := newTestMarket(t, nil, "0.35")
	key := openAndSour(t, m, "3", "10")

	// the liquidator must hold the synth being burned
	b.Assets().SetBalance(synth, d("1"))

	_, err := m.Liquidate(key, d("10"))
	require.ErrorIs(t, err, broker.ErrInsufficientBalance)

	v, _ := m.Vault(key)
	assert.True(t, v.ShortAmount.Equal(d("10")), "failed liquidation must not change the vault")
}
