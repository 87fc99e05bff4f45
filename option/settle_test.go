package option

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miohtama/demeter/broker"
)

// settleFixture builds a two-tick history: positions open on the first tick
// and the instrument expires on the second.
func settleFixture(t *testing.T, inst Instrument, atExpiry Instrument) (*Market, *broker.Broker) {
	t.Helper()
	b := broker.New(false)
	b.Assets().SetBalance(eth, d("10"))

	m := NewMarket("deribit", eth, ETHConfig())
	require.NoError(t, b.AddMarket(m))
	require.NoError(t, m.SetData(
		[]time.Time{t0, inst.Expiry},
		[]map[string]Instrument{{inst.Name: inst}, {atExpiry.Name: atExpiry}},
	))
	require.NoError(t, m.RefreshStatus(t0, nil))
	return m, b
}

func TestSettleDeliversInTheMoneyCall(t *testing.T) {
	inst := callInstrument()
	atExpiry := inst
	atExpiry.UnderlyingPrice = d("1320") // strike 1200, 120 in the money
	atExpiry.MarkPrice = d("0.09")

	m, b := settleFixture(t, inst, atExpiry)
	_, err := m.Buy(inst.Name, d("5"))
	require.NoError(t, err)
	funded := b.Assets().Balance(eth)

	var actions []broker.Action
	b.SetRecorder(func(a broker.Action) { actions = append(actions, a) })

	require.NoError(t, m.RefreshStatus(inst.Expiry, nil))
	require.NoError(t, m.Update())

	// deliver 5 x (120 / 1320) = 0.454545, fee min(0.00015x5, 0.125x5x0.09) = 0.00075
	deliver := d("0.454545")
	fee := d("0.00075")
	assert.True(t, b.Assets().Balance(eth).Equal(funded.Add(deliver).Sub(fee)),
		"got %s", b.Assets().Balance(eth))

	_, ok := m.Position(inst.Name)
	assert.False(t, ok, "settled position must be removed")

	require.Len(t, actions, 1)
	del, ok := actions[0].(*DeliverAction)
	require.True(t, ok, "in the money settlement records a deliver action")
	assert.True(t, del.DeliverAmount.Equal(deliver))
	assert.True(t, del.Fee.Equal(fee))
	assert.True(t, del.Income.Equal(deliver.Sub(fee)))
}

func TestSettleExpiresOutOfTheMoney(t *testing.T) {
	inst := callInstrument()
	atExpiry := inst
	atExpiry.UnderlyingPrice = d("1100") // below strike 1200

	m, b := settleFixture(t, inst, atExpiry)
	_, err := m.Buy(inst.Name, d("5"))
	require.NoError(t, err)
	funded := b.Assets().Balance(eth)

	var actions []broker.Action
	b.SetRecorder(func(a broker.Action) { actions = append(actions, a) })

	require.NoError(t, m.RefreshStatus(inst.Expiry, nil))
	require.NoError(t, m.Update())

	assert.True(t, b.Assets().Balance(eth).Equal(funded), "worthless expiry pays nothing")
	_, ok := m.Position(inst.Name)
	assert.False(t, ok)

	require.Len(t, actions, 1)
	_, ok = actions[0].(*ExpireAction)
	assert.True(t, ok, "out of the money settlement records an expire action")
}

func TestSettleSkipsDeliveryWhenFeeEatsProceeds(t *testing.T) {
	inst := callInstrument()
	atExpiry := inst
	// 0.01 in the money on 1200.01: deliver 1 x (0.01 / 1200.01) ~ 0.000008,
	// fee min(0.00015, 0.125x0.05) = 0.00015 exceeds it
	atExpiry.UnderlyingPrice = d("1200.01")

	m, b := settleFixture(t, inst, atExpiry)
	_, err := m.Buy(inst.Name, d("1"))
	require.NoError(t, err)
	funded := b.Assets().Balance(eth)

	var actions []broker.Action
	b.SetRecorder(func(a broker.Action) { actions = append(actions, a) })

	require.NoError(t, m.RefreshStatus(inst.Expiry, nil))
	require.NoError(t, m.Update())

	assert.True(t, b.Assets().Balance(eth).Equal(funded))
	require.Len(t, actions, 1)
	_, ok := actions[0].(*ExpireAction)
	assert.True(t, ok, "delivery below fee settles as expiry")
}

func TestSettleDeliversInTheMoneyPut(t *testing.T) {
	inst := callInstrument()
	inst.Name = "ETH-3FEB23-1200-P"
	inst.Kind = Put

	atExpiry := inst
	atExpiry.UnderlyingPrice = d("1080") // 120 below strike

	m, b := settleFixture(t, inst, atExpiry)
	_, err := m.Buy(inst.Name, d("5"))
	require.NoError(t, err)
	funded := b.Assets().Balance(eth)

	require.NoError(t, m.RefreshStatus(inst.Expiry, nil))
	require.NoError(t, m.Update())

	// deliver 5 x (120 / 1080) = 0.555556, fee 0.00075
	assert.True(t, b.Assets().Balance(eth).Equal(funded.Add(d("0.555556")).Sub(d("0.00075"))),
		"got %s", b.Assets().Balance(eth))
}

func TestSettleMissingInstrumentFails(t *testing.T) {
	inst := callInstrument()
	other := callInstrument()
	other.Name = "ETH-3FEB23-1300-C"

	m, _ := settleFixture(t, inst, other)
	_, err := m.Buy(inst.Name, d("1"))
	require.NoError(t, err)

	require.NoError(t, m.RefreshStatus(inst.Expiry, nil))
	require.Error(t, m.Update(), "expired position without a data row is an invariant violation")
}
