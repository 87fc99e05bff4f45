package broker

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubMarket is a minimal Market with a fixed valuation.
type stubMarket struct {
	name  string
	value decimal.Decimal
	bound *Broker
}

func (s *stubMarket) Info() MarketInfo { return MarketInfo{Name: s.name} }

func (s *stubMarket) Bind(b *Broker) { s.bound = b }

func (s *stubMarket) LoadData(start, end time.Time) error { return nil }

func (s *stubMarket) Check() error { return nil }

func (s *stubMarket) Timestamps() []time.Time { return nil }

func (s *stubMarket) RefreshStatus(time.Time, PriceRow) error { return nil }

func (s *stubMarket) Dirty() bool { return false }

func (s *stubMarket) Update() error { return nil }
func (s *stubMarket) Valuation(PriceRow) (MarketBalance, error) {
	return MarketBalance{NetValue: s.value}, nil
}

func TestAddMarketBindsAndRejectsDuplicates(t *testing.T) {
	b := New(false)
	m := &stubMarket{name: "venue"}

	require.NoError(t, b.AddMarket(m))
	assert.Same(t, b, m.bound)

	err := b.AddMarket(&stubMarket{name: "venue"})
	require.ErrorIs(t, err, ErrConfig)

	err = b.AddMarket(&stubMarket{name: ""})
	require.ErrorIs(t, err, ErrConfig)
}

func TestAccountStatusAggregates(t *testing.T) {
	b := New(false)
	b.Assets().SetBalance(eth, d("2"))
	b.Assets().SetBalance(usdc, d("500"))
	require.NoError(t, b.AddMarket(&stubMarket{name: "venue", value: d("250")}))

	ts := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	status, err := b.AccountStatus(ts, PriceRow{"eth": d("1000"), "usdc": d("1")})
	require.NoError(t, err)

	// 2 x 1000 + 500 x 1 + 250
	assert.True(t, status.NetValue.Equal(d("2750")), "got %s", status.NetValue)
	assert.Equal(t, ts, status.Timestamp)
	require.Contains(t, status.Markets, "venue")
	assert.True(t, status.Markets["venue"].NetValue.Equal(d("250")))
}

func TestAccountStatusMissingPrice(t *testing.T) {
	b := New(false)
	b.Assets().SetBalance(eth, d("2"))

	_, err := b.AccountStatus(time.Now(), PriceRow{"usdc": d("1")})
	require.Error(t, err)
}

func TestRecordWithoutRecorderIsDropped(t *testing.T) {
	b := New(false)
	// must not panic
	b.Record(&ActionBase{Kind: ActionBuy, Market: "venue"})
}
