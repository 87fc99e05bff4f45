package vault

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miohtama/demeter/broker"
)

const controllerCSV = `block_timestamp,norm_factor,weth,osynth
2023-02-01 10:00:00,0.9,1000,0.05
2023-02-01 10:01:00,,1010,
2023-02-01 10:02:00,0.89,,0.051
`

func TestLoadDataForwardFills(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault-controller-2023-02-01.minute.csv")
	require.NoError(t, os.WriteFile(path, []byte(controllerCSV), 0644))

	m := NewMarket("squeeth", weth, synth, nil)
	m.SetDataPath(dir)

	day := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.LoadData(day, day))

	index := m.Timestamps()
	require.Len(t, index, 3)
	assert.Equal(t, time.Date(2023, 2, 1, 10, 0, 0, 0, time.UTC), index[0])

	require.NoError(t, m.RefreshStatus(index[1], nil))
	row := m.currentRow()
	assert.True(t, row.NormFactor.Equal(d("0.9")), "empty norm_factor fills from the prior minute")
	assert.True(t, row.BasePrice.Equal(d("1010")))
	assert.True(t, row.SynthPrice.Equal(d("0.05")))

	require.NoError(t, m.RefreshStatus(index[2], nil))
	row = m.currentRow()
	assert.True(t, row.BasePrice.Equal(d("1010")), "empty price fills from the prior minute")
	assert.True(t, row.NormFactor.Equal(d("0.89")))
}

func TestLoadDataFirstRowMustBeComplete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault-controller-2023-02-01.minute.csv")
	require.NoError(t, os.WriteFile(path, []byte("block_timestamp,norm_factor,weth,osynth\n2023-02-01 10:00:00,,1000,0.05\n"), 0644))

	m := NewMarket("squeeth", weth, synth, nil)
	m.SetDataPath(dir)

	day := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	require.Error(t, m.LoadData(day, day))
}

func TestLoadDataMissingFile(t *testing.T) {
	m := NewMarket("squeeth", weth, synth, nil)
	m.SetDataPath(t.TempDir())

	day := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	require.ErrorIs(t, m.LoadData(day, day), broker.ErrDataNotFound)
}

func TestLoadDataInvertedRange(t *testing.T) {
	m := NewMarket("squeeth", weth, synth, nil)
	day := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	require.ErrorIs(t, m.LoadData(day, day.AddDate(0, 0, -1)), broker.ErrInvalidRange)
}

func TestPricesFromData(t *testing.T) {
	m := NewMarket("squeeth", weth, synth, nil)
	require.NoError(t, m.SetData([]Row{
		{Timestamp: tick0, NormFactor: d("1"), BasePrice: d("1000"), SynthPrice: d("0.05")},
	}))

	series, err := m.PricesFromData()
	require.NoError(t, err)
	require.Equal(t, 1, series.Len())
	assert.True(t, series.Rows[0]["weth"].Equal(d("1000")))
	assert.True(t, series.Rows[0]["osynth"].Equal(d("50")), "synth USD price converts through the base")
}

func TestSetDataRejectsUnsortedRows(t *testing.T) {
	m := NewMarket("squeeth", weth, synth, nil)
	err := m.SetData([]Row{
		{Timestamp: tick1, NormFactor: d("1"), BasePrice: d("1"), SynthPrice: d("1")},
		{Timestamp: tick0, NormFactor: d("1"), BasePrice: d("1"), SynthPrice: d("1")},
	})
	require.ErrorIs(t, err, broker.ErrInvalidRange)
}
