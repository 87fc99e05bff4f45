package journal

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miohtama/demeter/broker"
)

func TestSQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.sqlite")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	defer j.Close()

	ts := time.Date(2023, 2, 1, 8, 0, 0, 0, time.UTC)
	rec, err := NewActionRecord(&broker.ActionBase{
		Kind:      broker.ActionBuy,
		Market:    "deribit",
		Timestamp: ts,
	})
	require.NoError(t, err)
	require.NoError(t, j.RecordAction(rec))

	require.NoError(t, j.RecordStatus(StatusRecord{
		Timestamp: ts,
		NetValue:  1234.5,
		Details:   json.RawMessage(`{"net_value":"1234.5"}`),
	}))

	actions, err := j.ListActionsBetween(ts.Add(-time.Minute), ts.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, rec.ID, actions[0].ID)
	assert.Equal(t, "buy", actions[0].Kind)
	assert.Equal(t, "deribit", actions[0].Market)

	statuses, err := j.ListStatusesBetween(ts.Add(-time.Minute), ts.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, 1234.5, statuses[0].NetValue)
}

func TestSQLiteWindowExcludes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.sqlite")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	defer j.Close()

	ts := time.Date(2023, 2, 1, 8, 0, 0, 0, time.UTC)
	rec, err := NewActionRecord(&broker.ActionBase{Kind: broker.ActionSell, Market: "m", Timestamp: ts})
	require.NoError(t, err)
	require.NoError(t, j.RecordAction(rec))

	actions, err := j.ListActionsBetween(ts.Add(time.Minute), ts.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestActionRecordIDsAreSortable(t *testing.T) {
	a1, err := NewActionRecord(&broker.ActionBase{Kind: broker.ActionBuy, Market: "m"})
	require.NoError(t, err)
	a2, err := NewActionRecord(&broker.ActionBase{Kind: broker.ActionBuy, Market: "m"})
	require.NoError(t, err)
	assert.Less(t, a1.ID, a2.ID)
}
