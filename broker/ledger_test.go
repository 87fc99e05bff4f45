package broker

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	eth  = NewToken("eth", 18)
	usdc = NewToken("usdc", 6)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLedgerCreditDebit(t *testing.T) {
	l := NewLedger(false)
	l.SetBalance(eth, d("10"))

	next := l.Credit(eth, d("2.5"))
	assert.True(t, next.Equal(d("12.5")))

	next, err := l.Debit(eth, d("5"))
	require.NoError(t, err)
	assert.True(t, next.Equal(d("7.5")))
	assert.True(t, l.Balance(eth).Equal(d("7.5")))
}

func TestLedgerDebitInsufficient(t *testing.T) {
	l := NewLedger(false)
	l.SetBalance(eth, d("1"))

	_, err := l.Debit(eth, d("1.000001"))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.True(t, l.Balance(eth).Equal(d("1")), "failed debit must not change the balance")
}

func TestLedgerDebitExact(t *testing.T) {
	l := NewLedger(false)
	l.SetBalance(eth, d("1"))

	next, err := l.Debit(eth, d("1"))
	require.NoError(t, err)
	assert.True(t, next.IsZero())
}

func TestLedgerAllowNegative(t *testing.T) {
	l := NewLedger(true)

	next, err := l.Debit(usdc, d("100"))
	require.NoError(t, err)
	assert.True(t, next.Equal(d("-100")))
}

func TestLedgerUntouchedTokenIsZero(t *testing.T) {
	l := NewLedger(false)
	assert.True(t, l.Balance(usdc).IsZero())
}

func TestLedgerTokensSorted(t *testing.T) {
	l := NewLedger(false)
	l.SetBalance(usdc, d("1"))
	l.SetBalance(eth, d("1"))
	l.SetBalance(NewToken("btc", 8), d("1"))

	tokens := l.Tokens()
	require.Len(t, tokens, 3)
	assert.Equal(t, "btc", tokens[0].Name)
	assert.Equal(t, "eth", tokens[1].Name)
	assert.Equal(t, "usdc", tokens[2].Name)
}

func TestLedgerBalancesIsACopy(t *testing.T) {
	l := NewLedger(false)
	l.SetBalance(eth, d("3"))

	out := l.Balances()
	out[eth] = d("999")
	assert.True(t, l.Balance(eth).Equal(d("3")))
}
