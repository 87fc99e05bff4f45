package broker

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Ledger keeps one signed balance per token. Unless negative balances are
// explicitly allowed, any debit that would drive a balance below zero fails
// atomically: the entry is left untouched.
//
// There is no cross-token atomicity. Multi-leg transfers are sequenced by the
// caller; each leg is a single-entry mutation that either applies fully or not
// at all.
type Ledger struct {
	balances      map[Token]decimal.Decimal
	allowNegative bool
}

func NewLedger(allowNegative bool) *Ledger {
	return &Ledger{
		balances:      make(map[Token]decimal.Decimal),
		allowNegative: allowNegative,
	}
}

// AllowNegative reports whether balances may go below zero.
func (l *Ledger) AllowNegative() bool { return l.allowNegative }

// SetBalance overwrites the balance of a token, typically to fund the account
// before a run starts.
func (l *Ledger) SetBalance(token Token, amount decimal.Decimal) {
	l.balances[token] = amount
}

// Balance returns the current balance of a token, zero if it was never
// touched.
func (l *Ledger) Balance(token Token) decimal.Decimal {
	return l.balances[token]
}

// Credit increases the balance of a token. It always succeeds and returns the
// new balance.
func (l *Ledger) Credit(token Token, amount decimal.Decimal) decimal.Decimal {
	next := l.balances[token].Add(amount)
	l.balances[token] = next
	return next
}

// Debit decreases the balance of a token. If the resulting balance would be
// negative and negative balances are disallowed, the balance is left untouched
// and ErrInsufficientBalance is returned.
func (l *Ledger) Debit(token Token, amount decimal.Decimal) (decimal.Decimal, error) {
	next := l.balances[token].Sub(amount)
	if next.IsNegative() && !l.allowNegative {
		return l.balances[token], fmt.Errorf(
			"debit %s %s from balance %s: %w",
			amount, token.Name, l.balances[token], ErrInsufficientBalance)
	}
	l.balances[token] = next
	return next, nil
}

// Tokens returns every token the ledger has seen, sorted by name so callers
// iterate deterministically.
func (l *Ledger) Tokens() []Token {
	tokens := make([]Token, 0, len(l.balances))
	for t := range l.balances {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Name < tokens[j].Name })
	return tokens
}

// Balances returns a copy of the balance table.
func (l *Ledger) Balances() map[Token]decimal.Decimal {
	out := make(map[Token]decimal.Decimal, len(l.balances))
	for t, b := range l.balances {
		out[t] = b
	}
	return out
}
