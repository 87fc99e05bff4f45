package broker

// Token identifies an asset tracked by the ledger. It is a value type and is
// used as a map key wherever amounts are kept, so two Token values with the
// same name and decimals refer to the same asset.
type Token struct {
	Name     string
	Decimals int32
}

func NewToken(name string, decimals int32) Token {
	return Token{Name: name, Decimals: decimals}
}

func (t Token) String() string { return t.Name }
