package pricing

import "github.com/shopspring/decimal"

// Rates are the platform-wide billing constants applied when a call ends.
// Arithmetic is done in decimal so that e.g. 45s at 0.015/s is exactly 0.675.
type Rates struct {
	// PerSecond is the charge per whole second of call time.
	PerSecond decimal.Decimal

	// MarginFraction is the share of cost kept as platform margin.
	MarginFraction decimal.Decimal
}

// CallMetrics are the derived figures stored on a finished call session.
type CallMetrics struct {
	DurationSeconds int64  `json:"duration"`
	Cost            Amount `json:"cost"`
	Margin          Amount `json:"margin"`
}

func (m CallMetrics) Equal(o CallMetrics) bool {
	return m.DurationSeconds == o.DurationSeconds && m.Cost.Equal(o.Cost.Decimal) && m.Margin.Equal(o.Margin.Decimal)
}

// Amount is an exact money value that encodes as a bare JSON number.
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) Amount { return Amount{Decimal: d} }

// MustAmount parses s and panics on malformed input. Intended for constants and tests.
func MustAmount(s string) Amount { return Amount{Decimal: decimal.RequireFromString(s)} }

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// UnmarshalJSON accepts numbers and quoted numbers.
func (a *Amount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		a.Decimal = decimal.Zero
		return nil
	}
	return a.Decimal.UnmarshalJSON(b)
}

const (
	DefaultRatePerSecond  = "0.015"
	DefaultMarginFraction = "0.4"
)
