package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidRates = errors.New("invalid billing rates")

// DefaultRates returns the illustrative rates used when nothing is configured.
func DefaultRates() Rates {
	r, _ := ParseRates(DefaultRatePerSecond, DefaultMarginFraction)
	return r
}

// ParseRates parses decimal strings as found in configuration.
func ParseRates(perSecond, marginFraction string) (Rates, error) {
	ps, err := decimal.NewFromString(perSecond)
	if err != nil {
		return Rates{}, fmt.Errorf("%w: rate per second %q", ErrInvalidRates, perSecond)
	}
	mf, err := decimal.NewFromString(marginFraction)
	if err != nil {
		return Rates{}, fmt.Errorf("%w: margin fraction %q", ErrInvalidRates, marginFraction)
	}
	r := Rates{PerSecond: ps, MarginFraction: mf}
	if err := r.Validate(); err != nil {
		return Rates{}, err
	}
	return r, nil
}

func (r Rates) Validate() error {
	if r.PerSecond.IsNegative() {
		return fmt.Errorf("%w: rate per second must not be negative", ErrInvalidRates)
	}
	if r.MarginFraction.IsNegative() {
		return fmt.Errorf("%w: margin fraction must not be negative", ErrInvalidRates)
	}
	return nil
}

// Compute derives duration, cost and margin for a call spanning [startMs, endMs].
//
// Contract:
// - duration is floor((end-start)/1000) whole seconds, clamped to zero when end precedes start
// - cost = duration * PerSecond, margin = cost * MarginFraction
// - pure: identical inputs always give identical outputs
func (r Rates) Compute(startMs, endMs int64) CallMetrics {
	d := DurationSeconds(startMs, endMs)
	cost := decimal.NewFromInt(d).Mul(r.PerSecond)
	margin := cost.Mul(r.MarginFraction)
	return CallMetrics{
		DurationSeconds: d,
		Cost:            NewAmount(cost),
		Margin:          NewAmount(margin),
	}
}

// DurationSeconds returns whole elapsed seconds, never negative.
func DurationSeconds(startMs, endMs int64) int64 {
	if endMs <= startMs {
		return 0
	}
	return (endMs - startMs) / 1000
}
