package detention

import (
	"time"

	"github.com/shopspring/decimal"
)

var sixty = decimal.NewFromInt(60)

// RoundMinutes applies the billing increment rule to m.
// increment <= 0 or RoundNone returns m unchanged
func RoundMinutes(m, increment int, mode Rounding) int {
	if increment <= 0 || m <= 0 {
		return m
	}
	q, r := m/increment, m%increment
	if r == 0 {
		return m
	}
	switch mode {
	case RoundUp:
		return (q + 1) * increment
	case RoundDown:
		return q * increment
	case RoundNearest:
		if 2*r >= increment {
			return (q + 1) * increment
		}
		return q * increment
	}
	return m
}

// ChargeFor prices chargeable minutes under c, rounded to cents, then capped.
// hitMax is true iff the uncapped amount reached MaxCharge
func ChargeFor(minutes int, c Contract) (final, computed decimal.Decimal, hitMax bool) {
	if minutes <= 0 {
		return decimal.Zero, decimal.Zero, false
	}
	m := decimal.NewFromInt(int64(minutes))
	switch c.Unit {
	case PerMinute:
		computed = c.Rate.Mul(m)
	default:
		computed = c.Rate.Mul(m).Div(sixty)
	}
	computed = computed.Round(2)

	if c.MaxCharge.IsPositive() && computed.GreaterThanOrEqual(c.MaxCharge) {
		return c.MaxCharge, computed, true
	}
	return computed, computed, false
}

// MinutesBetween is b minus a in whole minutes, both truncated to the minute first
func MinutesBetween(a, b time.Time) int {
	return int(b.Truncate(time.Minute).Sub(a.Truncate(time.Minute)) / time.Minute)
}
