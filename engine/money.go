/*
Package engine provides the transactional core of the wagering platform.

PURPOSE:
  Domain-agnostic building blocks: money arithmetic, the document store
  interface, the unit-of-work handle, and the retrying transaction
  coordinator. Domain packages (wallet, match, request, audit) compose
  these; the engine knows nothing about matches or wallets.

KEY CONCEPTS IN THIS FILE (money.go):
  - Money: a fixed-point monetary amount backed by decimal.Decimal
  - Two-decimal precision everywhere; no floats in balance math

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal avoids floating-point drift in balances
  2. Immutability: Money values are copied, never mutated in place
  3. Type safety: Money cannot be silently mixed with raw decimals

SEE ALSO:
  - store.go: Document store interface and write buffer types
  - coordinator.go: Unit-of-work execution with conflict retry
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point monetary amount
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value).Round(2)}
}

func NewMoneyFromInt(value int64) Money {
	return Money{Value: decimal.NewFromInt(value)}
}

// ParseMoney parses a decimal string, rejecting malformed input.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, Errorf(InvalidArgument, "invalid amount %q", s)
	}
	return Money{Value: d.Round(2)}, nil
}

func Zero() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(o Money) Money        { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money        { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(s decimal.Decimal) Money { return Money{Value: m.Value.Mul(s).Round(2)} }
func (m Money) Neg() Money               { return Money{Value: m.Value.Neg()} }
func (m Money) IsNegative() bool         { return m.Value.IsNegative() }
func (m Money) IsZero() bool             { return m.Value.IsZero() }
func (m Money) IsPositive() bool         { return m.Value.IsPositive() }
func (m Money) GreaterThan(o Money) bool { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool    { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool       { return m.Value.Equal(o.Value) }
func (m Money) String() string           { return m.Value.StringFixed(2) }

// JSON round-trips as a plain decimal string so stored wallet fields stay
// addressable by the store's numeric increment writes.
func (m Money) MarshalJSON() ([]byte, error) { return m.Value.MarshalJSON() }

func (m *Money) UnmarshalJSON(b []byte) error { return m.Value.UnmarshalJSON(b) }
