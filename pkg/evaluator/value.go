// Package evaluator implements the two-phase engine that runs a bundle
// against a fact set (spec §4.5): stratified rule evaluation to a
// verdict set (Phase A), then flow execution against a frozen snapshot
// (Phase B). Runtime values mirror the interchange BaseType lattice;
// Decimal and Money amounts are backed by pkg/decimal's exact big.Rat
// type, never a binary float (spec §1 Non-goals).
package evaluator

import (
	"fmt"
	"sort"

	"github.com/riverline-labs/tenor/pkg/decimal"
)

// Value is the evaluator-internal runtime value. It holds exactly one
// of the concrete shapes below, mirroring BaseType at the value level:
// bool, int64, decimal.Decimal, string, Money, []Value, map[string]Value.
type Value struct {
	Bool    *bool
	Int     *int64
	Decimal *decimal.Decimal
	Text    *string
	Money   *Money
	List    []Value
	Record  map[string]Value
}

// Money pairs an exact decimal amount with a currency tag; arithmetic
// across differing currencies is rejected by the type checker (pass 4)
// and, defensively, by the comparison routine here too.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

func BoolValue(b bool) Value       { return Value{Bool: &b} }
func IntValue(n int64) Value       { return Value{Int: &n} }
func DecimalValue(d decimal.Decimal) Value { return Value{Decimal: &d} }
func TextValue(s string) Value     { return Value{Text: &s} }
func MoneyValue(m Money) Value     { return Value{Money: &m} }
func ListValue(vs []Value) Value   { return Value{List: vs} }
func RecordValue(m map[string]Value) Value { return Value{Record: m} }

// Kind names the populated variant, used for diagnostics and type-
// mismatch error messages.
func (v Value) Kind() string {
	switch {
	case v.Bool != nil:
		return "bool"
	case v.Int != nil:
		return "int"
	case v.Decimal != nil:
		return "decimal"
	case v.Text != nil:
		return "text"
	case v.Money != nil:
		return "money"
	case v.List != nil:
		return "list"
	case v.Record != nil:
		return "record"
	}
	return "none"
}

func (v Value) String() string {
	switch {
	case v.Bool != nil:
		return fmt.Sprintf("%t", *v.Bool)
	case v.Int != nil:
		return fmt.Sprintf("%d", *v.Int)
	case v.Decimal != nil:
		return v.Decimal.String()
	case v.Text != nil:
		return *v.Text
	case v.Money != nil:
		return fmt.Sprintf("%s %s", v.Money.Amount.String(), v.Money.Currency)
	case v.List != nil:
		return fmt.Sprintf("list[%d]", len(v.List))
	case v.Record != nil:
		keys := make([]string, 0, len(v.Record))
		for k := range v.Record {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Sprintf("record%v", keys)
	}
	return "<none>"
}

// asDecimal coerces an Int or Decimal value into a decimal.Decimal for
// mixed-type comparison (spec §4.5.1: "Int-vs-Decimal is performed on
// decimals with the declared scale").
func (v Value) asDecimal() (decimal.Decimal, bool) {
	switch {
	case v.Decimal != nil:
		return *v.Decimal, true
	case v.Int != nil:
		return decimal.FromInt64(*v.Int), true
	}
	return decimal.Decimal{}, false
}
