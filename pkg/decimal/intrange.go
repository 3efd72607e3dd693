package decimal

// IntRange is an inclusive integer bound, used by the elaborator's
// multiplication rule (spec §4.3) to prove a `fact * literal` payload
// expression stays inside a declared Int{min,max} payload type without
// evaluating any facts.
type IntRange struct {
	Min, Max int64
}

// MulLiteral returns the tightest range containing a*lit for every a in r.
func (r IntRange) MulLiteral(lit int64) IntRange {
	return r.Mul(IntRange{Min: lit, Max: lit})
}

// Mul returns the tightest range containing a*b for every a in r, b in other,
// per spec §4.3: "product range is [min(ac,ad,bc,bd), max(...)]".
func (r IntRange) Mul(other IntRange) IntRange {
	candidates := [4]int64{
		r.Min * other.Min,
		r.Min * other.Max,
		r.Max * other.Min,
		r.Max * other.Max,
	}
	lo, hi := candidates[0], candidates[0]
	for _, c := range candidates[1:] {
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	return IntRange{Min: lo, Max: hi}
}

// Within reports whether r is fully contained in bound.
func (r IntRange) Within(bound IntRange) bool {
	return r.Min >= bound.Min && r.Max <= bound.Max
}
