package ledger

import (
	"fmt"
	"strings"
)

// Valuation selects which of the two parallel amounts an aggregation sums.
type Valuation int

const (
	// Raw is the actual, unadjusted amount.
	Raw Valuation = iota + 1
	// Cooked is the adjusted amount tracked next to the raw one.
	Cooked
)

// String implements fmt.Stringer
func (v Valuation) String() string {
	switch v {
	case Raw:
		return "raw"
	case Cooked:
		return "cooked"
	default:
		return fmt.Sprintf("valuation(%d)", int(v))
	}
}

// Valid reports whether v is Raw or Cooked.
func (v Valuation) Valid() bool {
	return v == Raw || v == Cooked
}

// ParseValuation accepts "raw" or "cooked" in any case.
func ParseValuation(s string) (Valuation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw":
		return Raw, nil
	case "cooked":
		return Cooked, nil
	default:
		return 0, fmt.Errorf("unknown valuation %q: must be raw or cooked", s)
	}
}
