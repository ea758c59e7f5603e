package ledger

import "github.com/shopspring/decimal"

// CategoryTotal is the raw and cooked sum for one category index.
type CategoryTotal struct {
	CategoryIndex int
	RawTotal      decimal.Decimal
	CookedTotal   decimal.Decimal
}

// Groups splits category totals by the sign of their raw total.
type Groups struct {
	Income   []CategoryTotal
	Expenses []CategoryTotal
}

type accumulator struct {
	raw, cooked decimal.Decimal
}

// CategoryTotals sums both valuations per category for every index in
// [0, count). The result has exactly count entries in index order; a category
// with no transactions reports zero totals. Transactions whose category id is
// outside the range are not counted anywhere.
func (l *Ledger[K]) CategoryTotals(count int) []CategoryTotal {
	if count <= 0 {
		return []CategoryTotal{}
	}

	l.mu.Lock()
	acc := make(map[int]*accumulator)
	for _, e := range l.items {
		id := e.tx.CategoryID
		if id < 0 || id >= count {
			continue
		}
		a, ok := acc[id]
		if !ok {
			a = &accumulator{raw: decimal.Zero, cooked: decimal.Zero}
			acc[id] = a
		}
		a.raw = a.raw.Add(e.tx.Raw)
		a.cooked = a.cooked.Add(e.tx.Cooked)
	}
	l.mu.Unlock()

	totals := make([]CategoryTotal, count)
	for i := range totals {
		totals[i] = CategoryTotal{CategoryIndex: i, RawTotal: decimal.Zero, CookedTotal: decimal.Zero}
		if a, ok := acc[i]; ok {
			totals[i].RawTotal = a.raw
			totals[i].CookedTotal = a.cooked
		}
	}
	return totals
}

// Partition places categories with a positive raw total in Income and all
// others, including exactly zero, in Expenses. Input order is preserved.
func Partition(totals []CategoryTotal) Groups {
	g := Groups{
		Income:   make([]CategoryTotal, 0, len(totals)),
		Expenses: make([]CategoryTotal, 0, len(totals)),
	}
	for _, t := range totals {
		if t.RawTotal.IsPositive() {
			g.Income = append(g.Income, t)
		} else {
			g.Expenses = append(g.Expenses, t)
		}
	}
	return g
}
