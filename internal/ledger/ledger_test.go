package ledger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"cookbooks/internal/log"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, what string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Fatalf("%s = %s, want %s", what, got, want)
	}
}

func TestNewLedgerIsEmpty(t *testing.T) {
	l := New[int64]()
	if l.Len() != 0 {
		t.Fatalf("expected empty ledger, got %d", l.Len())
	}
	assertDecimal(t, "raw balance", l.Balance(Raw, d("12.50")), "12.50")
	assertDecimal(t, "cooked balance", l.Balance(Cooked, decimal.Zero), "0")
}

func TestBalanceComposition(t *testing.T) {
	l := New[int64]()
	for i, raw := range []string{"-50", "200", "-30"} {
		l.Insert(int64(i+1), 0, d(raw), d(raw))
	}
	assertDecimal(t, "raw balance", l.Balance(Raw, d("1000")), "1120")
}

func TestBalanceUsesSelectedValuation(t *testing.T) {
	l := New[int64]()
	l.Insert(1, 0, d("-10.25"), d("-8"))
	l.Insert(2, 1, d("100"), d("90.10"))

	assertDecimal(t, "raw", l.Balance(Raw, d("5")), "94.75")
	assertDecimal(t, "cooked", l.Balance(Cooked, d("5")), "87.10")
	assertDecimal(t, "unknown valuation", l.Balance(Valuation(3), d("5")), "5")
}

func TestInsertRemoveRoundTrip(t *testing.T) {
	l := New[int64]()
	l.Insert(1, 0, d("-20"), d("-18"))
	beforeRaw := l.Balance(Raw, d("100"))
	beforeCooked := l.Balance(Cooked, d("100"))

	l.Insert(2, 1, d("75.30"), d("60"))
	if err := l.Remove(2); err != nil {
		t.Fatalf("remove: %v", err)
	}

	assertDecimal(t, "raw after round trip", l.Balance(Raw, d("100")), beforeRaw.String())
	assertDecimal(t, "cooked after round trip", l.Balance(Cooked, d("100")), beforeCooked.String())
	if l.Len() != 1 {
		t.Fatalf("live set = %d, want 1", l.Len())
	}
}

func TestUpdateDoesNotDoubleCount(t *testing.T) {
	l := New[int64]()
	l.Insert(5, 2, d("-40"), d("-35"))

	if err := l.Update(5, 2, d("-40"), d("-30")); err != nil {
		t.Fatalf("update: %v", err)
	}

	assertDecimal(t, "cooked balance", l.Balance(Cooked, d("100")), "70")
	assertDecimal(t, "raw balance", l.Balance(Raw, d("100")), "60")
	if l.Len() != 1 {
		t.Fatalf("live set = %d, want 1", l.Len())
	}
}

func TestUpdateMovesCategory(t *testing.T) {
	l := New[int64]()
	l.Insert(1, 0, d("-10"), d("-10"))
	if err := l.Update(1, 2, d("-10"), d("-9")); err != nil {
		t.Fatalf("update: %v", err)
	}
	totals := l.CategoryTotals(3)
	assertDecimal(t, "category 0 raw", totals[0].RawTotal, "0")
	assertDecimal(t, "category 2 raw", totals[2].RawTotal, "-10")
	assertDecimal(t, "category 2 cooked", totals[2].CookedTotal, "-9")
}

func TestNotFoundPropagation(t *testing.T) {
	l := New[int64]()
	l.Insert(1, 0, d("10"), d("10"))

	err := l.Update(99, 0, d("1"), d("1"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("update unknown id: got %v, want ErrNotFound", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.ID != int64(99) || nf.Op != log.OpUpdate {
		t.Fatalf("expected NotFoundError for update 99, got %#v", err)
	}

	if err := l.Remove(42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("remove unknown id: got %v, want ErrNotFound", err)
	}

	if l.Len() != 1 {
		t.Fatalf("live set changed: %d", l.Len())
	}
	assertDecimal(t, "raw balance", l.Balance(Raw, decimal.Zero), "10")
}

func TestRemoveTwiceReportsNotFound(t *testing.T) {
	l := New[string]()
	l.Insert("a", 0, d("1"), d("1"))
	if err := l.Remove("a"); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := l.Remove("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove: got %v", err)
	}
	if err := l.Update("a", 0, d("1"), d("1")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update after remove: got %v", err)
	}
}

func TestIDReuseAfterRemove(t *testing.T) {
	l := New[string]()
	l.Insert("tx-1", 0, d("-5"), d("-5"))
	if err := l.Remove("tx-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if replaced := l.Insert("tx-1", 1, d("7"), d("6")); replaced {
		t.Fatalf("reinsert after remove must not count as a replacement")
	}
	tx, ok := l.Get("tx-1")
	if !ok || tx.CategoryID != 1 || !tx.Raw.Equal(d("7")) {
		t.Fatalf("unexpected record after reuse: %+v ok=%v", tx, ok)
	}
}

func TestDuplicateInsertOverwritesWithWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelWarn, Output: &buf})
	l := New[int64](WithLogger(logger))

	if l.Insert(1, 0, d("-10"), d("-10")) {
		t.Fatalf("first insert reported replacement")
	}
	if !l.Insert(1, 1, d("-25"), d("-20")) {
		t.Fatalf("duplicate insert did not report replacement")
	}

	if l.Len() != 1 {
		t.Fatalf("duplicate insert grew the live set to %d", l.Len())
	}
	assertDecimal(t, "raw balance", l.Balance(Raw, decimal.Zero), "-25")
	if !strings.Contains(buf.String(), "Duplicate transaction id") {
		t.Fatalf("expected warning, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "component=ledger") {
		t.Fatalf("expected ledger component, got %q", buf.String())
	}
}

func TestCategoryCompleteness(t *testing.T) {
	l := New[int64]()
	l.Insert(1, 0, d("-12"), d("-10"))
	l.Insert(2, 2, d("300"), d("280"))
	l.Insert(3, 0, d("-8"), d("-8"))

	totals := l.CategoryTotals(3)
	if len(totals) != 3 {
		t.Fatalf("got %d entries, want 3", len(totals))
	}
	for i, ct := range totals {
		if ct.CategoryIndex != i {
			t.Fatalf("entry %d has index %d", i, ct.CategoryIndex)
		}
	}
	assertDecimal(t, "cat 0 raw", totals[0].RawTotal, "-20")
	assertDecimal(t, "cat 0 cooked", totals[0].CookedTotal, "-18")
	assertDecimal(t, "cat 1 raw", totals[1].RawTotal, "0")
	assertDecimal(t, "cat 1 cooked", totals[1].CookedTotal, "0")
	assertDecimal(t, "cat 2 raw", totals[2].RawTotal, "300")
	assertDecimal(t, "cat 2 cooked", totals[2].CookedTotal, "280")
}

func TestCategoryTotalsOutOfRangeExcluded(t *testing.T) {
	l := New[int64]()
	l.Insert(1, 0, d("1"), d("1"))
	l.Insert(2, 5, d("100"), d("100"))
	l.Insert(3, -1, d("100"), d("100"))

	totals := l.CategoryTotals(2)
	if len(totals) != 2 {
		t.Fatalf("got %d entries, want 2", len(totals))
	}
	assertDecimal(t, "cat 0", totals[0].RawTotal, "1")
	assertDecimal(t, "cat 1", totals[1].RawTotal, "0")

	// Out-of-range transactions still count towards balances.
	assertDecimal(t, "raw balance", l.Balance(Raw, decimal.Zero), "201")

	if got := l.CategoryTotals(0); got == nil || len(got) != 0 {
		t.Fatalf("CategoryTotals(0) = %v, want empty", got)
	}
	if got := l.CategoryTotals(-3); len(got) != 0 {
		t.Fatalf("CategoryTotals(-3) = %v, want empty", got)
	}
}

func TestCategoryTotalsIdempotent(t *testing.T) {
	l := New[int64]()
	l.Insert(1, 0, d("-1.10"), d("-1"))
	l.Insert(2, 1, d("2.20"), d("2"))
	l.Insert(3, 1, d("-0.20"), d("0"))

	first := l.CategoryTotals(4)
	second := l.CategoryTotals(4)
	if len(first) != len(second) {
		t.Fatalf("length changed: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].CategoryIndex != second[i].CategoryIndex ||
			!first[i].RawTotal.Equal(second[i].RawTotal) ||
			!first[i].CookedTotal.Equal(second[i].CookedTotal) {
			t.Fatalf("entry %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestReturnedTotalsAreDetached(t *testing.T) {
	l := New[int64]()
	l.Insert(1, 0, d("-10"), d("-10"))
	totals := l.CategoryTotals(1)
	balance := l.Balance(Raw, decimal.Zero)

	l.Insert(2, 0, d("-90"), d("-90"))
	if err := l.Update(1, 0, d("-1"), d("-1")); err != nil {
		t.Fatalf("update: %v", err)
	}

	assertDecimal(t, "earlier total", totals[0].RawTotal, "-10")
	assertDecimal(t, "earlier balance", balance, "-10")
	assertDecimal(t, "fresh total", l.CategoryTotals(1)[0].RawTotal, "-91")
}

func TestPartitionZeroIsExpense(t *testing.T) {
	totals := []CategoryTotal{
		{CategoryIndex: 0, RawTotal: d("-120"), CookedTotal: d("-100")},
		{CategoryIndex: 1, RawTotal: d("300"), CookedTotal: d("300")},
		{CategoryIndex: 2, RawTotal: d("0"), CookedTotal: d("0")},
	}

	g := Partition(totals)
	if len(g.Expenses) != 2 || len(g.Income) != 1 {
		t.Fatalf("expenses=%v income=%v", g.Expenses, g.Income)
	}
	assertDecimal(t, "expense 0", g.Expenses[0].RawTotal, "-120")
	assertDecimal(t, "expense 1", g.Expenses[1].RawTotal, "0")
	assertDecimal(t, "income 0", g.Income[0].RawTotal, "300")
	if g.Expenses[1].CategoryIndex != 2 || g.Income[0].CategoryIndex != 1 {
		t.Fatalf("indices not preserved: %+v", g)
	}
}

func TestPartitionEmpty(t *testing.T) {
	g := Partition(nil)
	if g.Income == nil || g.Expenses == nil || len(g.Income)+len(g.Expenses) != 0 {
		t.Fatalf("expected empty non-nil groups, got %+v", g)
	}
}

func TestTransactionsInsertionOrder(t *testing.T) {
	l := New[string]()
	l.Insert("c", 0, d("1"), d("1"))
	l.Insert("a", 0, d("2"), d("2"))
	l.Insert("b", 0, d("3"), d("3"))
	l.Insert("c", 1, d("4"), d("4")) // overwrite keeps position
	if err := l.Remove("a"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	got := l.Transactions()
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].CategoryID != 1 {
		t.Fatalf("overwrite not applied: %+v", got[0])
	}
}

func TestLoadReplacesLiveSet(t *testing.T) {
	l := New[int64]()
	l.Insert(100, 0, d("999"), d("999"))

	l.Load([]Transaction[int64]{
		{ID: 1, CategoryID: 0, Raw: d("-5"), Cooked: d("-4")},
		{ID: 2, CategoryID: 1, Raw: d("10"), Cooked: d("10")},
		{ID: 1, CategoryID: 0, Raw: d("-6"), Cooked: d("-6")},
	})

	if l.Len() != 2 {
		t.Fatalf("live set = %d, want 2", l.Len())
	}
	if _, ok := l.Get(100); ok {
		t.Fatalf("old record survived Load")
	}
	assertDecimal(t, "raw balance", l.Balance(Raw, decimal.Zero), "4")

	l.Load(nil)
	if l.Len() != 0 {
		t.Fatalf("Load(nil) left %d records", l.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	l := New[int]()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := w*1000 + i
				l.Insert(id, i%3, d("-1"), d("-2"))
				_ = l.Balance(Raw, decimal.Zero)
				_ = l.CategoryTotals(3)
				if i%2 == 0 {
					if err := l.Update(id, 0, d("1"), d("2")); err != nil {
						t.Errorf("update %d: %v", id, err)
					}
				}
			}
		}(w)
	}
	wg.Wait()

	if l.Len() != 800 {
		t.Fatalf("live set = %d, want 800", l.Len())
	}
	// 400 records at +1 and 400 at -1.
	assertDecimal(t, "raw balance", l.Balance(Raw, decimal.Zero), "0")
	assertDecimal(t, "cooked balance", l.Balance(Cooked, decimal.Zero), "0")
}

func TestParseValuation(t *testing.T) {
	cases := []struct {
		in   string
		want Valuation
		ok   bool
	}{
		{"raw", Raw, true},
		{" Cooked ", Cooked, true},
		{"1", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseValuation(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q: got %v err=%v", tc.in, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q: expected error", tc.in)
		}
	}
	if Raw.String() != "raw" || Cooked.String() != "cooked" || Valuation(9).Valid() {
		t.Fatalf("unexpected valuation strings/validity")
	}
}
