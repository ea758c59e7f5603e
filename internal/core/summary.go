package core

import "github.com/shopspring/decimal"

// CategorySummary is the raw and cooked total for one named category.
type CategorySummary struct {
	Name        string
	ID          int // position in the category list
	RawTotal    decimal.Decimal
	CookedTotal decimal.Decimal
}

// TotalsByGroup splits category summaries into income and expenses.
type TotalsByGroup struct {
	Income   []CategorySummary
	Expenses []CategorySummary
}
