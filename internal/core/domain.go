package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Withdrawal TransactionType = "Withdrawal"
	Deposit    TransactionType = "Deposit"
)

type (
	TransactionType string

	Date struct {
		time.Time
	}

	// Transaction is the record the books keep for one account movement.
	// Amounts may be entered unsigned; SignedAmounts applies the sign
	// convention before anything reaches the ledger.
	Transaction struct {
		ID           int64
		Date         Date
		Description  string
		Type         TransactionType
		Category     string
		RawAmount    decimal.Decimal
		CookedAmount decimal.Decimal
	}

	// Balances holds a pair of running balances, one per valuation.
	Balances struct {
		Raw    decimal.Decimal
		Cooked decimal.Decimal
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrUnknownCategory  = errors.New("unknown category")
)

const dateLayout = "2006-01-02"

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO yyyy-mm-dd date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// String formats the date as yyyy-mm-dd.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// ParseTransactionType accepts "withdrawal" or "deposit" in any case.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "withdrawal":
		return Withdrawal, nil
	case "deposit":
		return Deposit, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

func (tt TransactionType) Valid() bool {
	return tt == Withdrawal || tt == Deposit
}

// SignedAmounts returns the raw and cooked amounts with withdrawals forced
// negative. Deposits pass through unchanged.
func (t Transaction) SignedAmounts() (raw, cooked decimal.Decimal) {
	sign := func(amount decimal.Decimal) decimal.Decimal {
		if t.Type == Withdrawal {
			return amount.Abs().Neg()
		}
		return amount
	}
	return sign(t.RawAmount), sign(t.CookedAmount)
}

func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, t.Type)
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}
