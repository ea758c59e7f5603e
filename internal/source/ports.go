package source

import (
	"context"
	"errors"

	"cookbooks/internal/core"
)

// ErrNotFound is returned by writers when the transaction id does not exist
// in the source of truth.
var ErrNotFound = errors.New("transaction not found in source")

// ErrDuplicateCategory is returned when adding a category name that exists.
var ErrDuplicateCategory = errors.New("category already exists")

// Ports for the stores the ledger is populated from.
type (
	TransactionReader interface {
		// ListTransactions returns every stored transaction ordered by id.
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	}

	TransactionWriter interface {
		// CreateTransaction stores tx and returns its assigned id.
		CreateTransaction(ctx context.Context, tx core.Transaction) (int64, error)
		UpdateTransaction(ctx context.Context, tx core.Transaction) error
		DeleteTransaction(ctx context.Context, id int64) error
	}

	// CategoryReader returns the ordered category list. A category's position
	// is the id the ledger groups by.
	CategoryReader interface {
		ListCategories(ctx context.Context) ([]string, error)
	}

	// CategoryWriter appends a category. Existing positions never change.
	CategoryWriter interface {
		AddCategory(ctx context.Context, name string) error
	}

	BalanceReader interface {
		// OpeningBalances returns the account's starting raw and cooked balances.
		OpeningBalances(ctx context.Context) (core.Balances, error)
	}

	BalanceWriter interface {
		SetOpeningBalances(ctx context.Context, b core.Balances) error
	}

	// Store is everything the books need from a backend.
	Store interface {
		TransactionReader
		TransactionWriter
		CategoryReader
		CategoryWriter
		BalanceReader
		BalanceWriter
	}
)
