package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"cookbooks/internal/amqp"
	"cookbooks/internal/core"
	"cookbooks/internal/ledger"
	"cookbooks/internal/log"
	"cookbooks/internal/source"
)

// Publisher sends change events to other processes.
type Publisher interface {
	Publish(ctx context.Context, e *amqp.TransactionEvent) error
}

// Books sits between callers and the ledger. It resolves category names to
// positional ids, applies the withdrawal sign convention, writes through to
// the source of truth and announces each change.
type Books struct {
	mu         sync.RWMutex // guards categories and opening
	categories []string
	opening    core.Balances

	ledger *ledger.Ledger[int64]
	store  source.Store
	events Publisher
	logger *log.Logger
}

// NewBooks wires a Books service. events may be nil.
func NewBooks(store source.Store, events Publisher, logger *log.Logger) *Books {
	if logger == nil {
		logger = log.Discard()
	}
	return &Books{
		opening: core.Balances{Raw: decimal.Zero, Cooked: decimal.Zero},
		ledger:  ledger.New[int64](ledger.WithLogger(logger)),
		store:   store,
		events:  events,
		logger:  logger.WithComponent(log.ComponentBooks),
	}
}

// CategoryID returns the position of name in the category list, or -1.
func (b *Books) CategoryID(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.categoryIDLocked(name)
}

func (b *Books) categoryIDLocked(name string) int {
	for i, c := range b.categories {
		if c == name {
			return i
		}
	}
	return -1
}

// Categories returns a copy of the current category list.
func (b *Books) Categories() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.categories...)
}

// Populate replaces the category list and the ledger contents. Transactions
// whose category is not in the list are kept with id -1, so they count
// towards balances but not towards any category total.
func (b *Books) Populate(txs []core.Transaction, categories []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.categories = append([]string(nil), categories...)

	entries := make([]ledger.Transaction[int64], 0, len(txs))
	for _, tx := range txs {
		categoryID := b.categoryIDLocked(tx.Category)
		if categoryID < 0 {
			b.logger.Warn("Transaction has unknown category",
				log.FieldTransactionID, tx.ID,
				log.FieldCategory, tx.Category)
		}
		raw, cooked := tx.SignedAmounts()
		entries = append(entries, ledger.Transaction[int64]{
			ID:         tx.ID,
			CategoryID: categoryID,
			Raw:        raw,
			Cooked:     cooked,
		})
	}
	b.ledger.Load(entries)
}

// Reload fetches categories, transactions and opening balances from the store
// and repopulates the ledger.
func (b *Books) Reload(ctx context.Context) error {
	var (
		categories []string
		txs        []core.Transaction
		opening    core.Balances
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		categories, err = b.store.ListCategories(gctx)
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		txs, err = b.store.ListTransactions(gctx)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		opening, err = b.store.OpeningBalances(gctx)
		if err != nil {
			return fmt.Errorf("opening balances: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("reload books: %w", err)
	}

	b.Populate(txs, categories)

	b.mu.Lock()
	b.opening = opening
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "Books reloaded",
		log.FieldOperation, log.OpLoad,
		log.FieldLiveCount, len(txs),
		"categories", len(categories))
	return nil
}

func (b *Books) resolve(tx core.Transaction) (categoryID int, raw, cooked decimal.Decimal, err error) {
	if err := tx.Validate(); err != nil {
		return 0, raw, cooked, err
	}
	categoryID = b.CategoryID(tx.Category)
	if categoryID < 0 {
		return 0, raw, cooked, fmt.Errorf("%w: %q", core.ErrUnknownCategory, tx.Category)
	}
	raw, cooked = tx.SignedAmounts()
	return categoryID, raw, cooked, nil
}

// Add stores a new transaction and inserts it into the ledger. It returns the
// id assigned by the store.
func (b *Books) Add(ctx context.Context, tx core.Transaction) (int64, error) {
	categoryID, raw, cooked, err := b.resolve(tx)
	if err != nil {
		return 0, err
	}

	id, err := b.store.CreateTransaction(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("save transaction: %w", err)
	}
	b.ledger.Insert(id, categoryID, raw, cooked)

	b.publish(ctx, amqp.NewTransactionEvent(amqp.OpCreate, id, categoryID, raw, cooked))
	return id, nil
}

// Edit replaces a transaction's category and amounts. An id the ledger does
// not hold is reported as ledger.ErrNotFound before the store is touched.
func (b *Books) Edit(ctx context.Context, tx core.Transaction) error {
	categoryID, raw, cooked, err := b.resolve(tx)
	if err != nil {
		return err
	}
	if _, ok := b.ledger.Get(tx.ID); !ok {
		return &ledger.NotFoundError{Op: log.OpUpdate, ID: tx.ID}
	}

	if err := b.store.UpdateTransaction(ctx, tx); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if err := b.ledger.Update(tx.ID, categoryID, raw, cooked); err != nil {
		return err
	}

	b.publish(ctx, amqp.NewTransactionEvent(amqp.OpUpdate, tx.ID, categoryID, raw, cooked))
	return nil
}

// Remove deletes a transaction from the store and the ledger.
func (b *Books) Remove(ctx context.Context, id int64) error {
	if _, ok := b.ledger.Get(id); !ok {
		return &ledger.NotFoundError{Op: log.OpRemove, ID: id}
	}

	if err := b.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := b.ledger.Remove(id); err != nil {
		return err
	}

	b.publish(ctx, amqp.NewDeleteEvent(id))
	return nil
}

// Transaction returns the stored transaction with the given id.
func (b *Books) Transaction(ctx context.Context, id int64) (core.Transaction, error) {
	tx, err := b.store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// Entries returns the ledger's live transactions in insertion order.
func (b *Books) Entries() []ledger.Transaction[int64] {
	return b.ledger.Transactions()
}

// AddCategory appends a category to the store and to the in-memory list.
// The new category's id is its position, so existing ids do not move.
func (b *Books) AddCategory(ctx context.Context, name string) (int, error) {
	if err := b.store.AddCategory(ctx, name); err != nil {
		return 0, fmt.Errorf("add category: %w", err)
	}

	// Re-read the list: another process may have appended categories too.
	categories, err := b.store.ListCategories(ctx)
	if err != nil {
		return 0, fmt.Errorf("list categories: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.categories = categories
	id := b.categoryIDLocked(strings.TrimSpace(name))

	b.logger.InfoContext(ctx, "Category added",
		log.FieldCategory, name,
		log.FieldCategoryID, id)
	return id, nil
}

// SetOpeningBalances stores new starting balances.
func (b *Books) SetOpeningBalances(ctx context.Context, opening core.Balances) error {
	if err := b.store.SetOpeningBalances(ctx, opening); err != nil {
		return fmt.Errorf("set opening balances: %w", err)
	}

	b.mu.Lock()
	b.opening = opening
	b.mu.Unlock()
	return nil
}

// Apply replays a change event into the ledger without touching the store.
func (b *Books) Apply(ctx context.Context, e *amqp.TransactionEvent) error {
	var err error
	switch e.Op {
	case amqp.OpCreate:
		b.ledger.Insert(e.TransactionID, e.CategoryID, e.RawAmount, e.CookedAmount)
	case amqp.OpUpdate:
		err = b.ledger.Update(e.TransactionID, e.CategoryID, e.RawAmount, e.CookedAmount)
	case amqp.OpDelete:
		err = b.ledger.Remove(e.TransactionID)
	default:
		err = fmt.Errorf("unknown event op %q", e.Op)
	}
	if err != nil {
		return fmt.Errorf("apply event %s: %w", e.EventID, err)
	}

	b.logger.DebugContext(ctx, "Event applied",
		log.FieldEventID, e.EventID,
		log.FieldOperation, string(e.Op),
		log.FieldTransactionID, e.TransactionID)
	return nil
}

// CurrentBalances returns the raw and cooked balances starting from the given
// initial values.
func (b *Books) CurrentBalances(initialRaw, initialCooked decimal.Decimal) core.Balances {
	return core.Balances{
		Raw:    b.ledger.Balance(ledger.Raw, initialRaw),
		Cooked: b.ledger.Balance(ledger.Cooked, initialCooked),
	}
}

// OpeningBalances returns the starting balances loaded by the last Reload.
func (b *Books) OpeningBalances() core.Balances {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.opening
}

// Balances is CurrentBalances starting from the store's opening balances.
func (b *Books) Balances() core.Balances {
	opening := b.OpeningBalances()
	return b.CurrentBalances(opening.Raw, opening.Cooked)
}

// CategoryTotals returns named totals for every category, split into income
// (positive raw total) and expenses (zero or negative).
func (b *Books) CategoryTotals() core.TotalsByGroup {
	categories := b.Categories()
	groups := ledger.Partition(b.ledger.CategoryTotals(len(categories)))

	named := func(in []ledger.CategoryTotal) []core.CategorySummary {
		out := make([]core.CategorySummary, len(in))
		for i, t := range in {
			out[i] = core.CategorySummary{
				Name:        categories[t.CategoryIndex],
				ID:          t.CategoryIndex,
				RawTotal:    t.RawTotal,
				CookedTotal: t.CookedTotal,
			}
		}
		return out
	}

	return core.TotalsByGroup{
		Income:   named(groups.Income),
		Expenses: named(groups.Expenses),
	}
}

// Len returns the number of live transactions.
func (b *Books) Len() int {
	return b.ledger.Len()
}

func (b *Books) publish(ctx context.Context, e *amqp.TransactionEvent) {
	if b.events == nil {
		b.logger.DebugContext(ctx, "Event publisher not available, skipping event",
			log.FieldOperation, log.OpPublish)
		return
	}
	if err := b.events.Publish(ctx, e); err != nil {
		// The store already holds the change; other processes catch up on reload.
		b.logger.ErrorContext(ctx, "Failed to publish transaction event",
			log.FieldEventID, e.EventID,
			log.FieldTransactionID, e.TransactionID,
			log.FieldError, err)
	}
}

// IsNotFound reports whether err means the id was unknown to either the
// ledger or the store.
func IsNotFound(err error) bool {
	return errors.Is(err, ledger.ErrNotFound) || errors.Is(err, source.ErrNotFound)
}
