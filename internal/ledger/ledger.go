// Package ledger keeps the live set of transactions in memory and answers
// balance and per-category aggregate queries over it.
//
// Every transaction carries two parallel valuations, a raw amount and a
// cooked amount. Signs are taken as given: the caller decides that
// withdrawals are negative and deposits positive before inserting. Category
// ids are opaque grouping keys; the ledger knows nothing about category
// names.
//
// Aggregates are recomputed from the live set on every call. Nothing is
// cached, so a query always reflects the last committed mutation.
package ledger

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"cookbooks/internal/log"
)

// Transaction is a copy of one live record.
type Transaction[K comparable] struct {
	ID         K
	CategoryID int
	Raw        decimal.Decimal
	Cooked     decimal.Decimal
}

// Amount returns the value selected by v. An unknown valuation yields zero.
func (t Transaction[K]) Amount(v Valuation) decimal.Decimal {
	switch v {
	case Raw:
		return t.Raw
	case Cooked:
		return t.Cooked
	default:
		return decimal.Zero
	}
}

type entry[K comparable] struct {
	tx  Transaction[K]
	seq uint64 // insertion order, only used by Transactions
}

// Ledger is the in-memory transaction store. The zero value is not usable;
// construct with New. All methods are safe for concurrent use and serialize on
// a single mutex.
type Ledger[K comparable] struct {
	mu     sync.Mutex
	items  map[K]entry[K]
	seq    uint64
	logger *log.Logger
}

type options struct {
	logger *log.Logger
}

// Option configures a Ledger.
type Option func(*options)

// WithLogger sets the logger used for mutation and warning records.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New returns an empty ledger.
func New[K comparable](opts ...Option) *Ledger[K] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Discard()
	}
	return &Ledger[K]{
		items:  make(map[K]entry[K]),
		logger: o.logger.WithComponent(log.ComponentLedger),
	}
}

// Insert adds a transaction. Inserting an id that is already live replaces
// the existing record in place and logs a warning; the returned bool reports
// whether that happened.
func (l *Ledger[K]) Insert(id K, categoryID int, raw, cooked decimal.Decimal) (replaced bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	replaced = l.put(Transaction[K]{ID: id, CategoryID: categoryID, Raw: raw, Cooked: cooked})
	return replaced
}

// put stores tx. Callers must hold l.mu.
func (l *Ledger[K]) put(tx Transaction[K]) bool {
	fields := log.NewFields().
		WithOperation(log.OpInsert).
		WithTransaction(tx.ID, tx.CategoryID, tx.Raw.String(), tx.Cooked.String())

	if existing, ok := l.items[tx.ID]; ok {
		l.items[tx.ID] = entry[K]{tx: tx, seq: existing.seq}
		l.logger.Warn("Duplicate transaction id on insert, overwriting", fields.ToSlice()...)
		return true
	}

	l.seq++
	l.items[tx.ID] = entry[K]{tx: tx, seq: l.seq}
	l.logger.Debug("Transaction inserted", fields.ToSlice()...)
	return false
}

// Update replaces the category and both amounts of a live transaction. It
// returns a *NotFoundError (matching ErrNotFound) if id is not live, in which
// case nothing changes.
func (l *Ledger[K]) Update(id K, categoryID int, raw, cooked decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.items[id]
	if !ok {
		return &NotFoundError{Op: log.OpUpdate, ID: id}
	}

	existing.tx = Transaction[K]{ID: id, CategoryID: categoryID, Raw: raw, Cooked: cooked}
	l.items[id] = existing

	l.logger.Debug("Transaction updated", log.NewFields().
		WithOperation(log.OpUpdate).
		WithTransaction(id, categoryID, raw.String(), cooked.String()).
		ToSlice()...)
	return nil
}

// Remove deletes a live transaction. The id may be inserted again afterwards.
func (l *Ledger[K]) Remove(id K) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.items[id]; !ok {
		return &NotFoundError{Op: log.OpRemove, ID: id}
	}
	delete(l.items, id)

	l.logger.Debug("Transaction removed",
		log.FieldOperation, log.OpRemove,
		log.FieldTransactionID, id)
	return nil
}

// Balance returns initial plus the sum of the selected amount over the live
// set. It scans every transaction on each call.
func (l *Ledger[K]) Balance(v Valuation, initial decimal.Decimal) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !v.Valid() {
		l.logger.Warn("Balance requested for unknown valuation",
			log.FieldOperation, log.OpBalance,
			log.FieldValuation, v.String())
		return initial
	}

	total := initial
	for _, e := range l.items {
		total = total.Add(e.tx.Amount(v))
	}
	return total
}

// Get returns a copy of the live transaction with the given id.
func (l *Ledger[K]) Get(id K) (Transaction[K], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.items[id]
	return e.tx, ok
}

// Len returns the size of the live set.
func (l *Ledger[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Transactions returns copies of all live transactions in insertion order.
// An overwritten or updated record keeps its original position.
func (l *Ledger[K]) Transactions() []Transaction[K] {
	l.mu.Lock()
	entries := make([]entry[K], 0, len(l.items))
	for _, e := range l.items {
		entries = append(entries, e)
	}
	l.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]Transaction[K], len(entries))
	for i, e := range entries {
		out[i] = e.tx
	}
	return out
}

// Load replaces the live set with txs under a single lock acquisition, so no
// reader observes a half-populated ledger. Duplicate ids within txs follow the
// Insert policy: the later record wins.
func (l *Ledger[K]) Load(txs []Transaction[K]) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = make(map[K]entry[K], len(txs))
	l.seq = 0
	for _, tx := range txs {
		l.put(tx)
	}

	l.logger.Info("Ledger populated",
		log.FieldOperation, log.OpLoad,
		log.FieldLiveCount, len(l.items))
}
