package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cookbooks/internal/amqp"
	"cookbooks/internal/log"
	"cookbooks/internal/services"
)

// Consumer delivers transaction events until ctx is cancelled.
type Consumer interface {
	ConsumeWithRetry(ctx context.Context, handler amqp.Handler) error
}

// LedgerWorker keeps an in-process ledger in step with changes made by other
// processes. Events are applied as they arrive and the books are reloaded
// from the store on a timer, in case messages were lost.
type LedgerWorker struct {
	// mu serializes HandleEvent with Resync, so a reload never replaces an
	// event applied after its store read.
	mu sync.Mutex

	books          *services.Books
	consumer       Consumer
	resyncInterval time.Duration
	logger         *log.Logger
}

func NewLedgerWorker(books *services.Books, consumer Consumer, resyncInterval time.Duration, logger *log.Logger) *LedgerWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &LedgerWorker{
		books:          books,
		consumer:       consumer,
		resyncInterval: resyncInterval,
		logger:         logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent applies a single event from AMQP. An event that refers to an
// unknown transaction is logged and acknowledged; requeueing it would never
// succeed.
func (w *LedgerWorker) HandleEvent(ctx context.Context, e *amqp.TransactionEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.books.Apply(ctx, e); err != nil {
		if services.IsNotFound(err) {
			w.logger.WarnContext(ctx, "Event refers to unknown transaction, skipping",
				log.FieldEventID, e.EventID,
				log.FieldOperation, string(e.Op),
				log.FieldTransactionID, e.TransactionID)
			return nil
		}
		return fmt.Errorf("handle event: %w", err)
	}

	b := w.books.Balances()
	w.logger.InfoContext(ctx, "Event processed",
		log.FieldEventID, e.EventID,
		log.FieldOperation, string(e.Op),
		log.FieldTransactionID, e.TransactionID,
		log.FieldLiveCount, w.books.Len(),
		log.FieldRawAmount, b.Raw.StringFixed(2),
		log.FieldCookedAmount, b.Cooked.StringFixed(2))
	return nil
}

// Resync reloads the books from the store.
func (w *LedgerWorker) Resync(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.books.Reload(ctx); err != nil {
		return fmt.Errorf("resync: %w", err)
	}
	return nil
}

// Run consumes events and resyncs periodically until ctx is cancelled. A
// cancelled context is not reported as an error.
func (w *LedgerWorker) Run(ctx context.Context) error {
	if w.consumer == nil {
		return errors.New("worker: no event consumer configured")
	}

	w.logger.InfoContext(ctx, "Performing startup resync...", log.FieldOperation, log.OpStartup)
	if err := w.Resync(ctx); err != nil {
		// Keep going, events still apply on top of whatever was loaded.
		w.logger.ErrorContext(ctx, "Startup resync failed", log.FieldError, err)
	}

	if w.resyncInterval > 0 {
		go w.resyncLoop(ctx)
	}

	err := w.consumer.ConsumeWithRetry(log.WithContext(ctx, w.logger), w.HandleEvent)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume events: %w", err)
	}
	return nil
}

func (w *LedgerWorker) resyncLoop(ctx context.Context) {
	ticker := time.NewTicker(w.resyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Resync(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Periodic resync failed", log.FieldError, err)
			}
		}
	}
}
