package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Op names the ledger mutation an event carries.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// TransactionEvent announces a committed change to the books so other
// processes can replay it into their own ledger. Category is the resolved
// category index; amounts are already signed.
type TransactionEvent struct {
	EventID       uuid.UUID       `json:"event_id"`
	Op            Op              `json:"op"`
	TransactionID int64           `json:"transaction_id"`
	CategoryID    int             `json:"category_id"`
	RawAmount     decimal.Decimal `json:"raw_amount"`
	CookedAmount  decimal.Decimal `json:"cooked_amount"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewTransactionEvent creates an event for a create or update.
func NewTransactionEvent(op Op, id int64, categoryID int, raw, cooked decimal.Decimal) *TransactionEvent {
	return &TransactionEvent{
		EventID:       uuid.New(),
		Op:            op,
		TransactionID: id,
		CategoryID:    categoryID,
		RawAmount:     raw,
		CookedAmount:  cooked,
		Timestamp:     time.Now().UTC(),
	}
}

// NewDeleteEvent creates an event for a removal.
func NewDeleteEvent(id int64) *TransactionEvent {
	return &TransactionEvent{
		EventID:       uuid.New(),
		Op:            OpDelete,
		TransactionID: id,
		RawAmount:     decimal.Zero,
		CookedAmount:  decimal.Zero,
		Timestamp:     time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and validates an event.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Op {
	case OpCreate, OpUpdate, OpDelete:
	default:
		return nil, fmt.Errorf("unknown event op %q", e.Op)
	}
	if e.EventID == uuid.Nil {
		return nil, fmt.Errorf("event without id")
	}
	return &e, nil
}
